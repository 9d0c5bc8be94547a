package quote

import (
	"context"
	"math"

	"go.uber.org/zap"

	"perp-quoter/internal/config"
)

type Mode string

const (
	ModeNormal         Mode = "NORMAL"
	ModeOracleOverride Mode = "ORACLE_OVERRIDE"
)

// Evaluation is the divergence verdict for one refresh cycle. OracleChecked
// separates "oracle agreed" from "oracle never answered": both quote NORMAL
// but only the former carries a meaningful DiffPct.
type Evaluation struct {
	Mode           Mode
	ReferencePrice float64
	OraclePrice    float64
	DiffPct        float64
	OracleChecked  bool
}

// OraclePricer is the slice of the price source the monitor needs.
type OraclePricer interface {
	PriceFrom(ctx context.Context, provider, symbol string) (float64, error)
}

// Monitor compares the local reference price to an external oracle and
// switches the quoting reference when they diverge beyond the threshold.
// It keeps no state of its own; staleness handling lives in the price cache.
type Monitor struct {
	pricer OraclePricer
	cfg    config.OracleConfig
	log    *zap.Logger
}

func NewMonitor(pricer OraclePricer, cfg config.OracleConfig, log *zap.Logger) *Monitor {
	return &Monitor{pricer: pricer, cfg: cfg, log: log}
}

// Evaluate picks the reference mode and price for one cycle. A missing or
// invalid oracle price fails open to NORMAL quoting around the local price.
func (m *Monitor) Evaluate(ctx context.Context, symbol string, localPrice float64) Evaluation {
	normal := Evaluation{Mode: ModeNormal, ReferencePrice: localPrice}
	if !m.cfg.Enabled {
		return normal
	}
	oraclePx, err := m.pricer.PriceFrom(ctx, m.cfg.Provider, symbol)
	if err != nil || oraclePx <= 0 {
		m.log.Warn("oracle price unavailable, quoting around local price",
			zap.String("symbol", symbol),
			zap.String("provider", m.cfg.Provider),
			zap.Error(err),
		)
		return normal
	}
	diffPct := math.Abs(localPrice-oraclePx) / oraclePx * 100
	eval := Evaluation{Mode: ModeNormal, ReferencePrice: localPrice, OraclePrice: oraclePx, DiffPct: diffPct, OracleChecked: true}
	if diffPct >= m.cfg.ThresholdPct {
		eval.Mode = ModeOracleOverride
		eval.ReferencePrice = oraclePx
		m.log.Info("local price diverged from oracle",
			zap.String("symbol", symbol),
			zap.Float64("local", localPrice),
			zap.Float64("oracle", oraclePx),
			zap.Float64("diff_pct", diffPct),
		)
	}
	return eval
}
