package quote

import (
	"math"

	"perp-quoter/internal/config"
	"perp-quoter/internal/exchange"
)

// Intent is a computed, not yet submitted order. Intents live for one
// refresh cycle only.
type Intent struct {
	Side  exchange.Side
	Price float64
	Size  float64
}

type Ladder struct {
	Bids []Intent
	Asks []Intent
}

func (l Ladder) Empty() bool {
	return len(l.Bids) == 0 && len(l.Asks) == 0
}

// Spread is the distance between the innermost ask and bid, or 0 for an
// empty ladder.
func (l Ladder) Spread() float64 {
	if len(l.Bids) == 0 || len(l.Asks) == 0 {
		return 0
	}
	return l.Asks[0].Price - l.Bids[0].Price
}

// ComputeLadder derives a symmetric ladder of bid/ask intents around ref.
// Level i sits (spread/2 + (i+1)*step) percent away from the reference, with
// size growing by SizeGrowthFactor per level so that outer orders are
// modestly larger. Degenerate inputs yield an empty ladder; the caller skips
// placement for that cycle. The function is pure.
func ComputeLadder(ref float64, cfg config.StrategyConfig) Ladder {
	if ref <= 0 || math.IsNaN(ref) || math.IsInf(ref, 0) {
		return Ladder{}
	}
	if cfg.PriceSteps <= 0 || cfg.BaseSize <= 0 {
		return Ladder{}
	}
	levels := cfg.PriceSteps
	if cfg.MaxOrdersPerSide > 0 && levels > cfg.MaxOrdersPerSide {
		levels = cfg.MaxOrdersPerSide
	}
	var ladder Ladder
	for i := 0; i < levels; i++ {
		offset := float64(i+1) * cfg.StepPct
		distPct := cfg.SpreadPct/2 + offset
		bidPrice := roundTo(ref*(1-distPct/100), cfg.PriceDecimals)
		askPrice := roundTo(ref*(1+distPct/100), cfg.PriceDecimals)
		size := roundTo(cfg.BaseSize*(1+float64(i)*cfg.SizeGrowthFactor), cfg.SizeDecimals)
		if !validIntent(bidPrice, size) || !validIntent(askPrice, size) {
			continue
		}
		ladder.Bids = append(ladder.Bids, Intent{Side: exchange.SideBuy, Price: bidPrice, Size: size})
		ladder.Asks = append(ladder.Asks, Intent{Side: exchange.SideSell, Price: askPrice, Size: size})
	}
	return ladder
}

func validIntent(price, size float64) bool {
	if price <= 0 || size <= 0 {
		return false
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || math.IsNaN(size) || math.IsInf(size, 0) {
		return false
	}
	return true
}

func roundTo(value float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(value)
	}
	factor := math.Pow10(decimals)
	return math.Round(value*factor) / factor
}
