package app

import (
	"sync"
	"time"

	"perp-quoter/internal/quote"
)

// Stats are the loop's running counters, read by the status summary, the
// operator /status command, and the persisted snapshot.
type Stats struct {
	mu              sync.Mutex
	startedAt       time.Time
	ticks           uint64
	refreshes       uint64
	ordersPlaced    uint64
	ordersFailed    uint64
	ordersCancelled uint64
	riskDenials     uint64
	oracleOverrides uint64
	quotedVolume    float64
	lastSpread      float64
	lastMode        quote.Mode
	lastReference   float64
	lastDiffPct     float64
}

type StatsView struct {
	Uptime          time.Duration
	Ticks           uint64
	Refreshes       uint64
	OrdersPlaced    uint64
	OrdersFailed    uint64
	OrdersCancelled uint64
	RiskDenials     uint64
	OracleOverrides uint64
	QuotedVolume    float64
	LastSpread      float64
	LastMode        quote.Mode
	LastReference   float64
	LastDiffPct     float64
}

func NewStats() *Stats {
	return &Stats{startedAt: time.Now(), lastMode: quote.ModeNormal}
}

func (s *Stats) RecordTick() {
	s.mu.Lock()
	s.ticks++
	s.mu.Unlock()
}

func (s *Stats) RecordRiskDenial() {
	s.mu.Lock()
	s.riskDenials++
	s.mu.Unlock()
}

func (s *Stats) RecordRefresh(eval quote.Evaluation, attempted, accepted, cancelled int, spread, volume float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	s.ordersPlaced += uint64(accepted)
	s.ordersFailed += uint64(attempted - accepted)
	s.ordersCancelled += uint64(cancelled)
	if eval.Mode == quote.ModeOracleOverride {
		s.oracleOverrides++
	}
	s.quotedVolume += volume
	s.lastSpread = spread
	s.lastMode = eval.Mode
	s.lastReference = eval.ReferencePrice
	s.lastDiffPct = eval.DiffPct
}

func (s *Stats) View() StatsView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsView{
		Uptime:          time.Since(s.startedAt),
		Ticks:           s.ticks,
		Refreshes:       s.refreshes,
		OrdersPlaced:    s.ordersPlaced,
		OrdersFailed:    s.ordersFailed,
		OrdersCancelled: s.ordersCancelled,
		RiskDenials:     s.riskDenials,
		OracleOverrides: s.oracleOverrides,
		QuotedVolume:    s.quotedVolume,
		LastSpread:      s.lastSpread,
		LastMode:        s.lastMode,
		LastReference:   s.lastReference,
		LastDiffPct:     s.lastDiffPct,
	}
}
