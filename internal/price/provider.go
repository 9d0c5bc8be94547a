package price

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is the expected-absence result: no provider in the chain
// could produce a valid positive price. Callers skip the cycle rather than
// treating it as a fault.
var ErrUnavailable = errors.New("price unavailable")

// Provider fetches current prices for symbols from one backend. TTL governs
// how long a fetched price may be served from cache.
type Provider interface {
	Name() string
	TTL() time.Duration
	Fetch(ctx context.Context, symbol string) (float64, error)
	FetchBatch(ctx context.Context, symbols []string) (map[string]float64, error)
}

// MarketSnapshot is a point-in-time view of the market for one symbol.
// Zero BidSize/AskSize marks a synthesized book with no real depth behind it.
type MarketSnapshot struct {
	Symbol     string
	MidPrice   float64
	BestBid    float64
	BestAsk    float64
	BidSize    float64
	AskSize    float64
	Volume24h  float64
	ObservedAt time.Time
}
