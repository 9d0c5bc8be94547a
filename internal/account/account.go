package account

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"perp-quoter/internal/exchange"
)

const defaultTTL = 5 * time.Second

// Account caches the venue's position and collateral reads for one symbol.
// Between full refreshes it carries a running worst-case estimate of size
// placed by this instance, so the pre-trade gate sees orders in flight
// before the venue reports them.
type Account struct {
	ex     exchange.Client
	log    *zap.Logger
	symbol string
	asset  string
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	position  exchange.Position
	posAt     time.Time
	balance   float64
	balAt     time.Time
	estimated float64
}

func New(ex exchange.Client, symbol, asset string, ttl time.Duration, log *zap.Logger) *Account {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Account{
		ex:     ex,
		log:    log,
		symbol: symbol,
		asset:  asset,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Position returns the cached position, refreshing from the venue when the
// cache has aged out. A fresh read resets the in-flight estimate.
func (a *Account) Position(ctx context.Context) (exchange.Position, error) {
	a.mu.Lock()
	if !a.posAt.IsZero() && a.now().Sub(a.posAt) < a.ttl {
		pos := a.position
		a.mu.Unlock()
		return pos, nil
	}
	a.mu.Unlock()

	pos, err := a.ex.Position(ctx, a.symbol)
	if err != nil {
		return exchange.Position{}, err
	}
	a.mu.Lock()
	a.position = pos
	a.posAt = a.now()
	a.estimated = 0
	a.mu.Unlock()
	return pos, nil
}

func (a *Account) Balance(ctx context.Context) (float64, error) {
	a.mu.Lock()
	if !a.balAt.IsZero() && a.now().Sub(a.balAt) < a.ttl {
		bal := a.balance
		a.mu.Unlock()
		return bal, nil
	}
	a.mu.Unlock()

	bal, err := a.ex.Balance(ctx, a.asset)
	if err != nil {
		return 0, err
	}
	a.mu.Lock()
	a.balance = bal
	a.balAt = a.now()
	a.mu.Unlock()
	return bal, nil
}

// AddEstimate records size placed since the last position refresh.
func (a *Account) AddEstimate(size float64) {
	a.mu.Lock()
	a.estimated += math.Abs(size)
	a.mu.Unlock()
}

// EstimatedSize is the absolute venue position plus everything placed since
// the last refresh: the worst-case exposure if every resting order fills.
func (a *Account) EstimatedSize(ctx context.Context) (float64, error) {
	pos, err := a.Position(ctx)
	if err != nil {
		return 0, err
	}
	a.mu.Lock()
	est := a.estimated
	a.mu.Unlock()
	return math.Abs(pos.Size) + est, nil
}
