package exchange

import (
	"context"
	"time"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderClass selects the venue-side expiry model for an order.
// Short-lived orders expire after a number of blocks and can be cancelled in
// bulk by client ID; long-lived orders expire at a wall-clock time and must be
// cancelled one by one with their original expiry value.
type OrderClass string

const (
	OrderClassShortLived OrderClass = "SHORT_LIVED"
	OrderClassLongLived  OrderClass = "LONG_LIVED"
)

type PlaceRequest struct {
	Symbol   string
	Side     Side
	Price    float64
	Size     float64
	ClientID uint64
	Expiry   int64
	Class    OrderClass
}

type CancelRequest struct {
	Symbol   string
	ClientID uint64
	Expiry   int64
	Class    OrderClass
}

type Receipt struct {
	OrderID string
	Status  string
}

// OrderView is the venue's authoritative view of one open order. Expiry is
// the value the order was placed with; long-lived cancellations are rejected
// unless they echo it back.
type OrderView struct {
	Symbol   string
	ClientID uint64
	Side     Side
	Price    float64
	Size     float64
	Expiry   int64
}

type BookLevel struct {
	Price float64
	Size  float64
}

// Book holds both sides sorted best-first.
type Book struct {
	Symbol    string
	Bids      []BookLevel
	Asks      []BookLevel
	UpdatedAt time.Time
}

type Position struct {
	Symbol        string
	Side          Side
	Size          float64
	EntryPrice    float64
	UnrealizedPnl float64
	RealizedPnl   float64
}

// Client is the venue capability surface the engine is written against.
// Implementations own transport, authentication, and signing.
type Client interface {
	PlaceOrder(ctx context.Context, req PlaceRequest) (Receipt, error)
	CancelOrder(ctx context.Context, req CancelRequest) (Receipt, error)
	BatchCancel(ctx context.Context, symbol string, clientIDs []uint64, expiry int64) (Receipt, error)
	OpenOrders(ctx context.Context, symbol string) ([]OrderView, error)
	OrderBook(ctx context.Context, symbol string) (Book, error)
	ChainHeight(ctx context.Context) (int64, error)
	Position(ctx context.Context, symbol string) (Position, error)
	Balance(ctx context.Context, asset string) (float64, error)
}
