package price

import (
	"context"
	"errors"
	"time"

	"perp-quoter/internal/exchange"
)

const (
	defaultBookTTL        = time.Second
	defaultFallbackSpread = 0.001
)

var errOneSidedBook = errors.New("order book is not two-sided")

// BookReader is the slice of the venue client the book provider needs.
type BookReader interface {
	OrderBook(ctx context.Context, symbol string) (exchange.Book, error)
}

// BookProvider derives the mid price from the venue's own order book. It is
// normally the head of the chain; oracle providers back it up.
type BookProvider struct {
	reader         BookReader
	ttl            time.Duration
	fallbackSpread float64
}

func NewBookProvider(reader BookReader, ttl time.Duration, fallbackSpread float64) *BookProvider {
	if ttl <= 0 {
		ttl = defaultBookTTL
	}
	if fallbackSpread <= 0 {
		fallbackSpread = defaultFallbackSpread
	}
	return &BookProvider{reader: reader, ttl: ttl, fallbackSpread: fallbackSpread}
}

func (b *BookProvider) Name() string       { return "book" }
func (b *BookProvider) TTL() time.Duration { return b.ttl }

func (b *BookProvider) Fetch(ctx context.Context, symbol string) (float64, error) {
	snap, err := b.Snapshot(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return snap.MidPrice, nil
}

func (b *BookProvider) FetchBatch(ctx context.Context, symbols []string) (map[string]float64, error) {
	out := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		px, err := b.Fetch(ctx, sym)
		if err != nil {
			continue
		}
		out[sym] = px
	}
	if len(out) == 0 {
		return nil, ErrUnavailable
	}
	return out, nil
}

// Snapshot reads the live book and reduces it to a MarketSnapshot. A book
// missing either side cannot price anything and reports errOneSidedBook so
// the source can fall back to a synthesized view.
func (b *BookProvider) Snapshot(ctx context.Context, symbol string) (MarketSnapshot, error) {
	book, err := b.reader.OrderBook(ctx, symbol)
	if err != nil {
		return MarketSnapshot{}, err
	}
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return MarketSnapshot{}, errOneSidedBook
	}
	bestBid := book.Bids[0]
	bestAsk := book.Asks[0]
	if bestBid.Price <= 0 || bestAsk.Price <= 0 {
		return MarketSnapshot{}, errOneSidedBook
	}
	return MarketSnapshot{
		Symbol:   symbol,
		MidPrice: (bestBid.Price + bestAsk.Price) / 2,
		BestBid:  bestBid.Price,
		BestAsk:  bestAsk.Price,
		BidSize:  bestBid.Size,
		AskSize:  bestAsk.Size,
	}, nil
}
