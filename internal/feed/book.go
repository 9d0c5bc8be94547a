package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"perp-quoter/internal/exchange"
)

// BookFeed mirrors the venue's level-2 book over websocket. When the mirror
// is fresh it answers OrderBook locally; otherwise it defers to the REST
// reader it wraps, so a dead feed degrades to polling instead of failing.
type BookFeed struct {
	ws     *wsClient
	rest   Reader
	log    *zap.Logger
	maxAge time.Duration
	now    func() time.Time

	mu    sync.RWMutex
	books map[string]exchange.Book
}

// Reader is the REST fallback behind the mirror.
type Reader interface {
	OrderBook(ctx context.Context, symbol string) (exchange.Book, error)
}

func New(url string, reconnectDelay, pingInterval, maxAge time.Duration, rest Reader, log *zap.Logger) *BookFeed {
	return &BookFeed{
		ws:     newWSClient(url, reconnectDelay, pingInterval, log),
		rest:   rest,
		log:    log,
		maxAge: maxAge,
		now:    time.Now,
		books:  make(map[string]exchange.Book),
	}
}

// Start connects, subscribes the symbols, and runs the read loop until the
// context ends.
func (f *BookFeed) Start(ctx context.Context, symbols []string) error {
	if err := f.ws.connect(ctx); err != nil {
		return err
	}
	for _, symbol := range symbols {
		sub := map[string]any{"method": "subscribe", "subscription": map[string]any{"type": "l2Book", "symbol": symbol}}
		if err := f.ws.subscribe(ctx, sub); err != nil {
			return err
		}
	}
	go func() {
		_ = f.ws.run(ctx, f.handleMessage)
	}()
	return nil
}

type bookMessage struct {
	Channel string `json:"channel"`
	Data    struct {
		Symbol string       `json:"symbol"`
		Bids   [][2]float64 `json:"bids"`
		Asks   [][2]float64 `json:"asks"`
	} `json:"data"`
}

func (f *BookFeed) handleMessage(raw json.RawMessage) {
	var msg bookMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		f.log.Debug("unparseable feed message", zap.Error(err))
		return
	}
	if msg.Channel != "l2Book" || msg.Data.Symbol == "" {
		return
	}
	book := exchange.Book{Symbol: msg.Data.Symbol, UpdatedAt: f.now().UTC()}
	for _, lvl := range msg.Data.Bids {
		book.Bids = append(book.Bids, exchange.BookLevel{Price: lvl[0], Size: lvl[1]})
	}
	for _, lvl := range msg.Data.Asks {
		book.Asks = append(book.Asks, exchange.BookLevel{Price: lvl[0], Size: lvl[1]})
	}
	f.mu.Lock()
	f.books[msg.Data.Symbol] = book
	f.mu.Unlock()
}

// OrderBook serves the mirrored book when fresh enough, else falls back to
// the REST reader.
func (f *BookFeed) OrderBook(ctx context.Context, symbol string) (exchange.Book, error) {
	f.mu.RLock()
	book, ok := f.books[symbol]
	f.mu.RUnlock()
	if ok && f.now().Sub(book.UpdatedAt) <= f.maxAge {
		return book, nil
	}
	return f.rest.OrderBook(ctx, symbol)
}
