package price

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type cacheKey struct {
	provider string
	symbol   string
}

type cacheEntry struct {
	price     float64
	fetchedAt time.Time
}

// Source resolves prices through an ordered provider chain with one cache
// entry per (provider, symbol). All state is owned by the instance; two
// sources never share a cache.
type Source struct {
	providers []Provider
	byName    map[string]Provider
	book      *BookProvider
	log       *zap.Logger

	cache     map[cacheKey]cacheEntry
	snapshots map[string]snapshotEntry
	now       func() time.Time
}

type snapshotEntry struct {
	snap      MarketSnapshot
	fetchedAt time.Time
}

// NewSource builds a source over the given chain. Providers are consulted in
// order; the first valid positive price wins. If the chain starts with a
// BookProvider it also serves order-book snapshots.
func NewSource(providers []Provider, log *zap.Logger) *Source {
	s := &Source{
		providers: providers,
		byName:    make(map[string]Provider, len(providers)),
		log:       log,
		cache:     make(map[cacheKey]cacheEntry),
		snapshots: make(map[string]snapshotEntry),
		now:       time.Now,
	}
	for _, p := range providers {
		s.byName[p.Name()] = p
		if bp, ok := p.(*BookProvider); ok && s.book == nil {
			s.book = bp
		}
	}
	return s
}

// Price walks the chain and returns the first valid price, or ErrUnavailable.
func (s *Source) Price(ctx context.Context, symbol string) (float64, error) {
	for _, p := range s.providers {
		if px, ok := s.fetchCached(ctx, p, symbol); ok {
			return px, nil
		}
	}
	return 0, ErrUnavailable
}

// PriceFrom resolves a price from the named provider only. An unknown or
// failing provider returns ErrUnavailable; PriceFrom never falls back to
// the chain.
func (s *Source) PriceFrom(ctx context.Context, provider, symbol string) (float64, error) {
	p, ok := s.byName[provider]
	if !ok {
		return 0, ErrUnavailable
	}
	if px, fetched := s.fetchCached(ctx, p, symbol); fetched {
		return px, nil
	}
	return 0, ErrUnavailable
}

// Prices resolves a set of symbols, serving cache hits locally and fetching
// the remainder in one batch round trip per provider.
func (s *Source) Prices(ctx context.Context, symbols []string) map[string]float64 {
	out := make(map[string]float64, len(symbols))
	missing := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		hit := false
		for _, p := range s.providers {
			if px, ok := s.cached(p, sym); ok {
				out[sym] = px
				hit = true
				break
			}
		}
		if !hit {
			missing = append(missing, sym)
		}
	}
	for _, p := range s.providers {
		if len(missing) == 0 {
			break
		}
		batch, err := p.FetchBatch(ctx, missing)
		if err != nil {
			s.log.Debug("batch fetch failed", zap.String("provider", p.Name()), zap.Error(err))
			continue
		}
		still := missing[:0]
		for _, sym := range missing {
			px, ok := batch[sym]
			if !ok || px <= 0 {
				still = append(still, sym)
				continue
			}
			s.store(p, sym, px)
			out[sym] = px
		}
		missing = still
	}
	return out
}

// Snapshot returns a fresh order-book snapshot for the symbol. When the book
// cannot produce a two-sided view the snapshot is synthesized around the
// chain's fallback price with zero depth; with no fallback price either, the
// result is ErrUnavailable.
func (s *Source) Snapshot(ctx context.Context, symbol string) (MarketSnapshot, error) {
	if s.book != nil {
		if entry, ok := s.snapshots[symbol]; ok && s.now().Sub(entry.fetchedAt) < s.book.TTL() {
			return entry.snap, nil
		}
		snap, err := s.book.Snapshot(ctx, symbol)
		if err == nil {
			snap.ObservedAt = s.now().UTC()
			s.snapshots[symbol] = snapshotEntry{snap: snap, fetchedAt: s.now()}
			s.store(s.book, symbol, snap.MidPrice)
			return snap, nil
		}
		s.log.Debug("book snapshot failed", zap.String("symbol", symbol), zap.Error(err))
	}
	fallback, err := s.fallbackPrice(ctx, symbol)
	if err != nil {
		return MarketSnapshot{}, ErrUnavailable
	}
	spread := defaultFallbackSpread
	if s.book != nil {
		spread = s.book.fallbackSpread
	}
	snap := SynthesizeSnapshot(symbol, fallback, spread)
	snap.ObservedAt = s.now().UTC()
	return snap, nil
}

func (s *Source) fallbackPrice(ctx context.Context, symbol string) (float64, error) {
	for _, p := range s.providers {
		if s.book != nil && p.Name() == s.book.Name() {
			continue
		}
		if px, ok := s.fetchCached(ctx, p, symbol); ok {
			return px, nil
		}
	}
	return 0, ErrUnavailable
}

func (s *Source) fetchCached(ctx context.Context, p Provider, symbol string) (float64, bool) {
	if px, ok := s.cached(p, symbol); ok {
		return px, true
	}
	px, err := p.Fetch(ctx, symbol)
	if err != nil || px <= 0 {
		if err != nil {
			s.log.Debug("price fetch failed", zap.String("provider", p.Name()), zap.String("symbol", symbol), zap.Error(err))
		}
		return 0, false
	}
	s.store(p, symbol, px)
	return px, true
}

func (s *Source) cached(p Provider, symbol string) (float64, bool) {
	entry, ok := s.cache[cacheKey{provider: p.Name(), symbol: symbol}]
	if !ok {
		return 0, false
	}
	if s.now().Sub(entry.fetchedAt) >= p.TTL() {
		return 0, false
	}
	return entry.price, true
}

func (s *Source) store(p Provider, symbol string, px float64) {
	s.cache[cacheKey{provider: p.Name(), symbol: symbol}] = cacheEntry{price: px, fetchedAt: s.now()}
}

// SynthesizeSnapshot builds a two-sided view around a fallback price. Sizes
// are zero to signal that there is no real depth behind the quote.
func SynthesizeSnapshot(symbol string, px, spread float64) MarketSnapshot {
	return MarketSnapshot{
		Symbol:   symbol,
		MidPrice: px,
		BestBid:  px * (1 - spread),
		BestAsk:  px * (1 + spread),
	}
}
