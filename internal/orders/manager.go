package orders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"perp-quoter/internal/config"
	"perp-quoter/internal/exchange"
	"perp-quoter/internal/metrics"
	"perp-quoter/internal/quote"
)

// Expiry put on a long-lived cancellation when neither the venue's open-order
// view nor local tracking can supply the original value.
const cancelExpiryFallback = 60 * time.Second

// TrackedOrder is one locally tracked resting order. Owned exclusively by
// the Manager; it disappears when cancelled or when reconciliation no longer
// finds it on the venue.
type TrackedOrder struct {
	Symbol   string
	ClientID uint64
	Side     exchange.Side
	Price    float64
	Size     float64
	Expiry   int64
	Class    exchange.OrderClass
	OrderID  string
	PlacedAt time.Time
}

// PlaceResult reports attempted vs accepted submissions for one refresh
// cycle. Partial acceptance is the expected steady state under load.
type PlaceResult struct {
	Attempted int
	Accepted  int
	Orders    []TrackedOrder
}

// Manager owns the tracked-order set for its bot instance and drives
// placement, cancellation, and reconciliation against the venue. All state
// is per-instance; nothing is shared between managers.
type Manager struct {
	ex  exchange.Client
	log *zap.Logger
	met *metrics.Metrics
	ids *IDGenerator
	now func() time.Time

	mu      sync.Mutex
	tracked map[string]map[uint64]TrackedOrder
}

func NewManager(ex exchange.Client, met *metrics.Metrics, log *zap.Logger) *Manager {
	if met == nil {
		met = metrics.NewNoop()
	}
	return &Manager{
		ex:      ex,
		log:     log,
		met:     met,
		ids:     NewIDGenerator(),
		now:     time.Now,
		tracked: make(map[string]map[uint64]TrackedOrder),
	}
}

// PlaceAroundPrice computes the ladder for the reference price and submits
// it innermost-first, alternating sides so both fill in evenly if the cycle
// is cut short.
func (m *Manager) PlaceAroundPrice(ctx context.Context, symbol string, ref float64, cfg config.StrategyConfig) (PlaceResult, error) {
	return m.PlaceIntents(ctx, symbol, interleave(quote.ComputeLadder(ref, cfg)), cfg)
}

// PlaceIntents submits precomputed intents in batches. With batch size 1
// submissions are strictly sequential; a larger batch is submitted
// concurrently and awaited in full, so one rejection never cancels its
// siblings. Batches are separated by the configured delay to stay inside
// venue rate limits.
func (m *Manager) PlaceIntents(ctx context.Context, symbol string, intents []quote.Intent, cfg config.StrategyConfig) (PlaceResult, error) {
	result := PlaceResult{Attempted: len(intents)}
	if len(intents) == 0 {
		return result, nil
	}

	class := exchange.OrderClass(cfg.OrderClass)
	expiry, err := m.expiryFor(ctx, class, cfg)
	if err != nil {
		return result, fmt.Errorf("resolve order expiry: %w", err)
	}

	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}
	for start := 0; start < len(intents); start += batchSize {
		end := start + batchSize
		if end > len(intents) {
			end = len(intents)
		}
		batch := intents[start:end]
		var accepted []TrackedOrder
		if len(batch) == 1 {
			if order, ok := m.submit(ctx, symbol, batch[0], expiry, class); ok {
				accepted = append(accepted, order)
			}
		} else {
			accepted = m.submitConcurrent(ctx, symbol, batch, expiry, class)
		}
		for _, order := range accepted {
			m.track(order)
			result.Orders = append(result.Orders, order)
		}
		result.Accepted += len(accepted)
		if end < len(intents) && cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(cfg.BatchDelay):
			}
		}
	}
	m.met.TrackedOrders.Set(float64(m.TrackedCount("")))
	return result, nil
}

// submitConcurrent fires the whole batch and waits for every submission to
// finish, collecting whichever succeeded.
func (m *Manager) submitConcurrent(ctx context.Context, symbol string, batch []quote.Intent, expiry int64, class exchange.OrderClass) []TrackedOrder {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []TrackedOrder
	)
	for _, intent := range batch {
		wg.Add(1)
		go func(intent quote.Intent) {
			defer wg.Done()
			if order, ok := m.submit(ctx, symbol, intent, expiry, class); ok {
				mu.Lock()
				accepted = append(accepted, order)
				mu.Unlock()
			}
		}(intent)
	}
	wg.Wait()
	return accepted
}

func (m *Manager) submit(ctx context.Context, symbol string, intent quote.Intent, expiry int64, class exchange.OrderClass) (TrackedOrder, bool) {
	clientID := m.ids.Next()
	receipt, err := m.ex.PlaceOrder(ctx, exchange.PlaceRequest{
		Symbol:   symbol,
		Side:     intent.Side,
		Price:    intent.Price,
		Size:     intent.Size,
		ClientID: clientID,
		Expiry:   expiry,
		Class:    class,
	})
	if err != nil {
		m.met.OrdersFailed.Inc()
		m.log.Warn("order submission failed",
			zap.String("symbol", symbol),
			zap.String("side", string(intent.Side)),
			zap.Float64("price", intent.Price),
			zap.Error(err),
		)
		return TrackedOrder{}, false
	}
	m.met.OrdersPlaced.Inc()
	return TrackedOrder{
		Symbol:   symbol,
		ClientID: clientID,
		Side:     intent.Side,
		Price:    intent.Price,
		Size:     intent.Size,
		Expiry:   expiry,
		Class:    class,
		OrderID:  receipt.OrderID,
		PlacedAt: m.now().UTC(),
	}, true
}

// expiryFor resolves the venue-side expiry once per operation. Short-lived
// orders share a single chain-height fetch for the whole cycle; long-lived
// expiry is pure wall clock.
func (m *Manager) expiryFor(ctx context.Context, class exchange.OrderClass, cfg config.StrategyConfig) (int64, error) {
	if class == exchange.OrderClassShortLived {
		height, err := m.ex.ChainHeight(ctx)
		if err != nil {
			return 0, err
		}
		return height + cfg.ExpiryBlocks, nil
	}
	return m.now().Add(cfg.OrderLifetime).Unix(), nil
}

// CancelAllForSymbol cancels every tracked order for the symbol. Short-lived
// orders go out in one bulk cancel; long-lived orders are cancelled one by
// one with the venue's own expiry value, falling back to the locally tracked
// value and finally to now+60s. Cancelled IDs leave local tracking
// immediately rather than waiting for the next reconciliation.
func (m *Manager) CancelAllForSymbol(ctx context.Context, symbol string) error {
	tracked := m.Tracked(symbol)
	if len(tracked) == 0 {
		return nil
	}

	viewExpiry := make(map[uint64]int64)
	if views, err := m.ex.OpenOrders(ctx, symbol); err != nil {
		m.log.Warn("open-order lookup failed before cancel, using local expiry", zap.String("symbol", symbol), zap.Error(err))
	} else {
		for _, v := range views {
			viewExpiry[v.ClientID] = v.Expiry
		}
	}

	var shortLived, longLived []TrackedOrder
	for _, order := range tracked {
		if order.Class == exchange.OrderClassShortLived {
			shortLived = append(shortLived, order)
		} else {
			longLived = append(longLived, order)
		}
	}

	var failed int
	if len(shortLived) > 0 {
		if err := m.bulkCancel(ctx, symbol, shortLived); err != nil {
			failed += len(shortLived)
			m.met.CancelsFailed.Inc()
			m.log.Warn("bulk cancel failed", zap.String("symbol", symbol), zap.Int("orders", len(shortLived)), zap.Error(err))
		} else {
			for _, order := range shortLived {
				m.untrack(symbol, order.ClientID)
				m.met.OrdersCancelled.Inc()
			}
		}
	}
	for _, order := range longLived {
		expiry, ok := viewExpiry[order.ClientID]
		if !ok || expiry == 0 {
			expiry = order.Expiry
		}
		if expiry == 0 {
			expiry = m.now().Add(cancelExpiryFallback).Unix()
		}
		_, err := m.ex.CancelOrder(ctx, exchange.CancelRequest{
			Symbol:   symbol,
			ClientID: order.ClientID,
			Expiry:   expiry,
			Class:    order.Class,
		})
		if err != nil {
			failed++
			m.met.CancelsFailed.Inc()
			m.log.Warn("cancel failed", zap.String("symbol", symbol), zap.Uint64("client_id", order.ClientID), zap.Error(err))
			continue
		}
		m.untrack(symbol, order.ClientID)
		m.met.OrdersCancelled.Inc()
	}
	m.met.TrackedOrders.Set(float64(m.TrackedCount("")))
	if failed > 0 {
		return fmt.Errorf("%d of %d cancellations failed", failed, len(tracked))
	}
	return nil
}

// bulkCancel sends one batch cancellation for short-lived orders. The expiry
// on the request is resolved from a single chain-height fetch, mirroring the
// shared fetch placement uses.
func (m *Manager) bulkCancel(ctx context.Context, symbol string, orders []TrackedOrder) error {
	height, err := m.ex.ChainHeight(ctx)
	if err != nil {
		return fmt.Errorf("chain height for bulk cancel: %w", err)
	}
	clientIDs := make([]uint64, 0, len(orders))
	for _, order := range orders {
		clientIDs = append(clientIDs, order.ClientID)
	}
	_, err = m.ex.BatchCancel(ctx, symbol, clientIDs, height+1)
	return err
}

// SyncWithExchange drops every tracked order the venue no longer reports
// open. An empty symbol syncs all tracked symbols. This is the only place
// fills and out-of-band expiry are detected.
func (m *Manager) SyncWithExchange(ctx context.Context, symbol string) error {
	views, err := m.ex.OpenOrders(ctx, symbol)
	if err != nil {
		return fmt.Errorf("open-order lookup: %w", err)
	}
	open := make(map[uint64]struct{}, len(views))
	for _, v := range views {
		open[v.ClientID] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for sym, byID := range m.tracked {
		if symbol != "" && sym != symbol {
			continue
		}
		for clientID := range byID {
			if _, stillOpen := open[clientID]; stillOpen {
				continue
			}
			delete(byID, clientID)
			m.log.Debug("tracked order gone from venue, dropping",
				zap.String("symbol", sym),
				zap.Uint64("client_id", clientID),
			)
		}
		if len(byID) == 0 {
			delete(m.tracked, sym)
		}
	}
	return nil
}

// Restore adopts the venue's open orders into local tracking. A crash loses
// all tracking, so a restart rebuilds it from this reconciliation pass; the
// next refresh cycle then cancels and replaces the adopted orders.
func (m *Manager) Restore(ctx context.Context, symbol string, class exchange.OrderClass) (int, error) {
	views, err := m.ex.OpenOrders(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("open-order lookup: %w", err)
	}
	for _, v := range views {
		sym := v.Symbol
		if sym == "" {
			sym = symbol
		}
		m.track(TrackedOrder{
			Symbol:   sym,
			ClientID: v.ClientID,
			Side:     v.Side,
			Price:    v.Price,
			Size:     v.Size,
			Expiry:   v.Expiry,
			Class:    class,
			PlacedAt: m.now().UTC(),
		})
	}
	m.met.TrackedOrders.Set(float64(m.TrackedCount("")))
	return len(views), nil
}

// Tracked returns a copy of the tracked orders for the symbol, or all
// symbols when symbol is empty.
func (m *Manager) Tracked(symbol string) []TrackedOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TrackedOrder
	for sym, byID := range m.tracked {
		if symbol != "" && sym != symbol {
			continue
		}
		for _, order := range byID {
			out = append(out, order)
		}
	}
	return out
}

func (m *Manager) TrackedCount(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if symbol != "" {
		return len(m.tracked[symbol])
	}
	total := 0
	for _, byID := range m.tracked {
		total += len(byID)
	}
	return total
}

func (m *Manager) track(order TrackedOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.tracked[order.Symbol]
	if !ok {
		byID = make(map[uint64]TrackedOrder)
		m.tracked[order.Symbol] = byID
	}
	byID[order.ClientID] = order
}

func (m *Manager) untrack(symbol string, clientID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if byID, ok := m.tracked[symbol]; ok {
		delete(byID, clientID)
		if len(byID) == 0 {
			delete(m.tracked, symbol)
		}
	}
}

// interleave flattens the ladder innermost-first, alternating bid and ask so
// both sides fill in evenly if placement is cut short.
func interleave(ladder quote.Ladder) []quote.Intent {
	n := len(ladder.Bids)
	if len(ladder.Asks) > n {
		n = len(ladder.Asks)
	}
	out := make([]quote.Intent, 0, len(ladder.Bids)+len(ladder.Asks))
	for i := 0; i < n; i++ {
		if i < len(ladder.Bids) {
			out = append(out, ladder.Bids[i])
		}
		if i < len(ladder.Asks) {
			out = append(out, ladder.Asks[i])
		}
	}
	return out
}
