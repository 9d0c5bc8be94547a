package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"perp-quoter/internal/account"
	"perp-quoter/internal/alerts"
	"perp-quoter/internal/config"
	"perp-quoter/internal/exchange"
	"perp-quoter/internal/exchange/rest"
	"perp-quoter/internal/feed"
	"perp-quoter/internal/metrics"
	"perp-quoter/internal/orders"
	"perp-quoter/internal/price"
	"perp-quoter/internal/quote"
	"perp-quoter/internal/risk"
	"perp-quoter/internal/state"
	"perp-quoter/internal/state/sqlite"
	"perp-quoter/internal/strategy"
	"perp-quoter/internal/timescale"
)

const (
	shutdownTimeout  = 5 * time.Second
	transientBackoff = 2 * time.Second
)

// PriceFeed is the slice of the price source the loop needs.
type PriceFeed interface {
	Snapshot(ctx context.Context, symbol string) (price.MarketSnapshot, error)
}

// Evaluator picks the reference mode and price for a refresh cycle.
type Evaluator interface {
	Evaluate(ctx context.Context, symbol string, localPrice float64) quote.Evaluation
}

// App is the orchestrator: one persistent control loop per instance, so no
// two ticks for the same symbol can ever overlap.
type App struct {
	cfg     *config.Config
	log     *zap.Logger
	machine *StateMachine
	prices  PriceFeed
	monitor Evaluator
	orders  *orders.Manager
	account *account.Account
	volume  *strategy.Volume
	store   state.Store
	met     *metrics.Metrics
	prom    *metrics.Prometheus
	alerts  *alerts.Telegram
	ts      *timescale.Writer
	feed    *feed.BookFeed
	stats   *Stats
	now     func() time.Time

	lastRefresh time.Time
	lastStatus  time.Time
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	venue := rest.New(cfg.REST.BaseURL, cfg.REST.Timeout, log)

	var bookFeed *feed.BookFeed
	var bookReader price.BookReader = venue
	if cfg.Feed.Enabled {
		bookFeed = feed.New(cfg.Feed.URL, cfg.Feed.ReconnectDelay, cfg.Feed.PingInterval, cfg.Feed.MaxAge, venue, log)
		bookReader = bookFeed
	}

	providers := []price.Provider{
		price.NewBookProvider(bookReader, cfg.Strategy.BookTTL, cfg.Strategy.FallbackSpread),
	}
	if cfg.Oracles.Binance.Enabled {
		providers = append(providers, price.NewBinanceProvider(
			cfg.Oracles.Binance.BaseURL, cfg.Oracles.Binance.Timeout, cfg.Oracles.Binance.TTL, cfg.Oracles.Binance.Aliases,
		))
	}
	if cfg.Oracles.CoinGecko.Enabled {
		providers = append(providers, price.NewCoinGeckoProvider(
			cfg.Oracles.CoinGecko.BaseURL, cfg.Oracles.CoinGecko.Timeout, cfg.Oracles.CoinGecko.TTL, cfg.Oracles.CoinGecko.IDs,
		))
	}
	source := price.NewSource(providers, log)

	met := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheus()
		met = prom.Metrics
	}

	manager := orders.NewManager(venue, met, log)
	acct := account.New(venue, cfg.Strategy.Symbol, cfg.Risk.BalanceAsset, 5*time.Second, log)

	tsWriter, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:     cfg,
		log:     log,
		machine: NewStateMachine(),
		prices:  source,
		monitor: quote.NewMonitor(source, cfg.Strategy.Oracle, log),
		orders:  manager,
		account: acct,
		volume:  strategy.NewVolume(manager, cfg.Strategy, log),
		store:   store,
		met:     met,
		prom:    prom,
		alerts:  alerts.NewTelegram(cfg.Telegram, log),
		ts:      tsWriter,
		feed:    bookFeed,
		stats:   NewStats(),
		now:     time.Now,
	}, nil
}

// Run drives the control loop until the context ends or a critical error
// forces an emergency stop. Shutdown always drains to a best-effort
// cancel-all under its own timeout.
func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	defer a.ts.Close()
	a.machine.Apply(EventStart)

	if snapshot, ok, err := state.LoadQuoterSnapshot(ctx, a.store); err != nil {
		a.log.Warn("snapshot restore failed", zap.Error(err))
	} else if ok {
		a.log.Info("restored quoter snapshot",
			zap.String("mode", snapshot.Mode),
			zap.Float64("reference_price", snapshot.ReferencePrice),
			zap.Uint64("orders_placed", snapshot.OrdersPlaced),
		)
	}

	symbol := a.cfg.Strategy.Symbol
	class := exchange.OrderClass(a.cfg.Strategy.OrderClass)
	if adopted, err := a.orders.Restore(ctx, symbol, class); err != nil {
		a.log.Warn("startup reconciliation failed", zap.Error(err))
	} else if adopted > 0 {
		a.log.Info("adopted open orders from venue", zap.Int("orders", adopted))
		if err := a.orders.CancelAllForSymbol(ctx, symbol); err != nil {
			a.log.Warn("startup cancel failed", zap.Error(err))
		}
	}

	if a.feed != nil {
		if err := a.feed.Start(ctx, []string{symbol}); err != nil {
			a.log.Warn("book feed start failed, polling REST only", zap.Error(err))
		}
	}
	a.ts.Start(ctx)
	a.serveMetrics(ctx)
	a.startOperator(ctx)

	a.machine.Apply(EventStarted)
	a.log.Info("quoter running",
		zap.String("symbol", symbol),
		zap.String("mode", a.cfg.Strategy.Mode),
		zap.Duration("tick_interval", a.cfg.Strategy.TickInterval),
		zap.Duration("refresh_interval", a.cfg.Strategy.RefreshInterval),
	)

	ticker := time.NewTicker(a.cfg.Strategy.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.shutdown()
			return ctx.Err()
		case <-ticker.C:
			err := a.tick(ctx)
			if err == nil {
				continue
			}
			if isCritical(err) {
				a.emergencyStop(err)
				return err
			}
			a.log.Warn("tick failed, backing off", zap.Error(err))
			select {
			case <-ctx.Done():
				a.shutdown()
				return ctx.Err()
			case <-time.After(transientBackoff):
			}
		}
	}
}

// tick is one pass of the loop: price, risk gate, and a ladder refresh when
// one is due. Every failure is classified here; nothing propagates past the
// tick boundary unclassified.
func (a *App) tick(ctx context.Context) error {
	a.stats.RecordTick()
	a.met.Ticks.Inc()
	if a.machine.State() != StateRunning {
		return nil
	}
	symbol := a.cfg.Strategy.Symbol

	snap, err := a.prices.Snapshot(ctx, symbol)
	if err != nil {
		if errors.Is(err, price.ErrUnavailable) {
			a.log.Warn("no price available, skipping tick", zap.String("symbol", symbol))
			return nil
		}
		return fmt.Errorf("price snapshot: %w", err)
	}

	estSize, err := a.account.EstimatedSize(ctx)
	if err != nil {
		return fmt.Errorf("position refresh: %w", err)
	}
	pos, err := a.account.Position(ctx)
	if err != nil {
		return fmt.Errorf("position refresh: %w", err)
	}
	balance, err := a.account.Balance(ctx)
	if err != nil {
		return fmt.Errorf("balance refresh: %w", err)
	}

	inputs := risk.Inputs{
		Symbol:         symbol,
		PositionSize:   estSize,
		UnrealizedPnl:  pos.UnrealizedPnl,
		PortfolioValue: balance,
		Balance:        balance,
	}
	if err := risk.CheckPretrade(a.cfg.Risk, inputs); err != nil {
		a.stats.RecordRiskDenial()
		a.met.RiskDenials.Inc()
		a.log.Warn("risk gate denied refresh", zap.String("symbol", symbol), zap.Error(err))
		a.maybeStatus(ctx)
		return nil
	}

	if a.now().Sub(a.lastRefresh) >= a.cfg.Strategy.RefreshInterval {
		if err := a.refresh(ctx, snap); err != nil {
			return err
		}
		a.lastRefresh = a.now()
	}
	a.maybeStatus(ctx)
	return nil
}

// refresh runs one full quote cycle: pick the reference, then strictly
// cancel before reconciling before placing, so orders about to be
// invalidated are never re-tracked.
func (a *App) refresh(ctx context.Context, snap price.MarketSnapshot) error {
	symbol := snap.Symbol
	eval := a.monitor.Evaluate(ctx, symbol, snap.MidPrice)
	if eval.Mode == quote.ModeOracleOverride {
		a.met.OracleOverrides.Inc()
	}

	cancelled := a.orders.TrackedCount(symbol)
	var result orders.PlaceResult
	var err error
	if a.cfg.Strategy.Mode == "volume" {
		result, err = a.volume.Refresh(ctx, eval.ReferencePrice)
		if err != nil {
			return fmt.Errorf("volume refresh: %w", err)
		}
	} else {
		if err := a.orders.CancelAllForSymbol(ctx, symbol); err != nil {
			if isCritical(err) {
				return err
			}
			a.log.Warn("cancel pass incomplete", zap.String("symbol", symbol), zap.Error(err))
		}
		if err := a.orders.SyncWithExchange(ctx, symbol); err != nil {
			return fmt.Errorf("reconciliation: %w", err)
		}
		result, err = a.orders.PlaceAroundPrice(ctx, symbol, eval.ReferencePrice, a.cfg.Strategy)
		if err != nil {
			return fmt.Errorf("placement: %w", err)
		}
	}

	var placedSize, placedNotional float64
	for _, order := range result.Orders {
		placedSize += order.Size
		placedNotional += order.Price * order.Size
	}
	a.account.AddEstimate(placedSize)

	spread := 0.0
	if a.cfg.Strategy.Mode != "volume" {
		spread = quote.ComputeLadder(eval.ReferencePrice, a.cfg.Strategy).Spread()
	}
	a.met.QuotedSpread.Set(spread)
	a.stats.RecordRefresh(eval, result.Attempted, result.Accepted, cancelled, spread, placedNotional)

	pos, _ := a.account.Position(ctx)
	a.ts.Enqueue(timescale.QuoteCycle{
		Time:            a.now().UTC(),
		Symbol:          symbol,
		Mode:            string(eval.Mode),
		ReferencePrice:  eval.ReferencePrice,
		LocalPrice:      snap.MidPrice,
		OraclePrice:     eval.OraclePrice,
		DiffPct:         eval.DiffPct,
		QuotedSpread:    spread,
		OrdersAttempted: result.Attempted,
		OrdersAccepted:  result.Accepted,
		OrdersCancelled: cancelled,
		TrackedOrders:   a.orders.TrackedCount(symbol),
		PositionSize:    pos.Size,
		UnrealizedPnl:   pos.UnrealizedPnl,
	})

	a.log.Info("refreshed quotes",
		zap.String("symbol", symbol),
		zap.String("mode", string(eval.Mode)),
		zap.Float64("reference_price", eval.ReferencePrice),
		zap.Float64("diff_pct", eval.DiffPct),
		zap.Int("attempted", result.Attempted),
		zap.Int("accepted", result.Accepted),
	)
	return nil
}

func (a *App) maybeStatus(ctx context.Context) {
	if a.now().Sub(a.lastStatus) < a.cfg.Strategy.StatusInterval {
		return
	}
	a.lastStatus = a.now()
	view := a.stats.View()
	a.log.Info("status",
		zap.String("state", string(a.machine.State())),
		zap.Uint64("ticks", view.Ticks),
		zap.Uint64("refreshes", view.Refreshes),
		zap.Uint64("orders_placed", view.OrdersPlaced),
		zap.Uint64("orders_failed", view.OrdersFailed),
		zap.Uint64("orders_cancelled", view.OrdersCancelled),
		zap.Uint64("risk_denials", view.RiskDenials),
		zap.Uint64("oracle_overrides", view.OracleOverrides),
		zap.Float64("quoted_volume", view.QuotedVolume),
		zap.Float64("last_spread", view.LastSpread),
	)
	if err := state.SaveQuoterSnapshot(ctx, a.store, a.snapshot(view)); err != nil {
		a.log.Warn("snapshot save failed", zap.Error(err))
	}
}

func (a *App) snapshot(view StatsView) state.QuoterSnapshot {
	return state.QuoterSnapshot{
		Symbol:          a.cfg.Strategy.Symbol,
		Mode:            string(view.LastMode),
		ReferencePrice:  view.LastReference,
		DiffPct:         view.LastDiffPct,
		QuotedSpread:    view.LastSpread,
		TrackedOrders:   a.orders.TrackedCount(a.cfg.Strategy.Symbol),
		OrdersPlaced:    view.OrdersPlaced,
		OrdersFailed:    view.OrdersFailed,
		OrdersCancelled: view.OrdersCancelled,
		RiskDenials:     view.RiskDenials,
		QuotedVolume:    view.QuotedVolume,
		UpdatedAtMS:     a.now().UnixMilli(),
	}
}

// emergencyStop is the escalation path for critical errors: cancel
// everything we can under a fresh timeout, alert, and land in ERROR.
func (a *App) emergencyStop(cause error) {
	a.met.EmergencyStops.Inc()
	a.log.Error("emergency stop", zap.Error(cause))
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.orders.CancelAllForSymbol(ctx, a.cfg.Strategy.Symbol); err != nil {
		a.log.Error("emergency cancel-all incomplete", zap.Error(err))
	}
	if err := a.alerts.Send(ctx, fmt.Sprintf("EMERGENCY STOP %s: %v", a.cfg.Strategy.Symbol, cause)); err != nil {
		a.log.Warn("alert send failed", zap.Error(err))
	}
	a.machine.Apply(EventFail)
}

// shutdown drains open orders best-effort before the process exits. The
// parent context is already cancelled, so the cancel pass gets its own.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.orders.CancelAllForSymbol(ctx, a.cfg.Strategy.Symbol); err != nil {
		a.log.Warn("shutdown cancel-all incomplete", zap.Error(err))
	}
	a.machine.Apply(EventStop)
	a.log.Info("quoter stopped")
}

func (a *App) serveMetrics(ctx context.Context) {
	if a.prom == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.prom.Handler())
	server := &http.Server{Addr: a.cfg.Metrics.ListenAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server exited", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
