package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"perp-quoter/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// QuoteCycle is one row of quoting telemetry: what was quoted around, in
// which mode, and how much of the ladder the venue accepted.
type QuoteCycle struct {
	Time            time.Time
	Symbol          string
	Mode            string
	ReferencePrice  float64
	LocalPrice      float64
	OraclePrice     float64
	DiffPct         float64
	QuotedSpread    float64
	OrdersAttempted int
	OrdersAccepted  int
	OrdersCancelled int
	TrackedOrders   int
	PositionSize    float64
	UnrealizedPnl   float64
}

// Writer ships quote-cycle rows to TimescaleDB asynchronously. The queue
// drops on overflow; telemetry never backpressures trading.
type Writer struct {
	db      *sql.DB
	log     *zap.Logger
	schema  string
	cycles  chan QuoteCycle
	started atomic.Bool
	dropped atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:     db,
		log:    log,
		schema: schema,
		cycles: make(chan QuoteCycle, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) Enqueue(cycle QuoteCycle) {
	if w == nil {
		return
	}
	select {
	case w.cycles <- cycle:
		return
	default:
		if w.dropped.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale quote-cycle queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cycle := <-w.cycles:
			w.writeCycle(ctx, cycle)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		symbol TEXT NOT NULL,
		mode TEXT NOT NULL,
		reference_price DOUBLE PRECISION NOT NULL,
		local_price DOUBLE PRECISION NOT NULL,
		oracle_price DOUBLE PRECISION NOT NULL,
		diff_pct DOUBLE PRECISION NOT NULL,
		quoted_spread DOUBLE PRECISION NOT NULL,
		orders_attempted INTEGER NOT NULL,
		orders_accepted INTEGER NOT NULL,
		orders_cancelled INTEGER NOT NULL,
		tracked_orders INTEGER NOT NULL,
		position_size DOUBLE PRECISION NOT NULL,
		unrealized_pnl DOUBLE PRECISION NOT NULL
	)`, w.table("quote_cycles"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("quote_cycles"))); err != nil && w.log != nil {
		w.log.Warn("timescale quote_cycles hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeCycle(ctx context.Context, cycle QuoteCycle) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, symbol, mode, reference_price, local_price, oracle_price, diff_pct, quoted_spread,
		orders_attempted, orders_accepted, orders_cancelled, tracked_orders, position_size, unrealized_pnl
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
	)`, w.table("quote_cycles"))
	if _, err := w.db.ExecContext(ctx, query,
		cycle.Time,
		cycle.Symbol,
		cycle.Mode,
		cycle.ReferencePrice,
		cycle.LocalPrice,
		cycle.OraclePrice,
		cycle.DiffPct,
		cycle.QuotedSpread,
		cycle.OrdersAttempted,
		cycle.OrdersAccepted,
		cycle.OrdersCancelled,
		cycle.TrackedOrders,
		cycle.PositionSize,
		cycle.UnrealizedPnl,
	); err != nil && w.log != nil {
		w.log.Warn("timescale quote-cycle insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
