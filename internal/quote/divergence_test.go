package quote

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"perp-quoter/internal/config"
	"perp-quoter/internal/exchange"
	"perp-quoter/internal/price"
)

type stubPricer struct {
	price float64
	err   error
}

func (s stubPricer) PriceFrom(ctx context.Context, provider, symbol string) (float64, error) {
	return s.price, s.err
}

func oracleConfig() config.OracleConfig {
	return config.OracleConfig{Enabled: true, Provider: "binance", ThresholdPct: 0.5}
}

func TestEvaluateOverrideAboveThreshold(t *testing.T) {
	monitor := NewMonitor(stubPricer{price: 100.6}, oracleConfig(), zap.NewNop())
	eval := monitor.Evaluate(context.Background(), "ETH", 100)
	if eval.Mode != ModeOracleOverride {
		t.Fatalf("expected ORACLE_OVERRIDE, got %s", eval.Mode)
	}
	if eval.ReferencePrice != 100.6 {
		t.Fatalf("expected oracle reference 100.6, got %v", eval.ReferencePrice)
	}
	if math.Abs(eval.DiffPct-0.5964) > 0.001 {
		t.Fatalf("expected diff about 0.5964%%, got %v", eval.DiffPct)
	}
	if !eval.OracleChecked {
		t.Fatalf("expected OracleChecked")
	}
}

func TestEvaluateNormalBelowThreshold(t *testing.T) {
	monitor := NewMonitor(stubPricer{price: 100.2}, oracleConfig(), zap.NewNop())
	eval := monitor.Evaluate(context.Background(), "ETH", 100)
	if eval.Mode != ModeNormal {
		t.Fatalf("expected NORMAL, got %s", eval.Mode)
	}
	if eval.ReferencePrice != 100 {
		t.Fatalf("expected local reference 100, got %v", eval.ReferencePrice)
	}
	if !eval.OracleChecked {
		t.Fatalf("expected OracleChecked when oracle answered")
	}
	if eval.DiffPct <= 0 {
		t.Fatalf("expected positive diff, got %v", eval.DiffPct)
	}
}

func TestEvaluateFailsOpenWhenOracleUnavailable(t *testing.T) {
	monitor := NewMonitor(stubPricer{err: errors.New("timeout")}, oracleConfig(), zap.NewNop())
	eval := monitor.Evaluate(context.Background(), "ETH", 100)
	if eval.Mode != ModeNormal {
		t.Fatalf("expected NORMAL on oracle failure, got %s", eval.Mode)
	}
	if eval.ReferencePrice != 100 {
		t.Fatalf("expected local reference 100, got %v", eval.ReferencePrice)
	}
	if eval.OracleChecked {
		t.Fatalf("unavailable oracle must not count as checked")
	}
	if eval.DiffPct != 0 {
		t.Fatalf("expected 0 diff when unchecked, got %v", eval.DiffPct)
	}
}

type downProvider struct {
	name string
}

func (d downProvider) Name() string       { return d.name }
func (d downProvider) TTL() time.Duration { return time.Second }

func (d downProvider) Fetch(ctx context.Context, symbol string) (float64, error) {
	return 0, errors.New("down")
}

func (d downProvider) FetchBatch(ctx context.Context, symbols []string) (map[string]float64, error) {
	return nil, errors.New("down")
}

type fixedBookReader struct {
	book exchange.Book
}

func (f fixedBookReader) OrderBook(ctx context.Context, symbol string) (exchange.Book, error) {
	return f.book, nil
}

func TestEvaluateFailsOpenWhenNamedProviderDownInChain(t *testing.T) {
	reader := fixedBookReader{book: exchange.Book{
		Bids: []exchange.BookLevel{{Price: 99.9, Size: 1}},
		Asks: []exchange.BookLevel{{Price: 100.1, Size: 1}},
	}}
	source := price.NewSource([]price.Provider{
		price.NewBookProvider(reader, time.Second, 0.001),
		downProvider{name: "binance"},
	}, zap.NewNop())

	ctx := context.Background()
	snap, err := source.Snapshot(ctx, "ETH")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	monitor := NewMonitor(source, oracleConfig(), zap.NewNop())
	eval := monitor.Evaluate(ctx, "ETH", snap.MidPrice)
	if eval.Mode != ModeNormal {
		t.Fatalf("expected NORMAL when the named oracle is down, got %s", eval.Mode)
	}
	if eval.OracleChecked {
		t.Fatalf("a down oracle must not count as checked, got %+v", eval)
	}
	if eval.DiffPct != 0 {
		t.Fatalf("expected 0 diff when unchecked, got %v", eval.DiffPct)
	}
	if eval.ReferencePrice != snap.MidPrice {
		t.Fatalf("expected local reference %v, got %v", snap.MidPrice, eval.ReferencePrice)
	}
}

func TestEvaluateIgnoresNonPositiveOraclePrice(t *testing.T) {
	monitor := NewMonitor(stubPricer{price: 0}, oracleConfig(), zap.NewNop())
	eval := monitor.Evaluate(context.Background(), "ETH", 100)
	if eval.Mode != ModeNormal || eval.OracleChecked {
		t.Fatalf("expected fail-open NORMAL for zero oracle price, got %+v", eval)
	}
}

func TestEvaluateDisabled(t *testing.T) {
	cfg := oracleConfig()
	cfg.Enabled = false
	monitor := NewMonitor(stubPricer{price: 200}, cfg, zap.NewNop())
	eval := monitor.Evaluate(context.Background(), "ETH", 100)
	if eval.Mode != ModeNormal || eval.ReferencePrice != 100 || eval.OracleChecked {
		t.Fatalf("expected local quoting when disabled, got %+v", eval)
	}
}
