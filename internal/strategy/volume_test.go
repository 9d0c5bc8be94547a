package strategy

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"perp-quoter/internal/config"
	"perp-quoter/internal/exchange"
	"perp-quoter/internal/orders"
	"perp-quoter/internal/quote"
)

type stubPlacer struct {
	placed    [][]quote.Intent
	cancels   int
	syncs     int
	cancelErr error
	syncErr   error
}

func (s *stubPlacer) PlaceIntents(ctx context.Context, symbol string, intents []quote.Intent, cfg config.StrategyConfig) (orders.PlaceResult, error) {
	s.placed = append(s.placed, intents)
	return orders.PlaceResult{Attempted: len(intents), Accepted: len(intents)}, nil
}

func (s *stubPlacer) CancelAllForSymbol(ctx context.Context, symbol string) error {
	s.cancels++
	return s.cancelErr
}

func (s *stubPlacer) SyncWithExchange(ctx context.Context, symbol string) error {
	s.syncs++
	return s.syncErr
}

func volumeConfig() config.StrategyConfig {
	return config.StrategyConfig{
		Symbol:        "ETH",
		Mode:          "volume",
		SpreadPct:     0.1,
		BaseSize:      1,
		PriceDecimals: 2,
		SizeDecimals:  4,
	}
}

func TestVolumeRefreshPlacesCrossingPair(t *testing.T) {
	placer := &stubPlacer{}
	v := NewVolume(placer, volumeConfig(), zap.NewNop())
	result, err := v.Refresh(context.Background(), 100)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if result.Accepted != 2 {
		t.Fatalf("expected 2 accepted, got %d", result.Accepted)
	}
	if placer.cancels != 1 || placer.syncs != 1 {
		t.Fatalf("expected cancel and sync before placement, got %d/%d", placer.cancels, placer.syncs)
	}
	pair := placer.placed[0]
	if len(pair) != 2 {
		t.Fatalf("expected a pair, got %d intents", len(pair))
	}
	var buy, sell quote.Intent
	for _, intent := range pair {
		if intent.Side == exchange.SideBuy {
			buy = intent
		} else {
			sell = intent
		}
	}
	// The buy is priced through the sell so the pair crosses.
	if buy.Price != 100.05 || sell.Price != 99.95 {
		t.Fatalf("expected crossing pair 100.05/99.95, got %v/%v", buy.Price, sell.Price)
	}
	if buy.Size != 1 || sell.Size != 1 {
		t.Fatalf("expected base size 1 on both sides, got %v/%v", buy.Size, sell.Size)
	}
}

func TestVolumeRefreshAlternatesLeadSide(t *testing.T) {
	placer := &stubPlacer{}
	v := NewVolume(placer, volumeConfig(), zap.NewNop())
	ctx := context.Background()
	if _, err := v.Refresh(ctx, 100); err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}
	if _, err := v.Refresh(ctx, 100); err != nil {
		t.Fatalf("second refresh failed: %v", err)
	}
	if placer.placed[0][0].Side != exchange.SideBuy {
		t.Fatalf("expected buy to lead first cycle")
	}
	if placer.placed[1][0].Side != exchange.SideSell {
		t.Fatalf("expected sell to lead second cycle")
	}
}

func TestVolumeRefreshSkipsDegenerateReference(t *testing.T) {
	placer := &stubPlacer{}
	v := NewVolume(placer, volumeConfig(), zap.NewNop())
	result, err := v.Refresh(context.Background(), 0)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if result.Attempted != 0 || len(placer.placed) != 0 {
		t.Fatalf("expected no placement for zero reference")
	}
	if placer.cancels != 0 {
		t.Fatalf("expected no venue calls for zero reference")
	}
}

func TestVolumeRefreshContinuesAfterCancelFailure(t *testing.T) {
	placer := &stubPlacer{cancelErr: errors.New("venue busy")}
	v := NewVolume(placer, volumeConfig(), zap.NewNop())
	result, err := v.Refresh(context.Background(), 100)
	if err != nil {
		t.Fatalf("refresh should survive a cancel failure, got %v", err)
	}
	if result.Accepted != 2 {
		t.Fatalf("expected placement after failed cancel, got %d", result.Accepted)
	}
}

func TestVolumeRefreshStopsOnSyncFailure(t *testing.T) {
	placer := &stubPlacer{syncErr: errors.New("timeout")}
	v := NewVolume(placer, volumeConfig(), zap.NewNop())
	if _, err := v.Refresh(context.Background(), 100); err == nil {
		t.Fatalf("expected error when reconciliation fails")
	}
	if len(placer.placed) != 0 {
		t.Fatalf("must not place on top of an unreconciled book")
	}
}
