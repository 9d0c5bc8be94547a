package account

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"perp-quoter/internal/exchange"
)

type stubVenue struct {
	mu            sync.Mutex
	position      exchange.Position
	positionCalls int
	positionErr   error
	balance       float64
	balanceCalls  int
}

func (s *stubVenue) PlaceOrder(ctx context.Context, req exchange.PlaceRequest) (exchange.Receipt, error) {
	return exchange.Receipt{}, errors.New("not implemented")
}

func (s *stubVenue) CancelOrder(ctx context.Context, req exchange.CancelRequest) (exchange.Receipt, error) {
	return exchange.Receipt{}, errors.New("not implemented")
}

func (s *stubVenue) BatchCancel(ctx context.Context, symbol string, clientIDs []uint64, expiry int64) (exchange.Receipt, error) {
	return exchange.Receipt{}, errors.New("not implemented")
}

func (s *stubVenue) OpenOrders(ctx context.Context, symbol string) ([]exchange.OrderView, error) {
	return nil, nil
}

func (s *stubVenue) OrderBook(ctx context.Context, symbol string) (exchange.Book, error) {
	return exchange.Book{}, errors.New("not implemented")
}

func (s *stubVenue) ChainHeight(ctx context.Context) (int64, error) { return 0, nil }

func (s *stubVenue) Position(ctx context.Context, symbol string) (exchange.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positionCalls++
	return s.position, s.positionErr
}

func (s *stubVenue) Balance(ctx context.Context, asset string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balanceCalls++
	return s.balance, nil
}

func TestPositionCachedWithinTTL(t *testing.T) {
	venue := &stubVenue{position: exchange.Position{Symbol: "ETH", Size: 2}}
	acct := New(venue, "ETH", "USDC", 5*time.Second, zap.NewNop())
	base := time.Unix(1_700_000_000, 0)
	now := base
	acct.now = func() time.Time { return now }
	ctx := context.Background()

	if _, err := acct.Position(ctx); err != nil {
		t.Fatalf("first read failed: %v", err)
	}
	now = base.Add(4 * time.Second)
	if _, err := acct.Position(ctx); err != nil {
		t.Fatalf("cached read failed: %v", err)
	}
	if venue.positionCalls != 1 {
		t.Fatalf("expected cache hit inside TTL, got %d venue calls", venue.positionCalls)
	}
	now = base.Add(6 * time.Second)
	if _, err := acct.Position(ctx); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if venue.positionCalls != 2 {
		t.Fatalf("expected refresh after TTL, got %d venue calls", venue.positionCalls)
	}
}

func TestEstimatedSizeAddsInFlight(t *testing.T) {
	venue := &stubVenue{position: exchange.Position{Symbol: "ETH", Size: -2}}
	acct := New(venue, "ETH", "USDC", 5*time.Second, zap.NewNop())
	ctx := context.Background()

	size, err := acct.EstimatedSize(ctx)
	if err != nil {
		t.Fatalf("estimate failed: %v", err)
	}
	if size != 2 {
		t.Fatalf("expected absolute position 2, got %v", size)
	}
	acct.AddEstimate(1.5)
	acct.AddEstimate(-0.5)
	size, err = acct.EstimatedSize(ctx)
	if err != nil {
		t.Fatalf("estimate failed: %v", err)
	}
	if size != 4 {
		t.Fatalf("expected 2 + 1.5 + 0.5 = 4, got %v", size)
	}
}

func TestFreshPositionResetsEstimate(t *testing.T) {
	venue := &stubVenue{position: exchange.Position{Symbol: "ETH", Size: 3}}
	acct := New(venue, "ETH", "USDC", 5*time.Second, zap.NewNop())
	base := time.Unix(1_700_000_000, 0)
	now := base
	acct.now = func() time.Time { return now }
	ctx := context.Background()

	if _, err := acct.Position(ctx); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	acct.AddEstimate(5)
	now = base.Add(6 * time.Second)
	size, err := acct.EstimatedSize(ctx)
	if err != nil {
		t.Fatalf("estimate failed: %v", err)
	}
	if size != 3 {
		t.Fatalf("fresh venue read must reset the estimate, got %v", size)
	}
}

func TestBalanceCachedWithinTTL(t *testing.T) {
	venue := &stubVenue{balance: 1000}
	acct := New(venue, "ETH", "USDC", 5*time.Second, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		bal, err := acct.Balance(ctx)
		if err != nil {
			t.Fatalf("balance read failed: %v", err)
		}
		if bal != 1000 {
			t.Fatalf("expected 1000, got %v", bal)
		}
	}
	if venue.balanceCalls != 1 {
		t.Fatalf("expected one venue call, got %d", venue.balanceCalls)
	}
}

func TestPositionErrorPropagates(t *testing.T) {
	venue := &stubVenue{positionErr: errors.New("timeout")}
	acct := New(venue, "ETH", "USDC", 5*time.Second, zap.NewNop())
	if _, err := acct.Position(context.Background()); err == nil {
		t.Fatalf("expected venue error")
	}
}
