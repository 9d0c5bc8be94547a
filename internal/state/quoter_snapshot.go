package state

import (
	"context"

	"github.com/vmihailenco/msgpack/v5"
)

const QuoterSnapshotKey = "quoter:last_snapshot"

// QuoterSnapshot is the last observed quoting state, written once per status
// interval. It is operator telemetry for restarts; order tracking itself is
// always rebuilt from a reconciliation pass, never from this record.
type QuoterSnapshot struct {
	Symbol          string  `msgpack:"symbol"`
	Mode            string  `msgpack:"mode"`
	ReferencePrice  float64 `msgpack:"reference_price"`
	DiffPct         float64 `msgpack:"diff_pct"`
	QuotedSpread    float64 `msgpack:"quoted_spread"`
	TrackedOrders   int     `msgpack:"tracked_orders"`
	OrdersPlaced    uint64  `msgpack:"orders_placed"`
	OrdersFailed    uint64  `msgpack:"orders_failed"`
	OrdersCancelled uint64  `msgpack:"orders_cancelled"`
	RiskDenials     uint64  `msgpack:"risk_denials"`
	QuotedVolume    float64 `msgpack:"quoted_volume"`
	UpdatedAtMS     int64   `msgpack:"updated_at_ms"`
}

func LoadQuoterSnapshot(ctx context.Context, store Store) (QuoterSnapshot, bool, error) {
	if store == nil {
		return QuoterSnapshot{}, false, nil
	}
	raw, ok, err := store.Get(ctx, QuoterSnapshotKey)
	if err != nil || !ok || len(raw) == 0 {
		return QuoterSnapshot{}, false, err
	}
	var snapshot QuoterSnapshot
	if err := msgpack.Unmarshal(raw, &snapshot); err != nil {
		return QuoterSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func SaveQuoterSnapshot(ctx context.Context, store Store, snapshot QuoterSnapshot) error {
	if store == nil {
		return nil
	}
	payload, err := msgpack.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, QuoterSnapshotKey, payload)
}
