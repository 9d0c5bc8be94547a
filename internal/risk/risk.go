package risk

import (
	"errors"
	"fmt"
	"math"

	"perp-quoter/internal/config"
)

var (
	ErrPositionLimit       = errors.New("position limit reached")
	ErrDrawdown            = errors.New("drawdown limit breached")
	ErrInsufficientBalance = errors.New("collateral balance below minimum")
)

// Inputs is everything the pre-trade gate looks at for one refresh cycle.
// PositionSize includes the local estimate of orders in flight since the
// last full position refresh.
type Inputs struct {
	Symbol         string
	PositionSize   float64
	UnrealizedPnl  float64
	PortfolioValue float64
	Balance        float64
}

// CheckPretrade gates a quote refresh. Each check is independently
// sufficient to deny; the first failure wins. Denial skips the refresh but
// never stops the loop.
func CheckPretrade(cfg config.RiskConfig, in Inputs) error {
	if cfg.MaxPositionSize > 0 && math.Abs(in.PositionSize) >= cfg.MaxPositionSize {
		return fmt.Errorf("position %.6f at or above limit %.6f: %w", in.PositionSize, cfg.MaxPositionSize, ErrPositionLimit)
	}
	if cfg.MaxDrawdownPct > 0 && in.PortfolioValue > 0 {
		drawdownPct := in.UnrealizedPnl / in.PortfolioValue * 100
		if drawdownPct < -cfg.MaxDrawdownPct {
			return fmt.Errorf("drawdown %.2f%% beyond -%.2f%%: %w", drawdownPct, cfg.MaxDrawdownPct, ErrDrawdown)
		}
	}
	if cfg.MinBalance > 0 && in.Balance < cfg.MinBalance {
		return fmt.Errorf("balance %.2f below minimum %.2f: %w", in.Balance, cfg.MinBalance, ErrInsufficientBalance)
	}
	return nil
}
