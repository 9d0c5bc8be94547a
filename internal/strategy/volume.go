package strategy

import (
	"context"
	"math"

	"go.uber.org/zap"

	"perp-quoter/internal/config"
	"perp-quoter/internal/exchange"
	"perp-quoter/internal/orders"
	"perp-quoter/internal/quote"
)

// OrderPlacer is the slice of the order manager the volume generator needs.
type OrderPlacer interface {
	PlaceIntents(ctx context.Context, symbol string, intents []quote.Intent, cfg config.StrategyConfig) (orders.PlaceResult, error)
	CancelAllForSymbol(ctx context.Context, symbol string) error
	SyncWithExchange(ctx context.Context, symbol string) error
}

// Volume generates synthetic turnover: each cycle it cancels the previous
// pair and places a crossing buy/sell pair around the reference price,
// alternating which side leads so the prints are not one-directional.
type Volume struct {
	placer   OrderPlacer
	cfg      config.StrategyConfig
	log      *zap.Logger
	buyFirst bool
}

func NewVolume(placer OrderPlacer, cfg config.StrategyConfig, log *zap.Logger) *Volume {
	return &Volume{placer: placer, cfg: cfg, log: log, buyFirst: true}
}

// Refresh runs one volume cycle against the reference price and reports
// what the venue accepted.
func (v *Volume) Refresh(ctx context.Context, ref float64) (orders.PlaceResult, error) {
	if ref <= 0 || math.IsNaN(ref) || math.IsInf(ref, 0) {
		return orders.PlaceResult{}, nil
	}
	if err := v.placer.CancelAllForSymbol(ctx, v.cfg.Symbol); err != nil {
		v.log.Warn("volume cancel failed", zap.String("symbol", v.cfg.Symbol), zap.Error(err))
	}
	if err := v.placer.SyncWithExchange(ctx, v.cfg.Symbol); err != nil {
		return orders.PlaceResult{}, err
	}
	intents := v.pair(ref)
	result, err := v.placer.PlaceIntents(ctx, v.cfg.Symbol, intents, v.cfg)
	if err != nil {
		return result, err
	}
	v.buyFirst = !v.buyFirst
	return result, nil
}

// pair builds a crossing pair: the buy is priced through the sell so the
// two match against each other when the book is quiet.
func (v *Volume) pair(ref float64) []quote.Intent {
	half := v.cfg.SpreadPct / 2 / 100
	buy := quote.Intent{
		Side:  exchange.SideBuy,
		Price: roundTo(ref*(1+half), v.cfg.PriceDecimals),
		Size:  roundTo(v.cfg.BaseSize, v.cfg.SizeDecimals),
	}
	sell := quote.Intent{
		Side:  exchange.SideSell,
		Price: roundTo(ref*(1-half), v.cfg.PriceDecimals),
		Size:  buy.Size,
	}
	if buy.Price <= 0 || sell.Price <= 0 || buy.Size <= 0 {
		return nil
	}
	if v.buyFirst {
		return []quote.Intent{buy, sell}
	}
	return []quote.Intent{sell, buy}
}

func roundTo(value float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(value)
	}
	factor := math.Pow10(decimals)
	return math.Round(value*factor) / factor
}
