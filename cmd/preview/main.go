package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"perp-quoter/internal/config"
	"perp-quoter/internal/exchange/rest"
	"perp-quoter/internal/logging"
	"perp-quoter/internal/price"
	"perp-quoter/internal/quote"
)

// preview fetches live prices and prints the ladder the quoter would place,
// without placing anything. Useful for validating a config before running it.
func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	log := logging.New(config.LoggingConfig{Level: "warn"})
	defer func() { _ = log.Sync() }()

	venue := rest.New(cfg.REST.BaseURL, cfg.REST.Timeout, log)
	providers := []price.Provider{
		price.NewBookProvider(venue, cfg.Strategy.BookTTL, cfg.Strategy.FallbackSpread),
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
	monitor := quote.NewMonitor(source, cfg.Strategy.Oracle, log)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	symbol := cfg.Strategy.Symbol
	snap, err := source.Snapshot(ctx, symbol)
	if err != nil {
		fatal(fmt.Errorf("no price for %s: %w", symbol, err))
	}
	eval := monitor.Evaluate(ctx, symbol, snap.MidPrice)

	fmt.Printf("%s  mid %.6g  bid %.6g  ask %.6g\n",
		symbol, snap.MidPrice, snap.BestBid, snap.BestAsk)
	fmt.Printf("mode %s  reference %.6g", eval.Mode, eval.ReferencePrice)
	if eval.OracleChecked {
		fmt.Printf("  oracle %.6g  diff %.4f%%", eval.OraclePrice, eval.DiffPct)
	}
	fmt.Println()

	ladder := quote.ComputeLadder(eval.ReferencePrice, cfg.Strategy)
	fmt.Printf("ladder spread %.6g\n", ladder.Spread())
	for i := len(ladder.Asks) - 1; i >= 0; i-- {
		fmt.Printf("  ask %2d  %.*f x %.*f\n", i+1,
			cfg.Strategy.PriceDecimals, ladder.Asks[i].Price,
			cfg.Strategy.SizeDecimals, ladder.Asks[i].Size)
	}
	fmt.Printf("  ---     %.*f\n", cfg.Strategy.PriceDecimals, eval.ReferencePrice)
	for i, bid := range ladder.Bids {
		fmt.Printf("  bid %2d  %.*f x %.*f\n", i+1,
			cfg.Strategy.PriceDecimals, bid.Price,
			cfg.Strategy.SizeDecimals, bid.Size)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "preview: %v\n", err)
	os.Exit(1)
}
