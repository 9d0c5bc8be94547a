package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validYAML() string {
	return `
rest:
  base_url: https://api.example.com
strategy:
  symbol: ETH
  spread_pct: 0.1
  step_pct: 0.01
  base_size: 1
risk:
  max_position_size: 10
`
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML()))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.Log.Level)
	}
	if cfg.Strategy.Mode != "quoter" {
		t.Fatalf("expected default mode quoter, got %q", cfg.Strategy.Mode)
	}
	if cfg.Strategy.PriceSteps != 3 {
		t.Fatalf("expected default 3 price steps, got %d", cfg.Strategy.PriceSteps)
	}
	if cfg.Strategy.SizeGrowthFactor != 0.01 {
		t.Fatalf("expected default size growth 0.01, got %v", cfg.Strategy.SizeGrowthFactor)
	}
	if cfg.Strategy.OrderClass != "SHORT_LIVED" {
		t.Fatalf("expected default SHORT_LIVED, got %q", cfg.Strategy.OrderClass)
	}
	if cfg.Strategy.TickInterval != time.Second {
		t.Fatalf("expected default tick interval 1s, got %v", cfg.Strategy.TickInterval)
	}
	if cfg.Strategy.RefreshInterval != 30*time.Second {
		t.Fatalf("expected default refresh interval 30s, got %v", cfg.Strategy.RefreshInterval)
	}
	if cfg.Strategy.BatchSize != 1 {
		t.Fatalf("expected default batch size 1, got %d", cfg.Strategy.BatchSize)
	}
	if cfg.Risk.BalanceAsset != "USDC" {
		t.Fatalf("expected default balance asset USDC, got %q", cfg.Risk.BalanceAsset)
	}
	if cfg.Oracles.Binance.TTL != 5*time.Second || cfg.Oracles.CoinGecko.TTL != 30*time.Second {
		t.Fatalf("unexpected oracle TTL defaults: %v / %v", cfg.Oracles.Binance.TTL, cfg.Oracles.CoinGecko.TTL)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML()+`
log:
  level: debug
feed:
  enabled: true
  url: wss://feed.example.com/ws
`))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.Log.Level)
	}
	if !cfg.Feed.Enabled || cfg.Feed.URL != "wss://feed.example.com/ws" {
		t.Fatalf("feed config not applied: %+v", cfg.Feed)
	}
	if cfg.Feed.ReconnectDelay != 3*time.Second {
		t.Fatalf("expected default reconnect delay, got %v", cfg.Feed.ReconnectDelay)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"missing base url": `
strategy:
  symbol: ETH
  spread_pct: 0.1
  base_size: 1
risk:
  max_position_size: 10
`,
		"missing symbol": `
rest:
  base_url: https://api.example.com
strategy:
  spread_pct: 0.1
  base_size: 1
risk:
  max_position_size: 10
`,
		"bad mode": `
rest:
  base_url: https://api.example.com
strategy:
  symbol: ETH
  spread_pct: 0.1
  base_size: 1
  mode: arbitrage
risk:
  max_position_size: 10
`,
		"zero spread": `
rest:
  base_url: https://api.example.com
strategy:
  symbol: ETH
  base_size: 1
risk:
  max_position_size: 10
`,
		"bad order class": `
rest:
  base_url: https://api.example.com
strategy:
  symbol: ETH
  spread_pct: 0.1
  base_size: 1
  order_class: ETERNAL
risk:
  max_position_size: 10
`,
		"oracle without threshold": `
rest:
  base_url: https://api.example.com
strategy:
  symbol: ETH
  spread_pct: 0.1
  base_size: 1
  oracle:
    enabled: true
risk:
  max_position_size: 10
`,
		"unknown oracle provider": `
rest:
  base_url: https://api.example.com
oracles:
  binance:
    enabled: true
strategy:
  symbol: ETH
  spread_pct: 0.1
  base_size: 1
  oracle:
    enabled: true
    provider: binnance
    threshold_pct: 0.5
risk:
  max_position_size: 10
`,
		"oracle provider not enabled": `
rest:
  base_url: https://api.example.com
strategy:
  symbol: ETH
  spread_pct: 0.1
  base_size: 1
  oracle:
    enabled: true
    provider: binance
    threshold_pct: 0.5
risk:
  max_position_size: 10
`,
		"missing position limit": `
rest:
  base_url: https://api.example.com
strategy:
  symbol: ETH
  spread_pct: 0.1
  base_size: 1
`,
	}
	for name, contents := range cases {
		if _, err := Load(writeConfig(t, contents)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadAcceptsEnabledOracleProvider(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
rest:
  base_url: https://api.example.com
oracles:
  coingecko:
    enabled: true
strategy:
  symbol: ETH
  spread_pct: 0.1
  base_size: 1
  oracle:
    enabled: true
    provider: coingecko
    threshold_pct: 0.5
risk:
  max_position_size: 10
`))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Strategy.Oracle.Provider != "coingecko" {
		t.Fatalf("expected coingecko provider, got %q", cfg.Strategy.Oracle.Provider)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
