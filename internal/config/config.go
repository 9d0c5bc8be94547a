package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	REST      RESTConfig      `yaml:"rest"`
	Feed      FeedConfig      `yaml:"feed"`
	State     StateConfig     `yaml:"state"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Oracles   OraclesConfig   `yaml:"oracles"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Risk      RiskConfig      `yaml:"risk"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type RESTConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type FeedConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	MaxAge         time.Duration `yaml:"max_age"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type OraclesConfig struct {
	Binance   BinanceOracleConfig   `yaml:"binance"`
	CoinGecko CoinGeckoOracleConfig `yaml:"coingecko"`
}

type BinanceOracleConfig struct {
	Enabled bool              `yaml:"enabled"`
	BaseURL string            `yaml:"base_url"`
	Timeout time.Duration     `yaml:"timeout"`
	TTL     time.Duration     `yaml:"ttl"`
	Aliases map[string]string `yaml:"aliases"`
}

type CoinGeckoOracleConfig struct {
	Enabled bool              `yaml:"enabled"`
	BaseURL string            `yaml:"base_url"`
	Timeout time.Duration     `yaml:"timeout"`
	TTL     time.Duration     `yaml:"ttl"`
	IDs     map[string]string `yaml:"ids"`
}

// StrategyConfig describes one quoting instance. Values are read once at
// startup; a config change produces a whole new instance between ticks
// rather than mutating a running one.
type StrategyConfig struct {
	Symbol           string        `yaml:"symbol"`
	Mode             string        `yaml:"mode"`
	SpreadPct        float64       `yaml:"spread_pct"`
	StepPct          float64       `yaml:"step_pct"`
	PriceSteps       int           `yaml:"price_steps"`
	BaseSize         float64       `yaml:"base_size"`
	SizeGrowthFactor float64       `yaml:"size_growth_factor"`
	MaxOrdersPerSide int           `yaml:"max_orders_per_side"`
	PriceDecimals    int           `yaml:"price_decimals"`
	SizeDecimals     int           `yaml:"size_decimals"`
	TickInterval     time.Duration `yaml:"tick_interval"`
	RefreshInterval  time.Duration `yaml:"refresh_interval"`
	StatusInterval   time.Duration `yaml:"status_interval"`
	OrderClass       string        `yaml:"order_class"`
	ExpiryBlocks     int64         `yaml:"expiry_blocks"`
	OrderLifetime    time.Duration `yaml:"order_lifetime"`
	BatchSize        int           `yaml:"batch_size"`
	BatchDelay       time.Duration `yaml:"batch_delay"`
	BookTTL          time.Duration `yaml:"book_ttl"`
	FallbackSpread   float64       `yaml:"fallback_spread"`
	Oracle           OracleConfig  `yaml:"oracle"`
}

type OracleConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Provider     string  `yaml:"provider"`
	ThresholdPct float64 `yaml:"threshold_pct"`
}

type RiskConfig struct {
	MaxPositionSize float64 `yaml:"max_position_size"`
	MaxDrawdownPct  float64 `yaml:"max_drawdown_pct"`
	StopLossPct     float64 `yaml:"stop_loss_pct"`
	MinBalance      float64 `yaml:"min_balance"`
	BalanceAsset    string  `yaml:"balance_asset"`
}

type TelegramConfig struct {
	Enabled                bool          `yaml:"enabled"`
	Token                  string        `yaml:"token"`
	ChatID                 string        `yaml:"chat_id"`
	OperatorEnabled        bool          `yaml:"operator_enabled"`
	OperatorPollInterval   time.Duration `yaml:"operator_poll_interval"`
	OperatorAllowedUserIDs []int64       `yaml:"operator_allowed_user_ids"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.REST.Timeout == 0 {
		cfg.REST.Timeout = 10 * time.Second
	}
	if cfg.Feed.ReconnectDelay == 0 {
		cfg.Feed.ReconnectDelay = 3 * time.Second
	}
	if cfg.Feed.PingInterval == 0 {
		cfg.Feed.PingInterval = 15 * time.Second
	}
	if cfg.Feed.MaxAge == 0 {
		cfg.Feed.MaxAge = 5 * time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/perp-quoter.db"
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9090"
	}
	if cfg.Oracles.Binance.BaseURL == "" {
		cfg.Oracles.Binance.BaseURL = "https://api.binance.com"
	}
	if cfg.Oracles.Binance.Timeout == 0 {
		cfg.Oracles.Binance.Timeout = 5 * time.Second
	}
	if cfg.Oracles.Binance.TTL == 0 {
		cfg.Oracles.Binance.TTL = 5 * time.Second
	}
	if cfg.Oracles.CoinGecko.BaseURL == "" {
		cfg.Oracles.CoinGecko.BaseURL = "https://api.coingecko.com"
	}
	if cfg.Oracles.CoinGecko.Timeout == 0 {
		cfg.Oracles.CoinGecko.Timeout = 5 * time.Second
	}
	if cfg.Oracles.CoinGecko.TTL == 0 {
		cfg.Oracles.CoinGecko.TTL = 30 * time.Second
	}
	applyStrategyDefaults(&cfg.Strategy)
	if cfg.Risk.BalanceAsset == "" {
		cfg.Risk.BalanceAsset = "USDC"
	}
	if cfg.Telegram.OperatorPollInterval == 0 {
		cfg.Telegram.OperatorPollInterval = 3 * time.Second
	}
}

func applyStrategyDefaults(s *StrategyConfig) {
	if s.Mode == "" {
		s.Mode = "quoter"
	}
	if s.PriceSteps == 0 {
		s.PriceSteps = 3
	}
	if s.SizeGrowthFactor == 0 {
		s.SizeGrowthFactor = 0.01
	}
	if s.MaxOrdersPerSide == 0 {
		s.MaxOrdersPerSide = 10
	}
	if s.PriceDecimals == 0 {
		s.PriceDecimals = 2
	}
	if s.SizeDecimals == 0 {
		s.SizeDecimals = 4
	}
	if s.TickInterval == 0 {
		s.TickInterval = time.Second
	}
	if s.RefreshInterval == 0 {
		s.RefreshInterval = 30 * time.Second
	}
	if s.StatusInterval == 0 {
		s.StatusInterval = time.Minute
	}
	if s.OrderClass == "" {
		s.OrderClass = "SHORT_LIVED"
	}
	if s.ExpiryBlocks == 0 {
		s.ExpiryBlocks = 20
	}
	if s.OrderLifetime == 0 {
		s.OrderLifetime = 5 * time.Minute
	}
	if s.BatchSize == 0 {
		s.BatchSize = 1
	}
	if s.BatchDelay == 0 {
		s.BatchDelay = 500 * time.Millisecond
	}
	if s.BookTTL == 0 {
		s.BookTTL = time.Second
	}
	if s.FallbackSpread == 0 {
		s.FallbackSpread = 0.001
	}
}

func validate(cfg *Config) error {
	if cfg.REST.BaseURL == "" {
		return errors.New("rest.base_url is required")
	}
	if cfg.Strategy.Symbol == "" {
		return errors.New("strategy.symbol is required")
	}
	if cfg.Strategy.Mode != "quoter" && cfg.Strategy.Mode != "volume" {
		return errors.New("strategy.mode must be quoter or volume")
	}
	if cfg.Strategy.SpreadPct <= 0 {
		return errors.New("strategy.spread_pct must be > 0")
	}
	if cfg.Strategy.StepPct < 0 {
		return errors.New("strategy.step_pct must be >= 0")
	}
	if cfg.Strategy.BaseSize <= 0 {
		return errors.New("strategy.base_size must be > 0")
	}
	if cfg.Strategy.BatchSize < 1 {
		return errors.New("strategy.batch_size must be >= 1")
	}
	if c := cfg.Strategy.OrderClass; c != "SHORT_LIVED" && c != "LONG_LIVED" {
		return errors.New("strategy.order_class must be SHORT_LIVED or LONG_LIVED")
	}
	if cfg.Strategy.Oracle.Enabled {
		if cfg.Strategy.Oracle.ThresholdPct <= 0 {
			return errors.New("strategy.oracle.threshold_pct must be > 0 when oracle mode is enabled")
		}
		switch cfg.Strategy.Oracle.Provider {
		case "binance":
			if !cfg.Oracles.Binance.Enabled {
				return errors.New("strategy.oracle.provider is binance but oracles.binance is not enabled")
			}
		case "coingecko":
			if !cfg.Oracles.CoinGecko.Enabled {
				return errors.New("strategy.oracle.provider is coingecko but oracles.coingecko is not enabled")
			}
		default:
			return fmt.Errorf("strategy.oracle.provider must be binance or coingecko, got %q", cfg.Strategy.Oracle.Provider)
		}
	}
	if cfg.Risk.MaxPositionSize <= 0 {
		return errors.New("risk.max_position_size must be > 0")
	}
	return nil
}
