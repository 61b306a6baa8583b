package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		App: AppConfig{Environment: "test"},
		Exchange: ExchangeConfig{
			Name: "binance",
			Retry: RetryConfig{
				MaxAttempts: 3,
				MinDelay:    time.Second,
				MaxDelay:    5 * time.Second,
			},
		},
		Trader: TraderConfig{
			MarketType:     MarketSpot,
			RunType:        RunTest,
			MaxCapital:     100,
			CommissionRate: 0.00075,
			LoopInterval:   2 * time.Second,
			OrderDelay:     800 * time.Millisecond,
			StopTimeout:    2 * time.Minute,
			Pairs: []PairConfig{
				{BaseAsset: "BTC", QuoteAsset: "USDT", TickSize: 2, LotSize: 5},
			},
		},
		Database: DatabaseConfig{
			Path:         "data/test.db",
			MaxOpenConns: 4,
		},
		Logging: LoggingConfig{
			Level:            "info",
			Encoding:         "json",
			OutputPaths:      []string{"stdout"},
			ErrorOutputPaths: []string{"stderr"},
		},
		Monitor: MonitorConfig{Enabled: true, Port: 8470},
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidate_RealModeRequiresCredentialsAndFeed(t *testing.T) {
	cfg := validConfig()
	cfg.Trader.RunType = RunReal

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected error for REAL mode without credentials")
	}
	if !strings.Contains(err.Error(), "api_key") {
		t.Errorf("expected api_key complaint, got %v", err)
	}
	if !strings.Contains(err.Error(), "feed.url") {
		t.Errorf("expected feed.url complaint, got %v", err)
	}

	cfg.Exchange.APIKey = "k"
	cfg.Exchange.APISecret = "s"
	cfg.Feed.URL = "wss://example/stream"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid REAL config, got %v", err)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown market type", func(c *Config) { c.Trader.MarketType = "FUTURES" }, "market_type"},
		{"unknown run type", func(c *Config) { c.Trader.RunType = "DRY" }, "run_type"},
		{"no pairs", func(c *Config) { c.Trader.Pairs = nil }, "pairs"},
		{"tick size out of range", func(c *Config) { c.Trader.Pairs[0].TickSize = 12 }, "tick_size"},
		{"non-positive capital", func(c *Config) { c.Trader.MaxCapital = 0 }, "max_capital"},
		{"excessive commission", func(c *Config) { c.Trader.CommissionRate = 0.2 }, "commission_rate"},
		{"non-positive stop timeout", func(c *Config) { c.Trader.StopTimeout = 0 }, "stop_timeout"},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestPairHelpers(t *testing.T) {
	pair := PairConfig{BaseAsset: "btc", QuoteAsset: "usdt"}
	if pair.Symbol() != "BTCUSDT" {
		t.Errorf("expected symbol BTCUSDT, got %s", pair.Symbol())
	}
	if pair.PrintPair() != "USDT-BTC" {
		t.Errorf("expected print pair USDT-BTC, got %s", pair.PrintPair())
	}
}
