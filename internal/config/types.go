package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// 支持的市场模式与运行模式。
const (
	MarketSpot   = "SPOT"
	MarketMargin = "MARGIN"

	RunReal = "REAL"
	RunTest = "TEST"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Trader   TraderConfig   `mapstructure:"trader"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Name       string      `mapstructure:"name"`
	APIKey     string      `mapstructure:"api_key"`
	APISecret  string      `mapstructure:"api_secret"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// PairConfig 描述单个交易对实例。
type PairConfig struct {
	BaseAsset  string `mapstructure:"base_asset"`
	QuoteAsset string `mapstructure:"quote_asset"`
	// TickSize/LotSize 为交易所规定的价格与数量小数位数。
	TickSize int `mapstructure:"tick_size"`
	LotSize  int `mapstructure:"lot_size"`
	// IsFiat 表示计价资产为法币类资产；InverseFiat 表示收益按卖价反向折算。
	IsFiat      bool `mapstructure:"is_fiat"`
	InverseFiat bool `mapstructure:"inverse_fiat"`
}

// TraderConfig 控制交易实例行为。
type TraderConfig struct {
	MarketType     string        `mapstructure:"market_type"`
	RunType        string        `mapstructure:"run_type"`
	Pairs          []PairConfig  `mapstructure:"pairs"`
	MaxCapital     float64       `mapstructure:"max_capital"`
	CommissionRate float64       `mapstructure:"commission_rate"`
	TradeOnlyOne   bool          `mapstructure:"trade_only_one"`
	LoopInterval   time.Duration `mapstructure:"loop_interval"`
	OrderDelay     time.Duration `mapstructure:"order_delay"`
	StopTimeout    time.Duration `mapstructure:"stop_timeout"`
	LogDir         string        `mapstructure:"log_dir"`
}

// FeedConfig 描述账户数据流连接。
type FeedConfig struct {
	URL           string        `mapstructure:"url"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// MonitorConfig 控制监控接口。
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Symbol 返回交易所符号，例如 BTCUSDT。
func (p PairConfig) Symbol() string {
	return strings.ToUpper(p.BaseAsset + p.QuoteAsset)
}

// PrintPair 返回日志友好的展示形式，例如 USDT-BTC。
func (p PairConfig) PrintPair() string {
	return strings.ToUpper(p.QuoteAsset + "-" + p.BaseAsset)
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Exchange.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 不能为空"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}

	switch c.Trader.MarketType {
	case MarketSpot, MarketMargin:
	default:
		err = multierr.Append(err, fmt.Errorf("trader.market_type 不支持 %q", c.Trader.MarketType))
	}
	switch c.Trader.RunType {
	case RunReal, RunTest:
	default:
		err = multierr.Append(err, fmt.Errorf("trader.run_type 不支持 %q", c.Trader.RunType))
	}
	if len(c.Trader.Pairs) == 0 {
		err = multierr.Append(err, errors.New("trader.pairs 至少包含一个交易对"))
	}
	for i, pair := range c.Trader.Pairs {
		if pair.BaseAsset == "" || pair.QuoteAsset == "" {
			err = multierr.Append(err, fmt.Errorf("trader.pairs[%d] base_asset/quote_asset 不能为空", i))
		}
		if pair.TickSize < 0 || pair.TickSize > 8 {
			err = multierr.Append(err, fmt.Errorf("trader.pairs[%d].tick_size 必须位于[0,8]", i))
		}
		if pair.LotSize < 0 || pair.LotSize > 8 {
			err = multierr.Append(err, fmt.Errorf("trader.pairs[%d].lot_size 必须位于[0,8]", i))
		}
	}
	if c.Trader.MaxCapital <= 0 {
		err = multierr.Append(err, errors.New("trader.max_capital 必须大于0"))
	}
	if c.Trader.CommissionRate < 0 || c.Trader.CommissionRate > 0.05 {
		err = multierr.Append(err, errors.New("trader.commission_rate 应位于[0,0.05]"))
	}
	if c.Trader.LoopInterval <= 0 {
		err = multierr.Append(err, errors.New("trader.loop_interval 必须大于0"))
	}
	if c.Trader.OrderDelay < 0 {
		err = multierr.Append(err, errors.New("trader.order_delay 不能为负"))
	}
	if c.Trader.StopTimeout <= 0 {
		err = multierr.Append(err, errors.New("trader.stop_timeout 必须大于0"))
	}

	if c.Trader.RunType == RunReal {
		if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
			err = multierr.Append(err, errors.New("REAL 模式需要配置 exchange.api_key 与 api_secret"))
		}
		if c.Feed.URL == "" {
			err = multierr.Append(err, errors.New("REAL 模式需要配置 feed.url"))
		}
	}
	if c.Feed.ReadTimeout < 0 || c.Feed.ReconnectWait < 0 {
		err = multierr.Append(err, errors.New("feed 超时参数不能为负"))
	}

	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}

	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if c.Monitor.Enabled && (c.Monitor.Port <= 0 || c.Monitor.Port > 65535) {
		err = multierr.Append(err, errors.New("monitor.port 必须位于(0,65535]"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
