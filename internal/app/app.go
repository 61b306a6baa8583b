package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pairtrader/internal/config"
	"pairtrader/internal/exchange"
	"pairtrader/internal/feed"
	"pairtrader/internal/monitor"
	"pairtrader/internal/store"
	"pairtrader/internal/strategy"
	"pairtrader/internal/tradelog"
	"pairtrader/internal/trader"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 启动全部交易实例并阻塞到退出。
// 收到退出信号后先对每个实例执行有界停机，再取消剩余组件。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("交易系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("exchange", a.cfg.Exchange.Name),
		zap.String("market_type", a.cfg.Trader.MarketType),
		zap.String("run_type", a.cfg.Trader.RunType),
		zap.Int("pairs", len(a.cfg.Trader.Pairs)),
	)

	client, err := exchange.NewClient(a.cfg.Exchange, a.logger)
	if err != nil {
		return err
	}

	monitorSvc, err := monitor.NewService(a.store, a.logger)
	if err != nil {
		return err
	}

	tradeLog, err := tradelog.NewLogger(a.store, a.cfg.Trader.LogDir, a.logger)
	if err != nil {
		return err
	}

	var buffer *feed.Buffer
	var listener *feed.Listener
	if a.cfg.Trader.RunType == config.RunReal {
		buffer = feed.NewBuffer()
		listener = feed.NewListener(a.cfg.Feed, buffer, a.logger)
	}

	traders := make([]*trader.Trader, 0, len(a.cfg.Trader.Pairs))
	for _, pair := range a.cfg.Trader.Pairs {
		marketSvc := exchange.NewMarketDataService(client, pair.Symbol(), a.logger)
		provider := strategy.NewProvider(strategy.DefaultParams(), a.logger)
		traders = append(traders, trader.New(
			a.cfg.Trader, pair,
			client, marketSvc, provider,
			buffer, tradeLog, monitorSvc,
			a.logger,
		))
	}

	// 交易实例运行在独立的上下文上，外部退出信号先走有界停机，
	// 停机完成（或超时）后才取消该上下文。
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	g, gctx := errgroup.WithContext(runCtx)

	if listener != nil {
		g.Go(func() error {
			if err := listener.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	for _, tr := range traders {
		tr := tr
		g.Go(func() error {
			if err := tr.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if a.cfg.Monitor.Enabled {
		if err := startMonitorServer(runCtx, monitorSvc, tradeLog, traders, a.cfg.Monitor.Port, a.logger); err != nil {
			return err
		}
	}

	go func() {
		<-ctx.Done()
		a.logger.Info("收到退出信号，开始有界停机")

		stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Trader.StopTimeout+30*time.Second)
		defer cancel()

		var wg sync.WaitGroup
		for _, tr := range traders {
			wg.Add(1)
			go func(tr *trader.Trader) {
				defer wg.Done()
				if err := tr.Stop(stopCtx); err != nil {
					a.logger.Warn("交易实例停机超时", zap.Error(err))
				}
			}(tr)
		}
		wg.Wait()
		cancelRun()
	}()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	a.logger.Info("系统收到退出信号，正在停止")
	return nil
}
