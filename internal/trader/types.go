package trader

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pairtrader/internal/config"
	"pairtrader/internal/exchange"
	"pairtrader/internal/feed"
	"pairtrader/internal/indicator"
	"pairtrader/internal/market"
	"pairtrader/internal/position"
	"pairtrader/internal/signal"
)

// RuntimeState 表示交易实例的运行阶段。
// SETUP 为首轮循环的预热阶段，FORCE_PAUSE 暂停新决策但持仓对账继续；
// 各类待机、暂停场景统一用 FORCE_PAUSE 一个状态表示，不再细分来源。
type RuntimeState string

const (
	StateSetup      RuntimeState = "SETUP"
	StateRun        RuntimeState = "RUN"
	StateForcePause RuntimeState = "FORCE_PAUSE"
	StateStop       RuntimeState = "STOP"
)

// orderClient 是交易循环对交易所委托接口的依赖。
type orderClient interface {
	PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error)
	CancelOrder(ctx context.Context, marketType, symbol, orderID string) error
	BorrowLoan(ctx context.Context, asset string, amount decimal.Decimal) (exchange.LoanResult, error)
	RepayLoan(ctx context.Context, asset string, amount decimal.Decimal) error
	MarginAccount(ctx context.Context) ([]exchange.MarginAsset, error)
}

// marketData 是交易循环对市场数据采集的依赖。
type marketData interface {
	Symbol() string
	GetSnapshot(ctx context.Context, req exchange.SnapshotRequest) (exchange.MarketSnapshot, error)
}

// tradeSink 接收已完成的往返交易记录。
type tradeSink interface {
	Append(ctx context.Context, record position.TradeRecord) error
}

// eventSink 接收交易过程事件，用于监控展示。
type eventSink interface {
	RecordEvent(ctx context.Context, eventType, symbol, message string)
}

// Trader 是单交易对的交易实例。
// 持仓簿记由循环协程独占写入；外部只通过 Status 读取快照，
// 通过 Pause/Resume/Stop 发送控制请求，由循环在下一轮应用。
type Trader struct {
	cfg      config.TraderConfig
	pair     config.PairConfig
	client   orderClient
	market   marketData
	provider signal.Provider
	calc     *indicator.Calculator
	buffer   *feed.Buffer
	trades   tradeSink
	events   eventSink
	logger   *zap.Logger

	maxCapital decimal.Decimal
	commission decimal.Decimal

	long  *position.Leg
	short *position.Leg

	state      RuntimeState
	quote      market.Quote
	indicators indicator.Snapshot
	candles    []exchange.Candle
	wallet     feed.AccountUpdate
	walletAt   time.Time

	pauseReq     atomic.Bool
	stopOnce     sync.Once
	stopCh       chan struct{}
	done         chan struct{}
	stopDeadline time.Time

	statusMu sync.RWMutex
	status   Status
}

// Status 为交易实例对外发布的运行快照。
type Status struct {
	Symbol     string
	PrintPair  string
	State      RuntimeState
	Quote      market.Quote
	Indicators indicator.Snapshot
	Long       position.Leg
	Short      *position.Leg
	WalletTime time.Time
	UpdatedAt  time.Time
}

// New 创建交易实例。模拟盘运行时 buffer 可以为 nil。
func New(
	cfg config.TraderConfig,
	pair config.PairConfig,
	client orderClient,
	data marketData,
	provider signal.Provider,
	buffer *feed.Buffer,
	trades tradeSink,
	events eventSink,
	logger *zap.Logger,
) *Trader {
	if logger == nil {
		logger = zap.NewNop()
	}

	maxCapital := decimal.NewFromFloat(cfg.MaxCapital)

	t := &Trader{
		cfg:        cfg,
		pair:       pair,
		client:     client,
		market:     data,
		provider:   provider,
		calc:       indicator.NewCalculator(),
		buffer:     buffer,
		trades:     trades,
		events:     events,
		logger:     logger.With(zap.String("pair", pair.PrintPair())),
		maxCapital: maxCapital,
		commission: decimal.NewFromFloat(cfg.CommissionRate),
		long:       position.NewLeg(position.Long, maxCapital),
		state:      StateSetup,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}

	if cfg.MarketType == config.MarketMargin {
		t.short = position.NewLeg(position.Short, maxCapital)
	}

	return t
}

// Status 返回最近一轮循环发布的运行快照。
func (t *Trader) Status() Status {
	t.statusMu.RLock()
	defer t.statusMu.RUnlock()
	return t.status
}

func (t *Trader) publishStatus() {
	st := Status{
		Symbol:     t.pair.Symbol(),
		PrintPair:  t.pair.PrintPair(),
		State:      t.state,
		Quote:      t.quote,
		Indicators: t.indicators,
		Long:       *t.long,
		WalletTime: t.walletAt,
		UpdatedAt:  time.Now(),
	}
	if t.short != nil {
		short := *t.short
		st.Short = &short
	}

	t.statusMu.Lock()
	t.status = st
	t.statusMu.Unlock()
}

func (t *Trader) legs() []*position.Leg {
	if t.short == nil {
		return []*position.Leg{t.long}
	}
	return []*position.Leg{t.long, t.short}
}

func (t *Trader) recordEvent(ctx context.Context, eventType, message string) {
	if t.events == nil {
		return
	}
	t.events.RecordEvent(ctx, eventType, t.pair.Symbol(), message)
}

// venueSide 返回提交到交易所的实际方向：做空时两侧反转。
func venueSide(t position.Type, role position.SideRole) string {
	buy := role == position.SideBuy
	if t == position.Short {
		buy = !buy
	}
	if buy {
		return exchange.SideBuy
	}
	return exchange.SideSell
}
