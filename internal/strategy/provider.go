package strategy

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pairtrader/internal/exchange"
	"pairtrader/internal/signal"
)

// Params 控制内置信号策略的阈值。
type Params struct {
	EntryRSI    float64 // 低于该值时入场（做空时取对称值）
	ExitRSI     float64 // 高于该值时出场（做空时取对称值）
	StopPercent float64 // 相对建仓价的止损幅度
}

// DefaultParams 返回默认策略参数。
func DefaultParams() Params {
	return Params{
		EntryRSI:    30,
		ExitRSI:     70,
		StopPercent: 0.02,
	}
}

// Provider 是内置的 RSI 回归信号提供方，满足 signal.Provider 契约。
// 策略本身可被任意实现替换，交易循环只依赖契约。
type Provider struct {
	params Params
	logger *zap.Logger
}

var _ signal.Provider = (*Provider)(nil)

// NewProvider 创建内置信号提供方。
func NewProvider(params Params, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if params.EntryRSI <= 0 || params.ExitRSI <= params.EntryRSI {
		params = DefaultParams()
	}
	return &Provider{params: params, logger: logger}
}

// LongEntry 在超卖区给出限价买入信号。
func (p *Provider) LongEntry(req signal.Request) *signal.Intent {
	rsi := req.Indicators.RSI
	if math.IsNaN(rsi) || !req.Quote.Ready() {
		return nil
	}

	if rsi <= p.params.EntryRSI && p.trendAllows(req, true) {
		return &signal.Intent{
			Kind:        signal.KindSignal,
			Shape:       exchange.ShapeLimit,
			Price:       req.Quote.BidPrice,
			Description: fmt.Sprintf("RSI %.2f 低于入场阈值 %.2f", rsi, p.params.EntryRSI),
			Stage:       2,
		}
	}

	intent := &signal.Intent{Kind: signal.KindWait}
	if rsi <= p.params.EntryRSI+10 {
		intent.Stage = 1
	}
	return intent
}

// LongExit 在超买区给出限价卖出信号，跌破止损线时给出止损单。
func (p *Provider) LongExit(req signal.Request) *signal.Intent {
	rsi := req.Indicators.RSI
	if math.IsNaN(rsi) || !req.Quote.Ready() {
		return nil
	}

	if rsi >= p.params.ExitRSI {
		return &signal.Intent{
			Kind:        signal.KindSignal,
			Shape:       exchange.ShapeLimit,
			Price:       req.Quote.AskPrice,
			Description: fmt.Sprintf("RSI %.2f 高于出场阈值 %.2f", rsi, p.params.ExitRSI),
		}
	}

	if req.Leg.BuyPrice.IsPositive() {
		stop := req.Leg.BuyPrice.Mul(decimal.NewFromFloat(1 - p.params.StopPercent))
		if req.Quote.LastPrice.LessThanOrEqual(stop) {
			return &signal.Intent{
				Kind:        signal.KindStopLoss,
				Shape:       exchange.ShapeStopLimit,
				Price:       stop,
				StopPrice:   stop,
				Description: fmt.Sprintf("价格触及止损线 %s", stop.String()),
			}
		}
	}

	return &signal.Intent{Kind: signal.KindWait}
}

// ShortEntry 在超买区给出做空入场信号（买入意图，执行时反向）。
func (p *Provider) ShortEntry(req signal.Request) *signal.Intent {
	rsi := req.Indicators.RSI
	if math.IsNaN(rsi) || !req.Quote.Ready() {
		return nil
	}

	if rsi >= p.params.ExitRSI && p.trendAllows(req, false) {
		return &signal.Intent{
			Kind:        signal.KindSignal,
			Shape:       exchange.ShapeLimit,
			Price:       req.Quote.AskPrice,
			Description: fmt.Sprintf("RSI %.2f 高于做空阈值 %.2f", rsi, p.params.ExitRSI),
			Stage:       2,
		}
	}

	return &signal.Intent{Kind: signal.KindWait}
}

// trendAllows 用15m趋势均线过滤逆势入场：做多要求最新价不低于趋势线，
// 做空相反。趋势数据缺失时不过滤。
func (p *Provider) trendAllows(req signal.Request, long bool) bool {
	trend := req.Indicators.TrendEMA15M
	if math.IsNaN(trend) || trend <= 0 {
		return true
	}
	level := decimal.NewFromFloat(trend)
	if long {
		return req.Quote.LastPrice.GreaterThanOrEqual(level)
	}
	return req.Quote.LastPrice.LessThanOrEqual(level)
}

// ShortExit 在超卖区给出做空平仓信号，价格反向突破时给出止损单。
func (p *Provider) ShortExit(req signal.Request) *signal.Intent {
	rsi := req.Indicators.RSI
	if math.IsNaN(rsi) || !req.Quote.Ready() {
		return nil
	}

	if rsi <= p.params.EntryRSI {
		return &signal.Intent{
			Kind:        signal.KindSignal,
			Shape:       exchange.ShapeLimit,
			Price:       req.Quote.BidPrice,
			Description: fmt.Sprintf("RSI %.2f 低于做空平仓阈值 %.2f", rsi, p.params.EntryRSI),
		}
	}

	if req.Leg.BuyPrice.IsPositive() {
		stop := req.Leg.BuyPrice.Mul(decimal.NewFromFloat(1 + p.params.StopPercent))
		if req.Quote.LastPrice.GreaterThanOrEqual(stop) {
			return &signal.Intent{
				Kind:        signal.KindStopLoss,
				Shape:       exchange.ShapeStopLimit,
				Price:       stop,
				StopPrice:   stop,
				Description: fmt.Sprintf("价格反向触及止损线 %s", stop.String()),
			}
		}
	}

	return &signal.Intent{Kind: signal.KindWait}
}
