package trader

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"pairtrader/internal/config"
	"pairtrader/internal/exchange"
	"pairtrader/internal/position"
	"pairtrader/internal/signal"
)

// manage 对单个持仓做一轮决策：先管卖出侧（持有中），再管买入侧（等待入场）。
// 两侧互斥：卖出侧一旦启用，买入侧必然已结清。
func (t *Trader) manage(ctx context.Context, leg *position.Leg) {
	req := signal.Request{
		Leg:        leg,
		Type:       leg.Type,
		Candles:    t.candles,
		Indicators: t.indicators,
		Quote:      t.quote,
		Symbol:     t.pair.Symbol(),
		IsBTCBase:  strings.EqualFold(t.pair.QuoteAsset, "BTC"),
	}

	if leg.Sell.Armed() {
		if leg.Sell.Locked() {
			return
		}

		var intent *signal.Intent
		if leg.Type == position.Long {
			intent = t.provider.LongExit(req)
		} else {
			intent = t.provider.ShortExit(req)
		}
		if intent == nil {
			return
		}
		t.applyIntent(ctx, leg, position.SideSell, intent)
		return
	}

	if !leg.Buy.Armed() || leg.Buy.Locked() || leg.Buy.State == position.StateForcePreventBuy {
		return
	}

	var intent *signal.Intent
	if leg.Type == position.Long {
		intent = t.provider.LongEntry(req)
	} else {
		intent = t.provider.ShortEntry(req)
	}
	if intent == nil {
		return
	}

	if intent.Stage != 0 && intent.Stage != leg.CurrentStage {
		leg.CurrentStage = intent.Stage
		t.logger.Info("入场信号阶段变化",
			zap.String("type", string(leg.Type)),
			zap.Int("stage", intent.Stage),
		)
	}

	t.applyIntent(ctx, leg, position.SideBuy, intent)
}

// applyIntent 把信号意图落到持仓上：
// 价格先截断到交易所精度，与当前挂单价不一致（或模拟盘市价意图）时视为替换；
// 委托类型或价格没有变化时保持现状，避免无意义的撤换单。
func (t *Trader) applyIntent(ctx context.Context, leg *position.Leg, role position.SideRole, intent *signal.Intent) {
	side := leg.SideFor(role)
	update := false

	if intent.Kind != signal.KindWait {
		side.Description = intent.Description

		if t.cfg.RunType == config.RunTest && intent.Shape == exchange.ShapeMarket {
			// 模拟盘的市价意图没有可比挂单价，总是重下。
			update = true
		} else if intent.HasPrice() {
			intent.Price = quantizePrice(intent.Price, t.pair.TickSize)
			if intent.StopPrice.IsPositive() {
				intent.StopPrice = quantizePrice(intent.StopPrice, t.pair.TickSize)
			}

			current := leg.BuyPrice
			if role == position.SideSell {
				current = leg.SellPrice
			}
			if !intent.Price.Equal(current) {
				update = true
			}
		}
	}

	if side.Kind == position.OrderKind(intent.Kind) && !update {
		return
	}

	switch {
	case intent.Kind == signal.KindSignal,
		intent.Kind == signal.KindStopLoss && role == position.SideSell:
		if err := t.placeOrder(ctx, leg, role, intent); err != nil {
			t.logger.Error("提交委托失败",
				zap.String("side", string(role)),
				zap.String("kind", string(intent.Kind)),
				zap.Error(err),
			)
		}
	case intent.Kind == signal.KindWait:
		t.cancelSide(ctx, side)
		side.State = position.StateNone
		side.Kind = position.KindWait
	default:
		t.logger.Error("不支持的委托类型，跳过",
			zap.String("side", string(role)),
			zap.String("kind", string(intent.Kind)),
		)
	}
}
