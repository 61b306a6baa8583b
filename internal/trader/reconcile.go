package trader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pairtrader/internal/config"
	"pairtrader/internal/feed"
	"pairtrader/internal/position"
)

// reconcile 对账单个持仓的在途委托。
// 实盘依据账户数据流的执行回报判定成交；模拟盘依据最新价是否穿越挂单价判定。
// 成交结清后完成持仓轮转、记录与借贷归还。
func (t *Trader) reconcile(ctx context.Context, leg *position.Leg) {
	role := leg.ActiveSide()

	var (
		done   bool
		filled decimal.Decimal
	)

	if t.cfg.RunType == config.RunReal {
		if t.buffer == nil {
			return
		}
		report, ok := t.buffer.LatestReport(t.pair.Symbol())
		if !ok {
			return
		}
		// 陌生委托号的回报直接丢弃，防止账户上的其他委托污染持仓簿记。
		if !containsID(leg.OutstandingOrderIDs(), report.OrderID) {
			return
		}
		done, filled = t.reconcileLive(leg, role, report)
	} else {
		if leg.SideFor(role).State != position.StatePlaced {
			return
		}
		done, filled = t.reconcileSimulated(leg, role)
	}

	if done {
		t.finishTrade(ctx, leg, role, filled)
	}
}

func (t *Trader) reconcileLive(leg *position.Leg, role position.SideRole, report feed.ExecutionReport) (bool, decimal.Decimal) {
	if report.Side != venueSide(leg.Type, role) {
		return false, decimal.Zero
	}
	side := leg.SideFor(role)

	if role == position.SideBuy {
		if report.LastPrice.IsPositive() {
			leg.BuyPrice = report.LastPrice
		}

		switch report.Status {
		case feed.StatusPartiallyFilled:
			if !side.Locked() {
				side.State = position.StateLocked
				t.logger.Warn("买入部分成交，锁定该侧等待最终回报",
					zap.String("order_id", report.OrderID),
				)
			}
		case feed.StatusFilled:
			// 成交回报可能先于钱包余额到账，余额未覆盖成交量时推迟轮转。
			asset := strings.ToUpper(t.pair.BaseAsset)
			target := report.Quantity
			if leg.Type == position.Short {
				asset = strings.ToUpper(t.pair.QuoteAsset)
				target = report.Quantity.Mul(report.LastPrice)
			}
			if t.wallet.BalanceFor(asset).Free.LessThan(target) {
				t.logger.Debug("买入已成交，等待钱包余额同步",
					zap.String("order_id", report.OrderID),
				)
				return false, decimal.Zero
			}

			if leg.Type == position.Short {
				return true, report.Quantity
			}
			return true, t.wallet.BalanceFor(strings.ToUpper(t.pair.BaseAsset)).Free
		}
		return false, decimal.Zero
	}

	switch report.Status {
	case feed.StatusPartiallyFilled:
		if !side.Locked() {
			side.State = position.StateLocked
			t.logger.Warn("卖出部分成交，锁定该侧等待最终回报",
				zap.String("order_id", report.OrderID),
			)
		}
	case feed.StatusFilled:
		if report.LastPrice.IsPositive() {
			leg.SellPrice = report.LastPrice
		}
		return true, decimal.Zero
	}
	return false, decimal.Zero
}

// reconcileSimulated 在模拟盘中以最新价穿越挂单价作为成交判据，做空方向反转。
func (t *Trader) reconcileSimulated(leg *position.Leg, role position.SideRole) (bool, decimal.Decimal) {
	last := t.quote.LastPrice
	if !last.IsPositive() {
		return false, decimal.Zero
	}

	if role == position.SideBuy {
		if !leg.BuyPrice.IsPositive() {
			return false, decimal.Zero
		}
		crossed := last.LessThanOrEqual(leg.BuyPrice)
		if leg.Type == position.Short {
			crossed = last.GreaterThanOrEqual(leg.BuyPrice)
		}
		if crossed {
			return true, leg.TokensHolding
		}
		return false, decimal.Zero
	}

	if !leg.SellPrice.IsPositive() {
		return false, decimal.Zero
	}
	crossed := last.GreaterThanOrEqual(leg.SellPrice)
	if leg.Type == position.Short {
		crossed = last.LessThanOrEqual(leg.SellPrice)
	}
	return crossed, decimal.Zero
}

func (t *Trader) finishTrade(ctx context.Context, leg *position.Leg, role position.SideRole, filled decimal.Decimal) {
	now := time.Now()

	if role == position.SideBuy {
		leg.RotateAfterBuy(filled, now)
		t.logger.Info("买入委托已结清",
			zap.String("type", string(leg.Type)),
			zap.String("tokens", filled.String()),
		)
		t.recordEvent(ctx, "BUY_FILLED", fmt.Sprintf("%s 买入结清，持有 %s", leg.Type, filled))
		return
	}

	// 杠杆做空在结清卖出前先归还借贷。
	if t.cfg.MarketType == config.MarketMargin && t.cfg.RunType == config.RunReal && leg.LoanCost.IsPositive() {
		asset := strings.ToUpper(t.pair.BaseAsset)
		if err := t.client.RepayLoan(ctx, asset, leg.LoanCost); err != nil {
			t.logger.Error("归还借贷失败",
				zap.String("loan_id", leg.LoanID),
				zap.Error(err),
			)
		} else {
			leg.LoanCost = decimal.Zero
			leg.LoanID = ""
		}
	}

	outcome := position.Outcome(
		leg.BuyPrice,
		leg.SellPrice,
		leg.TokensHolding,
		t.commission,
		t.pair.IsFiat && t.pair.InverseFiat,
	)

	record := position.TradeRecord{
		Symbol:    t.pair.Symbol(),
		Type:      leg.Type,
		BuyPrice:  leg.BuyPrice,
		BuyTime:   leg.BuyTime,
		SellPrice: leg.SellPrice,
		SellTime:  now,
		Outcome:   outcome,
		BuyNote:   leg.Buy.Description,
		SellNote:  leg.Sell.Description,
	}
	if t.trades != nil {
		if err := t.trades.Append(ctx, record); err != nil {
			t.logger.Error("写入成交记录失败", zap.Error(err))
		}
	}

	leg.RotateAfterSell(t.maxCapital, now)
	t.logger.Info("卖出委托已结清",
		zap.String("type", string(leg.Type)),
		zap.String("outcome", outcome.String()),
	)
	t.recordEvent(ctx, "SELL_FILLED", fmt.Sprintf("%s 卖出结清，损益 %s", leg.Type, outcome))
}

func containsID(ids []string, id string) bool {
	if id == "" {
		return false
	}
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
