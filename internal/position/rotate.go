package position

import (
	"time"

	"github.com/shopspring/decimal"
)

// RotateAfterBuy 在买入完全成交后把持仓切换到持有/寻找出场状态。
func (l *Leg) RotateAfterBuy(filled decimal.Decimal, at time.Time) {
	l.CurrencyLeft = decimal.Zero
	l.TokensHolding = filled
	l.BuyTime = at

	l.Buy.OrderID = ""
	l.Buy.State = StateNone
	l.Buy.Kind = KindUnarmed
	l.Sell.Kind = KindWait
}

// RotateAfterSell 在卖出完全成交后复位两侧，恢复可用资金，重新等待入场。
func (l *Leg) RotateAfterSell(maxCapital decimal.Decimal, at time.Time) {
	l.SellTime = at
	l.MarketStatus = MarketCompleteTrade

	l.BuyPrice = decimal.Zero
	l.SellPrice = decimal.Zero
	l.CurrencyLeft = maxCapital
	l.TokensHolding = decimal.Zero

	l.Sell.OrderID = ""
	l.Sell.Description = ""
	l.Sell.State = StateNone
	l.Sell.Kind = KindUnarmed
	l.Buy.Description = ""
	l.Buy.Kind = KindWait
}

// Outcome 计算一次往返的已实现损益（计价资产单位）。
// 手续费按固定费率从成交数量中扣除；反向法币对的损益按卖价折算回基准资产。
func Outcome(buyPrice, sellPrice, tokens, commissionRate decimal.Decimal, inverseFiat bool) decimal.Decimal {
	diff := sellPrice.Sub(buyPrice)
	netTokens := tokens.Sub(tokens.Mul(commissionRate))

	var outcome decimal.Decimal
	if inverseFiat {
		if sellPrice.IsZero() {
			return decimal.Zero
		}
		outcome = diff.Mul(netTokens.Div(sellPrice))
	} else {
		outcome = diff.Mul(netTokens)
	}

	return outcome.Round(8)
}
