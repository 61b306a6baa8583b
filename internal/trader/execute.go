package trader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pairtrader/internal/config"
	"pairtrader/internal/exchange"
	"pairtrader/internal/position"
	"pairtrader/internal/signal"
)

// placeOrder 先在持仓副本上完成全部改动，交易所调用成功后整体提交，
// 任何一步失败都不会留下半更新的簿记。
func (t *Trader) placeOrder(ctx context.Context, leg *position.Leg, role position.SideRole, intent *signal.Intent) error {
	staged := leg.Clone()

	quantity, err := t.orderQuantity(ctx, staged, role)
	if err != nil {
		return err
	}
	quantity = quantizeQuantity(quantity, t.pair.LotSize)
	if !quantity.IsPositive() {
		return fmt.Errorf("trader: 委托数量非正: %s", quantity)
	}

	// 替换委托前先撤销该侧的旧委托，撤单失败不阻断重下。
	if t.cfg.RunType == config.RunReal {
		if existing := staged.SideFor(role).OrderID; existing != "" {
			if err := t.client.CancelOrder(ctx, t.cfg.MarketType, t.pair.Symbol(), existing); err != nil {
				t.logger.Warn("撤销旧委托失败",
					zap.String("order_id", existing),
					zap.Error(err),
				)
			}
		}
	}

	if t.cfg.RunType == config.RunTest {
		t.placeSimulated(staged, role, intent, quantity)
		*leg = *staged
		return nil
	}

	// 杠杆做空开仓前先申请借贷，下单失败时尽力归还避免裸借贷。
	if staged.Type == position.Short && role == position.SideBuy {
		asset := strings.ToUpper(t.pair.BaseAsset)
		loan, err := t.client.BorrowLoan(ctx, asset, quantity)
		if err != nil {
			return fmt.Errorf("trader: 申请借贷失败: %w", err)
		}
		staged.LoanID = loan.LoanID
		staged.LoanCost = quantity
	}

	result, err := t.client.PlaceOrder(ctx, exchange.OrderRequest{
		MarketType: t.cfg.MarketType,
		Symbol:     t.pair.Symbol(),
		Side:       venueSide(staged.Type, role),
		Shape:      intent.Shape,
		Quantity:   quantity,
		Price:      intent.Price,
		StopPrice:  intent.StopPrice,
	})
	if err != nil {
		if staged.Type == position.Short && role == position.SideBuy && staged.LoanCost.IsPositive() {
			asset := strings.ToUpper(t.pair.BaseAsset)
			if repayErr := t.client.RepayLoan(ctx, asset, staged.LoanCost); repayErr != nil {
				t.logger.Error("下单失败后归还借贷失败",
					zap.String("loan_id", staged.LoanID),
					zap.Error(repayErr),
				)
			}
		}
		return fmt.Errorf("trader: 提交委托失败: %w", err)
	}

	price := result.Price
	if intent.Shape == exchange.ShapeMarket {
		price = result.FillPrice
	}
	if !price.IsPositive() {
		price = intent.Price
	}

	side := staged.SideFor(role)
	side.OrderID = result.OrderID
	side.Kind = position.OrderKind(intent.Kind)
	side.State = position.StatePlaced
	side.Description = intent.Description
	if role == position.SideBuy {
		staged.BuyPrice = price
	} else {
		staged.SellPrice = price
	}

	*leg = *staged
	t.logger.Info("委托已提交",
		zap.String("type", string(leg.Type)),
		zap.String("side", string(role)),
		zap.String("kind", string(intent.Kind)),
		zap.String("shape", intent.Shape),
		zap.String("quantity", quantity.String()),
		zap.String("price", price.String()),
		zap.String("order_id", result.OrderID),
	)
	t.recordEvent(ctx, "ORDER_PLACED",
		fmt.Sprintf("%s %s %s 数量 %s 价格 %s", leg.Type, role, intent.Shape, quantity, price))
	return nil
}

// placeSimulated 在模拟盘登记委托：市价意图按最新价立刻锚定。
func (t *Trader) placeSimulated(leg *position.Leg, role position.SideRole, intent *signal.Intent, quantity decimal.Decimal) {
	price := intent.Price
	if intent.Shape == exchange.ShapeMarket || !price.IsPositive() {
		price = t.quote.LastPrice
	}

	side := leg.SideFor(role)
	side.Kind = position.OrderKind(intent.Kind)
	side.State = position.StatePlaced
	side.Description = intent.Description

	if role == position.SideBuy {
		leg.BuyPrice = price
		leg.TokensHolding = quantity
	} else {
		leg.SellPrice = price
	}

	t.logger.Info("模拟委托已登记",
		zap.String("type", string(leg.Type)),
		zap.String("side", string(role)),
		zap.String("quantity", quantity.String()),
		zap.String("price", price.String()),
	)
}

// orderQuantity 计算委托数量：
// 买入侧用剩余资金换算，卖出侧优先以实际钱包余额为准；
// 杠杆做空的平仓数量为借贷本息之和。
func (t *Trader) orderQuantity(ctx context.Context, leg *position.Leg, role position.SideRole) (decimal.Decimal, error) {
	if role == position.SideBuy {
		if t.pair.IsFiat {
			return leg.CurrencyLeft, nil
		}
		if !t.quote.BidPrice.IsPositive() {
			return decimal.Zero, errors.New("trader: 买一价无效，无法换算买入数量")
		}
		return leg.CurrencyLeft.Div(t.quote.BidPrice), nil
	}

	if t.pair.IsFiat {
		return leg.TokensHolding.Mul(t.quote.BidPrice), nil
	}

	if leg.Type == position.Short {
		if t.cfg.RunType == config.RunReal {
			assets, err := t.client.MarginAccount(ctx)
			if err != nil {
				return decimal.Zero, fmt.Errorf("trader: 查询保证金账户失败: %w", err)
			}
			for _, asset := range assets {
				if strings.EqualFold(asset.Asset, t.pair.BaseAsset) {
					return asset.Borrowed.Add(asset.Interest), nil
				}
			}
			return decimal.Zero, fmt.Errorf("trader: 保证金账户缺少资产 %s", t.pair.BaseAsset)
		}
		return leg.TokensHolding, nil
	}

	if t.cfg.RunType == config.RunReal {
		return t.wallet.BalanceFor(strings.ToUpper(t.pair.BaseAsset)).Free, nil
	}
	return leg.TokensHolding, nil
}

// cancelSide 撤销该侧在交易所的委托并清除本地委托号。
func (t *Trader) cancelSide(ctx context.Context, side *position.Side) {
	if side.OrderID == "" {
		return
	}
	if t.cfg.RunType == config.RunReal {
		if err := t.client.CancelOrder(ctx, t.cfg.MarketType, t.pair.Symbol(), side.OrderID); err != nil {
			t.logger.Warn("撤销委托失败",
				zap.String("order_id", side.OrderID),
				zap.Error(err),
			)
		}
	}
	side.OrderID = ""
}
