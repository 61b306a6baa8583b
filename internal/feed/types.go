package feed

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus 为交易所回报中的委托状态。
type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusExpired         OrderStatus = "EXPIRED"
)

// ExecutionReport 为单笔委托的执行回报。
type ExecutionReport struct {
	Symbol    string
	OrderID   string
	Side      string // BUY | SELL
	Status    OrderStatus
	LastPrice decimal.Decimal
	Quantity  decimal.Decimal
	EventTime time.Time
}

// Balance 表示单个资产的可用与冻结余额。
type Balance struct {
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// AccountUpdate 为账户余额快照事件。
type AccountUpdate struct {
	Balances  map[string]Balance
	EventTime time.Time
}

// BalanceFor 返回指定资产的余额，缺失时为零值。
func (u AccountUpdate) BalanceFor(asset string) Balance {
	if u.Balances == nil {
		return Balance{}
	}
	return u.Balances[asset]
}
