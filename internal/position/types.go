package position

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type 表示持仓方向：LONG 持有现货，SHORT 为借贷做空。
type Type string

const (
	Long  Type = "LONG"
	Short Type = "SHORT"
)

// OrderKind 表示某一侧的委托类型。
// Unarmed 表示该侧尚未启用（例如买入完成前的卖出侧）；
// Wait 表示启用但处于信号监控状态，没有挂单。
type OrderKind string

const (
	KindUnarmed  OrderKind = ""
	KindWait     OrderKind = "WAIT"
	KindSignal   OrderKind = "SIGNAL"
	KindStopLoss OrderKind = "STOP_LOSS"
)

// OrderState 表示某一侧委托的状态。
// Locked 在部分成交后冻结该侧，直到交易所给出最终结果；
// ForcePreventBuy 仅用于买入侧，是停机请求设置的闸门。
type OrderState string

const (
	StateNone            OrderState = ""
	StatePlaced          OrderState = "PLACED"
	StateLocked          OrderState = "LOCKED"
	StateForcePreventBuy OrderState = "FORCE_PREVENT_BUY"
)

// MarketStatus 为整个持仓的生命周期标记。
type MarketStatus string

const (
	MarketNone          MarketStatus = ""
	MarketTrading       MarketStatus = "TRADING"
	MarketCompleteTrade MarketStatus = "COMPLETE_TRADE"
)

// SideRole 区分买卖两侧。
type SideRole string

const (
	SideBuy  SideRole = "BUY"
	SideSell SideRole = "SELL"
)

// Side 是单侧（买或卖）的委托簿记。
type Side struct {
	OrderID     string
	Kind        OrderKind
	State       OrderState
	Description string
}

// Armed 表示该侧已启用（WAIT 或更进一步）。
func (s Side) Armed() bool {
	return s.Kind != KindUnarmed
}

// Locked 表示该侧因部分成交被冻结。
func (s Side) Locked() bool {
	return s.State == StateLocked
}

// Leg 是单个持仓方向（LONG 或 SHORT）的完整簿记。
// 由交易循环独占写入，不做内部加锁。
type Leg struct {
	Type      Type
	CanOrder  bool
	BuyPrice  decimal.Decimal
	SellPrice decimal.Decimal
	BuyTime   time.Time
	SellTime  time.Time

	MarketStatus  MarketStatus
	CurrencyLeft  decimal.Decimal
	TokensHolding decimal.Decimal
	CurrentStage  int

	Buy  Side
	Sell Side

	// 杠杆做空附加字段。
	LoanCost decimal.Decimal
	LoanID   string
}

// NewLeg 返回处于等待入场状态的初始持仓。
func NewLeg(t Type, maxCapital decimal.Decimal) *Leg {
	return &Leg{
		Type:         t,
		CanOrder:     true,
		CurrencyLeft: maxCapital,
		Buy:          Side{Kind: KindWait},
		Sell:         Side{},
	}
}

// SideFor 返回指定角色的侧。
func (l *Leg) SideFor(role SideRole) *Side {
	if role == SideBuy {
		return &l.Buy
	}
	return &l.Sell
}

// ActiveSide 返回本轮应检查的侧：卖出侧未启用时查买入侧，否则查卖出侧。
// 持仓总是先结清买入、再结清卖出，二者不会同时在途。
func (l *Leg) ActiveSide() SideRole {
	if !l.Sell.Armed() {
		return SideBuy
	}
	return SideSell
}

// OutstandingOrderIDs 返回当前登记在该持仓上的全部委托号。
func (l *Leg) OutstandingOrderIDs() []string {
	ids := make([]string, 0, 2)
	if l.Buy.OrderID != "" {
		ids = append(ids, l.Buy.OrderID)
	}
	if l.Sell.OrderID != "" {
		ids = append(ids, l.Sell.OrderID)
	}
	return ids
}

// Clone 返回持仓的浅拷贝，用于执行器的先改后提交。
func (l *Leg) Clone() *Leg {
	copied := *l
	return &copied
}

// TradeRecord 记录一次完整的买卖往返，追加后不再修改。
type TradeRecord struct {
	Symbol    string
	Type      Type
	BuyPrice  decimal.Decimal
	BuyTime   time.Time
	SellPrice decimal.Decimal
	SellTime  time.Time
	Outcome   decimal.Decimal
	BuyNote   string
	SellNote  string
}
