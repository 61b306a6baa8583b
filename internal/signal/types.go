package signal

import (
	"github.com/shopspring/decimal"

	"pairtrader/internal/exchange"
	"pairtrader/internal/indicator"
	"pairtrader/internal/market"
	"pairtrader/internal/position"
)

// Kind 表示信号给出的委托类型。
type Kind string

const (
	KindWait     Kind = "WAIT"
	KindSignal   Kind = "SIGNAL"
	KindStopLoss Kind = "STOP_LOSS"
)

// Intent 是信号提供方返回的委托意图。
// Price/StopPrice 为零值时表示市价形态；Stage 仅用于观测。
type Intent struct {
	Kind        Kind
	Shape       string // exchange.ShapeMarket | ShapeLimit | ShapeStopLimit
	Price       decimal.Decimal
	StopPrice   decimal.Decimal
	Description string
	Stage       int
}

// HasPrice 表示意图带有限价。
func (i Intent) HasPrice() bool {
	return i.Price.IsPositive()
}

// Request 为一次信号评估的输入。
type Request struct {
	Leg        *position.Leg
	Type       position.Type
	Candles    []exchange.Candle
	Indicators indicator.Snapshot
	Quote      market.Quote
	Symbol     string
	IsBTCBase  bool
}

// Provider 为外部信号提供方的契约。
// 返回 nil 表示本轮没有意见，持仓保持不变。
type Provider interface {
	LongEntry(req Request) *Intent
	LongExit(req Request) *Intent
	ShortEntry(req Request) *Intent
	ShortExit(req Request) *Intent
}
