package exchange

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// Timeframe1m 为交易循环使用的K线周期。
	Timeframe1m = "1m"
	// Timeframe15m 为信号过滤周期。
	Timeframe15m = "15m"
)

// 订单方向与形态，取值与交易所一致。
const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	ShapeMarket    = "MARKET"
	ShapeLimit     = "LIMIT"
	ShapeStopLimit = "STOP_LOSS_LIMIT"
)

// Candle 代表单根K线。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// OrderBookLevel 表示盘口档位。
type OrderBookLevel struct {
	Price  float64
	Amount float64
}

// OrderBookSnapshot 为订单簿快照。
type OrderBookSnapshot struct {
	Symbol    string
	Bids      []OrderBookLevel
	Asks      []OrderBookLevel
	Timestamp time.Time
	Nonce     int64
}

// MarketSnapshot 聚合K线与盘口数据。
type MarketSnapshot struct {
	Symbol      string
	Candles     []Candle
	Candles15M  []Candle
	OrderBook   OrderBookSnapshot
	RetrievedAt time.Time
}

// SnapshotRequest 控制一次快照采集的参数。
type SnapshotRequest struct {
	Limit          int
	Limit15M       int
	OrderBookDepth int
}

// DefaultSnapshotRequest 返回默认快照参数。
func DefaultSnapshotRequest() SnapshotRequest {
	return SnapshotRequest{
		Limit:          200,
		Limit15M:       100,
		OrderBookDepth: 20,
	}
}

// OrderRequest 描述一笔待提交的委托。
type OrderRequest struct {
	MarketType string
	Symbol     string
	Side       string
	Shape      string
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	StopPrice  decimal.Decimal
}

// OrderResult 为委托提交结果。
type OrderResult struct {
	OrderID   string
	Price     decimal.Decimal
	FillPrice decimal.Decimal
	Status    string
}

// LoanResult 为借贷申请结果。
type LoanResult struct {
	LoanID string
	Amount decimal.Decimal
}

// MarginAsset 描述保证金账户内单个资产的负债情况。
type MarginAsset struct {
	Asset    string
	Free     decimal.Decimal
	Borrowed decimal.Decimal
	Interest decimal.Decimal
}
