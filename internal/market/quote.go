package market

import (
	"errors"

	"github.com/shopspring/decimal"

	"pairtrader/internal/exchange"
)

// Quote 保存每轮循环整体覆写的市场价格。
type Quote struct {
	LastPrice decimal.Decimal
	AskPrice  decimal.Decimal
	BidPrice  decimal.Decimal
}

// ErrIncompleteSnapshot 表示快照缺少K线或盘口数据。
var ErrIncompleteSnapshot = errors.New("market: 快照缺少K线或盘口数据")

// QuoteFromSnapshot 从市场快照提取最新价、买一价与卖一价。
func QuoteFromSnapshot(snapshot exchange.MarketSnapshot) (Quote, error) {
	if len(snapshot.Candles) == 0 || len(snapshot.OrderBook.Bids) == 0 || len(snapshot.OrderBook.Asks) == 0 {
		return Quote{}, ErrIncompleteSnapshot
	}

	last := snapshot.Candles[len(snapshot.Candles)-1].Close

	return Quote{
		LastPrice: decimal.NewFromFloat(last),
		AskPrice:  decimal.NewFromFloat(snapshot.OrderBook.Asks[0].Price),
		BidPrice:  decimal.NewFromFloat(snapshot.OrderBook.Bids[0].Price),
	}, nil
}

// Ready 表示报价已经具备有效价格。
func (q Quote) Ready() bool {
	return q.LastPrice.IsPositive() && q.AskPrice.IsPositive() && q.BidPrice.IsPositive()
}
