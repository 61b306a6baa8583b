package exchange

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MarketDataService 聚合K线及盘口数据获取。
type MarketDataService struct {
	client *Client
	symbol string
	logger *zap.Logger
}

// NewMarketDataService 创建市场数据服务。
func NewMarketDataService(client *Client, symbol string, logger *zap.Logger) *MarketDataService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarketDataService{
		client: client,
		symbol: symbol,
		logger: logger,
	}
}

// Symbol 返回交易对符号。
func (s *MarketDataService) Symbol() string {
	return s.symbol
}

// GetSnapshot 并行拉取K线与订单簿，返回市场数据快照。
func (s *MarketDataService) GetSnapshot(ctx context.Context, req SnapshotRequest) (MarketSnapshot, error) {
	defaultReq := DefaultSnapshotRequest()
	if req.Limit <= 0 {
		req.Limit = defaultReq.Limit
	}
	if req.Limit15M <= 0 {
		req.Limit15M = defaultReq.Limit15M
	}
	if req.OrderBookDepth <= 0 {
		req.OrderBookDepth = defaultReq.OrderBookDepth
	}

	var (
		candles    []Candle
		candles15M []Candle
		orderBook  OrderBookSnapshot
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		data, err := s.client.FetchCandles(groupCtx, s.symbol, Timeframe1m, int64(req.Limit))
		if err != nil {
			return err
		}
		candles = data
		return nil
	})

	group.Go(func() error {
		data, err := s.client.FetchCandles(groupCtx, s.symbol, Timeframe15m, int64(req.Limit15M))
		if err != nil {
			return err
		}
		candles15M = data
		return nil
	})

	group.Go(func() error {
		book, err := s.client.FetchOrderBook(groupCtx, s.symbol, int64(req.OrderBookDepth))
		if err != nil {
			return err
		}
		orderBook = book
		return nil
	})

	if err := group.Wait(); err != nil {
		return MarketSnapshot{}, err
	}

	snapshot := MarketSnapshot{
		Symbol:      s.symbol,
		Candles:     candles,
		Candles15M:  candles15M,
		OrderBook:   orderBook,
		RetrievedAt: time.Now().UTC(),
	}

	s.logger.Debug("市场数据快照获取完成",
		zap.String("symbol", snapshot.Symbol),
		zap.Time("retrieved_at", snapshot.RetrievedAt),
		zap.Int("candle_count", len(snapshot.Candles)),
		zap.Int("order_book_bids", len(snapshot.OrderBook.Bids)),
		zap.Int("order_book_asks", len(snapshot.OrderBook.Asks)),
	)

	return snapshot, nil
}
