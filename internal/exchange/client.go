package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pairtrader/internal/config"
)

// Client 负责与交易所交互并实现重试机制。
// 行情类调用带指数退避重试；下单与撤单只尝试一次，失败交由下一轮循环自然重试。
type Client struct {
	cfg      config.ExchangeConfig
	logger   *zap.Logger
	exchange *ccxt.Binance

	marketsMu     sync.Mutex
	marketsLoaded bool
}

// NewClient 构造 Binance 现货/杠杆客户端。
func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
		},
	}

	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}

	ex := ccxt.NewBinance(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return &Client{
		cfg:      cfg,
		logger:   logger,
		exchange: ex,
	}, nil
}

// FetchCandles 获取指定周期的K线数据。
func (c *Client) FetchCandles(ctx context.Context, symbol, timeframe string, limit int64) ([]Candle, error) {
	if limit <= 0 {
		limit = 1
	}

	var raw []ccxt.OHLCV

	err := c.callWithRetry(ctx, fmt.Sprintf("fetch_ohlcv_%s", timeframe), func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		result, err := c.exchange.FetchOHLCV(
			symbol,
			ccxt.WithFetchOHLCVTimeframe(timeframe),
			ccxt.WithFetchOHLCVLimit(limit),
		)
		if err != nil {
			return err
		}

		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(raw))
	for _, item := range raw {
		ts := time.UnixMilli(item.Timestamp).UTC()
		candles = append(candles, Candle{
			Timestamp: ts,
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		})
	}

	return candles, nil
}

// FetchOrderBook 获取订单簿快照。
func (c *Client) FetchOrderBook(ctx context.Context, symbol string, depth int64) (OrderBookSnapshot, error) {
	if depth <= 0 {
		depth = 20
	}

	var raw ccxt.OrderBook
	err := c.callWithRetry(ctx, "fetch_order_book", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		orderBook, err := c.exchange.FetchOrderBook(
			symbol,
			ccxt.WithFetchOrderBookLimit(depth),
		)
		if err != nil {
			return err
		}

		raw = orderBook
		return nil
	})
	if err != nil {
		return OrderBookSnapshot{}, err
	}

	return convertOrderBook(symbol, raw), nil
}

// PlaceOrder 提交一笔委托，不做自动重试。
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return OrderResult{}, ctxErr
	}
	if err := c.ensureMarketsLoaded(ctx); err != nil {
		return OrderResult{}, err
	}

	side := strings.ToLower(req.Side)
	quantity := req.Quantity.InexactFloat64()
	params := map[string]interface{}{}
	if req.MarketType == config.MarketMargin {
		params["marginMode"] = "cross"
	}

	var (
		raw ccxt.Order
		err error
	)

	switch req.Shape {
	case ShapeMarket:
		raw, err = c.exchange.CreateMarketOrder(req.Symbol, side, quantity,
			ccxt.WithCreateMarketOrderParams(params))
	case ShapeLimit:
		params["timeInForce"] = "GTC"
		raw, err = c.exchange.CreateLimitOrder(req.Symbol, side, quantity, req.Price.InexactFloat64(),
			ccxt.WithCreateLimitOrderParams(params))
	case ShapeStopLimit:
		params["timeInForce"] = "GTC"
		params["stopPrice"] = req.StopPrice.InexactFloat64()
		raw, err = c.exchange.CreateOrder(req.Symbol, "limit", side, quantity,
			ccxt.WithCreateOrderPrice(req.Price.InexactFloat64()),
			ccxt.WithCreateOrderParams(params))
	default:
		return OrderResult{}, fmt.Errorf("exchange: 不支持的委托形态 %q", req.Shape)
	}
	if err != nil {
		normalized, _ := c.classifyError(err)
		return OrderResult{}, fmt.Errorf("exchange: 下单失败: %w", normalized)
	}

	result := OrderResult{
		OrderID: derefString(raw.Id),
		Status:  derefString(raw.Status),
	}
	if price := derefFloat(raw.Price); price > 0 {
		result.Price = decimal.NewFromFloat(price)
	}
	if avg := derefFloat(raw.Average); avg > 0 {
		result.FillPrice = decimal.NewFromFloat(avg)
	}

	c.logger.Info("委托已提交",
		zap.String("symbol", req.Symbol),
		zap.String("side", req.Side),
		zap.String("shape", req.Shape),
		zap.String("quantity", req.Quantity.String()),
		zap.String("order_id", result.OrderID),
	)

	return result, nil
}

// CancelOrder 撤销指定委托。
func (c *Client) CancelOrder(ctx context.Context, marketType, symbol, orderID string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if orderID == "" {
		return nil
	}

	options := []ccxt.CancelOrderOptions{ccxt.WithCancelOrderSymbol(symbol)}
	if marketType == config.MarketMargin {
		options = append(options, ccxt.WithCancelOrderParams(map[string]interface{}{"marginMode": "cross"}))
	}

	if _, err := c.exchange.CancelOrder(orderID, options...); err != nil {
		normalized, _ := c.classifyError(err)
		return fmt.Errorf("exchange: 撤单失败: %w", normalized)
	}

	c.logger.Info("委托已撤销", zap.String("symbol", symbol), zap.String("order_id", orderID))
	return nil
}

// BorrowLoan 借入指定数量的资产，用于做空建仓。
func (c *Client) BorrowLoan(ctx context.Context, asset string, amount decimal.Decimal) (LoanResult, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return LoanResult{}, ctxErr
	}

	raw, err := c.exchange.BorrowCrossMargin(asset, amount.InexactFloat64())
	if err != nil {
		normalized, _ := c.classifyError(err)
		return LoanResult{}, fmt.Errorf("exchange: 借贷失败: %w", normalized)
	}

	result := LoanResult{Amount: amount}
	if raw.Info != nil {
		result.LoanID = stringify(raw.Info["tranId"])
	}

	c.logger.Info("借贷已完成",
		zap.String("asset", asset),
		zap.String("amount", amount.String()),
		zap.String("loan_id", result.LoanID),
	)

	return result, nil
}

// RepayLoan 偿还借入的资产。
func (c *Client) RepayLoan(ctx context.Context, asset string, amount decimal.Decimal) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if _, err := c.exchange.RepayCrossMargin(asset, amount.InexactFloat64()); err != nil {
		normalized, _ := c.classifyError(err)
		return fmt.Errorf("exchange: 还贷失败: %w", normalized)
	}

	c.logger.Info("还贷已完成", zap.String("asset", asset), zap.String("amount", amount.String()))
	return nil
}

// MarginAccount 查询保证金账户内各资产的余额与负债。
func (c *Client) MarginAccount(ctx context.Context) ([]MarginAsset, error) {
	var raw ccxt.Balances
	err := c.callWithRetry(ctx, "fetch_margin_balance", func() error {
		balances, err := c.exchange.FetchBalance(map[string]interface{}{"type": "margin"})
		if err != nil {
			return err
		}
		raw = balances
		return nil
	})
	if err != nil {
		return nil, err
	}

	var assets []MarginAsset
	if raw.Info == nil {
		return assets, nil
	}

	userAssets, ok := raw.Info["userAssets"].([]interface{})
	if !ok {
		return assets, nil
	}

	for _, item := range userAssets {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		assets = append(assets, MarginAsset{
			Asset:    stringify(entry["asset"]),
			Free:     decimalFromAny(entry["free"]),
			Borrowed: decimalFromAny(entry["borrowed"]),
			Interest: decimalFromAny(entry["interest"]),
		})
	}

	return assets, nil
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	if c.marketsLoaded {
		return nil
	}

	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}

	loadErr := c.callWithRetry(ctx, "load_markets", func() error {
		_, err := c.exchange.LoadMarkets()
		return err
	})
	if loadErr != nil {
		return loadErr
	}

	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载")
	return nil
}

func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		normalizedErr, retry := c.classifyError(err)

		if errors.Is(normalizedErr, ErrMaintenance) {
			c.logger.Warn("交易所维护中",
				zap.String("operation", operation),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		if !retry || attempt >= c.cfg.Retry.MaxAttempts {
			c.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		c.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (c *Client) classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return err, true
		case ccxt.OnMaintenanceErrType:
			message := strings.TrimSpace(ccxtErr.Message)
			if message == "" {
				message = "exchange under maintenance"
			}
			return fmt.Errorf("%w: %s", ErrMaintenance, message), false
		default:
			return err, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return err, true
	}

	return err, false
}

func convertOrderBook(symbol string, ob ccxt.OrderBook) OrderBookSnapshot {
	bids := make([]OrderBookLevel, 0, len(ob.Bids))
	for _, level := range ob.Bids {
		if len(level) < 2 {
			continue
		}
		bids = append(bids, OrderBookLevel{
			Price:  level[0],
			Amount: level[1],
		})
	}

	asks := make([]OrderBookLevel, 0, len(ob.Asks))
	for _, level := range ob.Asks {
		if len(level) < 2 {
			continue
		}
		asks = append(asks, OrderBookLevel{
			Price:  level[0],
			Amount: level[1],
		})
	}

	var ts time.Time
	if ob.Timestamp != nil {
		ts = time.UnixMilli(*ob.Timestamp).UTC()
	} else {
		ts = time.Now().UTC()
	}

	var nonce int64
	if ob.Nonce != nil {
		nonce = *ob.Nonce
	}

	return OrderBookSnapshot{
		Symbol:    symbol,
		Bids:      bids,
		Asks:      asks,
		Timestamp: ts,
		Nonce:     nonce,
	}
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func stringify(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case fmt.Stringer:
		return value.String()
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", value))
	}
}

func decimalFromAny(v interface{}) decimal.Decimal {
	switch value := v.(type) {
	case nil:
		return decimal.Zero
	case float64:
		return decimal.NewFromFloat(value)
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}
