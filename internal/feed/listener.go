package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pairtrader/internal/config"
)

// Listener 订阅交易所用户数据流并把事件发布到 Buffer。
type Listener struct {
	cfg    config.FeedConfig
	buffer *Buffer
	logger *zap.Logger
}

// NewListener 创建数据流监听器。
func NewListener(cfg config.FeedConfig, buffer *Buffer, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		cfg:    cfg,
		buffer: buffer,
		logger: logger,
	}
}

// Run 维持数据流连接直至 ctx 取消，断开后自动重连。
func (l *Listener) Run(ctx context.Context) error {
	wait := l.cfg.ReconnectWait
	if wait <= 0 {
		wait = 5 * time.Second
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := l.listenOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Warn("数据流连接中断，等待重连",
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Listener) listenOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, l.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("feed: 连接数据流失败: %w", err)
	}
	defer conn.Close()

	l.logger.Info("数据流已连接")

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		if l.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout))
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: 读取数据流失败: %w", err)
		}

		l.dispatch(payload)
	}
}

type rawEvent struct {
	EventType string       `json:"e"`
	EventTime int64        `json:"E"`
	Symbol    string       `json:"s"`
	Side      string       `json:"S"`
	OrderID   json.Number  `json:"i"`
	Status    string       `json:"X"`
	LastPrice string       `json:"L"`
	Quantity  string       `json:"q"`
	Balances  []rawBalance `json:"B"`
}

type rawBalance struct {
	Asset  string `json:"a"`
	Free   string `json:"f"`
	Locked string `json:"l"`
}

func (l *Listener) dispatch(payload []byte) {
	var event rawEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		l.logger.Warn("解析数据流事件失败", zap.Error(err))
		return
	}

	eventTime := time.UnixMilli(event.EventTime).UTC()

	switch event.EventType {
	case "executionReport":
		l.buffer.PublishReport(ExecutionReport{
			Symbol:    event.Symbol,
			OrderID:   event.OrderID.String(),
			Side:      strings.ToUpper(event.Side),
			Status:    OrderStatus(event.Status),
			LastPrice: parseDecimal(event.LastPrice),
			Quantity:  parseDecimal(event.Quantity),
			EventTime: eventTime,
		})
	case "outboundAccountPosition", "outboundAccountInfo":
		balances := make(map[string]Balance, len(event.Balances))
		for _, raw := range event.Balances {
			balances[strings.ToUpper(raw.Asset)] = Balance{
				Free:   parseDecimal(raw.Free),
				Locked: parseDecimal(raw.Locked),
			}
		}
		l.buffer.PublishAccount(AccountUpdate{Balances: balances, EventTime: eventTime})
	default:
		l.logger.Debug("忽略未知数据流事件", zap.String("event_type", event.EventType))
	}
}

func parseDecimal(value string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero
	}
	return d
}
