package monitor

import "time"

// EventType 表示监控事件类型。
type EventType string

const (
	EventOrderPlaced EventType = "order_placed"
	EventBuyFilled   EventType = "buy_filled"
	EventSellFilled  EventType = "sell_filled"
	EventError       EventType = "error"
)

// Event 封装通用监控事件。
type Event struct {
	Type      EventType `json:"type"`
	Symbol    string    `json:"symbol"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
