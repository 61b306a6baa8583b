package feed

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestBuffer_LatestReportOverwritesWholeEvent(t *testing.T) {
	buffer := NewBuffer()

	if _, ok := buffer.LatestReport("BTCUSDT"); ok {
		t.Fatalf("expected no report on an empty buffer")
	}

	buffer.PublishReport(ExecutionReport{
		Symbol:  "BTCUSDT",
		OrderID: "1",
		Status:  StatusNew,
	})
	buffer.PublishReport(ExecutionReport{
		Symbol:    "BTCUSDT",
		OrderID:   "1",
		Status:    StatusFilled,
		LastPrice: decimal.NewFromInt(100),
	})

	report, ok := buffer.LatestReport("BTCUSDT")
	if !ok {
		t.Fatalf("expected report after publish")
	}
	if report.Status != StatusFilled {
		t.Errorf("expected latest event to win, got %s", report.Status)
	}
	if _, ok := buffer.LatestReport("ETHUSDT"); ok {
		t.Errorf("expected reports keyed per symbol")
	}
}

func TestBuffer_AccountSnapshotIsolatedFromCaller(t *testing.T) {
	buffer := NewBuffer()

	balances := map[string]Balance{
		"BTC": {Free: decimal.NewFromInt(1)},
	}
	buffer.PublishAccount(AccountUpdate{Balances: balances, EventTime: time.Now()})

	// 发布后修改原始表不得影响缓冲内容。
	balances["BTC"] = Balance{Free: decimal.NewFromInt(9)}

	update, ok := buffer.LatestAccount()
	if !ok {
		t.Fatalf("expected account snapshot after publish")
	}
	if !update.BalanceFor("BTC").Free.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected published snapshot isolated, got %s", update.BalanceFor("BTC").Free)
	}

	// 读出的副本同样与缓冲隔离。
	update.Balances["BTC"] = Balance{Free: decimal.NewFromInt(7)}
	again, _ := buffer.LatestAccount()
	if !again.BalanceFor("BTC").Free.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected reader copy isolated, got %s", again.BalanceFor("BTC").Free)
	}
}

func TestBalanceFor_MissingAsset(t *testing.T) {
	var update AccountUpdate
	if !update.BalanceFor("BTC").Free.IsZero() {
		t.Errorf("expected zero balance for missing asset")
	}
}
