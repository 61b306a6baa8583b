package trader

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"pairtrader/internal/config"
	"pairtrader/internal/exchange"
	"pairtrader/internal/feed"
	"pairtrader/internal/position"
	"pairtrader/internal/signal"
)

func TestApplyIntent_ReplaceSuppressedAtSamePrecision(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{}
	data := &fakeMarket{symbol: "BTCUSDT", snap: makeSnapshot(100, 100, 101)}
	provider := &scriptProvider{
		entry: &signal.Intent{
			Kind:  signal.KindSignal,
			Shape: exchange.ShapeLimit,
			Price: decimal.NewFromFloat(100.12999),
		},
	}
	tr := newTestTrader(testConfig(config.RunReal), client, data, provider, feed.NewBuffer(), &recordSink{})

	tr.tick(ctx)

	if len(client.placeCalls) != 1 {
		t.Fatalf("expected one order placed, got %d", len(client.placeCalls))
	}
	if !client.placeCalls[0].Price.Equal(decimal.NewFromFloat(100.12)) {
		t.Errorf("expected price truncated to tick size, got %s", client.placeCalls[0].Price)
	}
	if !tr.long.BuyPrice.Equal(decimal.NewFromFloat(100.12)) {
		t.Errorf("expected quantized price on the leg, got %s", tr.long.BuyPrice)
	}

	// 同一精度下价格不变的信号不得撤换委托。
	provider.entry.Price = decimal.NewFromFloat(100.12444)
	tr.tick(ctx)

	if len(client.placeCalls) != 1 {
		t.Errorf("expected replace suppressed, got %d orders", len(client.placeCalls))
	}
	if len(client.cancelCalls) != 0 {
		t.Errorf("expected no cancels, got %v", client.cancelCalls)
	}

	// 精度内的价格变化触发撤换。
	provider.entry.Price = decimal.NewFromFloat(100.15)
	tr.tick(ctx)

	if len(client.placeCalls) != 2 {
		t.Fatalf("expected replacement order, got %d orders", len(client.placeCalls))
	}
	if len(client.cancelCalls) != 1 || client.cancelCalls[0] != "order-1" {
		t.Errorf("expected old order canceled before replacement, got %v", client.cancelCalls)
	}
}

func TestApplyIntent_WaitCancelsPlacedOrder(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{}
	data := &fakeMarket{symbol: "BTCUSDT", snap: makeSnapshot(100, 100, 101)}
	provider := &scriptProvider{
		entry: &signal.Intent{
			Kind:  signal.KindSignal,
			Shape: exchange.ShapeLimit,
			Price: decimal.NewFromInt(100),
		},
	}
	tr := newTestTrader(testConfig(config.RunReal), client, data, provider, feed.NewBuffer(), &recordSink{})

	tr.tick(ctx)
	if tr.long.Buy.State != position.StatePlaced {
		t.Fatalf("expected buy placed, got %q", tr.long.Buy.State)
	}

	provider.entry = &signal.Intent{Kind: signal.KindWait}
	tr.tick(ctx)

	if len(client.cancelCalls) != 1 || client.cancelCalls[0] != "order-1" {
		t.Fatalf("expected placed order canceled on WAIT, got %v", client.cancelCalls)
	}
	if tr.long.Buy.Kind != position.KindWait || tr.long.Buy.State != position.StateNone {
		t.Errorf("expected buy side back to WAIT, got kind=%q state=%q", tr.long.Buy.Kind, tr.long.Buy.State)
	}
	if tr.long.Buy.OrderID != "" {
		t.Errorf("expected order id cleared, got %q", tr.long.Buy.OrderID)
	}
}

func TestManage_LockedSellSideSkipsDecisions(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{}
	data := &fakeMarket{symbol: "BTCUSDT", snap: makeSnapshot(100, 100, 101)}
	provider := &scriptProvider{
		exit: &signal.Intent{
			Kind:  signal.KindSignal,
			Shape: exchange.ShapeLimit,
			Price: decimal.NewFromInt(125),
		},
	}
	tr := newTestTrader(testConfig(config.RunReal), client, data, provider, feed.NewBuffer(), &recordSink{})

	leg := tr.long
	leg.Buy.Kind = position.KindUnarmed
	leg.Sell.Kind = position.KindSignal
	leg.Sell.State = position.StateLocked
	leg.Sell.OrderID = "s1"
	leg.SellPrice = decimal.NewFromInt(120)
	leg.TokensHolding = decimal.NewFromInt(1)

	tr.tick(ctx)

	if len(client.placeCalls) != 0 || len(client.cancelCalls) != 0 {
		t.Errorf("expected locked side untouched, places=%d cancels=%v",
			len(client.placeCalls), client.cancelCalls)
	}
	if !leg.SellPrice.Equal(decimal.NewFromInt(120)) {
		t.Errorf("expected sell price unchanged, got %s", leg.SellPrice)
	}
}

func TestManage_UnknownIntentKindSkipped(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{}
	data := &fakeMarket{symbol: "BTCUSDT", snap: makeSnapshot(100, 100, 101)}
	provider := &scriptProvider{
		// 买入侧不支持止损意图，应记录并跳过。
		entry: &signal.Intent{
			Kind:  signal.KindStopLoss,
			Shape: exchange.ShapeStopLimit,
			Price: decimal.NewFromInt(95),
		},
	}
	tr := newTestTrader(testConfig(config.RunReal), client, data, provider, feed.NewBuffer(), &recordSink{})

	tr.tick(ctx)

	if len(client.placeCalls) != 0 {
		t.Errorf("expected unsupported intent skipped, got %d orders", len(client.placeCalls))
	}
	if tr.long.Buy.State == position.StatePlaced {
		t.Errorf("expected buy side not placed")
	}
}

func TestEntryBlockedByPeer(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{}
	data := &fakeMarket{symbol: "BTCUSDT", snap: makeSnapshot(100, 100, 101)}
	cfg := testConfig(config.RunTest)
	cfg.MarketType = config.MarketMargin
	cfg.TradeOnlyOne = true
	provider := &scriptProvider{
		entry: &signal.Intent{
			Kind:  signal.KindSignal,
			Shape: exchange.ShapeLimit,
			Price: decimal.NewFromInt(90),
		},
	}
	tr := newTestTrader(cfg, client, data, provider, nil, &recordSink{})

	// 多头已挂买入单：空头本轮只观察不下单。
	tr.long.Buy.Kind = position.KindSignal
	tr.long.Buy.State = position.StatePlaced
	tr.long.BuyPrice = decimal.NewFromInt(90)

	tr.tick(ctx)

	if tr.short.Buy.State == position.StatePlaced {
		t.Errorf("expected short entry blocked while long is engaged")
	}
	if !tr.entryBlockedByPeer(tr.short) {
		t.Errorf("expected peer block for short leg")
	}
	if tr.entryBlockedByPeer(tr.long) {
		t.Errorf("long leg should not be blocked by an idle short leg")
	}
}
