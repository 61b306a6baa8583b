package trader

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"pairtrader/internal/config"
	"pairtrader/internal/exchange"
	"pairtrader/internal/feed"
	"pairtrader/internal/position"
	"pairtrader/internal/signal"
)

func TestQuantize(t *testing.T) {
	price := decimal.NewFromFloat(100.12999)

	once := quantizePrice(price, 2)
	if !once.Equal(decimal.NewFromFloat(100.12)) {
		t.Errorf("expected truncation to 100.12, got %s", once)
	}
	// 截断是幂等的。
	if !quantizePrice(once, 2).Equal(once) {
		t.Errorf("expected idempotent quantization, got %s", quantizePrice(once, 2))
	}

	qty := quantizeQuantity(decimal.NewFromFloat(0.123456789), 5)
	if !qty.Equal(decimal.NewFromFloat(0.12345)) {
		t.Errorf("expected quantity truncated to 0.12345, got %s", qty)
	}
}

func TestPlaceOrder_NoPartialCommitOnFailure(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{placeErr: errors.New("exchange down")}
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

	leg := tr.long
	if leg.Buy.State != position.StateNone || leg.Buy.Kind != position.KindWait {
		t.Errorf("expected buy side untouched after failure, got state=%q kind=%q", leg.Buy.State, leg.Buy.Kind)
	}
	if !leg.BuyPrice.IsZero() || leg.Buy.OrderID != "" {
		t.Errorf("expected no price or order id committed, price=%s id=%q", leg.BuyPrice, leg.Buy.OrderID)
	}
	if !leg.CurrencyLeft.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected capital untouched, got %s", leg.CurrencyLeft)
	}
}

func TestPlaceOrder_ShortOpenBorrowsAndInvertsSide(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{}
	data := &fakeMarket{symbol: "BTCUSDT", snap: makeSnapshot(100, 100, 101)}
	cfg := testConfig(config.RunReal)
	cfg.MarketType = config.MarketMargin
	provider := &scriptProvider{
		entry: &signal.Intent{
			Kind:  signal.KindSignal,
			Shape: exchange.ShapeLimit,
			Price: decimal.NewFromInt(100),
		},
	}
	tr := newTestTrader(cfg, client, data, provider, feed.NewBuffer(), &recordSink{})
	tr.long.CanOrder = false

	tr.tick(ctx)

	if len(client.borrowCalls) != 1 {
		t.Fatalf("expected one loan request, got %d", len(client.borrowCalls))
	}
	if !client.borrowCalls[0].Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected loan for quantity 1, got %s", client.borrowCalls[0])
	}
	if len(client.placeCalls) != 1 {
		t.Fatalf("expected one order, got %d", len(client.placeCalls))
	}
	if client.placeCalls[0].Side != exchange.SideSell {
		t.Errorf("expected short open submitted as SELL, got %s", client.placeCalls[0].Side)
	}

	leg := tr.short
	if leg.LoanID != "loan-1" || !leg.LoanCost.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected loan recorded, id=%q cost=%s", leg.LoanID, leg.LoanCost)
	}
	if leg.Buy.State != position.StatePlaced {
		t.Errorf("expected short buy side placed, got %q", leg.Buy.State)
	}
}

func TestPlaceOrder_ShortOpenRepaysLoanWhenOrderFails(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{placeErr: errors.New("rejected")}
	data := &fakeMarket{symbol: "BTCUSDT", snap: makeSnapshot(100, 100, 101)}
	cfg := testConfig(config.RunReal)
	cfg.MarketType = config.MarketMargin
	provider := &scriptProvider{
		entry: &signal.Intent{
			Kind:  signal.KindSignal,
			Shape: exchange.ShapeLimit,
			Price: decimal.NewFromInt(100),
		},
	}
	tr := newTestTrader(cfg, client, data, provider, feed.NewBuffer(), &recordSink{})
	tr.long.CanOrder = false

	tr.tick(ctx)

	if len(client.repayCalls) != 1 || !client.repayCalls[0].Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected best-effort loan repayment after failed order, got %v", client.repayCalls)
	}
	if tr.short.LoanID != "" || !tr.short.LoanCost.IsZero() {
		t.Errorf("expected no loan committed to the leg, id=%q cost=%s", tr.short.LoanID, tr.short.LoanCost)
	}
}

func TestOrderQuantity_ShortCloseUsesMarginDebt(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{
		marginAssets: []exchange.MarginAsset{
			{Asset: "ETH", Borrowed: decimal.NewFromInt(3)},
			{Asset: "BTC", Borrowed: decimal.NewFromFloat(1.2), Interest: decimal.NewFromFloat(0.001)},
		},
	}
	data := &fakeMarket{symbol: "BTCUSDT", snap: makeSnapshot(100, 100, 101)}
	cfg := testConfig(config.RunReal)
	cfg.MarketType = config.MarketMargin
	provider := &scriptProvider{
		exit: &signal.Intent{
			Kind:  signal.KindSignal,
			Shape: exchange.ShapeLimit,
			Price: decimal.NewFromInt(95),
		},
	}
	tr := newTestTrader(cfg, client, data, provider, feed.NewBuffer(), &recordSink{})
	tr.long.CanOrder = false

	leg := tr.short
	leg.Buy.Kind = position.KindUnarmed
	leg.Sell.Kind = position.KindWait
	leg.BuyPrice = decimal.NewFromInt(120)
	leg.TokensHolding = decimal.NewFromInt(1)

	tr.tick(ctx)

	if len(client.placeCalls) != 1 {
		t.Fatalf("expected one close order, got %d", len(client.placeCalls))
	}
	call := client.placeCalls[0]
	if call.Side != exchange.SideBuy {
		t.Errorf("expected short close submitted as BUY, got %s", call.Side)
	}
	if !call.Quantity.Equal(decimal.NewFromFloat(1.201)) {
		t.Errorf("expected close quantity borrowed+interest=1.201, got %s", call.Quantity)
	}
}

func TestOrderQuantity_FiatSizing(t *testing.T) {
	client := &fakeClient{}
	data := &fakeMarket{symbol: "BTCEUR", snap: makeSnapshot(100, 100, 101)}
	cfg := testConfig(config.RunTest)
	tr := New(cfg, config.PairConfig{
		BaseAsset:  "BTC",
		QuoteAsset: "EUR",
		TickSize:   2,
		LotSize:    5,
		IsFiat:     true,
	}, client, data, &scriptProvider{}, nil, &recordSink{}, nil, nil)
	tr.quote.BidPrice = decimal.NewFromInt(100)

	// 法币对买入直接用剩余资金作为数量。
	qty, err := tr.orderQuantity(context.Background(), tr.long, position.SideBuy)
	if err != nil {
		t.Fatalf("orderQuantity returned error: %v", err)
	}
	if !qty.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected fiat buy quantity 100, got %s", qty)
	}

	// 法币对卖出把持仓折算回计价货币。
	tr.long.TokensHolding = decimal.NewFromFloat(0.5)
	qty, err = tr.orderQuantity(context.Background(), tr.long, position.SideSell)
	if err != nil {
		t.Fatalf("orderQuantity returned error: %v", err)
	}
	if !qty.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected fiat sell quantity 50, got %s", qty)
	}
}
