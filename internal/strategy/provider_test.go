package strategy

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"pairtrader/internal/indicator"
	"pairtrader/internal/market"
	"pairtrader/internal/position"
	"pairtrader/internal/signal"
)

func makeRequest(rsi float64, last, bid, ask int64) signal.Request {
	return signal.Request{
		Leg:        position.NewLeg(position.Long, decimal.NewFromInt(100)),
		Type:       position.Long,
		Indicators: indicator.Snapshot{RSI: rsi},
		Quote: market.Quote{
			LastPrice: decimal.NewFromInt(last),
			BidPrice:  decimal.NewFromInt(bid),
			AskPrice:  decimal.NewFromInt(ask),
		},
		Symbol: "BTCUSDT",
	}
}

func TestLongEntry(t *testing.T) {
	p := NewProvider(DefaultParams(), nil)

	intent := p.LongEntry(makeRequest(25, 100, 99, 101))
	if intent == nil || intent.Kind != signal.KindSignal {
		t.Fatalf("expected entry signal in oversold zone, got %+v", intent)
	}
	if !intent.Price.Equal(decimal.NewFromInt(99)) {
		t.Errorf("expected limit at bid price, got %s", intent.Price)
	}
	if intent.Stage != 2 {
		t.Errorf("expected stage 2 on signal, got %d", intent.Stage)
	}

	intent = p.LongEntry(makeRequest(35, 100, 99, 101))
	if intent == nil || intent.Kind != signal.KindWait {
		t.Fatalf("expected WAIT near the entry zone, got %+v", intent)
	}
	if intent.Stage != 1 {
		t.Errorf("expected stage 1 while approaching entry, got %d", intent.Stage)
	}

	intent = p.LongEntry(makeRequest(60, 100, 99, 101))
	if intent == nil || intent.Kind != signal.KindWait || intent.Stage != 0 {
		t.Fatalf("expected plain WAIT far from entry, got %+v", intent)
	}
}

func TestLongExit(t *testing.T) {
	p := NewProvider(DefaultParams(), nil)

	req := makeRequest(75, 100, 99, 101)
	intent := p.LongExit(req)
	if intent == nil || intent.Kind != signal.KindSignal {
		t.Fatalf("expected exit signal in overbought zone, got %+v", intent)
	}
	if !intent.Price.Equal(decimal.NewFromInt(101)) {
		t.Errorf("expected limit at ask price, got %s", intent.Price)
	}

	// 价格跌破止损线给出止损单。
	req = makeRequest(50, 97, 96, 98)
	req.Leg.BuyPrice = decimal.NewFromInt(100)
	intent = p.LongExit(req)
	if intent == nil || intent.Kind != signal.KindStopLoss {
		t.Fatalf("expected stop-loss below stop line, got %+v", intent)
	}
	if !intent.Price.Equal(decimal.NewFromInt(98)) {
		t.Errorf("expected stop at 98, got %s", intent.Price)
	}

	req = makeRequest(50, 99, 98, 100)
	req.Leg.BuyPrice = decimal.NewFromInt(100)
	intent = p.LongExit(req)
	if intent == nil || intent.Kind != signal.KindWait {
		t.Fatalf("expected WAIT above stop line, got %+v", intent)
	}
}

func TestShortSidesInverted(t *testing.T) {
	p := NewProvider(DefaultParams(), nil)

	intent := p.ShortEntry(makeRequest(75, 100, 99, 101))
	if intent == nil || intent.Kind != signal.KindSignal {
		t.Fatalf("expected short entry in overbought zone, got %+v", intent)
	}

	intent = p.ShortExit(makeRequest(25, 100, 99, 101))
	if intent == nil || intent.Kind != signal.KindSignal {
		t.Fatalf("expected short exit in oversold zone, got %+v", intent)
	}

	// 价格反向突破触发做空止损。
	req := makeRequest(50, 103, 102, 104)
	req.Leg.BuyPrice = decimal.NewFromInt(100)
	intent = p.ShortExit(req)
	if intent == nil || intent.Kind != signal.KindStopLoss {
		t.Fatalf("expected short stop-loss above stop line, got %+v", intent)
	}
}

func TestTrendFilterGatesEntries(t *testing.T) {
	p := NewProvider(DefaultParams(), nil)

	// 最新价低于15m趋势线时不做多。
	req := makeRequest(25, 100, 99, 101)
	req.Indicators.TrendEMA15M = 105
	intent := p.LongEntry(req)
	if intent == nil || intent.Kind != signal.KindWait {
		t.Fatalf("expected long entry gated below the trend line, got %+v", intent)
	}

	req.Indicators.TrendEMA15M = 95
	intent = p.LongEntry(req)
	if intent == nil || intent.Kind != signal.KindSignal {
		t.Fatalf("expected long entry above the trend line, got %+v", intent)
	}

	// 最新价高于趋势线时不做空。
	req = makeRequest(75, 100, 99, 101)
	req.Indicators.TrendEMA15M = 95
	intent = p.ShortEntry(req)
	if intent == nil || intent.Kind != signal.KindWait {
		t.Fatalf("expected short entry gated above the trend line, got %+v", intent)
	}

	// 趋势数据缺失时不过滤。
	req.Indicators.TrendEMA15M = math.NaN()
	intent = p.ShortEntry(req)
	if intent == nil || intent.Kind != signal.KindSignal {
		t.Fatalf("expected short entry without trend data, got %+v", intent)
	}
}

func TestNoOpinionWithoutData(t *testing.T) {
	p := NewProvider(DefaultParams(), nil)

	req := makeRequest(25, 0, 0, 0)
	if intent := p.LongEntry(req); intent != nil {
		t.Errorf("expected nil intent without a ready quote, got %+v", intent)
	}
}
