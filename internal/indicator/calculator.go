package indicator

import (
	"fmt"
	"math"
	"sync"
	"time"

	talib "github.com/markcheno/go-talib"

	"pairtrader/internal/exchange"
)

// 指标计算所需的最小K线数量，由最长的回看窗口决定。
const MinCandles = 34

// 高周期趋势均线的回看窗口。
const trendEMAPeriod = 21

// MACDResult 保存 MACD 关键值。
type MACDResult struct {
	Value         float64
	Signal        float64
	Histogram     float64
	PrevHistogram float64
}

// Snapshot 为一次指标计算的汇总，同时作为对外的只读观测数据。
type Snapshot struct {
	Symbol        string
	RSI           float64
	PrevRSI       float64
	EMAFast       float64
	EMASlow       float64
	MACD          MACDResult
	ATR           float64
	// TrendEMA15M 为15m K线上的趋势均线，数据不足时为 NaN。
	TrendEMA15M   float64
	Close         float64
	PreviousClose float64
	ComputedAt    time.Time
}

type cacheEntry struct {
	key      string
	snapshot Snapshot
}

// Calculator 提供技术指标计算并带有简单缓存。
type Calculator struct {
	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewCalculator 创建 Calculator。
func NewCalculator() *Calculator {
	return &Calculator{
		cache: make(map[string]cacheEntry),
	}
}

// Compute 依据给定K线计算常用技术指标。
// trendCandles 为高周期（15m）K线，仅用于趋势均线，数量不足时该值为 NaN。
func (c *Calculator) Compute(symbol string, candles, trendCandles []exchange.Candle) (Snapshot, error) {
	if len(candles) < MinCandles {
		return Snapshot{}, fmt.Errorf("计算指标失败: K线数量不足，需要至少 %d 根，实际 %d 根", MinCandles, len(candles))
	}

	series := NewSeries(candles)
	trendKey := int64(0)
	if n := len(trendCandles); n > 0 {
		trendKey = trendCandles[n-1].Timestamp.Unix()
	}
	cacheKey := fmt.Sprintf("%s:%d:%d:%d", symbol, series.Len(), series.Timestamps[len(series.Timestamps)-1].Unix(), trendKey)

	c.mu.Lock()
	if entry, ok := c.cache[symbol]; ok && entry.key == cacheKey {
		c.mu.Unlock()
		return entry.snapshot, nil
	}
	c.mu.Unlock()

	snapshot := c.calculate(symbol, series, NewSeries(trendCandles))

	c.mu.Lock()
	c.cache[symbol] = cacheEntry{key: cacheKey, snapshot: snapshot}
	c.mu.Unlock()

	return snapshot, nil
}

func (c *Calculator) calculate(symbol string, series, trendSeries Series) Snapshot {
	closePrices := series.Close
	highs := series.High
	lows := series.Low

	emaFast := talib.Ema(closePrices, 9)
	emaSlow := talib.Ema(closePrices, 21)
	macd, macdSignal, macdHist := talib.Macd(closePrices, 12, 26, 9)
	rsi := talib.Rsi(closePrices, 14)
	atr := talib.Atr(highs, lows, closePrices, 14)

	trendEMA := math.NaN()
	if trendSeries.Len() >= trendEMAPeriod {
		trendEMA = Last(talib.Ema(trendSeries.Close, trendEMAPeriod))
	}

	return Snapshot{
		Symbol:  symbol,
		RSI:     Last(rsi),
		PrevRSI: Prev(rsi),
		EMAFast: Last(emaFast),
		EMASlow: Last(emaSlow),
		MACD: MACDResult{
			Value:         Last(macd),
			Signal:        Last(macdSignal),
			Histogram:     Last(macdHist),
			PrevHistogram: Prev(macdHist),
		},
		ATR:           Last(atr),
		TrendEMA15M:   trendEMA,
		Close:         Last(closePrices),
		PreviousClose: Prev(closePrices),
		ComputedAt:    time.Now().UTC(),
	}
}
