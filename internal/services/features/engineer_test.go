package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketSignal/internal/domain/models"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// risingBars returns n bars with close 100+i, a constant 1000 volume and a
// one-point wick on each side.
func risingBars(n int) []models.PriceBar {
	out := make([]models.PriceBar, n)
	for i := range out {
		c := 100 + float64(i)
		out[i] = models.PriceBar{
			Date:   day0.AddDate(0, 0, i),
			Open:   c - 0.5,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000,
		}
	}
	return out
}

func TestColumnsAreFixed(t *testing.T) {
	cols := Columns()
	require.Len(t, cols, NumFeatures)
	seen := map[string]bool{}
	for _, c := range cols {
		assert.False(t, seen[c], "duplicate column %s", c)
		seen[c] = true
	}
	assert.Equal(t, "return_1d", cols[0])
	assert.Equal(t, "market_volume_ratio", cols[NumFeatures-1])

	cols[0] = "mutated"
	assert.Equal(t, "return_1d", Columns()[0])
}

func TestComputeEmptyHistory(t *testing.T) {
	v := Compute(nil, nil)
	require.Equal(t, NumFeatures, v.Len())
	for _, x := range v.Values {
		assert.Zero(t, x)
	}
}

func TestComputeSingleBarUsesNeutralDefaults(t *testing.T) {
	bar := models.PriceBar{Date: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		Open: 10, High: 13, Low: 9, Close: 12, Volume: 500}
	v := Compute([]models.PriceBar{bar}, nil)

	assert.Equal(t, NumFeatures, v.Len())
	assert.Zero(t, v.Get("return_1d"))
	assert.Equal(t, 50.0, v.Get("rsi_14"))
	assert.Equal(t, 0.5, v.Get("bb_position"))
	assert.Equal(t, 1.0, v.Get("obv_ratio"))
	assert.Equal(t, 50.0, v.Get("stoch_k"))
	assert.Zero(t, v.Get("stoch_d"))
	assert.Zero(t, v.Get("momentum_strength"))
	assert.Equal(t, 1.0, v.Get("market_volume_ratio"))
	assert.Zero(t, v.Get("market_volatility_5d"))
	assert.InDelta(t, 4.0/12, v.Get("intraday_range"), 1e-12)

	// calendar: 2024-01-31 is a Wednesday
	assert.Equal(t, 2.0, v.Get("day_of_week"))
	assert.Equal(t, 1.0, v.Get("month"))
	assert.Equal(t, 1.0, v.Get("quarter"))
	assert.Zero(t, v.Get("is_month_start"))
	assert.Equal(t, 1.0, v.Get("is_month_end"))
}

func TestComputeCalendarUsesUTCDay(t *testing.T) {
	tunis := time.FixedZone("UTC+3", 3*3600)
	bar := models.PriceBar{Date: time.Date(2024, 2, 1, 1, 0, 0, 0, tunis),
		Open: 10, High: 11, Low: 9, Close: 10, Volume: 100}
	v := Compute([]models.PriceBar{bar}, nil)

	// 2024-01-31 22:00 UTC
	assert.Equal(t, 2.0, v.Get("day_of_week"))
	assert.Equal(t, 1.0, v.Get("month"))
	assert.Zero(t, v.Get("is_month_start"))
	assert.Equal(t, 1.0, v.Get("is_month_end"))
}

func TestComputeRisingSeries(t *testing.T) {
	bars := risingBars(100)
	v := Compute(bars, nil)

	assert.InDelta(t, math.Log(199.0/198.0), v.Get("return_1d"), 1e-12)
	assert.InDelta(t, math.Log(199.0/194.0), v.Get("return_5d"), 1e-12)
	assert.InDelta(t, math.Log(199.0/179.0), v.Get("lag_20d_return"), 1e-12)

	// no losses in the window: rs is undefined
	assert.Equal(t, 50.0, v.Get("rsi_14"))

	assert.InDelta(t, 1.0, v.Get("volume_ratio"), 1e-12)
	assert.Zero(t, v.Get("volume_change"))
	assert.InDelta(t, 99.0/89.5, v.Get("obv_ratio"), 1e-9)

	// low14 = close-14, high14 = close+1
	assert.InDelta(t, 100*14.0/15.0, v.Get("stoch_k"), 1e-9)
	assert.InDelta(t, 100*14.0/15.0, v.Get("stoch_d"), 1e-9)

	// true range is |high - prev close| = 2
	assert.InDelta(t, 2.0, v.Get("atr_14"), 1e-12)
	assert.InDelta(t, 2.0/199.0, v.Get("atr_ratio"), 1e-12)

	assert.InDelta(t, 199.0/197.0, v.Get("price_to_sma_5"), 1e-12)
	assert.InDelta(t, 199.0/174.5, v.Get("price_to_sma_50"), 1e-12)
	assert.Equal(t, 1.0, v.Get("trend_regime"))
	assert.Greater(t, v.Get("macd"), 0.0)

	// doji-free bars: open = close - 0.5
	assert.InDelta(t, 1.0/0.5, v.Get("upper_shadow"), 1e-12)
	assert.InDelta(t, 0.5/0.5, v.Get("lower_shadow"), 1e-12)
	assert.InDelta(t, (198.5-198.0)/198.0, v.Get("gap_open"), 1e-12)

	for i, x := range v.Values {
		assert.False(t, math.IsNaN(x) || math.IsInf(x, 0), "feature %s not finite", v.Names[i])
	}
}

func TestComputeSortsHistory(t *testing.T) {
	bars := risingBars(70)
	shuffled := append([]models.PriceBar(nil), bars...)
	for i, j := 0, len(shuffled)-1; i < j; i, j = i+1, j-1 {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	assert.Equal(t, Compute(bars, nil).Values, Compute(shuffled, nil).Values)
	assert.Equal(t, 100.0, bars[0].Close, "input must not be reordered")
}

func TestComputeNeutralMarketUsesOwnVolatility(t *testing.T) {
	bars := risingBars(40)
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	ret := LogReturns(closes, 1)

	v := Compute(bars, nil)
	assert.Zero(t, v.Get("market_return_1d"))
	assert.Zero(t, v.Get("market_return_5d"))
	assert.InDelta(t, NanMean(RollingStd(ret, 5)), v.Get("market_volatility_5d"), 1e-12)
	assert.InDelta(t, NanMean(RollingStd(ret, 20)), v.Get("market_volatility_20d"), 1e-12)
	assert.Equal(t, 1.0, v.Get("market_volume_ratio"))
}

func TestComputeJoinsMarketByDate(t *testing.T) {
	bars := risingBars(30)
	market := make([]models.PriceBar, len(bars))
	for i, b := range bars {
		market[i] = models.PriceBar{Date: b.Date.Add(9 * time.Hour), Close: 1000 * math.Pow(1.01, float64(i)), Volume: 50}
	}

	v := Compute(bars, market)
	assert.InDelta(t, math.Log(1.01), v.Get("market_return_1d"), 1e-12)
	assert.InDelta(t, 5*math.Log(1.01), v.Get("market_return_5d"), 1e-12)
	assert.InDelta(t, 1.0, v.Get("market_volume_ratio"), 1e-12)
	assert.InDelta(t, 0.0, v.Get("market_volatility_5d"), 1e-12)

	// last instrument date missing from the index
	v = Compute(bars, market[:len(market)-1])
	assert.Zero(t, v.Get("market_return_1d"))
	assert.Zero(t, v.Get("market_volume_ratio"))
}

func TestComputeHighVolRegime(t *testing.T) {
	bars := risingBars(120)
	// calm series, then a violent last stretch
	for i := 100; i < len(bars); i++ {
		sign := 1.0
		if i%2 == 0 {
			sign = -1
		}
		bars[i].Close = bars[i-1].Close * (1 + sign*0.08)
	}
	v := Compute(bars, nil)
	assert.Equal(t, 1.0, v.Get("high_vol_regime"))

	assert.Zero(t, Compute(risingBars(120), nil).Get("high_vol_regime"))
}

func TestComputeZeroVolumeIsFinite(t *testing.T) {
	bars := risingBars(30)
	for i := range bars {
		bars[i].Volume = 0
	}
	v := Compute(bars, nil)
	assert.Zero(t, v.Get("volume_ratio"))
	assert.Zero(t, v.Get("volume_change"))
	assert.Equal(t, 1.0, v.Get("obv_ratio"))
}
