// Package features derives the model feature vector from daily price bars.
package features

import (
	"fmt"
	"math"
	"sort"
	"time"

	"MarketSignal/internal/domain/models"
	xutil "MarketSignal/pkg/util"
)

// frame holds one series per feature, aligned with the sorted bars.
type frame map[string][]float64

// Compute returns the feature vector for the most recent bar in history.
// market is an optional index series joined by calendar date. It never fails:
// windows that are not filled yet fall back to neutral values.
func Compute(history, market []models.PriceBar) models.FeatureVector {
	values := make([]float64, len(columns))
	bars := sortedBars(history)
	if len(bars) == 0 {
		return models.FeatureVector{Names: columns, Values: values}
	}

	f := computeFrame(bars, sortedBars(market))
	last := len(bars) - 1
	for i, name := range columns {
		values[i] = finite(f[name][last])
	}
	return models.FeatureVector{Names: columns, Values: values}
}

func sortedBars(in []models.PriceBar) []models.PriceBar {
	if len(in) == 0 {
		return nil
	}
	bars := append([]models.PriceBar(nil), in...)
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars
}

func computeFrame(bars, market []models.PriceBar) frame {
	n := len(bars)
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	volume := make([]float64, n)
	for i, b := range bars {
		open[i], high[i], low[i], closes[i], volume[i] = b.Open, b.High, b.Low, b.Close, b.Volume
	}

	f := frame{}

	// returns and volatility
	ret1 := LogReturns(closes, 1)
	f["return_1d"] = ret1
	f["return_5d"] = LogReturns(closes, 5)
	f["return_10d"] = LogReturns(closes, 10)
	f["return_20d"] = LogReturns(closes, 20)

	f["volatility_5d"] = RollingStd(ret1, 5)
	f["volatility_10d"] = RollingStd(ret1, 10)
	f["volatility_20d"] = RollingStd(ret1, 20)
	f["realized_vol_5d"] = scale(f["volatility_5d"], math.Sqrt(TradingDaysPerYear))
	f["realized_vol_10d"] = scale(f["volatility_10d"], math.Sqrt(TradingDaysPerYear))

	for _, w := range []int{5, 10, 20, 50} {
		f[fmt.Sprintf("price_to_sma_%d", w)] = div(closes, RollingMean(closes, w))
	}

	// volume
	f["volume_ratio"] = div(volume, RollingMean(volume, 20))
	f["volume_change"] = PctChange(volume)
	obv := onBalanceVolume(closes, volume)
	f["obv_ratio"] = fillNaN(safeDiv(obv, RollingMean(obv, 20)), 1)

	// momentum
	f["rsi_14"] = rsi(closes, 14)
	macd := sub(EWM(closes, 12), EWM(closes, 26))
	signal := EWM(macd, 9)
	hist := sub(macd, signal)
	f["macd"], f["macd_signal"], f["macd_hist"] = macd, signal, hist

	mid := RollingMean(closes, 20)
	std := RollingStd(closes, 20)
	upper, lower := make([]float64, n), make([]float64, n)
	for i := range closes {
		upper[i] = mid[i] + 2*std[i]
		lower[i] = mid[i] - 2*std[i]
	}
	width := sub(upper, lower)
	f["bb_width"] = div(width, mid)
	f["bb_position"] = fillNaN(safeDiv(sub(closes, lower), width), 0.5)

	// atr and stochastic
	atr := RollingMean(trueRange(high, low, closes), 14)
	f["atr_14"] = atr
	f["atr_ratio"] = div(atr, closes)
	low14, high14 := RollingMin(low, 14), RollingMax(high, 14)
	k := fillNaN(scale(safeDiv(sub(closes, low14), sub(high14, low14)), 100), 50)
	f["stoch_k"] = k
	f["stoch_d"] = RollingMean(k, 3)

	// price patterns
	prevClose := shift(closes, 1)
	f["intraday_range"] = div(sub(high, low), closes)
	f["gap_open"] = div(sub(open, prevClose), prevClose)
	upperShadow, lowerShadow := make([]float64, n), make([]float64, n)
	for i := range closes {
		bodyHigh := math.Max(open[i], closes[i])
		bodyLow := math.Min(open[i], closes[i])
		body := bodyHigh - bodyLow
		if body == 0 {
			continue
		}
		upperShadow[i] = (high[i] - bodyHigh) / body
		lowerShadow[i] = (bodyLow - low[i]) / body
	}
	f["upper_shadow"], f["lower_shadow"] = upperShadow, lowerShadow

	addCalendar(f, bars)

	for _, lag := range []int{1, 2, 3, 5, 10, 20} {
		f[fmt.Sprintf("lag_%dd_return", lag)] = LogReturns(closes, lag)
	}

	// regimes
	vol20 := f["volatility_20d"]
	volMedian := RollingMedian(vol20, 60)
	highVol, trend := make([]float64, n), make([]float64, n)
	for i := range closes {
		if vol20[i] > 1.5*volMedian[i] {
			highVol[i] = 1
		}
		switch r := f["price_to_sma_20"][i]; {
		case r > 1.02:
			trend[i] = 1
		case r < 0.98:
			trend[i] = -1
		}
	}
	f["high_vol_regime"], f["trend_regime"] = highVol, trend
	strength := safeDiv(hist, RollingStd(hist, 20))
	for i, v := range strength {
		strength[i] = math.Max(-3, math.Min(3, v))
	}
	f["momentum_strength"] = fillNaN(strength, 0)

	// interactions
	f["vol_times_volatility"] = mul(f["volume_ratio"], vol20)
	f["price_momentum_vol"] = mul(f["return_5d"], f["volume_ratio"])

	addMarket(f, bars, market)
	return f
}

// onBalanceVolume accumulates volume signed by the close-to-close direction.
func onBalanceVolume(closes, volume []float64) []float64 {
	out := make([]float64, len(closes))
	acc := 0.0
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		switch {
		case d > 0:
			acc += volume[i]
		case d < 0:
			acc -= volume[i]
		}
		out[i] = acc
	}
	return out
}

// rsi uses simple means of gains and losses; undefined values become 50.
func rsi(closes []float64, period int) []float64 {
	n := len(closes)
	gains, losses := make([]float64, n), make([]float64, n)
	for i := 1; i < n; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i] = d
		} else if d < 0 {
			losses[i] = -d
		}
	}
	avgGain := RollingMean(gains, period)
	avgLoss := RollingMean(losses, period)
	out := make([]float64, n)
	for i := range out {
		if math.IsNaN(avgGain[i]) || math.IsNaN(avgLoss[i]) || avgLoss[i] == 0 {
			out[i] = 50
			continue
		}
		rs := avgGain[i] / avgLoss[i]
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// trueRange falls back to high-low on the first bar.
func trueRange(high, low, closes []float64) []float64 {
	out := make([]float64, len(high))
	for i := range high {
		tr := high[i] - low[i]
		if i > 0 {
			tr = math.Max(tr, math.Abs(high[i]-closes[i-1]))
			tr = math.Max(tr, math.Abs(low[i]-closes[i-1]))
		}
		out[i] = tr
	}
	return out
}

func addCalendar(f frame, bars []models.PriceBar) {
	n := len(bars)
	dow, month, quarter := make([]float64, n), make([]float64, n), make([]float64, n)
	start, end := make([]float64, n), make([]float64, n)
	for i, b := range bars {
		d := b.Date.UTC()
		dow[i] = float64((int(d.Weekday()) + 6) % 7)
		month[i] = float64(d.Month())
		quarter[i] = float64((int(d.Month())-1)/3 + 1)
		if d.Day() == 1 {
			start[i] = 1
		}
		if xutil.IsMonthEnd(d) {
			end[i] = 1
		}
	}
	f["day_of_week"], f["month"], f["quarter"] = dow, month, quarter
	f["is_month_start"], f["is_month_end"] = start, end
}

// addMarket joins index features by calendar date, or fills neutral values.
func addMarket(f frame, bars, market []models.PriceBar) {
	n := len(bars)
	names := []string{"market_return_1d", "market_return_5d", "market_volatility_5d",
		"market_volatility_20d", "market_volume_ratio"}

	if len(market) == 0 {
		vol5 := NanMean(f["volatility_5d"])
		vol20 := NanMean(f["volatility_20d"])
		for _, name := range names {
			f[name] = make([]float64, n)
		}
		for i := 0; i < n; i++ {
			f["market_volatility_5d"][i] = vol5
			f["market_volatility_20d"][i] = vol20
			f["market_volume_ratio"][i] = 1
		}
		return
	}

	closes := make([]float64, len(market))
	volume := make([]float64, len(market))
	for i, b := range market {
		closes[i], volume[i] = b.Close, b.Volume
	}
	ret1 := LogReturns(closes, 1)
	series := [][]float64{
		ret1,
		LogReturns(closes, 5),
		RollingStd(ret1, 5),
		RollingStd(ret1, 20),
		div(volume, RollingMean(volume, 20)),
	}

	byDate := make(map[time.Time]int, len(market))
	for i, b := range market {
		byDate[xutil.Day(b.Date)] = i
	}
	for k, name := range names {
		out := nanSeries(n)
		for i, b := range bars {
			if j, ok := byDate[xutil.Day(b.Date)]; ok {
				out[i] = series[k][j]
			}
		}
		f[name] = out
	}
}

func shift(xs []float64, lag int) []float64 {
	out := nanSeries(len(xs))
	for i := lag; i < len(xs); i++ {
		out[i] = xs[i-lag]
	}
	return out
}

func sub(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

func mul(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] * b[i]
	}
	return out
}

func scale(xs []float64, k float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = x * k
	}
	return out
}
