package features

import (
	"math"
	"sort"
)

// TradingDaysPerYear annualizes daily volatility.
const TradingDaysPerYear = 252

// Series helpers. Every helper returns a slice the same length as its input
// with NaN wherever the value is undefined (not enough bars yet).

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// LogReturns computes r_t = ln(C_t / C_{t-lag}).
func LogReturns(closes []float64, lag int) []float64 {
	out := nanSeries(len(closes))
	for i := lag; i < len(closes); i++ {
		out[i] = math.Log(closes[i] / closes[i-lag])
	}
	return out
}

// PctChange computes x_t / x_{t-1} - 1.
func PctChange(xs []float64) []float64 {
	out := nanSeries(len(xs))
	for i := 1; i < len(xs); i++ {
		out[i] = (xs[i] - xs[i-1]) / xs[i-1]
	}
	return out
}

// rollingApply calls fn on every full window that holds no NaN.
func rollingApply(xs []float64, window int, fn func([]float64) float64) []float64 {
	out := nanSeries(len(xs))
	if window < 1 {
		return out
	}
	valid := 0
	for i := range xs {
		if !math.IsNaN(xs[i]) {
			valid++
		}
		if i >= window && !math.IsNaN(xs[i-window]) {
			valid--
		}
		if i >= window-1 && valid == window {
			out[i] = fn(xs[i-window+1 : i+1])
		}
	}
	return out
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStd is the n-1 standard deviation.
func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	m := mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func median(xs []float64) float64 {
	tmp := append([]float64(nil), xs...)
	sort.Float64s(tmp)
	n := len(tmp)
	if n%2 == 1 {
		return tmp[n/2]
	}
	return (tmp[n/2-1] + tmp[n/2]) / 2
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Min(m, x)
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Max(m, x)
	}
	return m
}

// RollingMean is the trailing mean over window values, NaN until the window fills.
func RollingMean(xs []float64, window int) []float64 { return rollingApply(xs, window, mean) }

// RollingStd is the trailing sample standard deviation.
func RollingStd(xs []float64, window int) []float64 { return rollingApply(xs, window, sampleStd) }

// RollingMedian is the trailing median.
func RollingMedian(xs []float64, window int) []float64 { return rollingApply(xs, window, median) }

// RollingMin is the trailing minimum.
func RollingMin(xs []float64, window int) []float64 { return rollingApply(xs, window, minOf) }

// RollingMax is the trailing maximum.
func RollingMax(xs []float64, window int) []float64 { return rollingApply(xs, window, maxOf) }

// EWM is the adjusted exponential moving average with a = 2/(span+1),
// defined from the first value.
func EWM(xs []float64, span int) []float64 {
	out := nanSeries(len(xs))
	decay := 1 - 2/(float64(span)+1)
	num, den := 0.0, 0.0
	for i, x := range xs {
		num = x + decay*num
		den = 1 + decay*den
		out[i] = num / den
	}
	return out
}

// NanMean averages the defined values, NaN when there are none.
func NanMean(xs []float64) float64 {
	sum, n := 0.0, 0
	for _, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		sum += x
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func div(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] / b[i]
	}
	return out
}

// safeDiv is div with a zero denominator treated as undefined.
func safeDiv(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		if b[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = a[i] / b[i]
	}
	return out
}

// fillNaN replaces undefined values with def in place.
func fillNaN(xs []float64, def float64) []float64 {
	for i, x := range xs {
		if math.IsNaN(x) {
			xs[i] = def
		}
	}
	return xs
}

// finite maps NaN and infinities to 0.
func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
