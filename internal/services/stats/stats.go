// Package stats summarises a trailing bar window into the baselines used by
// anomaly detection.
package stats

import (
	"math"
	"sort"

	"MarketSignal/internal/domain/models"
)

const (
	longWindow  = 20
	shortWindow = 10
)

// Compute returns the statistics of window, evaluated at its last bar.
// Fewer than 2 bars yield an empty record.
func Compute(window []models.PriceBar) models.HistoricalStats {
	if len(window) < 2 {
		return models.HistoricalStats{}
	}
	bars := append([]models.PriceBar(nil), window...)
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	n := len(bars)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	txs := make([]float64, n)
	ranges := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = b.Volume
		txs[i] = b.Transactions
		if b.Close != 0 {
			ranges[i] = (b.High - b.Low) / b.Close
		}
	}

	vol := tail(volumes, longWindow)
	price := tail(closes, longWindow)
	return models.HistoricalStats{
		Bars:        n,
		PrevClose:   closes[n-2],
		VolumeMA20:  mean(vol),
		VolumeStd20: popStd(vol),
		PriceMA20:   mean(price),
		PriceStd20:  popStd(price),
		RangeMA10:   mean(tail(ranges, shortWindow)),
		TxMA20:      mean(tail(txs, longWindow)),
	}
}

func tail(xs []float64, n int) []float64 {
	if len(xs) > n {
		return xs[len(xs)-n:]
	}
	return xs
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// popStd is the population standard deviation, 1 when undefined or zero.
func popStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 1
	}
	m := mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	sd := math.Sqrt(ss / float64(len(xs)))
	if sd == 0 {
		return 1
	}
	return sd
}
