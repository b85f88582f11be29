package prediction

import (
	"math"
	"sort"

	"MarketSignal/internal/domain/models"
	xutil "MarketSignal/pkg/util"
)

const (
	neutralPrice    = 10.0
	trendWindow     = 20
	fallbackHorizon = 5
)

var fallbackReasons = []string{
	"Based on recent price trend analysis",
	"Using moving average momentum",
	"Trained model not loaded - using simplified forecast",
}

// fallback extrapolates the mean daily percent change of the trailing bars.
func (e *Engine) fallback(stock string, history []models.PriceBar) models.PredictionResult {
	bars := append([]models.PriceBar(nil), history...)
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	cp := neutralPrice
	if len(bars) > 0 {
		cp = bars[len(bars)-1].Close
	}
	avg := trend(bars)

	now := e.now()
	dir := models.DirectionDown
	if avg >= 0 {
		dir = models.DirectionUp
	}
	forecasts := make([]models.HorizonForecast, 0, fallbackHorizon)
	for d := 1; d <= fallbackHorizon; d++ {
		forecasts = append(forecasts, models.HorizonForecast{
			HorizonDays:        d,
			TargetDate:         now.AddDate(0, 0, d).Format(xutil.DateLayout),
			PredictedPrice:     xutil.Round(cp*(1+avg*float64(d)), 3),
			PredictedReturnPct: xutil.Round(avg*100*float64(d), 2),
			Direction:          dir,
			Confidence:         math.Min(xutil.Round(math.Abs(avg)*10+0.3, 2), 0.7),
		})
	}

	action := models.ActionHold
	switch {
	case avg > 0.01:
		action = models.ActionBuy
	case avg < -0.01:
		action = models.ActionSell
	}

	return models.PredictionResult{
		Stock:        stock,
		CurrentPrice: xutil.Round(cp, 3),
		Timestamp:    now,
		Model:        models.ModelFallback,
		Forecasts:    forecasts,
		Recommendation: models.PredictionAdvice{
			Action:       action,
			Confidence:   math.Min(xutil.Round(math.Abs(avg)*15+0.3, 2), 0.7),
			AvgReturnPct: xutil.Round(avg*100, 2),
			Reasons:      append([]string(nil), fallbackReasons...),
		},
	}
}

// trend is the mean close-to-close percent change over the trailing window.
// Changes from a zero close are skipped.
func trend(bars []models.PriceBar) float64 {
	if len(bars) > trendWindow {
		bars = bars[len(bars)-trendWindow:]
	}
	if len(bars) < 2 {
		return 0
	}
	sum, n := 0.0, 0
	for i := 1; i < len(bars); i++ {
		r := (bars[i].Close - bars[i-1].Close) / bars[i-1].Close
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		sum += r
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
