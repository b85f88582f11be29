// Package decision fuses prediction, sentiment and anomaly severity into one
// trading call.
package decision

import (
	"fmt"
	"math"

	"MarketSignal/internal/domain/models"
	xutil "MarketSignal/pkg/util"
)

// Fusion weights and thresholds.
const (
	WeightPrice     = 0.4
	WeightSentiment = 0.3
	WeightTechnical = 0.2
	WeightAnomaly   = 0.1

	technicalSignal = 0.2
	anomalyPenalty  = -0.2
	actionThreshold = 0.05
)

// Signals exposes the intermediate scores behind a recommendation.
type Signals struct {
	Price     float64
	Sentiment float64
	Technical float64
	Penalty   float64
	Combined  float64
}

// Score computes the weighted signals without choosing an action.
func Score(p models.PredictionResult, sentiment float64, severity models.Severity) Signals {
	var s Signals
	if avg, ok := p.AvgReturnPct(); ok {
		s.Price = avg / 100
	}
	if !math.IsNaN(sentiment) && !math.IsInf(sentiment, 0) {
		s.Sentiment = sentiment
	}
	switch p.Recommendation.Action {
	case models.ActionBuy:
		s.Technical = technicalSignal
	case models.ActionSell:
		s.Technical = -technicalSignal
	}
	if severity == models.SeverityHigh {
		s.Penalty = anomalyPenalty
	}
	s.Combined = WeightPrice*s.Price + WeightSentiment*s.Sentiment +
		WeightTechnical*s.Technical + WeightAnomaly*s.Penalty
	return s
}

// Recommend returns BUY, HOLD or SELL with a confidence and reasons.
func Recommend(p models.PredictionResult, sentiment float64, severity models.Severity) models.Recommendation {
	s := Score(p, sentiment, severity)

	action := models.ActionHold
	switch {
	case s.Combined > actionThreshold:
		action = models.ActionBuy
	case s.Combined < -actionThreshold:
		action = models.ActionSell
	}

	reasons := []string{
		fmt.Sprintf("Prediction signal: %.2f", s.Price),
		fmt.Sprintf("Sentiment signal: %.2f", s.Sentiment),
	}
	if s.Penalty < 0 {
		reasons = append(reasons, "High anomaly risk detected")
	}

	return models.Recommendation{
		Action:     action,
		Confidence: xutil.Round(math.Min(math.Abs(s.Combined)*5, 1), 2),
		Reasons:    reasons,
	}
}
