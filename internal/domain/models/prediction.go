package models

import "time"

type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionHold Action = "HOLD"
	ActionSell Action = "SELL"
)

// Model tags on PredictionResult.
const (
	ModelXGBoost  = "xgboost"
	ModelFallback = "fallback"
)

// HorizonForecast is the forecast for one horizon (in days).
type HorizonForecast struct {
	HorizonDays        int       `json:"horizon_days"`
	TargetDate         string    `json:"date"`
	PredictedPrice     float64   `json:"predicted_price"`
	PredictedReturnPct float64   `json:"predicted_return_pct"`
	Direction          Direction `json:"direction"`
	Confidence         float64   `json:"confidence"`
}

// PredictionAdvice is the prediction engine's own aggregate call.
type PredictionAdvice struct {
	Action       Action   `json:"action"`
	Confidence   float64  `json:"confidence"`
	AvgReturnPct float64  `json:"avg_5d_return_pct"`
	Reasons      []string `json:"reasons"`
}

type PredictionResult struct {
	Stock          string            `json:"stock"`
	CurrentPrice   float64           `json:"current_price"`
	Timestamp      time.Time         `json:"timestamp"`
	Model          string            `json:"model"`
	Forecasts      []HorizonForecast `json:"predictions"`
	Recommendation PredictionAdvice  `json:"recommendation"`
}

// AvgReturnPct averages predicted_return_pct across forecasts; ok is false
// when there are none.
func (r PredictionResult) AvgReturnPct() (avg float64, ok bool) {
	if len(r.Forecasts) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, f := range r.Forecasts {
		sum += f.PredictedReturnPct
	}
	return sum / float64(len(r.Forecasts)), true
}
