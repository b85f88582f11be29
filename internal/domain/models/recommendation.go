package models

import "time"

// Recommendation is the fused trading call.
type Recommendation struct {
	Action     Action   `json:"action"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

// SignalReport bundles every stage of the pipeline for one instrument.
// Note: no transport (json/http) logic here beyond tags.
type SignalReport struct {
	ID             string            `json:"id"`
	Stock          string            `json:"stock"`
	Timestamp      time.Time         `json:"timestamp"`
	Prediction     *PredictionResult `json:"prediction,omitempty"`
	Stats          HistoricalStats   `json:"historical_stats"`
	Anomaly        *AnomalyReport    `json:"anomaly,omitempty"`
	Sentiment      Sentiment         `json:"sentiment"`
	Recommendation Recommendation    `json:"recommendation"`
	Errors         map[string]string `json:"errors,omitempty"`
}
