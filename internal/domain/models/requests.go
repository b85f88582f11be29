package models

// PredictRequest scores either a bar history or a precomputed feature row.
type PredictRequest struct {
	Stock    string             `json:"stock" validate:"required"`
	History  []PriceBar         `json:"history" validate:"required_without=Features"`
	Market   []PriceBar         `json:"market"`
	Features map[string]float64 `json:"features"`
}

type StatsRequest struct {
	Stock   string     `json:"stock"`
	History []PriceBar `json:"history" validate:"required,min=1"`
}

type AnomalyBatchRequest struct {
	Items []AnomalyInput `json:"items" validate:"required,min=1,max=500,dive"`
}

type RecommendRequest struct {
	Prediction      PredictionResult `json:"prediction"`
	SentimentScore  float64          `json:"sentiment_score" validate:"gte=-1,lte=1"`
	AnomalySeverity Severity         `json:"anomaly_severity" default:"NONE" validate:"oneof=NONE LOW MEDIUM HIGH"`
}

// AnalyzeRequest scores free text, or a stock's articles when Articles is set.
type AnalyzeRequest struct {
	Text     string    `json:"text" validate:"required_without=Articles,omitempty,min=10"`
	Stock    string    `json:"stock"`
	Articles []Article `json:"articles"`
}

// StockRequest addresses one instrument by path.
type StockRequest struct {
	Code string `param:"code" validate:"required,max=16,symbol"`
}

// IngestBarsRequest appends or replaces daily bars of one instrument.
type IngestBarsRequest struct {
	Code string     `param:"code" validate:"required,max=16,symbol"`
	Bars []PriceBar `json:"bars" validate:"required,min=1,max=5000"`
}

type HistoryRequest struct {
	Code  string `param:"code" validate:"required,max=16,symbol"`
	Days  int    `query:"days" default:"30" validate:"gte=1,lte=3650"`
	Limit int    `query:"limit" validate:"gte=0,lte=3650"`
}
