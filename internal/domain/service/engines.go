package service

import (
	"context"

	"MarketSignal/internal/domain/models"
)

// Predictor forecasts per-horizon returns for an instrument.
type Predictor interface {
	Predict(ctx context.Context, stock string, history []models.PriceBar) (models.PredictionResult, error)
	// PredictWithMarket also joins a market index series into the features.
	PredictWithMarket(ctx context.Context, stock string, history, market []models.PriceBar) (models.PredictionResult, error)
	ModelLoaded() bool
}

// AnomalyDetector scores the current bar against trailing statistics.
type AnomalyDetector interface {
	Detect(ctx context.Context, stock string, current models.PriceBar, stats models.HistoricalStats) models.AnomalyReport
	MLEnabled() bool
}

// SentimentProvider returns the aggregated news sentiment for an instrument.
type SentimentProvider interface {
	StockSentiment(ctx context.Context, stock string) (models.Sentiment, error)
}
