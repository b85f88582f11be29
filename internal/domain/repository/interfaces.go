package repository

import (
	"context"

	"MarketSignal/internal/domain/models"
)

// SignalPublisher ships pipeline output to downstream consumers.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, r *models.SignalReport) error
	PublishAlert(ctx context.Context, r *models.AnomalyReport) error
	Close() error
}

// Metrics records pipeline outcomes.
type Metrics interface {
	RecordPrediction(model string)
	RecordAnomaly(severity string)
	RecordRecommendation(action string)
	RecordMessageSent(backend, kind string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
