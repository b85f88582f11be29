package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"MarketSignal/internal/domain/models"
	domrepo "MarketSignal/internal/domain/repository"
	pkgkafka "MarketSignal/pkg/kafka"
	applogger "MarketSignal/pkg/logger"
	"MarketSignal/pkg/metrics"
)

// ScoreRequest is the message read from the requests topic.
type ScoreRequest struct {
	Stock     string   `json:"stock"`
	Sentiment *float64 `json:"sentiment,omitempty"`
}

// KafkaScoringHandler scores instruments named on a Kafka topic and publishes
// the resulting signals.
type KafkaScoringHandler struct {
	topic     string
	pipeline  *SignalPipeline
	publisher domrepo.SignalPublisher
	metrics   domrepo.Metrics
	minAlert  models.Severity
	l         *applogger.Logger
}

func NewKafkaScoringHandler(topic string, pipeline *SignalPipeline, publisher domrepo.SignalPublisher, m domrepo.Metrics, l *applogger.Logger) *KafkaScoringHandler {
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &KafkaScoringHandler{
		topic:     topic,
		pipeline:  pipeline,
		publisher: publisher,
		metrics:   m,
		minAlert:  models.SeverityMedium,
		l:         l.With(applogger.String("component", "scoring_handler")),
	}
}

func (h *KafkaScoringHandler) Topic() string { return h.topic }

// Handle runs the pipeline for one request. Malformed requests and unknown
// instruments are permanent failures.
func (h *KafkaScoringHandler) Handle(ctx context.Context, b []byte) error {
	var req ScoreRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode score request: %w", err))
	}
	if req.Sentiment != nil && (math.IsNaN(*req.Sentiment) || *req.Sentiment < -1 || *req.Sentiment > 1) {
		h.metrics.RecordError("consumer_validate")
		return pkgkafka.Permanent(fmt.Errorf("sentiment out of range for %s", req.Stock))
	}
	var (
		res *models.SignalReport
		err error
	)
	if req.Sentiment != nil {
		res, err = h.pipeline.RunWithSentiment(ctx, req.Stock, *req.Sentiment)
	} else {
		res, err = h.pipeline.Run(ctx, req.Stock)
	}
	if err != nil {
		h.metrics.RecordError("consumer_score")
		if errors.Is(err, ErrNoHistory) || errors.Is(err, ErrInvalidStock) {
			return pkgkafka.Permanent(err)
		}
		return err
	}

	return publishReport(ctx, h.publisher, h.metrics, h.minAlert, h.l, res)
}

// publishReport sends the signal and, when the anomaly is severe enough, an
// alert.
func publishReport(ctx context.Context, pub domrepo.SignalPublisher, m domrepo.Metrics, minAlert models.Severity, l *applogger.Logger, res *models.SignalReport) error {
	start := time.Now()
	if err := pub.PublishSignal(ctx, res); err != nil {
		m.RecordError("publish_signal")
		return err
	}
	m.RecordMessageSent("kafka", "signal")

	if res.Anomaly != nil && res.Anomaly.Severity.AtLeast(minAlert) {
		if err := pub.PublishAlert(ctx, res.Anomaly); err != nil {
			m.RecordError("publish_alert")
			return err
		}
		m.RecordMessageSent("kafka", "alert")
		l.Warn("anomaly alert published",
			applogger.String("stock", res.Stock),
			applogger.String("severity", string(res.Anomaly.Severity)))
	}
	m.RecordLatency("publish_seconds", time.Since(start).Seconds())
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaScoringHandler)(nil)
