package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"MarketSignal/internal/domain/models"
	domrepo "MarketSignal/internal/domain/repository"
	pkgkafka "MarketSignal/pkg/kafka"
)

var _ domrepo.SignalPublisher = (*KafkaSignalPublisher)(nil)

// producer is the subset of *pkgkafka.Producer the publisher needs.
type producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// SignalEnvelope is the message written to the signals and alerts topics.
type SignalEnvelope struct {
	TraceID string      `json:"trace_id"`
	Kind    string      `json:"kind"`
	Stock   string      `json:"stock"`
	Payload interface{} `json:"payload"`
}

// KafkaSignalPublisher implements SignalPublisher on a Kafka producer. Messages
// are keyed by stock so one instrument stays on one partition.
type KafkaSignalPublisher struct {
	producer    producer
	signalTopic string
	alertTopic  string
}

func NewKafkaSignalPublisher(p *pkgkafka.Producer, signalTopic, alertTopic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: p, signalTopic: signalTopic, alertTopic: alertTopic}
}

func (p *KafkaSignalPublisher) PublishSignal(ctx context.Context, r *models.SignalReport) error {
	if r == nil {
		return nil
	}
	if r.ID == "" {
		r.ID = traceID(ctx)
	}
	return p.publish(ctx, p.signalTopic, SignalEnvelope{
		TraceID: r.ID,
		Kind:    "signal",
		Stock:   r.Stock,
		Payload: r,
	})
}

func (p *KafkaSignalPublisher) PublishAlert(ctx context.Context, r *models.AnomalyReport) error {
	if r == nil || p.alertTopic == "" {
		return nil
	}
	return p.publish(ctx, p.alertTopic, SignalEnvelope{
		TraceID: traceID(ctx),
		Kind:    "anomaly",
		Stock:   r.Stock,
		Payload: r,
	})
}

func (p *KafkaSignalPublisher) publish(ctx context.Context, topic string, env SignalEnvelope) error {
	ctx = pkgkafka.WithTraceID(ctx, env.TraceID)
	if err := p.producer.Publish(ctx, topic, []byte(env.Stock), env); err != nil {
		return fmt.Errorf("publish %s %s: %w", env.Kind, env.Stock, err)
	}
	return nil
}

func (p *KafkaSignalPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// traceID reuses the inbound trace id when there is one.
func traceID(ctx context.Context) string {
	if id := pkgkafka.TraceIDFromContext(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}
