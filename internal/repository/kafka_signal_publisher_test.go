package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketSignal/internal/domain/models"
	pkgkafka "MarketSignal/pkg/kafka"
)

type sent struct {
	topic   string
	key     string
	value   SignalEnvelope
	traceID string
}

type fakeProducer struct {
	msgs   []sent
	err    error
	closed bool
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, sent{
		topic:   topic,
		key:     string(key),
		value:   value.(SignalEnvelope),
		traceID: pkgkafka.TraceIDFromContext(ctx),
	})
	return nil
}

func (f *fakeProducer) Close() error {
	f.closed = true
	return nil
}

func TestPublishSignalAssignsTraceID(t *testing.T) {
	fp := &fakeProducer{}
	p := &KafkaSignalPublisher{producer: fp, signalTopic: "signals", alertTopic: "alerts"}

	r := &models.SignalReport{Stock: "SFBT"}
	require.NoError(t, p.PublishSignal(context.Background(), r))

	require.Len(t, fp.msgs, 1)
	m := fp.msgs[0]
	assert.Equal(t, "signals", m.topic)
	assert.Equal(t, "SFBT", m.key)
	assert.Equal(t, "signal", m.value.Kind)
	_, err := uuid.Parse(r.ID)
	assert.NoError(t, err)
	assert.Equal(t, r.ID, m.value.TraceID)
	assert.Equal(t, r.ID, m.traceID)
}

func TestPublishAlertReusesInboundTraceID(t *testing.T) {
	fp := &fakeProducer{}
	p := &KafkaSignalPublisher{producer: fp, signalTopic: "signals", alertTopic: "alerts"}

	ctx := pkgkafka.WithTraceID(context.Background(), "req-42")
	require.NoError(t, p.PublishAlert(ctx, &models.AnomalyReport{Stock: "BIAT", Severity: models.SeverityHigh}))

	require.Len(t, fp.msgs, 1)
	assert.Equal(t, "alerts", fp.msgs[0].topic)
	assert.Equal(t, "req-42", fp.msgs[0].value.TraceID)
}

func TestPublishAlertWithoutTopicIsNoop(t *testing.T) {
	fp := &fakeProducer{}
	p := &KafkaSignalPublisher{producer: fp, signalTopic: "signals"}
	require.NoError(t, p.PublishAlert(context.Background(), &models.AnomalyReport{Stock: "BIAT"}))
	assert.Empty(t, fp.msgs)
}

func TestPublishWrapsProducerError(t *testing.T) {
	boom := errors.New("broker down")
	p := &KafkaSignalPublisher{producer: &fakeProducer{err: boom}, signalTopic: "signals"}
	err := p.PublishSignal(context.Background(), &models.SignalReport{Stock: "SFBT"})
	assert.ErrorIs(t, err, boom)
}

func TestCloseClosesProducer(t *testing.T) {
	fp := &fakeProducer{}
	p := &KafkaSignalPublisher{producer: fp}
	require.NoError(t, p.Close())
	assert.True(t, fp.closed)
}
