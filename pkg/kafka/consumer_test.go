package kafka

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []int64
	closed    bool
}

func newFakeReader() *fakeReader {
	return &fakeReader{msgs: make(chan kafka.Message, 8)}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type failingWriter struct{}

func (failingWriter) WriteMessages(context.Context, ...kafka.Message) error {
	return errors.New("broker unavailable")
}

func (failingWriter) Close() error { return nil }

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

type funcHandler struct {
	topic string
	calls int32
	fn    func(ctx context.Context, data []byte) error
}

func (h *funcHandler) Topic() string { return h.topic }

func (h *funcHandler) Handle(ctx context.Context, data []byte) error {
	atomic.AddInt32(&h.calls, 1)
	return h.fn(ctx, data)
}

func startConsumer(t *testing.T, h MessageHandler, opts ...ConsumerOption) (*Consumer, *fakeReader) {
	t.Helper()
	opts = append([]ConsumerOption{
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond),
	}, opts...)
	c, err := NewConsumer(opts...)
	require.NoError(t, err)

	r := newFakeReader()
	c.newReader = func(string) messageReader { return r }
	c.RegisterHandler(h)
	require.NoError(t, c.Start())
	return c, r
}

func stopConsumer(t *testing.T, c *Consumer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
}

func TestNewConsumerRequiresBrokers(t *testing.T) {
	_, err := NewConsumer()
	assert.ErrorIs(t, err, errNoBrokers)
}

func TestConsumerCommitsHandledMessages(t *testing.T) {
	var trace atomic.Value
	h := &funcHandler{topic: "marketsignal.requests", fn: func(ctx context.Context, data []byte) error {
		trace.Store(TraceIDFromContext(ctx))
		return nil
	}}
	c, r := startConsumer(t, h)
	c.WithConsumerHook(TraceHook{})

	r.msgs <- kafka.Message{
		Topic:   "marketsignal.requests",
		Offset:  7,
		Value:   []byte(`{"stock":"SFBT"}`),
		Headers: []kafka.Header{{Key: "trace_id", Value: []byte("req-1")}},
	}

	assert.Eventually(t, func() bool { return len(r.commits()) == 1 }, time.Second, 5*time.Millisecond)
	stopConsumer(t, c)

	assert.Equal(t, []int64{7}, r.commits())
	assert.Equal(t, "req-1", trace.Load())
	assert.True(t, r.closed)
}

func TestConsumerRetriesTransientErrorsWithoutCommit(t *testing.T) {
	h := &funcHandler{topic: "t", fn: func(context.Context, []byte) error { return errors.New("clickhouse down") }}
	c, r := startConsumer(t, h)

	r.msgs <- kafka.Message{Topic: "t", Offset: 1}

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&h.calls) == 3 }, time.Second, 5*time.Millisecond)
	stopConsumer(t, c)
	assert.Empty(t, r.commits())
}

func TestConsumerCommitsPermanentErrorsAtOnce(t *testing.T) {
	h := &funcHandler{topic: "t", fn: func(context.Context, []byte) error { return Permanent(errors.New("bad payload")) }}
	c, r := startConsumer(t, h)

	r.msgs <- kafka.Message{Topic: "t", Offset: 4}

	assert.Eventually(t, func() bool { return len(r.commits()) == 1 }, time.Second, 5*time.Millisecond)
	stopConsumer(t, c)
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.calls))
}

func TestConsumerTreatsPanicAsPermanent(t *testing.T) {
	h := &funcHandler{topic: "t", fn: func(context.Context, []byte) error { panic("nil model") }}
	c, r := startConsumer(t, h)

	r.msgs <- kafka.Message{Topic: "t", Offset: 9}

	assert.Eventually(t, func() bool { return len(r.commits()) == 1 }, time.Second, 5*time.Millisecond)
	stopConsumer(t, c)
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.calls))
}

func TestConsumerDeadLettersExhaustedMessages(t *testing.T) {
	h := &funcHandler{topic: "t", fn: func(context.Context, []byte) error { return errors.New("timeout") }}
	c, r := startConsumer(t, h, WithConsumerDLQ("t.dlq"))
	dlq := &fakeWriter{}
	c.dlq = dlq

	r.msgs <- kafka.Message{Topic: "t", Offset: 3, Key: []byte("SFBT"), Value: []byte("x")}

	assert.Eventually(t, func() bool { return len(r.commits()) == 1 }, time.Second, 5*time.Millisecond)
	stopConsumer(t, c)

	got := dlq.written()
	require.Len(t, got, 1)
	assert.Equal(t, "t.dlq", got[0].Topic)
	assert.Equal(t, []byte("SFBT"), got[0].Key)
	headers := map[string]string{}
	for _, hd := range got[0].Headers {
		headers[hd.Key] = string(hd.Value)
	}
	assert.Equal(t, "t", headers["source_topic"])
	assert.Equal(t, "timeout", headers["error"])
}

func TestConsumerHoldsCommitBehindUndeliverableMessage(t *testing.T) {
	var good int32
	h := &funcHandler{topic: "t", fn: func(_ context.Context, data []byte) error {
		if string(data) == "bad" {
			return errors.New("timeout")
		}
		atomic.AddInt32(&good, 1)
		return nil
	}}
	c, r := startConsumer(t, h, WithConsumerDLQ("t.dlq"))
	c.dlq = failingWriter{}

	r.msgs <- kafka.Message{Topic: "t", Partition: 2, Offset: 10, Value: []byte("bad")}
	r.msgs <- kafka.Message{Topic: "t", Partition: 2, Offset: 11, Value: []byte("ok")}

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&good) == 1 && atomic.LoadInt32(&h.calls) == 4
	}, time.Second, 5*time.Millisecond)
	stopConsumer(t, c)

	assert.Empty(t, r.commits())
}

func TestConsumerCommitsOtherPartitionsPastAFailure(t *testing.T) {
	h := &funcHandler{topic: "t", fn: func(_ context.Context, data []byte) error {
		if string(data) == "bad" {
			return errors.New("timeout")
		}
		return nil
	}}
	c, r := startConsumer(t, h)

	r.msgs <- kafka.Message{Topic: "t", Partition: 0, Offset: 10, Value: []byte("bad")}
	r.msgs <- kafka.Message{Topic: "t", Partition: 1, Offset: 40, Value: []byte("ok")}

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&h.calls) == 4 }, time.Second, 5*time.Millisecond)
	stopConsumer(t, c)

	assert.Equal(t, []int64{40}, r.commits())
}

func TestOffsetTrackerCommitsContiguousPrefix(t *testing.T) {
	tr := newOffsetTracker()
	msg := func(off int64) kafka.Message { return kafka.Message{Topic: "t", Partition: 0, Offset: off} }
	for _, off := range []int64{5, 6, 7} {
		tr.fetched(msg(off))
	}

	_, ok := tr.finished(msg(6))
	assert.False(t, ok)
	held, _ := tr.blocked(msg(6))
	assert.Equal(t, int64(5), held)

	next, ok := tr.finished(msg(5))
	require.True(t, ok)
	assert.Equal(t, int64(6), next.Offset)

	next, ok = tr.finished(msg(7))
	require.True(t, ok)
	assert.Equal(t, int64(7), next.Offset)
	_, ok = tr.blocked(msg(7))
	assert.False(t, ok)
}

func TestOffsetTrackerResetsOnRewind(t *testing.T) {
	tr := newOffsetTracker()
	msg := func(off int64) kafka.Message { return kafka.Message{Topic: "t", Partition: 3, Offset: off} }
	tr.fetched(msg(10))
	tr.fetched(msg(11))

	tr.fetched(msg(10))
	next, ok := tr.finished(msg(10))
	require.True(t, ok)
	assert.Equal(t, int64(10), next.Offset)
}

func TestRegisterHandlerKeepsFirst(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}))
	require.NoError(t, err)
	first := &funcHandler{topic: "t"}
	c.RegisterHandler(first)
	c.RegisterHandler(&funcHandler{topic: "t"})
	assert.Same(t, first, c.handlers["t"])
}
