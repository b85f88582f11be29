package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	applogger "MarketSignal/pkg/logger"
)

// MessageHandler handles the messages of one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// ErrPermanent marks a handler error that retrying cannot fix.
var ErrPermanent = errors.New("permanent")

// Permanent wraps err so the consumer skips the remaining retries and
// commits the message.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type partitionKey struct {
	topic     string
	partition int
}

// Consumer fetches from every registered topic and fans messages out to a
// worker pool. Messages of one partition are handled one at a time and a
// partition's offset advances only past messages that are done with.
type Consumer struct {
	cfg       *ConsumerConfig
	handlers  map[string]MessageHandler
	readers   map[string]messageReader
	newReader func(topic string) messageReader
	dlq       messageWriter
	hook      ConsumerHook
	queue     chan *kafka.Message

	ctx     context.Context
	cancel  context.CancelFunc
	fetchWG sync.WaitGroup
	workWG  sync.WaitGroup
	stop    sync.Once

	partMu    sync.Mutex
	partLocks map[partitionKey]*sync.Mutex
	offsets   *offsetTracker

	l *applogger.Logger
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errNoBrokers
	}
	if cfg.Logger == nil {
		cfg.Logger = applogger.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		cfg:       cfg,
		handlers:  make(map[string]MessageHandler),
		readers:   make(map[string]messageReader),
		newReader: func(topic string) messageReader { return cfg.reader(topic) },
		hook:      NoopHook{},
		queue:     make(chan *kafka.Message, cfg.BufferSize),
		ctx:       ctx,
		cancel:    cancel,
		partLocks: make(map[partitionKey]*sync.Mutex),
		offsets:   newOffsetTracker(),
		l:         cfg.Logger.With(applogger.String("component", "kafka_consumer")),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.Hash{}}
	}
	return c, nil
}

// RegisterHandler binds handler to its topic. The first handler registered
// for a topic wins.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.l.Warn("handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// WithConsumerHook installs lifecycle hooks. Call it before Start.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start opens one reader per registered topic and starts the workers.
func (c *Consumer) Start() error {
	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.workWG.Add(1)
		go c.work()
	}
	for topic := range c.handlers {
		r := c.newReader(topic)
		c.readers[topic] = r
		c.fetchWG.Add(1)
		go c.fetch(topic, r)
	}
	c.l.Info("consumer started",
		applogger.Int("topics", len(c.readers)),
		applogger.Int("workers", c.cfg.WorkerCount),
		applogger.String("group", c.cfg.GroupID))
	return nil
}

// Stop ends fetching, lets the workers drain the buffered messages and closes
// the readers. Uncommitted messages are redelivered to the group later.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stop.Do(func() {
		c.cancel()
		c.fetchWG.Wait()
		close(c.queue)

		done := make(chan struct{})
		go func() {
			c.workWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("kafka consumer stop: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.l.Warn("close reader failed", applogger.String("topic", topic), applogger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.l.Warn("close dlq writer failed", applogger.Error(cerr))
			}
		}
		c.l.Info("consumer stopped")
	})
	return err
}

func (c *Consumer) fetch(topic string, r messageReader) {
	defer c.fetchWG.Done()
	depth := stats().queueDepth.WithLabelValues(topic)

	for attempt := 1; ; {
		km, err := r.FetchMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.l.Warn("fetch failed", applogger.String("topic", topic), applogger.Error(err))
			if !c.sleep(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
				return
			}
			attempt++
			continue
		}
		attempt = 1
		c.offsets.fetched(km)

		select {
		case c.queue <- &km:
			depth.Set(float64(len(c.queue)))
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Consumer) work() {
	defer c.workWG.Done()
	for km := range c.queue {
		c.process(km)
	}
}

func (c *Consumer) process(km *kafka.Message) {
	h, ok := c.handlers[km.Topic]
	if !ok {
		return
	}
	start := time.Now()
	lock := c.partitionLock(km.Topic, km.Partition)
	lock.Lock()
	defer lock.Unlock()

	attempts, aborted, err := c.handle(h, km)
	if aborted {
		return
	}

	outcome, commit := "ok", true
	if err != nil {
		outcome, commit = "failed", errors.Is(err, ErrPermanent)
		if commit {
			outcome = "permanent"
		}
		c.l.Error("message handling failed",
			applogger.String("topic", km.Topic),
			applogger.Int("partition", km.Partition),
			applogger.Int64("offset", km.Offset),
			applogger.Int("attempts", attempts),
			applogger.Error(err))
		if c.deadLetter(km, err) {
			outcome, commit = "dead_letter", true
		}
	}
	if commit {
		c.markDone(km)
	}

	m := stats()
	m.handled.WithLabelValues(km.Topic, outcome).Inc()
	m.handleSecs.WithLabelValues(km.Topic).Observe(time.Since(start).Seconds())
}

// handle runs the handler with retries. aborted reports that the consumer
// stopped while waiting to retry.
func (c *Consumer) handle(h MessageHandler, km *kafka.Message) (attempts int, aborted bool, err error) {
	for attempts = 1; ; attempts++ {
		ctx, hkm, data, berr := c.hook.BeforeHandle(context.Background(), km.Topic, *km, km.Value)
		if berr != nil {
			err = berr
			break
		}
		err = safeHandle(ctx, h, data)
		c.hook.AfterHandle(ctx, km.Topic, hkm, data, err)
		if err == nil || errors.Is(err, ErrPermanent) || attempts > c.cfg.RetryMax {
			break
		}
		c.hook.OnError(ctx, km.Topic, hkm, data, err)
		stats().retries.WithLabelValues(km.Topic).Inc()
		if !c.sleep(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempts)) {
			return attempts, true, err
		}
	}
	if err != nil {
		c.hook.OnError(context.Background(), km.Topic, *km, km.Value, err)
	}
	return attempts, false, err
}

// safeHandle turns a handler panic into a permanent error.
func safeHandle(ctx context.Context, h MessageHandler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return h.Handle(ctx, data)
}

// deadLetter forwards km to the DLQ topic and reports whether it was written.
func (c *Consumer) deadLetter(km *kafka.Message, cause error) bool {
	if c.dlq == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic: c.cfg.DLQTopic,
		Key:   km.Key,
		Value: km.Value,
		Time:  time.Now(),
		Headers: append(km.Headers,
			kafka.Header{Key: "source_topic", Value: []byte(km.Topic)},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
		),
	})
	if err != nil {
		c.l.Error("dlq write failed", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(err))
		return false
	}
	stats().deadLetters.WithLabelValues(km.Topic).Inc()
	return true
}

// markDone commits up to km unless an earlier offset of the partition is
// still unfinished.
func (c *Consumer) markDone(km *kafka.Message) {
	next, ok := c.offsets.finished(*km)
	if !ok {
		held, _ := c.offsets.blocked(*km)
		c.l.Debug("commit held behind unfinished message",
			applogger.String("topic", km.Topic),
			applogger.Int("partition", km.Partition),
			applogger.Int64("offset", km.Offset),
			applogger.Int64("held_at", held))
		return
	}
	c.commit(&next)
}

func (c *Consumer) commit(km *kafka.Message) {
	r := c.readers[km.Topic]
	if r == nil {
		return
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond
	op := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return r.CommitMessages(ctx, *km)
	}
	if err := backoff.Retry(op, backoff.WithMaxRetries(bo, 2)); err != nil {
		c.l.Error("commit failed",
			applogger.String("topic", km.Topic),
			applogger.Int64("offset", km.Offset),
			applogger.Error(err))
	}
}

// sleep waits for d and reports false when the consumer stopped first.
func (c *Consumer) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	c.partMu.Lock()
	defer c.partMu.Unlock()
	k := partitionKey{topic, partition}
	mu, ok := c.partLocks[k]
	if !ok {
		mu = &sync.Mutex{}
		c.partLocks[k] = mu
	}
	return mu
}

// backoffWithJitter doubles min per attempt up to max and removes up to half
// of it at random.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := max
	if attempt < 32 {
		if d := min << uint(attempt-1); d > 0 && d < max {
			exp = d
		}
	}
	return exp - time.Duration(rand.Int63n(int64(exp)/2+1))
}
