package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Janitor prunes idle buckets on a fixed interval.
type Janitor struct {
	limiter *Limiter
	every   time.Duration
	idle    time.Duration

	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

func NewJanitor(l *Limiter, every, idle time.Duration) *Janitor {
	if every <= 0 {
		every = time.Minute
	}
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &Janitor{limiter: l, every: every, idle: idle, done: make(chan struct{})}
}

func (j *Janitor) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	go func() {
		defer close(j.done)
		t := time.NewTicker(j.every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				j.limiter.Prune(j.idle)
			}
		}
	}()
	return nil
}

func (j *Janitor) Stop(ctx context.Context) error {
	if j.cancel == nil {
		return nil
	}
	j.once.Do(j.cancel)
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
