package usecase

import (
	"context"
	"sync"
	"time"

	applogger "MarketSignal/pkg/logger"
	"MarketSignal/pkg/queue"
	xutil "MarketSignal/pkg/util"
)

// Watchlist enqueues a refresh for every listed instrument on start and then
// once per interval, keeping their cached signals warm.
type Watchlist struct {
	q      queue.Enqueuer
	stocks []string
	every  time.Duration
	l      *applogger.Logger

	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatchlist returns nil when there is nothing to watch.
func NewWatchlist(q queue.Enqueuer, stocks []string, every time.Duration, l *applogger.Logger) *Watchlist {
	stocks = xutil.NormalizeSymbols(stocks)
	if q == nil || len(stocks) == 0 {
		return nil
	}
	if every <= 0 {
		every = 15 * time.Minute
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &Watchlist{
		q:      q,
		stocks: stocks,
		every:  every,
		l:      l.With(applogger.String("component", "watchlist")),
		done:   make(chan struct{}),
	}
}

// Stocks returns the normalized instrument codes.
func (w *Watchlist) Stocks() []string {
	return append([]string(nil), w.stocks...)
}

func (w *Watchlist) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go func() {
		defer close(w.done)
		t := time.NewTicker(w.every)
		defer t.Stop()
		for {
			w.EnqueueAll(ctx)
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
	return nil
}

func (w *Watchlist) Stop(ctx context.Context) error {
	if w.cancel == nil {
		return nil
	}
	w.once.Do(w.cancel)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnqueueAll requests a refresh per instrument and returns how many were
// accepted. Failures are logged and do not stop the round.
func (w *Watchlist) EnqueueAll(ctx context.Context) int {
	queued := 0
	for _, s := range w.stocks {
		if ctx.Err() != nil {
			break
		}
		if err := w.q.Enqueue(ctx, RefreshJobType, RefreshRequest{Stock: s}); err != nil {
			w.l.Warn("watchlist enqueue failed", applogger.String("stock", s), applogger.Error(err))
			continue
		}
		queued++
	}
	w.l.Debug("watchlist round", applogger.Int("queued", queued), applogger.Int("stocks", len(w.stocks)))
	return queued
}
