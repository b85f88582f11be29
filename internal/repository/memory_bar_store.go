package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"MarketSignal/internal/domain/models"
	domrepo "MarketSignal/internal/domain/repository"
	xutil "MarketSignal/pkg/util"
)

var _ domrepo.BarRepository = (*MemoryBarStore)(nil)

// MemoryBarStore keeps bars in process. It serves when ClickHouse is disabled.
type MemoryBarStore struct {
	mu   sync.RWMutex
	bars map[string][]models.PriceBar
}

func NewMemoryBarStore() *MemoryBarStore {
	return &MemoryBarStore{bars: make(map[string][]models.PriceBar)}
}

// Put merges bars into symbol's series, replacing bars of the same date.
func (s *MemoryBarStore) Put(symbol string, bars ...models.PriceBar) {
	symbol = xutil.NormalizeSymbol(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	byDay := make(map[time.Time]models.PriceBar, len(s.bars[symbol])+len(bars))
	for _, b := range s.bars[symbol] {
		byDay[xutil.Day(b.Date)] = b
	}
	for _, b := range bars {
		b.Date = xutil.Day(b.Date)
		byDay[b.Date] = b
	}
	merged := make([]models.PriceBar, 0, len(byDay))
	for _, b := range byDay {
		merged = append(merged, b)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Date.Before(merged[j].Date) })
	s.bars[symbol] = merged
}

func (s *MemoryBarStore) PutBars(_ context.Context, symbol string, bars []models.PriceBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	s.Put(symbol, bars...)
	return len(bars), nil
}

func (s *MemoryBarStore) GetBars(_ context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error) {
	from, to = xutil.Day(from), xutil.Day(to)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PriceBar
	for _, b := range s.bars[symbol] {
		if !b.Date.Before(from) && !b.Date.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *MemoryBarStore) GetLatestBars(_ context.Context, symbol string, n int) ([]models.PriceBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bars := s.bars[symbol]
	if n > 0 && len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	return append([]models.PriceBar(nil), bars...), nil
}
