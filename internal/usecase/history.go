package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MarketSignal/internal/domain/models"
	domrepo "MarketSignal/internal/domain/repository"
	xutil "MarketSignal/pkg/util"
)

const (
	DefaultHistoryDays = 30
	MaxHistoryDays     = 3650
)

// ErrInvalidRange rejects a history request outside 1..MaxHistoryDays.
var ErrInvalidRange = errors.New("days must be between 1 and 3650")

// HistoryUseCase serves raw daily bars.
type HistoryUseCase struct {
	store domrepo.BarStore
	now   func() time.Time
}

func NewHistoryUseCase(store domrepo.BarStore) *HistoryUseCase {
	return &HistoryUseCase{store: store, now: time.Now}
}

type GetHistoryParams struct {
	Symbol string
	Days   int
	Limit  int
}

type GetHistoryResult struct {
	Symbol string            `json:"stock"`
	Days   int               `json:"days"`
	From   string            `json:"from"`
	To     string            `json:"to"`
	Count  int               `json:"count"`
	Bars   []models.PriceBar `json:"history"`
}

func (uc *HistoryUseCase) GetHistory(ctx context.Context, p GetHistoryParams) (*GetHistoryResult, error) {
	p.Symbol = xutil.NormalizeSymbol(p.Symbol)
	if p.Symbol == "" {
		return nil, ErrInvalidStock
	}
	if p.Days == 0 {
		p.Days = DefaultHistoryDays
	}
	if p.Days < 1 || p.Days > MaxHistoryDays {
		return nil, ErrInvalidRange
	}
	if p.Limit <= 0 || p.Limit > MaxHistoryDays {
		p.Limit = MaxHistoryDays
	}

	from, to := xutil.TrailingWindow(uc.now(), p.Days)
	bars, err := uc.store.GetBars(ctx, p.Symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("get history %s: %w", p.Symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoHistory, p.Symbol)
	}
	// keep the most recent bars when clamped
	if len(bars) > p.Limit {
		bars = bars[len(bars)-p.Limit:]
	}

	return &GetHistoryResult{
		Symbol: p.Symbol,
		Days:   p.Days,
		From:   from.Format(xutil.DateLayout),
		To:     to.Format(xutil.DateLayout),
		Count:  len(bars),
		Bars:   bars,
	}, nil
}
