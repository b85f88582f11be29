package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"MarketSignal/internal/domain/models"
	domrepo "MarketSignal/internal/domain/repository"
	applogger "MarketSignal/pkg/logger"
	xutil "MarketSignal/pkg/util"
)

// MaxIngestBars bounds one ingest call.
const MaxIngestBars = 5000

// ErrInvalidBar rejects a bar that cannot be stored.
var ErrInvalidBar = errors.New("invalid bar")

// Invalidator drops cached results derived from an instrument's bars.
type Invalidator interface {
	Invalidate(ctx context.Context, stock string) error
}

// BarIngest writes daily bars into the bar store and invalidates the cached
// signals computed from the previous history.
type BarIngest struct {
	store domrepo.BarRepository
	inv   Invalidator
	l     *applogger.Logger
}

// NewBarIngest builds the ingest use case. inv may be nil.
func NewBarIngest(store domrepo.BarRepository, inv Invalidator, l *applogger.Logger) *BarIngest {
	if l == nil {
		l = applogger.NewNop()
	}
	return &BarIngest{store: store, inv: inv, l: l.With(applogger.String("component", "bar_ingest"))}
}

type IngestResult struct {
	Stock   string           `json:"stock"`
	Written int              `json:"written"`
	Latest  *models.PriceBar `json:"latest,omitempty"`
}

// Ingest validates and stores bars for stock. A cache invalidation failure
// is logged and does not fail the write.
func (u *BarIngest) Ingest(ctx context.Context, stock string, bars []models.PriceBar) (*IngestResult, error) {
	stock = xutil.NormalizeSymbol(stock)
	if stock == "" {
		return nil, ErrInvalidStock
	}
	if err := validateBars(bars); err != nil {
		return nil, err
	}

	n, err := u.store.PutBars(ctx, stock, bars)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", stock, err)
	}
	if u.inv != nil {
		if err := u.inv.Invalidate(ctx, stock); err != nil {
			u.l.Warn("cache invalidation failed", applogger.String("stock", stock), applogger.Error(err))
		}
	}

	res := &IngestResult{Stock: stock, Written: n}
	latest, err := u.store.GetLatestBars(ctx, stock, 1)
	switch {
	case err != nil:
		u.l.Warn("read back latest bar failed", applogger.String("stock", stock), applogger.Error(err))
	case len(latest) == 1:
		res.Latest = &latest[0]
	}
	u.l.Info("bars ingested", applogger.String("stock", stock), applogger.Int("written", n))
	return res, nil
}

// Seed loads a JSON file mapping instrument codes to bar lists, e.g.
// {"SFBT": [{"date": "2024-01-02", "close": 18.4, ...}]}. It returns the
// number of bars written.
func (u *BarIngest) Seed(ctx context.Context, path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var series map[string][]models.PriceBar
	if err := json.Unmarshal(b, &series); err != nil {
		return 0, fmt.Errorf("decode seed file %s: %w", path, err)
	}

	stocks := make([]string, 0, len(series))
	for s := range series {
		stocks = append(stocks, s)
	}
	sort.Strings(stocks)

	total := 0
	for _, s := range stocks {
		for lo := 0; lo < len(series[s]); lo += MaxIngestBars {
			hi := min(lo+MaxIngestBars, len(series[s]))
			res, err := u.Ingest(ctx, s, series[s][lo:hi])
			if err != nil {
				return total, fmt.Errorf("seed %s: %w", s, err)
			}
			total += res.Written
		}
	}
	return total, nil
}

func validateBars(bars []models.PriceBar) error {
	if len(bars) == 0 {
		return fmt.Errorf("%w: no bars", ErrInvalidBar)
	}
	if len(bars) > MaxIngestBars {
		return fmt.Errorf("%w: %d bars exceeds %d", ErrInvalidBar, len(bars), MaxIngestBars)
	}
	for i, b := range bars {
		switch {
		case b.Date.IsZero():
			return fmt.Errorf("%w: bar %d has no date", ErrInvalidBar, i)
		case b.Close <= 0:
			return fmt.Errorf("%w: bar %d close must be positive", ErrInvalidBar, i)
		case b.High < b.Low:
			return fmt.Errorf("%w: bar %d high below low", ErrInvalidBar, i)
		case b.Open < 0 || b.Low < 0 || b.Volume < 0 || b.Transactions < 0:
			return fmt.Errorf("%w: bar %d has negative values", ErrInvalidBar, i)
		}
	}
	return nil
}
