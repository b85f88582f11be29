package repository

import (
	"context"
	"time"

	"MarketSignal/internal/domain/models"
)

// BarStore provides read access to daily price bars.
type BarStore interface {
	// GetBars returns bars for symbol with from <= date <= to, oldest first.
	GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error)
	// GetLatestBars returns the most recent n bars, oldest first.
	GetLatestBars(ctx context.Context, symbol string, n int) ([]models.PriceBar, error)
}

// BarWriter persists daily price bars.
type BarWriter interface {
	// PutBars upserts bars for symbol by date and returns how many were written.
	PutBars(ctx context.Context, symbol string, bars []models.PriceBar) (int, error)
}

// BarRepository is a BarStore that also accepts writes.
type BarRepository interface {
	BarStore
	BarWriter
}
