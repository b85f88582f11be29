package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketSignal/internal/domain/models"
)

func newHistory(store *fakeBarStore) *HistoryUseCase {
	uc := NewHistoryUseCase(store)
	uc.now = func() time.Time { return fixedNow }
	return uc
}

func TestGetHistoryDefaultsToThirtyDays(t *testing.T) {
	store := &fakeBarStore{bars: map[string][]models.PriceBar{"SFBT": dailyBars(90, flatClose)}}

	res, err := newHistory(store).GetHistory(context.Background(), GetHistoryParams{Symbol: "sfbt"})
	require.NoError(t, err)
	assert.Equal(t, "SFBT", res.Symbol)
	assert.Equal(t, 30, res.Days)
	assert.Equal(t, "2024-05-05", res.From)
	assert.Equal(t, "2024-06-03", res.To)
	assert.Equal(t, 30, res.Count)
}

func TestGetHistoryLimitKeepsLatest(t *testing.T) {
	all := dailyBars(10, func(i int) float64 { return float64(i) })
	store := &fakeBarStore{bars: map[string][]models.PriceBar{"SFBT": all}}

	res, err := newHistory(store).GetHistory(context.Background(), GetHistoryParams{Symbol: "SFBT", Days: 10, Limit: 3})
	require.NoError(t, err)
	require.Len(t, res.Bars, 3)
	assert.Equal(t, all[9], res.Bars[2])
}

func TestGetHistoryValidation(t *testing.T) {
	uc := newHistory(&fakeBarStore{})
	ctx := context.Background()

	_, err := uc.GetHistory(ctx, GetHistoryParams{Symbol: "SFBT", Days: -1})
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = uc.GetHistory(ctx, GetHistoryParams{Symbol: "SFBT", Days: 3651})
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = uc.GetHistory(ctx, GetHistoryParams{})
	assert.ErrorIs(t, err, ErrInvalidStock)
	_, err = uc.GetHistory(ctx, GetHistoryParams{Symbol: "NONE"})
	assert.ErrorIs(t, err, ErrNoHistory)
}
