package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketSignal/internal/domain/models"
	"MarketSignal/internal/repository"
)

type recordingInvalidator struct {
	stocks []string
	err    error
}

func (r *recordingInvalidator) Invalidate(_ context.Context, stock string) error {
	r.stocks = append(r.stocks, stock)
	return r.err
}

func ingestBar(day int, px float64) models.PriceBar {
	return models.PriceBar{
		Date: time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC),
		Open: px, High: px + 0.2, Low: px - 0.2, Close: px,
		Volume: 500, Transactions: 12,
	}
}

func TestIngestWritesAndInvalidates(t *testing.T) {
	store := repository.NewMemoryBarStore()
	inv := &recordingInvalidator{}
	u := NewBarIngest(store, inv, nil)

	res, err := u.Ingest(context.Background(), " sfbt ", []models.PriceBar{ingestBar(5, 18.4), ingestBar(4, 18.1)})
	require.NoError(t, err)

	assert.Equal(t, "SFBT", res.Stock)
	assert.Equal(t, 2, res.Written)
	require.NotNil(t, res.Latest)
	assert.Equal(t, 18.4, res.Latest.Close)
	assert.Equal(t, []string{"SFBT"}, inv.stocks)

	bars, err := store.GetLatestBars(context.Background(), "SFBT", 10)
	require.NoError(t, err)
	assert.Len(t, bars, 2)
}

func TestIngestKeepsWriteWhenInvalidationFails(t *testing.T) {
	u := NewBarIngest(repository.NewMemoryBarStore(), &recordingInvalidator{err: errors.New("redis down")}, nil)
	res, err := u.Ingest(context.Background(), "BIAT", []models.PriceBar{ingestBar(5, 90)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)
}

func TestIngestRejectsBadInput(t *testing.T) {
	u := NewBarIngest(repository.NewMemoryBarStore(), nil, nil)
	ctx := context.Background()

	_, err := u.Ingest(ctx, " ", []models.PriceBar{ingestBar(5, 1)})
	assert.ErrorIs(t, err, ErrInvalidStock)

	inverted := ingestBar(5, 10)
	inverted.High, inverted.Low = 9, 11
	tests := []struct {
		name string
		bars []models.PriceBar
	}{
		{"empty", nil},
		{"no date", []models.PriceBar{{Close: 10, High: 10, Low: 10}}},
		{"zero close", []models.PriceBar{ingestBar(5, 0)}},
		{"high below low", []models.PriceBar{inverted}},
		{"too many", make([]models.PriceBar, MaxIngestBars+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := u.Ingest(ctx, "SFBT", tt.bars)
			assert.ErrorIs(t, err, ErrInvalidBar)
		})
	}
}

func TestSeedLoadsEveryInstrument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
	  "SFBT": [{"date":"2024-03-04","open":18,"high":18.5,"low":17.9,"close":18.2,"volume":1000},
	           {"date":"2024-03-05","open":18.2,"high":18.6,"low":18,"close":18.4,"volume":900}],
	  "biat": [{"date":"2024-03-05","open":90,"high":91,"low":89,"close":90.5,"volume":300}]
	}`), 0o600))

	store := repository.NewMemoryBarStore()
	n, err := NewBarIngest(store, nil, nil).Seed(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	biat, err := store.GetLatestBars(context.Background(), "BIAT", 5)
	require.NoError(t, err)
	require.Len(t, biat, 1)
	assert.Equal(t, 90.5, biat[0].Close)
}

func TestSeedReportsBadFile(t *testing.T) {
	u := NewBarIngest(repository.NewMemoryBarStore(), nil, nil)

	_, err := u.Seed(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"SFBT": [{"date":"2024-03-05","close":0}]}`), 0o600))
	_, err = u.Seed(context.Background(), path)
	assert.ErrorIs(t, err, ErrInvalidBar)
}
