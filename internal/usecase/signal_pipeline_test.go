package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketSignal/internal/domain/models"
	"MarketSignal/internal/services/anomaly"
	"MarketSignal/internal/services/prediction"
	"MarketSignal/internal/services/stats"
	"MarketSignal/pkg/cache"
)

var fixedNow = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

// dailyBars returns n consecutive daily bars ending on fixedNow's date.
func dailyBars(n int, closeAt func(i int) float64) []models.PriceBar {
	out := make([]models.PriceBar, n)
	first := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(n - 1))
	for i := range out {
		c := closeAt(i)
		out[i] = models.PriceBar{
			Date: first.AddDate(0, 0, i),
			Open: c, High: c + 1, Low: c - 1, Close: c,
			Volume: 1000, Transactions: 10,
		}
	}
	return out
}

type fakeBarStore struct {
	bars  map[string][]models.PriceBar
	errs  map[string]error
	calls int32
}

func (f *fakeBarStore) GetBars(_ context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error) {
	atomic.AddInt32(&f.calls, 1)
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	var out []models.PriceBar
	for _, b := range f.bars[symbol] {
		if !b.Date.Before(from) && !b.Date.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBarStore) GetLatestBars(ctx context.Context, symbol string, n int) ([]models.PriceBar, error) {
	bars := f.bars[symbol]
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	return bars, nil
}

type fakeSentiment struct {
	out models.Sentiment
	err error
	n   int32
}

func (f *fakeSentiment) StockSentiment(_ context.Context, stock string) (models.Sentiment, error) {
	atomic.AddInt32(&f.n, 1)
	if f.err != nil {
		return models.NeutralSentiment(stock), f.err
	}
	out := f.out
	out.Stock = stock
	return out, nil
}

type countingPredictor struct {
	*prediction.Engine
	n int32
}

func (c *countingPredictor) PredictWithMarket(ctx context.Context, stock string, history, market []models.PriceBar) (models.PredictionResult, error) {
	atomic.AddInt32(&c.n, 1)
	return c.Engine.PredictWithMarket(ctx, stock, history, market)
}

func newPipeline(store *fakeBarStore, sent *fakeSentiment, c cache.Service, cfg PipelineConfig) (*SignalPipeline, *countingPredictor) {
	clock := func() time.Time { return fixedNow }
	pred := &countingPredictor{Engine: prediction.NewEngine(nil, prediction.WithClock(clock))}
	p := NewSignalPipeline(store, pred, anomaly.NewEngine(nil, anomaly.WithClock(clock)), sent, c, nil, cfg, nil)
	p.now = clock
	return p, pred
}

func flatClose(int) float64 { return 10 }

func TestRunFusesAllSignals(t *testing.T) {
	store := &fakeBarStore{bars: map[string][]models.PriceBar{"SFBT": dailyBars(90, flatClose)}}
	sent := &fakeSentiment{out: models.Sentiment{Score: 0.5, Label: "positive"}}
	p, _ := newPipeline(store, sent, nil, PipelineConfig{})

	r, err := p.Run(context.Background(), " sfbt ")
	require.NoError(t, err)

	assert.Equal(t, "SFBT", r.Stock)
	assert.Nil(t, r.Errors)
	require.NotNil(t, r.Prediction)
	assert.Equal(t, models.ModelFallback, r.Prediction.Model)
	require.NotNil(t, r.Anomaly)
	assert.Equal(t, models.SeverityNone, r.Anomaly.Severity)
	assert.False(t, r.Stats.Empty())
	assert.Equal(t, 0.5, r.Sentiment.Score)

	// 0.3 * 0.5 sentiment, no price or technical signal
	assert.Equal(t, models.ActionBuy, r.Recommendation.Action)
	assert.InDelta(t, 0.75, r.Recommendation.Confidence, 1e-9)
}

func TestRunDegradesFailedSentimentToNeutral(t *testing.T) {
	store := &fakeBarStore{bars: map[string][]models.PriceBar{"SFBT": dailyBars(90, flatClose)}}
	p, _ := newPipeline(store, &fakeSentiment{err: errors.New("news feed down")}, nil, PipelineConfig{})

	r, err := p.Run(context.Background(), "SFBT")
	require.NoError(t, err)
	assert.Contains(t, r.Errors["sentiment"], "news feed down")
	assert.Equal(t, "neutral", r.Sentiment.Label)
	assert.Zero(t, r.Sentiment.Score)
	assert.Equal(t, models.ActionHold, r.Recommendation.Action)
}

func TestRunWithSentimentSkipsProvider(t *testing.T) {
	store := &fakeBarStore{bars: map[string][]models.PriceBar{"SFBT": dailyBars(90, flatClose)}}
	sent := &fakeSentiment{}
	p, _ := newPipeline(store, sent, nil, PipelineConfig{})

	r, err := p.RunWithSentiment(context.Background(), "SFBT", -0.6)
	require.NoError(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&sent.n))
	assert.Equal(t, -0.6, r.Sentiment.Score)
	assert.Equal(t, models.ActionSell, r.Recommendation.Action)
}

func TestRunHistoryErrors(t *testing.T) {
	boom := errors.New("clickhouse down")
	store := &fakeBarStore{
		bars: map[string][]models.PriceBar{},
		errs: map[string]error{"BIAT": boom},
	}
	p, _ := newPipeline(store, &fakeSentiment{}, nil, PipelineConfig{})

	_, err := p.Run(context.Background(), "SFBT")
	assert.ErrorIs(t, err, ErrNoHistory)

	_, err = p.Run(context.Background(), "BIAT")
	assert.ErrorIs(t, err, boom)

	_, err = p.Run(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidStock)
}

func TestRunRecordsMarketIndexFailure(t *testing.T) {
	store := &fakeBarStore{
		bars: map[string][]models.PriceBar{"SFBT": dailyBars(90, flatClose)},
		errs: map[string]error{"TUNINDEX": errors.New("index missing")},
	}
	p, _ := newPipeline(store, &fakeSentiment{}, nil, PipelineConfig{MarketIndex: "TUNINDEX"})

	r, err := p.Run(context.Background(), "SFBT")
	require.NoError(t, err)
	assert.Equal(t, "index missing", r.Errors["market"])
	assert.NotNil(t, r.Prediction)
}

func TestStatsUsesWindowEndingAtLatestBar(t *testing.T) {
	all := dailyBars(60, func(i int) float64 { return float64(10 + i) })
	store := &fakeBarStore{bars: map[string][]models.PriceBar{"SFBT": all}}
	p, _ := newPipeline(store, &fakeSentiment{}, nil, PipelineConfig{StatsWindowDays: 30})

	got, err := p.Stats(context.Background(), "SFBT")
	require.NoError(t, err)
	assert.Equal(t, stats.Compute(all[30:]), got)
}

func TestPredictionIsCachedPerLatestBar(t *testing.T) {
	store := &fakeBarStore{bars: map[string][]models.PriceBar{"SFBT": dailyBars(90, flatClose)}}
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(time.Hour))
	defer mc.Close()
	p, pred := newPipeline(store, &fakeSentiment{}, mc, PipelineConfig{PredictionTTL: time.Minute})

	first, err := p.Prediction(context.Background(), "SFBT")
	require.NoError(t, err)
	second, err := p.Prediction(context.Background(), "SFBT")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&pred.n))
	assert.Equal(t, first.Model, second.Model)
	assert.Len(t, second.Forecasts, len(first.Forecasts))
}

func TestSentimentIsCached(t *testing.T) {
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(time.Hour))
	defer mc.Close()
	sent := &fakeSentiment{out: models.Sentiment{Score: 0.3, Label: "positive"}}
	p, _ := newPipeline(&fakeBarStore{}, sent, mc, PipelineConfig{SentimentTTL: time.Minute})

	for i := 0; i < 3; i++ {
		s, err := p.Sentiment(context.Background(), "sfbt")
		require.NoError(t, err)
		assert.Equal(t, 0.3, s.Score)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&sent.n))
}

func TestInvalidateDropsCachedResults(t *testing.T) {
	store := &fakeBarStore{bars: map[string][]models.PriceBar{"SFBT": dailyBars(90, flatClose)}}
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(time.Hour))
	defer mc.Close()
	sent := &fakeSentiment{out: models.Sentiment{Score: 0.1, Label: "positive"}}
	p, pred := newPipeline(store, sent, mc, PipelineConfig{
		PredictionTTL: time.Minute,
		StatsTTL:      time.Minute,
		SentimentTTL:  time.Minute,
	})
	ctx := context.Background()

	_, err := p.Run(ctx, "SFBT")
	require.NoError(t, err)
	_, err = p.Run(ctx, "SFBT")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&pred.n))
	assert.Equal(t, int32(1), atomic.LoadInt32(&sent.n))

	require.NoError(t, p.Invalidate(ctx, "sfbt"))
	assert.Zero(t, mc.Len())

	_, err = p.Run(ctx, "SFBT")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&pred.n))
	assert.Equal(t, int32(2), atomic.LoadInt32(&sent.n))

	assert.ErrorIs(t, p.Invalidate(ctx, " "), ErrInvalidStock)
}
