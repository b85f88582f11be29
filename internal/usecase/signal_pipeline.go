package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"MarketSignal/internal/domain/models"
	domrepo "MarketSignal/internal/domain/repository"
	domsvc "MarketSignal/internal/domain/service"
	"MarketSignal/internal/services/decision"
	"MarketSignal/internal/services/stats"
	"MarketSignal/pkg/cache"
	applogger "MarketSignal/pkg/logger"
	"MarketSignal/pkg/metrics"
	xutil "MarketSignal/pkg/util"
)

var (
	// ErrNoHistory means the bar store has nothing for the instrument.
	ErrNoHistory = errors.New("no price history")
	// ErrInvalidStock rejects an empty instrument code.
	ErrInvalidStock = errors.New("stock code required")
)

const (
	predictionKind = "prediction"
	statsKind      = "stats"
	sentimentKind  = "sentiment"
)

// PipelineConfig bounds the history windows and result caching.
type PipelineConfig struct {
	HistoryDays     int
	StatsWindowDays int
	MarketIndex     string
	Timeout         time.Duration
	PredictionTTL   time.Duration
	StatsTTL        time.Duration
	SentimentTTL    time.Duration
}

// SignalPipeline loads history for an instrument and runs every engine on it.
type SignalPipeline struct {
	bars      domrepo.BarStore
	predictor domsvc.Predictor
	detector  domsvc.AnomalyDetector
	sentiment domsvc.SentimentProvider
	cache     cache.Service
	metrics   domrepo.Metrics
	cfg       PipelineConfig
	now       func() time.Time
	l         *applogger.Logger
}

// NewSignalPipeline wires the engines. c and m may be nil.
func NewSignalPipeline(
	bars domrepo.BarStore,
	predictor domsvc.Predictor,
	detector domsvc.AnomalyDetector,
	sentiment domsvc.SentimentProvider,
	c cache.Service,
	m domrepo.Metrics,
	cfg PipelineConfig,
	l *applogger.Logger,
) *SignalPipeline {
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 365
	}
	if cfg.StatsWindowDays <= 0 {
		cfg.StatsWindowDays = 30
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &SignalPipeline{
		bars:      bars,
		predictor: predictor,
		detector:  detector,
		sentiment: sentiment,
		cache:     c,
		metrics:   m,
		cfg:       cfg,
		now:       time.Now,
		l:         l.With(applogger.String("component", "signal_pipeline")),
	}
}

// snapshot is one instrument's history plus the optional market series.
// marketErr is set when the index could not be loaded.
type snapshot struct {
	stock     string
	bars      []models.PriceBar
	market    []models.PriceBar
	marketErr error
}

type anomalyResult struct {
	stats  models.HistoricalStats
	report models.AnomalyReport
}

func (s snapshot) last() models.PriceBar { return s.bars[len(s.bars)-1] }

func (s snapshot) asOf() string { return s.last().Date.Format(xutil.DateLayout) }

func (p *SignalPipeline) load(ctx context.Context, stock string) (snapshot, error) {
	stock = xutil.NormalizeSymbol(stock)
	if stock == "" {
		return snapshot{}, ErrInvalidStock
	}
	start := time.Now()
	from, to := xutil.TrailingWindow(p.now(), p.cfg.HistoryDays)
	bars, err := p.bars.GetBars(ctx, stock, from, to)
	p.metrics.RecordLatency("load_history", time.Since(start).Seconds())
	if err != nil {
		p.metrics.RecordError("history")
		return snapshot{}, fmt.Errorf("load history %s: %w", stock, err)
	}
	if len(bars) == 0 {
		return snapshot{}, fmt.Errorf("%w: %s", ErrNoHistory, stock)
	}

	snap := snapshot{stock: stock, bars: bars}
	if idx := p.cfg.MarketIndex; idx != "" && idx != stock {
		snap.market, snap.marketErr = p.bars.GetBars(ctx, idx, from, to)
		if snap.marketErr != nil {
			p.l.Warn("market index unavailable",
				applogger.String("index", idx),
				applogger.Error(snap.marketErr))
		}
	}
	p.metrics.RecordLastPrice(stock, snap.last().Close)
	return snap, nil
}

// History returns the bars the pipeline would score.
func (p *SignalPipeline) History(ctx context.Context, stock string) ([]models.PriceBar, error) {
	snap, err := p.load(ctx, stock)
	if err != nil {
		return nil, err
	}
	return snap.bars, nil
}

// Prediction forecasts the instrument from its stored history.
func (p *SignalPipeline) Prediction(ctx context.Context, stock string) (models.PredictionResult, error) {
	snap, err := p.load(ctx, stock)
	if err != nil {
		return models.PredictionResult{}, err
	}
	return p.predict(ctx, snap)
}

// Stats computes trailing statistics ending at the latest bar.
func (p *SignalPipeline) Stats(ctx context.Context, stock string) (models.HistoricalStats, error) {
	snap, err := p.load(ctx, stock)
	if err != nil {
		return models.HistoricalStats{}, err
	}
	return p.stats(ctx, snap), nil
}

// Anomaly scores the latest bar against the trailing statistics.
func (p *SignalPipeline) Anomaly(ctx context.Context, stock string) (models.AnomalyReport, error) {
	snap, err := p.load(ctx, stock)
	if err != nil {
		return models.AnomalyReport{}, err
	}
	return p.detect(ctx, snap, p.stats(ctx, snap)), nil
}

// Sentiment resolves the instrument's news sentiment. The returned value is
// usable even when err is non-nil.
func (p *SignalPipeline) Sentiment(ctx context.Context, stock string) (models.Sentiment, error) {
	stock = xutil.NormalizeSymbol(stock)
	if stock == "" {
		return models.Sentiment{}, ErrInvalidStock
	}
	return p.resolveSentiment(ctx, stock)
}

// Run executes the full pipeline with the sentiment provider.
func (p *SignalPipeline) Run(ctx context.Context, stock string) (*models.SignalReport, error) {
	return p.run(ctx, stock, nil)
}

// RunWithSentiment executes the full pipeline with a caller-supplied
// sentiment score in [-1, 1] instead of the provider.
func (p *SignalPipeline) RunWithSentiment(ctx context.Context, stock string, score float64) (*models.SignalReport, error) {
	return p.run(ctx, stock, &score)
}

func (p *SignalPipeline) run(ctx context.Context, stock string, sentimentOverride *float64) (*models.SignalReport, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	start := time.Now()
	snap, err := p.load(ctx, stock)
	if err != nil {
		return nil, err
	}

	res := &models.SignalReport{
		Stock:     snap.stock,
		Timestamp: p.now(),
		Errors:    map[string]string{},
	}
	if snap.marketErr != nil {
		res.Errors["market"] = snap.marketErr.Error()
	}

	type item struct {
		name string
		val  interface{}
		err  error
	}
	ch := make(chan item, 3)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := p.predict(ctx, snap)
		ch <- item{"prediction", v, err}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		st := p.stats(ctx, snap)
		ch <- item{"anomaly", anomalyResult{st, p.detect(ctx, snap, st)}, nil}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if sentimentOverride != nil {
			s := models.NeutralSentiment(snap.stock)
			s.Score = *sentimentOverride
			s.Source = "request"
			ch <- item{"sentiment", s, nil}
			return
		}
		v, err := p.resolveSentiment(ctx, snap.stock)
		ch <- item{"sentiment", v, err}
	}()

	go func() { wg.Wait(); close(ch) }()

	for it := range ch {
		switch it.name {
		case "prediction":
			if it.err != nil {
				res.Errors[it.name] = it.err.Error()
				continue
			}
			v := it.val.(models.PredictionResult)
			res.Prediction = &v
		case "anomaly":
			v := it.val.(anomalyResult)
			res.Stats = v.stats
			res.Anomaly = &v.report
		case "sentiment":
			// a failed lookup still carries a neutral value
			res.Sentiment = it.val.(models.Sentiment)
			if it.err != nil {
				res.Errors[it.name] = it.err.Error()
			}
		}
	}

	var pred models.PredictionResult
	if res.Prediction != nil {
		pred = *res.Prediction
	}
	severity := models.SeverityNone
	if res.Anomaly != nil {
		severity = res.Anomaly.Severity
	}
	res.Recommendation = decision.Recommend(pred, res.Sentiment.Score, severity)
	p.metrics.RecordRecommendation(string(res.Recommendation.Action))
	p.metrics.RecordLatency("pipeline", time.Since(start).Seconds())

	if len(res.Errors) == 0 {
		res.Errors = nil
	}
	p.l.Info("signal computed",
		applogger.String("stock", res.Stock),
		applogger.String("action", string(res.Recommendation.Action)),
		applogger.Float64("confidence", res.Recommendation.Confidence),
		applogger.String("severity", string(severity)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return res, nil
}

func (p *SignalPipeline) predict(ctx context.Context, snap snapshot) (models.PredictionResult, error) {
	key := cache.Key(predictionKind, snap.stock, snap.asOf())
	res, err := cache.Remember(ctx, p.cache, key, p.cfg.PredictionTTL, func() (models.PredictionResult, error) {
		start := time.Now()
		r, err := p.predictor.PredictWithMarket(ctx, snap.stock, snap.bars, snap.market)
		p.metrics.RecordLatency("predict", time.Since(start).Seconds())
		return r, err
	}, p.storeFailed(key))
	if err != nil {
		p.metrics.RecordError("prediction")
		return models.PredictionResult{}, err
	}
	p.metrics.RecordPrediction(res.Model)
	return res, nil
}

// stats uses the bars within StatsWindowDays of the latest bar, so a stale
// feed still yields a window.
func (p *SignalPipeline) stats(ctx context.Context, snap snapshot) models.HistoricalStats {
	key := cache.Key(statsKind, snap.stock, snap.asOf(), p.cfg.StatsWindowDays)
	st, _ := cache.Remember(ctx, p.cache, key, p.cfg.StatsTTL, func() (models.HistoricalStats, error) {
		from, _ := xutil.TrailingWindow(snap.last().Date, p.cfg.StatsWindowDays)
		i := len(snap.bars)
		for i > 0 && !snap.bars[i-1].Date.Before(from) {
			i--
		}
		return stats.Compute(snap.bars[i:]), nil
	}, p.storeFailed(key))
	return st
}

func (p *SignalPipeline) detect(ctx context.Context, snap snapshot, st models.HistoricalStats) models.AnomalyReport {
	start := time.Now()
	rep := p.detector.Detect(ctx, snap.stock, snap.last(), st)
	p.metrics.RecordLatency("detect", time.Since(start).Seconds())
	p.metrics.RecordAnomaly(string(rep.Severity))
	return rep
}

func (p *SignalPipeline) resolveSentiment(ctx context.Context, stock string) (models.Sentiment, error) {
	key := cache.Key(sentimentKind, stock)
	var out models.Sentiment
	if p.cache != nil && p.cache.Get(ctx, key, &out) == nil {
		return out, nil
	}
	out, err := p.sentiment.StockSentiment(ctx, stock)
	if err != nil {
		p.metrics.RecordError("sentiment")
		if out.Label == "" {
			out = models.NeutralSentiment(stock)
		}
		return out, err
	}
	p.store(ctx, key, out, p.cfg.SentimentTTL)
	return out, nil
}

func (p *SignalPipeline) store(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	if p.cache == nil || ttl <= 0 {
		return
	}
	if err := p.cache.Set(ctx, key, v, ttl); err != nil {
		p.storeFailed(key)(err)
	}
}

func (p *SignalPipeline) storeFailed(key string) func(error) {
	return func(err error) {
		p.l.Warn("cache set failed", applogger.String("key", key), applogger.Error(err))
	}
}

// Invalidate drops every cached result for stock so the next run recomputes
// from the bar store.
func (p *SignalPipeline) Invalidate(ctx context.Context, stock string) error {
	stock = xutil.NormalizeSymbol(stock)
	if stock == "" {
		return ErrInvalidStock
	}
	if p.cache == nil {
		return nil
	}
	if err := p.cache.Delete(ctx, cache.Key(sentimentKind, stock)); err != nil {
		return fmt.Errorf("invalidate %s: %w", stock, err)
	}
	for _, kind := range []string{predictionKind, statsKind} {
		if err := p.cache.DeleteByPrefix(ctx, cache.Key(kind, stock)+":"); err != nil {
			return fmt.Errorf("invalidate %s: %w", stock, err)
		}
	}
	return nil
}
