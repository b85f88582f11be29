// Package prediction forecasts per-horizon returns from trained regressors,
// falling back to a momentum heuristic when they cannot be used.
package prediction

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"MarketSignal/internal/domain/models"
	domsvc "MarketSignal/internal/domain/service"
	"MarketSignal/internal/repository/artifacts"
	"MarketSignal/internal/services/features"
	applogger "MarketSignal/pkg/logger"
	xutil "MarketSignal/pkg/util"
)

// DefaultMinHistory is the bar count needed before the regressors are used.
const DefaultMinHistory = 60

// Engine is safe for concurrent use; it only reads the artifact set.
type Engine struct {
	set        *artifacts.Set
	columns    []string
	minHistory int
	now        func() time.Time
	l          *applogger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithMinHistory(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.minHistory = n
		}
	}
}

// WithLogger sets the logger used to report model-path failures.
func WithLogger(l *applogger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.l = l
		}
	}
}

// WithClock overrides time.Now for target dates and timestamps.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine builds a predictor over set. A nil set, or one without
// regressors, always takes the fallback path.
func NewEngine(set *artifacts.Set, opts ...Option) *Engine {
	e := &Engine{
		set:        set,
		columns:    features.Columns(),
		minHistory: DefaultMinHistory,
		now:        time.Now,
		l:          applogger.NewNop(),
	}
	if set != nil && len(set.FeatureColumns) > 0 {
		e.columns = set.FeatureColumns
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

var _ domsvc.Predictor = (*Engine)(nil)

// ModelLoaded reports whether at least one horizon regressor is available.
func (e *Engine) ModelLoaded() bool { return e.set.PredictionLoaded() }

// Predict forecasts from a price history without a market index.
func (e *Engine) Predict(ctx context.Context, stock string, history []models.PriceBar) (models.PredictionResult, error) {
	return e.PredictWithMarket(ctx, stock, history, nil)
}

// PredictWithMarket forecasts from a price history joined with an optional
// market index series.
func (e *Engine) PredictWithMarket(ctx context.Context, stock string, history, market []models.PriceBar) (models.PredictionResult, error) {
	if !e.ModelLoaded() || len(history) < e.minHistory {
		e.l.Debug("prediction path",
			applogger.String("stock", stock),
			applogger.String("path", models.ModelFallback),
			applogger.Bool("model_loaded", e.ModelLoaded()),
			applogger.Int("bars", len(history)),
		)
		return e.fallback(stock, history), nil
	}

	fv := features.Compute(history, market)
	cp := lastClose(history)
	res, err := e.infer(stock, fv.Map(), cp)
	if err != nil {
		e.l.Warn("inference failed, using fallback",
			applogger.String("stock", stock),
			applogger.Error(err),
		)
		return e.fallback(stock, history), nil
	}
	e.l.Debug("prediction path",
		applogger.String("stock", stock),
		applogger.String("path", models.ModelXGBoost),
		applogger.Int("bars", len(history)),
		applogger.Int("horizons", len(res.Forecasts)),
	)
	return res, nil
}

// PredictFeatures forecasts from precomputed features. The map must carry
// "close" or "current_price".
func (e *Engine) PredictFeatures(ctx context.Context, stock string, feats map[string]float64) (models.PredictionResult, error) {
	cp, ok := feats["close"]
	if !ok {
		cp, ok = feats["current_price"]
	}
	if !ok {
		return models.PredictionResult{}, &InputError{Field: "close", Reason: "'close' or 'current_price' must be in features"}
	}
	if math.IsNaN(cp) || math.IsInf(cp, 0) {
		return models.PredictionResult{}, &InputError{Field: "close", Reason: "must be a finite number"}
	}

	synthetic := []models.PriceBar{{Date: e.now(), Close: cp}}
	if !e.ModelLoaded() {
		e.l.Debug("prediction path",
			applogger.String("stock", stock),
			applogger.String("path", models.ModelFallback),
			applogger.Bool("model_loaded", false),
		)
		return e.fallback(stock, synthetic), nil
	}
	res, err := e.infer(stock, feats, cp)
	if err != nil {
		e.l.Warn("inference failed, using fallback",
			applogger.String("stock", stock),
			applogger.Error(err),
		)
		return e.fallback(stock, synthetic), nil
	}
	return res, nil
}

// infer runs every loaded horizon regressor over one feature snapshot.
func (e *Engine) infer(stock string, feats map[string]float64, cp float64) (models.PredictionResult, error) {
	x := make([]float64, len(e.columns))
	for i, col := range e.columns {
		v, ok := feats[col]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		x[i] = v
	}
	if e.set.FeatureScaler != nil {
		scaled, err := e.set.FeatureScaler.Transform(x)
		if err != nil {
			return models.PredictionResult{}, fmt.Errorf("scale features: %w", err)
		}
		x = scaled
	}

	now := e.now()
	horizons := append([]int(nil), e.set.Horizons...)
	sort.Ints(horizons)

	forecasts := make([]models.HorizonForecast, 0, len(horizons))
	for _, h := range horizons {
		reg, ok := e.set.Regressors[h]
		if !ok {
			continue
		}
		r, err := reg.Predict(x)
		if err != nil {
			return models.PredictionResult{}, fmt.Errorf("horizon %dd: %w", h, err)
		}
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return models.PredictionResult{}, fmt.Errorf("horizon %dd: non-finite prediction", h)
		}
		pct := xutil.Round(r*100, 2)
		dir := models.DirectionDown
		if pct > 0 {
			dir = models.DirectionUp
		}
		forecasts = append(forecasts, models.HorizonForecast{
			HorizonDays:        h,
			TargetDate:         now.AddDate(0, 0, h).Format(xutil.DateLayout),
			PredictedPrice:     xutil.Round(cp*(1+r), 3),
			PredictedReturnPct: pct,
			Direction:          dir,
			Confidence:         math.Min(xutil.Round(math.Abs(r)*20, 2), 1),
		})
	}
	if len(forecasts) == 0 {
		return models.PredictionResult{}, fmt.Errorf("no regressor for horizons %v", horizons)
	}

	return models.PredictionResult{
		Stock:          stock,
		CurrentPrice:   xutil.Round(cp, 3),
		Timestamp:      now,
		Model:          models.ModelXGBoost,
		Forecasts:      forecasts,
		Recommendation: advise(forecasts, feats),
	}, nil
}

// advise aggregates forecasts into the engine's own call.
func advise(forecasts []models.HorizonForecast, feats map[string]float64) models.PredictionAdvice {
	if len(forecasts) == 0 {
		return models.PredictionAdvice{Action: models.ActionHold, Confidence: 0.5, Reasons: []string{}}
	}
	sum := 0.0
	for _, f := range forecasts {
		sum += f.PredictedReturnPct
	}
	avg := sum / float64(len(forecasts))

	var action models.Action
	var conf float64
	switch {
	case avg > 1.5:
		action, conf = models.ActionBuy, math.Min(avg/5, 1)
	case avg < -1.5:
		action, conf = models.ActionSell, math.Min(math.Abs(avg)/5, 1)
	default:
		action, conf = models.ActionHold, 1-math.Abs(avg)/1.5
	}
	return models.PredictionAdvice{
		Action:       action,
		Confidence:   xutil.Round(conf, 2),
		AvgReturnPct: xutil.Round(avg, 2),
		Reasons:      reasons(avg, feats),
	}
}

const maxReasons = 4

func reasons(avg float64, feats map[string]float64) []string {
	out := make([]string, 0, maxReasons)
	if avg > 0 {
		out = append(out, fmt.Sprintf("AI predicts +%.1f%% average return over 5 days", avg))
	} else {
		out = append(out, fmt.Sprintf("AI predicts %.1f%% average return over 5 days", avg))
	}

	rsi := lookup(feats, "rsi_14", 50)
	switch {
	case rsi < 30:
		out = append(out, "RSI indicates oversold condition (potential bounce)")
	case rsi > 70:
		out = append(out, "RSI indicates overbought condition (potential correction)")
	}

	hist := lookup(feats, "macd_hist", 0)
	switch {
	case hist > 0:
		out = append(out, "MACD shows bullish momentum")
	case hist < 0:
		out = append(out, "MACD shows bearish momentum")
	}

	vr := lookup(feats, "volume_ratio", 1)
	switch {
	case vr > 2:
		out = append(out, "High trading volume indicates strong interest")
	case vr < 0.5:
		out = append(out, "Low trading volume - limited market activity")
	}

	if len(out) > maxReasons {
		out = out[:maxReasons]
	}
	return out
}

func lookup(feats map[string]float64, key string, def float64) float64 {
	if v, ok := feats[key]; ok {
		return v
	}
	return def
}

func lastClose(history []models.PriceBar) float64 {
	last := history[0]
	for _, b := range history[1:] {
		if !b.Date.Before(last.Date) {
			last = b
		}
	}
	return last.Close
}
