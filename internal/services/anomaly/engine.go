// Package anomaly flags abnormal bars with threshold rules and an optional
// trained isolation forest.
package anomaly

import (
	"context"
	"fmt"
	"math"
	"time"

	"MarketSignal/internal/domain/models"
	domsvc "MarketSignal/internal/domain/service"
	"MarketSignal/internal/repository/artifacts"
	applogger "MarketSignal/pkg/logger"
	xutil "MarketSignal/pkg/util"
)

// Rule thresholds and score contributions.
const (
	VolumeSpikeZScore = 3.0
	VolumeSpikeHigh   = 5.0
	PriceMovePct      = 0.05
	PriceMoveHigh     = 0.10
	GapOpenPct        = 0.03

	volumeSpikeScore = 0.3
	priceMoveScore   = 0.3
	gapOpenScore     = 0.1
	mlScore          = 0.2
)

// Engine is safe for concurrent use; it only reads the artifact set.
type Engine struct {
	set *artifacts.Set
	now func() time.Time
	l   *applogger.Logger
}

type Option func(*Engine)

func WithLogger(l *applogger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.l = l
		}
	}
}

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func NewEngine(set *artifacts.Set, opts ...Option) *Engine {
	e := &Engine{set: set, now: time.Now, l: applogger.NewNop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

var _ domsvc.AnomalyDetector = (*Engine)(nil)

// MLEnabled reports whether both the detector and its scaler are loaded.
func (e *Engine) MLEnabled() bool { return e.set.AnomalyLoaded() }

// Detect scores the current bar against its trailing statistics.
func (e *Engine) Detect(ctx context.Context, stock string, current models.PriceBar, st models.HistoricalStats) models.AnomalyReport {
	d := derive(current, st)

	var alerts []models.AnomalyAlert
	score := 0.0

	if d.VolumeZScore > VolumeSpikeZScore {
		sev := models.SeverityMedium
		if d.VolumeZScore > VolumeSpikeHigh {
			sev = models.SeverityHigh
		}
		alerts = append(alerts, models.AnomalyAlert{
			Type:     models.AlertVolumeSpike,
			Message:  fmt.Sprintf("Volume is %.1f std above average", d.VolumeZScore),
			Severity: sev,
		})
		score += volumeSpikeScore
	}

	if move := math.Abs(d.PriceChange); move > PriceMovePct {
		dir := "down"
		if d.PriceChange > 0 {
			dir = "up"
		}
		sev := models.SeverityMedium
		if move > PriceMoveHigh {
			sev = models.SeverityHigh
		}
		alerts = append(alerts, models.AnomalyAlert{
			Type:     models.AlertPriceMove,
			Message:  fmt.Sprintf("Price moved %.1f%% %s", move*100, dir),
			Severity: sev,
		})
		score += priceMoveScore
	}

	if gap := math.Abs(d.GapOpen); gap > GapOpenPct {
		alerts = append(alerts, models.AnomalyAlert{
			Type:     models.AlertGapOpen,
			Message:  fmt.Sprintf("Gap open of %.1f%%", gap*100),
			Severity: models.SeverityMedium,
		})
		score += gapOpenScore
	}

	if e.MLEnabled() {
		outlier, decision, err := e.score(d)
		switch {
		case err != nil:
			e.l.Warn("anomaly detector failed, rules only",
				applogger.String("stock", stock),
				applogger.Error(err),
			)
		case outlier:
			alerts = append(alerts, models.AnomalyAlert{
				Type:     models.AlertMLAnomaly,
				Message:  fmt.Sprintf("Unusual pattern detected (score: %.3f)", decision),
				Severity: models.SeverityMedium,
			})
			score += mlScore
		}
	}

	if alerts == nil {
		alerts = []models.AnomalyAlert{}
	}
	return models.AnomalyReport{
		Stock:         stock,
		Timestamp:     e.now(),
		IsAnomaly:     len(alerts) > 0,
		Severity:      Classify(score),
		SeverityScore: xutil.Round(score, 2),
		Alerts:        alerts,
		Features:      d.report(),
		MLEnabled:     e.MLEnabled(),
	}
}

// DetectBatch scores items one after another, preserving order.
func (e *Engine) DetectBatch(ctx context.Context, items []models.AnomalyInput) []models.AnomalyReport {
	out := make([]models.AnomalyReport, 0, len(items))
	for _, it := range items {
		out = append(out, e.Detect(ctx, it.Stock, it.Current, it.Historical))
	}
	return out
}

func (e *Engine) score(d derived) (bool, float64, error) {
	x, err := e.set.AnomalyScaler.Transform(d.vector())
	if err != nil {
		return false, 0, fmt.Errorf("scale anomaly features: %w", err)
	}
	return e.set.AnomalyForest.IsOutlier(x)
}

// Classify maps a cumulative alert score onto a severity.
func Classify(score float64) models.Severity {
	switch {
	case score >= 0.6:
		return models.SeverityHigh
	case score >= 0.3:
		return models.SeverityMedium
	case score > 0:
		return models.SeverityLow
	default:
		return models.SeverityNone
	}
}
