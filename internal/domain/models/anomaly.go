package models

import "time"

// Severity is ordered NONE < LOW < MEDIUM < HIGH.
type Severity string

const (
	SeverityNone   Severity = "NONE"
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Rank maps severity onto its total order; unknown values rank as NONE.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether s ranks at or above o.
func (s Severity) AtLeast(o Severity) bool { return s.Rank() >= o.Rank() }

type AlertType string

const (
	AlertVolumeSpike AlertType = "VOLUME_SPIKE"
	AlertPriceMove   AlertType = "PRICE_MOVE"
	AlertGapOpen     AlertType = "GAP_OPEN"
	AlertMLAnomaly   AlertType = "ML_ANOMALY"
)

type AnomalyAlert struct {
	Type     AlertType `json:"type"`
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
}

type AnomalyReport struct {
	Stock         string             `json:"stock"`
	Timestamp     time.Time          `json:"timestamp"`
	IsAnomaly     bool               `json:"is_anomaly"`
	Severity      Severity           `json:"severity"`
	SeverityScore float64            `json:"severity_score"`
	Alerts        []AnomalyAlert     `json:"alerts"`
	Features      map[string]float64 `json:"features"`
	MLEnabled     bool               `json:"ml_enabled"`
}

// AnomalyInput is one item of a batch detection call.
type AnomalyInput struct {
	Stock      string          `json:"stock" validate:"required"`
	Current    PriceBar        `json:"current"`
	Historical HistoricalStats `json:"historical"`
}
