package anomaly

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketSignal/internal/domain/models"
	"MarketSignal/internal/repository/artifacts"
	"MarketSignal/pkg/mlmodel"
)

var fixedNow = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

func newEngine(set *artifacts.Set) *Engine {
	return NewEngine(set, WithClock(func() time.Time { return fixedNow }))
}

// quiet returns stats under which a bar at close 10, volume 100, tx 20 is normal.
func quiet() models.HistoricalStats {
	return models.HistoricalStats{
		Bars:        20,
		PrevClose:   10,
		VolumeMA20:  100,
		VolumeStd20: 10,
		PriceMA20:   10,
		PriceStd20:  0.5,
		RangeMA10:   0.02,
		TxMA20:      20,
	}
}

func bar(open, close, volume float64) models.PriceBar {
	return models.PriceBar{Open: open, High: close + 0.1, Low: close - 0.1, Close: close, Volume: volume, Transactions: 20}
}

// spikeForest isolates samples whose first scaled feature exceeds 2.
func spikeForest(t *testing.T) *mlmodel.IsolationForest {
	t.Helper()
	f, err := mlmodel.ParseIsolationForest([]byte(`{"max_samples": 256, "trees": [
	  {"children_left": [1, -1, -1], "children_right": [2, -1, -1],
	   "feature": [0, -2, -2], "threshold": [2, -2, -2],
	   "n_node_samples": [256, 255, 1]}]}`))
	require.NoError(t, err)
	return f
}

func identityScaler(n int) *mlmodel.StandardScaler {
	s := &mlmodel.StandardScaler{Mean: make([]float64, n), Scale: make([]float64, n)}
	for i := range s.Scale {
		s.Scale[i] = 1
	}
	return s
}

func TestDetectNormalBar(t *testing.T) {
	r := newEngine(nil).Detect(context.Background(), "SFBT", bar(10, 10, 100), quiet())

	assert.False(t, r.IsAnomaly)
	assert.Equal(t, models.SeverityNone, r.Severity)
	assert.Zero(t, r.SeverityScore)
	assert.Empty(t, r.Alerts)
	assert.NotNil(t, r.Alerts)
	assert.False(t, r.MLEnabled)
	assert.Equal(t, fixedNow, r.Timestamp)
	assert.Len(t, r.Features, 10)
	assert.Equal(t, 1.0, r.Features["volume_ratio"])
	assert.Equal(t, 1000.0, r.Features["vol_price_ratio"])
}

func TestDetectVolumeSpike(t *testing.T) {
	st := quiet()
	st.VolumeMA20, st.VolumeStd20 = 1, 1

	r := newEngine(nil).Detect(context.Background(), "SFBT", bar(10, 10, 10), st)

	require.Len(t, r.Alerts, 1)
	assert.Equal(t, models.AlertVolumeSpike, r.Alerts[0].Type)
	assert.Equal(t, models.SeverityHigh, r.Alerts[0].Severity)
	assert.Equal(t, "Volume is 9.0 std above average", r.Alerts[0].Message)
	assert.Equal(t, 9.0, r.Features["volume_zscore"])
	assert.GreaterOrEqual(t, r.SeverityScore, 0.3)
	assert.True(t, r.Severity.AtLeast(models.SeverityMedium))
}

func TestDetectModerateVolumeSpike(t *testing.T) {
	r := newEngine(nil).Detect(context.Background(), "SFBT", bar(10, 10, 140), quiet())
	require.Len(t, r.Alerts, 1)
	assert.Equal(t, models.SeverityMedium, r.Alerts[0].Severity)
}

func TestDetectLargePriceMove(t *testing.T) {
	r := newEngine(nil).Detect(context.Background(), "SFBT", bar(10, 11.2, 100), quiet())

	require.Len(t, r.Alerts, 1)
	assert.Equal(t, models.AlertPriceMove, r.Alerts[0].Type)
	assert.Equal(t, models.SeverityHigh, r.Alerts[0].Severity)
	assert.Equal(t, "Price moved 12.0% up", r.Alerts[0].Message)
	assert.Equal(t, models.SeverityMedium, r.Severity)
	assert.Equal(t, 0.3, r.SeverityScore)
	assert.Equal(t, 0.12, r.Features["price_change"])
}

func TestDetectGapOpenDown(t *testing.T) {
	r := newEngine(nil).Detect(context.Background(), "SFBT", bar(9.6, 9.6, 100), quiet())

	types := []models.AlertType{}
	for _, a := range r.Alerts {
		types = append(types, a.Type)
	}
	assert.Equal(t, []models.AlertType{models.AlertGapOpen}, types)
	assert.Equal(t, "Gap open of 4.0%", r.Alerts[0].Message)
	assert.Equal(t, models.SeverityLow, r.Severity)
	assert.Equal(t, 0.1, r.SeverityScore)
}

func TestDetectAlertsAccumulate(t *testing.T) {
	st := quiet()
	st.VolumeMA20, st.VolumeStd20 = 1, 1

	r := newEngine(nil).Detect(context.Background(), "SFBT", bar(9, 8.5, 10), st)
	require.Len(t, r.Alerts, 3)
	assert.Equal(t, "Price moved 15.0% down", r.Alerts[1].Message)
	assert.Equal(t, models.SeverityHigh, r.Severity)
	assert.Equal(t, 0.7, r.SeverityScore)
}

func TestDetectEmptyStatsUsesDefaults(t *testing.T) {
	r := newEngine(nil).Detect(context.Background(), "SFBT", bar(10, 10, 0), models.HistoricalStats{})

	assert.False(t, r.IsAnomaly)
	assert.Equal(t, 1.0, r.Features["volume_ratio"])
	assert.Equal(t, 1.0, r.Features["vol_price_ratio"])
	assert.Zero(t, r.Features["price_change"])
	assert.Equal(t, 20.0, r.Features["tx_ratio"])
	assert.Equal(t, 2.0, r.Features["range_ratio"])
}

func TestDetectPartialStatsDefaultsEachField(t *testing.T) {
	var st models.HistoricalStats
	require.NoError(t, json.Unmarshal([]byte(`{"prev_close":10,"volume_ma_20":1,"price_ma_20":10,"price_std_20":0.5,"tx_ma_20":20}`), &st))

	r := newEngine(nil).Detect(context.Background(), "SFBT", bar(10, 10, 10), st)

	assert.Equal(t, 9.0, r.Features["volume_zscore"])
	assert.Equal(t, 2.0, r.Features["range_ratio"])
	require.Len(t, r.Alerts, 1)
	assert.Equal(t, models.AlertVolumeSpike, r.Alerts[0].Type)
	assert.Equal(t, models.SeverityHigh, r.Alerts[0].Severity)
	assert.Equal(t, models.SeverityMedium, r.Severity)
}

func TestDetectTrainedDetector(t *testing.T) {
	set := &artifacts.Set{AnomalyForest: spikeForest(t), AnomalyScaler: identityScaler(9)}
	e := newEngine(set)
	require.True(t, e.MLEnabled())

	// z-score 2.5: below the rule threshold, isolated by the forest
	r := e.Detect(context.Background(), "SFBT", bar(10, 10, 125), quiet())
	require.Len(t, r.Alerts, 1)
	assert.Equal(t, models.AlertMLAnomaly, r.Alerts[0].Type)
	assert.Contains(t, r.Alerts[0].Message, "Unusual pattern detected (score: -")
	assert.Equal(t, models.SeverityLow, r.Severity)
	assert.Equal(t, 0.2, r.SeverityScore)
	assert.True(t, r.MLEnabled)

	r = e.Detect(context.Background(), "SFBT", bar(10, 10, 100), quiet())
	assert.Empty(t, r.Alerts)
}

func TestDetectorErrorFallsBackToRules(t *testing.T) {
	set := &artifacts.Set{AnomalyForest: spikeForest(t), AnomalyScaler: identityScaler(3)}
	e := newEngine(set)

	st := quiet()
	st.VolumeMA20, st.VolumeStd20 = 1, 1
	r := e.Detect(context.Background(), "SFBT", bar(10, 10, 10), st)

	require.Len(t, r.Alerts, 1)
	assert.Equal(t, models.AlertVolumeSpike, r.Alerts[0].Type)
	assert.True(t, e.MLEnabled())
}

func TestMLNeedsScaler(t *testing.T) {
	e := newEngine(&artifacts.Set{AnomalyForest: spikeForest(t)})
	assert.False(t, e.MLEnabled())
}

func TestDetectBatchKeepsOrder(t *testing.T) {
	e := newEngine(nil)
	items := []models.AnomalyInput{
		{Stock: "A", Current: bar(10, 10, 100), Historical: quiet()},
		{Stock: "B", Current: bar(10, 11.2, 100), Historical: quiet()},
		{Stock: "C", Current: bar(10, 10, 0)},
	}
	out := e.DetectBatch(context.Background(), items)
	require.Len(t, out, 3)
	assert.Equal(t, "A", out[0].Stock)
	assert.Equal(t, models.SeverityMedium, out[1].Severity)
	assert.Equal(t, "C", out[2].Stock)
	assert.Empty(t, e.DetectBatch(context.Background(), nil))
}

func TestDetectIsIdempotent(t *testing.T) {
	e := newEngine(&artifacts.Set{AnomalyForest: spikeForest(t), AnomalyScaler: identityScaler(9)})
	a := e.Detect(context.Background(), "SFBT", bar(9, 8.5, 125), quiet())
	b := e.Detect(context.Background(), "SFBT", bar(9, 8.5, 125), quiet())
	assert.Equal(t, a, b)
}

func TestClassifyIsMonotonic(t *testing.T) {
	tests := []struct {
		score float64
		want  models.Severity
	}{
		{0, models.SeverityNone},
		{0.1, models.SeverityLow},
		{0.2, models.SeverityLow},
		{0.3, models.SeverityMedium},
		{0.5, models.SeverityMedium},
		{0.6, models.SeverityHigh},
		{1.2, models.SeverityHigh},
	}
	prev := models.SeverityNone
	for _, tt := range tests {
		got := Classify(tt.score)
		assert.Equal(t, tt.want, got, "score %v", tt.score)
		assert.True(t, got.AtLeast(prev))
		prev = got
	}
}
