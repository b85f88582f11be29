// Package artifacts loads trained model files once at start-up.
package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	applogger "MarketSignal/pkg/logger"
	"MarketSignal/pkg/mlmodel"
)

// ErrArtifactUnavailable marks a missing or unreadable artifact file.
var ErrArtifactUnavailable = errors.New("artifact unavailable")

// DefaultHorizons are used when config.json does not list any.
var DefaultHorizons = []int{1, 2, 3, 4, 5}

// File names inside the artifact directories.
const (
	ConfigFile        = "config.json"
	FeatureScalerFile = "feature_scaler.json"
	AnomalyModelFile  = "anomaly_detector.json"
	AnomalyScalerFile = "anomaly_scaler.json"
)

// RegressorFile returns the model file name for horizon h.
func RegressorFile(h int) string { return fmt.Sprintf("xgb_predictor_%dd.json", h) }

// Set holds every trained artifact. It is read-only after Load.
type Set struct {
	// FeatureColumns is the model input order; nil means the engine default.
	FeatureColumns []string
	Horizons       []int
	FeatureScaler  *mlmodel.StandardScaler
	Regressors     map[int]*mlmodel.Regressor

	AnomalyForest *mlmodel.IsolationForest
	AnomalyScaler *mlmodel.StandardScaler
}

// PredictionLoaded reports whether at least one horizon regressor is available.
func (s *Set) PredictionLoaded() bool { return s != nil && len(s.Regressors) > 0 }

// AnomalyLoaded reports whether both the detector and its scaler are available.
func (s *Set) AnomalyLoaded() bool {
	return s != nil && s.AnomalyForest != nil && s.AnomalyScaler != nil
}

// LoadedHorizons returns the horizons with a regressor, ascending.
func (s *Set) LoadedHorizons() []int {
	if s == nil {
		return nil
	}
	out := make([]int, 0, len(s.Regressors))
	for h := range s.Regressors {
		out = append(out, h)
	}
	sort.Ints(out)
	return out
}

type modelConfig struct {
	FeatureColumns     []string `json:"feature_columns"`
	PredictionHorizons []int    `json:"prediction_horizons"`
}

// Load reads both artifact directories. Missing files are not fatal: each one
// is logged once and the matching engine runs without it.
func Load(modelDir, anomalyDir string, l *applogger.Logger) *Set {
	if l == nil {
		l = applogger.NewNop()
	}
	s, errs := load(modelDir, anomalyDir)
	for _, err := range errs {
		l.Warn("artifact not loaded", applogger.Error(err))
	}
	l.Info("artifacts loaded",
		applogger.Ints("horizons", s.LoadedHorizons()),
		applogger.Bool("feature_scaler", s.FeatureScaler != nil),
		applogger.Bool("anomaly_ml", s.AnomalyLoaded()),
	)
	return s
}

func load(modelDir, anomalyDir string) (*Set, []error) {
	s := &Set{Horizons: DefaultHorizons, Regressors: make(map[int]*mlmodel.Regressor)}
	var errs []error

	if modelDir != "" {
		if cfg, err := readConfig(filepath.Join(modelDir, ConfigFile)); err == nil {
			if len(cfg.FeatureColumns) > 0 {
				s.FeatureColumns = cfg.FeatureColumns
			}
			if len(cfg.PredictionHorizons) > 0 {
				s.Horizons = cfg.PredictionHorizons
			}
		} else {
			errs = append(errs, err)
		}

		if sc, err := mlmodel.LoadScaler(filepath.Join(modelDir, FeatureScalerFile)); err == nil {
			s.FeatureScaler = sc
		} else {
			errs = append(errs, unavailable(FeatureScalerFile, err))
		}

		for _, h := range s.Horizons {
			name := RegressorFile(h)
			r, err := mlmodel.LoadRegressor(filepath.Join(modelDir, name))
			if err != nil {
				errs = append(errs, unavailable(name, err))
				continue
			}
			s.Regressors[h] = r
		}
	}

	if anomalyDir != "" {
		if f, err := mlmodel.LoadIsolationForest(filepath.Join(anomalyDir, AnomalyModelFile)); err == nil {
			s.AnomalyForest = f
		} else {
			errs = append(errs, unavailable(AnomalyModelFile, err))
		}
		if sc, err := mlmodel.LoadScaler(filepath.Join(anomalyDir, AnomalyScalerFile)); err == nil {
			s.AnomalyScaler = sc
		} else {
			errs = append(errs, unavailable(AnomalyScalerFile, err))
		}
	}
	return s, errs
}

func readConfig(path string) (modelConfig, error) {
	var cfg modelConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, unavailable(ConfigFile, err)
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, unavailable(ConfigFile, err)
	}
	return cfg, nil
}

func unavailable(name string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrArtifactUnavailable, name, err)
}
