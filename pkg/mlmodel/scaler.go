// Package mlmodel evaluates trained models exported as JSON: standard scalers,
// XGBoost regression ensembles and isolation forests.
package mlmodel

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrDimension is returned when an input vector does not match the model width.
var ErrDimension = errors.New("feature dimension mismatch")

// StandardScaler applies (x - mean) / scale per column.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// LoadScaler reads a scaler from a JSON file.
func LoadScaler(path string) (*StandardScaler, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scaler: %w", err)
	}
	return ParseScaler(b)
}

// ParseScaler decodes a scaler exported as JSON.
func ParseScaler(b []byte) (*StandardScaler, error) {
	var s StandardScaler
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode scaler: %w", err)
	}
	if len(s.Mean) == 0 || len(s.Mean) != len(s.Scale) {
		return nil, fmt.Errorf("decode scaler: mean/scale length %d/%d", len(s.Mean), len(s.Scale))
	}
	return &s, nil
}

// Width is the number of columns the scaler expects.
func (s *StandardScaler) Width() int { return len(s.Mean) }

// Transform returns a scaled copy of x. Zero scale columns are only centred.
func (s *StandardScaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("scale: got %d want %d: %w", len(x), len(s.Mean), ErrDimension)
	}
	out := make([]float64, len(x))
	for i, v := range x {
		sc := s.Scale[i]
		if sc == 0 {
			sc = 1
		}
		out[i] = (v - s.Mean[i]) / sc
	}
	return out, nil
}
