package mlmodel

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

const eulerGamma = 0.5772156649015329

// IsolationForest scores samples with trees exported from scikit-learn.
type IsolationForest struct {
	MaxSamples int       `json:"max_samples"`
	Offset     *float64  `json:"offset"`
	Trees      []isoTree `json:"trees"`
	norm       float64
}

type isoTree struct {
	ChildrenLeft  []int     `json:"children_left"`
	ChildrenRight []int     `json:"children_right"`
	Feature       []int     `json:"feature"`
	Threshold     []float64 `json:"threshold"`
	NodeSamples   []int     `json:"n_node_samples"`
	// Features maps tree-local column indices to input columns when the
	// estimator was fit on a feature subset.
	Features []int `json:"features,omitempty"`
}

// LoadIsolationForest reads a forest from a JSON file.
func LoadIsolationForest(path string) (*IsolationForest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read isolation forest: %w", err)
	}
	return ParseIsolationForest(b)
}

// ParseIsolationForest decodes a forest exported as JSON and rejects one
// without trees.
func ParseIsolationForest(b []byte) (*IsolationForest, error) {
	var f IsolationForest
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode isolation forest: %w", err)
	}
	if len(f.Trees) == 0 {
		return nil, fmt.Errorf("decode isolation forest: no trees")
	}
	if f.MaxSamples < 1 {
		return nil, fmt.Errorf("decode isolation forest: max_samples must be positive")
	}
	for i, t := range f.Trees {
		n := len(t.ChildrenLeft)
		if n == 0 || len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.NodeSamples) != n {
			return nil, fmt.Errorf("decode isolation forest: tree %d has inconsistent node arrays", i)
		}
	}
	if f.Offset == nil {
		o := -0.5
		f.Offset = &o
	}
	f.norm = averagePathLength(f.MaxSamples)
	return &f, nil
}

// averagePathLength is c(n), the mean unsuccessful-search depth of a BST
// built from n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	}
}

// ScoreSamples returns -2^(-E[h(x)]/c(max_samples)); lower is more abnormal.
func (f *IsolationForest) ScoreSamples(x []float64) (float64, error) {
	total := 0.0
	for i := range f.Trees {
		h, err := f.Trees[i].pathLength(x)
		if err != nil {
			return 0, fmt.Errorf("isolation forest: tree %d: %w", i, err)
		}
		total += h
	}
	mean := total / float64(len(f.Trees))
	if f.norm == 0 {
		return -1, nil
	}
	return -math.Pow(2, -mean/f.norm), nil
}

// Decision returns score - offset; negative values are outliers.
func (f *IsolationForest) Decision(x []float64) (float64, error) {
	s, err := f.ScoreSamples(x)
	if err != nil {
		return 0, err
	}
	return s - *f.Offset, nil
}

// IsOutlier reports whether x is classified as an anomaly along with its score.
func (f *IsolationForest) IsOutlier(x []float64) (bool, float64, error) {
	d, err := f.Decision(x)
	if err != nil {
		return false, 0, err
	}
	return d < 0, d, nil
}

func (t *isoTree) pathLength(x []float64) (float64, error) {
	node, depth := 0, 0
	for depth <= len(t.ChildrenLeft) {
		if t.ChildrenLeft[node] < 0 {
			return float64(depth) + averagePathLength(t.NodeSamples[node]), nil
		}
		col := t.Feature[node]
		if len(t.Features) > 0 {
			if col < 0 || col >= len(t.Features) {
				return 0, fmt.Errorf("feature %d out of range: %w", col, ErrDimension)
			}
			col = t.Features[col]
		}
		if col < 0 || col >= len(x) {
			return 0, fmt.Errorf("feature %d out of range: %w", col, ErrDimension)
		}
		if x[col] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
		if node < 0 || node >= len(t.ChildrenLeft) {
			return 0, fmt.Errorf("child %d out of range", node)
		}
		depth++
	}
	return 0, fmt.Errorf("tree has a cycle")
}
