package mlmodel

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Regressor is an XGBoost gradient-boosted tree ensemble loaded from the
// library's JSON model format.
type Regressor struct {
	baseScore  float64
	numFeature int
	trees      []regTree
}

type regTree struct {
	left        []int
	right       []int
	splitIndex  []int
	splitCond   []float64
	defaultLeft []bool
}

// flexBool decodes both true/false and 0/1.
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	switch strings.TrimSpace(string(b)) {
	case "true", "1":
		*f = true
	case "false", "0":
		*f = false
	default:
		return fmt.Errorf("invalid bool %s", b)
	}
	return nil
}

type xgbDocument struct {
	Learner struct {
		Param struct {
			BaseScore  string `json:"base_score"`
			NumFeature string `json:"num_feature"`
		} `json:"learner_model_param"`
		Booster struct {
			Model struct {
				Trees []struct {
					LeftChildren    []int      `json:"left_children"`
					RightChildren   []int      `json:"right_children"`
					SplitIndices    []int      `json:"split_indices"`
					SplitConditions []float64  `json:"split_conditions"`
					DefaultLeft     []flexBool `json:"default_left"`
				} `json:"trees"`
			} `json:"model"`
		} `json:"gradient_booster"`
	} `json:"learner"`
}

// LoadRegressor reads an XGBoost JSON model file.
func LoadRegressor(path string) (*Regressor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read xgboost model: %w", err)
	}
	return ParseRegressor(b)
}

// ParseRegressor decodes an XGBoost JSON model dump.
func ParseRegressor(b []byte) (*Regressor, error) {
	var doc xgbDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode xgboost model: %w", err)
	}

	r := &Regressor{}
	if s := strings.Trim(doc.Learner.Param.BaseScore, "[]"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("decode xgboost base_score %q: %w", s, err)
		}
		r.baseScore = v
	}
	if s := doc.Learner.Param.NumFeature; s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			r.numFeature = n
		}
	}

	trees := doc.Learner.Booster.Model.Trees
	if len(trees) == 0 {
		return nil, fmt.Errorf("decode xgboost model: no trees")
	}
	r.trees = make([]regTree, 0, len(trees))
	for i, t := range trees {
		n := len(t.LeftChildren)
		if n == 0 || len(t.RightChildren) != n || len(t.SplitIndices) != n || len(t.SplitConditions) != n {
			return nil, fmt.Errorf("decode xgboost model: tree %d has inconsistent node arrays", i)
		}
		dl := make([]bool, n)
		for j := 0; j < n && j < len(t.DefaultLeft); j++ {
			dl[j] = bool(t.DefaultLeft[j])
		}
		r.trees = append(r.trees, regTree{
			left:        t.LeftChildren,
			right:       t.RightChildren,
			splitIndex:  t.SplitIndices,
			splitCond:   t.SplitConditions,
			defaultLeft: dl,
		})
	}
	return r, nil
}

// NumTrees returns the ensemble size.
func (r *Regressor) NumTrees() int { return len(r.trees) }

// Predict returns base_score plus the sum of leaf values. NaN inputs follow
// each split's default direction.
func (r *Regressor) Predict(x []float64) (float64, error) {
	if r.numFeature > 0 && len(x) != r.numFeature {
		return 0, fmt.Errorf("xgboost predict: got %d want %d: %w", len(x), r.numFeature, ErrDimension)
	}
	sum := r.baseScore
	for ti := range r.trees {
		v, err := r.trees[ti].eval(x)
		if err != nil {
			return 0, fmt.Errorf("xgboost predict: tree %d: %w", ti, err)
		}
		sum += v
	}
	return sum, nil
}

func (t *regTree) eval(x []float64) (float64, error) {
	node := 0
	for steps := 0; steps <= len(t.left); steps++ {
		if t.left[node] < 0 {
			return t.splitCond[node], nil
		}
		idx := t.splitIndex[node]
		if idx < 0 || idx >= len(x) {
			return 0, fmt.Errorf("split index %d out of range: %w", idx, ErrDimension)
		}
		v := x[idx]
		switch {
		case math.IsNaN(v):
			if t.defaultLeft[node] {
				node = t.left[node]
			} else {
				node = t.right[node]
			}
		case v < t.splitCond[node]:
			node = t.left[node]
		default:
			node = t.right[node]
		}
		if node < 0 || node >= len(t.left) {
			return 0, fmt.Errorf("child %d out of range", node)
		}
	}
	return 0, fmt.Errorf("tree has a cycle")
}
