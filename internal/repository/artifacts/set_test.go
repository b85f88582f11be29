package artifacts

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tinyModel = `{"learner": {"learner_model_param": {"base_score": "0"},
  "gradient_booster": {"model": {"trees": [
    {"left_children": [-1], "right_children": [-1], "split_indices": [0],
     "split_conditions": [0.01], "default_left": [0]}]}}}}`

const tinyForest = `{"max_samples": 2, "trees": [
  {"children_left": [-1], "children_right": [-1], "feature": [-2],
   "threshold": [-2], "n_node_samples": [2]}]}`

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadEmptyDirectories(t *testing.T) {
	s, errs := load(t.TempDir(), t.TempDir())
	assert.False(t, s.PredictionLoaded())
	assert.False(t, s.AnomalyLoaded())
	assert.Empty(t, s.LoadedHorizons())
	require.NotEmpty(t, errs)
	for _, err := range errs {
		assert.True(t, errors.Is(err, ErrArtifactUnavailable), err)
	}
}

func TestLoadPartialPredictionArtifacts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ConfigFile, `{"feature_columns": ["a", "b"], "prediction_horizons": [1, 3]}`)
	writeFile(t, dir, RegressorFile(3), tinyModel)

	s, errs := load(dir, "")
	assert.True(t, s.PredictionLoaded())
	assert.Equal(t, []int{3}, s.LoadedHorizons())
	assert.Equal(t, []string{"a", "b"}, s.FeatureColumns)
	assert.Equal(t, []int{1, 3}, s.Horizons)
	assert.Nil(t, s.FeatureScaler)
	// scaler and horizon 1 are missing
	assert.Len(t, errs, 2)
}

func TestLoadAnomalyNeedsModelAndScaler(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, AnomalyModelFile, tinyForest)

	s, _ := load("", dir)
	assert.NotNil(t, s.AnomalyForest)
	assert.False(t, s.AnomalyLoaded())

	writeFile(t, dir, AnomalyScalerFile, `{"mean": [0], "scale": [1]}`)
	s, errs := load("", dir)
	assert.True(t, s.AnomalyLoaded())
	assert.Empty(t, errs)
}

func TestLoadCorruptFileIsUnavailable(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, RegressorFile(1), "{broken")

	s := Load(dir, "", nil)
	assert.False(t, s.PredictionLoaded())
	assert.Equal(t, DefaultHorizons, s.Horizons)
}

func TestNilSetIsEmpty(t *testing.T) {
	var s *Set
	assert.False(t, s.PredictionLoaded())
	assert.False(t, s.AnomalyLoaded())
	assert.Nil(t, s.LoadedHorizons())
}
