package ml

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"text2phenotype.com/ner/sequence"
)

const crfJSON = `{
  "features": {"w_john": 0, "w_said": 1},
  "states": ["O", "PER"],
  "initial_weights": [0],
  "final_weights": [0, 0],
  "transitions": [
    [{"weights": [0, 2], "default_weight": 0}, {"weights": [3, -2], "default_weight": 0}],
    [{"weights": [0, 2], "default_weight": 0}, {"weights": [1, -1], "default_weight": 0}]
  ]
}`

func loadTestCRF(t *testing.T) *CRF {
	path := filepath.Join(t.TempDir(), "crf.json")
	require.NoError(t, os.WriteFile(path, []byte(crfJSON), 0o644))
	crf, err := LoadCRFFromFile(path)
	require.NoError(t, err)
	return crf
}

func words(ws ...string) [][]Feature {
	result := make([][]Feature, len(ws))
	for i, w := range ws {
		result[i] = []Feature{
			&BoolFeature{Name: "bias", Value: true},
			&StrFeature{Name: "w", Value: w},
		}
	}
	return result
}

func TestLoadCRFFromFile(t *testing.T) {
	crf := loadTestCRF(t)
	assert.Equal(t, []string{"O", "PER"}, crf.States)
	require.Len(t, crf.InitialWeights, 2)
	assert.True(t, math.IsInf(crf.InitialWeights[1], -1), "absent initial weight marks an impossible start")
	assert.Equal(t, 2, crf.ClassIndex().Size())

	_, err := LoadCRFFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	broken := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{"states": ["O"], "transitions": []}`), 0o644))
	_, err = LoadCRFFromFile(broken)
	assert.True(t, errors.Is(err, ErrInvalidCRF), "got %v", err)
}

func TestCRFPredict(t *testing.T) {
	crf := loadTestCRF(t)

	labels, err := crf.Predict(words("john", "said"))
	require.NoError(t, err)
	assert.Equal(t, []string{"PER", "O"}, labels)

	labels, err = crf.Predict(nil)
	require.NoError(t, err)
	assert.Empty(t, labels)
}

func TestCRFSequenceModel(t *testing.T) {
	crf := loadTestCRF(t)
	model := crf.NewSequenceModel(words("john", "said"))

	assert.Equal(t, 2, model.Length())
	assert.Equal(t, []int{0}, model.PossibleValues(0), "only finite initial weights start a sequence")
	assert.Equal(t, []int{0, 1}, model.PossibleValues(1))

	all, err := sequence.KBestSequences(model, 10)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, []int{1, 0}, all[0].Tags)
	assert.InDelta(t, 5.0, all[0].Score, 1e-9)
	assert.Equal(t, []int{0, 1}, all[3].Tags)
	assert.InDelta(t, -2.0, all[3].Score, 1e-9)
	for _, seq := range all {
		assert.InDelta(t, model.ScoreOf(seq.PaddedTags()), seq.Score, 1e-9)
	}
}

func TestToFeatureIdxVector(t *testing.T) {
	crf := loadTestCRF(t)
	idx := crf.ToFeatureIdxVector([]Feature{
		&StrFeature{Name: "w", Value: "said"},
		&StrFeature{Name: "w", Value: "unknown"},
		&StrFeature{Name: "w", Value: "john"},
		&StrFeature{Name: "w", Value: "said"},
	})
	assert.Equal(t, []int{0, 1}, idx)
}

func TestCRFKBestWithSeveralStartStates(t *testing.T) {
	toO := func() *TransitionData { return &TransitionData{Weights: []float64{0, 0, 0}} }
	toPER := func() *TransitionData { return &TransitionData{Weights: []float64{-1, -3, -5}} }
	crf := &CRF{
		Features:       map[string]int{"w_a": 0, "w_b": 1, "w_c": 2},
		States:         []string{"O", "PER"},
		InitialWeights: []float64{0, 0},
		Transitions: [][]*TransitionData{
			{toO(), toPER()},
			{toO(), toPER()},
		},
	}
	require.NoError(t, crf.Validate())
	model := crf.NewSequenceModel(words("a", "b", "c"))
	assert.Equal(t, []int{0, 1}, model.PossibleValues(0))

	got, err := sequence.KBestSequences(model, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int{0, 0, 0}, got[0].Tags)
	assert.Equal(t, []int{1, 0, 0}, got[1].Tags)
	assert.InDelta(t, -1.0, got[1].Score, 1e-9)
	assert.Equal(t, []int{0, 1, 0}, got[2].Tags)
	assert.InDelta(t, -3.0, got[2].Score, 1e-9)
}
