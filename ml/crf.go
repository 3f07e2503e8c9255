package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"text2phenotype.com/ner/sequence"
	"text2phenotype.com/ner/types"
)

var ErrInvalidCRF = errors.New("invalid crf model")

type TransitionData struct {
	Weights       []float64 `json:"weights"`
	DefaultWeight float64   `json:"default_weight"`
}

// CRF is a linear-chain model. Transitions[from][to] holds one weight per feature index;
// InitialWeights score the start state the first transition leaves from.
type CRF struct {
	Features       map[string]int      `json:"features"`
	States         []string            `json:"states"`
	InitialWeights []float64           `json:"initial_weights"`
	FinalWeights   []float64           `json:"final_weights"`
	Transitions    [][]*TransitionData `json:"transitions"`
}

func (crf *CRF) Validate() error {
	if len(crf.States) == 0 {
		return fmt.Errorf("%w: no states", ErrInvalidCRF)
	}
	if len(crf.Transitions) != len(crf.States) {
		return fmt.Errorf("%w: %d transition rows for %d states", ErrInvalidCRF, len(crf.Transitions), len(crf.States))
	}
	for from, row := range crf.Transitions {
		if len(row) != len(crf.States) {
			return fmt.Errorf("%w: state %q has %d transitions, expected %d",
				ErrInvalidCRF, crf.States[from], len(row), len(crf.States))
		}
		for to, tr := range row {
			if tr == nil {
				return fmt.Errorf("%w: missing transition %q -> %q", ErrInvalidCRF, crf.States[from], crf.States[to])
			}
		}
	}
	if len(crf.InitialWeights) > len(crf.States) {
		return fmt.Errorf("%w: %d initial weights for %d states", ErrInvalidCRF, len(crf.InitialWeights), len(crf.States))
	}
	if len(crf.FinalWeights) != 0 && len(crf.FinalWeights) != len(crf.States) {
		return fmt.Errorf("%w: %d final weights for %d states", ErrInvalidCRF, len(crf.FinalWeights), len(crf.States))
	}
	return nil
}

func (crf *CRF) ClassIndex() *types.ClassIndex {
	return types.NewClassIndex(crf.States...)
}

func (crf *CRF) DotProduct(transition *TransitionData, featureIdxVector []int) float64 {
	transitionWeights := transition.Weights
	ret := 0.0
	for _, fIdx := range featureIdxVector {
		if fIdx < len(transitionWeights) {
			ret += transitionWeights[fIdx]
		}
	}
	return ret
}

// ToFeatureIdxVector maps features to their sorted, distinct indices. Unknown features are dropped.
func (crf *CRF) ToFeatureIdxVector(features []Feature) []int {
	set := make(map[int]bool)
	for _, feat := range features {
		fIdx, isOk := crf.Features[feat.String()]
		if isOk {
			set[fIdx] = true
		}
	}

	result := make([]int, 0, len(set))
	for k := range set {
		result = append(result, k)
	}
	sort.Ints(result)
	return result
}

func (crf *CRF) initialWeight(state int) float64 {
	if state < len(crf.InitialWeights) {
		return crf.InitialWeights[state]
	}
	return math.Inf(-1)
}

func (crf *CRF) finalWeight(state int) float64 {
	if state < len(crf.FinalWeights) {
		return crf.FinalWeights[state]
	}
	return 0
}

// SequenceModel scores tag sequences of one document.
// Padded position 0 holds the start state; position i >= 1 holds the label of token i-1.
type SequenceModel struct {
	crf        *CRF
	featureIdx [][]int
	starts     []int
	states     []int
}

func (crf *CRF) NewSequenceModel(features [][]Feature) *SequenceModel {
	model := &SequenceModel{
		crf:        crf,
		featureIdx: make([][]int, len(features)),
		states:     make([]int, len(crf.States)),
	}
	for i, feats := range features {
		model.featureIdx[i] = crf.ToFeatureIdxVector(feats)
	}
	for state := range crf.States {
		model.states[state] = state
		if w := crf.initialWeight(state); !math.IsInf(w, -1) {
			model.starts = append(model.starts, state)
		}
	}
	return model
}

func (model *SequenceModel) Length() int {
	return len(model.featureIdx)
}

func (model *SequenceModel) LeftWindow() int {
	return 1
}

func (model *SequenceModel) RightWindow() int {
	return 0
}

func (model *SequenceModel) PossibleValues(pos int) []int {
	if pos == 0 {
		return model.starts
	}
	return model.states
}

func (model *SequenceModel) transitionScore(from, to, pos int) float64 {
	transition := model.crf.Transitions[from][to]
	score := model.crf.DotProduct(transition, model.featureIdx[pos-1]) + transition.DefaultWeight
	if pos == 1 {
		score += model.crf.initialWeight(from)
	}
	if pos == model.Length() {
		score += model.crf.finalWeight(to)
	}
	return score
}

func (model *SequenceModel) ScoresOf(tags []int, pos int) []float64 {
	if pos == 0 {
		return make([]float64, len(model.starts))
	}
	scores := make([]float64, len(model.states))
	for i, to := range model.states {
		scores[i] = model.transitionScore(tags[pos-1], to, pos)
	}
	return scores
}

func (model *SequenceModel) ScoreOf(tags []int) float64 {
	score := 0.0
	for pos := 1; pos <= model.Length(); pos++ {
		score += model.transitionScore(tags[pos-1], tags[pos], pos)
	}
	return score
}

// Predict returns the best label sequence for the per-token features.
func (crf *CRF) Predict(features [][]Feature) ([]string, error) {
	best, err := sequence.BestSequence(crf.NewSequenceModel(features))
	if err != nil {
		return nil, err
	}
	result := make([]string, len(best.Tags))
	for i, tag := range best.Tags {
		result[i] = crf.States[tag]
	}
	return result, nil
}

func LoadCRFFromFile(modelPath string) (*CRF, error) {
	buf, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, err
	}

	var m CRF
	err = json.Unmarshal(buf, &m)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCRF, modelPath, err)
	}

	// absent initial weights make the state unusable as a start state
	for len(m.InitialWeights) < len(m.States) {
		m.InitialWeights = append(m.InitialWeights, math.Inf(-1))
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", modelPath, err)
	}
	return &m, nil
}
