package maxent

import (
	"math"

	"text2phenotype.com/ner/types"
)

const historyLength = 2

// SequenceModel exposes one document to the sequence decoders. Tags are outcome indices;
// the two left padding positions stand for "no previous tag".
type SequenceModel struct {
	model      *Model
	tokens     []*types.Token
	contextGen ContextGenerator
	legal      [][]int
	padding    []int
}

func NewSequenceModel(model *Model, tokens []*types.Token, contextGen ContextGenerator, validator SequenceValidator) *SequenceModel {
	sm := &SequenceModel{
		model:      model,
		tokens:     tokens,
		contextGen: contextGen,
		legal:      make([][]int, len(tokens)),
		padding:    []int{0},
	}
	all := make([]int, len(model.Outcomes))
	for oid := range all {
		all[oid] = oid
	}
	for i := range tokens {
		for oid, out := range model.Outcomes {
			if validator.ValidSequence(i, tokens, out) {
				sm.legal[i] = append(sm.legal[i], oid)
			}
		}
		// a dictionary entry naming only unknown tags would leave nothing to choose from
		if len(sm.legal[i]) == 0 {
			sm.legal[i] = all
		}
	}
	return sm
}

func (sm *SequenceModel) Length() int {
	return len(sm.tokens)
}

func (sm *SequenceModel) LeftWindow() int {
	return historyLength
}

func (sm *SequenceModel) RightWindow() int {
	return 0
}

func (sm *SequenceModel) PossibleValues(pos int) []int {
	if pos < historyLength {
		return sm.padding
	}
	return sm.legal[pos-historyLength]
}

func (sm *SequenceModel) distribution(tags []int, pos int) []float64 {
	index := pos - historyLength
	var tagPrev, tagPrevPrev string
	if index >= 1 {
		tagPrev = sm.model.Outcomes[tags[pos-1]]
	}
	if index >= 2 {
		tagPrevPrev = sm.model.Outcomes[tags[pos-2]]
	}
	return sm.model.Eval(sm.contextGen.GetContext(index, sm.tokens, tagPrev, tagPrevPrev))
}

// ScoresOf returns log probabilities of the legal outcomes at pos.
func (sm *SequenceModel) ScoresOf(tags []int, pos int) []float64 {
	values := sm.PossibleValues(pos)
	if pos < historyLength {
		return make([]float64, len(values))
	}
	probs := sm.distribution(tags, pos)
	scores := make([]float64, len(values))
	for i, oid := range values {
		scores[i] = math.Log(probs[oid])
	}
	return scores
}

func (sm *SequenceModel) ScoreOf(tags []int) float64 {
	score := 0.0
	for pos := historyLength; pos < historyLength+sm.Length(); pos++ {
		score += math.Log(sm.distribution(tags, pos)[tags[pos]])
	}
	return score
}
