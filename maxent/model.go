// Package maxent is a maximum-entropy tagger whose contexts see the two previous tags.
package maxent

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"text2phenotype.com/ner/types"
)

var ErrInvalidModel = errors.New("invalid maxent model")

type Context struct {
	Outcomes   []int     `json:"outcomes"`
	Parameters []float64 `json:"parameters"`
}

type EvalParameters struct {
	Params        []Context `json:"params"`
	NumOfOutcomes int       `json:"numOfOutcomes"`
}

type Model struct {
	Probs      []float64      `json:"probs"`
	Outcomes   []string       `json:"outcomes"`
	PMap       map[string]int `json:"pmap"`
	EvalParams EvalParameters `json:"evalParams"`
}

func (m *Model) Validate() error {
	n := m.EvalParams.NumOfOutcomes
	if n == 0 || n != len(m.Outcomes) {
		return fmt.Errorf("%w: %d outcomes, %d declared", ErrInvalidModel, len(m.Outcomes), n)
	}
	if len(m.Probs) != 0 && len(m.Probs) != n {
		return fmt.Errorf("%w: %d priors for %d outcomes", ErrInvalidModel, len(m.Probs), n)
	}
	for predicate, idx := range m.PMap {
		if idx < 0 || idx >= len(m.EvalParams.Params) {
			return fmt.Errorf("%w: predicate %q points to missing parameters %d", ErrInvalidModel, predicate, idx)
		}
	}
	for i, ctx := range m.EvalParams.Params {
		if len(ctx.Outcomes) != len(ctx.Parameters) {
			return fmt.Errorf("%w: parameters %d have %d outcomes and %d weights",
				ErrInvalidModel, i, len(ctx.Outcomes), len(ctx.Parameters))
		}
		for _, oid := range ctx.Outcomes {
			if oid < 0 || oid >= n {
				return fmt.Errorf("%w: parameters %d reference outcome %d", ErrInvalidModel, i, oid)
			}
		}
	}
	return nil
}

func (m *Model) ClassIndex() *types.ClassIndex {
	return types.NewClassIndex(m.Outcomes...)
}

// Eval returns the outcome distribution for the active context predicates.
// Unknown predicates are ignored.
func (m *Model) Eval(context []string) []float64 {
	outsums := make([]float64, m.EvalParams.NumOfOutcomes)
	copy(outsums, m.Probs)

	params := m.EvalParams.Params
	for _, predicate := range context {
		ci, isOk := m.PMap[predicate]
		if !isOk {
			continue
		}
		predParam := params[ci]
		for ai, oid := range predParam.Outcomes {
			outsums[oid] += predParam.Parameters[ai]
		}
	}

	// subtract the max before exponentiating so large sums do not overflow
	max := math.Inf(-1)
	for _, s := range outsums {
		max = math.Max(max, s)
	}
	normal := 0.0
	for oid := range outsums {
		outsums[oid] = math.Exp(outsums[oid] - max)
		normal += outsums[oid]
	}
	for oid := range outsums {
		outsums[oid] /= normal
	}
	return outsums
}

func LoadModelFromFile(modelFilePath string) (*Model, error) {
	buf, err := os.ReadFile(modelFilePath)
	if err != nil {
		return nil, err
	}

	var m Model
	if err := json.Unmarshal(buf, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidModel, modelFilePath, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", modelFilePath, err)
	}
	return &m, nil
}
