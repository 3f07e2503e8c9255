// Package ensemble merges the label sequences of several classifiers run over one document.
package ensemble

import (
	"errors"
	"fmt"

	"text2phenotype.com/ner/types"
)

var ErrNoSequences = errors.New("no label sequences to merge")

// LabelSequence is one classifier's labelling of a document.
// Alphabet is the classifier's full label set; when nil only the assigned labels are known.
type LabelSequence struct {
	Labels     []string
	Background string
	Alphabet   []string
}

// claimed returns the labels a sequence claims for itself in NORMAL mode.
func (seq LabelSequence) claimed() []string {
	if seq.Alphabet != nil {
		return seq.Alphabet
	}
	return seq.Labels
}

// Merge folds sequences into the first, highest priority one. Each later sequence may only
// add runs of its eligible labels over tokens the merged result still has as background,
// and a run is taken whole or not at all.
// Sequences of different lengths are a programming error and cause a panic.
func Merge(sequences []LabelSequence, mode types.CombinationMode, background string) ([]string, error) {
	if len(sequences) == 0 {
		return nil, ErrNoSequences
	}
	main := sequences[0]
	for i, seq := range sequences[1:] {
		if len(seq.Labels) != len(main.Labels) {
			panic(fmt.Sprintf("merging label sequence %d of length %d into main sequence of length %d",
				i+1, len(seq.Labels), len(main.Labels)))
		}
	}

	merged := make([]string, len(main.Labels))
	for i, label := range main.Labels {
		if label == main.Background {
			label = background
		}
		merged[i] = label
	}

	seen := make(map[string]bool)
	for _, label := range main.claimed() {
		seen[label] = true
	}
	for _, aux := range sequences[1:] {
		eligible := make(map[string]bool)
		for _, label := range aux.Labels {
			if label == aux.Background || label == background {
				continue
			}
			if mode == types.CombinationNormal && seen[label] {
				continue
			}
			eligible[label] = true
		}
		mergeTwo(merged, aux.Labels, eligible, background)
		// claims are made only after the whole sequence is merged, so a sequence never blocks itself
		for _, label := range aux.claimed() {
			seen[label] = true
		}
	}
	return merged, nil
}

// mergeTwo copies runs of eligible aux labels into main. A run that meets any token main
// already labels is dropped.
func mergeTwo(main, aux []string, eligible map[string]bool, background string) {
	prev := background
	valid := true
	var run []int

	commit := func() {
		if valid {
			for _, i := range run {
				main[i] = prev
			}
		}
		run = run[:0]
		valid = true
	}

	for i, auxLabel := range aux {
		if !eligible[auxLabel] {
			if len(run) > 0 {
				commit()
			}
			prev = background
			continue
		}
		if auxLabel != prev && len(run) > 0 {
			commit()
		}
		if main[i] != background {
			valid = false
		}
		prev = auxLabel
		run = append(run, i)
	}
	if len(run) > 0 {
		commit()
	}
}
