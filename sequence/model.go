// Package sequence decodes label sequences from windowed scoring models.
//
// A Model scores tags over padded positions: position LeftWindow() holds the first real token
// and the last RightWindow() positions are right padding. Decoders work on products of the tag
// choices inside one window, so memory and time grow with T^(left+right+1).
package sequence

import (
	"errors"

	"text2phenotype.com/ner/utils"
)

var ErrInvalidModel = errors.New("invalid sequence model")

// Model is a scoring oracle over tag index assignments for one document.
type Model interface {
	// Length is the number of real positions.
	Length() int
	LeftWindow() int
	RightWindow() int
	// PossibleValues lists the legal tags at a padded position.
	PossibleValues(pos int) []int
	// ScoresOf returns one score per PossibleValues(pos) entry, each obtained by
	// placing that value at pos inside the window of tags around it.
	ScoresOf(tags []int, pos int) []float64
	// ScoreOf scores a complete padded assignment.
	ScoreOf(tags []int) float64
}

// ScoredSequence is a full tag assignment for the real positions of a document.
type ScoredSequence struct {
	Tags   []int
	Score  float64
	padded []int
}

// PaddedTags returns the assignment including padding positions, as passed to Model.ScoreOf.
func (seq ScoredSequence) PaddedTags() []int {
	return seq.padded
}

// Key identifies the tag sequence; equal Tags give equal keys.
func (seq ScoredSequence) Key() uint64 {
	return utils.HashInts(seq.Tags)
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

