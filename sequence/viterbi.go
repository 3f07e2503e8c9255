package sequence

import (
	"errors"
	"math"
)

var ErrNoSequence = errors.New("no tag sequence has a finite score")

// BestSequence is the single-best exact Viterbi search. Ties go to the first candidate met.
func BestSequence(model Model) (ScoredSequence, error) {
	space, err := newWindowSpace(model)
	if err != nil {
		return ScoredSequence{}, err
	}
	if space.length == 0 {
		return ScoredSequence{Tags: []int{}, padded: make([]int, space.padLength)}, nil
	}

	score := make([][]float64, space.padLength)
	trace := make([][]int, space.padLength)
	for pos := space.left; pos <= space.lastPos(); pos++ {
		score[pos] = make([]float64, space.productSizes[pos])
		trace[pos] = make([]int, space.productSizes[pos])
		for product := range score[pos] {
			window := space.windowScore[pos][product]
			score[pos][product] = math.Inf(-1)
			trace[pos][product] = -1
			if !usable(window) {
				continue
			}
			if pos == space.left {
				score[pos][product] = window
				continue
			}
			for choice := 0; choice < space.tagNum[pos-space.left-1]; choice++ {
				pred := space.predecessor(pos, product, choice)
				if !usable(score[pos-1][pred]) {
					continue
				}
				candidate := score[pos-1][pred] + window
				if candidate > score[pos][product] {
					score[pos][product] = candidate
					trace[pos][product] = pred
				}
			}
		}
	}

	last := space.lastPos()
	best := -1
	bestScore := math.Inf(-1)
	for product, s := range score[last] {
		if s > bestScore {
			best = product
			bestScore = s
		}
	}
	if best < 0 {
		return ScoredSequence{}, ErrNoSequence
	}

	padded := make([]int, space.padLength)
	space.fillWindow(last, best, padded)
	product := best
	for pos := last; pos > space.left; pos-- {
		product = trace[pos][product]
		leftmost := pos - 1 - space.left
		padded[leftmost] = space.tags[leftmost][space.leadingChoice(pos-1, product)]
	}
	tags := make([]int, space.length)
	copy(tags, padded[space.left:space.left+space.length])
	return ScoredSequence{Tags: tags, Score: bestScore, padded: padded}, nil
}
