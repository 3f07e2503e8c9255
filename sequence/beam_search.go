package sequence

import (
	"container/heap"
	"fmt"

	"text2phenotype.com/ner/utils"
)

type beamItem struct {
	padded []int
	score  float64
	order  int
}

func (item beamItem) Less(o interface{}) bool {
	c, isOk := o.(beamItem)
	if !isOk {
		return false
	}
	if item.score == c.score {
		return item.order < c.order
	}
	return item.score > c.score
}

// BeamBestSequence searches left to right keeping the beamSize best prefixes.
// Tags to the right of the position being scored are taken as the first legal value,
// so with a right window the result is approximate.
func BeamBestSequence(model Model, beamSize int) (ScoredSequence, error) {
	if beamSize < 1 {
		return ScoredSequence{}, fmt.Errorf("beam size must be positive, got %d", beamSize)
	}
	left, right, length := model.LeftWindow(), model.RightWindow(), model.Length()
	if left < 0 || right < 0 {
		return ScoredSequence{}, fmt.Errorf("%w: negative window (left %d, right %d)", ErrInvalidModel, left, right)
	}
	padLength := length + left + right
	if length == 0 {
		return ScoredSequence{Tags: []int{}, padded: make([]int, padLength)}, nil
	}

	tags := make([][]int, padLength)
	start := make([]int, padLength)
	for pos := range tags {
		tags[pos] = model.PossibleValues(pos)
		if len(tags[pos]) == 0 {
			return ScoredSequence{}, fmt.Errorf("%w: no legal tags at padded position %d", ErrInvalidModel, pos)
		}
		start[pos] = tags[pos][0]
	}

	prev := make(utils.PriorityQueue, 0, beamSize)
	heap.Push(&prev, beamItem{padded: start})
	order := 0

	for pos := 0; pos < left+length; pos++ {
		next := make(utils.PriorityQueue, 0, beamSize*len(tags[pos]))
		for sc := 0; len(prev) > 0 && sc < beamSize; sc++ {
			top := heap.Pop(&prev).(beamItem)

			// left padding carries no score of its own; later windows score it
			scores := make([]float64, len(tags[pos]))
			if pos >= left {
				scores = model.ScoresOf(top.padded, pos)
				if len(scores) != len(tags[pos]) {
					return ScoredSequence{}, fmt.Errorf("%w: %d scores for %d legal tags at padded position %d",
						ErrInvalidModel, len(scores), len(tags[pos]), pos)
				}
			}
			for t, s := range scores {
				if !usable(s) {
					continue
				}
				padded := make([]int, padLength)
				copy(padded, top.padded)
				padded[pos] = tags[pos][t]
				order++
				heap.Push(&next, beamItem{padded: padded, score: top.score + s, order: order})
			}
		}
		prev = next
	}

	if len(prev) == 0 {
		return ScoredSequence{}, ErrNoSequence
	}
	best := heap.Pop(&prev).(beamItem)
	result := make([]int, length)
	copy(result, best.padded[left:left+length])
	return ScoredSequence{Tags: result, Score: best.score, padded: best.padded}, nil
}
