package sequence

import (
	"fmt"
	"math"
)

// windowSpace enumerates, for every real position, all tag combinations of the window around it.
// A combination is encoded as a mixed-radix product whose least significant digit is the
// rightmost window position.
type windowSpace struct {
	model        Model
	length       int
	left         int
	right        int
	padLength    int
	tags         [][]int
	tagNum       []int
	productSizes []int
	windowScore  [][]float64
}

func newWindowSpace(model Model) (*windowSpace, error) {
	left, right, length := model.LeftWindow(), model.RightWindow(), model.Length()
	if left < 0 || right < 0 {
		return nil, fmt.Errorf("%w: negative window (left %d, right %d)", ErrInvalidModel, left, right)
	}
	if length < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrInvalidModel, length)
	}

	space := &windowSpace{
		model:     model,
		length:    length,
		left:      left,
		right:     right,
		padLength: length + left + right,
	}
	if length == 0 {
		return space, nil
	}

	space.tags = make([][]int, space.padLength)
	space.tagNum = make([]int, space.padLength)
	for pos := 0; pos < space.padLength; pos++ {
		space.tags[pos] = model.PossibleValues(pos)
		space.tagNum[pos] = len(space.tags[pos])
		if space.tagNum[pos] == 0 {
			return nil, fmt.Errorf("%w: no legal tags at padded position %d", ErrInvalidModel, pos)
		}
	}

	space.productSizes = make([]int, space.padLength)
	for pos := left; pos < left+length; pos++ {
		size := 1
		for cur := pos - left; cur <= pos+right; cur++ {
			size *= space.tagNum[cur]
		}
		space.productSizes[pos] = size
	}

	if err := space.scoreWindows(); err != nil {
		return nil, err
	}
	return space, nil
}

func (space *windowSpace) scoreWindows() error {
	space.windowScore = make([][]float64, space.padLength)
	tmp := make([]int, space.padLength)
	for pos := space.left; pos < space.left+space.length; pos++ {
		for i := range tmp {
			tmp[i] = space.tags[i][0]
		}
		scores := make([]float64, space.productSizes[pos])
		for product := range scores {
			p := product
			shift := 1
			first := false
			for cur := pos + space.right; cur >= pos-space.left; cur-- {
				choice := p % space.tagNum[cur]
				tmp[cur] = space.tags[cur][choice]
				p /= space.tagNum[cur]
				if cur > pos {
					shift *= space.tagNum[cur]
				}
				if cur == pos {
					first = choice == 0
				}
			}
			// one model call fills the scores of every tag at pos for this context
			if !first {
				continue
			}
			posScores := space.model.ScoresOf(tmp, pos)
			if len(posScores) != space.tagNum[pos] {
				return fmt.Errorf("%w: %d scores for %d legal tags at padded position %d",
					ErrInvalidModel, len(posScores), space.tagNum[pos], pos)
			}
			for t, s := range posScores {
				scores[product+t*shift] = s
			}
		}
		space.windowScore[pos] = scores
	}
	return nil
}

// predecessor returns the product of window pos-1 that agrees with product on their shared positions,
// given the tag choice at the position that leaves the window.
func (space *windowSpace) predecessor(pos, product, leavingChoice int) int {
	entering := space.tagNum[pos+space.right]
	shared := product / entering
	factor := space.productSizes[pos] / entering
	return leavingChoice*factor + shared
}

// leadingChoice is the choice index of the leftmost position of a window product.
func (space *windowSpace) leadingChoice(pos, product int) int {
	return product / (space.productSizes[pos] / space.tagNum[pos-space.left])
}

// choiceAt is the choice index of padded position cur inside window pos.
func (space *windowSpace) choiceAt(pos, product, cur int) int {
	weight := 1
	for c := pos + space.right; c > cur; c-- {
		weight *= space.tagNum[c]
	}
	return (product / weight) % space.tagNum[cur]
}

// fillWindow writes the tags of a window product into padded.
func (space *windowSpace) fillWindow(pos, product int, padded []int) {
	p := product
	for cur := pos + space.right; cur >= pos-space.left; cur-- {
		padded[cur] = space.tags[cur][p%space.tagNum[cur]]
		p /= space.tagNum[cur]
	}
}

func (space *windowSpace) lastPos() int {
	return space.left + space.length - 1
}

func usable(score float64) bool {
	return !math.IsInf(score, -1) && !math.IsNaN(score)
}
