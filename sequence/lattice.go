package sequence

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"text2phenotype.com/ner/types"
)

// State is a lattice node. Position is the document position whose window the state stands for;
// the initial state has Position -1.
type State struct {
	ID       int  `json:"id"`
	Position int  `json:"position"`
	Final    bool `json:"final"`
}

type Transition struct {
	From   int     `json:"from"`
	To     int     `json:"to"`
	Tag    int     `json:"tag"`
	Label  string  `json:"label"`
	Weight float64 `json:"weight"`
}

// Lattice is a weighted automaton over every reachable tag path of a model.
// States and transitions are stored in enumeration order: by position, then window product.
type Lattice struct {
	States      []State      `json:"states"`
	Transitions []Transition `json:"transitions"`
}

const InitialState = 0

func (lattice *Lattice) FinalStates() []int {
	var finals []int
	for _, state := range lattice.States {
		if state.Final {
			finals = append(finals, state.ID)
		}
	}
	return finals
}

// BuildLattice materializes all windows reachable from the initial left padding.
// Windows whose score is -Inf are dropped along with everything only they lead to.
func BuildLattice(model Model, classIndex *types.ClassIndex) (*Lattice, error) {
	space, err := newWindowSpace(model)
	if err != nil {
		return nil, err
	}
	lattice := &Lattice{States: []State{{ID: InitialState, Position: -1}}}
	if space.length == 0 {
		lattice.States[InitialState].Final = true
		return lattice, nil
	}

	ids := make([][]int, space.padLength)
	for pos := space.left; pos <= space.lastPos(); pos++ {
		ids[pos] = make([]int, space.productSizes[pos])
		for product := range ids[pos] {
			ids[pos][product] = -1
			window := space.windowScore[pos][product]
			if !usable(window) {
				continue
			}

			var sources []int
			if pos == space.left {
				sources = []int{InitialState}
			} else {
				for choice := 0; choice < space.tagNum[pos-space.left-1]; choice++ {
					if id := ids[pos-1][space.predecessor(pos, product, choice)]; id >= 0 {
						sources = append(sources, id)
					}
				}
			}
			if len(sources) == 0 {
				continue
			}

			id := len(lattice.States)
			ids[pos][product] = id
			lattice.States = append(lattice.States, State{
				ID:       id,
				Position: pos - space.left,
				Final:    pos == space.lastPos(),
			})
			tag := space.tags[pos][space.choiceAt(pos, product, pos)]
			label, err := labelOf(classIndex, tag)
			if err != nil {
				return nil, err
			}
			for _, from := range sources {
				lattice.Transitions = append(lattice.Transitions, Transition{
					From:   from,
					To:     id,
					Tag:    tag,
					Label:  label,
					Weight: window,
				})
			}
		}
	}
	return lattice, nil
}

func labelOf(classIndex *types.ClassIndex, tag int) (string, error) {
	if classIndex == nil {
		return strconv.Itoa(tag), nil
	}
	if tag < 0 || tag >= classIndex.Size() {
		return "", fmt.Errorf("%w: tag %d outside class index of size %d", ErrInvalidModel, tag, classIndex.Size())
	}
	return classIndex.Label(tag), nil
}

// WriteFSM writes the lattice in AT&T text form: "from to label weight" per transition,
// then one line per final state.
func (lattice *Lattice) WriteFSM(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, tr := range lattice.Transitions {
		if _, err := fmt.Fprintf(bw, "%d\t%d\t%s\t%s\n",
			tr.From, tr.To, tr.Label, strconv.FormatFloat(tr.Weight, 'g', -1, 64)); err != nil {
			return err
		}
	}
	for _, id := range lattice.FinalStates() {
		if _, err := fmt.Fprintf(bw, "%d\n", id); err != nil {
			return err
		}
	}
	return bw.Flush()
}
