// Package scoring counts entity-level agreement between predicted and gold labels.
package scoring

import "strings"

const (
	beginPrefix  = "B-"
	insidePrefix = "I-"

	// CutLabel marks a token that starts a new segment in boundary-only labelling.
	CutLabel = "1"
)

// Entity is a run of tokens [Start, End) of one type.
type Entity struct {
	Type  string
	Start int
	End   int
}

func splitLabel(label string) (prefix, entityType string) {
	switch {
	case strings.HasPrefix(label, beginPrefix):
		return beginPrefix, label[len(beginPrefix):]
	case strings.HasPrefix(label, insidePrefix):
		return insidePrefix, label[len(insidePrefix):]
	}
	return "", label
}

// Entities splits labels into maximal entities. "B-" always opens an entity and "I-" continues
// one of its type; plain labels open a new entity whenever the label changes.
func Entities(labels []string, background string) []Entity {
	var result []Entity
	open := false
	var current Entity

	closeEntity := func(end int) {
		if open {
			current.End = end
			result = append(result, current)
			open = false
		}
	}

	for i, label := range labels {
		if label == background {
			closeEntity(i)
			continue
		}
		prefix, entityType := splitLabel(label)
		if open && prefix != beginPrefix && entityType == current.Type {
			continue
		}
		closeEntity(i)
		current = Entity{Type: entityType, Start: i}
		open = true
	}
	closeEntity(len(labels))
	return result
}

func countEntities(predicted, gold []Entity) *Counts {
	counts := NewCounts()
	unmatched := make(map[Entity]bool, len(gold))
	for _, e := range gold {
		unmatched[e] = true
	}
	for _, e := range predicted {
		if unmatched[e] {
			counts.TP[e.Type]++
			delete(unmatched, e)
		} else {
			counts.FP[e.Type]++
		}
	}
	for _, e := range gold {
		if unmatched[e] {
			counts.FN[e.Type]++
		}
	}
	return counts
}

// ScoreEntities counts exact matches of type, start and end between predicted and gold entities.
// Label slices of different lengths are a programming error and cause a panic.
func ScoreEntities(predicted, gold []string, background string) *Counts {
	mustSameLength(predicted, gold)
	return countEntities(Entities(predicted, background), Entities(gold, background))
}

// ScoreCuts scores a segmentation labelling one boundary decision at a time. A token labelled
// CutLabel starts a new word; position 0 always does, so its label is ignored.
func ScoreCuts(predicted, gold []string) *Counts {
	mustSameLength(predicted, gold)
	counts := NewCounts()
	for i := 1; i < len(gold); i++ {
		predictedCut, goldCut := predicted[i] == CutLabel, gold[i] == CutLabel
		switch {
		case predictedCut && goldCut:
			counts.TP[CutLabel]++
		case predictedCut:
			counts.FP[CutLabel]++
		case goldCut:
			counts.FN[CutLabel]++
		}
	}
	return counts
}

func mustSameLength(predicted, gold []string) {
	if len(predicted) != len(gold) {
		panic("scoring label sequences of different lengths")
	}
}
