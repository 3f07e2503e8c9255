package scoring

import (
	"sync"

	"text2phenotype.com/ner/types"
)

// Scorer accumulates counts over many documents. It is safe for concurrent use.
type Scorer struct {
	mu         sync.Mutex
	background string
	cuts       bool
	counts     *Counts
	documents  int
}

func NewScorer(background string) *Scorer {
	return &Scorer{background: background, counts: NewCounts()}
}

// NewCutScorer scores boundary-only labellings with ScoreCuts.
func NewCutScorer() *Scorer {
	return &Scorer{cuts: true, counts: NewCounts()}
}

func (s *Scorer) Score(predicted, gold []string) *Counts {
	var counts *Counts
	if s.cuts {
		counts = ScoreCuts(predicted, gold)
	} else {
		counts = ScoreEntities(predicted, gold, s.background)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts.Add(counts)
	s.documents++
	return counts
}

// ScoreDocument compares the answer and gold answer slots of doc.
func (s *Scorer) ScoreDocument(doc *types.Document) *Counts {
	return s.Score(doc.Labels(types.SlotAnswer), doc.Labels(types.SlotGoldAnswer))
}

// Counts returns a snapshot of the accumulated counts.
func (s *Scorer) Counts() *Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts.Clone()
}

func (s *Scorer) Documents() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.documents
}
