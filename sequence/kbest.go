package sequence

import (
	"container/heap"
	"fmt"

	"text2phenotype.com/ner/utils"
)

type kBestEntry struct {
	score       float64
	predProduct int
	predRank    int
}

// kBestCandidate is the head of one sorted source list during a k-way merge.
// Ties go to the lower source, then the lower rank, so the first seen wins.
type kBestCandidate struct {
	score  float64
	source int
	rank   int
}

func (c kBestCandidate) Less(o interface{}) bool {
	other := o.(kBestCandidate)
	if c.score != other.score {
		return c.score > other.score
	}
	if c.source != other.source {
		return c.source < other.source
	}
	return c.rank < other.rank
}

// mergeKBest pops candidates from sources best first. Each source is sorted best first;
// scoreAt returns the score of an entry and ok=false past its end. visit returns false to stop.
func mergeKBest(sources int, scoreAt func(source, rank int) (float64, bool), visit func(c kBestCandidate) bool) {
	pq := make(utils.PriorityQueue, 0, sources)
	for source := 0; source < sources; source++ {
		if score, ok := scoreAt(source, 0); ok {
			pq = append(pq, kBestCandidate{score: score, source: source})
		}
	}
	heap.Init(&pq)
	for pq.Len() > 0 {
		c := heap.Pop(&pq).(kBestCandidate)
		if !visit(c) {
			return
		}
		if score, ok := scoreAt(c.source, c.rank+1); ok {
			heap.Push(&pq, kBestCandidate{score: score, source: c.source, rank: c.rank + 1})
		}
	}
}

// KBestSequences returns up to k distinct highest scoring tag sequences, best first.
// Equal scores keep the order in which the search met them, so results are reproducible.
func KBestSequences(model Model, k int) ([]ScoredSequence, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	space, err := newWindowSpace(model)
	if err != nil {
		return nil, err
	}
	if space.length == 0 {
		return []ScoredSequence{}, nil
	}

	cells := make([][][]kBestEntry, space.padLength)
	for pos := space.left; pos <= space.lastPos(); pos++ {
		cells[pos] = make([][]kBestEntry, space.productSizes[pos])
		leavingPos := pos - space.left - 1
		limit := k
		if leavingPos < space.left {
			// every real tag so far is inside the window, so entries differ only in padding
			limit = 1
		}
		for product := range cells[pos] {
			window := space.windowScore[pos][product]
			if !usable(window) {
				continue
			}
			if pos == space.left {
				cells[pos][product] = []kBestEntry{{score: window, predProduct: -1, predRank: -1}}
				continue
			}
			prev := cells[pos-1]
			preds := make([]int, space.tagNum[leavingPos])
			for choice := range preds {
				preds[choice] = space.predecessor(pos, product, choice)
			}
			var entries []kBestEntry
			mergeKBest(len(preds), func(choice, rank int) (float64, bool) {
				list := prev[preds[choice]]
				if rank >= len(list) {
					return 0, false
				}
				return list[rank].score, true
			}, func(c kBestCandidate) bool {
				entries = append(entries, kBestEntry{
					score:       c.score + window,
					predProduct: preds[c.source],
					predRank:    c.rank,
				})
				return len(entries) < limit
			})
			cells[pos][product] = entries
		}
	}

	// different final products may differ only in right padding, so backtrace until k are distinct
	last := cells[space.lastPos()]
	seqs := make([]ScoredSequence, 0, k)
	seen := make(map[uint64][]int)
	mergeKBest(len(last), func(product, rank int) (float64, bool) {
		if rank >= len(last[product]) {
			return 0, false
		}
		return last[product][rank].score, true
	}, func(c kBestCandidate) bool {
		seq := space.backtrace(cells, c.source, c.rank, c.score)
		key := seq.Key()
		for _, idx := range seen[key] {
			if equalInts(seqs[idx].Tags, seq.Tags) {
				return true
			}
		}
		seen[key] = append(seen[key], len(seqs))
		seqs = append(seqs, seq)
		return len(seqs) < k
	})
	return seqs, nil
}

func (space *windowSpace) backtrace(cells [][][]kBestEntry, product, rank int, score float64) ScoredSequence {
	padded := make([]int, space.padLength)
	pos := space.lastPos()
	space.fillWindow(pos, product, padded)
	for ; pos > space.left; pos-- {
		entry := cells[pos][product][rank]
		product, rank = entry.predProduct, entry.predRank
		leftmost := pos - 1 - space.left
		padded[leftmost] = space.tags[leftmost][space.leadingChoice(pos-1, product)]
	}
	tags := make([]int, space.length)
	copy(tags, padded[space.left:space.left+space.length])
	return ScoredSequence{Tags: tags, Score: score, padded: padded}
}
