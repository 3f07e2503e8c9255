package sequence

import (
	"fmt"
	"math"
	"sort"
)

// tableModel is a windowed model whose window score is looked up by a callback.
// Padding positions have the values in pad (default: the single tag 0).
type tableModel struct {
	length int
	left   int
	right  int
	tags   []int
	pad    []int
	legal  func(pos int) []int
	score  func(window []int, pos int) float64
}

func (m *tableModel) Length() int      { return m.length }
func (m *tableModel) LeftWindow() int  { return m.left }
func (m *tableModel) RightWindow() int { return m.right }

func (m *tableModel) PossibleValues(pos int) []int {
	if pos < m.left || pos >= m.left+m.length {
		if m.pad != nil {
			return m.pad
		}
		return []int{0}
	}
	if m.legal != nil {
		return m.legal(pos)
	}
	return m.tags
}

func (m *tableModel) ScoresOf(tags []int, pos int) []float64 {
	values := m.PossibleValues(pos)
	scores := make([]float64, len(values))
	window := make([]int, len(tags))
	copy(window, tags)
	for i, v := range values {
		window[pos] = v
		scores[i] = m.score(window, pos)
	}
	return scores
}

func (m *tableModel) ScoreOf(tags []int) float64 {
	total := 0.0
	for pos := m.left; pos < m.left+m.length; pos++ {
		total += m.score(tags, pos)
	}
	return total
}

// pseudo returns a reproducible, tie-free score for a window.
func pseudo(seed int, window []int, pos, left, right int) float64 {
	h := uint64(seed)*1099511628211 + uint64(pos)*7919
	for cur := pos - left; cur <= pos+right; cur++ {
		h = h*31 + uint64(window[cur]+3)
		h ^= h >> 13
	}
	return -float64(h%100003)/1000.0 - float64(pos)*1e-7
}

func newFirstOrderModel(length, numTags, seed int) *tableModel {
	m := &tableModel{length: length, left: 1, tags: rangeTags(numTags)}
	m.score = func(window []int, pos int) float64 {
		return pseudo(seed, window, pos, 1, 0)
	}
	return m
}

func newWideWindowModel(length, numTags, seed int) *tableModel {
	m := &tableModel{length: length, left: 1, right: 1, tags: rangeTags(numTags)}
	m.score = func(window []int, pos int) float64 {
		return pseudo(seed, window, pos, 1, 1)
	}
	return m
}

func rangeTags(n int) []int {
	tags := make([]int, n)
	for i := range tags {
		tags[i] = i
	}
	return tags
}

type enumerated struct {
	tags  []int
	score float64
}

// bruteForce scores every assignment of every padded position and returns, for each distinct
// real tag sequence, its best finite score, sorted best first.
func bruteForce(m *tableModel) []enumerated {
	padLength := m.length + m.left + m.right
	padded := make([]int, padLength)
	best := map[string]int{}
	var all []enumerated
	var walk func(pos int)
	walk = func(pos int) {
		if pos == padLength {
			s := m.ScoreOf(padded)
			if math.IsInf(s, -1) {
				return
			}
			tags := make([]int, m.length)
			copy(tags, padded[m.left:m.left+m.length])
			key := fmt.Sprint(tags)
			if idx, ok := best[key]; ok {
				if s > all[idx].score {
					all[idx].score = s
				}
				return
			}
			best[key] = len(all)
			all = append(all, enumerated{tags: tags, score: s})
			return
		}
		for _, v := range m.PossibleValues(pos) {
			padded[pos] = v
			walk(pos + 1)
		}
	}
	walk(0)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].score > all[j].score
	})
	return all
}
