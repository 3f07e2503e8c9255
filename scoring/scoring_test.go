package scoring

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"text2phenotype.com/ner/types"
)

func TestEntities(t *testing.T) {
	for _, tc := range []struct {
		name     string
		labels   []string
		expected []Entity
	}{
		{"empty", nil, nil},
		{"background only", []string{"O", "O"}, nil},
		{
			"label changes split plain labels",
			[]string{"PER", "PER", "LOC", "O", "PER"},
			[]Entity{{"PER", 0, 2}, {"LOC", 2, 3}, {"PER", 4, 5}},
		},
		{
			"B- always opens an entity",
			[]string{"B-PER", "I-PER", "B-PER", "O", "I-LOC", "I-LOC"},
			[]Entity{{"PER", 0, 2}, {"PER", 2, 3}, {"LOC", 4, 6}},
		},
		{
			"I- of another type opens an entity",
			[]string{"B-PER", "I-LOC"},
			[]Entity{{"PER", 0, 1}, {"LOC", 1, 2}},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.expected, Entities(tc.labels, "O")); diff != "" {
				t.Errorf("Unexpected entities (-expected +got):\n%s", diff)
			}
		})
	}
}

func TestScoreEntitiesBoundaryExample(t *testing.T) {
	gold := []string{"PERSON", "PERSON", "O", "O"}
	predicted := []string{"PERSON", "PERSON", "O", "PERSON"}

	counts := ScoreEntities(predicted, gold, "O")
	assert.Equal(t, 1, counts.TP["PERSON"])
	assert.Equal(t, 1, counts.FP["PERSON"])
	assert.Equal(t, 0, counts.FN["PERSON"])
	assert.InDelta(t, 0.5, counts.Precision("PERSON"), 1e-9)
	assert.InDelta(t, 1.0, counts.Recall("PERSON"), 1e-9)
	assert.InDelta(t, 0.667, counts.F1("PERSON"), 1e-3)
}

func TestScoreEntitiesExactBoundaries(t *testing.T) {
	gold := []string{"LOC", "LOC", "LOC", "O", "DATE"}
	predicted := []string{"LOC", "LOC", "O", "O", "TIME"}

	counts := ScoreEntities(predicted, gold, "O")
	assert.Equal(t, map[string]int{}, counts.TP)
	assert.Equal(t, map[string]int{"LOC": 1, "TIME": 1}, counts.FP)
	assert.Equal(t, map[string]int{"LOC": 1, "DATE": 1}, counts.FN)
}

func TestDegenerateScores(t *testing.T) {
	counts := NewCounts()
	assert.Equal(t, 0.0, counts.Precision("PER"))
	assert.Equal(t, 1.0, counts.Recall("PER"))
	assert.Equal(t, 0.0, counts.F1("PER"))
	assert.Equal(t, Scores{Precision: 0, Recall: 1, F1: 0}, counts.Micro())
	assert.Equal(t, Scores{Precision: 0, Recall: 1, F1: 0}, counts.Macro())

	counts.FN["PER"] = 2
	assert.Equal(t, Scores{Precision: 0, Recall: 0, F1: 0}, counts.Scores("PER"))
}

func TestMicroMacro(t *testing.T) {
	counts := &Counts{
		TP: map[string]int{"PER": 3, "LOC": 1},
		FP: map[string]int{"PER": 1},
		FN: map[string]int{"LOC": 1},
	}
	micro := counts.Micro()
	assert.InDelta(t, 0.8, micro.Precision, 1e-9)
	assert.InDelta(t, 0.8, micro.Recall, 1e-9)
	assert.InDelta(t, 0.8, micro.F1, 1e-9)

	macro := counts.Macro()
	assert.InDelta(t, (1.0+0.75)/2, macro.Precision, 1e-9)
	assert.InDelta(t, (0.5+1.0)/2, macro.Recall, 1e-9)
	assert.InDelta(t, (2.0/3+6.0/7)/2, macro.F1, 1e-9)
}

func TestCountsAdd(t *testing.T) {
	total := NewCounts()
	total.Add(ScoreEntities([]string{"PER"}, []string{"PER"}, "O"))
	total.Add(ScoreEntities([]string{"PER"}, []string{"O"}, "O"))
	total.Add(ScoreEntities([]string{"O"}, []string{"LOC"}, "O"))
	assert.Equal(t, []string{"LOC", "PER"}, total.Types())
	assert.Equal(t, 1, total.TP["PER"])
	assert.Equal(t, 1, total.FP["PER"])
	assert.Equal(t, 1, total.FN["LOC"])
}

func TestScoreCuts(t *testing.T) {
	tests := []struct {
		name       string
		predicted  []string
		gold       []string
		tp, fp, fn int
	}{
		{name: "first token is never a decision", predicted: []string{"1", "1"}, gold: []string{"0", "1"}, tp: 1},
		{name: "one extra cut", predicted: []string{"0", "1", "0", "1"}, gold: []string{"0", "1", "0", "0"}, tp: 1, fp: 1},
		{name: "mixed", predicted: []string{"0", "0", "1", "0", "0"}, gold: []string{"1", "0", "1", "1", "0"}, tp: 1, fn: 1},
		{name: "single token", predicted: []string{"1"}, gold: []string{"0"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			counts := ScoreCuts(test.predicted, test.gold)
			assert.Equal(t, test.tp, counts.TP[CutLabel], "TP")
			assert.Equal(t, test.fp, counts.FP[CutLabel], "FP")
			assert.Equal(t, test.fn, counts.FN[CutLabel], "FN")
		})
	}

	assert.Empty(t, ScoreCuts(nil, nil).Types())
	assert.Panics(t, func() { ScoreCuts([]string{"1"}, nil) })
}

func TestScoreLengthMismatch(t *testing.T) {
	assert.Panics(t, func() { ScoreEntities([]string{"O"}, nil, "O") })
}

func TestReport(t *testing.T) {
	counts := &Counts{
		TP: map[string]int{"PER": 1},
		FP: map[string]int{"PER": 1},
		FN: map[string]int{},
	}
	var buf bytes.Buffer
	require.NoError(t, counts.Report(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"Entity", "P", "R", "F1", "TP", "FP", "FN"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"PER", "0.5000", "1.0000", "0.6667", "1", "1", "0"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"Totals", "0.5000", "1.0000", "0.6667", "1", "1", "0"}, strings.Fields(lines[2]))
}

func TestScorerConcurrent(t *testing.T) {
	scorer := NewScorer("O")
	doc := types.NewDocument("d", []string{"John", "Smith", "left"})
	require.NoError(t, doc.SetLabels(types.SlotGoldAnswer, []string{"PER", "PER", "O"}))
	require.NoError(t, doc.SetLabels(types.SlotAnswer, []string{"PER", "PER", "O"}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scorer.ScoreDocument(doc)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, scorer.Documents())
	assert.Equal(t, 20, scorer.Counts().TP["PER"])

	snapshot := scorer.Counts()
	snapshot.TP["PER"] = 0
	assert.Equal(t, 20, scorer.Counts().TP["PER"], "snapshots are independent")

	cuts := NewCutScorer()
	cuts.Score([]string{"1", "1"}, []string{"0", "1"})
	cuts.Score([]string{"0", "1", "0", "1"}, []string{"0", "1", "0", "0"})
	assert.Equal(t, 2, cuts.Counts().TP[CutLabel])
	assert.Equal(t, 1, cuts.Counts().FP[CutLabel])
	assert.Equal(t, 0, cuts.Counts().FN[CutLabel])
}
