package classifier

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"text2phenotype.com/ner/logger"
	"text2phenotype.com/ner/scoring"
	"text2phenotype.com/ner/types"
)

const crfJSON = `{
  "features": {"w_john": 0, "w_said": 1},
  "states": ["O", "PER"],
  "initial_weights": [0],
  "transitions": [
    [{"weights": [0, 2], "default_weight": 0}, {"weights": [3, -2], "default_weight": 0}],
    [{"weights": [0, 2], "default_weight": 0}, {"weights": [1, -1], "default_weight": 0}]
  ]
}`

const maxentJSON = `{
  "outcomes": ["O", "DRUG"],
  "pmap": {"w=aspirin": 0, "default": 1},
  "evalParams": {
    "numOfOutcomes": 2,
    "params": [
      {"outcomes": [1], "parameters": [3]},
      {"outcomes": [0], "parameters": [1]}
    ]
  }
}`

// fixedClassifier labels every document with the same labels.
type fixedClassifier struct {
	name       string
	background string
	labels     []string
	err        error
	contexts   []GlobalInformation
}

func (c *fixedClassifier) Name() string       { return c.name }
func (c *fixedClassifier) Background() string { return c.background }

func (c *fixedClassifier) ClassIndex() *types.ClassIndex {
	return types.NewClassIndex(append([]string{c.background}, c.labels...)...)
}

func (c *fixedClassifier) Classify(doc *types.Document) (*types.Document, error) {
	if c.err != nil {
		return nil, c.err
	}
	if err := doc.SetLabels(types.SlotAnswer, c.labels); err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *fixedClassifier) ClassifyWithGlobalInformation(doc *types.Document, docContext, sentenceContext GlobalInformation) (*types.Document, error) {
	c.contexts = append(c.contexts, docContext, sentenceContext)
	return c.Classify(doc)
}

func newDoc(words ...string) *types.Document {
	return types.NewDocument("doc", words)
}

func TestEnsembleClassify(t *testing.T) {
	main := &fixedClassifier{name: "people", background: "O", labels: []string{"PER", "PER", "O", "O"}}
	aux := &fixedClassifier{name: "places", background: "O", labels: []string{"O", "PER", "LOC", "LOC"}}

	e, err := NewEnsemble([]Classifier{main, aux}, types.CombinationNormal)
	require.NoError(t, err)
	assert.Equal(t, "people+places", e.Name())
	assert.Equal(t, []string{"O", "PER", "LOC"}, e.ClassIndex().Labels())

	doc, err := e.Classify(newDoc("John", "Smith", "New", "York"))
	require.NoError(t, err)
	assert.Equal(t, []string{"PER", "PER", "LOC", "LOC"}, doc.Labels(types.SlotAnswer))

	docContext := GlobalInformation{"date": "2020-01-01"}
	_, err = e.ClassifyWithGlobalInformation(newDoc("a", "b", "c", "d"), docContext, nil)
	require.NoError(t, err)
	assert.Equal(t, []GlobalInformation{docContext, nil}, main.contexts)
	assert.Equal(t, []GlobalInformation{docContext, nil}, aux.contexts)
}

func TestEnsembleErrors(t *testing.T) {
	_, err := NewEnsemble(nil, types.CombinationNormal)
	assert.True(t, errors.Is(err, types.ErrClassifierCount), "got %v", err)

	broken := &fixedClassifier{name: "broken", background: "O", err: errors.New("no model")}
	e, err := NewEnsemble([]Classifier{broken}, types.CombinationNormal)
	require.NoError(t, err)
	_, err = e.Classify(newDoc("x"))
	assert.Error(t, err)

	_, err = e.KBest(newDoc("x"), 2)
	assert.True(t, errors.Is(err, ErrUnsupported), "got %v", err)
	_, err = e.SearchGraph(newDoc("x"))
	assert.True(t, errors.Is(err, ErrUnsupported), "got %v", err)
}

func TestClassifyAndScore(t *testing.T) {
	predictor := &fixedClassifier{name: "p", background: "O", labels: []string{"PER", "PER", "O", "PER"}}
	var buf bytes.Buffer
	l := logger.NewLoggerTo(&buf, "Test Ensemble")
	e, err := NewEnsemble([]Classifier{predictor}, types.CombinationNormal, WithEnsembleLogger(&l))
	require.NoError(t, err)

	makeDocs := func() <-chan *types.Document {
		docs := make(chan *types.Document, 3)
		for i := 0; i < 3; i++ {
			doc := newDoc("John", "Smith", "met", "Mary")
			require.NoError(t, doc.SetLabels(types.SlotGoldAnswer, []string{"PER", "PER", "O", "O"}))
			docs <- doc
		}
		close(docs)
		return docs
	}

	var written int
	write := func(doc *types.Document) error {
		written++
		return nil
	}

	scores, stats, err := e.ClassifyAndScore(context.Background(), makeDocs(), write, false, 2)
	require.NoError(t, err)
	assert.Nil(t, scores)
	assert.Equal(t, 3, stats.Documents)

	scores, _, err = e.ClassifyAndScore(context.Background(), makeDocs(), write, true, 2)
	require.NoError(t, err)
	require.NotNil(t, scores)
	assert.InDelta(t, 0.5, scores.Precision, 1e-9)
	assert.InDelta(t, 1.0, scores.Recall, 1e-9)
	assert.InDelta(t, 0.667, scores.F1, 1e-3)
	assert.Equal(t, 6, written)
}

func writeModels(t *testing.T) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "people.json"), []byte(crfJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "drugs.json"), []byte(maxentJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tags.bsv"), []byte("aspirin|O\n"), 0o644))
	return dir
}

func TestSequenceClassifier(t *testing.T) {
	dir := writeModels(t)
	cfg, err := types.ParseConfiguration([]byte("classifier: people.json\n"), "people")
	require.NoError(t, err)
	c, err := NewFileLoader(dir).Load(types.ClassifierSpec{Kind: types.ModelKindCRF, Path: "people.json"}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "people", c.Name())

	doc, err := c.Classify(newDoc("John", "said"))
	require.NoError(t, err)
	assert.Equal(t, []string{"PER", "O"}, doc.Labels(types.SlotAnswer))

	seq := c.(*SequenceClassifier)
	original := newDoc("John", "said")
	kbest, err := seq.KBest(original, 3)
	require.NoError(t, err)
	require.Len(t, kbest, 3)
	assert.Equal(t, []string{"PER", "O"}, kbest[0].Document.Labels(types.SlotAnswer))
	assert.InDelta(t, 5.0, kbest[0].Score, 1e-9)
	assert.Equal(t, []string{"", ""}, original.Labels(types.SlotAnswer), "k-best leaves the input alone")

	lattice, err := seq.SearchGraph(newDoc("John", "said"))
	require.NoError(t, err)
	var fsm bytes.Buffer
	require.NoError(t, lattice.WriteFSM(&fsm))
	assert.True(t, strings.HasPrefix(fsm.String(), "0\t1\tO\t"), fsm.String())
	assert.Len(t, lattice.FinalStates(), 4)

	beam := NewSequenceClassifier("beam", seq.factory, WithBeamSearch(2))
	doc, err = beam.Classify(newDoc("John", "said"))
	require.NoError(t, err)
	assert.Equal(t, []string{"PER", "O"}, doc.Labels(types.SlotAnswer))
}

func TestNewEnsembleFromConfig(t *testing.T) {
	dir := writeModels(t)
	loader := NewFileLoader(dir)

	cfg, err := types.ParseConfiguration([]byte(strings.Join([]string{
		"classifier1: crf:people.json",
		"classifier2: maxent:drugs.json",
		"combinationMode: high_recall",
		"tagDictionary: tags.bsv",
	}, "\n")), "clinical")
	require.NoError(t, err)

	e, err := NewEnsembleFromConfig(cfg, loader)
	require.NoError(t, err)
	assert.Equal(t, "clinical", e.Name())
	assert.Equal(t, types.CombinationHighRecall, e.Mode())
	require.Len(t, e.Classifiers(), 2)

	doc, err := e.Classify(newDoc("John", "said", "ibuprofen"))
	require.NoError(t, err)
	labels := doc.Labels(types.SlotAnswer)
	assert.Equal(t, []string{"PER", "O"}, labels[:2])

	doc, err = e.Classify(newDoc("aspirin"))
	require.NoError(t, err)
	assert.Equal(t, []string{"O"}, doc.Labels(types.SlotAnswer), "tag dictionary keeps aspirin out of DRUG")

	kbest, err := e.KBest(newDoc("John", "said"), 2)
	require.NoError(t, err)
	assert.Len(t, kbest, 2)

	again, err := NewEnsembleFromConfig(cfg, loader)
	require.NoError(t, err)
	assert.Len(t, again.Classifiers(), 2)
	assert.Len(t, loader.crfs, 1, "models are read once")

	missing, err := types.ParseConfiguration([]byte("classifier: absent.json\n"), "broken")
	require.NoError(t, err)
	_, err = NewEnsembleFromConfig(missing, loader)
	assert.Error(t, err)
}

func TestCutScoringFromConfig(t *testing.T) {
	dir := writeModels(t)
	cfg, err := types.ParseConfiguration([]byte("classifier1: people.json\nscoring: cuts\n"), "segments")
	require.NoError(t, err)
	e, err := NewEnsembleFromConfig(cfg, NewFileLoader(dir))
	require.NoError(t, err)

	doc := newDoc("John", "said")
	require.NoError(t, doc.SetLabels(types.SlotGoldAnswer, []string{scoring.CutLabel, scoring.CutLabel}))
	docs := make(chan *types.Document, 1)
	docs <- doc
	close(docs)

	counts, _, err := e.ClassifyAndCount(context.Background(), docs, func(*types.Document) error { return nil }, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{scoring.CutLabel}, counts.Types(), "boundary decisions only, no entity types")
	assert.Equal(t, 1, counts.FN[scoring.CutLabel])
	assert.Zero(t, counts.TP[scoring.CutLabel])
	assert.Zero(t, counts.FP[scoring.CutLabel])
}
