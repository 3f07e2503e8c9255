package classifier

import (
	"fmt"

	"text2phenotype.com/ner/features"
	"text2phenotype.com/ner/maxent"
	"text2phenotype.com/ner/ml"
	"text2phenotype.com/ner/sequence"
	"text2phenotype.com/ner/types"
)

// ModelFactory binds a trained model to one document.
type ModelFactory interface {
	ClassIndex() *types.ClassIndex
	SequenceModel(doc *types.Document) sequence.Model
}

type crfFactory struct {
	crf        *ml.CRF
	extractor  features.Extractor
	classIndex *types.ClassIndex
}

func NewCRFFactory(crf *ml.CRF, extractor features.Extractor) ModelFactory {
	return &crfFactory{crf: crf, extractor: extractor, classIndex: crf.ClassIndex()}
}

func (f *crfFactory) ClassIndex() *types.ClassIndex {
	return f.classIndex
}

func (f *crfFactory) SequenceModel(doc *types.Document) sequence.Model {
	return f.crf.NewSequenceModel(f.extractor.Extract(doc))
}

type maxEntFactory struct {
	tagger     *maxent.Tagger
	classIndex *types.ClassIndex
}

func NewMaxEntFactory(tagger *maxent.Tagger) ModelFactory {
	return &maxEntFactory{tagger: tagger, classIndex: tagger.Model.ClassIndex()}
}

func (f *maxEntFactory) ClassIndex() *types.ClassIndex {
	return f.classIndex
}

func (f *maxEntFactory) SequenceModel(doc *types.Document) sequence.Model {
	return f.tagger.SequenceModel(doc.Tokens)
}

// SequenceClassifier decodes the best label sequence of a single model.
type SequenceClassifier struct {
	name       string
	background string
	factory    ModelFactory
	search     string
	beamSize   int
}

type SequenceOption func(*SequenceClassifier)

func WithBackground(background string) SequenceOption {
	return func(c *SequenceClassifier) {
		c.background = background
	}
}

// WithBeamSearch replaces exact Viterbi decoding by a beam search of the given width.
func WithBeamSearch(beamSize int) SequenceOption {
	return func(c *SequenceClassifier) {
		c.search = types.SearchBeam
		c.beamSize = beamSize
	}
}

func NewSequenceClassifier(name string, factory ModelFactory, opts ...SequenceOption) *SequenceClassifier {
	c := &SequenceClassifier{
		name:       name,
		background: types.DefaultBackground,
		factory:    factory,
		search:     types.SearchViterbi,
		beamSize:   types.DefaultBeamSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *SequenceClassifier) Name() string {
	return c.name
}

func (c *SequenceClassifier) Background() string {
	return c.background
}

func (c *SequenceClassifier) ClassIndex() *types.ClassIndex {
	return c.factory.ClassIndex()
}

func (c *SequenceClassifier) bestSequence(model sequence.Model) (sequence.ScoredSequence, error) {
	if c.search == types.SearchBeam {
		return sequence.BeamBestSequence(model, c.beamSize)
	}
	return sequence.BestSequence(model)
}

func (c *SequenceClassifier) Classify(doc *types.Document) (*types.Document, error) {
	best, err := c.bestSequence(c.factory.SequenceModel(doc))
	if err != nil {
		return nil, fmt.Errorf("classifier %s: %w", c.name, err)
	}
	if err := doc.SetLabels(types.SlotAnswer, c.ClassIndex().Decode(best.Tags)); err != nil {
		return nil, err
	}
	return doc, nil
}

// ClassifyWithGlobalInformation labels doc like Classify; token-local models have no use for the context.
func (c *SequenceClassifier) ClassifyWithGlobalInformation(doc *types.Document, _, _ GlobalInformation) (*types.Document, error) {
	return c.Classify(doc)
}

// KBest returns up to k distinct labellings of doc, best first. doc itself is not modified.
func (c *SequenceClassifier) KBest(doc *types.Document, k int) ([]ScoredDocument, error) {
	seqs, err := sequence.KBestSequences(c.factory.SequenceModel(doc), k)
	if err != nil {
		return nil, fmt.Errorf("classifier %s: %w", c.name, err)
	}
	result := make([]ScoredDocument, len(seqs))
	for i, seq := range seqs {
		labelled := doc.Clone()
		if err := labelled.SetLabels(types.SlotAnswer, c.ClassIndex().Decode(seq.Tags)); err != nil {
			return nil, err
		}
		result[i] = ScoredDocument{Document: labelled, Score: seq.Score}
	}
	return result, nil
}

func (c *SequenceClassifier) SearchGraph(doc *types.Document) (*sequence.Lattice, error) {
	lattice, err := sequence.BuildLattice(c.factory.SequenceModel(doc), c.ClassIndex())
	if err != nil {
		return nil, fmt.Errorf("classifier %s: %w", c.name, err)
	}
	return lattice, nil
}
