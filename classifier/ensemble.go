package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"text2phenotype.com/ner/ensemble"
	"text2phenotype.com/ner/runner"
	"text2phenotype.com/ner/scoring"
	"text2phenotype.com/ner/sequence"
	"text2phenotype.com/ner/types"
)

// Ensemble runs its classifiers in priority order and merges their labels.
type Ensemble struct {
	name        string
	classifiers []Classifier
	mode        types.CombinationMode
	background  string
	classIndex  *types.ClassIndex
	cutScoring  bool
	nerLogger   *zerolog.Logger
}

type EnsembleOption func(*Ensemble)

func WithName(name string) EnsembleOption {
	return func(e *Ensemble) {
		e.name = name
	}
}

// WithMergedBackground sets the background label of the merged output.
// By default it is the background of the first classifier.
func WithMergedBackground(background string) EnsembleOption {
	return func(e *Ensemble) {
		e.background = background
	}
}

// WithCutScoring scores gold documents as boundary-only segmentations instead of entities.
func WithCutScoring() EnsembleOption {
	return func(e *Ensemble) {
		e.cutScoring = true
	}
}

func WithEnsembleLogger(l *zerolog.Logger) EnsembleOption {
	return func(e *Ensemble) {
		e.nerLogger = l
	}
}

func NewEnsemble(classifiers []Classifier, mode types.CombinationMode, opts ...EnsembleOption) (*Ensemble, error) {
	if len(classifiers) == 0 {
		return nil, fmt.Errorf("%w: ensemble needs at least one classifier", types.ErrClassifierCount)
	}
	names := make([]string, len(classifiers))
	classIndex := types.NewClassIndex()
	for i, c := range classifiers {
		names[i] = c.Name()
		for _, label := range c.ClassIndex().Labels() {
			classIndex.Add(label)
		}
	}
	e := &Ensemble{
		name:        strings.Join(names, "+"),
		classifiers: classifiers,
		mode:        mode,
		background:  classifiers[0].Background(),
		classIndex:  classIndex,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Loader builds the base classifier a configuration names.
type Loader interface {
	Load(spec types.ClassifierSpec, cfg types.Configuration) (Classifier, error)
}

func NewEnsembleFromConfig(cfg types.Configuration, loader Loader, opts ...EnsembleOption) (*Ensemble, error) {
	specs, err := cfg.Classifiers()
	if err != nil {
		return nil, fmt.Errorf("configuration %q: %w", cfg.Name, err)
	}
	classifiers := make([]Classifier, len(specs))
	for i, spec := range specs {
		if classifiers[i], err = loader.Load(spec, cfg); err != nil {
			return nil, fmt.Errorf("configuration %q: loading %s model %s: %w", cfg.Name, spec.Kind, spec.Path, err)
		}
	}
	background := cfg.Background
	if background == "" {
		background = types.DefaultBackground
	}
	opts = append([]EnsembleOption{WithName(cfg.Name), WithMergedBackground(background)}, opts...)
	if cfg.Scoring == types.ScoringCuts {
		opts = append(opts, WithCutScoring())
	}
	return NewEnsemble(classifiers, cfg.CombinationMode, opts...)
}

func (e *Ensemble) Name() string {
	return e.name
}

func (e *Ensemble) Background() string {
	return e.background
}

// ClassIndex is the union of the base classifiers' labels in priority order.
func (e *Ensemble) ClassIndex() *types.ClassIndex {
	return e.classIndex
}

func (e *Ensemble) Mode() types.CombinationMode {
	return e.mode
}

func (e *Ensemble) Classifiers() []Classifier {
	return e.classifiers
}

func (e *Ensemble) Classify(doc *types.Document) (*types.Document, error) {
	return e.classify(doc, func(c Classifier, d *types.Document) (*types.Document, error) {
		return c.Classify(d)
	})
}

func (e *Ensemble) ClassifyWithGlobalInformation(doc *types.Document, docContext, sentenceContext GlobalInformation) (*types.Document, error) {
	return e.classify(doc, func(c Classifier, d *types.Document) (*types.Document, error) {
		return c.ClassifyWithGlobalInformation(d, docContext, sentenceContext)
	})
}

func (e *Ensemble) classify(doc *types.Document, run func(Classifier, *types.Document) (*types.Document, error)) (*types.Document, error) {
	sequences := make([]ensemble.LabelSequence, len(e.classifiers))
	for i, c := range e.classifiers {
		labelled, err := run(c, doc.Clone())
		if err != nil {
			return nil, err
		}
		sequences[i] = ensemble.LabelSequence{
			Labels:     labelled.Labels(types.SlotAnswer),
			Background: c.Background(),
			Alphabet:   c.ClassIndex().Labels(),
		}
	}
	merged, err := ensemble.Merge(sequences, e.mode, e.background)
	if err != nil {
		return nil, err
	}
	if err := doc.SetLabels(types.SlotAnswer, merged); err != nil {
		return nil, err
	}
	return doc, nil
}

// ClassifyAndCount classifies docs on threads workers, writing each in input order, and returns
// the entity counts of documents with gold labels.
func (e *Ensemble) ClassifyAndCount(ctx context.Context, docs <-chan *types.Document, write runner.WriteFunc, threads int) (*scoring.Counts, runner.Stats, error) {
	scorer := scoring.NewScorer(e.background)
	if e.cutScoring {
		scorer = scoring.NewCutScorer()
	}
	opts := []runner.Option{runner.WithScorer(scorer)}
	if e.nerLogger != nil {
		opts = append(opts, runner.WithLogger(e.nerLogger))
	}
	classify := func(_ context.Context, doc *types.Document) (*types.Document, error) {
		return e.Classify(doc)
	}
	stats, err := runner.New(threads, opts...).Run(ctx, docs, classify, write)
	if err != nil {
		return nil, stats, err
	}
	return scorer.Counts(), stats, nil
}

// ClassifyAndScore is ClassifyAndCount reduced to micro-averaged scores, returned only when
// outputScores is set.
func (e *Ensemble) ClassifyAndScore(ctx context.Context, docs <-chan *types.Document, write runner.WriteFunc, outputScores bool, threads int) (*scoring.Scores, runner.Stats, error) {
	counts, stats, err := e.ClassifyAndCount(ctx, docs, write, threads)
	if err != nil || !outputScores {
		return nil, stats, err
	}
	scores := counts.Micro()
	return &scores, stats, nil
}

// KBest delegates to the highest priority classifier.
func (e *Ensemble) KBest(doc *types.Document, k int) ([]ScoredDocument, error) {
	main, ok := e.classifiers[0].(KBestClassifier)
	if !ok {
		return nil, fmt.Errorf("%w: k-best from %s", ErrUnsupported, e.classifiers[0].Name())
	}
	return main.KBest(doc, k)
}

// SearchGraph delegates to the highest priority classifier.
func (e *Ensemble) SearchGraph(doc *types.Document) (*sequence.Lattice, error) {
	main, ok := e.classifiers[0].(SearchGraphClassifier)
	if !ok {
		return nil, fmt.Errorf("%w: search graph from %s", ErrUnsupported, e.classifiers[0].Name())
	}
	return main.SearchGraph(doc)
}
