package classifier

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"text2phenotype.com/ner/features"
	"text2phenotype.com/ner/maxent"
	"text2phenotype.com/ner/ml"
	"text2phenotype.com/ner/types"
)

// FileLoader reads model files relative to a model directory. Each file is read once and
// shared by every configuration that names it.
type FileLoader struct {
	modelDir string

	mu      sync.Mutex
	crfs    map[string]*ml.CRF
	maxents map[string]*maxent.Model
	dicts   map[string]maxent.TagDictionary
}

func NewFileLoader(modelDir string) *FileLoader {
	return &FileLoader{
		modelDir: modelDir,
		crfs:     make(map[string]*ml.CRF),
		maxents:  make(map[string]*maxent.Model),
		dicts:    make(map[string]maxent.TagDictionary),
	}
}

func (l *FileLoader) resolve(p string) string {
	if filepath.IsAbs(p) || l.modelDir == "" {
		return p
	}
	return filepath.Join(l.modelDir, p)
}

func (l *FileLoader) Load(spec types.ClassifierSpec, cfg types.Configuration) (Classifier, error) {
	factory, err := l.factory(spec, cfg)
	if err != nil {
		return nil, err
	}
	opts := []SequenceOption{WithBackground(cfg.Background)}
	if cfg.Search == types.SearchBeam {
		opts = append(opts, WithBeamSearch(cfg.BeamSize))
	}
	name := strings.TrimSuffix(filepath.Base(spec.Path), filepath.Ext(spec.Path))
	return NewSequenceClassifier(name, factory, opts...), nil
}

func (l *FileLoader) factory(spec types.ClassifierSpec, cfg types.Configuration) (ModelFactory, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	modelPath := l.resolve(spec.Path)
	switch spec.Kind {
	case types.ModelKindCRF:
		crf, ok := l.crfs[modelPath]
		if !ok {
			var err error
			if crf, err = ml.LoadCRFFromFile(modelPath); err != nil {
				return nil, err
			}
			l.crfs[modelPath] = crf
		}
		return NewCRFFactory(crf, features.NewWindowExtractor()), nil

	case types.ModelKindMaxEnt:
		model, ok := l.maxents[modelPath]
		if !ok {
			var err error
			if model, err = maxent.LoadModelFromFile(modelPath); err != nil {
				return nil, err
			}
			l.maxents[modelPath] = model
		}
		var dict maxent.TagDictionary
		if cfg.TagDictionary != "" {
			dictPath := l.resolve(cfg.TagDictionary)
			if dict, ok = l.dicts[dictPath]; !ok {
				var err error
				if dict, err = maxent.LoadTagDictionary(dictPath); err != nil {
					return nil, err
				}
				l.dicts[dictPath] = dict
			}
		}
		return NewMaxEntFactory(maxent.NewTagger(model, dict)), nil
	}
	return nil, fmt.Errorf("%w: unknown model kind %q", ErrUnsupported, spec.Kind)
}
