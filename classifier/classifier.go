// Package classifier exposes trained sequence models and ensembles of them as document labellers.
package classifier

import (
	"errors"

	"text2phenotype.com/ner/sequence"
	"text2phenotype.com/ner/types"
)

var ErrUnsupported = errors.New("operation not supported by classifier")

// GlobalInformation is document or sentence level context handed through to classifiers
// that can use it, such as a document date for normalizers.
type GlobalInformation map[string]string

// Classifier writes predicted labels into the answer slot of a document's tokens.
type Classifier interface {
	Name() string
	Background() string
	ClassIndex() *types.ClassIndex
	Classify(doc *types.Document) (*types.Document, error)
	ClassifyWithGlobalInformation(doc *types.Document, docContext, sentenceContext GlobalInformation) (*types.Document, error)
}

// ScoredDocument is one labelling of a document with its model score.
type ScoredDocument struct {
	Document *types.Document `json:"document"`
	Score    float64         `json:"score"`
}

type KBestClassifier interface {
	KBest(doc *types.Document, k int) ([]ScoredDocument, error)
}

type SearchGraphClassifier interface {
	SearchGraph(doc *types.Document) (*sequence.Lattice, error)
}
