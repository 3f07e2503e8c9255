// Package features turns document tokens into the observations the sequence backends score.
package features

import (
	"fmt"
	"strings"
	"unicode"

	"text2phenotype.com/ner/ml"
	"text2phenotype.com/ner/types"
)

const (
	sentenceBegin = "*SB*"
	sentenceEnd   = "*SE*"
)

type Extractor interface {
	Extract(doc *types.Document) [][]ml.Feature
}

// WindowExtractor describes each token by its own text and shape, and by the words
// up to Window positions away on either side.
type WindowExtractor struct {
	Window      int
	AffixLength int
}

func NewWindowExtractor() *WindowExtractor {
	return &WindowExtractor{Window: 2, AffixLength: 3}
}

func (e *WindowExtractor) Extract(doc *types.Document) [][]ml.Feature {
	result := make([][]ml.Feature, doc.Len())
	for i, token := range doc.Tokens {
		result[i] = e.tokenFeatures(doc.Tokens, i, token)
	}
	return result
}

func (e *WindowExtractor) tokenFeatures(tokens []*types.Token, i int, token *types.Token) []ml.Feature {
	lower := strings.ToLower(token.Text)
	feats := []ml.Feature{
		&ml.BoolFeature{Name: "bias", Value: true},
		&ml.StrFeature{Name: "w", Value: lower},
		&ml.StrFeature{Name: "shape", Value: CollapseShape(token.Shape)},
	}

	runes := []rune(lower)
	for l := 1; l <= e.AffixLength && l <= len(runes); l++ {
		feats = append(feats,
			&ml.StrFeature{Name: fmt.Sprintf("pre%d", l), Value: string(runes[:l])},
			&ml.StrFeature{Name: fmt.Sprintf("suf%d", l), Value: string(runes[len(runes)-l:])},
		)
	}

	if first := []rune(token.Text); len(first) > 0 && unicode.IsUpper(first[0]) {
		feats = append(feats, &ml.BoolFeature{Name: "cap", Value: true})
	}
	if strings.ContainsRune(token.Shape, 'd') {
		feats = append(feats, &ml.BoolFeature{Name: "digit", Value: true})
	}
	if strings.ContainsRune(token.Text, '-') {
		feats = append(feats, &ml.BoolFeature{Name: "hyphen", Value: true})
	}
	if i == 0 {
		feats = append(feats, &ml.BoolFeature{Name: "bos", Value: true})
	}
	if i == len(tokens)-1 {
		feats = append(feats, &ml.BoolFeature{Name: "eos", Value: true})
	}

	for off := -e.Window; off <= e.Window; off++ {
		if off == 0 {
			continue
		}
		feats = append(feats, &ml.StrFeature{Name: fmt.Sprintf("w[%d]", off), Value: neighbour(tokens, i+off)})
	}
	return feats
}

func neighbour(tokens []*types.Token, idx int) string {
	switch {
	case idx < 0:
		return sentenceBegin
	case idx >= len(tokens):
		return sentenceEnd
	default:
		return strings.ToLower(tokens[idx].Text)
	}
}

// CollapseShape squeezes runs of one shape character: "Xxxxx-dd" becomes "Xx-d".
func CollapseShape(shape string) string {
	var sb strings.Builder
	var last rune
	for i, r := range shape {
		if i > 0 && r == last {
			continue
		}
		sb.WriteRune(r)
		last = r
	}
	return sb.String()
}
