package types

import (
	"errors"
	"fmt"
	"strings"
)

var ErrLengthMismatch = errors.New("label sequence length does not match document length")

// Document is a fixed-length token sequence. Nothing in this module adds or removes tokens.
type Document struct {
	ID     string   `json:"id"`
	Tokens []*Token `json:"tokens"`
}

func NewDocument(id string, words []string) *Document {
	doc := &Document{ID: id, Tokens: make([]*Token, len(words))}
	var offset int32
	for i, w := range words {
		token := NewToken(w, i)
		token.Begin = offset
		token.End = offset + int32(len([]rune(w)))
		offset = token.End + 1
		doc.Tokens[i] = token
	}
	return doc
}

func (doc *Document) Len() int {
	return len(doc.Tokens)
}

func (doc *Document) Words() []string {
	words := make([]string, len(doc.Tokens))
	for i, token := range doc.Tokens {
		words[i] = token.Text
	}
	return words
}

func (doc *Document) Labels(slot Slot) []string {
	labels := make([]string, len(doc.Tokens))
	for i, token := range doc.Tokens {
		labels[i] = token.Get(slot)
	}
	return labels
}

func (doc *Document) SetLabels(slot Slot, labels []string) error {
	if len(labels) != len(doc.Tokens) {
		return fmt.Errorf("%w: %d labels for %d tokens", ErrLengthMismatch, len(labels), len(doc.Tokens))
	}
	for i, token := range doc.Tokens {
		token.Set(slot, labels[i])
	}
	return nil
}

// HasGold reports whether every token carries a gold label.
func (doc *Document) HasGold() bool {
	for _, token := range doc.Tokens {
		if token.GoldAnswer == "" {
			return false
		}
	}
	return len(doc.Tokens) > 0
}

func (doc *Document) Clone() *Document {
	clone := &Document{ID: doc.ID, Tokens: make([]*Token, len(doc.Tokens))}
	for i, token := range doc.Tokens {
		clone.Tokens[i] = token.Clone()
	}
	return clone
}

// Preview returns the first n words, used to identify a document in logs.
func (doc *Document) Preview(n int) string {
	if n > len(doc.Tokens) {
		n = len(doc.Tokens)
	}
	words := make([]string, n)
	for i := 0; i < n; i++ {
		words[i] = doc.Tokens[i].Text
	}
	preview := strings.Join(words, " ")
	if n < len(doc.Tokens) {
		preview += " ..."
	}
	return preview
}
