package types

import (
	"strings"
	"unicode"
)

// Slot names one annotation field of a token.
type Slot int

const (
	SlotAnswer Slot = iota
	SlotGoldAnswer
	SlotEntityTag
	SlotNormalizedValue
)

func (s Slot) String() string {
	switch s {
	case SlotAnswer:
		return "answer"
	case SlotGoldAnswer:
		return "gold_answer"
	case SlotEntityTag:
		return "entity_tag"
	case SlotNormalizedValue:
		return "normalized_value"
	default:
		return "unknown"
	}
}

// Annotations are the label fields written by classifiers and read by scorers.
// Extra is a side-table for collaborators that need arbitrary keys.
type Annotations struct {
	Answer          string            `json:"answer,omitempty"`
	GoldAnswer      string            `json:"gold_answer,omitempty"`
	EntityTag       string            `json:"entity_tag,omitempty"`
	NormalizedValue string            `json:"normalized_value,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
}

type Token struct {
	Span
	Annotations
	Text  string `json:"text"`
	Index int    `json:"index"`
	Shape string `json:"shape,omitempty"`
}

func NewToken(text string, index int) *Token {
	return &Token{
		Text:  text,
		Index: index,
		Shape: GetShape(text),
	}
}

func (token *Token) Get(slot Slot) string {
	switch slot {
	case SlotAnswer:
		return token.Answer
	case SlotGoldAnswer:
		return token.GoldAnswer
	case SlotEntityTag:
		return token.EntityTag
	case SlotNormalizedValue:
		return token.NormalizedValue
	}
	return ""
}

func (token *Token) Set(slot Slot, value string) {
	switch slot {
	case SlotAnswer:
		token.Answer = value
	case SlotGoldAnswer:
		token.GoldAnswer = value
	case SlotEntityTag:
		token.EntityTag = value
	case SlotNormalizedValue:
		token.NormalizedValue = value
	}
}

func (token *Token) Clone() *Token {
	clone := *token
	if token.Extra != nil {
		clone.Extra = make(map[string]string, len(token.Extra))
		for k, v := range token.Extra {
			clone.Extra[k] = v
		}
	}
	return &clone
}

// GetShapedText restores upper case from the shape, so lowercased input keeps its casing cue.
func (token *Token) GetShapedText() string {
	var sb strings.Builder
	runes := []rune(token.Text)
	if len(runes) > len(token.Shape) {
		return token.Text
	}
	for i, ch := range runes {
		if token.Shape[i] == 'X' {
			sb.WriteRune(unicode.ToUpper(ch))
		} else {
			sb.WriteRune(ch)
		}
	}
	return sb.String()
}

func GetShape(txt string) string {
	var sb strings.Builder
	for _, r := range txt {
		switch {
		case unicode.IsDigit(r):
			sb.WriteRune('d')
		case unicode.IsUpper(r):
			sb.WriteRune('X')
		default:
			sb.WriteRune('x')
		}
	}

	return sb.String()
}
