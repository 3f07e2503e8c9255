package pipeline

import (
	"fmt"
	"strings"
)

// Format says how the request text is split into documents.
type Format string

const (
	// FormatText treats every non-blank line as one document of whitespace separated tokens.
	FormatText Format = "text"
	// FormatColumns is the column corpus format, one token per line with gold labels optional.
	FormatColumns Format = "columns"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatColumns:
		return FormatColumns, nil
	}
	return "", fmt.Errorf("unknown request format %q", s)
}

type Request struct {
	Text   string `json:"text"`
	Tid    string `json:"tid"`
	Format Format `json:"format,omitempty"`
}
