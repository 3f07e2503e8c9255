package ml

import (
	"strings"
)

// Feature is an observation about one token. Models match features by their String form.
type Feature interface {
	String() string
}

// IntFeature fires by name; Value is kept for feature dumps.
type IntFeature struct {
	Name  string
	Value int
}

func (f *IntFeature) String() string {
	return f.Name
}

type StrFeature struct {
	Name  string
	Value string
}

func (f *StrFeature) String() string {
	parts := []string{f.Name, f.Value}
	return strings.Join(parts, "_")
}

// BoolFeature is present only when true.
type BoolFeature struct {
	Name  string
	Value bool
}

func (f *BoolFeature) String() string {
	return f.Name
}

// Names returns the String form of every feature.
func Names(features []Feature) []string {
	names := make([]string, len(features))
	for i, f := range features {
		names[i] = f.String()
	}
	return names
}
