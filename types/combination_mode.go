package types

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownCombinationMode = errors.New("unknown combination mode")

// CombinationMode controls whether lower-priority classifiers may reuse labels of higher-priority ones.
type CombinationMode int

const (
	// CombinationNormal lets a label come from one classifier only: the first that claims it.
	CombinationNormal CombinationMode = iota
	// CombinationHighRecall lets any classifier contribute any label, subject to span conflicts.
	CombinationHighRecall
)

const DefaultCombinationMode = CombinationNormal

func (mode CombinationMode) String() string {
	switch mode {
	case CombinationNormal:
		return "NORMAL"
	case CombinationHighRecall:
		return "HIGH_RECALL"
	default:
		return fmt.Sprintf("CombinationMode(%d)", int(mode))
	}
}

// ParseCombinationMode accepts NORMAL and HIGH_RECALL in any case. An empty string is NORMAL.
func ParseCombinationMode(s string) (CombinationMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return DefaultCombinationMode, nil
	case "NORMAL":
		return CombinationNormal, nil
	case "HIGH_RECALL":
		return CombinationHighRecall, nil
	}
	return DefaultCombinationMode, fmt.Errorf("%w: %q", ErrUnknownCombinationMode, s)
}

func (mode CombinationMode) MarshalText() ([]byte, error) {
	return []byte(mode.String()), nil
}

func (mode *CombinationMode) UnmarshalText(text []byte) error {
	parsed, err := ParseCombinationMode(string(text))
	if err != nil {
		return err
	}
	*mode = parsed
	return nil
}
