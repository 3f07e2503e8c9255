package types

// Span is a half-open character range [Begin, End) in the source text.
type Span struct {
	Begin int32 `json:"begin"`
	End   int32 `json:"end"`
}
