// Package extract holds the field parsers that pull structured values out of
// normalized crash report lines.
package extract

import "sort"

// Confidence ranks how a candidate value was found
type Confidence int

const (
	ConfidenceNone       Confidence = iota // Not found
	ConfidencePositional                   // Inferred from position or context, no label
	ConfidenceFuzzy                        // Abbreviated, misspelled or OCR-damaged label
	ConfidenceExact                        // Exact label match
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceExact:
		return "exact"
	case ConfidenceFuzzy:
		return "fuzzy"
	case ConfidencePositional:
		return "positional"
	default:
		return "none"
	}
}

// Candidate is one possible value for a field
type Candidate[T comparable] struct {
	Value       T
	Confidence  Confidence
	Line        int // Index into the normalized lines
	Offset      int // Byte offset of the value within the line
	Specificity int // Higher wins between equally confident candidates
}

// Best picks the winning candidate: highest confidence, then highest
// specificity, then earliest in the document. Positional candidates that
// disagree with each other are ambiguous and yield nothing.
func Best[T comparable](cands []Candidate[T]) (Candidate[T], bool) {
	if len(cands) == 0 {
		return Candidate[T]{}, false
	}

	sorted := append([]Candidate[T](nil), cands...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Specificity != b.Specificity {
			return a.Specificity > b.Specificity
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Offset < b.Offset
	})

	top := sorted[0]
	if top.Confidence <= ConfidenceNone {
		return Candidate[T]{}, false
	}
	if top.Confidence == ConfidencePositional {
		for _, c := range sorted[1:] {
			if c.Confidence == top.Confidence && c.Specificity == top.Specificity && c.Value != top.Value {
				return Candidate[T]{}, false
			}
		}
	}
	return top, true
}
