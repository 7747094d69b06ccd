package extract

import (
	"regexp"
	"strings"

	"github.com/lnkbike/crashes/internal/normalize"
)

var narrativeLabels = newLabelSet(
	[]string{
		"NARRATIVE", "OFFICER'S NARRATIVE", "OFFICERS NARRATIVE", "DESCRIPTION OF ACCIDENT",
		"ACCIDENT DESCRIPTION", "DESCRIPTION OF CRASH", "DESCRIBE WHAT HAPPENED",
	},
	[]string{"NARR", "DESCRIPTION", "SYNOPSIS", "REMARKS", "DETAILS"},
)

// Form sections that close a narrative block
var narrativeStopPattern = regexp.MustCompile(`(?i)^(?:reporting\s+officer|investigating\s+officer|officer(?:'s)?\s+(?:name|signature|id|no\.?|number)|badge|signature|approved\s+by|reviewed\s+by|diagram|witness(?:es)?\s*:|supplement(?:al)?\s+report\s*:)`)

// ParseNarrative extracts the officer narrative. Labelled sections run until
// the next form label and are joined in document order; without any label
// the whole document text stands in as a positional narrative.
func ParseNarrative(lines []normalize.Line) []Candidate[string] {
	hits := narrativeLabels.find(lines)
	if len(hits) == 0 {
		text := joinRange(lines, 0, len(lines))
		if text == "" {
			return nil
		}
		return []Candidate[string]{{Value: text, Confidence: ConfidencePositional}}
	}

	var sections []string
	confidence := ConfidenceNone
	first := hits[0]
	for i, h := range hits {
		if i > 0 && h.Line == hits[i-1].Line {
			continue
		}
		end := len(lines)
		for j := h.Line + 1; j < len(lines); j++ {
			if startsWithLabel(lines[j].Text) || narrativeStopPattern.MatchString(lines[j].Text) {
				end = j
				break
			}
		}
		if i+1 < len(hits) && hits[i+1].Line < end {
			end = hits[i+1].Line
		}

		var section string
		if h.Confidence == ConfidencePositional {
			// Label stood alone; the section starts on the following line
			section = joinRange(lines, h.Line, end)
		} else {
			section = strings.TrimSpace(h.Value + " " + joinRange(lines, h.Line+1, end))
		}
		if section == "" {
			continue
		}
		sections = append(sections, section)
		if h.Confidence > confidence {
			confidence = h.Confidence
		}
	}

	if len(sections) == 0 {
		return nil
	}
	return []Candidate[string]{{Value: strings.Join(sections, " "), Confidence: confidence, Line: first.Line, Offset: first.Offset}}
}

func joinRange(lines []normalize.Line, from, to int) string {
	if from >= to {
		return ""
	}
	parts := make([]string, 0, to-from)
	for _, l := range lines[from:to] {
		parts = append(parts, l.Text)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
