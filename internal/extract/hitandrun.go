package extract

import (
	"regexp"

	"github.com/lnkbike/crashes/internal/normalize"
)

var hitAndRunLabels = newLabelSet(
	[]string{"HIT AND RUN", "HIT & RUN", "HIT/RUN"},
	[]string{"H&R", "H & R", "HIT RUN"},
)

var (
	yesPattern = regexp.MustCompile(`(?i)^(?:y|yes|x|true)\b`)
	noPattern  = regexp.MustCompile(`(?i)^(?:n|no|none|false)\b`)

	leftScenePattern = regexp.MustCompile(`(?i)\bhit[\s-]*(?:and|&|n)[\s-]*run\b|\b(?:left|fled|leaving|fleeing)\s+the\s+scene\b|\bfailed\s+to\s+(?:stop|remain)\b`)
	negationPattern  = regexp.MustCompile(`(?i)\b(?:not|no|never|without)\b(?:\s+\w+){0,2}\s*$`)
)

// ParseHitAndRun reports whether a party left the scene. A labelled yes/no
// box wins; otherwise narrative wording ("fled the scene", "hit and run")
// counts as a positional yes unless it is negated.
func ParseHitAndRun(lines []normalize.Line) []Candidate[bool] {
	var out []Candidate[bool]
	labelled := make(map[int]bool)
	for _, h := range hitAndRunLabels.find(lines) {
		labelled[h.Line] = true
		var v bool
		switch {
		case yesPattern.MatchString(h.Value):
			v = true
		case noPattern.MatchString(h.Value):
			v = false
		default:
			continue
		}
		out = append(out, Candidate[bool]{Value: v, Confidence: h.Confidence, Line: h.Line, Offset: h.Offset})
	}
	if len(out) > 0 {
		return out
	}

	for i, line := range lines {
		if labelled[i] {
			continue
		}
		for _, loc := range leftScenePattern.FindAllStringIndex(line.Text, -1) {
			if negationPattern.MatchString(line.Text[:loc[0]]) {
				continue
			}
			out = append(out, Candidate[bool]{Value: true, Confidence: ConfidencePositional, Line: i, Offset: loc[0]})
			break
		}
	}
	return out
}
