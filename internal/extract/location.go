package extract

import (
	"regexp"
	"strings"

	"github.com/lnkbike/crashes/internal/normalize"
)

var locationLabels = newLabelSet(
	[]string{
		"LOCATION OF ACCIDENT", "ACCIDENT LOCATION", "LOCATION OF CRASH", "CRASH LOCATION",
		"LOCATION", "ROAD ON WHICH ACCIDENT OCCURRED", "PLACE OF OCCURRENCE",
	},
	[]string{"LOC", "LOCN", "LOCATN", "ACC LOC", "PLACE", "INTERSECTION OF", "ADDRESS OF OCCURRENCE"},
)

// Abbreviations that end a street name; a period after them closes the location
var streetSuffixes = map[string]bool{
	"ST": true, "AVE": true, "AV": true, "RD": true, "DR": true, "LN": true, "CT": true,
	"PL": true, "HWY": true, "BLVD": true, "PKWY": true, "CIR": true, "TER": true, "WAY": true,
}

var (
	sentenceEndPattern  = regexp.MustCompile(`([A-Za-z0-9']+)\.(?:\s+|$)`)
	trailingCityPattern = regexp.MustCompile(`(?i)[\s,]*(?:\bin\s+)?\blincoln\b(?:[\s,]*(?:ne|nebraska)\b)?[\s,.]*$`)
	trailingJunkPattern = regexp.MustCompile(`(?i)[\s,;:.\-]*(?:\blancaster\s+county\b)?[\s,;:.\-]*$`)
)

const maxLocationLength = 120

// ParseLocation extracts the free-text crash location. Values stop at the
// end of the first sentence and lose trailing city boilerplate.
func ParseLocation(lines []normalize.Line) []Candidate[string] {
	var out []Candidate[string]
	for _, h := range locationLabels.find(lines) {
		value := cleanLocation(h.Value)
		if value == "" {
			continue
		}
		out = append(out, Candidate[string]{Value: value, Confidence: h.Confidence, Line: h.Line, Offset: h.Offset})
	}
	return out
}

func cleanLocation(s string) string {
	s = cutSentence(s)
	s = trailingCityPattern.ReplaceAllString(s, "")
	s = trailingJunkPattern.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if len(s) > maxLocationLength {
		s = strings.TrimSpace(s[:maxLocationLength])
	}
	if countASCIILetters(s)+countDigits(s) < 2 {
		return ""
	}
	return s
}

// cutSentence stops the location at a sentence-ending period. Periods after
// directional initials ("S. 27TH") do not end the sentence; periods after
// street suffixes ("VINE ST.") do, keeping the suffix.
func cutSentence(s string) string {
	for _, m := range sentenceEndPattern.FindAllStringSubmatchIndex(s, -1) {
		token := strings.ToUpper(s[m[2]:m[3]])
		switch {
		case streetSuffixes[token]:
			return s[:m[3]]
		case len(token) >= 3 || isDigits(token):
			return s[:m[3]]
		}
	}
	return s
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func countASCIILetters(s string) int {
	n := 0
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			n++
		}
	}
	return n
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
