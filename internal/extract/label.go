package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/lnkbike/crashes/internal/normalize"
)

// label is one spelling of a form field label
type label struct {
	text    string
	pattern *regexp.Regexp
	compact string // Upper-case letters and digits only
	needSep bool   // Single words must be followed by a separator to count as a label
}

// labelSet holds the exact and fuzzy spellings of one field's label
type labelSet struct {
	exact []label
	fuzzy []label
}

// hit is a labelled value found in the document
type hit struct {
	Value      string
	Confidence Confidence
	Line       int
	Offset     int
}

// registry collects every label of every field; a value stops where the
// next label begins
var registry []label

var (
	separatorPattern = regexp.MustCompile(`^\s*([:#=]|-{1,2}|\.(?:\s|$))?\s*`)
	strictSepPattern = regexp.MustCompile(`^\s*[:#]`)
)

func newLabelSet(exact, fuzzy []string) *labelSet {
	s := &labelSet{}
	for _, text := range exact {
		s.exact = append(s.exact, compileLabel(text))
	}
	for _, text := range fuzzy {
		s.fuzzy = append(s.fuzzy, compileLabel(text))
	}
	registry = append(registry, s.exact...)
	registry = append(registry, s.fuzzy...)
	return s
}

func compileLabel(text string) label {
	words := strings.Fields(text)
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	body := strings.Join(quoted, `[\s.]*`)
	if isWordByte(text[0]) {
		body = `\b` + body
	}
	if isWordByte(text[len(text)-1]) {
		body += `\b`
	}
	return label{
		text:    text,
		pattern: regexp.MustCompile(`(?i)` + body),
		compact: compact(text),
		needSep: len(words) == 1,
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func compact(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToUpper(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// find returns every labelled occurrence of the field, in document order
func (s *labelSet) find(lines []normalize.Line) []hit {
	var hits []hit
	for i, line := range lines {
		found := false
		for _, group := range []struct {
			labels     []label
			confidence Confidence
		}{
			{s.exact, ConfidenceExact},
			{s.fuzzy, ConfidenceFuzzy},
		} {
			for _, l := range group.labels {
				for _, loc := range l.pattern.FindAllStringIndex(line.Text, -1) {
					h, ok := labelValue(lines, i, loc, l.needSep, group.confidence)
					if ok {
						hits = append(hits, h)
						found = true
					}
				}
			}
		}
		if !found {
			if h, ok := s.damagedLabel(lines, i); ok {
				hits = append(hits, h)
			}
		}
	}
	return dedupeHits(hits)
}

// labelValue reads the value that follows a label match. A label with
// nothing after it takes the next line as a positional value.
func labelValue(lines []normalize.Line, idx int, loc []int, needSep bool, confidence Confidence) (hit, bool) {
	text := lines[idx].Text
	rest := text[loc[1]:]
	sep := separatorPattern.FindStringSubmatch(rest)
	hasSep := sep != nil && sep[1] != ""
	if !hasSep && (needSep || loc[0] != 0) {
		return hit{}, false
	}

	start := loc[1]
	if sep != nil {
		start += len(sep[0])
	}
	value := cutAtNextLabel(text[start:])
	if value != "" {
		return hit{Value: value, Confidence: confidence, Line: idx, Offset: start}, true
	}

	if idx+1 < len(lines) && !startsWithLabel(lines[idx+1].Text) {
		value = cutAtNextLabel(lines[idx+1].Text)
		if value != "" {
			return hit{Value: value, Confidence: ConfidencePositional, Line: idx + 1}, true
		}
	}
	return hit{}, false
}

// labelPrefix returns the text in front of a hit's value: its label and
// whatever precedes the label on that line. A value read from the line
// below its label gets the whole label line.
func labelPrefix(lines []normalize.Line, h hit) string {
	line, end := h.Line, h.Offset
	if end == 0 && line > 0 {
		line--
		end = len(lines[line].Text)
	}
	if end > len(lines[line].Text) {
		end = len(lines[line].Text)
	}
	return lines[line].Text[:end]
}

// colonLabelled reports whether the label of h ends in ':' or '#', which
// sets real form labels apart from the same words inside a sentence
func colonLabelled(lines []normalize.Line, h hit) bool {
	prefix := strings.TrimSpace(labelPrefix(lines, h))
	return strings.HasSuffix(prefix, ":") || strings.HasSuffix(prefix, "#")
}

// damagedLabel matches "LOCATI0N:" or "LOC ATION:" style OCR damage in the
// text before a colon against the exact spellings
func (s *labelSet) damagedLabel(lines []normalize.Line, idx int) (hit, bool) {
	text := lines[idx].Text
	colon := strings.IndexByte(text, ':')
	if colon <= 0 || colon > 40 {
		return hit{}, false
	}
	prefix := compact(text[:colon])
	if len(prefix) < 4 {
		return hit{}, false
	}
	for _, l := range s.exact {
		if len(l.compact) < 4 {
			continue
		}
		dist := levenshtein.ComputeDistance(prefix, l.compact)
		if dist == 0 || (dist == 1 && len(l.compact) >= 5) || (dist == 2 && len(l.compact) >= 10) {
			return labelValue(lines, idx, []int{0, colon}, false, ConfidenceFuzzy)
		}
	}
	return hit{}, false
}

// cutAtNextLabel trims s at the first following "Label:" of any field
func cutAtNextLabel(s string) string {
	end := len(s)
	for _, l := range registry {
		for _, loc := range l.pattern.FindAllStringIndex(s, -1) {
			if loc[0] >= end {
				break
			}
			if strictSepPattern.MatchString(s[loc[1]:]) {
				end = loc[0]
				break
			}
		}
	}
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s[:end]), ",;"))
}

// startsWithLabel reports whether a line opens with "Label:" of any field
func startsWithLabel(s string) bool {
	for _, l := range registry {
		loc := l.pattern.FindStringIndex(s)
		if loc != nil && loc[0] == 0 && strictSepPattern.MatchString(s[loc[1]:]) {
			return true
		}
	}
	return false
}

// dedupeHits drops repeated hits for the same spot; overlapping spellings
// ("DATE" inside "DATE OF ACCIDENT") keep the most confident one
func dedupeHits(hits []hit) []hit {
	type key struct{ line, offset int }
	best := make(map[key]int)
	var out []hit
	for _, h := range hits {
		k := key{h.Line, h.Offset}
		if i, ok := best[k]; ok {
			if h.Confidence > out[i].Confidence {
				out[i] = h
			}
			continue
		}
		best[k] = len(out)
		out = append(out, h)
	}
	return out
}
