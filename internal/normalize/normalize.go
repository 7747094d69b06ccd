// Package normalize turns the raw text of a crash report into a clean,
// ordered sequence of lines for the field parsers.
package normalize

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/unicode/norm"
)

// ErrNoText is returned when a document has no extractable text
// (empty, image-only, or nothing but control/garbage characters).
var ErrNoText = errors.New("no extractable text")

// Line is one normalized line of a document
type Line struct {
	Page int    // 1-based page number
	Text string // Single-spaced, trimmed, never empty
}

// Normalizer cleans raw page text
type Normalizer struct {
	EdgeLines      int     // Lines at the top and bottom of each page checked for repeated boilerplate
	RepeatFraction float64 // Fraction of pages a line must repeat on to count as boilerplate
	MaxDistance    float64 // Normalized edit distance under which two edge lines are the same
	MinLetters     int     // Fewer letters than this means the document has no usable text
}

// New returns a Normalizer with the default thresholds
func New() *Normalizer {
	return &Normalizer{
		EdgeLines:      2,
		RepeatFraction: 0.6,
		MaxDistance:    0.3,
		MinLetters:     3,
	}
}

var (
	// Standalone page markers: "Page 2", "Page 2 of 4", "- 3 -", "2/4"
	pageMarkerPattern = regexp.MustCompile(`(?i)^(?:page\s*\d+(?:\s*of\s*\d+)?|-?\s*\d{1,3}\s*-?|\d{1,3}\s*/\s*\d{1,3})$`)
	continuedPattern  = regexp.MustCompile(`(?i)^\(?(?:continued|cont'?d)(?:\s+(?:on|from)\s+(?:next|previous|page).*)?\)?$`)

	comparePagePattern = regexp.MustCompile(`(?i)(page\s*)?\d+(\s*of\s*\d+)?`)
	compareDatePattern = regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`)
)

// Normalize cleans the given pages and returns the surviving lines in
// document order. Pages are the document's text split at page breaks.
// ErrNoText is returned when too few letters survive.
func (n *Normalizer) Normalize(pages []string) ([]Line, error) {
	cleaned := make([][]string, 0, len(pages))
	for _, page := range pages {
		cleaned = append(cleaned, cleanPage(page))
	}

	boilerplate := n.repeatedEdges(cleaned)

	var lines []Line
	letters := 0
	for i, page := range cleaned {
		for j, text := range page {
			if pageMarkerPattern.MatchString(text) || continuedPattern.MatchString(text) {
				continue
			}
			// Repeated headers and footers are kept on page one only
			if i > 0 && n.isEdge(j, len(page)) && n.matchesAny(text, boilerplate) {
				continue
			}
			letters += countLetters(text)
			lines = append(lines, Line{Page: i + 1, Text: text})
		}
	}

	// The surviving lines are still returned so the caller can keep them
	if letters < n.MinLetters {
		return lines, ErrNoText
	}
	return lines, nil
}

// Normalize cleans pages with the default Normalizer
func Normalize(pages []string) ([]Line, error) {
	return New().Normalize(pages)
}

// Join renders lines as newline-separated text
func Join(lines []Line) string {
	var sb strings.Builder
	for i, l := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(l.Text)
	}
	return sb.String()
}

// cleanPage applies Unicode and whitespace normalization to one page and
// drops empty lines
func cleanPage(page string) []string {
	page = norm.NFKC.String(page)
	page = strings.ReplaceAll(page, "\r\n", "\n")
	page = strings.ReplaceAll(page, "\r", "\n")

	var out []string
	for _, raw := range strings.Split(page, "\n") {
		line := strings.Join(strings.Fields(stripControl(raw)), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// stripControl removes control characters and decoding artifacts, turning
// tabs and other separators into spaces
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\v' || r == '\f':
			return ' '
		case r == unicode.ReplacementChar || r == '\u00ad' || r == '\ufeff':
			return -1
		case unicode.IsControl(r):
			return -1
		case unicode.Is(unicode.Co, r):
			// Private-use glyphs from broken font encodings
			return -1
		case unicode.IsSpace(r):
			return ' '
		}
		return r
	}, s)
}

func countLetters(s string) int {
	count := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			count++
		}
	}
	return count
}

func (n *Normalizer) isEdge(idx, total int) bool {
	return idx < n.EdgeLines || idx >= total-n.EdgeLines
}

// repeatedEdges finds edge lines that recur on at least RepeatFraction of
// the pages. Single-page documents have no repeated boilerplate.
func (n *Normalizer) repeatedEdges(pages [][]string) []string {
	if len(pages) < 2 {
		return nil
	}

	type group struct {
		representative string
		pages          map[int]bool
	}
	var groups []*group

	for i, page := range pages {
		for j, text := range page {
			if !n.isEdge(j, len(page)) {
				continue
			}
			var match *group
			for _, g := range groups {
				if n.similar(text, g.representative) {
					match = g
					break
				}
			}
			if match == nil {
				match = &group{representative: text, pages: make(map[int]bool)}
				groups = append(groups, match)
			}
			match.pages[i] = true
		}
	}

	minPages := int(float64(len(pages))*n.RepeatFraction + 0.5)
	if minPages < 2 {
		minPages = 2
	}

	var out []string
	for _, g := range groups {
		if len(g.pages) >= minPages {
			out = append(out, g.representative)
		}
	}
	return out
}

func (n *Normalizer) matchesAny(text string, patterns []string) bool {
	for _, p := range patterns {
		if n.similar(text, p) {
			return true
		}
	}
	return false
}

// similar compares two lines after masking page numbers and dates
func (n *Normalizer) similar(a, b string) bool {
	a = compareForm(a)
	b = compareForm(b)
	if a == b {
		return a != ""
	}
	longest := max(len(a), len(b))
	if longest == 0 {
		return false
	}
	dist := levenshtein.ComputeDistance(a, b)
	return float64(dist)/float64(longest) < n.MaxDistance
}

func compareForm(s string) string {
	s = strings.ToLower(s)
	s = compareDatePattern.ReplaceAllString(s, "")
	s = comparePagePattern.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}
