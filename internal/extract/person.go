package extract

import (
	"regexp"
	"strings"

	"github.com/lnkbike/crashes/internal/model"
	"github.com/lnkbike/crashes/internal/normalize"
)

var dobLabels = newLabelSet(
	[]string{"DATE OF BIRTH", "BIRTH DATE", "BIRTHDATE", "DOB", "D.O.B."},
	[]string{"D O B", "BIRTH", "BORN", "DT OF BIRTH"},
)

var cyclistNameLabels = newLabelSet(
	[]string{
		"BICYCLIST NAME", "CYCLIST NAME", "NAME OF BICYCLIST", "NAME OF CYCLIST",
		"BICYCLIST", "PEDALCYCLIST", "CYCLIST",
	},
	[]string{"BIKE RIDER", "RIDER"},
)

// A plain name label counts when the person block belongs to the cyclist
var personNameLabels = newLabelSet([]string{"NAME"}, nil)

var genderLabels = newLabelSet([]string{"SEX", "GENDER"}, []string{"SX"})

var (
	nameWordPattern    = regexp.MustCompile(`[A-Za-z][A-Za-z'.-]*`)
	notANamePattern    = regexp.MustCompile(`(?i)^(?:unknown|unk|none|n/?a|yes|no|not\s+listed|same)\b`)
	cyclistRolePattern = regexp.MustCompile(`(?i)\b(?:bi)?cyclist\b|\bpedal\s*cyclist\b|\bbicycle\b|\bbike\b|\bbicyclist\b|\brider\b`)
	otherRolePattern   = regexp.MustCompile(`(?i)\bdriver\b|\boperator\b|\bowner\b|\bwitness\b|\bpassenger\b|\bpedestrian\b|\bmotorist\b`)
)

// Lines above a birth date that may name the person's role
const roleWindow = 3

// Longer values under a name label are addresses or sentences
const maxNameWords = 4

// ParseDOB extracts the cyclist's date of birth. A birth date only counts
// when the nearest role word before it (same line or the lines above)
// names the cyclist; driver and witness birth dates are ignored.
func ParseDOB(lines []normalize.Line) []Candidate[model.Date] {
	var out []Candidate[model.Date]
	for _, h := range dobLabels.find(lines) {
		d, off, ok := FindDate(h.Value)
		if !ok {
			continue
		}
		if !nearestRoleIsCyclist(lines, h.Line, h.Offset) {
			continue
		}
		out = append(out, Candidate[model.Date]{Value: d, Confidence: h.Confidence, Line: h.Line, Offset: h.Offset + off})
	}
	return out
}

// nearestRoleIsCyclist walks backwards from the label position looking for
// the closest role keyword
func nearestRoleIsCyclist(lines []normalize.Line, idx, offset int) bool {
	for i := idx; i >= 0 && i >= idx-roleWindow; i-- {
		text := lines[i].Text
		if i == idx && offset <= len(text) {
			text = text[:offset]
		}
		cyclist := lastMatch(cyclistRolePattern, text)
		other := lastMatch(otherRolePattern, text)
		switch {
		case cyclist < 0 && other < 0:
			continue
		case cyclist > other:
			return true
		default:
			return false
		}
	}
	return false
}

func lastMatch(p *regexp.Regexp, s string) int {
	all := p.FindAllStringIndex(s, -1)
	if len(all) == 0 {
		return -1
	}
	return all[len(all)-1][0]
}

// ParseCyclistInitials extracts the cyclist's initials from a name written
// after a cyclist label, or after a name label in the cyclist's block.
// Only the initials are kept.
func ParseCyclistInitials(lines []normalize.Line) []Candidate[string] {
	var out []Candidate[string]
	add := func(h hit, confidence Confidence) {
		if !colonLabelled(lines, h) {
			return
		}
		if initials, ok := Initials(h.Value); ok {
			out = append(out, Candidate[string]{Value: initials, Confidence: confidence, Line: h.Line, Offset: h.Offset})
		}
	}
	for _, h := range cyclistNameLabels.find(lines) {
		add(h, h.Confidence)
	}
	for _, h := range personNameLabels.find(lines) {
		if nearestRoleIsCyclist(lines, h.Line, h.Offset) {
			// The role comes from context, not from the label
			add(h, min(h.Confidence, ConfidenceFuzzy))
		}
	}
	return out
}

// Initials reduces a written name to the first letter of each word, up to
// the first digit. "Jane Q. Roe 402 N 27th" yields "JQR".
func Initials(name string) (string, bool) {
	name = strings.TrimSpace(leadingText(name))
	if name == "" || notANamePattern.MatchString(name) {
		return "", false
	}
	words := nameWordPattern.FindAllString(name, -1)
	if len(words) == 0 || len(words) > maxNameWords {
		return "", false
	}
	var sb strings.Builder
	for _, w := range words {
		sb.WriteString(strings.ToUpper(w[:1]))
	}
	return sb.String(), true
}

// ParseCyclistGender extracts the sex field of the cyclist. As with birth
// dates, the nearest role word before the label must name the cyclist.
func ParseCyclistGender(lines []normalize.Line) []Candidate[model.Gender] {
	var out []Candidate[model.Gender]
	for _, h := range genderLabels.find(lines) {
		fields := strings.Fields(h.Value)
		if len(fields) == 0 {
			continue
		}
		g, ok := model.ParseGender(strings.Trim(fields[0], ".,;/"))
		if !ok {
			continue
		}
		if !nearestRoleIsCyclist(lines, h.Line, h.Offset) {
			continue
		}
		out = append(out, Candidate[model.Gender]{Value: g, Confidence: h.Confidence, Line: h.Line, Offset: h.Offset})
	}
	return out
}
