package extract

import (
	"regexp"
	"strings"

	"github.com/lnkbike/crashes/internal/model"
	"github.com/lnkbike/crashes/internal/normalize"
)

var caseNoLabels = newLabelSet(
	[]string{"CASE NUMBER", "CASE NO", "CASE #", "LPD CASE", "REPORT NUMBER"},
	[]string{"CASE", "CS NO", "RPT NO"},
)

var caseNoPattern = regexp.MustCompile(`(?i)\b([A-Z]\d)\s*-?\s*(\d{6})\b`)

// ParseCaseNo finds the case number printed on the report, e.g. "B3-063805"
func ParseCaseNo(lines []normalize.Line) []Candidate[string] {
	var out []Candidate[string]
	for _, h := range caseNoLabels.find(lines) {
		if m := caseNoPattern.FindStringSubmatchIndex(h.Value); m != nil {
			out = append(out, Candidate[string]{Value: formatCaseNo(h.Value, m), Confidence: h.Confidence, Line: h.Line, Offset: h.Offset + m[0]})
		}
	}
	if len(out) > 0 {
		return out
	}
	for i, line := range lines {
		for _, m := range caseNoPattern.FindAllStringSubmatchIndex(line.Text, -1) {
			out = append(out, Candidate[string]{Value: formatCaseNo(line.Text, m), Confidence: ConfidencePositional, Line: i, Offset: m[0]})
		}
	}
	return out
}

func formatCaseNo(s string, m []int) string {
	return strings.ToUpper(s[m[2]:m[3]]) + "-" + s[m[4]:m[5]]
}

// Parsers is the set of field parsers the assembler runs over every
// document. Each parser is a pure function of the normalized lines.
type Parsers struct {
	CaseNo         func([]normalize.Line) []Candidate[string]
	Date           func([]normalize.Line) []Candidate[model.Date]
	Time           func([]normalize.Line) []Candidate[model.Clock]
	Location       func([]normalize.Line) []Candidate[string]
	Narrative      func([]normalize.Line) []Candidate[string]
	InjurySeverity func([]normalize.Line) []Candidate[model.Severity]
	InjuryRegion   func([]normalize.Line) []Candidate[model.InjuryRegion]
	CyclistDOB     func([]normalize.Line) []Candidate[model.Date]

	CyclistInitials func([]normalize.Line) []Candidate[string]
	CyclistGender   func([]normalize.Line) []Candidate[model.Gender]
	HitAndRun       func([]normalize.Line) []Candidate[bool]
}

// DefaultParsers returns the standard field parsers
func DefaultParsers() Parsers {
	return Parsers{
		CaseNo:         ParseCaseNo,
		Date:           ParseDate,
		Time:           ParseTime,
		Location:       ParseLocation,
		Narrative:      ParseNarrative,
		InjurySeverity: ParseInjurySeverity,
		InjuryRegion:   ParseInjuryRegion,
		CyclistDOB:     ParseDOB,

		CyclistInitials: ParseCyclistInitials,
		CyclistGender:   ParseCyclistGender,
		HitAndRun:       ParseHitAndRun,
	}
}
