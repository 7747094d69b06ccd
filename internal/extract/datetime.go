package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lnkbike/crashes/internal/model"
	"github.com/lnkbike/crashes/internal/normalize"
)

var dateLabels = newLabelSet(
	[]string{
		"DATE OF ACCIDENT", "ACCIDENT DATE", "DATE OF CRASH", "CRASH DATE",
		"DATE OF OCCURRENCE", "DATE/TIME", "DATE",
	},
	[]string{"DT OF ACC", "ACC DATE", "ACC DT", "DATE OCCURRED", "OCCURRED ON", "OCC DATE"},
)

var timeLabels = newLabelSet(
	[]string{"TIME OF ACCIDENT", "ACCIDENT TIME", "TIME OF CRASH", "CRASH TIME", "MILITARY TIME", "TIME"},
	[]string{"ACC TIME", "TIME OCCURRED", "HOUR", "HR", "TM"},
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

var (
	numericDatePattern = regexp.MustCompile(`\b(\d{1,2})\s*[/\-.]\s*(\d{1,2})\s*[/\-.]\s*(\d{2,4})\b`)
	isoDatePattern     = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	monthFirstPattern  = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
	dayFirstPattern    = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?,?\s+(\d{4})\b`)

	clockPattern    = regexp.MustCompile(`(?i)\b([01]?\d|2[0-3])\s*:\s*([0-5]\d)(?:\s*(a\.?m\.?|p\.?m\.?)(?:\W|$))?`)
	militaryPattern = regexp.MustCompile(`(?i)\b([01]\d|2[0-3])([0-5]\d)\b(?:\s*(hrs|hours|hr)\b)?`)
	meridiemPattern = regexp.MustCompile(`(?i)\b(1[0-2]|0?[1-9])\s*(a\.?m\.?|p\.?m\.?)(?:\W|$)`)

	birthContextPattern = regexp.MustCompile(`(?i)\b(?:birth|born|dob|d\.o\.b|age)\b`)
)

// Plausible years for crash reports and birth dates
const (
	minYear = 1900
	maxYear = 2099
)

// ParseDate extracts the date of the crash. Dates that sit next to birth
// date labels are never taken as the crash date.
func ParseDate(lines []normalize.Line) []Candidate[model.Date] {
	var out []Candidate[model.Date]
	labelled := make(map[int]bool)

	for _, h := range dateLabels.find(lines) {
		labelled[h.Line] = true
		if birthContextPattern.MatchString(leadingText(h.Value)) || birthContextPattern.MatchString(labelContext(lines, h)) {
			continue
		}
		d, off, ok := FindDate(h.Value)
		if !ok {
			continue
		}
		out = append(out, Candidate[model.Date]{Value: d, Confidence: h.Confidence, Line: h.Line, Offset: h.Offset + off})
	}
	if len(out) > 0 {
		return out
	}

	// No usable label: every other date outside a birth-date context is a
	// positional guess
	for i, line := range lines {
		if labelled[i] || birthContextPattern.MatchString(line.Text) {
			continue
		}
		for _, found := range findAllDates(line.Text) {
			out = append(out, Candidate[model.Date]{Value: found.date, Confidence: ConfidencePositional, Line: i, Offset: found.offset})
		}
	}
	return out
}

// ParseTime extracts the time of day of the crash
func ParseTime(lines []normalize.Line) []Candidate[model.Clock] {
	var out []Candidate[model.Clock]
	for _, h := range timeLabels.find(lines) {
		c, off, ok := FindClock(h.Value, true)
		if !ok {
			continue
		}
		out = append(out, Candidate[model.Clock]{Value: c, Confidence: h.Confidence, Line: h.Line, Offset: h.Offset + off})
	}
	if len(out) > 0 {
		return out
	}

	// Unlabelled times only count when written unambiguously as a clock
	// reading ("2:35 PM", "14:35", "1435 hrs")
	for i, line := range lines {
		c, off, ok := FindClock(line.Text, false)
		if ok {
			out = append(out, Candidate[model.Clock]{Value: c, Confidence: ConfidencePositional, Line: i, Offset: off})
		}
	}
	return out
}

var valueEnd = regexp.MustCompile(`[:#=\d]`)

// labelContext returns the label of h and the words before it, back to the
// end of the previous value on the line. "BIRTH DATE:" yields "BIRTH DATE".
func labelContext(lines []normalize.Line, h hit) string {
	prefix := strings.TrimRight(labelPrefix(lines, h), " \t:#=-.")
	if locs := valueEnd.FindAllStringIndex(prefix, -1); len(locs) > 0 {
		prefix = prefix[locs[len(locs)-1][1]:]
	}
	return prefix
}

// leadingText returns the part of a value before its first digit
func leadingText(s string) string {
	if i := strings.IndexAny(s, "0123456789"); i >= 0 {
		return s[:i]
	}
	return s
}

type foundDate struct {
	date   model.Date
	offset int
}

// FindDate returns the first valid date written in s
func FindDate(s string) (model.Date, int, bool) {
	all := findAllDates(s)
	if len(all) == 0 {
		return model.Date{}, 0, false
	}
	return all[0].date, all[0].offset, true
}

func findAllDates(s string) []foundDate {
	var out []foundDate
	add := func(offset int, year, month, day string, monthName string) {
		y, ok := repairYear(year)
		if !ok {
			return
		}
		var m time.Month
		if monthName != "" {
			m = months[strings.ToLower(monthName[:3])]
		} else {
			mi, err := strconv.Atoi(month)
			if err != nil {
				return
			}
			m = time.Month(mi)
		}
		di, err := strconv.Atoi(day)
		if err != nil {
			return
		}
		d, err := model.NewDate(y, m, di)
		if err != nil {
			return
		}
		out = append(out, foundDate{date: d, offset: offset})
	}

	for _, m := range isoDatePattern.FindAllStringSubmatchIndex(s, -1) {
		add(m[0], s[m[2]:m[3]], s[m[4]:m[5]], s[m[6]:m[7]], "")
	}
	for _, m := range numericDatePattern.FindAllStringSubmatchIndex(s, -1) {
		if overlaps(out, m[0]) {
			continue
		}
		add(m[0], s[m[6]:m[7]], s[m[2]:m[3]], s[m[4]:m[5]], "")
	}
	for _, m := range monthFirstPattern.FindAllStringSubmatchIndex(s, -1) {
		add(m[0], s[m[6]:m[7]], "", s[m[4]:m[5]], s[m[2]:m[3]])
	}
	for _, m := range dayFirstPattern.FindAllStringSubmatchIndex(s, -1) {
		add(m[0], s[m[6]:m[7]], "", s[m[2]:m[3]], s[m[4]:m[5]])
	}

	// Document order
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].offset < out[j-1].offset; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func overlaps(found []foundDate, offset int) bool {
	for _, f := range found {
		if f.offset == offset {
			return true
		}
	}
	return false
}

// repairYear expands two-digit years and fixes three-digit typos such as
// "213" for 2013
func repairYear(s string) (int, bool) {
	y, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	switch len(s) {
	case 2:
		if y < 30 {
			y += 2000
		} else {
			y += 1900
		}
	case 3:
		if y < 190 || y > 219 {
			return 0, false
		}
		y += 1800
	case 4:
	default:
		return 0, false
	}
	if y < minYear || y > maxYear {
		return 0, false
	}
	return y, true
}

// FindClock returns the first time of day written in s. Dates are masked
// first so "01/02/2014" is never read as 20:14. With lenient set, bare
// four-digit military times are accepted.
func FindClock(s string, lenient bool) (model.Clock, int, bool) {
	masked := maskDates(s)

	type found struct {
		clock  model.Clock
		offset int
	}
	var best *found
	consider := func(offset, hour, minute int) {
		c, err := model.NewClock(hour, minute)
		if err != nil {
			return
		}
		if best == nil || offset < best.offset {
			best = &found{clock: c, offset: offset}
		}
	}

	for _, m := range clockPattern.FindAllStringSubmatchIndex(masked, -1) {
		h, _ := strconv.Atoi(masked[m[2]:m[3]])
		mi, _ := strconv.Atoi(masked[m[4]:m[5]])
		meridiem := ""
		if m[6] >= 0 {
			meridiem = masked[m[6]:m[7]]
		}
		if meridiem == "" && !lenient && h < 13 {
			continue
		}
		h, ok := applyMeridiem(h, meridiem)
		if ok {
			consider(m[0], h, mi)
		}
	}
	for _, m := range militaryPattern.FindAllStringSubmatchIndex(masked, -1) {
		hasUnit := m[6] >= 0
		if !lenient && !hasUnit {
			continue
		}
		h, _ := strconv.Atoi(masked[m[2]:m[3]])
		mi, _ := strconv.Atoi(masked[m[4]:m[5]])
		consider(m[0], h, mi)
	}
	for _, m := range meridiemPattern.FindAllStringSubmatchIndex(masked, -1) {
		h, _ := strconv.Atoi(masked[m[2]:m[3]])
		h, ok := applyMeridiem(h, masked[m[4]:m[5]])
		if ok {
			consider(m[0], h, 0)
		}
	}

	if best == nil {
		return model.Clock{}, 0, false
	}
	return best.clock, best.offset, true
}

func applyMeridiem(hour int, meridiem string) (int, bool) {
	if meridiem == "" {
		return hour, true
	}
	if hour < 1 || hour > 12 {
		return 0, false
	}
	pm := strings.HasPrefix(strings.ToLower(meridiem), "p")
	switch {
	case pm && hour < 12:
		hour += 12
	case !pm && hour == 12:
		hour = 0
	}
	return hour, true
}

// maskDates blanks out dates while keeping byte offsets intact
func maskDates(s string) string {
	b := []byte(s)
	for _, p := range []*regexp.Regexp{isoDatePattern, numericDatePattern, monthFirstPattern, dayFirstPattern} {
		for _, m := range p.FindAllStringIndex(s, -1) {
			for i := m[0]; i < m[1]; i++ {
				b[i] = ' '
			}
		}
	}
	return string(b)
}
