// Package geocode resolves the location text of curated, bicycle-involved
// reports to coordinates and renders them as map layers.
package geocode

import (
	"regexp"
	"strings"
)

var (
	streetSeparator = regexp.MustCompile(`(?i)\s*(?:[/&,;]|\b(?:and|at|on)\b)\s*`)
	dashSeparator   = regexp.MustCompile(`\s*-+\s*`)
	// "A/B-C": travelling along A from B to C; the cross street is C
	directionForm = regexp.MustCompile(`(?i)^.*?\s*(?:-|\bto\b)\s*(.*)$`)
	streetAddress = regexp.MustCompile(`^\d+ \w+`)

	oStreet       = regexp.MustCompile(`\bO\b`)
	quotedLetter  = regexp.MustCompile(`['"]([A-Z])['"]`)
	unspacedDir   = regexp.MustCompile(`\b([NS])(\d+)`)
	repeatedSpace = regexp.MustCompile(`\s{2,}`)
)

// NormalizeLocation rewrites free-text report locations into a query the
// geocoder understands. The second result is false when the text names a
// single street, which cannot be resolved without an operator.
func NormalizeLocation(location string) (string, bool) {
	location = strings.TrimSpace(location)
	if location == "" {
		return "", false
	}

	streets := splitNonEmpty(streetSeparator, location)
	if len(streets) < 2 {
		streets = splitNonEmpty(dashSeparator, location)
	}

	if len(streets) == 2 {
		for i, street := range streets {
			if m := directionForm.FindStringSubmatch(street); m != nil && strings.TrimSpace(m[1]) != "" {
				streets[i] = strings.TrimSpace(m[1])
			}
		}
		query := strings.Join(streets, " & ")

		// Geocoders read a bare "O" as West O and trip over quoted letter
		// streets and "S40TH"
		query = quotedLetter.ReplaceAllString(query, "$1 ")
		query = oStreet.ReplaceAllString(query, "East O")
		query = unspacedDir.ReplaceAllString(query, "$1 $2")
		return strings.TrimSpace(repeatedSpace.ReplaceAllString(query, " ")), true
	}

	if streetAddress.MatchString(location) {
		return location, true
	}
	return location, false
}

// WithSuffix appends the municipality to a query unless it is already there
func WithSuffix(query, suffix string) string {
	suffix = strings.TrimSpace(suffix)
	if suffix == "" || strings.Contains(strings.ToLower(query), strings.ToLower(suffix)) {
		return query
	}
	return query + ", " + suffix
}

func splitNonEmpty(p *regexp.Regexp, s string) []string {
	var out []string
	for _, part := range p.Split(s, -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
