package model

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidHitAndRunStatus = errors.New("invalid hit-and-run status")

// HitAndRunStatus records which party left the scene of a bicycle-involved
// hit-and-run crash
type HitAndRunStatus string

const (
	HitAndRunUnreviewed HitAndRunStatus = "unreviewed" // Awaiting review
	HitAndRunDriver     HitAndRunStatus = "driver"     // The driver left
	HitAndRunCyclist    HitAndRunStatus = "cyclist"    // The cyclist left
	HitAndRunBoth       HitAndRunStatus = "both"       // Both parties left
	HitAndRunUnknown    HitAndRunStatus = "unknown"    // The report does not say
)

// HitAndRunStatuses lists the assignable statuses in presentation order
var HitAndRunStatuses = []HitAndRunStatus{
	HitAndRunDriver,
	HitAndRunCyclist,
	HitAndRunBoth,
	HitAndRunUnknown,
}

// ParseHitAndRunStatus validates a status name
func ParseHitAndRunStatus(s string) (HitAndRunStatus, error) {
	st := HitAndRunStatus(s)
	if st == HitAndRunUnreviewed || st.Assignable() {
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidHitAndRunStatus, s)
}

// Assignable reports whether st can be chosen by an operator
func (st HitAndRunStatus) Assignable() bool {
	for _, known := range HitAndRunStatuses {
		if st == known {
			return true
		}
	}
	return false
}

// Transition follows the same rule as categories: only an unreviewed entry
// is assigned freely, anything else needs force
func (st HitAndRunStatus) Transition(next HitAndRunStatus, force bool) error {
	if !next.Assignable() {
		return fmt.Errorf("%w: %q", ErrInvalidHitAndRunStatus, next)
	}
	if st != HitAndRunUnreviewed && !force {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, st)
	}
	return nil
}

// Key returns the single-letter shortcut used in interactive review
func (st HitAndRunStatus) Key() string {
	switch st {
	case HitAndRunDriver:
		return "D"
	case HitAndRunCyclist:
		return "C"
	case HitAndRunBoth:
		return "B"
	case HitAndRunUnknown:
		return "U"
	default:
		return ""
	}
}

// Description returns the help text shown during review
func (st HitAndRunStatus) Description() string {
	switch st {
	case HitAndRunDriver:
		return "The driver left the scene"
	case HitAndRunCyclist:
		return "The cyclist left the scene"
	case HitAndRunBoth:
		return "Both parties left the scene"
	case HitAndRunUnknown:
		return "The report does not say who left"
	default:
		return "Not yet reviewed"
	}
}

// HitAndRunStatusFromKey resolves a review shortcut (case-insensitive)
func HitAndRunStatusFromKey(key string) (HitAndRunStatus, bool) {
	key = strings.ToUpper(strings.TrimSpace(key))
	for _, st := range HitAndRunStatuses {
		if st.Key() == key {
			return st, true
		}
	}
	return "", false
}
