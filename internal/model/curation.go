package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidCategory   = errors.New("invalid curation category")
	ErrInvalidTransition = errors.New("curation category already set")
)

// Category is the human-assigned crash location category of a candidate report
type Category string

const (
	CategoryUnclassified Category = "unclassified" // Candidate awaiting review
	CategoryCrosswalk    Category = "crosswalk"    // Cyclist in a crosswalk
	CategorySidewalk     Category = "sidewalk"     // Cyclist on a sidewalk
	CategoryRoad         Category = "road"         // Cyclist on the road, mid-block
	CategoryIntersection Category = "intersection" // Cyclist on the road at an intersection
	CategoryElsewhere    Category = "elsewhere"    // Parking lot, trail, driveway, ...
	CategoryNotInvolved  Category = "not_involved" // Keyword matched but no cyclist was involved
)

// Categories lists the assignable categories in presentation order
var Categories = []Category{
	CategoryCrosswalk,
	CategorySidewalk,
	CategoryRoad,
	CategoryIntersection,
	CategoryElsewhere,
	CategoryNotInvolved,
}

// ParseCategory validates a category name
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if c == CategoryUnclassified || c.Assignable() {
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// Assignable reports whether c can be chosen by an operator
func (c Category) Assignable() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// BicycleInvolved reports whether c places a cyclist at the scene
func (c Category) BicycleInvolved() bool {
	return c.Assignable() && c != CategoryNotInvolved
}

// Transition validates moving from c to next. Only unclassified entries may
// be assigned; an assigned category is replaced only when force is set.
func (c Category) Transition(next Category, force bool) error {
	if !next.Assignable() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, next)
	}
	if c != CategoryUnclassified && !force {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, c)
	}
	return nil
}

// Key returns the single-letter shortcut used in interactive review
func (c Category) Key() string {
	switch c {
	case CategoryCrosswalk:
		return "C"
	case CategorySidewalk:
		return "S"
	case CategoryRoad:
		return "R"
	case CategoryIntersection:
		return "I"
	case CategoryElsewhere:
		return "E"
	case CategoryNotInvolved:
		return "N"
	default:
		return ""
	}
}

// Description returns the help text shown during review
func (c Category) Description() string {
	switch c {
	case CategoryCrosswalk:
		return "Cyclist was in a crosswalk"
	case CategorySidewalk:
		return "Cyclist was on a sidewalk"
	case CategoryRoad:
		return "Cyclist was on the road, not at an intersection"
	case CategoryIntersection:
		return "Cyclist was on the road at an intersection"
	case CategoryElsewhere:
		return "Cyclist was somewhere else (parking lot, trail, driveway)"
	case CategoryNotInvolved:
		return "No cyclist was involved"
	default:
		return "Not yet reviewed"
	}
}

// CategoryFromKey resolves a review shortcut (case-insensitive)
func CategoryFromKey(key string) (Category, bool) {
	key = strings.ToUpper(strings.TrimSpace(key))
	for _, c := range Categories {
		if c.Key() == key {
			return c, true
		}
	}
	return "", false
}
