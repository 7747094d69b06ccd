package geocode

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/lnkbike/crashes/internal/model"
	"github.com/lnkbike/crashes/internal/store"
)

// Matches closer than this (in degrees, roughly 150m) are the same place
const sameSpot = 0.0015

// Pending is a curated report still waiting for coordinates
type Pending struct {
	Report     *model.Report
	Category   model.Category
	Query      string // Normalized query, without the municipality suffix
	Searchable bool   // Query can be sent without operator input
	Skipped    bool   // Operator deferred this case
}

// ResolveSummary reports the outcome of an automatic pass
type ResolveSummary struct {
	Resolved []string          // Cases that now have coordinates
	Manual   map[string]string // Case -> reason it needs an operator
}

// Resolver computes the geocoding queue and resolves entries. It reads and
// writes the store on the caller's goroutine only.
type Resolver struct {
	store    *store.Store
	geocoder Geocoder
	suffix   string
	bounds   model.Bounds
	log      logrus.FieldLogger
}

// NewResolver creates a resolver
func NewResolver(s *store.Store, g Geocoder, cfg model.GeocodeConfig, log logrus.FieldLogger) *Resolver {
	return &Resolver{
		store:    s,
		geocoder: g,
		suffix:   cfg.QuerySuffix,
		bounds:   cfg.Bounds,
		log:      log,
	}
}

// Pending lists bicycle-involved cases without coordinates in case-number
// order. With force, skipped cases and automatically resolved ones are
// included again; manual resolutions are never revisited.
func (r *Resolver) Pending(force bool) []Pending {
	var out []Pending
	for _, rec := range r.store.Reports() {
		cat, ok := r.store.Category(rec.CaseNo)
		if !ok || !cat.BicycleInvolved() {
			continue
		}
		if loc, located := r.store.Location(rec.CaseNo); located {
			if !force || loc.ResolutionMethod == model.ResolutionManual {
				continue
			}
		}
		skipped := r.store.IsSkipped(rec.CaseNo)
		if skipped && !force {
			continue
		}

		p := Pending{Report: rec, Category: cat, Skipped: skipped}
		if rec.Location != nil {
			p.Query, p.Searchable = NormalizeLocation(*rec.Location)
		}
		out = append(out, p)
	}
	return out
}

// ResolveAuto geocodes every searchable pending case. Failures are
// collected for manual follow-up; only cancellation stops the pass early.
func (r *Resolver) ResolveAuto(ctx context.Context, force bool) (ResolveSummary, error) {
	summary := ResolveSummary{Manual: make(map[string]string)}
	for _, p := range r.Pending(force) {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		caseNo := p.Report.CaseNo
		if !p.Searchable {
			reason := "no location text"
			if p.Query != "" {
				reason = "location names a single street"
			}
			summary.Manual[caseNo] = reason
			continue
		}

		loc, err := r.resolve(ctx, caseNo, p.Query, model.ResolutionAutomatic, false)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			if errors.Is(err, ErrDisallowed) {
				return summary, err
			}
			r.log.WithFields(logrus.Fields{
				"case_no": caseNo,
				"query":   p.Query,
			}).Infof("Needs manual geocoding: %v", err)
			summary.Manual[caseNo] = err.Error()
			continue
		}
		summary.Resolved = append(summary.Resolved, loc.CaseNo)
	}
	return summary, nil
}

// ResolveManual geocodes an operator-supplied query for caseNo. The best
// match is accepted even when it falls outside the municipality; such
// locations are flagged.
func (r *Resolver) ResolveManual(ctx context.Context, caseNo, query string) (*model.Location, error) {
	if err := r.checkCase(caseNo); err != nil {
		return nil, err
	}
	return r.resolve(ctx, caseNo, query, model.ResolutionManual, true)
}

// Lookup runs query and returns the best match without storing it
func (r *Resolver) Lookup(ctx context.Context, query string, manual bool) (Match, error) {
	matches, err := r.geocoder.Search(ctx, WithSuffix(query, r.suffix))
	if err != nil {
		return Match{}, err
	}
	return r.choose(matches, manual)
}

// Accept stores a match previously returned by Lookup
func (r *Resolver) Accept(caseNo, query string, m Match, method model.ResolutionMethod) (*model.Location, error) {
	loc := &model.Location{
		CaseNo:           caseNo,
		Latitude:         m.Latitude,
		Longitude:        m.Longitude,
		SourceText:       query,
		Address:          m.Address,
		ResolutionMethod: method,
		OutOfBounds:      !r.bounds.Contains(m.Latitude, m.Longitude),
	}
	if err := r.store.SetLocation(loc); err != nil {
		return nil, err
	}
	r.log.WithFields(logrus.Fields{
		"case_no": caseNo,
		"method":  method,
		"address": m.Address,
	}).Info("Geocoded report")
	return loc, nil
}

// SetCoordinates records operator-supplied coordinates directly
func (r *Resolver) SetCoordinates(caseNo string, lat, lon float64) (*model.Location, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("coordinates out of range: %f,%f", lat, lon)
	}
	if err := r.checkCase(caseNo); err != nil {
		return nil, err
	}
	return r.Accept(caseNo, fmt.Sprintf("%f,%f", lat, lon), Match{Latitude: lat, Longitude: lon}, model.ResolutionManual)
}

// Skip defers caseNo until a forced pass
func (r *Resolver) Skip(caseNo string) error {
	if err := r.store.Skip(caseNo); err != nil {
		return err
	}
	r.log.WithField("case_no", caseNo).Info("Skipped geocoding")
	return nil
}

func (r *Resolver) resolve(ctx context.Context, caseNo, query string, method model.ResolutionMethod, manual bool) (*model.Location, error) {
	m, err := r.Lookup(ctx, query, manual)
	if err != nil {
		return nil, err
	}
	return r.Accept(caseNo, query, m, method)
}

// choose picks the match to use. Automatic lookups only accept matches
// inside the bounds and give up when those disagree; manual lookups take
// the best match.
func (r *Resolver) choose(matches []Match, manual bool) (Match, error) {
	if len(matches) == 0 {
		return Match{}, ErrNoMatch
	}
	if manual {
		return matches[0], nil
	}

	var inside []Match
	for _, m := range matches {
		if r.bounds.Contains(m.Latitude, m.Longitude) {
			inside = append(inside, m)
		}
	}
	if len(inside) == 0 {
		return Match{}, fmt.Errorf("%w: all %d matches outside the municipality", ErrNoMatch, len(matches))
	}
	for _, m := range inside[1:] {
		if distance(inside[0], m) > sameSpot {
			return Match{}, fmt.Errorf("%w: %q or %q", ErrAmbiguous, inside[0].Address, m.Address)
		}
	}
	return inside[0], nil
}

// checkCase ensures caseNo is a curated, bicycle-involved report
func (r *Resolver) checkCase(caseNo string) error {
	cat, ok := r.store.Category(caseNo)
	if !ok {
		if !r.store.Has(caseNo) {
			return fmt.Errorf("%w: %s", store.ErrUnknownCase, caseNo)
		}
		return fmt.Errorf("case %s has not been curated", caseNo)
	}
	if !cat.BicycleInvolved() {
		return fmt.Errorf("case %s is %s, not bicycle-involved", caseNo, cat)
	}
	return nil
}

func distance(a, b Match) float64 {
	return math.Hypot(a.Latitude-b.Latitude, a.Longitude-b.Longitude)
}
