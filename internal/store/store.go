// Package store persists crash records and the curation and geocoding
// overlays attached to them. All three are keyed by case number.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/lnkbike/crashes/internal/model"
)

// File names inside the data directory
const (
	ReportsFile   = "reports.json"
	CurationFile  = "curation.json"
	LocationsFile = "locations.json"
	SkipFile      = "geocode_skip.json"
	HitAndRunFile = "hit_and_run.json"
)

var ErrUnknownCase = errors.New("unknown case number")

// MergeOutcome says what Merge did with a record
type MergeOutcome int

const (
	MergeSkipped  MergeOutcome = iota // Already present and not targeted
	MergeInserted                     // New case number
	MergeUpdated                      // Overwritten by a targeted reparse
)

func (o MergeOutcome) String() string {
	switch o {
	case MergeInserted:
		return "inserted"
	case MergeUpdated:
		return "updated"
	default:
		return "skipped"
	}
}

// Store holds the whole dataset in memory. It is owned by a single
// goroutine; workers hand their results to that goroutine instead of
// writing here.
type Store struct {
	dir       string
	log       logrus.FieldLogger
	reports   map[string]*model.Report
	curation  map[string]model.Category
	locations map[string]*model.Location
	skipped   map[string]bool
	hitAndRun map[string]model.HitAndRunStatus
}

// Open loads the store from dir, creating the directory if needed.
// Missing files are treated as empty.
func Open(dir string, log logrus.FieldLogger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &Store{
		dir:       dir,
		log:       log,
		reports:   make(map[string]*model.Report),
		curation:  make(map[string]model.Category),
		locations: make(map[string]*model.Location),
		skipped:   make(map[string]bool),
		hitAndRun: make(map[string]model.HitAndRunStatus),
	}

	data, err := readFile(filepath.Join(dir, ReportsFile))
	if err != nil {
		return nil, err
	}
	if data != nil {
		if err := validateReports(data); err != nil {
			return nil, fmt.Errorf("%s: %w", ReportsFile, err)
		}
		if err := json.Unmarshal(data, &s.reports); err != nil {
			return nil, fmt.Errorf("decode %s: %w", ReportsFile, err)
		}
	}

	if err := loadJSON(filepath.Join(dir, CurationFile), &s.curation); err != nil {
		return nil, err
	}
	for caseNo, cat := range s.curation {
		if _, err := model.ParseCategory(string(cat)); err != nil {
			return nil, fmt.Errorf("%s: case %s: %w", CurationFile, caseNo, err)
		}
	}

	if err := loadJSON(filepath.Join(dir, LocationsFile), &s.locations); err != nil {
		return nil, err
	}

	if err := loadJSON(filepath.Join(dir, HitAndRunFile), &s.hitAndRun); err != nil {
		return nil, err
	}
	for caseNo, st := range s.hitAndRun {
		if _, err := model.ParseHitAndRunStatus(string(st)); err != nil {
			return nil, fmt.Errorf("%s: case %s: %w", HitAndRunFile, caseNo, err)
		}
	}

	var skip []string
	if err := loadJSON(filepath.Join(dir, SkipFile), &skip); err != nil {
		return nil, err
	}
	for _, caseNo := range skip {
		s.skipped[caseNo] = true
	}

	log.WithFields(logrus.Fields{
		"dir":       dir,
		"reports":   len(s.reports),
		"curated":   len(s.curation),
		"locations": len(s.locations),
	}).Debug("Loaded store")

	return s, nil
}

// Dir returns the data directory
func (s *Store) Dir() string {
	return s.dir
}

// Len returns the number of records
func (s *Store) Len() int {
	return len(s.reports)
}

// Has reports whether a record exists for caseNo
func (s *Store) Has(caseNo string) bool {
	_, ok := s.reports[caseNo]
	return ok
}

// Report returns the record for caseNo
func (s *Store) Report(caseNo string) (*model.Report, bool) {
	r, ok := s.reports[caseNo]
	return r, ok
}

// Reports returns all records sorted by case number
func (s *Store) Reports() []*model.Report {
	out := make([]*model.Report, 0, len(s.reports))
	for _, caseNo := range sortedKeys(s.reports) {
		out = append(out, s.reports[caseNo])
	}
	return out
}

// Merge adds rec to the store. An existing record is only replaced when
// reparse is set.
func (s *Store) Merge(rec *model.Report, reparse bool) MergeOutcome {
	if _, exists := s.reports[rec.CaseNo]; exists {
		if !reparse {
			return MergeSkipped
		}
		s.reports[rec.CaseNo] = rec
		return MergeUpdated
	}
	s.reports[rec.CaseNo] = rec
	return MergeInserted
}

// Prune removes every record whose case number is not in keep, along with
// its overlays. The removed case numbers are returned sorted.
func (s *Store) Prune(keep map[string]bool) []string {
	var removed []string
	for _, caseNo := range sortedKeys(s.reports) {
		if keep[caseNo] {
			continue
		}
		delete(s.reports, caseNo)
		delete(s.curation, caseNo)
		delete(s.locations, caseNo)
		delete(s.skipped, caseNo)
		delete(s.hitAndRun, caseNo)
		removed = append(removed, caseNo)
	}
	return removed
}

// Category returns the curation category for caseNo, if it has an entry
func (s *Store) Category(caseNo string) (model.Category, bool) {
	c, ok := s.curation[caseNo]
	return c, ok
}

// Curation returns a copy of all curation entries
func (s *Store) Curation() map[string]model.Category {
	out := make(map[string]model.Category, len(s.curation))
	for k, v := range s.curation {
		out[k] = v
	}
	return out
}

// SetCategory records a human classification. Without force only an
// unclassified entry can be changed.
func (s *Store) SetCategory(caseNo string, cat model.Category, force bool) error {
	if !s.Has(caseNo) {
		return fmt.Errorf("%w: %s", ErrUnknownCase, caseNo)
	}
	current, ok := s.curation[caseNo]
	if !ok {
		current = model.CategoryUnclassified
	}
	if err := current.Transition(cat, force); err != nil {
		return fmt.Errorf("case %s: %w", caseNo, err)
	}
	s.curation[caseNo] = cat
	return nil
}

// EnsureCandidate creates an unclassified entry for caseNo unless one
// exists. It reports whether an entry was added.
func (s *Store) EnsureCandidate(caseNo string) bool {
	if _, ok := s.curation[caseNo]; ok {
		return false
	}
	s.curation[caseNo] = model.CategoryUnclassified
	return true
}

// RemoveCandidate drops an entry that is still unclassified. Classified
// entries are never removed this way.
func (s *Store) RemoveCandidate(caseNo string) bool {
	if s.curation[caseNo] != model.CategoryUnclassified {
		return false
	}
	delete(s.curation, caseNo)
	return true
}

// HitAndRunStatus returns the hit-and-run review status for caseNo
func (s *Store) HitAndRunStatus(caseNo string) (model.HitAndRunStatus, bool) {
	st, ok := s.hitAndRun[caseNo]
	return st, ok
}

// HitAndRun returns a copy of all hit-and-run entries
func (s *Store) HitAndRun() map[string]model.HitAndRunStatus {
	out := make(map[string]model.HitAndRunStatus, len(s.hitAndRun))
	for k, v := range s.hitAndRun {
		out[k] = v
	}
	return out
}

// SetHitAndRunStatus records who left the scene. Without force only an
// unreviewed entry can be changed.
func (s *Store) SetHitAndRunStatus(caseNo string, st model.HitAndRunStatus, force bool) error {
	if !s.Has(caseNo) {
		return fmt.Errorf("%w: %s", ErrUnknownCase, caseNo)
	}
	current, ok := s.hitAndRun[caseNo]
	if !ok {
		current = model.HitAndRunUnreviewed
	}
	if err := current.Transition(st, force); err != nil {
		return fmt.Errorf("case %s: %w", caseNo, err)
	}
	s.hitAndRun[caseNo] = st
	return nil
}

// EnsureHitAndRun creates an unreviewed entry for caseNo unless one exists
func (s *Store) EnsureHitAndRun(caseNo string) bool {
	if _, ok := s.hitAndRun[caseNo]; ok {
		return false
	}
	s.hitAndRun[caseNo] = model.HitAndRunUnreviewed
	return true
}

// RemoveHitAndRun drops an entry that is still unreviewed
func (s *Store) RemoveHitAndRun(caseNo string) bool {
	if s.hitAndRun[caseNo] != model.HitAndRunUnreviewed {
		return false
	}
	delete(s.hitAndRun, caseNo)
	return true
}

// Location returns the resolved location for caseNo
func (s *Store) Location(caseNo string) (*model.Location, bool) {
	l, ok := s.locations[caseNo]
	return l, ok
}

// Locations returns all resolved locations sorted by case number
func (s *Store) Locations() []*model.Location {
	out := make([]*model.Location, 0, len(s.locations))
	for _, caseNo := range sortedKeys(s.locations) {
		out = append(out, s.locations[caseNo])
	}
	return out
}

// SetLocation stores a resolved location and clears any skip mark
func (s *Store) SetLocation(loc *model.Location) error {
	if !s.Has(loc.CaseNo) {
		return fmt.Errorf("%w: %s", ErrUnknownCase, loc.CaseNo)
	}
	s.locations[loc.CaseNo] = loc
	delete(s.skipped, loc.CaseNo)
	return nil
}

// Skip marks caseNo as not geocodable so it leaves the pending queue
func (s *Store) Skip(caseNo string) error {
	if !s.Has(caseNo) {
		return fmt.Errorf("%w: %s", ErrUnknownCase, caseNo)
	}
	s.skipped[caseNo] = true
	return nil
}

// IsSkipped reports whether caseNo was marked as not geocodable
func (s *Store) IsSkipped(caseNo string) bool {
	return s.skipped[caseNo]
}

// Save writes every file atomically. Output is sorted by case number so
// an unchanged store produces identical bytes.
func (s *Store) Save() error {
	skip := sortedKeys(s.skipped)
	if skip == nil {
		skip = []string{}
	}

	files := []struct {
		name string
		v    any
	}{
		{ReportsFile, s.reports},
		{CurationFile, s.curation},
		{LocationsFile, s.locations},
		{SkipFile, skip},
		{HitAndRunFile, s.hitAndRun},
	}
	for _, f := range files {
		if err := writeJSON(filepath.Join(s.dir, f.name), f.v); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
