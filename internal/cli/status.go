package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lnkbike/crashes/internal/curate"
	"github.com/lnkbike/crashes/internal/geocode"
	"github.com/lnkbike/crashes/internal/model"
	"github.com/lnkbike/crashes/internal/store"
)

var statusJSON bool

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show dataset counts and the cases that need an operator",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print as JSON")
}

// datasetStatus is the operator's to-do list
type datasetStatus struct {
	Reports      int                       `json:"reports"`
	ByStatus     map[model.ParseStatus]int `json:"by_status"`
	ByCategory   map[model.Category]int    `json:"by_category"`
	Located      int                       `json:"located"`
	OutOfBounds  []string                  `json:"out_of_bounds"`
	Unparseable  []string                  `json:"unparseable"`
	Unclassified []string                  `json:"unclassified"`
	HitAndRun    []string                  `json:"hit_and_run_unreviewed"`
	Ungeocoded   []string                  `json:"ungeocoded"`
	Skipped      []string                  `json:"skipped"`
}

func buildStatus(s *store.Store, cfg *model.Config, log logrus.FieldLogger) *datasetStatus {
	st := &datasetStatus{
		Reports:      s.Len(),
		ByStatus:     make(map[model.ParseStatus]int),
		OutOfBounds:  []string{},
		Unparseable:  []string{},
		Unclassified: []string{},
		HitAndRun:    []string{},
		Ungeocoded:   []string{},
		Skipped:      []string{},
	}
	for _, rec := range s.Reports() {
		st.ByStatus[rec.ParseStatus]++
		if rec.ParseStatus == model.StatusUnparseable {
			st.Unparseable = append(st.Unparseable, rec.CaseNo)
		}
	}

	curator := curate.New(s, nil, log)
	st.ByCategory = curator.Counts()
	for _, rec := range curator.Pending(0) {
		st.Unclassified = append(st.Unclassified, rec.CaseNo)
	}

	// Not synced here: status never writes, so an entry only appears once
	// curate or hitnrun has run
	for _, rec := range curate.NewHitAndRun(s, log).Pending(0) {
		st.HitAndRun = append(st.HitAndRun, rec.CaseNo)
	}

	for _, loc := range s.Locations() {
		if cat, ok := s.Category(loc.CaseNo); !ok || !cat.BicycleInvolved() {
			continue
		}
		st.Located++
		if loc.OutOfBounds {
			st.OutOfBounds = append(st.OutOfBounds, loc.CaseNo)
		}
	}

	r := geocode.NewResolver(s, nil, cfg.Geocode, log)
	for _, p := range r.Pending(true) {
		if _, located := s.Location(p.Report.CaseNo); located {
			continue
		}
		if p.Skipped {
			st.Skipped = append(st.Skipped, p.Report.CaseNo)
		} else {
			st.Ungeocoded = append(st.Ungeocoded, p.Report.CaseNo)
		}
	}
	return st
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	st := buildStatus(a.store, a.cfg, a.log)

	if statusJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	printStatus(cmd.OutOrStdout(), st, a.cfg.Paths.Data)
	return nil
}

func printStatus(w io.Writer, st *datasetStatus, dataDir string) {
	banner(w, "Dataset Status")

	fmt.Fprintf(w, "  Data dir:     %s\n", dataDir)
	fmt.Fprintf(w, "  Reports:      %d (%d complete, %d partial, %d unparseable)\n", st.Reports,
		st.ByStatus[model.StatusComplete], st.ByStatus[model.StatusPartial], st.ByStatus[model.StatusUnparseable])
	fmt.Fprintf(w, "  Candidates:   %d unclassified\n", st.ByCategory[model.CategoryUnclassified])
	for _, cat := range model.Categories {
		fmt.Fprintf(w, "    %-14s %d\n", cat, st.ByCategory[cat])
	}
	fmt.Fprintf(w, "  Located:      %d\n", st.Located)
	fmt.Fprintln(w)

	lists := []struct {
		label string
		items []string
		next  string
	}{
		{"Unparseable", st.Unparseable, "crashes parse --reparse <case>"},
		{"Unclassified", st.Unclassified, "crashes curate"},
		{"Hit-and-run unreviewed", st.HitAndRun, "crashes hitnrun"},
		{"Ungeocoded", st.Ungeocoded, "crashes geocode"},
		{"Skipped", st.Skipped, "crashes geocode --force"},
		{"Out of bounds", st.OutOfBounds, "crashes geocode set <case>"},
	}
	clean := true
	for _, l := range lists {
		if len(l.items) == 0 {
			continue
		}
		clean = false
		fmt.Fprintf(w, "✗ %s (%d): %s\n    → %s\n", l.label, len(l.items), joinLimited(l.items, 8), l.next)
	}
	if clean {
		fmt.Fprintln(w, "✓ Nothing needs attention")
	}
	fmt.Fprintln(w)
}
