// Package export writes the dataset as tables for spreadsheet and SQL
// consumers. The JSON files in the data directory remain the source of
// truth; exports are rebuilt from scratch on every call.
package export

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/lnkbike/crashes/internal/model"
	"github.com/lnkbike/crashes/internal/store"
)

// Table is one sheet or SQL table. Null values are nil.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// Dataset holds every exported table
type Dataset struct {
	Collisions Table
	Curation   Table
	Locations  Table
}

// Tables returns the tables in output order
func (d *Dataset) Tables() []Table {
	return []Table{d.Collisions, d.Curation, d.Locations}
}

// Build snapshots the store and converts it to tables. The store is read
// on the caller's goroutine; rows are built concurrently from the snapshot.
func Build(ctx context.Context, s *store.Store) (*Dataset, error) {
	reports := s.Reports()
	curation := s.Curation()
	hitAndRun := s.HitAndRun()
	locations := s.Locations()

	d := &Dataset{}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.Collisions = collisionTable(reports)
		return ctx.Err()
	})
	g.Go(func() error {
		d.Curation = curationTable(reports, curation, hitAndRun)
		return ctx.Err()
	})
	g.Go(func() error {
		d.Locations = locationTable(locations)
		return ctx.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}

func collisionTable(reports []*model.Report) Table {
	t := Table{
		Name: "collision",
		Columns: []string{
			"case_no", "filename", "date", "time", "location", "injury_severity",
			"injury_region", "cyclist_dob", "cyclist_initials", "cyclist_gender",
			"hit_and_run", "parse_status", "report_text",
		},
		Rows: make([][]any, 0, len(reports)),
	}
	for _, r := range reports {
		t.Rows = append(t.Rows, []any{
			r.CaseNo,
			r.Filename,
			date(r.Date),
			clock(r.Time),
			text(r.Location),
			severity(r.InjurySeverity),
			region(r.InjuryRegion),
			date(r.CyclistDOB),
			text(r.CyclistInitials),
			gender(r.CyclistGender),
			r.HitAndRun,
			string(r.ParseStatus),
			r.ReportText,
		})
	}
	return t
}

// curationTable follows report order so the sheet lines up with collisions.
// hit_and_run_status is null for cases outside the hit-and-run review.
func curationTable(reports []*model.Report, curation map[string]model.Category, hitAndRun map[string]model.HitAndRunStatus) Table {
	t := Table{
		Name:    "curation",
		Columns: []string{"case_no", "category", "hit_and_run_status"},
		Rows:    make([][]any, 0, len(curation)),
	}
	for _, r := range reports {
		cat, ok := curation[r.CaseNo]
		if !ok {
			continue
		}
		var status any
		if st, ok := hitAndRun[r.CaseNo]; ok {
			status = string(st)
		}
		t.Rows = append(t.Rows, []any{r.CaseNo, string(cat), status})
	}
	return t
}

func locationTable(locations []*model.Location) Table {
	t := Table{
		Name: "location",
		Columns: []string{
			"case_no", "latitude", "longitude", "source_text", "address",
			"resolution_method", "out_of_bounds",
		},
		Rows: make([][]any, 0, len(locations)),
	}
	for _, l := range locations {
		t.Rows = append(t.Rows, []any{
			l.CaseNo,
			l.Latitude,
			l.Longitude,
			l.SourceText,
			l.Address,
			string(l.ResolutionMethod),
			l.OutOfBounds,
		})
	}
	return t
}

func text(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func date(d *model.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func clock(c *model.Clock) any {
	if c == nil {
		return nil
	}
	return c.String()
}

func severity(s *model.Severity) any {
	if s == nil {
		return nil
	}
	return int(*s)
}

func gender(g *model.Gender) any {
	if g == nil {
		return nil
	}
	return string(*g)
}

func region(r *model.InjuryRegion) any {
	if r == nil {
		return nil
	}
	return string(*r)
}
