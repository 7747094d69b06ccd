package export

import (
	"context"
	"database/sql"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/lnkbike/crashes/internal/model"
	"github.com/lnkbike/crashes/internal/store"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir(), quietLogger())
	require.NoError(t, err)

	date, _ := model.NewDate(2013, 6, 14)
	sev := model.SeverityVisible
	region := model.RegionShoulderUpperArm
	female := model.GenderFemale
	s.Merge(&model.Report{
		CaseNo:         "B3-063805",
		Filename:       "B3063805.PDF",
		Date:           &date,
		Time:           &model.Clock{Hour: 14, Minute: 35},
		Location:       model.StringPtr("27TH & VINE"),
		ReportText:     "Bicyclist was struck in the crosswalk.",
		InjurySeverity: &sev,
		InjuryRegion:   &region,
		CyclistGender:  &female,
		HitAndRun:      true,
		ParseStatus:    model.StatusComplete,
	}, false)
	s.Merge(&model.Report{
		CaseNo:      "B1-000001",
		Filename:    "B1000001.PDF",
		ParseStatus: model.StatusUnparseable,
	}, false)

	s.EnsureCandidate("B3-063805")
	require.NoError(t, s.SetCategory("B3-063805", model.CategoryCrosswalk, false))
	require.NoError(t, s.SetHitAndRunStatus("B3-063805", model.HitAndRunDriver, false))
	require.NoError(t, s.SetLocation(&model.Location{
		CaseNo:           "B3-063805",
		Latitude:         40.8276,
		Longitude:        -96.6743,
		SourceText:       "27TH & VINE",
		Address:          "27th & Vine, Lincoln",
		ResolutionMethod: model.ResolutionAutomatic,
	}))
	return s
}

func TestBuild(t *testing.T) {
	d, err := Build(context.Background(), testStore(t))
	require.NoError(t, err)

	require.Len(t, d.Collisions.Rows, 2)
	assert.Len(t, d.Collisions.Columns, len(d.Collisions.Rows[0]))

	// Sorted by case number
	assert.Equal(t, "B1-000001", d.Collisions.Rows[0][0])
	unparseable := d.Collisions.Rows[0]
	assert.Nil(t, unparseable[2], "missing date is null")
	assert.Nil(t, unparseable[5], "missing severity is null")
	assert.Nil(t, unparseable[9], "missing gender is null")
	assert.Equal(t, false, unparseable[10])
	assert.Equal(t, "unparseable", unparseable[11])

	complete := d.Collisions.Rows[1]
	assert.Equal(t, "2013-06-14", complete[2])
	assert.Equal(t, "14:35", complete[3])
	assert.Equal(t, 3, complete[5])
	assert.Equal(t, "shoulder_upper_arm", complete[6])
	assert.Equal(t, "F", complete[9])
	assert.Equal(t, true, complete[10])

	assert.Equal(t, [][]any{{"B3-063805", "crosswalk", "driver"}}, d.Curation.Rows)
	require.Len(t, d.Locations.Rows, 1)
	assert.Equal(t, 40.8276, d.Locations.Rows[0][1])
}

func TestBuild_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, testStore(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteWorkbook(t *testing.T) {
	s := testStore(t)
	long := strings.Repeat("x", maxCellChars+10)
	s.Merge(&model.Report{CaseNo: "B9-999999", Filename: "B9999999.PDF", ReportText: long, ParseStatus: model.StatusPartial}, false)

	path := filepath.Join(t.TempDir(), "out", "crashes.xlsx")
	require.NoError(t, WriteWorkbook(context.Background(), path, s, quietLogger()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{"Collisions", "Curation", "Locations"}, f.GetSheetList())

	rows, err := f.GetRows("Collisions")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "case_no", rows[0][0])
	assert.Equal(t, "B3-063805", rows[2][0])
	assert.Equal(t, "2013-06-14", rows[2][2])
	assert.Len(t, rows[3][12], maxCellChars, "long narratives are clipped")

	rows, err = f.GetRows("Curation")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"case_no", "category", "hit_and_run_status"}, {"B3-063805", "crosswalk", "driver"}}, rows)
}

func TestWriteSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crashes.db")
	s := testStore(t)

	// A second export replaces the first instead of failing on existing tables
	require.NoError(t, WriteSQLite(context.Background(), path, s, quietLogger()))
	require.NoError(t, WriteSQLite(context.Background(), path, s, quietLogger()))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM collision`).Scan(&n))
	assert.Equal(t, 2, n)

	var date sql.NullString
	var severity sql.NullInt64
	require.NoError(t, db.QueryRow(`SELECT date, injury_severity FROM collision WHERE case_no = ?`, "B1-000001").Scan(&date, &severity))
	assert.False(t, date.Valid)
	assert.False(t, severity.Valid)

	var category, hitAndRun string
	var lat float64
	require.NoError(t, db.QueryRow(`
		SELECT c.category, c.hit_and_run_status, l.latitude
		FROM curation c JOIN location l ON l.case_no = c.case_no
		WHERE c.case_no = ?`, "B3-063805").Scan(&category, &hitAndRun, &lat))
	assert.Equal(t, "crosswalk", category)
	assert.Equal(t, "driver", hitAndRun)
	assert.InDelta(t, 40.8276, lat, 1e-9)
}
