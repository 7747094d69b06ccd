package curate

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lnkbike/crashes/internal/model"
	"github.com/lnkbike/crashes/internal/store"
)

func hitAndRunStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir(), quietLogger())
	require.NoError(t, err)

	add := func(caseNo string, hitAndRun bool, cat model.Category) {
		s.Merge(&model.Report{CaseNo: caseNo, ReportText: "bicycle", HitAndRun: hitAndRun, ParseStatus: model.StatusPartial}, false)
		if cat == "" {
			return
		}
		s.EnsureCandidate(caseNo)
		if cat != model.CategoryUnclassified {
			require.NoError(t, s.SetCategory(caseNo, cat, false))
		}
	}
	add("B1-000001", true, model.CategoryRoad)
	add("B2-000002", true, model.CategoryNotInvolved)
	add("B3-000003", true, model.CategoryUnclassified)
	add("B4-000004", false, model.CategorySidewalk)
	add("B5-000005", true, model.CategoryCrosswalk)
	add("B6-000006", true, "")
	return s
}

func TestHitAndRunSync(t *testing.T) {
	s := hitAndRunStore(t)
	h := NewHitAndRun(s, quietLogger())

	summary := h.Sync()
	assert.Equal(t, []string{"B1-000001", "B5-000005"}, summary.Added)
	assert.Equal(t, 2, summary.Pending)

	again := h.Sync()
	assert.Empty(t, again.Added)
	assert.Empty(t, again.Removed)
}

func TestHitAndRunSyncKeepsReviewedEntries(t *testing.T) {
	s := hitAndRunStore(t)
	h := NewHitAndRun(s, quietLogger())
	h.Sync()
	require.NoError(t, h.Record("B1-000001", model.HitAndRunCyclist, false))

	// Both stop qualifying after a reclassification
	require.NoError(t, s.SetCategory("B1-000001", model.CategoryNotInvolved, true))
	require.NoError(t, s.SetCategory("B5-000005", model.CategoryNotInvolved, true))

	summary := h.Sync()
	assert.Equal(t, []string{"B5-000005"}, summary.Removed)
	st, ok := s.HitAndRunStatus("B1-000001")
	assert.True(t, ok)
	assert.Equal(t, model.HitAndRunCyclist, st)
}

func TestHitAndRunRecord(t *testing.T) {
	s := hitAndRunStore(t)
	h := NewHitAndRun(s, quietLogger())
	h.Sync()

	assert.ErrorIs(t, h.Record("B9-999999", model.HitAndRunDriver, false), store.ErrUnknownCase)
	assert.ErrorContains(t, h.Record("B4-000004", model.HitAndRunDriver, false), "not a classified bicycle hit-and-run")
	assert.ErrorContains(t, h.Record("B2-000002", model.HitAndRunDriver, false), "not a classified bicycle hit-and-run")

	require.NoError(t, h.Record("B1-000001", model.HitAndRunDriver, false))
	assert.ErrorIs(t, h.Record("B1-000001", model.HitAndRunBoth, false), model.ErrInvalidTransition)
	require.NoError(t, h.Record("B1-000001", model.HitAndRunBoth, true))

	assert.Equal(t, map[model.HitAndRunStatus]int{
		model.HitAndRunBoth:       1,
		model.HitAndRunUnreviewed: 1,
	}, h.Counts())
}

func TestHitAndRunReview(t *testing.T) {
	s := hitAndRunStore(t)
	h := NewHitAndRun(s, quietLogger())
	h.Sync()

	saves := 0
	var out bytes.Buffer
	r := NewHitAndRunReviewer(h, func() error { saves++; return nil }, strings.NewReader("z\n\nc\n"), &out)

	summary, err := r.Review(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, ReviewSummary{Classified: 2}, summary)
	assert.Equal(t, 2, saves)

	st, _ := s.HitAndRunStatus("B1-000001")
	assert.Equal(t, model.HitAndRunDriver, st, "Enter takes the default")
	st, _ = s.HitAndRunStatus("B5-000005")
	assert.Equal(t, model.HitAndRunCyclist, st)

	assert.Contains(t, out.String(), "default=D")
	assert.Contains(t, out.String(), "U: The report does not say who left", "invalid input prints help")
}

func TestHitAndRunReviewSkipAndQuit(t *testing.T) {
	s := hitAndRunStore(t)
	h := NewHitAndRun(s, quietLogger())
	h.Sync()

	var out bytes.Buffer
	summary, err := NewHitAndRunReviewer(h, func() error { return nil }, strings.NewReader("k\nq\n"), &out).Review(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, ReviewSummary{Skipped: 1, Quit: true}, summary)
	assert.Len(t, h.Pending(0), 2)
}
