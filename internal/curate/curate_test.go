package curate

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lnkbike/crashes/internal/llm"
	"github.com/lnkbike/crashes/internal/model"
	"github.com/lnkbike/crashes/internal/store"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newStore(t *testing.T, texts map[string]string) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir(), quietLogger())
	require.NoError(t, err)
	for caseNo, text := range texts {
		status := model.StatusPartial
		if text == "" {
			status = model.StatusUnparseable
		}
		s.Merge(&model.Report{CaseNo: caseNo, ReportText: text, ParseStatus: status}, false)
	}
	return s
}

func TestIsCandidate(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"A BICYCLE was struck", true},
		{"the bike rider fell", true},
		{"Bicyclist northbound", true},
		{"cyclist stated", true},
		{"two motorbikes collided", true},
		{"pedestrian in crosswalk", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsCandidate(tt.text), tt.text)
	}
}

func TestHighlight(t *testing.T) {
	got := Highlight("Bicycle in the crosswalk", func(s string) string { return "[" + s + "]" })
	assert.Equal(t, "[Bicycle] in the [crosswalk]", got)
}

func TestSyncAddsCandidates(t *testing.T) {
	s := newStore(t, map[string]string{
		"B3-063805": "A bicycle was struck",
		"B2-035865": "Two cars collided",
		"B1-000001": "",
	})
	c := New(s, nil, quietLogger())

	summary := c.Sync()
	assert.Equal(t, []string{"B3-063805"}, summary.Added)
	assert.Empty(t, summary.Removed)
	assert.Equal(t, 1, summary.Pending)

	cat, ok := s.Category("B3-063805")
	require.True(t, ok)
	assert.Equal(t, model.CategoryUnclassified, cat)
	_, ok = s.Category("B1-000001")
	assert.False(t, ok, "unparseable records are not candidates")

	again := c.Sync()
	assert.Empty(t, again.Added, "second sync is a no-op")
	assert.Equal(t, 1, again.Pending)
}

func TestSyncKeepsClassifiedEntries(t *testing.T) {
	s := newStore(t, map[string]string{"B2-035865": "The bike rider fell"})
	c := New(s, nil, quietLogger())
	c.Sync()
	require.NoError(t, c.Classify("B2-035865", model.CategoryRoad, false))

	// A reparse changes the narrative so it no longer mentions a bicycle
	s.Merge(&model.Report{CaseNo: "B2-035865", ReportText: "garbled", ParseStatus: model.StatusPartial}, true)
	summary := c.Sync()

	assert.Empty(t, summary.Removed)
	cat, _ := s.Category("B2-035865")
	assert.Equal(t, model.CategoryRoad, cat)
}

func TestSyncRemovesStaleUnclassified(t *testing.T) {
	s := newStore(t, map[string]string{"B2-035865": "The bike rider fell"})
	c := New(s, nil, quietLogger())
	c.Sync()

	s.Merge(&model.Report{CaseNo: "B2-035865", ReportText: "two cars", ParseStatus: model.StatusPartial}, true)
	summary := c.Sync()

	assert.Equal(t, []string{"B2-035865"}, summary.Removed)
	assert.Equal(t, 0, summary.Pending)
}

func TestPendingOrderAndLimit(t *testing.T) {
	s := newStore(t, map[string]string{
		"B3-000003": "bike",
		"B1-000001": "bike",
		"B2-000002": "bike",
	})
	c := New(s, nil, quietLogger())
	c.Sync()
	require.NoError(t, c.Classify("B1-000001", model.CategoryElsewhere, false))

	var got []string
	for _, r := range c.Pending(0) {
		got = append(got, r.CaseNo)
	}
	assert.Equal(t, []string{"B2-000002", "B3-000003"}, got)
	assert.Len(t, c.Pending(1), 1)

	counts := c.Counts()
	assert.Equal(t, 2, counts[model.CategoryUnclassified])
	assert.Equal(t, 1, counts[model.CategoryElsewhere])
}

func TestClassifyRequiresForceToChange(t *testing.T) {
	s := newStore(t, map[string]string{"B3-063805": "bicycle"})
	c := New(s, nil, quietLogger())
	c.Sync()

	require.NoError(t, c.Classify("B3-063805", model.CategoryCrosswalk, false))
	assert.ErrorIs(t, c.Classify("B3-063805", model.CategoryRoad, false), model.ErrInvalidTransition)
	require.NoError(t, c.Classify("B3-063805", model.CategoryRoad, true))
	assert.ErrorIs(t, c.Classify("B9-000009", model.CategoryRoad, false), store.ErrUnknownCase)
}

// fakeSuggester implements llm.Provider
type fakeSuggester struct {
	category model.Category
	err      error
}

func (f *fakeSuggester) Name() string                     { return "fake" }
func (f *fakeSuggester) IsAvailable(context.Context) bool { return true }
func (f *fakeSuggester) Suggest(ctx context.Context, req llm.SuggestRequest) (*llm.SuggestResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.SuggestResponse{Category: f.category}, nil
}

func TestSuggest(t *testing.T) {
	s := newStore(t, map[string]string{"B3-063805": "bicycle"})
	rec, _ := s.Report("B3-063805")

	_, ok := New(s, nil, quietLogger()).Suggest(context.Background(), rec)
	assert.False(t, ok)

	cat, ok := New(s, &fakeSuggester{category: model.CategorySidewalk}, quietLogger()).Suggest(context.Background(), rec)
	assert.True(t, ok)
	assert.Equal(t, model.CategorySidewalk, cat)

	_, ok = New(s, &fakeSuggester{err: errors.New("down")}, quietLogger()).Suggest(context.Background(), rec)
	assert.False(t, ok)
}

func TestReview(t *testing.T) {
	s := newStore(t, map[string]string{
		"B1-000001": "bicycle in crosswalk",
		"B2-000002": "bike on sidewalk",
		"B3-000003": "cyclist on road",
	})
	c := New(s, nil, quietLogger())
	c.Sync()

	saves := 0
	in := strings.NewReader("x\nc\nk\nr\n")
	var out bytes.Buffer
	r := NewReviewer(c, func() error { saves++; return nil }, in, &out)

	summary, err := r.Review(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, ReviewSummary{Classified: 2, Skipped: 1}, summary)
	assert.Equal(t, 2, saves)

	cat, _ := s.Category("B1-000001")
	assert.Equal(t, model.CategoryCrosswalk, cat)
	cat, _ = s.Category("B2-000002")
	assert.Equal(t, model.CategoryUnclassified, cat)
	cat, _ = s.Category("B3-000003")
	assert.Equal(t, model.CategoryRoad, cat)

	assert.Contains(t, out.String(), "C: Cyclist was in a crosswalk", "invalid input prints help")
	assert.Contains(t, out.String(), "*bicycle* in *crosswalk*")
}

func TestReviewQuitAndDefault(t *testing.T) {
	s := newStore(t, map[string]string{
		"B1-000001": "bicycle",
		"B2-000002": "bicycle",
	})
	c := New(s, &fakeSuggester{category: model.CategoryIntersection}, quietLogger())
	c.Sync()

	var out bytes.Buffer
	r := NewReviewer(c, func() error { return nil }, strings.NewReader("\nq\n"), &out)

	summary, err := r.Review(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, summary.Quit)
	assert.Equal(t, 1, summary.Classified)
	assert.Contains(t, out.String(), "default=I")

	cat, _ := s.Category("B1-000001")
	assert.Equal(t, model.CategoryIntersection, cat)
	cat, _ = s.Category("B2-000002")
	assert.Equal(t, model.CategoryUnclassified, cat)
}

func TestReviewEndOfInput(t *testing.T) {
	s := newStore(t, map[string]string{"B1-000001": "bicycle"})
	c := New(s, nil, quietLogger())
	c.Sync()

	var out bytes.Buffer
	summary, err := NewReviewer(c, func() error { return nil }, strings.NewReader(""), &out).Review(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, summary.Quit)
}

func TestReviewNothingPending(t *testing.T) {
	s := newStore(t, nil)
	var out bytes.Buffer
	summary, err := NewReviewer(New(s, nil, quietLogger()), func() error { return nil }, strings.NewReader(""), &out).Review(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, ReviewSummary{}, summary)
	assert.Contains(t, out.String(), "Nothing to review")
}

func TestWrap(t *testing.T) {
	assert.Equal(t, "aaa bbb\nccc", wrap("aaa bbb ccc", 7))
	assert.Equal(t, "", wrap("", 10))
}
