package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lnkbike/crashes/internal/curate"
	"github.com/lnkbike/crashes/internal/extract"
	"github.com/lnkbike/crashes/internal/model"
	"github.com/lnkbike/crashes/internal/normalize"
	"github.com/lnkbike/crashes/internal/source"
	"github.com/lnkbike/crashes/internal/store"
)

var fixtures = map[string]string{
	"B3063805.txt": completeReport,
	"B2035865.txt": "Case No: B2-035865\nDate: 03/04/2012\nLocation: 48TH & HOLDREGE\nNARRATIVE: The bike rider fell near the curb.",
	"B1000001.txt": "12 34 5678\n9999 1111",
	"B4000004.txt": "Case No: B4-000004\nDate: 05/06/2014\nLocation: 10TH & O\nNARRATIVE: Two cars collided.",
}

type env struct {
	docs  string
	data  string
	store *store.Store
	run   *Runner
}

func newEnv(t *testing.T, files map[string]string) *env {
	t.Helper()
	e := &env{docs: t.TempDir(), data: t.TempDir()}
	for name, text := range files {
		e.write(t, name, text)
	}
	e.reopen(t)
	return e
}

func (e *env) write(t *testing.T, name, text string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(e.docs, name), []byte(text), 0o644))
}

// reopen loads the store from disk as a fresh process would
func (e *env) reopen(t *testing.T) {
	t.Helper()
	s, err := store.Open(e.data, quietLogger())
	require.NoError(t, err)
	e.store = s
	p := NewPipeline(source.NewLoader(0), quietLogger())
	e.run = NewRunner(e.docs, s, p, curate.New(s, nil, quietLogger()), quietLogger())
}

func (e *env) readFile(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.data, name))
	require.NoError(t, err)
	return data
}

func TestRun_FirstRun(t *testing.T) {
	e := newEnv(t, fixtures)

	summary, err := e.run.Run(context.Background(), RunOptions{Workers: 2})
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 4, summary.Documents)
	assert.Equal(t, 4, summary.Queued)
	assert.Equal(t, 4, summary.Inserted)
	assert.Equal(t, []string{"B1-000001"}, summary.Unparseable)
	assert.Equal(t, []string{"B2-035865", "B3-063805"}, summary.Candidates.Added)
	assert.Equal(t, 2, summary.Candidates.Pending)
	assert.False(t, summary.Cancelled)

	rec, ok := e.store.Report("B3-063805")
	require.True(t, ok)
	assert.Equal(t, model.StatusComplete, rec.ParseStatus)
	assert.Equal(t, "B3063805.txt", rec.Filename)

	garbled, ok := e.store.Report("B1-000001")
	require.True(t, ok)
	assert.Equal(t, model.StatusUnparseable, garbled.ParseStatus)
	_, ok = e.store.Category("B1-000001")
	assert.False(t, ok, "unparseable records never become candidates")

	cat, ok := e.store.Category("B3-063805")
	require.True(t, ok)
	assert.Equal(t, model.CategoryUnclassified, cat)

	assert.FileExists(t, filepath.Join(e.data, store.ReportsFile))
	assert.FileExists(t, filepath.Join(e.data, store.CurationFile))
}

func TestRun_ParserPanicStaysInItsDocument(t *testing.T) {
	baseline := newEnv(t, fixtures)
	_, err := baseline.run.Run(context.Background(), RunOptions{Workers: 2})
	require.NoError(t, err)

	e := newEnv(t, fixtures)
	parsers := extract.DefaultParsers()
	parsers.Location = func(lines []normalize.Line) []extract.Candidate[string] {
		for _, l := range lines {
			if strings.Contains(l.Text, "27TH & VINE") {
				panic("index out of range")
			}
		}
		return extract.ParseLocation(lines)
	}
	p := NewPipeline(source.NewLoader(0), quietLogger()).WithParsers(parsers)
	e.run = NewRunner(e.docs, e.store, p, curate.New(e.store, nil, quietLogger()), quietLogger())

	summary, err := e.run.Run(context.Background(), RunOptions{Workers: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Inserted)
	assert.Equal(t, []string{"B1-000001"}, summary.Unparseable)

	for _, want := range baseline.store.Reports() {
		got, ok := e.store.Report(want.CaseNo)
		require.True(t, ok, want.CaseNo)
		if want.CaseNo != "B3-063805" {
			assert.Equal(t, want, got, "%s is unaffected by another document's failure", want.CaseNo)
			continue
		}

		assert.Nil(t, got.Location)
		assert.Equal(t, []string{model.FieldLocation}, got.UnparsedFields)
		require.Len(t, got.Problems, 1)
		assert.Contains(t, got.Problems[0], "location parser failed")

		// Everything else matches the clean run
		failed := *got
		failed.Location, failed.UnparsedFields, failed.Problems = want.Location, want.UnparsedFields, want.Problems
		assert.Equal(t, *want, failed)
	}
}

func TestRun_SecondRunIsNoOp(t *testing.T) {
	e := newEnv(t, fixtures)
	_, err := e.run.Run(context.Background(), RunOptions{Workers: 2})
	require.NoError(t, err)
	before := e.readFile(t, store.ReportsFile)

	e.reopen(t)
	summary, err := e.run.Run(context.Background(), RunOptions{Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Queued)
	assert.Equal(t, 4, summary.Skipped)
	assert.Equal(t, 0, summary.Inserted+summary.Updated)
	assert.Equal(t, before, e.readFile(t, store.ReportsFile))
}

func TestRun_WorkerCountDoesNotChangeOutput(t *testing.T) {
	files := make(map[string]string)
	for i := 1; i <= 40; i++ {
		files[fmt.Sprintf("B5%06d.txt", i)] = fmt.Sprintf("Case No: B5-%06d\nDate: 01/%02d/2014\nNARRATIVE: The bicycle number %d was struck.", i, i%28+1, i)
	}
	for name, text := range fixtures {
		files[name] = text
	}

	var outputs [][]byte
	var curations [][]byte
	for _, workers := range []int{1, 3, 16} {
		e := newEnv(t, files)
		_, err := e.run.Run(context.Background(), RunOptions{Workers: workers, CheckpointEvery: 7})
		require.NoError(t, err)
		outputs = append(outputs, e.readFile(t, store.ReportsFile))
		curations = append(curations, e.readFile(t, store.CurationFile))
	}
	for i := 1; i < len(outputs); i++ {
		assert.Equal(t, outputs[0], outputs[i])
		assert.Equal(t, curations[0], curations[i])
	}
}

func TestRun_ReparseKeepsCategory(t *testing.T) {
	e := newEnv(t, fixtures)
	_, err := e.run.Run(context.Background(), RunOptions{Workers: 2})
	require.NoError(t, err)

	require.NoError(t, e.store.SetCategory("B2-035865", model.CategoryRoad, false))
	require.NoError(t, e.store.Save())

	e.write(t, "B2035865.txt", "Case No: B2-035865\nDate: 03/04/2012\nLocation: 48TH & HOLDREGE ST\nInjury Severity: 4\nNARRATIVE: The rider fell near the curb.")
	e.reopen(t)

	summary, err := e.run.Run(context.Background(), RunOptions{Reparse: []string{"B2-035865"}, Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Queued)
	assert.Equal(t, 1, summary.Updated)

	rec, ok := e.store.Report("B2-035865")
	require.True(t, ok)
	require.NotNil(t, rec.InjurySeverity)
	assert.Equal(t, model.SeverityPossible, *rec.InjurySeverity)

	cat, ok := e.store.Category("B2-035865")
	require.True(t, ok)
	assert.Equal(t, model.CategoryRoad, cat, "classification survives the refreshed record")
	assert.Empty(t, summary.Candidates.Removed)
}

func TestRun_TargetedRunParsesOnlyTargets(t *testing.T) {
	e := newEnv(t, fixtures)
	_, err := e.run.Run(context.Background(), RunOptions{Workers: 2})
	require.NoError(t, err)

	e.write(t, "B6000006.txt", "Case No: B6-000006\nA cyclist fell.")
	summary, err := e.run.Run(context.Background(), RunOptions{Reparse: []string{"B3-063805"}, Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Queued)
	assert.False(t, e.store.Has("B6-000006"), "new documents wait for a plain run")

	summary, err = e.run.Run(context.Background(), RunOptions{Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Inserted)
	assert.True(t, e.store.Has("B6-000006"))
}

func TestRun_ReparseCurated(t *testing.T) {
	e := newEnv(t, fixtures)
	_, err := e.run.Run(context.Background(), RunOptions{Workers: 2})
	require.NoError(t, err)

	require.NoError(t, e.store.SetCategory("B3-063805", model.CategoryCrosswalk, false))
	require.NoError(t, e.store.SetCategory("B2-035865", model.CategoryNotInvolved, false))

	summary, err := e.run.Run(context.Background(), RunOptions{ReparseCurated: true, Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Queued)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 3, summary.Skipped)
}

func TestRun_ReparseCuratedWithNothingCurated(t *testing.T) {
	e := newEnv(t, map[string]string{"B3063805.txt": completeReport})
	_, err := e.run.Run(context.Background(), RunOptions{Workers: 2})
	require.NoError(t, err)
	require.Equal(t, 1, e.store.Len())

	e.write(t, "B2035865.txt", fixtures["B2035865.txt"])

	summary, err := e.run.Run(context.Background(), RunOptions{ReparseCurated: true, Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Queued)
	assert.Equal(t, 0, summary.Inserted)
	assert.Equal(t, 2, summary.Skipped)
	assert.False(t, e.store.Has("B2-035865"), "a curated reparse never picks up new documents")
}

func TestRun_ReparseAll(t *testing.T) {
	e := newEnv(t, fixtures)
	_, err := e.run.Run(context.Background(), RunOptions{Workers: 2})
	require.NoError(t, err)

	summary, err := e.run.Run(context.Background(), RunOptions{ReparseAll: true, Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Queued)
	assert.Equal(t, 4, summary.Updated)
}

func TestRun_MissingTarget(t *testing.T) {
	e := newEnv(t, fixtures)
	summary, err := e.run.Run(context.Background(), RunOptions{Reparse: []string{"B9-999999"}, Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"B9-999999"}, summary.Missing)
	assert.Equal(t, 0, summary.Queued)
}

func TestRun_Prune(t *testing.T) {
	e := newEnv(t, fixtures)
	_, err := e.run.Run(context.Background(), RunOptions{Workers: 2})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(e.docs, "B4000004.txt")))

	summary, err := e.run.Run(context.Background(), RunOptions{Workers: 2})
	require.NoError(t, err)
	assert.Empty(t, summary.Pruned)
	assert.True(t, e.store.Has("B4-000004"), "records outlive their documents unless pruning")

	summary, err = e.run.Run(context.Background(), RunOptions{Prune: true, Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"B4-000004"}, summary.Pruned)
	assert.False(t, e.store.Has("B4-000004"))
}

func TestRun_Cancelled(t *testing.T) {
	e := newEnv(t, fixtures)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := e.run.Run(ctx, RunOptions{Workers: 2, Prune: true})
	require.NoError(t, err)
	assert.True(t, summary.Cancelled)
	assert.Equal(t, 0, e.store.Len())
	assert.FileExists(t, filepath.Join(e.data, store.ReportsFile))

	summary, err = e.run.Run(context.Background(), RunOptions{Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Inserted, "abandoned documents are picked up next time")
}

func TestRun_MissingDocumentsDir(t *testing.T) {
	e := newEnv(t, nil)
	e.run.docsDir = filepath.Join(e.docs, "nope")
	_, err := e.run.Run(context.Background(), RunOptions{Workers: 1})
	assert.Error(t, err)
}
