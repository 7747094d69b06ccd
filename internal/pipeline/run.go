package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lnkbike/crashes/internal/curate"
	"github.com/lnkbike/crashes/internal/model"
	"github.com/lnkbike/crashes/internal/source"
	"github.com/lnkbike/crashes/internal/store"
	"github.com/lnkbike/crashes/internal/worker"
)

// RunOptions selects which documents a run parses
type RunOptions struct {
	Reparse         []string // Case numbers to parse again, overwriting their records
	ReparseCurated  bool     // Parse again every record classified as bicycle-involved
	ReparseAll      bool     // Parse every document again
	Prune           bool     // Drop records whose document is gone
	Workers         int      // Parallel parse workers
	CheckpointEvery int      // Save after this many merges (0 = only at the end)
}

// targeted reports whether the run is restricted to chosen case numbers,
// even when that choice turns out to be empty
func (o RunOptions) targeted() bool {
	return !o.ReparseAll && (len(o.Reparse) > 0 || o.ReparseCurated)
}

// Runner drives one parse run: discover documents, parse the ones that
// need it in parallel, merge results on the calling goroutine and sync the
// curation queue
type Runner struct {
	docsDir   string
	store     *store.Store
	processor worker.Processor
	curator   *curate.Curator
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewRunner creates a runner over the given documents directory and store
func NewRunner(docsDir string, s *store.Store, processor worker.Processor, curator *curate.Curator, log logrus.FieldLogger) *Runner {
	return &Runner{
		docsDir:   docsDir,
		store:     s,
		processor: processor,
		curator:   curator,
		log:       log,
		now:       time.Now,
	}
}

// Run parses new and targeted documents and merges them into the store.
// Cancelling ctx stops the run between documents; everything merged so far
// is saved.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*model.RunSummary, error) {
	started := r.now()
	summary := model.NewRunSummary(uuid.NewString(), started)
	log := r.log.WithField("run_id", summary.RunID)

	docs, err := source.Discover(r.docsDir, log)
	if err != nil {
		return nil, err
	}
	summary.Documents = len(docs)

	targets := r.targets(opts)
	queue, skipped := r.plan(docs, targets, opts)
	summary.Skipped = skipped
	summary.Queued = len(queue)
	summary.Missing = missingTargets(docs, targets)
	for _, caseNo := range summary.Missing {
		log.WithField("case_no", caseNo).Warn("No document for requested case")
	}

	log.WithFields(logrus.Fields{
		"documents": len(docs),
		"queued":    len(queue),
		"workers":   opts.Workers,
	}).Info("Starting parse run")

	merged := 0
	var saveErr error
	batch := worker.NewBatchProcessor(r.processor, opts.Workers)
	batch.ProcessDocuments(ctx, queue, func(res *worker.ParseResult) {
		if res.Error != nil {
			// Only cancellation reaches here; the document stays queued for the next run
			log.WithField("case_no", res.Doc.CaseNo).Debugf("Parse abandoned: %v", res.Error)
			return
		}
		rec := res.Report
		reparse := opts.ReparseAll || targets[rec.CaseNo]
		switch r.store.Merge(rec, reparse) {
		case store.MergeInserted:
			summary.Inserted++
		case store.MergeUpdated:
			summary.Updated++
		case store.MergeSkipped:
			summary.Skipped++
		}
		summary.ByStatus[rec.ParseStatus]++
		if rec.ParseStatus == model.StatusUnparseable {
			summary.Unparseable = append(summary.Unparseable, rec.CaseNo)
			log.WithField("case_no", rec.CaseNo).Warn("Document could not be parsed")
		} else if len(rec.UnparsedFields) > 0 {
			summary.Unparsed[rec.CaseNo] = rec.UnparsedFields
		}

		merged++
		if opts.CheckpointEvery > 0 && merged%opts.CheckpointEvery == 0 && saveErr == nil {
			if err := r.store.Save(); err != nil {
				saveErr = err
				return
			}
			log.WithField("merged", merged).Debug("Checkpoint saved")
		}
	})
	if saveErr != nil {
		return nil, fmt.Errorf("checkpoint: %w", saveErr)
	}

	if ctx.Err() != nil {
		summary.Cancelled = true
		log.WithField("merged", merged).Warn("Run interrupted, saving merged records")
	}

	if opts.Prune && !summary.Cancelled {
		keep := make(map[string]bool, len(docs))
		for _, d := range docs {
			keep[d.CaseNo] = true
		}
		summary.Pruned = r.store.Prune(keep)
	}

	summary.Candidates = r.curator.Sync()

	if err := r.store.Save(); err != nil {
		return nil, fmt.Errorf("save store: %w", err)
	}

	sort.Strings(summary.Unparseable)
	summary.Duration = r.now().Sub(started)
	log.WithFields(logrus.Fields{
		"inserted":    summary.Inserted,
		"updated":     summary.Updated,
		"skipped":     summary.Skipped,
		"unparseable": len(summary.Unparseable),
		"duration":    summary.Duration.Round(time.Millisecond),
	}).Info("Parse run finished")

	return summary, nil
}

// targets collects the case numbers whose records should be overwritten
func (r *Runner) targets(opts RunOptions) map[string]bool {
	targets := make(map[string]bool)
	for _, caseNo := range opts.Reparse {
		targets[caseNo] = true
	}
	if opts.ReparseCurated {
		for caseNo, cat := range r.store.Curation() {
			if cat.BicycleInvolved() {
				targets[caseNo] = true
			}
		}
	}
	return targets
}

// plan picks the documents to parse. A targeted run parses only the
// targets, and nothing when there are none; otherwise only documents not
// yet in the store are parsed. It returns the queue and how many were left
// alone.
func (r *Runner) plan(docs []source.Document, targets map[string]bool, opts RunOptions) ([]source.Document, int) {
	var queue []source.Document
	skipped := 0
	for _, d := range docs {
		var want bool
		switch {
		case opts.ReparseAll:
			want = true
		case opts.targeted():
			want = targets[d.CaseNo]
		default:
			want = !r.store.Has(d.CaseNo)
		}
		if want {
			queue = append(queue, d)
		} else {
			skipped++
		}
	}
	return queue, skipped
}

func missingTargets(docs []source.Document, targets map[string]bool) []string {
	present := make(map[string]bool, len(docs))
	for _, d := range docs {
		present[d.CaseNo] = true
	}
	var missing []string
	for caseNo := range targets {
		if !present[caseNo] {
			missing = append(missing, caseNo)
		}
	}
	sort.Strings(missing)
	return missing
}
