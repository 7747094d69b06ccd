package curate

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lnkbike/crashes/internal/model"
	"github.com/lnkbike/crashes/internal/store"
)

// DefaultHitAndRunStatus is offered when the operator just presses Enter
const DefaultHitAndRunStatus = model.HitAndRunDriver

// HitAndRun maintains the queue of bicycle crashes where somebody left the
// scene and records who it was
type HitAndRun struct {
	store *store.Store
	log   logrus.FieldLogger
}

func NewHitAndRun(s *store.Store, log logrus.FieldLogger) *HitAndRun {
	return &HitAndRun{store: s, log: log}
}

// IsHitAndRunCandidate reports whether rec needs a hit-and-run review: the
// report was flagged as a hit-and-run and an operator confirmed a cyclist
// was involved
func (h *HitAndRun) IsHitAndRunCandidate(rec *model.Report) bool {
	if !rec.HitAndRun {
		return false
	}
	cat, ok := h.store.Category(rec.CaseNo)
	return ok && cat != model.CategoryUnclassified && cat != model.CategoryNotInvolved
}

// Sync adds an entry for every candidate and drops unreviewed entries that
// no longer qualify. Reviewed entries are never touched.
func (h *HitAndRun) Sync() model.CandidateSyncSummary {
	var summary model.CandidateSyncSummary
	for _, rec := range h.store.Reports() {
		if h.IsHitAndRunCandidate(rec) {
			if h.store.EnsureHitAndRun(rec.CaseNo) {
				summary.Added = append(summary.Added, rec.CaseNo)
			}
			continue
		}
		if h.store.RemoveHitAndRun(rec.CaseNo) {
			summary.Removed = append(summary.Removed, rec.CaseNo)
		}
	}
	summary.Pending = len(h.Pending(0))

	h.log.WithFields(logrus.Fields{
		"added":   len(summary.Added),
		"removed": len(summary.Removed),
		"pending": summary.Pending,
	}).Debug("Synced hit-and-run candidates")

	return summary
}

// Pending returns unreviewed entries in case-number order. A limit of zero
// or less returns all of them.
func (h *HitAndRun) Pending(limit int) []*model.Report {
	var out []*model.Report
	for _, rec := range h.store.Reports() {
		if st, ok := h.store.HitAndRunStatus(rec.CaseNo); !ok || st != model.HitAndRunUnreviewed {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Record stores who left the scene. The case must be a candidate.
func (h *HitAndRun) Record(caseNo string, st model.HitAndRunStatus, force bool) error {
	rec, ok := h.store.Report(caseNo)
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrUnknownCase, caseNo)
	}
	if !h.IsHitAndRunCandidate(rec) {
		return fmt.Errorf("case %s is not a classified bicycle hit-and-run", caseNo)
	}
	h.store.EnsureHitAndRun(caseNo)
	if err := h.store.SetHitAndRunStatus(caseNo, st, force); err != nil {
		return err
	}
	h.log.WithFields(logrus.Fields{
		"case_no": caseNo,
		"status":  st,
	}).Info("Recorded hit-and-run status")
	return nil
}

// Counts returns the number of entries per status
func (h *HitAndRun) Counts() map[model.HitAndRunStatus]int {
	counts := make(map[model.HitAndRunStatus]int)
	for _, st := range h.store.HitAndRun() {
		counts[st]++
	}
	return counts
}

// HitAndRunReviewer asks who left the scene for each pending entry
type HitAndRunReviewer struct {
	queue *HitAndRun
	save  func() error
	in    *bufio.Reader
	out   io.Writer
	Color bool
	Width int
}

func NewHitAndRunReviewer(h *HitAndRun, save func() error, in io.Reader, out io.Writer) *HitAndRunReviewer {
	return &HitAndRunReviewer{
		queue: h,
		save:  save,
		in:    bufio.NewReader(in),
		out:   out,
		Width: 72,
	}
}

// Review presents up to limit pending entries (all when limit <= 0)
func (r *HitAndRunReviewer) Review(ctx context.Context, limit int) (ReviewSummary, error) {
	var summary ReviewSummary
	pending := r.queue.Pending(limit)
	if len(pending) == 0 {
		fmt.Fprintln(r.out, "Nothing to review.")
		return summary, nil
	}

	for i, rec := range pending {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		showReport(r.out, rec, i+1, len(pending), r.Color, r.Width)

		st, act, err := r.ask()
		if err != nil {
			return summary, err
		}
		switch act {
		case actionQuit:
			summary.Quit = true
			return summary, nil
		case actionSkip:
			summary.Skipped++
			continue
		}

		if err := r.queue.Record(rec.CaseNo, st, false); err != nil {
			return summary, err
		}
		if err := r.save(); err != nil {
			return summary, fmt.Errorf("save hit-and-run status: %w", err)
		}
		summary.Classified++
		fmt.Fprintln(r.out)
	}
	return summary, nil
}

func (r *HitAndRunReviewer) ask() (model.HitAndRunStatus, action, error) {
	prompt := fmt.Sprintf("Who left [%s, default=%s] ", hitAndRunChoices(), DefaultHitAndRunStatus.Key())
	for {
		ans, ok, err := readAnswer(r.in, r.out, prompt)
		if err != nil || !ok {
			return "", actionQuit, err
		}
		switch ans {
		case "":
			return DefaultHitAndRunStatus, actionClassify, nil
		case "K":
			return "", actionSkip, nil
		case "Q":
			return "", actionQuit, nil
		}
		if st, ok := model.HitAndRunStatusFromKey(ans); ok {
			return st, actionClassify, nil
		}
		fmt.Fprint(r.out, hitAndRunHelp())
	}
}

func hitAndRunChoices() string {
	keys := make([]string, 0, len(model.HitAndRunStatuses)+3)
	for _, st := range model.HitAndRunStatuses {
		keys = append(keys, st.Key())
	}
	keys = append(keys, "K", "Q", "?")
	return strings.Join(keys, "/")
}

func hitAndRunHelp() string {
	var sb strings.Builder
	for _, st := range model.HitAndRunStatuses {
		fmt.Fprintf(&sb, "%s: %s\n", st.Key(), st.Description())
	}
	sb.WriteString("K: Skip for now\nQ: Quit\n?: Help\n")
	return sb.String()
}
