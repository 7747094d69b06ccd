// Package curate maintains the manual classification queue for reports that
// may involve a bicycle.
package curate

import (
	"context"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lnkbike/crashes/internal/llm"
	"github.com/lnkbike/crashes/internal/model"
	"github.com/lnkbike/crashes/internal/store"
)

// Keywords that make a report a curation candidate
var Keywords = []string{"bicycle", "bike", "cyclist", "bicyclist"}

// IsCandidate reports whether the narrative mentions a bicycle. Matching
// is a case-insensitive substring test, so "bikes" and "motorbike" count.
func IsCandidate(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range Keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var highlightPattern = regexp.MustCompile(`(?i)(?:bi|tri|pedal)cycle|bike|(?:bi)?cyclist|crosswalk|sidewalk|intersection`)

// Highlight wraps every keyword in text with mark
func Highlight(text string, mark func(string) string) string {
	return highlightPattern.ReplaceAllStringFunc(text, mark)
}

// Curator computes the review queue and records classifications. It reads
// and writes the store on the caller's goroutine only.
type Curator struct {
	store     *store.Store
	suggester llm.Provider
	log       logrus.FieldLogger
}

// New creates a curator. suggester may be nil.
func New(s *store.Store, suggester llm.Provider, log logrus.FieldLogger) *Curator {
	return &Curator{store: s, suggester: suggester, log: log}
}

// Sync brings curation entries in line with the records: every candidate
// gets an entry, and unclassified entries whose record stopped matching
// (after a targeted reparse) are dropped. Classified entries are never
// touched.
func (c *Curator) Sync() model.CandidateSyncSummary {
	var summary model.CandidateSyncSummary
	for _, rec := range c.store.Reports() {
		if IsCandidate(rec.ReportText) {
			if c.store.EnsureCandidate(rec.CaseNo) {
				summary.Added = append(summary.Added, rec.CaseNo)
			}
			continue
		}
		if c.store.RemoveCandidate(rec.CaseNo) {
			summary.Removed = append(summary.Removed, rec.CaseNo)
		}
	}
	summary.Pending = len(c.Pending(0))

	c.log.WithFields(logrus.Fields{
		"added":   len(summary.Added),
		"removed": len(summary.Removed),
		"pending": summary.Pending,
	}).Debug("Synced curation candidates")

	return summary
}

// Pending returns the unclassified candidates in case-number order. A
// limit of zero or less returns all of them.
func (c *Curator) Pending(limit int) []*model.Report {
	var out []*model.Report
	for _, rec := range c.store.Reports() {
		if cat, ok := c.store.Category(rec.CaseNo); !ok || cat != model.CategoryUnclassified {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Classify records an operator's decision. Replacing an existing
// classification requires force.
func (c *Curator) Classify(caseNo string, cat model.Category, force bool) error {
	if err := c.store.SetCategory(caseNo, cat, force); err != nil {
		return err
	}
	c.log.WithFields(logrus.Fields{
		"case_no":  caseNo,
		"category": cat,
	}).Info("Classified report")
	return nil
}

// Counts returns the number of entries per category
func (c *Curator) Counts() map[model.Category]int {
	counts := make(map[model.Category]int)
	for _, cat := range c.store.Curation() {
		counts[cat]++
	}
	return counts
}

// Suggest asks the configured model for a default category. It returns
// false when no suggester is configured or the model gives no usable answer.
func (c *Curator) Suggest(ctx context.Context, rec *model.Report) (model.Category, bool) {
	if c.suggester == nil {
		return "", false
	}
	resp, err := c.suggester.Suggest(ctx, llm.SuggestRequest{Report: *rec})
	if err != nil {
		c.log.WithField("case_no", rec.CaseNo).Warnf("Category suggestion failed: %v", err)
		return "", false
	}
	return resp.Category, true
}
