package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/lnkbike/crashes/internal/model"
	"github.com/lnkbike/crashes/internal/source"
)

// Processor defines the interface for turning one document into a record
type Processor interface {
	ProcessDocument(ctx context.Context, doc source.Document) (*model.Report, error)
}

// ParseJob represents a document parse job
type ParseJob struct {
	Doc       source.Document
	Processor Processor
}

// Execute executes the parse job. A panic inside the processor is turned
// into an unparseable record so the batch keeps going.
func (j *ParseJob) Execute(ctx context.Context) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = &ParseResult{
				Doc:    j.Doc,
				Report: failedReport(j.Doc, fmt.Sprintf("parse panicked: %v", r)),
			}
		}
	}()

	report, err := j.Processor.ProcessDocument(ctx, j.Doc)
	if err != nil {
		return &ParseResult{
			Doc:   j.Doc,
			Error: err,
		}
	}
	return &ParseResult{
		Doc:    j.Doc,
		Report: report,
	}
}

// ParseResult represents the result of a parse job
type ParseResult struct {
	Doc    source.Document
	Report *model.Report
	Error  error
}

// GetError returns the error from the parse result
func (r *ParseResult) GetError() error {
	return r.Error
}

func failedReport(doc source.Document, problem string) *model.Report {
	return &model.Report{
		CaseNo:      doc.CaseNo,
		Filename:    doc.Filename,
		ParseStatus: model.StatusUnparseable,
		UnparsedFields: []string{
			model.FieldDate, model.FieldTime, model.FieldLocation, model.FieldReportText,
			model.FieldInjurySeverity, model.FieldInjuryRegion, model.FieldCyclistDOB,
			model.FieldCyclistInitials, model.FieldCyclistGender,
		},
		Problems: []string{problem},
	}
}

// BatchProcessor parses many documents concurrently
type BatchProcessor struct {
	processor   Processor
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(processor Processor, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		processor:   processor,
		concurrency: concurrency,
	}
}

// ProcessDocuments parses docs concurrently and hands every result to fn on
// the calling goroutine, in completion order. It returns when all results
// have been delivered or ctx is cancelled.
func (b *BatchProcessor) ProcessDocuments(ctx context.Context, docs []source.Document, fn func(*ParseResult)) {
	if len(docs) == 0 {
		return
	}

	jobs := make([]Job, len(docs))
	for i, doc := range docs {
		jobs[i] = &ParseJob{
			Doc:       doc,
			Processor: b.processor,
		}
	}

	pool := NewPool(ctx, b.concurrency)
	for result := range pool.Stream(jobs) {
		fn(result.(*ParseResult))
	}
}

// ReadCaseNumbers reads case numbers from a file (one per line). Blank
// lines and # comments are skipped and duplicates dropped.
func ReadCaseNumbers(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var caseNos []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		caseNo, err := source.NormalizeCaseNo(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		if !seen[caseNo] {
			seen[caseNo] = true
			caseNos = append(caseNos, caseNo)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return caseNos, nil
}
