package pipeline

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/lnkbike/crashes/internal/extract"
	"github.com/lnkbike/crashes/internal/model"
	"github.com/lnkbike/crashes/internal/normalize"
	"github.com/lnkbike/crashes/internal/source"
)

// PageReader returns the raw text of a document split into pages
type PageReader interface {
	Pages(ctx context.Context, doc source.Document) ([]string, error)
}

// Pipeline turns one document into one record: read pages, normalize,
// run the field parsers and assemble the result
type Pipeline struct {
	reader     PageReader
	normalizer *normalize.Normalizer
	assembler  *Assembler
	log        logrus.FieldLogger
}

// NewPipeline creates a pipeline with the default normalizer and parsers
func NewPipeline(reader PageReader, log logrus.FieldLogger) *Pipeline {
	return &Pipeline{
		reader:     reader,
		normalizer: normalize.New(),
		assembler:  NewAssembler(extract.DefaultParsers()),
		log:        log,
	}
}

// WithParsers replaces the field parsers
func (p *Pipeline) WithParsers(parsers extract.Parsers) *Pipeline {
	p.assembler = NewAssembler(parsers)
	return p
}

// ProcessDocument parses one document. Extraction problems never produce
// an error; they yield an unparseable or partial record instead. Only
// cancellation is returned as an error.
func (p *Pipeline) ProcessDocument(ctx context.Context, doc source.Document) (report *model.Report, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var lines []normalize.Line
	defer func() {
		if r := recover(); r != nil {
			report = &model.Report{
				CaseNo:         doc.CaseNo,
				Filename:       doc.Filename,
				ReportText:     normalize.Join(lines),
				ParseStatus:    model.StatusUnparseable,
				UnparsedFields: allFields(),
				Problems:       []string{fmt.Sprintf("parse failed: %v", r)},
			}
			p.log.WithField("case_no", doc.CaseNo).Errorf("Parse failed: %v", r)
			err = nil
		}
	}()

	pages, readErr := p.reader.Pages(ctx, doc)
	if readErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		p.log.WithFields(logrus.Fields{
			"case_no": doc.CaseNo,
			"file":    doc.Filename,
		}).Warnf("Could not read document: %v", readErr)
		return p.assembler.Assemble(doc, nil, readErr), nil
	}

	lines, textErr := p.normalizer.Normalize(pages)
	report = p.assembler.Assemble(doc, lines, textErr)

	p.log.WithFields(logrus.Fields{
		"case_no":  doc.CaseNo,
		"status":   report.ParseStatus,
		"unparsed": len(report.UnparsedFields),
	}).Debug("Parsed document")

	return report, nil
}
