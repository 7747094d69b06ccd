package pipeline

import (
	"errors"
	"fmt"

	"github.com/lnkbike/crashes/internal/extract"
	"github.com/lnkbike/crashes/internal/model"
	"github.com/lnkbike/crashes/internal/normalize"
	"github.com/lnkbike/crashes/internal/source"
)

// Assembler combines the field parser outputs for one document into a record
type Assembler struct {
	parsers extract.Parsers
}

// NewAssembler creates an assembler using the given parsers
func NewAssembler(parsers extract.Parsers) *Assembler {
	return &Assembler{parsers: parsers}
}

// Assemble builds the record for doc. textErr is the error returned while
// reading or normalizing the document; a non-nil value yields an
// unparseable record rather than an error.
func (a *Assembler) Assemble(doc source.Document, lines []normalize.Line, textErr error) *model.Report {
	rec := &model.Report{
		CaseNo:   doc.CaseNo,
		Filename: doc.Filename,
	}

	if textErr != nil || len(lines) == 0 {
		if textErr != nil && !errors.Is(textErr, normalize.ErrNoText) {
			rec.Problems = append(rec.Problems, textErr.Error())
		}
		rec.ReportText = normalize.Join(lines)
		rec.ParseStatus = model.StatusUnparseable
		rec.UnparsedFields = allFields()
		return rec
	}

	if caseNo, ok := pick(rec, model.FieldCaseNo, a.parsers.CaseNo, lines); ok && caseNo != doc.CaseNo {
		rec.Problems = append(rec.Problems, fmt.Sprintf("case number on report %s differs from filename", caseNo))
	}
	if v, ok := pick(rec, model.FieldDate, a.parsers.Date, lines); ok {
		rec.Date = &v
	}
	if v, ok := pick(rec, model.FieldTime, a.parsers.Time, lines); ok {
		rec.Time = &v
	}
	if v, ok := pick(rec, model.FieldLocation, a.parsers.Location, lines); ok {
		rec.Location = &v
	}
	if v, ok := pick(rec, model.FieldReportText, a.parsers.Narrative, lines); ok {
		rec.ReportText = v
	}
	if v, ok := pick(rec, model.FieldInjurySeverity, a.parsers.InjurySeverity, lines); ok {
		rec.InjurySeverity = &v
	}
	if v, ok := pick(rec, model.FieldInjuryRegion, a.parsers.InjuryRegion, lines); ok {
		rec.InjuryRegion = &v
	}
	if v, ok := pick(rec, model.FieldCyclistDOB, a.parsers.CyclistDOB, lines); ok {
		if rec.Date != nil && rec.Date.Before(v) {
			rec.Problems = append(rec.Problems, fmt.Sprintf("cyclist date of birth %s is after the crash date", v))
		} else {
			rec.CyclistDOB = &v
		}
	}
	if v, ok := pick(rec, model.FieldCyclistInitials, a.parsers.CyclistInitials, lines); ok {
		rec.CyclistInitials = &v
	}
	if v, ok := pick(rec, model.FieldCyclistGender, a.parsers.CyclistGender, lines); ok {
		rec.CyclistGender = &v
	}
	// Reports without any mention of leaving the scene are not hit-and-runs
	if v, ok := pick(rec, model.FieldHitAndRun, a.parsers.HitAndRun, lines); ok {
		rec.HitAndRun = v
	}

	// The case number always comes from the filename, so it is never unparsed
	rec.UnparsedFields = missingFields(rec)
	rec.ParseStatus = status(rec)
	return rec
}

// pick runs one parser in isolation and returns its best candidate. A
// panicking parser is recorded as a problem and leaves only its own field
// absent.
func pick[T comparable](rec *model.Report, field string, parse func([]normalize.Line) []extract.Candidate[T], lines []normalize.Line) (value T, ok bool) {
	if parse == nil {
		return value, false
	}
	defer func() {
		if r := recover(); r != nil {
			rec.Problems = append(rec.Problems, fmt.Sprintf("%s parser failed: %v", field, r))
			var zero T
			value, ok = zero, false
		}
	}()
	best, found := extract.Best(parse(lines))
	return best.Value, found
}

func missingFields(rec *model.Report) []string {
	var missing []string
	if rec.Date == nil {
		missing = append(missing, model.FieldDate)
	}
	if rec.Time == nil {
		missing = append(missing, model.FieldTime)
	}
	if rec.Location == nil {
		missing = append(missing, model.FieldLocation)
	}
	if rec.ReportText == "" {
		missing = append(missing, model.FieldReportText)
	}
	if rec.InjurySeverity == nil {
		missing = append(missing, model.FieldInjurySeverity)
	}
	if rec.InjuryRegion == nil {
		missing = append(missing, model.FieldInjuryRegion)
	}
	if rec.CyclistDOB == nil {
		missing = append(missing, model.FieldCyclistDOB)
	}
	if rec.CyclistInitials == nil {
		missing = append(missing, model.FieldCyclistInitials)
	}
	if rec.CyclistGender == nil {
		missing = append(missing, model.FieldCyclistGender)
	}
	return missing
}

func allFields() []string {
	return []string{
		model.FieldDate, model.FieldTime, model.FieldLocation, model.FieldReportText,
		model.FieldInjurySeverity, model.FieldInjuryRegion, model.FieldCyclistDOB,
		model.FieldCyclistInitials, model.FieldCyclistGender,
	}
}

// status depends on the mandatory fields only; optional fields that did not
// resolve are listed in UnparsedFields
func status(rec *model.Report) model.ParseStatus {
	switch {
	case rec.ReportText == "":
		return model.StatusUnparseable
	case rec.CaseNo != "" && rec.Date != nil:
		return model.StatusComplete
	default:
		return model.StatusPartial
	}
}
