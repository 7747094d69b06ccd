package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/lnkbike/crashes/internal/store"
)

// Excel rejects longer cell text
const maxCellChars = 32767

var sheetNames = map[string]string{
	"collision": "Collisions",
	"curation":  "Curation",
	"location":  "Locations",
}

// Column widths by header; unlisted columns keep the default
var columnWidths = map[string]float64{
	"case_no":     12,
	"filename":    16,
	"location":    36,
	"report_text": 80,
	"source_text": 36,
	"address":     48,
}

// WriteWorkbook writes one sheet per table to path, replacing any
// existing file
func WriteWorkbook(ctx context.Context, path string, s *store.Store, log logrus.FieldLogger) error {
	d, err := Build(ctx, s)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	for i, t := range d.Tables() {
		sheet := sheetNames[t.Name]
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("create sheet %s: %w", sheet, err)
		}
		if err := writeSheet(f, sheet, t, header); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	if err := store.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}

	log.WithFields(logrus.Fields{
		"path":       path,
		"collisions": len(d.Collisions.Rows),
		"curated":    len(d.Curation.Rows),
		"locations":  len(d.Locations.Rows),
	}).Info("Exported workbook")
	return nil
}

func writeSheet(f *excelize.File, sheet string, t Table, headerStyle int) error {
	header := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}

	for i, row := range t.Rows {
		cells := make([]any, len(row))
		for j, v := range row {
			if s, ok := v.(string); ok && utf8.RuneCountInString(s) > maxCellChars {
				v = string([]rune(s)[:maxCellChars])
			}
			cells[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}

	for i, c := range t.Columns {
		width, ok := columnWidths[c]
		if !ok {
			continue
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		_ = f.SetColWidth(sheet, col, col, width)
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
