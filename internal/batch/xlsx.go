package batch

import (
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/MeKo-Tech/docscan/internal/extract"
)

// Sheet names of the exported workbook.
const (
	DocumentsSheet = "Documents"
	FieldsSheet    = "Fields"
)

var documentHeaders = []string{
	"File", "Document Type", "Engine", "Confidence", "Fallback Used", "Word Count", "Error",
}

// fieldColumns lists field types in rule order, one workbook column each.
func fieldColumns() []extract.FieldType {
	var cols []extract.FieldType
	seen := make(map[extract.FieldType]bool)
	for _, r := range extract.DefaultRules() {
		if !seen[r.Type] {
			seen[r.Type] = true
			cols = append(cols, r.Type)
		}
	}
	return cols
}

// XLSX renders the batch as a workbook: one row per document with a column
// per field type, plus a sheet listing every extracted field.
func (r *Result) XLSX() ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", DocumentsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(FieldsSheet); err != nil {
		return nil, err
	}
	idx, _ := f.GetSheetIndex(DocumentsSheet)
	f.SetActiveSheet(idx)

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	cols := fieldColumns()
	headers := make([]any, 0, len(documentHeaders)+len(cols))
	for _, h := range documentHeaders {
		headers = append(headers, h)
	}
	for _, c := range cols {
		headers = append(headers, strings.ToUpper(string(c)))
	}
	if err := writeHeader(f, DocumentsSheet, headers, bold); err != nil {
		return nil, err
	}
	if err := writeHeader(f, FieldsSheet,
		[]any{"File", "Document Type", "Label", "Value", "Type", "Confidence"}, bold); err != nil {
		return nil, err
	}

	fieldRow := 2
	for i, it := range r.Items {
		row := []any{it.Path, "", "", "", "", "", ""}
		if it.Err != nil {
			row[6] = it.Err.Error()
		}
		if res := it.Result; res != nil {
			row[1] = res.DocumentLabel
			row[2] = res.Engine
			row[3] = res.Confidence
			row[4] = res.FallbackUsed
			row[5] = res.WordCount
			for _, c := range cols {
				row = append(row, strings.Join(res.FieldsByType(c), "; "))
			}
			for _, fld := range res.ExtractedFields {
				cell, _ := excelize.CoordinatesToCellName(1, fieldRow)
				if err := f.SetSheetRow(FieldsSheet, cell, &[]any{
					it.Path, res.DocumentLabel, fld.Label, fld.Value, string(fld.Type), string(fld.Confidence),
				}); err != nil {
					return nil, err
				}
				fieldRow++
			}
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(DocumentsSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	_ = f.SetColWidth(DocumentsSheet, "A", "A", 40)
	_ = f.SetColWidth(DocumentsSheet, "B", "C", 16)
	_ = f.SetColWidth(FieldsSheet, "A", "A", 40)
	_ = f.SetColWidth(FieldsSheet, "C", "D", 24)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteXLSX saves the workbook to path.
func (r *Result) WriteXLSX(path string) error {
	data, err := r.XLSX()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, headers []any, style int) error {
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	return f.SetCellStyle(sheet, "A1", last, style)
}
