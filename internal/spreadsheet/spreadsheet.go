// Package spreadsheet reads and writes the CSV and Excel workbooks used for
// catalog export/import and printable quotations.
package spreadsheet

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/xuri/excelize/v2"

	"smtparts/internal/search"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteCSV writes a header row followed by data rows. A UTF-8 BOM is
// emitted first so Excel opens Vietnamese text correctly.
func WriteCSV(w io.Writer, headers []string, data [][]string) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return err
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(headers); err != nil {
		return err
	}
	if err := writer.WriteAll(data); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// ServeCSV sends data as a CSV attachment.
func ServeCSV(w http.ResponseWriter, filename string, headers []string, data [][]string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	if err := WriteCSV(w, headers, data); err != nil {
		http.Error(w, "Failed to write CSV", 500)
	}
}

// NewWorkbook builds a single-sheet workbook with a bold header row.
// Cell values keep their Go type so numbers stay numeric in Excel.
func NewWorkbook(sheetName string, headers []string, data [][]any) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		f.Close()
		return nil, err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, err
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, h)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, col, col, 16)
	}
	for r, row := range data {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if v == nil {
				continue
			}
			f.SetCellValue(sheetName, cell, v)
		}
	}
	return f, nil
}

// ServeWorkbook sends f as an xlsx attachment.
func ServeWorkbook(w http.ResponseWriter, filename string, f *excelize.File) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	if err := f.Write(w); err != nil {
		http.Error(w, "Failed to write Excel file", 500)
	}
}

// Record is one data row keyed by canonical column key.
type Record struct {
	Line   int // 1-based sheet row
	Values map[string]string
}

// ReadRecords reads the first sheet of an xlsx workbook. The header row is
// matched against aliases (diacritic- and case-insensitive) to find each
// canonical key; unknown columns are ignored and blank rows skipped.
func ReadRecords(r io.Reader, aliases map[string][]string) ([]Record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s is empty", sheets[0])
	}

	lookup := make(map[string]string)
	for key, names := range aliases {
		lookup[search.Fold(key)] = key
		for _, n := range names {
			lookup[search.Fold(n)] = key
		}
	}
	cols := make(map[int]string)
	for i, h := range rows[0] {
		if key, ok := lookup[search.Fold(h)]; ok {
			cols[i] = key
		}
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("no recognised columns in header row")
	}

	var out []Record
	for i, row := range rows[1:] {
		rec := Record{Line: i + 2, Values: make(map[string]string)}
		blank := true
		for c, v := range row {
			key, ok := cols[c]
			if !ok {
				continue
			}
			v = strings.TrimSpace(v)
			if v != "" {
				blank = false
			}
			rec.Values[key] = v
		}
		if !blank {
			out = append(out, rec)
		}
	}
	return out, nil
}
