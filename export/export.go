// Package export writes batch results as a spreadsheet, or as JSON when
// the spreadsheet cannot be written.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/use-agent/pagecount/models"
)

// SheetName is the worksheet holding the results.
const SheetName = "Results"

// maxColWidth caps auto-sized columns.
const maxColWidth = 50

// Headers are the spreadsheet columns, in order.
var Headers = []string{"Identifier", "URL", "Page Number", "Status", "Error"}

// Row is one result flattened for tabular output.
type Row struct {
	Identifier string
	URL        string
	PageNumber string // "N/A" when no count was found
	Status     string // "Success" or "Failed"
	Error      string // empty on success
}

// Rows flattens results.
func Rows(results []models.ScrapeResult) []Row {
	rows := make([]Row, 0, len(results))
	for _, r := range results {
		row := Row{
			Identifier: r.Identifier,
			URL:        r.URL,
			PageNumber: "N/A",
			Status:     "Failed",
			Error:      r.Error,
		}
		if r.PageCount != nil {
			row.PageNumber = strconv.Itoa(*r.PageCount)
		}
		if r.Success {
			row.Status = "Success"
			row.Error = ""
		}
		rows = append(rows, row)
	}
	return rows
}

func (r Row) values() []string {
	return []string{r.Identifier, r.URL, r.PageNumber, r.Status, r.Error}
}

// WriteXLSX writes results as an xlsx workbook with a single Results sheet.
// Column widths fit the longest cell, capped at 50 characters.
func WriteXLSX(w io.Writer, results []models.ScrapeResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("export: rename sheet: %w", err)
	}

	widths := make([]int, len(Headers))
	for i, h := range Headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("export: header cell: %w", err)
		}
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return fmt.Errorf("export: set header %s: %w", h, err)
		}
		widths[i] = utf8.RuneCountInString(h)
	}

	for rowIdx, r := range Rows(results) {
		for colIdx, v := range r.values() {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return fmt.Errorf("export: cell: %w", err)
			}
			var value any = v
			if colIdx == 2 {
				if n, err := strconv.Atoi(v); err == nil {
					value = n
				}
			}
			if err := f.SetCellValue(SheetName, cell, value); err != nil {
				return fmt.Errorf("export: set %s: %w", cell, err)
			}
			if l := utf8.RuneCountInString(v); l > widths[colIdx] {
				widths[colIdx] = l
			}
		}
	}

	for i, width := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("export: column name: %w", err)
		}
		if err := f.SetColWidth(SheetName, col, col, float64(min(width+2, maxColWidth))); err != nil {
			return fmt.Errorf("export: width %s: %w", col, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("export: write workbook: %w", err)
	}
	return nil
}

// WriteJSON writes results as indented JSON.
func WriteJSON(w io.Writer, results []models.ScrapeResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if results == nil {
		results = []models.ScrapeResult{}
	}
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("export: encode json: %w", err)
	}
	return nil
}

// JSONPath is the fallback location for an xlsx path.
func JSONPath(xlsxPath string) string {
	return strings.TrimSuffix(xlsxPath, ".xlsx") + ".json"
}

// Save writes results to path as xlsx. If that fails, it writes JSON to
// JSONPath(path) instead. It returns the file actually written; the other
// format's file from an earlier run is removed so readers never see stale
// results.
func Save(path string, results []models.ScrapeResult) (string, error) {
	jsonPath := JSONPath(path)

	xlsxErr := saveWith(path, results, WriteXLSX)
	if xlsxErr == nil {
		removeStale(jsonPath)
		return path, nil
	}
	slog.Warn("saving spreadsheet failed, falling back to json", "path", path, "error", xlsxErr)

	if err := saveWith(jsonPath, results, WriteJSON); err != nil {
		return "", fmt.Errorf("export: save %s: %w (json fallback: %v)", path, xlsxErr, err)
	}
	removeStale(path)
	return jsonPath, nil
}

// removeStale deletes path when it is a regular file.
func removeStale(path string) {
	if fi, err := os.Lstat(path); err == nil && fi.Mode().IsRegular() {
		_ = os.Remove(path)
	}
}

func saveWith(path string, results []models.ScrapeResult, write func(io.Writer, []models.ScrapeResult) error) error {
	var buf bytes.Buffer
	if err := write(&buf, results); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("export: write %s: %w", path, err)
	}
	return nil
}
