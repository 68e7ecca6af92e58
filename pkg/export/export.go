// Package export renders vocabulary snapshots to files for study outside the
// tool.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/jlin/tutorvocab/pkg/db"
)

var header = []string{"ID", "English", "Chinese", "Pinyin", "Example", "Seen", "Last Result", "Last Seen", "Created"}

// WriteFile writes items to path, choosing the format from the extension:
// .xlsx for Excel, anything else is written as CSV.
func WriteFile(path string, items []db.VocabItem) error {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return WriteXLSX(path, items)
	}
	return WriteCSV(path, items)
}

// WriteXLSX writes items to an Excel workbook with a single Vocabulary sheet.
func WriteXLSX(path string, items []db.VocabItem) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Vocabulary"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for col, name := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for i, item := range items {
		for col, value := range rowValues(item) {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return fmt.Errorf("row cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("write row %d: %w", i+2, err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// WriteCSV writes items as UTF-8 CSV with a header row.
func WriteCSV(path string, items []db.VocabItem) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, item := range items {
		if err := w.Write(rowValues(item)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// rowValues renders one item. Missing fields become empty cells, not errors.
func rowValues(item db.VocabItem) []string {
	lastSeen := ""
	if item.LastSeenAt.Valid {
		lastSeen = item.LastSeenAt.Time.Format("2006-01-02 15:04")
	}
	return []string{
		fmt.Sprintf("%d", item.ID),
		item.English,
		item.Chinese,
		item.Pinyin,
		item.Example,
		fmt.Sprintf("%d", item.SeenCount),
		string(item.LastResult),
		lastSeen,
		item.CreatedAt.Format("2006-01-02 15:04"),
	}
}
