package catalog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// DefaultSummaryName is the summary written into the download directory.
const DefaultSummaryName = "file_mapping.xlsx"

const summarySheet = "Mapping"

// SummaryHeader lists the summary columns in order.
var SummaryHeader = []string{"Original Name", "Hashed Name", "Download Date", "Link", "Note"}

func (e Entry) row() []string {
	return []string{e.OriginalName, e.HashedName, e.DownloadedAt.Format(TimeLayout), e.Link, e.Note}
}

// WriteSummary writes entries to path as a spreadsheet. A ".csv" extension
// produces CSV; anything else produces an xlsx workbook. An empty batch
// still produces a file with the header row.
func WriteSummary(path string, entries []Entry) error {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return writeCSV(path, entries)
	}
	return writeXLSX(path, entries)
}

func writeXLSX(path string, entries []Entry) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return fmt.Errorf("summary: %w", err)
	}

	header := make([]any, len(SummaryHeader))
	for i, h := range SummaryHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(summarySheet, "A1", &header); err != nil {
		return fmt.Errorf("summary: %w", err)
	}

	for i, e := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("summary: %w", err)
		}
		values := e.row()
		row := make([]any, len(values))
		for j, v := range values {
			row[j] = v
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("summary: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("summary: save %s: %w", path, err)
	}
	return nil
}

func writeCSV(path string, entries []Entry) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("summary: %w", err)
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.Write(SummaryHeader); err != nil {
		return fmt.Errorf("summary: %w", err)
	}
	for _, e := range entries {
		if err := w.Write(e.row()); err != nil {
			return fmt.Errorf("summary: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("summary: %w", err)
	}
	return out.Close()
}
