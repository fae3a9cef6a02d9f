package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dimchansky/utfbom"
	"github.com/xuri/excelize/v2"
)

// ErrInputNotFound is returned when the input file does not exist.
var ErrInputNotFound = errors.New("input file not found")

// ErrMissingColumn is returned when a required header is absent.
var ErrMissingColumn = errors.New("required column missing")

// headerAliases maps accepted header spellings to a field.
var headerAliases = map[string]string{
	"link":    "link",
	"url":     "link",
	"keyword": "keyword",
	"kelime":  "keyword",
	"note":    "note",
	"not":     "note",
	"notes":   "note",
}

// Options configures Load.
type Options struct {
	// Sheet selects the worksheet of an xlsx input. Empty means the first.
	Sheet  string
	Logger *slog.Logger
}

// Load reads records from path. Files ending in .csv are parsed as CSV,
// anything else as an xlsx workbook. The first row is the header and must
// name the link and keyword columns; note is optional. Rows lacking a
// link or a keyword are skipped with a warning.
func Load(path string, opts Options) ([]Record, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("batch: %w", err)
	}

	var (
		rows [][]string
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		rows, err = readCSV(path)
	} else {
		rows, err = readXLSX(path, opts.Sheet)
	}
	if err != nil {
		return nil, fmt.Errorf("batch: read %s: %w", path, err)
	}
	return parse(rows, opts.Logger)
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(utfbom.SkipOnly(f))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
}

func readXLSX(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	return f.GetRows(sheet)
}

func parse(rows [][]string, log *slog.Logger) ([]Record, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMissingColumn)
	}

	cols := map[string]int{}
	for i, h := range rows[0] {
		field, ok := headerAliases[strings.ToLower(strings.TrimSpace(h))]
		if !ok {
			continue
		}
		if _, dup := cols[field]; !dup {
			cols[field] = i
		}
	}
	for _, field := range []string{"link", "keyword"} {
		if _, ok := cols[field]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, field)
		}
	}

	cell := func(row []string, field string) string {
		i, ok := cols[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []Record
	for n, row := range rows[1:] {
		rec := Record{
			Link:    cell(row, "link"),
			Keyword: cell(row, "keyword"),
			Note:    cell(row, "note"),
			Row:     n + 2,
		}
		if rec.Link == "" && rec.Keyword == "" && rec.Note == "" {
			continue
		}
		if rec.Link == "" || rec.Keyword == "" {
			log.Warn("skipping incomplete input row", "row", rec.Row, "link", rec.Link, "keyword", rec.Keyword)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
