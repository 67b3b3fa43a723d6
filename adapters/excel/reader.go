// Package excel reads time-indexed datasets from CSV and xlsx files.
package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"pvcaptest/domain/frame"
	"pvcaptest/internal"
	"pvcaptest/internal/errors"
)

// Options control how a file is turned into a frame.
type Options struct {
	// TimeColumn holds the timestamps; defaults to the first column.
	TimeColumn string
	// TimeLayout is a time.Parse layout; empty tries DefaultLayouts.
	TimeLayout string
	// Sheet defaults to the first sheet of an xlsx workbook.
	Sheet string
	// Comma is the CSV field separator; defaults to ','.
	Comma rune
	// Location for timestamps without a zone; defaults to UTC.
	Location *time.Location
}

// DefaultLayouts are tried in order when no layout is given.
var DefaultLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"01/02/2006 15:04",
	"01/02/06 15:04",
	"2006-01-02",
}

// DataReader handles reading Excel and CSV files
type DataReader struct {
	opts Options
	log  *internal.Logger
}

// NewDataReader creates a reader that handles both xlsx and csv files,
// chosen by extension.
func NewDataReader(opts Options) *DataReader {
	if opts.Comma == 0 {
		opts.Comma = ','
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &DataReader{opts: opts, log: internal.DefaultLogger.With("DataReader")}
}

// ReadDataset implements ports.DatasetReader.
func (r *DataReader) ReadDataset(ctx context.Context, path string) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, errors.DataSource(path, err)
	}
	var (
		rows  [][]string
		err   error
		excel bool
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".txt":
		rows, err = r.readCSV(path)
	case ".xlsx", ".xlsm":
		rows, err = r.readExcel(path)
		excel = true
	default:
		err = fmt.Errorf("unsupported file type %q", ext)
	}
	if err != nil {
		return nil, errors.DataSource(path, err)
	}
	f, err := r.toFrame(rows, excel)
	if err != nil {
		return nil, errors.DataSource(path, err)
	}
	return f, nil
}

// readExcel reads the configured sheet with raw cell values.
func (r *DataReader) readExcel(path string) ([][]string, error) {
	startTime := time.Now()
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()
	r.log.Debug("Excel file opened in %.2fms", float64(time.Since(startTime).Nanoseconds())/1e6)

	sheet := r.opts.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	readStart := time.Now()
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	r.log.Info("%s read in %.2fms (%d rows)", sheet, float64(time.Since(readStart).Nanoseconds())/1e6, len(rows))
	return rows, nil
}

func (r *DataReader) readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = r.opts.Comma
	reader.FieldsPerRecord = -1
	readStart := time.Now()
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	r.log.Info("CSV file read in %.2fms (%d rows)", float64(time.Since(readStart).Nanoseconds())/1e6, len(rows))
	return rows, nil
}

// toFrame converts a header row and data rows. Cells that are empty or not
// numbers become NaN.
func (r *DataReader) toFrame(rows [][]string, excel bool) (*frame.Frame, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("file must have at least a header row and one data row")
	}
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}
	timeCol := 0
	if r.opts.TimeColumn != "" {
		timeCol = -1
		for i, h := range headers {
			if h == r.opts.TimeColumn {
				timeCol = i
				break
			}
		}
		if timeCol < 0 {
			return nil, fmt.Errorf("time column %q not in header %v", r.opts.TimeColumn, headers)
		}
	}

	data := rows[1:]
	index := make([]time.Time, 0, len(data))
	cols := make(map[string][]float64, len(headers))
	var names []string
	for j, h := range headers {
		if j != timeCol && h != "" {
			names = append(names, h)
		}
	}
	bad := make(map[string]int)
	for i, row := range data {
		if len(row) <= timeCol || strings.TrimSpace(row[timeCol]) == "" {
			continue
		}
		ts, err := r.parseTime(strings.TrimSpace(row[timeCol]), excel)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		index = append(index, ts)
		for j, h := range headers {
			if j == timeCol || h == "" {
				continue
			}
			v := math.NaN()
			if j < len(row) {
				if parsed, ok := parseValue(row[j]); ok {
					v = parsed
				} else {
					bad[h]++
				}
			}
			cols[h] = append(cols[h], v)
		}
	}
	for h, n := range bad {
		r.log.Warn("column %q: %d non-numeric cells read as missing", h, n)
	}
	return frame.FromColumns(index, names, cols)
}

func (r *DataReader) parseTime(s string, excel bool) (time.Time, error) {
	layouts := DefaultLayouts
	if r.opts.TimeLayout != "" {
		layouts = []string{r.opts.TimeLayout}
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, r.opts.Location); err == nil {
			return t, nil
		}
	}
	if excel {
		if serial, err := strconv.ParseFloat(s, 64); err == nil {
			t, err := excelize.ExcelDateToTime(serial, false)
			if err == nil {
				return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, r.opts.Location), nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}

// parseValue reads a numeric cell. Blank and NA markers are missing.
func parseValue(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "na", "n/a", "#n/a", "null":
		return math.NaN(), true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN(), false
	}
	return v, true
}
