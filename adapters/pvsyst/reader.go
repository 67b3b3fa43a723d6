// Package pvsyst reads hourly simulation exports from PVsyst.
//
// An export has ten lines of preamble, a header row, a units row, and then
// data rows whose first column is "date" in mm/dd/yy hh:mm form. Older files
// are windows-1252 encoded.
package pvsyst

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"pvcaptest/domain/frame"
	"pvcaptest/internal"
	"pvcaptest/internal/errors"
)

const (
	headerLine = 10
	dataLine   = 12

	// MonthFirst and DayFirst are the two date layouts PVsyst writes.
	MonthFirst = "01/02/06 15:04"
	DayFirst   = "02/01/06 15:04"
)

// DefaultRenames standardizes the ambient temperature column across PVsyst
// versions.
var DefaultRenames = map[string]string{
	"T Amb": "T_Amb",
	"TAmb":  "T_Amb",
}

type Options struct {
	// Comma defaults to ','.
	Comma rune
	// DayFirst parses dates as dd/mm/yy. Without it month-first is tried
	// and day-first is the fallback.
	DayFirst bool
	// Renames maps file headers to column names; nil uses DefaultRenames.
	Renames map[string]string
}

// Reader implements ports.DatasetReader for PVsyst exports.
type Reader struct {
	opts Options
	log  *internal.Logger
}

func NewReader(opts Options) *Reader {
	if opts.Comma == 0 {
		opts.Comma = ','
	}
	if opts.Renames == nil {
		opts.Renames = DefaultRenames
	}
	return &Reader{opts: opts, log: internal.DefaultLogger.With("PVsyst")}
}

func (r *Reader) ReadDataset(ctx context.Context, path string) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.DataSource(path, err)
	}
	start := time.Now()
	f, err := r.Parse(raw)
	if err != nil {
		return nil, errors.DataSource(path, err)
	}
	r.log.Info("loaded %d rows x %d columns in %.2fms", f.Len(), len(f.Names()), float64(time.Since(start).Nanoseconds())/1e6)
	return f, nil
}

// Parse decodes an export held in memory.
func (r *Reader) Parse(raw []byte) (*frame.Frame, error) {
	text, err := decode(raw)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(text, "\n")
	if len(lines) <= dataLine {
		return nil, fmt.Errorf("file has %d lines, expected a header at line %d", len(lines), headerLine+1)
	}
	header, err := r.csvReader(strings.TrimRight(lines[headerLine], "\r")).Read()
	if err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	records, err := r.csvReader(strings.Join(lines[dataLine:], "\n")).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse data: %w", err)
	}
	for i, h := range header {
		h = strings.TrimSpace(h)
		if to, ok := r.opts.Renames[h]; ok {
			h = to
		}
		header[i] = h
	}
	dateCol := -1
	for i, h := range header {
		if h == "date" {
			dateCol = i
			break
		}
	}
	if dateCol < 0 {
		return nil, fmt.Errorf("no 'date' column in header %v; the separator may be ';' rather than %q", header, r.opts.Comma)
	}

	var (
		data  [][]string
		dates []string
	)
	for _, rec := range records {
		if dateCol >= len(rec) || strings.TrimSpace(rec[dateCol]) == "" {
			continue
		}
		data = append(data, rec)
		dates = append(dates, normalizeDate(strings.TrimSpace(rec[dateCol])))
	}
	index, err := r.parseDates(dates)
	if err != nil {
		return nil, err
	}

	var names []string
	cols := make(map[string][]float64)
	for j, h := range header {
		if j == dateCol || h == "" {
			continue
		}
		if _, dup := cols[h]; dup {
			continue
		}
		names = append(names, h)
		values := make([]float64, len(data))
		for i, rec := range data {
			values[i] = math.NaN()
			if j < len(rec) {
				if v, err := strconv.ParseFloat(strings.TrimSpace(rec[j]), 64); err == nil {
					values[i] = v
				}
			}
		}
		cols[h] = values
	}
	return frame.FromColumns(index, names, cols)
}

// decode returns text as UTF-8, treating anything else as windows-1252.
func decode(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode windows-1252: %w", err)
	}
	return string(out), nil
}

func (r *Reader) csvReader(text string) *csv.Reader {
	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = r.opts.Comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

// normalizeDate repairs dates rewritten by spreadsheet programs, such as
// 1/1/1990 0:00, into the 14 character form PVsyst writes.
func normalizeDate(s string) string {
	if len(s) == len(MonthFirst) {
		return s
	}
	datePart, timePart, ok := strings.Cut(s, " ")
	if !ok {
		return s
	}
	d := strings.Split(datePart, "/")
	hm := strings.Split(timePart, ":")
	if len(d) < 2 || len(hm) < 2 {
		return s
	}
	return zfill(d[0]) + "/" + zfill(d[1]) + "/90 " + zfill(hm[0]) + ":" + hm[1]
}

func zfill(s string) string {
	if len(s) < 2 {
		return strings.Repeat("0", 2-len(s)) + s
	}
	return s
}

func (r *Reader) parseDates(dates []string) ([]time.Time, error) {
	if r.opts.DayFirst {
		return parseAll(dates, DayFirst)
	}
	index, err := parseAll(dates, MonthFirst)
	if err == nil {
		return index, nil
	}
	r.log.Warn("dates are not in month/day/year format, trying day/month/year")
	return parseAll(dates, DayFirst)
}

func parseAll(dates []string, layout string) ([]time.Time, error) {
	out := make([]time.Time, len(dates))
	for i, s := range dates {
		t, err := time.Parse(layout, s)
		if err != nil {
			return nil, fmt.Errorf("row %d: date %q does not match %s", i+1, s, layout)
		}
		out[i] = t
	}
	return out, nil
}
