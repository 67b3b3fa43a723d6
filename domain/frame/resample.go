package frame

import (
	"fmt"
	"iter"
	"time"
)

// Period defines the calendar bins a dataset is partitioned into.
type Period string

const (
	Monthly Period = "Monthly" // calendar month, keyed by the first of the month
	Weekly  Period = "Weekly"  // week starting Monday, keyed by that Monday
)

// ParsePeriod validates a period label.
func ParsePeriod(label string) (Period, error) {
	switch p := Period(label); p {
	case Monthly, Weekly:
		return p, nil
	default:
		return "", fmt.Errorf("unknown period %q (want %q or %q)", label, Monthly, Weekly)
	}
}

// ColumnName is the key name used for this period in combined result tables.
func (p Period) ColumnName() string {
	switch p {
	case Monthly:
		return "MonthBegin"
	case Weekly:
		return "WeekBegin"
	default:
		return string(p)
	}
}

// Start returns the first instant of the period containing t, in t's location.
func (p Period) Start(t time.Time) time.Time {
	y, m, d := t.Date()
	switch p {
	case Weekly:
		day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
		back := (int(day.Weekday()) + 6) % 7 // days since Monday
		return day.AddDate(0, 0, -back)
	default:
		return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	}
}

// Resample yields one frame per non-empty period in chronological order.
// The frame is sorted by time first; yielded frames share its storage.
func (f *Frame) Resample(p Period) iter.Seq2[time.Time, *Frame] {
	return func(yield func(time.Time, *Frame) bool) {
		sorted := f.SortByTime()
		index := sorted.Index()
		for lo := 0; lo < len(index); {
			start := p.Start(index[lo])
			hi := lo + 1
			for hi < len(index) && p.Start(index[hi]).Equal(start) {
				hi++
			}
			if !yield(start, sorted.Slice(lo, hi)) {
				return
			}
			lo = hi
		}
	}
}
