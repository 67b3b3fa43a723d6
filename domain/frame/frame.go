package frame

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Frame is a time-indexed table of float64 columns. Missing values are NaN.
// Column order is preserved as inserted. Slices returned by Index and Column
// are shared with the frame and must be treated as read-only.
type Frame struct {
	index   []time.Time
	names   []string
	columns map[string][]float64
}

// New creates an empty frame over the given time index.
func New(index []time.Time) *Frame {
	return &Frame{
		index:   index,
		columns: make(map[string][]float64),
	}
}

// FromColumns builds a frame from an index and named columns in the given order.
func FromColumns(index []time.Time, names []string, columns map[string][]float64) (*Frame, error) {
	f := New(index)
	for _, name := range names {
		values, ok := columns[name]
		if !ok {
			return nil, fmt.Errorf("column %q listed but not provided", name)
		}
		if err := f.Set(name, values); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.index)
}

// Index returns the time index.
func (f *Frame) Index() []time.Time {
	return f.index
}

// Names returns a copy of the column names in order.
func (f *Frame) Names() []string {
	return append([]string(nil), f.names...)
}

// Has reports whether a column exists.
func (f *Frame) Has(name string) bool {
	_, ok := f.columns[name]
	return ok
}

// Column returns the values of a column.
func (f *Frame) Column(name string) ([]float64, bool) {
	values, ok := f.columns[name]
	return values, ok
}

// Set adds or replaces a column. Replacing keeps the original position.
func (f *Frame) Set(name string, values []float64) error {
	if len(values) != len(f.index) {
		return fmt.Errorf("column %q has %d values, frame has %d rows", name, len(values), len(f.index))
	}
	if _, exists := f.columns[name]; !exists {
		f.names = append(f.names, name)
	}
	f.columns[name] = values
	return nil
}

// Select returns a frame holding only the named columns, in the given order.
func (f *Frame) Select(names []string) (*Frame, error) {
	out := New(f.index)
	var missing []string
	for _, name := range names {
		values, ok := f.columns[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if out.Has(name) {
			continue
		}
		out.names = append(out.names, name)
		out.columns[name] = values
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("columns not in frame: %v", missing)
	}
	return out, nil
}

// Filter returns the rows where keep is true.
func (f *Frame) Filter(keep []bool) (*Frame, error) {
	if len(keep) != f.Len() {
		return nil, fmt.Errorf("mask has %d entries, frame has %d rows", len(keep), f.Len())
	}
	rows := make([]int, 0, len(keep))
	for i, k := range keep {
		if k {
			rows = append(rows, i)
		}
	}
	return f.take(rows), nil
}

// Slice returns rows [i, j) sharing the underlying storage.
func (f *Frame) Slice(i, j int) *Frame {
	out := New(f.index[i:j])
	for _, name := range f.names {
		out.names = append(out.names, name)
		out.columns[name] = f.columns[name][i:j]
	}
	return out
}

// SortByTime returns the frame ordered by its index. Already sorted frames are
// returned as-is.
func (f *Frame) SortByTime() *Frame {
	if sort.SliceIsSorted(f.index, func(i, j int) bool { return f.index[i].Before(f.index[j]) }) {
		return f
	}
	rows := make([]int, f.Len())
	for i := range rows {
		rows[i] = i
	}
	sort.SliceStable(rows, func(a, b int) bool { return f.index[rows[a]].Before(f.index[rows[b]]) })
	return f.take(rows)
}

// Row returns the values of one row keyed by column name.
func (f *Frame) Row(i int) map[string]float64 {
	row := make(map[string]float64, len(f.names))
	for _, name := range f.names {
		row[name] = f.columns[name][i]
	}
	return row
}

// Equal reports whether two frames have the same index, column order and
// values. NaNs compare equal to each other.
func (f *Frame) Equal(other *Frame) bool {
	if f.Len() != other.Len() || len(f.names) != len(other.names) {
		return false
	}
	for i, t := range f.index {
		if !t.Equal(other.index[i]) {
			return false
		}
	}
	for i, name := range f.names {
		if other.names[i] != name {
			return false
		}
		a, b := f.columns[name], other.columns[name]
		for r := range a {
			if a[r] != b[r] && !(math.IsNaN(a[r]) && math.IsNaN(b[r])) {
				return false
			}
		}
	}
	return true
}

func (f *Frame) take(rows []int) *Frame {
	index := make([]time.Time, len(rows))
	for i, r := range rows {
		index[i] = f.index[r]
	}
	out := New(index)
	for _, name := range f.names {
		src := f.columns[name]
		dst := make([]float64, len(rows))
		for i, r := range rows {
			dst[i] = src[r]
		}
		out.names = append(out.names, name)
		out.columns[name] = dst
	}
	return out
}

// NaNs returns a column of n missing values.
func NaNs(n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = math.NaN()
	}
	return values
}

// Present returns the non-missing values of a column.
func Present(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
