package captest

import (
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"strconv"

	"pvcaptest/domain/core"
	"pvcaptest/ports"
)

// Row is one partition's prediction.
type Row struct {
	Key core.PartitionKey
	ports.Prediction
}

// Table collects predictions keyed by dataset and, for periodic runs, period.
type Table struct {
	KeyNames []string
	Rows     []Row

	dropped bool
}

func keyLevels(k core.PartitionKey) int {
	if k.HasPeriod() {
		return 2
	}
	return 1
}

// Combine drains results into a table. keyNames names the key levels
// (dataset, then period when present). dropLevel removes the dataset level
// from periodic keys, together with its name.
func Combine(results iter.Seq2[Result[ports.Prediction], error], keyNames []string, dropLevel bool) (*Table, error) {
	t := &Table{}
	levels := 0
	for r, err := range results {
		if err != nil {
			return nil, err
		}
		n := keyLevels(r.Key)
		if levels == 0 {
			levels = n
		} else if n != levels {
			return nil, fmt.Errorf("partition %s has %d key levels, expected %d", r.Key, n, levels)
		}
		t.Rows = append(t.Rows, Row{Key: r.Key, Prediction: r.Value})
	}
	if levels > 0 && len(keyNames) != levels {
		return nil, fmt.Errorf("%d key names %v for %d key levels", len(keyNames), keyNames, levels)
	}
	t.KeyNames = append([]string(nil), keyNames...)
	if dropLevel {
		if levels == 1 {
			return nil, fmt.Errorf("cannot drop the only key level %q", keyNames[0])
		}
		if len(t.KeyNames) > 0 {
			t.KeyNames = t.KeyNames[1:]
		}
		t.dropped = true
	}
	return t, nil
}

// Len is the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// KeyValues renders row i's key, one value per key name.
func (t *Table) KeyValues(i int) []string {
	k := t.Rows[i].Key
	switch {
	case !k.HasPeriod():
		return []string{k.Dataset}
	case t.dropped:
		return []string{k.PeriodString()}
	default:
		return []string{k.Dataset, k.PeriodString()}
	}
}

// Find returns the prediction for key.
func (t *Table) Find(key core.PartitionKey) (ports.Prediction, bool) {
	for _, r := range t.Rows {
		if r.Key == key {
			return r.Prediction, true
		}
	}
	return ports.Prediction{}, false
}

// WriteCSV writes a header of key names and fit, lwr, upr, then one line per row.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := append(append([]string(nil), t.KeyNames...), "fit", "lwr", "upr")
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, r := range t.Rows {
		rec := append(t.KeyValues(i),
			formatFloat(r.Fit), formatFloat(r.Lower), formatFloat(r.Upper))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}

// ResultRows converts the table for persistence. Dropped key levels are kept.
func (t *Table) ResultRows() []ports.ResultRow {
	out := make([]ports.ResultRow, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = ports.ResultRow{Dataset: r.Key.Dataset, Period: r.Key.Period, Prediction: r.Prediction}
	}
	return out
}

// TableFromResultRows rebuilds a table from persisted rows. A single key name
// over periodic rows names the period level.
func TableFromResultRows(rows []ports.ResultRow, keyNames []string) *Table {
	t := &Table{KeyNames: append([]string(nil), keyNames...)}
	t.dropped = len(keyNames) == 1 && len(rows) > 0 && !rows[0].Period.IsZero()
	for _, r := range rows {
		t.Rows = append(t.Rows, Row{
			Key:        core.PartitionKey{Dataset: r.Dataset, Period: r.Period},
			Prediction: r.Prediction,
		})
	}
	return t
}
