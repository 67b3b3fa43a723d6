package excel

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	apperrors "pvcaptest/internal/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadDataset_CSV(t *testing.T) {
	path := writeFile(t, "meas.csv", "Timestamp,GlobInc, T_Amb ,Status\n"+
		"2024-01-01 10:00:00,800,20,ok\n"+
		"2024-01-01 11:00:00,,21,ok\n"+
		"2024-01-01 12:00:00,900,NaN,ok\n")

	f, err := NewDataReader(Options{TimeColumn: "Timestamp"}).ReadDataset(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 3, f.Len())
	assert.Equal(t, []string{"GlobInc", "T_Amb", "Status"}, f.Names())
	assert.Equal(t, time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC), f.Index()[1])

	g, _ := f.Column("GlobInc")
	assert.Equal(t, 800.0, g[0])
	assert.True(t, math.IsNaN(g[1]))
	ta, _ := f.Column("T_Amb")
	assert.True(t, math.IsNaN(ta[2]))
	status, _ := f.Column("Status")
	assert.True(t, math.IsNaN(status[0]))
}

func TestReadDataset_Semicolon(t *testing.T) {
	path := writeFile(t, "meas.csv", "time;P\n01/02/2024 10:00;5\n")

	f, err := NewDataReader(Options{Comma: ';', TimeLayout: "01/02/2006 15:04"}).ReadDataset(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), f.Index()[0])
}

func TestReadDataset_Excel(t *testing.T) {
	wb := excelize.NewFile()
	defer wb.Close()
	sheet := "Measured"
	_, err := wb.NewSheet(sheet)
	require.NoError(t, err)
	rows := [][]any{
		{"Timestamp", "GlobInc", "EOutInv"},
		{"2024-03-01 09:00:00", 750.5, 42},
		{"2024-03-01 10:00:00", 810, 47.25},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, wb.SetSheetRow(sheet, cell, &row))
	}
	path := filepath.Join(t.TempDir(), "meas.xlsx")
	require.NoError(t, wb.SaveAs(path))

	f, err := NewDataReader(Options{Sheet: sheet, TimeColumn: "Timestamp"}).ReadDataset(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())
	p, _ := f.Column("EOutInv")
	assert.Equal(t, []float64{42, 47.25}, p)
}

func TestReadDataset_Errors(t *testing.T) {
	ctx := context.Background()
	r := NewDataReader(Options{TimeColumn: "Timestamp"})

	_, err := r.ReadDataset(ctx, filepath.Join(t.TempDir(), "missing.csv"))
	assert.Equal(t, apperrors.CodeDataSource, apperrors.GetCode(err))

	_, err = r.ReadDataset(ctx, writeFile(t, "data.json", "{}"))
	assert.Equal(t, apperrors.CodeDataSource, apperrors.GetCode(err))

	_, err = r.ReadDataset(ctx, writeFile(t, "hdr.csv", "Timestamp,P\n"))
	assert.Error(t, err)

	_, err = r.ReadDataset(ctx, writeFile(t, "notime.csv", "When,P\n2024-01-01,1\n"))
	assert.ErrorContains(t, err, `time column "Timestamp"`)

	_, err = r.ReadDataset(ctx, writeFile(t, "badtime.csv", "Timestamp,P\nyesterday,1\n"))
	assert.ErrorContains(t, err, "row 2")
}
