package dataio

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	input := "time, ground_force_vy\n# comment\n0,1.5\n0.01,2.5\n\n0.02,3\n"
	table, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"time", "ground_force_vy"}, table.Columns)
	assert.Equal(t, 3, table.Len())
	force, err := table.Column("Ground_Force_VY")
	require.NoError(t, err)
	if diff := cmp.Diff([]float64{1.5, 2.5, 3}, force); diff != "" {
		t.Fatalf("force column mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not numeric", "time,f\n0,abc\n"},
		{"ragged", "time,f\n0,1,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestReadSTO(t *testing.T) {
	input := strings.Join([]string{
		"ground_reaction",
		"version=1",
		"nRows=2",
		"nColumns=3",
		"inDegrees=no",
		"endheader",
		"time\tground_force_vx\tground_force_vy",
		"0.0\t1\t700",
		"0.01   2   710",
		"",
	}, "\n")
	table, err := ReadSTO(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, "ground_reaction", table.Name)
	assert.Equal(t, 2, table.Len())

	vy, err := table.Column("ground_force_vy")
	require.NoError(t, err)
	assert.Equal(t, []float64{700, 710}, vy)
}

func TestReadSTOErrors(t *testing.T) {
	_, err := ReadSTO(strings.NewReader("name\nversion=1\ntime\tf\n0\t1\n"))
	assert.ErrorContains(t, err, "endheader")

	_, err = ReadSTO(strings.NewReader("name\nendheader\n"))
	assert.ErrorContains(t, err, "column labels")

	_, err = ReadSTO(strings.NewReader("endheader\ntime\tf\n0\tx\n"))
	assert.Error(t, err)
}

func TestColumnNotFound(t *testing.T) {
	table := NewTable("t", "time", "a")
	_, err := table.Column("b")
	assert.ErrorIs(t, err, ErrColumnNotFound)
}

func TestAppendRowLengthMismatch(t *testing.T) {
	table := NewTable("t", "time", "a")
	assert.Error(t, table.AppendRow(1))
	assert.NoError(t, table.AppendRow(1, 2))
}

func TestWriteReadRoundTripFormats(t *testing.T) {
	dir := t.TempDir()
	table := NewTable("comparison", "time", "simulation", "experiment")
	require.NoError(t, table.AppendRow(0, 1.25, 1.5))
	require.NoError(t, table.AppendRow(0.01, -3e-7, 2))

	for _, name := range []string{"out.csv", "nested/out.sto", "out.mot"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, WriteTable(path, table))
			got, err := ReadTable(path)
			require.NoError(t, err)
			assert.Equal(t, table.Columns, got.Columns)
			assert.Equal(t, table.Rows, got.Rows)
		})
	}
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := ReadTable("forces.xlsx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.ErrorIs(t, WriteTable(filepath.Join(t.TempDir(), "x.json"), NewTable("t")), ErrUnsupportedFormat)
}

func TestReadTableNamesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walk_grf.csv")
	table := NewTable("", "time", "f")
	require.NoError(t, table.AppendRow(0, 1))
	require.NoError(t, WriteTable(path, table))

	got, err := ReadTable(path)
	require.NoError(t, err)
	assert.Equal(t, "walk_grf", got.Name)
}
