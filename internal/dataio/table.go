// Package dataio reads and writes the numeric tables a calibration consumes and produces:
// comma separated files and OpenSim storage files (.sto, .mot).
package dataio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TimeColumn is the label of the independent column in every table
const TimeColumn = "time"

var (
	// ErrColumnNotFound is returned when a requested column label is missing
	ErrColumnNotFound = errors.New("column not found")
	// ErrUnsupportedFormat is returned for file extensions with no reader or writer
	ErrUnsupportedFormat = errors.New("unsupported table format")
)

// Table is a column-labelled block of numbers. Rows are stored in file order.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]float64
}

// NewTable creates an empty table with the given column labels
func NewTable(name string, columns ...string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{Name: name, Columns: cols}
}

// AppendRow adds a row. The row length must match the number of columns.
func (t *Table) AppendRow(values ...float64) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table %q has %d columns", len(values), t.Name, len(t.Columns))
	}
	row := make([]float64, len(values))
	copy(row, values)
	t.Rows = append(t.Rows, row)
	return nil
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// Index returns the position of a column label, ignoring case and surrounding spaces
func (t *Table) Index(label string) (int, error) {
	want := strings.ToLower(strings.TrimSpace(label))
	for i, c := range t.Columns {
		if strings.ToLower(strings.TrimSpace(c)) == want {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q in table %q", ErrColumnNotFound, label, t.Name)
}

// Column returns a copy of the named column
func (t *Table) Column(label string) ([]float64, error) {
	idx, err := t.Index(label)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Time returns the time column
func (t *Table) Time() ([]float64, error) {
	return t.Column(TimeColumn)
}

type format int

const (
	formatCSV format = iota
	formatSTO
)

func formatOf(path string) (format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return formatCSV, nil
	case ".sto", ".mot":
		return formatSTO, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ReadTable loads a table, choosing the reader from the file extension
func ReadTable(path string) (*Table, error) {
	f, err := formatOf(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table: %w", err)
	}
	defer file.Close()

	var table *Table
	switch f {
	case formatSTO:
		table, err = ReadSTO(file)
	default:
		table, err = ReadCSV(file)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if table.Name == "" {
		table.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return table, nil
}

// WriteTable stores a table, choosing the writer from the file extension. Parent
// directories are created as needed.
func WriteTable(path string, t *Table) error {
	f, err := formatOf(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create table file: %w", err)
	}
	switch f {
	case formatSTO:
		err = WriteSTO(file, t)
	default:
		err = WriteCSV(file, t)
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	return err
}
