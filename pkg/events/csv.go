package events

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	perrors "petsysrecon/pkg/errors"
)

// ReadCSVFile reads an event table from a CSV file whose header row names
// the branches.
func ReadCSVFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event file: %w", err)
	}
	defer f.Close()

	return ReadCSV(f)
}

// ReadCSV reads an event table from CSV data. Every column is parsed as a
// float; a malformed value is a DataError naming the column and line.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, perrors.NewDataError("", "event file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	names := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, perrors.NewDataError("", "column %d has an empty name", i)
		}
		if seen[h] {
			return nil, perrors.NewDataError(h, "duplicate column")
		}
		seen[h] = true
		names[i] = h
	}

	cols := make([][]float64, len(names))
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, perrors.NewDataError("", "line %d: %v", line, err)
		}
		for i, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, perrors.NewDataError(names[i], "line %d: %q is not a number", line, field)
			}
			cols[i] = append(cols[i], v)
		}
	}

	t := NewTable()
	for i, name := range names {
		if cols[i] == nil {
			cols[i] = []float64{}
		}
		if err := t.AddColumn(name, cols[i]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// WriteCSV writes the table with a header row, columns in Names order.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	names := t.Names()
	if err := cw.Write(names); err != nil {
		return err
	}
	rec := make([]string, len(names))
	for r := 0; r < t.Len(); r++ {
		for i, n := range names {
			rec[i] = strconv.FormatFloat(t.columns[n][r], 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
