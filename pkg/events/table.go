// Package events provides the tabular view of coincidence events consumed
// by the sinogram binner, together with readers for the formats the
// acquisition software produces.
package events

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"petsysrecon/internal/models"
	perrors "petsysrecon/pkg/errors"
)

// DefaultTree is the name of the coincidence tree in acquisition files.
const DefaultTree = "tomographicCoincidences"

// Table is a column-oriented set of event rows with named numeric fields.
// All columns have the same length.
type Table struct {
	columns map[string][]float64
	rows    int
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{columns: make(map[string][]float64)}
}

// FromEvents builds a table holding every event field.
func FromEvents(evts []models.Event) *Table {
	t := NewTable()
	cols := make([][]float64, len(models.EventFields))
	for i := range cols {
		cols[i] = make([]float64, len(evts))
	}
	for r, e := range evts {
		for i, v := range e.Values() {
			cols[i][r] = v
		}
	}
	for i, name := range models.EventFields {
		t.columns[name] = cols[i]
	}
	t.rows = len(evts)
	return t
}

// AddColumn stores values under name. The first column fixes the row count;
// later columns must match it.
func (t *Table) AddColumn(name string, values []float64) error {
	if len(t.columns) > 0 && len(values) != t.rows {
		return perrors.NewDataError(name, "has %d rows, table has %d", len(values), t.rows)
	}
	t.columns[name] = values
	t.rows = len(values)
	return nil
}

// Column returns the values stored under name.
func (t *Table) Column(name string) ([]float64, bool) {
	c, ok := t.columns[name]
	return c, ok
}

// Len returns the number of rows.
func (t *Table) Len() int { return t.rows }

// Names returns the column names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.columns))
	for n := range t.columns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Require fails with a DataError naming the first absent column.
func (t *Table) Require(names ...string) error {
	for _, n := range names {
		if _, ok := t.columns[n]; !ok {
			return perrors.NewDataError(n, "required column is missing")
		}
	}
	return nil
}

// Events converts the table into event records. Every event field must be
// present.
func (t *Table) Events() ([]models.Event, error) {
	if err := t.Require(models.EventFields...); err != nil {
		return nil, err
	}
	cols := make([][]float64, len(models.EventFields))
	for i, name := range models.EventFields {
		cols[i] = t.columns[name]
	}
	out := make([]models.Event, t.rows)
	for r := range out {
		out[r] = models.Event{
			SiPMPosX1:      cols[0][r],
			SiPMPosY1:      cols[1][r],
			SiPMPosX2:      cols[2][r],
			SiPMPosY2:      cols[3][r],
			RSino:          cols[4][r],
			AngleSino:      cols[5][r],
			Energy1:        cols[6][r],
			Energy2:        cols[7][r],
			Slice:          cols[8][r],
			ChipID1:        cols[9][r],
			ChipID2:        cols[10][r],
			RSinoAnger:     cols[11][r],
			AngleSinoAnger: cols[12][r],
		}
	}
	return out, nil
}

// Open reads an event table, choosing the reader from the file extension.
func Open(path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return ReadCSVFile(path)
	case ".root":
		return ReadROOT(path, DefaultTree)
	default:
		return nil, fmt.Errorf("unsupported event file %q (want .csv or .root)", path)
	}
}
