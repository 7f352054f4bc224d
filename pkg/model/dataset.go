package model

import "math"

// ColumnKind classifies a dataset column for axis selection
type ColumnKind string

const (
	KindNumeric     ColumnKind = "numeric"
	KindCategorical ColumnKind = "categorical"
)

// Column is a single homogeneously typed column of a dataset.
// Numeric columns carry parsed values (NaN where the cell is missing);
// every column carries the display text of each cell.
type Column struct {
	Name    string     `json:"name"`
	Kind    ColumnKind `json:"kind"`
	Values  []float64  `json:"-"`
	Text    []string   `json:"-"`
	Missing []bool     `json:"-"`
}

// IsNumeric reports whether the column can be used as a plot axis
func (c *Column) IsNumeric() bool {
	return c.Kind == KindNumeric
}

// Float returns the numeric value at row i and whether it is present
func (c *Column) Float(i int) (float64, bool) {
	if !c.IsNumeric() || i < 0 || i >= len(c.Values) {
		return math.NaN(), false
	}
	if c.Missing[i] {
		return math.NaN(), false
	}
	return c.Values[i], true
}

// Dataset is the in-memory table built from an uploaded file.
// Row order is preserved from the source.
type Dataset struct {
	Name    string    `json:"name"`
	Columns []*Column `json:"columns"`
	Rows    int       `json:"rows"`
}

// ColumnNames returns all column names in source order
func (d *Dataset) ColumnNames() []string {
	names := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		names = append(names, c.Name)
	}
	return names
}

// NumericColumns returns the names of the numeric columns in source order
func (d *Dataset) NumericColumns() []string {
	names := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		if c.IsNumeric() {
			names = append(names, c.Name)
		}
	}
	return names
}

// Column looks up a column by name
func (d *Dataset) Column(name string) (*Column, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Cell returns the display text of a cell; missing cells are empty
func (d *Dataset) Cell(row int, col *Column) string {
	if row < 0 || row >= len(col.Text) || col.Missing[row] {
		return ""
	}
	return col.Text[row]
}

// Distinct returns the distinct non-missing values of a column in first-appearance order
func (d *Dataset) Distinct(name string) []string {
	col, ok := d.Column(name)
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	values := make([]string, 0)
	for i, text := range col.Text {
		if col.Missing[i] || seen[text] {
			continue
		}
		seen[text] = true
		values = append(values, text)
	}
	return values
}

// StatNames lists the rows of the descriptive statistics table in display order
var StatNames = []string{"count", "mean", "std", "min", "25%", "50%", "75%", "max"}

// Stats is the descriptive statistics table: statistic name x numeric column.
// Undefined statistics (e.g. std of a single value) are NaN.
type Stats struct {
	Columns []string                      `json:"columns"`
	Values  map[string]map[string]float64 `json:"-"`
}

// Get returns a statistic for a column; ok is false when the column or statistic is unknown
func (s *Stats) Get(stat, column string) (float64, bool) {
	if s == nil || s.Values == nil {
		return math.NaN(), false
	}
	row, ok := s.Values[stat]
	if !ok {
		return math.NaN(), false
	}
	v, ok := row[column]
	if !ok {
		return math.NaN(), false
	}
	return v, true
}

// Analysis pairs a dataset with the statistics computed from it
type Analysis struct {
	Dataset *Dataset
	Stats   *Stats
}
