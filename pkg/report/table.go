package report

import (
	"fmt"
	"math"

	"github.com/FulgerX2007/csv-scatter-reports/pkg/model"
)

// Layout limits for A4 portrait
const (
	MaxPreviewColumns  = 6
	MaxPreviewRows     = 15
	MaxCellChars       = 15
	MaxStatColumns     = 4
	MaxStatHeaderChars = 10

	// NotApplicable replaces statistics that are missing or undefined
	NotApplicable = "N/A"
)

// ReportStats are the statistic rows printed in the report, in order
var ReportStats = []string{"count", "mean", "std", "min", "max"}

// Table is a rectangular block of display text
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// PreviewTable returns the leading corner of the dataset: at most
// MaxPreviewColumns columns and MaxPreviewRows rows, every cell cut to
// MaxCellChars characters. Missing cells are blank.
func PreviewTable(ds *model.Dataset) Table {
	cols := ds.Columns
	if len(cols) > MaxPreviewColumns {
		cols = cols[:MaxPreviewColumns]
	}
	rows := ds.Rows
	if rows > MaxPreviewRows {
		rows = MaxPreviewRows
	}

	t := Table{
		Headers: make([]string, len(cols)),
		Rows:    make([][]string, rows),
	}
	for j, col := range cols {
		t.Headers[j] = Truncate(col.Name, MaxCellChars)
	}
	for i := 0; i < rows; i++ {
		row := make([]string, len(cols))
		for j, col := range cols {
			row[j] = Truncate(ds.Cell(i, col), MaxCellChars)
		}
		t.Rows[i] = row
	}
	return t
}

// StatsTable lays out the report statistics for at most MaxStatColumns numeric columns.
// The first header cell labels the statistic column.
func StatsTable(stats *model.Stats) Table {
	var cols []string
	if stats != nil {
		cols = stats.Columns
	}
	if len(cols) > MaxStatColumns {
		cols = cols[:MaxStatColumns]
	}

	t := Table{Headers: []string{"Statistic"}}
	for _, col := range cols {
		t.Headers = append(t.Headers, Truncate(col, MaxStatHeaderChars))
	}
	for _, stat := range ReportStats {
		row := []string{stat}
		for _, col := range cols {
			v, ok := stats.Get(stat, col)
			if !ok {
				row = append(row, NotApplicable)
				continue
			}
			row = append(row, FormatStat(v))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// FormatStat renders a statistic with two decimals, or NotApplicable when undefined
func FormatStat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NotApplicable
	}
	return fmt.Sprintf("%.2f", v)
}

// Truncate cuts s to at most n characters
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
