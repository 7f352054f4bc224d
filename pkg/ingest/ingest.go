// Package ingest turns uploaded files into typed datasets and computes
// their descriptive statistics.
package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/FulgerX2007/csv-scatter-reports/pkg/model"
	"github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/imports"
)

// Parse dispatches on the file extension: .xlsx workbooks are read with
// excelize, everything else is treated as CSV.
func Parse(ctx context.Context, name string, data []byte) (*model.Dataset, error) {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return ParseXLSX(name, data)
	}
	return ParseCSV(ctx, name, data)
}

// ParseCSV parses CSV bytes into a dataset. The first record is the header;
// blank and repeated header names are renamed the same way as workbook headers.
// Empty cells are missing values. A column is numeric when every present
// cell parses as a number.
func ParseCSV(ctx context.Context, name string, data []byte) (*model.Dataset, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", model.ErrMalformedInput, name)
	}

	header, records, err := readRecords(data)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", model.ErrMalformedInput, name, err)
	}
	if !hasData(records) {
		return nil, fmt.Errorf("%w: %s has a header but no rows", model.ErrNoNumericColumns, name)
	}

	df, err := loadFrame(ctx, header, data)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", model.ErrMalformedInput, name, err)
	}

	ds := &model.Dataset{Name: name, Rows: df.NRows()}
	for i, series := range df.Series {
		ds.Columns = append(ds.Columns, columnFromSeries(series, ds.Rows, rawCells(records, i, ds.Rows)))
	}

	if err := checkDataset(ds); err != nil {
		return nil, err
	}

	log.Printf("[INGEST] Parsed CSV %s: %d rows, %d columns, %d numeric", name, ds.Rows, len(ds.Columns), len(ds.NumericColumns()))
	return ds, nil
}

var utf8BOM = []byte("\ufeff")

// readRecords reads the header (deduplicated) and the data records
func readRecords(data []byte) ([]string, [][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, nil, err
	}
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	return uniqueNames(header), records, nil
}

func hasData(records [][]string) bool {
	for _, rec := range records {
		if !isBlank(rec) {
			return true
		}
	}
	return false
}

// loadFrame hands dataframe-go the body under the rewritten header.
// dataframe-go panics on some inputs (e.g. repeated series names), so a
// panic is reported as a parse error.
func loadFrame(ctx context.Context, header []string, data []byte) (df *dataframe.DataFrame, err error) {
	defer func() {
		if r := recover(); r != nil {
			df, err = nil, fmt.Errorf("csv loader panicked: %v", r)
		}
	}()

	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true
	if _, err := r.Read(); err != nil {
		return nil, err
	}
	body := data[r.InputOffset():]

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	w.Flush()
	buf.Write(body)

	nilValue := ""
	return imports.LoadFromCSV(ctx, bytes.NewReader(buf.Bytes()), imports.CSVLoadOptions{
		InferDataTypes:   true,
		NilValue:         &nilValue,
		TrimLeadingSpace: true,
	})
}

// rawCells returns column c of the records as it appeared in the file
func rawCells(records [][]string, c, rows int) []*string {
	if len(records) != rows {
		return nil
	}
	cells := make([]*string, rows)
	for i, rec := range records {
		if c < len(rec) && strings.TrimSpace(rec[c]) != "" {
			cell := rec[c]
			cells[i] = &cell
		}
	}
	return cells
}

// columnFromSeries converts a dataframe series into a dataset column.
// Series inferred as int64/float64 are numeric unless their source text is
// not numeric (dataframe-go reads true/false as integers); other series go
// through the same text classification as spreadsheet cells.
func columnFromSeries(series dataframe.Series, rows int, raw []*string) *model.Column {
	switch series.(type) {
	case *dataframe.SeriesFloat64, *dataframe.SeriesInt64:
		if raw != nil && !allNumeric(raw) {
			return classify(series.Name(), raw)
		}
		col := &model.Column{
			Name:    series.Name(),
			Kind:    model.KindNumeric,
			Values:  make([]float64, rows),
			Text:    make([]string, rows),
			Missing: make([]bool, rows),
		}
		present := 0
		for i := 0; i < rows; i++ {
			v, ok := toFloat(series.Value(i))
			if !ok {
				col.Values[i] = math.NaN()
				col.Missing[i] = true
				continue
			}
			present++
			col.Values[i] = v
			col.Text[i] = formatNumber(v)
		}
		if present == 0 {
			col.Kind = model.KindCategorical
			col.Values = nil
		}
		return col
	}

	cells := make([]*string, rows)
	for i := 0; i < rows; i++ {
		v := series.Value(i)
		if v == nil {
			continue
		}
		text := series.ValueString(i)
		cells[i] = &text
	}
	return classify(series.Name(), cells)
}

func allNumeric(cells []*string) bool {
	for _, cell := range cells {
		if cell == nil {
			continue
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(*cell), 64); err != nil {
			return false
		}
	}
	return true
}

// classify builds a column from raw cell text; nil cells are missing
func classify(name string, cells []*string) *model.Column {
	col := &model.Column{
		Name:    name,
		Kind:    model.KindNumeric,
		Values:  make([]float64, len(cells)),
		Text:    make([]string, len(cells)),
		Missing: make([]bool, len(cells)),
	}

	present := 0
	for i, cell := range cells {
		if cell == nil || strings.TrimSpace(*cell) == "" {
			col.Missing[i] = true
			col.Values[i] = math.NaN()
			continue
		}
		present++
		col.Text[i] = *cell
		if col.Kind != model.KindNumeric {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(*cell), 64)
		if err != nil {
			col.Kind = model.KindCategorical
			continue
		}
		col.Values[i] = v
	}

	// An all-empty column carries no numbers to plot
	if present == 0 || col.Kind == model.KindCategorical {
		col.Kind = model.KindCategorical
		col.Values = nil
	}
	return col
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	case int64:
		return float64(n), true
	case *int64:
		if n == nil {
			return 0, false
		}
		return float64(*n), true
	}
	return 0, false
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// checkDataset enforces the dataset invariants shared by every parser
func checkDataset(ds *model.Dataset) error {
	if len(ds.Columns) == 0 {
		return fmt.Errorf("%w: %s has no columns", model.ErrMalformedInput, ds.Name)
	}
	if ds.Rows == 0 {
		return fmt.Errorf("%w: %s has no rows", model.ErrNoNumericColumns, ds.Name)
	}
	if len(ds.NumericColumns()) == 0 {
		return fmt.Errorf("%w: %s", model.ErrNoNumericColumns, ds.Name)
	}
	return nil
}
