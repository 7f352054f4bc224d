package ingest

import (
	"bytes"
	"fmt"
	"log"
	"strings"

	"github.com/FulgerX2007/csv-scatter-reports/pkg/model"
	"github.com/xuri/excelize/v2"
)

// ParseXLSX reads the first sheet of a workbook. The first non-empty row is
// the header; cells are classified the same way as CSV text cells.
func ParseXLSX(name string, data []byte) (*model.Dataset, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open workbook %s: %v", model.ErrMalformedInput, name, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook %s has no sheets", model.ErrMalformedInput, name)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read sheet %q: %v", model.ErrMalformedInput, sheets[0], err)
	}

	// Skip leading blank rows
	for len(rows) > 0 && isBlank(rows[0]) {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: sheet %q is empty", model.ErrMalformedInput, sheets[0])
	}

	headers := uniqueNames(rows[0])
	body := rows[1:]

	ds := &model.Dataset{Name: name, Rows: len(body)}
	for c, header := range headers {
		cells := make([]*string, len(body))
		for r, row := range body {
			// GetRows trims trailing empty cells, so short rows are padded with missing values
			if c < len(row) && row[c] != "" {
				value := row[c]
				cells[r] = &value
			}
		}
		ds.Columns = append(ds.Columns, classify(header, cells))
	}

	if err := checkDataset(ds); err != nil {
		return nil, err
	}

	log.Printf("[INGEST] Parsed workbook %s (sheet %q): %d rows, %d columns", name, sheets[0], ds.Rows, len(ds.Columns))
	return ds, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// uniqueNames fills blank headers and suffixes duplicates (x, x.1, x.2)
func uniqueNames(header []string) []string {
	names := make([]string, len(header))
	seen := make(map[string]int)
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, ok := seen[h]; ok {
			seen[h] = n + 1
			h = fmt.Sprintf("%s.%d", h, n+1)
		} else {
			seen[h] = 0
		}
		names[i] = h
	}
	return names
}
