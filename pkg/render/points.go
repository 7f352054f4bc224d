package render

import (
	"fmt"

	"github.com/FulgerX2007/csv-scatter-reports/pkg/model"
)

// ChartTitle is the title drawn above every rasterized scatter plot
const ChartTitle = "Scatter Plot"

// point is one plottable row
type point struct {
	X, Y     float64
	Category string  // categorical color value
	Shade    float64 // numeric color value
	HasShade bool
}

// colorMode describes how the color column maps to point colors
type colorMode int

const (
	colorNone colorMode = iota
	colorCategorical
	colorContinuous
)

// plotData is the selection resolved against a dataset
type plotData struct {
	Points     []point
	Mode       colorMode
	Categories []string // distinct categories in first-appearance order
	MinShade   float64
	MaxShade   float64
}

// collectPoints validates the selection and extracts plottable rows.
// Rows whose x or y is missing are skipped.
func collectPoints(ds *model.Dataset, sel model.Selection) (*plotData, error) {
	if err := model.ValidateSelection(ds, sel); err != nil {
		return nil, err
	}

	xCol, _ := ds.Column(sel.X)
	yCol, _ := ds.Column(sel.Y)

	data := &plotData{Mode: colorNone}
	var colorCol *model.Column
	if sel.HasColor() {
		colorCol, _ = ds.Column(sel.Color)
		if colorCol.IsNumeric() {
			data.Mode = colorContinuous
		} else {
			data.Mode = colorCategorical
			data.Categories = ds.Distinct(sel.Color)
		}
	}

	first := true
	for i := 0; i < ds.Rows; i++ {
		x, okX := xCol.Float(i)
		y, okY := yCol.Float(i)
		if !okX || !okY {
			continue
		}
		p := point{X: x, Y: y}
		switch data.Mode {
		case colorCategorical:
			p.Category = ds.Cell(i, colorCol)
		case colorContinuous:
			if v, ok := colorCol.Float(i); ok {
				p.Shade, p.HasShade = v, true
				if first || v < data.MinShade {
					data.MinShade = v
				}
				if first || v > data.MaxShade {
					data.MaxShade = v
				}
				first = false
			}
		}
		data.Points = append(data.Points, p)
	}

	if len(data.Points) == 0 {
		return nil, fmt.Errorf("no plottable points: every row is missing '%s' or '%s'", sel.X, sel.Y)
	}
	if data.Mode == colorContinuous && data.MinShade == data.MaxShade {
		// A flat color scale still needs a non-empty range
		data.MaxShade = data.MinShade + 1
	}

	return data, nil
}

// legendEntries returns the legend labels for a selection: one per distinct
// category of a categorical color column, none otherwise
func legendEntries(ds *model.Dataset, sel model.Selection) []string {
	if !sel.HasColor() {
		return nil
	}
	col, ok := ds.Column(sel.Color)
	if !ok || col.IsNumeric() {
		return nil
	}
	return ds.Distinct(sel.Color)
}
