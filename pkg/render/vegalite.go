package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/FulgerX2007/csv-scatter-reports/pkg/model"
)

// VegaLiteSpec builds the declarative chart shown in the browser: points of
// size 100 on quantitative axes, tooltips for every column, pan/zoom bound to
// the scales, category10 colors for categorical columns and viridis for
// numeric ones.
func VegaLiteSpec(ds *model.Dataset, sel model.Selection) (map[string]interface{}, error) {
	if err := model.ValidateSelection(ds, sel); err != nil {
		return nil, err
	}

	values := make([]map[string]interface{}, ds.Rows)
	for i := 0; i < ds.Rows; i++ {
		row := make(map[string]interface{}, len(ds.Columns))
		for _, col := range ds.Columns {
			if col.IsNumeric() {
				if v, ok := col.Float(i); ok {
					row[col.Name] = v
				} else {
					row[col.Name] = nil
				}
				continue
			}
			if col.Missing[i] {
				row[col.Name] = nil
			} else {
				row[col.Name] = col.Text[i]
			}
		}
		values[i] = row
	}

	tooltip := make([]map[string]interface{}, 0, len(ds.Columns))
	for _, col := range ds.Columns {
		tooltip = append(tooltip, map[string]interface{}{
			"field": vegaField(col.Name),
			"type":  vegaType(col),
		})
	}

	var colorEnc map[string]interface{}
	if sel.HasColor() {
		col, _ := ds.Column(sel.Color)
		scheme := "category10"
		if col.IsNumeric() {
			scheme = "viridis"
		}
		colorEnc = map[string]interface{}{
			"field": vegaField(col.Name),
			"type":  vegaType(col),
			"scale": map[string]interface{}{"scheme": scheme},
		}
	} else {
		colorEnc = map[string]interface{}{"value": "steelblue"}
	}

	return map[string]interface{}{
		"$schema": "https://vega.github.io/schema/vega-lite/v5.json",
		"title":   ChartTitle,
		"width":   600,
		"height":  400,
		"data":    map[string]interface{}{"values": values},
		"mark":    map[string]interface{}{"type": "point", "size": 100},
		"params": []map[string]interface{}{
			{"name": "zoom", "select": "interval", "bind": "scales"},
		},
		"encoding": map[string]interface{}{
			"x":       map[string]interface{}{"field": vegaField(sel.X), "type": "quantitative", "title": sel.X},
			"y":       map[string]interface{}{"field": vegaField(sel.Y), "type": "quantitative", "title": sel.Y},
			"color":   colorEnc,
			"tooltip": tooltip,
		},
	}, nil
}

func vegaType(col *model.Column) string {
	if col.IsNumeric() {
		return "quantitative"
	}
	return "nominal"
}

// vegaField escapes characters Vega-Lite reads as nested field access
var vegaFieldEscaper = strings.NewReplacer(`\`, `\\`, ".", `\.`, "[", `\[`, "]", `\]`)

func vegaField(name string) string {
	return vegaFieldEscaper.Replace(name)
}

var chartPageTemplate = template.Must(template.New("chart").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<script src="{{.ScriptBase}}/vega@5"></script>
<script src="{{.ScriptBase}}/vega-lite@5"></script>
<script src="{{.ScriptBase}}/vega-embed@6"></script>
<style>body{margin:0;background:#fff}#chart{display:inline-block;padding:8px}</style>
</head>
<body>
<div id="chart"></div>
<script>
window.chartReady = false;
window.chartError = "";
vegaEmbed("#chart", {{.Spec}}, {actions: false, renderer: "canvas"})
  .then(function () { window.chartReady = true; })
  .catch(function (err) { window.chartError = String(err); });
</script>
</body>
</html>`))

// ChartPage renders a standalone HTML page that draws the Vega-Lite chart.
// Browser backends load it and screenshot the #chart element.
func ChartPage(ds *model.Dataset, sel model.Selection, scriptBase string) (string, error) {
	spec, err := VegaLiteSpec(ds, sel)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("failed to encode chart spec: %w", err)
	}

	var buf bytes.Buffer
	err = chartPageTemplate.Execute(&buf, map[string]interface{}{
		"ScriptBase": scriptBase,
		"Spec":       template.JS(raw),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render chart page: %w", err)
	}
	return buf.String(), nil
}
