package render

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"log"

	"github.com/FulgerX2007/csv-scatter-reports/pkg/model"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/brewer"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

var (
	steelBlue   = color.NRGBA{R: 70, G: 130, B: 180, A: 179} // alpha 0.7
	missingGray = color.NRGBA{R: 160, G: 160, B: 160, A: 179}
	gridColor   = color.Gray{Y: 200}
)

const (
	pointRadius   = vg.Length(3.5)
	colorBarWidth = 1.1 * vg.Inch
)

// NativeRenderer rasterizes charts in-process with gonum/plot
type NativeRenderer struct {
	config model.RendererConfig
}

// NewNativeRenderer creates a new in-process renderer
func NewNativeRenderer(config model.RendererConfig) *NativeRenderer {
	if config.DPI == 0 {
		config.DPI = 300
	}
	if config.WidthIn == 0 {
		config.WidthIn = 10
	}
	if config.HeightIn == 0 {
		config.HeightIn = 6
	}
	return &NativeRenderer{config: config}
}

// RenderScatter draws the scatter plot and encodes it as PNG at the configured DPI
func (r *NativeRenderer) RenderScatter(ctx context.Context, ds *model.Dataset, sel model.Selection) (*Chart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := collectPoints(ds, sel)
	if err != nil {
		return nil, err
	}

	p := plot.New()
	p.Title.Text = ChartTitle
	p.X.Label.Text = sel.X
	p.Y.Label.Text = sel.Y
	grid := plotter.NewGrid()
	grid.Vertical.Color = gridColor
	grid.Horizontal.Color = gridColor
	p.Add(grid)

	chart := &Chart{DPI: r.config.DPI}
	var colorBar *plot.Plot

	switch data.Mode {
	case colorCategorical:
		chart.Legend, err = addCategorySeries(p, data)
	case colorContinuous:
		colorBar, err = addShadedSeries(p, data, sel.Color)
		chart.ColorBar = true
	default:
		err = addPlainSeries(p, data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build scatter plot: %w", err)
	}

	width := vg.Length(r.config.WidthIn) * vg.Inch
	height := vg.Length(r.config.HeightIn) * vg.Inch
	img := vgimg.NewWith(vgimg.UseWH(width, height), vgimg.UseDPI(r.config.DPI))
	dc := draw.New(img)

	if colorBar != nil {
		p.Draw(draw.Crop(dc, 0, -colorBarWidth, 0, 0))
		colorBar.Draw(draw.Crop(dc, width-colorBarWidth, 0, 0, 0))
	} else {
		p.Draw(dc)
	}

	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode chart PNG: %w", err)
	}

	bounds := img.Image().Bounds()
	chart.PNG = buf.Bytes()
	chart.Width = bounds.Dx()
	chart.Height = bounds.Dy()

	log.Printf("[RENDER] Native scatter %s vs %s: %d points, %d legend entries, %dx%d px @ %d DPI",
		sel.Y, sel.X, len(data.Points), len(chart.Legend), chart.Width, chart.Height, chart.DPI)
	return chart, nil
}

// Close is a no-op; the native renderer holds no resources
func (r *NativeRenderer) Close() error {
	return nil
}

// Name returns the backend name
func (r *NativeRenderer) Name() string {
	return model.BackendNative
}

func newScatter(xys plotter.XYs, c color.Color) (*plotter.Scatter, error) {
	s, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, err
	}
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	s.GlyphStyle.Radius = pointRadius
	s.GlyphStyle.Color = c
	return s, nil
}

func addPlainSeries(p *plot.Plot, data *plotData) error {
	xys := make(plotter.XYs, len(data.Points))
	for i, pt := range data.Points {
		xys[i] = plotter.XY{X: pt.X, Y: pt.Y}
	}
	s, err := newScatter(xys, steelBlue)
	if err != nil {
		return err
	}
	p.Add(s)
	return nil
}

// addCategorySeries adds one scatter per category, colored from the Set3
// palette (cycled past 12 categories), each with its own legend entry
func addCategorySeries(p *plot.Plot, data *plotData) ([]string, error) {
	colors, err := categoryColors()
	if err != nil {
		return nil, err
	}

	byCategory := make(map[string]plotter.XYs, len(data.Categories))
	for _, pt := range data.Points {
		byCategory[pt.Category] = append(byCategory[pt.Category], plotter.XY{X: pt.X, Y: pt.Y})
	}

	legend := make([]string, 0, len(data.Categories))
	for i, category := range data.Categories {
		xys, plotted := byCategory[category]
		if !plotted {
			// Categories without plottable rows still get a legend entry
			xys = plotter.XYs{{}}
		}
		s, err := newScatter(xys, withAlpha(colors[i%len(colors)], 0.7))
		if err != nil {
			return nil, err
		}
		if plotted {
			p.Add(s)
		}
		p.Legend.Add(category, s)
		legend = append(legend, category)
	}

	p.Legend.Top = true
	return legend, nil
}

// addShadedSeries colors each point through a continuous color map and
// returns the companion color bar plot
func addShadedSeries(p *plot.Plot, data *plotData, colorColumn string) (*plot.Plot, error) {
	cm := moreland.Kindlmann()
	cm.SetMin(data.MinShade)
	cm.SetMax(data.MaxShade)

	xys := make(plotter.XYs, len(data.Points))
	for i, pt := range data.Points {
		xys[i] = plotter.XY{X: pt.X, Y: pt.Y}
	}
	s, err := newScatter(xys, steelBlue)
	if err != nil {
		return nil, err
	}
	s.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		style := s.GlyphStyle
		pt := data.Points[i]
		if !pt.HasShade {
			style.Color = missingGray
			return style
		}
		c, err := cm.At(pt.Shade)
		if err != nil {
			style.Color = missingGray
			return style
		}
		style.Color = withAlpha(c, 0.7)
		return style
	}
	p.Add(s)

	bar := plot.New()
	bar.Title.Text = colorColumn
	bar.HideX()
	bar.Add(&plotter.ColorBar{ColorMap: cm, Vertical: true})
	return bar, nil
}

func categoryColors() ([]color.Color, error) {
	pal, err := brewer.GetPalette(brewer.TypeQualitative, "Set3", 12)
	if err != nil {
		return nil, fmt.Errorf("failed to load Set3 palette: %w", err)
	}
	return pal.Colors(), nil
}

func withAlpha(c color.Color, alpha float64) color.Color {
	r, g, b, _ := c.RGBA()
	return color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(alpha * 255)}
}
