package report

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"

	"github.com/FulgerX2007/csv-scatter-reports/pkg/ingest"
	"github.com/FulgerX2007/csv-scatter-reports/pkg/model"
	"github.com/FulgerX2007/csv-scatter-reports/pkg/render"
	"github.com/jung-kurt/gofpdf"
)

const (
	DefaultTitle = "Data Report"

	chartImageName = "scatter-chart"
	chartX         = 10.0
	chartWidth     = 190.0
	rowHeight      = 8.0
	statLabelWidth = 30.0
	statValueWidth = 35.0
)

// Rasterizer produces the static chart embedded in the report
type Rasterizer interface {
	RenderScatter(ctx context.Context, ds *model.Dataset, sel model.Selection) (*render.Chart, error)
}

// Input is everything a report is built from
type Input struct {
	Dataset    *model.Dataset
	Selection  model.Selection
	Stats      *model.Stats // computed from Dataset when nil
	Rasterizer Rasterizer
}

// Result is an assembled report
type Result struct {
	PDF           []byte
	ChartFallback bool   // the chart was replaced by a text line
	ChartError    string // why the chart was replaced
	Pages         int
	Checksum      string // hex sha256 of PDF
}

// Assembler lays out reports with gofpdf
type Assembler struct {
	title string
}

// NewAssembler creates an assembler whose pages carry the given header title
func NewAssembler(title string) *Assembler {
	if title == "" {
		title = DefaultTitle
	}
	return &Assembler{title: title}
}

// Build assembles the report: data preview on page 1, chart and statistics on
// page 2. A chart failure degrades to a text line; any other failure aborts
// and no bytes are returned.
func (a *Assembler) Build(ctx context.Context, in Input) (*Result, error) {
	if in.Dataset == nil {
		return nil, errors.New("report requires a dataset")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stats := in.Stats
	if stats == nil {
		stats = ingest.Describe(in.Dataset)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetHeaderFunc(func() {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 10, tr(a.title), "", 1, "C", false, 0, "")
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	// Page 1: data preview
	pdf.AddPage()
	a.writeSection(pdf, "Data Table")
	pdf.SetFont("Helvetica", "", 9)
	a.writeTable(pdf, tr, PreviewTable(in.Dataset), previewWidths(pdf, in.Dataset))

	// Page 2: chart and statistics
	pdf.AddPage()
	a.writeSection(pdf, render.ChartTitle)

	result := &Result{}
	if err := a.embedChart(ctx, pdf, in); err != nil {
		log.Printf("[REPORT] Chart replaced by placeholder: %v", err)
		result.ChartFallback = true
		result.ChartError = err.Error()
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 10, tr("Chart could not be generated: "+err.Error()), "", 1, "L", false, 0, "")
	}

	pdf.Ln(20)
	a.writeSection(pdf, "Descriptive Statistics")
	pdf.SetFont("Helvetica", "", 9)
	statTable := StatsTable(stats)
	a.writeTable(pdf, tr, statTable, statWidths(len(statTable.Headers)))

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("failed to lay out report: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}

	sum := sha256.Sum256(buf.Bytes())
	result.PDF = buf.Bytes()
	result.Pages = pdf.PageCount()
	result.Checksum = hex.EncodeToString(sum[:])

	log.Printf("[REPORT] Built report: %d pages, %d bytes, chart fallback=%v", result.Pages, len(result.PDF), result.ChartFallback)
	return result, nil
}

func (a *Assembler) writeSection(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 10, title, "", 1, "L", false, 0, "")
}

func (a *Assembler) writeTable(pdf *gofpdf.Fpdf, tr func(string) string, t Table, widths []float64) {
	for j, h := range t.Headers {
		pdf.CellFormat(widths[j], rowHeight, tr(h), "1", 0, "", false, 0, "")
	}
	pdf.Ln(-1)
	for _, row := range t.Rows {
		for j, cell := range row {
			pdf.CellFormat(widths[j], rowHeight, tr(cell), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}
}

// embedChart rasterizes the chart and places it under the section title.
// Rasterizer panics and image decoding errors are returned as errors and
// leave the document usable.
func (a *Assembler) embedChart(ctx context.Context, pdf *gofpdf.Fpdf, in Input) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chart rasterizer panicked: %v", r)
		}
	}()

	if in.Rasterizer == nil {
		return errors.New("no chart rasterizer configured")
	}
	chart, err := in.Rasterizer.RenderScatter(ctx, in.Dataset, in.Selection)
	if err != nil {
		return err
	}
	if chart == nil || len(chart.PNG) == 0 {
		return errors.New("rasterizer returned an empty image")
	}

	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
	pdf.RegisterImageOptionsReader(chartImageName, opts, bytes.NewReader(chart.PNG))
	if !pdf.Ok() {
		err := pdf.Error()
		pdf.ClearError()
		return fmt.Errorf("failed to embed chart image: %w", err)
	}
	pdf.ImageOptions(chartImageName, chartX, pdf.GetY(), chartWidth, 0, true, opts, 0, "")
	return nil
}

// previewWidths splits the printable width evenly across the preview columns
func previewWidths(pdf *gofpdf.Fpdf, ds *model.Dataset) []float64 {
	n := len(ds.Columns)
	if n > MaxPreviewColumns {
		n = MaxPreviewColumns
	}
	widths := make([]float64, n)
	if n == 0 {
		return widths
	}
	pageWidth, _ := pdf.GetPageSize()
	for i := range widths {
		widths[i] = (pageWidth - 20) / float64(n)
	}
	return widths
}

func statWidths(n int) []float64 {
	widths := make([]float64, n)
	for i := range widths {
		if i == 0 {
			widths[i] = statLabelWidth
		} else {
			widths[i] = statValueWidth
		}
	}
	return widths
}
