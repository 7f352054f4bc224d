package render

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/png" // decode screenshot bounds
	"log"
	"os"
	"sync"
	"time"

	"github.com/FulgerX2007/csv-scatter-reports/pkg/model"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// ChromiumRenderer rasterizes charts by screenshotting the Vega-Lite page in headless Chromium
type ChromiumRenderer struct {
	config     model.RendererConfig
	mu         sync.Mutex
	browser    *rod.Browser
	instanceID string // Unique ID for this renderer instance
	profileDir string // Unique profile directory for this instance
}

// chromeCandidates lists common Chrome binary locations in order of preference
var chromeCandidates = []string{
	"./chrome-linux64/chrome",
	"/usr/bin/google-chrome",
	"/usr/bin/google-chrome-stable",
	"/usr/bin/chromium",
	"/usr/bin/chromium-browser",
	"/snap/bin/chromium",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
}

// findChromeBinary returns the first executable candidate, or "" to let rod download one
func findChromeBinary() string {
	for _, path := range chromeCandidates {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.Mode()&0111 != 0 {
			log.Printf("[RENDER] Found executable Chrome binary at: %s", path)
			return path
		}
		log.Printf("[RENDER] File exists but is not executable: %s", path)
	}
	return ""
}

// generateInstanceID creates a unique identifier for a renderer instance
func generateInstanceID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// NewChromiumRenderer creates a new Chromium renderer instance
func NewChromiumRenderer(config model.RendererConfig) *ChromiumRenderer {
	applyBrowserDefaults(&config)

	instanceID := generateInstanceID()
	profileDir := fmt.Sprintf("%s/.chromium-profile-%s", os.TempDir(), instanceID)
	log.Printf("[RENDER] Created ChromiumRenderer instance %s, profile dir: %s", instanceID, profileDir)

	return &ChromiumRenderer{
		config:     config,
		instanceID: instanceID,
		profileDir: profileDir,
	}
}

// applyBrowserDefaults fills the viewport and timing defaults shared by browser backends
func applyBrowserDefaults(config *model.RendererConfig) {
	if config.ViewportWidth == 0 {
		config.ViewportWidth = 1000
	}
	if config.ViewportHeight == 0 {
		config.ViewportHeight = 600
	}
	if config.TimeoutMS == 0 {
		config.TimeoutMS = 30000
	}
	if config.DPI == 0 {
		config.DPI = 300
	}
	// CSS pixels are 96 per inch; scale the device so the screenshot reaches the target DPI
	if min := float64(config.DPI) / 96.0; config.DeviceScaleFactor < min {
		config.DeviceScaleFactor = min
	}
	if config.VegaScriptBase == "" {
		config.VegaScriptBase = "https://cdn.jsdelivr.net/npm"
	}
}

// getBrowser initializes or returns the existing browser instance
func (r *ChromiumRenderer) getBrowser() (*rod.Browser, error) {
	if r.browser != nil {
		return r.browser, nil
	}

	if err := os.MkdirAll(r.profileDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	l := launcher.New()

	chromePath := r.config.ChromiumPath
	if chromePath == "" {
		chromePath = findChromeBinary()
	}
	if chromePath != "" {
		l = l.Bin(chromePath)
		log.Printf("[RENDER] Using Chrome binary: %s", chromePath)
	} else {
		log.Printf("[RENDER] WARNING: No Chrome binary found, rod will try to download one")
	}

	// Flags required in containers and as root
	l = l.Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-breakpad").
		Set("user-data-dir", r.profileDir).
		Headless(true)

	launchURL, err := l.Launch()
	if err != nil {
		if chromePath == "" {
			return nil, fmt.Errorf("failed to launch browser: %w (set renderer.chromium_path or install chromium)", err)
		}
		return nil, fmt.Errorf("failed to launch browser at '%s': %w", chromePath, err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	r.browser = browser
	log.Printf("[RENDER] Chromium browser initialized (instance: %s)", r.instanceID)
	return browser, nil
}

// RenderScatter loads the chart page and screenshots the chart element
func (r *ChromiumRenderer) RenderScatter(ctx context.Context, ds *model.Dataset, sel model.Selection) (*Chart, error) {
	html, err := ChartPage(ds, sel, r.config.VegaScriptBase)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	browser, err := r.getBrowser()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             r.config.ViewportWidth,
		Height:            r.config.ViewportHeight,
		DeviceScaleFactor: r.config.DeviceScaleFactor,
		Mobile:            false,
	}); err != nil {
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	page = page.Context(ctx).Timeout(time.Duration(r.config.TimeoutMS) * time.Millisecond)

	if err := page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("failed to load chart page: %w", err)
	}

	if err := page.Wait(rod.Eval(`() => window.chartReady || window.chartError !== ""`)); err != nil {
		return nil, fmt.Errorf("chart did not finish rendering: %w", err)
	}
	if res, err := page.Eval(`() => window.chartError`); err == nil && res.Value.Str() != "" {
		return nil, fmt.Errorf("chart failed to render: %s", res.Value.Str())
	}

	el, err := page.Element("#chart")
	if err != nil {
		return nil, fmt.Errorf("failed to find chart element: %w", err)
	}

	png, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to screenshot chart: %w", err)
	}

	chart, err := newScreenshotChart(png, ds, sel, r.config.DPI)
	if err != nil {
		return nil, err
	}
	log.Printf("[RENDER] Chromium scatter %s vs %s: %dx%d px", sel.Y, sel.X, chart.Width, chart.Height)
	return chart, nil
}

// newScreenshotChart wraps a browser screenshot with the chart metadata
func newScreenshotChart(png []byte, ds *model.Dataset, sel model.Selection, dpi int) (*Chart, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(png))
	if err != nil {
		return nil, fmt.Errorf("screenshot is not a valid image: %w", err)
	}

	chart := &Chart{
		PNG:    png,
		Legend: legendEntries(ds, sel),
		DPI:    dpi,
		Width:  cfg.Width,
		Height: cfg.Height,
	}
	if sel.HasColor() {
		col, _ := ds.Column(sel.Color)
		chart.ColorBar = col.IsNumeric()
	}
	return chart, nil
}

// Close closes the browser instance and removes its profile directory
func (r *ChromiumRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser == nil {
		return nil
	}

	log.Printf("[RENDER] Closing Chromium browser (instance: %s)", r.instanceID)
	err := r.browser.Close()
	r.browser = nil
	os.RemoveAll(r.profileDir)
	return err
}

// Name returns the backend name
func (r *ChromiumRenderer) Name() string {
	return model.BackendChromium
}
