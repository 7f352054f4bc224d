package render

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/FulgerX2007/csv-scatter-reports/pkg/model"
	"github.com/playwright-community/playwright-go"
)

// PlaywrightRenderer rasterizes charts through a Playwright-driven Chromium
type PlaywrightRenderer struct {
	config     model.RendererConfig
	mu         sync.Mutex
	pw         *playwright.Playwright
	browser    playwright.Browser
	instanceID string
}

// NewPlaywrightRenderer creates a new Playwright renderer instance
func NewPlaywrightRenderer(config model.RendererConfig) *PlaywrightRenderer {
	applyBrowserDefaults(&config)

	instanceID := generateInstanceID()
	log.Printf("[RENDER] Created PlaywrightRenderer instance %s", instanceID)

	return &PlaywrightRenderer{
		config:     config,
		instanceID: instanceID,
	}
}

// getBrowser initializes or returns the existing browser instance
func (r *PlaywrightRenderer) getBrowser() (playwright.Browser, error) {
	if r.browser != nil {
		return r.browser, nil
	}

	// Read-only home directories in containers need a writable cache
	playwrightCache := os.Getenv("PLAYWRIGHT_BROWSERS_PATH")
	if playwrightCache == "" {
		playwrightCache = "/tmp/.playwright-cache"
		os.Setenv("PLAYWRIGHT_BROWSERS_PATH", playwrightCache)
	}
	if err := os.MkdirAll(playwrightCache, 0755); err != nil {
		log.Printf("[RENDER] WARNING: Failed to create Playwright cache directory: %v", err)
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start Playwright: %w (use renderer.backend 'native' or 'chromium' instead)", err)
	}
	r.pw = pw

	launchOptions := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--disable-dev-shm-usage",
			"--disable-gpu",
			"--no-first-run",
			"--no-default-browser-check",
			"--disable-breakpad",
		},
	}

	chromePath := r.config.ChromiumPath
	if chromePath == "" {
		chromePath = findChromeBinary()
	}
	if chromePath != "" {
		launchOptions.ExecutablePath = playwright.String(chromePath)
		log.Printf("[RENDER] Using system Chromium: %s", chromePath)
	} else {
		log.Printf("[RENDER] WARNING: No system Chromium found, will try Playwright's bundled version")
	}

	browser, err := pw.Chromium.Launch(launchOptions)
	if err != nil {
		pw.Stop()
		r.pw = nil
		return nil, fmt.Errorf("failed to launch Chromium: %w", err)
	}

	r.browser = browser
	log.Printf("[RENDER] Playwright browser initialized (instance: %s)", r.instanceID)
	return browser, nil
}

// RenderScatter loads the chart page and screenshots the chart element
func (r *PlaywrightRenderer) RenderScatter(ctx context.Context, ds *model.Dataset, sel model.Selection) (*Chart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

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

	browserCtx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  r.config.ViewportWidth,
			Height: r.config.ViewportHeight,
		},
		DeviceScaleFactor: playwright.Float(r.config.DeviceScaleFactor),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	defer browserCtx.Close()

	page, err := browserCtx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	timeout := float64(r.config.TimeoutMS)
	page.SetDefaultTimeout(timeout)

	if err := page.SetContent(html, playwright.PageSetContentOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
	}); err != nil {
		return nil, fmt.Errorf("failed to load chart page: %w", err)
	}

	if _, err := page.WaitForFunction(`() => window.chartReady || window.chartError !== ""`, nil,
		playwright.PageWaitForFunctionOptions{Timeout: playwright.Float(timeout)}); err != nil {
		return nil, fmt.Errorf("chart did not finish rendering: %w", err)
	}
	if res, err := page.Evaluate(`() => window.chartError`); err == nil {
		if msg, ok := res.(string); ok && msg != "" {
			return nil, fmt.Errorf("chart failed to render: %s", msg)
		}
	}

	png, err := page.Locator("#chart").Screenshot(playwright.LocatorScreenshotOptions{
		Type: playwright.ScreenshotTypePng,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to screenshot chart: %w", err)
	}

	chart, err := newScreenshotChart(png, ds, sel, r.config.DPI)
	if err != nil {
		return nil, err
	}
	log.Printf("[RENDER] Playwright scatter %s vs %s: %dx%d px", sel.Y, sel.X, chart.Width, chart.Height)
	return chart, nil
}

// Close closes the browser and stops the Playwright driver
func (r *PlaywrightRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	if r.browser != nil {
		if err := r.browser.Close(); err != nil {
			firstErr = err
		}
		r.browser = nil
	}
	if r.pw != nil {
		if err := r.pw.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.pw = nil
	}
	return firstErr
}

// Name returns the backend name
func (r *PlaywrightRenderer) Name() string {
	return model.BackendPlaywright
}
