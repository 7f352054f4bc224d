package render

import (
	"context"
	"fmt"

	"github.com/FulgerX2007/csv-scatter-reports/pkg/model"
)

// Backend defines the interface for chart rasterization backends
type Backend interface {
	// RenderScatter rasterizes the scatter plot of the selected columns to PNG
	RenderScatter(ctx context.Context, ds *model.Dataset, sel model.Selection) (*Chart, error)

	// Close cleans up resources used by the backend
	Close() error

	// Name returns the name of the backend
	Name() string
}

// Chart is a rasterized scatter plot ready for embedding in a document
type Chart struct {
	PNG      []byte
	Legend   []string // one entry per distinct category when colored by a categorical column
	ColorBar bool     // true when colored by a numeric column
	DPI      int
	Width    int // pixels
	Height   int // pixels
}

// NewBackend creates the rendering backend named in the config
func NewBackend(config model.RendererConfig) (Backend, error) {
	switch config.Backend {
	case "", model.BackendNative:
		return NewNativeRenderer(config), nil
	case model.BackendChromium:
		return NewChromiumRenderer(config), nil
	case model.BackendPlaywright:
		return NewPlaywrightRenderer(config), nil
	default:
		return nil, fmt.Errorf("unknown renderer backend '%s'", config.Backend)
	}
}
