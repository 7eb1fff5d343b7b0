// Package engine fetches an item's detail page, either as a plain HTTP
// document or rendered by a headless browser.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/use-agent/pagecount/archive"
	"github.com/use-agent/pagecount/config"
)

// Engine is the interface that all fetch engines must implement.
type Engine interface {
	// Name returns the engine identifier (e.g. "http", "rod", "rod-stealth").
	Name() string

	// Fetch retrieves the page content for the given request. A non-2xx
	// response is reported as *archive.StatusError.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)

	// Close releases engine resources (browser processes).
	Close() error
}

// FetchRequest contains everything an engine needs to fetch a page.
type FetchRequest struct {
	URL     string
	Timeout time.Duration
}

// FetchResult is the output of a successful engine fetch.
type FetchResult struct {
	HTML       []byte
	Title      string
	StatusCode int
	FinalURL   string
	EngineName string
}

// Render modes accepted by New.
const (
	ModeHTTP    = "http"
	ModeBrowser = "browser"
	ModeAuto    = "auto"
)

// New builds the engine selected by cfg.Mode. Browser engines launch
// Chromium lazily on their first fetch.
func New(cfg config.RenderConfig, client *archive.Client) (Engine, error) {
	switch cfg.Mode {
	case "", ModeHTTP:
		return NewHTTPEngine(client), nil
	case ModeBrowser:
		return NewRodEngine(cfg, client.UserAgentString()), nil
	case ModeAuto:
		return NewChain(NewHTTPEngine(client), NewRodEngine(cfg, client.UserAgentString())), nil
	default:
		return nil, fmt.Errorf("engine: unknown render mode %q", cfg.Mode)
	}
}
