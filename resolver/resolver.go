// Package resolver turns an archive identifier into a page-count verdict by
// fetching the item's detail page once and running the probes in priority
// order.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/pagecount/archive"
	"github.com/use-agent/pagecount/engine"
	"github.com/use-agent/pagecount/models"
	"github.com/use-agent/pagecount/probe"
)

// notFoundFormat is reported when the detail page answers 404 or 410.
const notFoundFormat = "Identifier not found (%d) - URL may be incorrect or item doesn't exist"

// DefaultChain is the standard probe priority: the viewer indicator, the
// page-index document, the scan manifest, then the file listing.
func DefaultChain(f probe.Fetcher) []probe.Probe {
	return []probe.Probe{
		probe.NewViewer(),
		probe.NewPageIndex(f),
		probe.NewManifest(f),
		probe.NewFileListing(f),
	}
}

// Resolver runs the probe cascade for one identifier at a time. It holds no
// per-identifier state, so resolving the same identifier twice against an
// unchanged archive yields equal results.
type Resolver struct {
	client     *archive.Client
	engine     engine.Engine
	chain      []probe.Probe
	lastResort probe.Probe
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithChain replaces the probe priority list.
func WithChain(probes ...probe.Probe) Option {
	return func(r *Resolver) { r.chain = probes }
}

// WithLastResort replaces the final probe. nil disables it.
func WithLastResort(p probe.Probe) Option {
	return func(r *Resolver) { r.lastResort = p }
}

// WithEngine replaces the detail-page engine.
func WithEngine(e engine.Engine) Option {
	return func(r *Resolver) { r.engine = e }
}

// New creates a Resolver. By default the detail page is fetched with the
// plain HTTP engine and the probes run in DefaultChain order.
func New(client *archive.Client, opts ...Option) *Resolver {
	r := &Resolver{
		client:     client,
		engine:     engine.NewHTTPEngine(client),
		chain:      DefaultChain(client),
		lastResort: probe.NewLastResort(client),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EngineName reports the detail-page engine in use.
func (r *Resolver) EngineName() string { return r.engine.Name() }

// Resolve produces the verdict for identifier. It never returns an error:
// every failure is folded into the result.
func (r *Resolver) Resolve(ctx context.Context, identifier string) models.ScrapeResult {
	start := time.Now()
	item := r.client.Item(identifier)
	detailURL := item.DetailURL()

	page, err := r.engine.Fetch(ctx, &engine.FetchRequest{URL: detailURL, Timeout: r.client.Timeout()})
	if err != nil {
		slog.Debug("detail page fetch failed", "identifier", item.Identifier, "url", detailURL, "error", err)
		return models.Failed(item.Identifier, detailURL, DetailError(err))
	}

	target := &probe.Target{Item: item, HTML: page.HTML}
	for _, p := range r.chain {
		if n, ok := r.run(ctx, p, target); ok {
			slog.Info("page count resolved",
				"identifier", item.Identifier,
				"pages", n,
				"probe", p.Name(),
				"elapsed", time.Since(start),
			)
			return models.Succeeded(item.Identifier, detailURL, n, p.Name())
		}
	}

	if r.lastResort != nil {
		if n, ok := r.run(ctx, r.lastResort, target); ok {
			slog.Info("page count resolved by last resort",
				"identifier", item.Identifier,
				"pages", n,
				"elapsed", time.Since(start),
			)
			return models.Succeeded(item.Identifier, detailURL, n, r.lastResort.Name())
		}
	}

	slog.Info("page count not found", "identifier", item.Identifier, "elapsed", time.Since(start))
	return models.Failed(item.Identifier, detailURL, models.MsgNotExtracted)
}

// run executes one probe. A panicking probe counts as NotFound.
func (r *Resolver) run(ctx context.Context, p probe.Probe, t *probe.Target) (n int, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("probe panicked", "probe", p.Name(), "identifier", t.Item.Identifier, "panic", rec)
			n, ok = 0, false
		}
	}()

	n, ok = p.Probe(ctx, t).Pages()
	slog.Debug("probe attempted", "probe", p.Name(), "identifier", t.Item.Identifier, "found", ok, "pages", n)
	return n, ok
}

// DetailError renders a detail-page fetch failure as the message stored on
// the result.
func DetailError(err error) string {
	if se, ok := archive.AsStatusError(err); ok {
		if se.NotFound() {
			return fmt.Sprintf(notFoundFormat, se.StatusCode)
		}
		return se.Error()
	}
	var te *archive.TransportError
	if errors.As(err, &te) {
		return te.Error()
	}
	return "request failed: " + err.Error()
}
