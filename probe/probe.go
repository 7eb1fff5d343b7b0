// Package probe implements the independent page-count extraction strategies.
//
// A probe never returns an error: fetch faults, non-2xx responses and parse
// failures all degrade to NotFound so the resolver can move on.
package probe

import (
	"context"

	"github.com/use-agent/pagecount/archive"
)

// Result is the outcome of a probe: a positive page count or NotFound.
type Result struct {
	pages int
}

// NotFound is the result of a probe that could not determine a count.
var NotFound = Result{}

// Found returns a result carrying pages. Non-positive counts are NotFound.
func Found(pages int) Result {
	if pages <= 0 {
		return NotFound
	}
	return Result{pages: pages}
}

// Pages returns the count and whether one was found.
func (r Result) Pages() (int, bool) {
	return r.pages, r.pages > 0
}

// OK reports whether the probe found a count.
func (r Result) OK() bool { return r.pages > 0 }

// Target is what a probe works on: one normalized item and, when the
// resolver has already fetched it, the item's detail page.
type Target struct {
	Item archive.Item
	HTML []byte
}

// Probe is one self-contained extraction strategy.
type Probe interface {
	// Name identifies the strategy in logs and results (e.g. "viewer").
	Name() string

	// Probe runs the strategy. It must not block beyond ctx and its own
	// per-request timeouts.
	Probe(ctx context.Context, t *Target) Result
}

// Fetcher is the subset of *archive.Client the probes depend on.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
	Metadata(ctx context.Context, item archive.Item) (*archive.Metadata, error)
}
