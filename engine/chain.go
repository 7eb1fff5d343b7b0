package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/use-agent/pagecount/archive"
)

// Chain tries engines one after another, never concurrently. An HTTP
// status from the archive is an answer, not an engine failure, so it is
// returned at once; only transport or browser faults escalate to the next
// engine. The engine that last succeeded is tried first on later fetches.
type Chain struct {
	engines   []Engine
	preferred atomic.Int32
}

// NewChain creates a Chain over engines in escalation order.
func NewChain(engines ...Engine) *Chain {
	return &Chain{engines: engines}
}

func (c *Chain) Name() string {
	if len(c.engines) == 0 {
		return "chain"
	}
	return c.engines[c.preferred.Load()].Name()
}

func (c *Chain) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	var lastErr error
	for _, i := range c.order() {
		eng := c.engines[i]
		if err := ctx.Err(); err != nil {
			return nil, &archive.TransportError{URL: req.URL, Err: err}
		}

		slog.Debug("engine starting", "engine", eng.Name(), "url", req.URL)
		result, err := eng.Fetch(ctx, req)
		if err == nil {
			if int32(i) != c.preferred.Load() {
				slog.Info("engine preference changed", "engine", eng.Name())
				c.preferred.Store(int32(i))
			}
			return result, nil
		}

		var se *archive.StatusError
		if errors.As(err, &se) {
			return nil, err
		}
		slog.Debug("engine failed, escalating", "engine", eng.Name(), "url", req.URL, "error", err)
		lastErr = err
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("chain: no engines configured for %s", req.URL)
	}
	return nil, lastErr
}

// order lists engine indexes with the preferred engine first.
func (c *Chain) order() []int {
	first := int(c.preferred.Load())
	out := make([]int, 0, len(c.engines))
	if first < len(c.engines) {
		out = append(out, first)
	}
	for i := range c.engines {
		if i != first {
			out = append(out, i)
		}
	}
	return out
}

// Close closes every engine and returns the first error.
func (c *Chain) Close() error {
	var first error
	for _, eng := range c.engines {
		if err := eng.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
