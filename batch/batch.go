// Package batch resolves lists of identifiers one at a time, pausing
// between archive visits and reporting progress as it goes.
package batch

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/pagecount/config"
	"github.com/use-agent/pagecount/models"
)

// Resolver produces a verdict for one identifier.
type Resolver interface {
	Resolve(ctx context.Context, identifier string) models.ScrapeResult
}

// EmitFunc receives batch events in order. It is called on the goroutine
// running the batch.
type EmitFunc func(models.BatchEvent)

// WaitFunc pauses for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Runner executes batches and single resolutions strictly sequentially.
// Concurrent calls to Run and ResolveOne queue behind each other, so at most
// one archive request is in flight and consecutive identifiers are at least
// minDelay apart.
type Runner struct {
	resolver Resolver
	minDelay time.Duration
	wait     WaitFunc
	now      func() time.Time

	mu        sync.Mutex
	lastVisit time.Time // guarded by mu
	busy      atomic.Bool
}

// NewRunner creates a Runner. Delays below minDelay are raised to it.
func NewRunner(r Resolver, minDelay time.Duration) *Runner {
	return &Runner{resolver: r, minDelay: minDelay, wait: sleepCtx, now: time.Now}
}

// SetWait replaces the pause function (tests).
func (r *Runner) SetWait(w WaitFunc) { r.wait = w }

// Busy reports whether a batch is currently running.
func (r *Runner) Busy() bool { return r.busy.Load() }

// EffectiveDelay clamps delay to the runner's floor, logging a warning when
// it had to be raised.
func (r *Runner) EffectiveDelay(delay time.Duration) time.Duration {
	d, clamped := config.ClampDelay(delay, r.minDelay)
	if clamped {
		slog.Warn("delay below minimum, using minimum", "requested", delay, "minimum", r.minDelay)
	}
	return d
}

// Run resolves identifiers in order after removing duplicates. It waits
// delay before every identifier except the first and emits a progress
// event before and a result event after each one, then a single complete
// event. When ctx is cancelled between identifiers, Run stops and returns
// the results gathered so far together with ctx's error; no complete event
// is sent in that case.
func (r *Runner) Run(ctx context.Context, identifiers []string, delay time.Duration, emit EmitFunc) ([]models.ScrapeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy.Store(true)
	defer r.busy.Store(false)

	if emit == nil {
		emit = func(models.BatchEvent) {}
	}

	ids := Dedupe(identifiers)
	delay = r.EffectiveDelay(delay)
	total := len(ids)
	results := make([]models.ScrapeResult, 0, total)

	slog.Info("batch started", "identifiers", total, "delay", delay)
	start := time.Now()

	for i, id := range ids {
		if i == 0 {
			if err := r.pace(ctx); err != nil {
				slog.Warn("batch cancelled", "completed", 0, "total", total, "error", err)
				return results, err
			}
		} else {
			if err := r.wait(ctx, delay); err != nil {
				slog.Warn("batch cancelled", "completed", i, "total", total, "error", err)
				return results, err
			}
		}
		if err := ctx.Err(); err != nil {
			slog.Warn("batch cancelled", "completed", i, "total", total, "error", err)
			return results, err
		}

		emit(models.BatchEvent{
			Type:       models.EventProgress,
			Current:    i,
			Total:      total,
			Percent:    percent(i, total),
			Identifier: id,
			Status:     "processing",
			Delay:      delay.Seconds(),
		})

		res := r.resolver.Resolve(ctx, id)
		r.lastVisit = r.now()
		results = append(results, res)

		emit(models.BatchEvent{
			Type:    models.EventResult,
			Current: i + 1,
			Total:   total,
			Percent: percent(i+1, total),
			Result:  &res,
		})
	}

	summary := models.Summarize(results)
	emit(models.BatchEvent{
		Type:    models.EventComplete,
		Results: results,
		Summary: &summary,
	})

	slog.Info("batch finished",
		"total", summary.Total,
		"successful", summary.Successful,
		"failed", summary.Failed,
		"elapsed", time.Since(start),
	)
	return results, nil
}

// ResolveOne resolves a single identifier under the same lock as Run. It
// first waits out whatever remains of minDelay since the previous archive
// visit; the only error is ctx ending during that wait.
func (r *Runner) ResolveOne(ctx context.Context, identifier string) (models.ScrapeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.pace(ctx); err != nil {
		return models.ScrapeResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.ScrapeResult{}, err
	}

	res := r.resolver.Resolve(ctx, identifier)
	r.lastVisit = r.now()
	return res, nil
}

// pace waits until minDelay has passed since the last visit. Callers hold mu.
func (r *Runner) pace(ctx context.Context) error {
	if r.lastVisit.IsZero() || r.minDelay <= 0 {
		return nil
	}
	if d := r.minDelay - r.now().Sub(r.lastVisit); d > 0 {
		return r.wait(ctx, d)
	}
	return nil
}

// Dedupe trims identifiers, drops empty ones and removes duplicates,
// keeping the first occurrence of each.
func Dedupe(identifiers []string) []string {
	seen := make(map[string]struct{}, len(identifiers))
	out := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ParseList splits newline-separated identifiers (an uploaded file or a
// --file argument) and dedupes them.
func ParseList(content string) []string {
	return Dedupe(strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n"))
}

func percent(done, total int) int {
	if total == 0 {
		return 100
	}
	return done * 100 / total
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
