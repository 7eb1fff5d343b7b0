package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pagecount/batch"
	"github.com/use-agent/pagecount/config"
	"github.com/use-agent/pagecount/export"
	"github.com/use-agent/pagecount/models"
	"github.com/use-agent/pagecount/webhook"
)

// Scrape returns a handler for POST /api/v1/scrape.
//
// The batch runs inside the request and its events are streamed back as
// server-sent events:
//  1. Parse & validate request, dedupe identifiers, pick the delay.
//  2. Stream progress/result events while the runner works.
//  3. Save the results file, then send the complete event.
//  4. Fire the batch.completed webhook when one is configured.
//
// A client that disconnects cancels the batch before its next identifier.
func Scrape(runner *batch.Runner, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		// ── 1. Parse request ────────────────────────────────────────
		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			msg := err.Error()
			if errors.Is(err, io.EOF) {
				msg = "No data provided"
			}
			respondError(c, models.ErrCodeInvalidInput, msg)
			return
		}

		ids := batch.Dedupe(req.Identifiers)
		if len(ids) == 0 {
			respondError(c, models.ErrCodeInvalidInput, "No identifiers provided")
			return
		}
		if limit := cfg.Batch.MaxIdentifiers; limit > 0 && len(ids) > limit {
			respondError(c, models.ErrCodeInvalidInput, fmt.Sprintf("maximum %d identifiers per batch", limit))
			return
		}
		if req.WebhookURL != "" && !webhook.HostAllowed(req.WebhookURL, cfg.Webhook.RequestHosts()) {
			respondError(c, models.ErrCodeInvalidInput, "webhook_url host is not allowed")
			return
		}
		if runner.Busy() {
			respondError(c, models.ErrCodeBusy, "another batch is running, try again when it completes")
			return
		}

		delay := cfg.Batch.Delay
		if req.Delay != nil {
			delay = time.Duration(*req.Delay * float64(time.Second))
		}

		// ── 2. Stream ───────────────────────────────────────────────
		setSSEHeaders(c.Writer)
		c.Status(http.StatusOK)
		c.Writer.Flush()

		emit := func(e models.BatchEvent) {
			// ── 3. Persist before announcing completion ─────────────
			if e.Type == models.EventComplete {
				saveResults(cfg.Batch.ResultsFile, e.Results)
			}
			if err := writeEvent(c.Writer, e); err != nil {
				slog.Debug("SSE write failed (client likely disconnected)",
					"error", err,
					"event_type", e.Type,
				)
			}
		}

		results, err := runner.Run(c.Request.Context(), ids, delay, emit)
		if err != nil {
			slog.Warn("batch aborted", "completed", len(results), "total", len(ids), "error", err)
			return
		}

		// ── 4. Webhook ──────────────────────────────────────────────
		url, secret := req.WebhookURL, req.WebhookSecret
		if url == "" {
			url, secret = cfg.Webhook.URL, cfg.Webhook.Secret
		}
		if url != "" {
			webhook.DeliverAsync(url, secret, webhook.BatchCompleted("batch-"+randomID(), results))
		}
	}
}

// saveResults writes the spreadsheet the download endpoint serves.
func saveResults(path string, results []models.ScrapeResult) {
	if path == "" {
		return
	}
	written, err := export.Save(path, results)
	if err != nil {
		slog.Error("saving results failed", "path", path, "error", err)
		return
	}
	slog.Info("results saved", "path", written, "count", len(results))
}
