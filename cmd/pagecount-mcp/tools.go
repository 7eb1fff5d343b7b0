package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/pagecount/batch"
	"github.com/use-agent/pagecount/models"
)

// handleResolve shares the batch runner so a single lookup never overlaps a
// running batch.
func handleResolve(runner *batch.Runner) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("identifier")
		if err != nil || strings.TrimSpace(id) == "" {
			return mcp.NewToolResultError("identifier is required"), nil
		}

		r, err := runner.ResolveOne(ctx, strings.TrimSpace(id))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("resolution cancelled: %v", err)), nil
		}
		if !r.Success {
			return mcp.NewToolResultError(fmt.Sprintf("%s: %s", r.Identifier, r.Error)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%s: %d pages\nSource: %s\nURL: %s",
			r.Identifier, r.Pages(), r.Source, r.URL)), nil
	}
}

func handleResolveBatch(runner *batch.Runner, defaultDelay time.Duration, maxIdentifiers int) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := request.RequireStringSlice("identifiers")
		if err != nil {
			return mcp.NewToolResultError("identifiers is required and must be an array of strings"), nil
		}
		ids := batch.Dedupe(raw)
		if len(ids) == 0 {
			return mcp.NewToolResultError("No identifiers provided"), nil
		}
		if maxIdentifiers > 0 && len(ids) > maxIdentifiers {
			return mcp.NewToolResultError(fmt.Sprintf("maximum %d identifiers per call", maxIdentifiers)), nil
		}

		delay := defaultDelay
		if secs := request.GetFloat("delay", -1); secs >= 0 {
			delay = time.Duration(secs * float64(time.Second))
		}

		results, err := runner.Run(ctx, ids, delay, nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("batch stopped after %d of %d: %v", len(results), len(ids), err)), nil
		}
		return mcp.NewToolResultText(formatResults(results)), nil
	}
}

func formatResults(results []models.ScrapeResult) string {
	s := models.Summarize(results)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Resolved %d identifier(s): %d successful, %d failed\n\n", s.Total, s.Successful, s.Failed)
	for i, r := range results {
		if r.Success {
			fmt.Fprintf(&sb, "[%d] %s: %d pages (%s)\n", i+1, r.Identifier, r.Pages(), r.Source)
		} else {
			fmt.Fprintf(&sb, "[%d] %s: failed: %s\n", i+1, r.Identifier, r.Error)
		}
	}
	return sb.String()
}
