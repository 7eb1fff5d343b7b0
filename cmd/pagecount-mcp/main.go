package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/pagecount/api/handler"
	"github.com/use-agent/pagecount/archive"
	"github.com/use-agent/pagecount/batch"
	"github.com/use-agent/pagecount/config"
	"github.com/use-agent/pagecount/engine"
	"github.com/use-agent/pagecount/resolver"
)

func main() {
	cfg := config.Load()

	// stdout carries the MCP protocol.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	client := archive.NewClient(archive.Options{
		BaseURL:     cfg.Archive.BaseURL,
		UserAgent:   cfg.Archive.UserAgent,
		Timeout:     cfg.Archive.RequestTimeout,
		ChromeTLS:   cfg.Archive.ChromeTLS,
		StripTokens: cfg.Archive.StripTokens,
	})
	eng, err := engine.New(cfg.Render, client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "renderer: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	res := resolver.New(client, resolver.WithEngine(eng))
	runner := batch.NewRunner(res, cfg.Batch.MinDelay)

	s := server.NewMCPServer(
		"pagecount",
		handler.Version,
		server.WithToolCapabilities(false),
	)

	resolveTool := mcp.NewTool("resolve_page_count",
		mcp.WithDescription("Find the number of pages of a digitised archive.org item. Tries the item's viewer, page index, scan manifest and file listing in turn."),
		mcp.WithString("identifier",
			mcp.Required(),
			mcp.Description("The archive.org item identifier, e.g. 04315104.1697.emory.edu"),
		),
	)
	s.AddTool(resolveTool, handleResolve(runner))

	batchTool := mcp.NewTool("resolve_page_counts",
		mcp.WithDescription("Find page counts for several archive.org items, one at a time with a pause between items to stay polite to the archive."),
		mcp.WithArray("identifiers",
			mcp.Required(),
			mcp.Description("List of archive.org item identifiers"),
		),
		mcp.WithNumber("delay",
			mcp.Description(fmt.Sprintf("Seconds to wait between items (default: %g, minimum: %g)",
				cfg.Batch.Delay.Seconds(), cfg.Batch.MinDelay.Seconds())),
		),
	)
	s.AddTool(batchTool, handleResolveBatch(runner, cfg.Batch.Delay, cfg.Batch.MaxIdentifiers))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
