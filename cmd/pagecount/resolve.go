package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/use-agent/pagecount/batch"
	"github.com/use-agent/pagecount/config"
	"github.com/use-agent/pagecount/export"
	"github.com/use-agent/pagecount/models"
)

type resolveOptions struct {
	file   string
	output string
	json   bool
	delay  float64
}

func newResolveCmd() *cobra.Command {
	var opts resolveOptions

	cmd := &cobra.Command{
		Use:   "resolve [identifier...]",
		Short: "Resolve page counts for one or more identifiers",
		Example: `  pagecount resolve 04315104.1697
  pagecount resolve 04315104.1697 04315104.1698
  pagecount resolve --file ids.txt --output results.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.file, "file", "f", "", "text file with one identifier per line")
	f.StringVarP(&opts.output, "output", "o", "results.xlsx", "spreadsheet to save results to")
	f.BoolVarP(&opts.json, "json", "j", false, "also print results as JSON")
	f.Float64VarP(&opts.delay, "delay", "d", config.DefaultDelay.Seconds(),
		fmt.Sprintf("seconds between requests (minimum %gs)", config.DefaultMinDelay.Seconds()))
	return cmd
}

func runResolve(cmd *cobra.Command, args []string, opts resolveOptions) error {
	out := cmd.OutOrStdout()

	delay := time.Duration(opts.delay * float64(time.Second))
	if !cmd.Flags().Changed("delay") {
		delay = cfg.Batch.Delay
	}
	if d, clamped := config.ClampDelay(delay, cfg.Batch.MinDelay); clamped {
		fmt.Fprintf(out, "Warning: Delay %gs is below minimum %gs. Using %gs instead.\n",
			delay.Seconds(), d.Seconds(), d.Seconds())
		delay = d
	}

	ids := append([]string(nil), args...)
	if opts.file != "" {
		ids = append(ids, readIdentifierFile(out, opts.file)...)
	}
	if len(batch.Dedupe(ids)) == 0 {
		fmt.Fprintln(out, "No identifiers provided. Enter identifiers (one per line, empty line to finish):")
		ids = promptIdentifiers(cmd.InOrStdin())
	}
	ids = batch.Dedupe(ids)
	if len(ids) == 0 {
		fmt.Fprintln(out, "Error: No identifiers provided.")
		_ = cmd.Usage()
		return errors.New("no identifiers provided")
	}

	res, eng, err := buildResolver(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(out, "Scraping page numbers for %d identifier(s)...\n", len(ids))
	fmt.Fprintf(out, "Rate limit: %g seconds between requests\n\n", delay.Seconds())

	runner := batch.NewRunner(res, cfg.Batch.MinDelay)
	results, runErr := runner.Run(ctx, ids, delay, progressPrinter(out))
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if runErr != nil {
		fmt.Fprintf(out, "\nInterrupted after %d of %d identifier(s).\n", len(results), len(ids))
	}

	printSummary(out, results)

	path, err := export.Save(xlsxPath(opts.output), results)
	if err != nil {
		fmt.Fprintf(out, "\nError saving results: %v\n", err)
	} else {
		fmt.Fprintf(out, "\nResults saved to %s\n", path)
	}

	if opts.json {
		fmt.Fprintln(out, "\nJSON Output:")
		if err := export.WriteJSON(out, results); err != nil {
			return fmt.Errorf("write json: %w", err)
		}
	}
	return runErr
}

// progressPrinter renders batch events as the per-identifier console log.
func progressPrinter(w io.Writer) batch.EmitFunc {
	return func(e models.BatchEvent) {
		switch e.Type {
		case models.EventProgress:
			fmt.Fprintf(w, "[%d/%d] Processing: %s\n", e.Current+1, e.Total, e.Identifier)
		case models.EventResult:
			if e.Result.Success {
				fmt.Fprintf(w, "  ✓ Found %d pages\n", e.Result.Pages())
			} else {
				fmt.Fprintf(w, "  ✗ Error: %s\n", e.Result.Error)
			}
		}
	}
}

func printSummary(w io.Writer, results []models.ScrapeResult) {
	s := models.Summarize(results)
	rule := strings.Repeat("=", 60)

	fmt.Fprintf(w, "\n%s\nSUMMARY\n%s\n", rule, rule)
	fmt.Fprintf(w, "Total processed: %d\n", s.Total)
	fmt.Fprintf(w, "Successful: %d\n", s.Successful)
	fmt.Fprintf(w, "Failed: %d\n", s.Failed)
	fmt.Fprintln(w, "\nResults:")
	for _, r := range results {
		status := fmt.Sprintf("✗ %s", r.Error)
		if r.Success {
			status = fmt.Sprintf("✓ %d pages", r.Pages())
		}
		fmt.Fprintf(w, "  %s: %s\n", r.Identifier, status)
	}
}

// readIdentifierFile returns the non-blank lines of path. A missing or
// unreadable file is reported and contributes nothing.
func readIdentifierFile(w io.Writer, path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(w, "Error: File '%s' not found.\n", path)
		} else {
			fmt.Fprintf(w, "Error: reading '%s': %v\n", path, err)
		}
		return nil
	}
	return batch.ParseList(string(data))
}

// promptIdentifiers reads identifiers until an empty line or EOF.
func promptIdentifiers(r io.Reader) []string {
	var ids []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			break
		}
		ids = append(ids, line)
	}
	return ids
}

// xlsxPath forces the .xlsx extension onto an output name.
func xlsxPath(name string) string {
	if strings.HasSuffix(name, ".xlsx") {
		return name
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".xlsx"
}
