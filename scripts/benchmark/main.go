package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// CLI flags
var (
	apiURL  = flag.String("api-url", "http://localhost:5000", "pagecount API base URL")
	apiKey  = flag.String("api-key", "", "API key for authenticated requests")
	idsFile = flag.String("ids", "", "file with one identifier per line (default: built-in sample)")
	runs    = flag.Int("runs", 3, "number of runs per identifier")
	pause   = flag.Duration("pause", 1500*time.Millisecond, "pause between requests")
	output  = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// sampleIDs cover the usual item shapes: viewer items, institution-suffixed
// scans and items only countable from their file listing.
var sampleIDs = []string{
	"04315104.1697.emory.edu",
	"04315104.1698.emory.edu",
	"cu31924013338359",
	"alicesadventures00carr",
	"gri_33125001103394",
}

type resolveRequest struct {
	Identifier string `json:"identifier"`
}

type resolveResponse struct {
	Identifier string `json:"identifier"`
	PageCount  *int   `json:"page_number"`
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Source     string `json:"source"`
}

type runResult struct {
	Run       int    `json:"run"`
	LatencyMs int64  `json:"latency_ms"`
	Pages     int    `json:"pages,omitempty"`
	Source    string `json:"source,omitempty"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

type idResult struct {
	Identifier   string      `json:"identifier"`
	Runs         []runResult `json:"runs"`
	AvgLatencyMs float64     `json:"avg_latency_ms"`
	Stable       bool        `json:"stable"` // every successful run agreed on the count
}

type benchmarkReport struct {
	Timestamp string     `json:"timestamp"`
	APIURL    string     `json:"api_url"`
	RunsPerID int        `json:"runs_per_id"`
	Results   []idResult `json:"results"`
}

func main() {
	flag.Parse()

	ids := sampleIDs
	if *idsFile != "" {
		data, err := os.ReadFile(*idsFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		ids = splitLines(string(data))
	}

	fmt.Println("=== pagecount benchmark ===")
	fmt.Printf("API URL:   %s\n", *apiURL)
	fmt.Printf("IDs:       %d\n", len(ids))
	fmt.Printf("Runs/ID:   %d\n", *runs)
	fmt.Printf("Output:    %s\n", *output)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		fmt.Fprintf(os.Stderr, "Make sure the server is running (pagecount serve)\n")
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		APIURL:    *apiURL,
		RunsPerID: *runs,
	}

	client := &http.Client{Timeout: 90 * time.Second}
	first := true
	for _, id := range ids {
		fmt.Printf("Resolving %s ...\n", id)
		ir := idResult{Identifier: id}

		for i := 1; i <= *runs; i++ {
			if !first {
				time.Sleep(*pause)
			}
			first = false

			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := resolveOnce(client, id, i)
			if rr.Success {
				fmt.Printf("OK  %dms  %d pages (%s)\n", rr.LatencyMs, rr.Pages, rr.Source)
			} else {
				fmt.Printf("FAILED: %s\n", rr.Error)
			}
			ir.Runs = append(ir.Runs, rr)
		}

		ir.AvgLatencyMs, ir.Stable = summarize(ir.Runs)
		report.Results = append(report.Results, ir)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func resolveOnce(client *http.Client, id string, run int) runResult {
	rr := runResult{Run: run}

	body, err := json.Marshal(resolveRequest{Identifier: id})
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := http.NewRequest(http.MethodPost, *apiURL+"/api/v1/resolve", bytes.NewReader(body))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()
	rr.LatencyMs = time.Since(start).Milliseconds()

	if resp.StatusCode != http.StatusOK {
		rr.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return rr
	}

	var r resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}

	rr.Success = r.Success
	rr.Source = r.Source
	rr.Error = r.Error
	if r.PageCount != nil {
		rr.Pages = *r.PageCount
	}
	return rr
}

// summarize averages latency over successful runs and reports whether they
// all returned the same count.
func summarize(runs []runResult) (avgMs float64, stable bool) {
	var n int
	pages := -1
	stable = true
	for _, r := range runs {
		if !r.Success {
			continue
		}
		n++
		avgMs += float64(r.LatencyMs)
		if pages >= 0 && r.Pages != pages {
			stable = false
		}
		pages = r.Pages
	}
	if n == 0 {
		return 0, false
	}
	return avgMs / float64(n), stable
}

func printTable(results []idResult) {
	fmt.Println(strings.Repeat("─", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Identifier\tAvg Latency\tPages\tSource\tStable\n")
	fmt.Fprintf(w, "──────────\t───────────\t─────\t──────\t──────\n")

	for _, r := range results {
		last := lastSuccess(r.Runs)
		if last == nil {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\t-\n", truncate(r.Identifier, 40))
			continue
		}
		fmt.Fprintf(w, "%s\t%dms\t%d\t%s\t%v\n",
			truncate(r.Identifier, 40),
			int64(r.AvgLatencyMs),
			last.Pages,
			last.Source,
			r.Stable,
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 85))
}

func lastSuccess(runs []runResult) *runResult {
	for i := len(runs) - 1; i >= 0; i-- {
		if runs[i].Success {
			return &runs[i]
		}
	}
	return nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
