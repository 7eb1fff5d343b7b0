package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/pagecount/archive/archivetest"
	"github.com/use-agent/pagecount/models"
)

func TestXLSXPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"results.xlsx", "results.xlsx"},
		{"results.json", "results.xlsx"},
		{"results", "results.xlsx"},
		{"out/run.1.csv", "out/run.1.xlsx"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, xlsxPath(tt.in), tt.in)
	}
}

func TestReadIdentifierFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\n\n b \na\r\nc\n"), 0o644))

	var out bytes.Buffer
	assert.Equal(t, []string{"a", "b", "c"}, readIdentifierFile(&out, path))
	assert.Empty(t, out.String())

	missing := filepath.Join(t.TempDir(), "nope.txt")
	assert.Empty(t, readIdentifierFile(&out, missing))
	assert.Equal(t, "Error: File '"+missing+"' not found.\n", out.String())
}

func TestPromptIdentifiers(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, promptIdentifiers(strings.NewReader("a\n b \n\nc\n")))
	assert.Equal(t, []string{"a"}, promptIdentifiers(strings.NewReader("a")))
	assert.Empty(t, promptIdentifiers(strings.NewReader("")))
}

func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	printSummary(&out, []models.ScrapeResult{
		models.Succeeded("a", "u/a", 12, "viewer"),
		models.Failed("b", "u/b", ""),
	})

	s := out.String()
	assert.Contains(t, s, "SUMMARY\n"+strings.Repeat("=", 60))
	assert.Contains(t, s, "Total processed: 2\nSuccessful: 1\nFailed: 1\n")
	assert.Contains(t, s, "  a: ✓ 12 pages\n")
	assert.Contains(t, s, "  b: ✗ "+models.MsgNotExtracted+"\n")
}

func TestProgressPrinter(t *testing.T) {
	var out bytes.Buffer
	emit := progressPrinter(&out)

	ok := models.Succeeded("a", "u", 7, "viewer")
	bad := models.Failed("b", "u", "boom")
	emit(models.BatchEvent{Type: models.EventProgress, Current: 0, Total: 2, Identifier: "a"})
	emit(models.BatchEvent{Type: models.EventResult, Current: 1, Total: 2, Result: &ok})
	emit(models.BatchEvent{Type: models.EventProgress, Current: 1, Total: 2, Identifier: "b"})
	emit(models.BatchEvent{Type: models.EventResult, Current: 2, Total: 2, Result: &bad})
	emit(models.BatchEvent{Type: models.EventComplete})

	assert.Equal(t,
		"[1/2] Processing: a\n  ✓ Found 7 pages\n[2/2] Processing: b\n  ✗ Error: boom\n",
		out.String())
}

// runCLI executes the root command against a fake archive.
func runCLI(t *testing.T, srv *archivetest.Server, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PAGECOUNT_ARCHIVE_URL", srv.URL)
	t.Setenv("PAGECOUNT_DELAY", "0")
	t.Setenv("PAGECOUNT_MIN_DELAY", "0")
	t.Setenv("PAGECOUNT_RENDER_MODE", "http")

	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.Execute()
	return out.String(), err
}

func viewerItem() *archivetest.Server {
	srv := archivetest.NewServer()
	srv.HandleString("/details/bk", `<html><body><span class="BRcurrentpage">(1/50)</span></body></html>`)
	return srv
}

func TestResolveCommand(t *testing.T) {
	srv := viewerItem()
	defer srv.Close()

	output := filepath.Join(t.TempDir(), "out.json")
	out, err := runCLI(t, srv, "", "resolve", "bk", "bk", "gone", "-o", output, "--json")
	require.NoError(t, err)

	assert.Contains(t, out, "Scraping page numbers for 2 identifier(s)...")
	assert.Contains(t, out, "[1/2] Processing: bk\n  ✓ Found 50 pages\n")
	assert.Contains(t, out, "[2/2] Processing: gone\n  ✗ Error: Identifier not found (404)")
	assert.Contains(t, out, "Successful: 1\nFailed: 1\n")

	saved := strings.TrimSuffix(output, ".json") + ".xlsx"
	assert.Contains(t, out, "Results saved to "+saved)
	assert.FileExists(t, saved)

	assert.Contains(t, out, "JSON Output:\n[")
	assert.Contains(t, out, `"page_number": 50`)
}

func TestResolveCommand_Interactive(t *testing.T) {
	srv := viewerItem()
	defer srv.Close()

	output := filepath.Join(t.TempDir(), "results.xlsx")
	out, err := runCLI(t, srv, "bk\n\n", "resolve", "-o", output)
	require.NoError(t, err)
	assert.Contains(t, out, "Enter identifiers (one per line, empty line to finish):")
	assert.Contains(t, out, "✓ Found 50 pages")
}

func TestResolveCommand_NoIdentifiers(t *testing.T) {
	srv := viewerItem()
	defer srv.Close()

	out, err := runCLI(t, srv, "\n", "resolve", "-f", filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.Contains(t, out, "not found.")
	assert.Contains(t, out, "Error: No identifiers provided.")
	assert.Empty(t, srv.Requests())
}

func TestResolveCommand_DelayFloor(t *testing.T) {
	srv := viewerItem()
	defer srv.Close()
	t.Setenv("PAGECOUNT_MIN_DELAY", "0.5")

	output := filepath.Join(t.TempDir(), "results.xlsx")
	var out bytes.Buffer
	t.Setenv("PAGECOUNT_ARCHIVE_URL", srv.URL)
	root := newRootCmd()
	root.SetArgs([]string{"resolve", "bk", "-d", "0.1", "-o", output})
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "Warning: Delay 0.1s is below minimum 0.5s. Using 0.5s instead.")
	assert.Contains(t, out.String(), "Rate limit: 0.5 seconds between requests")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs([]string{"version"})
	root.SetOut(&out)
	require.NoError(t, root.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "pagecount version "))
}
