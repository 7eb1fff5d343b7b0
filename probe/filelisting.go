package probe

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/use-agent/pagecount/archive"
)

// rePageNumber matches "page12", "page_012", "Page-7" in file names.
var rePageNumber = regexp.MustCompile(`(?i)page[_-]?(\d+)`)

// FileListing infers the page count from page-image names in the item's
// file listing, falling back to the number of page images.
type FileListing struct {
	fetch Fetcher
}

// NewFileListing returns the file-listing probe.
func NewFileListing(f Fetcher) *FileListing { return &FileListing{fetch: f} }

func (p *FileListing) Name() string { return "file_listing" }

func (p *FileListing) Probe(ctx context.Context, t *Target) Result {
	md, err := p.fetch.Metadata(ctx, t.Item)
	if err != nil {
		slog.Debug("file listing: metadata unavailable", "identifier", t.Item.Identifier, "error", err)
		return NotFound
	}
	return PagesFromListing(md.Files)
}

// PagesFromListing applies the file-listing heuristic to a listing: the
// highest page number in a page-image name, else the count of page images.
func PagesFromListing(files []archive.File) Result {
	var pages []string
	for _, f := range files {
		if isPageImage(f) {
			pages = append(pages, f.Name)
		}
	}
	if len(pages) == 0 {
		return NotFound
	}
	if n := maxPageNumber(pages); n > 0 {
		return Found(n)
	}
	return Found(len(pages))
}

func isPageImage(f archive.File) bool {
	if f.Format != "JPEG" && f.Format != "JPEG Thumb" {
		return false
	}
	lower := strings.ToLower(f.Name)
	return strings.Contains(lower, "page") ||
		strings.HasSuffix(lower, ".jpg") ||
		strings.HasSuffix(lower, ".jpeg")
}

// LastResort re-reads the file listing and trusts only an explicit page
// number above 1 in a JPEG name. Unlike FileListing it never falls back to
// counting files, which over-counts when names carry no number.
type LastResort struct {
	fetch Fetcher
}

// NewLastResort returns the final filename scan.
func NewLastResort(f Fetcher) *LastResort { return &LastResort{fetch: f} }

func (p *LastResort) Name() string { return "last_resort" }

func (p *LastResort) Probe(ctx context.Context, t *Target) Result {
	md, err := p.fetch.Metadata(ctx, t.Item)
	if err != nil {
		return NotFound
	}

	var names []string
	for _, f := range md.Files {
		if f.Format == "JPEG" && strings.Contains(strings.ToLower(f.Name), "page") {
			names = append(names, f.Name)
		}
	}
	if n := maxPageNumber(names); n > 1 {
		return Found(n)
	}
	return NotFound
}

// maxPageNumber returns the largest page number found in names, or 0.
func maxPageNumber(names []string) int {
	best := 0
	for _, name := range names {
		m := rePageNumber.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > best {
			best = n
		}
	}
	return best
}
