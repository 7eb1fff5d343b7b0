package probe

import (
	"context"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/use-agent/pagecount/archive"
)

// pageIndexToken marks links to an item's page-index document.
const pageIndexToken = "page_numbers.json"

// PageIndex counts the entries of the item's page_numbers.json document.
type PageIndex struct {
	fetch Fetcher
}

// NewPageIndex returns the page-index probe.
func NewPageIndex(f Fetcher) *PageIndex { return &PageIndex{fetch: f} }

func (p *PageIndex) Name() string { return "page_index" }

func (p *PageIndex) Probe(ctx context.Context, t *Target) Result {
	html := t.HTML
	if len(html) == 0 {
		// Standalone use: discover links from a fresh copy of the page.
		if body, err := p.fetch.Get(ctx, t.Item.DetailURL()); err == nil {
			html = body
		}
	}

	discovered := archive.FindLinks(html, t.Item.DetailURL(), pageIndexToken)
	for _, candidate := range RankPageIndexCandidates(t.Item, discovered) {
		body, err := p.fetch.Get(ctx, candidate)
		if err != nil {
			slog.Debug("page index candidate failed", "url", candidate, "error", err)
			continue
		}
		if n := countPages(body); n > 0 {
			return Found(n)
		}
	}
	return NotFound
}

// RankPageIndexCandidates orders the page-index URLs to try: links found on
// the detail page first (they name the real file), then guesses derived
// from each identifier variant. Duplicates keep their best rank.
func RankPageIndexCandidates(item archive.Item, discovered []string) []string {
	ranked := make([]string, 0, len(discovered)+len(item.Variants))
	seen := make(map[string]struct{}, cap(ranked))
	add := func(u string) {
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		ranked = append(ranked, u)
	}

	for _, u := range discovered {
		add(u)
	}
	for _, v := range item.Variants {
		add(item.DownloadURL(v + "_" + pageIndexToken))
	}
	return ranked
}

// countPages returns the number of entries in the document's "pages"
// collection, or 0 when the body is not JSON or the field is missing, empty
// or scalar.
func countPages(body []byte) int {
	if !gjson.ValidBytes(body) {
		return 0
	}
	pages := gjson.GetBytes(body, "pages")
	switch {
	case pages.IsArray():
		return len(pages.Array())
	case pages.IsObject():
		return len(pages.Map())
	default:
		return 0
	}
}
