package probe

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

var (
	reSlashPair = regexp.MustCompile(`\((\d+)/(\d+)\)`)
	reOfPair    = regexp.MustCompile(`(?i)\((\d+)[\s\x{00a0}]+of[\s\x{00a0}]+(\d+)\)`)
)

// viewerMarkers are the page-indicator elements of the embedded book
// viewer, most specific first.
var viewerMarkers = []cascadia.Selector{
	cascadia.MustCompile(".BRcurrentpage.BRmax"),
	cascadia.MustCompile(".BRcurrentpage.BRmin"),
	cascadia.MustCompile(`[class*="BRcurrentpage"]`),
}

// Viewer reads the "current/total" indicator of the item's book viewer out
// of the already-fetched detail page. It performs no I/O.
type Viewer struct{}

// NewViewer returns the viewer-text probe.
func NewViewer() *Viewer { return &Viewer{} }

func (v *Viewer) Name() string { return "viewer" }

func (v *Viewer) Probe(_ context.Context, t *Target) Result {
	if t == nil || len(t.HTML) == 0 {
		return NotFound
	}
	return ViewerTotal(t.HTML)
}

// ViewerTotal extracts the total page count from detail-page HTML.
//
// The whole document is scanned for "(N/M)" and "(N of M)" and the largest M
// wins; a total of 1 is a viewer placeholder and is ignored. When the text
// scan finds nothing usable, the viewer's marked indicator elements are
// checked one by one.
func ViewerTotal(rawHTML []byte) Result {
	if total := maxTotal(string(rawHTML)); total > 1 {
		return Found(total)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rawHTML))
	if err != nil {
		return NotFound
	}

	for _, marker := range viewerMarkers {
		var found Result
		doc.FindMatcher(marker).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if total := maxTotal(strings.TrimSpace(s.Text())); total > 1 {
				found = Found(total)
				return false
			}
			return true
		})
		if found.OK() {
			return found
		}
	}
	return NotFound
}

// maxTotal returns the largest M across all "(N/M)" and "(N of M)" pairs
// in text, or 0.
func maxTotal(text string) int {
	best := 0
	for _, re := range []*regexp.Regexp{reSlashPair, reOfPair} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			total, err := strconv.Atoi(m[2])
			if err != nil {
				continue
			}
			if total > best {
				best = total
			}
		}
	}
	return best
}
