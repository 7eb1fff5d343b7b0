package probe

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/antchfx/xmlquery"

	"github.com/use-agent/pagecount/archive"
)

const (
	scandataToken  = "scandata"
	scandataSuffix = "scandata.xml"

	// leafCountXPath ignores namespaces some scanners put on the document.
	leafCountXPath = "//*[local-name()='leafCount']"
)

var errNoLeafCount = errors.New("no usable leafCount")

// Manifest reads leafCount from the item's scan manifest (scandata.xml),
// either listed directly or inside a zip bundle.
type Manifest struct {
	fetch Fetcher
}

// NewManifest returns the scan-manifest probe.
func NewManifest(f Fetcher) *Manifest { return &Manifest{fetch: f} }

func (m *Manifest) Name() string { return "manifest" }

func (m *Manifest) Probe(ctx context.Context, t *Target) Result {
	var listed []string
	if md, err := m.fetch.Metadata(ctx, t.Item); err == nil {
		listed = scandataFiles(md.Files)
	} else {
		slog.Debug("manifest: metadata unavailable", "identifier", t.Item.Identifier, "error", err)
	}

	for _, name := range manifestCandidates(t.Item, listed) {
		n, err := m.leafCount(ctx, t.Item, name)
		if err != nil {
			slog.Debug("manifest candidate failed", "identifier", t.Item.Identifier, "file", name, "error", err)
			continue
		}
		return Found(n)
	}
	return NotFound
}

// manifestCandidates lists the files to try: every listed scandata file,
// then the conventional "<id>_scandata.xml" unless it was already listed.
func manifestCandidates(item archive.Item, listed []string) []string {
	guess := item.Identifier + "_" + scandataSuffix
	out := make([]string, 0, len(listed)+1)
	out = append(out, listed...)
	for _, name := range listed {
		if name == guess {
			return out
		}
	}
	return append(out, guess)
}

// scandataFiles selects manifest files (xml or zip bundles) from a listing.
func scandataFiles(files []archive.File) []string {
	var names []string
	for _, f := range files {
		lower := strings.ToLower(f.Name)
		if !strings.Contains(lower, scandataToken) {
			continue
		}
		if strings.HasSuffix(lower, ".xml") || strings.HasSuffix(lower, ".zip") {
			names = append(names, f.Name)
		}
	}
	return names
}

func (m *Manifest) leafCount(ctx context.Context, item archive.Item, name string) (int, error) {
	body, err := m.fetch.Get(ctx, item.DownloadURL(name))
	if err != nil {
		return 0, err
	}

	if strings.HasSuffix(strings.ToLower(name), ".zip") {
		body, err = scandataFromZip(body)
		if err != nil {
			return 0, err
		}
	}
	if !utf8.Valid(body) {
		return 0, fmt.Errorf("manifest: %s is not utf-8", name)
	}
	return ParseLeafCount(body)
}

// scandataFromZip returns the first bundle entry named like scandata.xml.
func scandataFromZip(body []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("manifest: open bundle: %w", err)
	}
	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, scandataSuffix) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("manifest: open %s: %w", f.Name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(io.LimitReader(rc, 64<<20))
		if err != nil {
			return nil, fmt.Errorf("manifest: read %s: %w", f.Name, err)
		}
		return data, nil
	}
	return nil, errors.New("manifest: bundle has no scandata.xml")
}

// ParseLeafCount returns the positive integer held by the first leafCount
// element of a scan manifest.
func ParseLeafCount(doc []byte) (int, error) {
	root, err := xmlquery.Parse(bytes.NewReader(doc))
	if err != nil {
		return 0, fmt.Errorf("manifest: parse xml: %w", err)
	}
	node := xmlquery.FindOne(root, leafCountXPath)
	if node == nil {
		return 0, errNoLeafCount
	}
	n, err := strconv.Atoi(strings.TrimSpace(node.InnerText()))
	if err != nil || n <= 0 {
		return 0, errNoLeafCount
	}
	return n, nil
}
