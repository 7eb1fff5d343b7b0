package resolver

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/pagecount/archive"
	"github.com/use-agent/pagecount/archive/archivetest"
	"github.com/use-agent/pagecount/models"
	"github.com/use-agent/pagecount/probe"
)

const (
	pageIndexDoc = `{"pages":[{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{},{}]}`
	scandata     = `<book><bookData><leafCount>20</leafCount></bookData></book>`
	listing      = `{"files":[{"name":"bk_scandata.xml","format":"Scandata"},{"name":"page_007.jpg","format":"JPEG"}]}`
)

func newResolver(srv *archivetest.Server, opts ...Option) *Resolver {
	return New(archive.NewClient(archive.Options{BaseURL: srv.URL}), opts...)
}

// fullItem serves every source with a different answer so the winner is
// identifiable from the count alone.
func fullItem(viewer bool) *archivetest.Server {
	srv := archivetest.NewServer()
	detail := `<html><body><a href="/download/bk/bk_page_numbers.json">page numbers</a></body></html>`
	if viewer {
		detail = `<html><body><span class="BRcurrentpage">(1/50)</span><a href="/download/bk/bk_page_numbers.json">x</a></body></html>`
	}
	srv.HandleString("/details/bk", detail)
	srv.HandleString("/download/bk/bk_page_numbers.json", pageIndexDoc)
	srv.HandleString("/metadata/bk", listing)
	srv.HandleString("/download/bk/bk_scandata.xml", scandata)
	return srv
}

func TestResolve_ProbePriority(t *testing.T) {
	t.Run("viewer beats page index", func(t *testing.T) {
		srv := fullItem(true)
		defer srv.Close()

		res := newResolver(srv).Resolve(context.Background(), "bk")
		require.True(t, res.Success)
		assert.Equal(t, 50, res.Pages())
		assert.Equal(t, "viewer", res.Source)
		assert.Equal(t, srv.URL+"/details/bk", res.URL)
		assert.Equal(t, []string{"/details/bk"}, srv.Requests(), "viewer needs no further requests")
	})

	t.Run("page index beats manifest", func(t *testing.T) {
		srv := fullItem(false)
		defer srv.Close()

		res := newResolver(srv).Resolve(context.Background(), "bk")
		require.True(t, res.Success)
		assert.Equal(t, 30, res.Pages())
		assert.Equal(t, "page_index", res.Source)
		assert.Equal(t, 0, srv.Count("/metadata/bk"))
	})

	t.Run("manifest beats file listing", func(t *testing.T) {
		srv := fullItem(false)
		defer srv.Close()
		srv.HandleStatus("/download/bk/bk_page_numbers.json", http.StatusNotFound, nil)

		res := newResolver(srv).Resolve(context.Background(), "bk")
		require.True(t, res.Success)
		assert.Equal(t, 20, res.Pages())
		assert.Equal(t, "manifest", res.Source)
	})

	t.Run("file listing", func(t *testing.T) {
		srv := fullItem(false)
		defer srv.Close()
		srv.HandleStatus("/download/bk/bk_page_numbers.json", http.StatusNotFound, nil)
		srv.HandleStatus("/download/bk/bk_scandata.xml", http.StatusForbidden, nil)

		res := newResolver(srv).Resolve(context.Background(), "bk")
		require.True(t, res.Success)
		assert.Equal(t, 7, res.Pages())
		assert.Equal(t, "file_listing", res.Source)
	})
}

func TestResolve_NothingFound(t *testing.T) {
	srv := archivetest.NewServer()
	defer srv.Close()
	srv.HandleString("/details/empty", `<html><body>nothing here</body></html>`)

	res := newResolver(srv).Resolve(context.Background(), "empty")
	assert.False(t, res.Success)
	assert.Nil(t, res.PageCount)
	assert.Equal(t, models.MsgNotExtracted, res.Error)
	assert.Equal(t, "empty", res.Identifier)
}

func TestResolve_DetailPageErrors(t *testing.T) {
	srv := archivetest.NewServer()
	defer srv.Close()
	srv.HandleStatus("/details/gone", http.StatusGone, nil)
	srv.HandleStatus("/details/broken", http.StatusInternalServerError, nil)

	r := newResolver(srv)

	notFound := r.Resolve(context.Background(), "missing")
	assert.False(t, notFound.Success)
	assert.Equal(t, "Identifier not found (404) - URL may be incorrect or item doesn't exist", notFound.Error)

	gone := r.Resolve(context.Background(), "gone")
	assert.Equal(t, "Identifier not found (410) - URL may be incorrect or item doesn't exist", gone.Error)

	broken := r.Resolve(context.Background(), "broken")
	assert.Equal(t, "HTTP 500 Server Error for url: "+srv.URL+"/details/broken", broken.Error)

	// Failure on the detail page is terminal: no probe runs.
	assert.Equal(t, 0, srv.Count("/metadata/missing"))

	dead := archivetest.NewServer()
	deadURL := dead.URL
	dead.Close()

	unreachable := New(archive.NewClient(archive.Options{BaseURL: deadURL})).Resolve(context.Background(), "missing")
	assert.False(t, unreachable.Success)
	assert.True(t, strings.HasPrefix(unreachable.Error, "request failed: "), unreachable.Error)
	assert.NotEqual(t, notFound.Error, unreachable.Error)
}

func TestResolve_Idempotent(t *testing.T) {
	srv := fullItem(false)
	defer srv.Close()

	r := newResolver(srv)
	first := r.Resolve(context.Background(), "bk")
	second := r.Resolve(context.Background(), "bk")
	assert.Equal(t, first, second)
}

type panicProbe struct{}

func (panicProbe) Name() string { return "panics" }
func (panicProbe) Probe(context.Context, *probe.Target) probe.Result {
	panic("boom")
}

type fixedProbe struct {
	name  string
	pages int
}

func (p fixedProbe) Name() string { return p.name }
func (p fixedProbe) Probe(context.Context, *probe.Target) probe.Result {
	return probe.Found(p.pages)
}

func TestResolve_PanickingProbeIsNotFound(t *testing.T) {
	srv := archivetest.NewServer()
	defer srv.Close()
	srv.HandleString("/details/x", "<html></html>")

	res := newResolver(srv, WithChain(panicProbe{}, fixedProbe{name: "fixed", pages: 9})).
		Resolve(context.Background(), "x")
	require.True(t, res.Success)
	assert.Equal(t, 9, res.Pages())
	assert.Equal(t, "fixed", res.Source)
}

func TestResolve_LastResort(t *testing.T) {
	srv := archivetest.NewServer()
	defer srv.Close()
	srv.HandleString("/details/x", "<html></html>")
	srv.HandleString("/metadata/x", `{"files":[{"name":"page_0003.jpg","format":"JPEG"},{"name":"page_0012.jpg","format":"JPEG"}]}`)

	res := newResolver(srv, WithChain(probe.NewViewer())).Resolve(context.Background(), "x")
	require.True(t, res.Success)
	assert.Equal(t, 12, res.Pages())
	assert.Equal(t, "last_resort", res.Source)

	res = newResolver(srv, WithChain(probe.NewViewer()), WithLastResort(nil)).Resolve(context.Background(), "x")
	assert.False(t, res.Success)
}

func TestResolve_SuccessInvariant(t *testing.T) {
	srv := fullItem(true)
	defer srv.Close()
	srv.HandleString("/details/none", "<html></html>")

	r := newResolver(srv)
	for _, id := range []string{"bk", "none", "missing"} {
		res := r.Resolve(context.Background(), id)
		if res.Success {
			require.NotNil(t, res.PageCount, id)
			assert.Positive(t, *res.PageCount, id)
			assert.Empty(t, res.Error, id)
		} else {
			assert.Nil(t, res.PageCount, id)
			assert.NotEmpty(t, res.Error, id)
		}
	}
}
