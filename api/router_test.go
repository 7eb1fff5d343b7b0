package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/pagecount/batch"
	"github.com/use-agent/pagecount/cache"
	"github.com/use-agent/pagecount/config"
	"github.com/use-agent/pagecount/models"
	"github.com/use-agent/pagecount/webhook"
)

type stubResolver struct {
	calls atomic.Int32
}

func (s *stubResolver) EngineName() string { return "http" }

func (s *stubResolver) Resolve(_ context.Context, id string) models.ScrapeResult {
	s.calls.Add(1)
	if strings.HasPrefix(id, "missing") {
		return models.Failed(id, "https://archive.org/details/"+id,
			"Identifier not found (404) - URL may be incorrect or item doesn't exist")
	}
	return models.Succeeded(id, "https://archive.org/details/"+id, 100+len(id), "viewer")
}

type fixture struct {
	router *gin.Engine
	res    *stubResolver
	cfg    *config.Config
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Server:    config.ServerConfig{Mode: gin.TestMode, MaxUploadBytes: 1 << 10},
		Archive:   config.ArchiveConfig{BaseURL: "https://archive.org"},
		Batch:     config.BatchConfig{Delay: time.Second, MaxIdentifiers: 10, ResultsFile: filepath.Join(t.TempDir(), "results.xlsx")},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
	}
	for _, m := range mutate {
		m(cfg)
	}

	res := &stubResolver{}
	runner := batch.NewRunner(res, 0)
	runner.SetWait(func(context.Context, time.Duration) error { return nil })
	cc := cache.New(10)
	t.Cleanup(cc.Close)

	return &fixture{
		router: NewRouter(cfg, res, runner, cc, time.Now()),
		res:    res,
		cfg:    cfg,
	}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorDetail {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.False(t, resp.Success)
	return *resp.Error
}

// parseSSE splits a recorded stream into its data payloads.
func parseSSE(t *testing.T, body string) []models.BatchEvent {
	t.Helper()
	var events []models.BatchEvent
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		require.True(t, strings.HasPrefix(block, "data: "), block)
		var e models.BatchEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(block, "data: ")), &e))
		events = append(events, e)
	}
	return events
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "http", resp.Engine)
	assert.False(t, resp.BatchBusy)
}

func TestScrape_StreamsEventsAndSavesResults(t *testing.T) {
	f := newFixture(t)

	w := f.do(postJSON("/api/v1/scrape", `{"identifiers":["a.one"," b.two ","a.one","missing.x"],"delay":0.1}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, "no", w.Header().Get("X-Accel-Buffering"))

	events := parseSSE(t, w.Body.String())
	require.Len(t, events, 7)

	var kinds []string
	for _, e := range events {
		kinds = append(kinds, e.Type)
	}
	assert.Equal(t, []string{"progress", "result", "progress", "result", "progress", "result", "complete"}, kinds)
	assert.Equal(t, "b.two", events[2].Identifier)
	assert.Equal(t, 3, events[2].Total)
	assert.Equal(t, 33, events[2].Percent)
	assert.InDelta(t, 0.1, events[0].Delay, 1e-9)

	done := events[6]
	require.NotNil(t, done.Summary)
	assert.Equal(t, models.Summary{Total: 3, Successful: 2, Failed: 1}, *done.Summary)
	assert.Equal(t, int32(3), f.res.calls.Load())

	// The saved spreadsheet is now downloadable.
	dl := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/download", nil))
	require.Equal(t, http.StatusOK, dl.Code)
	assert.Contains(t, dl.Header().Get("Content-Disposition"), "results.xlsx")
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", dl.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(dl.Body.Bytes(), []byte("PK")), "xlsx is a zip container")
}

func TestScrape_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		msg  string
	}{
		{name: "no body", body: "", msg: "No data provided"},
		{name: "no identifiers", body: `{"identifiers":[]}`, msg: "No identifiers provided"},
		{name: "only blanks", body: `{"identifiers":[" ",""]}`, msg: "No identifiers provided"},
		{name: "too many", body: `{"identifiers":["1","2","3","4","5","6","7","8","9","10","11"]}`, msg: "maximum 10 identifiers per batch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(postJSON("/api/v1/scrape", tt.body))
			require.Equal(t, http.StatusBadRequest, w.Code)
			detail := decodeError(t, w)
			assert.Equal(t, models.ErrCodeInvalidInput, detail.Code)
			assert.Equal(t, tt.msg, detail.Message)
		})
	}
	assert.Equal(t, int32(0), f.res.calls.Load())
}

func uploadRequest(t *testing.T, field, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	f := newFixture(t)

	w := f.do(uploadRequest(t, "file", "ids.txt", "a.1\r\n\nb.2\na.1\n  c.3 \n"))
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"a.1", "b.2", "c.3"}, resp.Identifiers)
	assert.Equal(t, 3, resp.Count)

	w = f.do(uploadRequest(t, "other", "ids.txt", "a.1"))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No file provided", decodeError(t, w).Message)

	w = f.do(uploadRequest(t, "file", "ids.txt", string([]byte{0xff, 0xfe, 0x00})))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(uploadRequest(t, "file", "big.txt", strings.Repeat("x", 2<<10)))
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, models.ErrCodeTooLarge, decodeError(t, w).Code)

	assert.Equal(t, int32(0), f.res.calls.Load(), "upload never resolves")
}

func TestDownload_NoResults(t *testing.T) {
	f := newFixture(t)
	w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/download", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No results file found", decodeError(t, w).Message)
}

func TestResolve_Cache(t *testing.T) {
	f := newFixture(t)

	var first models.ResolveResponse
	w := f.do(postJSON("/api/v1/resolve", `{"identifier":"bk","max_age":60000}`))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Equal(t, "miss", first.CacheStatus)
	assert.True(t, first.Success)
	assert.Equal(t, 102, first.Pages())

	var second models.ResolveResponse
	w = f.do(postJSON("/api/v1/resolve", `{"identifier":"bk","max_age":60000}`))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Equal(t, "hit", second.CacheStatus)
	assert.Equal(t, first.ScrapeResult, second.ScrapeResult)
	assert.Equal(t, int32(1), f.res.calls.Load())

	// Without max_age the cache is bypassed.
	var third models.ResolveResponse
	w = f.do(postJSON("/api/v1/resolve", `{"identifier":"bk"}`))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &third))
	assert.Empty(t, third.CacheStatus)
	assert.Equal(t, int32(2), f.res.calls.Load())
}

func TestResolve_Validation(t *testing.T) {
	f := newFixture(t)

	w := f.do(postJSON("/api/v1/resolve", `{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(postJSON("/api/v1/resolve", `{"identifier":"   "}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(postJSON("/api/v1/resolve", `{"identifier":"missing.bk"}`))
	require.Equal(t, http.StatusOK, w.Code, "a failed verdict is still a successful call")
	var resp models.ResolveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Nil(t, resp.PageCount)
}

func TestAuth(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.Auth = config.AuthConfig{Enabled: true, APIKeys: []string{"k1"}}
	})

	w := f.do(postJSON("/api/v1/resolve", `{"identifier":"bk"}`))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, models.ErrCodeUnauthorized, decodeError(t, w).Code)

	req := postJSON("/api/v1/resolve", `{"identifier":"bk"}`)
	req.Header.Set("X-API-Key", "wrong")
	w = f.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = postJSON("/api/v1/resolve", `{"identifier":"bk"}`)
	req.Header.Set("Authorization", "Bearer k1")
	w = f.do(req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/download?api_key=k1", nil))
	assert.Equal(t, http.StatusNotFound, w.Code, "query key authenticates plain links")

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, w.Code, "health is public")
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.5, Burst: 1}
	})

	w := f.do(postJSON("/api/v1/resolve", `{"identifier":"bk"}`))
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(postJSON("/api/v1/resolve", `{"identifier":"bk"}`))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.Equal(t, models.ErrCodeRateLimited, decodeError(t, w).Code)
}

// overlapResolver is slow and records the peak number of concurrent calls.
type overlapResolver struct {
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (o *overlapResolver) EngineName() string { return "http" }

func (o *overlapResolver) Resolve(_ context.Context, id string) models.ScrapeResult {
	o.mu.Lock()
	o.inFlight++
	if o.inFlight > o.peak {
		o.peak = o.inFlight
	}
	o.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	o.mu.Lock()
	o.inFlight--
	o.mu.Unlock()
	return models.Succeeded(id, "u/"+id, 9, "viewer")
}

func TestResolve_NeverOverlapsBatch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Server: config.ServerConfig{Mode: gin.TestMode},
		Batch:  config.BatchConfig{ResultsFile: filepath.Join(t.TempDir(), "results.xlsx")},
	}
	res := &overlapResolver{}
	runner := batch.NewRunner(res, 0)
	runner.SetWait(func(context.Context, time.Duration) error { return nil })
	router := NewRouter(cfg, res, runner, nil, time.Now())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w := httptest.NewRecorder()
		router.ServeHTTP(w, postJSON("/api/v1/scrape", `{"identifiers":["a","b","c"]}`))
	}()

	codes := make(chan int, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			router.ServeHTTP(w, postJSON("/api/v1/resolve", `{"identifier":"x"}`))
			codes <- w.Code
		}()
	}
	wg.Wait()
	close(codes)

	for code := range codes {
		assert.Contains(t, []int{http.StatusOK, http.StatusConflict}, code)
	}
	assert.Equal(t, 1, res.peak, "resolutions overlapped")
}

func TestResolve_ConflictWhileBatchStreams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Server: config.ServerConfig{Mode: gin.TestMode},
		Batch:  config.BatchConfig{ResultsFile: filepath.Join(t.TempDir(), "results.xlsx")},
	}
	res := &stubResolver{}
	runner := batch.NewRunner(res, 0)
	waiting := make(chan struct{})
	release := make(chan struct{})
	runner.SetWait(func(context.Context, time.Duration) error {
		close(waiting)
		<-release
		return nil
	})
	router := NewRouter(cfg, res, runner, nil, time.Now())

	done := make(chan struct{})
	go func() {
		defer close(done)
		router.ServeHTTP(httptest.NewRecorder(), postJSON("/api/v1/scrape", `{"identifiers":["a","b"]}`))
	}()
	<-waiting

	w := httptest.NewRecorder()
	router.ServeHTTP(w, postJSON("/api/v1/resolve", `{"identifier":"x"}`))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, models.ErrCodeBusy, decodeError(t, w).Code)

	close(release)
	<-done
	assert.Equal(t, int32(2), res.calls.Load(), "only the batch resolved")
}

func TestDownload_UnreadableResultsFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	f := newFixture(t, func(c *config.Config) {
		c.Batch.ResultsFile = filepath.Join(blocker, "results.xlsx")
	})
	w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/download", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, models.ErrCodeExport, decodeError(t, w).Code)
}

func TestUpload_ChunkedOverLimit(t *testing.T) {
	f := newFixture(t)

	req := uploadRequest(t, "file", "big.txt", strings.Repeat("x", 4<<10))
	// Hide the length so only the body limit can catch it.
	req.Body = io.NopCloser(io.MultiReader(req.Body))
	req.ContentLength = -1

	w := f.do(req)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, models.ErrCodeTooLarge, decodeError(t, w).Code)
}

func TestScrape_WebhookHostAllowList(t *testing.T) {
	received := make(chan webhook.Event, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e webhook.Event
		_ = json.NewDecoder(r.Body).Decode(&e)
		received <- e
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()
	hookHost := strings.TrimPrefix(hook.URL, "http://")

	f := newFixture(t, func(c *config.Config) {
		c.Webhook.AllowedHosts = []string{hookHost}
	})

	w := f.do(postJSON("/api/v1/scrape", `{"identifiers":["a"],"webhook_url":"http://169.254.169.254/latest"}`))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "webhook_url host is not allowed", decodeError(t, w).Message)
	assert.Equal(t, int32(0), f.res.calls.Load())

	w = f.do(postJSON("/api/v1/scrape", `{"identifiers":["a"],"webhook_url":"`+hook.URL+`/done"}`))
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case e := <-received:
		assert.Equal(t, webhook.EventBatchCompleted, e.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was not delivered")
	}
}
