package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/pagecount/models"
)

func TestDeliver_SignsBody(t *testing.T) {
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	results := []models.ScrapeResult{
		models.Succeeded("a", "u/a", 10, "viewer"),
		models.Failed("b", "u/b", ""),
	}
	event := BatchCompleted("batch-1", results)
	require.NoError(t, Deliver(context.Background(), srv.URL, "s3cret", event))

	assert.Equal(t, Sign("s3cret", gotBody), gotSig)

	var decoded struct {
		Type    string `json:"type"`
		BatchID string `json:"batch_id"`
		Data    struct {
			Summary models.Summary `json:"summary"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, EventBatchCompleted, decoded.Type)
	assert.Equal(t, "batch-1", decoded.BatchID)
	assert.Equal(t, models.Summary{Total: 2, Successful: 1, Failed: 1}, decoded.Data.Summary)
}

func TestDeliver_NoSecretNoSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(SignatureHeader))
	}))
	defer srv.Close()

	require.NoError(t, Deliver(context.Background(), srv.URL, "", BatchCompleted("x", nil)))
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := Deliver(context.Background(), srv.URL, "", BatchCompleted("x", nil))
	assert.ErrorContains(t, err, "status 502")
}

func TestDeliverAsync_Retries(t *testing.T) {
	saved := retryDelays
	retryDelays = []time.Duration{0, time.Millisecond, time.Millisecond}
	defer func() { retryDelays = saved }()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	select {
	case <-DeliverAsync(srv.URL, "", BatchCompleted("x", nil)):
	case <-time.After(5 * time.Second):
		t.Fatal("delivery did not finish")
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestHostAllowed(t *testing.T) {
	allowed := []string{"hooks.example.com", "127.0.0.1:9000"}

	tests := []struct {
		url  string
		want bool
	}{
		{"https://hooks.example.com/batch", true},
		{"https://HOOKS.example.com:8443/batch", true},
		{"http://127.0.0.1:9000/x", true},
		{"http://127.0.0.1:9001/x", false},
		{"http://169.254.169.254/latest/meta-data", false},
		{"http://localhost/x", false},
		{"ftp://hooks.example.com/x", false},
		{"not a url", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HostAllowed(tt.url, allowed), tt.url)
	}

	assert.False(t, HostAllowed("https://hooks.example.com/batch", nil), "empty list allows nothing")
}
