package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PAGECOUNT_ARCHIVE_URL", "")
	t.Setenv("PAGECOUNT_DELAY", "")
	t.Setenv("PAGECOUNT_STRIP_TOKENS", "")

	cfg := Load()

	assert.Equal(t, "https://archive.org", cfg.Archive.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Archive.RequestTimeout)
	assert.Equal(t, DefaultDelay, cfg.Batch.Delay)
	assert.Equal(t, DefaultMinDelay, cfg.Batch.MinDelay)
	assert.Equal(t, "http", cfg.Render.Mode)
	assert.Equal(t, []string{"emory", "edu", "org", "com", "net"}, cfg.Archive.StripTokens)
	assert.Equal(t, int64(16<<20), cfg.Server.MaxUploadBytes)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PAGECOUNT_ARCHIVE_URL", "http://127.0.0.1:9999/")
	t.Setenv("PAGECOUNT_DELAY", "2.5")
	t.Setenv("PAGECOUNT_REQUEST_TIMEOUT", "3s")
	t.Setenv("PAGECOUNT_STRIP_TOKENS", "edu, ,lib")
	t.Setenv("PAGECOUNT_CHROME_TLS", "false")

	cfg := Load()

	assert.Equal(t, "http://127.0.0.1:9999", cfg.Archive.BaseURL)
	assert.Equal(t, 2500*time.Millisecond, cfg.Batch.Delay)
	assert.Equal(t, 3*time.Second, cfg.Archive.RequestTimeout)
	assert.Equal(t, []string{"edu", "lib"}, cfg.Archive.StripTokens)
	assert.False(t, cfg.Archive.ChromeTLS)
}

func TestClampDelay(t *testing.T) {
	tests := []struct {
		name    string
		in      time.Duration
		want    time.Duration
		clamped bool
	}{
		{"below floor", 100 * time.Millisecond, DefaultMinDelay, true},
		{"at floor", DefaultMinDelay, DefaultMinDelay, false},
		{"above floor", 3 * time.Second, 3 * time.Second, false},
		{"negative", -time.Second, DefaultMinDelay, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, clamped := ClampDelay(tt.in, DefaultMinDelay)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.clamped, clamped)
		})
	}
}

func TestWebhookConfig_RequestHosts(t *testing.T) {
	w := WebhookConfig{URL: "https://hooks.example.com:8443/in", AllowedHosts: []string{"other.example.com"}}
	assert.Equal(t, []string{"other.example.com", "hooks.example.com:8443"}, w.RequestHosts())

	assert.Empty(t, WebhookConfig{}.RequestHosts())
}
