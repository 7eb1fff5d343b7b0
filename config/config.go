package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Archive   ArchiveConfig
	Batch     BatchConfig
	Render    RenderConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
	Webhook   WebhookConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 5000
	Mode string // "debug", "release", "test"; default: "release"

	// MaxUploadBytes caps identifier file uploads.
	MaxUploadBytes int64 // default: 16 MiB
}

// ArchiveConfig controls how the remote archive is reached.
type ArchiveConfig struct {
	// BaseURL is the archive host, without trailing slash.
	BaseURL string // default: "https://archive.org"

	// RequestTimeout bounds every individual fetch.
	RequestTimeout time.Duration // default: 10s

	// UserAgent is sent on every outbound request.
	UserAgent string

	// ChromeTLS dials https with a Chrome ClientHello.
	ChromeTLS bool // default: true

	// StripTokens are trailing identifier segments dropped when deriving
	// file-name variants (e.g. "04315104.1697.emory.edu" -> "04315104_1697").
	StripTokens []string
}

// BatchConfig controls sequential batch resolution.
type BatchConfig struct {
	// Delay is the pause before every identifier except the first.
	Delay time.Duration // default: 1.5s

	// MinDelay is the floor Delay is clamped to.
	MinDelay time.Duration // default: 500ms

	// MaxIdentifiers caps a single API batch. 0 disables the cap.
	MaxIdentifiers int // default: 5000

	// ResultsFile is where the API saves the last batch's spreadsheet.
	ResultsFile string
}

// RenderConfig controls how the item detail page is fetched.
type RenderConfig struct {
	// Mode is "http" (plain fetch), "browser" (headless Chrome via rod) or
	// "auto" (http first, browser when the plain fetch fails in transit).
	Mode string // default: "http"

	Headless   bool   // default: true
	NoSandbox  bool   // default: false
	BrowserBin string // overrides the Chromium binary path
	Stealth    bool   // default: true

	// NavigationTimeout bounds page load + viewer settle in browser mode.
	NavigationTimeout time.Duration // default: 20s

	// SettleSelector is waited for after navigation in browser mode.
	SettleSelector string // default: ".BRcurrentpage"

	// BlockResources lists resource types the browser does not load:
	// Image, Stylesheet, Font, Media.
	BlockResources []string // default: Image, Font, Media

	// BlockTrackers drops requests to analytics hosts.
	BlockTrackers bool // default: true
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting of the API.
type RateLimitConfig struct {
	RequestsPerSecond float64 // default: 2
	Burst             int     // default: 5
}

// CacheConfig controls the single-identifier result cache.
type CacheConfig struct {
	MaxEntries int // default: 1000
}

// WebhookConfig sets a default receiver for batch.completed events. A
// webhook_url in the request takes precedence when its host is allowed.
type WebhookConfig struct {
	URL    string
	Secret string

	// AllowedHosts lists hosts a request's webhook_url may target, as
	// hostname or host:port. The host of URL is always allowed.
	AllowedHosts []string
}

// RequestHosts returns the hosts a request-supplied webhook may target.
func (w WebhookConfig) RequestHosts() []string {
	hosts := append([]string(nil), w.AllowedHosts...)
	if u, err := url.Parse(w.URL); err == nil && u.Host != "" {
		hosts = append(hosts, u.Host)
	}
	return hosts
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// Default values shared with the CLI flag definitions.
const (
	DefaultDelay    = 1500 * time.Millisecond
	DefaultMinDelay = 500 * time.Millisecond
)

// DefaultUserAgent is a current desktop Chrome user agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Load reads configuration from environment variables with sane defaults.
// A .env file in the working directory is loaded first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Host:           envOr("PAGECOUNT_HOST", "0.0.0.0"),
			Port:           envIntOr("PAGECOUNT_PORT", 5000),
			Mode:           envOr("PAGECOUNT_MODE", "release"),
			MaxUploadBytes: int64(envIntOr("PAGECOUNT_MAX_UPLOAD_BYTES", 16<<20)),
		},
		Archive: ArchiveConfig{
			BaseURL:        strings.TrimRight(envOr("PAGECOUNT_ARCHIVE_URL", "https://archive.org"), "/"),
			RequestTimeout: envDurationOr("PAGECOUNT_REQUEST_TIMEOUT", 10*time.Second),
			UserAgent:      envOr("PAGECOUNT_USER_AGENT", DefaultUserAgent),
			ChromeTLS:      envBoolOr("PAGECOUNT_CHROME_TLS", true),
			StripTokens:    envSliceOr("PAGECOUNT_STRIP_TOKENS", []string{"emory", "edu", "org", "com", "net"}),
		},
		Batch: BatchConfig{
			Delay:          envDurationOr("PAGECOUNT_DELAY", DefaultDelay),
			MinDelay:       envDurationOr("PAGECOUNT_MIN_DELAY", DefaultMinDelay),
			MaxIdentifiers: envIntOr("PAGECOUNT_MAX_IDENTIFIERS", 5000),
			ResultsFile:    envOr("PAGECOUNT_RESULTS_FILE", defaultResultsFile()),
		},
		Render: RenderConfig{
			Mode:              envOr("PAGECOUNT_RENDER_MODE", "http"),
			Headless:          envBoolOr("PAGECOUNT_HEADLESS", true),
			NoSandbox:         envBoolOr("PAGECOUNT_NO_SANDBOX", false),
			BrowserBin:        os.Getenv("PAGECOUNT_BROWSER_BIN"),
			Stealth:           envBoolOr("PAGECOUNT_STEALTH", true),
			NavigationTimeout: envDurationOr("PAGECOUNT_NAV_TIMEOUT", 20*time.Second),
			SettleSelector:    envOr("PAGECOUNT_SETTLE_SELECTOR", ".BRcurrentpage"),
			BlockResources:    envSliceOr("PAGECOUNT_BLOCK_RESOURCES", []string{"Image", "Font", "Media"}),
			BlockTrackers:     envBoolOr("PAGECOUNT_BLOCK_TRACKERS", true),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("PAGECOUNT_AUTH_ENABLED", false),
			APIKeys: envSliceOr("PAGECOUNT_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("PAGECOUNT_RATE_RPS", 2.0),
			Burst:             envIntOr("PAGECOUNT_RATE_BURST", 5),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("PAGECOUNT_CACHE_MAX_ENTRIES", 1000),
		},
		Log: LogConfig{
			Level:  envOr("PAGECOUNT_LOG_LEVEL", "info"),
			Format: envOr("PAGECOUNT_LOG_FORMAT", "text"),
		},
		Webhook: WebhookConfig{
			URL:          os.Getenv("PAGECOUNT_WEBHOOK_URL"),
			Secret:       os.Getenv("PAGECOUNT_WEBHOOK_SECRET"),
			AllowedHosts: envSliceOr("PAGECOUNT_WEBHOOK_ALLOWED_HOSTS", nil),
		},
	}
}

// ClampDelay raises d to min when it is below the floor. The second return
// value reports whether clamping happened so callers can warn.
func ClampDelay(d, min time.Duration) (time.Duration, bool) {
	if d < min {
		return min, true
	}
	return d, false
}

// defaultResultsFile mirrors serverless hosts where only TMPDIR is writable.
func defaultResultsFile() string {
	dir := os.Getenv("TMPDIR")
	if dir == "" {
		if wd, err := os.Getwd(); err == nil {
			dir = wd
		} else {
			dir = os.TempDir()
		}
	}
	return strings.TrimRight(dir, "/") + "/scraping_results.xlsx"
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envDurationOr accepts Go durations ("1500ms") and bare seconds ("1.5").
func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(f * float64(time.Second))
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
