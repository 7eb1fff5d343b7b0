package models

// Event types emitted while a batch runs.
const (
	EventProgress = "progress"
	EventResult   = "result"
	EventComplete = "complete"
)

// BatchEvent is one notification from a running batch. Progress events are
// sent before an identifier is resolved, result events after, and a single
// complete event closes the stream.
type BatchEvent struct {
	Type string `json:"type"`

	// Progress and result events.
	Current int `json:"current"`
	Total   int `json:"total"`
	Percent int `json:"percent"`

	// Progress events.
	Identifier string  `json:"identifier,omitempty"`
	Status     string  `json:"status,omitempty"`
	Delay      float64 `json:"delay,omitempty"` // seconds

	// Result events.
	Result *ScrapeResult `json:"result,omitempty"`

	// Complete events.
	Results []ScrapeResult `json:"results,omitempty"`
	Summary *Summary       `json:"summary,omitempty"`
}

// ScrapeRequest is the payload for POST /api/v1/scrape.
type ScrapeRequest struct {
	// Identifiers to resolve. Duplicates are dropped, first occurrence wins.
	Identifiers []string `json:"identifiers"`

	// Delay between identifiers in seconds. Clamped up to the configured floor.
	Delay *float64 `json:"delay,omitempty"`

	// WebhookURL receives a batch.completed event when set.
	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// ResolveRequest is the payload for POST /api/v1/resolve.
type ResolveRequest struct {
	Identifier string `json:"identifier" binding:"required"`

	// MaxAge enables the result cache: a cached result younger than MaxAge
	// milliseconds is returned without touching the archive.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// ResolveResponse is the response for POST /api/v1/resolve.
type ResolveResponse struct {
	ScrapeResult
	CacheStatus string `json:"cache_status,omitempty"`
}

// UploadResponse is the response for POST /api/v1/upload.
type UploadResponse struct {
	Identifiers []string `json:"identifiers"`
	Count       int      `json:"count"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status     string `json:"status"` // "healthy" or "busy"
	Uptime     string `json:"uptime"`
	Engine     string `json:"engine"`
	BatchBusy  bool   `json:"batch_busy"`
	CacheItems int    `json:"cache_items"`
	Version    string `json:"version"`
}
