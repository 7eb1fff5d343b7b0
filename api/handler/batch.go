package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pagecount/models"
)

// Resolver is what the handlers need from the resolution orchestrator.
type Resolver interface {
	Resolve(ctx context.Context, identifier string) models.ScrapeResult
	EngineName() string
}

// respondError writes a structured JSON error with the status matching
// its code.
func respondError(c *gin.Context, code, message string) {
	respondAPIError(c, models.NewAPIError(code, message, nil))
}

// respondAPIError is respondError for errors that wrap a cause. Server-side
// failures are logged with the cause; the body carries only code and message.
func respondAPIError(c *gin.Context, apiErr *models.APIError) {
	status := mapErrorToStatus(apiErr)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"path", c.Request.URL.Path,
			"error", apiErr.Error(),
			"cause", errors.Unwrap(apiErr),
		)
	}
	c.JSON(status, apiErr.ToResponse())
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.APIError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeBusy:
		return http.StatusConflict // 409
	case models.ErrCodeTooLarge:
		return http.StatusRequestEntityTooLarge // 413
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	default:
		return http.StatusInternalServerError // 500
	}
}

func randomID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
