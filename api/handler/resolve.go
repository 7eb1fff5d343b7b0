package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pagecount/batch"
	"github.com/use-agent/pagecount/cache"
	"github.com/use-agent/pagecount/models"
)

// Resolve returns a handler for POST /api/v1/resolve.
//
// It resolves a single identifier synchronously through the batch runner,
// so it never overlaps another resolution and is paced like a batch. With
// max_age > 0 a cached verdict younger than max_age milliseconds is served
// instead. While a batch is streaming, uncached lookups get 409.
func Resolve(runner *batch.Runner, res Resolver, cc *cache.Cache, baseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ResolveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.ErrCodeInvalidInput, err.Error())
			return
		}
		id := strings.TrimSpace(req.Identifier)
		if id == "" {
			respondError(c, models.ErrCodeInvalidInput, "identifier must not be blank")
			return
		}

		// ── Cache lookup ────────────────────────────────────────────
		key := cache.Key(id, baseURL, res.EngineName())
		if cc != nil && req.MaxAge > 0 {
			if cached, hit := cc.Get(key, req.MaxAge); hit {
				c.JSON(http.StatusOK, models.ResolveResponse{ScrapeResult: cached, CacheStatus: "hit"})
				return
			}
		}

		if runner.Busy() {
			respondError(c, models.ErrCodeBusy, "a batch is running, try again when it completes")
			return
		}

		result, err := runner.ResolveOne(c.Request.Context(), id)
		if err != nil {
			respondAPIError(c, models.NewAPIError(models.ErrCodeInternal, "resolution cancelled", err))
			return
		}

		resp := models.ResolveResponse{ScrapeResult: result}
		if cc != nil && req.MaxAge > 0 {
			cc.Set(key, result)
			resp.CacheStatus = "miss"
		}
		c.JSON(http.StatusOK, resp)
	}
}
