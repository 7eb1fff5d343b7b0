package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pagecount/batch"
	"github.com/use-agent/pagecount/cache"
	"github.com/use-agent/pagecount/models"
)

// Version is reported by the health endpoint. Set at build time with
// -ldflags "-X github.com/use-agent/pagecount/api/handler.Version=...".
var Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Reports "busy" while a batch is streaming so a load balancer can steer new
// batches elsewhere.
func Health(res Resolver, runner *batch.Runner, cc *cache.Cache, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		busy := runner.Busy()

		status := "healthy"
		if busy {
			status = "busy"
		}

		items := 0
		if cc != nil {
			items = cc.Len()
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:     status,
			Uptime:     time.Since(startTime).Round(time.Second).String(),
			Engine:     res.EngineName(),
			BatchBusy:  busy,
			CacheItems: items,
			Version:    Version,
		})
	}
}
