package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pagecount/api/handler"
	"github.com/use-agent/pagecount/api/middleware"
	"github.com/use-agent/pagecount/batch"
	"github.com/use-agent/pagecount/cache"
	"github.com/use-agent/pagecount/config"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
func NewRouter(cfg *config.Config, res handler.Resolver, runner *batch.Runner, cc *cache.Cache, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.MaxMultipartMemory = cfg.Server.MaxUploadBytes

	v1 := r.Group("/api/v1")

	// Health: no auth, so monitoring probes always work.
	v1.GET("/health", handler.Health(res, runner, cc, startTime))

	// Protected group: auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Batch resolution, streamed as server-sent events
	protected.POST("/scrape", handler.Scrape(runner, cfg))

	// Identifier list upload
	protected.POST("/upload", handler.Upload(cfg.Server.MaxUploadBytes))

	// Last batch's results file
	protected.GET("/download", handler.Download(cfg.Batch.ResultsFile))

	// Single identifier
	protected.POST("/resolve", handler.Resolve(runner, res, cc, cfg.Archive.BaseURL))

	return r
}
