// Package api exposes the aggregation pipeline over HTTP. Every response
// is well-formed JSON; internal failures never leak raw errors.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pricewatch/cache"
	"pricewatch/pipeline"
)

// Server is the HTTP API.
type Server struct {
	engine       *gin.Engine
	orchestrator *pipeline.Orchestrator
	cache        *cache.Tiered
	logger       *zap.Logger
}

// NewServer creates the API server and registers its routes.
func NewServer(orchestrator *pipeline.Orchestrator, tiered *cache.Tiered, environment string, logger *zap.Logger) *Server {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		engine:       engine,
		orchestrator: orchestrator,
		cache:        tiered,
		logger:       logger,
	}

	engine.GET("/search", s.handleSearch)
	engine.GET("/health", s.handleHealth)
	engine.GET("/channels", s.handleChannels)
	engine.GET("/cache/stats", s.handleCacheStats)
	engine.DELETE("/cache/clear", s.handleCacheClear)

	return s
}

// Run serves on the given address until the listener fails.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleSearch(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required parameter: q"})
		return
	}

	opts := pipeline.Options{
		Locale:            c.DefaultQuery("locale", "US"),
		IncludeOutOfStock: c.Query("include_out_of_stock") == "true",
	}
	if raw := c.Query("max_results"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_results must be a positive integer"})
			return
		}
		opts.MaxResults = n
	}

	resp, err := s.orchestrator.Search(c.Request.Context(), q, opts)
	if err != nil {
		if errors.Is(err, pipeline.ErrEmptyQuery) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query must not be empty"})
			return
		}
		s.logger.Error("search failed", zap.String("query", q), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHealth(c *gin.Context) {
	if !s.orchestrator.Healthy() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "unavailable",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleChannels lists eligible retailer channels. With no query it
// reports the static channel list.
func (s *Server) handleChannels(c *gin.Context) {
	q := c.Query("q")
	channels := s.orchestrator.Channels(c.Request.Context(), q, c.DefaultQuery("locale", "US"))
	c.JSON(http.StatusOK, gin.H{
		"query":    q,
		"channels": channels,
		"total":    len(channels),
	})
}

func (s *Server) handleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.cache.Stats(c.Request.Context()))
}

func (s *Server) handleCacheClear(c *gin.Context) {
	prefix := c.Query("namespace")
	if err := s.cache.Clear(c.Request.Context(), prefix); err != nil {
		s.logger.Error("cache clear failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache clear failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true, "namespace": prefix})
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
