// Package server provides the HTTP surface for the search service.
//
// The server implements REST endpoints using the Gin framework: search,
// paper detail, tag drawer listing, and health checks. Authentication is
// out of scope; an upstream proxy injects the requesting user's id in the
// X-User-ID header and anonymous requests simply omit it.
package server

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/igm503/arxiv-troller/internal/search"
	"github.com/igm503/arxiv-troller/internal/store"
)

// Server is the HTTP server for the search service.
type Server struct {
	searcher *search.Searcher
	papers   store.PaperStore
	tags     store.TagStore
	index    store.VectorIndex
	port     int
	logger   zerolog.Logger
	engine   *gin.Engine
}

// New creates a new HTTP server.
func New(searcher *search.Searcher, papers store.PaperStore, tags store.TagStore, index store.VectorIndex, port int, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(ginLogger(logger))
	engine.Use(gin.Recovery())

	server := &Server{
		searcher: searcher,
		papers:   papers,
		tags:     tags,
		index:    index,
		port:     port,
		logger:   logger,
		engine:   engine,
	}
	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.handleHealth)

	// GET serves bookmarkable searches, POST the in-page continuations.
	s.engine.GET("/search", s.handleSearch)
	s.engine.POST("/search", s.handleSearch)

	s.engine.GET("/papers/:id", s.handlePaper)
	s.engine.GET("/tags/:id/papers", s.handleTagPapers)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info().
		Str("addr", addr).
		Msg("Starting HTTP server")
	return s.engine.Run(addr)
}

// ginLogger creates a Gin middleware that logs using zerolog.
func ginLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}
