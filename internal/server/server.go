// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jeranaias/inkweaver/internal/session"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8787"

	// MaxRequestBodySize is the default request body cap (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// MaxPromptLength bounds a single prompt in runes.
	MaxPromptLength = 100000
)

// ============================================================================
// SERVER
// ============================================================================

// Options configures a Server.
type Options struct {
	// Addr is the listen address. Default: DefaultAddr
	Addr string

	// MaxBodyBytes caps request bodies. Default: MaxRequestBodySize
	MaxBodyBytes int64

	// CORS configures cross-origin access. Default: localhost origins
	CORS *CORSConfig

	// Logger receives request and error logs. Default: logrus standard logger
	Logger *logrus.Logger

	// Version is reported by /health.
	Version string
}

// Server is the HTTP API over a session.Service.
type Server struct {
	svc    *session.Service
	opts   Options
	log    *logrus.Logger
	engine *gin.Engine
	server *http.Server
	start  time.Time
}

// New creates a Server with routes registered.
func New(svc *session.Service, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = MaxRequestBodySize
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	s := &Server{
		svc:   svc,
		opts:  opts,
		log:   opts.Logger,
		start: time.Now(),
	}
	s.engine = s.setupRoutes()
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Streams can run long; no write timeout.
		IdleTimeout: 120 * time.Second,
	}
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.opts.Addr
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() *gin.Engine {
	r := gin.New()
	r.Use(
		Recovery(s.log),
		RequestLogger(s.log),
		SecurityHeaders(),
		CORS(s.opts.CORS),
		BodyLimit(s.opts.MaxBodyBytes),
	)

	r.GET("/health", s.handleHealth)

	api := r.Group("/api")
	{
		api.GET("/sessions", s.handleListSessions)
		api.POST("/sessions", s.handleCreateSession)
		api.GET("/sessions/:id", s.handleGetSession)
		api.DELETE("/sessions/:id", s.handleDeleteSession)
		api.PUT("/sessions/:id/config", s.handleUpdateConfig)
		api.PUT("/sessions/:id/title", s.handleRename)
		api.GET("/sessions/:id/export", s.handleExport)

		api.POST("/sessions/:id/messages", s.handleSendMessage)
		api.POST("/sessions/:id/regenerate", s.handleRegenerate)
		api.POST("/characters", s.handleDevelopCharacter)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody("not found"))
	})
	return r
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Start listens and serves until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	s.log.WithFields(logrus.Fields{"addr": s.opts.Addr, "version": s.opts.Version}).Info("server starting")
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, waits for in-flight ones and pending
// title renames.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("server shutting down")
	err := s.server.Shutdown(ctx)
	s.svc.Wait()
	return err
}
