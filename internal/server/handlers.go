// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/jeranaias/inkweaver/internal/export"
	"github.com/jeranaias/inkweaver/internal/model"
	"github.com/jeranaias/inkweaver/internal/session"
	"github.com/jeranaias/inkweaver/internal/storage"
)

// ============================================================================
// REQUEST AND RESPONSE TYPES
// ============================================================================

// CreateSessionRequest is the optional body of POST /api/sessions.
type CreateSessionRequest struct {
	Config *model.ModelConfig `json:"model_config,omitempty"`
}

// SendMessageRequest is the body of POST /api/sessions/:id/messages.
type SendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// RenameRequest is the body of PUT /api/sessions/:id/title.
type RenameRequest struct {
	Title string `json:"title" binding:"required"`
}

// CharacterRequest is the body of POST /api/characters. An empty SessionID
// starts a new session.
type CharacterRequest struct {
	SessionID string `json:"session_id,omitempty"`
	model.Character
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Uptime  string `json:"uptime"`
}

func errorBody(msg string) gin.H {
	return gin.H{"error": msg}
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrCannotRegenerate):
		return http.StatusConflict
	case errors.Is(err, session.ErrEmptyPrompt), errors.Is(err, session.ErrEmptyTitle),
		errors.Is(err, export.ErrUnknownFormat):
		return http.StatusBadRequest
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		msg = "internal server error"
	}
	c.Error(err)
	c.AbortWithStatusJSON(status, errorBody(msg))
}

// bind decodes a JSON body, reporting oversized bodies as 413.
func (s *Server) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				errorBody(fmt.Sprintf("request body exceeds %d bytes", s.opts.MaxBodyBytes)))
			return false
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody("invalid request body: "+err.Error()))
		return false
	}
	return true
}

// ============================================================================
// HEALTH
// ============================================================================

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.opts.Version,
		Uptime:  time.Since(s.start).Round(time.Second).String(),
	})
}

// ============================================================================
// SESSIONS
// ============================================================================

func (s *Server) handleListSessions(c *gin.Context) {
	metas, err := s.svc.List()
	if err != nil {
		s.fail(c, err)
		return
	}
	if grouped, _ := strconv.ParseBool(c.Query("grouped")); grouped {
		c.JSON(http.StatusOK, model.GroupByDate(metas, time.Now()))
		return
	}
	c.JSON(http.StatusOK, metas)
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if c.Request.ContentLength != 0 {
		if !s.bind(c, &req) {
			return
		}
	}
	if req.Config != nil {
		if err := req.Config.Validate(); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, errorBody(err.Error()))
			return
		}
	}
	sess, err := s.svc.Create(req.Config)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (s *Server) handleGetSession(c *gin.Context) {
	sess, err := s.svc.Get(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	if err := s.svc.Delete(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUpdateConfig(c *gin.Context) {
	var cfg model.ModelConfig
	if !s.bind(c, &cfg) {
		return
	}
	if err := cfg.Validate(); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	sess, err := s.svc.UpdateConfig(c.Param("id"), cfg)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleRename(c *gin.Context) {
	var req RenameRequest
	if !s.bind(c, &req) {
		return
	}
	sess, err := s.svc.Rename(c.Param("id"), req.Title)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleExport(c *gin.Context) {
	exp, err := export.ForFormat(c.DefaultQuery("format", export.FormatMarkdown))
	if err != nil {
		s.fail(c, err)
		return
	}
	sess, err := s.svc.Get(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	data, err := exp.Export(sess)
	if err != nil {
		s.fail(c, err)
		return
	}
	name := export.FileName(sess.Title, exp.FileExtension())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, exp.MimeType()+"; charset=utf-8", data)
}

// ============================================================================
// GENERATION
// ============================================================================

func (s *Server) handleSendMessage(c *gin.Context) {
	var req SendMessageRequest
	if !s.bind(c, &req) {
		return
	}
	if utf8.RuneCountInString(req.Text) > MaxPromptLength {
		c.AbortWithStatusJSON(http.StatusBadRequest,
			errorBody(fmt.Sprintf("prompt exceeds %d characters", MaxPromptLength)))
		return
	}
	id := c.Param("id")
	if _, err := s.svc.Get(id); err != nil {
		s.fail(c, err)
		return
	}

	stream := newEventStream(c)
	res, err := s.svc.Send(c.Request.Context(), id, req.Text, stream.partial)
	stream.finish(id, res, err)
}

func (s *Server) handleRegenerate(c *gin.Context) {
	id := c.Param("id")
	sess, err := s.svc.Get(id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !sess.CanRegenerate() {
		s.fail(c, session.ErrCannotRegenerate)
		return
	}

	stream := newEventStream(c)
	res, err := s.svc.Regenerate(c.Request.Context(), id, stream.partial)
	stream.finish(id, res, err)
}

func (s *Server) handleDevelopCharacter(c *gin.Context) {
	var req CharacterRequest
	if !s.bind(c, &req) {
		return
	}
	if err := req.Character.Validate(); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if req.SessionID != "" {
		if _, err := s.svc.Get(req.SessionID); err != nil {
			s.fail(c, err)
			return
		}
	}

	stream := newEventStream(c)
	id, res, err := s.svc.DevelopCharacter(c.Request.Context(), req.SessionID, &req.Character, stream.partial)
	stream.finish(id, res, err)
}
