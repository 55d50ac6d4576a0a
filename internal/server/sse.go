// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jeranaias/inkweaver/internal/model"
)

// Server-sent event names.
const (
	EventPartial = "partial"
	EventDone    = "done"
	EventError   = "error"
)

// PartialEvent carries the reply text so far.
type PartialEvent struct {
	Text string `json:"text"`
}

// DoneEvent ends a successful stream.
type DoneEvent struct {
	SessionID string `json:"session_id"`
	model.GenerationResult
}

// ErrorEvent ends a failed stream.
type ErrorEvent struct {
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error"`
	Status    int    `json:"status"`
}

// eventStream writes SSE events to a gin response.
type eventStream struct {
	c *gin.Context
}

func newEventStream(c *gin.Context) *eventStream {
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	return &eventStream{c: c}
}

func (e *eventStream) send(name string, data any) {
	e.c.SSEvent(name, data)
	e.c.Writer.Flush()
}

func (e *eventStream) partial(text string) {
	e.send(EventPartial, PartialEvent{Text: text})
}

func (e *eventStream) finish(sessionID string, res model.GenerationResult, err error) {
	if err != nil {
		e.send(EventError, ErrorEvent{SessionID: sessionID, Error: err.Error(), Status: statusFor(err)})
		return
	}
	e.send(EventDone, DoneEvent{SessionID: sessionID, GenerationResult: res})
}
