// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for story sessions and messages.
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/inkweaver/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns the heading used when a transcript is rendered.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "USER"
	case RoleAssistant:
		return "INKWEAVER"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// ErrorNoticePrefix starts every error notice left in place of a failed reply.
const ErrorNoticePrefix = "**System Error:** Failed to generate content. Please check your network or API quota."

// Message represents a single turn in a session.
// Text of an assistant placeholder is rewritten in place while a reply streams.
type Message struct {
	ID         string    `json:"id"`
	Role       Role      `json:"role"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	IsThinking bool      `json:"is_thinking,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, text string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(text string) *Message {
	return NewMessage(RoleUser, text)
}

// NewAssistantMessage creates a completed assistant message.
func NewAssistantMessage(text string) *Message {
	return NewMessage(RoleAssistant, text)
}

// NewAssistantPlaceholder creates the empty assistant message that receives
// streamed text.
func NewAssistantPlaceholder() *Message {
	msg := NewMessage(RoleAssistant, "")
	msg.IsThinking = true
	return msg
}

// NewErrorNotice creates the assistant message shown when generation fails.
func NewErrorNotice(err error) *Message {
	text := ErrorNoticePrefix
	if err != nil {
		text += " \n\nDetails: " + err.Error()
	}
	return NewAssistantMessage(text)
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// Clone returns a copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

// Preview returns the first maxLen runes of the text on a single line.
func (m *Message) Preview(maxLen int) string {
	return util.TruncateRunes(util.SingleLine(m.Text), maxLen)
}

// IsEmpty returns true if the message has no text.
func (m *Message) IsEmpty() bool {
	return m.Text == ""
}
