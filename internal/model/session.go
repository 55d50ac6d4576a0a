// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Title values with special meaning.
const (
	// DefaultTitle is given to every new session until a title is synthesized.
	DefaultTitle = "New Story Idea"

	// UntitledTitle is the fallback label; a synthesized title equal to it
	// is treated as no title.
	UntitledTitle = "Untitled Story"
)

// =============================================================================
// CHAT SESSION TYPE
// =============================================================================

// ChatSession holds one story session: its ordered messages, title and
// generation settings.
type ChatSession struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Messages    []*Message  `json:"messages"`
	CreatedAt   time.Time   `json:"created_at"`
	LastUpdated time.Time   `json:"last_updated"`
	Config      ModelConfig `json:"model_config"`
}

// NewChatSession creates an empty session with the default title and config.
func NewChatSession() *ChatSession {
	return NewChatSessionWithConfig(DefaultModelConfig())
}

// NewChatSessionWithConfig creates an empty session with the given config.
func NewChatSessionWithConfig(cfg ModelConfig) *ChatSession {
	now := time.Now()
	return &ChatSession{
		ID:          uuid.NewString(),
		Title:       DefaultTitle,
		Messages:    make([]*Message, 0),
		CreatedAt:   now,
		LastUpdated: now,
		Config:      cfg.Normalize(),
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// Append adds a message to the end of the session.
func (s *ChatSession) Append(msg *Message) {
	s.Messages = append(s.Messages, msg)
	s.Touch()
}

// Last returns the last message, or nil if empty.
func (s *ChatSession) Last() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// MessageByID returns the message with the given ID, or nil.
func (s *ChatSession) MessageByID(id string) *Message {
	for _, m := range s.Messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// UpdateMessageText replaces the text of the message with the given ID.
// The thinking marker clears once any text arrives.
// Returns false if no such message exists.
func (s *ChatSession) UpdateMessageText(id, text string) bool {
	m := s.MessageByID(id)
	if m == nil {
		return false
	}
	m.Text = text
	if text != "" {
		m.IsThinking = false
	}
	return true
}

// ReplaceMessage swaps the message with the given ID for msg.
func (s *ChatSession) ReplaceMessage(id string, msg *Message) bool {
	for i, m := range s.Messages {
		if m.ID == id {
			s.Messages[i] = msg
			s.Touch()
			return true
		}
	}
	return false
}

// RemoveMessage deletes the message with the given ID.
func (s *ChatSession) RemoveMessage(id string) bool {
	for i, m := range s.Messages {
		if m.ID == id {
			s.Messages = append(s.Messages[:i], s.Messages[i+1:]...)
			s.Touch()
			return true
		}
	}
	return false
}

// RemoveLast drops the last message and returns it.
func (s *ChatSession) RemoveLast() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	last := s.Messages[len(s.Messages)-1]
	s.Messages = s.Messages[:len(s.Messages)-1]
	s.Touch()
	return last
}

// History returns copies of the first n messages (all when n < 0 or larger
// than the session).
func (s *ChatSession) History(n int) []Message {
	if n < 0 || n > len(s.Messages) {
		n = len(s.Messages)
	}
	out := make([]Message, 0, n)
	for _, m := range s.Messages[:n] {
		out = append(out, *m)
	}
	return out
}

// CanRegenerate reports whether the session ends in a user turn followed by
// an assistant reply.
func (s *ChatSession) CanRegenerate() bool {
	n := len(s.Messages)
	if n < 2 {
		return false
	}
	return s.Messages[n-1].Role == RoleAssistant && s.Messages[n-2].Role == RoleUser
}

// =============================================================================
// METADATA
// =============================================================================

// Touch updates the last-updated timestamp.
func (s *ChatSession) Touch() {
	s.LastUpdated = time.Now()
}

// HasDefaultTitle reports whether the title is still a placeholder: the
// default title, or a truncated snippet ending in "...".
func (s *ChatSession) HasDefaultTitle() bool {
	return s.Title == DefaultTitle || strings.HasSuffix(s.Title, "...")
}

// SetTitle sets the title. Blank titles are ignored.
func (s *ChatSession) SetTitle(title string) bool {
	title = strings.TrimSpace(title)
	if title == "" {
		return false
	}
	s.Title = title
	s.Touch()
	return true
}

// Preview returns a one-line snippet of the first message.
func (s *ChatSession) Preview(maxLen int) string {
	if len(s.Messages) == 0 {
		return ""
	}
	return s.Messages[0].Preview(maxLen)
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *ChatSession) Clone() *ChatSession {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = make([]*Message, len(s.Messages))
	for i, m := range s.Messages {
		c.Messages[i] = m.Clone()
	}
	return &c
}

// Meta returns lightweight metadata for listings.
func (s *ChatSession) Meta() SessionMeta {
	return SessionMeta{
		ID:           s.ID,
		Title:        s.Title,
		Preview:      s.Preview(80),
		MessageCount: len(s.Messages),
		Variant:      s.Config.Variant,
		CreatedAt:    s.CreatedAt,
		LastUpdated:  s.LastUpdated,
	}
}

// SessionMeta is the listing view of a session.
type SessionMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Preview      string    `json:"preview"`
	MessageCount int       `json:"message_count"`
	Variant      Variant   `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
	LastUpdated  time.Time `json:"last_updated"`
}
