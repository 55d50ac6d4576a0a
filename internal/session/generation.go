// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/inkweaver/internal/generate"
	"github.com/jeranaias/inkweaver/internal/model"
)

// turn is one generation in progress.
type turn struct {
	sessionID   string
	placeholder string
	prompt      string
	history     []model.Message
	cfg         model.ModelConfig
	// requestLen counts the prior turns plus the new prompt.
	requestLen int
	titled     bool
}

// Send appends text as a user turn and generates the reply. onUpdate, if
// non-nil, receives the cumulative reply text as it streams.
//
// On failure the reply placeholder is replaced by an error notice and the
// error is returned.
func (s *Service) Send(ctx context.Context, id, text string, onUpdate generate.PartialFunc) (model.GenerationResult, error) {
	if strings.TrimSpace(text) == "" {
		return model.GenerationResult{}, ErrEmptyPrompt
	}

	s.mu.Lock()
	sess, err := s.begin(id)
	if err != nil {
		s.mu.Unlock()
		return model.GenerationResult{}, err
	}
	t := &turn{
		sessionID:  id,
		prompt:     text,
		history:    requestHistory(sess.Messages),
		cfg:        sess.Config,
		requestLen: len(sess.Messages) + 1,
		titled:     !sess.HasDefaultTitle(),
	}
	sess.Append(model.NewUserMessage(text))
	t.placeholder = s.appendPlaceholder(sess)
	s.mu.Unlock()

	res, err := s.run(ctx, t, onUpdate)
	if err == nil && s.shouldRetitle(t, res) {
		s.retitle(id, append(t.history, model.Message{Role: model.RoleUser, Text: text}, model.Message{Role: model.RoleAssistant, Text: res.Text}))
	}
	return res, err
}

// Regenerate discards the last reply and generates a new one for the same
// user turn.
func (s *Service) Regenerate(ctx context.Context, id string, onUpdate generate.PartialFunc) (model.GenerationResult, error) {
	s.mu.Lock()
	sess, err := s.begin(id)
	if err != nil {
		s.mu.Unlock()
		return model.GenerationResult{}, err
	}
	if !sess.CanRegenerate() {
		delete(s.busy, id)
		s.mu.Unlock()
		return model.GenerationResult{}, ErrCannotRegenerate
	}
	sess.RemoveLast()
	prompt := sess.Last()
	t := &turn{
		sessionID: id,
		prompt:    prompt.Text,
		history:   requestHistory(sess.Messages[:len(sess.Messages)-1]),
		cfg:       sess.Config,
	}
	t.placeholder = s.appendPlaceholder(sess)
	s.mu.Unlock()

	return s.run(ctx, t, onUpdate)
}

// DevelopCharacter sends the character-development prompt. An empty id
// starts a new session. The session ID used is returned with the result.
func (s *Service) DevelopCharacter(ctx context.Context, id string, c *model.Character, onUpdate generate.PartialFunc) (string, model.GenerationResult, error) {
	if c == nil {
		return "", model.GenerationResult{}, errors.New("no character given")
	}
	if err := c.Validate(); err != nil {
		return "", model.GenerationResult{}, err
	}
	if id == "" {
		sess, err := s.Create(nil)
		if err != nil {
			return "", model.GenerationResult{}, err
		}
		id = sess.ID
	}
	res, err := s.Send(ctx, id, c.Prompt(), onUpdate)
	return id, res, err
}

// begin loads the session and marks it busy. Caller holds s.mu.
func (s *Service) begin(id string) (*model.ChatSession, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if s.busy[id] {
		return nil, ErrBusy
	}
	s.busy[id] = true
	return sess, nil
}

// appendPlaceholder adds the streaming target and persists. Caller holds s.mu.
func (s *Service) appendPlaceholder(sess *model.ChatSession) string {
	ph := model.NewAssistantPlaceholder()
	sess.Append(ph)
	s.save(sess)
	return ph.ID
}

// run generates the reply for t and settles the placeholder.
func (s *Service) run(ctx context.Context, t *turn, onUpdate generate.PartialFunc) (model.GenerationResult, error) {
	defer func() {
		s.mu.Lock()
		delete(s.busy, t.sessionID)
		s.mu.Unlock()
	}()

	res, err := s.gen.Generate(ctx, t.history, t.prompt, t.cfg, func(text string) {
		s.mu.Lock()
		if sess, ok := s.sessions[t.sessionID]; ok {
			sess.UpdateMessageText(t.placeholder, text)
		}
		s.mu.Unlock()
		if onUpdate != nil {
			onUpdate(text)
		}
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[t.sessionID]
	if !ok {
		return res, err
	}

	entry := s.log.WithFields(logrus.Fields{"session": t.sessionID})
	if err != nil {
		entry.WithError(err).Warn("generation failed")
		sess.ReplaceMessage(t.placeholder, model.NewErrorNotice(err))
	} else {
		if m := sess.MessageByID(t.placeholder); m != nil {
			m.Text = res.Text
			m.IsThinking = false
		}
		sess.Touch()
		if res.Switched(t.cfg.Variant) {
			entry.WithFields(logrus.Fields{
				"configured": t.cfg.Variant.String(),
				"used":       res.UsedModel.String(),
			}).Info("reply generated on fallback model")
		}
	}
	s.save(sess)
	return res, err
}

func (s *Service) shouldRetitle(t *turn, res model.GenerationResult) bool {
	if t.titled && t.requestLen > titleMaxHistory {
		return false
	}
	return utf8.RuneCountInString(res.Text) > titleMinReplyLen
}

// retitle synthesizes a title in the background and applies it if usable.
func (s *Service) retitle(id string, history []model.Message) {
	s.titles.Add(1)
	go func() {
		defer s.titles.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.titleTimeout)
		defer cancel()

		title := s.gen.SynthesizeTitle(ctx, history)
		if !generate.IsUsableTitle(title) {
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		sess, ok := s.sessions[id]
		if !ok {
			return
		}
		sess.SetTitle(title)
		s.save(sess)
		s.log.WithFields(logrus.Fields{"session": id, "title": title}).Debug("session retitled")
	}()
}

// save persists sess, logging failures. Caller holds s.mu.
func (s *Service) save(sess *model.ChatSession) {
	if err := s.store.Save(sess); err != nil {
		s.log.WithError(err).WithField("session", sess.ID).Error("failed to save session")
	}
}

// requestHistory copies msgs for a request, leaving out error notices and
// unfinished placeholders.
func requestHistory(msgs []*model.Message) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.IsThinking || IsErrorNotice(m) {
			continue
		}
		out = append(out, *m)
	}
	return out
}

// IsErrorNotice reports whether m is a generation failure notice.
func IsErrorNotice(m *model.Message) bool {
	return m != nil && m.Role == model.RoleAssistant && strings.HasPrefix(m.Text, model.ErrorNoticePrefix)
}
