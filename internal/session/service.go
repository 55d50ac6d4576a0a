// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/inkweaver/internal/generate"
	"github.com/jeranaias/inkweaver/internal/model"
	"github.com/jeranaias/inkweaver/internal/storage"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned for unknown session IDs.
	ErrNotFound = storage.ErrSessionNotFound

	// ErrBusy is returned when a generation is already running for a session.
	ErrBusy = errors.New("a reply is already being generated for this session")

	// ErrCannotRegenerate is returned when the session doesn't end in a
	// user turn followed by a reply.
	ErrCannotRegenerate = errors.New("nothing to regenerate")

	// ErrEmptyPrompt is returned for blank input.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrEmptyTitle is returned when renaming to a blank title.
	ErrEmptyTitle = errors.New("title is empty")
)

// =============================================================================
// SERVICE
// =============================================================================

// Generator produces replies and titles.
type Generator interface {
	Generate(ctx context.Context, history []model.Message, prompt string, cfg model.ModelConfig, onPartial generate.PartialFunc) (model.GenerationResult, error)
	SynthesizeTitle(ctx context.Context, history []model.Message) string
}

// Title synthesis thresholds.
const (
	// titleMaxHistory is the largest request history (prior turns plus the
	// new prompt) that still triggers a rename on a titled session.
	titleMaxHistory = 3

	// titleMinReplyLen is the reply length in characters a rename requires.
	titleMinReplyLen = 20

	// DefaultTitleTimeout bounds a background title request.
	DefaultTitleTimeout = 30 * time.Second
)

// Service manages sessions. It is safe for concurrent use.
type Service struct {
	store    storage.Store
	gen      Generator
	log      *logrus.Logger
	defaults model.ModelConfig

	titleTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*model.ChatSession
	busy     map[string]bool

	titles sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithDefaults sets the config given to sessions created without one.
func WithDefaults(cfg model.ModelConfig) Option {
	return func(s *Service) { s.defaults = cfg.Normalize() }
}

// WithTitleTimeout bounds background title synthesis.
func WithTitleTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.titleTimeout = d
		}
	}
}

// NewService creates a service over store and gen.
func NewService(store storage.Store, gen Generator, opts ...Option) *Service {
	s := &Service{
		store:        store,
		gen:          gen,
		log:          logrus.StandardLogger(),
		defaults:     model.DefaultModelConfig(),
		titleTimeout: DefaultTitleTimeout,
		sessions:     make(map[string]*model.ChatSession),
		busy:         make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Defaults returns the config used for new sessions.
func (s *Service) Defaults() model.ModelConfig {
	return s.defaults
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Create starts a new session. A nil cfg uses the service defaults.
func (s *Service) Create(cfg *model.ModelConfig) (*model.ChatSession, error) {
	c := s.defaults
	if cfg != nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		c = *cfg
	}
	sess := model.NewChatSessionWithConfig(c)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Save(sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.sessions[sess.ID] = sess
	s.log.WithField("session", sess.ID).Debug("session created")
	return sess.Clone(), nil
}

// Get returns a copy of the session.
func (s *Service) Get(id string) (*model.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

// List returns session metadata, most recently updated first.
func (s *Service) List() ([]model.SessionMeta, error) {
	return s.store.List()
}

// Delete removes a session. Deleting a session mid-generation is refused.
func (s *Service) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy[id] {
		return ErrBusy
	}
	if err := s.store.Delete(id); err != nil {
		return err
	}
	delete(s.sessions, id)
	return nil
}

// UpdateConfig replaces the session's generation settings.
func (s *Service) UpdateConfig(id string, cfg model.ModelConfig) (*model.ChatSession, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return s.mutate(id, func(sess *model.ChatSession) {
		sess.Config = cfg.Normalize()
		sess.Touch()
	})
}

// Rename sets the session title.
func (s *Service) Rename(id, title string) (*model.ChatSession, error) {
	if strings.TrimSpace(title) == "" {
		return nil, ErrEmptyTitle
	}
	return s.mutate(id, func(sess *model.ChatSession) {
		sess.SetTitle(title)
	})
}

func (s *Service) mutate(id string, fn func(*model.ChatSession)) (*model.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	fn(sess)
	if err := s.store.Save(sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return sess.Clone(), nil
}

// lookup returns the live session, loading it from the store on first use.
// Caller holds s.mu.
func (s *Service) lookup(id string) (*model.ChatSession, error) {
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	sess, err := s.store.Load(id)
	if err != nil {
		return nil, err
	}
	s.sessions[id] = sess
	return sess, nil
}

// Wait blocks until background title renames finish.
func (s *Service) Wait() {
	s.titles.Wait()
}
