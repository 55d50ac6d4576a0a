// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/inkweaver/internal/config"
	"github.com/jeranaias/inkweaver/internal/gemini"
	"github.com/jeranaias/inkweaver/internal/generate"
	"github.com/jeranaias/inkweaver/internal/session"
	"github.com/jeranaias/inkweaver/internal/storage"
)

// ErrNoAPIKey is returned when a command needs the API but no key is set.
var ErrNoAPIKey = errors.New("no Gemini API key configured: set " + config.EnvAPIKey + " or api.key in the config file")

// GeneratorFactory builds the generation backend for a config.
type GeneratorFactory func(cfg *config.Config, log *logrus.Logger) (session.Generator, error)

// GeminiGenerator is the production GeneratorFactory.
func GeminiGenerator(cfg *config.Config, log *logrus.Logger) (session.Generator, error) {
	client := gemini.NewClient(cfg.API.Key).
		WithBaseURL(cfg.API.BaseURL).
		WithTimeout(cfg.API.Timeout()).
		WithRateLimit(cfg.API.RequestsPerMinute).
		WithLogger(log)
	if !client.IsConfigured() {
		return nil, ErrNoAPIKey
	}
	log.WithField("key", client.APIKeyMasked()).Debug("gemini client ready")
	return generate.NewOrchestrator(client, generate.WithLogger(log)), nil
}

// App is the wired set of components a command works with.
type App struct {
	Store    storage.Store
	Sessions *session.Service
	Log      *logrus.Logger
}

// OpenApp opens storage and, when needGenerator is set, the generation
// backend. Commands that only read sessions skip the backend so they work
// without an API key.
func (e *Env) OpenApp(needGenerator bool) (*App, error) {
	dir, err := e.Config.SessionsDir()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(e.Config.Storage.Backend, dir, e.Config.Storage.MaxSessions)
	if err != nil {
		return nil, fmt.Errorf("open session storage: %w", err)
	}

	var gen session.Generator = unavailableGenerator{}
	if needGenerator {
		factory := e.NewGenerator
		if factory == nil {
			factory = GeminiGenerator
		}
		gen, err = factory(e.Config, e.Log)
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	e.Log.WithFields(logrus.Fields{
		"backend": e.Config.Storage.Backend,
		"dir":     dir,
	}).Debug("session storage opened")

	svc := session.NewService(store, gen,
		session.WithLogger(e.Log),
		session.WithDefaults(e.Config.Defaults.ModelConfig()),
	)
	return &App{Store: store, Sessions: svc, Log: e.Log}, nil
}

// Close waits for background title updates, then closes storage.
func (a *App) Close() error {
	a.Sessions.Wait()
	return a.Store.Close()
}
