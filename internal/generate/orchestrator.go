// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/inkweaver/internal/gemini"
	"github.com/jeranaias/inkweaver/internal/model"
)

// =============================================================================
// BACKEND
// =============================================================================

// Backend is the generative API used by the Orchestrator.
// *gemini.Client implements it.
type Backend interface {
	StreamGenerateContent(ctx context.Context, modelID string, req *gemini.GenerateContentRequest, callback gemini.StreamCallback) error
	GenerateContent(ctx context.Context, modelID string, req *gemini.GenerateContentRequest) (*gemini.GenerateContentResponse, error)
}

// PartialFunc receives the whole reply accumulated so far, never a delta.
type PartialFunc func(text string)

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator runs generations against a Backend. It holds no per-call
// state and is safe for concurrent use.
type Orchestrator struct {
	backend           Backend
	systemInstruction string
	log               *logrus.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithSystemInstruction overrides the persona instruction.
func WithSystemInstruction(s string) Option {
	return func(o *Orchestrator) {
		o.systemInstruction = s
	}
}

// NewOrchestrator creates an Orchestrator over backend.
func NewOrchestrator(backend Backend, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:           backend,
		systemInstruction: SystemInstruction,
		log:               logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Plan returns the variants Generate will try, in order.
//
// Without auto-switch only the configured variant is tried. With it, the
// configured variant and then each later variant in the fallback order;
// the sequence never wraps back to a variant ahead of the configured one.
// An unknown variant starts from the head of the order.
func Plan(cfg model.ModelConfig) []model.Variant {
	order := model.FallbackOrder()
	start := cfg.Variant.Index()
	if start < 0 {
		start = 0
	}
	if !cfg.AutoSwitch {
		return order[start : start+1]
	}
	return order[start:]
}

// Generate streams a reply to prompt given the prior history.
//
// onPartial, when non-nil, is called after every non-empty fragment with the
// text accumulated so far in the current attempt. A fallback retry starts
// again from empty. On success the result holds the full text and the
// variant that produced it; on failure no partial text is returned. A
// safety block that leaves no text fails with gemini.ErrEmptyResponse
// and does not trigger a fallback.
func (o *Orchestrator) Generate(ctx context.Context, history []model.Message, prompt string, cfg model.ModelConfig, onPartial PartialFunc) (model.GenerationResult, error) {
	plan := Plan(cfg)
	var lastErr error

	for attempt, variant := range plan {
		if err := ctx.Err(); err != nil {
			return model.GenerationResult{}, err
		}

		entry := o.log.WithFields(logrus.Fields{
			"variant": variant.String(),
			"model":   variant.ModelID(),
			"attempt": attempt + 1,
		})
		entry.Info("attempting generation")

		text, err := o.stream(ctx, history, prompt, cfg, variant, onPartial, entry)
		if err == nil {
			return model.GenerationResult{
				Text:      text,
				UsedModel: variant,
				Attempts:  attempt + 1,
			}, nil
		}

		if cfg.AutoSwitch && IsQuotaError(err) && ctx.Err() == nil {
			entry.WithError(err).Warn("quota exceeded, switching to next model")
			lastErr = err
			continue
		}

		entry.WithError(err).Error("generation failed")
		return model.GenerationResult{}, err
	}

	names := make([]string, len(plan))
	for i, v := range plan {
		names[i] = v.String()
	}
	o.log.WithField("tried", strings.Join(names, ",")).Error("all model variants exhausted")
	return model.GenerationResult{}, fmt.Errorf("%w (tried %s): %v", ErrAllVariantsExhausted, strings.Join(names, ", "), lastErr)
}

// stream runs one attempt and returns the accumulated text.
func (o *Orchestrator) stream(ctx context.Context, history []model.Message, prompt string, cfg model.ModelConfig, v model.Variant, onPartial PartialFunc, entry *logrus.Entry) (string, error) {
	req := BuildRequest(o.systemInstruction, history, prompt, cfg, v)

	var acc strings.Builder
	var finish, blocked string
	err := o.backend.StreamGenerateContent(ctx, v.ModelID(), req, func(chunk *gemini.GenerateContentResponse) {
		if r := chunk.FinishReason(); r != "" {
			finish = r
		}
		if r := chunk.BlockReason(); r != "" {
			blocked = r
		}
		fragment := chunk.Text()
		if fragment == "" {
			return
		}
		acc.WriteString(fragment)
		if onPartial != nil {
			onPartial(acc.String())
		}
	})
	if err != nil {
		return "", err
	}

	if acc.Len() == 0 {
		entry := entry.WithFields(logrus.Fields{
			"finish_reason": finish,
			"block_reason":  blocked,
		})
		if err := blockedError(blocked, finish); err != nil {
			entry.WithError(err).Warn("reply blocked")
			return "", err
		}
		entry.Warn("model returned no text")
	}
	return acc.String(), nil
}
