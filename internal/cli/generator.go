// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"

	"github.com/jeranaias/inkweaver/internal/generate"
	"github.com/jeranaias/inkweaver/internal/model"
)

// unavailableGenerator backs read-only commands.
type unavailableGenerator struct{}

func (unavailableGenerator) Generate(context.Context, []model.Message, string, model.ModelConfig, generate.PartialFunc) (model.GenerationResult, error) {
	return model.GenerationResult{}, ErrNoAPIKey
}

func (unavailableGenerator) SynthesizeTitle(context.Context, []model.Message) string {
	return ""
}
