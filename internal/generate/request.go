// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generate

import (
	"github.com/jeranaias/inkweaver/internal/gemini"
	"github.com/jeranaias/inkweaver/internal/model"
)

// SystemInstruction is the persona every story request carries.
const SystemInstruction = `You are InkWeaver, an accomplished creative writing partner and storyteller.
You help writers develop novels, fanfiction and short stories with rich characters and gripping plots.
You may write mature or dark material when the story calls for it, and you treat it with literary care.
When asked, you can imitate the voice of community fiction sites such as Wattpad or AO3.
When Deep Thinking is on, work out the structure of complex plot points before you write.
Format every reply in Markdown, use bold for emphasis, and give dialogue proper spacing.`

// safetySettings relaxes every category to block only high-probability harm.
var safetySettings = []gemini.SafetySetting{
	{Category: gemini.HarmCategoryHarassment, Threshold: gemini.BlockOnlyHigh},
	{Category: gemini.HarmCategoryHateSpeech, Threshold: gemini.BlockOnlyHigh},
	{Category: gemini.HarmCategorySexuallyExplicit, Threshold: gemini.BlockOnlyHigh},
	{Category: gemini.HarmCategoryDangerousContent, Threshold: gemini.BlockOnlyHigh},
}

// SafetySettings returns a copy of the safety settings sent with every request.
func SafetySettings() []gemini.SafetySetting {
	out := make([]gemini.SafetySetting, len(safetySettings))
	copy(out, safetySettings)
	return out
}

// wireRole maps a message role to the API's role names.
func wireRole(r model.Role) string {
	if r == model.RoleUser {
		return gemini.RoleUser
	}
	return gemini.RoleModel
}

// BuildRequest assembles the request for one attempt on variant v.
// Search and thinking are attached only when both enabled in cfg and
// supported by v.
func BuildRequest(systemInstruction string, history []model.Message, prompt string, cfg model.ModelConfig, v model.Variant) *gemini.GenerateContentRequest {
	contents := make([]gemini.Content, 0, len(history)+1)
	for _, m := range history {
		// The API rejects empty parts.
		if m.Text == "" {
			continue
		}
		contents = append(contents, gemini.NewTextContent(wireRole(m.Role), m.Text))
	}
	contents = append(contents, gemini.NewTextContent(gemini.RoleUser, prompt))

	req := &gemini.GenerateContentRequest{
		Contents:       contents,
		SafetySettings: SafetySettings(),
	}
	if systemInstruction != "" {
		req.SystemInstruction = &gemini.Content{Parts: []gemini.Part{{Text: systemInstruction}}}
	}
	if cfg.EffectiveSearch(v) {
		req.Tools = []gemini.Tool{{GoogleSearch: &gemini.GoogleSearch{}}}
	}
	if cfg.EffectiveThinking(v) {
		req.GenerationConfig = &gemini.GenerationConfig{
			ThinkingConfig: &gemini.ThinkingConfig{
				ThinkingBudget: model.ClampThinkingBudget(cfg.ThinkingBudget),
			},
		}
	}
	return req
}
