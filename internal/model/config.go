// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "fmt"

// Thinking budget bounds, in tokens.
const (
	DefaultThinkingBudget = 2048
	MinThinkingBudget     = 1024
	MaxThinkingBudget     = 32768
	ThinkingBudgetStep    = 1024
)

// ModelConfig holds the per-session generation settings.
type ModelConfig struct {
	Variant        Variant `json:"model" toml:"variant"`
	AutoSwitch     bool    `json:"auto_switch" toml:"auto_switch"`
	DeepThinking   bool    `json:"deep_thinking" toml:"deep_thinking"`
	ThinkingBudget int     `json:"thinking_budget" toml:"thinking_budget"`
	EnableSearch   bool    `json:"enable_search" toml:"enable_search"`
}

// DefaultModelConfig returns the settings a new session starts with.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Variant:        VariantPro,
		AutoSwitch:     true,
		DeepThinking:   false,
		ThinkingBudget: DefaultThinkingBudget,
		EnableSearch:   false,
	}
}

// Normalize returns a copy with the thinking budget snapped to the nearest
// step inside [MinThinkingBudget, MaxThinkingBudget] and an unknown variant
// replaced by PRO.
func (c ModelConfig) Normalize() ModelConfig {
	if !c.Variant.IsValid() {
		c.Variant = VariantPro
	}
	c.ThinkingBudget = ClampThinkingBudget(c.ThinkingBudget)
	return c
}

// Validate checks the config without modifying it.
func (c ModelConfig) Validate() error {
	if !c.Variant.IsValid() {
		return fmt.Errorf("invalid model variant %d", int(c.Variant))
	}
	if c.ThinkingBudget < MinThinkingBudget || c.ThinkingBudget > MaxThinkingBudget {
		return fmt.Errorf("thinking budget %d out of range [%d, %d]",
			c.ThinkingBudget, MinThinkingBudget, MaxThinkingBudget)
	}
	if c.ThinkingBudget%ThinkingBudgetStep != 0 {
		return fmt.Errorf("thinking budget %d is not a multiple of %d",
			c.ThinkingBudget, ThinkingBudgetStep)
	}
	return nil
}

// EffectiveThinking reports whether a request for v should carry a thinking budget.
func (c ModelConfig) EffectiveThinking(v Variant) bool {
	return c.DeepThinking && v.SupportsThinking()
}

// EffectiveSearch reports whether a request for v should carry the search tool.
func (c ModelConfig) EffectiveSearch(v Variant) bool {
	return c.EnableSearch && v.SupportsSearch()
}

// ClampThinkingBudget snaps n onto the budget grid.
// Zero or negative values map to the default.
func ClampThinkingBudget(n int) int {
	if n <= 0 {
		return DefaultThinkingBudget
	}
	if n < MinThinkingBudget {
		return MinThinkingBudget
	}
	if n > MaxThinkingBudget {
		return MaxThinkingBudget
	}
	// Round to nearest step
	return ((n + ThinkingBudgetStep/2) / ThinkingBudgetStep) * ThinkingBudgetStep
}
