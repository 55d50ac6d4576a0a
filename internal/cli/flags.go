// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/jeranaias/inkweaver/internal/model"
)

// ModelFlags select generation settings for a new session or override an
// existing one's. Only flags given on the command line are applied.
type ModelFlags struct {
	Variant      string
	NoAutoSwitch bool
	DeepThinking bool
	Budget       int
	Search       bool
}

// BindFlags registers the flags on fs.
func (f *ModelFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.Variant, "variant", "", "Model variant: pro, flash or lite")
	fs.BoolVar(&f.NoAutoSwitch, "no-auto-switch", false, "Fail instead of falling back to a lighter model on quota errors")
	fs.BoolVar(&f.DeepThinking, "deep-thinking", false, "Request a thinking budget (PRO and FLASH only)")
	fs.IntVar(&f.Budget, "budget", 0, fmt.Sprintf("Thinking budget in tokens (%d-%d, step %d)",
		model.MinThinkingBudget, model.MaxThinkingBudget, model.ThinkingBudgetStep))
	fs.BoolVar(&f.Search, "search", false, "Enable Google Search grounding (PRO and FLASH only)")
}

// Validate checks values that do not depend on a base config.
func (f *ModelFlags) Validate() error {
	if f.Variant != "" {
		if _, err := model.ParseVariant(f.Variant); err != nil {
			return err
		}
	}
	if f.Budget != 0 {
		if f.Budget < model.MinThinkingBudget || f.Budget > model.MaxThinkingBudget {
			return fmt.Errorf("--budget must be between %d and %d", model.MinThinkingBudget, model.MaxThinkingBudget)
		}
	}
	return nil
}

// Apply returns base with every flag changed on fs layered on top.
// The budget is snapped to the budget grid.
func (f *ModelFlags) Apply(base model.ModelConfig, fs *pflag.FlagSet) (model.ModelConfig, bool) {
	cfg := base
	changed := false
	if fs.Changed("variant") {
		v, _ := model.ParseVariant(f.Variant)
		cfg.Variant = v
		changed = true
	}
	if fs.Changed("no-auto-switch") {
		cfg.AutoSwitch = !f.NoAutoSwitch
		changed = true
	}
	if fs.Changed("deep-thinking") {
		cfg.DeepThinking = f.DeepThinking
		changed = true
	}
	if fs.Changed("budget") {
		cfg.ThinkingBudget = model.ClampThinkingBudget(f.Budget)
		changed = true
	}
	if fs.Changed("search") {
		cfg.EnableSearch = f.Search
		changed = true
	}
	return cfg, changed
}
