// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// GenerationResult is the outcome of a successful generation.
type GenerationResult struct {
	Text      string  `json:"text"`
	UsedModel Variant `json:"used_model"`

	// Attempts counts backend calls made, including failed ones.
	Attempts int `json:"attempts"`
}

// Switched reports whether the reply came from a variant other than the
// configured one.
func (r GenerationResult) Switched(configured Variant) bool {
	return r.UsedModel != configured
}
