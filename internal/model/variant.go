// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"strings"
)

// ============================================================================
// VARIANT TYPE
// ============================================================================

// Variant identifies a backend model variant.
// The declaration order is the fallback order: PRO -> FLASH -> LITE.
type Variant int

const (
	// VariantPro is the most capable variant. Supports thinking and search.
	VariantPro Variant = iota
	// VariantFlash is the balanced variant. Supports thinking and search.
	VariantFlash
	// VariantLite is the lightest variant. Used for titles and as last resort.
	VariantLite
)

// Backend model identifiers.
const (
	ModelIDPro   = "gemini-3-pro-preview"
	ModelIDFlash = "gemini-3-flash-preview"
	ModelIDLite  = "gemini-flash-lite-latest"
)

// fallbackOrder is the fixed sequence tried on quota failures.
var fallbackOrder = [...]Variant{VariantPro, VariantFlash, VariantLite}

// FallbackOrder returns the fixed variant fallback sequence.
func FallbackOrder() []Variant {
	out := make([]Variant, len(fallbackOrder))
	copy(out, fallbackOrder[:])
	return out
}

// String returns the short name of the variant.
func (v Variant) String() string {
	switch v {
	case VariantPro:
		return "PRO"
	case VariantFlash:
		return "FLASH"
	case VariantLite:
		return "LITE"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// ModelID returns the backend model identifier sent on the wire.
func (v Variant) ModelID() string {
	switch v {
	case VariantPro:
		return ModelIDPro
	case VariantFlash:
		return ModelIDFlash
	case VariantLite:
		return ModelIDLite
	default:
		return ""
	}
}

// DisplayName returns a human-readable label for settings screens.
func (v Variant) DisplayName() string {
	switch v {
	case VariantPro:
		return "Gemini 3 Pro"
	case VariantFlash:
		return "Gemini 3 Flash"
	case VariantLite:
		return "Gemini Flash Lite"
	default:
		return v.String()
	}
}

// IsValid reports whether v is one of the declared variants.
func (v Variant) IsValid() bool {
	return v >= VariantPro && v <= VariantLite
}

// Index returns the position of v in the fallback order, or -1.
func (v Variant) Index() int {
	for i, f := range fallbackOrder {
		if f == v {
			return i
		}
	}
	return -1
}

// SupportsThinking reports whether the variant accepts a thinking budget.
func (v Variant) SupportsThinking() bool {
	return v == VariantPro || v == VariantFlash
}

// SupportsSearch reports whether the variant accepts the search tool.
func (v Variant) SupportsSearch() bool {
	return v == VariantPro || v == VariantFlash
}

// ParseVariant parses a short name ("pro", "flash", "lite") or a backend
// model identifier. Matching is case-insensitive.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pro", ModelIDPro:
		return VariantPro, nil
	case "flash", ModelIDFlash:
		return VariantFlash, nil
	case "lite", "flash-lite", ModelIDLite:
		return VariantLite, nil
	}
	return VariantPro, fmt.Errorf("unknown model variant %q", s)
}

// MarshalText encodes the variant as its short name.
func (v Variant) MarshalText() ([]byte, error) {
	if !v.IsValid() {
		return nil, fmt.Errorf("invalid model variant %d", int(v))
	}
	return []byte(v.String()), nil
}

// UnmarshalText decodes a short name or model identifier.
func (v *Variant) UnmarshalText(b []byte) error {
	parsed, err := ParseVariant(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
