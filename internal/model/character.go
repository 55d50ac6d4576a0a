// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DefaultCharacterRole is used when a character sheet leaves the role blank.
const DefaultCharacterRole = "Protagonist"

// CharacterRoles lists the suggested archetypes.
var CharacterRoles = []string{
	"Protagonist",
	"Antagonist",
	"Love Interest",
	"Mentor",
	"Sidekick",
	"Rival",
}

// Character is a character sheet the user fills in before asking for a
// fuller profile.
type Character struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Role          string `json:"role"`
	Appearance    string `json:"appearance"`
	Personality   string `json:"personality"`
	Backstory     string `json:"backstory"`
	Goals         string `json:"goals"`
	Relationships string `json:"relationships"`
}

// NewCharacter creates a character with a generated ID and the default role.
func NewCharacter(name string) *Character {
	return &Character{
		ID:   uuid.NewString(),
		Name: name,
		Role: DefaultCharacterRole,
	}
}

// Validate requires a name.
func (c *Character) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("character name is required")
	}
	return nil
}

// Prompt builds the character-development request sent as a user turn.
func (c *Character) Prompt() string {
	role := strings.TrimSpace(c.Role)
	if role == "" {
		role = DefaultCharacterRole
	}

	var b strings.Builder
	b.WriteString("I am developing a character for a story. Please help me flesh them out based on these details:\n\n")
	fmt.Fprintf(&b, "Name: %s\n", c.Name)
	fmt.Fprintf(&b, "Role: %s\n", role)
	fmt.Fprintf(&b, "Appearance: %s\n", c.Appearance)
	fmt.Fprintf(&b, "Personality: %s\n", c.Personality)
	fmt.Fprintf(&b, "Backstory: %s\n", c.Backstory)
	fmt.Fprintf(&b, "Goals: %s\n", c.Goals)
	fmt.Fprintf(&b, "Relationships: %s\n\n", c.Relationships)
	b.WriteString("Please provide:\n")
	b.WriteString("1. A psychological profile.\n")
	b.WriteString("2. Unique quirks or mannerisms.\n")
	b.WriteString("3. Potential character arcs or conflicts.\n")
	b.WriteString("4. A short sample scene featuring this character.")
	return b.String()
}
