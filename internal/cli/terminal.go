// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Terminal widths used for wrapping and listings.
const (
	DefaultTerminalWidth = 80
	MinTerminalWidth     = 40

	// MaxRenderWidth caps prose line length when rendering markdown.
	MaxRenderWidth = 100
)

// ErrNotInteractive is returned by commands that need a terminal on stdin.
var ErrNotInteractive = errors.New("stdin is not a terminal")

// IsTTY reports whether stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTTY reports whether stdout is a terminal. Markdown is only
// rendered when it is, so piped output stays plain.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// GetTerminalWidth returns the stdout width, clamped below at
// MinTerminalWidth, or DefaultTerminalWidth when unknown.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	switch {
	case err != nil || width <= 0:
		return DefaultTerminalWidth
	case width < MinTerminalWidth:
		return MinTerminalWidth
	default:
		return width
	}
}

// GetColorProfile returns the color profile for stdout. termenv honors
// NO_COLOR and CLICOLOR_FORCE; a non-terminal stdout gets no colors.
func GetColorProfile() termenv.Profile {
	if termenv.EnvNoColor() {
		return termenv.Ascii
	}
	return termenv.NewOutput(os.Stdout).EnvColorProfile()
}

// RequiresTTY returns an error wrapping ErrNotInteractive when stdin is
// not a terminal.
func RequiresTTY(operation string) error {
	if IsTTY() {
		return nil
	}
	return &ttyError{operation: operation}
}

type ttyError struct {
	operation string
}

func (e *ttyError) Error() string {
	return ErrNotInteractive.Error() + "; cannot " + e.operation + " interactively"
}

func (e *ttyError) Unwrap() error {
	return ErrNotInteractive
}
