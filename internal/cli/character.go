// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jeranaias/inkweaver/internal/model"
)

// CharacterFlags hold a character sheet and output options.
type CharacterFlags struct {
	Model     ModelFlags
	Sheet     model.Character
	SessionID string
	NoStream  bool
	Raw       bool
}

// BindFlags registers the flags on fs.
func (f *CharacterFlags) BindFlags(fs *pflag.FlagSet) {
	f.Model.BindFlags(fs)
	fs.StringVar(&f.Sheet.Name, "name", "", "Character name (required)")
	fs.StringVar(&f.Sheet.Role, "role", model.DefaultCharacterRole,
		"Story role, e.g. "+strings.Join(model.CharacterRoles, ", "))
	fs.StringVar(&f.Sheet.Appearance, "appearance", "", "Physical description")
	fs.StringVar(&f.Sheet.Personality, "personality", "", "Temperament and quirks")
	fs.StringVar(&f.Sheet.Backstory, "backstory", "", "History before the story starts")
	fs.StringVar(&f.Sheet.Goals, "goals", "", "What the character wants")
	fs.StringVar(&f.Sheet.Relationships, "relationships", "", "Ties to other characters")
	fs.StringVarP(&f.SessionID, "session", "s", "", "Add the profile to an existing session")
	fs.BoolVar(&f.NoStream, "no-stream", false, "Wait for the whole profile before printing it")
	fs.BoolVar(&f.Raw, "raw", false, "Never render markdown")
}

// Validate checks the sheet and model flags.
func (f *CharacterFlags) Validate() error {
	if err := f.Sheet.Validate(); err != nil {
		return fmt.Errorf("%w (use --name)", err)
	}
	return f.Model.Validate()
}

// NewCharacterCommand creates the character command.
func NewCharacterCommand(env *Env) *cobra.Command {
	f := &CharacterFlags{}
	cmd := &cobra.Command{
		Use:     "character",
		Aliases: []string{"char"},
		Short:   "Develop a character from a short sheet",
		Long: `Send a character sheet and get back a fuller profile. The exchange is saved
as a story session like any other, so it can be continued with 'chat --session'.`,
		Example: `  inkweaver character --name "Mara Voss" --role Antagonist \
      --personality "patient, exacting" --goals "buy back the family mill"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.Validate(); err != nil {
				return err
			}

			app, err := env.OpenApp(true)
			if err != nil {
				return err
			}
			defer app.Close()

			sess, err := resolveSession(app.Sessions, f.SessionID, &f.Model, cmd.Flags())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sheet := f.Sheet
			return runTurn(ctx, cmd, sess.Config, !f.NoStream, !f.Raw && IsStdoutTTY(),
				func(onUpdate func(string)) (model.GenerationResult, error) {
					_, res, err := app.Sessions.DevelopCharacter(ctx, sess.ID, &sheet, onUpdate)
					return res, err
				},
				sess.ID)
		},
	}
	f.BindFlags(cmd.Flags())
	return cmd
}
