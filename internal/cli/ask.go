// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jeranaias/inkweaver/internal/model"
	"github.com/jeranaias/inkweaver/internal/session"
)

// AskFlags configure the ask command.
type AskFlags struct {
	Model     ModelFlags
	SessionID string
	NoStream  bool
	Raw       bool
}

// BindFlags registers the flags on fs.
func (f *AskFlags) BindFlags(fs *pflag.FlagSet) {
	f.Model.BindFlags(fs)
	fs.StringVarP(&f.SessionID, "session", "s", "", "Continue an existing session instead of starting a new one")
	fs.BoolVar(&f.NoStream, "no-stream", false, "Wait for the whole reply before printing it")
	fs.BoolVar(&f.Raw, "raw", false, "Never render markdown")
}

// Validate checks the flag values.
func (f *AskFlags) Validate() error {
	return f.Model.Validate()
}

// NewAskCommand creates the ask command.
func NewAskCommand(env *Env) *cobra.Command {
	f := &AskFlags{}
	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Send one prompt and print the reply",
		Long: `Send one prompt and print the reply. With no prompt, or "-", the prompt is
read from stdin.

Each call starts a new session unless --session names an existing one.`,
		Example: `  inkweaver ask "Open a noir story in a flooded city"
  inkweaver ask --variant flash --search "What did Victorian mourning dress look like?"
  inkweaver ask -s 3f2c... "Continue the scene"
  cat outline.txt | inkweaver ask -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.Validate(); err != nil {
				return err
			}
			prompt, err := readPrompt(args, cmd.InOrStdin())
			if err != nil {
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

			return runTurn(ctx, cmd, sess.Config, !f.NoStream, !f.Raw && IsStdoutTTY(),
				func(onUpdate func(string)) (model.GenerationResult, error) {
					return app.Sessions.Send(ctx, sess.ID, prompt, onUpdate)
				},
				sess.ID)
		},
	}
	f.BindFlags(cmd.Flags())
	return cmd
}

// readPrompt joins args, or reads stdin when there are none or the only
// one is "-".
func readPrompt(args []string, stdin io.Reader) (string, error) {
	var prompt string
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read prompt from stdin: %w", err)
		}
		prompt = string(data)
	} else {
		prompt = strings.Join(args, " ")
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", session.ErrEmptyPrompt
	}
	return prompt, nil
}

// resolveSession loads id (or a unique prefix of it), or creates a session when id is empty. Model
// flags given on the command line override the session's settings.
func resolveSession(svc *session.Service, id string, mf *ModelFlags, fs *pflag.FlagSet) (*model.ChatSession, error) {
	if id == "" {
		cfg, _ := mf.Apply(svc.Defaults(), fs)
		return svc.Create(&cfg)
	}
	sess, err := findSession(svc, id)
	if err != nil {
		return nil, err
	}
	if cfg, changed := mf.Apply(sess.Config, fs); changed {
		return svc.UpdateConfig(sess.ID, cfg)
	}
	return sess, nil
}

// runTurn runs one generation, streaming or not, and reports the outcome.
func runTurn(ctx context.Context, cmd *cobra.Command, cfg model.ModelConfig, stream, render bool,
	generate func(onUpdate func(string)) (model.GenerationResult, error), sessionID string) error {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	var printer *streamPrinter
	var onUpdate func(string)
	if stream {
		printer = newStreamPrinter(out)
		onUpdate = printer.Update
	}

	res, err := generate(onUpdate)
	if printer != nil {
		printer.Finish()
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			fmt.Fprintln(errOut, WarningStyle.Render("Generation cancelled"))
			return nil
		}
		return err
	}

	if !stream {
		displayMarkdown(out, res.Text, render)
	}
	if notice := fallbackNotice(cfg, res); notice != "" {
		fmt.Fprintln(errOut, WarningStyle.Render(notice))
	}
	if sessionID != "" {
		fmt.Fprintln(errOut, DimStyle.Render("session "+sessionID))
	}
	return nil
}
