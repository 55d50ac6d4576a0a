// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/inkweaver/internal/export"
	"github.com/jeranaias/inkweaver/internal/model"
	"github.com/jeranaias/inkweaver/internal/session"
	"github.com/jeranaias/inkweaver/internal/util"
)

// shortIDLen is how much of a session ID listings show.
const shortIDLen = 8

// findSession resolves a full session ID or a unique prefix of one.
func findSession(svc *session.Service, ref string) (*model.ChatSession, error) {
	sess, err := svc.Get(ref)
	if err == nil || !errors.Is(err, session.ErrNotFound) {
		return sess, err
	}

	metas, lerr := svc.List()
	if lerr != nil {
		return nil, lerr
	}
	var matches []string
	for _, m := range metas {
		if strings.HasPrefix(m.ID, ref) {
			matches = append(matches, m.ID)
		}
	}
	switch len(matches) {
	case 0:
		return nil, err
	case 1:
		return svc.Get(matches[0])
	default:
		return nil, fmt.Errorf("session prefix %q is ambiguous (%d matches)", ref, len(matches))
	}
}

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

// NewSessionsCommand creates the sessions command group.
func NewSessionsCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session", "s"},
		Short:   "Manage saved story sessions",
		Long: `Manage saved story sessions. Commands taking an ID also accept a unique
prefix of one, as shown by 'inkweaver sessions list'.`,
	}
	cmd.AddCommand(
		newSessionsListCommand(env),
		newSessionsShowCommand(env),
		newSessionsRenameCommand(env),
		newSessionsExportCommand(env),
		newSessionsDeleteCommand(env),
	)
	return cmd
}

func newSessionsListCommand(env *Env) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions grouped by date",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := env.OpenApp(false)
			if err != nil {
				return err
			}
			defer app.Close()

			metas, err := app.Sessions.List()
			if err != nil {
				return err
			}
			groups := model.GroupByDate(metas, time.Now())
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(groups)
			}
			printSessionGroups(cmd.OutOrStdout(), groups, GetTerminalWidth())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// printSessionGroups prints one line per session under date headings.
func printSessionGroups(w io.Writer, groups []model.SessionGroup, width int) {
	if len(groups) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No stories yet. Start one with 'inkweaver chat'."))
		return
	}

	// id, variant, count and gaps take the fixed columns; title and preview
	// share the rest.
	const titleWidth = 32
	previewWidth := width - shortIDLen - titleWidth - 18
	for i, g := range groups {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, SectionStyle.Render(g.Label))
		for _, m := range g.Sessions {
			title := util.PadRight(util.TruncateWidth(util.SingleLine(m.Title), titleWidth), titleWidth)
			line := fmt.Sprintf("  %s  %s  %-5s %3d", shortID(m.ID), title, m.Variant.String(), m.MessageCount)
			if previewWidth > 10 && m.Preview != "" {
				line += "  " + DimStyle.Render(util.TruncateWidth(util.SingleLine(m.Preview), previewWidth))
			}
			fmt.Fprintln(w, line)
		}
	}
}

func newSessionsShowCommand(env *Env) *cobra.Command {
	var asJSON, raw bool
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Print a session's transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := env.OpenApp(false)
			if err != nil {
				return err
			}
			defer app.Close()

			sess, err := findSession(app.Sessions, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				data, err := export.NewJSONExporter().Export(sess)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return printTranscript(cmd.OutOrStdout(), sess, !raw && IsStdoutTTY())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the stored session as JSON")
	cmd.Flags().BoolVar(&raw, "raw", false, "Never render markdown")
	return cmd
}

func newSessionsRenameCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "rename ID TITLE",
		Short: "Set a session's title",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := env.OpenApp(false)
			if err != nil {
				return err
			}
			defer app.Close()

			sess, err := findSession(app.Sessions, args[0])
			if err != nil {
				return err
			}
			sess, err = app.Sessions.Rename(sess.ID, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Renamed "+shortID(sess.ID)+" to "+sess.Title))
			return nil
		},
	}
}

func newSessionsExportCommand(env *Env) *cobra.Command {
	var (
		format    string
		outputDir string
		toStdout  bool
	)
	cmd := &cobra.Command{
		Use:   "export ID",
		Short: "Export a session as Markdown or JSON",
		Example: `  inkweaver sessions export 3f2c
  inkweaver sessions export 3f2c --format json --output ~/stories
  inkweaver sessions export 3f2c --stdout > story.md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := export.ForFormat(format)
			if err != nil {
				return err
			}

			app, err := env.OpenApp(false)
			if err != nil {
				return err
			}
			defer app.Close()

			sess, err := findSession(app.Sessions, args[0])
			if err != nil {
				return err
			}
			if toStdout {
				data, err := exp.Export(sess)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			opts := export.DefaultOptions()
			opts.OutputDir = outputDir
			path, err := export.ToFile(sess, exp, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Exported to "+path))
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", export.FormatMarkdown, "Export format: md or json")
	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "Directory to write the file to")
	cmd.Flags().BoolVar(&toStdout, "stdout", false, "Write to stdout instead of a file")
	return cmd
}

func newSessionsDeleteCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID...",
		Aliases: []string{"rm"},
		Short:   "Delete sessions",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := env.OpenApp(false)
			if err != nil {
				return err
			}
			defer app.Close()

			var failed int
			for _, ref := range args {
				sess, err := findSession(app.Sessions, ref)
				if err == nil {
					err = app.Sessions.Delete(sess.ID)
				}
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %v\n", ErrorStyle.Render("[Error]"), ref, err)
					failed++
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Deleted "+shortID(sess.ID))+" "+DimStyle.Render(sess.Title))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d sessions could not be deleted", failed, len(args))
			}
			return nil
		},
	}
}
