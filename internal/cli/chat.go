// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jeranaias/inkweaver/internal/config"
	"github.com/jeranaias/inkweaver/internal/export"
	"github.com/jeranaias/inkweaver/internal/model"
	"github.com/jeranaias/inkweaver/internal/session"
	"github.com/jeranaias/inkweaver/internal/util"
)

// errQuit ends the REPL from a slash command.
var errQuit = errors.New("quit")

// =============================================================================
// LINE EDITING
// =============================================================================

// lineEditor provides input history and line editing for interactive chat.
type lineEditor struct {
	line        *liner.State
	historyFile string
}

func newLineEditor() *lineEditor {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	e := &lineEditor{
		line:        line,
		historyFile: filepath.Join(dir, "chat_history"),
	}
	if f, err := os.Open(e.historyFile); err == nil {
		e.line.ReadHistory(f)
		f.Close()
	}
	return e
}

// Read prompts for one line. Non-empty input is added to history.
func (e *lineEditor) Read(prompt string) (string, error) {
	input, err := e.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		e.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history (owner-only) and restores the terminal.
func (e *lineEditor) Close() {
	var buf bytes.Buffer
	if _, err := e.line.WriteHistory(&buf); err == nil {
		util.AtomicWriteFileWithDir(e.historyFile, buf.Bytes(), 0600, 0700)
	}
	e.line.Close()
}

// =============================================================================
// CHAT STATE
// =============================================================================

// chatState is one interactive session. Slash commands operate on it.
type chatState struct {
	svc    *session.Service
	id     string
	out    io.Writer
	errOut io.Writer
	render bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// setCancel records the cancel func of the running generation.
func (c *chatState) setCancel(cancel context.CancelFunc) {
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
}

// interrupt cancels the running generation, if any.
func (c *chatState) interrupt() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel()
	c.cancel = nil
	return true
}

func (c *chatState) current() (*model.ChatSession, error) {
	return c.svc.Get(c.id)
}

// send generates a reply to text.
func (c *chatState) send(ctx context.Context, text string) error {
	return c.generate(ctx, func(ctx context.Context, onUpdate func(string)) (model.GenerationResult, error) {
		return c.svc.Send(ctx, c.id, text, onUpdate)
	})
}

func (c *chatState) regenerate(ctx context.Context) error {
	return c.generate(ctx, func(ctx context.Context, onUpdate func(string)) (model.GenerationResult, error) {
		return c.svc.Regenerate(ctx, c.id, onUpdate)
	})
}

func (c *chatState) generate(parent context.Context, fn func(context.Context, func(string)) (model.GenerationResult, error)) error {
	sess, err := c.current()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	c.setCancel(cancel)
	defer func() {
		c.setCancel(nil)
		cancel()
	}()

	printer := newStreamPrinter(c.out)
	res, err := fn(ctx, printer.Update)
	printer.Finish()
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return err
	}
	if !printer.Printed() && res.Text == "" {
		fmt.Fprintln(c.errOut, DimStyle.Render("(empty reply)"))
	}
	if notice := fallbackNotice(sess.Config, res); notice != "" {
		fmt.Fprintln(c.errOut, WarningStyle.Render(notice))
	}
	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// slashHelp lists the REPL commands.
const slashHelp = `Commands:
  /regenerate          Rewrite the last reply
  /variant pro|flash|lite
  /think on|off        Deep thinking (PRO and FLASH)
  /budget N            Thinking budget in tokens
  /search on|off       Google Search grounding (PRO and FLASH)
  /autoswitch on|off   Fall back to lighter models on quota errors
  /settings            Show the session's generation settings
  /title [NAME]        Show or set the story title
  /history             Print the transcript so far
  /export [md|json] [DIR]
  /new                 Start a new session
  /help                Show this help
  /quit                Leave (also: exit, quit, Ctrl+D)`

// handleCommand runs a slash command. errQuit ends the session.
func (c *chatState) handleCommand(ctx context.Context, input string) error {
	fields := strings.Fields(input)
	name := strings.ToLower(fields[0])
	args := fields[1:]

	switch name {
	case "/help", "/h", "/?":
		fmt.Fprintln(c.out, slashHelp)
		return nil

	case "/quit", "/exit", "/q":
		return errQuit

	case "/regenerate", "/regen", "/r":
		return c.regenerate(ctx)

	case "/variant", "/model":
		if len(args) != 1 {
			return errors.New("usage: /variant pro|flash|lite")
		}
		v, err := model.ParseVariant(args[0])
		if err != nil {
			return err
		}
		return c.updateConfig(func(cfg *model.ModelConfig) { cfg.Variant = v })

	case "/think":
		on, err := parseToggle(name, args)
		if err != nil {
			return err
		}
		return c.updateConfig(func(cfg *model.ModelConfig) { cfg.DeepThinking = on })

	case "/search":
		on, err := parseToggle(name, args)
		if err != nil {
			return err
		}
		return c.updateConfig(func(cfg *model.ModelConfig) { cfg.EnableSearch = on })

	case "/autoswitch":
		on, err := parseToggle(name, args)
		if err != nil {
			return err
		}
		return c.updateConfig(func(cfg *model.ModelConfig) { cfg.AutoSwitch = on })

	case "/budget":
		if len(args) != 1 {
			return errors.New("usage: /budget N")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < model.MinThinkingBudget || n > model.MaxThinkingBudget {
			return fmt.Errorf("budget must be a number between %d and %d", model.MinThinkingBudget, model.MaxThinkingBudget)
		}
		return c.updateConfig(func(cfg *model.ModelConfig) { cfg.ThinkingBudget = model.ClampThinkingBudget(n) })

	case "/settings", "/config":
		sess, err := c.current()
		if err != nil {
			return err
		}
		printSettings(c.out, sess.Config)
		return nil

	case "/title", "/rename":
		if len(args) == 0 {
			sess, err := c.current()
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, TitleStyle.Render(sess.Title))
			return nil
		}
		sess, err := c.svc.Rename(c.id, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, SuccessStyle.Render("Renamed to "+sess.Title))
		return nil

	case "/history", "/transcript":
		sess, err := c.current()
		if err != nil {
			return err
		}
		return printTranscript(c.out, sess, c.render)

	case "/export":
		return c.export(args)

	case "/new":
		sess, err := c.current()
		if err != nil {
			return err
		}
		next, err := c.svc.Create(&sess.Config)
		if err != nil {
			return err
		}
		c.id = next.ID
		fmt.Fprintln(c.out, SuccessStyle.Render("Started a new story"))
		return nil
	}
	return fmt.Errorf("unknown command %s (try /help)", fields[0])
}

func (c *chatState) updateConfig(fn func(*model.ModelConfig)) error {
	sess, err := c.current()
	if err != nil {
		return err
	}
	cfg := sess.Config
	fn(&cfg)
	sess, err = c.svc.UpdateConfig(c.id, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, DimStyle.Render("Settings: "+describeConfig(sess.Config)))
	return nil
}

func (c *chatState) export(args []string) error {
	format, dir := "", "."
	if len(args) > 0 {
		format = args[0]
	}
	if len(args) > 1 {
		dir = args[1]
	}
	exp, err := export.ForFormat(format)
	if err != nil {
		return err
	}
	sess, err := c.current()
	if err != nil {
		return err
	}
	opts := export.DefaultOptions()
	opts.OutputDir = dir
	path, err := export.ToFile(sess, exp, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, SuccessStyle.Render("Exported to "+path))
	return nil
}

// parseToggle accepts on/off style arguments.
func parseToggle(name string, args []string) (bool, error) {
	if len(args) == 1 {
		switch strings.ToLower(args[0]) {
		case "on", "true", "yes", "1":
			return true, nil
		case "off", "false", "no", "0":
			return false, nil
		}
	}
	return false, fmt.Errorf("usage: %s on|off", name)
}

func printSettings(w io.Writer, cfg model.ModelConfig) {
	onOff := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}
	fmt.Fprintln(w, RenderLabel("Model")+" "+ValueStyle.Render(cfg.Variant.DisplayName()))
	fmt.Fprintln(w, RenderLabel("Auto-switch")+" "+ValueStyle.Render(onOff(cfg.AutoSwitch)))
	fmt.Fprintln(w, RenderLabel("Deep thinking")+" "+ValueStyle.Render(onOff(cfg.DeepThinking)))
	fmt.Fprintln(w, RenderLabel("Budget")+" "+ValueStyle.Render(strconv.Itoa(cfg.ThinkingBudget)))
	fmt.Fprintln(w, RenderLabel("Search")+" "+ValueStyle.Render(onOff(cfg.EnableSearch)))
	if cfg.DeepThinking && !cfg.Variant.SupportsThinking() {
		fmt.Fprintln(w, DimStyle.Render(cfg.Variant.String()+" ignores deep thinking"))
	}
	if cfg.EnableSearch && !cfg.Variant.SupportsSearch() {
		fmt.Fprintln(w, DimStyle.Render(cfg.Variant.String()+" ignores search"))
	}
}

// printTranscript writes the session as its Markdown export.
func printTranscript(w io.Writer, sess *model.ChatSession, render bool) error {
	data, err := export.NewMarkdownExporter(nil).Export(sess)
	if err != nil {
		return err
	}
	displayMarkdown(w, string(data), render)
	return nil
}

// =============================================================================
// CHAT COMMAND
// =============================================================================

// ChatFlags configure the chat command.
type ChatFlags struct {
	Model     ModelFlags
	SessionID string
	Raw       bool
}

// BindFlags registers the flags on fs.
func (f *ChatFlags) BindFlags(fs *pflag.FlagSet) {
	f.Model.BindFlags(fs)
	fs.StringVarP(&f.SessionID, "session", "s", "", "Resume an existing session")
	fs.BoolVar(&f.Raw, "raw", false, "Never render markdown")
}

// NewChatCommand creates the chat command.
func NewChatCommand(env *Env) *cobra.Command {
	f := &ChatFlags{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Write a story interactively",
		Long: `Start an interactive story session. Replies stream as they are written.
Ctrl+C stops the reply in progress; Ctrl+C at the prompt or Ctrl+D leaves.
Type /help for commands.`,
		Example: `  inkweaver chat
  inkweaver chat --variant flash --deep-thinking --budget 4096
  inkweaver chat --session 3f2c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.Model.Validate(); err != nil {
				return err
			}
			if err := RequiresTTY("chat"); err != nil {
				return fmt.Errorf("%w (use 'inkweaver ask' for scripted use)", err)
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

			state := &chatState{
				svc:    app.Sessions,
				id:     sess.ID,
				out:    cmd.OutOrStdout(),
				errOut: cmd.ErrOrStderr(),
				render: !f.Raw && IsStdoutTTY(),
			}
			return runREPL(cmd.Context(), state, sess)
		},
	}
	f.BindFlags(cmd.Flags())
	return cmd
}

func printWelcome(w io.Writer, sess *model.ChatSession) {
	fmt.Fprintln(w, TitleStyle.Render("InkWeaver"))
	if len(sess.Messages) > 0 {
		fmt.Fprintf(w, "%s %s\n", DimStyle.Render("Resuming"), ValueStyle.Render(fmt.Sprintf("%q (%d messages)", sess.Title, len(sess.Messages))))
	}
	fmt.Fprintln(w, DimStyle.Render(describeConfig(sess.Config)+"  |  /help for commands"))
	fmt.Fprintln(w, RenderSeparator())
}

func runREPL(ctx context.Context, state *chatState, sess *model.ChatSession) error {
	printWelcome(state.out, sess)

	editor := newLineEditor()
	defer editor.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			if state.interrupt() {
				fmt.Fprintln(state.errOut, "\n"+WarningStyle.Render("[Cancelled]"))
			}
		}
	}()

	for {
		input, err := editor.Read(PromptStyle.Render("story> "))
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D, or a closed stdin.
			fmt.Fprintln(state.out)
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			return nil
		}

		if strings.HasPrefix(input, "/") {
			err = state.handleCommand(ctx, input)
		} else {
			err = state.send(ctx, input)
		}
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(state.errOut, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		}
	}
}
