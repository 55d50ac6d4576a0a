// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jeranaias/inkweaver/internal/config"
	"github.com/jeranaias/inkweaver/internal/logging"
)

// Build information, set via -ldflags at release time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// GLOBAL FLAGS
// =============================================================================

// GlobalFlags are accepted by every command.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
	StorageDir string
}

// BindFlags registers the flags on fs.
func (f *GlobalFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.ConfigPath, "config", "", "Path to a config file (default ~/.inkweaver/config.toml)")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	fs.StringVar(&f.LogFormat, "log-format", "", "Log format: text or json")
	fs.StringVar(&f.StorageDir, "storage-dir", "", "Directory holding saved sessions")
}

// apply layers explicitly set flags over the loaded config.
func (f *GlobalFlags) apply(cfg *config.Config) {
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFormat != "" {
		cfg.Log.Format = f.LogFormat
	}
	if f.StorageDir != "" {
		cfg.Storage.Dir = f.StorageDir
	}
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

// Env carries what the root command resolves before any subcommand runs.
type Env struct {
	Flags      GlobalFlags
	Config     *config.Config
	ConfigPath string
	Log        *logrus.Logger

	// NewGenerator builds the generation backend. Tests replace it.
	NewGenerator GeneratorFactory
}

// NewEnv returns an Env wired to the Gemini backend.
func NewEnv() *Env {
	return &Env{NewGenerator: GeminiGenerator}
}

// load resolves config and logger. A config file that fails to parse is
// reported and the defaults are used instead.
func (e *Env) load(stderr io.Writer) error {
	var (
		cfg *config.Config
		err error
	)
	if e.Flags.ConfigPath != "" {
		cfg, err = config.LoadFromPath(e.Flags.ConfigPath)
		if err != nil {
			return err
		}
		e.ConfigPath = e.Flags.ConfigPath
	} else {
		cfg, err = config.Load()
		if cfg == nil {
			return err
		}
		if err != nil {
			fmt.Fprintln(stderr, WarningStyle.Render(fmt.Sprintf("Warning: %v (using defaults)", err)))
		}
		if path, perr := config.ConfigPathTOML(); perr == nil {
			e.ConfigPath = path
		}
	}

	e.Flags.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: stderr,
	})
	if err != nil {
		return err
	}

	e.Config = cfg
	e.Log = log
	config.SetGlobal(cfg)
	return nil
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

// NewRootCommand creates the inkweaver command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(NewEnv())
}

func newRootCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inkweaver",
		Short: "A creative writing partner backed by Gemini",
		Long: `InkWeaver is a creative writing partner. Stories are kept as sessions;
replies stream as they are written and fall back to lighter models when
quota runs out.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return env.load(cmd.ErrOrStderr())
		},
	}
	env.Flags.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		NewChatCommand(env),
		NewAskCommand(env),
		NewSessionsCommand(env),
		NewCharacterCommand(env),
		NewServeCommand(env),
		NewConfigCommand(env),
		NewVersionCommand(),
	)
	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+err.Error())
		return 1
	}
	return 0
}
