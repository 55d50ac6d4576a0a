// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jeranaias/inkweaver/internal/config"
	"github.com/jeranaias/inkweaver/internal/server"
)

// shutdownTimeout bounds how long in-flight streams get to finish.
const shutdownTimeout = 30 * time.Second

// ServeFlags configure the serve command.
type ServeFlags struct {
	Addr         string
	MaxBodyBytes int64
	Origins      []string
	NoWatch      bool
}

// BindFlags registers the flags on fs.
func (f *ServeFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.Addr, "addr", "", "Listen address (default from config, "+server.DefaultAddr+")")
	fs.Int64Var(&f.MaxBodyBytes, "max-body-bytes", 0, "Request body limit in bytes")
	fs.StringSliceVar(&f.Origins, "cors-origin", nil, "Allowed CORS origin (repeatable; default localhost dev servers)")
	fs.BoolVar(&f.NoWatch, "no-watch", false, "Do not reload the log level when the config file changes")
}

// Validate checks the flag values.
func (f *ServeFlags) Validate() error {
	if f.MaxBodyBytes < 0 {
		return fmt.Errorf("--max-body-bytes must not be negative")
	}
	return nil
}

// options builds server options from config with flags layered on top.
func (f *ServeFlags) options(cfg *config.Config, log *logrus.Logger) server.Options {
	opts := server.Options{
		Addr:         cfg.Server.Addr,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Logger:       log,
		Version:      Version,
	}
	if f.Addr != "" {
		opts.Addr = f.Addr
	}
	if f.MaxBodyBytes > 0 {
		opts.MaxBodyBytes = f.MaxBodyBytes
	}
	if len(f.Origins) > 0 {
		cors := server.DefaultCORSConfig()
		cors.AllowedOrigins = f.Origins
		opts.CORS = cors
	}
	return opts
}

// NewServeCommand creates the serve command.
func NewServeCommand(env *Env) *cobra.Command {
	f := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API. Replies to /messages, /regenerate and /api/characters
stream as server-sent events. SIGINT or SIGTERM shuts down gracefully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.Validate(); err != nil {
				return err
			}
			log := env.Log
			if log.IsLevelEnabled(logrus.DebugLevel) {
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}

			app, err := env.OpenApp(true)
			if err != nil {
				return err
			}
			defer app.Close()

			srv := server.New(app.Sessions, f.options(env.Config, log))

			if !f.NoWatch && env.ConfigPath != "" {
				if _, err := os.Stat(env.ConfigPath); err == nil {
					w, err := config.Watch(env.ConfigPath, func(c *config.Config) {
						applyLogLevel(log, c.Log.Level)
					}, log)
					if err != nil {
						log.WithError(err).Warn("config watch disabled")
					} else {
						defer w.Close()
					}
				}
			}

			done := make(chan os.Signal, 1)
			signal.Notify(done, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(done)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()
			fmt.Fprintln(cmd.ErrOrStderr(), SuccessStyle.Render("InkWeaver API listening on http://"+srv.Addr()))

			select {
			case err := <-errCh:
				return err
			case <-done:
			case <-cmd.Context().Done():
			}

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return <-errCh
		},
	}
	f.BindFlags(cmd.Flags())
	return cmd
}

// applyLogLevel switches a running logger to level, ignoring bad values.
func applyLogLevel(log *logrus.Logger, level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("ignoring invalid log level")
		return
	}
	if lvl != log.GetLevel() {
		log.SetLevel(lvl)
		log.WithField("level", lvl.String()).Info("log level changed")
	}
}
