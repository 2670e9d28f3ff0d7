// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/app"
	"github.com/jeranaias/rigchat/internal/config"
)

// Version information (set at build time via -ldflags).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Options holds persistent flag values.
type Options struct {
	ConfigPath  string
	Model       string
	System      string
	LogFile     string
	MetricsAddr string

	// set by tests
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	appOpts []app.Option
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&Options{})
}

func newRootCmd(opts *Options) *cobra.Command {
	root := &cobra.Command{
		Use:   "rigchat",
		Short: "Chat with local language models",
		Long: `rigchat swaps between local model backends (Ollama and OpenAI-compatible
servers), keeps a system prompt, and streams replies token by token.

Examples:
  rigchat                          # TUI on a terminal, REPL when piped
  rigchat chat --model llama3.2-3b # line-mode chat
  rigchat models                   # list selectable models
  rigchat config init              # write ~/.rigchat/config.toml`,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		SilenceUsage:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if IsStdoutTTY() && IsTTY() {
				return runTUI(cmd, opts)
			}
			return runChat(cmd, opts)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default ~/.rigchat/config.toml)")
	pf.StringVarP(&opts.Model, "model", "m", "", "catalog id to load at startup")
	pf.StringVarP(&opts.System, "system", "s", "", "system prompt for this run")
	pf.StringVar(&opts.LogFile, "log-file", "", `event log path ("-" for stderr)`)
	pf.StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	if opts.stdin != nil {
		root.SetIn(opts.stdin)
	}
	if opts.stdout != nil {
		root.SetOut(opts.stdout)
	}
	if opts.stderr != nil {
		root.SetErr(opts.stderr)
	}

	root.AddCommand(
		newTUICmd(opts),
		newChatCmd(opts),
		newModelsCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies flag overrides on top of
// the environment.
func (o *Options) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.ConfigPath != "" {
		cfg, err = config.LoadFromPath(o.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	o.applyFlags(cfg)
	return cfg, nil
}

// applyFlags writes command-line overrides over cfg.
func (o *Options) applyFlags(cfg *config.Config) {
	if o.Model != "" {
		cfg.DefaultModel = o.Model
	}
	if o.System != "" {
		cfg.Generation.SystemPrompt = o.System
	}
	if o.LogFile != "" {
		cfg.Log.File = o.LogFile
	}
	if o.MetricsAddr != "" {
		cfg.Metrics.Addr = o.MetricsAddr
	}
}

// configSource is the file interactive sessions watch for edits.
func (o *Options) configSource() string {
	if o.ConfigPath != "" {
		return o.ConfigPath
	}
	return config.SourcePath()
}

// watchConfig starts live reload of the generation settings. Failing to
// watch only costs the live reload.
func (o *Options) watchConfig(cmd *cobra.Command, env *sessionEnv) {
	path := o.configSource()
	if path == "" {
		return
	}
	if err := env.app.WatchConfig(path, o.applyFlags); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), warningStyle.Render("config reload disabled:"), err)
	}
}

// sessionEnv bundles what interactive commands need.
type sessionEnv struct {
	cfg *config.Config
	app *app.App
	log io.Closer
}

func (s *sessionEnv) Close() error {
	err := s.app.Close()
	if s.log != nil {
		s.log.Close()
	}
	return err
}

// openApp loads configuration, opens the event log and builds the App.
func (o *Options) openApp(cmd *cobra.Command) (*sessionEnv, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, closer, err := openLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	a, err := app.New(cfg, append([]app.Option{app.WithLogger(logger)}, o.appOpts...)...)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}
	if addr, err := a.ServeMetrics(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), warningStyle.Render("metrics disabled:"), err)
	} else if addr != "" {
		logger.Printf("METRICS_ADDR | addr=%s", addr)
	}
	return &sessionEnv{cfg: cfg, app: a, log: closer}, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rigchat %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
		},
	}
}
