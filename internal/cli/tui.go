// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/ui/chat"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

func newTUICmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Start the full-screen chat interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts)
		},
	}
}

func runTUI(cmd *cobra.Command, opts *Options) error {
	env, err := opts.openApp(cmd)
	if err != nil {
		return err
	}
	defer env.Close()
	opts.watchConfig(cmd, env)

	notifier := chat.NewNotifier()
	env.app.OnChange(notifier.Notify)

	if id := env.cfg.DefaultModel; id != "" {
		if err := env.app.Select(id); err != nil {
			return fmt.Errorf("default model: %w", err)
		}
	}

	m := chat.New(env.app, notifier, styles.NewTheme())
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
