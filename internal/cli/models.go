// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/catalog"
	"github.com/jeranaias/rigchat/internal/util"
)

type modelsFlags struct {
	json      bool
	installed bool
	timeout   time.Duration
}

// modelRow is the JSON shape of one catalog entry.
type modelRow struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Backend   string `json:"backend"`
	Model     string `json:"model"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Pull      bool   `json:"pull"`
	Installed *bool  `json:"installed,omitempty"`
}

func newModelsCmd(opts *Options) *cobra.Command {
	var flags modelsFlags
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List selectable models",
		Long: `List the models in the catalog (built-in entries merged with config).

Ollama entries are checked against the local server; when it cannot be
reached the installed column is left blank.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModels(cmd, opts, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.json, "json", false, "print JSON")
	cmd.Flags().BoolVar(&flags.installed, "installed", false, "hide Ollama models that are neither installed nor pullable")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 3*time.Second, "how long to wait for the Ollama server")
	return cmd
}

func runModels(cmd *cobra.Command, opts *Options, flags modelsFlags) error {
	env, err := opts.openApp(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
	defer cancel()
	tags, tagErr := env.app.InstalledTags(ctx)

	descs := env.app.Descriptors()
	if flags.installed && tagErr == nil {
		descs = env.app.Catalog.Filter(catalog.Installed(tags)).All()
	}

	rows := make([]modelRow, 0, len(descs))
	for _, d := range descs {
		row := modelRow{
			ID:        d.ID,
			Name:      d.DisplayName(),
			Backend:   d.Recipe.Backend,
			Model:     d.Recipe.Model,
			SizeBytes: d.Recipe.SizeBytes,
			Pull:      d.Recipe.Pull,
		}
		if tagErr == nil && strings.EqualFold(d.Recipe.Backend, catalog.BackendOllama) {
			installed := tags[d.Recipe.Model]
			row.Installed = &installed
		}
		rows = append(rows, row)
	}

	out := cmd.OutOrStdout()
	if flags.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if tagErr != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), warningStyle.Render("ollama unreachable:"), tagErr)
	}
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%s %s %s %s",
		util.PadRight("ID", 20), util.PadRight("NAME", 24), util.PadRight("BACKEND", 8), "SIZE")))
	for _, r := range rows {
		line := fmt.Sprintf("%s %s %s %s",
			util.PadRight(util.Truncate(r.ID, 20), 20),
			util.PadRight(util.Truncate(r.Name, 24), 24),
			util.PadRight(r.Backend, 8),
			formatSize(r.SizeBytes))
		switch {
		case r.Installed != nil && *r.Installed:
			line += " " + successStyle.Render("installed")
		case r.Pull:
			line += " " + dimStyle.Render("pull")
		}
		if r.ID == env.cfg.DefaultModel {
			line += " " + dimStyle.Render("(default)")
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

// formatSize renders bytes as "4.7GB"; zero is "-".
func formatSize(n int64) string {
	const gb = 1 << 30
	const mb = 1 << 20
	switch {
	case n <= 0:
		return "-"
	case n >= gb:
		return fmt.Sprintf("%.1fGB", float64(n)/gb)
	default:
		return fmt.Sprintf("%dMB", n/mb)
	}
}
