// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generationTOML(prompt string, temperature float64) string {
	return fmt.Sprintf("[generation]\nsystem_prompt = %q\ntemperature = %.2f\n", prompt, temperature)
}

func startWatch(t *testing.T, path string) <-chan *Config {
	t.Helper()
	reloads := make(chan *Config, 8)
	w, err := Watch(path, func(cfg *Config) { reloads <- cfg }, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return reloads
}

func nextReload(t *testing.T, reloads <-chan *Config) *Config {
	t.Helper()
	select {
	case cfg := <-reloads:
		return cfg
	case <-time.After(3 * time.Second):
		t.Fatal("no reload")
		return nil
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.toml", generationTOML("one", 0.5))
	reloads := startWatch(t, path)

	require.NoError(t, os.WriteFile(path, []byte(generationTOML("two", 0.25)), 0600))

	cfg := nextReload(t, reloads)
	assert.Equal(t, "two", cfg.Generation.SystemPrompt)
	assert.Equal(t, 0.25, cfg.Generation.Temperature)
}

func TestWatch_SeesAtomicReplace(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.toml", generationTOML("one", 0.5))
	reloads := startWatch(t, path)

	cfg := Default()
	cfg.Generation.SystemPrompt = "saved"
	require.NoError(t, SaveTOML(cfg, path))

	assert.Equal(t, "saved", nextReload(t, reloads).Generation.SystemPrompt)
}

func TestWatch_SkipsInvalidAndUnrelatedFiles(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.toml", generationTOML("one", 0.5))
	reloads := startWatch(t, path)

	sibling := filepath.Join(filepath.Dir(path), "notes.toml")
	require.NoError(t, os.WriteFile(sibling, []byte(generationTOML("sibling", 0.1)), 0600))
	require.NoError(t, os.WriteFile(path, []byte(generationTOML("too hot", 9)), 0600))
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(generationTOML("fixed", 0.3)), 0600))

	cfg := nextReload(t, reloads)
	assert.Equal(t, "fixed", cfg.Generation.SystemPrompt)
	assert.Equal(t, 0.3, cfg.Generation.Temperature)
}

func TestWatcher_CloseStopsReloads(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.toml", generationTOML("one", 0.5))
	reloads := make(chan *Config, 8)
	w, err := Watch(path, func(cfg *Config) { reloads <- cfg }, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)

	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	assert.Equal(t, abs, w.Path())

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	require.NoError(t, os.WriteFile(path, []byte(generationTOML("two", 0.25)), 0600))
	select {
	case <-reloads:
		t.Fatal("reload after Close")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	_, err := Watch(filepath.Join(t.TempDir(), "absent", "config.toml"), nil)
	require.Error(t, err)
}
