// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/app"
	"github.com/jeranaias/rigchat/internal/catalog"
	"github.com/jeranaias/rigchat/internal/engine"
	"github.com/jeranaias/rigchat/internal/engine/enginetest"
)

var ansi = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func stripANSI(s string) string {
	return ansi.ReplaceAllString(s, "")
}

// isolate points HOME at a temp dir so nothing touches the real config.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	return home
}

// runCLI executes the command tree with the given input and arguments.
func runCLI(t *testing.T, stdin string, appOpts []app.Option, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	opts := &Options{
		stdin:   strings.NewReader(stdin),
		stdout:  &stdout,
		stderr:  &stderr,
		appOpts: appOpts,
	}
	root := newRootCmd(opts)
	root.SetArgs(args)
	err := root.Execute()
	return stripANSI(stdout.String()), stripANSI(stderr.String()), err
}

func scriptedApp(t *testing.T, eng *enginetest.Engine, ids ...string) []app.Option {
	t.Helper()
	descs := make([]catalog.Descriptor, len(ids))
	for i, id := range ids {
		descs[i] = catalog.Descriptor{ID: id, Name: "Model " + id, Recipe: catalog.Recipe{Backend: catalog.BackendOllama, Model: id}}
	}
	cat, err := catalog.New(descs...)
	require.NoError(t, err)
	return []app.Option{app.WithCatalog(cat), app.WithEngine(catalog.BackendOllama, eng)}
}

// =============================================================================
// VERSION / CONFIG
// =============================================================================

func TestVersionCommand(t *testing.T) {
	isolate(t)
	out, _, err := runCLI(t, "", nil, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "rigchat "+Version)
}

func TestConfigPath(t *testing.T) {
	home := isolate(t)

	out, _, err := runCLI(t, "", nil, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".rigchat", "config.toml"), strings.TrimSpace(out))

	out, _, err = runCLI(t, "", nil, "--config", "/tmp/x.json", "config", "path")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.json", strings.TrimSpace(out))
}

func TestConfigInit(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, ".rigchat", "config.toml")

	out, _, err := runCLI(t, "", nil, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	_, _, err = runCLI(t, "", nil, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, _, err = runCLI(t, "", nil, "config", "init", "--force")
	require.NoError(t, err)
}

func TestConfigShow_AppliesFlagsAndRedacts(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "rig.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[openai]
api_key = "sk-secret"
`), 0600))

	out, _, err := runCLI(t, "", nil, "--config", path, "--model", "qwen", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `default_model = "qwen"`)
	assert.Contains(t, out, "[REDACTED]")
	assert.NotContains(t, out, "sk-secret")
}

func TestConfigShow_InvalidFile(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "rig.toml")
	require.NoError(t, os.WriteFile(path, []byte("[generation]\ntemperature = 9.0\n"), 0600))

	_, _, err := runCLI(t, "", nil, "--config", path, "config", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

// =============================================================================
// MODELS
// =============================================================================

func TestModelsJSON_MarksInstalled(t *testing.T) {
	home := isolate(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"models":[{"name":"llama3.2:3b"}]}`))
	}))
	defer srv.Close()

	path := filepath.Join(home, "rig.toml")
	require.NoError(t, os.WriteFile(path, []byte("[ollama]\nurl = \""+srv.URL+"\"\n"), 0600))

	cat, err := catalog.New(
		catalog.Descriptor{ID: "small", Recipe: catalog.Recipe{Backend: catalog.BackendOllama, Model: "llama3.2:3b"}},
		catalog.Descriptor{ID: "big", Recipe: catalog.Recipe{Backend: catalog.BackendOllama, Model: "llama3.1:70b"}},
		catalog.Descriptor{ID: "remote", Recipe: catalog.Recipe{Backend: catalog.BackendOpenAI, Model: "gpt"}},
	)
	require.NoError(t, err)

	out, _, err := runCLI(t, "", []app.Option{app.WithCatalog(cat)},
		"--config", path, "--log-file", filepath.Join(home, "log"), "models", "--json")
	require.NoError(t, err)

	var rows []modelRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "small", rows[0].ID)
	require.NotNil(t, rows[0].Installed)
	assert.True(t, *rows[0].Installed)
	require.NotNil(t, rows[1].Installed)
	assert.False(t, *rows[1].Installed)
	assert.Nil(t, rows[2].Installed)

	out, _, err = runCLI(t, "", []app.Option{app.WithCatalog(cat)},
		"--config", path, "--log-file", filepath.Join(home, "log"), "models", "--json", "--installed")
	require.NoError(t, err)
	rows = nil
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "small", rows[0].ID)
	assert.Equal(t, "remote", rows[1].ID)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "-", formatSize(0))
	assert.Equal(t, "512MB", formatSize(512<<20))
	assert.Equal(t, "2.0GB", formatSize(2<<30))
}

// =============================================================================
// CHAT REPL
// =============================================================================

func TestChat_SelectSendAndQuit(t *testing.T) {
	home := isolate(t)
	eng := enginetest.New().Script("A", enginetest.Load{
		Progress: []engine.Progress{engine.NewProgress(0.5, "pulling")},
		Turns: []enginetest.Turn{
			enginetest.Text("Hi there!", "Hi", " there"),
		},
	})

	input := "/model A\nhello\n/quit\n"
	out, _, err := runCLI(t, input, scriptedApp(t, eng, "A"),
		"--log-file", filepath.Join(home, "log"), "chat")
	require.NoError(t, err)

	assert.Contains(t, out, "A ready")
	assert.Contains(t, out, "ai> Hi there!")
	assert.Contains(t, out, "chunks")
	assert.Equal(t, 1, eng.Calls("A"))
}

func TestChat_DefaultModelFromFlag(t *testing.T) {
	home := isolate(t)
	eng := enginetest.New()

	out, _, err := runCLI(t, "/model\n", scriptedApp(t, eng, "A"),
		"--log-file", filepath.Join(home, "log"), "--model", "A", "chat")
	require.NoError(t, err)
	assert.Equal(t, 1, eng.Calls("A"))
	assert.GreaterOrEqual(t, strings.Count(out, "A ready"), 2)
}

func TestChat_Rejections(t *testing.T) {
	home := isolate(t)
	eng := enginetest.New()

	input := "hello\n/model nope\n/bogus\n"
	out, _, err := runCLI(t, input, scriptedApp(t, eng, "A"),
		"--log-file", filepath.Join(home, "log"), "chat")
	require.NoError(t, err)

	assert.Contains(t, out, "no model ready")
	assert.Contains(t, out, "nope")
	assert.Contains(t, out, "unknown command /bogus")
}

func TestChat_FailedGenerationShowsMarker(t *testing.T) {
	home := isolate(t)
	eng := enginetest.New().Script("A", enginetest.Load{
		Turns: []enginetest.Turn{{SetupErr: assert.AnError}},
	})

	out, _, err := runCLI(t, "/model A\nhello\n", scriptedApp(t, eng, "A"),
		"--log-file", filepath.Join(home, "log"), "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "Error: ")
	assert.Contains(t, out, assert.AnError.Error())
}

func TestChat_SystemModelsAndCode(t *testing.T) {
	home := isolate(t)
	reply := "Here:\n```go\nfmt.Println(\"hi\")\n```\nDone."
	eng := enginetest.New().Script("A", enginetest.Load{
		Turns: []enginetest.Turn{enginetest.Text(reply, reply)},
	})

	input := strings.Join([]string{
		"/system be brief",
		"/system",
		"/models",
		"/code",
		"/model A",
		"show me",
		"/code",
		"/reset",
		"/code",
	}, "\n") + "\n"
	out, _, err := runCLI(t, input, scriptedApp(t, eng, "A", "B"),
		"--log-file", filepath.Join(home, "log"), "chat")
	require.NoError(t, err)

	assert.Contains(t, out, "system prompt updated")
	assert.Contains(t, out, "system: be brief")
	assert.Contains(t, out, "Model A")
	assert.Contains(t, out, "Model B")
	assert.Contains(t, out, "--- go")
	assert.Contains(t, out, `fmt.Println("hi")`)
	assert.Contains(t, out, "conversation cleared")
	assert.Equal(t, 2, strings.Count(out, "no reply yet"))

	handles := eng.Handles()
	require.Len(t, handles, 1)
	reqs := handles[0].Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "be brief", reqs[0].SystemPrompt)
}

// =============================================================================
// HIGHLIGHTING
// =============================================================================

func TestExtractCodeBlocks(t *testing.T) {
	text := "intro\n```python\nprint(1)\n```\nmiddle\n  ```\nplain\n  ```\n```sh\nunclosed"
	blocks := extractCodeBlocks(text)
	require.Len(t, blocks, 3)
	assert.Equal(t, codeBlock{Language: "python", Code: "print(1)"}, blocks[0])
	assert.Equal(t, codeBlock{Language: "", Code: "plain"}, blocks[1])
	assert.Equal(t, codeBlock{Language: "sh", Code: "unclosed"}, blocks[2])

	assert.Empty(t, extractCodeBlocks("no code here"))
}

func TestHighlightCode(t *testing.T) {
	b := codeBlock{Language: "go", Code: "package main\n\nfunc main() {}"}
	assert.Equal(t, b.Code, highlightCode(b, false))

	colored := highlightCode(b, true)
	assert.Contains(t, colored, "\x1b[")
	assert.Equal(t, b.Code, strings.TrimSpace(stripANSI(colored)))
	assert.Equal(t, "go", b.label())
}
