// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/catalog"
	"github.com/jeranaias/rigchat/internal/engine"
	"github.com/jeranaias/rigchat/internal/engine/enginetest"
)

func TestRouter_Dispatch(t *testing.T) {
	local := enginetest.New()
	remote := enginetest.New()
	r := NewRouter().
		Register(catalog.BackendOllama, local).
		Register("OpenAI", remote)

	assert.Equal(t, []string{"ollama", "openai"}, r.Backends())
	assert.True(t, r.Has("OLLAMA"))

	d := catalog.Descriptor{ID: "x", Recipe: catalog.Recipe{Backend: "openai", Model: "x"}}
	h, err := r.CreateModel(context.Background(), d, nil)
	require.NoError(t, err)
	assert.Equal(t, "x", h.ModelID())
	assert.Equal(t, 1, remote.Calls("x"))
	assert.Zero(t, local.Calls("x"))
}

func TestRouter_UnknownBackend(t *testing.T) {
	r := NewRouter()
	d := catalog.Descriptor{ID: "x", Recipe: catalog.Recipe{Backend: "tpu"}}
	_, err := r.CreateModel(context.Background(), d, nil)
	assert.ErrorIs(t, err, engine.ErrUnknownBackend)
	assert.Contains(t, err.Error(), `"tpu"`)
}
