// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend routes model creation to the engine serving a recipe's backend.
package backend

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jeranaias/rigchat/internal/catalog"
	"github.com/jeranaias/rigchat/internal/engine"
)

// Router is an engine.Engine that dispatches on Recipe.Backend.
type Router struct {
	engines map[string]engine.Engine
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{engines: make(map[string]engine.Engine)}
}

// Register serves backend name with e. Names are case-insensitive.
func (r *Router) Register(name string, e engine.Engine) *Router {
	r.engines[strings.ToLower(name)] = e
	return r
}

// Backends returns the registered names, sorted.
func (r *Router) Backends() []string {
	names := make([]string, 0, len(r.engines))
	for n := range r.engines {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is registered.
func (r *Router) Has(name string) bool {
	_, ok := r.engines[strings.ToLower(name)]
	return ok
}

// CreateModel implements engine.Engine.
func (r *Router) CreateModel(ctx context.Context, desc catalog.Descriptor, onProgress engine.ProgressFunc) (engine.Handle, error) {
	e, ok := r.engines[strings.ToLower(desc.Recipe.Backend)]
	if !ok {
		return nil, fmt.Errorf("%w %q for model %s", engine.ErrUnknownBackend, desc.Recipe.Backend, desc.ID)
	}
	return e.CreateModel(ctx, desc, onProgress)
}
