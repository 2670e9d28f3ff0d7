// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// DESCRIPTOR
// =============================================================================

// Backend names understood by the engine router.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

// Recipe tells a backend how to bring a model up. The lifecycle manager
// never looks inside it.
type Recipe struct {
	// Backend selects the engine ("ollama" or "openai").
	Backend string `toml:"backend" json:"backend"`

	// Model is the backend-side model name (Ollama tag or OpenAI model id).
	Model string `toml:"model" json:"model"`

	// BaseURL overrides the backend's configured endpoint for this model.
	BaseURL string `toml:"base_url,omitempty" json:"base_url,omitempty"`

	// Pull downloads missing weights before loading (Ollama only).
	Pull bool `toml:"pull" json:"pull"`

	// KeepAlive is how long the server keeps the model resident after use.
	KeepAlive time.Duration `toml:"keep_alive,omitempty" json:"keep_alive,omitempty"`

	// ContextSize is the context window requested at load time (0 = server default).
	ContextSize int `toml:"context_size,omitempty" json:"context_size,omitempty"`

	// SizeBytes is the approximate download size, used by MaxSize filters.
	SizeBytes int64 `toml:"size_bytes,omitempty" json:"size_bytes,omitempty"`

	// Tags are free-form search labels.
	Tags []string `toml:"tags,omitempty" json:"tags,omitempty"`
}

// Descriptor is one selectable model. Identity is ID.
type Descriptor struct {
	ID     string `toml:"id" json:"id"`
	Name   string `toml:"name" json:"name"`
	Recipe Recipe `toml:"recipe" json:"recipe"`
}

// DisplayName returns Name, falling back to ID.
func (d Descriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// =============================================================================
// CATALOG
// =============================================================================

// ErrDuplicateID is returned by New when two descriptors share an ID.
var ErrDuplicateID = errors.New("duplicate model id")

// Catalog is an ordered, immutable set of descriptors.
type Catalog struct {
	order []Descriptor
	byID  map[string]int
}

// New builds a catalog preserving the given order.
func New(descs ...Descriptor) (*Catalog, error) {
	c := &Catalog{
		order: make([]Descriptor, 0, len(descs)),
		byID:  make(map[string]int, len(descs)),
	}
	for _, d := range descs {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			return nil, fmt.Errorf("catalog entry %q: empty id", d.Name)
		}
		if _, dup := c.byID[id]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		d.ID = id
		d.Recipe.Tags = append([]string(nil), d.Recipe.Tags...)
		c.byID[id] = len(c.order)
		c.order = append(c.order, d)
	}
	return c, nil
}

// Merge returns the built-in list with extra entries appended; an extra entry
// whose ID matches a built-in replaces it in place.
func Merge(base, extra []Descriptor) []Descriptor {
	out := append([]Descriptor(nil), base...)
	index := make(map[string]int, len(out))
	for i, d := range out {
		index[d.ID] = i
	}
	for _, d := range extra {
		if i, ok := index[d.ID]; ok {
			out[i] = d
			continue
		}
		index[d.ID] = len(out)
		out = append(out, d)
	}
	return out
}

// Lookup returns the descriptor for id.
func (c *Catalog) Lookup(id string) (Descriptor, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Descriptor{}, false
	}
	return c.order[i], true
}

// Has reports whether id is selectable.
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// All returns a copy of the descriptors in catalog order.
func (c *Catalog) All() []Descriptor {
	return append([]Descriptor(nil), c.order...)
}

// IDs returns the ids in catalog order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.order))
	for i, d := range c.order {
		ids[i] = d.ID
	}
	return ids
}

// Len returns the number of descriptors.
func (c *Catalog) Len() int {
	return len(c.order)
}

// Filter returns a new catalog holding only descriptors for which keep is true.
func (c *Catalog) Filter(keep func(Descriptor) bool) *Catalog {
	out := &Catalog{byID: make(map[string]int)}
	for _, d := range c.order {
		if keep(d) {
			out.byID[d.ID] = len(out.order)
			out.order = append(out.order, d)
		}
	}
	return out
}

// =============================================================================
// FILTERS
// =============================================================================

// ByBackend keeps descriptors served by one of the named backends.
// With no names every descriptor is kept.
func ByBackend(names ...string) func(Descriptor) bool {
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[strings.ToLower(n)] = true
	}
	return func(d Descriptor) bool {
		return len(allowed) == 0 || allowed[strings.ToLower(d.Recipe.Backend)]
	}
}

// MaxSize keeps descriptors whose known size does not exceed limit.
// Unknown sizes (0) and a non-positive limit always pass.
func MaxSize(limit int64) func(Descriptor) bool {
	return func(d Descriptor) bool {
		return limit <= 0 || d.Recipe.SizeBytes <= limit
	}
}

// Installed keeps non-pullable Ollama descriptors only when their tag is in
// the installed set. Pullable descriptors and other backends always pass.
func Installed(installed map[string]bool) func(Descriptor) bool {
	return func(d Descriptor) bool {
		if !strings.EqualFold(d.Recipe.Backend, BackendOllama) || d.Recipe.Pull {
			return true
		}
		return installed[d.Recipe.Model]
	}
}

// AllOf combines filters with logical AND.
func AllOf(filters ...func(Descriptor) bool) func(Descriptor) bool {
	return func(d Descriptor) bool {
		for _, f := range filters {
			if !f(d) {
				return false
			}
		}
		return true
	}
}
