// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDescriptors() []Descriptor {
	return []Descriptor{
		{ID: "A", Name: "Model A", Recipe: Recipe{Backend: BackendOllama, Model: "a:1b", SizeBytes: 1_000}},
		{ID: "B", Recipe: Recipe{Backend: BackendOpenAI, Model: "b", SizeBytes: 5_000}},
		{ID: "C", Recipe: Recipe{Backend: BackendOllama, Model: "c:7b", Pull: true, SizeBytes: 9_000}},
	}
}

func TestNew_PreservesOrderAndLookup(t *testing.T) {
	cat, err := New(testDescriptors()...)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, cat.IDs())
	assert.Equal(t, 3, cat.Len())

	d, ok := cat.Lookup("B")
	require.True(t, ok)
	assert.Equal(t, "b", d.Recipe.Model)

	_, ok = cat.Lookup("missing")
	assert.False(t, ok)
	assert.False(t, cat.Has("missing"))
}

func TestNew_RejectsBadEntries(t *testing.T) {
	_, err := New(Descriptor{ID: "A"}, Descriptor{ID: "A"})
	assert.ErrorIs(t, err, ErrDuplicateID)

	_, err = New(Descriptor{ID: "  ", Name: "blank"})
	assert.Error(t, err)
}

func TestNew_TrimsIDs(t *testing.T) {
	cat, err := New(Descriptor{ID: " A "})
	require.NoError(t, err)
	assert.True(t, cat.Has("A"))
}

func TestCatalog_AllReturnsCopy(t *testing.T) {
	cat, err := New(testDescriptors()...)
	require.NoError(t, err)

	all := cat.All()
	all[0].ID = "mutated"

	d, ok := cat.Lookup("A")
	require.True(t, ok)
	assert.Equal(t, "A", d.ID)
}

func TestFilters(t *testing.T) {
	cat, err := New(testDescriptors()...)
	require.NoError(t, err)

	tests := []struct {
		name string
		keep func(Descriptor) bool
		want []string
	}{
		{"backend ollama", ByBackend("OLLAMA"), []string{"A", "C"}},
		{"no backends keeps all", ByBackend(), []string{"A", "B", "C"}},
		{"max size", MaxSize(5_000), []string{"A", "B"}},
		{"zero limit keeps all", MaxSize(0), []string{"A", "B", "C"}},
		{"installed or pullable", Installed(map[string]bool{"b": true}), []string{"B", "C"}},
		{"installed tag", Installed(map[string]bool{"a:1b": true}), []string{"A", "B", "C"}},
		{"combined", AllOf(ByBackend(BackendOllama), MaxSize(5_000)), []string{"A"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := cat.Filter(tc.keep)
			assert.Equal(t, tc.want, got.IDs())
			for _, id := range tc.want {
				assert.True(t, got.Has(id))
			}
		})
	}
}

func TestMerge_OverridesAndAppends(t *testing.T) {
	base := testDescriptors()
	extra := []Descriptor{
		{ID: "B", Name: "Replaced", Recipe: Recipe{Backend: BackendOpenAI, Model: "b2"}},
		{ID: "D", Recipe: Recipe{Backend: BackendOllama, Model: "d"}},
	}

	merged := Merge(base, extra)
	cat, err := New(merged...)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C", "D"}, cat.IDs())
	d, _ := cat.Lookup("B")
	assert.Equal(t, "Replaced", d.DisplayName())
	assert.Equal(t, "b", base[1].Recipe.Model, "base slice must not be modified")
}

func TestBuiltin_IsValid(t *testing.T) {
	cat, err := New(Builtin()...)
	require.NoError(t, err)
	require.NotZero(t, cat.Len())

	for _, d := range cat.All() {
		assert.NotEmpty(t, d.Recipe.Model, d.ID)
		assert.Contains(t, []string{BackendOllama, BackendOpenAI}, d.Recipe.Backend, d.ID)
	}
}

func TestDescriptor_DisplayName(t *testing.T) {
	assert.Equal(t, "x", Descriptor{ID: "x"}.DisplayName())
	assert.Equal(t, "Nice", Descriptor{ID: "x", Name: "Nice"}.DisplayName())
}
