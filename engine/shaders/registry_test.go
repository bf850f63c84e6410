package shaders

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()

	src, ok := r.Lookup("fullscreen_triangle_vs.hlsl")
	require.True(t, ok)
	assert.Contains(t, src, "main")

	_, ok = r.Lookup("does_not_exist.hlsl")
	assert.False(t, ok)
}

func TestRegistryNamesCoverEmbeddedTable(t *testing.T) {
	r := NewRegistry()
	names := r.Names()
	assert.NotEmpty(t, names)
	for _, n := range names {
		assert.True(t, strings.HasSuffix(n, ".hlsl"), "unexpected entry %q", n)
		_, ok := r.Lookup(n)
		assert.True(t, ok, "name %q must resolve", n)
	}
}

func TestRegistryOverrideBumpsGeneration(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, uint64(0), r.Generation())

	r.setOverride("fullscreen_triangle_vs.hlsl", "// edited")
	assert.Equal(t, uint64(1), r.Generation())

	src, ok := r.Lookup("fullscreen_triangle_vs.hlsl")
	require.True(t, ok)
	assert.Equal(t, "// edited", src)

	r.clearOverride("fullscreen_triangle_vs.hlsl")
	assert.Equal(t, uint64(2), r.Generation())

	src, ok = r.Lookup("fullscreen_triangle_vs.hlsl")
	require.True(t, ok)
	assert.NotEqual(t, "// edited", src, "clearing must restore the embedded source")
}

func TestRegistryClearWithoutOverrideIsNoOp(t *testing.T) {
	r := NewRegistry()
	r.clearOverride("fullscreen_triangle_vs.hlsl")
	assert.Equal(t, uint64(0), r.Generation())
}

func TestRegistryIsEmbedded(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.isEmbedded("taa_resolve_cs.hlsl"))
	assert.False(t, r.isEmbedded("rogue.hlsl"))
}
