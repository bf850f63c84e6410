package postfx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func newTestTexture(dev *headless.Device, name string) *headless.Texture {
	t := dev.CreateTexture(metadata.TextureDescriptor{
		Name: name, Width: 64, Height: 64, MipLevels: 1,
		Format:    metadata.FormatRGBA8Unorm,
		BindFlags: metadata.BindShaderResource,
	})
	return t.(*headless.Texture)
}

func TestRegistryInsertReleasesPriorOccupant(t *testing.T) {
	dev := headless.New(nil)
	reg := NewResourceRegistry(4, 0)

	first := newTestTexture(dev, "first")
	reg.Insert(0, first)
	assert.Equal(t, 1, dev.LiveTextures())

	second := newTestTexture(dev, "second")
	reg.Insert(0, second)
	assert.Equal(t, 1, dev.LiveTextures(), "prior occupant must be released on re-insert")
	assert.Equal(t, second.ID(), reg.Texture(0).(*headless.Texture).ID())
}

func TestRegistryBorrowedNeverReleased(t *testing.T) {
	dev := headless.New(nil)
	reg := NewResourceRegistry(4, 2)

	tex := newTestTexture(dev, "input")
	reg.InsertBorrowed(0, tex.SRV())
	require.NotNil(t, reg.View(0))

	reg.ReleaseTransient()
	assert.Nil(t, reg.View(0), "transient slot must be forgotten")
	assert.Equal(t, 1, dev.LiveTextures(), "borrowed resources are never released")

	reg.InsertBorrowed(1, tex.SRV())
	reg.ReleaseAll()
	assert.Equal(t, 1, dev.LiveTextures())
}

func TestRegistryReleaseTransientKeepsOwnedSlots(t *testing.T) {
	dev := headless.New(nil)
	reg := NewResourceRegistry(4, 2)

	reg.InsertBorrowed(0, newTestTexture(dev, "transient").SRV())
	owned := newTestTexture(dev, "owned")
	reg.Insert(2, owned)

	reg.ReleaseTransient()
	assert.Nil(t, reg.Get(0))
	assert.NotNil(t, reg.Texture(2), "owned slots above the boundary survive")
}

func TestRegistryRemove(t *testing.T) {
	dev := headless.New(nil)
	reg := NewResourceRegistry(4, 0)

	reg.Insert(1, newTestTexture(dev, "victim"))
	assert.Equal(t, 1, dev.LiveTextures())

	reg.Remove(1)
	assert.Equal(t, 0, dev.LiveTextures())
	assert.Nil(t, reg.Texture(1))

	// Removing an empty slot is a no-op.
	reg.Remove(1)
}

func TestRegistryReleaseAll(t *testing.T) {
	dev := headless.New(nil)
	reg := NewResourceRegistry(8, 0)

	for i := ResourceID(0); i < 5; i++ {
		reg.Insert(i, newTestTexture(dev, "bulk"))
	}
	assert.Equal(t, 5, dev.LiveTextures())

	reg.ReleaseAll()
	assert.Equal(t, 0, dev.LiveTextures())
	for i := ResourceID(0); i < 5; i++ {
		assert.Nil(t, reg.Get(i))
	}
}

func TestRegistryEmptySlotAccessors(t *testing.T) {
	reg := NewResourceRegistry(2, 0)
	assert.Nil(t, reg.Get(0))
	assert.Nil(t, reg.Texture(0))
	assert.Nil(t, reg.Buffer(0))
	assert.Nil(t, reg.View(0))
}

func TestRegistryLabelsAreUnique(t *testing.T) {
	a := NewResourceRegistry(1, 0)
	b := NewResourceRegistry(1, 0)
	assert.NotEqual(t, a.Label(), b.Label())
}
