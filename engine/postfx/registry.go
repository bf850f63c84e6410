package postfx

import (
	"github.com/google/uuid"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
)

// ResourceID indexes a graphics object inside a ResourceRegistry. Each
// effect declares its own identifier space; identifiers below the registry's
// transient boundary reference borrowed per-frame inputs and are forgotten
// at the end of Execute.
type ResourceID uint32

// Resource is anything the registry can own. Device textures and buffers
// both satisfy it.
type Resource interface {
	Release()
}

// ResourceRegistry exclusively owns the graphics objects an effect works
// with, keyed by small dense identifiers. Inserting over an occupied slot
// releases the previous occupant first, so re-insertion is always safe.
// Out-of-range identifiers are contract violations, not errors.
type ResourceRegistry struct {
	label             string
	slots             []interface{}
	owned             []bool
	transientBoundary ResourceID
}

// NewResourceRegistry creates a registry with `capacity` identifier slots.
// Identifiers below transientBoundary hold borrowed per-frame inputs; the
// registry never releases those, it only forgets them.
func NewResourceRegistry(capacity uint32, transientBoundary ResourceID) *ResourceRegistry {
	core.AssertMsg(uint32(transientBoundary) <= capacity, "transient boundary %d exceeds capacity %d", transientBoundary, capacity)
	return &ResourceRegistry{
		label:             uuid.New().String(),
		slots:             make([]interface{}, capacity),
		owned:             make([]bool, capacity),
		transientBoundary: transientBoundary,
	}
}

// Label returns the registry's unique debug label, used to correlate logs.
func (r *ResourceRegistry) Label() string { return r.label }

func (r *ResourceRegistry) checkRange(id ResourceID) {
	core.AssertMsg(uint32(id) < uint32(len(r.slots)), "resource id %d out of range (capacity %d, registry %s)", id, len(r.slots), r.label)
}

func (r *ResourceRegistry) releaseSlot(id ResourceID) {
	if r.slots[id] != nil && r.owned[id] {
		r.slots[id].(Resource).Release()
	}
	r.slots[id] = nil
	r.owned[id] = false
}

// Insert installs an owned object at id, releasing any prior occupant.
func (r *ResourceRegistry) Insert(id ResourceID, res Resource) {
	r.checkRange(id)
	r.releaseSlot(id)
	r.slots[id] = res
	r.owned[id] = true
}

// InsertBorrowed installs a non-owning reference, typically a per-frame
// input view below the transient boundary. The registry never releases it.
func (r *ResourceRegistry) InsertBorrowed(id ResourceID, res interface{}) {
	r.checkRange(id)
	r.releaseSlot(id)
	r.slots[id] = res
	r.owned[id] = false
}

// Remove releases the owned object at id, if any, and empties the slot.
func (r *ResourceRegistry) Remove(id ResourceID) {
	r.checkRange(id)
	r.releaseSlot(id)
}

// Get returns the object at id, nil when the slot is empty. The reference is
// non-owning and must not be retained past the current frame for transient
// identifiers.
func (r *ResourceRegistry) Get(id ResourceID) interface{} {
	r.checkRange(id)
	return r.slots[id]
}

// Texture returns the texture at id. The slot must hold a texture.
func (r *ResourceRegistry) Texture(id ResourceID) renderer.Texture {
	r.checkRange(id)
	if r.slots[id] == nil {
		return nil
	}
	t, ok := r.slots[id].(renderer.Texture)
	core.AssertMsg(ok, "resource id %d is not a texture (registry %s)", id, r.label)
	return t
}

// Buffer returns the buffer at id. The slot must hold a buffer.
func (r *ResourceRegistry) Buffer(id ResourceID) renderer.Buffer {
	r.checkRange(id)
	if r.slots[id] == nil {
		return nil
	}
	b, ok := r.slots[id].(renderer.Buffer)
	core.AssertMsg(ok, "resource id %d is not a buffer (registry %s)", id, r.label)
	return b
}

// View returns the texture view at id, typically a transient input.
func (r *ResourceRegistry) View(id ResourceID) renderer.TextureView {
	r.checkRange(id)
	if r.slots[id] == nil {
		return nil
	}
	v, ok := r.slots[id].(renderer.TextureView)
	core.AssertMsg(ok, "resource id %d is not a texture view (registry %s)", id, r.label)
	return v
}

// ReleaseTransient forgets all identifiers below the transient boundary.
// Called at the end of every Execute.
func (r *ResourceRegistry) ReleaseTransient() {
	for id := ResourceID(0); id < r.transientBoundary; id++ {
		r.releaseSlot(id)
	}
}

// ReleaseAll releases every owned object and empties the registry. Used on
// resize and at shutdown.
func (r *ResourceRegistry) ReleaseAll() {
	for id := range r.slots {
		r.releaseSlot(ResourceID(id))
	}
}
