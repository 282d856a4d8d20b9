// Package atlas owns the GPU-resident texture atlas and the
// fixed-capacity instance buffer driving the instanced quad draw call.
// It wraps engine/slotalloc for slot bookkeeping and a Backend for the
// GPU side, adapted from engine/renderer/wgpu_renderer_backend.go's
// InitTextureView (layered WriteTexture upload) and
// engine/renderer/animator/simple_animator_backend.go's dense,
// dirty-tracked instance buffer.
package atlas

import (
	"sync"

	"github.com/Carmen-Shannon/tilecanvas/common"
	"github.com/Carmen-Shannon/tilecanvas/engine/slotalloc"
)

// GPUInstance is the per-instance record the shader reads: a model
// matrix (translate . rotateZ . scale) plus the three atlas-sampling
// attributes from the draw contract (layer, uv_offset, uv_scale). Field
// order and padding mirror WGSL's std430-style storage layout: vec2
// members must start on an 8-byte boundary and the struct as a whole
// must be a multiple of its largest member's alignment (16, from the
// mat4x4).
type GPUInstance struct {
	Model    [16]float32 // offset 0, size 64
	Layer    float32     // offset 64
	_        float32     // offset 68: pads UVOffset to an 8-byte boundary
	UVOffset [2]float32  // offset 72
	UVScale  [2]float32  // offset 80
	_        [2]float32  // offset 88: pads the struct to 96 bytes (multiple of 16)
}

// Backend is the narrow GPU surface the atlas manager drives. A real
// implementation is backed by engine/renderer (wgpu); tests use a fake.
type Backend interface {
	// Ready reports whether the backing texture/device is realized yet.
	// Before the first frame, allocation still succeeds and uploads are
	// deferred to the next call to FlushPending.
	Ready() bool

	// UploadTile writes tileSize x tileSize RGBA8 pixels into layer at
	// pixel offset (pxX, pxY) of the atlas array texture.
	UploadTile(layer, pxX, pxY, tileSize int, pixels []byte) error

	// WriteInstances uploads the full instance buffer contents.
	WriteInstances(data []byte) error
}

// Manager is the atlas manager (C2). The frame coordinator mutates it
// from the engine tick goroutine (UploadTile, FreeTile, ClearInstances,
// AddInstanceWithZ, Update, FlushPending) while the render goroutine
// reads InstanceCount on every frame via Canvas.DrawCalls. mu guards every field below against
// that cross-goroutine access, following the RWMutex pattern
// engine/scene/scene.go uses for the same tick-writes/render-reads
// split over its own object graph.
type Manager struct {
	mu sync.RWMutex

	alloc     *slotalloc.Allocator
	backend   Backend
	tileSize  int
	gridSize  int
	atlasSize int

	instances []GPUInstance
	dirty     bool

	pending map[slotalloc.TileKey][]byte
}

// New creates a Manager for an atlas of layers layers, each
// atlasSize x atlasSize pixels, holding tileSize x tileSize tiles.
// backend may be nil until a GPU device is available; uploads queue in
// that case and FlushPending delivers them once backend is set.
func New(layers, atlasSize, tileSize int, backend Backend) *Manager {
	gridSize := atlasSize / tileSize
	return &Manager{
		alloc:     slotalloc.New(layers, gridSize),
		backend:   backend,
		tileSize:  tileSize,
		gridSize:  gridSize,
		atlasSize: atlasSize,
		pending:   make(map[slotalloc.TileKey][]byte),
	}
}

// SetBackend attaches (or replaces) the GPU backend, e.g. once the
// device/texture becomes available after the first frame.
func (m *Manager) SetBackend(backend Backend) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backend = backend
}

// UploadTile allocates a slot for tileKey (idempotent) and uploads
// bitmap's pixels into it. If the backend is not yet realized,
// allocation still succeeds and the upload is queued for FlushPending.
func (m *Manager) UploadTile(tileKey slotalloc.TileKey, bitmap []byte) (slotalloc.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, err := m.alloc.Allocate(tileKey)
	if err != nil {
		return slotalloc.Slot{}, err
	}

	if m.backend == nil || !m.backend.Ready() {
		m.pending[tileKey] = bitmap
		return slot, nil
	}

	pxX := slot.SlotX * m.tileSize
	pxY := slot.SlotY * m.tileSize
	if err := m.backend.UploadTile(slot.Layer, pxX, pxY, m.tileSize, bitmap); err != nil {
		m.freeTileLocked(tileKey)
		return slotalloc.Slot{}, err
	}
	return slot, nil
}

// FlushPending uploads any tiles that were allocated before the GPU
// backend became ready. Call once per frame prologue; a no-op once the
// pending set is empty.
func (m *Manager) FlushPending() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.backend == nil || !m.backend.Ready() || len(m.pending) == 0 {
		return nil
	}
	for tileKey, bitmap := range m.pending {
		slot, ok := m.alloc.Get(tileKey)
		if !ok {
			delete(m.pending, tileKey)
			continue
		}
		pxX := slot.SlotX * m.tileSize
		pxY := slot.SlotY * m.tileSize
		if err := m.backend.UploadTile(slot.Layer, pxX, pxY, m.tileSize, bitmap); err != nil {
			return err
		}
		delete(m.pending, tileKey)
	}
	return nil
}

// FreeTile releases tileKey's slot. Pixels are not cleared; the next
// upload to that slot overwrites them.
func (m *Manager) FreeTile(tileKey slotalloc.TileKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.freeTileLocked(tileKey)
}

// freeTileLocked is FreeTile's body, callable from methods that already
// hold mu (UploadTile's error path frees the slot it just allocated).
func (m *Manager) freeTileLocked(tileKey slotalloc.TileKey) {
	m.alloc.Free(tileKey)
	delete(m.pending, tileKey)
}

// AddInstanceWithZ appends a renderable instance for slot at world
// position (x, y, z), scale (scaleX, scaleY), and rotation about Z.
// Returns the instance's index, or -1 if slot is nil (the "absent slot"
// failure mode from spec.md §4.2).
func (m *Manager) AddInstanceWithZ(slot *slotalloc.Slot, x, y, z, scaleX, scaleY, rotation float64) int {
	if slot == nil {
		return -1
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	uvStep := float32(m.tileSize) / float32(m.atlasSize)
	var model [16]float32
	common.BuildModelMatrix(model[:],
		float32(x), float32(y), float32(z),
		0, 0, float32(rotation),
		float32(scaleX), float32(scaleY), 1,
	)

	m.instances = append(m.instances, GPUInstance{
		Model:    model,
		Layer:    float32(slot.Layer),
		UVOffset: [2]float32{float32(slot.SlotX) * uvStep, float32(slot.SlotY) * uvStep},
		UVScale:  [2]float32{uvStep, uvStep},
	})
	m.dirty = true
	return len(m.instances) - 1
}

// ClearInstances empties the instance list, marking the GPU buffer
// dirty for the next Update.
func (m *Manager) ClearInstances() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances = m.instances[:0]
	m.dirty = true
}

// Update flushes the instance buffer to the GPU if it has changed since
// the last call.
func (m *Manager) Update() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.dirty {
		return nil
	}
	if m.backend == nil || !m.backend.Ready() {
		return nil
	}
	if err := m.backend.WriteInstances(common.SliceToBytes(m.instances)); err != nil {
		return err
	}
	m.dirty = false
	return nil
}

// UsedSlotCount returns the number of currently allocated slots.
func (m *Manager) UsedSlotCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.alloc.UsedCount()
}

// TotalSlots returns the atlas's fixed total slot capacity.
func (m *Manager) TotalSlots() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.alloc.TotalSlots()
}

// TileCount returns the number of distinct tile keys currently
// allocated — equal to UsedSlotCount since each slot holds exactly one
// tile.
func (m *Manager) TileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.alloc.UsedCount()
}

// InstanceCount returns the number of instances currently queued for
// the next draw call.
func (m *Manager) InstanceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.instances)
}
