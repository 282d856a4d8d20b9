// Package slotalloc assigns and recycles fixed-size slots in a layered
// grid, the physical backing for the atlas texture array's tile
// positions.
package slotalloc

import "errors"

// ErrAtlasFull is returned by Allocate when every layer is saturated.
var ErrAtlasFull = errors.New("slotalloc: atlas full")

// TileKey stably identifies one tile: an image at a LOD at a grid
// position. Equality is by all four fields.
type TileKey struct {
	ImageID int
	LOD     int
	TileX   int
	TileY   int
}

// Slot is a physical atlas position: one layer, one grid cell within it.
type Slot struct {
	Layer int
	SlotX int
	SlotY int
}

// index returns the slot's flat position within its layer, lowest-index
// first in row-major order, used to keep allocation order deterministic.
func index(slotX, slotY, gridSize int) int {
	return slotY*gridSize + slotX
}

func fromIndex(idx, gridSize int) (slotX, slotY int) {
	return idx % gridSize, idx / gridSize
}

// Allocator assigns and recycles fixed-size slots across a fixed number
// of layers, each gridSize x gridSize slots.
//
// Allocation is deterministic: the first layer with free capacity and
// the lowest free index within it is chosen, freed slots are reused
// before the allocator advances to new ones.
type Allocator struct {
	gridSize int
	layers   int

	// free[layer] holds free slot indices in ascending order.
	free [][]int
	// nextNew[layer] is the smallest index in that layer never yet used.
	nextNew []int

	byKey  map[TileKey]Slot
	byLoc  map[Slot]TileKey
	usedN  int
}

// New creates an Allocator with the given number of layers, each a
// gridSize x gridSize grid of slots.
func New(layers, gridSize int) *Allocator {
	a := &Allocator{
		gridSize: gridSize,
		layers:   layers,
		free:     make([][]int, layers),
		nextNew:  make([]int, layers),
		byKey:    make(map[TileKey]Slot),
		byLoc:    make(map[Slot]TileKey),
	}
	return a
}

// Allocate returns the existing slot for tileKey if already allocated
// (idempotent); otherwise it claims the first layer with free capacity
// and the lowest free index within it. Returns ErrAtlasFull when every
// layer is saturated.
func (a *Allocator) Allocate(tileKey TileKey) (Slot, error) {
	if s, ok := a.byKey[tileKey]; ok {
		return s, nil
	}

	capacity := a.gridSize * a.gridSize
	for layer := 0; layer < a.layers; layer++ {
		if len(a.free[layer]) > 0 {
			idx := a.free[layer][0]
			a.free[layer] = a.free[layer][1:]
			slotX, slotY := fromIndex(idx, a.gridSize)
			slot := Slot{Layer: layer, SlotX: slotX, SlotY: slotY}
			a.byKey[tileKey] = slot
			a.byLoc[slot] = tileKey
			a.usedN++
			return slot, nil
		}
		if a.nextNew[layer] < capacity {
			idx := a.nextNew[layer]
			a.nextNew[layer]++
			slotX, slotY := fromIndex(idx, a.gridSize)
			slot := Slot{Layer: layer, SlotX: slotX, SlotY: slotY}
			a.byKey[tileKey] = slot
			a.byLoc[slot] = tileKey
			a.usedN++
			return slot, nil
		}
	}
	return Slot{}, ErrAtlasFull
}

// Free releases the slot mapped to tileKey. No-op if tileKey is absent.
func (a *Allocator) Free(tileKey TileKey) {
	slot, ok := a.byKey[tileKey]
	if !ok {
		return
	}
	delete(a.byKey, tileKey)
	delete(a.byLoc, slot)
	idx := index(slot.SlotX, slot.SlotY, a.gridSize)
	a.free[slot.Layer] = insertSorted(a.free[slot.Layer], idx)
	a.usedN--
}

func insertSorted(s []int, v int) []int {
	i := 0
	for i < len(s) && s[i] < v {
		i++
	}
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

// Has reports whether tileKey currently has a live slot.
func (a *Allocator) Has(tileKey TileKey) bool {
	_, ok := a.byKey[tileKey]
	return ok
}

// Get returns the slot for tileKey, if any.
func (a *Allocator) Get(tileKey TileKey) (Slot, bool) {
	s, ok := a.byKey[tileKey]
	return s, ok
}

// TileKeyAt returns the tile key occupying slot, if any.
func (a *Allocator) TileKeyAt(slot Slot) (TileKey, bool) {
	k, ok := a.byLoc[slot]
	return k, ok
}

// UsedCount returns the number of currently allocated slots.
func (a *Allocator) UsedCount() int {
	return a.usedN
}

// TotalSlots returns the fixed total slot capacity: layers * gridSize^2.
func (a *Allocator) TotalSlots() int {
	return a.layers * a.gridSize * a.gridSize
}

// GridSize returns the per-layer grid dimension.
func (a *Allocator) GridSize() int {
	return a.gridSize
}

// Layers returns the number of layers.
func (a *Allocator) Layers() int {
	return a.layers
}
