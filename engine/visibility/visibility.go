// Package visibility implements the flat (z=0) visibility query: which
// images' world AABBs intersect the camera's world AABB.
package visibility

import (
	"sort"
	"sync"

	"github.com/Carmen-Shannon/tilecanvas/common"
	"github.com/Carmen-Shannon/tilecanvas/engine/camera"
)

// imageRecord is the per-image pose data the oracle derives bounds from:
// a layout pivot, base (unscaled) size, scale, and rotation about the
// pivot. This domain only ever needs a flat 2D AABB-vs-AABB test, not a
// 3D plane-based frustum extraction.
type imageRecord struct {
	pivot    common.Vec2
	baseSize float64
	scale    float64
	rotation float64

	cached  common.AABB
	hasCache bool
}

// Oracle maintains per-image world AABBs and answers visibility queries
// against a camera. Bounds are cached and recomputed lazily after
// UpdateRotations/UpdateScales invalidate them.
type Oracle struct {
	mu     sync.RWMutex
	images map[int]*imageRecord
	// epsilon pads the camera AABB to avoid boundary flicker; a
	// heuristic for floating point safety, not load-bearing for
	// correctness (spec §9 open question).
	epsilon float64
}

// New creates an empty Oracle with the given camera-AABB padding.
func New(epsilon float64) *Oracle {
	return &Oracle{
		images:  make(map[int]*imageRecord),
		epsilon: epsilon,
	}
}

// SetImage registers or replaces the pose data for imageID.
func (o *Oracle) SetImage(imageID int, pivot common.Vec2, baseSize, scale, rotation float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.images[imageID] = &imageRecord{
		pivot:    pivot,
		baseSize: baseSize,
		scale:    scale,
		rotation: rotation,
	}
}

// RemoveImage forgets imageID entirely.
func (o *Oracle) RemoveImage(imageID int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.images, imageID)
}

// UpdateRotations invalidates cached bounds for the given images after
// their rotation changed.
func (o *Oracle) UpdateRotations(imageID int, rotation float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if r, ok := o.images[imageID]; ok {
		r.rotation = rotation
		r.hasCache = false
	}
}

// UpdateScales invalidates cached bounds for the given images after
// their scale changed.
func (o *Oracle) UpdateScales(imageID int, scale float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if r, ok := o.images[imageID]; ok {
		r.scale = scale
		r.hasCache = false
	}
}

func (r *imageRecord) bounds() common.AABB {
	if !r.hasCache {
		r.cached = common.ImageAABB(r.pivot, r.baseSize, r.scale, r.rotation)
		r.hasCache = true
	}
	return r.cached
}

// Bounds returns the current world AABB for imageID. This takes the
// write lock rather than RLock: bounds() lazily fills imageRecord's
// cache on a miss, and concurrent RLock holders don't exclude each
// other, so two simultaneous cache-filling calls would race on
// cached/hasCache.
func (o *Oracle) Bounds(imageID int) (common.AABB, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.images[imageID]
	if !ok {
		return common.AABB{}, false
	}
	return r.bounds(), true
}

// VisibleImages returns the sorted list of image IDs whose AABB
// intersects the camera's AABB. This is a full scan: observationally
// identical to, and in this implementation literally is, the naive
// AABB-vs-camera-AABB test every image is measured against — a grid
// prune is an optimization spec.md §4.4 explicitly permits but does not
// require, and this module favors the simpler, provably-identical scan.
func (o *Oracle) VisibleImages(cam camera.Camera) []int {
	// Lock (not RLock): the bounds() call below may fill an
	// imageRecord's cache, which concurrent readers would race on.
	o.mu.Lock()
	defer o.mu.Unlock()

	camBox := cam.AABB(o.epsilon)
	var visible []int
	for id, r := range o.images {
		if r.bounds().Intersects(camBox) {
			visible = append(visible, id)
		}
	}
	sort.Ints(visible)
	return visible
}

// IsImageVisible reports visibility of a single image, consistent with
// VisibleImages' set result.
func (o *Oracle) IsImageVisible(imageID int, cam camera.Camera) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.images[imageID]
	if !ok {
		return false
	}
	camBox := cam.AABB(o.epsilon)
	return r.bounds().Intersects(camBox)
}
