// Package camera defines the orthographic camera contract the tile
// cache pipeline consumes. The camera itself — input handling and
// projection math beyond this narrow contract — is an external
// collaborator; this package only exposes the handful of fields the
// LOD selector and visibility oracle need.
package camera

import "github.com/Carmen-Shannon/tilecanvas/common"

// cameraImpl is the default Camera implementation: a plain value holder
// with no controller or GPU plumbing, since projection and input are
// out of scope for this module.
type cameraImpl struct {
	zoom float64
	x, y float64

	left, right, top, bottom float64
}

// Camera is an orthographic, top-down camera looking along -Z, exposing
// exactly the fields the LOD selector and visibility oracle need: zoom,
// world position, and the symmetric projection extents.
type Camera interface {
	// Zoom returns the camera's zoom factor. Combined with a device
	// pixel ratio, it yields screen_px_per_unit for the LOD selector.
	Zoom() float64

	// Position returns the camera's world-space focus point.
	Position() (x, y float64)

	// Bounds returns the symmetric orthographic projection extents
	// before zoom is applied.
	Bounds() (left, right, top, bottom float64)

	// SetZoom updates the zoom factor.
	SetZoom(zoom float64)

	// SetPosition updates the world-space focus point.
	SetPosition(x, y float64)

	// SetBounds updates the symmetric orthographic projection extents.
	SetBounds(left, right, top, bottom float64)

	// SetAspect adjusts left/right to match a window aspect ratio,
	// keeping top/bottom fixed. Mirrors the resize wiring the engine
	// performs on window resize callbacks.
	SetAspect(aspect float32)

	// AABB returns the camera's world-space bounding box, padded by
	// eps to avoid boundary flicker on the visibility query.
	AABB(eps float64) common.AABB
}

var _ Camera = &cameraImpl{}

// New creates a Camera with the given initial bounds. Zoom defaults to
// 1 and position to the origin.
func New(left, right, top, bottom float64) Camera {
	return &cameraImpl{
		zoom:   1,
		left:   left,
		right:  right,
		top:    top,
		bottom: bottom,
	}
}

func (c *cameraImpl) Zoom() float64 {
	return c.zoom
}

func (c *cameraImpl) Position() (x, y float64) {
	return c.x, c.y
}

func (c *cameraImpl) Bounds() (left, right, top, bottom float64) {
	return c.left, c.right, c.top, c.bottom
}

func (c *cameraImpl) SetZoom(zoom float64) {
	if zoom <= 0 {
		return
	}
	c.zoom = zoom
}

func (c *cameraImpl) SetPosition(x, y float64) {
	c.x, c.y = x, y
}

func (c *cameraImpl) SetBounds(left, right, top, bottom float64) {
	c.left, c.right, c.top, c.bottom = left, right, top, bottom
}

func (c *cameraImpl) SetAspect(aspect float32) {
	height := c.top - c.bottom
	halfWidth := height * float64(aspect) / 2
	centerX := (c.left + c.right) / 2
	c.left = centerX - halfWidth
	c.right = centerX + halfWidth
}

func (c *cameraImpl) AABB(eps float64) common.AABB {
	return common.CameraAABB(c.x, c.y, c.left, c.right, c.top, c.bottom, c.zoom, eps)
}
