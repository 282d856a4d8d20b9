package common

import "math"

// Vec2 is a 2D point or vector in world space.
type Vec2 struct {
	X, Y float64
}

// AABB is an axis-aligned bounding box in world space.
type AABB struct {
	MinX, MinY, MaxX, MaxY float64
}

// Intersects reports whether two AABBs overlap, treating a shared edge as
// overlap (inclusive bounds).
func (a AABB) Intersects(b AABB) bool {
	return a.MinX <= b.MaxX && a.MaxX >= b.MinX && a.MinY <= b.MaxY && a.MaxY >= b.MinY
}

// HalfExtents returns the box's half-width and half-height.
func (a AABB) HalfExtents() (hw, hh float64) {
	return (a.MaxX - a.MinX) / 2, (a.MaxY - a.MinY) / 2
}

// Center returns the box's midpoint.
func (a AABB) Center() Vec2 {
	return Vec2{X: (a.MinX + a.MaxX) / 2, Y: (a.MinY + a.MaxY) / 2}
}

// AABBFromCenter builds an AABB from a center point and half-extents.
func AABBFromCenter(center Vec2, hw, hh float64) AABB {
	return AABB{
		MinX: center.X - hw,
		MaxX: center.X + hw,
		MinY: center.Y - hh,
		MaxY: center.Y + hh,
	}
}

// RotatePoint rotates p about the origin by theta radians.
func RotatePoint(p Vec2, theta float64) Vec2 {
	s, c := math.Sincos(theta)
	return Vec2{
		X: p.X*c - p.Y*s,
		Y: p.X*s + p.Y*c,
	}
}

// ImageAABB computes the world AABB of a square image of side baseSize,
// uniformly scaled by scale and rotated by rotation radians about pivot.
//
// h is the scaled half-size. After rotation the content center moves to
// pivot + h(cosθ+sinθ, sinθ−cosθ), and the AABB half-extent about that
// center is h(|sinθ|+|cosθ|) in both axes.
func ImageAABB(pivot Vec2, baseSize, scale, rotation float64) AABB {
	h := baseSize * scale / 2
	s, c := math.Sincos(rotation)
	center := Vec2{
		X: pivot.X + h*(c+s),
		Y: pivot.Y + h*(s-c),
	}
	half := h * (math.Abs(s) + math.Abs(c))
	return AABBFromCenter(center, half, half)
}

// CameraAABB computes the world AABB seen by an orthographic top-down
// camera centered at (camX, camY) with symmetric projection bounds
// left/right/top/bottom and the given zoom. eps pads the box to avoid
// boundary flicker; it is an optimization, not load-bearing for
// correctness.
func CameraAABB(camX, camY, left, right, top, bottom, zoom, eps float64) AABB {
	hw := (right-left)/(2*zoom) + eps
	hh := (top-bottom)/(2*zoom) + eps
	return AABBFromCenter(Vec2{X: camX, Y: camY}, hw, hh)
}
