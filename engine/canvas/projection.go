package canvas

import (
	"github.com/Carmen-Shannon/tilecanvas/common"
	"github.com/Carmen-Shannon/tilecanvas/engine/camera"
)

// ViewProjection computes the camera's orthographic view-projection
// matrix: its symmetric Bounds, scaled by 1/Zoom and re-centered on
// Position, following the same extents math as common.CameraAABB so
// the rendered frame always matches the visibility oracle's query box.
//
// Parameters:
//   - cam: the camera to project
//
// Returns:
//   - [16]float32: a column-major view-projection matrix
func ViewProjection(cam camera.Camera) [16]float32 {
	left, right, top, bottom := cam.Bounds()
	zoom := cam.Zoom()
	camX, camY := cam.Position()

	hw := (right - left) / (2 * zoom)
	hh := (top - bottom) / (2 * zoom)

	var vp [16]float32
	common.Ortho(vp[:],
		float32(camX-hw), float32(camX+hw),
		float32(camY-hh), float32(camY+hh),
		-1, 1,
	)
	return vp
}
