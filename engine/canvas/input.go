package canvas

import (
	"math"

	"github.com/Carmen-Shannon/tilecanvas/common"
	"github.com/Carmen-Shannon/tilecanvas/engine/camera"
	"github.com/Carmen-Shannon/tilecanvas/engine/window"
)

const (
	zoomStep   = 1.1
	keyPanStep = 0.1 // fraction of the current view extent nudged per key press
)

// WireCameraInput hooks a window's scroll, middle-mouse-drag, and WASD/Q/E
// key callbacks up to pan and zoom a camera. Scroll zooms around the
// camera's current center; middle-mouse-drag pans it continuously; WASD
// nudges the camera by a fraction of the current view extent per press,
// and Q/E nudge the zoom the same way scroll does.
func WireCameraInput(w window.Window, cam camera.Camera) {
	w.SetKeyDownCallback(func(keyCode uint32) {
		left, right, top, bottom := cam.Bounds()
		panX := (right - left) * keyPanStep
		panY := (top - bottom) * keyPanStep
		camX, camY := cam.Position()

		switch int(keyCode) {
		case common.KeyW:
			cam.SetPosition(camX, camY+panY)
		case common.KeyS:
			cam.SetPosition(camX, camY-panY)
		case common.KeyA:
			cam.SetPosition(camX-panX, camY)
		case common.KeyD:
			cam.SetPosition(camX+panX, camY)
		case common.KeyQ:
			cam.SetZoom(cam.Zoom() / zoomStep)
		case common.KeyE:
			cam.SetZoom(cam.Zoom() * zoomStep)
		}
	})

	var dragging bool
	var lastX, lastY int32

	w.SetMiddleMouseDownCallback(func(x, y int32) {
		dragging = true
		lastX, lastY = x, y
	})

	w.SetMiddleMouseUpCallback(func(x, y int32) {
		dragging = false
	})

	w.SetMouseMoveCallback(func(x, y int32) {
		if !dragging {
			return
		}
		dx := x - lastX
		dy := y - lastY
		lastX, lastY = x, y

		left, right, top, bottom := cam.Bounds()
		zoom := cam.Zoom()
		worldPerPxX := (right - left) / zoom / float64(w.Width())
		worldPerPxY := (top - bottom) / zoom / float64(w.Height())

		camX, camY := cam.Position()
		cam.SetPosition(camX-float64(dx)*worldPerPxX, camY+float64(dy)*worldPerPxY)
	})

	w.SetScrollCallback(func(delta float32) {
		zoom := cam.Zoom() * math.Pow(zoomStep, float64(delta))
		cam.SetZoom(zoom)
	})
}
