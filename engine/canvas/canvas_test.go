package canvas

import (
	"math"
	"testing"

	"github.com/Carmen-Shannon/tilecanvas/common"
	"github.com/Carmen-Shannon/tilecanvas/engine/camera"
	"github.com/cogentcore/webgpu/wgpu"
)

func TestViewProjectionCenteredAtOrigin(t *testing.T) {
	cam := camera.New(-10, 10, 10, -10)

	vp := ViewProjection(cam)

	if got := vp[0]; math.Abs(float64(got)-0.1) > 1e-6 {
		t.Errorf("vp[0] (x scale) = %v, want 0.1", got)
	}
	if got := vp[5]; math.Abs(float64(got)-0.1) > 1e-6 {
		t.Errorf("vp[5] (y scale) = %v, want 0.1", got)
	}
	if got := vp[12]; math.Abs(float64(got)) > 1e-6 {
		t.Errorf("vp[12] (x translate) = %v, want 0 for a camera centered at the origin", got)
	}
	if got := vp[13]; math.Abs(float64(got)) > 1e-6 {
		t.Errorf("vp[13] (y translate) = %v, want 0 for a camera centered at the origin", got)
	}
}

func TestViewProjectionFollowsZoom(t *testing.T) {
	cam := camera.New(-10, 10, 10, -10)
	cam.SetZoom(2)

	vp := ViewProjection(cam)

	// Doubling zoom halves the visible extent, doubling the scale factor.
	if got := vp[0]; math.Abs(float64(got)-0.2) > 1e-6 {
		t.Errorf("vp[0] (x scale) = %v, want 0.2 at zoom=2", got)
	}
}

func TestViewProjectionFollowsPosition(t *testing.T) {
	cam := camera.New(-10, 10, 10, -10)
	cam.SetPosition(5, -5)

	vp := ViewProjection(cam)

	// A view centered away from the origin produces a nonzero translate
	// term in both axes.
	if got := vp[12]; math.Abs(float64(got)) < 1e-6 {
		t.Errorf("vp[12] (x translate) = %v, want nonzero once the camera moves off-origin", got)
	}
	if got := vp[13]; math.Abs(float64(got)) < 1e-6 {
		t.Errorf("vp[13] (y translate) = %v, want nonzero once the camera moves off-origin", got)
	}
}

// fakeWindow is a minimal window.Window stub exercising only the
// callbacks WireCameraInput registers, mirroring the teacher's
// counter-based fake style for exercising callback wiring without a
// real platform window.
type fakeWindow struct {
	width, height int

	onScroll          func(delta float32)
	onKeyDown         func(keyCode uint32)
	onMiddleMouseDown func(x, y int32)
	onMiddleMouseUp   func(x, y int32)
	onMouseMove       func(x, y int32)
}

func (f *fakeWindow) SetUpdateCallback(func())                       {}
func (f *fakeWindow) SetResizeCallback(func(width, height int))      {}
func (f *fakeWindow) SetScrollCallback(cb func(delta float32))       { f.onScroll = cb }
func (f *fakeWindow) SetKeyDownCallback(cb func(keyCode uint32))     { f.onKeyDown = cb }
func (f *fakeWindow) SetKeyUpCallback(func(keyCode uint32))          {}
func (f *fakeWindow) SetMiddleMouseDownCallback(cb func(x, y int32)) { f.onMiddleMouseDown = cb }
func (f *fakeWindow) SetMiddleMouseUpCallback(cb func(x, y int32))   { f.onMiddleMouseUp = cb }
func (f *fakeWindow) SetMouseMoveCallback(cb func(x, y int32))       { f.onMouseMove = cb }
func (f *fakeWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor     { return nil }
func (f *fakeWindow) IsRunning() bool                                { return true }
func (f *fakeWindow) Close() error                                   { return nil }
func (f *fakeWindow) ProcessMessages()                               {}
func (f *fakeWindow) Width() int                                     { return f.width }
func (f *fakeWindow) Height() int                                    { return f.height }

func TestWireCameraInputScrollZoomsIn(t *testing.T) {
	w := &fakeWindow{width: 800, height: 600}
	cam := camera.New(-10, 10, 10, -10)
	WireCameraInput(w, cam)

	w.onScroll(1)

	if got := cam.Zoom(); got <= 1 {
		t.Errorf("zoom after positive scroll = %v, want > 1", got)
	}
}

func TestWireCameraInputScrollZoomsOut(t *testing.T) {
	w := &fakeWindow{width: 800, height: 600}
	cam := camera.New(-10, 10, 10, -10)
	WireCameraInput(w, cam)

	w.onScroll(-1)

	if got := cam.Zoom(); got >= 1 {
		t.Errorf("zoom after negative scroll = %v, want < 1", got)
	}
}

func TestWireCameraInputDragPans(t *testing.T) {
	w := &fakeWindow{width: 800, height: 600}
	cam := camera.New(-10, 10, 10, -10)
	WireCameraInput(w, cam)

	w.onMiddleMouseDown(100, 100)
	w.onMouseMove(150, 100)

	x, y := cam.Position()
	if x >= 0 {
		t.Errorf("x position after dragging right = %v, want < 0 (world pans opposite the drag)", x)
	}
	if y != 0 {
		t.Errorf("y position after a horizontal-only drag = %v, want 0", y)
	}
}

func TestWireCameraInputIgnoresMoveWithoutDrag(t *testing.T) {
	w := &fakeWindow{width: 800, height: 600}
	cam := camera.New(-10, 10, 10, -10)
	WireCameraInput(w, cam)

	w.onMouseMove(150, 100)

	x, y := cam.Position()
	if x != 0 || y != 0 {
		t.Errorf("position after move without a drag = (%v, %v), want (0, 0)", x, y)
	}
}

func TestWireCameraInputStopsPanningAfterRelease(t *testing.T) {
	w := &fakeWindow{width: 800, height: 600}
	cam := camera.New(-10, 10, 10, -10)
	WireCameraInput(w, cam)

	w.onMiddleMouseDown(100, 100)
	w.onMiddleMouseUp(100, 100)
	w.onMouseMove(200, 100)

	x, y := cam.Position()
	if x != 0 || y != 0 {
		t.Errorf("position after move following mouse-up = (%v, %v), want (0, 0)", x, y)
	}
}

func TestWireCameraInputWASDPans(t *testing.T) {
	w := &fakeWindow{width: 800, height: 600}
	cam := camera.New(-10, 10, 10, -10)
	WireCameraInput(w, cam)

	w.onKeyDown(uint32(common.KeyD))
	if x, _ := cam.Position(); x <= 0 {
		t.Errorf("x position after D = %v, want > 0", x)
	}

	w.onKeyDown(uint32(common.KeyW))
	if _, y := cam.Position(); y <= 0 {
		t.Errorf("y position after W = %v, want > 0", y)
	}
}

func TestWireCameraInputQEZooms(t *testing.T) {
	w := &fakeWindow{width: 800, height: 600}
	cam := camera.New(-10, 10, 10, -10)
	WireCameraInput(w, cam)

	w.onKeyDown(uint32(common.KeyE))
	if got := cam.Zoom(); got <= 1 {
		t.Errorf("zoom after E = %v, want > 1", got)
	}

	w.onKeyDown(uint32(common.KeyQ))
	w.onKeyDown(uint32(common.KeyQ))
	if got := cam.Zoom(); got >= 1 {
		t.Errorf("zoom after E then two Q presses = %v, want < 1", got)
	}
}
