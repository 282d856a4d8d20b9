package framecoord

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Carmen-Shannon/tilecanvas/common"
	"github.com/Carmen-Shannon/tilecanvas/engine/atlas"
	"github.com/Carmen-Shannon/tilecanvas/engine/camera"
	"github.com/Carmen-Shannon/tilecanvas/engine/decoder"
	"github.com/Carmen-Shannon/tilecanvas/engine/imagelayout"
	"github.com/Carmen-Shannon/tilecanvas/engine/tilestore"
	"github.com/Carmen-Shannon/tilecanvas/engine/visibility"
)

type fakeBackend struct {
	uploads int

	// failAfter, when > 0, makes the failAfter-th UploadTile call (and
	// every call after it) return errUpload instead of succeeding.
	failAfter int
}

var errUpload = errors.New("simulated backend upload failure")

func (f *fakeBackend) Ready() bool { return true }
func (f *fakeBackend) UploadTile(layer, pxX, pxY, tileSize int, pixels []byte) error {
	f.uploads++
	if f.failAfter > 0 && f.uploads >= f.failAfter {
		return errUpload
	}
	return nil
}
func (f *fakeBackend) WriteInstances(data []byte) error { return nil }

// singleLayout places every image at the world origin with unit scale,
// regardless of ID — enough for a coordinator test that only needs
// stable, known poses.
type singleLayout struct {
	poses map[int]imagelayout.Pose
}

func (l *singleLayout) Pose(imageID int) imagelayout.Pose {
	if p, ok := l.poses[imageID]; ok {
		return p
	}
	return imagelayout.Pose{Scale: 1}
}

func (l *singleLayout) Bounds(imageID int) common.AABB {
	p := l.Pose(imageID)
	return common.ImageAABB(common.Vec2{X: p.X, Y: p.Y}, 4, p.Scale, p.Rotation)
}

func testImageServer(t *testing.T, w, h int) *httptest.Server {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode fixture png: %v", err)
	}
	data := buf.Bytes()
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func waitForRendered(t *testing.T, c *Coordinator, imageID, lod int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		c.Tick()
		if _, ok := c.RenderedSet()[tilestore.ImageLOD{ImageID: imageID, LOD: lod}]; ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("image %d never reached rendered set at lod %d; rendered=%v", imageID, lod, c.RenderedSet())
}

func newTestCoordinator(t *testing.T, layout *singleLayout) (*Coordinator, *atlas.Manager, *decoder.Pool, camera.Camera) {
	t.Helper()
	c, am, pool, cam, _ := newTestCoordinatorWithBackend(t, layout, &fakeBackend{})
	return c, am, pool, cam
}

func newTestCoordinatorWithBackend(t *testing.T, layout *singleLayout, backend *fakeBackend) (*Coordinator, *atlas.Manager, *decoder.Pool, camera.Camera, *fakeBackend) {
	t.Helper()
	oracle := visibility.New(0.01)
	store := tilestore.New()
	am := atlas.New(2, 256, 64, backend)
	pool := decoder.New(2, 64, 4, nil)
	t.Cleanup(pool.Dispose)
	cam := camera.New(-2, 2, 2, -2)

	cfg := DefaultConfig()
	cfg.BaseWorldSize = 4
	cfg.TileSize = 64
	cfg.MaxLOD = 2
	cfg.TargetFreeSlots = 32 // equal to the test atlas's total slot count: reclaim anything evictable every frame

	c := New(cfg, oracle, layout, store, am, pool, cam)
	return c, am, pool, cam, backend
}

func TestCoordinatorLoadsAndRendersVisibleImage(t *testing.T) {
	srv := testImageServer(t, 256, 256)
	layout := &singleLayout{poses: map[int]imagelayout.Pose{1: {X: 0, Y: 0, Scale: 1}}}
	c, _, _, _ := newTestCoordinator(t, layout)
	c.RegisterImage(1, srv.URL)

	waitForRendered(t, c, 1, 0, 2*time.Second)
}

func TestCoordinatorDoesNotLoadOffscreenImage(t *testing.T) {
	srv := testImageServer(t, 256, 256)
	layout := &singleLayout{poses: map[int]imagelayout.Pose{
		1: {X: 0, Y: 0, Scale: 1},
		2: {X: 1000, Y: 1000, Scale: 1},
	}}
	c, _, _, _ := newTestCoordinator(t, layout)
	c.RegisterImage(1, srv.URL)
	c.RegisterImage(2, srv.URL)

	waitForRendered(t, c, 1, 0, 2*time.Second)

	if _, ok := c.RenderedSet()[tilestore.ImageLOD{ImageID: 2, LOD: 0}]; ok {
		t.Fatalf("offscreen image 2 should never be rendered")
	}
}

func TestCoordinatorZoomInRaisesLOD(t *testing.T) {
	srv := testImageServer(t, 1024, 1024)
	layout := &singleLayout{poses: map[int]imagelayout.Pose{1: {X: 0, Y: 0, Scale: 1}}}
	c, _, _, cam := newTestCoordinator(t, layout)
	c.RegisterImage(1, srv.URL)

	waitForRendered(t, c, 1, 0, 2*time.Second)

	cam.SetZoom(40)
	waitForRendered(t, c, 1, 2, 2*time.Second)
}

func TestCoordinatorEvictsOffscreenAfterPan(t *testing.T) {
	srv := testImageServer(t, 256, 256)
	layout := &singleLayout{poses: map[int]imagelayout.Pose{
		1: {X: 0, Y: 0, Scale: 1},
		2: {X: 1000, Y: 1000, Scale: 1},
	}}
	c, am, _, cam := newTestCoordinator(t, layout)
	c.RegisterImage(1, srv.URL)

	waitForRendered(t, c, 1, 0, 2*time.Second)
	usedBefore := am.UsedSlotCount()
	if usedBefore == 0 {
		t.Fatalf("expected image 1's tiles to occupy atlas slots")
	}

	cam.SetPosition(1000, 1000)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && am.UsedSlotCount() == usedBefore {
		c.Tick()
		time.Sleep(5 * time.Millisecond)
	}
	if am.UsedSlotCount() >= usedBefore {
		t.Fatalf("expected panning away from image 1 to free its atlas slots, used=%d before=%d", am.UsedSlotCount(), usedBefore)
	}
}

// TestCoordinatorFreesSlotsOnPartialUploadFailure drives a real decode
// through applyDecodeResult with a backend that fails partway through a
// multi-tile upload, and asserts every slot allocated for that decode —
// including the one the failing call itself allocated — is freed rather
// than leaked.
func TestCoordinatorFreesSlotsOnPartialUploadFailure(t *testing.T) {
	srv := testImageServer(t, 256, 256) // 64px tiles -> 4x4 = 16 tiles at LOD 2
	layout := &singleLayout{poses: map[int]imagelayout.Pose{1: {X: 0, Y: 0, Scale: 1}}}
	backend := &fakeBackend{failAfter: 3}
	c, am, _, cam, _ := newTestCoordinatorWithBackend(t, layout, backend)
	cam.SetZoom(40) // selects LOD 2, so a single decode uploads 16 tiles
	c.RegisterImage(1, srv.URL)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && backend.uploads == 0 {
		c.Tick()
		time.Sleep(5 * time.Millisecond)
	}
	// Give the failing decode a moment to actually reach applyDecodeResult.
	time.Sleep(200 * time.Millisecond)
	c.Tick()

	if got := am.UsedSlotCount(); got != 0 {
		t.Fatalf("expected all slots freed after a partial upload failure, got %d used slots", got)
	}
}
