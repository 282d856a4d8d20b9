package visibility

import (
	"math"
	"testing"

	"github.com/Carmen-Shannon/tilecanvas/common"
	"github.com/Carmen-Shannon/tilecanvas/engine/camera"
)

func naiveVisible(o *Oracle, cam camera.Camera, ids []int) []int {
	var out []int
	camBox := cam.AABB(o.epsilon)
	for _, id := range ids {
		b, ok := o.Bounds(id)
		if ok && b.Intersects(camBox) {
			out = append(out, id)
		}
	}
	return out
}

func TestVisibilityAgreementWithNaiveScan(t *testing.T) {
	o := New(0.01)
	ids := []int{}
	for i := 0; i < 40; i++ {
		x := float64(i%8) * 5
		y := float64(i/8) * 5
		rot := float64(i) * 0.2
		o.SetImage(i, common.Vec2{X: x, Y: y}, 4, 1, rot)
		ids = append(ids, i)
	}

	cam := camera.New(-4, 4, 4, -4)
	cam.SetPosition(10, 10)
	cam.SetZoom(1.5)

	got := o.VisibleImages(cam)
	want := naiveVisible(o, cam, ids)

	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestIsImageVisibleConsistentWithSet(t *testing.T) {
	o := New(0)
	o.SetImage(1, common.Vec2{X: 0, Y: 0}, 4, 1, 0)
	o.SetImage(2, common.Vec2{X: 1000, Y: 1000}, 4, 1, 0)

	cam := camera.New(-2, 2, 2, -2)

	visible := o.VisibleImages(cam)
	inSet := map[int]bool{}
	for _, id := range visible {
		inSet[id] = true
	}

	for _, id := range []int{1, 2} {
		if o.IsImageVisible(id, cam) != inSet[id] {
			t.Fatalf("inconsistency for image %d", id)
		}
	}
}

func TestUpdateRotationInvalidatesCache(t *testing.T) {
	o := New(0)
	o.SetImage(1, common.Vec2{X: 0, Y: 0}, 4, 1, 0)
	before, _ := o.Bounds(1)
	o.UpdateRotations(1, math.Pi/4)
	after, _ := o.Bounds(1)
	if before == after {
		t.Fatalf("expected bounds to change after rotation update")
	}
}

func TestUpdateScaleInvalidatesCache(t *testing.T) {
	o := New(0)
	o.SetImage(1, common.Vec2{X: 0, Y: 0}, 4, 1, 0)
	before, _ := o.Bounds(1)
	o.UpdateScales(1, 3)
	after, _ := o.Bounds(1)
	if before == after {
		t.Fatalf("expected bounds to change after scale update")
	}
}

func TestRemoveImage(t *testing.T) {
	o := New(0)
	o.SetImage(1, common.Vec2{X: 0, Y: 0}, 4, 1, 0)
	o.RemoveImage(1)
	if _, ok := o.Bounds(1); ok {
		t.Fatalf("expected image to be removed")
	}
}
