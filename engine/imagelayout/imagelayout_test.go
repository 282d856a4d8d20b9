package imagelayout

import (
	"testing"

	"github.com/Carmen-Shannon/tilecanvas/common"
)

func TestGridLayoutColumnsAndRows(t *testing.T) {
	g := NewGridLayout(4, 4, 1)
	p0 := g.Pose(0)
	p1 := g.Pose(1)
	p4 := g.Pose(4)

	if p0.X != 0 || p0.Y != 0 {
		t.Fatalf("expected origin for image 0, got (%v, %v)", p0.X, p0.Y)
	}
	if p1.X == p0.X {
		t.Fatalf("expected column 1 to differ in X from column 0")
	}
	if p4.Y != p0.Y {
		// image 4 starts the next row
	} else {
		t.Fatalf("expected image 4 to be on a new row")
	}
}

func TestGridBoundsMatchesPose(t *testing.T) {
	g := NewGridLayout(4, 4, 1)
	p := g.Pose(2)
	b := g.Bounds(2)
	want := common.ImageAABB(common.Vec2{X: p.X, Y: p.Y}, 4, p.Scale, p.Rotation)
	if b != want {
		t.Fatalf("bounds do not match ImageAABB(pose): got %v want %v", b, want)
	}
}

func TestStackedLayoutDeterministic(t *testing.T) {
	l := NewStackedLayout(5, 4, 3, 10, 1.5, 0.3)
	p1 := l.Pose(7)
	p2 := l.Pose(7)
	if p1 != p2 {
		t.Fatalf("expected deterministic pose for same image id, got %v and %v", p1, p2)
	}
}

func TestStackedLayoutZOrdering(t *testing.T) {
	l := NewStackedLayout(5, 4, 3, 10, 1.5, 0.3)
	var lastZ float64 = -1
	for i := 0; i < 5; i++ {
		p := l.Pose(i)
		if p.Z < lastZ {
			t.Fatalf("expected non-decreasing z within a stack, got %v after %v at index %d", p.Z, lastZ, i)
		}
		lastZ = p.Z
	}
}

func TestStackedBoundsMatchesPose(t *testing.T) {
	l := NewStackedLayout(5, 4, 3, 10, 1.5, 0.3)
	p := l.Pose(3)
	b := l.Bounds(3)
	want := common.ImageAABB(common.Vec2{X: p.X, Y: p.Y}, 4, p.Scale, p.Rotation)
	if b != want {
		t.Fatalf("bounds do not match ImageAABB(pose): got %v want %v", b, want)
	}
}
