package slotalloc

import "testing"

func key(img, lod, tx, ty int) TileKey {
	return TileKey{ImageID: img, LOD: lod, TileX: tx, TileY: ty}
}

func TestAllocateIdempotent(t *testing.T) {
	a := New(1, 2)
	s1, err := a.Allocate(key(1, 0, 0, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s2, err := a.Allocate(key(1, 0, 0, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s1 != s2 {
		t.Fatalf("expected idempotent allocation, got %v and %v", s1, s2)
	}
	if a.UsedCount() != 1 {
		t.Fatalf("expected used count 1, got %d", a.UsedCount())
	}
}

func TestAllocateFreeRoundTrip(t *testing.T) {
	a := New(2, 4)
	before := a.UsedCount()
	k := key(5, 1, 2, 3)
	if _, err := a.Allocate(k); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a.Free(k)
	if a.UsedCount() != before {
		t.Fatalf("used count did not return to baseline: got %d want %d", a.UsedCount(), before)
	}
	if a.Has(k) {
		t.Fatalf("expected key to be absent after free")
	}
}

func TestFreeAbsentIsNoop(t *testing.T) {
	a := New(1, 2)
	a.Free(key(9, 9, 9, 9))
	if a.UsedCount() != 0 {
		t.Fatalf("expected used count 0, got %d", a.UsedCount())
	}
}

// Allocator wrap: on a 1-layer 2x2 allocator, allocate t0..t3, free t1,
// allocate tN; tN must occupy the freed position (layer=0, slotX=1, slotY=0).
func TestAllocatorWrap(t *testing.T) {
	a := New(1, 2)
	t0 := key(0, 0, 0, 0)
	t1 := key(1, 0, 0, 0)
	t2 := key(2, 0, 0, 0)
	t3 := key(3, 0, 0, 0)

	s0, _ := a.Allocate(t0)
	s1, _ := a.Allocate(t1)
	s2, _ := a.Allocate(t2)
	s3, _ := a.Allocate(t3)

	want := []Slot{
		{Layer: 0, SlotX: 0, SlotY: 0},
		{Layer: 0, SlotX: 1, SlotY: 0},
		{Layer: 0, SlotX: 0, SlotY: 1},
		{Layer: 0, SlotX: 1, SlotY: 1},
	}
	got := []Slot{s0, s1, s2, s3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("allocation %d: got %v want %v", i, got[i], want[i])
		}
	}

	a.Free(t1)

	tN := key(4, 0, 0, 0)
	sN, err := a.Allocate(tN)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantFreed := Slot{Layer: 0, SlotX: 1, SlotY: 0}
	if sN != wantFreed {
		t.Fatalf("expected freed position %v, got %v", wantFreed, sN)
	}
}

func TestAtlasFull(t *testing.T) {
	a := New(1, 1)
	if _, err := a.Allocate(key(0, 0, 0, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := a.Allocate(key(1, 0, 0, 0)); err != ErrAtlasFull {
		t.Fatalf("expected ErrAtlasFull, got %v", err)
	}
}

func TestTotalSlots(t *testing.T) {
	a := New(3, 4)
	if got := a.TotalSlots(); got != 3*4*4 {
		t.Fatalf("expected %d total slots, got %d", 3*4*4, got)
	}
}
