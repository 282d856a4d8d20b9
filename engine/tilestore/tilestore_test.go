package tilestore

import (
	"testing"

	"github.com/Carmen-Shannon/tilecanvas/engine/slotalloc"
)

type fakeAtlas struct {
	freed []slotalloc.TileKey
}

func (f *fakeAtlas) FreeTile(tileKey slotalloc.TileKey) {
	f.freed = append(f.freed, tileKey)
}

func tk(img, lod int) slotalloc.TileKey {
	return slotalloc.TileKey{ImageID: img, LOD: lod}
}

func TestHasGetSet(t *testing.T) {
	s := New()
	if s.Has(1, 0) {
		t.Fatalf("expected no entry before Set")
	}
	instances := []TileInstance{{WorldX: 1}}
	keys := []slotalloc.TileKey{tk(1, 0)}
	s.Set(1, 0, instances, keys)
	if !s.Has(1, 0) {
		t.Fatalf("expected entry after Set")
	}
	gotI, gotK, ok := s.Get(1, 0)
	if !ok || len(gotI) != 1 || len(gotK) != 1 {
		t.Fatalf("unexpected Get result: %v %v %v", gotI, gotK, ok)
	}
}

func TestLoadingLifecycle(t *testing.T) {
	s := New()
	if s.IsLoading(1, 0) {
		t.Fatalf("expected not loading initially")
	}
	s.SetLoading(1, 0)
	if !s.IsLoading(1, 0) {
		t.Fatalf("expected loading after SetLoading")
	}
	s.ClearLoading(1, 0)
	if s.IsLoading(1, 0) {
		t.Fatalf("expected not loading after ClearLoading")
	}
}

func TestRequestedLODDefaultsToZero(t *testing.T) {
	s := New()
	if got := s.GetRequestedLOD(5); got != 0 {
		t.Fatalf("expected default requested lod 0, got %d", got)
	}
	s.SetRequestedLOD(5, 3)
	if got := s.GetRequestedLOD(5); got != 3 {
		t.Fatalf("expected requested lod 3, got %d", got)
	}
}

func TestShouldPrioritize(t *testing.T) {
	s := New()
	s.SetRequestedLOD(1, 2)
	if !s.ShouldPrioritize(1, 2) {
		t.Fatalf("expected lod equal to requested to prioritize")
	}
	if !s.ShouldPrioritize(1, 3) {
		t.Fatalf("expected lod above requested to prioritize")
	}
	if s.ShouldPrioritize(1, 1) {
		t.Fatalf("expected lod below requested to not prioritize")
	}
}

func TestBestAvailableLODPrefersLower(t *testing.T) {
	s := New()
	s.Set(1, 0, nil, nil)
	s.Set(1, 3, nil, nil)
	if got := s.BestAvailableLOD(1, 2, 4); got != 0 {
		t.Fatalf("expected to prefer lower fallback 0, got %d", got)
	}
}

func TestBestAvailableLODFallsUpWhenNoLower(t *testing.T) {
	s := New()
	s.Set(1, 3, nil, nil)
	if got := s.BestAvailableLOD(1, 1, 4); got != 3 {
		t.Fatalf("expected to fall up to 3, got %d", got)
	}
}

func TestBestAvailableLODNoneCached(t *testing.T) {
	s := New()
	if got := s.BestAvailableLOD(1, 2, 4); got != -1 {
		t.Fatalf("expected -1 for uncached image, got %d", got)
	}
}

// Eviction priority: image A off-screen at a stale lod (pri 0), image B
// off-screen at its target lod (pri 1); requesting one slot free evicts
// A first, B survives.
func TestEvictionPriorityOrder(t *testing.T) {
	s := New()
	s.Set(1, 0, nil, []slotalloc.TileKey{tk(1, 0)}) // A, off-screen, stale (target lod is 2)
	s.SetRequestedLOD(1, 2)
	s.Set(2, 1, nil, []slotalloc.TileKey{tk(2, 1)}) // B, off-screen, at its target lod 1
	s.SetRequestedLOD(2, 1)

	atlas := &fakeAtlas{}
	free := s.EvictStale(map[ImageLOD]struct{}{}, atlas, map[int]struct{}{}, 0, 1)

	if free < 1 {
		t.Fatalf("expected at least 1 free slot, got %d", free)
	}
	if s.Has(1, 0) {
		t.Fatalf("expected stale entry A to be evicted")
	}
	if !s.Has(2, 1) {
		t.Fatalf("expected target-lod entry B to survive")
	}
}

// On-screen fallback preservation: image rendered at LOD 2 with a cached
// LOD 0 fallback; eviction demanding one slot prefers evicting an
// off-screen target-lod entry of another image before the on-screen
// fallback (priority 2).
func TestOnScreenFallbackPreserved(t *testing.T) {
	s := New()
	// Image 1: on-screen, rendered at lod 2, with an unrendered lod 0 fallback.
	s.Set(1, 2, nil, []slotalloc.TileKey{tk(1, 2)})
	s.Set(1, 0, nil, []slotalloc.TileKey{tk(1, 0)})
	s.SetRequestedLOD(1, 2)

	// Image 2: off-screen, at its target lod.
	s.Set(2, 1, nil, []slotalloc.TileKey{tk(2, 1)})
	s.SetRequestedLOD(2, 1)

	rendered := map[ImageLOD]struct{}{{ImageID: 1, LOD: 2}: {}}
	visible := map[int]struct{}{1: {}}

	atlas := &fakeAtlas{}
	s.EvictStale(rendered, atlas, visible, 0, 1)

	if !s.Has(1, 0) {
		t.Fatalf("expected on-screen fallback to survive eviction")
	}
	if s.Has(2, 1) {
		t.Fatalf("expected off-screen target-lod entry to be evicted first")
	}
}

func TestEvictStaleSkipsRenderedAndLoading(t *testing.T) {
	s := New()
	s.Set(1, 0, nil, []slotalloc.TileKey{tk(1, 0)})
	s.Set(2, 0, nil, []slotalloc.TileKey{tk(2, 0)})
	s.SetLoading(2, 0)

	rendered := map[ImageLOD]struct{}{{ImageID: 1, LOD: 0}: {}}
	atlas := &fakeAtlas{}
	free := s.EvictStale(rendered, atlas, map[int]struct{}{}, 0, 10)

	if free != 0 {
		t.Fatalf("expected no slots freed when all candidates excluded, got %d", free)
	}
	if !s.Has(1, 0) || !s.Has(2, 0) {
		t.Fatalf("expected both entries to survive")
	}
}
