package atlas

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/tilecanvas/engine/slotalloc"
)

type fakeBackend struct {
	ready      bool
	uploads    int
	lastWrite  []byte
	writeCalls int
	uploadErr  error
}

func (f *fakeBackend) Ready() bool { return f.ready }

func (f *fakeBackend) UploadTile(layer, pxX, pxY, tileSize int, pixels []byte) error {
	f.uploads++
	return f.uploadErr
}

func (f *fakeBackend) WriteInstances(data []byte) error {
	f.writeCalls++
	f.lastWrite = data
	return nil
}

func tk(img, lod int) slotalloc.TileKey {
	return slotalloc.TileKey{ImageID: img, LOD: lod}
}

func TestUploadTileDefersWithoutReadyBackend(t *testing.T) {
	backend := &fakeBackend{ready: false}
	m := New(1, 256, 64, backend)

	bitmap := make([]byte, 64*64*4)
	if _, err := m.UploadTile(tk(1, 0), bitmap); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backend.uploads != 0 {
		t.Fatalf("expected upload to be deferred, got %d uploads", backend.uploads)
	}

	backend.ready = true
	if err := m.FlushPending(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backend.uploads != 1 {
		t.Fatalf("expected pending upload to flush, got %d uploads", backend.uploads)
	}
}

func TestUploadTileImmediateWhenReady(t *testing.T) {
	backend := &fakeBackend{ready: true}
	m := New(1, 256, 64, backend)

	bitmap := make([]byte, 64*64*4)
	if _, err := m.UploadTile(tk(1, 0), bitmap); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backend.uploads != 1 {
		t.Fatalf("expected immediate upload, got %d", backend.uploads)
	}
}

func TestUploadTileAtlasFull(t *testing.T) {
	backend := &fakeBackend{ready: true}
	m := New(1, 64, 64, backend) // 1x1 grid, capacity 1

	if _, err := m.UploadTile(tk(1, 0), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.UploadTile(tk(2, 0), nil); err != slotalloc.ErrAtlasFull {
		t.Fatalf("expected ErrAtlasFull, got %v", err)
	}
}

func TestUploadTileFreesSlotOnBackendError(t *testing.T) {
	backend := &fakeBackend{ready: true, uploadErr: errors.New("write failed")}
	m := New(1, 64, 64, backend) // 1x1 grid, capacity 1

	bitmap := make([]byte, 64*64*4)
	if _, err := m.UploadTile(tk(1, 0), bitmap); err == nil {
		t.Fatalf("expected backend error to propagate")
	}
	if got := m.UsedSlotCount(); got != 0 {
		t.Fatalf("expected the failed upload's slot to be freed, got %d used slots", got)
	}
	if got := m.TotalSlots(); got != 1 {
		t.Fatalf("expected total capacity unchanged, got %d", got)
	}

	// The freed slot must be immediately reusable, not left half-allocated.
	backend.uploadErr = nil
	if _, err := m.UploadTile(tk(2, 0), bitmap); err != nil {
		t.Fatalf("expected the retried upload into the freed slot to succeed, got %v", err)
	}
	if got := m.UsedSlotCount(); got != 1 {
		t.Fatalf("expected 1 used slot after the retry succeeds, got %d", got)
	}
}

func TestFreeTileReleasesSlot(t *testing.T) {
	backend := &fakeBackend{ready: true}
	m := New(1, 64, 64, backend)
	m.UploadTile(tk(1, 0), nil)
	if m.UsedSlotCount() != 1 {
		t.Fatalf("expected 1 used slot")
	}
	m.FreeTile(tk(1, 0))
	if m.UsedSlotCount() != 0 {
		t.Fatalf("expected 0 used slots after free")
	}
}

func TestAddInstanceWithZNilSlot(t *testing.T) {
	m := New(1, 256, 64, &fakeBackend{})
	if got := m.AddInstanceWithZ(nil, 0, 0, 0, 1, 1, 0); got != -1 {
		t.Fatalf("expected -1 for nil slot, got %d", got)
	}
}

func TestAddInstanceWithZAppendsAndMarksDirty(t *testing.T) {
	backend := &fakeBackend{ready: true}
	m := New(1, 256, 64, backend)
	slot, _ := m.UploadTile(tk(1, 0), nil)

	idx := m.AddInstanceWithZ(&slot, 1, 2, 0, 1, 1, 0)
	if idx != 0 {
		t.Fatalf("expected first instance index 0, got %d", idx)
	}
	if m.InstanceCount() != 1 {
		t.Fatalf("expected 1 instance, got %d", m.InstanceCount())
	}

	if err := m.Update(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backend.writeCalls != 1 {
		t.Fatalf("expected Update to flush to backend, got %d writes", backend.writeCalls)
	}
}

func TestClearInstances(t *testing.T) {
	backend := &fakeBackend{ready: true}
	m := New(1, 256, 64, backend)
	slot, _ := m.UploadTile(tk(1, 0), nil)
	m.AddInstanceWithZ(&slot, 0, 0, 0, 1, 1, 0)
	m.ClearInstances()
	if m.InstanceCount() != 0 {
		t.Fatalf("expected 0 instances after clear, got %d", m.InstanceCount())
	}
}

func TestUpdateNoopWhenNotDirty(t *testing.T) {
	backend := &fakeBackend{ready: true}
	m := New(1, 256, 64, backend)
	m.Update()
	if backend.writeCalls != 0 {
		t.Fatalf("expected no write when not dirty, got %d", backend.writeCalls)
	}
}
