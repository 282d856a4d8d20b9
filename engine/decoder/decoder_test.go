package decoder

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testServer(t *testing.T, w, h int) *httptest.Server {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode fixture png: %v", err)
	}
	data := buf.Bytes()

	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "image/png")
		rw.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLoadImageTilesDecodesGrid(t *testing.T) {
	srv := testServer(t, 512, 512)
	p := New(2, 64, 4, nil)
	defer p.Dispose()

	f := p.LoadImageTiles(Request{URL: srv.URL, ImageID: 1, LOD: 0, WorldSize: 4, Priority: 1})
	result, err := f.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ImageW != 512 || result.ImageH != 512 {
		t.Fatalf("unexpected decoded size: %dx%d", result.ImageW, result.ImageH)
	}
	if result.TilesX != 1 || result.TilesY != 1 {
		t.Fatalf("expected a single tile at lod 0, got %dx%d", result.TilesX, result.TilesY)
	}
	if len(result.Bitmaps) != 1 || len(result.Bitmaps[0]) != 64*64*4 {
		t.Fatalf("unexpected bitmap count/size: %d bitmaps", len(result.Bitmaps))
	}
}

func TestLoadImageTilesHigherLODMoreTiles(t *testing.T) {
	srv := testServer(t, 512, 512)
	p := New(2, 64, 4, nil)
	defer p.Dispose()

	f := p.LoadImageTiles(Request{URL: srv.URL, ImageID: 1, LOD: 2, WorldSize: 4, Priority: 1})
	result, err := f.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TilesX != 4 || result.TilesY != 4 {
		t.Fatalf("expected a 4x4 grid at lod 2, got %dx%d", result.TilesX, result.TilesY)
	}
}

func TestFetchErrorSurfacesAsDecodeError(t *testing.T) {
	p := New(1, 64, 4, nil)
	defer p.Dispose()

	f := p.LoadImageTiles(Request{URL: "http://127.0.0.1:1/does-not-exist", ImageID: 1, LOD: 0, WorldSize: 4, Priority: 1})
	_, err := f.Wait()
	var de *DecodeError
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !errorsAs(err, &de) {
		t.Fatalf("expected *DecodeError, got %T: %v", err, err)
	}
}

func errorsAs(err error, target **DecodeError) bool {
	de, ok := err.(*DecodeError)
	if !ok {
		return false
	}
	*target = de
	return true
}

func TestCancelPendingRejectsBelowLOD(t *testing.T) {
	srv := testServer(t, 64, 64)
	// Pool with no free workers so jobs stay queued.
	p := New(1, 64, 4, nil)
	defer p.Dispose()

	// Occupy the single worker with a slow-to-complete job by using an
	// unroutable address that will hang until the client's timeout but
	// here we just rely on queue depth: submit a blocking job first is
	// hard without control, so instead verify CancelPending affects a
	// job that has not yet been dispatched because it is lower priority
	// than one already running by queuing many low-priority jobs after
	// one high-priority job occupies the single worker.
	running := p.LoadImageTiles(Request{URL: srv.URL, ImageID: 1, LOD: 3, WorldSize: 4, Priority: 100})
	queued := p.LoadImageTiles(Request{URL: srv.URL, ImageID: 1, LOD: 0, WorldSize: 4, Priority: 1})

	p.CancelPending(1, 3)

	_, err := queued.Wait()
	if err != ErrCancelled {
		t.Fatalf("expected ErrCancelled for queued low-lod job, got %v", err)
	}

	if _, err := running.Wait(); err != nil {
		t.Fatalf("expected the already-dispatched job to still succeed, got %v", err)
	}
}

func TestDisposeRejectsQueued(t *testing.T) {
	srv := testServer(t, 64, 64)
	p := New(1, 64, 4, nil)

	running := p.LoadImageTiles(Request{URL: srv.URL, ImageID: 1, LOD: 0, WorldSize: 4, Priority: 1})
	queued := p.LoadImageTiles(Request{URL: srv.URL, ImageID: 2, LOD: 0, WorldSize: 4, Priority: 1})

	p.Dispose()

	select {
	case <-queued.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for queued job to be disposed")
	}
	_, err := queued.Peek()
	if err != ErrDisposed && err != nil {
		// The queued job may have been dispatched before Dispose ran if
		// it raced into the single worker slot; either a real result or
		// ErrDisposed is acceptable, but not an unrelated error.
		t.Fatalf("unexpected error for queued job: %v", err)
	}

	select {
	case <-running.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for running job")
	}
}
