// Package decoder implements the off-thread tile decoder pool: a fixed
// set of workers that fetch an image and decode it into fixed-size tile
// bitmaps at a requested LOD, dispatched by a cancellable priority
// queue layered over github.com/Carmen-Shannon/automation's worker pool.
package decoder

import (
	"bytes"
	"container/heap"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	imagestd "image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"

	"github.com/Carmen-Shannon/automation/tools/worker"
	ximagedraw "golang.org/x/image/draw"
)

// ErrCancelled is the distinguished error delivered to a future whose
// queued-but-not-started job was rejected by CancelPending.
var ErrCancelled = errors.New("decoder: cancelled")

// ErrDisposed is the distinguished error delivered to every queued job
// when Dispose is called.
var ErrDisposed = errors.New("decoder: disposed")

// DecodeError wraps a network or image-decoding failure. The pair that
// produced it is not cached; the frame coordinator re-attempts on a
// later frame if the pair is still demanded.
type DecodeError struct {
	Message string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoder: %s", e.Message)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// TileInfo describes one decoded tile's source pixel rectangle within
// the full image.
type TileInfo struct {
	TileX, TileY   int
	SrcX, SrcY     int
	SrcW, SrcH     int
}

// Result is a completed decode: per-LOD tile grid geometry plus one
// RGBA8 bitmap per tile, y-flipped for GPU upload convention.
type Result struct {
	ImageID       int
	LOD           int
	ImageW, ImageH int
	WorldW, WorldH float64
	TileWorldSize float64
	TilesX, TilesY int
	PerTileInfo   []TileInfo
	Bitmaps       [][]byte
}

// Request is the inbound worker message: fetch URL, decode at LOD, size
// the image to worldSize world units along its wider axis, preserving
// aspect ratio for the other axis. Priority is a real number; higher is
// dispatched first. Callers encode LOD as the integer part and a
// tiebreak (inverse distance to camera center) as the fractional part.
type Request struct {
	URL       string
	ImageID   int
	LOD       int
	WorldSize float64
	Priority  float64
}

// Future represents a single dispatched job's eventual outcome. Only a
// "done" or "error" outbound message completes it — exactly one of
// Result/error is meaningful once Wait returns.
type Future struct {
	done   chan struct{}
	result Result
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Wait blocks until the job completes, succeeds, is cancelled, or the
// pool is disposed.
func (f *Future) Wait() (Result, error) {
	<-f.done
	return f.result, f.err
}

// Done returns a channel closed when the future completes, for
// select-based polling from the frame coordinator's frame prologue.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Peek returns the future's result without blocking, once Done is
// closed; callers must select on Done first.
func (f *Future) Peek() (Result, error) {
	return f.result, f.err
}

func (f *Future) complete(r Result, err error) {
	f.result = r
	f.err = err
	close(f.done)
}

type job struct {
	id    int
	req   Request
	future *Future
	index int // heap index, maintained by jobHeap
}

// Pool is a fixed-capacity pool of decode workers fed by a priority
// queue. At most poolSize jobs run concurrently; the rest wait in the
// heap until a worker frees up, at which point the highest-priority
// pending job is dispatched next, regardless of arrival order.
type Pool struct {
	mu       sync.Mutex
	pending  jobHeap
	byImage  map[int][]*job
	active   int
	poolSize int
	disposed bool
	nextID   int

	tileSize      int
	baseWorldSize float64

	wp         worker.DynamicWorkerPool
	httpClient *http.Client
}

// New creates a Pool with the given worker count, tile size, and base
// world size (used to compute tile_world_size = baseWorldSize / 2^lod).
// httpClient may be nil to use http.DefaultClient.
func New(poolSize, tileSize int, baseWorldSize float64, httpClient *http.Client) *Pool {
	if poolSize <= 0 {
		poolSize = 4
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Pool{
		byImage:       make(map[int][]*job),
		poolSize:      poolSize,
		tileSize:      tileSize,
		baseWorldSize: baseWorldSize,
		wp:            worker.NewDynamicWorkerPool(poolSize, 256, 30*time.Second),
		httpClient:    httpClient,
	}
}

// LoadImageTiles enqueues a fetch+decode job and returns a future for
// its eventual result. Higher priority jobs are dispatched first;
// within equal priority, arrival order is preserved (jobHeap breaks
// ties by job id, which increases with each enqueue, since Go's
// container/heap does not itself keep FIFO order among equal keys).
func (p *Pool) LoadImageTiles(req Request) *Future {
	f := newFuture()

	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		f.complete(Result{}, ErrDisposed)
		return f
	}
	id := p.nextID
	p.nextID++
	j := &job{id: id, req: req, future: f}
	heap.Push(&p.pending, j)
	p.byImage[req.ImageID] = append(p.byImage[req.ImageID], j)
	p.mu.Unlock()

	p.dispatch()
	return f
}

// CancelPending rejects queued-but-not-started jobs for imageID whose
// LOD is strictly below belowLOD, completing their futures with
// ErrCancelled. In-flight jobs are not interrupted.
func (p *Pool) CancelPending(imageID, belowLOD int) {
	p.mu.Lock()
	jobs := p.byImage[imageID]
	if len(jobs) == 0 {
		p.mu.Unlock()
		return
	}
	var remain []*job
	var cancelled []*job
	for _, j := range jobs {
		if j.req.LOD < belowLOD {
			cancelled = append(cancelled, j)
		} else {
			remain = append(remain, j)
		}
	}
	if len(remain) == 0 {
		delete(p.byImage, imageID)
	} else {
		p.byImage[imageID] = remain
	}
	for _, j := range cancelled {
		if j.index >= 0 {
			heap.Remove(&p.pending, j.index)
		}
	}
	p.mu.Unlock()

	for _, j := range cancelled {
		j.future.complete(Result{}, ErrCancelled)
	}
}

// Dispose rejects all queued jobs as ErrDisposed. Jobs already
// dispatched to a worker run to completion; Dispose does not interrupt
// them, since this pool only tears down its own queue and lets the
// underlying automation worker pool's in-flight tasks finish naturally.
func (p *Pool) Dispose() {
	p.mu.Lock()
	p.disposed = true
	drained := make([]*job, 0, len(p.pending))
	for p.pending.Len() > 0 {
		drained = append(drained, heap.Pop(&p.pending).(*job))
	}
	p.byImage = make(map[int][]*job)
	p.mu.Unlock()

	for _, j := range drained {
		j.future.complete(Result{}, ErrDisposed)
	}
}

// dispatch submits as many pending jobs as there are free worker slots,
// each as one automation Task, always pulling the current
// highest-priority job off the heap first.
func (p *Pool) dispatch() {
	for {
		p.mu.Lock()
		if p.disposed || p.active >= p.poolSize || p.pending.Len() == 0 {
			p.mu.Unlock()
			return
		}
		j := heap.Pop(&p.pending).(*job)
		p.removeFromByImageLocked(j)
		p.active++
		p.mu.Unlock()

		current := j
		p.wp.SubmitTask(worker.Task{
			ID: current.id,
			Do: func() (any, error) {
				p.runJob(current)
				return nil, nil
			},
		})
	}
}

func (p *Pool) removeFromByImageLocked(target *job) {
	jobs := p.byImage[target.req.ImageID]
	for i, j := range jobs {
		if j == target {
			jobs = append(jobs[:i], jobs[i+1:]...)
			break
		}
	}
	if len(jobs) == 0 {
		delete(p.byImage, target.req.ImageID)
	} else {
		p.byImage[target.req.ImageID] = jobs
	}
}

func (p *Pool) runJob(j *job) {
	defer func() {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
		p.dispatch()
	}()

	result, err := p.decode(j.req)
	j.future.complete(result, err)
}

// decode performs the three worker steps from spec.md §4.5: fetch
// bytes, read pixel dimensions, compute the per-LOD tile grid and
// produce resized, y-flipped tile bitmaps.
func (p *Pool) decode(req Request) (Result, error) {
	raw, err := p.fetch(req.URL)
	if err != nil {
		return Result{}, &DecodeError{Message: "fetch failed: " + err.Error(), Err: err}
	}

	img, _, err := imagestd.Decode(bytes.NewReader(raw))
	if err != nil {
		return Result{}, &DecodeError{Message: "image decode failed: " + err.Error(), Err: err}
	}

	bounds := img.Bounds()
	imageW, imageH := bounds.Dx(), bounds.Dy()
	if imageW == 0 || imageH == 0 {
		return Result{}, &DecodeError{Message: "image has zero dimension"}
	}

	worldSize := req.WorldSize
	if worldSize <= 0 {
		worldSize = p.baseWorldSize
	}
	var worldW, worldH float64
	if imageW >= imageH {
		worldW = worldSize
		worldH = worldSize * float64(imageH) / float64(imageW)
	} else {
		worldH = worldSize
		worldW = worldSize * float64(imageW) / float64(imageH)
	}

	tileWorldSize := p.baseWorldSize / math.Pow(2, float64(req.LOD))
	tilesX := int(math.Ceil(worldW / tileWorldSize))
	tilesY := int(math.Ceil(worldH / tileWorldSize))
	if tilesX < 1 {
		tilesX = 1
	}
	if tilesY < 1 {
		tilesY = 1
	}

	pxPerWorldX := float64(imageW) / worldW
	pxPerWorldY := float64(imageH) / worldH

	infos := make([]TileInfo, 0, tilesX*tilesY)
	bitmaps := make([][]byte, 0, tilesX*tilesY)

	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			srcX0 := int(float64(tx) * tileWorldSize * pxPerWorldX)
			srcY0 := int(float64(ty) * tileWorldSize * pxPerWorldY)
			srcX1 := int(math.Min(float64(imageW), float64(tx+1)*tileWorldSize*pxPerWorldX))
			srcY1 := int(math.Min(float64(imageH), float64(ty+1)*tileWorldSize*pxPerWorldY))
			if srcX1 <= srcX0 {
				srcX1 = srcX0 + 1
			}
			if srcY1 <= srcY0 {
				srcY1 = srcY0 + 1
			}

			rect := imagestd.Rect(
				bounds.Min.X+srcX0, bounds.Min.Y+srcY0,
				bounds.Min.X+srcX1, bounds.Min.Y+srcY1,
			)
			bitmaps = append(bitmaps, p.resizeTile(img, rect))
			infos = append(infos, TileInfo{
				TileX: tx, TileY: ty,
				SrcX: srcX0, SrcY: srcY0,
				SrcW: srcX1 - srcX0, SrcH: srcY1 - srcY0,
			})
		}
	}

	return Result{
		ImageID:       req.ImageID,
		LOD:           req.LOD,
		ImageW:        imageW,
		ImageH:        imageH,
		WorldW:        worldW,
		WorldH:        worldH,
		TileWorldSize: tileWorldSize,
		TilesX:        tilesX,
		TilesY:        tilesY,
		PerTileInfo:   infos,
		Bitmaps:       bitmaps,
	}, nil
}

// resizeTile resamples the source rectangle into a tileSize x tileSize
// RGBA8 bitmap with straight (non-premultiplied) alpha and y-flipped
// rows, matching the GPU upload convention. image.RGBA stores
// premultiplied colour, so each partly transparent pixel is divided
// back by its alpha after the flip.
func (p *Pool) resizeTile(src imagestd.Image, srcRect imagestd.Rectangle) []byte {
	dst := imagestd.NewRGBA(imagestd.Rect(0, 0, p.tileSize, p.tileSize))
	ximagedraw.CatmullRom.Scale(dst, dst.Bounds(), src, srcRect, draw.Src, nil)
	out := flipVertical(dst)
	for i := 0; i+3 < len(out); i += 4 {
		if a := uint32(out[i+3]); a != 0 && a != 255 {
			for k := 0; k < 3; k++ {
				out[i+k] = uint8(uint32(out[i+k]) * 255 / a)
			}
		}
	}
	return out
}

func flipVertical(img *imagestd.RGBA) []byte {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	rowBytes := w * 4
	out := make([]byte, rowBytes*h)
	for y := 0; y < h; y++ {
		srcOff := y * img.Stride
		dstOff := (h - 1 - y) * rowBytes
		copy(out[dstOff:dstOff+rowBytes], img.Pix[srcOff:srcOff+rowBytes])
	}
	return out
}

func (p *Pool) fetch(url string) ([]byte, error) {
	resp, err := p.httpClient.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}
