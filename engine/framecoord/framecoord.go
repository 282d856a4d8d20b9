// Package framecoord implements the frame coordinator (C7): the
// per-frame driver that consults the LOD selector and visibility
// oracle, issues loads via the decoder pool and atlas manager, evicts
// via the tile data store, and rebuilds the atlas's draw list.
//
// The coordinator runs entirely on the caller's thread. It never spawns
// a goroutine itself; engine/decoder is the only component in this
// module that does, and all of its results are applied here,
// synchronously, in Tick's frame prologue — the single-thread mutation
// invariant from spec.md §5.
package framecoord

import (
	"errors"
	"log"
	"math"

	"github.com/Carmen-Shannon/tilecanvas/common"
	"github.com/Carmen-Shannon/tilecanvas/engine/atlas"
	"github.com/Carmen-Shannon/tilecanvas/engine/camera"
	"github.com/Carmen-Shannon/tilecanvas/engine/decoder"
	"github.com/Carmen-Shannon/tilecanvas/engine/imagelayout"
	"github.com/Carmen-Shannon/tilecanvas/engine/lod"
	"github.com/Carmen-Shannon/tilecanvas/engine/slotalloc"
	"github.com/Carmen-Shannon/tilecanvas/engine/tilestore"
	"github.com/Carmen-Shannon/tilecanvas/engine/visibility"
)

// Config holds the tunables from spec.md §6's configuration constants.
type Config struct {
	TileSize         float64
	BaseWorldSize    float64
	MaxLOD           int
	TargetFreeSlots  int
	DevicePixelRatio float64
}

// DefaultConfig returns the constants named in spec.md §6.
func DefaultConfig() Config {
	return Config{
		TileSize:         256,
		BaseWorldSize:    4,
		MaxLOD:           4,
		TargetFreeSlots:  512,
		DevicePixelRatio: 1,
	}
}

// Coordinator is the frame coordinator (C7).
type Coordinator struct {
	cfg Config

	oracle *visibility.Oracle
	layout imagelayout.Provider
	store  *tilestore.Store
	am     *atlas.Manager
	pool   *decoder.Pool
	cam    camera.Camera

	imageURL map[int]string

	lastVisible    []int
	lastTargetLOD  map[int]int
	renderedSet    map[tilestore.ImageLOD]struct{}
	pendingLoads   map[tilestore.ImageLOD]*decoder.Future
	rebuildPending bool
}

// New creates a Coordinator wiring together the visibility oracle,
// layout provider, tile data store, atlas manager, decoder pool, and
// camera it drives each frame.
func New(cfg Config, oracle *visibility.Oracle, layout imagelayout.Provider, store *tilestore.Store, am *atlas.Manager, pool *decoder.Pool, cam camera.Camera) *Coordinator {
	return &Coordinator{
		cfg:           cfg,
		oracle:        oracle,
		layout:        layout,
		store:         store,
		am:            am,
		pool:          pool,
		cam:           cam,
		imageURL:      make(map[int]string),
		lastTargetLOD: make(map[int]int),
		renderedSet:   make(map[tilestore.ImageLOD]struct{}),
		pendingLoads:  make(map[tilestore.ImageLOD]*decoder.Future),
	}
}

// RegisterImage tells the coordinator where to fetch imageID's pixels
// from and seeds the visibility oracle's pose data for it.
func (c *Coordinator) RegisterImage(imageID int, url string) {
	c.imageURL[imageID] = url
	pose := c.layout.Pose(imageID)
	c.oracle.SetImage(imageID, common.Vec2{X: pose.X, Y: pose.Y}, c.cfg.BaseWorldSize, pose.Scale, pose.Rotation)
}

// Tick drives one frame: poll completed loads, query visibility, select
// LODs, evict, dispatch new loads, and rebuild the draw list if needed.
// This is spec.md §4.7's per-frame data flow.
func (c *Coordinator) Tick() {
	c.applyCompletedLoads()

	visible := c.oracle.VisibleImages(c.cam)
	if !sameIDs(visible, c.lastVisible) {
		c.rebuildPending = true
	}
	visibleSet := make(map[int]struct{}, len(visible))
	for _, id := range visible {
		visibleSet[id] = struct{}{}
	}

	targetLOD := make(map[int]int, len(visible))
	screenPxPerUnit := c.cam.Zoom() * c.cfg.DevicePixelRatio
	for _, id := range visible {
		pose := c.layout.Pose(id)
		t := lod.SelectImageLOD(screenPxPerUnit, c.cfg.TileSize, c.cfg.BaseWorldSize, c.cfg.MaxLOD, 0, pose.Scale)
		targetLOD[id] = t

		prev, had := c.lastTargetLOD[id]
		if !had || prev != t {
			c.rebuildPending = true
		}
		if had && t > prev {
			c.pool.CancelPending(id, t)
		}
		c.store.SetRequestedLOD(id, t)
	}

	// Baseline reclaim: run every frame so eviction makes forward
	// progress as the viewport changes, not only when a load is short
	// on slots (step 5 below handles that shortage case with a larger
	// target). This resolves spec.md §4.7 step 3's "evict stale entries
	// ... for images no longer in visible" as a per-frame maintenance
	// pass rather than a one-off at visibility-change time. renderedSet
	// is only refreshed by rebuild at the end of Tick, so entries applied
	// this frame by applyCompletedLoads are not in it yet; every LOD of
	// every visible image is therefore added to the protected set here,
	// and this pass reclaims only entries of images not in visible. The
	// shortage pass below may also take on-screen, non-rendered entries.
	guard := make(map[tilestore.ImageLOD]struct{}, len(c.renderedSet)+len(visible)*(c.cfg.MaxLOD+1))
	for k := range c.renderedSet {
		guard[k] = struct{}{}
	}
	for _, id := range visible {
		for l := 0; l <= c.cfg.MaxLOD; l++ {
			guard[tilestore.ImageLOD{ImageID: id, LOD: l}] = struct{}{}
		}
	}
	freeSlots := c.am.TotalSlots() - c.am.UsedSlotCount()
	freeSlots = c.store.EvictStale(guard, c.am, visibleSet, freeSlots, c.cfg.TargetFreeSlots)

	type loadRequest struct {
		imageID, lod int
	}
	var toLoad []loadRequest
	for _, id := range visible {
		t := targetLOD[id]
		if !c.store.Has(id, t) && !c.store.IsLoading(id, t) {
			toLoad = append(toLoad, loadRequest{imageID: id, lod: t})
		}
	}

	if len(toLoad) > 0 {
		countsByLOD := make(map[int]int)
		for _, r := range toLoad {
			countsByLOD[r.lod]++
		}
		needed := 0
		for l, count := range countsByLOD {
			perImage := int(math.Min(math.Pow(4, float64(l)), 64))
			needed += perImage * count
		}
		if needed > freeSlots {
			c.store.EvictStale(c.renderedSet, c.am, visibleSet, freeSlots, needed)
		}
	}

	for _, r := range toLoad {
		c.dispatchLoad(r.imageID, r.lod)
	}

	if c.rebuildPending {
		c.rebuild(visible, targetLOD)
		c.rebuildPending = false
	}

	c.lastVisible = visible
	c.lastTargetLOD = targetLOD
}

func (c *Coordinator) dispatchLoad(imageID, lodLevel int) {
	key := tilestore.ImageLOD{ImageID: imageID, LOD: lodLevel}
	c.store.SetLoading(imageID, lodLevel)

	pose := c.layout.Pose(imageID)
	dist := math.Hypot(pose.X-camX(c.cam), pose.Y-camY(c.cam))
	priority := float64(lodLevel) + 1/(1+dist)

	future := c.pool.LoadImageTiles(decoder.Request{
		URL:       c.imageURL[imageID],
		ImageID:   imageID,
		LOD:       lodLevel,
		WorldSize: c.cfg.BaseWorldSize * pose.Scale,
		Priority:  priority,
	})
	c.pendingLoads[key] = future
}

func camX(cam camera.Camera) float64 { x, _ := cam.Position(); return x }
func camY(cam camera.Camera) float64 { _, y := cam.Position(); return y }

// applyCompletedLoads drains every decoder future that has finished
// since the last Tick and applies its result synchronously: a tile
// processing pass, an atlas upload per tile, and either a store Set
// (on full or prioritized-but-stale success) or a rollback (on partial
// failure).
func (c *Coordinator) applyCompletedLoads() {
	for key, future := range c.pendingLoads {
		select {
		case <-future.Done():
		default:
			continue
		}
		delete(c.pendingLoads, key)
		c.store.ClearLoading(key.ImageID, key.LOD)

		result, err := future.Peek()
		if err != nil {
			if errors.Is(err, decoder.ErrCancelled) || errors.Is(err, decoder.ErrDisposed) {
				continue
			}
			log.Printf("[FrameCoordinator] decode error for image %d lod %d: %v", key.ImageID, key.LOD, err)
			continue
		}

		c.applyDecodeResult(key.ImageID, key.LOD, result)
	}
}

func (c *Coordinator) applyDecodeResult(imageID, lodLevel int, result decoder.Result) {
	pose := c.layout.Pose(imageID)

	instances := make([]tilestore.TileInstance, 0, len(result.Bitmaps))
	tileKeys := make([]slotalloc.TileKey, 0, len(result.Bitmaps))
	partial := false

	for i, info := range result.PerTileInfo {
		tk := slotalloc.TileKey{ImageID: imageID, LOD: lodLevel, TileX: info.TileX, TileY: info.TileY}
		slot, err := c.am.UploadTile(tk, result.Bitmaps[i])
		if err != nil {
			partial = true
			continue
		}

		tileWorld := result.TileWorldSize * pose.Scale
		local := common.Vec2{
			X: float64(info.TileX)*tileWorld + tileWorld/2,
			Y: -(float64(info.TileY)*tileWorld + tileWorld/2),
		}
		rotated := common.RotatePoint(local, pose.Rotation)

		instances = append(instances, tilestore.TileInstance{
			Slot:       slot,
			WorldX:     pose.X + rotated.X,
			WorldY:     pose.Y + rotated.Y,
			WorldZ:     pose.Z,
			TileWorldW: tileWorld,
			TileWorldH: tileWorld,
			Rotation:   pose.Rotation,
		})
		tileKeys = append(tileKeys, tk)
	}

	if partial {
		for _, tk := range tileKeys {
			c.am.FreeTile(tk)
		}
		c.rebuildPending = true // retry next frame
		return
	}

	c.store.Set(imageID, lodLevel, instances, tileKeys)

	// Open question, resolved per spec.md §9: a result that arrives
	// after the requested LOD has since increased is still cached (for
	// eviction to reap later) but does not itself trigger a rebuild.
	if c.store.ShouldPrioritize(imageID, lodLevel) {
		c.rebuildPending = true
	}
}

// rebuild clears the atlas's instance list and repopulates it from each
// visible image's best-available cached LOD, recording the new
// rendered set.
func (c *Coordinator) rebuild(visible []int, targetLOD map[int]int) {
	c.am.ClearInstances()
	newRendered := make(map[tilestore.ImageLOD]struct{}, len(visible))

	for _, id := range visible {
		avail := c.store.BestAvailableLOD(id, targetLOD[id], c.cfg.MaxLOD)
		if avail == -1 {
			continue
		}
		instances, _, _ := c.store.Get(id, avail)
		for i := range instances {
			inst := instances[i]
			c.am.AddInstanceWithZ(&inst.Slot, inst.WorldX, inst.WorldY, inst.WorldZ, inst.TileWorldW, inst.TileWorldH, inst.Rotation)
		}
		newRendered[tilestore.ImageLOD{ImageID: id, LOD: avail}] = struct{}{}
	}

	c.renderedSet = newRendered
	if err := c.am.Update(); err != nil {
		log.Printf("[FrameCoordinator] atlas update failed: %v", err)
	}
}

// RenderedSet returns a copy of the (image, lod) pairs drawn in the
// last rebuild, for tests and telemetry.
func (c *Coordinator) RenderedSet() map[tilestore.ImageLOD]struct{} {
	cp := make(map[tilestore.ImageLOD]struct{}, len(c.renderedSet))
	for k := range c.renderedSet {
		cp[k] = struct{}{}
	}
	return cp
}

func sameIDs(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
