// Package tilestore is the per-(image, LOD) data store: cached instance
// lists, load-in-flight tracking, requested-LOD bookkeeping, and the
// incremental eviction policy that reclaims atlas slots under pressure.
package tilestore

import (
	"sort"
	"sync"

	"github.com/Carmen-Shannon/tilecanvas/engine/slotalloc"
)

// TileInstance is a renderable record derived from an owning image's
// pose and a tile's local position within that image at its LOD.
type TileInstance struct {
	Slot         slotalloc.Slot
	WorldX       float64
	WorldY       float64
	WorldZ       float64
	TileWorldW   float64
	TileWorldH   float64
	Rotation     float64
}

// ImageLOD is the (image, lod) key type used for in-flight tracking.
type ImageLOD struct {
	ImageID int
	LOD     int
}

// AtlasFreer is the narrow view of the atlas manager the store needs to
// reclaim slots during eviction. Kept as a local interface rather than
// importing engine/atlas directly so C6 never points at C2's concrete
// type — it only knows tile keys and calls back to free them, per
// spec.md §9's "no cyclic ownership" guidance.
type AtlasFreer interface {
	FreeTile(tileKey slotalloc.TileKey)
}

type entry struct {
	instances []TileInstance
	tileKeys  []slotalloc.TileKey
}

// Store holds cached tile instances per (image, lod), in-flight load
// tracking, and per-image requested-LOD bookkeeping.
type Store struct {
	mu sync.Mutex

	entries      map[int]map[int]entry
	loading      map[ImageLOD]struct{}
	requestedLOD map[int]int
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		entries:      make(map[int]map[int]entry),
		loading:      make(map[ImageLOD]struct{}),
		requestedLOD: make(map[int]int),
	}
}

// Has reports whether a cached entry exists for (imageID, lod).
func (s *Store) Has(imageID, lod int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[imageID][lod]
	return ok
}

// Get returns the cached instances and tile keys for (imageID, lod).
func (s *Store) Get(imageID, lod int) ([]TileInstance, []slotalloc.TileKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[imageID][lod]
	if !ok {
		return nil, nil, false
	}
	return e.instances, e.tileKeys, true
}

// Set stores the instances and tile keys produced by a completed
// decode+upload for (imageID, lod). len(instances) must equal
// len(tileKeys); callers uphold this invariant.
func (s *Store) Set(imageID, lod int, instances []TileInstance, tileKeys []slotalloc.TileKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[imageID] == nil {
		s.entries[imageID] = make(map[int]entry)
	}
	s.entries[imageID][lod] = entry{instances: instances, tileKeys: tileKeys}
}

// IsLoading reports whether (imageID, lod) currently has a load in flight.
func (s *Store) IsLoading(imageID, lod int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.loading[ImageLOD{ImageID: imageID, LOD: lod}]
	return ok
}

// SetLoading marks (imageID, lod) as in flight.
func (s *Store) SetLoading(imageID, lod int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading[ImageLOD{ImageID: imageID, LOD: lod}] = struct{}{}
}

// ClearLoading un-marks (imageID, lod) as in flight, regardless of
// whether the load succeeded, failed, or was cancelled.
func (s *Store) ClearLoading(imageID, lod int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.loading, ImageLOD{ImageID: imageID, LOD: lod})
}

// SetRequestedLOD records the highest LOD the frame coordinator has
// asked for on imageID.
func (s *Store) SetRequestedLOD(imageID, lod int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestedLOD[imageID] = lod
}

// GetRequestedLOD returns the requested LOD for imageID, defaulting to 0.
func (s *Store) GetRequestedLOD(imageID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestedLOD[imageID]
}

// ShouldPrioritize reports whether lod is still at or above the most
// recently requested LOD for imageID; a decode result for a lod below
// the current request is stale.
func (s *Store) ShouldPrioritize(imageID, lod int) bool {
	return lod >= s.GetRequestedLOD(imageID)
}

// BestAvailableLOD scans down from target to 0 (preferring a coarser
// cached fallback over a finer one), then up from target+1 to maxLOD.
// Returns -1 if no cached LOD exists for imageID.
func (s *Store) BestAvailableLOD(imageID, target, maxLOD int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	lods, ok := s.entries[imageID]
	if !ok {
		return -1
	}
	for l := target; l >= 0; l-- {
		if _, ok := lods[l]; ok {
			return l
		}
	}
	for l := target + 1; l <= maxLOD; l++ {
		if _, ok := lods[l]; ok {
			return l
		}
	}
	return -1
}

// EvictionCandidate names one (image, lod) pair considered for eviction.
type EvictionCandidate struct {
	ImageID  int
	LOD      int
	Priority int
	tileKeys []slotalloc.TileKey
}

// EvictStale reclaims atlas slots from cached entries that are not in
// renderedSet and not currently loading, in ascending priority order
// (0 = off-screen and stale, 1 = off-screen at target LOD, 2 = on-screen
// fallback), until freeSlots reaches targetFreeSlots or candidates run
// out. freeSlots is the caller's current free-slot count; the returned
// value is freeSlots after eviction.
func (s *Store) EvictStale(
	renderedSet map[ImageLOD]struct{},
	atlasManager AtlasFreer,
	visibleImages map[int]struct{},
	freeSlots, targetFreeSlots int,
) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []EvictionCandidate
	for imageID, lods := range s.entries {
		_, onScreen := visibleImages[imageID]
		target := s.requestedLOD[imageID]
		for lod, e := range lods {
			key := ImageLOD{ImageID: imageID, LOD: lod}
			if _, rendered := renderedSet[key]; rendered {
				continue
			}
			if _, loading := s.loading[key]; loading {
				continue
			}
			var priority int
			switch {
			case !onScreen && lod != target:
				priority = 0
			case !onScreen && lod == target:
				priority = 1
			default:
				priority = 2
			}
			candidates = append(candidates, EvictionCandidate{
				ImageID:  imageID,
				LOD:      lod,
				Priority: priority,
				tileKeys: e.tileKeys,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority < candidates[j].Priority
	})

	for _, c := range candidates {
		if freeSlots >= targetFreeSlots {
			break
		}
		for _, tk := range c.tileKeys {
			atlasManager.FreeTile(tk)
		}
		freeSlots += len(c.tileKeys)
		delete(s.entries[c.ImageID], c.LOD)
		if len(s.entries[c.ImageID]) == 0 {
			delete(s.entries, c.ImageID)
		}
	}

	return freeSlots
}
