// Package imagelayout supplies per-image world pose (position, rotation,
// scale) and AABB. Two realizations are provided: a uniform grid and a
// stacked layout with randomized polar offsets seeded by image ID.
package imagelayout

import (
	"math"
	"math/rand"

	"github.com/Carmen-Shannon/tilecanvas/common"
)

// Pose is an image's world placement: position, depth (for stack
// ordering), rotation about its pivot, and uniform scale.
type Pose struct {
	X, Y, Z  float64
	Rotation float64
	Scale    float64
}

// Provider exposes per-image pose and bounds. The bounds returned must
// match the extent of the tile mesh the frame coordinator's tile
// processing produces for the same pose — both use common.ImageAABB so
// what is drawn is always what is tested for visibility.
type Provider interface {
	Pose(imageID int) Pose
	Bounds(imageID int) common.AABB
}

// GridLayout places images on a uniform grid, baseSize apart plus gap,
// columns wide.
type GridLayout struct {
	columns  int
	baseSize float64
	gap      float64
}

var _ Provider = &GridLayout{}

// NewGridLayout creates a grid layout of the given column count, image
// base size, and inter-image gap, all in world units.
func NewGridLayout(columns int, baseSize, gap float64) *GridLayout {
	if columns <= 0 {
		columns = 1
	}
	return &GridLayout{columns: columns, baseSize: baseSize, gap: gap}
}

func (g *GridLayout) Pose(imageID int) Pose {
	col := imageID % g.columns
	row := imageID / g.columns
	step := g.baseSize + g.gap
	return Pose{
		X:        float64(col) * step,
		Y:        -float64(row) * step,
		Z:        0,
		Rotation: 0,
		Scale:    1,
	}
}

func (g *GridLayout) Bounds(imageID int) common.AABB {
	p := g.Pose(imageID)
	return common.ImageAABB(common.Vec2{X: p.X, Y: p.Y}, g.baseSize, p.Scale, p.Rotation)
}

// StackedLayout groups images into stacks of imagesPerStack, fanning
// each card out from its stack center with a small, per-image random
// polar offset and rotation, both seeded deterministically by image ID
// so the layout is stable across runs. Cards later in a stack are
// z-ordered above earlier ones.
type StackedLayout struct {
	imagesPerStack int
	baseSize       float64
	stacksPerRow   int
	stackSpacing   float64
	maxFanRadius   float64
	maxRotation    float64
}

var _ Provider = &StackedLayout{}

// NewStackedLayout creates a stacked layout. imagesPerStack controls
// fan density; stacksPerRow and stackSpacing lay out stack centers on a
// grid; maxFanRadius and maxRotation bound the per-card random offset
// and tilt.
func NewStackedLayout(imagesPerStack int, baseSize float64, stacksPerRow int, stackSpacing, maxFanRadius, maxRotation float64) *StackedLayout {
	if imagesPerStack <= 0 {
		imagesPerStack = 1
	}
	if stacksPerRow <= 0 {
		stacksPerRow = 1
	}
	return &StackedLayout{
		imagesPerStack: imagesPerStack,
		baseSize:       baseSize,
		stacksPerRow:   stacksPerRow,
		stackSpacing:   stackSpacing,
		maxFanRadius:   maxFanRadius,
		maxRotation:    maxRotation,
	}
}

func (l *StackedLayout) stackCenter(stackIndex int) (float64, float64) {
	col := stackIndex % l.stacksPerRow
	row := stackIndex / l.stacksPerRow
	return float64(col) * l.stackSpacing, -float64(row) * l.stackSpacing
}

func (l *StackedLayout) Pose(imageID int) Pose {
	stackIndex := imageID / l.imagesPerStack
	indexInStack := imageID % l.imagesPerStack

	cx, cy := l.stackCenter(stackIndex)

	rng := rand.New(rand.NewSource(int64(imageID)))
	fanRadius := l.maxFanRadius * float64(indexInStack) / float64(l.imagesPerStack)
	angle := rng.Float64() * 2 * math.Pi
	offsetX := fanRadius * math.Cos(angle)
	offsetY := fanRadius * math.Sin(angle)
	rotation := (rng.Float64()*2 - 1) * l.maxRotation

	return Pose{
		X:        cx + offsetX,
		Y:        cy + offsetY,
		Z:        float64(indexInStack),
		Rotation: rotation,
		Scale:    1,
	}
}

func (l *StackedLayout) Bounds(imageID int) common.AABB {
	p := l.Pose(imageID)
	return common.ImageAABB(common.Vec2{X: p.X, Y: p.Y}, l.baseSize, p.Scale, p.Rotation)
}
