// Package lod provides pure, stateless functions mapping screen pixel
// density and per-image scale to an integer level-of-detail.
package lod

import "math"

// TilePixelDensity returns the pixel density, in screen pixels per world
// unit, that a tile at lod provides when rendered at native resolution.
func TilePixelDensity(lod int, tileSize, baseWorldSize float64) float64 {
	return tileSize * math.Pow(2, float64(lod)) / baseWorldSize
}

// SelectLOD returns the lowest LOD whose tile density equals or exceeds
// screenPxPerUnit, capped at maxLOD. Equality at a density boundary
// resolves to the lower LOD.
func SelectLOD(screenPxPerUnit, tileSize, baseWorldSize float64, maxLOD int) int {
	if screenPxPerUnit <= 0 {
		return 0
	}
	ratio := screenPxPerUnit / (tileSize / baseWorldSize)
	if ratio <= 1 {
		return 0
	}
	lod := int(math.Ceil(math.Log2(ratio)))
	if lod > maxLOD {
		return maxLOD
	}
	return lod
}

// MaxUsefulLOD returns the highest LOD that does not upscale source
// pixels: 0 if imagePixelSize <= tileSize, else floor(log2(source/tile)).
func MaxUsefulLOD(imagePixelSize, tileSize float64) int {
	if imagePixelSize <= tileSize {
		return 0
	}
	return int(math.Floor(math.Log2(imagePixelSize / tileSize)))
}

// SelectImageLOD is SelectLOD adjusted for a per-image scale factor and,
// when the source pixel size is known, capped by MaxUsefulLOD so that an
// image is never upscaled beyond its native resolution.
//
// imageScale multiplies the effective screen density demanded of the
// image's own tiles: a 10x scaled image's tiles cover 10x more world
// space, so each tile's world-space pixel density is 10x lower than an
// unscaled image's at the same zoom.
//
// imagePixelSize <= 0 means the source size is unknown and no cap is
// applied.
func SelectImageLOD(screenPxPerUnit, tileSize, baseWorldSize float64, maxLOD int, imagePixelSize, imageScale float64) int {
	if imageScale <= 0 {
		imageScale = 1
	}
	demand := screenPxPerUnit * imageScale
	target := SelectLOD(demand, tileSize, baseWorldSize, maxLOD)
	if imagePixelSize > 0 {
		if cap := MaxUsefulLOD(imagePixelSize, tileSize); target > cap {
			target = cap
		}
	}
	return target
}
