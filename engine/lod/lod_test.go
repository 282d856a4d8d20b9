package lod

import "testing"

const (
	tileSize      = 256
	baseWorldSize = 4
	maxLOD        = 4
)

// Sharpness across LOD: concrete boundary values from the spec.
func TestSelectLODBoundaries(t *testing.T) {
	cases := []struct {
		screenPx float64
		want     int
	}{
		{64, 0},
		{65, 1},
		{128, 1},
		{129, 2},
		{1024, 4},
		{5000, 4},
	}
	for _, c := range cases {
		got := SelectLOD(c.screenPx, tileSize, baseWorldSize, maxLOD)
		if got != c.want {
			t.Errorf("SelectLOD(%v) = %d, want %d", c.screenPx, got, c.want)
		}
	}
}

func TestSelectLODNonPositiveIsZero(t *testing.T) {
	if got := SelectLOD(0, tileSize, baseWorldSize, maxLOD); got != 0 {
		t.Fatalf("SelectLOD(0) = %d, want 0", got)
	}
	if got := SelectLOD(-10, tileSize, baseWorldSize, maxLOD); got != 0 {
		t.Fatalf("SelectLOD(-10) = %d, want 0", got)
	}
}

// select_lod monotonicity: zoom_a <= zoom_b => select_lod(zoom_a) <= select_lod(zoom_b).
func TestSelectLODMonotonic(t *testing.T) {
	prev := SelectLOD(1, tileSize, baseWorldSize, maxLOD)
	for zoom := 2.0; zoom <= 4096; zoom += 3.7 {
		cur := SelectLOD(zoom, tileSize, baseWorldSize, maxLOD)
		if cur < prev {
			t.Fatalf("monotonicity violated at zoom=%v: prev=%d cur=%d", zoom, prev, cur)
		}
		prev = cur
	}
}

// Sharpness: for any zoom <= tile_pixel_density(max_lod),
// tile_pixel_density(select_lod(zoom)) >= zoom.
func TestSharpness(t *testing.T) {
	cap := TilePixelDensity(maxLOD, tileSize, baseWorldSize)
	for zoom := 1.0; zoom <= cap; zoom += 17.3 {
		chosen := SelectLOD(zoom, tileSize, baseWorldSize, maxLOD)
		if density := TilePixelDensity(chosen, tileSize, baseWorldSize); density < zoom {
			t.Fatalf("zoom=%v chose lod=%d with density=%v, below zoom", zoom, chosen, density)
		}
	}
}

func TestMaxUsefulLOD(t *testing.T) {
	if got := MaxUsefulLOD(128, tileSize); got != 0 {
		t.Fatalf("MaxUsefulLOD(128) = %d, want 0", got)
	}
	if got := MaxUsefulLOD(1024, tileSize); got != 2 {
		t.Fatalf("MaxUsefulLOD(1024) = %d, want 2", got)
	}
}

// Scale compensation: select_image_lod(zoom=40, scale=10, image_size=1024) = 2
// (LOD-3 demand capped by max_useful_lod(1024)=2).
func TestSelectImageLODScaleCompensation(t *testing.T) {
	got := SelectImageLOD(40, tileSize, baseWorldSize, maxLOD, 1024, 10)
	if got != 2 {
		t.Fatalf("SelectImageLOD = %d, want 2", got)
	}
}

func TestSelectImageLODUnknownSizeUncapped(t *testing.T) {
	got := SelectImageLOD(40, tileSize, baseWorldSize, maxLOD, 0, 10)
	want := SelectLOD(400, tileSize, baseWorldSize, maxLOD)
	if got != want {
		t.Fatalf("SelectImageLOD = %d, want %d", got, want)
	}
}
