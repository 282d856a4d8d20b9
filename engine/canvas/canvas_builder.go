package canvas

import (
	"net/http"

	"github.com/Carmen-Shannon/tilecanvas/engine/framecoord"
)

// canvasConfig holds the tunables a CanvasBuilderOption can override.
type canvasConfig struct {
	AtlasLayers  int
	AtlasSize    int
	TileSize     int
	MaxInstances int

	DecoderWorkers    int
	HTTPClient        *http.Client
	VisibilityEpsilon float64

	FrameCoord framecoord.Config

	PipelineKey        string
	VertexShaderPath   string
	FragmentShaderPath string
}

func defaultCanvasConfig() canvasConfig {
	fc := framecoord.DefaultConfig()
	return canvasConfig{
		AtlasLayers:        4,
		AtlasSize:          2048,
		TileSize:           int(fc.TileSize),
		MaxInstances:       4096,
		DecoderWorkers:     4,
		VisibilityEpsilon:  0.5,
		FrameCoord:         fc,
		PipelineKey:        "tile",
		VertexShaderPath:   "assets/shaders/tile-vert.wgsl",
		FragmentShaderPath: "assets/shaders/tile-frag.wgsl",
	}
}

// CanvasBuilderOption is a functional option applied to a canvasConfig
// during NewCanvas.
type CanvasBuilderOption func(*canvasConfig)

// WithAtlas sets the atlas's layer count, per-layer size, and tile size
// in pixels, plus the fixed instance buffer capacity.
func WithAtlas(layers, atlasSize, tileSize, maxInstances int) CanvasBuilderOption {
	return func(c *canvasConfig) {
		c.AtlasLayers = layers
		c.AtlasSize = atlasSize
		c.TileSize = tileSize
		c.MaxInstances = maxInstances
		c.FrameCoord.TileSize = float64(tileSize)
	}
}

// WithDecoderWorkers sets the decoder pool's worker count.
func WithDecoderWorkers(workers int) CanvasBuilderOption {
	return func(c *canvasConfig) {
		c.DecoderWorkers = workers
	}
}

// WithHTTPClient overrides the decoder pool's HTTP client, e.g. to set a
// custom timeout or transport for image fetches.
func WithHTTPClient(client *http.Client) CanvasBuilderOption {
	return func(c *canvasConfig) {
		c.HTTPClient = client
	}
}

// WithVisibilityEpsilon sets the padding added to the camera's AABB
// before it is intersected against image bounds, avoiding boundary
// flicker as the camera pans.
func WithVisibilityEpsilon(eps float64) CanvasBuilderOption {
	return func(c *canvasConfig) {
		c.VisibilityEpsilon = eps
	}
}

// WithFrameCoordConfig overrides the frame coordinator's tunables
// (base world size, max LOD, eviction target, device pixel ratio).
func WithFrameCoordConfig(cfg framecoord.Config) CanvasBuilderOption {
	return func(c *canvasConfig) {
		c.FrameCoord = cfg
	}
}

// WithShaders overrides the pipeline key and WGSL source paths for the
// tile vertex/fragment shader pair.
func WithShaders(pipelineKey, vertexPath, fragmentPath string) CanvasBuilderOption {
	return func(c *canvasConfig) {
		c.PipelineKey = pipelineKey
		c.VertexShaderPath = vertexPath
		c.FragmentShaderPath = fragmentPath
	}
}
