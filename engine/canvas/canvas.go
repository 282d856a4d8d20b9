// Package canvas wires the tile cache pipeline (atlas manager, decoder
// pool, frame coordinator) to a GPU renderer and camera, exposing the
// per-viewport Canvas the engine drives each tick and render frame. It
// plays the role engine/scene played for the teacher's 3D game objects,
// but for a single instanced quad draw call over the tile atlas instead
// of an arbitrary game object graph.
package canvas

import (
	"fmt"
	"log"

	"github.com/Carmen-Shannon/tilecanvas/common"
	"github.com/Carmen-Shannon/tilecanvas/engine/atlas"
	"github.com/Carmen-Shannon/tilecanvas/engine/camera"
	"github.com/Carmen-Shannon/tilecanvas/engine/decoder"
	"github.com/Carmen-Shannon/tilecanvas/engine/framecoord"
	"github.com/Carmen-Shannon/tilecanvas/engine/imagelayout"
	"github.com/Carmen-Shannon/tilecanvas/engine/renderer"
	"github.com/Carmen-Shannon/tilecanvas/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/tilecanvas/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/tilecanvas/engine/renderer/shader"
	"github.com/Carmen-Shannon/tilecanvas/engine/tilestore"
	"github.com/Carmen-Shannon/tilecanvas/engine/visibility"
	"github.com/cogentcore/webgpu/wgpu"
)

const (
	instanceBinding = 0
	cameraBinding   = 1
	textureBinding  = 2
	samplerBinding  = 3
)

type quadVertex struct {
	LocalPos [2]float32
	UV       [2]float32
}

// Canvas is the per-viewport render target the engine drives. It owns
// the full tile pipeline — atlas, decoder pool, frame coordinator — plus
// the GPU resources for its single instanced quad draw call.
type Canvas interface {
	// Renderer returns the GPU renderer this canvas draws through.
	Renderer() renderer.Renderer

	// Camera returns the orthographic camera driving LOD selection,
	// visibility, and the view-projection uniform.
	Camera() camera.Camera

	// Active reports whether the engine should tick and draw this
	// canvas this frame.
	Active() bool

	// SetActive toggles whether the engine ticks and draws this canvas.
	SetActive(active bool)

	// RegisterImage tells the canvas where to fetch an image's pixels
	// from and seeds its layout pose into the visibility oracle.
	RegisterImage(imageID int, url string)

	// Tick drains completed decodes, re-evaluates visibility and LOD,
	// dispatches new loads, and refreshes the camera uniform. Called
	// once per engine tick, before DrawCalls.
	Tick(dt float32)

	// DrawCalls issues the canvas's single instanced draw call for the
	// current frame's rebuilt instance list. A no-op if no instances are
	// currently queued in the atlas.
	DrawCalls() error
}

type canvasImpl struct {
	label  string
	active bool

	r   renderer.Renderer
	cam camera.Camera

	atlasMgr     *atlas.Manager
	atlasBackend *renderer.AtlasBackend
	pool         *decoder.Pool
	coordinator  *framecoord.Coordinator

	pipelineKey  string
	meshProvider bind_group_provider.BindGroupProvider
	bindGroup    bind_group_provider.BindGroupProvider
}

var _ Canvas = &canvasImpl{}

// NewCanvas builds a Canvas: it creates the atlas's GPU backend from the
// renderer's device/queue, the decoder pool, the visibility oracle and
// tile data store (via framecoord.New), the quad mesh, and the render
// pipeline + bind group for the tile-vert/tile-frag shader pair.
func NewCanvas(label string, r renderer.Renderer, cam camera.Camera, layout imagelayout.Provider, opts ...CanvasBuilderOption) (Canvas, error) {
	cfg := defaultCanvasConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	atlasBackend, err := renderer.NewAtlasBackend(r.Device(), r.Queue(), cfg.AtlasLayers, cfg.AtlasSize, cfg.TileSize, cfg.MaxInstances)
	if err != nil {
		return nil, fmt.Errorf("canvas %q: create atlas backend: %w", label, err)
	}
	atlasMgr := atlas.New(cfg.AtlasLayers, cfg.AtlasSize, cfg.TileSize, atlasBackend)

	pool := decoder.New(cfg.DecoderWorkers, cfg.TileSize, cfg.FrameCoord.BaseWorldSize, cfg.HTTPClient)
	oracle := visibility.New(cfg.VisibilityEpsilon)
	store := tilestore.New()
	coordinator := framecoord.New(cfg.FrameCoord, oracle, layout, store, atlasMgr, pool, cam)

	vertexShader := shader.NewShader(cfg.PipelineKey+"_vert", shader.ShaderTypeVertex, cfg.VertexShaderPath)
	fragmentShader := shader.NewShader(cfg.PipelineKey+"_frag", shader.ShaderTypeFragment, cfg.FragmentShaderPath)

	p := pipeline.NewPipeline(cfg.PipelineKey, pipeline.PipelineTypeRender,
		pipeline.WithVertexShader(vertexShader),
		pipeline.WithFragmentShader(fragmentShader),
		pipeline.WithDepthTestEnabled(false),
		pipeline.WithDepthWriteEnabled(false),
		pipeline.WithBlendEnabled(true),
		pipeline.WithCullMode(wgpu.CullModeNone),
	)
	if err := r.RegisterPipelines(p); err != nil {
		return nil, fmt.Errorf("canvas %q: register pipeline: %w", label, err)
	}

	meshProvider := bind_group_provider.NewBindGroupProvider(label + "_quad")
	vertexData, indexData := buildQuadMesh()
	if err := r.InitMeshBuffers(meshProvider, vertexData, indexData, 6); err != nil {
		return nil, fmt.Errorf("canvas %q: init quad mesh: %w", label, err)
	}

	bindGroup := bind_group_provider.NewBindGroupProvider(label + "_bindgroup")
	bindGroup.SetBuffer(instanceBinding, atlasBackend.InstanceBuffer())
	bindGroup.SetTextureView(textureBinding, atlasBackend.TextureView())
	bindGroup.SetSampler(samplerBinding, atlasBackend.Sampler())

	descriptor := mergeBindGroupDescriptors(vertexShader.BindGroupLayoutDescriptor(0), fragmentShader.BindGroupLayoutDescriptor(0))
	if err := r.InitBindGroup(bindGroup, descriptor, nil, nil); err != nil {
		return nil, fmt.Errorf("canvas %q: init bind group: %w", label, err)
	}

	return &canvasImpl{
		label:        label,
		active:       true,
		r:            r,
		cam:          cam,
		atlasMgr:     atlasMgr,
		atlasBackend: atlasBackend,
		pool:         pool,
		coordinator:  coordinator,
		pipelineKey:  cfg.PipelineKey,
		meshProvider: meshProvider,
		bindGroup:    bindGroup,
	}, nil
}

// mergeBindGroupDescriptors concatenates two shaders' group-0 bind group
// layout entries into one descriptor. Safe here because the tile-vert
// and tile-frag shaders use disjoint binding indices (0-1 vs 2-3); a
// shader pair with overlapping bindings would need deduplication.
func mergeBindGroupDescriptors(vertex, fragment wgpu.BindGroupLayoutDescriptor) wgpu.BindGroupLayoutDescriptor {
	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(vertex.Entries)+len(fragment.Entries))
	entries = append(entries, vertex.Entries...)
	entries = append(entries, fragment.Entries...)
	return wgpu.BindGroupLayoutDescriptor{Entries: entries}
}

// buildQuadMesh returns a unit quad (local space [-0.5, 0.5]) centered
// on the origin, matching the translate.rotateZ.scale model matrix
// atlas.Manager.AddInstanceWithZ builds per tile instance.
func buildQuadMesh() ([]byte, []byte) {
	vertices := []quadVertex{
		{LocalPos: [2]float32{-0.5, -0.5}, UV: [2]float32{0, 1}},
		{LocalPos: [2]float32{0.5, -0.5}, UV: [2]float32{1, 1}},
		{LocalPos: [2]float32{0.5, 0.5}, UV: [2]float32{1, 0}},
		{LocalPos: [2]float32{-0.5, 0.5}, UV: [2]float32{0, 0}},
	}
	indices := []uint32{0, 1, 2, 0, 2, 3}
	return common.SliceToBytes(vertices), common.SliceToBytes(indices)
}

func (c *canvasImpl) Renderer() renderer.Renderer {
	return c.r
}

func (c *canvasImpl) Camera() camera.Camera {
	return c.cam
}

func (c *canvasImpl) Active() bool {
	return c.active
}

func (c *canvasImpl) SetActive(active bool) {
	c.active = active
}

func (c *canvasImpl) RegisterImage(imageID int, url string) {
	c.coordinator.RegisterImage(imageID, url)
}

func (c *canvasImpl) Tick(dt float32) {
	if err := c.atlasMgr.FlushPending(); err != nil {
		log.Printf("[canvas %s] flush pending uploads failed: %v", c.label, err)
	}
	c.coordinator.Tick()
	c.writeCameraUniform()
}

func (c *canvasImpl) writeCameraUniform() {
	vp := ViewProjection(c.cam)
	data := common.SliceToBytes(vp[:])
	c.r.WriteBuffers([]bind_group_provider.BufferWrite{
		{Provider: c.bindGroup, Binding: cameraBinding, Offset: 0, Data: data},
	})
}

func (c *canvasImpl) DrawCalls() error {
	count := c.atlasMgr.InstanceCount()
	if count == 0 {
		return nil
	}
	return c.r.DrawCall(c.pipelineKey, c.meshProvider, uint32(count), []bind_group_provider.BindGroupProvider{c.bindGroup})
}
