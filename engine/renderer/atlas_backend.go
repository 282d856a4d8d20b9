package renderer

import (
	"sync"

	"github.com/Carmen-Shannon/tilecanvas/engine/atlas"
	"github.com/cogentcore/webgpu/wgpu"
)

// AtlasBackend implements engine/atlas.Backend against a real wgpu
// device and queue. It owns the atlas's layered 2D-array texture and
// the instance storage buffer, following the InitTextureView pattern in
// wgpu_renderer_backend.go but creating a single Width x Height x
// layers array texture once, then issuing a WriteTexture per tile at
// Origin3D{X: slotX*tileSize, Y: slotY*tileSize, Z: layer} instead of a
// texture per upload.
type AtlasBackend struct {
	mu sync.Mutex

	device *wgpu.Device
	queue  *wgpu.Queue

	tileSize  int
	atlasSize int
	layers    int

	texture     *wgpu.Texture
	textureView *wgpu.TextureView
	sampler     *wgpu.Sampler

	instanceBuffer   *wgpu.Buffer
	instanceCapacity uint64
}

var _ atlas.Backend = &AtlasBackend{}

// NewAtlasBackend creates the array texture, a linear sampler, and an
// empty instance storage buffer sized for maxInstances GPUInstance
// records. Returns an error if any GPU resource fails to allocate.
func NewAtlasBackend(device *wgpu.Device, queue *wgpu.Queue, layers, atlasSize, tileSize int, maxInstances int) (*AtlasBackend, error) {
	b := &AtlasBackend{
		device:    device,
		queue:     queue,
		tileSize:  tileSize,
		atlasSize: atlasSize,
		layers:    layers,
	}

	tex, err := device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     "tile atlas",
		Usage:     wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              uint32(atlasSize),
			Height:             uint32(atlasSize),
			DepthOrArrayLayers: uint32(layers),
		},
		Format:        wgpu.TextureFormatRGBA8UnormSrgb,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, err
	}
	b.texture = tex

	view, err := tex.CreateView(&wgpu.TextureViewDescriptor{
		Label:           "tile atlas view",
		Dimension:       wgpu.TextureViewDimension2DArray,
		Format:          wgpu.TextureFormatRGBA8UnormSrgb,
		BaseArrayLayer:  0,
		ArrayLayerCount: uint32(layers),
		MipLevelCount:   1,
	})
	if err != nil {
		return nil, err
	}
	b.textureView = view

	sampler, err := device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:        "tile atlas sampler",
		AddressModeU: wgpu.AddressModeClampToEdge,
		AddressModeV: wgpu.AddressModeClampToEdge,
		MagFilter:    wgpu.FilterModeLinear,
		MinFilter:    wgpu.FilterModeLinear,
		MipmapFilter: wgpu.MipmapFilterModeLinear,
		LodMinClamp:  0,
		LodMaxClamp:  1,
	})
	if err != nil {
		return nil, err
	}
	b.sampler = sampler

	instanceSize := uint64(96) // sizeof(atlas.GPUInstance), std430-padded
	capacityBytes := instanceSize * uint64(maxInstances)
	buf, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            "tile instance buffer",
		Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
		Size:             capacityBytes,
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, err
	}
	b.instanceBuffer = buf
	b.instanceCapacity = capacityBytes

	return b, nil
}

// Ready reports that the atlas texture and instance buffer exist. Once
// constructed via NewAtlasBackend they always do, but the interface
// still distinguishes "not yet realized" for callers that construct a
// Manager before a GPU device exists (e.g. during early startup).
func (b *AtlasBackend) Ready() bool {
	return b.texture != nil && b.instanceBuffer != nil
}

// TextureView exposes the atlas array's view for bind group wiring.
func (b *AtlasBackend) TextureView() *wgpu.TextureView {
	return b.textureView
}

// Sampler exposes the atlas's sampler for bind group wiring.
func (b *AtlasBackend) Sampler() *wgpu.Sampler {
	return b.sampler
}

// InstanceBuffer exposes the instance storage buffer for bind group
// wiring.
func (b *AtlasBackend) InstanceBuffer() *wgpu.Buffer {
	return b.instanceBuffer
}

// UploadTile writes one tile's pixels into the array texture at layer,
// sub-rectangle (pxX, pxY, tileSize, tileSize) — the atlas upload
// contract from spec.md §6.
func (b *AtlasBackend) UploadTile(layer, pxX, pxY, tileSize int, pixels []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  b.texture,
			MipLevel: 0,
			Origin: wgpu.Origin3D{
				X: uint32(pxX),
				Y: uint32(pxY),
				Z: uint32(layer),
			},
			Aspect: wgpu.TextureAspectAll,
		},
		pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(tileSize) * 4,
			RowsPerImage: uint32(tileSize),
		},
		&wgpu.Extent3D{
			Width:              uint32(tileSize),
			Height:             uint32(tileSize),
			DepthOrArrayLayers: 1,
		},
	)
	return nil
}

// WriteInstances uploads the full instance buffer. Growth beyond the
// capacity reserved at construction cannot happen: the slot allocator
// caps the instance count at the same L*R*R bound the buffer was sized
// for.
func (b *AtlasBackend) WriteInstances(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue.WriteBuffer(b.instanceBuffer, 0, data)
	return nil
}
