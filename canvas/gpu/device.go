// Package gpu implements frame.Device on WebGPU.
package gpu

import (
	"errors"
	"fmt"
	"image"
	"unsafe"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/gekko3d/pixelplace/canvas/frame"
	"github.com/gekko3d/pixelplace/canvas/logx"
	"github.com/gekko3d/pixelplace/canvas/shaders"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
)

var ErrGraphicsContextUnavailable = errors.New("graphics context unavailable")

// quad is the unit square as a triangle strip.
var quad = [4]mgl32.Vec2{{0, 0}, {1, 0}, {0, 1}, {1, 1}}

const uniformSize = 32

type Device struct {
	log    logx.Logger
	window *glfw.Window

	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Surface  *wgpu.Surface
	Config   *wgpu.SurfaceConfiguration

	pixelPipeline *wgpu.RenderPipeline
	quadBuf       *wgpu.Buffer
	uniformBuf    *wgpu.Buffer
	pixelBG       *wgpu.BindGroup

	overlayPipeline *wgpu.RenderPipeline
	sampler         *wgpu.Sampler
	overlayTex      *wgpu.Texture
	overlayView     *wgpu.TextureView
	overlayBG       *wgpu.BindGroup
	overlaySize     image.Point
	overlayOn       bool

	ClearColor wgpu.Color
}

var _ frame.Device = (*Device)(nil)

type instanceBuffer struct {
	buf  *wgpu.Buffer
	size uint64
}

func (b *instanceBuffer) Size() uint64 { return b.size }

func (b *instanceBuffer) Release() {
	if b.buf != nil {
		b.buf.Release()
		b.buf = nil
	}
}

// Open creates the WebGPU device and pipelines for window.
func Open(window *glfw.Window, logger logx.Logger) (d *Device, err error) {
	defer func() {
		if r := recover(); r != nil {
			d, err = nil, fmt.Errorf("%w: %v", ErrGraphicsContextUnavailable, r)
		}
	}()

	d = &Device{
		log:        logx.OrNop(logger),
		window:     window,
		ClearColor: wgpu.Color{R: 1, G: 1, B: 1, A: 1},
	}
	if err := d.init(); err != nil {
		d.Release()
		return nil, fmt.Errorf("%w: %v", ErrGraphicsContextUnavailable, err)
	}
	return d, nil
}

func (d *Device) init() error {
	d.Instance = wgpu.CreateInstance(nil)
	d.Surface = d.Instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(d.window))
	if d.Surface == nil {
		return errors.New("create surface")
	}

	adapter, err := d.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: d.Surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return fmt.Errorf("request adapter: %w", err)
	}
	d.Adapter = adapter

	d.Device, err = adapter.RequestDevice(nil)
	if err != nil {
		return fmt.Errorf("request device: %w", err)
	}
	d.Queue = d.Device.GetQueue()

	width, height := d.window.GetFramebufferSize()
	caps := d.Surface.GetCapabilities(adapter)
	if len(caps.Formats) == 0 || len(caps.AlphaModes) == 0 {
		return errors.New("surface reports no formats")
	}
	d.Config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(max(width, 1)),
		Height:      uint32(max(height, 1)),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	d.Surface.Configure(adapter, d.Device, d.Config)

	if err := d.initPixelPipeline(); err != nil {
		return fmt.Errorf("pixel pipeline: %w", err)
	}
	if err := d.initOverlayPipeline(); err != nil {
		return fmt.Errorf("overlay pipeline: %w", err)
	}
	d.log.Infof("gpu ready: %dx%d, format %v", d.Config.Width, d.Config.Height, d.Config.Format)
	return nil
}

func (d *Device) initPixelPipeline() error {
	module, err := d.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "PixelShader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.PixelWGSL},
	})
	if err != nil {
		return err
	}

	d.pixelPipeline, err = d.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "PixelPipeline",
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
			Buffers: []wgpu.VertexBufferLayout{
				{
					ArrayStride: uint64(unsafe.Sizeof(mgl32.Vec2{})),
					StepMode:    wgpu.VertexStepModeVertex,
					Attributes: []wgpu.VertexAttribute{
						{Format: wgpu.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
					},
				},
				{
					ArrayStride: 2 * 4,
					StepMode:    wgpu.VertexStepModeInstance,
					Attributes: []wgpu.VertexAttribute{
						{Format: wgpu.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 1},
					},
				},
				{
					ArrayStride: 3 * 4,
					StepMode:    wgpu.VertexStepModeInstance,
					Attributes: []wgpu.VertexAttribute{
						{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 2},
					},
				},
			},
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    d.Config.Format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleStrip,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return err
	}

	vSize := uint64(len(quad)) * uint64(unsafe.Sizeof(mgl32.Vec2{}))
	d.quadBuf, err = d.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "UnitQuad",
		Size:  vSize,
		Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	d.Queue.WriteBuffer(d.quadBuf, 0, unsafe.Slice((*byte)(unsafe.Pointer(&quad[0])), vSize))

	d.uniformBuf, err = d.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "PixelUniforms",
		Size:  uniformSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}

	d.pixelBG, err = d.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: d.pixelPipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: d.uniformBuf, Size: wgpu.WholeSize},
		},
	})
	return err
}

func (d *Device) initOverlayPipeline() error {
	module, err := d.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "OverlayShader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.OverlayWGSL},
	})
	if err != nil {
		return err
	}

	d.overlayPipeline, err = d.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "OverlayPipeline",
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format: d.Config.Format,
				Blend: &wgpu.BlendState{
					Color: wgpu.BlendComponent{
						SrcFactor: wgpu.BlendFactorOne,
						DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
						Operation: wgpu.BlendOperationAdd,
					},
					Alpha: wgpu.BlendComponent{
						SrcFactor: wgpu.BlendFactorOne,
						DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
						Operation: wgpu.BlendOperationAdd,
					},
				},
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleList,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return err
	}

	d.sampler, err = d.Device.CreateSampler(&wgpu.SamplerDescriptor{
		MinFilter:     wgpu.FilterModeNearest,
		MagFilter:     wgpu.FilterModeNearest,
		MaxAnisotropy: 1,
	})
	return err
}

func (d *Device) CreateInstanceBuffer(label string, data []byte) (frame.Buffer, error) {
	buf, err := d.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	d.Queue.WriteBuffer(buf, 0, data)
	return &instanceBuffer{buf: buf, size: uint64(len(data))}, nil
}

func (d *Device) WriteBuffer(b frame.Buffer, data []byte) error {
	ib, ok := b.(*instanceBuffer)
	if !ok || ib.buf == nil {
		return fmt.Errorf("gpu: foreign or released buffer %T", b)
	}
	d.Queue.WriteBuffer(ib.buf, 0, data)
	return nil
}

// Draw clears the surface, draws the pass and composites the overlay on top.
func (d *Device) Draw(p frame.Pass) error {
	u := p.Uniforms
	uniforms := [uniformSize / 4]float32{
		u.Offset[0], u.Offset[1],
		u.Resolution[0], u.Resolution[1],
		u.Scale, u.PixelSize,
	}
	d.Queue.WriteBuffer(d.uniformBuf, 0, unsafe.Slice((*byte)(unsafe.Pointer(&uniforms[0])), uniformSize))

	nextTexture, err := d.Surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("get current texture: %w", err)
	}
	defer nextTexture.Release()

	view, err := nextTexture.CreateView(nil)
	if err != nil {
		return fmt.Errorf("create view: %w", err)
	}
	defer view.Release()

	encoder, err := d.Device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: d.ClearColor,
		}},
	})

	offsets, _ := p.Offsets.(*instanceBuffer)
	colors, _ := p.Colors.(*instanceBuffer)
	if p.Instances > 0 && offsets != nil && colors != nil {
		pass.SetPipeline(d.pixelPipeline)
		pass.SetBindGroup(0, d.pixelBG, nil)
		pass.SetVertexBuffer(0, d.quadBuf, 0, d.quadBuf.GetSize())
		pass.SetVertexBuffer(1, offsets.buf, 0, offsets.size)
		pass.SetVertexBuffer(2, colors.buf, 0, colors.size)
		pass.Draw(uint32(len(quad)), uint32(p.Instances), 0, 0)
	}

	if d.overlayOn && d.overlayBG != nil {
		pass.SetPipeline(d.overlayPipeline)
		pass.SetBindGroup(0, d.overlayBG, nil)
		pass.Draw(3, 1, 0, 0)
	}

	if err := pass.End(); err != nil {
		return fmt.Errorf("render pass end: %w", err)
	}
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("encoder finish: %w", err)
	}
	d.Queue.Submit(cmd)
	d.Surface.Present()
	return nil
}

// SetOverlay uploads img to be composited over the next frames. A nil image hides
// the overlay.
func (d *Device) SetOverlay(img *image.RGBA) error {
	if img == nil {
		d.overlayOn = false
		return nil
	}
	size := img.Bounds().Size()
	if size.X == 0 || size.Y == 0 {
		d.overlayOn = false
		return nil
	}
	if size != d.overlaySize || d.overlayTex == nil {
		if err := d.createOverlayTexture(size); err != nil {
			return err
		}
	}
	d.Queue.WriteTexture(d.overlayTex.AsImageCopy(), img.Pix, &wgpu.TextureDataLayout{
		Offset:       0,
		BytesPerRow:  uint32(img.Stride),
		RowsPerImage: uint32(size.Y),
	}, &wgpu.Extent3D{Width: uint32(size.X), Height: uint32(size.Y), DepthOrArrayLayers: 1})
	d.overlayOn = true
	return nil
}

func (d *Device) createOverlayTexture(size image.Point) error {
	d.releaseOverlay()
	tex, err := d.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Overlay",
		Size:          wgpu.Extent3D{Width: uint32(size.X), Height: uint32(size.Y), DepthOrArrayLayers: 1},
		Format:        wgpu.TextureFormatRGBA8Unorm,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension:     wgpu.TextureDimension2D,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return fmt.Errorf("overlay texture: %w", err)
	}
	d.overlayTex = tex
	if d.overlayView, err = tex.CreateView(nil); err != nil {
		return fmt.Errorf("overlay view: %w", err)
	}
	d.overlayBG, err = d.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: d.overlayPipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: d.overlayView},
			{Binding: 1, Sampler: d.sampler},
		},
	})
	if err != nil {
		return fmt.Errorf("overlay bind group: %w", err)
	}
	d.overlaySize = size
	return nil
}

func (d *Device) releaseOverlay() {
	if d.overlayBG != nil {
		d.overlayBG.Release()
		d.overlayBG = nil
	}
	if d.overlayView != nil {
		d.overlayView.Release()
		d.overlayView = nil
	}
	if d.overlayTex != nil {
		d.overlayTex.Release()
		d.overlayTex = nil
	}
	d.overlaySize = image.Point{}
}

// Resize reconfigures the surface for a new framebuffer size.
func (d *Device) Resize(w, h int) {
	if w <= 0 || h <= 0 || d.Config == nil {
		return
	}
	if d.Config.Width == uint32(w) && d.Config.Height == uint32(h) {
		return
	}
	d.Config.Width = uint32(w)
	d.Config.Height = uint32(h)
	d.Surface.Configure(d.Adapter, d.Device, d.Config)
	d.log.Debugf("surface resized to %dx%d", w, h)
}

func (d *Device) Release() {
	d.releaseOverlay()
	if d.sampler != nil {
		d.sampler.Release()
	}
	if d.pixelBG != nil {
		d.pixelBG.Release()
	}
	if d.uniformBuf != nil {
		d.uniformBuf.Release()
	}
	if d.quadBuf != nil {
		d.quadBuf.Release()
	}
	if d.overlayPipeline != nil {
		d.overlayPipeline.Release()
	}
	if d.pixelPipeline != nil {
		d.pixelPipeline.Release()
	}
	if d.Device != nil {
		d.Device.Release()
	}
	if d.Adapter != nil {
		d.Adapter.Release()
	}
	if d.Surface != nil {
		d.Surface.Release()
	}
	if d.Instance != nil {
		d.Instance.Release()
	}
	*d = Device{log: d.log, window: d.window}
}
