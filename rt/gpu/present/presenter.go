// Package present shows host-rendered frames in a glfw window through a
// wgpu surface.
package present

import (
	_ "embed"
	"errors"
	"fmt"
	"image"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

//go:embed blit.wgsl
var blitWGSL string

// ErrReleased is returned by Present after Release.
var ErrReleased = errors.New("present: presenter released")

// Presenter uploads an 8-bit RGBA image each frame and draws it over the
// whole surface.
type Presenter struct {
	instance *wgpu.Instance
	surface  *wgpu.Surface
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	config   *wgpu.SurfaceConfiguration

	pipeline *wgpu.RenderPipeline
	sampler  *wgpu.Sampler

	texture   *wgpu.Texture
	view      *wgpu.TextureView
	bindGroup *wgpu.BindGroup
	texFormat wgpu.TextureFormat
	texW      int
	texH      int
}

// New creates the surface, device and blit pipeline for window. The window
// must have been created with glfw.ClientAPI set to glfw.NoAPI.
func New(window *glfw.Window) (*Presenter, error) {
	p := &Presenter{instance: wgpu.CreateInstance(nil)}
	p.surface = p.instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(window))

	adapter, err := p.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: p.surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	p.adapter = adapter

	p.device, err = adapter.RequestDevice(nil)
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}
	p.queue = p.device.GetQueue()

	width, height := window.GetFramebufferSize()
	caps := p.surface.GetCapabilities(adapter)
	if len(caps.Formats) == 0 || len(caps.AlphaModes) == 0 {
		p.Release()
		return nil, errors.New("present: surface reports no formats")
	}
	format := caps.Formats[0]
	p.config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      format,
		Width:       uint32(max(width, 1)),
		Height:      uint32(max(height, 1)),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	p.surface.Configure(adapter, p.device, p.config)

	// frames arrive sRGB encoded; let the sampler decode them when the
	// surface encodes on write
	p.texFormat = wgpu.TextureFormatRGBA8Unorm
	if format == wgpu.TextureFormatBGRA8UnormSrgb || format == wgpu.TextureFormatRGBA8UnormSrgb {
		p.texFormat = wgpu.TextureFormatRGBA8UnormSrgb
	}

	if err := p.createPipeline(format); err != nil {
		p.Release()
		return nil, err
	}
	return p, nil
}

func (p *Presenter) createPipeline(format wgpu.TextureFormat) error {
	module, err := p.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Blit VS/FS",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: blitWGSL},
	})
	if err != nil {
		return fmt.Errorf("blit shader: %w", err)
	}
	defer module.Release()

	p.pipeline, err = p.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "Blit Pipeline",
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    format,
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
		return fmt.Errorf("blit pipeline: %w", err)
	}

	p.sampler, err = p.device.CreateSampler(&wgpu.SamplerDescriptor{
		MinFilter:     wgpu.FilterModeNearest,
		MagFilter:     wgpu.FilterModeNearest,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return fmt.Errorf("blit sampler: %w", err)
	}
	return nil
}

// Resize reconfigures the surface. Zero sizes (minimized windows) are
// ignored.
func (p *Presenter) Resize(width, height int) {
	if p.surface == nil || width <= 0 || height <= 0 {
		return
	}
	p.config.Width = uint32(width)
	p.config.Height = uint32(height)
	p.surface.Configure(p.adapter, p.device, p.config)
}

// Present uploads img and draws it stretched over the surface.
func (p *Presenter) Present(img *image.RGBA) error {
	if p.device == nil {
		return ErrReleased
	}
	b := img.Bounds()
	if err := p.ensureTexture(b.Dx(), b.Dy()); err != nil {
		return err
	}
	p.queue.WriteTexture(p.texture.AsImageCopy(), img.Pix, &wgpu.TextureDataLayout{
		Offset:       0,
		BytesPerRow:  uint32(img.Stride),
		RowsPerImage: uint32(b.Dy()),
	}, &wgpu.Extent3D{Width: uint32(b.Dx()), Height: uint32(b.Dy()), DepthOrArrayLayers: 1})

	next, err := p.surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("surface texture: %w", err)
	}
	defer next.Release()
	view, err := next.CreateView(nil)
	if err != nil {
		return fmt.Errorf("surface view: %w", err)
	}
	defer view.Release()

	encoder, err := p.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("command encoder: %w", err)
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{0, 0, 0, 1},
		}},
	})
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, p.bindGroup, nil)
	pass.Draw(3, 1, 0, 0)
	if err := pass.End(); err != nil {
		return fmt.Errorf("blit pass: %w", err)
	}

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("finish: %w", err)
	}
	defer cmd.Release()
	p.queue.Submit(cmd)
	p.surface.Present()
	return nil
}

func (p *Presenter) ensureTexture(w, h int) error {
	if p.texture != nil && p.texW == w && p.texH == h {
		return nil
	}
	p.releaseTexture()

	tex, err := p.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Frame",
		Size:          wgpu.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        p.texFormat,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		SampleCount:   1,
	})
	if err != nil {
		return fmt.Errorf("frame texture: %w", err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return fmt.Errorf("frame view: %w", err)
	}
	bg, err := p.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: p.pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: view},
			{Binding: 1, Sampler: p.sampler},
		},
	})
	if err != nil {
		view.Release()
		tex.Release()
		return fmt.Errorf("frame bind group: %w", err)
	}
	p.texture, p.view, p.bindGroup = tex, view, bg
	p.texW, p.texH = w, h
	return nil
}

func (p *Presenter) releaseTexture() {
	if p.bindGroup != nil {
		p.bindGroup.Release()
		p.bindGroup = nil
	}
	if p.view != nil {
		p.view.Release()
		p.view = nil
	}
	if p.texture != nil {
		p.texture.Release()
		p.texture = nil
	}
}

// Release frees every GPU object. It is safe to call more than once.
func (p *Presenter) Release() {
	p.releaseTexture()
	if p.sampler != nil {
		p.sampler.Release()
		p.sampler = nil
	}
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
	if p.queue != nil {
		p.queue.Release()
		p.queue = nil
	}
	if p.device != nil {
		p.device.Release()
		p.device = nil
	}
	if p.adapter != nil {
		p.adapter.Release()
		p.adapter = nil
	}
	if p.surface != nil {
		p.surface.Release()
		p.surface = nil
	}
	if p.instance != nil {
		p.instance.Release()
		p.instance = nil
	}
}
