package pipeline

import (
	"fmt"
	"time"

	"github.com/gekko3d/pathtracer/rt/gpu"
	"github.com/gogpu/gputypes"
)

// Composer runs a chain of passes over a pair of swap buffers.
type Composer struct {
	passes []Pass
	read   gpu.RenderTarget
	write  gpu.RenderTarget
}

func NewComposer(device gpu.Device, width, height int) (*Composer, error) {
	read, err := device.NewRenderTarget(gpu.TargetDescriptor{
		Label: "composer:read", Width: width, Height: height, Format: gputypes.TextureFormatRGBA16Float,
	})
	if err != nil {
		return nil, err
	}
	write, err := device.NewRenderTarget(gpu.TargetDescriptor{
		Label: "composer:write", Width: width, Height: height, Format: gputypes.TextureFormatRGBA16Float,
	})
	if err != nil {
		read.Release()
		return nil, err
	}
	return &Composer{read: read, write: write}, nil
}

func (c *Composer) AddPass(p Pass) {
	c.passes = append(c.passes, p)
}

// Render runs every pass in order. The first failing pass stops the chain.
func (c *Composer) Render(delta time.Duration) error {
	for i, p := range c.passes {
		if err := p.Render(c.write, c.read, delta); err != nil {
			return fmt.Errorf("pass %d: %w", i, err)
		}
		c.read, c.write = c.write, c.read
	}
	return nil
}

// Output is the buffer the last pass wrote.
func (c *Composer) Output() gpu.RenderTarget {
	return c.read
}

func (c *Composer) SetSize(width, height int) error {
	if err := c.read.Resize(width, height); err != nil {
		return err
	}
	if err := c.write.Resize(width, height); err != nil {
		return err
	}
	for i, p := range c.passes {
		if err := p.SetSize(width, height); err != nil {
			return fmt.Errorf("pass %d: %w", i, err)
		}
	}
	return nil
}

func (c *Composer) Dispose() {
	for _, p := range c.passes {
		p.Dispose()
	}
	c.passes = nil
	c.read.Release()
	c.write.Release()
}
