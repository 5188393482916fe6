package stages

import (
	"image"
	"math"
	"math/rand/v2"

	"github.com/gekko3d/pathtracer/rt/core"
	"github.com/gekko3d/pathtracer/rt/gpu"
	"github.com/gekko3d/pathtracer/rt/pipeline"
	"github.com/go-gl/mathgl/mgl32"
)

// TraceRequest is one dispatch of the integrator.
type TraceRequest struct {
	// Frame is the path tracer's virtual frame counter before this dispatch.
	Frame int
	// Sample is how many samples Region already holds.
	Sample    int
	Mode      pipeline.RenderMode
	TileIndex int
	Region    image.Rectangle

	Write   gpu.RenderTarget
	History gpu.Texture
	// Mask marks pixels that still need samples (R > 0.5). Nil means all.
	Mask gpu.Texture

	Camera        *core.Camera
	Materials     *gpu.Buffer
	MaterialCount int
}

// Integrator shades one dispatch. It must write every pixel of Write:
// Region receives the blended new estimate and the rest a copy of History.
type Integrator interface {
	Trace(req TraceRequest) error
}

// RadianceFunc returns one radiance sample for the image-plane point (u, v)
// in [0,1]², v pointing down.
type RadianceFunc func(u, v float64, cam *core.Camera, rng *rand.Rand) [3]float32

// HostIntegrator runs a radiance function per pixel on the CPU and keeps a
// running mean against the history target.
type HostIntegrator struct {
	Radiance RadianceFunc
	Seed     uint64
}

func (h *HostIntegrator) Trace(req TraceRequest) error {
	out := req.Write.Texture().Pixels()
	prev := req.History.Pixels()
	if out == nil || prev == nil {
		return gpu.ErrNotHostVisible
	}
	w, ht := req.Write.Width(), req.Write.Height()
	if req.History.Width() != w || req.History.Height() != ht {
		return gpu.ErrInvalidSize
	}
	copy(out, prev)

	var mask []float32
	if req.Mask != nil && req.Mask.Width() == w && req.Mask.Height() == ht {
		mask = req.Mask.Pixels()
	}

	rng := rand.New(rand.NewPCG(h.Seed, uint64(req.Frame)))
	weight := 1 / float32(req.Sample+1)
	r := req.Region.Intersect(image.Rect(0, 0, w, ht))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			i := (y*w + x) * 4
			if mask != nil && mask[i] <= 0.5 {
				continue
			}
			u := (float64(x) + rng.Float64()) / float64(w)
			v := (float64(y) + rng.Float64()) / float64(ht)
			s := h.Radiance(u, v, req.Camera, rng)
			for c := 0; c < 3; c++ {
				out[i+c] = prev[i+c] + (s[c]-prev[i+c])*weight
			}
			out[i+3] = 1
		}
	}
	return nil
}

var (
	skyHorizon = mgl32.Vec3{1, 1, 1}
	skyZenith  = mgl32.Vec3{0.5, 0.7, 1}
)

// SkyRadiance shades every primary ray with a horizon-to-zenith gradient. It
// is the radiance function of the headless preview.
func SkyRadiance(u, v float64, cam *core.Camera, _ *rand.Rand) [3]float32 {
	dir := mgl32.Vec3{0, 1, 0}
	if cam != nil {
		half := float32(math.Tan(float64(mgl32.DegToRad(cam.FOV)) / 2))
		dir = cam.Forward().
			Add(cam.Right().Mul(float32(2*u-1) * half)).
			Sub(cam.Up().Mul(float32(2*v-1) * half)).
			Normalize()
	}
	t := 0.5 * (dir.Z() + 1)
	c := skyHorizon.Mul(1 - t).Add(skyZenith.Mul(t))
	return [3]float32{c.X(), c.Y(), c.Z()}
}
