package stages

import (
	"github.com/gekko3d/pathtracer/rt/gpu"
	"github.com/gekko3d/pathtracer/rt/pipeline"
)

// Stage names.
const (
	NamePathTracer    = "pathtracer"
	NameLights        = "lights"
	NameAdaptive      = "adaptive"
	NameTemporal      = "temporal"
	NameDenoise       = "denoise"
	NameOutput        = "output"
	NameTileHighlight = "tileHighlight"
)

// Context texture names. Each is written by exactly one stage.
const (
	TexColor        = "pathtracer:color"
	TexPrevious     = "pathtracer:previous"
	TexAdaptiveMask = "adaptive:mask"
	TexTemporal     = "temporal:color"
	TexDenoise      = "denoise:color"
	// TexDenoiser is published by the asynchronous denoiser, outside the
	// stage list.
	TexDenoiser = "denoiser:color"
	TexAlbedo   = "gbuffer:albedo"
	TexNormal   = "gbuffer:normal"
)

// Uniform names.
const (
	UniformFrame             = "frame"
	UniformSamples           = "samples"
	UniformMaxSamples        = "maxSamples"
	UniformRenderMode        = "renderMode"
	UniformTileCount         = "tileCount"
	UniformTileIndex         = "tileIndex"
	UniformTileRect          = "tileRect"
	UniformMaterials         = "materials"
	UniformMaterialCount     = "materialCount"
	UniformCameraWorldMatrix = "cameraWorldMatrix"
	UniformFocusDistance     = "focusDistance"
	UniformAperture          = "aperture"
	UniformFOV               = "fov"
	UniformCamera            = "camera"
	UniformConvergedFraction = "convergedFraction"

	UniformNumDirectionalLights = "numDirectionalLights"
	UniformNumPointLights       = "numPointLights"
	UniformNumSpotLights        = "numSpotLights"
	UniformNumAreaLights        = "numAreaLights"
	UniformDirectionalLights    = "directionalLights"
	UniformPointLights          = "pointLights"
	UniformSpotLights           = "spotLights"
	UniformAreaLights           = "areaLights"
)

// Publish registers tex under name and stamps it with the current tick so
// readers can tell a fresh result from a stale one.
func Publish(ctx *pipeline.Context, writer, name string, tex gpu.Texture) {
	ctx.SetTexture(writer, name, tex)
	ctx.SetState(stampKey(name), ctx.Tick())
}

// Fresh returns the texture under name unless it was published with Publish
// during an earlier tick. Textures registered without a stamp never go stale.
func Fresh(ctx *pipeline.Context, name string) gpu.Texture {
	tex := ctx.Texture(name)
	if tex == nil {
		return nil
	}
	if tick, ok := ctx.StateValue(stampKey(name)).(uint64); ok && tick != ctx.Tick() {
		return nil
	}
	return tex
}

func stampKey(name string) string { return "written:" + name }
