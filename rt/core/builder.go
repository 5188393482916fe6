package core

import (
	"github.com/gekko3d/pathtracer/rt/gpu"
	"github.com/go-gl/mathgl/mgl32"
)

// BuildResult is what a SceneBuilder hands the renderer after a scene load.
type BuildResult struct {
	// Geometry holds the GPU-ready geometry buffers by binding name.
	Geometry      map[string]*gpu.Buffer
	Materials     *gpu.Buffer
	MaterialCount int
	Cameras       []*Camera
}

// SceneBuilder turns a scene into GPU buffers. Acceleration structure
// construction lives behind this interface.
type SceneBuilder interface {
	Build(scene *Scene) (*BuildResult, error)
	UpdateMaterial(index int, p MaterialProperty, value []float32) error
}

// FlatBuilder packs world-space triangles and materials without building an
// acceleration structure.
type FlatBuilder struct {
	scene *Scene
}

func NewFlatBuilder() *FlatBuilder { return &FlatBuilder{} }

var _ SceneBuilder = (*FlatBuilder)(nil)

func (b *FlatBuilder) Build(scene *Scene) (*BuildResult, error) {
	b.scene = scene

	var positions []float32
	var triMaterials []float32
	scene.Traverse(func(n *Node, world mgl32.Mat4) {
		m := n.Mesh
		if m == nil {
			return
		}
		for i := 0; i+2 < len(m.Indices); i += 3 {
			for _, idx := range m.Indices[i : i+3] {
				p := world.Mul4x1(m.Positions[idx].Vec4(1)).Vec3()
				positions = append(positions, p.X(), p.Y(), p.Z(), 0)
			}
			triMaterials = append(triMaterials, float32(m.MaterialIndex))
		}
	})

	if len(scene.Materials) == 0 {
		scene.Materials = []Material{DefaultMaterial()}
	}
	materials := scene.Materials
	return &BuildResult{
		Geometry: map[string]*gpu.Buffer{
			"trianglePositions": gpu.NewFloatBuffer("trianglePositions", positions),
			"triangleMaterials": gpu.NewFloatBuffer("triangleMaterials", triMaterials),
		},
		Materials:     &gpu.Buffer{Label: "materials", Data: PackMaterials(materials), NeedsUpdate: true},
		MaterialCount: len(materials),
		Cameras:       scene.Cameras(),
	}, nil
}

// UpdateMaterial keeps the source scene in step with an edit made to the
// packed buffer.
func (b *FlatBuilder) UpdateMaterial(index int, p MaterialProperty, value []float32) error {
	if b.scene == nil || index < 0 || index >= len(b.scene.Materials) {
		return ErrMaterialIndex
	}
	return b.scene.Materials[index].Set(p, value)
}
