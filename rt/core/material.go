package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	ErrMaterialIndex = errors.New("material index out of range")
	ErrPropertyValue = errors.New("material property value has wrong component count")
)

// MaterialProperty names one editable field of the packed material layout.
type MaterialProperty int

const (
	PropBaseColor MaterialProperty = iota
	PropOpacity
	PropEmissive
	PropEmissiveIntensity
	PropRoughness
	PropMetalness
	PropIOR
	PropTransmission
	PropClearcoat
	PropClearcoatRoughness
	PropSpecular

	numMaterialProperties
)

type propertySlot struct {
	name       string
	offset     int
	components int
}

// materialLayout is indexed by MaterialProperty. Adding a property without a
// slot fails to compile.
var materialLayout = [numMaterialProperties]propertySlot{
	PropBaseColor:          {"baseColor", 0, 3},
	PropOpacity:            {"opacity", 12, 1},
	PropEmissive:           {"emissive", 16, 3},
	PropEmissiveIntensity:  {"emissiveIntensity", 28, 1},
	PropRoughness:          {"roughness", 32, 1},
	PropMetalness:          {"metalness", 36, 1},
	PropIOR:                {"ior", 40, 1},
	PropTransmission:       {"transmission", 44, 1},
	PropClearcoat:          {"clearcoat", 48, 1},
	PropClearcoatRoughness: {"clearcoatRoughness", 52, 1},
	PropSpecular:           {"specular", 56, 1},
}

// MaterialStride is the packed size of one material in bytes.
const MaterialStride = 64

func (p MaterialProperty) valid() bool { return p >= 0 && p < numMaterialProperties }

func (p MaterialProperty) String() string {
	if !p.valid() {
		return fmt.Sprintf("MaterialProperty(%d)", int(p))
	}
	return materialLayout[p].name
}

// Offset is the byte offset of the property inside one material.
func (p MaterialProperty) Offset() int { return materialLayout[p].offset }

// Components is the number of float32 values the property holds.
func (p MaterialProperty) Components() int { return materialLayout[p].components }

func MaterialProperties() []MaterialProperty {
	out := make([]MaterialProperty, numMaterialProperties)
	for i := range out {
		out[i] = MaterialProperty(i)
	}
	return out
}

func ParseMaterialProperty(name string) (MaterialProperty, error) {
	for i, slot := range materialLayout {
		if slot.name == name {
			return MaterialProperty(i), nil
		}
	}
	return 0, fmt.Errorf("unknown material property %q", name)
}

type Material struct {
	BaseColor          mgl32.Vec3
	Opacity            float32
	Emissive           mgl32.Vec3
	EmissiveIntensity  float32
	Roughness          float32
	Metalness          float32
	IOR                float32
	Transmission       float32
	Clearcoat          float32
	ClearcoatRoughness float32
	Specular           float32
}

func NewMaterial(baseColor, emissive mgl32.Vec3) Material {
	m := DefaultMaterial()
	m.BaseColor = baseColor
	m.Emissive = emissive
	if emissive.Len() > 0 {
		m.EmissiveIntensity = 1
	}
	return m
}

// DefaultMaterial is opaque rough white.
func DefaultMaterial() Material {
	return Material{
		BaseColor: mgl32.Vec3{1, 1, 1},
		Opacity:   1,
		Roughness: 1,
		IOR:       1.5,
		Specular:  0.5,
	}
}

func (m *Material) field(p MaterialProperty) []float32 {
	switch p {
	case PropBaseColor:
		return m.BaseColor[:]
	case PropOpacity:
		return []float32{m.Opacity}
	case PropEmissive:
		return m.Emissive[:]
	case PropEmissiveIntensity:
		return []float32{m.EmissiveIntensity}
	case PropRoughness:
		return []float32{m.Roughness}
	case PropMetalness:
		return []float32{m.Metalness}
	case PropIOR:
		return []float32{m.IOR}
	case PropTransmission:
		return []float32{m.Transmission}
	case PropClearcoat:
		return []float32{m.Clearcoat}
	case PropClearcoatRoughness:
		return []float32{m.ClearcoatRoughness}
	case PropSpecular:
		return []float32{m.Specular}
	}
	return nil
}

// Get returns a copy of the property's components.
func (m *Material) Get(p MaterialProperty) []float32 {
	return append([]float32(nil), m.field(p)...)
}

// Set assigns the property's components.
func (m *Material) Set(p MaterialProperty, value []float32) error {
	if !p.valid() {
		return fmt.Errorf("set %v: unknown property", p)
	}
	if len(value) != p.Components() {
		return fmt.Errorf("%w: %s wants %d, got %d", ErrPropertyValue, p, p.Components(), len(value))
	}
	switch p {
	case PropBaseColor:
		copy(m.BaseColor[:], value)
	case PropOpacity:
		m.Opacity = value[0]
	case PropEmissive:
		copy(m.Emissive[:], value)
	case PropEmissiveIntensity:
		m.EmissiveIntensity = value[0]
	case PropRoughness:
		m.Roughness = value[0]
	case PropMetalness:
		m.Metalness = value[0]
	case PropIOR:
		m.IOR = value[0]
	case PropTransmission:
		m.Transmission = value[0]
	case PropClearcoat:
		m.Clearcoat = value[0]
	case PropClearcoatRoughness:
		m.ClearcoatRoughness = value[0]
	case PropSpecular:
		m.Specular = value[0]
	}
	return nil
}

// Pack writes the material into dst, which must hold MaterialStride bytes.
func (m *Material) Pack(dst []byte) {
	for _, p := range MaterialProperties() {
		putFloats(dst[p.Offset():], m.field(p))
	}
}

// PackMaterials lays out materials back to back at MaterialStride.
func PackMaterials(materials []Material) []byte {
	buf := make([]byte, len(materials)*MaterialStride)
	for i := range materials {
		materials[i].Pack(buf[i*MaterialStride:])
	}
	return buf
}

// WriteMaterialProperty overwrites a single property of material index in a
// packed buffer and touches no other bytes.
func WriteMaterialProperty(buf []byte, index int, p MaterialProperty, value []float32) error {
	if !p.valid() {
		return fmt.Errorf("write %v: unknown property", p)
	}
	if len(value) != p.Components() {
		return fmt.Errorf("%w: %s wants %d, got %d", ErrPropertyValue, p, p.Components(), len(value))
	}
	off := index*MaterialStride + p.Offset()
	if index < 0 || off+len(value)*4 > len(buf) {
		return fmt.Errorf("%w: %d", ErrMaterialIndex, index)
	}
	putFloats(buf[off:], value)
	return nil
}

// ReadMaterialProperty decodes a property from a packed buffer.
func ReadMaterialProperty(buf []byte, index int, p MaterialProperty) ([]float32, error) {
	if !p.valid() {
		return nil, fmt.Errorf("read %v: unknown property", p)
	}
	off := index*MaterialStride + p.Offset()
	if index < 0 || off+p.Components()*4 > len(buf) {
		return nil, fmt.Errorf("%w: %d", ErrMaterialIndex, index)
	}
	out := make([]float32, p.Components())
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off+i*4:]))
	}
	return out, nil
}

func putFloats(dst []byte, values []float32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}
