package gpu

import (
	"encoding/binary"
	"math"
)

// Buffer is a flat little-endian data block bound to a shader uniform or
// storage slot. Writers mutate Data in place and call MarkDirty so the
// backend re-uploads it.
type Buffer struct {
	Label       string
	Data        []byte
	Version     uint64
	NeedsUpdate bool
}

func NewBuffer(label string, size int) *Buffer {
	return &Buffer{Label: label, Data: make([]byte, size), NeedsUpdate: true}
}

// NewFloatBuffer packs values into a new buffer.
func NewFloatBuffer(label string, values []float32) *Buffer {
	return &Buffer{Label: label, Data: Float32sToBytes(values), NeedsUpdate: true}
}

func (b *Buffer) MarkDirty() {
	b.Version++
	b.NeedsUpdate = true
}

// Float32At reads the float at byte offset.
func (b *Buffer) Float32At(offset int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b.Data[offset:]))
}

// PutFloat32 writes a float at byte offset without marking the buffer dirty.
func (b *Buffer) PutFloat32(offset int, v float32) {
	binary.LittleEndian.PutUint32(b.Data[offset:], math.Float32bits(v))
}

// Float32s decodes the whole buffer.
func (b *Buffer) Float32s() []float32 {
	out := make([]float32, len(b.Data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b.Data[i*4:]))
	}
	return out
}

func Float32sToBytes(values []float32) []byte {
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func Float32ToBytes(v float32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
	return buf
}

// Vec3ToBytesPadded packs a vec3 into a 16 byte slot as WGSL expects.
func Vec3ToBytesPadded(v [3]float32) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(v[0]))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(v[1]))
	binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(v[2]))
	return buf
}

func Mat4ToBytes(m [16]float32) []byte {
	buf := make([]byte, 64)
	for i, v := range m {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
