package gpu

import (
	"image"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTarget_RejectsInvalidSize(t *testing.T) {
	for _, size := range [][2]int{{0, 10}, {10, 0}, {-1, 5}, {5, -3}} {
		_, err := NewTarget(DefaultTargetDescriptor("bad", size[0], size[1]))
		assert.ErrorIs(t, err, ErrInvalidSize, "size %v", size)
	}
}

func TestTarget_DefaultsToFloatFormat(t *testing.T) {
	tgt, err := NewTarget(TargetDescriptor{Label: "acc", Width: 4, Height: 2})
	require.NoError(t, err)
	assert.Equal(t, gputypes.TextureFormatRGBA32Float, tgt.Format())
	assert.Len(t, tgt.Pixels(), 4*2*4)
}

func TestTarget_ResizeAndClear(t *testing.T) {
	tgt, err := NewTarget(DefaultTargetDescriptor("acc", 2, 2))
	require.NoError(t, err)
	tgt.Set(1, 1, [4]float32{1, 2, 3, 4})
	assert.Equal(t, [4]float32{1, 2, 3, 4}, tgt.At(1, 1))

	require.NoError(t, tgt.Resize(3, 1))
	assert.Equal(t, 3, tgt.Width())
	assert.Equal(t, 1, tgt.Height())
	assert.Equal(t, [4]float32{}, tgt.At(2, 0))

	assert.ErrorIs(t, tgt.Resize(0, 1), ErrInvalidSize)
	assert.Equal(t, 3, tgt.Width(), "failed resize leaves target untouched")

	tgt.Clear([4]float32{0.5, 0.5, 0.5, 1})
	assert.Equal(t, [4]float32{0.5, 0.5, 0.5, 1}, tgt.At(0, 0))
}

func TestTarget_CopyFromRegion(t *testing.T) {
	src, _ := NewTarget(DefaultTargetDescriptor("src", 4, 4))
	dst, _ := NewTarget(DefaultTargetDescriptor("dst", 4, 4))
	src.Clear([4]float32{1, 1, 1, 1})

	dst.CopyFrom(src, image.Rect(1, 1, 3, 3))
	assert.Equal(t, [4]float32{1, 1, 1, 1}, dst.At(1, 1))
	assert.Equal(t, [4]float32{1, 1, 1, 1}, dst.At(2, 2))
	assert.Equal(t, [4]float32{}, dst.At(0, 0))
	assert.Equal(t, [4]float32{}, dst.At(3, 3))
}

func TestBuffer_FloatRoundTrip(t *testing.T) {
	buf := NewFloatBuffer("lights", []float32{1, 2.5, -3})
	assert.Equal(t, []float32{1, 2.5, -3}, buf.Float32s())
	assert.Equal(t, float32(2.5), buf.Float32At(4))

	buf.NeedsUpdate = false
	buf.PutFloat32(8, 7)
	buf.MarkDirty()
	assert.Equal(t, float32(7), buf.Float32At(8))
	assert.True(t, buf.NeedsUpdate)
	assert.Equal(t, uint64(1), buf.Version)
}

func TestToRGBA_ToneMapsAndClamps(t *testing.T) {
	tgt, _ := NewTarget(DefaultTargetDescriptor("t", 2, 1))
	tgt.Set(0, 0, [4]float32{0, 0, 0, 1})
	tgt.Set(1, 0, [4]float32{1000, 1000, 1000, 1})

	img := ToRGBA(tgt, 1)
	require.NotNil(t, img)
	assert.Equal(t, uint8(0), img.RGBAAt(0, 0).R)
	assert.Equal(t, uint8(255), img.RGBAAt(1, 0).R)
}

func TestBlit_ScalesNearest(t *testing.T) {
	src, _ := NewTarget(DefaultTargetDescriptor("src", 2, 1))
	src.Set(0, 0, [4]float32{1, 0, 0, 1})
	src.Set(1, 0, [4]float32{0, 1, 0, 1})
	dst, _ := NewTarget(DefaultTargetDescriptor("dst", 4, 2))

	require.NoError(t, Blit(dst, src))
	assert.Equal(t, [4]float32{1, 0, 0, 1}, dst.At(1, 1))
	assert.Equal(t, [4]float32{0, 1, 0, 1}, dst.At(2, 0))

	same, _ := NewTarget(DefaultTargetDescriptor("same", 2, 1))
	require.NoError(t, Blit(same, src))
	assert.Equal(t, src.Pixels(), same.Pixels())

	src.Release()
	assert.ErrorIs(t, Blit(dst, src), ErrNotHostVisible)
}
