package core

import (
	"fmt"
	"image"
	"math"
	"sort"
)

// TileOrder is the order tiles are visited in within one pass.
type TileOrder int

const (
	TileRowMajor TileOrder = iota
	// TileSpiral starts at the image center and works outwards.
	TileSpiral
)

func (o TileOrder) String() string {
	switch o {
	case TileRowMajor:
		return "rowMajor"
	case TileSpiral:
		return "spiral"
	default:
		return fmt.Sprintf("TileOrder(%d)", int(o))
	}
}

func ParseTileOrder(s string) (TileOrder, error) {
	switch s {
	case "", "rowMajor":
		return TileRowMajor, nil
	case "spiral":
		return TileSpiral, nil
	}
	return 0, fmt.Errorf("unknown tile order %q", s)
}

// TileBounds returns the pixel rectangle of grid cell index in a
// tileCount x tileCount grid over a width x height image. Cell sizes use
// ceiling division so the grid always covers the image; trailing cells may
// be clipped or empty.
func TileBounds(index, tileCount, width, height int) image.Rectangle {
	if tileCount < 1 {
		tileCount = 1
	}
	tw := (width + tileCount - 1) / tileCount
	th := (height + tileCount - 1) / tileCount
	tx := index % tileCount
	ty := index / tileCount
	x0 := min(tx*tw, width)
	y0 := min(ty*th, height)
	x1 := min(x0+tw, width)
	y1 := min(y0+th, height)
	return image.Rect(x0, y0, x1, y1)
}

// TileGrid returns the bounds of every cell in row-major order.
func TileGrid(tileCount, width, height int) []image.Rectangle {
	if tileCount < 1 {
		tileCount = 1
	}
	out := make([]image.Rectangle, tileCount*tileCount)
	for i := range out {
		out[i] = TileBounds(i, tileCount, width, height)
	}
	return out
}

// TileSequence returns a permutation of the tileCount² cell indices in the
// given order.
func TileSequence(tileCount int, order TileOrder) []int {
	if tileCount < 1 {
		tileCount = 1
	}
	n := tileCount * tileCount
	seq := make([]int, n)
	for i := range seq {
		seq[i] = i
	}
	if order != TileSpiral {
		return seq
	}

	c := float64(tileCount-1) / 2
	key := func(i int) (float64, float64) {
		dx := float64(i%tileCount) - c
		dy := float64(i/tileCount) - c
		ring := math.Max(math.Abs(dx), math.Abs(dy))
		angle := math.Atan2(dy, dx)
		if angle < 0 {
			angle += 2 * math.Pi
		}
		return ring, angle
	}
	sort.SliceStable(seq, func(a, b int) bool {
		ra, aa := key(seq[a])
		rb, ab := key(seq[b])
		if ra != rb {
			return ra < rb
		}
		return aa < ab
	})
	return seq
}
