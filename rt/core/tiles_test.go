package core

import (
	"image"
	"testing"
)

func TestTileGridCoversImageOnce(t *testing.T) {
	for _, tc := range []struct{ tiles, w, h int }{
		{1, 7, 5}, {2, 8, 8}, {3, 10, 7}, {4, 3, 3}, {5, 64, 33},
	} {
		hits := make([]int, tc.w*tc.h)
		for _, r := range TileGrid(tc.tiles, tc.w, tc.h) {
			if !r.In(image.Rect(0, 0, tc.w, tc.h)) && !r.Empty() {
				t.Errorf("%+v: tile %v outside image", tc, r)
			}
			for y := r.Min.Y; y < r.Max.Y; y++ {
				for x := r.Min.X; x < r.Max.X; x++ {
					hits[y*tc.w+x]++
				}
			}
		}
		for i, n := range hits {
			if n != 1 {
				t.Fatalf("%+v: pixel %d covered %d times", tc, i, n)
			}
		}
	}
}

func TestTileBoundsCeilDivision(t *testing.T) {
	got := TileBounds(3, 2, 5, 5)
	if want := image.Rect(3, 3, 5, 5); got != want {
		t.Errorf("TileBounds = %v, want %v", got, want)
	}
}

func TestTileSequenceIsPermutation(t *testing.T) {
	for _, order := range []TileOrder{TileRowMajor, TileSpiral} {
		seq := TileSequence(4, order)
		if len(seq) != 16 {
			t.Fatalf("%v: len %d", order, len(seq))
		}
		seen := make(map[int]bool)
		for _, i := range seq {
			if i < 0 || i >= 16 || seen[i] {
				t.Fatalf("%v: bad sequence %v", order, seq)
			}
			seen[i] = true
		}
	}
}

func TestTileSpiralStartsAtCenter(t *testing.T) {
	seq := TileSequence(3, TileSpiral)
	if seq[0] != 4 {
		t.Errorf("first tile = %d, want center 4", seq[0])
	}
	if TileSequence(1, TileSpiral)[0] != 0 {
		t.Error("single tile grid")
	}
}
