package boardscan

import (
	"errors"
	"fmt"
	"image"
)

// ErrShortTileSet means slicing could not produce all 64 squares.
var ErrShortTileSet = errors.New("fewer than 64 tiles")

// Tile is one square cut out of a board image. Index 0 is the visually top-left square.
type Tile struct {
	Index  int
	Bounds image.Rectangle
	Image  image.Image
}

type TileSet [64]Tile

// SliceTiles cuts a rectified board into 64 padded squares, row-major from the top left.
func SliceTiles(board image.Image, pad int) (*TileSet, error) {
	b := board.Bounds()
	side := min(b.Dx(), b.Dy())
	step := side / 8

	edges := make([]int, 9)
	for i := range edges {
		edges[i] = i * step
	}
	return SliceSegments(board, edges, edges, pad)
}

// SliceSegments cuts img along 9 vertical (xs) and 9 horizontal (ys) boundaries.
func SliceSegments(img image.Image, xs, ys []int, pad int) (*TileSet, error) {
	if len(xs) != 9 || len(ys) != 9 {
		return nil, fmt.Errorf("need 9 boundaries per axis, got %d and %d", len(xs), len(ys))
	}

	var ts TileSet
	n := 0
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			rect := image.Rect(xs[c]+pad, ys[r]+pad, xs[c+1]-pad, ys[r+1]-pad)
			rect = rect.Intersect(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
			if rect.Empty() {
				continue
			}
			idx := r*8 + c
			ts[idx] = Tile{
				Index:  idx,
				Bounds: rect,
				Image:  cropImage(img, rect),
			}
			n++
		}
	}

	if n != 64 {
		return nil, fmt.Errorf("%w: got %d", ErrShortTileSet, n)
	}
	return &ts, nil
}

// ValidRotation reports whether r is one of 0, 90, 180, 270.
func ValidRotation(r int) bool {
	return r == 0 || r == 90 || r == 180 || r == 270
}

// RemapIndex returns which tile holds square i (a8 = 0) when the photo is rotated.
func RemapIndex(i, rotation int) int {
	row, col := i/8, i%8
	switch rotation {
	case 90:
		return col*8 + (7 - row)
	case 180:
		return 63 - i
	case 270:
		return (7-col)*8 + row
	default:
		return i
	}
}

// RemapPlacement reorders a per-tile placement into square order.
func RemapPlacement(tiles Placement, rotation int) Placement {
	var out Placement
	for i := range out {
		out[i] = tiles[RemapIndex(i, rotation)]
	}
	return out
}
