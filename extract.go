package boardscan

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"go.viam.com/rdk/rimage"
)

// TileRecord describes one extracted square.
type TileRecord struct {
	Position      string          `json:"position"`
	Index         int             `json:"index"`
	Bounds        image.Rectangle `json:"bounds"`
	IsEmpty       bool            `json:"is_empty"`
	DetectedColor string          `json:"detected_color,omitempty"`
	Image         image.Image     `json:"-"`
}

// Extraction is the diagnostic view of how a photo was cut into squares.
type Extraction struct {
	Board   image.Image    `json:"-"`
	Size    int            `json:"size"`
	Method  string         `json:"method"`
	Corners [4]image.Point `json:"corners"`
	Tiles   []TileRecord   `json:"tiles"`
}

// ExtractTiles locates the board and returns every tile with its occupancy verdict.
// Positions assume white is at the bottom of the photo.
func (p *Pipeline) ExtractTiles(ctx context.Context, img image.Image) (*Extraction, error) {
	tiles, board, err := p.tilesFor(ctx, img)
	if err != nil {
		return nil, err
	}

	cls, err := p.classifyTiles(ctx, tiles)
	if err != nil {
		return nil, err
	}

	ex := &Extraction{Board: img, Size: img.Bounds().Dx()}
	if board != nil {
		ex.Board = board.Image
		ex.Size = board.Size
		ex.Method = board.Method
		copy(ex.Corners[:], board.Corners.ImagePoints())
	}

	for i, t := range tiles {
		ex.Tiles = append(ex.Tiles, TileRecord{
			Position:      SquareName(i),
			Index:         i,
			Bounds:        t.Bounds,
			IsEmpty:       !cls[i].Occupied,
			DetectedColor: cls[i].Color.String(),
			Image:         t.Image,
		})
	}
	return ex, nil
}

// Save writes board.png, one png per square and an index.json into dir.
func (ex *Extraction) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	if err := rimage.WriteImageToFile(filepath.Join(dir, "board.png"), ex.Board); err != nil {
		return err
	}
	for _, t := range ex.Tiles {
		fn := filepath.Join(dir, fmt.Sprintf("%02d-%s.png", t.Index, t.Position))
		if err := rimage.WriteImageToFile(fn, t.Image); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(ex, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "index.json"), data, 0o644)
}
