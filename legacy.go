package boardscan

import (
	"fmt"
	"image"
	"math"
	"sort"

	"gocv.io/x/gocv"
)

const (
	legacyMaxSide  = 800
	lineAngleSlack = 10.0 // degrees
	lineMergeDist  = 20
	houghThreshold = 100
	houghMinLength = 100
	houghMaxGap    = 10
)

// GridLines are the 9 column (Xs) and 9 row (Ys) boundaries of the board in photo pixels.
type GridLines struct {
	Xs []int
	Ys []int
}

// DetectGridLines finds the board grid directly in the unrectified photo. When it does
// not see exactly nine lines per axis it spreads nine evenly between the outermost two.
func DetectGridLines(img image.Image) (GridLines, error) {
	gray, err := grayMat(img)
	if err != nil {
		return GridLines{}, err
	}
	defer gray.Close()

	work := gray
	scale := 1.0
	if long := max(gray.Rows(), gray.Cols()); long > legacyMaxSide {
		scale = float64(legacyMaxSide) / float64(long)
		small := gocv.NewMat()
		defer small.Close()
		gocv.Resize(gray, &small, image.Point{}, scale, scale, gocv.InterpolationArea)
		work = small
	}

	clahe := gocv.NewCLAHEWithParams(2.0, image.Pt(8, 8))
	defer clahe.Close()
	enhanced := gocv.NewMat()
	defer enhanced.Close()
	clahe.Apply(work, &enhanced)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(enhanced, &edges, 50, 150)

	lines := gocv.NewMat()
	defer lines.Close()
	gocv.HoughLinesPWithParams(edges, &lines, 1, math.Pi/180, houghThreshold, houghMinLength, houghMaxGap)

	segs := make([][4]int, 0, lines.Rows())
	for i := 0; i < lines.Rows(); i++ {
		v := lines.GetVeciAt(i, 0)
		segs = append(segs, [4]int{int(v[0]), int(v[1]), int(v[2]), int(v[3])})
	}
	xs, ys := splitSegments(segs)

	w, h := edges.Cols(), edges.Rows()

	gx, err := gridBoundaries(xs, lineMergeDist, float64(w))
	if err != nil {
		return GridLines{}, fmt.Errorf("vertical lines: %w", err)
	}
	gy, err := gridBoundaries(ys, lineMergeDist, float64(h))
	if err != nil {
		return GridLines{}, fmt.Errorf("horizontal lines: %w", err)
	}

	return GridLines{Xs: rescale(gx, scale), Ys: rescale(gy, scale)}, nil
}

// splitSegments keeps the near-vertical and near-horizontal segments (x1, y1, x2, y2)
// and returns their mean column and row positions.
func splitSegments(segs [][4]int) (xs, ys []float64) {
	for _, sg := range segs {
		dx := math.Abs(float64(sg[2] - sg[0]))
		dy := math.Abs(float64(sg[3] - sg[1]))

		angle := 90.0
		if dx > 0 {
			angle = math.Atan(dy/dx) * 180 / math.Pi
		}

		switch {
		case angle < lineAngleSlack:
			ys = append(ys, float64(sg[1]+sg[3])/2)
		case angle > 90-lineAngleSlack:
			xs = append(xs, float64(sg[0]+sg[2])/2)
		}
	}
	return xs, ys
}

// gridBoundaries merges nearby positions and returns 9 boundaries.
func gridBoundaries(pos []float64, mergeDist, limit float64) ([]float64, error) {
	var in []float64
	for _, p := range pos {
		if p >= 0 && p <= limit {
			in = append(in, p)
		}
	}
	sort.Float64s(in)

	var merged []float64
	for _, p := range in {
		if len(merged) > 0 && p-merged[len(merged)-1] <= mergeDist {
			continue
		}
		merged = append(merged, p)
	}

	if len(merged) == 9 {
		return merged, nil
	}
	if len(merged) < 2 {
		return nil, fmt.Errorf("found %d lines, need at least 2", len(merged))
	}

	first, last := merged[0], merged[len(merged)-1]
	out := make([]float64, 9)
	for i := range out {
		out[i] = first + (last-first)*float64(i)/8
	}
	return out, nil
}

func rescale(vals []float64, scale float64) []int {
	out := make([]int, len(vals))
	for i, v := range vals {
		out[i] = int(math.Round(v / scale))
	}
	return out
}

// Corners returns the outer corners of the grid: where the first and last lines cross.
func (g GridLines) Corners() CornerSet {
	x0, x1 := g.Xs[0], g.Xs[len(g.Xs)-1]
	y0, y1 := g.Ys[0], g.Ys[len(g.Ys)-1]
	return CornerSet{
		{X: float64(x0), Y: float64(y0)},
		{X: float64(x1), Y: float64(y0)},
		{X: float64(x1), Y: float64(y1)},
		{X: float64(x0), Y: float64(y1)},
	}
}
