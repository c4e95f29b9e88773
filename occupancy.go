package boardscan

import (
	"image"
	"math"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"
)

type PieceColor int

const (
	NoColor PieceColor = iota
	White
	Black
)

func (c PieceColor) String() string {
	switch c {
	case White:
		return "w"
	case Black:
		return "b"
	}
	return ""
}

type PieceType byte

const (
	Pawn   PieceType = 'P'
	Knight PieceType = 'N'
	Bishop PieceType = 'B'
	Rook   PieceType = 'R'
	Queen  PieceType = 'Q'
	King   PieceType = 'K'
)

// TileClassification is the verdict for one tile under one strategy.
type TileClassification struct {
	Occupied   bool
	Color      PieceColor
	Type       PieceType
	Confidence float64
}

// Symbol is the FEN letter for the occupant, or Empty.
func (tc TileClassification) Symbol() byte {
	if !tc.Occupied {
		return Empty
	}
	t := tc.Type
	if t == 0 {
		t = Pawn
	}
	if tc.Color == Black {
		return byte(t) + ('a' - 'A')
	}
	return byte(t)
}

// TileFeatures are the grayscale statistics the occupancy score is built from.
type TileFeatures struct {
	EdgeRatio    float64
	Variance     float64
	StdDev       float64
	LaplacianVar float64
	Entropy      float64
	CenterDiff   float64
	SobelMean    float64

	Mean      float64
	DarkRatio float64
}

type OccupancyClassifier struct {
	cfg OccupancyConfig
}

func NewOccupancyClassifier(cfg OccupancyConfig) *OccupancyClassifier {
	return &OccupancyClassifier{cfg: cfg}
}

// Classify decides empty or occupied from shape complexity, then the color from brightness.
func (oc *OccupancyClassifier) Classify(tile image.Image) (TileClassification, error) {
	f, err := oc.Features(tile)
	if err != nil {
		return TileClassification{}, err
	}

	score := oc.Score(f)
	if score < oc.cfg.MinScore {
		return TileClassification{Confidence: 1 - float64(score)/float64(oc.cfg.MinScore)}, nil
	}

	tc := TileClassification{
		Occupied:   true,
		Color:      White,
		Type:       Pawn,
		Confidence: math.Min(1, float64(score)/11),
	}
	if f.DarkRatio > oc.cfg.DarkRatio || f.Mean < oc.cfg.BlackMean {
		tc.Color = Black
	}
	return tc, nil
}

// Score sums the bucket points of every feature.
func (oc *OccupancyClassifier) Score(f TileFeatures) int {
	return bucketPoints(f.EdgeRatio, oc.cfg.EdgeRatio) +
		bucketPoints(f.Variance, oc.cfg.Variance) +
		bucketPoints(f.LaplacianVar, oc.cfg.Laplacian) +
		bucketPoints(f.Entropy, oc.cfg.Entropy) +
		bucketPoints(f.CenterDiff, oc.cfg.CenterDiff) +
		bucketPoints(f.SobelMean, oc.cfg.SobelMean)
}

func (oc *OccupancyClassifier) Features(tile image.Image) (TileFeatures, error) {
	var f TileFeatures

	gray, err := grayMat(tile)
	if err != nil {
		return f, err
	}
	defer gray.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	k := oc.cfg.BlurSize
	gocv.GaussianBlur(gray, &blurred, image.Pt(k, k), 0, 0, gocv.BorderDefault)

	f.EdgeRatio = edgeRatio(blurred, oc.cfg.CannyLow, oc.cfg.CannyHigh)

	pix, w, h := grayBytes(gray)
	vals := make([]float64, len(pix))
	dark := 0
	for i, p := range pix {
		vals[i] = float64(p)
		if p < oc.cfg.DarkCutoff {
			dark++
		}
	}
	f.Mean, f.Variance = stat.PopMeanVariance(vals, nil)
	f.StdDev = math.Sqrt(f.Variance)
	f.DarkRatio = float64(dark) / float64(len(vals))

	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(blurred, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)
	_, lapStd := meanStdDev(lap)
	f.LaplacianVar = lapStd * lapStd

	f.Entropy = histogramEntropy(pix, oc.cfg.HistBins)
	f.CenterDiff = centerBorderDiff(vals, w, h)

	sx := gocv.NewMat()
	defer sx.Close()
	sy := gocv.NewMat()
	defer sy.Close()
	mag := gocv.NewMat()
	defer mag.Close()
	gocv.Sobel(blurred, &sx, gocv.MatTypeCV64F, 1, 0, 3, 1, 0, gocv.BorderDefault)
	gocv.Sobel(blurred, &sy, gocv.MatTypeCV64F, 0, 1, 3, 1, 0, gocv.BorderDefault)
	gocv.Magnitude(sx, sy, &mag)
	f.SobelMean = mag.Mean().Val1

	return f, nil
}

// tileEdgeRatio is the fraction of Canny edge pixels in the blurred tile.
func tileEdgeRatio(tile image.Image, cfg OccupancyConfig) (float64, error) {
	gray, err := grayMat(tile)
	if err != nil {
		return 0, err
	}
	defer gray.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(cfg.BlurSize, cfg.BlurSize), 0, 0, gocv.BorderDefault)
	return edgeRatio(blurred, cfg.CannyLow, cfg.CannyHigh), nil
}

func edgeRatio(gray gocv.Mat, low, high float32) float64 {
	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, low, high)
	total := edges.Rows() * edges.Cols()
	if total == 0 {
		return 0
	}
	return float64(gocv.CountNonZero(edges)) / float64(total)
}

func meanStdDev(m gocv.Mat) (float64, float64) {
	mean := gocv.NewMat()
	defer mean.Close()
	std := gocv.NewMat()
	defer std.Close()
	gocv.MeanStdDev(m, &mean, &std)
	return mean.GetDoubleAt(0, 0), std.GetDoubleAt(0, 0)
}

// histogramEntropy is the natural-log Shannon entropy of a smoothed intensity histogram.
func histogramEntropy(pix []byte, bins int) float64 {
	if len(pix) == 0 {
		return 0
	}
	hist := make([]float64, bins)
	for _, p := range pix {
		hist[int(p)*bins/256]++
	}
	total := 0.0
	for i := range hist {
		hist[i] = hist[i]/float64(len(pix)) + 1e-7
		total += hist[i]
	}
	for i := range hist {
		hist[i] /= total
	}
	return stat.Entropy(hist)
}

// centerBorderDiff compares the middle half of the tile against its top and bottom quarters.
func centerBorderDiff(vals []float64, w, h int) float64 {
	ch, cw := h/4, w/4
	if ch == 0 || cw == 0 {
		return 0
	}

	var center, top, bottom []float64
	for y := 0; y < h; y++ {
		row := vals[y*w : (y+1)*w]
		switch {
		case y < ch:
			top = append(top, row...)
		case y >= 3*ch:
			bottom = append(bottom, row...)
		}
		if y >= ch && y < 3*ch {
			center = append(center, row[cw:3*cw]...)
		}
	}

	edge := (stat.Mean(top, nil) + stat.Mean(bottom, nil)) / 2
	return math.Abs(stat.Mean(center, nil) - edge)
}
