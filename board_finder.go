package boardscan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"

	"go.viam.com/rdk/logging"
)

// ErrBoardNotDetected means every corner finder gave up.
var ErrBoardNotDetected = errors.New("board not detected")

// Detection is a candidate board outline.
type Detection struct {
	Corners CornerSet
	Method  string
	Score   float64
}

// CornerFinder locates the four outer corners of the board in a photo.
type CornerFinder interface {
	Name() string
	FindCorners(ctx context.Context, img image.Image) (Detection, error)
}

// RectifiedBoard is the board seen from straight above, Size x Size pixels.
type RectifiedBoard struct {
	Image   *image.RGBA
	Size    int
	Corners CornerSet
	Method  string
}

// Localizer tries its finders in order and rectifies with the first outline found.
type Localizer struct {
	cfg     LocalizerConfig
	finders []CornerFinder
	logger  logging.Logger
}

// NewLocalizer uses the inner-grid finder then the contour finder when no finders are given.
func NewLocalizer(cfg LocalizerConfig, logger logging.Logger, finders ...CornerFinder) *Localizer {
	if len(finders) == 0 {
		finders = []CornerFinder{
			&InnerGridFinder{Scales: cfg.GridScales},
			NewContourFinder(cfg),
		}
	}
	return &Localizer{cfg: cfg, finders: finders, logger: logger}
}

// FindCorners returns the first successful detection.
func (l *Localizer) FindCorners(ctx context.Context, img image.Image) (Detection, error) {
	var errs error
	for _, f := range l.finders {
		if err := ctx.Err(); err != nil {
			return Detection{}, err
		}
		d, err := f.FindCorners(ctx, img)
		if err == nil {
			if d.Method == "" {
				d.Method = f.Name()
			}
			l.logger.Debugf("board found by %s: %v", d.Method, d.Corners)
			return d, nil
		}
		l.logger.Debugf("%s: %v", f.Name(), err)
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", f.Name(), err))
	}
	return Detection{}, fmt.Errorf("%w: %w", ErrBoardNotDetected, errs)
}

// Locate finds the board and rectifies it.
func (l *Localizer) Locate(ctx context.Context, img image.Image) (*RectifiedBoard, error) {
	d, err := l.FindCorners(ctx, img)
	if err != nil {
		return nil, err
	}

	out, err := l.Rectify(img, d.Corners)
	if err != nil {
		return nil, err
	}

	return &RectifiedBoard{Image: out, Size: l.cfg.OutSize, Corners: d.Corners, Method: d.Method}, nil
}

// Rectify warps the quad to a square, trimming the frame. The trim is done in the
// same warp by pushing the destination corners outside the output.
func (l *Localizer) Rectify(img image.Image, c CornerSet) (*image.RGBA, error) {
	n := float64(l.cfg.OutSize)
	trim := math.Min(l.cfg.TrimRatio, l.cfg.MaxTrim) * n
	margin := trim * n / (n - 2*trim)
	return warpOnto(img, c, squareCorners(l.cfg.OutSize, margin), l.cfg.OutSize)
}

// ----

// InnerGridFinder looks for the 7x7 inner corners of the squares and extrapolates
// one square outward to the board edge.
type InnerGridFinder struct {
	Scales []float64
}

func (g *InnerGridFinder) Name() string {
	return "inner-grid"
}

func (g *InnerGridFinder) FindCorners(ctx context.Context, img image.Image) (Detection, error) {
	gray, err := grayMat(img)
	if err != nil {
		return Detection{}, err
	}
	defer gray.Close()

	clahe := gocv.NewCLAHEWithParams(2.0, image.Pt(8, 8))
	defer clahe.Close()
	enhanced := gocv.NewMat()
	defer enhanced.Close()
	clahe.Apply(gray, &enhanced)

	scales := g.Scales
	if len(scales) == 0 {
		scales = []float64{1}
	}

	for _, s := range scales {
		if err := ctx.Err(); err != nil {
			return Detection{}, err
		}
		pts, ok := innerGridCorners(enhanced, s)
		if !ok {
			continue
		}
		c, err := outerCornersFromGrid(pts)
		if err != nil {
			continue
		}
		return Detection{Corners: c, Method: g.Name(), Score: 1}, nil
	}

	return Detection{}, fmt.Errorf("no 7x7 inner grid at scales %v", scales)
}

// innerGridCorners runs the chessboard detector at one scale and returns the 49 points
// in original image coordinates, row by row.
func innerGridCorners(gray gocv.Mat, scale float64) ([]r2.Point, bool) {
	src := gray
	if scale != 1 {
		scaled := gocv.NewMat()
		defer scaled.Close()
		interp := gocv.InterpolationCubic
		if scale < 1 {
			interp = gocv.InterpolationArea
		}
		gocv.Resize(gray, &scaled, image.Point{}, scale, scale, interp)
		src = scaled
	}

	corners := gocv.NewMat()
	defer corners.Close()

	found := gocv.FindChessboardCorners(src, image.Pt(7, 7), &corners,
		gocv.CalibCBAdaptiveThresh|gocv.CalibCBNormalizeImage)
	if !found || corners.Rows()*corners.Cols() != 49 {
		return nil, false
	}

	pts := make([]r2.Point, 49)
	for i := range pts {
		v := corners.GetVecfAt(i, 0)
		pts[i] = r2.Point{X: float64(v[0]) / scale, Y: float64(v[1]) / scale}
	}
	return pts, true
}

// outerCornersFromGrid fits the four boundary rows/columns of a 7x7 grid, intersects
// them, then steps one square outward along each edge.
func outerCornersFromGrid(pts []r2.Point) (CornerSet, error) {
	if len(pts) != 49 {
		return CornerSet{}, fmt.Errorf("need 49 grid points, got %d", len(pts))
	}

	row := func(r int) []r2.Point { return pts[r*7 : r*7+7] }
	col := func(c int) []r2.Point {
		out := make([]r2.Point, 7)
		for r := range out {
			out[r] = pts[r*7+c]
		}
		return out
	}

	type line struct{ p, d r2.Point }
	fit := func(ps []r2.Point) (line, error) {
		d, p, err := FitLine(ps)
		return line{p, d}, err
	}

	var lines [4]line // top, bottom, left, right
	var err error
	for i, ps := range [][]r2.Point{row(0), row(6), col(0), col(6)} {
		lines[i], err = fit(ps)
		if err != nil {
			return CornerSet{}, err
		}
	}

	meet := func(a, b line) (r2.Point, error) {
		p, ok := Intersect(a.p, a.d, b.p, b.d)
		if !ok {
			return p, fmt.Errorf("grid edges are parallel")
		}
		return p, nil
	}

	var inner [4]r2.Point // grid order: (0,0) (0,6) (6,6) (6,0)
	pairs := [4][2]int{{0, 2}, {0, 3}, {1, 3}, {1, 2}}
	for i, pr := range pairs {
		inner[i], err = meet(lines[pr[0]], lines[pr[1]])
		if err != nil {
			return CornerSet{}, err
		}
	}

	// six square widths between the first and last inner corner of an edge
	uTop := inner[1].Sub(inner[0]).Mul(1.0 / 6)
	uBottom := inner[2].Sub(inner[3]).Mul(1.0 / 6)
	vLeft := inner[3].Sub(inner[0]).Mul(1.0 / 6)
	vRight := inner[2].Sub(inner[1]).Mul(1.0 / 6)

	outer := [4]r2.Point{
		inner[0].Sub(uTop).Sub(vLeft),
		inner[1].Add(uTop).Sub(vRight),
		inner[2].Add(uBottom).Add(vRight),
		inner[3].Sub(uBottom).Add(vLeft),
	}
	return OrderCorners(outer), nil
}

// ----

// ContourFinder looks for the best board-like quadrilateral among the image contours.
type ContourFinder struct {
	cfg LocalizerConfig
}

func NewContourFinder(cfg LocalizerConfig) *ContourFinder {
	return &ContourFinder{cfg: cfg}
}

func (cf *ContourFinder) Name() string {
	return "contour"
}

var cannyPairs = [][2]float32{{30, 100}, {50, 150}, {100, 200}}

func (cf *ContourFinder) FindCorners(ctx context.Context, img image.Image) (Detection, error) {
	gray, err := grayMat(img)
	if err != nil {
		return Detection{}, err
	}
	defer gray.Close()

	mask := boardEdgeMask(gray)
	defer mask.Close()

	if err := ctx.Err(); err != nil {
		return Detection{}, err
	}

	contours := gocv.FindContours(mask, gocv.RetrievalList, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		return Detection{}, fmt.Errorf("no contours")
	}

	type ranked struct {
		idx  int
		area float64
	}
	all := make([]ranked, contours.Size())
	for i := range all {
		all[i] = ranked{i, gocv.ContourArea(contours.At(i))}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].area > all[j].area })
	if len(all) > cf.cfg.MaxContours {
		all = all[:cf.cfg.MaxContours]
	}

	imgArea := float64(gray.Rows() * gray.Cols())
	var best Detection
	found := false

	for _, r := range all {
		if r.area < cf.cfg.MinAreaRatio*imgArea || r.area > cf.cfg.MaxAreaRatio*imgArea {
			continue
		}
		c, ok := cf.quadOf(contours.At(r.idx))
		if !ok {
			continue
		}
		s := scoreQuad(c, r.area, imgArea)
		if !found || s > best.Score {
			best = Detection{Corners: c, Method: cf.Name(), Score: s}
			found = true
		}
	}

	if found {
		return best, nil
	}

	// last resort: the rotated bounding box of the biggest blob
	rect := gocv.MinAreaRect(contours.At(all[0].idx))
	if len(rect.Points) != 4 || all[0].area < cf.cfg.MinAreaRatio*imgArea {
		return Detection{}, fmt.Errorf("no quadrilateral among %d contours", contours.Size())
	}
	c, err := CornersFromPoints(rect.Points)
	if err != nil {
		return Detection{}, err
	}
	return Detection{Corners: c, Method: "contour-rescue", Score: 0}, nil
}

// quadOf approximates a contour with increasing tolerance until it has 4 convex corners.
func (cf *ContourFinder) quadOf(pv gocv.PointVector) (CornerSet, bool) {
	peri := gocv.ArcLength(pv, true)
	for _, eps := range cf.cfg.EpsFactors {
		approx := gocv.ApproxPolyDP(pv, eps*peri, true)
		pts := approx.ToPoints()
		approx.Close()

		if len(pts) != 4 {
			continue
		}
		c, err := CornersFromPoints(pts)
		if err != nil || !c.IsConvex() {
			continue
		}
		return c, true
	}
	return CornerSet{}, false
}

// boardEdgeMask merges an inverted adaptive threshold with Canny edges at several
// sensitivities, then closes gaps so the board outline is one connected curve.
func boardEdgeMask(gray gocv.Mat) gocv.Mat {
	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(5, 5), 0, 0, gocv.BorderDefault)

	mask := gocv.NewMat()
	gocv.AdaptiveThreshold(blurred, &mask, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinaryInv, 11, 2)

	edges := gocv.NewMat()
	defer edges.Close()
	for _, p := range cannyPairs {
		gocv.Canny(blurred, &edges, p[0], p[1])
		gocv.BitwiseOr(mask, edges, &mask)
	}

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
	defer kernel.Close()
	gocv.MorphologyEx(mask, &mask, gocv.MorphClose, kernel)
	for i := 0; i < 2; i++ {
		gocv.Dilate(mask, &mask, kernel)
	}
	return mask
}

// scoreQuad weighs how much of the image the quad fills, how square it is and how
// close its corners are to right angles.
func scoreQuad(c CornerSet, area, imgArea float64) float64 {
	areaScore := math.Min(area/(0.9*imgArea), 1)

	sides := c.SideLengths()
	horiz := (sides[0] + sides[2]) / 2
	vert := (sides[1] + sides[3]) / 2
	squareScore := 0.0
	if lo := math.Min(horiz, vert); lo > 0 {
		squareScore = 1 - math.Abs(math.Max(horiz, vert)/lo-1)
	}

	angleErr := 0.0
	for _, a := range c.Angles() {
		angleErr += math.Abs(a - 90)
	}
	angleScore := math.Max(0, math.Min(1, 1-(angleErr/4)/30))

	return 0.5*areaScore + 0.3*squareScore + 0.2*angleScore
}
