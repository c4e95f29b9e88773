package boardscan

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/golang/geo/r2"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// CornerSet is always ordered top-left, top-right, bottom-right, bottom-left.
type CornerSet [4]r2.Point

const (
	TopLeft = iota
	TopRight
	BottomRight
	BottomLeft
)

// OrderCorners canonicalizes four points. Top-left and bottom-right have the smallest
// and largest x+y, top-right and bottom-left the smallest and largest y-x.
// On a tie the earliest input point wins the slot.
func OrderCorners(pts [4]r2.Point) CornerSet {
	tl, tr, br, bl := 0, 0, 0, 0
	sum := func(i int) float64 { return pts[i].X + pts[i].Y }
	diff := func(i int) float64 { return pts[i].Y - pts[i].X }

	for i := 1; i < 4; i++ {
		if sum(i) < sum(tl) {
			tl = i
		}
		if sum(i) > sum(br) {
			br = i
		}
		if diff(i) < diff(tr) {
			tr = i
		}
		if diff(i) > diff(bl) {
			bl = i
		}
	}

	return CornerSet{pts[tl], pts[tr], pts[br], pts[bl]}
}

// CornersFromPoints orders the first four points of pts.
func CornersFromPoints(pts []image.Point) (CornerSet, error) {
	if len(pts) != 4 {
		return CornerSet{}, fmt.Errorf("need 4 points, got %d", len(pts))
	}
	var in [4]r2.Point
	for i, p := range pts {
		in[i] = r2.Point{X: float64(p.X), Y: float64(p.Y)}
	}
	return OrderCorners(in), nil
}

// ImagePoints rounds the corners to pixel coordinates.
func (c CornerSet) ImagePoints() []image.Point {
	out := make([]image.Point, 4)
	for i, p := range c {
		out[i] = image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
	}
	return out
}

// Area is the absolute shoelace area of the quadrilateral.
func (c CornerSet) Area() float64 {
	return polygonArea(c[:])
}

// Angles returns the interior angle in degrees at each corner.
func (c CornerSet) Angles() [4]float64 {
	var out [4]float64
	for i := range c {
		prev := c[(i+3)%4].Sub(c[i])
		next := c[(i+1)%4].Sub(c[i])
		n := prev.Norm() * next.Norm()
		if n == 0 {
			continue
		}
		cos := math.Max(-1, math.Min(1, prev.Dot(next)/n))
		out[i] = math.Acos(cos) * 180 / math.Pi
	}
	return out
}

// SideLengths returns top, right, bottom, left edge lengths.
func (c CornerSet) SideLengths() [4]float64 {
	var out [4]float64
	for i := range c {
		out[i] = c[(i+1)%4].Sub(c[i]).Norm()
	}
	return out
}

// IsConvex reports whether the quadrilateral turns the same way at every corner.
func (c CornerSet) IsConvex() bool {
	sign := 0.0
	for i := range c {
		a := c[(i+1)%4].Sub(c[i])
		b := c[(i+2)%4].Sub(c[(i+1)%4])
		cr := a.Cross(b)
		if cr == 0 {
			return false
		}
		if sign == 0 {
			sign = cr
		} else if sign*cr < 0 {
			return false
		}
	}
	return true
}

// Scale multiplies every corner by f, used when detection ran on a resized image.
func (c CornerSet) Scale(f float64) CornerSet {
	var out CornerSet
	for i, p := range c {
		out[i] = p.Mul(f)
	}
	return out
}

func polygonArea(pts []r2.Point) float64 {
	a := 0.0
	for i := range pts {
		a += pts[i].Cross(pts[(i+1)%len(pts)])
	}
	return math.Abs(a) / 2
}

// FitLine is a total least squares fit: the line through the centroid along the
// principal axis of the point cloud.
func FitLine(pts []r2.Point) (dir, point r2.Point, err error) {
	if len(pts) < 2 {
		return r2.Point{}, r2.Point{}, fmt.Errorf("need at least 2 points to fit a line, got %d", len(pts))
	}

	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i] = p.X
		ys[i] = p.Y
	}

	mx, sxx := stat.PopMeanVariance(xs, nil)
	my, syy := stat.PopMeanVariance(ys, nil)
	sxy := stat.Covariance(xs, ys, nil) * float64(len(pts)-1) / float64(len(pts))

	if sxx == 0 && syy == 0 {
		return r2.Point{}, r2.Point{}, errors.New("degenerate point set")
	}

	theta := 0.5 * math.Atan2(2*sxy, sxx-syy)
	return r2.Point{X: math.Cos(theta), Y: math.Sin(theta)}, r2.Point{X: mx, Y: my}, nil
}

// Intersect returns where p1+t*d1 meets p2+s*d2. ok is false for parallel lines.
func Intersect(p1, d1, p2, d2 r2.Point) (r2.Point, bool) {
	den := d1.Cross(d2)
	if math.Abs(den) < 1e-9 {
		return r2.Point{}, false
	}
	t := p2.Sub(p1).Cross(d2) / den
	return p1.Add(d1.Mul(t)), true
}

// Homography solves for the 3x3 projective transform taking src onto dst.
func Homography(src, dst CornerSet) (*mat.Dense, error) {
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)

	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y

		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y})
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y})
		b.SetVec(2*i, u)
		b.SetVec(2*i+1, v)
	}

	var h mat.VecDense
	if err := h.SolveVec(a, b); err != nil {
		return nil, fmt.Errorf("homography: %w", err)
	}

	return mat.NewDense(3, 3, []float64{
		h.AtVec(0), h.AtVec(1), h.AtVec(2),
		h.AtVec(3), h.AtVec(4), h.AtVec(5),
		h.AtVec(6), h.AtVec(7), 1,
	}), nil
}

// ProjectPoint applies a homography to p.
func ProjectPoint(h mat.Matrix, p r2.Point) r2.Point {
	x := h.At(0, 0)*p.X + h.At(0, 1)*p.Y + h.At(0, 2)
	y := h.At(1, 0)*p.X + h.At(1, 1)*p.Y + h.At(1, 2)
	w := h.At(2, 0)*p.X + h.At(2, 1)*p.Y + h.At(2, 2)
	if w == 0 {
		return r2.Point{X: math.Inf(1), Y: math.Inf(1)}
	}
	return r2.Point{X: x / w, Y: y / w}
}

// squareCorners is the corner set of an n x n image, grown outward by margin.
func squareCorners(n int, margin float64) CornerSet {
	lo := -margin
	hi := float64(n-1) + margin
	return CornerSet{{X: lo, Y: lo}, {X: hi, Y: lo}, {X: hi, Y: hi}, {X: lo, Y: hi}}
}

// WarpPerspective maps the quadrilateral c onto an outSize square using cubic resampling.
func WarpPerspective(img image.Image, c CornerSet, outSize int) (*image.RGBA, error) {
	return warpOnto(img, c, squareCorners(outSize, 0), outSize)
}

func warpOnto(img image.Image, src, dst CornerSet, outSize int) (*image.RGBA, error) {
	if outSize <= 0 {
		return nil, fmt.Errorf("bad output size %d", outSize)
	}

	h, err := Homography(src, dst)
	if err != nil {
		return nil, err
	}

	m := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	defer m.Close()
	for r := 0; r < 3; r++ {
		for col := 0; col < 3; col++ {
			m.SetDoubleAt(r, col, h.At(r, col))
		}
	}

	in, err := imageToMat(img)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	out := gocv.NewMat()
	defer out.Close()

	gocv.WarpPerspectiveWithParams(in, &out, m, image.Pt(outSize, outSize),
		gocv.InterpolationCubic, gocv.BorderConstant, color.RGBA{})

	return matToImage(out)
}

// hullArea is the area of the convex hull of a contour.
func hullArea(pv gocv.PointVector) float64 {
	if pv.Size() < 3 {
		return 0
	}
	hull := gocv.NewMat()
	defer hull.Close()
	gocv.ConvexHull(pv, &hull, false, true)

	hp := gocv.NewPointVectorFromMat(hull)
	defer hp.Close()
	return gocv.ContourArea(hp)
}
