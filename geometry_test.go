package boardscan

import (
	"image"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
	"gocv.io/x/gocv"
)

func TestOrderCorners(t *testing.T) {
	want := CornerSet{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}

	perms := [][4]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {2, 0, 3, 1}, {1, 3, 0, 2}}
	for _, perm := range perms {
		var in [4]r2.Point
		for i, j := range perm {
			in[i] = want[j]
		}
		test.That(t, OrderCorners(in), test.ShouldEqual, want)
	}
}

func TestOrderCornersIdempotent(t *testing.T) {
	quads := [][4]r2.Point{
		{{X: 388, Y: 54}, {X: 965, Y: 79}, {X: 938, Y: 664}, {X: 359, Y: 636}},
		{{X: 120, Y: 300}, {X: 20, Y: 40}, {X: 500, Y: 20}, {X: 610, Y: 410}},
		{{X: 5.5, Y: 3.25}, {X: 1, Y: 9}, {X: 9, Y: 8}, {X: 2, Y: 2}},
	}
	for _, q := range quads {
		once := OrderCorners(q)
		twice := OrderCorners(once)
		test.That(t, twice, test.ShouldEqual, once)
	}
}

func TestCornerSetMeasures(t *testing.T) {
	c := CornerSet{{X: 0, Y: 0}, {X: 20, Y: 0}, {X: 20, Y: 10}, {X: 0, Y: 10}}
	test.That(t, c.Area(), test.ShouldAlmostEqual, 200)
	test.That(t, c.SideLengths(), test.ShouldResemble, [4]float64{20, 10, 20, 10})
	for _, a := range c.Angles() {
		test.That(t, a, test.ShouldAlmostEqual, 90)
	}
	test.That(t, c.IsConvex(), test.ShouldBeTrue)

	bowtie := CornerSet{{X: 0, Y: 0}, {X: 20, Y: 10}, {X: 20, Y: 0}, {X: 0, Y: 10}}
	test.That(t, bowtie.IsConvex(), test.ShouldBeFalse)

	test.That(t, c.Scale(2)[BottomRight], test.ShouldResemble, r2.Point{X: 40, Y: 20})
	test.That(t, c.ImagePoints()[TopRight], test.ShouldResemble, image.Pt(20, 0))
}

func TestFitLine(t *testing.T) {
	var pts []r2.Point
	for x := 0.0; x < 10; x++ {
		pts = append(pts, r2.Point{X: x, Y: 2*x + 1})
	}

	dir, p, err := FitLine(pts)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, math.Abs(dir.Y-2*dir.X), test.ShouldBeLessThan, 1e-9)
	test.That(t, p.Y, test.ShouldAlmostEqual, 2*p.X+1)

	_, _, err = FitLine(pts[:1])
	test.That(t, err, test.ShouldNotBeNil)

	_, _, err = FitLine([]r2.Point{{X: 1, Y: 1}, {X: 1, Y: 1}})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestIntersect(t *testing.T) {
	p, ok := Intersect(r2.Point{}, r2.Point{X: 1}, r2.Point{X: 5, Y: -5}, r2.Point{Y: 1})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, p.X, test.ShouldAlmostEqual, 5)
	test.That(t, p.Y, test.ShouldAlmostEqual, 0)

	_, ok = Intersect(r2.Point{}, r2.Point{X: 1}, r2.Point{Y: 3}, r2.Point{X: -2})
	test.That(t, ok, test.ShouldBeFalse)
}

func TestHomography(t *testing.T) {
	src := CornerSet{{X: 10, Y: 20}, {X: 110, Y: 25}, {X: 105, Y: 130}, {X: 5, Y: 120}}
	dst := squareCorners(800, 0)

	h, err := Homography(src, dst)
	test.That(t, err, test.ShouldBeNil)

	for i := range src {
		got := ProjectPoint(h, src[i])
		test.That(t, got.X, test.ShouldAlmostEqual, dst[i].X, 1e-6)
		test.That(t, got.Y, test.ShouldAlmostEqual, dst[i].Y, 1e-6)
	}
}

func TestHullArea(t *testing.T) {
	pts := []image.Point{{0, 0}, {10, 0}, {5, 5}, {10, 10}, {0, 10}, {3, 7}}
	pv := gocv.NewPointVectorFromPoints(pts)
	defer pv.Close()
	test.That(t, hullArea(pv), test.ShouldAlmostEqual, 100)

	short := gocv.NewPointVectorFromPoints(pts[:2])
	defer short.Close()
	test.That(t, hullArea(short), test.ShouldEqual, 0.0)
}
