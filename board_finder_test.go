package boardscan

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/rdk/logging"
	"go.viam.com/test"
)

var (
	white = color.RGBA{255, 255, 255, 255}
	black = color.RGBA{0, 0, 0, 255}
)

// checkerboard draws an 8x8 board of square pixels with its top-left at (off, off)
// on a white canvas. a8 is dark.
func checkerboard(canvas, off, square int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, canvas, canvas))
	draw.Draw(img, img.Bounds(), image.NewUniform(white), image.Point{}, draw.Src)
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			if (r+c)%2 != 0 {
				continue
			}
			sq := image.Rect(off+c*square, off+r*square, off+(c+1)*square, off+(r+1)*square)
			draw.Draw(img, sq, image.NewUniform(black), image.Point{}, draw.Src)
		}
	}
	return img
}

func checkCorners(t *testing.T, got CornerSet, expected []image.Point, tolerance float64) {
	t.Helper()
	t.Logf("Found corners: %v", got)
	for i, e := range expected {
		d := got[i].Sub(r2.Point{X: float64(e.X), Y: float64(e.Y)}).Norm()
		t.Logf("Expected %v, found: %v, distance: %.1f pixels", e, got[i], d)
		test.That(t, d, test.ShouldBeLessThan, tolerance)
	}
}

type fakeFinder struct {
	name   string
	err    error
	d      Detection
	called int
}

func (f *fakeFinder) Name() string { return f.name }

func (f *fakeFinder) FindCorners(ctx context.Context, img image.Image) (Detection, error) {
	f.called++
	return f.d, f.err
}

func TestLocalizerFallsThrough(t *testing.T) {
	logger := logging.NewTestLogger(t)
	want := CornerSet{{X: 10, Y: 10}, {X: 90, Y: 10}, {X: 90, Y: 90}, {X: 10, Y: 90}}

	a := &fakeFinder{name: "a", err: errors.New("nope")}
	b := &fakeFinder{name: "b", d: Detection{Corners: want, Score: 0.5}}
	c := &fakeFinder{name: "c", err: errors.New("never")}

	l := NewLocalizer(DefaultLocalizerConfig(), logger, a, b, c)
	d, err := l.FindCorners(context.Background(), image.NewRGBA(image.Rect(0, 0, 100, 100)))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.Corners, test.ShouldEqual, want)
	test.That(t, d.Method, test.ShouldEqual, "b")
	test.That(t, a.called, test.ShouldEqual, 1)
	test.That(t, b.called, test.ShouldEqual, 1)
	test.That(t, c.called, test.ShouldEqual, 0)
}

func TestLocalizerAllFail(t *testing.T) {
	logger := logging.NewTestLogger(t)
	a := &fakeFinder{name: "a", err: errors.New("first")}
	b := &fakeFinder{name: "b", err: errors.New("second")}

	l := NewLocalizer(DefaultLocalizerConfig(), logger, a, b)
	_, err := l.Locate(context.Background(), image.NewRGBA(image.Rect(0, 0, 100, 100)))
	test.That(t, errors.Is(err, ErrBoardNotDetected), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "first")
	test.That(t, err.Error(), test.ShouldContainSubstring, "second")
}

func TestLocalizerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &fakeFinder{name: "a"}
	l := NewLocalizer(DefaultLocalizerConfig(), logging.NewTestLogger(t), a)
	_, err := l.FindCorners(ctx, image.NewRGBA(image.Rect(0, 0, 10, 10)))
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
	test.That(t, a.called, test.ShouldEqual, 0)
}

func TestInnerGridFinder(t *testing.T) {
	input := checkerboard(600, 100, 50)

	g := &InnerGridFinder{Scales: DefaultLocalizerConfig().GridScales}
	d, err := g.FindCorners(context.Background(), input)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.Method, test.ShouldEqual, "inner-grid")

	checkCorners(t, d.Corners, []image.Point{
		{100, 100}, // top-left
		{500, 100}, // top-right
		{500, 500}, // bottom-right
		{100, 500}, // bottom-left
	}, 6)
}

func TestInnerGridFinderNoBoard(t *testing.T) {
	g := &InnerGridFinder{}
	_, err := g.FindCorners(context.Background(), uniformTile(200))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestOuterCornersFromGrid(t *testing.T) {
	var pts []r2.Point
	for r := 1; r <= 7; r++ {
		for c := 1; c <= 7; c++ {
			pts = append(pts, r2.Point{X: 20 + float64(c)*10, Y: 40 + float64(r)*10})
		}
	}
	c, err := outerCornersFromGrid(pts)
	test.That(t, err, test.ShouldBeNil)
	checkCorners(t, c, []image.Point{{20, 40}, {100, 40}, {100, 120}, {20, 120}}, 1e-6)

	_, err = outerCornersFromGrid(pts[:10])
	test.That(t, err, test.ShouldNotBeNil)
}

func TestContourFinder(t *testing.T) {
	input := image.NewRGBA(image.Rect(0, 0, 600, 600))
	draw.Draw(input, input.Bounds(), image.NewUniform(white), image.Point{}, draw.Src)
	draw.Draw(input, image.Rect(150, 100, 450, 400), image.NewUniform(color.RGBA{60, 40, 30, 255}), image.Point{}, draw.Src)

	cf := NewContourFinder(DefaultLocalizerConfig())
	d, err := cf.FindCorners(context.Background(), input)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.Score, test.ShouldBeGreaterThan, 0.0)

	checkCorners(t, d.Corners, []image.Point{{150, 100}, {450, 100}, {450, 400}, {150, 400}}, 12)
}

func TestContourFinderBlank(t *testing.T) {
	cf := NewContourFinder(DefaultLocalizerConfig())
	_, err := cf.FindCorners(context.Background(), uniformTile(255))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestScoreQuad(t *testing.T) {
	square := CornerSet{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100}}
	skewed := CornerSet{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 160, Y: 40}, {X: 0, Y: 100}}
	test.That(t, scoreQuad(square, 10000, 20000), test.ShouldBeGreaterThan, scoreQuad(skewed, 10000, 20000))
}

func TestLocateAndRectify(t *testing.T) {
	logger := logging.NewTestLogger(t)
	input := checkerboard(600, 100, 50)

	l := NewLocalizer(DefaultLocalizerConfig(), logger)
	board, err := l.Locate(context.Background(), input)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, board.Size, test.ShouldEqual, 800)
	test.That(t, board.Image.Bounds().Dx(), test.ShouldEqual, 800)
	test.That(t, board.Image.Bounds().Dy(), test.ShouldEqual, 800)

	// the trim grows each square a little past 100 pixels
	dark := board.Image.RGBAAt(50, 50)
	light := board.Image.RGBAAt(156, 50)
	test.That(t, dark.R, test.ShouldBeLessThan, 60)
	test.That(t, light.R, test.ShouldBeGreaterThan, 200)

	tiles, err := SliceTiles(board.Image, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(tiles), test.ShouldEqual, 64)
}

func TestWarpPerspectiveIdentity(t *testing.T) {
	input := checkerboard(400, 0, 50)
	c := squareCorners(400, 0)
	out, err := WarpPerspective(input, c, 400)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.RGBAAt(25, 25).R, test.ShouldBeLessThan, 20)
	test.That(t, out.RGBAAt(75, 25).R, test.ShouldBeGreaterThan, 235)

	_, err = WarpPerspective(input, c, 0)
	test.That(t, err, test.ShouldNotBeNil)
}
