package boardscan

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"go.viam.com/test"
)

func uniformTile(v uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 60, 60))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{v, v, v, 255}), image.Point{}, draw.Src)
	return img
}

func discTile(bg, fg uint8, radius int) *image.RGBA {
	img := uniformTile(bg)
	c := color.RGBA{fg, fg, fg, 255}
	for y := 0; y < 60; y++ {
		for x := 0; x < 60; x++ {
			dx, dy := x-30, y-30
			if dx*dx+dy*dy <= radius*radius {
				img.Set(x, y, c)
			}
		}
	}
	return img
}

func TestOccupancyEmptyTile(t *testing.T) {
	oc := NewOccupancyClassifier(DefaultOccupancyConfig())

	for _, v := range []uint8{30, 128, 230} {
		tc, err := oc.Classify(uniformTile(v))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tc.Occupied, test.ShouldBeFalse)
		test.That(t, tc.Symbol(), test.ShouldEqual, byte(Empty))
	}

	f, err := oc.Features(uniformTile(128))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f.EdgeRatio, test.ShouldEqual, 0.0)
	test.That(t, f.Variance, test.ShouldEqual, 0.0)
	test.That(t, oc.Score(f), test.ShouldEqual, 0)
}

func TestOccupancyPieces(t *testing.T) {
	oc := NewOccupancyClassifier(DefaultOccupancyConfig())

	tc, err := oc.Classify(discTile(200, 30, 15))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tc.Occupied, test.ShouldBeTrue)
	test.That(t, tc.Color, test.ShouldEqual, Black)

	tc, err = oc.Classify(discTile(120, 240, 15))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tc.Occupied, test.ShouldBeTrue)
	test.That(t, tc.Color, test.ShouldEqual, White)
}

func TestOccupancyScore(t *testing.T) {
	oc := NewOccupancyClassifier(DefaultOccupancyConfig())

	test.That(t, oc.Score(TileFeatures{EdgeRatio: 0.05}), test.ShouldEqual, 3)
	test.That(t, oc.Score(TileFeatures{EdgeRatio: 0.03, Variance: 500}), test.ShouldEqual, 3)
	test.That(t, oc.Score(TileFeatures{
		EdgeRatio:    0.05,
		Variance:     700,
		LaplacianVar: 400,
		Entropy:      4,
		CenterDiff:   30,
		SobelMean:    30,
	}), test.ShouldEqual, 11)

	// thresholds are strict
	test.That(t, bucketPoints(0.04, oc.cfg.EdgeRatio), test.ShouldEqual, 2)
	test.That(t, bucketPoints(0.0, oc.cfg.EdgeRatio), test.ShouldEqual, 0)
}

func TestTileClassificationSymbol(t *testing.T) {
	test.That(t, TileClassification{}.Symbol(), test.ShouldEqual, byte(Empty))
	test.That(t, TileClassification{Occupied: true, Color: White}.Symbol(), test.ShouldEqual, byte('P'))
	test.That(t, TileClassification{Occupied: true, Color: Black, Type: Queen}.Symbol(), test.ShouldEqual, byte('q'))
	test.That(t, TileClassification{Occupied: true, Color: White, Type: Knight}.Symbol(), test.ShouldEqual, byte('N'))
}

func TestHistogramEntropy(t *testing.T) {
	flat := make([]byte, 256)
	test.That(t, histogramEntropy(flat, 32), test.ShouldBeLessThan, 0.01)

	spread := make([]byte, 256)
	for i := range spread {
		spread[i] = byte(i)
	}
	// uniform over 32 bins: ln(32)
	test.That(t, histogramEntropy(spread, 32), test.ShouldAlmostEqual, 3.4657, 0.001)
	test.That(t, histogramEntropy(nil, 32), test.ShouldEqual, 0.0)
}
