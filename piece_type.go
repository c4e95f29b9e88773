package boardscan

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// ShapeFeatures describe the silhouette of the largest blob in a tile.
type ShapeFeatures struct {
	Area        float64
	Aspect      float64 // height / width of the bounding box
	Extent      float64
	VerticalCOM float64
	MassRatio   float64 // foreground above the middle over foreground below
	Solidity    float64
}

type ShapeClassifier struct {
	cfg ShapeConfig
}

func NewShapeClassifier(cfg ShapeConfig) *ShapeClassifier {
	return &ShapeClassifier{cfg: cfg}
}

// Classify names the piece on an occupied tile. Anything it can't segment is a pawn.
func (sc *ShapeClassifier) Classify(tile image.Image, c PieceColor) (PieceType, error) {
	f, ok, err := sc.Features(tile, c)
	if err != nil || !ok {
		return Pawn, err
	}
	return sc.Decide(f), nil
}

// Decide runs the decision list. The first matching rule wins.
func (sc *ShapeClassifier) Decide(f ShapeFeatures) PieceType {
	cfg := sc.cfg
	squarish := f.Aspect > cfg.SquareLow && f.Aspect < cfg.SquareHigh

	switch {
	case squarish && f.Extent > cfg.RookExtentLow && f.Extent < cfg.RookExtentHigh && f.Solidity > cfg.RookSolidity:
		return Rook
	case f.Solidity < cfg.KnightSolidity:
		return Knight
	case squarish && f.Extent < cfg.BishopExtent && f.Solidity > cfg.BishopSolLow && f.Solidity < cfg.BishopSolHigh:
		return Bishop
	case f.Aspect > cfg.SquareHigh && f.Solidity < cfg.QueenSolidity && f.MassRatio > cfg.TopMassRatio:
		return Queen
	case f.Aspect > cfg.SquareHigh && f.MassRatio > cfg.TopMassRatio && f.Extent < cfg.KingExtent:
		return King
	}
	return Pawn
}

// Features segments the piece and measures it. ok is false when segmentation failed.
func (sc *ShapeClassifier) Features(tile image.Image, c PieceColor) (ShapeFeatures, bool, error) {
	var f ShapeFeatures

	gray, err := grayMat(tile)
	if err != nil {
		return f, false, err
	}
	defer gray.Close()

	binary := sc.binarize(gray, c)
	defer binary.Close()

	contours := gocv.FindContours(binary, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		return f, false, nil
	}

	best := 0
	for i := 1; i < contours.Size(); i++ {
		if gocv.ContourArea(contours.At(i)) > gocv.ContourArea(contours.At(best)) {
			best = i
		}
	}
	piece := contours.At(best)

	f.Area = gocv.ContourArea(piece)
	if f.Area < sc.cfg.MinArea {
		return f, false, nil
	}

	box := gocv.BoundingRect(piece)
	if box.Dx() == 0 || box.Dy() == 0 {
		return f, false, nil
	}
	f.Aspect = float64(box.Dy()) / float64(box.Dx())
	if f.Aspect < sc.cfg.MinAspect || f.Aspect > sc.cfg.MaxAspect {
		return f, false, nil
	}
	f.Extent = f.Area / float64(box.Dx()*box.Dy())

	f.VerticalCOM = 0.5
	if cy, ok := contourCentroidY(contours, best, binary.Rows(), binary.Cols()); ok {
		f.VerticalCOM = cy / float64(gray.Rows())
	}

	pix, w, h := grayBytes(binary)
	top, bottom := 0, 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if pix[y*w+x] == 0 {
				continue
			}
			if y < h/2 {
				top++
			} else {
				bottom++
			}
		}
	}
	f.MassRatio = float64(top) / float64(bottom+1)

	if ha := hullArea(piece); ha > 0 {
		f.Solidity = f.Area / ha
	}

	return f, true, nil
}

// binarize makes the piece the foreground: inverted threshold for dark pieces.
func (sc *ShapeClassifier) binarize(gray gocv.Mat, c PieceColor) gocv.Mat {
	clahe := gocv.NewCLAHEWithParams(sc.cfg.ClaheClip, image.Pt(sc.cfg.ClaheGrid, sc.cfg.ClaheGrid))
	defer clahe.Close()

	enhanced := gocv.NewMat()
	defer enhanced.Close()
	clahe.Apply(gray, &enhanced)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(enhanced, &blurred, image.Pt(5, 5), 0, 0, gocv.BorderDefault)

	typ := gocv.ThresholdBinary
	if c == Black {
		typ = gocv.ThresholdBinaryInv
	}

	binary := gocv.NewMat()
	gocv.AdaptiveThreshold(blurred, &binary, 255, gocv.AdaptiveThresholdGaussian, typ, sc.cfg.BlockSize, sc.cfg.ThresholdC)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
	defer kernel.Close()
	for i := 0; i < 2; i++ {
		gocv.MorphologyEx(binary, &binary, gocv.MorphClose, kernel)
	}
	gocv.MorphologyEx(binary, &binary, gocv.MorphOpen, kernel)

	return binary
}

// contourCentroidY fills one contour into a mask and returns the y of its centroid.
func contourCentroidY(contours gocv.PointsVector, idx, rows, cols int) (float64, bool) {
	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV8U)
	defer mask.Close()
	gocv.DrawContours(&mask, contours, idx, color.RGBA{255, 255, 255, 255}, -1)

	m := gocv.Moments(mask, true)
	if m["m00"] == 0 {
		return 0, false
	}
	return m["m01"] / m["m00"], true
}
