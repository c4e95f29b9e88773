package boardscan

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// imageToMat converts img into a BGR Mat. Caller must Close it.
func imageToMat(img image.Image) (gocv.Mat, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return gocv.NewMat(), fmt.Errorf("empty image %v", b)
	}

	data := make([]byte, w*h*3)
	pix, stride, origin, fast := rawPixels(img)
	if fast {
		for y := 0; y < h; y++ {
			row := pix[(y+b.Min.Y-origin.Y)*stride+(b.Min.X-origin.X)*4:]
			for x := 0; x < w; x++ {
				o := (y*w + x) * 3
				data[o+0] = row[x*4+2]
				data[o+1] = row[x*4+1]
				data[o+2] = row[x*4+0]
			}
		}
	} else {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				o := (y*w + x) * 3
				data[o+0] = uint8(bl >> 8)
				data[o+1] = uint8(g >> 8)
				data[o+2] = uint8(r >> 8)
			}
		}
	}

	return gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, data)
}

// rawPixels exposes the backing buffer of opaque 4-byte-per-pixel images.
func rawPixels(img image.Image) ([]byte, int, image.Point, bool) {
	switch t := img.(type) {
	case *image.RGBA:
		return t.Pix, t.Stride, t.Rect.Min, true
	case *image.NRGBA:
		return t.Pix, t.Stride, t.Rect.Min, true
	}
	return nil, 0, image.Point{}, false
}

// grayMat converts img into a single channel 8-bit Mat. Caller must Close it.
func grayMat(img image.Image) (gocv.Mat, error) {
	bgr, err := imageToMat(img)
	if err != nil {
		return bgr, err
	}
	defer bgr.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(bgr, &gray, gocv.ColorBGRToGray)
	return gray, nil
}

// matToImage converts an 8-bit BGR or gray Mat back to RGBA.
func matToImage(m gocv.Mat) (*image.RGBA, error) {
	if m.Empty() {
		return nil, fmt.Errorf("empty mat")
	}
	img, err := m.ToImage()
	if err != nil {
		return nil, err
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	return out, nil
}

// grayBytes returns the pixels of a single channel 8-bit Mat row-major, with its size.
func grayBytes(m gocv.Mat) ([]byte, int, int) {
	return m.ToBytes(), m.Cols(), m.Rows()
}

// cropImage copies r (relative to img's origin) into a fresh image anchored at 0,0.
func cropImage(img image.Image, r image.Rectangle) *image.NRGBA {
	return imaging.Crop(img, r.Add(img.Bounds().Min))
}
