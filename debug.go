package boardscan

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/lucasb-eyer/go-colorful"
	"gocv.io/x/gocv"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	gridColor   = color.RGBA{0, 0, 0, 255}
	cornerColor = color.RGBA{255, 0, 0, 255}
	labelColor  = color.RGBA{255, 0, 0, 255}
)

// pieceColors gives each piece kind its own hue; black pieces are drawn darker.
var pieceColors = func() map[byte]color.RGBA {
	m := map[byte]color.RGBA{}
	for i, s := range []byte("PNBRQK") {
		h := float64(i) * 360 / 6
		m[s] = toRGBA(colorful.Hsv(h, 0.9, 1))
		m[s+('a'-'A')] = toRGBA(colorful.Hsv(h, 0.9, 0.55))
	}
	return m
}()

func toRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.RGB255()
	return color.RGBA{r, g, b, 255}
}

// BoardDebugImage draws the 8x8 grid over a rectified board and labels every
// square with its name and, when known, the piece on it.
func BoardDebugImage(board image.Image, p *Placement, rotation int) *image.RGBA {
	bounds := board.Bounds()
	m, err := imageToMat(board)
	if err != nil {
		return copyRGBA(board)
	}
	defer m.Close()

	width := bounds.Dx()
	height := bounds.Dy()

	for i := 0; i <= 8; i++ {
		x := min(width*i/8, width-1)
		gocv.Line(&m, image.Pt(x, 0), image.Pt(x, height-1), gridColor, 1)
		y := min(height*i/8, height-1)
		gocv.Line(&m, image.Pt(0, y), image.Pt(width-1, y), gridColor, 1)
	}

	sw, sh := width/8, height/8
	type label struct {
		x, y int
		s    string
		c    color.RGBA
	}
	var labels []label

	for sq := 0; sq < 64; sq++ {
		t := RemapIndex(sq, rotation)
		x0 := (t % 8) * sw
		y0 := (t / 8) * sh

		labels = append(labels, label{x0 + 3, y0 + 13, SquareName(sq), labelColor})

		if p == nil || p[sq] == Empty {
			continue
		}
		s := p[sq]
		c := pieceColors[s]
		gocv.Rectangle(&m, image.Rect(x0+sw/2-8, y0+sh/2-8, x0+sw/2+8, y0+sh/2+8), c, -1)
		labels = append(labels, label{x0 + sw/2 - 3, y0 + sh/2 + 20, string(s), c})
	}

	dst, err := matToImage(m)
	if err != nil {
		return copyRGBA(board)
	}
	for _, l := range labels {
		drawString(dst, l.x, l.y, l.s, l.c)
	}

	dst.Rect = dst.Rect.Add(bounds.Min)
	return dst
}

// OverlayCorners marks the detected board corners on the original photo.
func OverlayCorners(img image.Image, c CornerSet) *image.RGBA {
	bounds := img.Bounds()
	m, err := imageToMat(img)
	if err != nil {
		return copyRGBA(img)
	}
	defer m.Close()

	pts := c.ImagePoints()
	for i, p := range pts {
		p = p.Sub(bounds.Min)
		q := pts[(i+1)%4].Sub(bounds.Min)

		gocv.Circle(&m, p, 10, cornerColor, 1)
		gocv.Line(&m, image.Pt(p.X-15, p.Y), image.Pt(p.X+15, p.Y), cornerColor, 1)
		gocv.Line(&m, image.Pt(p.X, p.Y-15), image.Pt(p.X, p.Y+15), cornerColor, 1)
		gocv.Line(&m, p, q, cornerColor, 1)
	}

	dst, err := matToImage(m)
	if err != nil {
		return copyRGBA(img)
	}
	dst.Rect = dst.Rect.Add(bounds.Min)
	return dst
}

func copyRGBA(img image.Image) *image.RGBA {
	dst := image.NewRGBA(img.Bounds())
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	return dst
}

func drawString(dst *image.RGBA, x, y int, s string, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(s)
}
