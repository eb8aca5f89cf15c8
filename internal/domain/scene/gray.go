package scene

import (
	"image"
	"image/draw"
)

// BT.601 luma weights scaled by 2^14.
const (
	lumaR     = 4899
	lumaG     = 9617
	lumaB     = 1868
	lumaShift = 14
	lumaRound = 1 << (lumaShift - 1)
)

// GrayFromRGB24 converts a packed RGB24 frame of w*h pixels to luma.
func GrayFromRGB24(buf []byte, w, h int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	n := w * h
	if len(buf) < n*3 {
		n = len(buf) / 3
	}
	for i := 0; i < n; i++ {
		r := uint32(buf[3*i])
		gr := uint32(buf[3*i+1])
		b := uint32(buf[3*i+2])
		g.Pix[i] = uint8((r*lumaR + gr*lumaG + b*lumaB + lumaRound) >> lumaShift)
	}
	return g
}

func GrayFromImage(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}

func commonSize(a, b *image.Gray) (int, int) {
	w := min(a.Rect.Dx(), b.Rect.Dx())
	h := min(a.Rect.Dy(), b.Rect.Dy())
	return w, h
}

func row(g *image.Gray, y, w int) []uint8 {
	off := g.PixOffset(g.Rect.Min.X, g.Rect.Min.Y+y)
	return g.Pix[off : off+w]
}
