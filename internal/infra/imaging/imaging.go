package imaging

import (
	"bufio"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"

	"golang.org/x/image/draw"
)

const DefaultJPEGQuality = 90

// RGB24 wraps a packed RGB24 frame as an opaque RGBA image.
func RGB24(buf []byte, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	n := min(w*h, len(buf)/3)
	for i := 0; i < n; i++ {
		img.Pix[4*i] = buf[3*i]
		img.Pix[4*i+1] = buf[3*i+1]
		img.Pix[4*i+2] = buf[3*i+2]
		img.Pix[4*i+3] = 0xff
	}
	return img
}

// Downscale shrinks g so that its longer side is at most maxSide. Images that
// already fit, or a maxSide <= 0, are returned unchanged.
func Downscale(g *image.Gray, maxSide int) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return g
	}

	tw, th := maxSide, maxSide
	if w >= h {
		th = max(1, h*maxSide/w)
	} else {
		tw = max(1, w*maxSide/h)
	}

	dst := image.NewGray(image.Rect(0, 0, tw, th))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), g, g.Bounds(), draw.Src, nil)
	return dst
}

func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}
	return nil
}

func WriteJPEG(path string, img image.Image, quality int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	bw := bufio.NewWriter(f)
	if err := EncodeJPEG(bw, img, quality); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
