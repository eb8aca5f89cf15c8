package scene

import "image"

// MeanAbsDiff returns the mean absolute per-pixel difference of a and b,
// in the 0..255 range.
func MeanAbsDiff(a, b *image.Gray) float64 {
	w, h := commonSize(a, b)
	if w == 0 || h == 0 {
		return 0
	}

	var sum uint64
	for y := 0; y < h; y++ {
		ra, rb := row(a, y, w), row(b, y, w)
		for x := range ra {
			d := int(ra[x]) - int(rb[x])
			if d < 0 {
				d = -d
			}
			sum += uint64(d)
		}
	}
	return float64(sum) / float64(w*h)
}

// EdgeScore compares the Canny edge maps of a and b.
func EdgeScore(a, b *image.Gray) float64 {
	return MeanAbsDiff(Canny(a, DefaultCannyLow, DefaultCannyHigh), Canny(b, DefaultCannyLow, DefaultCannyHigh))
}

// Histogram returns the 256-bin luma histogram of g.
func Histogram(g *image.Gray) [256]float64 {
	var hist [256]float64
	w, h := g.Rect.Dx(), g.Rect.Dy()
	for y := 0; y < h; y++ {
		for _, v := range row(g, y, w) {
			hist[v]++
		}
	}
	return hist
}

// ChiSquare is the chi-square distance between two histograms, normalised by
// the first one. Bins empty in h1 are skipped.
func ChiSquare(h1, h2 [256]float64) float64 {
	var result float64
	for i := range h1 {
		if h1[i] == 0 {
			continue
		}
		d := h1[i] - h2[i]
		result += d * d / h1[i]
	}
	return result
}
