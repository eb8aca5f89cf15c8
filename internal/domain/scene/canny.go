package scene

import "image"

const (
	DefaultCannyLow  = 100
	DefaultCannyHigh = 200

	// tan(22.5deg) in Q15.
	tan22Q15 = 13573
)

const (
	edgeNone uint8 = iota
	edgeWeak
	edgeStrong
)

// Canny detects edges with 3x3 Sobel gradients, L1 magnitude, non-maximum
// suppression and hysteresis between low and high. Edge pixels are 255.
func Canny(src *image.Gray, low, high float64) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	dx := make([]int32, w*h)
	dy := make([]int32, w*h)
	mag := make([]int32, w*h)
	sobel(src, w, h, dx, dy, mag)

	state := make([]uint8, w*h)
	stack := make([]int, 0, 64)

	magAt := func(x, y int) int32 {
		if x < 0 || y < 0 || x >= w || y >= h {
			return 0
		}
		return mag[y*w+x]
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			m := mag[i]
			if float64(m) <= low {
				continue
			}

			xs, ys := dx[i], dy[i]
			ax, ay := int64(abs32(xs)), int64(abs32(ys))
			tg22x := ax * tan22Q15
			ayq := ay << 15

			var isMax bool
			switch {
			case ayq < tg22x:
				isMax = m > magAt(x-1, y) && m >= magAt(x+1, y)
			case ayq > tg22x+(ax<<16):
				isMax = m > magAt(x, y-1) && m >= magAt(x, y+1)
			default:
				s := 1
				if (xs ^ ys) < 0 {
					s = -1
				}
				isMax = m > magAt(x-s, y-1) && m > magAt(x+s, y+1)
			}
			if !isMax {
				continue
			}

			if float64(m) > high {
				state[i] = edgeStrong
				stack = append(stack, i)
			} else {
				state[i] = edgeWeak
			}
		}
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out.Pix[i] = 255

		cx, cy := i%w, i/w
		for ny := cy - 1; ny <= cy+1; ny++ {
			for nx := cx - 1; nx <= cx+1; nx++ {
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if state[j] == edgeWeak {
					state[j] = edgeStrong
					stack = append(stack, j)
				}
			}
		}
	}

	return out
}

// sobel fills 3x3 Sobel derivatives and their L1 magnitude, replicating the
// border pixels.
func sobel(src *image.Gray, w, h int, dx, dy, mag []int32) {
	at := func(x, y int) int32 {
		x = clamp(x, 0, w-1)
		y = clamp(y, 0, h-1)
		return int32(src.Pix[src.PixOffset(src.Rect.Min.X+x, src.Rect.Min.Y+y)])
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			tl, tc, tr := at(x-1, y-1), at(x, y-1), at(x+1, y-1)
			ml, mr := at(x-1, y), at(x+1, y)
			bl, bc, br := at(x-1, y+1), at(x, y+1), at(x+1, y+1)

			gx := (tr + 2*mr + br) - (tl + 2*ml + bl)
			gy := (bl + 2*bc + br) - (tl + 2*tc + tr)

			i := y*w + x
			dx[i] = gx
			dy[i] = gy
			mag[i] = abs32(gx) + abs32(gy)
		}
	}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
