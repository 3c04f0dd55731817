package changedetector

import (
	"image"

	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
)

const (
	ssimWindow = 8
	ssimC1     = (0.01 * 255) * (0.01 * 255)
	ssimC2     = (0.03 * 255) * (0.03 * 255)
)

// ssim computes a windowed structural-similarity score between two
// grayscale images of identical dimensions, along with a per-pixel diff
// map ((1-localSSIM)*255, clamped to [0,255]) the same size as the images.
// Standard windowed mean/variance/covariance formulation.
func ssim(a, b *image.Gray) (score float64, diffMask []byte, w, h int) {
	bounds := a.Bounds()
	w, h = bounds.Dx(), bounds.Dy()
	diffMask = make([]byte, w*h)

	if w == 0 || h == 0 {
		return 1, diffMask, w, h
	}

	var total float64
	var windows int

	for y := 0; y < h; y += ssimWindow {
		for x := 0; x < w; x += ssimWindow {
			wEnd := min(x+ssimWindow, w)
			hEnd := min(y+ssimWindow, h)
			local := windowSSIM(a, b, bounds.Min.X+x, bounds.Min.Y+y, wEnd-x, hEnd-y)
			total += local
			windows++

			diffVal := byte(clamp((1-local)*255, 0, 255))
			for yy := y; yy < hEnd; yy++ {
				for xx := x; xx < wEnd; xx++ {
					diffMask[yy*w+xx] = diffVal
				}
			}
		}
	}

	if windows == 0 {
		return 1, diffMask, w, h
	}
	return total / float64(windows), diffMask, w, h
}

func windowSSIM(a, b *image.Gray, x0, y0, w, h int) float64 {
	n := float64(w * h)
	if n == 0 {
		return 1
	}

	var sumA, sumB float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sumA += float64(a.GrayAt(x0+x, y0+y).Y)
			sumB += float64(b.GrayAt(x0+x, y0+y).Y)
		}
	}
	meanA, meanB := sumA/n, sumB/n

	var varA, varB, covAB float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			da := float64(a.GrayAt(x0+x, y0+y).Y) - meanA
			db := float64(b.GrayAt(x0+x, y0+y).Y) - meanB
			varA += da * da
			varB += db * db
			covAB += da * db
		}
	}
	varA /= n
	varB /= n
	covAB /= n

	numerator := (2*meanA*meanB + ssimC1) * (2*covAB + ssimC2)
	denominator := (meanA*meanA + meanB*meanB + ssimC1) * (varA + varB + ssimC2)
	if denominator == 0 {
		return 1
	}
	return numerator / denominator
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// extractContours binarizes mask against cutoff, labels 4-connected
// components, and returns those with area >= minArea as pixel-space
// contours.
func extractContours(mask []byte, w, h, cutoff, minArea int) []frame.Contour {
	if w == 0 || h == 0 {
		return nil
	}
	labels := make([]int, w*h)
	var contours []frame.Contour

	for start := 0; start < w*h; start++ {
		if labels[start] != 0 || mask[start] <= byte(cutoff) {
			continue
		}
		minX, minY, maxX, maxY, area := floodFill(mask, labels, w, h, start, cutoff)
		if area >= minArea {
			contours = append(contours, frame.Contour{
				Box:  frame.Rect{X: minX, Y: minY, W: maxX - minX + 1, H: maxY - minY + 1},
				Area: area,
			})
		}
	}
	return contours
}

func floodFill(mask []byte, labels []int, w, h, start, cutoff int) (minX, minY, maxX, maxY, area int) {
	const marked = 1
	stack := []int{start}
	labels[start] = marked

	sx, sy := start%w, start/w
	minX, maxX, minY, maxY = sx, sx, sy, sy

	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		area++

		x, y := idx%w, idx/w
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}

		if x > 0 {
			push(mask, labels, &stack, idx-1, cutoff)
		}
		if x < w-1 {
			push(mask, labels, &stack, idx+1, cutoff)
		}
		if y > 0 {
			push(mask, labels, &stack, idx-w, cutoff)
		}
		if y < h-1 {
			push(mask, labels, &stack, idx+w, cutoff)
		}
	}
	return
}

func push(mask []byte, labels []int, stack *[]int, idx, cutoff int) {
	if labels[idx] != 0 || mask[idx] <= byte(cutoff) {
		return
	}
	labels[idx] = 1
	*stack = append(*stack, idx)
}

// mergeBoxes computes a single axis-aligned bounding box covering all
// contours.
func mergeBoxes(contours []frame.Contour) frame.Rect {
	if len(contours) == 0 {
		return frame.Rect{}
	}
	first := contours[0].Box
	minX, minY := first.X, first.Y
	maxX, maxY := first.X+first.W, first.Y+first.H
	for _, c := range contours[1:] {
		if c.Box.X < minX {
			minX = c.Box.X
		}
		if c.Box.Y < minY {
			minY = c.Box.Y
		}
		if c.Box.X+c.Box.W > maxX {
			maxX = c.Box.X + c.Box.W
		}
		if c.Box.Y+c.Box.H > maxY {
			maxY = c.Box.Y + c.Box.H
		}
	}
	return frame.Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}
