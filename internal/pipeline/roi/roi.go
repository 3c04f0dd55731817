// Package roi implements ROI extraction and the text-likelihood
// pre-filter.
package roi

import (
	"image"
	"sort"

	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
)

const DefaultPadding = 20

// Extract builds ROI records from a frame and a set of contours: pad,
// clamp to frame bounds, crop, and sort by area descending.
func Extract(f *frame.Frame, contours []frame.Contour, padding int) []frame.ROI {
	if f == nil || f.Pixels == nil {
		return nil
	}
	boxes := make([]frame.Rect, 0, len(contours))
	for _, c := range contours {
		boxes = append(boxes, padClamp(c.Box, padding, f.Width, f.Height))
	}
	boxes = mergeOverlapping(boxes)

	rois := make([]frame.ROI, 0, len(boxes))
	for _, b := range boxes {
		rois = append(rois, frame.ROI{Image: crop(f.Pixels, b), Box: b})
	}
	sort.Slice(rois, func(i, j int) bool {
		return rois[i].Box.W*rois[i].Box.H > rois[j].Box.W*rois[j].Box.H
	})
	return rois
}

func padClamp(box frame.Rect, padding, frameW, frameH int) frame.Rect {
	x := box.X - padding
	y := box.Y - padding
	w := box.W + 2*padding
	h := box.H + 2*padding
	if x < 0 {
		w += x
		x = 0
	}
	if y < 0 {
		h += y
		y = 0
	}
	if x+w > frameW {
		w = frameW - x
	}
	if y+h > frameH {
		h = frameH - y
	}
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return frame.Rect{X: x, Y: y, W: w, H: h}
}

// overlapFraction is the fraction of the smaller box's area covered by
// the intersection; boxes overlapping beyond this are merged.
const overlapFraction = 0.3

func mergeOverlapping(boxes []frame.Rect) []frame.Rect {
	merged := make([]frame.Rect, 0, len(boxes))
	used := make([]bool, len(boxes))

	for i := range boxes {
		if used[i] {
			continue
		}
		cur := boxes[i]
		for {
			mergedAny := false
			for j := range boxes {
				if used[j] || j == i {
					continue
				}
				if overlapsSignificantly(cur, boxes[j]) {
					cur = union(cur, boxes[j])
					used[j] = true
					mergedAny = true
				}
			}
			if !mergedAny {
				break
			}
		}
		used[i] = true
		merged = append(merged, cur)
	}
	return merged
}

func overlapsSignificantly(a, b frame.Rect) bool {
	ix := intersectArea(a, b)
	if ix == 0 {
		return false
	}
	smaller := a.W * a.H
	if b.W*b.H < smaller {
		smaller = b.W * b.H
	}
	if smaller == 0 {
		return false
	}
	return float64(ix)/float64(smaller) >= overlapFraction
}

func intersectArea(a, b frame.Rect) int {
	x0 := max(a.X, b.X)
	y0 := max(a.Y, b.Y)
	x1 := min(a.X+a.W, b.X+b.W)
	y1 := min(a.Y+a.H, b.Y+b.H)
	if x1 <= x0 || y1 <= y0 {
		return 0
	}
	return (x1 - x0) * (y1 - y0)
}

func union(a, b frame.Rect) frame.Rect {
	x0 := min(a.X, b.X)
	y0 := min(a.Y, b.Y)
	x1 := max(a.X+a.W, b.X+b.W)
	y1 := max(a.Y+a.H, b.Y+b.H)
	return frame.Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

func crop(img image.Image, box frame.Rect) image.Image {
	r := image.Rect(box.X, box.Y, box.X+box.W, box.Y+box.H).Intersect(img.Bounds())
	if si, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return si.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dst.Set(x-r.Min.X, y-r.Min.Y, img.At(x, y))
		}
	}
	return dst
}

// TopNByArea returns up to n ROIs from the already-area-sorted list, used
// as the orchestrator's fallback when TextFilter rejects everything.
func TopNByArea(rois []frame.ROI, n int) []frame.ROI {
	if len(rois) <= n {
		return rois
	}
	return rois[:n]
}
