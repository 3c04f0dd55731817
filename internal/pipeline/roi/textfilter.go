package roi

import (
	"image"
	"image/draw"
	"math"

	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
)

const (
	DefaultThreshold = 0.4
	DefaultMinW      = 32
	DefaultMinH      = 16
)

type FilterConfig struct {
	Threshold float64
	MinW      int
	MinH      int
}

func DefaultFilterConfig() FilterConfig {
	return FilterConfig{Threshold: DefaultThreshold, MinW: DefaultMinW, MinH: DefaultMinH}
}

// IsTextRegion combines edge, contrast, and pattern signals on img's
// grayscale to decide whether it is likely to contain text.
func IsTextRegion(img image.Image, cfg FilterConfig) bool {
	b := img.Bounds()
	if b.Dx() < cfg.MinW || b.Dy() < cfg.MinH {
		return false
	}
	gray := toGray(img)
	score := 0.4*edgeScore(gray) + 0.4*contrastScore(gray) + 0.2*patternScore(gray)
	return score >= cfg.Threshold
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(b)
	draw.Draw(gray, b, img, b.Min, draw.Src)
	return gray
}

// edgeScore is the mean absolute vertical gradient, contributing only in
// [0.02, 0.4] and peaking near 0.1-0.2 (text has strong horizontal edges
// from character baselines).
func edgeScore(g *image.Gray) float64 {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	if h < 2 {
		return 0
	}
	var sum float64
	var n int
	for y := 1; y < h; y++ {
		for x := 0; x < w; x++ {
			a := float64(g.GrayAt(b.Min.X+x, b.Min.Y+y-1).Y)
			c := float64(g.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			sum += math.Abs(c - a)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n) / 255
	if mean < 0.02 || mean > 0.4 {
		return 0
	}
	// Peak weight near 0.1-0.2, falling off toward the valid range edges.
	dist := math.Abs(mean - 0.15)
	return math.Max(0, 1-dist/0.25)
}

// contrastScore builds a 16-bin histogram and normalizes the gap between
// the two tallest peaks; halved if the second peak carries little mass.
func contrastScore(g *image.Gray) float64 {
	const bins = 16
	hist := make([]int, bins)
	b := g.Bounds()
	total := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := int(g.GrayAt(x, y).Y)
			hist[min(v*bins/256, bins-1)]++
			total++
		}
	}
	if total == 0 {
		return 0
	}
	first, second := 0, 0
	for i, c := range hist {
		if c > hist[first] {
			second = first
			first = i
		} else if c > hist[second] && i != first {
			second = i
		}
	}
	gap := math.Abs(float64(first-second)) / float64(bins-1)
	secondMass := float64(hist[second]) / float64(total)
	score := gap
	if secondMass < 0.05 {
		score /= 2
	}
	return score
}

// patternScore is the variance of per-row means, normalized around 1000:
// text rows alternate between ink-heavy and sparse, producing a
// characteristic row-mean variance.
func patternScore(g *image.Gray) float64 {
	b := g.Bounds()
	h := b.Dy()
	if h == 0 {
		return 0
	}
	rowMeans := make([]float64, h)
	for y := 0; y < h; y++ {
		var sum float64
		w := b.Dx()
		for x := 0; x < w; x++ {
			sum += float64(g.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
		}
		if w > 0 {
			rowMeans[y] = sum / float64(w)
		}
	}
	var mean float64
	for _, v := range rowMeans {
		mean += v
	}
	mean /= float64(h)
	var variance float64
	for _, v := range rowMeans {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(h)
	return math.Min(1, variance/1000)
}

// FindTextRegions grid-scans the frame for text-likely cells and merges
// adjacent ones via flood fill. Useful when ChangeDetector's contours
// are too sparse to form a good ROI set (e.g. whole-frame SSIM drift).
func FindTextRegions(f *frame.Frame, gridSize int, cfg FilterConfig) []frame.Rect {
	if f == nil || f.Pixels == nil || gridSize <= 0 {
		return nil
	}
	cellW := ceilDiv(f.Width, gridSize)
	cellH := ceilDiv(f.Height, gridSize)

	textCells := make(map[int]frame.Rect)
	for row := 0; row < gridSize; row++ {
		for col := 0; col < gridSize; col++ {
			box := frame.Rect{X: col * cellW, Y: row * cellH, W: cellW, H: cellH}
			if box.X+box.W > f.Width {
				box.W = f.Width - box.X
			}
			if box.Y+box.H > f.Height {
				box.H = f.Height - box.Y
			}
			if box.W <= 0 || box.H <= 0 {
				continue
			}
			sub := crop(f.Pixels, box)
			if IsTextRegion(sub, cfg) {
				textCells[row*gridSize+col] = box
			}
		}
	}
	return mergeCells(textCells, gridSize)
}

func mergeCells(cells map[int]frame.Rect, gridSize int) []frame.Rect {
	visited := make(map[int]bool, len(cells))
	var merged []frame.Rect

	for idx := range cells {
		if visited[idx] {
			continue
		}
		stack := []int{idx}
		visited[idx] = true
		box := cells[idx]
		minX, minY := box.X, box.Y
		maxX, maxY := box.X+box.W, box.Y+box.H

		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			row, col := cur/gridSize, cur%gridSize

			neighbors := []int{}
			if row > 0 {
				neighbors = append(neighbors, cur-gridSize)
			}
			if row < gridSize-1 {
				neighbors = append(neighbors, cur+gridSize)
			}
			if col > 0 {
				neighbors = append(neighbors, cur-1)
			}
			if col < gridSize-1 {
				neighbors = append(neighbors, cur+1)
			}
			for _, n := range neighbors {
				nb, ok := cells[n]
				if !ok || visited[n] {
					continue
				}
				visited[n] = true
				stack = append(stack, n)
				if nb.X < minX {
					minX = nb.X
				}
				if nb.Y < minY {
					minY = nb.Y
				}
				if nb.X+nb.W > maxX {
					maxX = nb.X + nb.W
				}
				if nb.Y+nb.H > maxY {
					maxY = nb.Y + nb.H
				}
			}
		}
		merged = append(merged, frame.Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY})
	}
	return merged
}

func ceilDiv(a, b int) int {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}
