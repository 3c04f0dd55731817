// Package regiontracker implements the grid-based stability tracker that
// lets the orchestrator skip OCR over static UI regions.
package regiontracker

import (
	"fmt"
	"image"
	"math"
	"time"

	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
	"github.com/corona10/goimagehash"
)

const (
	DefaultGridSize            = 16
	DefaultStabilityThresholdS = 5.0
	DefaultStabilityMinSamples = 3

	stabilityClipOnChange = 0.2
	stabilityBumpOnStable = 0.1
)

type Config struct {
	GridSize            int
	StabilityThresholdS float64
	StabilityMinSamples int
}

func DefaultConfig() Config {
	return Config{
		GridSize:            DefaultGridSize,
		StabilityThresholdS: DefaultStabilityThresholdS,
		StabilityMinSamples: DefaultStabilityMinSamples,
	}
}

// NowFunc returns the current unix time in seconds; overridable in tests.
type NowFunc func() float64

// Tracker maintains per-cell stability state for a fixed G x G grid. Grid
// cell size is recomputed whenever frame dimensions change; a dimension
// change clears the entire grid, since stability learned against the old
// geometry does not carry over.
type Tracker struct {
	cfg Config
	now NowFunc

	width, height int
	cellW, cellH  int
	grid          map[int]*frame.GridCellStats
}

func New(cfg Config, now NowFunc) *Tracker {
	if now == nil {
		now = func() float64 { return float64(time.Now().UnixMilli()) / 1000 }
	}
	return &Tracker{cfg: cfg, now: now, grid: make(map[int]*frame.GridCellStats)}
}

// Analyze divides the frame into the grid, updates per-cell stability
// state, and returns the cells that changed this tick (subject to
// skipStable suppression).
func (t *Tracker) Analyze(f *frame.Frame, skipStable bool) []frame.ChangedRegion {
	if f == nil || f.Pixels == nil {
		return nil
	}

	if f.Width != t.width || f.Height != t.height {
		t.grid = make(map[int]*frame.GridCellStats)
		t.width, t.height = f.Width, f.Height
		t.cellW = ceilDiv(f.Width, t.cfg.GridSize)
		t.cellH = ceilDiv(f.Height, t.cfg.GridSize)
	}

	now := t.now()
	var changed []frame.ChangedRegion

	for row := 0; row < t.cfg.GridSize; row++ {
		for col := 0; col < t.cfg.GridSize; col++ {
			idx := row*t.cfg.GridSize + col
			box := t.cellBox(row, col)
			hash := cellHash(f.Pixels, box)

			cell, known := t.grid[idx]
			if !known {
				t.grid[idx] = &frame.GridCellStats{LastHash: hash, LastChangeTs: int64(now)}
				continue
			}

			if cell.LastHash != hash {
				wasStable := cell.IsStable()
				cell.LastHash = hash
				cell.LastChangeTs = int64(now)
				cell.ChangeCount++
				cell.StabilityScore = math.Max(0, cell.StabilityScore-stabilityClipOnChange)
				if !(wasStable && skipStable) {
					changed = append(changed, frame.ChangedRegion{CellIndex: idx, Box: box})
				}
				continue
			}

			if now-float64(cell.LastChangeTs) >= t.cfg.StabilityThresholdS && cell.ChangeCount >= t.cfg.StabilityMinSamples {
				cell.StabilityScore = math.Min(1, cell.StabilityScore+stabilityBumpOnStable)
			}
		}
	}
	return changed
}

// StableCellCount returns how many tracked grid cells currently count as
// stable, for the orchestrator's periodic stats snapshot.
func (t *Tracker) StableCellCount() int {
	n := 0
	for _, cell := range t.grid {
		if cell.IsStable() {
			n++
		}
	}
	return n
}

func (t *Tracker) cellBox(row, col int) frame.Rect {
	x := col * t.cellW
	y := row * t.cellH
	w := t.cellW
	h := t.cellH
	if x+w > t.width {
		w = t.width - x
	}
	if y+h > t.height {
		h = t.height - y
	}
	return frame.Rect{X: x, Y: y, W: w, H: h}
}

// MergeAdjacentRegions flood-fills 4-connected neighborhoods over the set
// of changed cell indices and returns merged pixel bounding boxes.
func (t *Tracker) MergeAdjacentRegions(regions []frame.ChangedRegion) []frame.Rect {
	if len(regions) == 0 {
		return nil
	}
	gridSize := t.cfg.GridSize
	byIdx := make(map[int]frame.Rect, len(regions))
	for _, r := range regions {
		byIdx[r.CellIndex] = r.Box
	}

	visited := make(map[int]bool, len(byIdx))
	var merged []frame.Rect

	for idx := range byIdx {
		if visited[idx] {
			continue
		}
		stack := []int{idx}
		visited[idx] = true
		box := byIdx[idx]
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
				nb, ok := byIdx[n]
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

// cellHash computes a cheap per-cell signature: average-hash when
// goimagehash succeeds, or a mean/std fallback signature otherwise.
func cellHash(img image.Image, box frame.Rect) string {
	if box.W <= 0 || box.H <= 0 {
		return ""
	}
	sub := cropImage(img, box)
	if hash, err := goimagehash.AverageHash(sub); err == nil {
		return hash.ToString()
	}
	mean, std := meanStd(sub)
	return fmt.Sprintf("%.1f_%.1f", mean, std)
}

func cropImage(img image.Image, box frame.Rect) image.Image {
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

func meanStd(img image.Image) (mean, std float64) {
	b := img.Bounds()
	n := 0
	var sum float64
	vals := make([]float64, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			gray := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 257
			vals = append(vals, gray)
			sum += gray
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	mean = sum / float64(n)
	var variance float64
	for _, v := range vals {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(n)
	return mean, math.Sqrt(variance)
}

func ceilDiv(a, b int) int {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}
