package regiontracker

import (
	"image"
	"image/color"
	"testing"

	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
)

func checkerFrame(w, h int, phase int) *frame.Frame {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(50)
			if (x/8+y/8+phase)%2 == 0 {
				v = 200
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return &frame.Frame{Pixels: img, Width: w, Height: h}
}

func fixedClock(t float64) NowFunc {
	return func() float64 { return t }
}

func TestFirstPassRegistersCells(t *testing.T) {
	tr := New(DefaultConfig(), fixedClock(0))
	changed := tr.Analyze(checkerFrame(32, 32, 0), false)
	if len(changed) != 0 {
		t.Errorf("first pass should register cells, not report changes, got %d", len(changed))
	}
}

func TestChangeDetectedOnHashFlip(t *testing.T) {
	tr := New(DefaultConfig(), fixedClock(0))
	tr.Analyze(checkerFrame(32, 32, 0), false)
	changed := tr.Analyze(checkerFrame(32, 32, 1), false)
	if len(changed) == 0 {
		t.Error("inverted checkerboard should flip every cell hash")
	}
}

func TestStabilityRisesOverTime(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GridSize = 4
	cfg.StabilityThresholdS = 1
	cfg.StabilityMinSamples = 1

	clockVal := 0.0
	clock := func() float64 { return clockVal }
	tr := New(cfg, clock)

	f := checkerFrame(16, 16, 0)
	tr.Analyze(f, false) // register
	clockVal = 0.1
	// A change bumps ChangeCount and clips score.
	tr.Analyze(checkerFrame(16, 16, 1), false)
	clockVal = 5
	// Stable afterwards; same content as the "changed" frame now.
	tr.Analyze(checkerFrame(16, 16, 1), false)

	idx := 0
	cell := tr.grid[idx]
	if cell == nil {
		t.Fatal("cell 0 should be registered")
	}
	if cell.StabilityScore <= 0 {
		t.Errorf("stability score should have risen, got %f", cell.StabilityScore)
	}
}

func TestResolutionChangeClearsGrid(t *testing.T) {
	tr := New(DefaultConfig(), fixedClock(0))
	tr.Analyze(checkerFrame(32, 32, 0), false)
	if len(tr.grid) == 0 {
		t.Fatal("expected populated grid")
	}
	tr.Analyze(checkerFrame(64, 64, 0), false)
	for idx, cell := range tr.grid {
		if cell.ChangeCount != 0 {
			t.Errorf("cell %d should be freshly registered after resize, got ChangeCount=%d", idx, cell.ChangeCount)
		}
	}
}

func TestMergeAdjacentRegions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GridSize = 4
	tr := New(cfg, fixedClock(0))
	tr.width, tr.height = 16, 16
	tr.cellW, tr.cellH = 4, 4

	regions := []frame.ChangedRegion{
		{CellIndex: 0, Box: frame.Rect{X: 0, Y: 0, W: 4, H: 4}},
		{CellIndex: 1, Box: frame.Rect{X: 4, Y: 0, W: 4, H: 4}},
		{CellIndex: 10, Box: frame.Rect{X: 8, Y: 8, W: 4, H: 4}},
	}
	merged := tr.MergeAdjacentRegions(regions)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged groups (0,1 adjacent; 10 isolated), got %d: %+v", len(merged), merged)
	}
}

func TestSkipStableSuppressesEmission(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GridSize = 4
	cfg.StabilityThresholdS = 0
	cfg.StabilityMinSamples = 1
	clockVal := 0.0
	clock := func() float64 { return clockVal }
	tr := New(cfg, clock)

	f1 := checkerFrame(16, 16, 0)
	tr.Analyze(f1, false)
	clockVal = 1
	tr.Analyze(f1, false) // unchanged, accumulates stability via same hash

	cell := tr.grid[0]
	cell.StabilityScore = 0.9 // force stable for this test
	clockVal = 2
	changed := tr.Analyze(checkerFrame(16, 16, 1), true)
	for _, c := range changed {
		if c.CellIndex == 0 {
			t.Error("stable cell 0 change should be suppressed when skipStable is set")
		}
	}
}
