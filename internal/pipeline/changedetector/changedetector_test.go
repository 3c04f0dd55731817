package changedetector

import (
	"image"
	"image/color"
	"testing"

	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
)

func solidFrame(w, h int, v uint8, ts int64) *frame.Frame {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return &frame.Frame{Pixels: img, Width: w, Height: h, TsMs: ts}
}

func TestFirstFrameAlwaysNoChange(t *testing.T) {
	d := New(DefaultConfig(), nil)
	if res := d.Detect(solidFrame(64, 64, 100, 0)); res != nil {
		t.Fatalf("first frame should return nil, got %+v", res)
	}
}

func TestIdenticalFramesNoChange(t *testing.T) {
	d := New(DefaultConfig(), nil)
	d.Detect(solidFrame(64, 64, 100, 0))
	if res := d.Detect(solidFrame(64, 64, 100, 1)); res != nil {
		t.Fatalf("identical frame should return nil, got %+v", res)
	}
}

func TestLargeChangeDetected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseFastGate = false // force SSIM path regardless of pHash availability
	d := New(cfg, nil)
	d.Detect(solidFrame(64, 64, 20, 0))

	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = 20
	}
	for y := 10; y < 54; y++ {
		for x := 10; x < 54; x++ {
			img.SetGray(x, y, color.Gray{Y: 240})
		}
	}
	f := &frame.Frame{Pixels: img, Width: 64, Height: 64, TsMs: 1}

	res := d.Detect(f)
	if res == nil {
		t.Fatal("large block change should be detected")
	}
	if res.SSIM >= cfg.Threshold {
		t.Errorf("SSIM = %f, want < %f", res.SSIM, cfg.Threshold)
	}
	if len(res.Contours) == 0 {
		t.Error("expected at least one contour")
	}
}

func TestResolutionChangeResetsState(t *testing.T) {
	d := New(DefaultConfig(), nil)
	d.Detect(solidFrame(64, 64, 100, 0))
	if res := d.Detect(solidFrame(32, 32, 100, 1)); res != nil {
		t.Fatalf("resolution change should report nil, got %+v", res)
	}
	// Next frame at the new resolution is treated as the first frame again.
	if res := d.Detect(solidFrame(32, 32, 50, 2)); res != nil {
		t.Fatalf("frame after reset should be nil (first frame), got %+v", res)
	}
}

func TestNilFrameNoChange(t *testing.T) {
	d := New(DefaultConfig(), nil)
	if res := d.Detect(nil); res != nil {
		t.Fatal("nil frame should produce nil result")
	}
}

type countingMetrics struct {
	ssimCalls, rejected int
}

func (m *countingMetrics) IncSSIMCalls()     { m.ssimCalls++ }
func (m *countingMetrics) IncPHashRejected() { m.rejected++ }

func TestMetricsIncremented(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseFastGate = false
	met := &countingMetrics{}
	d := New(cfg, met)
	d.Detect(solidFrame(32, 32, 10, 0))
	d.Detect(solidFrame(32, 32, 200, 1))
	if met.ssimCalls == 0 {
		t.Error("expected at least one SSIM call counted")
	}
}
