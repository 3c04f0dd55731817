package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"sort"
	"time"

	"github.com/anthillnet/sinain-hud/internal/config"
	"github.com/anthillnet/sinain-hud/internal/metrics"
	"github.com/anthillnet/sinain-hud/internal/orchestrator"
	"github.com/anthillnet/sinain-hud/internal/pipeline/changedetector"
	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
	"github.com/anthillnet/sinain-hud/internal/pipeline/ocrcache"
	"github.com/anthillnet/sinain-hud/internal/screen"
	"github.com/spf13/cobra"
)

const profileIterations = 20

var profileCmd = &cobra.Command{
	Use:       "profile {capture|detection|ocr|e2e}",
	Short:     "Measure one pipeline stage's latency against the live capture backend",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"capture", "detection", "ocr", "e2e"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProfile(args[0])
	},
}

func runProfile(mode string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return &configError{cause: err}
	}

	cap := screen.New()
	if cap == nil {
		return &captureError{cause: fmt.Errorf("no capture backend available on this platform")}
	}
	defer cap.Close()

	switch mode {
	case "capture":
		return profileCapture(cap)
	case "detection":
		return profileDetection(cfg, cap)
	case "ocr":
		return profileOCR(cfg, cap)
	case "e2e":
		return profileE2E(cfg, cap)
	default:
		return fmt.Errorf("unknown profile mode %q (want capture, detection, ocr, or e2e)", mode)
	}
}

func profileCapture(cap screen.Capturer) error {
	samples := timeN(profileIterations, func() {
		_ = cap.CaptureAlways()
	})
	report("capture", samples)
	return nil
}

func profileDetection(cfg *config.Config, cap screen.Capturer) error {
	det := changedetector.New(changedetector.DefaultConfig(), nil)
	det.SetThreshold(cfg.Detection.SSIMThreshold)

	f, err := captureFrame(cap)
	if err != nil {
		return &captureError{cause: err}
	}

	samples := timeN(profileIterations, func() {
		det.Detect(f)
	})
	report("detection", samples)
	return nil
}

// profileOCR times a cache miss (the stub OCR function runs) followed by
// repeated cache hits against the same frame, since no real OCR backend
// is wired into this build.
func profileOCR(cfg *config.Config, cap screen.Capturer) error {
	f, err := captureFrame(cap)
	if err != nil {
		return &captureError{cause: err}
	}

	fmt.Println("note: no OCR backend is wired into this build; timing the stub + cache path")
	cache := ocrcache.New(cfg.OCR.CacheSize, ocrcache.FingerprintMethod(cfg.OCR.CacheMethod))
	stub := func(ctx context.Context, img image.Image) (frame.OCRResult, error) {
		return frame.OCRResult{}, nil
	}

	ctx := context.Background()
	samples := timeN(profileIterations, func() {
		_, _ = cache.GetOrCompute(ctx, f.Pixels, stub)
	})
	report("ocr", samples)
	return nil
}

func profileE2E(cfg *config.Config, cap screen.Capturer) error {
	met := metrics.New()
	orch := orchestrator.New(cfg, orchestrator.Deps{Capture: cap}, met, controlFile)

	ctx := context.Background()
	samples := timeN(profileIterations, func() {
		orch.Tick(ctx)
	})
	report("e2e", samples)
	return nil
}

func captureFrame(cap screen.Capturer) (*frame.Frame, error) {
	data := cap.CaptureAlways()
	if data == nil {
		return nil, fmt.Errorf("capture produced no frame")
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return &frame.Frame{Pixels: img, Width: b.Dx(), Height: b.Dy(), TsMs: time.Now().UnixMilli(), Model: frame.ColorYCbCr}, nil
}

func timeN(n int, fn func()) []time.Duration {
	samples := make([]time.Duration, 0, n)
	for i := 0; i < n; i++ {
		start := time.Now()
		fn()
		samples = append(samples, time.Since(start))
	}
	return samples
}

func report(stage string, samples []time.Duration) {
	if len(samples) == 0 {
		fmt.Printf("%s: no samples\n", stage)
		return
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, s := range sorted {
		sum += s
	}
	avg := sum / time.Duration(len(sorted))

	p95idx := (len(sorted) * 95) / 100
	if p95idx >= len(sorted) {
		p95idx = len(sorted) - 1
	}

	fmt.Printf("%s: n=%d min=%s avg=%s max=%s p95=%s\n",
		stage, len(sorted), sorted[0], avg, sorted[len(sorted)-1], sorted[p95idx])
}
