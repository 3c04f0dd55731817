// Package changedetector implements the pipeline's multi-stage change
// gate: a perceptual-hash fast gate, SSIM verification, and connected-
// component contour extraction.
package changedetector

import (
	"image"
	"image/draw"

	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
	"github.com/corona10/goimagehash"
)

const (
	DefaultPHashThreshold = 5
	DefaultMinArea        = 100
	DefaultBinarizeCutoff = 30

	ThresholdStable    = 0.92
	ThresholdSensitive = 0.85
)

// Config holds the gate's tunables. The orchestrator mutates Threshold at
// runtime (stable vs. sensitive); everything else is static.
type Config struct {
	PHashThreshold int
	Threshold      float64
	MinArea        int
	UseFastGate    bool
}

func DefaultConfig() Config {
	return Config{
		PHashThreshold: DefaultPHashThreshold,
		Threshold:      ThresholdStable,
		MinArea:        DefaultMinArea,
		UseFastGate:    true,
	}
}

// Metrics is the subset of counters the detector increments; callers wire
// this to internal/metrics without changedetector importing prometheus
// directly.
type Metrics interface {
	IncSSIMCalls()
	IncPHashRejected()
}

type nopMetrics struct{}

func (nopMetrics) IncSSIMCalls()     {}
func (nopMetrics) IncPHashRejected() {}

// Detector maintains cross-frame state: the previous grayscale frame and
// perceptual hash.
type Detector struct {
	cfg Config
	met Metrics

	prevGray *image.Gray
	prevHash *goimagehash.ImageHash
	haveHash bool

	lastDist         int
	lastGateRejected bool
}

// New constructs a Detector. A nil Metrics disables counter increments.
func New(cfg Config, met Metrics) *Detector {
	if met == nil {
		met = nopMetrics{}
	}
	return &Detector{cfg: cfg, met: met}
}

// SetThreshold lets the orchestrator swap the SSIM threshold between
// stable and sensitive regimes.
func (d *Detector) SetThreshold(t float64) { d.cfg.Threshold = t }

// Detect runs the three-stage gate against f. A nil result means "no
// change": the gate rejected the frame at some stage, or a numeric
// failure occurred (failures are treated as no-change).
func (d *Detector) Detect(f *frame.Frame) *frame.ChangeResult {
	if f == nil || f.Pixels == nil {
		return nil
	}

	d.lastDist = -1
	d.lastGateRejected = false
	if d.cfg.UseFastGate {
		if skip := d.fastGate(f.Pixels); skip {
			d.lastGateRejected = true
			d.met.IncPHashRejected()
			return nil
		}
	}

	gray := toGray(f.Pixels)

	if d.prevGray != nil && !sameBounds(d.prevGray, gray) {
		// Resolution change: reset state, treat this frame as no-change.
		d.prevGray = nil
		d.haveHash = false
		return nil
	}

	if d.prevGray == nil {
		d.prevGray = gray
		return nil
	}

	d.met.IncSSIMCalls()
	score, diffMap, w, h := ssim(d.prevGray, gray)
	if score >= d.cfg.Threshold {
		return nil
	}

	contours := extractContours(diffMap, w, h, DefaultBinarizeCutoff, d.cfg.MinArea)
	if len(contours) == 0 {
		return nil
	}

	merged := mergeBoxes(contours)
	d.prevGray = gray // key-frame update only on accepted change

	return &frame.ChangeResult{
		SSIM:       score,
		DiffMask:   diffMap,
		MaskWidth:  w,
		MaskHeight: h,
		Contours:   contours,
		MergedBox:  merged,
		PHashDist:  d.lastDist,
	}
}

// LastFastGateRejected reports whether the most recent Detect call was
// stopped by the perceptual-hash fast gate.
func (d *Detector) LastFastGateRejected() bool { return d.lastGateRejected }

// fastGate computes the pHash of img and reports whether the frame should
// be skipped (distance below threshold). The gate is advisory: any error
// from the hash library means "gate unavailable", always continue.
func (d *Detector) fastGate(img image.Image) bool {
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return false
	}
	if !d.haveHash {
		d.prevHash = hash
		d.haveHash = true
		return false
	}
	dist, err := d.prevHash.Distance(hash)
	if err != nil {
		d.prevHash = hash
		return false
	}
	d.lastDist = dist
	if dist < d.cfg.PHashThreshold {
		return true
	}
	d.prevHash = hash
	return false
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

func sameBounds(a, b *image.Gray) bool {
	return a.Bounds().Dx() == b.Bounds().Dx() && a.Bounds().Dy() == b.Bounds().Dy()
}
