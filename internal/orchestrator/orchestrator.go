// Package orchestrator wires every pipeline stage together into the
// per-frame sequence: capture -> app detection -> adaptive change
// detection -> region tracking -> ROI/text filtering -> parallel OCR ->
// privacy redaction -> semantic state -> decision gate -> packaged send,
// plus a periodic stats/profiling snapshot.
package orchestrator

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nfnt/resize"

	"github.com/anthillnet/sinain-hud/internal/config"
	"github.com/anthillnet/sinain-hud/internal/metrics"
	"github.com/anthillnet/sinain-hud/internal/pipeline/appdetect"
	"github.com/anthillnet/sinain-hud/internal/pipeline/changedetector"
	ctxbuilder "github.com/anthillnet/sinain-hud/internal/pipeline/context"
	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
	"github.com/anthillnet/sinain-hud/internal/pipeline/gate"
	"github.com/anthillnet/sinain-hud/internal/pipeline/ocr"
	"github.com/anthillnet/sinain-hud/internal/pipeline/ocrcache"
	"github.com/anthillnet/sinain-hud/internal/pipeline/privacy"
	"github.com/anthillnet/sinain-hud/internal/pipeline/regiontracker"
	"github.com/anthillnet/sinain-hud/internal/pipeline/roi"
	"github.com/anthillnet/sinain-hud/internal/sender"
	"github.com/anthillnet/sinain-hud/internal/trace"
)

const (
	DefaultOCRPoolSize    = 4
	thresholdAppChange    = 0.85
	thresholdRestoreAfter = 10 * time.Second
	textFilterFallbackN   = 2
	maxThumbPixels        = 640
	controlPausePoll      = time.Second
)

// Capturer is the capture collaborator's capability set; the concrete
// driver lives outside the pipeline.
type Capturer interface {
	Capture() ([]byte, bool)
	CaptureAlways() []byte
	Close()
}

// Orchestrator owns every pipeline stage instance and runs the per-frame
// loop until its context is cancelled.
type Orchestrator struct {
	cfg     *config.Config
	capture Capturer
	appDet  *appdetect.Tracker

	detector         *changedetector.Detector
	tracker          *regiontracker.Tracker
	ocrCache         *ocrcache.Cache
	ocrStore         *ocrcache.Store
	ocrPool          *ocrPool
	ocrFn            ocrcache.OCRFunc
	ctxBuild         *ctxbuilder.Builder
	gate             *gate.Gate
	privacyOn        bool
	backpressureMode bool

	send *sender.Sender
	met  *metrics.Registry

	controlPath string

	stats     statsCounters
	startedAt time.Time

	lastAppChangeAt time.Time
	adaptiveActive  bool
}

// Deps bundles the external collaborators: the capture backend, the OCR
// backend, and optionally a non-stub app detector.
type Deps struct {
	Capture    Capturer
	OCR        ocr.Backend
	AppDetect  appdetect.Detector
}

func New(cfg *config.Config, deps Deps, met *metrics.Registry, controlPath string) *Orchestrator {
	if deps.AppDetect == nil {
		deps.AppDetect = appdetect.NewStub("", "")
	}
	if met == nil {
		met = metrics.New()
	}

	ocrCache := ocrcache.New(cfg.OCR.CacheSize, ocrcache.FingerprintMethod(cfg.OCR.CacheMethod))
	o := &Orchestrator{
		cfg:              cfg,
		capture:          deps.Capture,
		appDet:           appdetect.NewTracker(deps.AppDetect),
		detector:         changedetector.New(detectorConfig(cfg), met),
		tracker:          regiontracker.New(regiontrackerConfig(cfg), nil),
		ocrCache:         ocrCache,
		ocrStore:         ocrcache.NewStore(ocrcache.DefaultMaxPending, ocrCache),
		ocrPool:          newOCRPool(DefaultOCRPoolSize),
		ctxBuild:         ctxbuilder.NewBuilder(cfg.Semantic.MaxHistory),
		gate:             gate.New(gateConfig(cfg), nil),
		privacyOn:        true,
		backpressureMode: true,
		met:              met,
		controlPath:      controlPath,
		stats:            newStatsCounters(),
		startedAt:        time.Now(),
	}
	if deps.OCR != nil && cfg.OCR.Enabled {
		o.ocrFn = func(ctx context.Context, img image.Image) (frame.OCRResult, error) {
			return deps.OCR.Recognize(ctx, img)
		}
	} else {
		o.ocrFn = func(ctx context.Context, img image.Image) (frame.OCRResult, error) {
			return frame.OCRResult{}, nil
		}
	}
	o.ctxBuild.SetMaxDeltas(cfg.Semantic.MaxDeltasPerEvent)

	o.send = sender.New(sender.Config{
		URL:             cfg.Relay.URL,
		UseWebSocket:    cfg.Relay.UseWebSocket,
		MaxQueueSize:    cfg.Relay.MaxQueueSize,
		ReconnectDelayS: cfg.Relay.WSReconnectDelay,
		MaxImageBytes:   cfg.Relay.MaxImageKB * 1024,
		MaxImagePixels:  maxThumbPixels,
		ObserveLatency: func(d time.Duration) {
			o.stats.observeSend(float64(d.Milliseconds()))
		},
	}, met)

	return o
}

func detectorConfig(cfg *config.Config) changedetector.Config {
	return changedetector.Config{
		PHashThreshold: cfg.Detection.PHashThreshold,
		Threshold:      cfg.Detection.SSIMThreshold,
		MinArea:        cfg.Detection.MinArea,
		UseFastGate:    cfg.Detection.UseFastGate,
	}
}

func regiontrackerConfig(cfg *config.Config) regiontracker.Config {
	c := regiontracker.DefaultConfig()
	c.GridSize = cfg.Regions.GridSize
	c.StabilityThresholdS = cfg.Regions.StabilityThresholdS
	c.StabilityMinSamples = cfg.Regions.StabilityMinSamples
	return c
}

func gateConfig(cfg *config.Config) gate.Config {
	return gate.Config{
		MinOcrChars:          cfg.Gate.MinOcrChars,
		MajorChangeThreshold: cfg.Gate.MajorChangeThreshold,
		CooldownMs:           cfg.Gate.CooldownMs,
		AdaptiveCooldownMs:   cfg.Gate.AdaptiveCooldownMs,
		ContextCooldownMs:    cfg.Gate.ContextCooldownMs,
	}
}

// Run drives the capture->send loop at cfg.Capture.FPS until ctx is
// cancelled. Both the sender's transport loop and the periodic stats
// ticker run as sibling goroutines under the same context.
func (o *Orchestrator) Run(ctx context.Context) {
	go o.send.Run(ctx)
	go o.runStatsLoop(ctx)

	interval := time.Second
	if o.cfg.Capture.FPS > 0 {
		interval = time.Duration(float64(time.Second) / o.cfg.Capture.FPS)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

// Tick runs a single capture-to-send cycle synchronously, exported for the
// `sensed profile e2e` command; Run is the normal entry point for a live
// process.
func (o *Orchestrator) Tick(ctx context.Context) { o.tick(ctx) }

// tick runs the full capture-to-send sequence for a single frame.
func (o *Orchestrator) tick(ctx context.Context) {
	ctrl := config.LoadControl(o.controlPath)
	if !ctrl.Enabled {
		time.Sleep(controlPausePoll)
		return
	}

	tctx, span := trace.StartSpan(ctx, "orchestrator.tick")
	defer span.End()

	data, changed := o.capture.Capture()
	if !changed {
		return
	}
	f, err := decodeFrame(data, o.cfg.Capture.Scale)
	if err != nil {
		o.stats.incCaptureFail()
		slog.Debug("orchestrator: frame decode failed", "error", err)
		return
	}
	o.stats.incCaptureOk()

	appState, appChanged, windowChanged, err := o.appDet.Poll(tctx)
	if err != nil {
		slog.Debug("orchestrator: app detection failed", "error", err)
	}
	o.applyAdaptiveThreshold(appChanged, windowChanged)

	detectStart := time.Now()
	change := o.detector.Detect(f)
	o.stats.observeDetect(float64(time.Since(detectStart).Milliseconds()))
	if o.cfg.Detection.UseFastGate {
		o.stats.notePHash(o.detector.LastFastGateRejected())
	}
	if o.met != nil {
		o.met.ObserveStage("detect", time.Since(detectStart).Seconds())
	}
	o.tracker.Analyze(f, true)

	if change == nil && !appChanged && !windowChanged {
		return
	}

	rois := o.selectROIs(f, change)

	if !o.gate.IsReady(appChanged, windowChanged) {
		o.stats.incEventGated()
		if o.backpressureMode {
			// Stash the pending frame/regions rather than running OCR now;
			// a later ready tick drains it through the cache.
			o.ocrStore.AddFrame(f, rois, f.TsMs)
		}
		return
	}

	ocrStart := time.Now()
	ocrResult, ocrErr := o.runOCR(tctx, rois)
	o.stats.observeOCR(float64(time.Since(ocrStart).Milliseconds()))
	if o.met != nil {
		o.met.ObserveStage("ocr", time.Since(ocrStart).Seconds())
	}
	if o.backpressureMode && o.ocrStore.Len() > 0 {
		if deferred, err := o.ocrStore.GetLatestOCR(tctx, o.ocrFn, textFilterFallbackN*2); err == nil && deferred.Text != "" {
			ocrResult = mergeOCR(ocrResult, deferred)
		}
	}
	if ocrErr {
		o.stats.incOcrError()
	}
	if o.privacyOn {
		ocrResult.Text = privacy.Filter(ocrResult.Text)
	}

	snap := o.ctxBuild.AddEvent(ocrResult.Text, appState.App, appState.WindowTitle, ssimOf(change), appChanged, windowChanged)

	event, ok := o.gate.Classify(change, ocrResult, appChanged, windowChanged)
	if !ok {
		o.stats.incEventGated()
		// Text the gate held back is context the relay never has to spend
		// tokens on; the same /4 estimate the semantic builder uses.
		o.stats.addTokensSaved(len(ocrResult.Text) / 4)
		return
	}

	event.Meta.App = appState.App
	event.Meta.WindowTitle = appState.WindowTitle
	event = o.attachImage(event, f, rois)

	priority := priorityFor(appChanged, windowChanged, snap.State)
	if o.send.Send(event, priority) {
		o.stats.incEventSent()
	} else {
		o.stats.incEventFailed()
	}
}

func (o *Orchestrator) applyAdaptiveThreshold(appChanged, windowChanged bool) {
	now := time.Now()
	if appChanged || windowChanged {
		o.lastAppChangeAt = now
		if !o.adaptiveActive {
			o.adaptiveActive = true
			o.detector.SetThreshold(thresholdAppChange)
		}
		return
	}
	if o.adaptiveActive && now.Sub(o.lastAppChangeAt) >= thresholdRestoreAfter {
		o.adaptiveActive = false
		o.detector.SetThreshold(o.cfg.Detection.SSIMThreshold)
	}
}

// selectROIs runs ROI extraction -> text filtering, falling back to the
// top-2 regions by area when the filter rejects everything.
func (o *Orchestrator) selectROIs(f *frame.Frame, change *frame.ChangeResult) []frame.ROI {
	if change == nil {
		return nil
	}
	extracted := roi.Extract(f, change.Contours, o.cfg.Detection.ROIPadding)
	if !o.cfg.TextDetection.Enabled {
		return extracted
	}

	filterCfg := roi.FilterConfig{
		Threshold: o.cfg.TextDetection.Threshold,
		MinW:      o.cfg.TextDetection.MinSize[0],
		MinH:      o.cfg.TextDetection.MinSize[1],
	}
	var textLike []frame.ROI
	for _, r := range extracted {
		if roi.IsTextRegion(r.Image, filterCfg) {
			textLike = append(textLike, r)
		}
	}
	if len(textLike) > 0 {
		return textLike
	}
	return roi.TopNByArea(extracted, textFilterFallbackN)
}

// runOCR fans ROIs out across the worker pool and picks the single result
// with the longest text.
func (o *Orchestrator) runOCR(ctx context.Context, rois []frame.ROI) (frame.OCRResult, bool) {
	if len(rois) == 0 {
		return frame.OCRResult{}, false
	}
	var failed atomic.Bool
	var misses atomic.Int64
	countingFn := func(fctx context.Context, img image.Image) (frame.OCRResult, error) {
		misses.Add(1)
		return o.ocrFn(fctx, img)
	}
	results := o.ocrPool.recognizeAll(ctx, o.ocrCache, countingFn, rois, func() { failed.Store(true) })

	hits := int64(len(rois)) - misses.Load()
	o.stats.noteCacheBatch(int64(len(rois)), hits)
	if o.met != nil {
		o.met.OCRCacheHits.Add(float64(hits))
		o.met.OCRCacheMisses.Add(float64(misses.Load()))
	}
	return longestText(results), failed.Load()
}

func (o *Orchestrator) attachImage(event frame.SenseEvent, f *frame.Frame, rois []frame.ROI) frame.SenseEvent {
	if !o.cfg.Relay.SendThumbnails {
		return event
	}
	switch event.Type {
	case frame.EventContext:
		event.ROI = &frame.ImagePayload{
			Data:  sender.EncodeImage(f.Pixels, o.cfg.Relay.MaxImageKB*1024, maxThumbPixels),
			Box:   frame.Rect{X: 0, Y: 0, W: f.Width, H: f.Height},
			Thumb: true,
		}
	default:
		if len(rois) > 0 {
			event.ROI = &frame.ImagePayload{
				Data:  sender.EncodeImage(rois[0].Image, o.cfg.Relay.MaxImageKB*1024, maxThumbPixels),
				Box:   rois[0].Box,
				Thumb: true,
			}
		} else {
			event.ROI = &frame.ImagePayload{
				Data:  sender.EncodeImage(f.Pixels, o.cfg.Relay.MaxImageKB*1024, maxThumbPixels),
				Box:   frame.Rect{X: 0, Y: 0, W: f.Width, H: f.Height},
				Thumb: true,
			}
		}
	}
	return event
}

func priorityFor(appChanged, windowChanged bool, state frame.SemanticState) frame.Priority {
	if appChanged || windowChanged || state.HasError {
		return frame.PriorityUrgent
	}
	if state.Activity == frame.ActivityTyping {
		return frame.PriorityHigh
	}
	return frame.PriorityNormal
}

// mergeOCR folds deferred (lazily-OCR'd) text in behind the current frame's
// result, picking whichever carries more signal for the semantic layer,
// per the same max-length heuristic the worker pool uses for one frame.
func mergeOCR(current, deferred frame.OCRResult) frame.OCRResult {
	if len(deferred.Text) <= len(current.Text) {
		return current
	}
	return deferred
}

func ssimOf(change *frame.ChangeResult) float64 {
	if change == nil {
		return 1.0
	}
	return change.SSIM
}

// decodeFrame decodes a captured JPEG and applies the one-time downscale;
// every stage afterwards shares this single reduced copy read-only.
func decodeFrame(data []byte, scale float64) (*frame.Frame, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if scale > 0 && scale < 1 {
		w := uint(float64(img.Bounds().Dx()) * scale)
		img = resize.Resize(w, 0, img, resize.Bilinear)
	}
	b := img.Bounds()
	return &frame.Frame{Pixels: img, Width: b.Dx(), Height: b.Dy(), TsMs: time.Now().UnixMilli(), Model: frame.ColorYCbCr}, nil
}

// runStatsLoop emits a StatsSnapshot and POSTs a profiling snapshot every
// 60s.
func (o *Orchestrator) runStatsLoop(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.emitStats(ctx)
		}
	}
}

func (o *Orchestrator) emitStats(ctx context.Context) {
	rssMb, err := processStats()
	if err != nil {
		slog.Debug("orchestrator: process stats unavailable", "error", err)
	}
	uptimeS := time.Since(o.startedAt).Seconds()
	snap := o.stats.flush(rssMb, uptimeS, time.Now().UnixMilli(), o.tracker.StableCellCount())
	if o.met != nil {
		o.met.CacheSize.Set(float64(o.ocrCache.Size()))
		o.met.StableCells.Set(snap.Extra["stableRegions"])
	}
	postStatsSnapshot(ctx, o.send.HTTPClient(), o.cfg.Relay.URL, snap)
}
