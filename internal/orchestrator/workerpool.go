package orchestrator

import (
	"context"
	"sync"

	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
	"github.com/anthillnet/sinain-hud/internal/pipeline/ocrcache"
)

// ocrPool runs OCR over a batch of ROIs with bounded concurrency. A
// per-batch semaphore rather than a persistent job-channel pool: each
// frame offers at most a handful of ROIs, not a steady job stream.
type ocrPool struct {
	size int
}

func newOCRPool(size int) *ocrPool {
	if size <= 0 {
		size = DefaultOCRPoolSize
	}
	return &ocrPool{size: size}
}

// recognizeAll runs ocrFn (cache-routed) over every ROI concurrently, up to
// the pool's size, and returns one OCRResult per ROI in input order. A
// failed OCR call is counted via onError and yields a zero-value OCRResult;
// the pipeline continues rather than surfacing the failure.
func (p *ocrPool) recognizeAll(ctx context.Context, cache *ocrcache.Cache, ocrFn ocrcache.OCRFunc, rois []frame.ROI, onError func()) []frame.OCRResult {
	results := make([]frame.OCRResult, len(rois))
	sem := make(chan struct{}, p.size)
	var wg sync.WaitGroup

	for i, r := range rois {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, roi frame.ROI) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := cache.GetOrCompute(ctx, roi.Image, ocrFn)
			if err != nil {
				if onError != nil {
					onError()
				}
				return
			}
			results[i] = result
		}(i, r)
	}
	wg.Wait()
	return results
}

// longestText picks the OCRResult with the most characters.
func longestText(results []frame.OCRResult) frame.OCRResult {
	var best frame.OCRResult
	for _, r := range results {
		if len(r.Text) > len(best.Text) {
			best = r
		}
	}
	return best
}
