package ocrcache

import (
	"context"
	"sync"

	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
)

const DefaultMaxPending = 20

// Store is a bounded FIFO of pending frames awaiting lazy OCR. It never
// runs OCR on its own schedule; it defers until a consumer asks, routing
// through a Cache.
type Store struct {
	mu         sync.Mutex
	maxPending int
	pending    []frame.PendingFrame
	cache      *Cache
}

func NewStore(maxPending int, cache *Cache) *Store {
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	return &Store{maxPending: maxPending, cache: cache}
}

// AddFrame appends a pending frame, trimming the oldest on overflow.
func (s *Store) AddFrame(f *frame.Frame, regions []frame.ROI, tsMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, frame.PendingFrame{Frame: f, Regions: regions, TsMs: tsMs})
	if len(s.pending) > s.maxPending {
		s.pending = s.pending[len(s.pending)-s.maxPending:]
	}
}

// GetLatestOCR returns the union OCR text of the most recent pending
// frame's first maxRegions regions, each routed through the cache.
func (s *Store) GetLatestOCR(ctx context.Context, ocrFn OCRFunc, maxRegions int) (frame.OCRResult, error) {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return frame.OCRResult{}, nil
	}
	latest := s.pending[len(s.pending)-1]
	s.mu.Unlock()

	regions := latest.Regions
	if len(regions) > maxRegions {
		regions = regions[:maxRegions]
	}
	return s.unionOCR(ctx, regions, ocrFn)
}

// GetOcrForContext returns OCR results for every pending frame newer than
// sinceTs.
func (s *Store) GetOcrForContext(ctx context.Context, sinceTs int64, ocrFn OCRFunc) ([]frame.OCRResult, error) {
	s.mu.Lock()
	var frames []frame.PendingFrame
	for _, pf := range s.pending {
		if pf.TsMs > sinceTs {
			frames = append(frames, pf)
		}
	}
	s.mu.Unlock()

	results := make([]frame.OCRResult, 0, len(frames))
	for _, pf := range frames {
		res, err := s.unionOCR(ctx, pf.Regions, ocrFn)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Store) unionOCR(ctx context.Context, regions []frame.ROI, ocrFn OCRFunc) (frame.OCRResult, error) {
	var text string
	var confSum float64
	var words int
	for _, r := range regions {
		res, err := s.cache.GetOrCompute(ctx, r.Image, ocrFn)
		if err != nil {
			continue
		}
		if text != "" {
			text += "\n"
		}
		text += res.Text
		confSum += res.Confidence
		words += res.WordCount
	}
	conf := 0.0
	if len(regions) > 0 {
		conf = confSum / float64(len(regions))
	}
	return frame.OCRResult{Text: text, Confidence: conf, WordCount: words}, nil
}

// Len reports the current number of pending frames.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
