package ocrcache

import (
	"context"
	"image"
	"testing"

	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
)

func fakeOCR(ctx context.Context, img image.Image) (frame.OCRResult, error) {
	return frame.OCRResult{Text: "x", Confidence: 80, WordCount: 1}, nil
}

func TestStoreTrimsOnOverflow(t *testing.T) {
	s := NewStore(2, New(10, MethodPixel))
	f := &frame.Frame{}
	s.AddFrame(f, nil, 1)
	s.AddFrame(f, nil, 2)
	s.AddFrame(f, nil, 3)
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (bounded)", s.Len())
	}
}

func TestGetLatestOCREmptyStore(t *testing.T) {
	s := NewStore(5, New(10, MethodPixel))
	res, err := s.GetLatestOCR(context.Background(), fakeOCR, 4)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "" {
		t.Errorf("expected empty result on empty store, got %+v", res)
	}
}

func TestGetLatestOCRUnionsRegions(t *testing.T) {
	s := NewStore(5, New(10, MethodPixel))
	roi1 := frame.ROI{Image: solidImg(8, 8, 1)}
	roi2 := frame.ROI{Image: solidImg(8, 8, 2)}
	s.AddFrame(&frame.Frame{}, []frame.ROI{roi1, roi2}, 1)

	res, err := s.GetLatestOCR(context.Background(), fakeOCR, 4)
	if err != nil {
		t.Fatal(err)
	}
	if res.WordCount != 2 {
		t.Errorf("WordCount = %d, want 2 (union of both regions)", res.WordCount)
	}
}

func TestGetOcrForContextFiltersBySince(t *testing.T) {
	s := NewStore(10, New(10, MethodPixel))
	s.AddFrame(&frame.Frame{}, []frame.ROI{{Image: solidImg(4, 4, 1)}}, 100)
	s.AddFrame(&frame.Frame{}, []frame.ROI{{Image: solidImg(4, 4, 2)}}, 200)

	results, err := s.GetOcrForContext(context.Background(), 150, fakeOCR)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result newer than sinceTs, got %d", len(results))
	}
}
