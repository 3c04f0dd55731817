// Package ocr defines the OCR backend capability the pipeline treats as
// an external collaborator: a black-box (image) -> (text, confidence,
// word count) function.
package ocr

import (
	"context"
	"image"

	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
)

// Backend is the capability set an OCR engine must satisfy. Modeled as an
// interface rather than a concrete client so the real engine can be swapped
// for a deterministic stub in tests and `profile` runs.
type Backend interface {
	Recognize(ctx context.Context, img image.Image) (frame.OCRResult, error)
}

// Func adapts a plain function to Backend.
type Func func(ctx context.Context, img image.Image) (frame.OCRResult, error)

func (f Func) Recognize(ctx context.Context, img image.Image) (frame.OCRResult, error) {
	return f(ctx, img)
}
