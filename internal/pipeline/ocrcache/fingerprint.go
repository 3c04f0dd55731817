// Package ocrcache implements the content-addressed OCR result cache and
// the lazy deferred-OCR frame store.
package ocrcache

import (
	"crypto/md5"
	"encoding/hex"
	"image"
	"image/draw"

	"github.com/nfnt/resize"
)

// FingerprintMethod selects how Fingerprint canonicalizes an ROI image.
type FingerprintMethod string

const (
	// MethodContent downscales to 32x32 grayscale, thresholds against the
	// mean, and hashes the resulting 1024-bit signature: perceptually
	// near-identical crops collide; visually distinct ones don't.
	MethodContent FingerprintMethod = "content"
	// MethodPixel is an exact MD5 of the grayscale bytes, distinct for any
	// pixel-level difference.
	MethodPixel FingerprintMethod = "pixel"
)

const fingerprintSize = 32

// Fingerprint computes a 16-hex-digit content-addressed key for img.
func Fingerprint(img image.Image, method FingerprintMethod) string {
	gray := downscaleGray(img, fingerprintSize, fingerprintSize)
	if method == MethodPixel {
		sum := md5.Sum(gray.Pix)
		return hex.EncodeToString(sum[:])[:16]
	}

	mean := meanBrightness(gray)
	bits := make([]byte, (fingerprintSize*fingerprintSize+7)/8)
	for i, v := range gray.Pix {
		if float64(v) > mean {
			bits[i/8] |= 1 << uint(i%8)
		}
	}
	sum := md5.Sum(bits)
	return hex.EncodeToString(sum[:])[:16]
}

func downscaleGray(img image.Image, w, h int) *image.Gray {
	small := resize.Resize(uint(w), uint(h), img, resize.Bilinear)
	gray := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(gray, gray.Bounds(), small, small.Bounds().Min, draw.Src)
	return gray
}

func meanBrightness(gray *image.Gray) float64 {
	if len(gray.Pix) == 0 {
		return 0
	}
	var sum int
	for _, v := range gray.Pix {
		sum += int(v)
	}
	return float64(sum) / float64(len(gray.Pix))
}
