package sender

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/nfnt/resize"
)

const (
	qualityFirstTry = 85
	qualitySearchLo = 20
	qualitySearchHi = 80
	qualityFallback = 20
)

// EncodeImage converts img to a base64 JPEG string under maxBytes, trying
// quality 85 first, binary-searching [20,80] for the largest quality that
// fits, and finally falling back to quality 20 unconditionally. If maxPixels
// is positive and img exceeds it along its longest side, it is downscaled
// by Lanczos3 first. RGBA images are flattened onto an opaque RGB canvas
// before encoding, since JPEG has no alpha channel.
func EncodeImage(img image.Image, maxBytes, maxPixels int) string {
	img = toRGB(img)
	img = downscaleToFit(img, maxPixels)

	if data, ok := encodeAtQuality(img, qualityFirstTry); ok && (maxBytes <= 0 || len(data) <= maxBytes) {
		return base64.StdEncoding.EncodeToString(data)
	}

	best, found := binarySearchQuality(img, maxBytes)
	if found {
		return base64.StdEncoding.EncodeToString(best)
	}

	data, _ := encodeAtQuality(img, qualityFallback)
	return base64.StdEncoding.EncodeToString(data)
}

// binarySearchQuality finds the largest JPEG quality in [qualitySearchLo,
// qualitySearchHi] whose encoded size is <= maxBytes, returning the best
// fitting encoding found (if any).
func binarySearchQuality(img image.Image, maxBytes int) ([]byte, bool) {
	lo, hi := qualitySearchLo, qualitySearchHi
	var best []byte
	found := false

	for lo <= hi {
		mid := (lo + hi) / 2
		data, ok := encodeAtQuality(img, mid)
		if ok && len(data) <= maxBytes {
			best = data
			found = true
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return best, found
}

func encodeAtQuality(img image.Image, quality int) ([]byte, bool) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

func toRGB(img image.Image) image.Image {
	if _, ok := img.(*image.RGBA); !ok {
		if _, ok := img.(*image.NRGBA); !ok {
			return img
		}
	}
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, image.White, image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst
}

// downscaleToFit shrinks img by Lanczos3 so its longest side fits within
// maxPixels; a non-positive maxPixels disables the constraint.
func downscaleToFit(img image.Image, maxPixels int) image.Image {
	if maxPixels <= 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= maxPixels {
		return img
	}
	if w >= h {
		return resize.Resize(uint(maxPixels), 0, img, resize.Lanczos3)
	}
	return resize.Resize(0, uint(maxPixels), img, resize.Lanczos3)
}
