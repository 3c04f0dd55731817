package ocrcache

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
)

const DefaultMaxSize = 1000

// OCRFunc runs real OCR on an image; callers supply this, the cache never
// imports an OCR backend directly.
type OCRFunc func(ctx context.Context, img image.Image) (frame.OCRResult, error)

// Cache is a content-addressed, insertion-ordered LRU of OCR results,
// bounded at MaxSize. get/getOrCompute move the entry to the MRU end.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	method  FingerprintMethod
	order   []string // oldest-first
	entries map[string]*frame.OCRCacheEntry
}

func New(maxSize int, method FingerprintMethod) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Cache{
		maxSize: maxSize,
		method:  method,
		entries: make(map[string]*frame.OCRCacheEntry),
	}
}

// Get returns the cached result for img's fingerprint, if present, and
// moves it to MRU.
func (c *Cache) Get(img image.Image) (frame.OCRResult, bool) {
	key := Fingerprint(img, c.method)
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return frame.OCRResult{}, false
	}
	c.touch(key)
	entry.LastAccessAt = nowMs()
	entry.AccessCount++
	return entry.Result, true
}

// Put inserts or refreshes the entry for img, evicting the LRU end on
// overflow.
func (c *Cache) Put(img image.Image, result frame.OCRResult) {
	key := Fingerprint(img, c.method)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(key, result)
}

// GetOrCompute is the sole integration point higher layers use: on a miss
// it invokes ocrFn exactly once and stores the result; on a hit, ocrFn is
// never called.
func (c *Cache) GetOrCompute(ctx context.Context, img image.Image, ocrFn OCRFunc) (frame.OCRResult, error) {
	key := Fingerprint(img, c.method)

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok {
		c.touch(key)
		entry.LastAccessAt = nowMs()
		entry.AccessCount++
		result := entry.Result
		c.mu.Unlock()
		return result, nil
	}
	c.mu.Unlock()

	result, err := ocrFn(ctx, img)
	if err != nil {
		return frame.OCRResult{}, err
	}

	c.mu.Lock()
	c.putLocked(key, result)
	c.mu.Unlock()
	return result, nil
}

func (c *Cache) putLocked(key string, result frame.OCRResult) {
	now := nowMs()
	if entry, ok := c.entries[key]; ok {
		entry.Result = result
		entry.LastAccessAt = now
		c.touch(key)
		return
	}
	c.entries[key] = &frame.OCRCacheEntry{Result: result, CreatedAt: now, LastAccessAt: now}
	c.order = append(c.order, key)
	if len(c.order) > c.maxSize {
		evict := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, evict)
	}
}

// touch moves key to the MRU end of c.order. Caller holds c.mu.
func (c *Cache) touch(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, key)
}

// Size returns the current number of cached entries.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func nowMs() int64 { return time.Now().UnixMilli() }
