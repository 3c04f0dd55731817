package sender

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anthillnet/sinain-hud/internal/metrics"
	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
)

func TestQueueBoundedAndPriorityOrdered(t *testing.T) {
	q := NewQueue(2)
	if !q.Offer(frame.QueuedEvent{Priority: frame.PriorityNormal, TsMs: 1}) {
		t.Fatal("first offer should succeed")
	}
	if !q.Offer(frame.QueuedEvent{Priority: frame.PriorityUrgent, TsMs: 2}) {
		t.Fatal("second offer should succeed")
	}
	if q.Offer(frame.QueuedEvent{Priority: frame.PriorityNormal, TsMs: 3}) {
		t.Fatal("third offer should be refused once at capacity")
	}

	first, ok := q.Take()
	if !ok || first.Priority != frame.PriorityUrgent {
		t.Fatalf("expected urgent event first, got %+v ok=%v", first, ok)
	}
	second, ok := q.Take()
	if !ok || second.Priority != frame.PriorityNormal {
		t.Fatalf("expected normal event second, got %+v ok=%v", second, ok)
	}
	if _, ok := q.Take(); ok {
		t.Fatal("queue should be empty")
	}
}

func TestSendDropsWhenQueueFull(t *testing.T) {
	met := metrics.New()
	s := New(Config{URL: "http://example.test", MaxQueueSize: 1}, met)
	if !s.Send(frame.SenseEvent{Type: frame.EventText}, frame.PriorityNormal) {
		t.Fatal("first send should be accepted")
	}
	if s.Send(frame.SenseEvent{Type: frame.EventText}, frame.PriorityNormal) {
		t.Fatal("second send should be dropped")
	}
}

func TestSendOverHTTPSuccess(t *testing.T) {
	var got atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["type"] == "text" {
			got.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	met := metrics.New()
	s := New(Config{URL: srv.URL, MaxQueueSize: 10}, met)
	ok := s.sendOverHTTP(context.Background(), frame.QueuedEvent{
		Priority: frame.PriorityNormal,
		Event:    frame.SenseEvent{Type: frame.EventText, OCR: "hello"},
	})
	if !ok {
		t.Fatal("expected successful HTTP send")
	}
	if got.Load() != 1 {
		t.Fatalf("server received %d matching posts, want 1", got.Load())
	}
}

func TestSendOverHTTPInFlightGuard(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	met := metrics.New()
	s := New(Config{URL: srv.URL, MaxQueueSize: 10}, met)

	done := make(chan bool)
	go func() {
		done <- s.sendOverHTTP(context.Background(), frame.QueuedEvent{Event: frame.SenseEvent{Type: frame.EventText}})
	}()
	time.Sleep(20 * time.Millisecond) // let the first request land in-flight

	if s.sendOverHTTP(context.Background(), frame.QueuedEvent{Event: frame.SenseEvent{Type: frame.EventText}}) {
		t.Error("second concurrent send should be refused by the in-flight guard")
	}
	close(block)
	<-done
}

func TestSendOverHTTPFailureRequeuesThenDrops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	met := metrics.New()
	s := New(Config{URL: srv.URL, MaxQueueSize: 10}, met)
	ev := frame.QueuedEvent{Event: frame.SenseEvent{Type: frame.EventText}}

	if s.sendOverHTTP(context.Background(), ev) {
		t.Fatal("expected failure on 500 response")
	}
	requeued, ok := s.queue.Take()
	if !ok {
		t.Fatal("expected event requeued after first failure")
	}
	if requeued.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", requeued.Attempts)
	}
}

func TestEncodeImageProducesValidBase64(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}
	encoded := EncodeImage(img, 5000, 0)
	if encoded == "" {
		t.Fatal("expected non-empty base64 payload")
	}
}

func TestEncodeImageRespectsMaxPixels(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 800, 200))
	encoded := EncodeImage(img, 1<<20, 100)
	if encoded == "" {
		t.Fatal("expected non-empty base64 payload")
	}
}

func TestPercentiles(t *testing.T) {
	samples := []time.Duration{
		10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond,
		40 * time.Millisecond, 100 * time.Millisecond,
	}
	p50, p95 := percentiles(samples)
	if p50 != 30*time.Millisecond {
		t.Errorf("p50 = %v, want 30ms", p50)
	}
	if p95 != 100*time.Millisecond {
		t.Errorf("p95 = %v, want 100ms", p95)
	}
}
