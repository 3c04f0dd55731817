// Package sender implements the egress half of the pipeline: a bounded
// priority queue drained by a WebSocket connection loop with an HTTP
// fallback, a circuit breaker, and backpressure handling.
package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/anthillnet/sinain-hud/internal/metrics"
	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
	"github.com/anthillnet/sinain-hud/internal/resilience"
	"github.com/anthillnet/sinain-hud/internal/trace"
)

const (
	DefaultMaxQueueSize  = 100
	DefaultReconnectS    = 1.0
	maxReconnectBackoffS = 60.0
	ackTimeout           = 2 * time.Second
	maxAttempts          = 3
)

// Config configures a Sender. URL is the relay endpoint; for the WebSocket
// transport it is dialed directly, for the HTTP fallback "/sense" is
// appended.
type Config struct {
	URL             string
	UseWebSocket    bool
	MaxQueueSize    int
	ReconnectDelayS float64
	AuthToken       string // optional; enables the challenge/auth handshake
	MaxImageBytes   int
	MaxImagePixels  int

	// ObserveLatency, if set, receives each send attempt's wall-clock
	// duration; the orchestrator points this at its stats snapshot.
	ObserveLatency func(d time.Duration)
}

// wireEvent is the JSON shape sent per accepted event.
type wireEvent struct {
	Type string        `json:"type"`
	TsMs int64         `json:"ts"`
	OCR  string        `json:"ocr"`
	Meta wireMeta      `json:"meta"`
	ROI  *wireROI      `json:"roi,omitempty"`
}

type wireMeta struct {
	SSIM        float64 `json:"ssim"`
	App         string  `json:"app"`
	WindowTitle string  `json:"windowTitle"`
	Screen      int     `json:"screen"`
}

type wireROI struct {
	Data  string `json:"data"`
	BBox  [4]int `json:"bbox"`
	Thumb bool   `json:"thumb"`
}

type wireAck struct {
	Backpressure int64 `json:"backpressure"`
}

func toWire(ev frame.SenseEvent) wireEvent {
	w := wireEvent{
		Type: string(ev.Type),
		TsMs: ev.TsMs,
		OCR:  ev.OCR,
		Meta: wireMeta{SSIM: ev.Meta.SSIM, App: ev.Meta.App, WindowTitle: ev.Meta.WindowTitle, Screen: ev.Meta.Screen},
	}
	if ev.ROI != nil {
		w.ROI = &wireROI{
			Data:  ev.ROI.Data,
			BBox:  [4]int{ev.ROI.Box.X, ev.ROI.Box.Y, ev.ROI.Box.W, ev.ROI.Box.H},
			Thumb: ev.ROI.Thumb,
		}
	}
	return w
}

// Sender owns the outgoing priority queue and the transport (WebSocket
// connection loop, or HTTP fallback) that drains it.
type Sender struct {
	cfg     Config
	queue   *Queue
	breaker *resilience.Breaker
	metrics *metrics.Registry
	client  *http.Client

	suppressUntil atomic.Int64 // unix ms; backpressure deadline
	httpInFlight  atomic.Bool

	mu         sync.Mutex
	httpLat    []time.Duration
	lastLatLog time.Time
}

// HTTPClient exposes the sender's HTTP client for the orchestrator's
// out-of-band profiling-snapshot POST.
func (s *Sender) HTTPClient() *http.Client { return s.client }

func New(cfg Config, met *metrics.Registry) *Sender {
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = DefaultMaxQueueSize
	}
	if cfg.ReconnectDelayS <= 0 {
		cfg.ReconnectDelayS = DefaultReconnectS
	}
	return &Sender{
		cfg:     cfg,
		queue:   NewQueue(cfg.MaxQueueSize),
		breaker: resilience.New(resilience.SenderConfig()),
		metrics: met,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Send stages ev for delivery at the given priority. Returns false if the
// queue is full (counted as a drop) or the circuit breaker is open.
func (s *Sender) Send(ev frame.SenseEvent, priority frame.Priority) bool {
	if s.breaker.Allow() != nil {
		return false
	}
	if nowMs() < s.suppressUntil.Load() {
		return false
	}
	ok := s.queue.Offer(frame.QueuedEvent{Priority: priority, TsMs: nowMs(), Event: ev})
	if !ok && s.metrics != nil {
		s.metrics.EventsDropped.Inc()
	}
	if s.metrics != nil {
		s.metrics.QueueDepth.Set(float64(s.queue.Len()))
	}
	return ok
}

// Run drives the transport until ctx is cancelled: the WebSocket connection
// loop with reconnect/backoff if cfg.UseWebSocket, otherwise a queue-drain
// loop that POSTs each event via the HTTP fallback.
func (s *Sender) Run(ctx context.Context) {
	if s.cfg.UseWebSocket {
		s.runWebSocketLoop(ctx)
		return
	}
	s.runHTTPDrainLoop(ctx)
}

func (s *Sender) runWebSocketLoop(ctx context.Context) {
	backoff := s.cfg.ReconnectDelayS
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.Dial(ctx, s.cfg.URL, nil)
		if err != nil {
			slog.Warn("sender: websocket dial failed", "error", err, "backoff_s", backoff)
			if !sleepCtx(ctx, time.Duration(backoff*float64(time.Second))) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		if s.cfg.AuthToken != "" {
			if err := s.authenticate(ctx, conn); err != nil {
				slog.Warn("sender: auth handshake failed", "error", err)
				conn.Close(websocket.StatusPolicyViolation, "auth failed")
				if !sleepCtx(ctx, time.Duration(backoff*float64(time.Second))) {
					return
				}
				backoff = nextBackoff(backoff)
				continue
			}
		}

		backoff = s.cfg.ReconnectDelayS // reset on a successful connect
		s.drainOverWebSocket(ctx, conn)
		conn.Close(websocket.StatusNormalClosure, "")
	}
}

// authenticate performs the relay's challenge/authenticate handshake:
// read a challenge frame, answer with the configured token, and wait for
// acceptance before the connection is used for events.
func (s *Sender) authenticate(ctx context.Context, conn *websocket.Conn) error {
	actx, cancel := context.WithTimeout(ctx, ackTimeout)
	defer cancel()

	var challenge struct {
		Type  string `json:"type"`
		Nonce string `json:"nonce"`
	}
	if err := wsjson.Read(actx, conn, &challenge); err != nil {
		return fmt.Errorf("read challenge: %w", err)
	}

	if err := wsjson.Write(actx, conn, struct {
		Type  string `json:"type"`
		Token string `json:"token"`
		Nonce string `json:"nonce"`
	}{Type: "auth", Token: s.cfg.AuthToken, Nonce: challenge.Nonce}); err != nil {
		return fmt.Errorf("write auth: %w", err)
	}

	var resp struct {
		Type string `json:"type"`
	}
	if err := wsjson.Read(actx, conn, &resp); err != nil {
		return fmt.Errorf("read auth response: %w", err)
	}
	if resp.Type != "accepted" && resp.Type != "ok" {
		return fmt.Errorf("auth rejected: %s", resp.Type)
	}
	return nil
}

// drainOverWebSocket pulls events off the queue and writes them until the
// connection breaks or ctx is cancelled.
func (s *Sender) drainOverWebSocket(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev, ok := s.queue.Take()
		if !ok {
			if !sleepCtx(ctx, 50*time.Millisecond) {
				return
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.QueueDepth.Set(float64(s.queue.Len()))
		}

		if !s.sendOverWebSocket(ctx, conn, ev) {
			return // connection broke; outer loop reconnects
		}
	}
}

// sendOverWebSocket writes one event and waits for its ack. It returns
// false when the connection itself has failed (caller should reconnect).
func (s *Sender) sendOverWebSocket(ctx context.Context, conn *websocket.Conn, ev frame.QueuedEvent) bool {
	ctx, span := trace.StartSpan(ctx, "sender.send_ws")
	defer span.End()

	start := time.Now()
	wctx, cancel := context.WithTimeout(ctx, ackTimeout)
	defer cancel()

	err := wsjson.Write(wctx, conn, toWire(ev.Event))
	if err != nil {
		s.breaker.Failure()
		return s.requeueOrDrop(ev)
	}

	var ack wireAck
	err = wsjson.Read(wctx, conn, &ack)
	if s.metrics != nil {
		s.metrics.ObserveStage("send", time.Since(start).Seconds())
	}
	if s.cfg.ObserveLatency != nil {
		s.cfg.ObserveLatency(time.Since(start))
	}
	if err != nil {
		// ack timeout/EOF: fire-and-forget, counted as OK.
		s.breaker.Success()
		s.recordSent(ev)
		return true
	}

	if ack.Backpressure > 0 {
		s.suppressUntil.Store(nowMs() + ack.Backpressure)
	}
	s.breaker.Success()
	s.recordSent(ev)
	return true
}

func (s *Sender) requeueOrDrop(ev frame.QueuedEvent) bool {
	ev.Attempts++
	if ev.Attempts < maxAttempts {
		ev.Priority++ // one rank lower
		s.queue.Offer(ev)
	} else if s.metrics != nil {
		s.metrics.EventsFailed.Inc()
	}
	return false
}

func (s *Sender) recordSent(ev frame.QueuedEvent) {
	if s.metrics == nil {
		return
	}
	s.metrics.EventsSent.WithLabelValues(priorityLabel(ev.Priority)).Inc()
}

// runHTTPDrainLoop drains the queue through the HTTP fallback transport
// when WebSocket egress is disabled.
func (s *Sender) runHTTPDrainLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		ev, ok := s.queue.Take()
		if !ok {
			if !sleepCtx(ctx, 50*time.Millisecond) {
				return
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.QueueDepth.Set(float64(s.queue.Len()))
		}
		s.sendOverHTTP(ctx, ev)
	}
}

// sendOverHTTP POSTs ev to <url>/sense, guarded by a single in-flight lock
// (a send attempted while one is outstanding returns immediately).
func (s *Sender) sendOverHTTP(ctx context.Context, ev frame.QueuedEvent) bool {
	ctx, span := trace.StartSpan(ctx, "sender.send_http")
	defer span.End()

	if !s.httpInFlight.CompareAndSwap(false, true) {
		return false
	}
	defer s.httpInFlight.Store(false)

	body, err := json.Marshal(toWire(ev.Event))
	if err != nil {
		return false
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL+"/sense", bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		s.breaker.Failure()
		s.requeueOrDrop(ev)
		return false
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	s.recordHTTPLatency(elapsed)
	if s.metrics != nil {
		s.metrics.ObserveStage("send", elapsed.Seconds())
	}
	if s.cfg.ObserveLatency != nil {
		s.cfg.ObserveLatency(elapsed)
	}

	if resp.StatusCode >= 400 {
		s.breaker.Failure()
		s.requeueOrDrop(ev)
		return false
	}
	s.breaker.Success()
	s.recordSent(ev)
	return true
}

// maxLatencySamples bounds the latency sample buffer independent of the
// 60s flush cadence; the oldest samples are dropped first.
const maxLatencySamples = 500

// recordHTTPLatency appends a latency sample and logs P50/P95 at most once
// every 60s.
func (s *Sender) recordHTTPLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.httpLat = append(s.httpLat, d)
	if len(s.httpLat) > maxLatencySamples {
		s.httpLat = s.httpLat[len(s.httpLat)-maxLatencySamples:]
	}
	if time.Since(s.lastLatLog) < 60*time.Second {
		return
	}
	s.lastLatLog = time.Now()
	p50, p95 := percentiles(s.httpLat)
	slog.Info("sender: http latency", "p50_ms", p50.Milliseconds(), "p95_ms", p95.Milliseconds(), "samples", len(s.httpLat))
	s.httpLat = s.httpLat[:0]
}

func priorityLabel(p frame.Priority) string {
	switch p {
	case frame.PriorityUrgent:
		return "urgent"
	case frame.PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

func nowMs() int64 { return time.Now().UnixMilli() }

func nextBackoff(cur float64) float64 {
	next := cur * 2
	if next > maxReconnectBackoffS {
		return maxReconnectBackoffS
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
