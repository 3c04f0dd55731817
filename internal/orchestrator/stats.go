package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
	"github.com/anthillnet/sinain-hud/internal/syncx"
)

const statsInterval = 60 * time.Second

// statsData is the running totals a StatsSnapshot reports, reset after
// each flush.
type statsData struct {
	capturesOk   int64
	capturesFail int64
	eventsSent   int64
	eventsFailed int64
	eventsGated  int64
	ocrErrors    int64

	detectMs []float64
	ocrMs    []float64
	sendMs   []float64

	phashRejected int64
	phashTotal    int64
	cacheHits     int64
	cacheTotal    int64
	tokensSaved   int64
}

// statsCounters accumulates statsData behind a syncx.RWGuard, since the
// counters are written from the tick goroutine and read-and-reset from
// the periodic stats goroutine.
type statsCounters struct {
	g *syncx.RWGuard[statsData]
}

func newStatsCounters() statsCounters {
	return statsCounters{g: syncx.NewGuard(statsData{})}
}

func (s *statsCounters) incCaptureOk()   { s.g.Write(func(d *statsData) { d.capturesOk++ }) }
func (s *statsCounters) incCaptureFail() { s.g.Write(func(d *statsData) { d.capturesFail++ }) }
func (s *statsCounters) incEventSent()   { s.g.Write(func(d *statsData) { d.eventsSent++ }) }
func (s *statsCounters) incEventFailed() { s.g.Write(func(d *statsData) { d.eventsFailed++ }) }
func (s *statsCounters) incEventGated()  { s.g.Write(func(d *statsData) { d.eventsGated++ }) }
func (s *statsCounters) incOcrError()    { s.g.Write(func(d *statsData) { d.ocrErrors++ }) }

func (s *statsCounters) observeDetect(ms float64) {
	s.g.Write(func(d *statsData) { d.detectMs = append(d.detectMs, ms) })
}
func (s *statsCounters) observeOCR(ms float64) {
	s.g.Write(func(d *statsData) { d.ocrMs = append(d.ocrMs, ms) })
}
func (s *statsCounters) observeSend(ms float64) {
	s.g.Write(func(d *statsData) { d.sendMs = append(d.sendMs, ms) })
}

func (s *statsCounters) notePHash(rejected bool) {
	s.g.Write(func(d *statsData) {
		d.phashTotal++
		if rejected {
			d.phashRejected++
		}
	})
}

func (s *statsCounters) noteCache(hit bool) {
	s.g.Write(func(d *statsData) {
		d.cacheTotal++
		if hit {
			d.cacheHits++
		}
	})
}

// noteCacheBatch records a whole frame's worth of cache lookups at once,
// one write instead of one per ROI.
func (s *statsCounters) noteCacheBatch(lookups, hits int64) {
	if lookups == 0 {
		return
	}
	s.g.Write(func(d *statsData) {
		d.cacheTotal += lookups
		d.cacheHits += hits
	})
}

func (s *statsCounters) addTokensSaved(n int) {
	s.g.Write(func(d *statsData) { d.tokensSaved += int64(n) })
}

// flush builds a StatsSnapshot from the accumulated counters and resets
// them.
func (s *statsCounters) flush(rssMb, uptimeS float64, nowMs int64, stableRegions int) frame.StatsSnapshot {
	var snap frame.StatsSnapshot
	s.g.Write(func(d *statsData) {
		extra := map[string]float64{
			"capturesOk":         float64(d.capturesOk),
			"capturesFail":       float64(d.capturesFail),
			"eventsSent":         float64(d.eventsSent),
			"eventsFailed":       float64(d.eventsFailed),
			"eventsGated":        float64(d.eventsGated),
			"ocrErrors":          float64(d.ocrErrors),
			"detectAvgMs":        average(d.detectMs),
			"ocrAvgMs":           average(d.ocrMs),
			"sendAvgMs":          average(d.sendMs),
			"phashRejectionRate": ratio(d.phashRejected, d.phashTotal),
			"ocrCacheHitRate":    ratio(d.cacheHits, d.cacheTotal),
			"tokensSaved":        float64(d.tokensSaved),
			"stableRegions":      float64(stableRegions),
		}
		snap = frame.StatsSnapshot{RSSMb: rssMb, UptimeS: uptimeS, TsMs: nowMs, Extra: extra}
		*d = statsData{}
	})
	return snap
}

func average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func ratio(n, d int64) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// processStats reads the process's current RSS in MB via gopsutil.
func processStats() (rssMb float64, err error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	info, err := proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return float64(info.RSS) / (1024 * 1024), nil
}

// postStatsSnapshot POSTs snap to <url>/profiling/sense, best-effort.
func postStatsSnapshot(ctx context.Context, client *http.Client, url string, snap frame.StatsSnapshot) {
	body, err := json.Marshal(snap)
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/profiling/sense", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		slog.Debug("orchestrator: profiling snapshot post failed", "error", err)
		return
	}
	resp.Body.Close()
}
