// Package context wraps a semantic.Builder in a bounded history of
// snapshot records with a query surface: capped slice, timestamp-windowed
// queries, and a non-blocking emission channel for subscribers.
package context

import (
	"sync"

	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
	"github.com/anthillnet/sinain-hud/internal/pipeline/semantic"
)

const DefaultMaxHistory = 30

// Snapshot is one recorded semantic state, stamped with a monotonic id.
type Snapshot struct {
	ID    int64
	State frame.SemanticState
}

// QueryParams controls Query's output.
type QueryParams struct {
	SinceTs        int64
	Limit          int
	IncludeDeltas  bool
	IncludeSummary bool
	Compact        bool
}

// Result is the structured context object Query returns.
type Result struct {
	Context string
	Events  []Snapshot
	Visible string
	Meta    map[string]any
}

// Builder wraps a semantic.Builder with a bounded, timestamp-queryable
// history of snapshots and a non-blocking emission channel for subscribers.
type Builder struct {
	mu         sync.RWMutex
	sem        *semantic.Builder
	maxHistory int
	history    []Snapshot
	nextID     int64
	eventsCh   chan Snapshot
}

func NewBuilder(maxHistory int) *Builder {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Builder{
		sem:        semantic.NewBuilder(),
		maxHistory: maxHistory,
		eventsCh:   make(chan Snapshot, maxHistory),
	}
}

// SetMaxDeltas caps how many text deltas a single snapshot carries.
func (b *Builder) SetMaxDeltas(n int) { b.sem.SetMaxDeltas(n) }

// AddEvent builds a SemanticState from the given inputs, appends it to
// history (trimming the oldest on overflow), and emits it non-blocking to
// any subscriber.
func (b *Builder) AddEvent(ocrText, app, window string, ssim float64, appChanged, windowChanged bool) Snapshot {
	state := b.sem.Build(ocrText, app, window, ssim, appChanged, windowChanged)

	b.mu.Lock()
	b.nextID++
	snap := Snapshot{ID: b.nextID, State: state}
	b.history = append(b.history, snap)
	if len(b.history) > b.maxHistory {
		b.history = b.history[len(b.history)-b.maxHistory:]
	}
	b.mu.Unlock()

	select {
	case b.eventsCh <- snap:
	default:
	}
	return snap
}

// Events returns the channel new snapshots are emitted on.
func (b *Builder) Events() <-chan Snapshot { return b.eventsCh }

// GetLatest returns the most recent snapshot, if any.
func (b *Builder) GetLatest() (Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.history) == 0 {
		return Snapshot{}, false
	}
	return b.history[len(b.history)-1], true
}

// Query returns events matching params, newest history entries first
// trimmed to Limit, honoring SinceTs.
func (b *Builder) Query(params QueryParams) Result {
	if params.Limit <= 0 {
		params.Limit = 10
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []Snapshot
	for i := len(b.history) - 1; i >= 0 && len(matched) < params.Limit; i-- {
		snap := b.history[i]
		if snap.State.TsMs <= params.SinceTs {
			continue
		}
		matched = append(matched, snap)
	}
	// restore chronological order
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}

	if !params.IncludeDeltas {
		for i := range matched {
			matched[i].State.TextDeltas = nil
		}
	}

	visible := ""
	if params.IncludeSummary && len(matched) > 0 {
		visible = matched[len(matched)-1].State.VisibleSummary
	}

	meta := map[string]any{"count": len(matched), "compact": params.Compact}
	return Result{Events: matched, Visible: visible, Meta: meta}
}

// GetActivitySummary returns the activity type that occupied the largest
// share of the last windowS seconds of history.
func (b *Builder) GetActivitySummary(windowS float64) frame.ActivityType {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.history) == 0 {
		return frame.ActivityUnknown
	}
	cutoffMs := b.history[len(b.history)-1].State.TsMs - int64(windowS*1000)
	counts := make(map[frame.ActivityType]int)
	for _, snap := range b.history {
		if snap.State.TsMs < cutoffMs {
			continue
		}
		counts[snap.State.Activity]++
	}
	var best frame.ActivityType = frame.ActivityUnknown
	bestCount := 0
	for act, c := range counts {
		if c > bestCount {
			best, bestCount = act, c
		}
	}
	return best
}

// GetAppHistory returns the last limit distinct (app, window) pairs seen,
// most recent first.
func (b *Builder) GetAppHistory(limit int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []string
	seen := make(map[string]bool)
	for i := len(b.history) - 1; i >= 0 && len(out) < limit; i-- {
		key := b.history[i].State.App + "|" + b.history[i].State.WindowTitle
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, b.history[i].State.App)
	}
	return out
}
