// Package appdetect polls the frontmost application name and window title
// and diffs them against the previous poll.
//
// A real OS-backed detector is an external collaborator on the same
// footing as screen capture; this package ships the interface plus a
// deterministic stub usable in tests and `profile` runs.
package appdetect

import (
	"context"

	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
)

// Detector is the capability an app-detection backend must satisfy.
type Detector interface {
	DetectActiveApp(ctx context.Context) (frame.AppState, error)
}

// Func adapts a plain function to Detector.
type Func func(ctx context.Context) (frame.AppState, error)

func (f Func) DetectActiveApp(ctx context.Context) (frame.AppState, error) {
	return f(ctx)
}

// StubDetector always reports the same AppState; useful for tests and
// `profile` runs where no real window manager is available.
type StubDetector struct {
	State frame.AppState
}

func NewStub(app, windowTitle string) *StubDetector {
	return &StubDetector{State: frame.AppState{App: app, WindowTitle: windowTitle}}
}

func (s *StubDetector) DetectActiveApp(ctx context.Context) (frame.AppState, error) {
	return s.State, nil
}

// Tracker wraps a Detector and diffs successive polls into appChanged /
// windowChanged booleans. The first poll never reports a change; there is
// no prior sample to diff against.
type Tracker struct {
	backend Detector

	lastApp    string
	lastWindow string
	primed     bool
}

func NewTracker(backend Detector) *Tracker {
	return &Tracker{backend: backend}
}

// Poll queries the backend and returns the new state plus whether the app
// and/or window title changed since the previous poll.
func (t *Tracker) Poll(ctx context.Context) (state frame.AppState, appChanged, windowChanged bool, err error) {
	state, err = t.backend.DetectActiveApp(ctx)
	if err != nil {
		return frame.AppState{}, false, false, err
	}

	if t.primed {
		appChanged = state.App != t.lastApp
		windowChanged = state.WindowTitle != t.lastWindow
	}
	t.lastApp = state.App
	t.lastWindow = state.WindowTitle
	t.primed = true

	return state, appChanged, windowChanged, nil
}
