package appdetect

import (
	"context"
	"testing"

	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
)

func TestTrackerFirstPollNeverChanges(t *testing.T) {
	tr := NewTracker(NewStub("Editor", "main.go"))
	state, appChanged, windowChanged, err := tr.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if appChanged || windowChanged {
		t.Error("first poll should never report a change")
	}
	if state.App != "Editor" || state.WindowTitle != "main.go" {
		t.Errorf("state = %+v, want {Editor main.go}", state)
	}
}

func TestTrackerDetectsAppChange(t *testing.T) {
	states := []frame.AppState{
		{App: "Editor", WindowTitle: "main.go"},
		{App: "Browser", WindowTitle: "main.go"},
	}
	i := 0
	backend := Func(func(ctx context.Context) (frame.AppState, error) {
		s := states[i]
		if i < len(states)-1 {
			i++
		}
		return s, nil
	})
	tr := NewTracker(backend)

	if _, _, _, err := tr.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, appChanged, windowChanged, err := tr.Poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !appChanged {
		t.Error("expected appChanged on app switch")
	}
	if windowChanged {
		t.Error("window title unchanged, windowChanged should be false")
	}
}

func TestTrackerDetectsWindowChange(t *testing.T) {
	states := []frame.AppState{
		{App: "Editor", WindowTitle: "a.go"},
		{App: "Editor", WindowTitle: "b.go"},
	}
	i := 0
	backend := Func(func(ctx context.Context) (frame.AppState, error) {
		s := states[i]
		if i < len(states)-1 {
			i++
		}
		return s, nil
	})
	tr := NewTracker(backend)

	tr.Poll(context.Background())
	_, appChanged, windowChanged, err := tr.Poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if appChanged {
		t.Error("app unchanged, appChanged should be false")
	}
	if !windowChanged {
		t.Error("expected windowChanged on window title switch")
	}
}

func TestTrackerNoChangeWhenStable(t *testing.T) {
	tr := NewTracker(NewStub("Editor", "main.go"))
	tr.Poll(context.Background())
	_, appChanged, windowChanged, err := tr.Poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if appChanged || windowChanged {
		t.Error("stable state should report no change")
	}
}

func TestDetectorErrorPropagates(t *testing.T) {
	boom := errorDetector{}
	tr := NewTracker(boom)
	if _, _, _, err := tr.Poll(context.Background()); err == nil {
		t.Error("expected error from backend to propagate")
	}
}

type errorDetector struct{}

func (errorDetector) DetectActiveApp(ctx context.Context) (frame.AppState, error) {
	return frame.AppState{}, errBoom
}

var errBoom = &stubErr{"boom"}

type stubErr struct{ msg string }

func (e *stubErr) Error() string { return e.msg }
