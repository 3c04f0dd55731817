package semantic

import (
	"testing"

	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
)

func TestClassifyNavigationWinsFirst(t *testing.T) {
	c := NewClassifier()
	got := c.Classify(Signals{AppChanged: true, ChangeRate: 10}, "")
	if got != frame.ActivityNavigation {
		t.Errorf("got %s, want navigation", got)
	}
}

func TestClassifyErrorKeyword(t *testing.T) {
	c := NewClassifier()
	got := c.Classify(Signals{}, "Connection failed: unauthorized access")
	if got != frame.ActivityError {
		t.Errorf("got %s, want error", got)
	}
}

func TestClassifyLoadingKeyword(t *testing.T) {
	c := NewClassifier()
	got := c.Classify(Signals{}, "please wait while we finish syncing")
	if got != frame.ActivityLoading {
		t.Errorf("got %s, want loading", got)
	}
}

func TestClassifyTyping(t *testing.T) {
	c := NewClassifier()
	got := c.Classify(Signals{ChangeRate: 3, ChangeSize: 10}, "")
	if got != frame.ActivityTyping {
		t.Errorf("got %s, want typing", got)
	}
}

func TestClassifyScrolling(t *testing.T) {
	c := NewClassifier()
	got := c.Classify(Signals{VerticalMotion: 100}, "")
	if got != frame.ActivityScrolling {
		t.Errorf("got %s, want scrolling", got)
	}
}

func TestClassifyReading(t *testing.T) {
	c := NewClassifier()
	got := c.Classify(Signals{ChangeRate: 0.1, DurationS: 10}, "")
	if got != frame.ActivityReading {
		t.Errorf("got %s, want reading", got)
	}
}

func TestClassifyIdle(t *testing.T) {
	c := NewClassifier()
	got := c.Classify(Signals{ChangeRate: 0.05, DurationS: 40}, "")
	if got != frame.ActivityIdle {
		t.Errorf("got %s, want idle", got)
	}
}

func TestClassifyFallsBackToPrevious(t *testing.T) {
	c := NewClassifier()
	c.Classify(Signals{VerticalMotion: 100}, "") // scrolling
	got := c.Classify(Signals{}, "")              // nothing matches
	if got != frame.ActivityScrolling {
		t.Errorf("got %s, want previous activity (scrolling)", got)
	}
}

func TestClassifyResetReturnsUnknown(t *testing.T) {
	c := NewClassifier()
	c.Classify(Signals{VerticalMotion: 100}, "")
	c.Reset()
	if c.current != frame.ActivityUnknown {
		t.Errorf("after reset, current = %s, want unknown", c.current)
	}
}

func TestErrorKeywordWordBoundary(t *testing.T) {
	if ContainsErrorKeyword("errorsomething") {
		t.Error("keyword match should be word-bounded")
	}
	if !ContainsErrorKeyword("an error occurred") {
		t.Error("expected word-bounded match to succeed")
	}
}
