// Package semantic implements the activity classifier, delta encoder,
// and semantic-state builder.
package semantic

import (
	"regexp"
	"time"

	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
)

// Signals is the classifier's input vector, assembled per tick by the
// semantic builder from OCR, app/window, and SSIM data.
type Signals struct {
	ChangeRate         float64
	ChangeSize         int
	VerticalMotion     float64
	HorizontalMotion   float64
	AppChanged         bool
	WindowChanged      bool
	URLChanged         bool
	DurationS          float64
	OCRContainsError   bool
	OCRContainsLoading bool
}

var errorKeywordRe = regexp.MustCompile(`(?i)\b(error|exception|failed|crash|denied|unauthorized|timeout|cannot|unable|invalid|warning)\b`)
var loadingKeywordRe = regexp.MustCompile(`(?i)\b(loading|please wait|processing|connecting|syncing|uploading|downloading)\b`)

// ContainsErrorKeyword reports whether text matches any word-bounded
// error keyword, case-insensitive.
func ContainsErrorKeyword(text string) bool { return errorKeywordRe.MatchString(text) }

// ContainsLoadingKeyword reports whether text matches any word-bounded
// loading keyword, case-insensitive.
func ContainsLoadingKeyword(text string) bool { return loadingKeywordRe.MatchString(text) }

// Classifier runs the decision ladder and tracks time-in-state.
type Classifier struct {
	current         frame.ActivityType
	activityStartTs time.Time
	nowFn           func() time.Time
}

func NewClassifier() *Classifier {
	return &Classifier{current: frame.ActivityUnknown, nowFn: time.Now}
}

// Classify runs the first-match-wins decision ladder.
func (c *Classifier) Classify(s Signals, ocrText string) frame.ActivityType {
	next := c.decide(s, ocrText)
	if next != c.current {
		c.current = next
		c.activityStartTs = c.nowFn()
	}
	return c.current
}

func (c *Classifier) decide(s Signals, ocrText string) frame.ActivityType {
	switch {
	case s.AppChanged || s.WindowChanged || s.URLChanged:
		return frame.ActivityNavigation
	case s.OCRContainsError || ContainsErrorKeyword(ocrText):
		return frame.ActivityError
	case s.OCRContainsLoading || ContainsLoadingKeyword(ocrText):
		return frame.ActivityLoading
	case s.ChangeRate > 2 && s.ChangeSize < 100:
		return frame.ActivityTyping
	case s.VerticalMotion > 50:
		return frame.ActivityScrolling
	case s.ChangeRate < 0.5 && s.DurationS > 5:
		return frame.ActivityReading
	case s.ChangeRate < 0.1 && s.DurationS > 30:
		return frame.ActivityIdle
	default:
		return c.current
	}
}

// GetDuration returns wall-clock seconds since the last state transition.
func (c *Classifier) GetDuration() float64 {
	if c.activityStartTs.IsZero() {
		return 0
	}
	return c.nowFn().Sub(c.activityStartTs).Seconds()
}

// Reset clears classifier state back to unknown.
func (c *Classifier) Reset() {
	c.current = frame.ActivityUnknown
	c.activityStartTs = time.Time{}
}
