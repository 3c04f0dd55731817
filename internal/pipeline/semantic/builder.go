package semantic

import (
	"strings"
	"time"

	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
)

const tokenOverhead = 50

// Builder composes ActivitySignals from ocr/app/window/ssim inputs,
// classifies activity, runs the delta encoder, and assembles a
// SemanticState. It is reset whenever the active app changes.
type Builder struct {
	classifier *Classifier
	delta      *DeltaEncoder
	prevText   string
	prevApp    string
	maxDeltas  int
	nowFn      func() time.Time
}

func NewBuilder() *Builder {
	return &Builder{classifier: NewClassifier(), delta: NewDeltaEncoder(), nowFn: time.Now}
}

// SetMaxDeltas caps how many text deltas a single Build reports; a value
// of zero or less leaves the delta list unbounded.
func (b *Builder) SetMaxDeltas(n int) { b.maxDeltas = n }

// Build assembles a SemanticState from the tick's inputs.
func (b *Builder) Build(ocrText, app, window string, ssim float64, appChanged, windowChanged bool) frame.SemanticState {
	if appChanged && app != b.prevApp {
		b.classifier.Reset()
		b.delta.Reset()
	}
	b.prevApp = app

	changeRate := 0.0
	if ssim < 1 {
		changeRate = (1 - ssim) * 10
	}
	changeSize := abs(len(ocrText) - len(b.prevText))

	signals := Signals{
		ChangeRate:         changeRate,
		ChangeSize:         changeSize,
		AppChanged:         appChanged,
		WindowChanged:      windowChanged,
		DurationS:          b.classifier.GetDuration(),
		OCRContainsError:   ContainsErrorKeyword(ocrText),
		OCRContainsLoading: ContainsLoadingKeyword(ocrText),
	}

	activity := b.classifier.Classify(signals, ocrText)
	deltas := b.delta.Encode(ocrText)
	if b.maxDeltas > 0 && len(deltas) > b.maxDeltas {
		deltas = deltas[:b.maxDeltas]
	}
	b.prevText = ocrText

	state := frame.SemanticState{
		App:               app,
		WindowTitle:        window,
		Activity:          activity,
		ActivityDurationS: b.classifier.GetDuration(),
		TextDeltas:        deltas,
		VisibleSummary:    summarize(ocrText),
		HasError:          signals.OCRContainsError,
		HasUnsaved:        hasUnsaved(window),
		TsMs:              b.nowFn().UnixMilli(),
	}
	state.TokenEstimate = tokenEstimate(state)
	return state
}

func hasUnsaved(window string) bool {
	lower := strings.ToLower(window)
	return strings.Contains(window, "*") || strings.Contains(lower, "unsaved") || strings.Contains(lower, "modified")
}

func tokenEstimate(s frame.SemanticState) int {
	total := len(s.App) + len(s.WindowTitle) + len(s.VisibleSummary)
	for _, d := range s.TextDeltas {
		total += len(d.Content) + len(d.Context) + len(d.Location)
	}
	return total/4 + tokenOverhead
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
