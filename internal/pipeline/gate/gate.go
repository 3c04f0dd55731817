// Package gate implements the decision gate: adaptive cooldowns, fuzzy
// deduplication, OCR quality heuristics, and event classification.
package gate

import (
	"strings"
	"time"
	"unicode"

	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
	"github.com/anthillnet/sinain-hud/internal/pipeline/semantic"
)

const (
	DefaultMinOcrChars          = 20
	DefaultMajorChangeThreshold = 0.85
	DefaultCooldownMs           = 5000
	DefaultAdaptiveCooldownMs   = 2000
	DefaultContextCooldownMs    = 10000

	recentTextsCapacity = 5
	similarityThreshold = 0.7
)

type Config struct {
	MinOcrChars          int
	MajorChangeThreshold float64
	CooldownMs           int64
	AdaptiveCooldownMs   int64
	ContextCooldownMs    int64
}

func DefaultConfig() Config {
	return Config{
		MinOcrChars:          DefaultMinOcrChars,
		MajorChangeThreshold: DefaultMajorChangeThreshold,
		CooldownMs:           DefaultCooldownMs,
		AdaptiveCooldownMs:   DefaultAdaptiveCooldownMs,
		ContextCooldownMs:    DefaultContextCooldownMs,
	}
}

// NowFunc returns the current time in epoch milliseconds; overridable in tests.
type NowFunc func() int64

// Gate holds the cooldown/dedup state machine.
type Gate struct {
	cfg Config
	now NowFunc

	lastSendTs      int64
	lastContextTs   int64
	lastAppChangeTs int64
	recentTexts     []string
	lastSentText    string
}

func New(cfg Config, now NowFunc) *Gate {
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	return &Gate{cfg: cfg, now: now}
}

// IsReady reports whether the gate will currently accept a non-context
// candidate.
func (g *Gate) IsReady(appChanged, windowChanged bool) bool {
	if appChanged || windowChanged {
		return true
	}
	return g.now()-g.lastSendTs >= g.cooldown()
}

func (g *Gate) cooldown() int64 {
	if g.now()-g.lastAppChangeTs < 10000 {
		return g.cfg.AdaptiveCooldownMs
	}
	return g.cfg.CooldownMs
}

// Classify runs the full decision ladder, returning a SenseEvent and true
// if the candidate is accepted.
func (g *Gate) Classify(change *frame.ChangeResult, ocr frame.OCRResult, appChanged, windowChanged bool) (frame.SenseEvent, bool) {
	now := g.now()

	if appChanged || windowChanged {
		g.lastAppChangeTs = now
	}

	if (appChanged || windowChanged) && now-g.lastContextTs >= g.cfg.ContextCooldownMs {
		g.lastContextTs = now
		g.lastSendTs = now
		return frame.SenseEvent{Type: frame.EventContext, TsMs: now}, true
	}

	if !g.IsReady(appChanged, windowChanged) {
		return frame.SenseEvent{}, false
	}

	if change == nil {
		return frame.SenseEvent{}, false
	}

	if len(ocr.Text) >= g.cfg.MinOcrChars {
		if g.isDuplicate(ocr.Text) {
			return frame.SenseEvent{}, false
		}
		if isLowQuality(ocr.Text) {
			return frame.SenseEvent{}, false
		}
		g.pushRecent(ocr.Text)
		g.lastSentText = ocr.Text
		g.lastSendTs = now
		return frame.SenseEvent{Type: frame.EventText, TsMs: now, OCR: ocr.Text, Meta: frame.EventMeta{SSIM: change.SSIM}}, true
	}

	if change.SSIM < g.cfg.MajorChangeThreshold {
		g.lastSendTs = now
		return frame.SenseEvent{Type: frame.EventVisual, TsMs: now, Meta: frame.EventMeta{SSIM: change.SSIM}}, true
	}

	return frame.SenseEvent{}, false
}

func (g *Gate) isDuplicate(text string) bool {
	if text == g.lastSentText {
		return true
	}
	for _, prior := range g.recentTexts {
		if semantic.SimilarityRatio(text, prior) > similarityThreshold {
			return true
		}
	}
	return false
}

func (g *Gate) pushRecent(text string) {
	g.recentTexts = append(g.recentTexts, text)
	if len(g.recentTexts) > recentTextsCapacity {
		g.recentTexts = g.recentTexts[len(g.recentTexts)-recentTextsCapacity:]
	}
}

// isLowQuality rejects OCR text that is mostly single-character tokens or
// mostly non-alphanumeric noise.
func isLowQuality(text string) bool {
	tokens := strings.Fields(text)
	if len(tokens) > 0 {
		singleChar := 0
		for _, tok := range tokens {
			if len([]rune(tok)) == 1 {
				singleChar++
			}
		}
		if float64(singleChar)/float64(len(tokens)) > 0.5 {
			return true
		}
	}

	var alnum, nonSpace int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		nonSpace++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	if nonSpace > 0 && float64(alnum)/float64(nonSpace) < 0.5 {
		return true
	}
	return false
}
