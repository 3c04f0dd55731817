package semantic

import (
	"fmt"
	"strings"

	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
)

const (
	maxSummaryChars   = 500
	maxDeltaContent   = 200
	maxReplaceChars   = 100
	maxDescribedOps   = 3
)

// DeltaEncoder maintains the previous text and its line vector, emitting
// line-level (or character-level, for small replacements) deltas on each
// subsequent call.
type DeltaEncoder struct {
	prevText  string
	prevLines []string
	hasPrev   bool
}

func NewDeltaEncoder() *DeltaEncoder { return &DeltaEncoder{} }

// Encode returns the deltas between the previous call's text and current.
// The first call always returns a single "initial" delta.
func (d *DeltaEncoder) Encode(current string) []frame.TextDelta {
	defer func() {
		d.prevText = current
		d.prevLines = strings.Split(current, "\n")
		d.hasPrev = true
	}()

	if !d.hasPrev {
		return []frame.TextDelta{{Kind: frame.DeltaInitial, Location: "full", Content: summarize(current)}}
	}

	curLines := strings.Split(current, "\n")
	ops := opcodes(d.prevLines, curLines)

	var deltas []frame.TextDelta
	for _, op := range ops {
		switch op.kind {
		case opEqual:
			continue
		case opInsert:
			for j := op.bStart; j < op.bEnd; j++ {
				deltas = append(deltas, frame.TextDelta{
					Kind:     frame.DeltaAdd,
					Location: fmt.Sprintf("line %d", j+1),
					Content:  truncate(curLines[j], maxDeltaContent),
					Context:  lineContext(curLines, j, true),
				})
			}
		case opDelete:
			for i := op.aStart; i < op.aEnd; i++ {
				deltas = append(deltas, frame.TextDelta{
					Kind:     frame.DeltaRemove,
					Location: fmt.Sprintf("line %d", i+1),
					Content:  truncate(d.prevLines[i], maxDeltaContent),
				})
			}
		case opReplace:
			oldJoined := strings.Join(d.prevLines[op.aStart:op.aEnd], "\n")
			newJoined := strings.Join(curLines[op.bStart:op.bEnd], "\n")
			if len(oldJoined) < maxReplaceChars && len(newJoined) < maxReplaceChars {
				deltas = append(deltas, frame.TextDelta{
					Kind:     frame.DeltaModify,
					Location: fmt.Sprintf("line %d", op.aStart+1),
					Content:  describeCharChange(oldJoined, newJoined),
				})
			} else {
				deltas = append(deltas, frame.TextDelta{
					Kind:     frame.DeltaModify,
					Location: fmt.Sprintf("line %d", op.aStart+1),
					Content:  truncate(newJoined, maxDeltaContent),
					Context:  lineContext(curLines, op.bStart, true),
				})
			}
		}
	}
	return deltas
}

// Reset clears encoder state so the next Encode call emits an "initial" delta.
func (d *DeltaEncoder) Reset() {
	d.prevText = ""
	d.prevLines = nil
	d.hasPrev = false
}

// summarize returns text verbatim if <= 5 lines, else head/tail with an
// elision marker, capped at maxSummaryChars.
func summarize(text string) string {
	lines := strings.Split(text, "\n")
	var out string
	if len(lines) <= 5 {
		out = text
	} else {
		head := strings.Join(lines[:3], "\n")
		tail := strings.Join(lines[len(lines)-2:], "\n")
		out = fmt.Sprintf("%s\n... (%d lines total) ...\n%s", head, len(lines), tail)
	}
	return truncate(out, maxSummaryChars)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// lineContext returns the +-1 line window around idx, marking the
// changed line with a ">" prefix.
func lineContext(lines []string, idx int, markChanged bool) string {
	start := idx - 1
	if start < 0 {
		start = 0
	}
	end := idx + 2
	if end > len(lines) {
		end = len(lines)
	}
	var b strings.Builder
	for i := start; i < end; i++ {
		prefix := "  "
		if markChanged && i == idx {
			prefix = "> "
		}
		b.WriteString(prefix)
		b.WriteString(lines[i])
		if i != end-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// describeCharChange produces a compact "added `X`; removed `Y`; changed
// `A` to `B`" summary from a character-level diff of two short strings.
func describeCharChange(oldS, newS string) string {
	ops := opcodes([]rune(oldS), []rune(newS))
	var parts []string
	for _, op := range ops {
		if len(parts) >= maxDescribedOps {
			break
		}
		switch op.kind {
		case opInsert:
			parts = append(parts, fmt.Sprintf("added `%s`", string([]rune(newS)[op.bStart:op.bEnd])))
		case opDelete:
			parts = append(parts, fmt.Sprintf("removed `%s`", string([]rune(oldS)[op.aStart:op.aEnd])))
		case opReplace:
			parts = append(parts, fmt.Sprintf("changed `%s` to `%s`",
				string([]rune(oldS)[op.aStart:op.aEnd]), string([]rune(newS)[op.bStart:op.bEnd])))
		}
	}
	if len(parts) == 0 {
		return truncate(newS, maxDeltaContent)
	}
	return strings.Join(parts, "; ")
}
