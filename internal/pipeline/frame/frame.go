// Package frame defines the data types that flow through the sense
// pipeline: the immutable Frame a capture collaborator produces, and the
// per-stage records (ChangeResult, ROI, OCRResult, SemanticState, ...)
// each pipeline stage consumes and produces.
package frame

import "image"

// ColorModel names the pixel layout a Frame was captured in.
type ColorModel string

const (
	ColorRGBA  ColorModel = "rgba"
	ColorGray  ColorModel = "gray"
	ColorYCbCr ColorModel = "ycbcr"
)

// Frame is an immutable captured image. No stage may mutate Pixels; the
// orchestrator owns the single reduced copy after the first downscale.
type Frame struct {
	Pixels image.Image
	Width  int
	Height int
	TsMs   int64
	Model  ColorModel
}

// Rect is an axis-aligned bounding box in pixel coordinates.
type Rect struct {
	X, Y, W, H int
}

// Contour is one connected component of a change mask that survived the
// minimum-area filter.
type Contour struct {
	Box  Rect
	Area int
}

// ChangeResult is produced by the ChangeDetector for a frame that survives
// the fast gate and the SSIM threshold.
type ChangeResult struct {
	SSIM        float64
	DiffMask    []byte // single-channel, Width*Height, row-major
	MaskWidth   int
	MaskHeight  int
	Contours    []Contour
	MergedBox   Rect
	PHashDist   int
}

// ROI is an image crop plus its bounding box in original-frame coordinates.
type ROI struct {
	Image image.Image
	Box   Rect
}

// GridCellStats is the per-cell stability record RegionTracker maintains
// for the lifetime of the process.
type GridCellStats struct {
	LastHash       string
	LastChangeTs   int64
	ChangeCount    int
	StabilityScore float64
}

// IsStable reports whether the cell is considered stable UI.
func (g *GridCellStats) IsStable() bool { return g.StabilityScore > 0.5 }

// ChangedRegion is a single grid cell flagged as changed by RegionTracker,
// before merging into pixel bounding boxes.
type ChangedRegion struct {
	CellIndex int
	Box       Rect
}

// OCRResult is the immutable output of an OCR backend call.
type OCRResult struct {
	Text       string
	Confidence float64
	WordCount  int
}

// OCRCacheEntry wraps a cached OCRResult with LRU bookkeeping.
type OCRCacheEntry struct {
	Result       OCRResult
	CreatedAt    int64
	LastAccessAt int64
	AccessCount  int
}

// PendingFrame is a frame awaiting lazy OCR, with the regions a caller
// asked to have recognized.
type PendingFrame struct {
	Frame   *Frame
	Regions []ROI
	TsMs    int64
}

// ActivityType is the closed set of activity classifications.
type ActivityType string

const (
	ActivityTyping     ActivityType = "typing"
	ActivityScrolling  ActivityType = "scrolling"
	ActivityNavigation ActivityType = "navigation"
	ActivityReading    ActivityType = "reading"
	ActivityError      ActivityType = "error"
	ActivityLoading    ActivityType = "loading"
	ActivityIdle       ActivityType = "idle"
	ActivityUnknown    ActivityType = "unknown"
)

// TextDeltaKind is the closed set of delta-encoder operation kinds.
type TextDeltaKind string

const (
	DeltaInitial TextDeltaKind = "initial"
	DeltaAdd     TextDeltaKind = "add"
	DeltaRemove  TextDeltaKind = "remove"
	DeltaModify  TextDeltaKind = "modify"
)

// TextDelta is one line-level (or character-level, for small replacements)
// change the DeltaEncoder reports.
type TextDelta struct {
	Kind     TextDeltaKind
	Location string
	Content  string
	Context  string
}

// SemanticState is the composed per-tick semantic summary ContextBuilder
// assembles from activity, delta, and app/window signals.
type SemanticState struct {
	App               string
	WindowTitle       string
	Activity          ActivityType
	ActivityDurationS float64
	TextDeltas        []TextDelta
	VisibleSummary    string
	CursorLine        *int
	HasError          bool
	HasUnsaved        bool
	TsMs              int64
	TokenEstimate     int
}

// AppState is AppDetector's output: the frontmost application and window
// title at the moment of polling.
type AppState struct {
	App         string
	WindowTitle string
}

// EventType is the closed set of SenseEvent kinds.
type EventType string

const (
	EventText    EventType = "text"
	EventVisual  EventType = "visual"
	EventContext EventType = "context"
)

// ImagePayload is an optional encoded image attached to a SenseEvent.
type ImagePayload struct {
	Data  string // base64 JPEG
	Box   Rect
	Thumb bool
}

// EventMeta carries the contextual metadata every SenseEvent ships with.
type EventMeta struct {
	SSIM        float64
	App         string
	WindowTitle string
	Screen      int
}

// SenseEvent is produced only by the DecisionGate and consumed only by the
// Sender.
type SenseEvent struct {
	Type EventType
	TsMs int64
	OCR  string
	ROI  *ImagePayload
	Diff *ImagePayload
	Meta EventMeta
}

// Priority orders QueuedEvents; lower numeric value sends first.
type Priority int

const (
	PriorityUrgent Priority = 0
	PriorityHigh   Priority = 1
	PriorityNormal Priority = 2
)

// QueuedEvent is a SenseEvent staged in the Sender's priority queue.
type QueuedEvent struct {
	Priority Priority
	TsMs     int64
	Event    SenseEvent
	Attempts int
}

// StatsSnapshot mirrors the stats payload the orchestrator POSTs every 60s.
type StatsSnapshot struct {
	RSSMb   float64            `json:"rssMb"`
	UptimeS float64            `json:"uptimeS"`
	TsMs    int64              `json:"ts"`
	Extra   map[string]float64 `json:"extra"`
}
