// Package config loads the sense pipeline's JSON configuration: an
// in-code default deep-merged with an optional user override file
// (user wins, unknown keys survive), decoded into a typed Config via
// mapstructure.
package config

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/mitchellh/mapstructure"

	"github.com/anthillnet/sinain-hud/internal/pipeline/changedetector"
	"github.com/anthillnet/sinain-hud/internal/pipeline/gate"
	"github.com/anthillnet/sinain-hud/internal/pipeline/ocrcache"
	"github.com/anthillnet/sinain-hud/internal/pipeline/regiontracker"
	"github.com/anthillnet/sinain-hud/internal/pipeline/roi"
)

// CaptureConfig controls the capture collaborator.
type CaptureConfig struct {
	Mode   string  `mapstructure:"mode"`
	Target string  `mapstructure:"target"`
	FPS    float64 `mapstructure:"fps"`
	Scale  float64 `mapstructure:"scale"`
}

// DetectionConfig configures the ChangeDetector (component A).
type DetectionConfig struct {
	SSIMThreshold  float64 `mapstructure:"ssimThreshold"`
	MinArea        int     `mapstructure:"minArea"`
	ROIPadding     int     `mapstructure:"roiPadding"`
	PHashThreshold int     `mapstructure:"phashThreshold"`
	UseFastGate    bool    `mapstructure:"useFastGate"`
}

// OCRConfig configures the OCR backend and its cache (components D).
type OCRConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Backend       string   `mapstructure:"backend"`
	Languages     []string `mapstructure:"languages"`
	Lang          string   `mapstructure:"lang"`
	PSM           int      `mapstructure:"psm"`
	MinConfidence float64  `mapstructure:"minConfidence"`
	CacheSize     int      `mapstructure:"cacheSize"`
	CacheMethod   string   `mapstructure:"cacheMethod"` // "content" | "pixel"
}

// GateConfig configures the decision gate (component H).
type GateConfig struct {
	MinOcrChars          int     `mapstructure:"minOcrChars"`
	MajorChangeThreshold float64 `mapstructure:"majorChangeThreshold"`
	CooldownMs           int64   `mapstructure:"cooldownMs"`
	AdaptiveCooldownMs   int64   `mapstructure:"adaptiveCooldownMs"`
	ContextCooldownMs    int64   `mapstructure:"contextCooldownMs"`
}

// RelayConfig configures the egress sender (component I).
type RelayConfig struct {
	URL              string  `mapstructure:"url"`
	SendThumbnails   bool    `mapstructure:"sendThumbnails"`
	MaxImageKB       int     `mapstructure:"maxImageKB"`
	UseWebSocket     bool    `mapstructure:"useWebSocket"`
	WSReconnectDelay float64 `mapstructure:"wsReconnectDelay"`
	MaxQueueSize     int     `mapstructure:"maxQueueSize"`
}

// RegionsConfig configures the RegionTracker (component B).
type RegionsConfig struct {
	GridSize            int     `mapstructure:"gridSize"`
	StabilityThresholdS float64 `mapstructure:"stabilityThresholdS"`
	StabilityMinSamples int     `mapstructure:"stabilityMinSamples"`
}

// TextDetectionConfig configures the ROI text-likelihood filter (component C).
type TextDetectionConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	Threshold float64 `mapstructure:"threshold"`
	MinSize   [2]int  `mapstructure:"minSize"` // [w, h]
}

// SemanticConfig configures the semantic layer (components E/F/G).
type SemanticConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	MaxHistory        int  `mapstructure:"maxHistory"`
	ContextLines      int  `mapstructure:"contextLines"`
	MaxDeltasPerEvent int  `mapstructure:"maxDeltasPerEvent"`
}

// Config is the fully decoded, merged configuration.
type Config struct {
	Capture       CaptureConfig       `mapstructure:"capture"`
	Detection     DetectionConfig     `mapstructure:"detection"`
	OCR           OCRConfig           `mapstructure:"ocr"`
	Gate          GateConfig          `mapstructure:"gate"`
	Relay         RelayConfig         `mapstructure:"relay"`
	Regions       RegionsConfig       `mapstructure:"regions"`
	TextDetection TextDetectionConfig `mapstructure:"textDetection"`
	Semantic      SemanticConfig      `mapstructure:"semantic"`

	// Extra preserves top-level keys this struct doesn't recognize, so a
	// newer config file stays loadable by an older binary.
	Extra map[string]any `mapstructure:",remain"`
}

const (
	DefaultFPS           = 10.0
	DefaultScale         = 0.5
	DefaultOCRMinConf    = 60.0
	DefaultPSM           = 6
	DefaultMaxImageKB    = 200
	DefaultWSReconnectS  = 1.0
	DefaultContextLines  = 1
	DefaultMaxDeltas     = 10
	DefaultWorkerPool    = 4
)

// Default returns the built-in configuration every deploy starts from.
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			Mode:   "screen",
			Target: "",
			FPS:    DefaultFPS,
			Scale:  DefaultScale,
		},
		Detection: DetectionConfig{
			SSIMThreshold:  changedetector.ThresholdStable,
			MinArea:        changedetector.DefaultMinArea,
			ROIPadding:     roi.DefaultPadding,
			PHashThreshold: changedetector.DefaultPHashThreshold,
			UseFastGate:    true,
		},
		OCR: OCRConfig{
			Enabled:       true,
			Backend:       "stub",
			Languages:     []string{"en"},
			Lang:          "eng",
			PSM:           DefaultPSM,
			MinConfidence: DefaultOCRMinConf,
			CacheSize:     ocrcache.DefaultMaxSize,
			CacheMethod:   string(ocrcache.MethodContent),
		},
		Gate: GateConfig{
			MinOcrChars:          gate.DefaultMinOcrChars,
			MajorChangeThreshold: gate.DefaultMajorChangeThreshold,
			CooldownMs:           gate.DefaultCooldownMs,
			AdaptiveCooldownMs:   gate.DefaultAdaptiveCooldownMs,
			ContextCooldownMs:    gate.DefaultContextCooldownMs,
		},
		Relay: RelayConfig{
			URL:              "ws://localhost:8765/relay",
			SendThumbnails:   true,
			MaxImageKB:       DefaultMaxImageKB,
			UseWebSocket:     true,
			WSReconnectDelay: DefaultWSReconnectS,
			MaxQueueSize:     100,
		},
		Regions: RegionsConfig{
			GridSize:            regiontracker.DefaultGridSize,
			StabilityThresholdS: regiontracker.DefaultStabilityThresholdS,
			StabilityMinSamples: regiontracker.DefaultStabilityMinSamples,
		},
		TextDetection: TextDetectionConfig{
			Enabled:   true,
			Threshold: roi.DefaultThreshold,
			MinSize:   [2]int{roi.DefaultMinW, roi.DefaultMinH},
		},
		Semantic: SemanticConfig{
			Enabled:           true,
			MaxHistory:        30,
			ContextLines:      DefaultContextLines,
			MaxDeltasPerEvent: DefaultMaxDeltas,
		},
	}
}

// Load builds a Config from the built-in defaults deep-merged with the
// JSON override file at path (if any). A missing file is not an error;
// defaults are used. A malformed file is a recoverable config failure:
// logged at warn, falls back to defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		slog.Warn("config file unreadable, using defaults", "path", path, "error", err)
		return cfg, nil
	}

	var overrides map[string]any
	if err := json.Unmarshal(data, &overrides); err != nil {
		slog.Warn("config file malformed, using defaults", "path", path, "error", err)
		return cfg, nil
	}

	merged := deepMerge(defaultsMap(), overrides)

	decoded := &Config{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           decoded,
		WeaklyTypedInput: true,
	})
	if err != nil {
		slog.Warn("config decoder construction failed, using defaults", "error", err)
		return cfg, nil
	}
	if err := dec.Decode(merged); err != nil {
		slog.Warn("config decode failed, using defaults", "path", path, "error", err)
		return cfg, nil
	}
	return decoded, nil
}

// defaultsMap mirrors Default()'s shape as a plain map so overrides can be
// deep-merged section-by-section before the single mapstructure decode.
func defaultsMap() map[string]any {
	d := Default()
	return map[string]any{
		"capture": map[string]any{
			"mode": d.Capture.Mode, "target": d.Capture.Target,
			"fps": d.Capture.FPS, "scale": d.Capture.Scale,
		},
		"detection": map[string]any{
			"ssimThreshold": d.Detection.SSIMThreshold, "minArea": d.Detection.MinArea,
			"roiPadding": d.Detection.ROIPadding, "phashThreshold": d.Detection.PHashThreshold,
			"useFastGate": d.Detection.UseFastGate,
		},
		"ocr": map[string]any{
			"enabled": d.OCR.Enabled, "backend": d.OCR.Backend, "languages": d.OCR.Languages,
			"lang": d.OCR.Lang, "psm": d.OCR.PSM, "minConfidence": d.OCR.MinConfidence,
			"cacheSize": d.OCR.CacheSize, "cacheMethod": d.OCR.CacheMethod,
		},
		"gate": map[string]any{
			"minOcrChars": d.Gate.MinOcrChars, "majorChangeThreshold": d.Gate.MajorChangeThreshold,
			"cooldownMs": d.Gate.CooldownMs, "adaptiveCooldownMs": d.Gate.AdaptiveCooldownMs,
			"contextCooldownMs": d.Gate.ContextCooldownMs,
		},
		"relay": map[string]any{
			"url": d.Relay.URL, "sendThumbnails": d.Relay.SendThumbnails,
			"maxImageKB": d.Relay.MaxImageKB, "useWebSocket": d.Relay.UseWebSocket,
			"wsReconnectDelay": d.Relay.WSReconnectDelay, "maxQueueSize": d.Relay.MaxQueueSize,
		},
		"regions": map[string]any{
			"gridSize": d.Regions.GridSize, "stabilityThresholdS": d.Regions.StabilityThresholdS,
			"stabilityMinSamples": d.Regions.StabilityMinSamples,
		},
		"textDetection": map[string]any{
			"enabled": d.TextDetection.Enabled, "threshold": d.TextDetection.Threshold,
			"minSize": []any{d.TextDetection.MinSize[0], d.TextDetection.MinSize[1]},
		},
		"semantic": map[string]any{
			"enabled": d.Semantic.Enabled, "maxHistory": d.Semantic.MaxHistory,
			"contextLines": d.Semantic.ContextLines, "maxDeltasPerEvent": d.Semantic.MaxDeltasPerEvent,
		},
	}
}

// deepMerge recursively merges override values over base, with override
// winning on conflicts. Keys present only in override (at any level)
// survive untouched; this is how unrecognized sections/fields pass
// through to Config.Extra.
func deepMerge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, ov := range override {
		if bv, ok := out[k]; ok {
			bm, bOk := bv.(map[string]any)
			om, oOk := ov.(map[string]any)
			if bOk && oOk {
				out[k] = deepMerge(bm, om)
				continue
			}
		}
		out[k] = ov
	}
	return out
}

// ControlFile is the shape of the JSON pause/resume control file: a
// missing or malformed file is treated as enabled.
type ControlFile struct {
	Enabled bool `json:"enabled"`
}

// LoadControl reads the control file at path. Missing or malformed input
// defaults to enabled=true.
func LoadControl(path string) ControlFile {
	if path == "" {
		return ControlFile{Enabled: true}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ControlFile{Enabled: true}
	}
	var cf ControlFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return ControlFile{Enabled: true}
	}
	return cf
}
