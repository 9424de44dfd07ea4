// Package config defines the structures that configure a detection pipeline and how they are read
// and validated.
package config

import (
	"image"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/trip2/videodetect/logging"
	"github.com/trip2/videodetect/vision/objectdetection"
)

// Defaults applied by Ensure when a field is left unset.
const (
	DefaultMaxQueueDepth = 35
	DefaultOutputWidth   = 1280
	DefaultOutputHeight  = 720
	DefaultStatsInterval = 10 * time.Second
	DefaultMaxReadErrors = 10
	DefaultEngine        = "onnx"
)

// Config is the whole configuration of one pipeline. It is read once at startup and not modified
// afterwards.
type Config struct {
	Capture Endpoint `json:"capture"`
	Sink    Endpoint `json:"sink"`
	Model   Model    `json:"model"`

	// Anchors describes the detector's output geometry. Nil selects
	// objectdetection.DefaultAnchorConfig.
	Anchors *objectdetection.AnchorConfig `json:"anchors,omitempty"`

	Filters Filters `json:"filters"`

	MaxQueueDepth  int    `json:"max_queue_depth"`
	OutputSize     Size   `json:"output_size"`
	MetricsAddress string `json:"metrics_address,omitempty"`
	StatsInterval  string `json:"stats_interval,omitempty"`
	MaxReadErrors  int    `json:"max_read_errors"`
	LogLevel       string `json:"log_level,omitempty"`

	ConfigFilePath string `json:"-"`

	statsInterval time.Duration
}

// Endpoint selects a capture or sink implementation by type and passes it its attributes.
type Endpoint struct {
	Type       string       `json:"type"`
	Attributes AttributeMap `json:"attributes,omitempty"`
}

// Model locates the detector's weights and selects the engine that runs them.
type Model struct {
	Path       string       `json:"path"`
	Engine     string       `json:"engine"`
	LabelPath  string       `json:"label_path,omitempty"`
	Attributes AttributeMap `json:"attributes,omitempty"`
}

// Filters drop detections after non-maximum suppression. Zero values keep everything.
type Filters struct {
	MinConfidence float64 `json:"min_confidence,omitempty"`
	MinArea       int     `json:"min_area,omitempty"`
	// Labels keeps only these classes, given by name or index.
	Labels []string `json:"labels,omitempty"`
}

// Validate ensures the thresholds are in range.
func (f *Filters) Validate(path string) error {
	if f.MinConfidence < 0 || f.MinConfidence > 1 {
		return goutils.NewConfigValidationError(path, errors.Errorf("min_confidence must be in [0,1], got %v", f.MinConfidence))
	}
	if f.MinArea < 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("min_area must not be negative, got %d", f.MinArea))
	}
	return nil
}

// Size is a width and height in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Point returns the size as an image.Point.
func (s Size) Point() image.Point {
	return image.Pt(s.Width, s.Height)
}

// Validate ensures the endpoint names an implementation.
func (e *Endpoint) Validate(path string) error {
	if e.Type == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "type")
	}
	return nil
}

// Validate ensures the model can be loaded. The fake engine needs no weights.
func (m *Model) Validate(path string) error {
	if m.Engine == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "engine")
	}
	if m.Path == "" && m.Engine != "fake" {
		return goutils.NewConfigValidationFieldRequiredError(path, "path")
	}
	return nil
}

// Validate ensures both dimensions are positive.
func (s Size) Validate(path string) error {
	if s.Width <= 0 || s.Height <= 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("size must be positive, got %dx%d", s.Width, s.Height))
	}
	return nil
}

// Ensure fills in defaults and validates the config. It must be called before the config is used.
func (c *Config) Ensure() error {
	if c.Model.Engine == "" {
		c.Model.Engine = DefaultEngine
	}
	if c.MaxQueueDepth == 0 {
		c.MaxQueueDepth = DefaultMaxQueueDepth
	}
	if c.OutputSize == (Size{}) {
		c.OutputSize = Size{Width: DefaultOutputWidth, Height: DefaultOutputHeight}
	}
	if c.MaxReadErrors == 0 {
		c.MaxReadErrors = DefaultMaxReadErrors
	}
	if c.Anchors == nil {
		anchors := objectdetection.DefaultAnchorConfig()
		c.Anchors = &anchors
	}
	return c.Validate()
}

// Validate checks every section of the config.
func (c *Config) Validate() error {
	if err := c.Capture.Validate("capture"); err != nil {
		return err
	}
	if err := c.Sink.Validate("sink"); err != nil {
		return err
	}
	if err := c.Model.Validate("model"); err != nil {
		return err
	}
	if c.Anchors != nil {
		if err := c.Anchors.Validate(); err != nil {
			return goutils.NewConfigValidationError("anchors", err)
		}
	}
	if err := c.Filters.Validate("filters"); err != nil {
		return err
	}
	if c.MaxQueueDepth < 1 {
		return goutils.NewConfigValidationError("max_queue_depth",
			errors.Errorf("must be at least 1, got %d", c.MaxQueueDepth))
	}
	if c.MaxReadErrors < 1 {
		return goutils.NewConfigValidationError("max_read_errors",
			errors.Errorf("must be at least 1, got %d", c.MaxReadErrors))
	}
	if err := c.OutputSize.Validate("output_size"); err != nil {
		return err
	}

	c.statsInterval = DefaultStatsInterval
	if c.StatsInterval != "" {
		interval, err := time.ParseDuration(c.StatsInterval)
		if err != nil {
			return goutils.NewConfigValidationError("stats_interval", err)
		}
		if interval <= 0 {
			return goutils.NewConfigValidationError("stats_interval",
				errors.Errorf("must be positive, got %s", interval))
		}
		c.statsInterval = interval
	}

	if c.LogLevel != "" {
		if _, err := logging.LevelFromString(c.LogLevel); err != nil {
			return goutils.NewConfigValidationError("log_level", err)
		}
	}
	return nil
}

// StatsIntervalDuration returns how often pipeline statistics are logged.
func (c *Config) StatsIntervalDuration() time.Duration {
	if c.statsInterval == 0 {
		return DefaultStatsInterval
	}
	return c.statsInterval
}
