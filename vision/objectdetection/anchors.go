package objectdetection

import (
	"image"

	"github.com/pkg/errors"
)

// Anchor is a box prior, in input pixels, that a grid cell's predicted size is scaled from.
type Anchor struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Scale is one detection head: a square grid of GridSize cells, each Stride input pixels wide,
// predicting one record per anchor.
type Scale struct {
	GridSize int      `json:"grid_size"`
	Stride   int      `json:"stride"`
	Anchors  []Anchor `json:"anchors"`
}

// AnchorConfig is the geometry of a multi-scale anchor-grid detector's output, together with the
// thresholds used to decode and de-duplicate it. The order of Scales is the order the scales
// appear in the flat output.
type AnchorConfig struct {
	Scales             []Scale `json:"scales"`
	Classes            int     `json:"classes"`
	DetectionThreshold float64 `json:"detection_threshold"`
	IOUThreshold       float64 `json:"iou_threshold"`
	InputWidth         int     `json:"input_width"`
	InputHeight        int     `json:"input_height"`
}

// DefaultAnchorConfig returns the three scale, 416x416 input configuration with 23 classes.
func DefaultAnchorConfig() AnchorConfig {
	return AnchorConfig{
		Scales: []Scale{
			{GridSize: 13, Stride: 32, Anchors: []Anchor{{116, 90}, {156, 198}, {373, 326}}},
			{GridSize: 52, Stride: 8, Anchors: []Anchor{{10, 13}, {16, 30}, {33, 23}}},
			{GridSize: 26, Stride: 16, Anchors: []Anchor{{30, 61}, {62, 45}, {59, 119}}},
		},
		Classes:            23,
		DetectionThreshold: 0.3,
		IOUThreshold:       0.5,
		InputWidth:         416,
		InputHeight:        416,
	}
}

// Validate checks that the geometry is usable for decoding.
func (cfg *AnchorConfig) Validate() error {
	if len(cfg.Scales) == 0 {
		return errors.New("at least one scale is required")
	}
	perCell := len(cfg.Scales[0].Anchors)
	if perCell == 0 {
		return errors.New("scale 0 has no anchors")
	}
	for i, s := range cfg.Scales {
		if s.GridSize <= 0 {
			return errors.Errorf("scale %d: grid_size must be positive, got %d", i, s.GridSize)
		}
		if s.Stride <= 0 {
			return errors.Errorf("scale %d: stride must be positive, got %d", i, s.Stride)
		}
		if len(s.Anchors) != perCell {
			return errors.Errorf("scale %d has %d anchors but scale 0 has %d; anchors per cell must match",
				i, len(s.Anchors), perCell)
		}
	}
	if cfg.Classes <= 0 {
		return errors.Errorf("classes must be positive, got %d", cfg.Classes)
	}
	if cfg.DetectionThreshold <= 0 || cfg.DetectionThreshold >= 1 {
		return errors.Errorf("detection_threshold must be in (0,1), got %v", cfg.DetectionThreshold)
	}
	if cfg.IOUThreshold <= 0 || cfg.IOUThreshold >= 1 {
		return errors.Errorf("iou_threshold must be in (0,1), got %v", cfg.IOUThreshold)
	}
	if cfg.InputWidth <= 0 || cfg.InputHeight <= 0 {
		return errors.Errorf("input size must be positive, got %dx%d", cfg.InputWidth, cfg.InputHeight)
	}
	return nil
}

// AnchorsPerCell is the number of records each grid cell predicts.
func (cfg *AnchorConfig) AnchorsPerCell() int {
	if len(cfg.Scales) == 0 {
		return 0
	}
	return len(cfg.Scales[0].Anchors)
}

// RecordLen is the number of values in one record: box (4), objectness (1) and one score per class.
func (cfg *AnchorConfig) RecordLen() int {
	return 5 + cfg.Classes
}

// ScaleOffsets returns, for each scale, the index of its first record in the flat output.
func (cfg *AnchorConfig) ScaleOffsets() []int {
	offsets := make([]int, len(cfg.Scales))
	total := 0
	for i, s := range cfg.Scales {
		offsets[i] = total
		total += s.GridSize * s.GridSize * len(s.Anchors)
	}
	return offsets
}

// NumRecords is the total number of records across every scale.
func (cfg *AnchorConfig) NumRecords() int {
	total := 0
	for _, s := range cfg.Scales {
		total += s.GridSize * s.GridSize * len(s.Anchors)
	}
	return total
}

// OutputLen is the number of float values a raw output for this configuration holds.
func (cfg *AnchorConfig) OutputLen() int {
	return cfg.NumRecords() * cfg.RecordLen()
}

// InputSize is the width and height frames are resized to before inference.
func (cfg *AnchorConfig) InputSize() image.Point {
	return image.Pt(cfg.InputWidth, cfg.InputHeight)
}

// InputLen is the number of float values in one preprocessed RGB input.
func (cfg *AnchorConfig) InputLen() int {
	return cfg.InputWidth * cfg.InputHeight * 3
}
