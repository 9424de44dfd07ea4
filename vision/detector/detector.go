// Package detector runs one frame at a time through preprocessing, inference, decoding and
// non-maximum suppression, and annotates the frame with the result.
package detector

import (
	"context"
	"fmt"
	"image"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/trip2/videodetect/config"
	"github.com/trip2/videodetect/logging"
	"github.com/trip2/videodetect/ml/inference"
	"github.com/trip2/videodetect/rimage"
	"github.com/trip2/videodetect/vision/objectdetection"
)

// ErrEngineInit is wrapped by every error that prevents a detector from being created.
var ErrEngineInit = errors.New("cannot initialize detection engine")

// Stage names a step of Detect.
type Stage string

// The stages of Detect, in order.
const (
	StagePreprocess Stage = "preprocess"
	StageLoadInput  Stage = "load_input"
	StageExecute    Stage = "execute"
	StageReadOutput Stage = "read_output"
	StageDecode     Stage = "decode"
	StageRelease    Stage = "release"
)

// StageError is returned by Detect and identifies the stage that failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Config is everything a Detector needs.
type Config struct {
	Model      config.Model
	Anchors    objectdetection.AnchorConfig
	Filters    config.Filters
	OutputSize image.Point
}

// ConfigFromPipeline extracts the detector's part of a pipeline config.
func ConfigFromPipeline(cfg *config.Config) Config {
	anchors := objectdetection.DefaultAnchorConfig()
	if cfg.Anchors != nil {
		anchors = *cfg.Anchors
	}
	return Config{
		Model:      cfg.Model,
		Anchors:    anchors,
		Filters:    cfg.Filters,
		OutputSize: cfg.OutputSize.Point(),
	}
}

// Detector owns an inference engine. It is not safe for concurrent use.
type Detector struct {
	engine      inference.Engine
	anchors     objectdetection.AnchorConfig
	names       objectdetection.LabelNames
	postprocess objectdetection.Postprocessor
	outputSize  image.Point
	logger      logging.Logger
}

// New opens the configured model and checks that it matches the anchor geometry.
func New(ctx context.Context, cfg Config, logger logging.Logger) (*Detector, error) {
	if err := cfg.Anchors.Validate(); err != nil {
		return nil, errors.Wrap(ErrEngineInit, err.Error())
	}
	engine, err := inference.Open(ctx, cfg.Model, logger)
	if err != nil {
		return nil, errors.Wrap(ErrEngineInit, err.Error())
	}
	det, err := NewWithEngine(engine, cfg, logger)
	if err != nil {
		return nil, multierr.Combine(err, engine.Close())
	}
	return det, nil
}

// NewWithEngine wraps an already open engine. The detector takes ownership of it.
func NewWithEngine(engine inference.Engine, cfg Config, logger logging.Logger) (*Detector, error) {
	if err := cfg.Anchors.Validate(); err != nil {
		return nil, errors.Wrap(ErrEngineInit, err.Error())
	}
	md := engine.Metadata()
	if got, want := md.OutputLen(), cfg.Anchors.OutputLen(); got != want {
		return nil, errors.Wrapf(ErrEngineInit,
			"model output holds %d values but the anchor config expects %d", got, want)
	}
	if got, want := md.InputLen(), cfg.Anchors.InputLen(); got != want {
		return nil, errors.Wrapf(ErrEngineInit,
			"model input holds %d values but a %dx%d RGB frame has %d",
			got, cfg.Anchors.InputWidth, cfg.Anchors.InputHeight, want)
	}

	var names objectdetection.LabelNames
	if cfg.Model.LabelPath != "" {
		var err error
		names, err = objectdetection.ReadLabelFile(cfg.Model.LabelPath)
		if err != nil {
			return nil, errors.Wrap(ErrEngineInit, err.Error())
		}
		if len(names) != cfg.Anchors.Classes {
			logger.Warnw("label file does not match class count",
				"labels", len(names), "classes", cfg.Anchors.Classes)
		}
	}

	keep, err := resolveLabels(cfg.Filters.Labels, names, cfg.Anchors.Classes)
	if err != nil {
		return nil, errors.Wrap(ErrEngineInit, err.Error())
	}

	var postprocess []objectdetection.Postprocessor
	if cfg.Filters.MinConfidence > 0 {
		postprocess = append(postprocess, objectdetection.NewScoreFilter(cfg.Filters.MinConfidence))
	}
	if cfg.Filters.MinArea > 0 {
		postprocess = append(postprocess, objectdetection.NewAreaFilter(cfg.Filters.MinArea))
	}
	if len(keep) > 0 {
		postprocess = append(postprocess, objectdetection.NewLabelFilter(keep))
	}

	return &Detector{
		engine:      engine,
		anchors:     cfg.Anchors,
		names:       names,
		postprocess: objectdetection.Chain(postprocess...),
		outputSize:  cfg.OutputSize,
		logger:      logger,
	}, nil
}

func resolveLabels(labels []string, names objectdetection.LabelNames, classes int) ([]int, error) {
	keep := make([]int, 0, len(labels))
	for _, label := range labels {
		if idx, ok := names.Index(label); ok {
			keep = append(keep, idx)
			continue
		}
		idx, err := strconv.Atoi(label)
		if err != nil || idx < 0 || idx >= classes {
			return nil, errors.Errorf("filter label %q is neither a known name nor a class index", label)
		}
		keep = append(keep, idx)
	}
	return keep, nil
}

// Labels returns the class names read from the label file, if any.
func (d *Detector) Labels() objectdetection.LabelNames {
	return d.names
}

// Detect runs the frame through the model and returns the surviving detections, in pixels of the
// model's input size. The frame is resized to the model input, annotated, and then resized to the
// output size. On error the frame may have been resized to the input size but is not annotated.
func (d *Detector) Detect(ctx context.Context, frame *rimage.Frame) ([]objectdetection.Detection, error) {
	if frame.Empty() {
		return nil, &StageError{Stage: StagePreprocess, Err: errors.New("empty frame")}
	}
	input := rimage.Prepare(frame, d.anchors.InputSize())

	inv := d.engine.NewInvocation()
	released := false
	defer func() {
		if released {
			return
		}
		if err := inv.Release(); err != nil {
			d.logger.Warnw("releasing invocation", "error", err)
		}
	}()

	if err := inv.LoadInput(input); err != nil {
		return nil, &StageError{Stage: StageLoadInput, Err: err}
	}
	if err := inv.Execute(ctx); err != nil {
		return nil, &StageError{Stage: StageExecute, Err: err}
	}
	raw, err := inv.ReadOutput()
	if err != nil {
		return nil, &StageError{Stage: StageReadOutput, Err: err}
	}
	candidates, err := objectdetection.Decode(raw, d.anchors)
	if err != nil {
		return nil, &StageError{Stage: StageDecode, Err: err}
	}
	// Released before the frame is touched so that a failed release leaves it unannotated.
	released = true
	if err := inv.Release(); err != nil {
		return nil, &StageError{Stage: StageRelease, Err: err}
	}

	dets := d.postprocess(objectdetection.Suppress(candidates, d.anchors.IOUThreshold))
	objectdetection.Overlay(frame, dets, d.names)
	if d.outputSize != (image.Point{}) {
		frame.ResizeInPlace(d.outputSize)
	}

	d.logger.Debugw("detected", "seq", frame.Seq, "candidates", len(candidates), "detections", len(dets))
	return dets, nil
}

// Close releases the engine.
func (d *Detector) Close() error {
	return d.engine.Close()
}
