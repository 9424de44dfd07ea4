package inference

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trip2/videodetect/config"
	"github.com/trip2/videodetect/logging"
)

func init() {
	RegisterEngine("fake", func(ctx context.Context, cfg config.Model, logger logging.Logger) (Engine, error) {
		attrs, err := config.DecodeAttributes[fakeAttributes](cfg.Attributes)
		if err != nil {
			return nil, err
		}
		if attrs.InputLen <= 0 || attrs.OutputLen <= 0 {
			return nil, errors.New("fake engine needs positive input_len and output_len attributes")
		}
		fill := float32(-100)
		if attrs.Fill != nil {
			fill = *attrs.Fill
		}
		md := Metadata{
			Input:   TensorInfo{Name: "input", Shape: []int{attrs.InputLen}},
			Outputs: []TensorInfo{{Name: "output", Shape: []int{attrs.OutputLen}}},
		}
		return NewFakeEngine(md, func(_ context.Context, _ []float32) ([]float32, error) {
			out := make([]float32, attrs.OutputLen)
			for i := range out {
				out[i] = fill
			}
			return out, nil
		}), nil
	})
}

type fakeAttributes struct {
	InputLen  int      `json:"input_len"`
	OutputLen int      `json:"output_len"`
	Fill      *float32 `json:"fill"`
}

// InferFunc computes the output of a fake forward pass.
type InferFunc func(ctx context.Context, input []float32) ([]float32, error)

// FakeEngine is an in-process engine whose forward pass is a Go function. It counts invocations
// so tests can check every one was released.
type FakeEngine struct {
	md    Metadata
	infer InferFunc

	Created  int
	Released int
	Closed   bool
	// ReleaseErr is returned by every invocation's Release.
	ReleaseErr error
}

// NewFakeEngine returns an engine that runs infer on each Execute.
func NewFakeEngine(md Metadata, infer InferFunc) *FakeEngine {
	return &FakeEngine{md: md, infer: infer}
}

// Metadata returns the metadata the engine was built with.
func (fe *FakeEngine) Metadata() Metadata {
	return fe.md
}

// NewInvocation returns a fake invocation.
func (fe *FakeEngine) NewInvocation() Invocation {
	fe.Created++
	return &fakeInvocation{engine: fe}
}

// Close marks the engine closed.
func (fe *FakeEngine) Close() error {
	fe.Closed = true
	return nil
}

type fakeInvocation struct {
	engine   *FakeEngine
	input    []float32
	output   []float32
	released bool
}

func (fi *fakeInvocation) LoadInput(input []float32) error {
	if fi.released {
		return ErrReleased
	}
	if want := fi.engine.md.InputLen(); len(input) != want {
		return errors.Wrapf(ErrShapeMismatch, "got %d values, want %d", len(input), want)
	}
	fi.input = input
	return nil
}

func (fi *fakeInvocation) Execute(ctx context.Context) error {
	if fi.released {
		return ErrReleased
	}
	if fi.input == nil {
		return errors.Wrap(ErrExecution, "no input loaded")
	}
	out, err := fi.engine.infer(ctx, fi.input)
	if err != nil {
		return errors.Wrapf(ErrExecution, "%v", err)
	}
	fi.output = out
	return nil
}

func (fi *fakeInvocation) ReadOutput() ([]float32, error) {
	if fi.released {
		return nil, ErrReleased
	}
	if fi.output == nil {
		return nil, ErrNoOutput
	}
	return fi.output, nil
}

func (fi *fakeInvocation) Release() error {
	if fi.released {
		return nil
	}
	fi.released = true
	fi.input, fi.output = nil, nil
	fi.engine.Released++
	return fi.engine.ReleaseErr
}
