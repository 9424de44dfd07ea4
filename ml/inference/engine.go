// Package inference is the boundary to the neural network runtime. An Engine is opened once per
// model; every forward pass goes through its own Invocation, which owns all buffers for that pass.
package inference

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/trip2/videodetect/config"
	"github.com/trip2/videodetect/logging"
	"github.com/trip2/videodetect/utils"
)

var (
	// ErrShapeMismatch is returned by LoadInput when the input length disagrees with the model.
	ErrShapeMismatch = errors.New("input does not match the model's declared input shape")
	// ErrExecution wraps any engine fault during a forward pass.
	ErrExecution = errors.New("inference execution failed")
	// ErrNoOutput is returned by ReadOutput before a successful Execute.
	ErrNoOutput = errors.New("no output: execute has not succeeded")
	// ErrReleased is returned by an Invocation used after Release.
	ErrReleased = errors.New("invocation already released")
)

// TensorInfo names a model input or output and gives its shape.
type TensorInfo struct {
	Name  string
	Shape []int
}

// Len is the number of values the tensor holds.
func (ti TensorInfo) Len() int {
	if len(ti.Shape) == 0 {
		return 0
	}
	size := 1
	for _, d := range ti.Shape {
		size *= d
	}
	return size
}

// Metadata describes a loaded model's single input and its outputs, in the order their values
// are concatenated by ReadOutput.
type Metadata struct {
	Input   TensorInfo
	Outputs []TensorInfo
}

// InputLen is the number of values LoadInput expects.
func (md Metadata) InputLen() int {
	return md.Input.Len()
}

// OutputLen is the number of values ReadOutput returns.
func (md Metadata) OutputLen() int {
	total := 0
	for _, o := range md.Outputs {
		total += o.Len()
	}
	return total
}

// Engine is a loaded model.
type Engine interface {
	Metadata() Metadata
	// NewInvocation returns a fresh binding for one forward pass.
	NewInvocation() Invocation
	Close() error
}

// Invocation is one forward pass. Callers must Release it on every path, typically with defer.
type Invocation interface {
	// LoadInput binds row-major, channel-interleaved R,G,B values.
	LoadInput(input []float32) error
	Execute(ctx context.Context) error
	// ReadOutput returns every output of the last successful Execute, concatenated.
	ReadOutput() ([]float32, error)
	// Release frees engine-side buffers. It is idempotent.
	Release() error
}

// Constructor opens an engine for a model config.
type Constructor func(ctx context.Context, cfg config.Model, logger logging.Logger) (Engine, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// RegisterEngine makes an engine type available to Open. It panics on duplicate registration.
func RegisterEngine(name string, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[name]; ok {
		panic(errors.Errorf("engine %q already registered", name))
	}
	registry[name] = constructor
}

// RegisteredEngines returns the names of every registered engine type.
func RegisteredEngines() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open loads the configured model with the engine named by cfg.Engine.
func Open(ctx context.Context, cfg config.Model, logger logging.Logger) (Engine, error) {
	registryMu.RLock()
	constructor, ok := registry[cfg.Engine]
	registryMu.RUnlock()
	if !ok {
		return nil, utils.NewUnknownTypeError("engine", cfg.Engine)
	}
	engine, err := constructor(ctx, cfg, logger.Sublogger(cfg.Engine))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %s engine", cfg.Engine)
	}
	md := engine.Metadata()
	logger.Infow("inference engine ready",
		"engine", cfg.Engine,
		"path", cfg.Path,
		"input", md.Input.Name,
		"input_shape", md.Input.Shape,
		"outputs", len(md.Outputs),
		"output_len", md.OutputLen())
	return engine, nil
}
