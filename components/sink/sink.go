// Package sink defines the output side of a pipeline: a Sink consumes annotated frames in order.
// Implementations register themselves by type name and are opened from an Endpoint config.
package sink

import (
	"context"
	"image"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/trip2/videodetect/config"
	"github.com/trip2/videodetect/logging"
	"github.com/trip2/videodetect/rimage"
	"github.com/trip2/videodetect/utils"
)

// Sink writes frames. The pipeline calls WriteFrame from a single goroutine.
type Sink interface {
	WriteFrame(ctx context.Context, frame *rimage.Frame) error
	Close(ctx context.Context) error
}

// Params are the settings every sink receives in addition to its own attributes.
type Params struct {
	// Size is the size of every frame the pipeline will write.
	Size image.Point
}

// Constructor opens a sink from its attributes.
type Constructor func(ctx context.Context, attrs config.AttributeMap, params Params, logger logging.Logger) (Sink, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// RegisterSink makes a sink type available to Open. It panics on duplicate registration.
func RegisterSink(typ string, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[typ]; ok {
		panic(errors.Errorf("sink type %q already registered", typ))
	}
	registry[typ] = constructor
}

// RegisteredSinks returns the names of every registered sink type.
func RegisteredSinks() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open constructs the sink named by cfg.Type.
func Open(ctx context.Context, cfg config.Endpoint, params Params, logger logging.Logger) (Sink, error) {
	registryMu.RLock()
	constructor, ok := registry[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, utils.NewUnknownTypeError("sink", cfg.Type)
	}
	s, err := constructor(ctx, cfg.Attributes, params, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %s sink", cfg.Type)
	}
	return s, nil
}
