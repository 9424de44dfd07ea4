// Package camera defines the capture side of a pipeline: a Source yields frames until the stream
// ends. Implementations register themselves by type name and are opened from an Endpoint config.
package camera

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/trip2/videodetect/config"
	"github.com/trip2/videodetect/logging"
	"github.com/trip2/videodetect/rimage"
	"github.com/trip2/videodetect/utils"
)

// ErrEndOfStream is returned by ReadFrame once the stream is exhausted.
var ErrEndOfStream = io.EOF

// Source produces frames in capture order.
type Source interface {
	// ReadFrame blocks until the next frame is available. It returns ErrEndOfStream when the stream
	// has ended; any other error may be transient.
	ReadFrame(ctx context.Context) (*rimage.Frame, error)
	Close(ctx context.Context) error
}

// Constructor opens a source from its attributes.
type Constructor func(ctx context.Context, attrs config.AttributeMap, logger logging.Logger) (Source, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// RegisterSource makes a source type available to Open. It panics on duplicate registration.
func RegisterSource(typ string, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[typ]; ok {
		panic(errors.Errorf("capture type %q already registered", typ))
	}
	registry[typ] = constructor
}

// RegisteredSources returns the names of every registered source type.
func RegisteredSources() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open constructs the source named by cfg.Type.
func Open(ctx context.Context, cfg config.Endpoint, logger logging.Logger) (Source, error) {
	registryMu.RLock()
	constructor, ok := registry[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, utils.NewUnknownTypeError("capture", cfg.Type)
	}
	src, err := constructor(ctx, cfg.Attributes, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %s capture", cfg.Type)
	}
	return src, nil
}
