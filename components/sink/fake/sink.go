// Package fake implements a sink that keeps every frame in memory.
package fake

import (
	"context"
	"sync"

	"github.com/trip2/videodetect/components/sink"
	"github.com/trip2/videodetect/config"
	"github.com/trip2/videodetect/logging"
	"github.com/trip2/videodetect/rimage"
)

func init() {
	sink.RegisterSink("fake", func(ctx context.Context, attrs config.AttributeMap, params sink.Params, logger logging.Logger) (sink.Sink, error) {
		return NewSink(), nil
	})
}

// Sink records the frames written to it.
type Sink struct {
	mu     sync.Mutex
	frames []*rimage.Frame
	closed bool

	// WriteErr, if set, is called with each frame and its error is returned instead of recording it.
	WriteErr func(frame *rimage.Frame) error
}

// NewSink returns an empty sink.
func NewSink() *Sink {
	return &Sink{}
}

// WriteFrame records the frame.
func (s *Sink) WriteFrame(ctx context.Context, frame *rimage.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		if err := s.WriteErr(frame); err != nil {
			return err
		}
	}
	s.frames = append(s.frames, frame)
	return nil
}

// Frames returns the recorded frames in write order.
func (s *Sink) Frames() []*rimage.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*rimage.Frame(nil), s.frames...)
}

// Len returns how many frames were recorded.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Close marks the sink closed.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
