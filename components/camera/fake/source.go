// Package fake implements in-memory capture sources for tests and dry runs.
package fake

import (
	"context"
	"image"
	"sync"

	"github.com/trip2/videodetect/components/camera"
	"github.com/trip2/videodetect/config"
	"github.com/trip2/videodetect/logging"
	"github.com/trip2/videodetect/rimage"
)

const (
	defaultWidth  = 640
	defaultHeight = 480
	defaultFrames = 100
)

type sourceAttrs struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	// Frames is how many frames to generate before ending the stream. Negative means unbounded.
	Frames int `json:"frames"`
}

func init() {
	camera.RegisterSource("fake", func(ctx context.Context, attrs config.AttributeMap, logger logging.Logger) (camera.Source, error) {
		conf, err := config.DecodeAttributes[sourceAttrs](attrs)
		if err != nil {
			return nil, err
		}
		if conf.Width <= 0 {
			conf.Width = defaultWidth
		}
		if conf.Height <= 0 {
			conf.Height = defaultHeight
		}
		if conf.Frames == 0 {
			conf.Frames = defaultFrames
		}
		return NewGeneratedSource(conf.Width, conf.Height, conf.Frames), nil
	})
}

// Source returns a fixed sequence of frames, then ends the stream.
type Source struct {
	mu     sync.Mutex
	frames []*rimage.Frame
	next   int
	closed bool
}

// NewSource returns a source that yields the given frames in order.
func NewSource(frames ...*rimage.Frame) *Source {
	return &Source{frames: frames}
}

// ReadFrame returns the next frame or camera.ErrEndOfStream.
func (s *Source) ReadFrame(ctx context.Context) (*rimage.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.next >= len(s.frames) {
		return nil, camera.ErrEndOfStream
	}
	frame := s.frames[s.next]
	s.next++
	return frame, nil
}

// Close ends the stream.
func (s *Source) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// GeneratedSource draws a moving gradient, for running a pipeline without a camera.
type GeneratedSource struct {
	mu            sync.Mutex
	width, height int
	limit         int
	count         int
}

// NewGeneratedSource returns a source of limit frames of the given size. A negative limit never
// ends the stream.
func NewGeneratedSource(width, height, limit int) *GeneratedSource {
	return &GeneratedSource{width: width, height: height, limit: limit}
}

// ReadFrame draws the next frame.
func (gs *GeneratedSource) ReadFrame(ctx context.Context) (*rimage.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	gs.mu.Lock()
	defer gs.mu.Unlock()
	if gs.limit >= 0 && gs.count >= gs.limit {
		return nil, camera.ErrEndOfStream
	}
	shift := gs.count
	gs.count++

	img := image.NewRGBA(image.Rect(0, 0, gs.width, gs.height))
	for y := 0; y < gs.height; y++ {
		for x := 0; x < gs.width; x++ {
			i := img.PixOffset(x, y)
			img.Pix[i] = uint8((x + shift) % 256)
			img.Pix[i+1] = uint8(y % 256)
			img.Pix[i+2] = uint8((x + y) % 256)
			img.Pix[i+3] = 0xff
		}
	}
	return rimage.NewFrame(img), nil
}

// Close is a no-op.
func (gs *GeneratedSource) Close(ctx context.Context) error {
	return nil
}

// LiveSource yields frames sent on a channel, blocking in between like a live camera. Closing the
// channel ends the stream.
type LiveSource struct {
	frames <-chan *rimage.Frame
	// ReadErr, if set, is called before every read and may fail it.
	ReadErr func() error
}

// NewLiveSource returns a source reading from frames.
func NewLiveSource(frames <-chan *rimage.Frame) *LiveSource {
	return &LiveSource{frames: frames}
}

// ReadFrame waits for the next frame.
func (ls *LiveSource) ReadFrame(ctx context.Context) (*rimage.Frame, error) {
	if ls.ReadErr != nil {
		if err := ls.ReadErr(); err != nil {
			return nil, err
		}
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frame, ok := <-ls.frames:
		if !ok {
			return nil, camera.ErrEndOfStream
		}
		return frame, nil
	}
}

// Close is a no-op.
func (ls *LiveSource) Close(ctx context.Context) error {
	return nil
}
