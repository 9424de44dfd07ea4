// Package ffmpeg implements a sink that pipes raw RGB frames into ffmpeg, which encodes them and
// writes them to a file or a network stream.
package ffmpeg

import (
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	goutils "go.viam.com/utils"

	"github.com/trip2/videodetect/components/sink"
	"github.com/trip2/videodetect/config"
	"github.com/trip2/videodetect/logging"
	"github.com/trip2/videodetect/rimage"
	"github.com/trip2/videodetect/utils"
)

const defaultFPS = 20

// Config are the attributes of an ffmpeg sink.
type Config struct {
	// Destination is anything ffmpeg can write to, e.g. "out.mp4" or "rtp://127.0.0.1:5000".
	Destination  string                 `json:"destination"`
	FPS          int                    `json:"fps,omitempty"`
	OutputKWArgs map[string]interface{} `json:"output_kw_args,omitempty"`
}

// Validate ensures a destination is given.
func (c *Config) Validate(path string) error {
	if c.Destination == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "destination")
	}
	if c.FPS < 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("fps must not be negative, got %d", c.FPS))
	}
	return nil
}

func init() {
	sink.RegisterSink("ffmpeg", func(ctx context.Context, attrs config.AttributeMap, params sink.Params, logger logging.Logger) (sink.Sink, error) {
		conf, err := config.DecodeAttributes[Config](attrs)
		if err != nil {
			return nil, err
		}
		return NewSink(conf, params, logger)
	})
}

// defaultOutputArgs encode low latency H.264.
func defaultOutputArgs() ffmpeg.KwArgs {
	return ffmpeg.KwArgs{
		"vcodec":  "libx264",
		"preset":  "ultrafast",
		"tune":    "zerolatency",
		"pix_fmt": "yuv420p",
	}
}

type ffmpegSink struct {
	size    image.Point
	pipe    *io.PipeWriter
	done    chan struct{}
	workers utils.StoppableWorkers
	logger  logging.Logger
}

// NewSink starts ffmpeg reading rgb24 frames of params.Size from a pipe.
func NewSink(conf *Config, params sink.Params, logger logging.Logger) (sink.Sink, error) {
	if err := conf.Validate("sink.attributes"); err != nil {
		return nil, err
	}
	if params.Size.X <= 0 || params.Size.Y <= 0 {
		return nil, errors.Errorf("ffmpeg sink needs a positive frame size, got %v", params.Size)
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, err
	}
	fps := conf.FPS
	if fps == 0 {
		fps = defaultFPS
	}
	outArgs := defaultOutputArgs()
	if len(conf.OutputKWArgs) > 0 {
		outArgs = ffmpeg.KwArgs(conf.OutputKWArgs)
	}

	in, out := io.Pipe()
	s := &ffmpegSink{size: params.Size, pipe: out, done: make(chan struct{}), logger: logger}
	inArgs := ffmpeg.KwArgs{
		"format":    "rawvideo",
		"pix_fmt":   "rgb24",
		"s":         fmt.Sprintf("%dx%d", params.Size.X, params.Size.Y),
		"framerate": fps,
	}
	s.workers = utils.NewStoppableWorkers(func(cancelCtx context.Context) {
		defer close(s.done)
		stream := ffmpeg.Input("pipe:", inArgs).Output(conf.Destination, outArgs).OverWriteOutput()
		stream.Context = cancelCtx
		if err := stream.WithInput(in).Run(); err != nil && cancelCtx.Err() == nil {
			logger.Warnw("ffmpeg exited", "destination", conf.Destination, "error", err)
			in.CloseWithError(errors.Wrap(err, "ffmpeg encoder failed"))
		}
	})
	logger.Infow("encoding with ffmpeg", "destination", conf.Destination, "size", params.Size, "fps", fps)
	return s, nil
}

func (s *ffmpegSink) WriteFrame(ctx context.Context, frame *rimage.Frame) error {
	frame.ResizeInPlace(s.size)
	_, err := s.pipe.Write(frame.RGB24())
	return err
}

// Close ends the input so ffmpeg can flush, and kills it if it has not exited by the time ctx is
// done.
func (s *ffmpegSink) Close(ctx context.Context) error {
	err := s.pipe.Close()
	select {
	case <-s.done:
	case <-ctx.Done():
		s.logger.Warn("ffmpeg did not finish before close deadline")
	}
	s.workers.Stop()
	return err
}
