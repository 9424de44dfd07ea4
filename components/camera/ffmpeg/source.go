// Package ffmpeg implements a capture source that decodes anything ffmpeg can read (a file, a
// device, an RTSP URL) into raw RGB frames.
package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	goutils "go.viam.com/utils"

	"github.com/trip2/videodetect/components/camera"
	"github.com/trip2/videodetect/config"
	"github.com/trip2/videodetect/logging"
	"github.com/trip2/videodetect/rimage"
	"github.com/trip2/videodetect/utils"
)

// Config are the attributes of an ffmpeg source.
type Config struct {
	Source string `json:"source"`
	// Width and Height scale the decoded stream. When both are zero the stream's own size is probed.
	Width       int                    `json:"width,omitempty"`
	Height      int                    `json:"height,omitempty"`
	InputKWArgs map[string]interface{} `json:"input_kw_args,omitempty"`
}

// Validate ensures the source is set and the size is either given in full or not at all.
func (c *Config) Validate(path string) error {
	if c.Source == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "source")
	}
	if c.Width < 0 || c.Height < 0 || (c.Width == 0) != (c.Height == 0) {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("width and height must both be positive or both be unset, got %dx%d", c.Width, c.Height))
	}
	return nil
}

func init() {
	camera.RegisterSource("ffmpeg", func(ctx context.Context, attrs config.AttributeMap, logger logging.Logger) (camera.Source, error) {
		conf, err := config.DecodeAttributes[Config](attrs)
		if err != nil {
			return nil, err
		}
		return NewSource(ctx, conf, logger)
	})
}

type source struct {
	width, height int
	frameBytes    []byte
	pipe          *io.PipeReader
	workers       utils.StoppableWorkers
	logger        logging.Logger
}

// NewSource starts ffmpeg decoding conf.Source to rgb24 on a pipe.
func NewSource(ctx context.Context, conf *Config, logger logging.Logger) (camera.Source, error) {
	if err := conf.Validate("capture.attributes"); err != nil {
		return nil, err
	}
	// make sure ffmpeg is in the path before doing anything else
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, err
	}

	width, height := conf.Width, conf.Height
	if width == 0 {
		var err error
		width, height, err = probeSize(conf.Source)
		if err != nil {
			return nil, err
		}
	}

	in, out := io.Pipe()
	src := &source{
		width:      width,
		height:     height,
		frameBytes: make([]byte, width*height*3),
		pipe:       in,
		logger:     logger,
	}
	outArgs := ffmpeg.KwArgs{
		"format":  "rawvideo",
		"pix_fmt": "rgb24",
		"s":       fmt.Sprintf("%dx%d", width, height),
	}
	src.workers = utils.NewStoppableWorkers(func(cancelCtx context.Context) {
		stream := ffmpeg.Input(conf.Source, ffmpeg.KwArgs(conf.InputKWArgs)).Output("pipe:", outArgs)
		stream.Context = cancelCtx
		err := stream.WithOutput(out).Run()
		if err != nil && cancelCtx.Err() == nil {
			logger.Warnw("ffmpeg exited", "source", conf.Source, "error", err)
			out.CloseWithError(errors.Wrap(err, "ffmpeg decoder failed"))
			return
		}
		// a clean exit reads as end of stream
		goutils.UncheckedError(out.Close())
	})
	logger.Infow("decoding with ffmpeg", "source", conf.Source, "width", width, "height", height)
	return src, nil
}

// probeSize asks ffprobe for the first video stream's dimensions.
func probeSize(source string) (int, int, error) {
	out, err := ffmpeg.Probe(source)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "cannot probe %q, set width and height", source)
	}
	var probe struct {
		Streams []struct {
			CodecType string `json:"codec_type"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
	}
	if err := json.Unmarshal([]byte(out), &probe); err != nil {
		return 0, 0, errors.Wrap(err, "cannot parse ffprobe output")
	}
	for _, s := range probe.Streams {
		if s.CodecType == "video" && s.Width > 0 && s.Height > 0 {
			return s.Width, s.Height, nil
		}
	}
	return 0, 0, errors.Errorf("no video stream in %q", source)
}

func (s *source) ReadFrame(ctx context.Context) (*rimage.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Cancelling ctx unblocks a stalled read by closing the pipe, which ends capture.
	stop := context.AfterFunc(ctx, func() {
		s.pipe.CloseWithError(ctx.Err())
	})
	defer stop()
	if _, err := io.ReadFull(s.pipe, s.frameBytes); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, camera.ErrEndOfStream
		}
		return nil, err
	}
	return rimage.NewFrameFromRGB24(s.frameBytes, s.width, s.height), nil
}

func (s *source) Close(ctx context.Context) error {
	err := s.pipe.Close()
	s.workers.Stop()
	return err
}
