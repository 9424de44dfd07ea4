// Package imagefile implements a sink that saves every frame as a JPEG file.
package imagefile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/trip2/videodetect/components/sink"
	"github.com/trip2/videodetect/config"
	"github.com/trip2/videodetect/logging"
	"github.com/trip2/videodetect/rimage"
)

const defaultQuality = 90

// Config are the attributes of an image file sink.
type Config struct {
	Directory string `json:"directory"`
	Quality   int    `json:"quality,omitempty"`
}

// Validate ensures a directory is given and the quality is a JPEG quality.
func (c *Config) Validate(path string) error {
	if c.Directory == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "directory")
	}
	if c.Quality < 0 || c.Quality > 100 {
		return goutils.NewConfigValidationError(path, errors.Errorf("quality must be in [1,100], got %d", c.Quality))
	}
	return nil
}

func init() {
	sink.RegisterSink("image_file", func(ctx context.Context, attrs config.AttributeMap, params sink.Params, logger logging.Logger) (sink.Sink, error) {
		conf, err := config.DecodeAttributes[Config](attrs)
		if err != nil {
			return nil, err
		}
		return NewSink(conf, logger)
	})
}

type fileSink struct {
	dir     string
	quality int
	logger  logging.Logger
}

// NewSink creates the output directory if needed.
func NewSink(conf *Config, logger logging.Logger) (sink.Sink, error) {
	if err := conf.Validate("sink.attributes"); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(conf.Directory, 0o750); err != nil {
		return nil, errors.Wrap(err, "cannot create output directory")
	}
	quality := conf.Quality
	if quality == 0 {
		quality = defaultQuality
	}
	return &fileSink{dir: conf.Directory, quality: quality, logger: logger}, nil
}

// FileName is the name a frame is saved under.
func FileName(seq uint64) string {
	return fmt.Sprintf("frame_%08d.jpg", seq)
}

func (fs *fileSink) WriteFrame(ctx context.Context, frame *rimage.Frame) error {
	path := filepath.Join(fs.dir, FileName(frame.Seq))
	if err := imaging.Save(frame.Image, path, imaging.JPEGQuality(fs.quality)); err != nil {
		return errors.Wrapf(err, "cannot save frame %d", frame.Seq)
	}
	return nil
}

func (fs *fileSink) Close(ctx context.Context) error {
	return nil
}
