// Package imagefile implements a capture source that replays a directory of still images.
package imagefile

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/trip2/videodetect/components/camera"
	"github.com/trip2/videodetect/config"
	"github.com/trip2/videodetect/logging"
	"github.com/trip2/videodetect/rimage"
)

var extensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".gif": true, ".tif": true, ".tiff": true}

// Config are the attributes of an image file source.
type Config struct {
	Directory string `json:"directory"`
	// Loop restarts from the first image instead of ending the stream.
	Loop bool `json:"loop"`
}

// Validate ensures a directory is given.
func (c *Config) Validate(path string) error {
	if c.Directory == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "directory")
	}
	return nil
}

func init() {
	camera.RegisterSource("image_file", func(ctx context.Context, attrs config.AttributeMap, logger logging.Logger) (camera.Source, error) {
		conf, err := config.DecodeAttributes[Config](attrs)
		if err != nil {
			return nil, err
		}
		return NewSource(conf, logger)
	})
}

type source struct {
	mu     sync.Mutex
	files  []string
	next   int
	loop   bool
	logger logging.Logger
}

// NewSource lists the images in the configured directory, in lexical order.
func NewSource(conf *Config, logger logging.Logger) (camera.Source, error) {
	if err := conf.Validate("capture.attributes"); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(conf.Directory)
	if err != nil {
		return nil, errors.Wrap(err, "cannot list image directory")
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !extensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(conf.Directory, e.Name()))
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no images in %q", conf.Directory)
	}
	sort.Strings(files)
	logger.Debugw("replaying images", "directory", conf.Directory, "count", len(files), "loop", conf.Loop)
	return &source{files: files, loop: conf.Loop, logger: logger}, nil
}

func (s *source) ReadFrame(ctx context.Context) (*rimage.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.next >= len(s.files) {
		if !s.loop {
			s.mu.Unlock()
			return nil, camera.ErrEndOfStream
		}
		s.next = 0
	}
	path := s.files[s.next]
	s.next++
	s.mu.Unlock()

	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read %q", filepath.Base(path))
	}
	return rimage.NewFrame(img), nil
}

func (s *source) Close(ctx context.Context) error {
	return nil
}
