// Package register registers every capture and sink implementation.
package register

import (
	// register capture sources.
	_ "github.com/trip2/videodetect/components/camera/fake"
	_ "github.com/trip2/videodetect/components/camera/ffmpeg"
	_ "github.com/trip2/videodetect/components/camera/imagefile"
	// register sinks.
	_ "github.com/trip2/videodetect/components/sink/fake"
	_ "github.com/trip2/videodetect/components/sink/ffmpeg"
	_ "github.com/trip2/videodetect/components/sink/imagefile"
)
