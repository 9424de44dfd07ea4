package objectdetection

import (
	"fmt"
	"image"
	"math"

	"github.com/trip2/videodetect/rimage"
	"github.com/trip2/videodetect/utils"
)

const (
	boxLineWidth   = 2
	captionSize    = 14
	captionYOffset = 5
)

// Caption returns the text drawn above a detection, e.g. "person 87%".
func Caption(d Detection, names LabelNames) string {
	return fmt.Sprintf("%s %d%%", names.Name(d.Label), int(math.Round(d.Confidence*100)))
}

// Overlay draws every detection's box and caption onto the frame in place. Boxes are in the
// frame's current pixel coordinates. Captions sit 5px above their box, moved down when that
// would put them off the top of the frame.
func Overlay(frame *rimage.Frame, dets []Detection, names LabelNames) {
	if len(dets) == 0 || frame.Empty() {
		return
	}
	height := frame.Size().Y
	dc := rimage.NewDrawContext(frame)
	for _, d := range dets {
		c := rimage.LabelColor(d.Label)
		rimage.DrawRectangleEmpty(dc, d.Box.Rect(), c, boxLineWidth)
		baseline := utils.Clamp(d.Box.Y-captionYOffset, captionSize, max(captionSize, height-1))
		rimage.DrawString(dc, Caption(d, names), image.Pt(d.Box.X, baseline), c, captionSize)
	}
}
