// Package objectdetection turns the raw output of an anchor-grid detector into de-duplicated
// bounding boxes and draws them onto frames.
package objectdetection

import (
	"fmt"
	"image"
)

// RawTensor is the flat output of one forward pass. Records are laid out scale by scale, then by
// row, column and anchor, each record holding RecordLen consecutive values.
type RawTensor []float32

// Box is a rectangle in pixels of the preprocessed input frame.
type Box struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Rect returns the box as an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// Area returns the box's area in pixels.
func (b Box) Area() int {
	return b.Width * b.Height
}

// Detection is one detected object. Confidence is the objectness of the record it came from.
type Detection struct {
	Box        Box
	Label      int
	Confidence float64
}

func (d Detection) String() string {
	return fmt.Sprintf("label %d (%.2f) at %v", d.Label, d.Confidence, d.Box.Rect())
}
