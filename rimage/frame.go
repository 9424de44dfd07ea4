// Package rimage holds the frame type that moves through the pipeline and the image operations
// applied to it.
package rimage

import (
	"image"
	"image/draw"
	"time"

	"github.com/disintegration/imaging"
)

// Frame is one captured video frame. Its pixels are always stored R, G, B, A regardless of the
// capture device's native channel order. A Frame is owned by exactly one goroutine at a time and
// is modified in place by resizing and annotation.
type Frame struct {
	Image *image.RGBA
	// Seq is the arrival order assigned by the producer, starting at 1.
	Seq        uint64
	CapturedAt time.Time
}

// NewFrame returns a frame holding a copy of img.
func NewFrame(img image.Image) *Frame {
	return &Frame{Image: ToRGBA(img), CapturedAt: time.Now()}
}

// NewFrameFromRGB24 wraps tightly packed 8-bit R,G,B pixel data, such as ffmpeg's rgb24 output,
// into a frame.
func NewFrameFromRGB24(data []byte, width, height int) *Frame {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for src, dst := 0, 0; src+2 < len(data) && dst+3 < len(img.Pix); src, dst = src+3, dst+4 {
		img.Pix[dst] = data[src]
		img.Pix[dst+1] = data[src+1]
		img.Pix[dst+2] = data[src+2]
		img.Pix[dst+3] = 0xff
	}
	return &Frame{Image: img, CapturedAt: time.Now()}
}

// Size returns the frame's width and height.
func (f *Frame) Size() image.Point {
	if f == nil || f.Image == nil {
		return image.Point{}
	}
	return f.Image.Bounds().Size()
}

// Empty reports whether the frame has no pixels.
func (f *Frame) Empty() bool {
	size := f.Size()
	return size.X == 0 || size.Y == 0
}

// ResizeInPlace scales the frame to size with linear interpolation. It is a no-op when the frame
// already has that size.
func (f *Frame) ResizeInPlace(size image.Point) {
	if f.Empty() || f.Size() == size {
		return
	}
	f.Image = ToRGBA(imaging.Resize(f.Image, size.X, size.Y, imaging.Linear))
}

// RGB24 returns the frame's pixels tightly packed as R,G,B bytes.
func (f *Frame) RGB24() []byte {
	size := f.Size()
	out := make([]byte, 0, size.X*size.Y*3)
	for y := 0; y < size.Y; y++ {
		row := f.Image.Pix[y*f.Image.Stride : y*f.Image.Stride+size.X*4]
		for x := 0; x < len(row); x += 4 {
			out = append(out, row[x], row[x+1], row[x+2])
		}
	}
	return out
}

// ToRGBA returns img as an *image.RGBA with its origin at (0,0), copying unless img already is one.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba
}
