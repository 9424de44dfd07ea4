package rimage

import (
	"image"

	"github.com/nfnt/resize"
)

// Prepare resizes frame in place to target with bilinear interpolation and returns its pixels as
// row-major, channel-interleaved R,G,B floats scaled to [0,1]. frame must not be empty.
func Prepare(frame *Frame, target image.Point) []float32 {
	if frame.Size() != target {
		frame.Image = ToRGBA(resize.Resize(uint(target.X), uint(target.Y), frame.Image, resize.Bilinear))
	}
	return ImageToFloatBuffer(frame.Image)
}

// ImageToFloatBuffer flattens img into R,G,B floats in [0,1], ignoring alpha.
func ImageToFloatBuffer(img *image.RGBA) []float32 {
	size := img.Bounds().Size()
	out := make([]float32, 0, size.X*size.Y*3)
	for y := 0; y < size.Y; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+size.X*4]
		for x := 0; x < len(row); x += 4 {
			out = append(out,
				float32(row[x])/255,
				float32(row[x+1])/255,
				float32(row[x+2])/255)
		}
	}
	return out
}
