package rimage

import (
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"
)

func solidFrame(w, h int, c color.RGBA) *Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return &Frame{Image: img}
}

func TestPrepareChannelOrderAndRange(t *testing.T) {
	frame := solidFrame(8, 6, color.RGBA{R: 255, G: 51, B: 0, A: 255})
	out := Prepare(frame, image.Pt(4, 4))

	test.That(t, frame.Size(), test.ShouldResemble, image.Pt(4, 4))
	test.That(t, out, test.ShouldHaveLength, 4*4*3)
	for i := 0; i < len(out); i += 3 {
		test.That(t, out[i], test.ShouldAlmostEqual, 1.0, 0.01)
		test.That(t, out[i+1], test.ShouldAlmostEqual, 0.2, 0.01)
		test.That(t, out[i+2], test.ShouldAlmostEqual, 0.0, 0.01)
	}
}

func TestPrepareRowMajor(t *testing.T) {
	frame := solidFrame(2, 2, color.RGBA{A: 255})
	frame.Image.SetRGBA(1, 0, color.RGBA{R: 255, A: 255})
	frame.Image.SetRGBA(0, 1, color.RGBA{B: 255, A: 255})

	out := Prepare(frame, image.Pt(2, 2))
	test.That(t, out, test.ShouldResemble, []float32{
		0, 0, 0, 1, 0, 0,
		0, 0, 1, 0, 0, 0,
	})
}

func TestResizeInPlace(t *testing.T) {
	frame := solidFrame(32, 16, color.RGBA{G: 200, A: 255})
	frame.ResizeInPlace(image.Pt(64, 48))
	test.That(t, frame.Size(), test.ShouldResemble, image.Pt(64, 48))
	test.That(t, frame.Image.RGBAAt(10, 10).G, test.ShouldEqual, uint8(200))

	empty := &Frame{Image: image.NewRGBA(image.Rectangle{})}
	test.That(t, empty.Empty(), test.ShouldBeTrue)
	empty.ResizeInPlace(image.Pt(4, 4))
	test.That(t, empty.Empty(), test.ShouldBeTrue)
}

func TestRGB24RoundTrip(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	frame := NewFrameFromRGB24(data, 2, 2)
	test.That(t, frame.Size(), test.ShouldResemble, image.Pt(2, 2))
	test.That(t, frame.Image.RGBAAt(1, 0), test.ShouldResemble, color.RGBA{R: 4, G: 5, B: 6, A: 255})
	test.That(t, frame.RGB24(), test.ShouldResemble, data)
}

func TestToRGBAOffsetBounds(t *testing.T) {
	src := image.NewNRGBA(image.Rect(5, 5, 7, 8))
	src.Set(5, 5, color.NRGBA{R: 9, A: 255})
	rgba := ToRGBA(src)
	test.That(t, rgba.Bounds(), test.ShouldResemble, image.Rect(0, 0, 2, 3))
	test.That(t, rgba.RGBAAt(0, 0).R, test.ShouldEqual, uint8(9))
}

func TestLabelColor(t *testing.T) {
	test.That(t, LabelColor(0), test.ShouldResemble, color.RGBA{R: 255, G: 255, B: 0, A: 255})
	test.That(t, LabelColor(1), test.ShouldNotResemble, LabelColor(0))
	test.That(t, LabelColor(3), test.ShouldResemble, LabelColor(3))
}

func TestDrawRectangle(t *testing.T) {
	frame := solidFrame(20, 20, color.RGBA{A: 255})
	dc := NewDrawContext(frame)
	DrawRectangleEmpty(dc, image.Rect(5, 5, 15, 15), color.RGBA{R: 255, A: 255}, 2)
	test.That(t, frame.Image.RGBAAt(10, 5).R, test.ShouldBeGreaterThan, uint8(0))
	test.That(t, frame.Image.RGBAAt(10, 10).R, test.ShouldEqual, uint8(0))
}
