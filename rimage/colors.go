package rimage

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// goldenAngle spreads consecutive hues as far apart as possible.
const goldenAngle = 137.50776

// LabelColor returns a bright, stable color for a class label. Label 0 is yellow.
func LabelColor(label int) color.Color {
	hue := math.Mod(60+float64(label)*goldenAngle, 360)
	r, g, b := colorful.Hsv(hue, 1, 1).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}
