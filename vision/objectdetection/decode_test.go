package objectdetection

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

const (
	hot  = 100
	cold = -100
)

// filledTensor returns a raw output for cfg with every value set to v.
func filledTensor(cfg AnchorConfig, v float32) RawTensor {
	raw := make(RawTensor, cfg.OutputLen())
	for i := range raw {
		raw[i] = v
	}
	return raw
}

// setRecord overwrites the record at index with a centered box, hot objectness and a hot score
// for class.
func setRecord(raw RawTensor, cfg AnchorConfig, index, class int) {
	record := raw[index*cfg.RecordLen() : (index+1)*cfg.RecordLen()]
	record[0], record[1], record[2], record[3] = 0, 0, 0, 0
	record[4] = hot
	record[5+class] = hot
}

func singleCellConfig() AnchorConfig {
	return AnchorConfig{
		Scales:             []Scale{{GridSize: 1, Stride: 32, Anchors: []Anchor{{10, 10}}}},
		Classes:            1,
		DetectionThreshold: 0.3,
		IOUThreshold:       0.5,
		InputWidth:         32,
		InputHeight:        32,
	}
}

func twoScaleConfig() AnchorConfig {
	return AnchorConfig{
		Scales: []Scale{
			{GridSize: 2, Stride: 8, Anchors: []Anchor{{4, 4}, {8, 8}}},
			{GridSize: 1, Stride: 16, Anchors: []Anchor{{4, 4}, {8, 8}}},
		},
		Classes:            2,
		DetectionThreshold: 0.3,
		IOUThreshold:       0.5,
		InputWidth:         16,
		InputHeight:        16,
	}
}

func TestDecodeAllObjectnessCold(t *testing.T) {
	for _, cfg := range []AnchorConfig{DefaultAnchorConfig(), singleCellConfig(), twoScaleConfig()} {
		dets, err := Decode(filledTensor(cfg, cold), cfg)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, dets, test.ShouldBeEmpty)
	}
}

func TestDecodeSingleCell(t *testing.T) {
	cfg := singleCellConfig()
	raw := RawTensor{0, 0, 0, 0, hot, hot}

	dets, err := Decode(raw, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dets, test.ShouldHaveLength, 1)

	d := dets[0]
	test.That(t, d.Label, test.ShouldEqual, 0)
	test.That(t, d.Confidence, test.ShouldAlmostEqual, 1.0, 1e-9)
	test.That(t, d.Box, test.ShouldResemble, Box{X: 11, Y: 11, Width: 10, Height: 10})
	test.That(t, float64(d.Box.X)+float64(d.Box.Width)/2, test.ShouldAlmostEqual, 16, 1)
	test.That(t, float64(d.Box.Y)+float64(d.Box.Height)/2, test.ShouldAlmostEqual, 16, 1)
}

func TestDecodeScaleOffsetsAndOrder(t *testing.T) {
	cfg := twoScaleConfig()
	raw := filledTensor(cfg, cold)
	// Scale 1, cell (0,0), anchor 0 comes after all 8 records of scale 0.
	setRecord(raw, cfg, 8, 0)
	// Scale 0, row 1, col 0, anchor 1.
	setRecord(raw, cfg, 2*(2*1+0)+1, 1)

	dets, err := Decode(raw, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dets, test.ShouldHaveLength, 2)

	test.That(t, dets[0].Label, test.ShouldEqual, 1)
	test.That(t, dets[0].Box, test.ShouldResemble, Box{X: 0, Y: 8, Width: 8, Height: 8})
	test.That(t, dets[1].Label, test.ShouldEqual, 0)
	test.That(t, dets[1].Box, test.ShouldResemble, Box{X: 6, Y: 6, Width: 4, Height: 4})
}

func TestDecodeThresholds(t *testing.T) {
	cfg := singleCellConfig()

	// Objectness exactly at the threshold is discarded.
	atThreshold := cfg
	atThreshold.DetectionThreshold = 0.5
	dets, err := Decode(RawTensor{0, 0, 0, 0, 0, hot}, atThreshold)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dets, test.ShouldBeEmpty)

	// High objectness but a weak class score is discarded on the combined score.
	dets, err = Decode(RawTensor{0, 0, 0, 0, hot, cold}, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dets, test.ShouldBeEmpty)

	// The carried confidence is the objectness, not the combined score.
	dets, err = Decode(RawTensor{0, 0, 0, 0, 2, 0}, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dets, test.ShouldHaveLength, 1)
	test.That(t, dets[0].Confidence, test.ShouldAlmostEqual, sigmoid(2), 1e-9)
}

func TestDecodeDiscardsNaN(t *testing.T) {
	cfg := singleCellConfig()
	nan := float32(math.NaN())
	for _, raw := range []RawTensor{
		{0, 0, 0, 0, nan, hot},
		{0, 0, 0, 0, hot, nan},
		{nan, 0, 0, 0, hot, hot},
		{0, nan, 0, 0, hot, hot},
		{0, 0, nan, nan, hot, hot},
	} {
		dets, err := Decode(raw, cfg)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, dets, test.ShouldBeEmpty)
	}

	// A NaN record next to a valid one leaves the valid one alone.
	cfg = twoScaleConfig()
	raw := filledTensor(cfg, cold)
	setRecord(raw, cfg, 0, 0)
	setRecord(raw, cfg, 1, 1)
	raw[cfg.RecordLen()+4] = nan
	dets, err := Decode(raw, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dets, test.ShouldHaveLength, 1)
	test.That(t, dets[0].Label, test.ShouldEqual, 0)
	test.That(t, dets[0].Confidence, test.ShouldAlmostEqual, 1.0, 1e-9)
}

func TestDecodeArgmaxTieKeepsLowestClass(t *testing.T) {
	cfg := singleCellConfig()
	cfg.Classes = 3
	dets, err := Decode(RawTensor{0, 0, 0, 0, hot, 1, 5, 5}, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dets, test.ShouldHaveLength, 1)
	test.That(t, dets[0].Label, test.ShouldEqual, 1)
}

func TestDecodeGeometryClamp(t *testing.T) {
	cfg := singleCellConfig()
	// Centers pushed to -0.5*stride and sizes to 4x the anchor put the top-left corner negative.
	dets, err := Decode(RawTensor{cold, cold, hot, hot, hot, hot}, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dets, test.ShouldHaveLength, 1)
	test.That(t, dets[0].Box.X, test.ShouldEqual, 0)
	test.That(t, dets[0].Box.Y, test.ShouldEqual, 0)
	test.That(t, dets[0].Box.Width, test.ShouldEqual, 40)
	test.That(t, dets[0].Box.Height, test.ShouldEqual, 40)
}

func TestDecodeLengthMismatch(t *testing.T) {
	cfg := singleCellConfig()
	_, err := Decode(RawTensor{0, 0, 0}, cfg)
	test.That(t, errors.Is(err, ErrOutputLength), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "got 3 values, want 6")
}

func TestDecodeRandomOutputs(t *testing.T) {
	cfg := twoScaleConfig()
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		raw := make(RawTensor, cfg.OutputLen())
		for i := range raw {
			raw[i] = float32(rng.NormFloat64() * 6)
		}

		first, err := Decode(raw, cfg)
		test.That(t, err, test.ShouldBeNil)
		second, err := Decode(raw, cfg)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, second, test.ShouldResemble, first)

		for _, d := range first {
			test.That(t, d.Confidence, test.ShouldBeBetweenOrEqual, 0.0, 1.0)
			test.That(t, d.Confidence, test.ShouldBeGreaterThan, cfg.DetectionThreshold)
			test.That(t, d.Label, test.ShouldBeBetweenOrEqual, 0, cfg.Classes-1)
			test.That(t, d.Box.X, test.ShouldBeGreaterThanOrEqualTo, 0)
			test.That(t, d.Box.Y, test.ShouldBeGreaterThanOrEqualTo, 0)
		}
	}
}
