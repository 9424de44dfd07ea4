package objectdetection

import (
	"math/rand"
	"testing"

	"go.viam.com/test"
)

func TestIoU(t *testing.T) {
	a := Box{X: 0, Y: 0, Width: 9, Height: 9}
	test.That(t, IoU(a, a), test.ShouldEqual, 1.0)
	test.That(t, IoU(a, Box{X: 0, Y: 0, Width: 9, Height: 4}), test.ShouldEqual, 0.5)
	test.That(t, IoU(a, Box{X: 100, Y: 100, Width: 9, Height: 9}), test.ShouldEqual, 0.0)

	// Boxes that only share an edge pixel still overlap by one pixel.
	touching := IoU(a, Box{X: 9, Y: 0, Width: 9, Height: 9})
	test.That(t, touching, test.ShouldAlmostEqual, 10.0/190.0, 1e-12)
}

func TestSuppressEmpty(t *testing.T) {
	test.That(t, Suppress(nil, 0.5), test.ShouldBeEmpty)
	test.That(t, Suppress([]Detection{}, 0.5), test.ShouldBeEmpty)
}

func TestSuppressThresholdBoundary(t *testing.T) {
	big := Detection{Box: Box{X: 0, Y: 0, Width: 9, Height: 9}, Confidence: 0.9}
	half := Detection{Box: Box{X: 0, Y: 0, Width: 9, Height: 4}, Confidence: 0.8}

	// An IoU of exactly the threshold is kept.
	test.That(t, Suppress([]Detection{half, big}, 0.5), test.ShouldResemble, []Detection{big, half})
	// Just above it the lower confidence detection goes.
	test.That(t, Suppress([]Detection{half, big}, 0.49), test.ShouldResemble, []Detection{big})
}

func TestSuppressKeepsTransitiveNeighbors(t *testing.T) {
	// b overlaps both a and c, but a and c are apart. Once b is suppressed by a it no longer
	// suppresses c.
	a := Detection{Box: Box{X: 0, Y: 0, Width: 10, Height: 10}, Confidence: 0.9}
	b := Detection{Box: Box{X: 4, Y: 0, Width: 10, Height: 10}, Confidence: 0.8}
	c := Detection{Box: Box{X: 9, Y: 0, Width: 10, Height: 10}, Confidence: 0.7}
	test.That(t, IoU(a.Box, b.Box), test.ShouldBeGreaterThan, 0.3)
	test.That(t, IoU(b.Box, c.Box), test.ShouldBeGreaterThan, 0.3)
	test.That(t, IoU(a.Box, c.Box), test.ShouldBeLessThan, 0.3)

	test.That(t, Suppress([]Detection{c, b, a}, 0.3), test.ShouldResemble, []Detection{a, c})
}

func TestSuppressStableTies(t *testing.T) {
	first := Detection{Box: Box{X: 0, Y: 0, Width: 5, Height: 5}, Label: 1, Confidence: 0.5}
	second := Detection{Box: Box{X: 50, Y: 50, Width: 5, Height: 5}, Label: 2, Confidence: 0.5}
	third := Detection{Box: Box{X: 100, Y: 100, Width: 5, Height: 5}, Label: 3, Confidence: 0.5}
	test.That(t, Suppress([]Detection{first, second, third}, 0.5), test.ShouldResemble,
		[]Detection{first, second, third})

	// Between identical boxes of equal confidence, the earlier one survives.
	dup := first
	dup.Label = 9
	test.That(t, Suppress([]Detection{first, dup}, 0.5), test.ShouldResemble, []Detection{first})
}

func TestSuppressDoesNotModifyInput(t *testing.T) {
	in := []Detection{
		{Box: Box{X: 0, Y: 0, Width: 9, Height: 9}, Confidence: 0.2},
		{Box: Box{X: 0, Y: 0, Width: 9, Height: 9}, Confidence: 0.9},
	}
	orig := append([]Detection(nil), in...)
	out := Suppress(in, 0.5)
	test.That(t, in, test.ShouldResemble, orig)
	test.That(t, out, test.ShouldResemble, []Detection{orig[1]})
}

func randomDetections(rng *rand.Rand, n int) []Detection {
	dets := make([]Detection, n)
	for i := range dets {
		dets[i] = Detection{
			Box: Box{
				X:      rng.Intn(100),
				Y:      rng.Intn(100),
				Width:  1 + rng.Intn(60),
				Height: 1 + rng.Intn(60),
			},
			Label:      rng.Intn(3),
			Confidence: float64(rng.Intn(10)) / 10,
		}
	}
	return dets
}

func TestSuppressIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 100; trial++ {
		dets := randomDetections(rng, 1+rng.Intn(40))
		threshold := 0.1 + rng.Float64()*0.8

		once := Suppress(dets, threshold)
		twice := Suppress(once, threshold)
		test.That(t, twice, test.ShouldResemble, once)

		for i := 1; i < len(once); i++ {
			test.That(t, once[i-1].Confidence, test.ShouldBeGreaterThanOrEqualTo, once[i].Confidence)
		}
		for i := range once {
			for j := i + 1; j < len(once); j++ {
				test.That(t, IoU(once[i].Box, once[j].Box), test.ShouldBeLessThanOrEqualTo, threshold)
			}
		}
	}
}
