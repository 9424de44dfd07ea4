package ml

import (
	"testing"

	"go.viam.com/test"
	"gorgonia.org/tensor"
)

func TestFlatten(t *testing.T) {
	a, err := NewFloat32Tensor([]float32{1, 2, 3, 4}, 2, 2)
	test.That(t, err, test.ShouldBeNil)
	b := tensor.New(tensor.WithShape(3), tensor.WithBacking([]float64{5, 6, 7}))
	ts := Tensors{"b": b, "a": a}

	test.That(t, ts.Names(), test.ShouldResemble, []string{"a", "b"})

	out, err := ts.Flatten([]string{"b", "a"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldResemble, []float32{5, 6, 7, 1, 2, 3, 4})

	_, err = ts.Flatten([]string{"a", "c"})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `no tensor named "c" among [a, b]`)
}

func TestNewFloat32TensorShapeMismatch(t *testing.T) {
	_, err := NewFloat32Tensor([]float32{1, 2, 3}, 2, 2)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestHWCToCHW(t *testing.T) {
	// 1x2 image, pixels (r0,g0,b0) and (r1,g1,b1).
	out, err := HWCToCHW([]float32{1, 2, 3, 4, 5, 6}, 1, 2, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldResemble, []float32{1, 4, 2, 5, 3, 6})
}

func TestPermuteAxes(t *testing.T) {
	// anchors=2, cells=2, record=1 reordered to cells, anchors, record.
	d, err := NewFloat32Tensor([]float32{10, 11, 20, 21}, 2, 2, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, PermuteAxes(d, 1, 0, 2), test.ShouldBeNil)
	test.That(t, d.Shape(), test.ShouldResemble, tensor.Shape{2, 2, 1})
	test.That(t, d.Data(), test.ShouldResemble, []float32{10, 20, 11, 21})
}

func TestConvertToFloat32Slice(t *testing.T) {
	out, err := ConvertToFloat32Slice([]int64{1, 2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldResemble, []float32{1, 2})

	out, err = ConvertToFloat32Slice(float64(3))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldResemble, []float32{3})

	_, err = ConvertToFloat32Slice("nope")
	test.That(t, err, test.ShouldNotBeNil)
}
