// Package ml provides the tensor primitives shared by inference engines.
package ml

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
	"gorgonia.org/tensor"
)

// Tensors are a group of named tensors, e.g. the outputs of one forward pass.
type Tensors map[string]*tensor.Dense

// NewFloat32Tensor wraps data in a dense tensor of the given shape without copying it.
func NewFloat32Tensor(data []float32, shape ...int) (*tensor.Dense, error) {
	size := 1
	for _, d := range shape {
		size *= d
	}
	if size != len(data) {
		return nil, errors.Errorf("shape %v holds %d values but got %d", shape, size, len(data))
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)), nil
}

// Names returns the tensor names in sorted order.
func (ts Tensors) Names() []string {
	names := make([]string, 0, len(ts))
	for name := range ts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Flatten concatenates the named tensors' values, as float32, in the given order.
func (ts Tensors) Flatten(order []string) ([]float32, error) {
	total := 0
	for _, name := range order {
		t, ok := ts[name]
		if !ok {
			return nil, errors.Errorf("no tensor named %q among [%s]", name, strings.Join(ts.Names(), ", "))
		}
		total += t.Shape().TotalSize()
	}

	out := make([]float32, 0, total)
	for _, name := range order {
		values, err := ConvertToFloat32Slice(ts[name].Data())
		if err != nil {
			return nil, errors.Wrapf(err, "tensor %q", name)
		}
		out = append(out, values...)
	}
	return out, nil
}

// PermuteAxes reorders the tensor's axes in place, moving the underlying data to match.
func PermuteAxes(t *tensor.Dense, axes ...int) error {
	if err := t.T(axes...); err != nil {
		// Identity permutations are reported as a no-op error.
		if noop, ok := err.(interface{ NoOp() bool }); ok && noop.NoOp() {
			return nil
		}
		return errors.Wrapf(err, "cannot permute shape %v by %v", t.Shape(), axes)
	}
	return t.Transpose()
}

// HWCToCHW converts a row-major, channel-interleaved image buffer to channel-planar order.
func HWCToCHW(data []float32, height, width, channels int) ([]float32, error) {
	t, err := NewFloat32Tensor(append([]float32(nil), data...), height, width, channels)
	if err != nil {
		return nil, err
	}
	if err := PermuteAxes(t, 2, 0, 1); err != nil {
		return nil, err
	}
	return t.Data().([]float32), nil
}

type number interface {
	constraints.Integer | constraints.Float
}

func convertNumberSlice[T1, T2 number](t1 []T1) []T2 {
	t2 := make([]T2, len(t1))
	for i := range t1 {
		t2[i] = T2(t1[i])
	}
	return t2
}

// ConvertToFloat32Slice converts a numeric slice or scalar, as returned by a tensor's Data method,
// into a []float32.
func ConvertToFloat32Slice(data interface{}) ([]float32, error) {
	switch v := data.(type) {
	case []float32:
		return v, nil
	case float32:
		return []float32{v}, nil
	case []float64:
		return convertNumberSlice[float64, float32](v), nil
	case float64:
		return []float32{float32(v)}, nil
	case []uint8:
		return convertNumberSlice[uint8, float32](v), nil
	case []int8:
		return convertNumberSlice[int8, float32](v), nil
	case []int16:
		return convertNumberSlice[int16, float32](v), nil
	case []int32:
		return convertNumberSlice[int32, float32](v), nil
	case []int64:
		return convertNumberSlice[int64, float32](v), nil
	case []int:
		return convertNumberSlice[int, float32](v), nil
	default:
		return nil, errors.Errorf("dont know how to convert %T into a []float32", data)
	}
}
