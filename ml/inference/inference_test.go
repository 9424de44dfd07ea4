package inference

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/trip2/videodetect/config"
	"github.com/trip2/videodetect/logging"
)

func TestRegisteredEngines(t *testing.T) {
	test.That(t, RegisteredEngines(), test.ShouldResemble, []string{"fake", "onnx"})
	test.That(t, func() { RegisterEngine("fake", nil) }, test.ShouldPanic)
}

func TestOpenUnknownEngine(t *testing.T) {
	_, err := Open(context.Background(), config.Model{Engine: "tflite"}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `unknown engine type "tflite"`)
}

func TestOpenFakeFromConfig(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	_, err := Open(ctx, config.Model{Engine: "fake"}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "input_len and output_len")

	engine, err := Open(ctx, config.Model{
		Engine:     "fake",
		Attributes: config.AttributeMap{"input_len": 3, "output_len": 4, "fill": 0.5},
	}, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() { test.That(t, engine.Close(), test.ShouldBeNil) }()

	md := engine.Metadata()
	test.That(t, md.InputLen(), test.ShouldEqual, 3)
	test.That(t, md.OutputLen(), test.ShouldEqual, 4)

	inv := engine.NewInvocation()
	defer func() { test.That(t, inv.Release(), test.ShouldBeNil) }()
	test.That(t, inv.LoadInput([]float32{1, 2, 3}), test.ShouldBeNil)
	test.That(t, inv.Execute(ctx), test.ShouldBeNil)
	out, err := inv.ReadOutput()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldResemble, []float32{0.5, 0.5, 0.5, 0.5})
}

func fakeMetadata() Metadata {
	return Metadata{
		Input:   TensorInfo{Name: "images", Shape: []int{1, 2, 2, 3}},
		Outputs: []TensorInfo{{Name: "a", Shape: []int{1, 2}}, {Name: "b", Shape: []int{3}}},
	}
}

func TestMetadata(t *testing.T) {
	md := fakeMetadata()
	test.That(t, md.InputLen(), test.ShouldEqual, 12)
	test.That(t, md.OutputLen(), test.ShouldEqual, 5)
	test.That(t, TensorInfo{}.Len(), test.ShouldEqual, 0)
}

func TestInvocationContract(t *testing.T) {
	ctx := context.Background()
	engine := NewFakeEngine(fakeMetadata(), func(_ context.Context, in []float32) ([]float32, error) {
		return []float32{in[0], 1, 2, 3, 4}, nil
	})

	inv := engine.NewInvocation()
	_, err := inv.ReadOutput()
	test.That(t, errors.Is(err, ErrNoOutput), test.ShouldBeTrue)

	err = inv.LoadInput(make([]float32, 5))
	test.That(t, errors.Is(err, ErrShapeMismatch), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "got 5 values, want 12")

	err = inv.Execute(ctx)
	test.That(t, errors.Is(err, ErrExecution), test.ShouldBeTrue)

	input := make([]float32, 12)
	input[0] = 9
	test.That(t, inv.LoadInput(input), test.ShouldBeNil)
	test.That(t, inv.Execute(ctx), test.ShouldBeNil)
	out, err := inv.ReadOutput()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldResemble, []float32{9, 1, 2, 3, 4})

	test.That(t, inv.Release(), test.ShouldBeNil)
	test.That(t, inv.Release(), test.ShouldBeNil)
	test.That(t, engine.Created, test.ShouldEqual, 1)
	test.That(t, engine.Released, test.ShouldEqual, 1)

	_, err = inv.ReadOutput()
	test.That(t, errors.Is(err, ErrReleased), test.ShouldBeTrue)
	test.That(t, errors.Is(inv.LoadInput(input), ErrReleased), test.ShouldBeTrue)
}

func TestFakeExecutionError(t *testing.T) {
	engine := NewFakeEngine(fakeMetadata(), func(context.Context, []float32) ([]float32, error) {
		return nil, errors.New("device lost")
	})
	inv := engine.NewInvocation()
	defer func() { test.That(t, inv.Release(), test.ShouldBeNil) }()

	test.That(t, inv.LoadInput(make([]float32, 12)), test.ShouldBeNil)
	err := inv.Execute(context.Background())
	test.That(t, errors.Is(err, ErrExecution), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "device lost")

	_, err = inv.ReadOutput()
	test.That(t, errors.Is(err, ErrNoOutput), test.ShouldBeTrue)
}

func TestONNXMissingModel(t *testing.T) {
	_, err := Open(context.Background(), config.Model{
		Engine: "onnx",
		Path:   filepath.Join(t.TempDir(), "missing.onnx"),
	}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "model file unavailable")
}

func TestONNXBadAttributes(t *testing.T) {
	_, err := Open(context.Background(), config.Model{
		Engine:     "onnx",
		Path:       "model.onnx",
		Attributes: config.AttributeMap{"use_gpu": "sometimes"},
	}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "attributes")
}

func TestInputLayout(t *testing.T) {
	layout, err := inputLayout("", []int64{1, 3, 416, 416})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, layout, test.ShouldEqual, layoutNCHW)

	layout, err = inputLayout("", []int64{1, 416, 416, 3})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, layout, test.ShouldEqual, layoutNHWC)

	layout, err = inputLayout(layoutNHWC, []int64{1, 3, 416, 416})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, layout, test.ShouldEqual, layoutNHWC)

	_, err = inputLayout("chwn", nil)
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, shapeToInts(concreteShape([]int64{-1, 3, 416, 416})), test.ShouldResemble, []int{1, 3, 416, 416})
}
