package inference

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"

	"github.com/trip2/videodetect/config"
	"github.com/trip2/videodetect/logging"
	"github.com/trip2/videodetect/ml"
	"github.com/trip2/videodetect/utils"
)

func init() {
	RegisterEngine("onnx", newONNXEngine)
}

const (
	layoutNCHW = "nchw"
	layoutNHWC = "nhwc"
)

type onnxAttributes struct {
	LibraryPath    string   `json:"library_path"`
	UseGPU         bool     `json:"use_gpu"`
	GPUDeviceID    int      `json:"gpu_device_id"`
	IntraOpThreads int      `json:"intra_op_threads"`
	InputName      string   `json:"input_name"`
	OutputNames    []string `json:"output_names"`
	// InputLayout is "nchw" or "nhwc". Empty infers it from the input shape.
	InputLayout string `json:"input_layout"`
}

// The onnxruntime environment is process wide; it is created by the first engine and destroyed
// with the last.
var (
	ortMu      sync.Mutex
	ortEngines int
)

func acquireEnvironment(libraryPath string) error {
	ortMu.Lock()
	defer ortMu.Unlock()
	if ortEngines == 0 {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return errors.Wrap(err, "cannot initialize onnxruntime")
		}
	}
	ortEngines++
	return nil
}

func releaseEnvironment() error {
	ortMu.Lock()
	defer ortMu.Unlock()
	ortEngines--
	if ortEngines == 0 {
		return ort.DestroyEnvironment()
	}
	return nil
}

type onnxEngine struct {
	session *ort.DynamicAdvancedSession
	md      Metadata
	// inputShape is the concrete shape the input tensor is created with.
	inputShape ort.Shape
	layout     string
	logger     logging.Logger

	closeOnce sync.Once
	closeErr  error
}

func newONNXEngine(ctx context.Context, cfg config.Model, logger logging.Logger) (Engine, error) {
	attrs, err := config.DecodeAttributes[onnxAttributes](cfg.Attributes)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, errors.Wrap(err, "model file unavailable")
	}
	if err := acquireEnvironment(attrs.LibraryPath); err != nil {
		return nil, err
	}

	engine, err := buildONNXEngine(cfg.Path, attrs, logger)
	if err != nil {
		return nil, multierr.Combine(err, releaseEnvironment())
	}
	return engine, nil
}

func buildONNXEngine(modelPath string, attrs *onnxAttributes, logger logging.Logger) (*onnxEngine, error) {
	inputInfos, outputInfos, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read model inputs and outputs")
	}
	if len(inputInfos) == 0 || len(outputInfos) == 0 {
		return nil, errors.New("model declares no inputs or no outputs")
	}

	input := inputInfos[0]
	if attrs.InputName != "" {
		found := false
		for _, info := range inputInfos {
			if info.Name == attrs.InputName {
				input, found = info, true
			}
		}
		if !found {
			return nil, errors.Errorf("model has no input named %q", attrs.InputName)
		}
	}

	outputs := outputInfos
	if len(attrs.OutputNames) > 0 {
		byName := make(map[string]ort.InputOutputInfo, len(outputInfos))
		for _, info := range outputInfos {
			byName[info.Name] = info
		}
		outputs = make([]ort.InputOutputInfo, 0, len(attrs.OutputNames))
		for _, name := range attrs.OutputNames {
			info, ok := byName[name]
			if !ok {
				return nil, errors.Errorf("model has no output named %q", name)
			}
			outputs = append(outputs, info)
		}
	}

	inputShape := concreteShape(input.Dimensions)
	layout, err := inputLayout(attrs.InputLayout, inputShape)
	if err != nil {
		return nil, err
	}

	md := Metadata{Input: TensorInfo{Name: input.Name, Shape: shapeToInts(inputShape)}}
	outputNames := make([]string, 0, len(outputs))
	for _, o := range outputs {
		md.Outputs = append(md.Outputs, TensorInfo{Name: o.Name, Shape: shapeToInts(concreteShape(o.Dimensions))})
		outputNames = append(outputNames, o.Name)
	}

	session, err := newSession(modelPath, input.Name, outputNames, attrs, logger)
	if err != nil {
		return nil, err
	}
	return &onnxEngine{session: session, md: md, inputShape: inputShape, layout: layout, logger: logger}, nil
}

// newSession creates the session on the GPU when asked to and falls back to the CPU when the
// CUDA provider is unavailable.
func newSession(
	modelPath, inputName string,
	outputNames []string,
	attrs *onnxAttributes,
	logger logging.Logger,
) (*ort.DynamicAdvancedSession, error) {
	if attrs.UseGPU {
		session, err := createSession(modelPath, inputName, outputNames, attrs, true)
		if err == nil {
			logger.Info("using CUDA execution provider")
			return session, nil
		}
		logger.Warnw("GPU runtime unavailable, falling back to CPU", "error", err)
	}
	session, err := createSession(modelPath, inputName, outputNames, attrs, false)
	if err != nil {
		return nil, errors.Wrap(err, "cannot load model")
	}
	logger.Info("using CPU execution provider")
	return session, nil
}

func createSession(
	modelPath, inputName string,
	outputNames []string,
	attrs *onnxAttributes,
	useGPU bool,
) (*ort.DynamicAdvancedSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer func() {
		// options are copied into the session on creation.
		if err := options.Destroy(); err != nil {
			logging.Global().Debugw("destroying session options", "error", err)
		}
	}()

	threads := attrs.IntraOpThreads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if err := options.SetIntraOpNumThreads(threads); err != nil {
		return nil, err
	}

	if useGPU {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := cudaOptions.Destroy(); err != nil {
				logging.Global().Debugw("destroying CUDA options", "error", err)
			}
		}()
		if err := cudaOptions.Update(map[string]string{"device_id": strconv.Itoa(attrs.GPUDeviceID)}); err != nil {
			return nil, err
		}
		if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			return nil, err
		}
	}

	return ort.NewDynamicAdvancedSession(modelPath, []string{inputName}, outputNames, options)
}

// concreteShape replaces dynamic (negative) dimensions with 1, as a single frame is inferred at
// a time.
func concreteShape(dims ort.Shape) ort.Shape {
	out := make(ort.Shape, len(dims))
	for i, d := range dims {
		if d < 1 {
			d = 1
		}
		out[i] = d
	}
	return out
}

func shapeToInts(s ort.Shape) []int {
	out := make([]int, len(s))
	for i, d := range s {
		out[i] = int(d)
	}
	return out
}

func inputLayout(configured string, shape ort.Shape) (string, error) {
	switch configured {
	case layoutNCHW, layoutNHWC:
		return configured, nil
	case "":
	default:
		return "", errors.Errorf("unknown input_layout %q", configured)
	}
	if len(shape) == 4 && shape[1] == 3 {
		return layoutNCHW, nil
	}
	return layoutNHWC, nil
}

func (oe *onnxEngine) Metadata() Metadata {
	return oe.md
}

func (oe *onnxEngine) NewInvocation() Invocation {
	return &onnxInvocation{engine: oe}
}

func (oe *onnxEngine) Close() error {
	oe.closeOnce.Do(func() {
		oe.closeErr = multierr.Combine(oe.session.Destroy(), releaseEnvironment())
	})
	return oe.closeErr
}

type onnxInvocation struct {
	engine   *onnxEngine
	input    *ort.Tensor[float32]
	outputs  []ort.Value
	executed bool
	released bool
}

func (oi *onnxInvocation) LoadInput(input []float32) error {
	if oi.released {
		return ErrReleased
	}
	md := oi.engine.md
	if len(input) != md.InputLen() {
		return errors.Wrapf(ErrShapeMismatch, "got %d values, want %d for shape %v",
			len(input), md.InputLen(), md.Input.Shape)
	}

	data := input
	if oi.engine.layout == layoutNCHW {
		shape := md.Input.Shape
		var err error
		data, err = ml.HWCToCHW(input, shape[2], shape[3], shape[1])
		if err != nil {
			return errors.Wrap(ErrShapeMismatch, err.Error())
		}
	}

	if oi.input != nil {
		if err := oi.input.Destroy(); err != nil {
			return err
		}
		oi.input = nil
	}
	tensor, err := ort.NewTensor(oi.engine.inputShape, data)
	if err != nil {
		return errors.Wrap(err, "cannot create input tensor")
	}
	oi.input = tensor
	return nil
}

func (oi *onnxInvocation) Execute(ctx context.Context) error {
	if oi.released {
		return ErrReleased
	}
	if oi.input == nil {
		return errors.Wrap(ErrExecution, "no input loaded")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(ErrExecution, "%v", err)
	}
	if err := oi.destroyOutputs(); err != nil {
		return err
	}

	// Nil outputs are allocated by the session.
	oi.outputs = make([]ort.Value, len(oi.engine.md.Outputs))
	if err := oi.engine.session.Run([]ort.Value{oi.input}, oi.outputs); err != nil {
		return errors.Wrapf(ErrExecution, "%v", err)
	}
	oi.executed = true
	return nil
}

func (oi *onnxInvocation) ReadOutput() ([]float32, error) {
	if oi.released {
		return nil, ErrReleased
	}
	if !oi.executed {
		return nil, ErrNoOutput
	}

	tensors := make(ml.Tensors, len(oi.outputs))
	order := make([]string, 0, len(oi.outputs))
	for i, value := range oi.outputs {
		name := oi.engine.md.Outputs[i].Name
		out, ok := value.(*ort.Tensor[float32])
		if !ok {
			return nil, errors.Wrapf(utils.NewUnexpectedTypeError(out, value), "output %q", name)
		}
		// Copy out of engine memory; the tensor is destroyed on Release.
		data := append([]float32(nil), out.GetData()...)
		dense, err := ml.NewFloat32Tensor(data, shapeToInts(out.GetShape())...)
		if err != nil {
			return nil, err
		}
		// A 5-D output is (batch, anchor, row, col, record); records are read in
		// row, col, anchor order.
		if len(dense.Shape()) == 5 {
			if err := ml.PermuteAxes(dense, 0, 2, 3, 1, 4); err != nil {
				return nil, err
			}
		}
		tensors[name] = dense
		order = append(order, name)
	}
	return tensors.Flatten(order)
}

func (oi *onnxInvocation) destroyOutputs() error {
	var err error
	for _, v := range oi.outputs {
		if v != nil {
			err = multierr.Append(err, v.Destroy())
		}
	}
	oi.outputs = nil
	oi.executed = false
	return err
}

func (oi *onnxInvocation) Release() error {
	if oi.released {
		return nil
	}
	oi.released = true
	err := oi.destroyOutputs()
	if oi.input != nil {
		err = multierr.Append(err, oi.input.Destroy())
		oi.input = nil
	}
	return err
}
