package classifier

import (
	"context"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/example/catdog/internal/imageprocessor"
)

// ONNXOptions configures a locally loaded model.
type ONNXOptions struct {
	ModelPath string
	// LibraryPath points at the onnxruntime shared library; empty uses the platform default.
	LibraryPath string
	InputName   string
	OutputName  string
}

// ONNX runs a single-output sigmoid model exported to ONNX with an NHWC
// (1, 224, 224, 3) float32 input.
type ONNX struct {
	// slot holds a token while a run owns the shared tensors.
	slot         chan struct{}
	inputSize    int
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	logger       *zap.Logger
}

// NewONNX initialises the runtime environment and loads the model. Close must
// be called to release native resources.
func NewONNX(opts ONNXOptions, logger *zap.Logger) (*ONNX, error) {
	if opts.LibraryPath != "" {
		ort.SetSharedLibraryPath(opts.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputShape := ort.NewShape(1, imageprocessor.Height, imageprocessor.Width, imageprocessor.Channels)
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(opts.ModelPath,
		[]string{opts.InputName}, []string{opts.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	logger.Info("onnx model loaded", zap.String("model_path", opts.ModelPath))
	return &ONNX{
		slot:         make(chan struct{}, 1),
		inputSize:    len(inputTensor.GetData()),
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		logger:       logger,
	}, nil
}

// Predict copies the tensor into the bound input and runs the session. Runs
// are serialised because the input and output buffers are shared; waiting for
// the previous run ends when ctx is done. A run in progress is not interruptible.
func (o *ONNX) Predict(ctx context.Context, tensor *imageprocessor.Tensor) (float64, error) {
	if len(tensor.Data) != o.inputSize {
		return 0, fmt.Errorf("tensor has %d values, model expects %d", len(tensor.Data), o.inputSize)
	}
	if err := o.acquire(ctx); err != nil {
		return 0, err
	}
	defer o.release()

	copy(o.inputTensor.GetData(), tensor.Data)
	if err := o.session.Run(); err != nil {
		return 0, fmt.Errorf("inference failed: %w", err)
	}
	return CheckProbability(float64(o.outputTensor.GetData()[0]))
}

func (o *ONNX) acquire(ctx context.Context) error {
	select {
	case o.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		o.release()
		return err
	}
	return nil
}

func (o *ONNX) release() {
	<-o.slot
}

// Close releases the session, its tensors and the runtime environment.
func (o *ONNX) Close() error {
	o.slot <- struct{}{}
	defer o.release()

	if o.inputTensor != nil {
		o.inputTensor.Destroy()
	}
	if o.outputTensor != nil {
		o.outputTensor.Destroy()
	}
	if o.session != nil {
		o.session.Destroy()
	}
	return ort.DestroyEnvironment()
}
