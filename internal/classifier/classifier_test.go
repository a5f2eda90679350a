package classifier

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/catdog/internal/imageprocessor"
)

func TestCheckProbability(t *testing.T) {
	for _, p := range []float64{0, 0.25, 0.5, 1} {
		got, err := CheckProbability(p)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	for _, p := range []float64{-0.01, 1.0001, math.NaN(), math.Inf(1)} {
		_, err := CheckProbability(p)
		assert.ErrorIs(t, err, ErrInvalidProbability)
	}
}

func TestFuncAdapter(t *testing.T) {
	var c Classifier = Func(func(ctx context.Context, tensor *imageprocessor.Tensor) (float64, error) {
		return 0.75, nil
	})

	p, err := c.Predict(context.Background(), &imageprocessor.Tensor{})
	require.NoError(t, err)
	assert.Equal(t, 0.75, p)
}

func TestONNXPredictGivesUpWaitingForBusySession(t *testing.T) {
	o := &ONNX{slot: make(chan struct{}, 1), inputSize: 3}
	o.slot <- struct{}{}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := o.Predict(ctx, &imageprocessor.Tensor{Data: make([]float32, 3)})
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("predict did not return after the deadline")
	}
	assert.Len(t, o.slot, 1)
}

func TestONNXPredictRejectsCancelledContextBeforeRunning(t *testing.T) {
	o := &ONNX{slot: make(chan struct{}, 1), inputSize: 3}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Predict(ctx, &imageprocessor.Tensor{Data: make([]float32, 3)})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, o.slot)
}

func TestONNXPredictRejectsWrongTensorSize(t *testing.T) {
	o := &ONNX{slot: make(chan struct{}, 1), inputSize: 3}

	_, err := o.Predict(context.Background(), &imageprocessor.Tensor{Data: make([]float32, 2)})

	assert.Error(t, err)
	assert.Empty(t, o.slot)
}
