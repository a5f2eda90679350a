package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/example/catdog/internal/imageprocessor"
)

// ErrInvalidProbability is returned when a backend yields a score outside [0, 1].
var ErrInvalidProbability = errors.New("classifier returned an invalid probability")

// Classifier scores an image tensor with the probability that it shows a dog.
// Implementations must be safe for concurrent use.
type Classifier interface {
	Predict(ctx context.Context, tensor *imageprocessor.Tensor) (float64, error)
}

// Func adapts a plain function to Classifier.
type Func func(ctx context.Context, tensor *imageprocessor.Tensor) (float64, error)

// Predict calls f.
func (f Func) Predict(ctx context.Context, tensor *imageprocessor.Tensor) (float64, error) {
	return f(ctx, tensor)
}

// CheckProbability rejects NaN and values outside the closed unit interval.
func CheckProbability(p float64) (float64, error) {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidProbability, p)
	}
	return p, nil
}
