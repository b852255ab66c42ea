package predictor

import (
	"errors"
	"fmt"

	"github.com/OldStager01/car-price-predictor/pkg/models"
	"github.com/OldStager01/car-price-predictor/pkg/validation"
)

var (
	// ErrValidation matches every ValidationError.
	ErrValidation = validation.ErrInvalidInput
	// ErrInference matches every InferenceError.
	ErrInference = errors.New("inference failed")
	// ErrUnusableEstimate is the cause when the oracle answers with NaN,
	// an infinity or a negative price.
	ErrUnusableEstimate = errors.New("unusable estimate")
)

// ValidationError reports a missing or uncoercible field. It is raised
// before the oracle is called.
type ValidationError = validation.ValidationError

// InferenceError reports a failed oracle call together with the exact
// request that was sent.
type InferenceError struct {
	Request models.CarAttributes
	Err     error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed for %s: %v", e.Request, e.Err)
}

func (e *InferenceError) Unwrap() []error {
	return []error{ErrInference, e.Err}
}
