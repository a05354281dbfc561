package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for the planning error taxonomy. Typed errors below match them
// through errors.Is so callers never need the concrete type.
var (
	ErrInsufficientData = errors.New("insufficient historical data")
	ErrModelTraining    = errors.New("model training failed")
	ErrForecasting      = errors.New("forecasting failed")
	ErrNotTrained       = errors.New("forecast requested before train")
	ErrOutputValidation = errors.New("demand output failed validation")
)

// InsufficientDataError is returned when a series is shorter than required.
type InsufficientDataError struct {
	Got      int
	Required int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient historical data: got %d weekly observations, need at least %d", e.Got, e.Required)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// ModelTrainingError wraps a failed fit of one forecasting backend.
type ModelTrainingError struct {
	Model  string
	Reason string
	Err    error
}

func (e *ModelTrainingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model %s failed to train: %s: %v", e.Model, e.Reason, e.Err)
	}
	return fmt.Sprintf("model %s failed to train: %s", e.Model, e.Reason)
}

func (e *ModelTrainingError) Is(target error) bool { return target == ErrModelTraining }

func (e *ModelTrainingError) Unwrap() error { return e.Err }

// ForecastingError means no usable model could produce a forecast.
type ForecastingError struct {
	Reason string
	Causes []error
}

func (e *ForecastingError) Error() string {
	if len(e.Causes) == 0 {
		return "forecasting failed: " + e.Reason
	}
	parts := make([]string, 0, len(e.Causes))
	for _, c := range e.Causes {
		parts = append(parts, c.Error())
	}
	return fmt.Sprintf("forecasting failed: %s (%s)", e.Reason, strings.Join(parts, "; "))
}

func (e *ForecastingError) Is(target error) bool { return target == ErrForecasting }

// OutputValidationError lists every violated output invariant.
type OutputValidationError struct {
	Violations []string
}

func (e *OutputValidationError) Error() string {
	return "demand output failed validation: " + strings.Join(e.Violations, "; ")
}

func (e *OutputValidationError) Is(target error) bool { return target == ErrOutputValidation }
