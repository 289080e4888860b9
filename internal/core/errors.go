package core

import (
	"fmt"

	"siting_service/internal/domain/model"
)

// ValidationError reports a malformed or logically inconsistent request. It is
// raised before any external call and is never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + e.Reason
}

// UpstreamFetchError reports a raster provider failure for a required layer.
type UpstreamFetchError struct {
	Layer model.RasterLayer
	Err   error
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("failed to fetch layer %s: %v", e.Layer, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error {
	return e.Err
}

// NoDataError reports a successful fetch that yielded zero samples for the
// requested region and time range.
type NoDataError struct {
	Layer model.RasterLayer
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("no data for layer %s in the requested region and time range", e.Layer)
}

// InsufficientDataError reports too few samples for K-fold cross-validation.
// The orchestrator absorbs it and falls back to composite-only scoring.
type InsufficientDataError struct {
	Samples  int
	Required int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient samples for training: have %d, need %d", e.Samples, e.Required)
}

// ModelTrainingError reports that every hyperparameter candidate failed.
// Recovered the same way as InsufficientDataError.
type ModelTrainingError struct {
	Candidates int
}

func (e *ModelTrainingError) Error() string {
	return fmt.Sprintf("model training failed: all %d hyperparameter candidates failed", e.Candidates)
}

// EmptySetError reports selection over zero samples. Earlier checks should make
// this unreachable, so it is treated as an internal error.
type EmptySetError struct{}

func (e *EmptySetError) Error() string {
	return "cannot select an optimal point from an empty sample set"
}

// ConfigurationError reports an invalid engine configuration value.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + e.Reason
}
