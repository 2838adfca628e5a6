package goreflcore

import (
	"errors"
	"fmt"
)

// Precondition and degeneracy errors returned by the reconstruction core.
var (
	// ErrQMismatch indicates measurements whose Q grids are not identical.
	ErrQMismatch = errors.New("goreflcore: Q points do not match")

	// ErrDuplicateProfile indicates two measurements sharing the same reference profile.
	ErrDuplicateProfile = errors.New("goreflcore: two equal sld profiles found")

	// ErrNotEnoughMeasurements indicates fewer than two usable constraints at a Q point.
	ErrNotEnoughMeasurements = errors.New("goreflcore: not enough measurements to determine the reflection")

	// ErrNoRealSolution indicates a negative discriminant in the two measurement solve.
	ErrNoRealSolution = errors.New("goreflcore: the quadratic equation has no real solution")

	// ErrIllConditioned indicates a three measurement system above the condition threshold.
	ErrIllConditioned = errors.New("goreflcore: linear constraints are ill conditioned")

	// ErrDegenerateIndex indicates a Q point where the fronting or backing index is not real.
	ErrDegenerateIndex = errors.New("goreflcore: degenerate refractive index")

	ErrInterpolationOrder = errors.New("goreflcore: polynomial order must be between 0 and 6")
	ErrUnsupportedOrder   = errors.New("goreflcore: interpolator only supports polynomial order of 1")
	ErrLengthMismatch     = errors.New("goreflcore: length mismatch")
	ErrQSpacing           = errors.New("goreflcore: Q spacing is too low for the given thickness")
	ErrColumns            = errors.New("goreflcore: data has less than two columns")
	ErrInvalidConfig      = errors.New("goreflcore: invalid configuration")
	ErrRoughness          = errors.New("goreflcore: roughness not implemented")
	ErrSurroundTooHigh    = errors.New("goreflcore: fronting/backing SLD values are too high")
	ErrEmptyData          = errors.New("goreflcore: no data points")
)

// PointError records a Q point dropped from a reconstruction.
type PointError struct {
	Q   float64
	Err error
}

func (e *PointError) Error() string {
	return fmt.Sprintf("could not reconstruct the phase for q = %g: %v", e.Q, e.Err)
}

func (e *PointError) Unwrap() error {
	return e.Err
}
