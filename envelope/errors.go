package envelope

import "errors"

var (
	// ErrInvalidParameter is returned when an input is out of its domain:
	// a non-positive std, a grid with fewer than two increments or no
	// dimensions, a negative count, mismatched dimensions.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNumericDegenerate is returned when a blend setting would produce
	// infinite or NaN weights, such as a non-positive soft temperature.
	ErrNumericDegenerate = errors.New("numerically degenerate")
)
