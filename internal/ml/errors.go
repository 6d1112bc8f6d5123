package ml

import "errors"

// Every error returned by Measure wraps exactly one of these.
var (
	// ErrInput marks malformed, empty or wrong-rank raw input.
	ErrInput = errors.New("ml: invalid input")
	// ErrConflict marks an objective that contradicts the baseline model type.
	ErrConflict = errors.New("ml: objective conflicts with baseline")
	// ErrShape marks an init score whose shape disagrees with the class count.
	ErrShape = errors.New("ml: init score shape mismatch")
	// ErrLookup marks a y label missing from the baseline classifier's classes.
	ErrLookup = errors.New("ml: unknown class label")
	// ErrEngine wraps failures of the binning or ranking collaborators.
	ErrEngine = errors.New("ml: engine failure")
)
