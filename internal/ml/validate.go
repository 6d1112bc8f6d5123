package ml

import "fmt"

// validateInitScore checks the baseline score against the class count. A
// legal score for a single-class problem carries no information and is
// dropped.
func validateInitScore(s *initScore, nClasses, nSamples int) (*initScore, error) {
	if s == nil {
		return nil, nil
	}
	if s.rows != nSamples {
		return nil, fmt.Errorf("%w: init_score has %d rows and y has %d samples", ErrShape, s.rows, nSamples)
	}

	switch {
	case nClasses == 1:
		if s.rank == 1 || s.cols == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: init_score has %d columns but y has a single class", ErrShape, s.cols)
	case nClasses >= 3:
		if s.rank != 2 {
			return nil, fmt.Errorf("%w: init_score must have one column per class for %d classes", ErrShape, nClasses)
		}
		if s.cols != nClasses {
			return nil, fmt.Errorf("%w: init_score has %d columns for %d classes", ErrShape, s.cols, nClasses)
		}
	default:
		if s.rank != 1 {
			return nil, fmt.Errorf("%w: init_score must be one score per sample, got %d columns", ErrShape, s.cols)
		}
	}
	return s, nil
}
