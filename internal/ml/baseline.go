package ml

import (
	"fmt"
	"math"

	"fast-interactions/internal/dataset"
	"fast-interactions/internal/objective"

	"gonum.org/v1/gonum/mat"
)

// Baseline is an optional prior prediction the interactions are measured
// against. It is one of FittedClassifier, FittedRegressor or RawScores.
type Baseline interface {
	isBaseline()
}

// ProbabilityModel predicts class probabilities, one column per class.
type ProbabilityModel interface {
	PredictProba(X []dataset.Column) (*mat.Dense, error)
}

// ValueModel predicts values on the target's natural scale.
type ValueModel interface {
	Predict(X []dataset.Column) ([]float64, error)
}

// FittedClassifier is a fitted classification model. Classes is its class
// catalog in column order; y labels are matched against it in their
// canonical string form (numbers formatted with strconv 'g').
type FittedClassifier struct {
	Classes []string
	Model   ProbabilityModel
}

// FittedRegressor is a fitted regression model.
type FittedRegressor struct {
	Model ValueModel
}

// RawScores are precomputed scores on the link scale: a Vector (one score per
// sample) or a Matrix (one column per class). Exactly one must be set.
type RawScores struct {
	Vector []float64
	Matrix *mat.Dense
}

func (FittedClassifier) isBaseline() {}
func (FittedRegressor) isBaseline()  {}
func (RawScores) isBaseline()        {}

// probabilityClip keeps logits and log probabilities finite.
const probabilityClip = 1e-15

// initScore is a baseline score array, row-major rows x cols. rank is 1 for a
// per-sample vector and 2 for a matrix.
type initScore struct {
	rank int
	rows int
	cols int
	data []float64
}

func scoresFromVector(v []float64) *initScore {
	return &initScore{rank: 1, rows: len(v), cols: 1, data: v}
}

func scoresFromMatrix(m *mat.Dense) *initScore {
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		data = append(data, m.RawRowView(i)...)
	}
	return &initScore{rank: 2, rows: r, cols: c, data: data}
}

func (s *initScore) finite() error {
	for i, v := range s.data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: init score %g at row %d is not finite", ErrInput, v, i/s.cols)
		}
	}
	return nil
}

// baselineScores turns the baseline into scores on the link scale.
func baselineScores(b Baseline, X []dataset.Column, nClasses int, link objective.Link) (*initScore, error) {
	switch b := b.(type) {
	case nil:
		return nil, nil

	case RawScores:
		var s *initScore
		switch {
		case b.Vector != nil && b.Matrix != nil:
			return nil, fmt.Errorf("%w: raw scores must be a vector or a matrix, not both", ErrInput)
		case b.Vector != nil:
			s = scoresFromVector(b.Vector)
		case b.Matrix != nil:
			s = scoresFromMatrix(b.Matrix)
		default:
			return nil, nil
		}
		if err := s.finite(); err != nil {
			return nil, err
		}
		return s, nil

	case FittedClassifier:
		proba, err := b.Model.PredictProba(X)
		if err != nil {
			return nil, fmt.Errorf("%w: baseline classifier: %w", ErrEngine, err)
		}
		_, c := proba.Dims()
		if c != len(b.Classes) {
			return nil, fmt.Errorf("%w: baseline classifier returned %d probability columns for %d classes", ErrShape, c, len(b.Classes))
		}
		return probabilityScores(proba, nClasses), nil

	case FittedRegressor:
		pred, err := b.Model.Predict(X)
		if err != nil {
			return nil, fmt.Errorf("%w: baseline regressor: %w", ErrEngine, err)
		}
		scores := make([]float64, len(pred))
		for i, v := range pred {
			scores[i] = objective.InverseLink(link, v)
			if math.IsNaN(scores[i]) || math.IsInf(scores[i], 0) {
				return nil, fmt.Errorf("%w: baseline prediction %g at row %d is outside the %s link domain", ErrInput, v, i, link)
			}
		}
		return scoresFromVector(scores), nil

	default:
		return nil, fmt.Errorf("%w: unsupported baseline %T", ErrInput, b)
	}
}

// probabilityScores converts probabilities to link scores: the logit of the
// positive class for two classes, log probabilities otherwise.
func probabilityScores(proba *mat.Dense, nClasses int) *initScore {
	r, c := proba.Dims()
	clip := func(p float64) float64 {
		return math.Min(math.Max(p, probabilityClip), 1-probabilityClip)
	}

	if nClasses == 2 && c == 2 {
		scores := make([]float64, r)
		for i := range scores {
			p := clip(proba.At(i, 1))
			scores[i] = math.Log(p / (1 - p))
		}
		return scoresFromVector(scores)
	}

	logs := mat.NewDense(r, c, nil)
	logs.Apply(func(_, _ int, p float64) float64 { return math.Log(clip(p)) }, proba)
	return scoresFromMatrix(logs)
}
