package ml

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"fast-interactions/internal/dataset"
	"fast-interactions/internal/objective"
)

// Resolution is the outcome of target type resolution.
type Resolution struct {
	Objective      objective.Objective
	Classification bool
	Link           objective.Link
	LinkParam      float64
	// Catalog is the authoritative class order of a baseline classifier, or nil.
	Catalog []string
}

type outputKind int

const (
	kindUnset outputKind = iota
	kindRegression
	kindClassification
)

func kindOf(o objective.OutputType) outputKind {
	if o == objective.Classification {
		return kindClassification
	}
	return kindRegression
}

// targetType is the shape of y as inferred from its values.
type targetType int

const (
	targetUnknown targetType = iota
	targetContinuous
	targetBinary
	targetMulticlass
)

func (t targetType) String() string {
	switch t {
	case targetContinuous:
		return "continuous"
	case targetBinary:
		return "binary"
	case targetMulticlass:
		return "multiclass"
	default:
		return "unknown"
	}
}

// typeOfTarget classifies y. Numeric y with a non-integral value is
// continuous; otherwise up to two distinct values is binary and more is
// multiclass. Non-finite numbers make the type unknown. String y whose values
// all parse as numbers is typed as numbers.
func typeOfTarget(y dataset.Column) targetType {
	if y.Len() == 0 {
		return targetUnknown
	}
	y = numericTarget(y)
	distinct := make(map[string]struct{})
	if y.IsNumeric() {
		for _, v := range y.Floats {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return targetUnknown
			}
			if v != math.Trunc(v) {
				return targetContinuous
			}
			distinct[formatLabel(v)] = struct{}{}
		}
	} else {
		for _, s := range y.Strings {
			distinct[s] = struct{}{}
		}
	}
	if len(distinct) <= 2 {
		return targetBinary
	}
	return targetMulticlass
}

type resolveState struct {
	objective string
	baseline  Baseline
	y         dataset.Column

	obj     *objective.Objective
	kind    outputKind
	catalog []string
}

// rule is one step of the resolution cascade. apply runs only when applies
// holds, and later rules must not contradict what earlier ones fixed.
type rule struct {
	name    string
	applies func(*resolveState) bool
	apply   func(*objective.Table, *resolveState) error
}

var resolutionRules = []rule{
	{
		name:    "objective",
		applies: func(s *resolveState) bool { return strings.TrimSpace(s.objective) != "" },
		apply: func(t *objective.Table, s *resolveState) error {
			obj, err := t.Parse(s.objective)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrInput, err)
			}
			s.obj = &obj
			s.kind = kindOf(obj.Output)
			return nil
		},
	},
	{
		name: "classifier baseline",
		applies: func(s *resolveState) bool {
			_, ok := s.baseline.(FittedClassifier)
			return ok
		},
		apply: func(_ *objective.Table, s *resolveState) error {
			if s.kind == kindRegression {
				return fmt.Errorf("%w: objective %s is for regression but the baseline is a classifier", ErrConflict, s.obj.Name)
			}
			clf := s.baseline.(FittedClassifier)
			if clf.Model == nil {
				return fmt.Errorf("%w: baseline classifier has no model", ErrInput)
			}
			if len(clf.Classes) == 0 {
				return fmt.Errorf("%w: baseline classifier has no classes", ErrInput)
			}
			seen := make(map[string]struct{}, len(clf.Classes))
			for _, c := range clf.Classes {
				if _, dup := seen[c]; dup {
					return fmt.Errorf("%w: baseline classifier lists class %q twice", ErrInput, c)
				}
				seen[c] = struct{}{}
			}
			s.kind = kindClassification
			s.catalog = clf.Classes
			return nil
		},
	},
	{
		name: "regressor baseline",
		applies: func(s *resolveState) bool {
			_, ok := s.baseline.(FittedRegressor)
			return ok
		},
		apply: func(_ *objective.Table, s *resolveState) error {
			if s.kind == kindClassification {
				return fmt.Errorf("%w: objective %s is for classification but the baseline is a regressor", ErrConflict, s.obj.Name)
			}
			if s.baseline.(FittedRegressor).Model == nil {
				return fmt.Errorf("%w: baseline regressor has no model", ErrInput)
			}
			s.kind = kindRegression
			return nil
		},
	},
	{
		name: "raw score matrix",
		applies: func(s *resolveState) bool {
			raw, ok := s.baseline.(RawScores)
			return ok && raw.Matrix != nil
		},
		apply: func(_ *objective.Table, s *resolveState) error {
			if s.kind == kindRegression {
				return fmt.Errorf("%w: objective %s is for regression but init_score has one column per class", ErrConflict, s.obj.Name)
			}
			s.kind = kindClassification
			return nil
		},
	},
	{
		name:    "target shape",
		applies: func(s *resolveState) bool { return s.kind == kindUnset },
		apply: func(_ *objective.Table, s *resolveState) error {
			switch typ := typeOfTarget(s.y); typ {
			case targetContinuous:
				s.kind = kindRegression
			case targetBinary:
				s.kind = kindClassification
			case targetMulticlass:
				s.kind = kindClassification
				// A per-sample score vector is evidence of a single output.
				if raw, ok := s.baseline.(RawScores); ok && raw.Vector != nil {
					s.kind = kindRegression
				}
			default:
				return fmt.Errorf("%w: unable to determine the target type of y (%s)", ErrInput, typ)
			}
			return nil
		},
	},
	{
		name:    "default objective",
		applies: func(s *resolveState) bool { return s.obj == nil },
		apply: func(t *objective.Table, s *resolveState) error {
			name := objective.RMSE
			if s.kind == kindClassification {
				name = objective.LogLoss
			}
			obj, err := t.Lookup(name)
			if err != nil {
				return fmt.Errorf("%w: default objective: %w", ErrInput, err)
			}
			s.obj = &obj
			return nil
		},
	},
}

// resolveTarget runs the resolution cascade in order.
func resolveTarget(t *objective.Table, objectiveName string, baseline Baseline, y dataset.Column) (Resolution, error) {
	s := &resolveState{objective: objectiveName, baseline: baseline, y: y}
	for _, r := range resolutionRules {
		if !r.applies(s) {
			continue
		}
		if err := r.apply(t, s); err != nil {
			return Resolution{}, err
		}
	}

	return Resolution{
		Objective:      *s.obj,
		Classification: s.kind == kindClassification,
		Link:           s.obj.Link,
		LinkParam:      s.obj.LinkParam(),
		Catalog:        s.catalog,
	}, nil
}

// numericTarget returns y as a numeric column when every value is a number
// written as a string, and y unchanged otherwise.
func numericTarget(y dataset.Column) dataset.Column {
	if y.IsNumeric() {
		return y
	}
	values := make([]float64, len(y.Strings))
	for i, s := range y.Strings {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return y
		}
		values[i] = v
	}
	return dataset.Floats(values...)
}
