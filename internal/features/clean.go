// Package features turns raw dataset columns into binned features. It resolves
// feature names and types, builds per-feature quantile bin edges and
// materializes the per-sample bin indices the interaction ranker reads.
package features

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"fast-interactions/internal/dataset"
)

// ErrInvalidInput marks malformed raw features or hints.
var ErrInvalidInput = errors.New("features: invalid input")

// Type is the binning treatment of a feature.
type Type int

const (
	Continuous Type = iota
	Nominal
	Ordinal
)

func (t Type) String() string {
	switch t {
	case Continuous:
		return "continuous"
	case Nominal:
		return "nominal"
	case Ordinal:
		return "ordinal"
	default:
		return "Type(" + strconv.Itoa(int(t)) + ")"
	}
}

// ParseType accepts the feature type hints "continuous", "nominal", "ordinal"
// and "auto" (or "" for auto). ok is false for auto.
func ParseType(s string) (t Type, ok bool, err error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Continuous, false, nil
	case "continuous":
		return Continuous, true, nil
	case "nominal":
		return Nominal, true, nil
	case "ordinal":
		return Ordinal, true, nil
	default:
		return Continuous, false, fmt.Errorf("%w: unknown feature type %q", ErrInvalidInput, s)
	}
}

// Feature is a cleaned feature column. Continuous features carry Values (NaN
// for missing); nominal and ordinal features carry Labels ("" for missing).
type Feature struct {
	Name   string
	Type   Type
	Values []float64
	Labels []string
}

// DefaultName is the generated name of the i-th feature.
func DefaultName(i int) string {
	return fmt.Sprintf("feature_%04d", i)
}

// Clean validates raw columns against the expected row count and resolves
// names and types. names and types may be nil; otherwise their length must
// match the number of columns. It returns the cleaned features and the row
// count.
func Clean(X []dataset.Column, names, types []string, nSamples int) ([]Feature, int, error) {
	if names != nil && len(names) != len(X) {
		return nil, 0, fmt.Errorf("%w: %d feature names given for %d features", ErrInvalidInput, len(names), len(X))
	}
	if types != nil && len(types) != len(X) {
		return nil, 0, fmt.Errorf("%w: %d feature types given for %d features", ErrInvalidInput, len(types), len(X))
	}

	out := make([]Feature, len(X))
	for i, col := range X {
		if col.IsEmpty() && nSamples > 0 {
			return nil, 0, fmt.Errorf("%w: feature %d has no values", ErrInvalidInput, i)
		}
		if col.Len() != nSamples {
			return nil, 0, fmt.Errorf("%w: X has %d samples in feature %d and y has %d samples", ErrInvalidInput, col.Len(), i, nSamples)
		}

		name := DefaultName(i)
		if names != nil && strings.TrimSpace(names[i]) != "" {
			name = names[i]
		}

		hint := ""
		if types != nil {
			hint = types[i]
		}
		typ, explicit, err := ParseType(hint)
		if err != nil {
			return nil, 0, fmt.Errorf("feature %q: %w", name, err)
		}

		f, err := cleanColumn(col, typ, explicit)
		if err != nil {
			return nil, 0, fmt.Errorf("feature %q: %w", name, err)
		}
		f.Name = name
		out[i] = f
	}

	return out, nSamples, nil
}

func cleanColumn(col dataset.Column, typ Type, explicit bool) (Feature, error) {
	if col.IsNumeric() {
		if explicit && typ != Continuous {
			labels := make([]string, len(col.Floats))
			for i, v := range col.Floats {
				if !math.IsNaN(v) {
					labels[i] = strconv.FormatFloat(v, 'g', -1, 64)
				}
			}
			return Feature{Type: typ, Labels: labels}, nil
		}
		for _, v := range col.Floats {
			if math.IsInf(v, 0) {
				return Feature{}, fmt.Errorf("%w: infinite value", ErrInvalidInput)
			}
		}
		return Feature{Type: Continuous, Values: col.Floats}, nil
	}

	// String column: continuous when asked to or when every value parses.
	if !explicit || typ == Continuous {
		vals, err := parseFloats(col.Strings)
		if err == nil {
			return Feature{Type: Continuous, Values: vals}, nil
		}
		if explicit {
			return Feature{}, err
		}
		return Feature{Type: Nominal, Labels: col.Strings}, nil
	}
	return Feature{Type: typ, Labels: col.Strings}, nil
}

func parseFloats(cells []string) ([]float64, error) {
	vals := make([]float64, len(cells))
	for i, s := range cells {
		s = strings.TrimSpace(s)
		if s == "" {
			vals[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidInput, s)
		}
		vals[i] = v
	}
	return vals, nil
}
