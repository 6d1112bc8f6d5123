package ml

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"fast-interactions/internal/dataset"
)

// EncodedTarget is y in dense form: class indices into Catalog for
// classification (NClasses >= 1), floating values for regression
// (NClasses == -1).
type EncodedTarget struct {
	NClasses int
	Catalog  []string
	Indices  []int
	Values   []float64
}

// Len returns the number of samples.
func (e EncodedTarget) Len() int {
	if e.NClasses < 0 {
		return len(e.Values)
	}
	return len(e.Indices)
}

func formatLabel(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// encodeTarget maps y to indices or values according to the resolution.
func encodeTarget(y dataset.Column, res Resolution) (EncodedTarget, error) {
	if !res.Classification {
		values, err := regressionValues(y)
		if err != nil {
			return EncodedTarget{}, err
		}
		return EncodedTarget{NClasses: -1, Values: values}, nil
	}

	labels, err := classLabels(y)
	if err != nil {
		return EncodedTarget{}, err
	}

	catalog := res.Catalog
	if catalog == nil {
		catalog = sortedCatalog(y, labels)
	}
	index := make(map[string]int, len(catalog))
	for i, c := range catalog {
		index[c] = i
	}

	indices := make([]int, len(labels))
	for i, l := range labels {
		k, ok := index[l]
		if !ok {
			return EncodedTarget{}, fmt.Errorf("%w: y contains label %q that is not one of the baseline classes %v", ErrLookup, l, catalog)
		}
		indices[i] = k
	}
	return EncodedTarget{NClasses: len(catalog), Catalog: catalog, Indices: indices}, nil
}

func regressionValues(y dataset.Column) ([]float64, error) {
	values := make([]float64, y.Len())
	if y.IsNumeric() {
		copy(values, y.Floats)
	} else {
		for i, s := range y.Strings {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: y value %q at row %d is not a number", ErrInput, s, i)
			}
			values[i] = v
		}
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: y value %g at row %d is not finite", ErrInput, v, i)
		}
	}
	return values, nil
}

func classLabels(y dataset.Column) ([]string, error) {
	if !y.IsNumeric() {
		return y.Strings, nil
	}
	labels := make([]string, len(y.Floats))
	for i, v := range y.Floats {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%w: y has a missing label at row %d", ErrInput, i)
		}
		labels[i] = formatLabel(v)
	}
	return labels, nil
}

// sortedCatalog returns the distinct labels of y, numerically sorted for a
// numeric y and lexically otherwise.
func sortedCatalog(y dataset.Column, labels []string) []string {
	seen := make(map[string]float64)
	for i, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		if y.IsNumeric() {
			seen[l] = y.Floats[i]
		} else {
			seen[l] = 0
		}
	}
	catalog := make([]string, 0, len(seen))
	for l := range seen {
		catalog = append(catalog, l)
	}
	if y.IsNumeric() {
		sort.Slice(catalog, func(i, j int) bool { return seen[catalog[i]] < seen[catalog[j]] })
	} else {
		sort.Strings(catalog)
	}
	return catalog
}
