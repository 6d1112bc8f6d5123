package features

import (
	"fmt"
)

// Target is the encoded target handed to the binner. Classification targets
// carry Classes (a class index per sample) and NClasses >= 1; regression
// targets carry Values and NClasses < 0.
type Target struct {
	NClasses int
	Classes  []int
	Values   []float64
}

// Len returns the number of samples.
func (t Target) Len() int {
	if t.NClasses < 0 {
		return len(t.Values)
	}
	return len(t.Classes)
}

// IsClassification reports whether the target holds class indices.
func (t Target) IsClassification() bool {
	return t.NClasses >= 0
}

// Dataset is the binned, ranker-ready view of the data.
type Dataset struct {
	NSamples int
	NClasses int
	Features []Bins
	// Bins[f][i] is the bin of sample i in feature f.
	Bins    [][]int32
	Classes []int
	Values  []float64
	// Weights is nil for unit weights.
	Weights []float64
}

// NumFeatures returns the number of features.
func (d *Dataset) NumFeatures() int {
	return len(d.Features)
}

// BinCount returns the number of bins of feature f.
func (d *Dataset) BinCount(f int) int {
	return d.Features[f].Count()
}

// Weight returns the weight of sample i.
func (d *Dataset) Weight(i int) float64 {
	if d.Weights == nil {
		return 1
	}
	return d.Weights[i]
}

// Materialize assigns every sample of every feature to its bin.
func (b *Binner) Materialize(bins []Bins, feats []Feature, y Target, weights []float64) (*Dataset, error) {
	if len(bins) != len(feats) {
		return nil, fmt.Errorf("%w: %d bin sets for %d features", ErrInvalidInput, len(bins), len(feats))
	}
	n := y.Len()
	if weights != nil && len(weights) != n {
		return nil, fmt.Errorf("%w: %d weights for %d samples", ErrInvalidInput, len(weights), n)
	}
	if y.IsClassification() {
		for i, c := range y.Classes {
			if c < 0 || (y.NClasses > 0 && c >= y.NClasses) {
				return nil, fmt.Errorf("%w: sample %d has class index %d outside [0, %d)", ErrInvalidInput, i, c, y.NClasses)
			}
		}
	}

	ds := &Dataset{
		NSamples: n,
		NClasses: y.NClasses,
		Features: bins,
		Bins:     make([][]int32, len(feats)),
		Classes:  y.Classes,
		Values:   y.Values,
		Weights:  weights,
	}
	for f, feat := range feats {
		if feat.Len() != n {
			return nil, fmt.Errorf("%w: feature %q has %d samples and y has %d", ErrInvalidInput, feat.Name, feat.Len(), n)
		}
		if feat.Type != bins[f].Type {
			return nil, fmt.Errorf("%w: feature %q is %s but its bins are %s", ErrInvalidInput, feat.Name, feat.Type, bins[f].Type)
		}
		col := make([]int32, n)
		if feat.Type == Continuous {
			for i, v := range feat.Values {
				col[i] = int32(bins[f].Index(v))
			}
		} else {
			index := make(map[string]int32, len(bins[f].Categories))
			for k, c := range bins[f].Categories {
				index[c] = int32(k + 1)
			}
			for i, s := range feat.Labels {
				col[i] = index[s]
			}
		}
		ds.Bins[f] = col
	}
	return ds, nil
}
