// Package dataset holds the raw, untyped inputs of an interaction measurement:
// feature columns, the target column, and loaders that read them from CSV,
// JSON or a remote URL.
//
// Columns are kept exactly as loaded. Typing, cleaning and binning happen later
// in the features package.
package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// Column is one raw feature or target column. Exactly one of Floats or Strings
// is set; a numeric column uses NaN for missing values, a string column uses "".
type Column struct {
	Floats  []float64
	Strings []string
}

// Floats builds a numeric column.
func Floats(v ...float64) Column { return Column{Floats: v} }

// Strings builds a string column.
func Strings(v ...string) Column { return Column{Strings: v} }

// Len returns the number of rows in the column.
func (c Column) Len() int {
	if c.Strings != nil {
		return len(c.Strings)
	}
	return len(c.Floats)
}

// IsNumeric reports whether the column stores float values.
func (c Column) IsNumeric() bool {
	return c.Strings == nil
}

// IsEmpty reports whether neither representation is set.
func (c Column) IsEmpty() bool {
	return c.Floats == nil && c.Strings == nil
}

// FromDense splits a samples x features matrix into numeric columns.
func FromDense(m mat.Matrix) []Column {
	r, c := m.Dims()
	cols := make([]Column, c)
	for j := 0; j < c; j++ {
		vals := make([]float64, r)
		for i := 0; i < r; i++ {
			vals[i] = m.At(i, j)
		}
		cols[j] = Column{Floats: vals}
	}
	return cols
}

// MarshalJSON writes numeric columns as numbers (null for NaN) and string
// columns as strings.
func (c Column) MarshalJSON() ([]byte, error) {
	if !c.IsNumeric() {
		return json.Marshal(c.Strings)
	}
	out := make([]any, len(c.Floats))
	for i, v := range c.Floats {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = nil
			continue
		}
		out[i] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts an array of numbers and nulls (numeric column) or an
// array containing at least one string (string column; numbers are formatted).
func (c *Column) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("column must be a JSON array: %w", err)
	}

	numeric := true
	for _, v := range raw {
		switch v.(type) {
		case float64, nil:
		case string:
			numeric = false
		default:
			return fmt.Errorf("unsupported column value %v", v)
		}
	}

	if numeric {
		vals := make([]float64, len(raw))
		for i, v := range raw {
			if v == nil {
				vals[i] = math.NaN()
				continue
			}
			vals[i] = v.(float64)
		}
		*c = Column{Floats: vals}
		return nil
	}

	vals := make([]string, len(raw))
	for i, v := range raw {
		switch x := v.(type) {
		case string:
			vals[i] = x
		case float64:
			vals[i] = strconv.FormatFloat(x, 'g', -1, 64)
		}
	}
	*c = Column{Strings: vals}
	return nil
}
