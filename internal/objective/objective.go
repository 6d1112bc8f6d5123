// Package objective maps objective strings such as "rmse" or
// "tweedie_deviance:variance_power=1.3" to a link function, an output kind and
// the loss derivatives used by the interaction ranker.
//
// The lookup table is an explicit, immutable value built by NewTable or
// DefaultTable and passed to whoever needs it; there is no package-level
// registry that callers can mutate.
package objective

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrUnknownObjective is returned when the objective name is not in the table.
	ErrUnknownObjective = errors.New("objective: unknown objective")

	// ErrUnknownParam is returned for a parameter the objective does not accept.
	ErrUnknownParam = errors.New("objective: unknown parameter")

	// ErrMalformedParam is returned when a parameter is not of the form name=value
	// or its value does not parse as a number.
	ErrMalformedParam = errors.New("objective: malformed parameter")

	// ErrParamOutOfRange is returned when a parameter value fails its range check.
	ErrParamOutOfRange = errors.New("objective: parameter out of range")
)

// Link relates a model's raw score to the target's natural scale.
type Link int

const (
	LinkIdentity Link = iota
	LinkLogit
	LinkLog
)

func (l Link) String() string {
	switch l {
	case LinkIdentity:
		return "identity"
	case LinkLogit:
		return "logit"
	case LinkLog:
		return "log"
	default:
		return "Link(" + strconv.Itoa(int(l)) + ")"
	}
}

// OutputType is the problem kind an objective implies.
type OutputType int

const (
	Regression OutputType = iota
	Classification
)

func (o OutputType) String() string {
	switch o {
	case Regression:
		return "regression"
	case Classification:
		return "classification"
	default:
		return "OutputType(" + strconv.Itoa(int(o)) + ")"
	}
}

// Names of the registered objectives.
const (
	RMSE            = "rmse"
	LogLoss         = "log_loss"
	PoissonDeviance = "poisson_deviance"
	TweedieDeviance = "tweedie_deviance"
	GammaDeviance   = "gamma_deviance"
	PseudoHuber     = "pseudo_huber"
	RMSELog         = "rmse_log"
)

// Objective is a parsed objective with every parameter resolved.
type Objective struct {
	Name   string
	Link   Link
	Output OutputType
	Params map[string]float64
}

// Param returns a resolved parameter, or NaN when the objective has none by
// that name.
func (o Objective) Param(name string) float64 {
	if v, ok := o.Params[name]; ok {
		return v
	}
	return math.NaN()
}

// LinkParam is the single parameter that shapes the objective's loss, or NaN
// for objectives without one.
func (o Objective) LinkParam() float64 {
	switch o.Name {
	case TweedieDeviance:
		return o.Param("variance_power")
	case PseudoHuber:
		return o.Param("delta")
	default:
		return math.NaN()
	}
}

// String renders the objective in the same syntax Parse accepts.
func (o Objective) String() string {
	if len(o.Params) == 0 {
		return o.Name
	}
	names := make([]string, 0, len(o.Params))
	for k := range o.Params {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = k + "=" + strconv.FormatFloat(o.Params[k], 'g', -1, 64)
	}
	return o.Name + ":" + strings.Join(parts, ";")
}

// Param describes one tunable objective parameter.
type Param struct {
	Name    string
	Default float64
	Valid   func(float64) bool
	Range   string
}

// Entry is one row of the objective table.
type Entry struct {
	Name   string
	Link   Link
	Output OutputType
	Params []Param
	// Loss builds the loss for resolved parameters.
	Loss func(params map[string]float64) Loss
}

// Table is an immutable objective lookup table.
type Table struct {
	entries map[string]Entry
}

// NewTable builds a table from entries. Names are matched case-insensitively.
func NewTable(entries ...Entry) (*Table, error) {
	t := &Table{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		key := strings.ToLower(e.Name)
		if key == "" || strings.ContainsAny(key, ":;=, \t") {
			return nil, fmt.Errorf("objective: illegal objective name %q", e.Name)
		}
		if _, dup := t.entries[key]; dup {
			return nil, fmt.Errorf("objective: duplicate objective %q", e.Name)
		}
		seen := make(map[string]struct{}, len(e.Params))
		for _, p := range e.Params {
			pk := strings.ToLower(p.Name)
			if _, dup := seen[pk]; dup {
				return nil, fmt.Errorf("objective: duplicate parameter %q for %q", p.Name, e.Name)
			}
			seen[pk] = struct{}{}
		}
		t.entries[key] = e
	}
	return t, nil
}

// DefaultTable returns the standard objectives.
func DefaultTable() *Table {
	t, err := NewTable(
		Entry{Name: RMSE, Link: LinkIdentity, Output: Regression,
			Loss: func(map[string]float64) Loss { return squaredError{} }},
		Entry{Name: LogLoss, Link: LinkLogit, Output: Classification,
			Loss: func(map[string]float64) Loss { return logistic{} }},
		Entry{Name: PoissonDeviance, Link: LinkLog, Output: Regression,
			Loss: func(map[string]float64) Loss { return poisson{} }},
		Entry{Name: TweedieDeviance, Link: LinkLog, Output: Regression,
			Params: []Param{{
				Name:    "variance_power",
				Default: 1.5,
				Valid:   func(v float64) bool { return v > 1 && v < 2 },
				Range:   "(1, 2)",
			}},
			Loss: func(p map[string]float64) Loss { return tweedie{power: p["variance_power"]} }},
		Entry{Name: GammaDeviance, Link: LinkLog, Output: Regression,
			Loss: func(map[string]float64) Loss { return gamma{} }},
		Entry{Name: PseudoHuber, Link: LinkIdentity, Output: Regression,
			Params: []Param{{
				Name:    "delta",
				Default: 1.0,
				Valid:   func(v float64) bool { return v > 0 },
				Range:   "(0, inf)",
			}},
			Loss: func(p map[string]float64) Loss { return pseudoHuber{delta: p["delta"]} }},
		Entry{Name: RMSELog, Link: LinkLog, Output: Regression,
			Loss: func(map[string]float64) Loss { return squaredErrorLog{} }},
	)
	if err != nil {
		panic(err)
	}
	return t
}

// Names lists the registered objectives in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}

// Parse resolves an objective string of the form name[:param=value[;...]].
// Matching is case-insensitive and surrounding whitespace is ignored. Both ';'
// and ',' separate parameters.
func (t *Table) Parse(s string) (Objective, error) {
	name, rest, hasParams := strings.Cut(strings.TrimSpace(s), ":")
	name = strings.TrimSpace(name)

	entry, ok := t.entries[strings.ToLower(name)]
	if !ok {
		return Objective{}, fmt.Errorf("%w: %q", ErrUnknownObjective, s)
	}

	obj := Objective{
		Name:   entry.Name,
		Link:   entry.Link,
		Output: entry.Output,
	}
	if len(entry.Params) > 0 {
		obj.Params = make(map[string]float64, len(entry.Params))
		for _, p := range entry.Params {
			obj.Params[p.Name] = p.Default
		}
	}

	if !hasParams {
		return obj, nil
	}

	given := make(map[string]struct{})
	for _, field := range strings.FieldsFunc(rest, func(r rune) bool { return r == ';' || r == ',' }) {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return Objective{}, fmt.Errorf("%w: %q in %q", ErrMalformedParam, field, s)
		}
		key = strings.ToLower(strings.TrimSpace(key))

		param, ok := findParam(entry.Params, key)
		if !ok {
			return Objective{}, fmt.Errorf("%w: %q for %s", ErrUnknownParam, key, entry.Name)
		}
		if _, dup := given[param.Name]; dup {
			return Objective{}, fmt.Errorf("%w: %s given twice", ErrMalformedParam, param.Name)
		}
		given[param.Name] = struct{}{}

		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return Objective{}, fmt.Errorf("%w: %s=%q is not a number", ErrMalformedParam, param.Name, value)
		}
		if param.Valid != nil && !param.Valid(v) {
			return Objective{}, fmt.Errorf("%w: %s=%g must be in %s", ErrParamOutOfRange, param.Name, v, param.Range)
		}
		obj.Params[param.Name] = v
	}

	return obj, nil
}

// Lookup is Parse for the bare objective name.
func (t *Table) Lookup(name string) (Objective, error) {
	if strings.Contains(name, ":") {
		return Objective{}, fmt.Errorf("%w: %q", ErrUnknownObjective, name)
	}
	return t.Parse(name)
}

// Loss builds the loss for a parsed objective.
func (t *Table) Loss(o Objective) (Loss, error) {
	entry, ok := t.entries[strings.ToLower(o.Name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownObjective, o.Name)
	}
	return entry.Loss(o.Params), nil
}

func findParam(params []Param, key string) (Param, bool) {
	for _, p := range params {
		if strings.ToLower(p.Name) == key {
			return p, true
		}
	}
	return Param{}, false
}
