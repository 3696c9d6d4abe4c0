// Package aggregations is the catalog of aggregation strategies.
//
// Kinds form a closed set mapped to constructors in a table that is built once
// at package initialisation and never modified. A Strategy is bound to a result
// column name, a list of group columns and the source frame it aggregates.
// Strategies whose partial results combine algebraically also implement Reducer.
package aggregations

import (
	"sort"
	"strings"

	"github.com/yungbote/datasetagg/internal/domain/aggregates"
	"github.com/yungbote/datasetagg/internal/frame"
)

type Kind string

const (
	KindSum    Kind = "sum"
	KindCount  Kind = "count"
	KindMin    Kind = "min"
	KindMax    Kind = "max"
	KindMean   Kind = "mean"
	KindMedian Kind = "median"
)

// Strategy computes an aggregation over the source frame it was built with.
type Strategy interface {
	Kind() Kind
	Name() string
	Groups() []string
	// Eval aggregates columns, which must be aligned with the source rows when
	// the strategy is grouped. The result has one row per distinct group key,
	// ordered by first appearance, with columns groups... followed by Name().
	// Without groups the result is a single row holding only Name().
	Eval(columns []frame.Series) (*frame.Frame, error)
}

// Reducer is implemented by strategies that fold new values into a previously
// materialised result without revisiting the rows that produced it. It is only
// defined for ungrouped results: prev holds at most one row.
type Reducer interface {
	Reduce(prev *frame.Frame, columns []frame.Series) (*frame.Frame, error)
}

// Constructor binds a strategy to its result name, groups and source frame.
type Constructor func(name string, groups []string, source *frame.Frame) Strategy

var registry = map[Kind]Constructor{
	KindSum: func(n string, g []string, s *frame.Frame) Strategy {
		return &reducible{base: newBase(KindSum, n, g, s), fold: sumValues, merge: addValues}
	},
	KindCount: func(n string, g []string, s *frame.Frame) Strategy {
		return &reducible{base: newBase(KindCount, n, g, s), fold: countValues, merge: addValues}
	},
	KindMin: func(n string, g []string, s *frame.Frame) Strategy {
		return &reducible{base: newBase(KindMin, n, g, s), fold: minValues, merge: minOf}
	},
	KindMax: func(n string, g []string, s *frame.Frame) Strategy {
		return &reducible{base: newBase(KindMax, n, g, s), fold: maxValues, merge: maxOf}
	},
	KindMean: func(n string, g []string, s *frame.Frame) Strategy {
		return &evalOnly{base: newBase(KindMean, n, g, s), fold: meanValues}
	},
	KindMedian: func(n string, g []string, s *frame.Frame) Strategy {
		return &evalOnly{base: newBase(KindMedian, n, g, s), fold: medianValues}
	},
}

// ParseKind resolves a kind name case-insensitively.
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := registry[k]; !ok {
		return "", aggregates.Errorf(aggregates.CodeUnsupportedAggregation, "aggregations.parse_kind", "unsupported aggregation %q", raw)
	}
	return k, nil
}

// Kinds lists the registered kinds in name order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// New builds the strategy registered for kind.
func New(kind Kind, name string, groups []string, source *frame.Frame) (Strategy, error) {
	ctor, ok := registry[kind]
	if !ok {
		return nil, aggregates.Errorf(aggregates.CodeUnsupportedAggregation, "aggregations.new", "unsupported aggregation %q", kind)
	}
	if strings.TrimSpace(name) == "" {
		return nil, aggregates.NewError(aggregates.CodeValidation, "aggregations.new", "aggregation name is required", nil)
	}
	if source == nil {
		source = frame.Empty(groups...)
	}
	return ctor(name, groups, source), nil
}

// CanReduce reports whether s implements Reducer.
func CanReduce(s Strategy) bool {
	_, ok := s.(Reducer)
	return ok
}

type foldFunc func(values []any) (any, error)

type base struct {
	kind   Kind
	name   string
	groups []string
	source *frame.Frame
}

func newBase(kind Kind, name string, groups []string, source *frame.Frame) base {
	return base{kind: kind, name: name, groups: append([]string(nil), groups...), source: source}
}

func (b *base) Kind() Kind       { return b.kind }
func (b *base) Name() string     { return b.name }
func (b *base) Groups() []string { return append([]string(nil), b.groups...) }

func (b *base) eval(columns []frame.Series, fold foldFunc) (*frame.Frame, error) {
	const op = "aggregations.eval"
	if len(columns) == 0 {
		return nil, aggregates.Errorf(aggregates.CodeValidation, op, "%s(%s): no columns to aggregate", b.kind, b.name)
	}
	values := columns[0].Values
	if len(b.groups) == 0 {
		v, err := fold(values)
		if err != nil {
			return nil, aggregates.Wrap(aggregates.CodeValidation, op, err)
		}
		return frame.New([]string{b.name}, []frame.Row{{b.name: v}})
	}

	if len(values) != b.source.Len() {
		return nil, aggregates.Errorf(aggregates.CodeValidation, op, "column %q has %d values, source has %d rows", columns[0].Name, len(values), b.source.Len())
	}
	for _, g := range b.groups {
		if !b.source.HasColumn(g) {
			return nil, aggregates.Errorf(aggregates.CodeValidation, op, "source lacks group column %q", g)
		}
	}

	var order []string
	keys := map[string]frame.Row{}
	buckets := map[string][]any{}
	for i := 0; i < b.source.Len(); i++ {
		r := b.source.Row(i)
		k := frame.GroupKey(r, b.groups)
		if _, ok := keys[k]; !ok {
			order = append(order, k)
			keyRow := make(frame.Row, len(b.groups)+1)
			for _, g := range b.groups {
				keyRow[g] = r[g]
			}
			keys[k] = keyRow
		}
		buckets[k] = append(buckets[k], values[i])
	}

	rows := make([]frame.Row, 0, len(order))
	for _, k := range order {
		v, err := fold(buckets[k])
		if err != nil {
			return nil, aggregates.Wrap(aggregates.CodeValidation, op, err)
		}
		r := keys[k]
		r[b.name] = v
		rows = append(rows, r)
	}
	return frame.New(append(b.Groups(), b.name), rows)
}

type evalOnly struct {
	base
	fold foldFunc
}

func (s *evalOnly) Eval(columns []frame.Series) (*frame.Frame, error) {
	return s.eval(columns, s.fold)
}

type reducible struct {
	base
	fold  foldFunc
	merge func(a, b any) (any, error)
}

func (s *reducible) Eval(columns []frame.Series) (*frame.Frame, error) {
	return s.eval(columns, s.fold)
}

// Reduce folds columns into the single row of prev, keeping prev's other columns.
func (s *reducible) Reduce(prev *frame.Frame, columns []frame.Series) (*frame.Frame, error) {
	const op = "aggregations.reduce"
	if len(s.groups) > 0 {
		return nil, aggregates.Errorf(aggregates.CodeValidation, op, "%s(%s): reduce is undefined for grouped aggregations", s.kind, s.name)
	}
	if prev == nil || prev.Len() == 0 {
		return s.Eval(columns)
	}
	if prev.Len() > 1 {
		return nil, aggregates.Errorf(aggregates.CodeValidation, op, "%s(%s): previous result has %d rows, want 1", s.kind, s.name, prev.Len())
	}
	if len(columns) == 0 {
		return nil, aggregates.Errorf(aggregates.CodeValidation, op, "%s(%s): no columns to aggregate", s.kind, s.name)
	}
	delta, err := s.fold(columns[0].Values)
	if err != nil {
		return nil, aggregates.Wrap(aggregates.CodeValidation, op, err)
	}
	var old any
	if prev.HasColumn(s.name) {
		old = prev.Value(0, s.name)
	}
	merged, err := s.merge(old, delta)
	if err != nil {
		return nil, aggregates.Wrap(aggregates.CodeValidation, op, err)
	}
	return prev.WithColumn(s.name, merged), nil
}
