// Package formula turns aggregation formulas such as "sum(amount)" into the
// aggregation kind and the concrete column vectors it operates on.
package formula

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"github.com/yungbote/datasetagg/internal/aggregations"
	"github.com/yungbote/datasetagg/internal/aggregator"
	"github.com/yungbote/datasetagg/internal/domain/aggregates"
	"github.com/yungbote/datasetagg/internal/frame"
)

// Arg is one argument of a formula: a column reference or a numeric literal.
type Arg struct {
	Column  string
	Literal any
}

func (a Arg) IsLiteral() bool { return a.Column == "" }

// Expr is a parsed formula.
type Expr struct {
	Kind aggregations.Kind
	Args []Arg
}

// Parse reads "kind(arg, ...)". Arguments are bare column names, quoted
// column names ('unit price' or "unit price") or numeric literals.
func Parse(raw string) (Expr, error) {
	const op = "formula.parse"
	s := strings.TrimSpace(raw)
	open := strings.IndexByte(s, '(')
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return Expr{}, aggregates.Errorf(aggregates.CodeValidation, op, "malformed formula %q", raw)
	}
	kind, err := aggregations.ParseKind(s[:open])
	if err != nil {
		return Expr{}, err
	}
	body := strings.TrimSpace(s[open+1 : len(s)-1])
	parts, err := splitArgs(body)
	if err != nil {
		return Expr{}, aggregates.Wrap(aggregates.CodeValidation, op, err)
	}
	expr := Expr{Kind: kind}
	for _, p := range parts {
		arg, err := parseArg(p)
		if err != nil {
			return Expr{}, aggregates.Errorf(aggregates.CodeValidation, op, "formula %q: %v", raw, err)
		}
		expr.Args = append(expr.Args, arg)
	}
	return expr, nil
}

func splitArgs(body string) ([]string, error) {
	if body == "" {
		return nil, nil
	}
	var (
		out   []string
		cur   strings.Builder
		quote rune
	)
	for _, r := range body {
		switch {
		case quote != 0:
			cur.WriteRune(r)
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
			cur.WriteRune(r)
		case r == ',':
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		case r == '(' || r == ')':
			return nil, aggregates.Errorf(aggregates.CodeValidation, "formula.parse", "nested expressions are not supported")
		default:
			cur.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, aggregates.Errorf(aggregates.CodeValidation, "formula.parse", "unterminated quote")
	}
	return append(out, strings.TrimSpace(cur.String())), nil
}

func parseArg(p string) (Arg, error) {
	if p == "" {
		return Arg{}, aggregates.Errorf(aggregates.CodeValidation, "formula.parse", "empty argument")
	}
	if n := len(p); n >= 2 && (p[0] == '\'' || p[0] == '"') && p[n-1] == p[0] {
		return Arg{Column: p[1 : n-1]}, nil
	}
	if i, err := strconv.ParseInt(p, 10, 64); err == nil {
		return Arg{Literal: i}, nil
	}
	if f, err := strconv.ParseFloat(p, 64); err == nil {
		return Arg{Literal: f}, nil
	}
	for _, r := range p {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' || r == '-') {
			return Arg{}, aggregates.Errorf(aggregates.CodeValidation, "formula.parse", "invalid column reference %q", p)
		}
	}
	return Arg{Column: p}, nil
}

// Resolver is the default aggregator.ColumnResolver.
type Resolver struct{}

var _ aggregator.ColumnResolver = Resolver{}

func NewResolver() Resolver { return Resolver{} }

// Resolve parses f and materialises its arguments against source. Literals
// are broadcast to the length of source. A formula without arguments yields
// one non-null marker per source row, so count() counts rows.
func (Resolver) Resolve(_ context.Context, ds aggregator.Dataset, f, name string, source *frame.Frame) ([]frame.Series, error) {
	const op = "formula.resolve"
	expr, err := Parse(f)
	if err != nil {
		return nil, err
	}
	if source == nil {
		source = frame.Empty()
	}
	if len(expr.Args) == 0 {
		return []frame.Series{constant(name, int64(1), source.Len())}, nil
	}
	out := make([]frame.Series, 0, len(expr.Args))
	for _, a := range expr.Args {
		if a.IsLiteral() {
			out = append(out, constant(name, a.Literal, source.Len()))
			continue
		}
		s, err := source.Series(a.Column)
		if err != nil {
			dsID := ""
			if ds != nil {
				dsID = ds.ID().String()
			}
			return nil, aggregates.Errorf(aggregates.CodeValidation, op, "formula %q references unknown column %q (dataset %s)", f, a.Column, dsID)
		}
		out = append(out, s)
	}
	return out, nil
}

func constant(name string, v any, n int) frame.Series {
	vals := make([]any, n)
	for i := range vals {
		vals[i] = v
	}
	return frame.Series{Name: name, Values: vals}
}
