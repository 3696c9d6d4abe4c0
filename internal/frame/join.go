package frame

import (
	"github.com/yungbote/datasetagg/internal/domain/aggregates"
)

// GroupJoin left-joins right onto left using groups as a composite key.
//
// Every row of left is kept in order. For a left row whose key matches a row
// of right, right's non-key columns are written onto it, replacing values
// left already had for those columns. Left rows without a match keep their
// own values and get nil for columns only right has. Rows of right whose key
// does not occur in left are dropped.
//
// With no groups both frames form a single implicit group: the first row of
// right (if any) is written onto every row of left.
//
// right must hold at most one row per key.
func GroupJoin(groups []string, left, right *Frame) (*Frame, error) {
	const op = "frame.group_join"
	if left == nil {
		return nil, aggregates.NewError(aggregates.CodeValidation, op, "left frame is nil", nil)
	}
	if right == nil {
		right = Empty()
	}
	for _, g := range groups {
		if !left.HasColumn(g) {
			return nil, aggregates.Errorf(aggregates.CodeValidation, op, "left frame lacks group column %q", g)
		}
		if !right.HasColumn(g) {
			return nil, aggregates.Errorf(aggregates.CodeValidation, op, "right frame lacks group column %q", g)
		}
	}

	isGroup := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		isGroup[g] = struct{}{}
	}
	var carried []string
	for _, c := range right.columns {
		if _, ok := isGroup[c]; !ok {
			carried = append(carried, c)
		}
	}
	cols := left.Columns()
	for _, c := range carried {
		if !left.HasColumn(c) {
			cols = append(cols, c)
		}
	}

	lookup := func(Row) (Row, bool) { return nil, false }
	if len(groups) == 0 {
		if right.Len() > 0 {
			first := right.rows[0]
			lookup = func(Row) (Row, bool) { return first, true }
		}
	} else {
		byKey := make(map[string]Row, right.Len())
		for _, r := range right.rows {
			k := GroupKey(r, groups)
			if _, dup := byKey[k]; dup {
				return nil, aggregates.Errorf(aggregates.CodeValidation, op, "right frame has duplicate key for groups %v", groups)
			}
			byKey[k] = r
		}
		lookup = func(r Row) (Row, bool) {
			m, ok := byKey[GroupKey(r, groups)]
			return m, ok
		}
	}

	rows := make([]Row, left.Len())
	for i := range left.rows {
		r := left.Row(i)
		if match, ok := lookup(r); ok {
			for _, c := range carried {
				r[c] = match[c]
			}
		}
		rows[i] = r
	}
	return New(cols, rows)
}
