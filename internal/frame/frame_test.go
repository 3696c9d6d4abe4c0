package frame

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/yungbote/datasetagg/internal/domain/aggregates"
)

func TestNewRejectsUndeclaredAndDuplicateColumns(t *testing.T) {
	if _, err := New([]string{"a"}, []Row{{"a": 1, "b": 2}}); !aggregates.IsCode(err, aggregates.CodeValidation) {
		t.Fatalf("undeclared column: want validation got=%v", err)
	}
	if _, err := New([]string{"a", "a"}, nil); !aggregates.IsCode(err, aggregates.CodeValidation) {
		t.Fatalf("duplicate column: want validation got=%v", err)
	}
}

func TestNewFillsMissingAndNormalizes(t *testing.T) {
	f := MustNew([]string{"a", "b"}, Row{"a": 3})
	if f.Value(0, "b") != nil {
		t.Fatalf("missing value: want nil got=%v", f.Value(0, "b"))
	}
	if _, ok := f.Value(0, "a").(int64); !ok {
		t.Fatalf("int should normalize to int64, got %T", f.Value(0, "a"))
	}
}

func TestFromRecordsColumnOrder(t *testing.T) {
	f := FromRecords([]map[string]any{{"b": 10, "a": 1}, {"c": true}})
	got := f.Columns()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("columns: want=%v got=%v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("columns: want=%v got=%v", want, got)
		}
	}
}

func TestWithColumnStampsEveryRow(t *testing.T) {
	f := MustNew([]string{"a"}, Row{"a": 1}, Row{"a": 2})
	g := f.WithColumn("pid", "x")
	if g.Columns()[1] != "pid" {
		t.Fatalf("appended column: got=%v", g.Columns())
	}
	for i := 0; i < g.Len(); i++ {
		if g.Value(i, "pid") != "x" {
			t.Fatalf("row %d not stamped", i)
		}
	}
	if f.HasColumn("pid") {
		t.Fatalf("WithColumn mutated its receiver")
	}
	h := g.WithColumn("a", 0)
	if h.Columns()[0] != "a" || h.Value(1, "a") != int64(0) {
		t.Fatalf("existing column should be overwritten in place: %s", h)
	}
}

func TestDropSelectFilter(t *testing.T) {
	f := MustNew([]string{"a", "b", "c"}, Row{"a": 1, "b": 2, "c": 3}, Row{"a": 4, "b": 5, "c": 6})
	d := f.Drop("b", "zzz")
	if got := d.Columns(); len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("Drop: got=%v", got)
	}
	s, err := f.Select("c", "a")
	if err != nil || s.Columns()[0] != "c" {
		t.Fatalf("Select: cols=%v err=%v", s.Columns(), err)
	}
	if _, err := f.Select("nope"); err == nil {
		t.Fatalf("Select unknown column should fail")
	}
	kept := f.Filter(func(r Row) bool { return r["a"] == int64(4) })
	if kept.Len() != 1 || kept.Value(0, "c") != int64(6) {
		t.Fatalf("Filter: %s", kept)
	}
}

func TestConcatUnionsColumns(t *testing.T) {
	a := MustNew([]string{"x", "y"}, Row{"x": 1, "y": 2})
	b := MustNew([]string{"y", "z"}, Row{"y": 3, "z": 4})
	c := Concat(a, nil, b)
	want := MustNew([]string{"x", "y", "z"}, Row{"x": 1, "y": 2}, Row{"y": 3, "z": 4})
	if !Equal(c, want) {
		t.Fatalf("Concat: want=%s got=%s", want, c)
	}
}

func TestEqualNumericAcrossKinds(t *testing.T) {
	a := MustNew([]string{"v"}, Row{"v": 3})
	b := MustNew([]string{"v"}, Row{"v": 3.0})
	if !Equal(a, b) {
		t.Fatalf("3 and 3.0 should compare equal")
	}
	c := MustNew([]string{"v"}, Row{"v": "3"})
	if Equal(a, c) {
		t.Fatalf("number and string should differ")
	}
}

func TestJSONRoundTripKeepsTypesAndOrder(t *testing.T) {
	f := MustNew([]string{"b", "a", "n"}, Row{"b": 10, "a": "x", "n": nil}, Row{"b": 2.5, "a": "y", "n": true})
	raw, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Frame
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !Equal(f, &back) {
		t.Fatalf("round trip: want=%s got=%s", f, &back)
	}
	if _, ok := back.Value(0, "b").(int64); !ok {
		t.Fatalf("integers should stay int64, got %T", back.Value(0, "b"))
	}
}

func TestEncodeDecodeRow(t *testing.T) {
	raw, err := EncodeRow(Row{"a": 1, "b": "s", "c": 1.5}, []string{"a", "c"})
	if err != nil {
		t.Fatalf("EncodeRow: %v", err)
	}
	r, err := DecodeRow(raw)
	if err != nil {
		t.Fatalf("DecodeRow: %v", err)
	}
	if r["a"] != int64(1) || r["c"] != 1.5 {
		t.Fatalf("decoded: %v", r)
	}
	if _, ok := r["b"]; ok {
		t.Fatalf("unselected column should not be encoded")
	}
}

func TestEncodeRowKeepsFloatKind(t *testing.T) {
	raw, err := EncodeRow(Row{"mean": 5.0, "big": 1e21, "bad": math.NaN()}, []string{"mean", "big", "bad"})
	if err != nil {
		t.Fatalf("EncodeRow: %v", err)
	}
	r, err := DecodeRow(raw)
	if err != nil {
		t.Fatalf("DecodeRow: %v", err)
	}
	if v, ok := r["mean"].(float64); !ok || v != 5 {
		t.Fatalf("integral float: got %v (%T)", r["mean"], r["mean"])
	}
	if v, ok := r["big"].(float64); !ok || v != 1e21 {
		t.Fatalf("large float: got %v (%T)", r["big"], r["big"])
	}
	if r["bad"] != nil {
		t.Fatalf("NaN should encode as null, got %v", r["bad"])
	}
}

func TestFromSeriesLengthMismatch(t *testing.T) {
	if _, err := FromSeries(NewSeries("a", 1, 2), NewSeries("b", 1)); err == nil {
		t.Fatalf("expected length mismatch error")
	}
	f, err := FromSeries(NewSeries("a", 1, 2), NewSeries("b", "x", "y"))
	if err != nil || f.Len() != 2 || f.Value(1, "b") != "y" {
		t.Fatalf("FromSeries: f=%s err=%v", f, err)
	}
}

func TestGroupKeyExactAboveFloatPrecision(t *testing.T) {
	lo := Row{"a": int64(9007199254740992)}
	hi := Row{"a": int64(9007199254740993)}
	if GroupKey(lo, []string{"a"}) == GroupKey(hi, []string{"a"}) {
		t.Fatalf("2^53 and 2^53+1 must not share a key")
	}
	if GroupKey(Row{"a": 1}, []string{"a"}) != GroupKey(Row{"a": 1.0}, []string{"a"}) {
		t.Fatalf("1 and 1.0 should share a key")
	}
	if GroupKey(Row{"a": 1.5}, []string{"a"}) == GroupKey(Row{"a": 1}, []string{"a"}) {
		t.Fatalf("1.5 and 1 must differ")
	}
	if GroupKey(Row{"a": math.Ldexp(1, 63)}, []string{"a"}) == GroupKey(Row{"a": int64(math.MaxInt64)}, []string{"a"}) {
		t.Fatalf("2^63 as float is outside int64 and must not collide with MaxInt64")
	}
}

func TestEqualExactForLargeIntegers(t *testing.T) {
	a := MustNew([]string{"v"}, Row{"v": int64(9007199254740992)})
	b := MustNew([]string{"v"}, Row{"v": int64(9007199254740993)})
	if Equal(a, b) {
		t.Fatalf("distinct int64 values above 2^53 compared equal")
	}
}
