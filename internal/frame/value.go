package frame

import (
	"encoding/json"
	"math"
	"strconv"
)

// Normalize maps a Go value onto the small set of types a Frame stores:
// nil, bool, string, int64 and float64. Integer kinds collapse to int64,
// float32 widens to float64 and json.Number resolves to int64 when it is
// integral. Other values pass through untouched.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil, bool, string, int64, float64:
		return t
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		if t > math.MaxInt64 {
			return float64(t)
		}
		return int64(t)
	case float32:
		return float64(t)
	case json.Number:
		if i, err := strconv.ParseInt(string(t), 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(string(t), 64); err == nil {
			return f
		}
		return string(t)
	default:
		return v
	}
}

// ToFloat reports the numeric value of v. ok is false for nil and non-numeric values.
func ToFloat(v any) (float64, bool) {
	switch t := Normalize(v).(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

// ExactInt reports v as an int64 when it is an integer, or a float64 with an
// integral value that int64 represents exactly.
func ExactInt(v any) (int64, bool) {
	switch t := Normalize(v).(type) {
	case int64:
		return t, true
	case float64:
		if t == math.Trunc(t) && t >= -(1<<63) && t < 1<<63 {
			return int64(t), true
		}
	}
	return 0, false
}

// IsNull reports whether v is a missing value. NaN counts as missing.
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	if f, ok := v.(float64); ok && math.IsNaN(f) {
		return true
	}
	return false
}

// ValuesEqual compares two cell values. Numbers compare by value across int64
// and float64; nulls are equal to each other.
func ValuesEqual(a, b any) bool {
	a, b = Normalize(a), Normalize(b)
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	ia, aInt := ExactInt(a)
	ib, bInt := ExactInt(b)
	if aInt && bInt {
		return ia == ib
	}
	fa, aNum := ToFloat(a)
	fb, bNum := ToFloat(b)
	if aNum || bNum {
		return aNum && bNum && fa == fb
	}
	switch ta := a.(type) {
	case string:
		tb, ok := b.(string)
		return ok && ta == tb
	case bool:
		tb, ok := b.(bool)
		return ok && ta == tb
	default:
		ra, errA := json.Marshal(a)
		rb, errB := json.Marshal(b)
		return errA == nil && errB == nil && string(ra) == string(rb)
	}
}
