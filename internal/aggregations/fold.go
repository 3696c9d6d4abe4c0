package aggregations

import (
	"fmt"
	"math"
	"sort"

	"github.com/yungbote/datasetagg/internal/frame"
)

// numbers returns the non-null values as normalized numbers. allInt is true
// when every value is an int64.
func numbers(values []any) (out []any, allInt bool, err error) {
	allInt = true
	for _, v := range values {
		v = frame.Normalize(v)
		if frame.IsNull(v) {
			continue
		}
		switch v.(type) {
		case int64:
		case float64:
			allInt = false
		default:
			return nil, false, fmt.Errorf("non-numeric value %v (%T)", v, v)
		}
		out = append(out, v)
	}
	return out, allInt, nil
}

// sumValues keeps an integer sum while it fits in int64 and promotes the
// whole sum to float64 once it would overflow.
func sumValues(values []any) (any, error) {
	nums, allInt, err := numbers(values)
	if err != nil {
		return nil, err
	}
	if allInt {
		if s, ok := sumInt64(nums); ok {
			return s, nil
		}
	}
	var s float64
	for _, v := range nums {
		f, _ := frame.ToFloat(v)
		s += f
	}
	return s, nil
}

func sumInt64(nums []any) (int64, bool) {
	var s int64
	for _, v := range nums {
		n := v.(int64)
		if (n > 0 && s > math.MaxInt64-n) || (n < 0 && s < math.MinInt64-n) {
			return 0, false
		}
		s += n
	}
	return s, true
}

func countValues(values []any) (any, error) {
	var n int64
	for _, v := range values {
		if !frame.IsNull(frame.Normalize(v)) {
			n++
		}
	}
	return n, nil
}

func minValues(values []any) (any, error) {
	return extreme(values, func(a, b float64) bool { return a < b })
}

func maxValues(values []any) (any, error) {
	return extreme(values, func(a, b float64) bool { return a > b })
}

func extreme(values []any, better func(a, b float64) bool) (any, error) {
	nums, _, err := numbers(values)
	if err != nil {
		return nil, err
	}
	var best any
	var bestF float64
	for _, v := range nums {
		f, _ := frame.ToFloat(v)
		if best == nil || better(f, bestF) {
			best, bestF = v, f
		}
	}
	return best, nil
}

func meanValues(values []any) (any, error) {
	nums, _, err := numbers(values)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return nil, nil
	}
	var s float64
	for _, v := range nums {
		f, _ := frame.ToFloat(v)
		s += f
	}
	return s / float64(len(nums)), nil
}

func medianValues(values []any) (any, error) {
	nums, _, err := numbers(values)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return nil, nil
	}
	fs := make([]float64, len(nums))
	for i, v := range nums {
		fs[i], _ = frame.ToFloat(v)
	}
	sort.Float64s(fs)
	mid := len(fs) / 2
	if len(fs)%2 == 1 {
		return fs[mid], nil
	}
	return (fs[mid-1] + fs[mid]) / 2, nil
}

// addValues combines two partial sums or counts; a null side contributes nothing.
func addValues(a, b any) (any, error) {
	return sumValues([]any{a, b})
}

func minOf(a, b any) (any, error) { return minValues([]any{a, b}) }
func maxOf(a, b any) (any, error) { return maxValues([]any{a, b}) }
