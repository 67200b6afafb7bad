package periods

import (
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"
)

// ErrEmptyInterval is returned when interval parameters would make an empty interval
var ErrEmptyInterval = errors.New("interval parameters would make empty interval")

// Interval is a half open interval [min, max).
// A missing min means unbounded past, a missing max means unbounded future.
// Half open intervals make contiguous values join exactly: [a, b) and [b, c) are [a, c).
type Interval[T any] struct {
	// true for empty interval
	empty bool
	// true if interval is not left bounded
	minInfinite bool
	// min of the interval, if not minInfinite. It belongs to the interval
	min T
	// true if interval is not right bounded
	maxInfinite bool
	// max of the interval, if not maxInfinite. It does not belong to the interval
	max T
}

// IsFull returns true for an unbounded interval
func (i Interval[T]) IsFull() bool {
	return !i.empty && i.maxInfinite && i.minInfinite
}

// IsEmpty is true for an empty interval, false otherwise
func (i Interval[T]) IsEmpty() bool {
	return i.empty
}

// Min returns the min value and true if it is bounded, false if unbounded or empty
func (i Interval[T]) Min() (T, bool) {
	return i.min, !i.empty && !i.minInfinite
}

// Max returns the max value and true if it is bounded, false if unbounded or empty
func (i Interval[T]) Max() (T, bool) {
	return i.max, !i.empty && !i.maxInfinite
}

// String returns the interval using [min, max) notation
func (i Interval[T]) String() string {
	if i.empty {
		return "[]"
	}

	left, right := "-oo", "+oo"
	if !i.minInfinite {
		left = fmt.Sprint(i.min)
	}

	if !i.maxInfinite {
		right = fmt.Sprint(i.max)
	}

	return "[" + left + ", " + right + ")"
}

// NewEmptyInterval returns a new empty interval
func (t TypedComparator[T]) NewEmptyInterval() Interval[T] {
	return Interval[T]{empty: true}
}

// NewFullInterval returns ]-oo, +oo[
func (t TypedComparator[T]) NewFullInterval() Interval[T] {
	return Interval[T]{minInfinite: true, maxInfinite: true}
}

// NewLeftInfiniteInterval returns ]-oo, maxValue)
func (t TypedComparator[T]) NewLeftInfiniteInterval(maxValue T) Interval[T] {
	return Interval[T]{minInfinite: true, max: maxValue}
}

// NewRightInfiniteInterval returns [minValue, +oo[
func (t TypedComparator[T]) NewRightInfiniteInterval(minValue T) Interval[T] {
	return Interval[T]{min: minValue, maxInfinite: true}
}

// NewFiniteInterval returns [minValue, maxValue) or an error if it would be empty
func (t TypedComparator[T]) NewFiniteInterval(minValue, maxValue T) (Interval[T], error) {
	if t.Compare(minValue, maxValue) >= 0 {
		return t.NewEmptyInterval(), errors.Wrapf(ErrEmptyInterval, "[%v, %v)", minValue, maxValue)
	}

	return Interval[T]{min: minValue, max: maxValue}, nil
}

// NewInterval builds an interval from optional bounds, nil meaning unbounded.
// Result is empty when bounds do not make a valid interval
func (t TypedComparator[T]) NewInterval(minValue, maxValue *T) Interval[T] {
	switch {
	case minValue == nil && maxValue == nil:
		return t.NewFullInterval()
	case minValue == nil:
		return t.NewLeftInfiniteInterval(*maxValue)
	case maxValue == nil:
		return t.NewRightInfiniteInterval(*minValue)
	}

	result, err := t.NewFiniteInterval(*minValue, *maxValue)
	if err != nil {
		return t.NewEmptyInterval()
	}

	return result
}

// Contains returns true if value is in the interval
func (t TypedComparator[T]) Contains(i Interval[T], value T) bool {
	if i.empty {
		return false
	}

	if !i.minInfinite && t.Compare(value, i.min) < 0 {
		return false
	}

	return i.maxInfinite || t.Compare(value, i.max) < 0
}

// CompareInterval is a lexicographic order on (min, max), unbounded min first.
// Same sets are equals (return 0), empty is after any other interval
func (t TypedComparator[T]) CompareInterval(a, b Interval[T]) int {
	switch {
	case a.empty && b.empty:
		return 0
	case a.empty:
		return 1
	case b.empty:
		return -1
	}

	switch {
	case a.minInfinite && !b.minInfinite:
		return -1
	case !a.minInfinite && b.minInfinite:
		return 1
	case !a.minInfinite:
		if compare := t.Compare(a.min, b.min); compare != 0 {
			return compare
		}
	}

	switch {
	case a.maxInfinite && b.maxInfinite:
		return 0
	case a.maxInfinite:
		return 1
	case b.maxInfinite:
		return -1
	}

	return t.Compare(a.max, b.max)
}

// Intersection returns the intersection of base and others
func (t TypedComparator[T]) Intersection(base Interval[T], others ...Interval[T]) Interval[T] {
	current := base
	for _, other := range others {
		if current.empty || other.empty {
			return t.NewEmptyInterval()
		} else if other.IsFull() {
			continue
		} else if current.IsFull() {
			current = other
			continue
		}

		result := current
		if !other.minInfinite && (result.minInfinite || t.Compare(other.min, result.min) > 0) {
			result.minInfinite = false
			result.min = other.min
		}

		if !other.maxInfinite && (result.maxInfinite || t.Compare(other.max, result.max) < 0) {
			result.maxInfinite = false
			result.max = other.max
		}

		if !result.minInfinite && !result.maxInfinite && t.Compare(result.min, result.max) >= 0 {
			return t.NewEmptyInterval()
		}

		current = result
	}

	return current
}

// areSeparated returns true if union of a and b is not a single interval.
// Touching intervals [a, b) and [b, c) are not separated
func (t TypedComparator[T]) areSeparated(a, b Interval[T]) bool {
	if a.empty || b.empty {
		return false
	}

	// a ends strictly before b starts, or b ends strictly before a starts
	if !a.maxInfinite && !b.minInfinite && t.Compare(a.max, b.min) < 0 {
		return true
	}

	return !b.maxInfinite && !a.minInfinite && t.Compare(b.max, a.min) < 0
}

// hull returns the smallest interval containing both non empty a and b
func (t TypedComparator[T]) hull(a, b Interval[T]) Interval[T] {
	result := a
	if b.minInfinite || (!result.minInfinite && t.Compare(b.min, result.min) < 0) {
		result.minInfinite = b.minInfinite
		result.min = b.min
	}

	if b.maxInfinite || (!result.maxInfinite && t.Compare(b.max, result.max) > 0) {
		result.maxInfinite = b.maxInfinite
		result.max = b.max
	}

	return result
}

// Union returns the union of intervals as sorted separated intervals.
// Special case: if all intervals are empty, result is empty slice
func (t TypedComparator[T]) Union(values ...Interval[T]) []Interval[T] {
	sorted := make([]Interval[T], 0, len(values))
	for _, value := range values {
		if value.IsFull() {
			return []Interval[T]{value}
		} else if !value.empty {
			sorted = append(sorted, value)
		}
	}

	slices.SortFunc(sorted, t.CompareInterval)

	result := make([]Interval[T], 0, len(sorted))
	for _, value := range sorted {
		last := len(result) - 1
		if last >= 0 && !t.areSeparated(result[last], value) {
			result[last] = t.hull(result[last], value)
		} else {
			result = append(result, value)
		}
	}

	return result
}
