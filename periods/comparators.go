package periods

import "time"

// TypedComparator defines a compare function over a type.
// Intervals are built and combined through it
type TypedComparator[T any] struct {
	comparator func(T, T) int
}

// NewTypedComparator returns an interval manager based on a compare function.
// Contract for compareFn(a, b) is:
// * if a < b, return a negative value
// * if a > b, return a positive value
// * if a == b, return 0
func NewTypedComparator[T any](compareFn func(T, T) int) TypedComparator[T] {
	return TypedComparator[T]{comparator: compareFn}
}

// NewTimeComparator returns a tool to deal with intervals of time
func NewTimeComparator() TypedComparator[time.Time] {
	return NewTypedComparator(TimeComparator)
}

// Compare decorates the comparator function
func (t TypedComparator[T]) Compare(a, b T) int {
	return t.comparator(a, b)
}

// TimeComparator compares time using their UTC values
func TimeComparator(a, b time.Time) int {
	return a.UTC().Compare(b.UTC())
}
