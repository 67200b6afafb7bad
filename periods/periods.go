package periods

import (
	"slices"
	"strings"
	"time"
)

// default comparator for time operations.
// Once defined, it hides details of intervals and periods creation
var periodComparator = NewTimeComparator()

// NewTimeInterval returns an interval with optional bounds, nil meaning unbounded
func NewTimeInterval(minTime, maxTime *time.Time) Interval[time.Time] {
	return periodComparator.NewInterval(minTime, maxTime)
}

// Period is a set of moments, a moment being a time interval.
// For instance, a fact held from 1999 to 2021 and since 2023.
// It is the temporal domain of validity values.
type Period struct {
	// elements are sorted separated non empty intervals.
	// No element means empty period
	elements []Interval[time.Time]
}

// NewPeriod returns a period that contains the intervals
func NewPeriod(intervals ...Interval[time.Time]) Period {
	return Period{elements: periodComparator.Union(intervals...)}
}

// NewEmptyPeriod returns an empty period
func NewEmptyPeriod() Period {
	return Period{}
}

// IsEmptyPeriod returns true for an empty period or nil (assumed then to be empty)
func (p *Period) IsEmptyPeriod() bool {
	return p == nil || len(p.elements) == 0
}

// AsIntervals returns the period as a sorted set of separated intervals
func (p *Period) AsIntervals() []Interval[time.Time] {
	if p == nil {
		return nil
	}

	return slices.Clone(p.elements)
}

// Contains returns true if moment is in the period
func (p *Period) Contains(moment time.Time) bool {
	if p.IsEmptyPeriod() {
		return false
	}

	for _, element := range p.elements {
		if periodComparator.Contains(element, moment) {
			return true
		}
	}

	return false
}

// Equal returns true for periods with the same moments
func (p *Period) Equal(other Period) bool {
	if p == nil {
		return other.IsEmptyPeriod()
	}

	return slices.EqualFunc(p.elements, other.elements, func(a, b Interval[time.Time]) bool {
		return periodComparator.CompareInterval(a, b) == 0
	})
}

// AddInterval adds an interval to the period, keeping elements separated
func (p *Period) AddInterval(i Interval[time.Time]) {
	if p == nil || i.IsEmpty() {
		return
	}

	p.elements = periodComparator.Union(append(slices.Clone(p.elements), i)...)
}

// Intersects returns true if p and other share a moment
func (p *Period) Intersects(other Period) bool {
	if p.IsEmptyPeriod() || other.IsEmptyPeriod() {
		return false
	}

	common := Period{elements: slices.Clone(p.elements)}
	common.Intersection(other)
	return !common.IsEmptyPeriod()
}

// Intersection keeps moments both in p and other.
// If p = union of p_i and other = union of o_j,
// then result is union over i and j of (p_i inter o_j)
func (p *Period) Intersection(other Period) {
	if p.IsEmptyPeriod() {
		return
	} else if other.IsEmptyPeriod() {
		p.elements = nil
		return
	}

	var union []Interval[time.Time]
	for _, current := range p.elements {
		for _, otherInterval := range other.elements {
			if value := periodComparator.Intersection(current, otherInterval); !value.IsEmpty() {
				union = append(union, value)
			}
		}
	}

	p.elements = periodComparator.Union(union...)
}

// String returns the intervals joined with U
func (p *Period) String() string {
	if p.IsEmptyPeriod() {
		return "[]"
	}

	values := make([]string, len(p.elements))
	for index, element := range p.elements {
		values[index] = element.String()
	}

	return strings.Join(values, " U ")
}
