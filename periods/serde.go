package periods

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	// LEFT_INFINITE starts an interval with no min
	LEFT_INFINITE = "]-oo"
	// RIGHT_INFINITE ends an interval with no max
	RIGHT_INFINITE = "+oo["
	// INTERVAL_SEPARATOR separates min and max of a serialized interval
	INTERVAL_SEPARATOR = ";"
)

// ErrInvalidPeriod is returned for text that is not a serialized period
var ErrInvalidPeriod = errors.New("invalid period")

// SerializeInterval returns the interval as [min;max[, or ]-oo and +oo[ for unbounded sides.
// Empty interval is ];[
func SerializeInterval[T any](i Interval[T], format func(T) string) string {
	if i.empty {
		return "];["
	}

	left, right := LEFT_INFINITE, RIGHT_INFINITE
	if !i.minInfinite {
		left = "[" + format(i.min)
	}

	if !i.maxInfinite {
		right = format(i.max) + "["
	}

	return left + INTERVAL_SEPARATOR + right
}

// SerializePeriod returns the period as a slice, one value per interval, moments using layout
func SerializePeriod(p Period, layout string) []string {
	result := make([]string, 0, len(p.elements))
	for _, element := range p.elements {
		result = append(result, SerializeInterval(element, func(moment time.Time) string {
			return moment.UTC().Format(layout)
		}))
	}

	return result
}

// DeserializePeriod reads the intervals of a serialized period.
// Moments are read with the first layout that fits
func DeserializePeriod(values []string, layouts ...string) (Period, error) {
	intervals := make([]Interval[time.Time], 0, len(values))
	for _, value := range values {
		interval, err := deserializeTimeInterval(strings.TrimSpace(value), layouts)
		if err != nil {
			return NewEmptyPeriod(), err
		}

		intervals = append(intervals, interval)
	}

	return NewPeriod(intervals...), nil
}

// deserializeTimeInterval reads an interval written by SerializeInterval
func deserializeTimeInterval(value string, layouts []string) (Interval[time.Time], error) {
	if value == "];[" {
		return periodComparator.NewEmptyInterval(), nil
	}

	left, right, found := strings.Cut(value, INTERVAL_SEPARATOR)
	if !found {
		return periodComparator.NewEmptyInterval(), errors.Wrapf(ErrInvalidPeriod, "no separator in %q", value)
	}

	var minTime, maxTime *time.Time
	if left != LEFT_INFINITE {
		if !strings.HasPrefix(left, "[") {
			return periodComparator.NewEmptyInterval(), errors.Wrapf(ErrInvalidPeriod, "invalid min in %q", value)
		}

		moment, err := parseMoment(strings.TrimPrefix(left, "["), layouts)
		if err != nil {
			return periodComparator.NewEmptyInterval(), err
		}

		minTime = &moment
	}

	if right != RIGHT_INFINITE {
		if !strings.HasSuffix(right, "[") {
			return periodComparator.NewEmptyInterval(), errors.Wrapf(ErrInvalidPeriod, "invalid max in %q", value)
		}

		moment, err := parseMoment(strings.TrimSuffix(right, "["), layouts)
		if err != nil {
			return periodComparator.NewEmptyInterval(), err
		}

		maxTime = &moment
	}

	if minTime != nil && maxTime != nil && !minTime.Before(*maxTime) {
		return periodComparator.NewEmptyInterval(), errors.Wrapf(ErrEmptyInterval, "%q", value)
	}

	return NewTimeInterval(minTime, maxTime), nil
}

func parseMoment(value string, layouts []string) (time.Time, error) {
	for _, layout := range layouts {
		if moment, err := time.Parse(layout, value); err == nil {
			return moment.UTC(), nil
		}
	}

	return time.Time{}, errors.Wrapf(ErrInvalidPeriod, "invalid moment %q", value)
}
