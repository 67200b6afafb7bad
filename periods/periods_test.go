package periods_test

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zefrenchwan/txl.git/periods"
)

const layout = "2006-01-02T15:04:05"

func interval(t *testing.T, begin, end int) periods.Interval[time.Time] {
	t.Helper()
	result, err := periods.NewTimeComparator().NewFiniteInterval(hour(begin), hour(end))
	if err != nil {
		t.Fatalf("invalid interval: %s", err.Error())
	}

	return result
}

func TestPeriodsIntersection(t *testing.T) {
	first := interval(t, 0, 10)
	second := interval(t, 20, 30)
	period := periods.NewPeriod(second, first)
	if len(period.AsIntervals()) != 2 {
		t.Fatal("separated intervals should stay separated")
	}

	since := hour(15)
	other := periods.NewPeriod(periods.NewTimeInterval(&since, nil))
	if !period.Intersects(other) {
		t.Error("periods share [20, 30)")
	} else if len(period.AsIntervals()) != 2 {
		t.Error("intersects should not change the period")
	}

	period.Intersection(other)
	if !period.Equal(periods.NewPeriod(second)) {
		t.Errorf("unexpected intersection %s", period.String())
	}

	if period.Intersects(periods.NewPeriod(first)) {
		t.Error("[0, 10) and [20, 30) are separated")
	}

	period.Intersection(periods.NewEmptyPeriod())
	if !period.IsEmptyPeriod() {
		t.Error("intersection with empty should be empty")
	}
}

func TestPeriodAddJoinsContiguousIntervals(t *testing.T) {
	until, since := hour(0), hour(10)
	period := periods.NewPeriod(periods.NewTimeInterval(nil, &until))
	period.AddInterval(periods.NewTimeInterval(&since, nil))
	if len(period.AsIntervals()) != 2 {
		t.Fatal("expected two intervals")
	} else if period.Contains(hour(5)) || !period.Contains(hour(-5)) || !period.Contains(hour(10)) {
		t.Errorf("unexpected period %s", period.String())
	}

	period.AddInterval(interval(t, 0, 10))
	intervals := period.AsIntervals()
	if len(intervals) != 1 || !intervals[0].IsFull() {
		t.Errorf("filling the gap should give full period, got %s", period.String())
	}
}

func TestPeriodSerde(t *testing.T) {
	until := hour(-10)
	values := []periods.Period{
		periods.NewEmptyPeriod(),
		periods.NewPeriod(periods.NewTimeInterval(nil, nil)),
		periods.NewPeriod(periods.NewTimeInterval(nil, &until), interval(t, 0, 10), interval(t, 20, 30)),
	}

	for _, value := range values {
		serialized := periods.SerializePeriod(value, layout)
		if len(serialized) != len(value.AsIntervals()) {
			t.Errorf("expected one value per interval, got %v", serialized)
		}

		reverse, err := periods.DeserializePeriod(serialized, layout)
		if err != nil {
			t.Errorf("cannot read %v: %s", serialized, err.Error())
		} else if !reverse.Equal(value) {
			t.Errorf("expected %s, got %s", value.String(), reverse.String())
		}
	}

	serialized := periods.SerializePeriod(values[2], layout)
	if serialized[0] != "]-oo;2023-12-31T14:00:00[" || serialized[1] != "[2024-01-01T00:00:00;2024-01-01T10:00:00[" {
		t.Errorf("unexpected serialization %v", serialized)
	}

	full := periods.SerializePeriod(values[1], layout)
	if len(full) != 1 || full[0] != "]-oo;+oo[" {
		t.Errorf("unexpected serialization %v", full)
	}
}

func TestInvalidPeriods(t *testing.T) {
	invalids := [][]string{
		{"2024-01-01T00:00:00"},
		{"(2024-01-01T00:00:00;+oo["},
		{"[yesterday;+oo["},
		{"[2024-01-02T00:00:00;2024-01-01T00:00:00["},
	}

	for _, invalid := range invalids {
		if value, err := periods.DeserializePeriod(invalid, layout); err == nil {
			t.Errorf("%v should fail", invalid)
		} else if !value.IsEmptyPeriod() {
			t.Errorf("%v should give empty period on error", invalid)
		}
	}

	_, err := periods.DeserializePeriod([]string{"[yesterday;+oo["}, layout)
	if !errors.Is(err, periods.ErrInvalidPeriod) {
		t.Errorf("expected invalid period, got %s", err.Error())
	}
}
