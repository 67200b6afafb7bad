package validity

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zefrenchwan/txl.git/geometry"
)

const (
	// BOUND_SERDE_FORMAT is the format of finite bounds in text
	BOUND_SERDE_FORMAT = "2006-01-02T15:04:05"
	// BOUND_PRINT_FORMAT adds fractional seconds, if any, to BOUND_SERDE_FORMAT
	BOUND_PRINT_FORMAT = "2006-01-02T15:04:05.999999999"
	// PAST_VALUE is the text for unbounded past
	PAST_VALUE = "-oo"
	// FUTURE_VALUE is the text for unbounded future
	FUTURE_VALUE = "+oo"
)

// ErrMalformedInterval is returned when bounds or snapshots do not make a valid interval
var ErrMalformedInterval = errors.New("malformed interval")

type boundKind int8

const (
	pastBound   boundKind = -1
	finiteBound boundKind = 0
	futureBound boundKind = 1
)

// Bound is a moment in time, or unbounded past, or unbounded future.
// Order is unbounded past < any moment < unbounded future.
// Zero value is the zero time, a finite bound
type Bound struct {
	kind   boundKind
	moment time.Time
}

// Past returns the unbounded past
func Past() Bound {
	return Bound{kind: pastBound}
}

// Future returns the unbounded future
func Future() Bound {
	return Bound{kind: futureBound}
}

// At returns a finite bound, stored in UTC
func At(moment time.Time) Bound {
	return Bound{kind: finiteBound, moment: moment.UTC()}
}

// ParseBound reads -oo, +oo or a moment with BOUND_SERDE_FORMAT (RFC3339 accepted too)
func ParseBound(value string) (Bound, error) {
	switch trimmed := strings.TrimSpace(value); trimmed {
	case PAST_VALUE:
		return Past(), nil
	case FUTURE_VALUE:
		return Future(), nil
	default:
		if moment, err := time.Parse(BOUND_SERDE_FORMAT, trimmed); err == nil {
			return At(moment), nil
		}

		moment, err := time.Parse(time.RFC3339, trimmed)
		if err != nil {
			return Bound{}, errors.Wrapf(ErrMalformedInterval, "invalid bound %q", value)
		}

		return At(moment), nil
	}
}

// IsPast returns true for unbounded past
func (b Bound) IsPast() bool {
	return b.kind == pastBound
}

// IsFuture returns true for unbounded future
func (b Bound) IsFuture() bool {
	return b.kind == futureBound
}

// IsFinite returns true for a moment
func (b Bound) IsFinite() bool {
	return b.kind == finiteBound
}

// Time returns the moment, and false for unbounded values
func (b Bound) Time() (time.Time, bool) {
	return b.moment, b.kind == finiteBound
}

// Compare returns a negative value if b < other, 0 if equals, positive value otherwise
func (b Bound) Compare(other Bound) int {
	switch {
	case b.kind < other.kind:
		return -1
	case b.kind > other.kind:
		return 1
	case b.kind != finiteBound:
		return 0
	}

	return b.moment.Compare(other.moment)
}

// Before returns true if b < other
func (b Bound) Before(other Bound) bool {
	return b.Compare(other) < 0
}

// After returns true if b > other
func (b Bound) After(other Bound) bool {
	return b.Compare(other) > 0
}

// Equal returns true for the same bound
func (b Bound) Equal(other Bound) bool {
	return b.Compare(other) == 0
}

// String returns -oo, +oo or the moment with BOUND_PRINT_FORMAT.
// ParseBound reads it back with no precision loss
func (b Bound) String() string {
	switch b.kind {
	case pastBound:
		return PAST_VALUE
	case futureBound:
		return FUTURE_VALUE
	default:
		return b.moment.Format(BOUND_PRINT_FORMAT)
	}
}

func minBound(a, b Bound) Bound {
	if b.Before(a) {
		return b
	}

	return a
}

func maxBound(a, b Bound) Bound {
	if b.After(a) {
		return b
	}

	return a
}

// Snapshot is the region valid from a moment, until next snapshot
type Snapshot struct {
	At     Bound
	Region geometry.Region
}
