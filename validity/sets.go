package validity

import (
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/zefrenchwan/txl.git/geometry"
	"github.com/zefrenchwan/txl.git/periods"
)

// Set is a validity over all space and time: a sparse step function from time to regions.
// Outside its tracks, nothing is valid.
// Invariants are:
// * tracks are not empty, sorted by begin and pairwise disjoint
// * two tracks are never contiguous: contiguous tracks are a single track
// Every operation returns a new normalized set, sets are immutable
type Set struct {
	tracks []Track
}

// EmptySet returns the set valid nowhere, never
func EmptySet() Set {
	return Set{}
}

// OmnipresentSet returns the set valid everywhere, always
func OmnipresentSet() Set {
	return Set{tracks: []Track{OmnipresentTrack()}}
}

// NewSet returns the set containing only that track
func NewSet(track Track) Set {
	if track.IsEmpty() {
		return EmptySet()
	}

	return Set{tracks: []Track{track}}
}

// Unify returns the union of tracks as a normalized set.
// Empty tracks are ignored, an omnipresent track absorbs the others
func Unify(tracks ...Track) Set {
	operands := make([][]segment, 0, len(tracks))
	for _, track := range tracks {
		if track.IsOmnipresent() {
			return OmnipresentSet()
		} else if !track.IsEmpty() {
			operands = append(operands, track.segments())
		}
	}

	switch len(operands) {
	case 0:
		return EmptySet()
	case 1:
		return NewSet(tracks[slices.IndexFunc(tracks, func(t Track) bool { return !t.IsEmpty() })])
	}

	return Set{tracks: assemble(sweep(operands, unionOf))}
}

// NewSetFromSnapshots builds a set from ordered snapshots, last one being the end.
// Unlike tracks, empty regions are accepted and split the result
func NewSetFromSnapshots(snapshots []Snapshot) (Set, error) {
	if err := checkSnapshots(snapshots); err != nil {
		return EmptySet(), err
	}

	var segments []segment
	for _, value := range snapshotsSegments(snapshots) {
		if !value.region.IsEmpty() {
			segments = append(segments, value)
		}
	}

	return Set{tracks: assemble(segments)}, nil
}

// NewSetFromTracks builds a set from tracks that should already be normalized.
// It is used to load stored sets, and returns an error if tracks overlap or touch
func NewSetFromTracks(tracks []Track) (Set, error) {
	var result []Track
	for index, track := range tracks {
		if track.IsEmpty() {
			continue
		} else if len(result) > 0 && !result[len(result)-1].End().Before(track.Begin()) {
			return EmptySet(), errors.Wrapf(ErrMalformedInterval, "track %d overlaps or touches previous track", index)
		}

		result = append(result, track)
	}

	return Set{tracks: result}, nil
}

// segments returns all the segments of the set, in order
func (s Set) segments() []segment {
	var result []segment
	for _, track := range s.tracks {
		result = append(result, track.segments()...)
	}

	return result
}

// combine applies combiner to the receiver and other
func (s Set) combine(other Set, fn combiner) Set {
	return Set{tracks: assemble(sweep([][]segment{s.segments(), other.segments()}, fn))}
}

// Tracks returns a copy of the tracks of the set
func (s Set) Tracks() []Track {
	return slices.Clone(s.tracks)
}

// IsEmpty returns true for a set valid nowhere, never
func (s Set) IsEmpty() bool {
	return len(s.tracks) == 0
}

// IsOmnipresent returns true for a set valid everywhere, always
func (s Set) IsOmnipresent() bool {
	return len(s.tracks) == 1 && s.tracks[0].IsOmnipresent()
}

// Begin returns the begin of the first track, unbounded future if empty
func (s Set) Begin() Bound {
	if s.IsEmpty() {
		return Future()
	}

	return s.tracks[0].Begin()
}

// End returns the end of the last track, unbounded past if empty
func (s Set) End() Bound {
	if s.IsEmpty() {
		return Past()
	}

	return s.tracks[len(s.tracks)-1].End()
}

// Domain returns the moments the set is valid somewhere
func (s Set) Domain() periods.Period {
	result := periods.NewEmptyPeriod()
	for _, track := range s.tracks {
		result.AddInterval(track.Domain())
	}

	return result
}

// Bounds returns the union of all regions of the set
func (s Set) Bounds() geometry.Region {
	result := geometry.Empty()
	for _, track := range s.tracks {
		result = result.Union(track.Bounds())
	}

	return result
}

// BoundsAt returns the region valid at that moment
func (s Set) BoundsAt(moment Bound) geometry.Region {
	for _, track := range s.tracks {
		if track.Contains(moment) {
			return track.BoundsAt(moment)
		}
	}

	return geometry.Empty()
}

// BoundsInInterval returns the union of the regions valid during [from, to)
func (s Set) BoundsInInterval(from, to Bound) geometry.Region {
	return s.RestrictToInterval(from, to).Bounds()
}

// Intersection returns the moments and places both sets are valid
func (s Set) Intersection(other Set) Set {
	switch {
	case s.IsEmpty() || other.IsEmpty():
		return EmptySet()
	case s.IsOmnipresent():
		return other
	case other.IsOmnipresent():
		return s
	}

	return s.combine(other, intersectionOf)
}

// IntersectionTrack is the intersection with the set made of that track
func (s Set) IntersectionTrack(track Track) Set {
	return s.Intersection(NewSet(track))
}

// Union returns the moments and places any set is valid
func (s Set) Union(other Set) Set {
	switch {
	case s.IsOmnipresent() || other.IsOmnipresent():
		return OmnipresentSet()
	case s.IsEmpty():
		return other
	case other.IsEmpty():
		return s
	}

	return s.combine(other, unionOf)
}

// UnionTrack is the union with the set made of that track
func (s Set) UnionTrack(track Track) Set {
	return s.Union(NewSet(track))
}

// Complement returns, during the receiver temporal domain, the places where other is not valid
func (s Set) Complement(other Set) Set {
	switch {
	case s.IsEmpty() || other.IsOmnipresent():
		return EmptySet()
	}

	return s.combine(other, complementOf)
}

// ComplementAll returns the moments and places the receiver is not valid.
// Applied twice, it returns the receiver
func (s Set) ComplementAll() Set {
	switch {
	case s.IsEmpty():
		return OmnipresentSet()
	case s.IsOmnipresent():
		return EmptySet()
	}

	return OmnipresentSet().Complement(s)
}

// Difference returns the moments and places of the receiver where other is not valid
func (s Set) Difference(other Set) Set {
	switch {
	case s.IsEmpty() || other.IsOmnipresent():
		return EmptySet()
	case other.IsEmpty():
		return s
	}

	return s.combine(other, differenceOf)
}

// RestrictToInterval keeps only the moments in [from, to)
func (s Set) RestrictToInterval(from, to Bound) Set {
	var tracks []Track
	for _, track := range s.tracks {
		if clipped := track.RestrictToInterval(from, to); !clipped.IsEmpty() {
			tracks = append(tracks, clipped)
		}
	}

	return Set{tracks: tracks}
}

// MaskOutInterval keeps only the moments outside [from, to)
func (s Set) MaskOutInterval(from, to Bound) Set {
	var tracks []Track
	for _, track := range s.tracks {
		tracks = append(tracks, track.MaskOutInterval(from, to).tracks...)
	}

	return Set{tracks: tracks}
}

// Equal returns true for sets with equal tracks
func (s Set) Equal(other Set) bool {
	return slices.EqualFunc(s.tracks, other.tracks, Track.Equal)
}

// String returns the tracks of the set
func (s Set) String() string {
	if s.IsEmpty() {
		return "[]"
	}

	values := make([]string, len(s.tracks))
	for index, track := range s.tracks {
		values[index] = track.String()
	}

	return "[" + strings.Join(values, ", ") + "]"
}
