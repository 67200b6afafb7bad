package validity

import (
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zefrenchwan/txl.git/geometry"
	"github.com/zefrenchwan/txl.git/periods"
)

// piece is a region valid from start until next piece start, or track end
type piece struct {
	start  Bound
	region geometry.Region
}

// Track is a contiguous validity: a region changing over time on [begin, end).
// Region between two snapshots is the earlier snapshot region, there is no interpolation.
// Invariants are:
// * pieces starts are strictly ascending, and all before end
// * only the first start may be unbounded past, only the end may be unbounded future
// * no piece has an empty region
// * consecutive pieces have different regions
// No piece means the empty track.
// Tracks are immutable, they may be shared between goroutines
type Track struct {
	pieces []piece
	end    Bound
}

// EmptyTrack returns the track that is never valid
func EmptyTrack() Track {
	return Track{}
}

// OmnipresentTrack returns the track valid everywhere, at any time
func OmnipresentTrack() Track {
	return Track{
		pieces: []piece{{start: Past(), region: geometry.Universe()}},
		end:    Future(),
	}
}

// checkInterval returns an error if [begin, end) is not a valid domain
func checkInterval(begin, end Bound) error {
	switch {
	case begin.IsFuture():
		return errors.Wrap(ErrMalformedInterval, "begin cannot be unbounded future")
	case end.IsPast():
		return errors.Wrap(ErrMalformedInterval, "end cannot be unbounded past")
	case !begin.Before(end):
		return errors.Wrapf(ErrMalformedInterval, "end %s should be after begin %s", end, begin)
	}

	return nil
}

// NewIntervalTrack returns the universal region on [begin, end)
func NewIntervalTrack(begin, end Bound) (Track, error) {
	return NewTrack(geometry.Universe(), begin, end)
}

// NewRegionTrack returns the region forever. Empty region gives the empty track
func NewRegionTrack(region geometry.Region) Track {
	if region.IsEmpty() {
		return EmptyTrack()
	}

	return Track{pieces: []piece{{start: Past(), region: region}}, end: Future()}
}

// NewTrack returns the region on [begin, end).
// Empty region gives the empty track
func NewTrack(region geometry.Region, begin, end Bound) (Track, error) {
	if err := checkInterval(begin, end); err != nil {
		return EmptyTrack(), err
	} else if region.IsEmpty() {
		return EmptyTrack(), nil
	}

	return Track{pieces: []piece{{start: begin, region: region}}, end: end}, nil
}

// checkSnapshots validates order and positions of unbounded values
func checkSnapshots(snapshots []Snapshot) error {
	if len(snapshots) < 2 {
		return errors.Wrap(ErrMalformedInterval, "at least two snapshots expected")
	}

	last := len(snapshots) - 1
	for index, snapshot := range snapshots {
		switch {
		case snapshot.At.IsPast() && index != 0:
			return errors.Wrapf(ErrMalformedInterval, "snapshot %d: only the first snapshot may be unbounded past", index)
		case snapshot.At.IsFuture() && index != last:
			return errors.Wrapf(ErrMalformedInterval, "snapshot %d: only the last snapshot may be unbounded future", index)
		case index > 0 && !snapshots[index-1].At.Before(snapshot.At):
			return errors.Wrapf(ErrMalformedInterval, "snapshot %d: moments should be strictly ascending", index)
		}
	}

	return nil
}

// snapshotsSegments returns the segments of the snapshots, last snapshot being the end
func snapshotsSegments(snapshots []Snapshot) []segment {
	result := make([]segment, 0, len(snapshots)-1)
	for index := 0; index+1 < len(snapshots); index++ {
		result = append(result, segment{
			from:   snapshots[index].At,
			to:     snapshots[index+1].At,
			region: snapshots[index].Region,
		})
	}

	return result
}

// NewTrackFromSnapshots builds a track from ordered snapshots.
// Track begins at first snapshot and ends at last one, last snapshot region is not used.
// Every other region should not be empty
func NewTrackFromSnapshots(snapshots []Snapshot) (Track, error) {
	if err := checkSnapshots(snapshots); err != nil {
		return EmptyTrack(), err
	}

	for index, snapshot := range snapshots[:len(snapshots)-1] {
		if snapshot.Region.IsEmpty() {
			return EmptyTrack(), errors.Wrapf(ErrMalformedInterval, "snapshot %d: region should not be empty", index)
		}
	}

	tracks := assemble(snapshotsSegments(snapshots))
	if len(tracks) != 1 {
		return EmptyTrack(), errors.AssertionFailedf("contiguous snapshots made %d tracks", len(tracks))
	}

	return tracks[0], nil
}

// segments returns the track as segments
func (t Track) segments() []segment {
	result := make([]segment, len(t.pieces))
	for index, current := range t.pieces {
		result[index] = segment{from: current.start, to: t.pieceEnd(index), region: current.region}
	}

	return result
}

// pieceEnd returns the end of the piece at index
func (t Track) pieceEnd(index int) Bound {
	if index+1 < len(t.pieces) {
		return t.pieces[index+1].start
	}

	return t.end
}

// IsEmpty returns true for a track never valid
func (t Track) IsEmpty() bool {
	return len(t.pieces) == 0
}

// IsOmnipresent returns true for a track valid everywhere at any time
func (t Track) IsOmnipresent() bool {
	return t.IsAlways() && t.IsEverywhere()
}

// IsEverywhere returns true if region is universal during the whole track
func (t Track) IsEverywhere() bool {
	return len(t.pieces) == 1 && t.pieces[0].region.IsUniversal()
}

// IsAlways returns true for a track from unbounded past to unbounded future
func (t Track) IsAlways() bool {
	return !t.IsEmpty() && t.pieces[0].start.IsPast() && t.end.IsFuture()
}

// IsConstant returns true for a non empty track with a single region
func (t Track) IsConstant() bool {
	return len(t.pieces) == 1
}

// Begin returns the first moment of the track, unbounded future for the empty track
func (t Track) Begin() Bound {
	if t.IsEmpty() {
		return Future()
	}

	return t.pieces[0].start
}

// End returns the end (excluded) of the track, unbounded past for the empty track
func (t Track) End() Bound {
	if t.IsEmpty() {
		return Past()
	}

	return t.end
}

// Snapshots returns the snapshots of the track.
// Last snapshot is the end of the track with an empty region, so that
// NewTrackFromSnapshots(t.Snapshots()) is t
func (t Track) Snapshots() []Snapshot {
	if t.IsEmpty() {
		return nil
	}

	result := make([]Snapshot, 0, len(t.pieces)+1)
	for _, current := range t.pieces {
		result = append(result, Snapshot{At: current.start, Region: current.region})
	}

	return append(result, Snapshot{At: t.end, Region: geometry.Empty()})
}

// Domain returns [begin, end) as an interval of time
func (t Track) Domain() periods.Interval[time.Time] {
	if t.IsEmpty() {
		return periods.NewTimeComparator().NewEmptyInterval()
	}

	var minTime, maxTime *time.Time
	if moment, finite := t.Begin().Time(); finite {
		minTime = &moment
	}

	if moment, finite := t.end.Time(); finite {
		maxTime = &moment
	}

	return periods.NewTimeInterval(minTime, maxTime)
}

// Bounds returns the union of all the regions of the track
func (t Track) Bounds() geometry.Region {
	result := geometry.Empty()
	for _, current := range t.pieces {
		result = result.Union(current.region)
	}

	return result
}

// Contains returns true if moment is in [begin, end)
func (t Track) Contains(moment Bound) bool {
	return !t.IsEmpty() && !moment.Before(t.Begin()) && moment.Before(t.end)
}

// BoundsAt returns the region at that moment, empty if track is not defined then
func (t Track) BoundsAt(moment Bound) geometry.Region {
	if !t.Contains(moment) {
		return geometry.Empty()
	}

	// index of the first piece starting after moment
	index := sort.Search(len(t.pieces), func(i int) bool {
		return t.pieces[i].start.After(moment)
	})

	return t.pieces[index-1].region
}

// BoundsInInterval returns the union of the regions valid during [from, to)
func (t Track) BoundsInInterval(from, to Bound) geometry.Region {
	return t.RestrictToInterval(from, to).Bounds()
}

// RestrictToInterval returns the track clipped to [from, to).
// Result begins at max(begin, from) and ends at min(end, to).
// Clipping outside the track, or with from >= to, gives the empty track
func (t Track) RestrictToInterval(from, to Bound) Track {
	if t.IsEmpty() || !from.Before(to) {
		return EmptyTrack()
	}

	begin := maxBound(t.Begin(), from)
	end := minBound(t.end, to)
	if !begin.Before(end) {
		return EmptyTrack()
	}

	var pieces []piece
	for index, current := range t.pieces {
		if !current.start.Before(end) || !t.pieceEnd(index).After(begin) {
			continue
		}

		pieces = append(pieces, piece{start: maxBound(current.start, begin), region: current.region})
	}

	return Track{pieces: pieces, end: end}
}

// MaskOutInterval returns the parts of the track outside [from, to)
func (t Track) MaskOutInterval(from, to Bound) Set {
	if t.IsEmpty() {
		return EmptySet()
	} else if !from.Before(to) {
		return NewSet(t)
	}

	var tracks []Track
	if before := t.RestrictToInterval(Past(), from); !before.IsEmpty() {
		tracks = append(tracks, before)
	}

	if after := t.RestrictToInterval(to, Future()); !after.IsEmpty() {
		tracks = append(tracks, after)
	}

	return Set{tracks: tracks}
}

// Intersection returns the moments and places where both tracks are valid
func (t Track) Intersection(other Track) Set {
	return NewSet(t).IntersectionTrack(other)
}

// Union returns the moments and places where any track is valid
func (t Track) Union(other Track) Set {
	return NewSet(t).UnionTrack(other)
}

// Complement returns, during the track, the places where other is not valid
func (t Track) Complement(other Track) Set {
	return NewSet(t).Complement(NewSet(other))
}

// Difference returns the moments and places of the track where other is not valid
func (t Track) Difference(other Track) Set {
	return NewSet(t).Difference(NewSet(other))
}

// Equal returns true for tracks with same pieces and end
func (t Track) Equal(other Track) bool {
	if len(t.pieces) != len(other.pieces) {
		return false
	} else if t.IsEmpty() {
		return true
	} else if !t.end.Equal(other.end) {
		return false
	}

	for index, current := range t.pieces {
		otherPiece := other.pieces[index]
		if !current.start.Equal(otherPiece.start) || !current.region.Equal(otherPiece.region) {
			return false
		}
	}

	return true
}

// String returns the snapshots of the track
func (t Track) String() string {
	switch {
	case t.IsEmpty():
		return "{}"
	case t.IsOmnipresent():
		return "{ALWAYS EVERYWHERE}"
	}

	values := make([]string, 0, len(t.pieces)+1)
	for _, current := range t.pieces {
		values = append(values, current.start.String()+": "+current.region.String())
	}

	values = append(values, t.end.String())
	return "{" + strings.Join(values, " | ") + "}"
}
