package geometry

import (
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/golang/geo/s2"
)

// ErrUnsupportedGeometry is returned when a geometry cannot become a region
var ErrUnsupportedGeometry = errors.New("unsupported geometry")

// Region is a set of points on the sphere.
// It is stored as a normalized union of s2 cells, so that two regions
// covering the same cells are equal.
// Region values are immutable: no operation changes its receiver.
type Region struct {
	// cells is the normalized cell union. Nil or empty means empty region
	cells s2.CellUnion
}

// universeCells are the six face cells, that is the whole sphere
var universeCells = func() s2.CellUnion {
	result := make(s2.CellUnion, 6)
	for face := 0; face < 6; face++ {
		result[face] = s2.CellIDFromFace(face)
	}

	return result
}()

// Empty returns the empty region
func Empty() Region {
	return Region{}
}

// Universe returns the region for the entire world
func Universe() Region {
	return Region{cells: universeCells}
}

// fromCells normalizes and wraps a cell union.
// Parameter is owned by the result after that call
func fromCells(cells s2.CellUnion) Region {
	if len(cells) == 0 {
		return Region{}
	}

	cells.Normalize()
	return Region{cells: cells}
}

// FromCellTokens builds a region from s2 cell tokens
func FromCellTokens(tokens []string) (Region, error) {
	cells := make(s2.CellUnion, 0, len(tokens))
	for _, token := range tokens {
		id := s2.CellIDFromToken(strings.TrimSpace(token))
		if !id.IsValid() {
			return Region{}, errors.Newf("invalid cell token %q", token)
		}

		cells = append(cells, id)
	}

	return fromCells(cells), nil
}

// CellTokens returns the tokens of the cells, in cell order
func (r Region) CellTokens() []string {
	result := make([]string, len(r.cells))
	for index, id := range r.cells {
		result[index] = id.ToToken()
	}

	return result
}

// IsEmpty returns true for a region containing no point
func (r Region) IsEmpty() bool {
	return len(r.cells) == 0
}

// IsUniversal returns true for the region covering the whole world
func (r Region) IsUniversal() bool {
	return slices.Equal(r.cells, universeCells)
}

// Equal returns true if both regions cover exactly the same cells
func (r Region) Equal(other Region) bool {
	return slices.Equal(r.cells, other.cells)
}

// Union returns the points in the receiver or in other
func (r Region) Union(other Region) Region {
	switch {
	case r.IsUniversal() || other.IsUniversal():
		return Universe()
	case r.IsEmpty():
		return other
	case other.IsEmpty():
		return r
	}

	return fromCells(s2.CellUnionFromUnion(r.cells, other.cells))
}

// Intersection returns the points both in the receiver and in other
func (r Region) Intersection(other Region) Region {
	switch {
	case r.IsEmpty() || other.IsEmpty():
		return Empty()
	case r.IsUniversal():
		return other
	case other.IsUniversal():
		return r
	}

	return fromCells(s2.CellUnionFromIntersection(r.cells, other.cells))
}

// Difference returns the points of the receiver that are not in other
func (r Region) Difference(other Region) Region {
	switch {
	case r.IsEmpty() || other.IsUniversal():
		return Empty()
	case other.IsEmpty():
		return r
	}

	return fromCells(s2.CellUnionFromDifference(r.cells, other.cells))
}

// Complement returns the world minus the receiver
func (r Region) Complement() Region {
	return Universe().Difference(r)
}

// Contains returns true if every point of other is in the receiver.
// Empty region is contained in any region
func (r Region) Contains(other Region) bool {
	return other.Difference(r).IsEmpty()
}

// Intersects returns true if regions have at least a common point
func (r Region) Intersects(other Region) bool {
	return !r.Intersection(other).IsEmpty()
}

// ContainsPoint returns true if the point (in degrees) is in the region
func (r Region) ContainsPoint(lat, lng float64) bool {
	if r.IsEmpty() {
		return false
	}

	id := s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lng))
	return r.cells.ContainsCellID(id)
}

// BoundingBox is a lat/lng rectangle, in degrees
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// BoundingBox returns the smallest lat/lng rectangle containing the region.
// Empty region returns a zero box
func (r Region) BoundingBox() BoundingBox {
	var result BoundingBox
	if r.IsEmpty() {
		return result
	}

	rect := r.cells.RectBound()
	result.MinLat = rect.Lo().Lat.Degrees()
	result.MinLng = rect.Lo().Lng.Degrees()
	result.MaxLat = rect.Hi().Lat.Degrees()
	result.MaxLng = rect.Hi().Lng.Degrees()
	return result
}

// String returns a short description of the region
func (r Region) String() string {
	switch {
	case r.IsEmpty():
		return "EMPTY"
	case r.IsUniversal():
		return "EVERYWHERE"
	}

	tokens := r.CellTokens()
	if len(tokens) > 8 {
		tokens = append(tokens[:8], "...")
	}

	return "CELLS(" + strings.Join(tokens, ",") + ")"
}
