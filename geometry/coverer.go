package geometry

import (
	"github.com/cockroachdb/errors"
	"github.com/golang/geo/s2"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// CovererConfig drives the approximation of geometries by cells.
// Higher max level means smaller cells, so more precise regions
type CovererConfig struct {
	MinLevel int
	MaxLevel int
	LevelMod int
	MaxCells int
}

// DefaultCovererConfig is about 150 meters precision for points, 64 cells per shape
func DefaultCovererConfig() CovererConfig {
	return CovererConfig{
		MinLevel: 0,
		MaxLevel: 16,
		LevelMod: 1,
		MaxCells: 64,
	}
}

// Coverer turns geometries into regions
type Coverer struct {
	rc       *s2.RegionCoverer
	maxLevel int
}

var defaultCoverer = NewCoverer(DefaultCovererConfig())

// NewCoverer returns a coverer for that config. Invalid values fall back to defaults
func NewCoverer(cfg CovererConfig) *Coverer {
	defaults := DefaultCovererConfig()
	if cfg.MaxLevel <= 0 || cfg.MaxLevel > s2.MaxLevel {
		cfg.MaxLevel = defaults.MaxLevel
	}

	if cfg.MinLevel < 0 || cfg.MinLevel > cfg.MaxLevel {
		cfg.MinLevel = defaults.MinLevel
	}

	if cfg.LevelMod < 1 || cfg.LevelMod > 3 {
		cfg.LevelMod = defaults.LevelMod
	}

	if cfg.MaxCells <= 0 {
		cfg.MaxCells = defaults.MaxCells
	}

	return &Coverer{
		rc: &s2.RegionCoverer{
			MinLevel: cfg.MinLevel,
			MaxLevel: cfg.MaxLevel,
			LevelMod: cfg.LevelMod,
			MaxCells: cfg.MaxCells,
		},
		maxLevel: cfg.MaxLevel,
	}
}

// ParseWKT reads a WKT geometry with the default coverer
func ParseWKT(value string) (Region, error) {
	return defaultCoverer.FromWKT(value)
}

// ParseGeoJSON reads a GeoJSON geometry with the default coverer
func ParseGeoJSON(data []byte) (Region, error) {
	return defaultCoverer.FromGeoJSON(data)
}

// FromGeom converts a geometry with the default coverer
func FromGeom(g geom.T) (Region, error) {
	return defaultCoverer.FromGeom(g)
}

// FromWKT parses a WKT string and covers the geometry
func (c *Coverer) FromWKT(value string) (Region, error) {
	g, err := wkt.Unmarshal(value)
	if err != nil {
		return Region{}, errors.Wrap(err, "invalid wkt")
	}

	return c.FromGeom(g)
}

// FromGeoJSON parses a GeoJSON geometry and covers it
func (c *Coverer) FromGeoJSON(data []byte) (Region, error) {
	var g geom.T
	if err := geojson.Unmarshal(data, &g); err != nil {
		return Region{}, errors.Wrap(err, "invalid geojson")
	}

	return c.FromGeom(g)
}

// FromRect covers a lat/lng rectangle given in degrees
func (c *Coverer) FromRect(box BoundingBox) Region {
	rect := s2.RectFromLatLng(s2.LatLngFromDegrees(box.MinLat, box.MinLng))
	rect = rect.AddPoint(s2.LatLngFromDegrees(box.MaxLat, box.MaxLng))
	return fromCells(c.rc.Covering(rect))
}

// FromGeom converts points, lines, polygons and their collections.
// Coordinates are X = longitude, Y = latitude, in degrees
func (c *Coverer) FromGeom(g geom.T) (Region, error) {
	if g == nil {
		return Empty(), nil
	}

	switch value := g.(type) {
	case *geom.Point:
		if value.Empty() {
			return Empty(), nil
		}

		return c.point(value.Y(), value.X()), nil
	case *geom.MultiPoint:
		result := Empty()
		for index := 0; index < value.NumPoints(); index++ {
			point := value.Point(index)
			if point.Empty() {
				continue
			}

			result = result.Union(c.point(point.Y(), point.X()))
		}

		return result, nil
	case *geom.LineString:
		return c.lineString(value.Coords())
	case *geom.MultiLineString:
		result := Empty()
		for index := 0; index < value.NumLineStrings(); index++ {
			line, err := c.lineString(value.LineString(index).Coords())
			if err != nil {
				return Empty(), err
			}

			result = result.Union(line)
		}

		return result, nil
	case *geom.Polygon:
		return c.polygon(value)
	case *geom.MultiPolygon:
		result := Empty()
		for index := 0; index < value.NumPolygons(); index++ {
			polygon, err := c.polygon(value.Polygon(index))
			if err != nil {
				return Empty(), err
			}

			result = result.Union(polygon)
		}

		return result, nil
	case *geom.GeometryCollection:
		result := Empty()
		for _, child := range value.Geoms() {
			region, err := c.FromGeom(child)
			if err != nil {
				return Empty(), err
			}

			result = result.Union(region)
		}

		return result, nil
	default:
		return Empty(), errors.Wrapf(ErrUnsupportedGeometry, "type %T", g)
	}
}

// point returns the cell at max level containing the point
func (c *Coverer) point(lat, lng float64) Region {
	id := s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lng)).Parent(c.maxLevel)
	return Region{cells: s2.CellUnion{id}}
}

func (c *Coverer) lineString(coords []geom.Coord) (Region, error) {
	if len(coords) == 0 {
		return Empty(), nil
	} else if len(coords) == 1 {
		return c.point(coords[0].Y(), coords[0].X()), nil
	}

	latLngs := make([]s2.LatLng, len(coords))
	for index, coord := range coords {
		latLngs[index] = s2.LatLngFromDegrees(coord.Y(), coord.X())
	}

	return fromCells(c.rc.Covering(s2.PolylineFromLatLngs(latLngs))), nil
}

// polygon covers the shell and removes the cells fully inside holes
func (c *Coverer) polygon(p *geom.Polygon) (Region, error) {
	if p.Empty() || p.NumLinearRings() == 0 {
		return Empty(), nil
	}

	shell, err := ringLoop(p.LinearRing(0).Coords())
	if err != nil {
		return Empty(), err
	}

	result := fromCells(c.rc.Covering(shell))
	for index := 1; index < p.NumLinearRings(); index++ {
		hole, err := ringLoop(p.LinearRing(index).Coords())
		if err != nil {
			return Empty(), err
		}

		result = result.Difference(fromCells(c.rc.InteriorCovering(hole)))
	}

	return result, nil
}

// ringLoop builds a normalized loop, so that the loop is the smallest side of the ring
func ringLoop(coords []geom.Coord) (*s2.Loop, error) {
	size := len(coords)
	if size >= 2 && coords[0].Equal(geom.XY, coords[size-1]) {
		size--
	}

	if size < 3 {
		return nil, errors.Wrap(ErrUnsupportedGeometry, "ring needs at least three distinct points")
	}

	points := make([]s2.Point, size)
	for index := 0; index < size; index++ {
		points[index] = s2.PointFromLatLng(s2.LatLngFromDegrees(coords[index].Y(), coords[index].X()))
	}

	loop := s2.LoopFromPoints(points)
	loop.Normalize()
	return loop, nil
}
