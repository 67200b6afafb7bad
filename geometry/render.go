package geometry

import (
	"github.com/cockroachdb/errors"
	"github.com/golang/geo/s2"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// Geom returns the region as a multipolygon, one quad per cell.
// Coordinates are X = longitude, Y = latitude, in degrees
func (r Region) Geom() *geom.MultiPolygon {
	result := geom.NewMultiPolygon(geom.XY)
	for _, id := range r.cells {
		cell := s2.CellFromCellID(id)
		ring := make([]geom.Coord, 0, 5)
		for vertex := 0; vertex < 4; vertex++ {
			latLng := s2.LatLngFromPoint(cell.Vertex(vertex))
			ring = append(ring, geom.Coord{latLng.Lng.Degrees(), latLng.Lat.Degrees()})
		}

		ring = append(ring, ring[0])
		quad := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{ring})
		if err := result.Push(quad); err != nil {
			// same layout everywhere, so push cannot fail
			panic(err)
		}
	}

	return result
}

// WKT returns the multipolygon of the cells as WKT
func (r Region) WKT() (string, error) {
	value, err := wkt.Marshal(r.Geom())
	if err != nil {
		return "", errors.Wrap(err, "cannot render region as wkt")
	}

	return value, nil
}

// GeoJSON returns the multipolygon of the cells as a GeoJSON geometry
func (r Region) GeoJSON() ([]byte, error) {
	value, err := geojson.Marshal(r.Geom())
	if err != nil {
		return nil, errors.Wrap(err, "cannot render region as geojson")
	}

	return value, nil
}
