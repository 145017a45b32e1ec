package nominatim

import (
	"encoding/json"
	"fmt"
)

// GeometryType is the GeoJSON type of a place outline.
type GeometryType string

const (
	GeometryPoint        GeometryType = "Point"
	GeometryLineString   GeometryType = "LineString"
	GeometryPolygon      GeometryType = "Polygon"
	GeometryMultiPolygon GeometryType = "MultiPolygon"
)

// GeoJSON is the outline of a place, present when the query asked for it with WithPolygonGeoJSON.
// Positions are [longitude, latitude] pairs.
type GeoJSON struct {
	Type        GeometryType    `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Point returns the position of a Point geometry.
func (g GeoJSON) Point() ([2]float64, error) {
	var pos [2]float64
	return pos, g.decode(GeometryPoint, &pos)
}

// LineString returns the positions of a LineString geometry.
func (g GeoJSON) LineString() ([][2]float64, error) {
	var line [][2]float64
	return line, g.decode(GeometryLineString, &line)
}

// Polygon returns the rings of a Polygon geometry, outer ring first.
func (g GeoJSON) Polygon() ([][][2]float64, error) {
	var rings [][][2]float64
	return rings, g.decode(GeometryPolygon, &rings)
}

// MultiPolygon returns the polygons of a MultiPolygon geometry.
func (g GeoJSON) MultiPolygon() ([][][][2]float64, error) {
	var polygons [][][][2]float64
	return polygons, g.decode(GeometryMultiPolygon, &polygons)
}

func (g GeoJSON) decode(want GeometryType, dst any) error {
	if g.Type != want {
		return fmt.Errorf("geometry is %q, not %q", g.Type, want)
	}
	if err := json.Unmarshal(g.Coordinates, dst); err != nil {
		return fmt.Errorf("invalid %s coordinates: %w", want, err)
	}
	return nil
}

// validate checks that the coordinates match the declared type.
func (g GeoJSON) validate() error {
	var err error
	switch g.Type {
	case GeometryPoint:
		_, err = g.Point()
	case GeometryLineString:
		_, err = g.LineString()
	case GeometryPolygon:
		_, err = g.Polygon()
	case GeometryMultiPolygon:
		_, err = g.MultiPolygon()
	default:
		err = fmt.Errorf("unsupported geometry type %q", g.Type)
	}
	return err
}
