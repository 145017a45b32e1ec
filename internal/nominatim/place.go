package nominatim

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strconv"
)

// GeocodeResult is a place returned by the Nominatim API.
type GeocodeResult struct {
	DisplayName string
	Latitude    float64
	Longitude   float64
	// Address holds the address breakdown keyed by category (road, city, postcode, country_code, ...).
	Address map[string]string
	// Raw is the JSON object the result was decoded from.
	Raw json.RawMessage

	PlaceID     int64
	OSMType     string
	OSMID       int64
	Class       string
	Type        string
	Name        string
	Importance  float64
	BoundingBox []float64 // south, north, west, east
	ExtraTags   map[string]string
	Licence     string
	Icon        string
	// GeoJSON is nil unless the query was built with WithPolygonGeoJSON.
	GeoJSON *GeoJSON
}

// Status is the health report of a Nominatim server.
type Status struct {
	Status          int    `json:"status"`
	Message         string `json:"message"`
	DataUpdated     string `json:"data_updated,omitempty"`
	SoftwareVersion string `json:"software_version,omitempty"`
	DatabaseVersion string `json:"database_version,omitempty"`
}

// place mirrors a single Nominatim "format=json" object.
type place struct {
	PlaceID     int64             `json:"place_id"`
	Licence     string            `json:"licence"`
	OSMType     string            `json:"osm_type"`
	OSMID       int64             `json:"osm_id"`
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	Class       string            `json:"class"`
	Type        string            `json:"type"`
	Importance  float64           `json:"importance"`
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
	ExtraTags   map[string]string `json:"extratags"`
	BoundingBox []string          `json:"boundingbox"`
	Icon        string            `json:"icon"`
	GeoJSON     *GeoJSON          `json:"geojson"`

	// Error is set instead of the fields above when a reverse lookup finds nothing.
	Error string `json:"error"`
}

var errMissingCoordinates = errors.New("place has no lat/lon")

func decodePlace(raw json.RawMessage) (GeocodeResult, error) {
	var p place
	if err := json.Unmarshal(raw, &p); err != nil {
		return GeocodeResult{}, err
	}

	return p.toResult(raw)
}

func (p place) toResult(raw json.RawMessage) (GeocodeResult, error) {
	if p.Lat == "" || p.Lon == "" {
		return GeocodeResult{}, errMissingCoordinates
	}

	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return GeocodeResult{}, fmt.Errorf("invalid latitude %q: %w", p.Lat, err)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return GeocodeResult{}, fmt.Errorf("invalid longitude %q: %w", p.Lon, err)
	}

	var bbox []float64
	for _, edge := range p.BoundingBox {
		v, errBox := strconv.ParseFloat(edge, 64)
		if errBox != nil {
			return GeocodeResult{}, fmt.Errorf("invalid bounding box value %q: %w", edge, errBox)
		}
		bbox = append(bbox, v)
	}

	if p.GeoJSON != nil {
		if err = p.GeoJSON.validate(); err != nil {
			return GeocodeResult{}, err
		}
	}

	address := make(map[string]string, len(p.Address))
	maps.Copy(address, p.Address)

	rawCopy := make(json.RawMessage, len(raw))
	copy(rawCopy, raw)

	return GeocodeResult{
		DisplayName: p.DisplayName,
		Latitude:    lat,
		Longitude:   lon,
		Address:     address,
		Raw:         rawCopy,
		PlaceID:     p.PlaceID,
		OSMType:     p.OSMType,
		OSMID:       p.OSMID,
		Class:       p.Class,
		Type:        p.Type,
		Name:        p.Name,
		Importance:  p.Importance,
		BoundingBox: bbox,
		ExtraTags:   p.ExtraTags,
		Licence:     p.Licence,
		Icon:        p.Icon,
		GeoJSON:     p.GeoJSON,
	}, nil
}
