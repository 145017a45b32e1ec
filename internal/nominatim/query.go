package nominatim

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// MaxZoom is the most detailed zoom level Nominatim accepts.
const MaxZoom = 18

type queryKind int

const (
	kindReverse queryKind = iota + 1
	kindSearch
)

// Query is a single reverse or forward geocoding request.
// Build one with ReverseQuery or SearchQuery.
type Query struct {
	kind      queryKind
	latitude  float64
	longitude float64
	text      string
	options   QueryOptions
}

// QueryOptions are the optional parameters shared by all query kinds.
type QueryOptions struct {
	Zoom           *uint8 // level of detail, 0 (country) to 18 (building)
	Language       string // sent as accept-language, e.g. "uk,en"
	PolygonGeoJSON bool   // ask for the outline of each place
}

// QueryOption configures QueryOptions.
type QueryOption func(*QueryOptions)

// WithZoom sets the level of detail of the returned places.
func WithZoom(zoom uint8) QueryOption {
	return func(o *QueryOptions) {
		o.Zoom = &zoom
	}
}

// WithLanguage sets the preferred language of the returned names.
func WithLanguage(lang string) QueryOption {
	return func(o *QueryOptions) {
		o.Language = lang
	}
}

// WithPolygonGeoJSON asks the server to include the outline of each place as GeoJSON.
func WithPolygonGeoJSON() QueryOption {
	return func(o *QueryOptions) {
		o.PolygonGeoJSON = true
	}
}

// ReverseQuery builds a query that converts a coordinate pair into an address.
func ReverseQuery(latitude, longitude float64, opts ...QueryOption) Query {
	q := Query{kind: kindReverse, latitude: latitude, longitude: longitude}
	for _, opt := range opts {
		opt(&q.options)
	}
	return q
}

// SearchQuery builds a query that converts free text into coordinates and an address.
func SearchQuery(text string, opts ...QueryOption) Query {
	q := Query{kind: kindSearch, text: text}
	for _, opt := range opts {
		opt(&q.options)
	}
	return q
}

// IsReverse reports whether q was built by ReverseQuery.
func (q Query) IsReverse() bool { return q.kind == kindReverse }

// Coordinates returns the latitude and longitude of a reverse query.
func (q Query) Coordinates() (float64, float64) { return q.latitude, q.longitude }

// Text returns the free text of a forward query.
func (q Query) Text() string { return q.text }

// Options returns a copy of the query options.
func (q Query) Options() QueryOptions { return q.options }

// Validate checks the query invariants without touching the network.
func (q Query) Validate() error {
	switch q.kind {
	case kindReverse:
		if err := validateCoordinates(q.latitude, q.longitude); err != nil {
			return err
		}
	case kindSearch:
		if strings.TrimSpace(q.text) == "" {
			return invalidInput("search text must not be empty")
		}
	default:
		return invalidInput("query must be built with ReverseQuery or SearchQuery")
	}

	return q.options.validate()
}

func (o QueryOptions) validate() error {
	if o.Zoom != nil && *o.Zoom > MaxZoom {
		return invalidInput("zoom %d is out of range [0, %d]", *o.Zoom, MaxZoom)
	}
	return nil
}

func (o QueryOptions) encode(values url.Values) {
	if o.Zoom != nil {
		values.Set("zoom", strconv.Itoa(int(*o.Zoom)))
	}
	if o.PolygonGeoJSON {
		values.Set("polygon_geojson", "1")
	}
	if o.Language != "" {
		values.Set("accept-language", o.Language)
	}
}

func validateCoordinates(lat, lon float64) error {
	// Written as negated ranges so NaN is rejected too.
	if !(lat >= -90 && lat <= 90) {
		return invalidInput("latitude %v is out of range [-90, 90]", lat)
	}
	if !(lon >= -180 && lon <= 180) {
		return invalidInput("longitude %v is out of range [-180, 180]", lon)
	}
	return nil
}

func formatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// path and values for the request; Validate must have succeeded.
func (q Query) params(limit int) (string, url.Values) {
	values := url.Values{}
	values.Set("format", "json")
	values.Set("addressdetails", "1")
	values.Set("extratags", "1")

	if q.kind == kindReverse {
		values.Set("lat", formatCoordinate(q.latitude))
		values.Set("lon", formatCoordinate(q.longitude))
		q.options.encode(values)
		return "reverse", values
	}

	values.Set("q", q.text)
	values.Set("limit", strconv.Itoa(limit))
	q.options.encode(values)
	return "search", values
}

// StructuredQuery is a forward search split into address parts.
type StructuredQuery struct {
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
	Options    QueryOptions
}

// Validate checks that at least one address part is present.
func (s StructuredQuery) Validate() error {
	if strings.TrimSpace(s.Street+s.City+s.State+s.PostalCode+s.Country) == "" {
		return invalidInput("structured query needs at least one address field")
	}
	return s.Options.validate()
}

func (s StructuredQuery) params(limit int) url.Values {
	values := url.Values{}
	values.Set("format", "json")
	values.Set("addressdetails", "1")
	values.Set("extratags", "1")
	values.Set("limit", strconv.Itoa(limit))

	for key, val := range map[string]string{
		"street":     s.Street,
		"city":       s.City,
		"state":      s.State,
		"postalcode": s.PostalCode,
		"country":    s.Country,
	} {
		if v := strings.TrimSpace(val); v != "" {
			values.Set(key, v)
		}
	}
	s.Options.encode(values)
	return values
}

var osmIDPattern = regexp.MustCompile(`^[NWR][0-9]+$`)

func validateOSMIDs(ids []string) error {
	if len(ids) == 0 {
		return invalidInput("at least one OSM id is required")
	}
	for _, id := range ids {
		if !osmIDPattern.MatchString(id) {
			return invalidInput("malformed OSM id %q, expected N/W/R followed by digits", id)
		}
	}
	return nil
}
