package geocoding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/UnknownOlympus/cartographer/internal/models"
	"googlemaps.github.io/maps"
)

// GoogleProvider is a struct that holds the client for Google Maps API
// and a logger for logging purposes. It is used to interact with the
// Google Maps reverse geocoding service.
type GoogleProvider struct {
	client   GoogleAPIClient // client is the Google Maps API client
	language string          // language of the returned address, empty for the API default
	log      *slog.Logger    // log is the logger for logging operations
}

type GoogleAPIClient interface {
	ReverseGeocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// NewGoogleProvider initializes a new GoogleProvider with the given client, language and logger.
func NewGoogleProvider(client GoogleAPIClient, language string, log *slog.Logger) *GoogleProvider {
	return &GoogleProvider{client: client, language: language, log: orDiscard(log)}
}

// ReverseGeocode takes a context and a coordinate pair as input, and returns the best matching
// address using the Google Maps Geocoding API. Address components are keyed by their first type.
func (gp *GoogleProvider) ReverseGeocode(ctx context.Context, coords models.Coordinates) (*models.Address, error) {
	gp.log.DebugContext(ctx, "Reverse geocoding using Google Maps", "lat", coords.Latitude, "lon", coords.Longitude)

	req := maps.GeocodingRequest{
		LatLng:   &maps.LatLng{Lat: coords.Latitude, Lng: coords.Longitude},
		Language: gp.language,
	}
	geocodeResponse, err := gp.client.ReverseGeocode(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("failed to reverse geocode coordinates: %w", err)
	}

	if len(geocodeResponse) == 0 {
		return nil, ErrEmptyResponse
	}
	best := geocodeResponse[0]

	components := make(map[string]string, len(best.AddressComponents))
	for _, component := range best.AddressComponents {
		if len(component.Types) == 0 {
			continue
		}
		components[component.Types[0]] = component.LongName
	}

	return &models.Address{
		DisplayName: best.FormattedAddress,
		Components:  components,
		Provider:    string(ProviderTypeGoogle),
	}, nil
}
