package geocoding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/UnknownOlympus/cartographer/internal/models"
	"github.com/UnknownOlympus/cartographer/internal/nominatim"
)

// NominatimLookuper is the part of *nominatim.Client the provider needs.
type NominatimLookuper interface {
	Lookup(ctx context.Context, query nominatim.Query) (*nominatim.GeocodeResult, error)
}

// NominatimProvider implements the Provider interface using OpenStreetMap's Nominatim API.
// The public instance allows 1 request/second for fair use; keep the worker count low
// or point the client at a self-hosted server.
type NominatimProvider struct {
	client NominatimLookuper       // client performs the actual API calls
	opts   []nominatim.QueryOption // opts are applied to every reverse query
	log    *slog.Logger            // log is the logger for logging operations
}

// NewNominatimProvider creates a Nominatim provider on top of an existing client.
func NewNominatimProvider(client NominatimLookuper, log *slog.Logger, opts ...nominatim.QueryOption) *NominatimProvider {
	return &NominatimProvider{client: client, opts: opts, log: orDiscard(log)}
}

// ReverseGeocode converts coordinates into an address using the Nominatim /reverse endpoint.
// Errors from the client are wrapped, so callers can still inspect the *nominatim.APIError.
func (np *NominatimProvider) ReverseGeocode(ctx context.Context, coords models.Coordinates) (*models.Address, error) {
	np.log.DebugContext(ctx, "Reverse geocoding using Nominatim", "lat", coords.Latitude, "lon", coords.Longitude)

	result, err := np.client.Lookup(ctx, nominatim.ReverseQuery(coords.Latitude, coords.Longitude, np.opts...))
	if err != nil {
		return nil, fmt.Errorf("failed to reverse geocode coordinates: %w", err)
	}

	if result.DisplayName == "" {
		return nil, ErrEmptyResponse
	}

	np.log.DebugContext(ctx, "Nominatim found result", "display_name", result.DisplayName, "place_id", result.PlaceID)

	return &models.Address{
		DisplayName: result.DisplayName,
		Components:  result.Address,
		Provider:    string(ProviderTypeNominatim),
	}, nil
}
