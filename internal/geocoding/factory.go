package geocoding

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/UnknownOlympus/cartographer/internal/nominatim"
	"googlemaps.github.io/maps"
)

// ProviderType represents the type of geocoding provider.
type ProviderType string

const (
	// ProviderTypeNominatim represents OpenStreetMap Nominatim geocoding provider.
	ProviderTypeNominatim ProviderType = "nominatim"
	// ProviderTypeGoogle represents Google Maps geocoding provider.
	ProviderTypeGoogle ProviderType = "google"
)

// ErrMissingAPIKey is returned when a provider that needs a key is configured without one.
var ErrMissingAPIKey = errors.New("API key is required for Google provider")

// ProviderConfig holds configuration for creating a geocoding provider.
type ProviderConfig struct {
	Type      ProviderType    // Type of provider to create
	APIKey    string          // API key (used by Google provider)
	Language  string          // Preferred language of returned addresses
	Nominatim NominatimConfig // Settings of the Nominatim client
	Logger    *slog.Logger    // Logger for the provider
}

// NominatimConfig holds the Nominatim client settings.
type NominatimConfig struct {
	BaseURL   string        // Server URL, empty for the public instance
	UserAgent string        // Identification required by the usage policy
	Email     string        // Contact address sent with every request
	Zoom      uint8         // Level of detail for reverse lookups
	Timeout   time.Duration // HTTP timeout
}

// NewProvider creates a geocoding provider based on the provided configuration.
//
// Supported provider types:
// - "nominatim": OpenStreetMap Nominatim API (free, no API key required)
// - "google": Google Maps Geocoding API (requires API key)
//
// Returns an error if the provider type is unsupported or if provider creation fails.
func NewProvider(config ProviderConfig) (Provider, error) {
	switch config.Type {
	case ProviderTypeNominatim:
		return newNominatimProvider(config)
	case ProviderTypeGoogle:
		return newGoogleProvider(config)
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", config.Type)
	}
}

// newNominatimProvider creates a Nominatim client and wraps it into a provider.
func newNominatimProvider(config ProviderConfig) (Provider, error) {
	opts := []nominatim.ClientOption{nominatim.WithLogger(config.Logger)}
	if config.Nominatim.BaseURL != "" {
		opts = append(opts, nominatim.WithBaseURL(config.Nominatim.BaseURL))
	}
	if config.Nominatim.UserAgent != "" {
		opts = append(opts, nominatim.WithIdentification(nominatim.UserAgent(config.Nominatim.UserAgent)))
	}
	if config.Nominatim.Email != "" {
		opts = append(opts, nominatim.WithEmail(config.Nominatim.Email))
	}
	if config.Nominatim.Timeout > 0 {
		opts = append(opts, nominatim.WithTimeout(config.Nominatim.Timeout))
	}

	client, err := nominatim.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Nominatim client: %w", err)
	}

	queryOpts := []nominatim.QueryOption{nominatim.WithZoom(config.Nominatim.Zoom)}
	if config.Language != "" {
		queryOpts = append(queryOpts, nominatim.WithLanguage(config.Language))
	}

	return NewNominatimProvider(client, config.Logger, queryOpts...), nil
}

// newGoogleProvider creates a Google Maps geocoding provider.
func newGoogleProvider(config ProviderConfig) (Provider, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := maps.NewClient(maps.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Maps client: %w", err)
	}

	return NewGoogleProvider(client, config.Language, config.Logger), nil
}
