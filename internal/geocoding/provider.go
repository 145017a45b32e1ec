package geocoding

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/UnknownOlympus/cartographer/internal/models"
)

// Provider is an interface that defines a method for reverse geocoding.
// The ReverseGeocode method takes a context and a coordinate pair as input,
// and returns the corresponding address and an error if any occurs.
type Provider interface {
	ReverseGeocode(ctx context.Context, coords models.Coordinates) (*models.Address, error)
}

// ErrEmptyResponse is returned when a provider answers without any address.
var ErrEmptyResponse = errors.New("geocoding provider returned empty response")

// orDiscard returns log, or a logger that drops everything when log is nil.
func orDiscard(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return log
}
