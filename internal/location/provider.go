package location

import (
	"context"

	"github.com/rs/zerolog"

	"courier/internal/domain"
)

// Provider is a source of device position fixes.
type Provider interface {
	// Name identifies the provider in logs.
	Name() string

	// Available reports whether the provider is linked and configured.
	Available(ctx context.Context) bool

	// Fix returns the freshest position the provider can produce before ctx expires.
	Fix(ctx context.Context) (domain.LocationSample, error)
}

// SelectProviders keeps, in order, the candidates that report themselves available.
// It runs once at startup; unavailable providers are not probed again.
func SelectProviders(ctx context.Context, logger zerolog.Logger, candidates []Provider) []Provider {
	selected := make([]Provider, 0, len(candidates))
	for _, p := range candidates {
		if p.Available(ctx) {
			selected = append(selected, p)
			logger.Info().Str("provider", p.Name()).Msg("[LOCATION] Provider available")
			continue
		}
		logger.Warn().Str("provider", p.Name()).Msg("[LOCATION] Provider unavailable, skipping")
	}
	return selected
}
