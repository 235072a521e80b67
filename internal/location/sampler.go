package location

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"courier/internal/domain"
)

const (
	defaultFixTimeout = 15 * time.Second
	defaultMaxFixAge  = 10 * time.Second
)

// SamplerOptions tunes how long the sampler waits and which fixes it accepts.
type SamplerOptions struct {
	FixTimeout time.Duration // upper bound on waiting for one fix
	MaxFixAge  time.Duration // cached fixes older than this are refused
}

// Sampler obtains single position fixes from an ordered list of providers.
type Sampler struct {
	logger     zerolog.Logger
	clock      quartz.Clock
	providers  []Provider
	permission Permission
	fixTimeout time.Duration
	maxFixAge  time.Duration

	granted atomic.Bool
}

// NewSampler creates a Sampler. providers should already be narrowed with SelectProviders.
func NewSampler(logger zerolog.Logger, clock quartz.Clock, providers []Provider, permission Permission, opts SamplerOptions) *Sampler {
	if opts.FixTimeout <= 0 {
		opts.FixTimeout = defaultFixTimeout
	}
	if opts.MaxFixAge <= 0 {
		opts.MaxFixAge = defaultMaxFixAge
	}
	return &Sampler{
		logger:     logger,
		clock:      clock,
		providers:  providers,
		permission: permission,
		fixTimeout: opts.FixTimeout,
		maxFixAge:  opts.MaxFixAge,
	}
}

// RequestPermission returns whether the process may read location.
// Once granted it answers from memory and never prompts again.
func (s *Sampler) RequestPermission(ctx context.Context) bool {
	if s.granted.Load() {
		return true
	}
	ok, err := s.permission.Request(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("[LOCATION] Permission request failed")
		return false
	}
	if !ok {
		s.logger.Warn().Msg("[LOCATION] Permission denied")
		return false
	}
	s.granted.Store(true)
	return true
}

// PermissionGranted re-checks the grant without prompting. A revoked grant
// clears the remembered answer so the next RequestPermission asks again.
func (s *Sampler) PermissionGranted(ctx context.Context) bool {
	if s.permission.Granted(ctx) {
		return true
	}
	s.granted.Store(false)
	return false
}

// CurrentLocation returns one fresh fix, or nil if no provider could produce one in time.
func (s *Sampler) CurrentLocation(ctx context.Context) *domain.LocationSample {
	if len(s.providers) == 0 {
		s.logger.Warn().Err(ErrProviderUnavailable).Msg("[LOCATION] No provider configured")
		return nil
	}

	for _, p := range s.providers {
		sample, err := s.fix(ctx, p)
		if err != nil {
			s.logger.Warn().Err(err).Str("provider", p.Name()).Msg("[LOCATION] Provider failed, trying next")
			continue
		}
		s.logger.Debug().
			Str("provider", p.Name()).
			Float64("lat", sample.Latitude).
			Float64("lng", sample.Longitude).
			Msg("[LOCATION] Fix obtained")
		return &sample
	}

	s.logger.Warn().Int("providers", len(s.providers)).Msg("[LOCATION] No provider produced a fix")
	return nil
}

func (s *Sampler) fix(ctx context.Context, p Provider) (domain.LocationSample, error) {
	ctx, cancel := context.WithTimeout(ctx, s.fixTimeout)
	defer cancel()

	sample, err := p.Fix(ctx)
	if err != nil {
		return domain.LocationSample{}, err
	}
	if sample.Age(s.clock.Now()) > s.maxFixAge {
		return domain.LocationSample{}, ErrStaleFix
	}
	return sample, nil
}
