package location

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/coder/quartz"
	"gopkg.in/yaml.v3"

	"courier/internal/domain"
)

// TrackPoint is one waypoint of a replay track.
type TrackPoint struct {
	Lat      float64  `yaml:"lat"`
	Lng      float64  `yaml:"lng"`
	Accuracy *float64 `yaml:"accuracy,omitempty"`
}

type trackFile struct {
	Points []TrackPoint `yaml:"points"`
}

// ReplayProvider replays a recorded track, one waypoint per fix, looping at the end.
// Fixes are stamped with the current clock time.
type ReplayProvider struct {
	clock quartz.Clock

	mu     sync.Mutex
	points []TrackPoint
	next   int
}

// NewReplayProvider creates a provider over points.
func NewReplayProvider(points []TrackPoint, clock quartz.Clock) *ReplayProvider {
	return &ReplayProvider{points: points, clock: clock}
}

// LoadReplayProvider reads a YAML track file:
//
//	points:
//	  - {lat: 52.5200, lng: 13.4050, accuracy: 8}
func LoadReplayProvider(path string, clock quartz.Clock) (*ReplayProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read track file: %w", err)
	}
	var tf trackFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse track file %s: %w", path, err)
	}
	for i, pt := range tf.Points {
		if !ValidCoordinates(pt.Lat, pt.Lng) {
			return nil, fmt.Errorf("track file %s: point %d out of range", path, i)
		}
	}
	return NewReplayProvider(tf.Points, clock), nil
}

// Name implements Provider.
func (p *ReplayProvider) Name() string { return "replay" }

// Available implements Provider.
func (p *ReplayProvider) Available(context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.points) > 0
}

// Fix implements Provider.
func (p *ReplayProvider) Fix(ctx context.Context) (domain.LocationSample, error) {
	if err := ctx.Err(); err != nil {
		return domain.LocationSample{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.points) == 0 {
		return domain.LocationSample{}, ErrNoFix
	}

	pt := p.points[p.next]
	p.next = (p.next + 1) % len(p.points)

	sample := domain.LocationSample{
		Latitude:    pt.Lat,
		Longitude:   pt.Lng,
		TimestampMs: p.clock.Now().UnixMilli(),
	}
	if pt.Accuracy != nil {
		sample.AccuracyMeters = domain.Accuracy(*pt.Accuracy)
	}
	return sample, nil
}
