// Package location samples device positions and decides which ones are worth reporting.
package location

import (
	"fmt"
	"math"
	"sync/atomic"

	"courier/internal/domain"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6_371_000.0

// Precision is a pair of thresholds controlling filter strictness.
type Precision struct {
	Name         string
	MinAccuracyM float64 // reject fixes whose accuracy radius exceeds this
	MinDistanceM float64 // reject fixes closer than this to the last accepted one
}

// Named precision presets.
var (
	PrecisionHigh     = Precision{Name: "high", MinAccuracyM: 20, MinDistanceM: 3}
	PrecisionBalanced = Precision{Name: "balanced", MinAccuracyM: 50, MinDistanceM: 5}
	PrecisionLow      = Precision{Name: "low", MinAccuracyM: 100, MinDistanceM: 10}
)

// DefaultPrecision is the preset in effect at process start.
var DefaultPrecision = PrecisionBalanced

// ParsePrecision returns the preset with the given name.
func ParsePrecision(name string) (Precision, error) {
	switch name {
	case PrecisionHigh.Name:
		return PrecisionHigh, nil
	case PrecisionBalanced.Name:
		return PrecisionBalanced, nil
	case PrecisionLow.Name:
		return PrecisionLow, nil
	default:
		return Precision{}, fmt.Errorf("%w: %q", ErrUnknownPrecision, name)
	}
}

// Accept decides whether candidate is accurate and far enough from previous to report.
// The first sample (previous == nil) is always accepted unless its accuracy is too poor.
func Accept(previous *domain.LocationSample, candidate domain.LocationSample, p Precision) bool {
	return Evaluate(previous, candidate, p) == VerdictAccepted
}

// Verdict is the outcome of evaluating a candidate sample.
type Verdict int

const (
	VerdictAccepted Verdict = iota
	VerdictInaccurate
	VerdictTooClose
)

// Evaluate is Accept with the rejection reason.
func Evaluate(previous *domain.LocationSample, candidate domain.LocationSample, p Precision) Verdict {
	if candidate.AccuracyMeters != nil && *candidate.AccuracyMeters > p.MinAccuracyM {
		return VerdictInaccurate
	}
	if previous == nil {
		return VerdictAccepted
	}
	d := Distance(previous.Latitude, previous.Longitude, candidate.Latitude, candidate.Longitude)
	if d < p.MinDistanceM {
		return VerdictTooClose
	}
	return VerdictAccepted
}

// Distance returns the haversine great-circle distance in meters.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Filter holds the precision in effect. Swapping it never interrupts an
// evaluation already in progress; the new thresholds apply from the next call.
type Filter struct {
	precision atomic.Pointer[Precision]
}

// NewFilter creates a filter starting at p.
func NewFilter(p Precision) *Filter {
	f := &Filter{}
	f.SetPrecision(p)
	return f
}

// Precision returns the thresholds in effect.
func (f *Filter) Precision() Precision {
	return *f.precision.Load()
}

// SetPrecision swaps the thresholds.
func (f *Filter) SetPrecision(p Precision) {
	f.precision.Store(&p)
}

// Evaluate runs the gate with the thresholds in effect.
func (f *Filter) Evaluate(previous *domain.LocationSample, candidate domain.LocationSample) Verdict {
	return Evaluate(previous, candidate, f.Precision())
}
