package location

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/domain"
)

type fakeProvider struct {
	name      string
	available bool
	sample    domain.LocationSample
	err       error
	calls     atomic.Int32
}

func (p *fakeProvider) Name() string { return p.name }
func (p *fakeProvider) Available(context.Context) bool { return p.available }
func (p *fakeProvider) Fix(context.Context) (domain.LocationSample, error) {
	p.calls.Add(1)
	return p.sample, p.err
}

type countingPermission struct {
	grant    atomic.Bool
	requests atomic.Int32
}

func (p *countingPermission) Request(context.Context) (bool, error) {
	p.requests.Add(1)
	return p.grant.Load(), nil
}

func (p *countingPermission) Granted(context.Context) bool { return p.grant.Load() }

func TestSelectProviders_KeepsAvailableInOrder(t *testing.T) {
	t.Parallel()

	a := &fakeProvider{name: "gpsd", available: false}
	b := &fakeProvider{name: "replay", available: true}
	c := &fakeProvider{name: "other", available: true}

	selected := SelectProviders(context.Background(), zerolog.Nop(), []Provider{a, b, c})
	require.Len(t, selected, 2)
	assert.Equal(t, "replay", selected[0].Name())
	assert.Equal(t, "other", selected[1].Name())
}

func TestSampler_FallsBackToSecondaryProvider(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	now := clock.Now()
	primary := &fakeProvider{name: "gpsd", err: ErrProviderUnavailable}
	secondary := &fakeProvider{name: "replay", sample: domain.LocationSample{Latitude: 1, Longitude: 2, TimestampMs: now.UnixMilli()}}

	s := NewSampler(zerolog.Nop(), clock, []Provider{primary, secondary}, StaticPermission(true), SamplerOptions{})
	got := s.CurrentLocation(context.Background())

	require.NotNil(t, got)
	assert.Equal(t, 1.0, got.Latitude)
	assert.EqualValues(t, 1, primary.calls.Load())
	assert.EqualValues(t, 1, secondary.calls.Load())
}

func TestSampler_ReturnsNilWhenEveryProviderFails(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	s := NewSampler(zerolog.Nop(), clock, []Provider{
		&fakeProvider{name: "a", err: errors.New("boom")},
		&fakeProvider{name: "b", err: context.DeadlineExceeded},
	}, StaticPermission(true), SamplerOptions{})

	assert.Nil(t, s.CurrentLocation(context.Background()))
}

func TestSampler_NoProviders(t *testing.T) {
	t.Parallel()

	s := NewSampler(zerolog.Nop(), quartz.NewMock(t), nil, StaticPermission(true), SamplerOptions{})
	assert.Nil(t, s.CurrentLocation(context.Background()))
}

func TestSampler_RejectsStaleFix(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	old := clock.Now().Add(-time.Minute)
	stale := &fakeProvider{name: "cached", sample: domain.LocationSample{Latitude: 1, TimestampMs: old.UnixMilli()}}
	fresh := &fakeProvider{name: "fresh", sample: domain.LocationSample{Latitude: 2, TimestampMs: clock.Now().UnixMilli()}}

	s := NewSampler(zerolog.Nop(), clock, []Provider{stale, fresh}, StaticPermission(true), SamplerOptions{MaxFixAge: 10 * time.Second})
	got := s.CurrentLocation(context.Background())

	require.NotNil(t, got)
	assert.Equal(t, 2.0, got.Latitude)
}

func TestSampler_RequestPermissionDoesNotRepromptOnceGranted(t *testing.T) {
	t.Parallel()

	perm := &countingPermission{}
	s := NewSampler(zerolog.Nop(), quartz.NewMock(t), nil, perm, SamplerOptions{})

	assert.False(t, s.RequestPermission(context.Background()))
	assert.EqualValues(t, 1, perm.requests.Load())

	perm.grant.Store(true)
	for i := 0; i < 3; i++ {
		assert.True(t, s.RequestPermission(context.Background()))
	}
	assert.EqualValues(t, 2, perm.requests.Load())
}

func TestSampler_PermissionRevocationClearsGrant(t *testing.T) {
	t.Parallel()

	perm := &countingPermission{}
	perm.grant.Store(true)
	s := NewSampler(zerolog.Nop(), quartz.NewMock(t), nil, perm, SamplerOptions{})

	require.True(t, s.RequestPermission(context.Background()))
	perm.grant.Store(false)

	assert.False(t, s.PermissionGranted(context.Background()))
	assert.False(t, s.RequestPermission(context.Background()))
}

func TestConsentFilePermission(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "consent")
	p := ConsentFilePermission{Path: path}

	ok, err := p.Request(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(path, nil, 0o600))
	assert.True(t, p.Granted(context.Background()))
}
