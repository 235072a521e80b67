package location

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/coder/quartz"
	"github.com/goccy/go-json"

	"courier/internal/domain"
)

const (
	gpsdWatchCommand  = `?WATCH={"enable":true,"json":true};` + "\n"
	gpsdProbeTimeout  = 2 * time.Second
	gpsdClassTPV      = "TPV"
	gpsdMode2D        = 2
	gpsdMaxReportLine = 64 * 1024
)

// gpsdTPV is the subset of a gpsd time-position-velocity report we read.
type gpsdTPV struct {
	Class string   `json:"class"`
	Mode  int      `json:"mode"`
	Time  string   `json:"time"`
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
	Eph   *float64 `json:"eph"`
	Epx   *float64 `json:"epx"`
	Epy   *float64 `json:"epy"`
}

// GPSDProvider reads fixes from a gpsd daemon over its JSON socket protocol.
type GPSDProvider struct {
	addr  string
	clock quartz.Clock
}

// NewGPSDProvider creates a provider for the gpsd daemon at addr (host:port).
func NewGPSDProvider(addr string, clock quartz.Clock) *GPSDProvider {
	return &GPSDProvider{addr: addr, clock: clock}
}

// Name implements Provider.
func (p *GPSDProvider) Name() string { return "gpsd" }

// Available implements Provider by probing the daemon socket.
func (p *GPSDProvider) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, gpsdProbeTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Fix implements Provider. It opens a watch and returns the first TPV report with a 2D or 3D fix.
func (p *GPSDProvider) Fix(ctx context.Context) (domain.LocationSample, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return domain.LocationSample{}, fmt.Errorf("%w: gpsd dial: %v", ErrProviderUnavailable, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	// Unblock the reader if ctx is cancelled without a deadline.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	if _, err := conn.Write([]byte(gpsdWatchCommand)); err != nil {
		return domain.LocationSample{}, fmt.Errorf("gpsd watch: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), gpsdMaxReportLine)
	for scanner.Scan() {
		sample, ok := p.parseReport(scanner.Bytes())
		if ok {
			return sample, nil
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return domain.LocationSample{}, fmt.Errorf("%w: %v", ErrNoFix, ctx.Err())
		}
		return domain.LocationSample{}, fmt.Errorf("gpsd read: %w", err)
	}
	return domain.LocationSample{}, ErrNoFix
}

func (p *GPSDProvider) parseReport(line []byte) (domain.LocationSample, bool) {
	var tpv gpsdTPV
	if err := json.Unmarshal(line, &tpv); err != nil {
		return domain.LocationSample{}, false
	}
	if tpv.Class != gpsdClassTPV || tpv.Mode < gpsdMode2D || tpv.Lat == nil || tpv.Lon == nil {
		return domain.LocationSample{}, false
	}

	ts := p.clock.Now()
	if tpv.Time != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, tpv.Time); err == nil {
			ts = parsed
		}
	}

	sample := domain.LocationSample{
		Latitude:    *tpv.Lat,
		Longitude:   *tpv.Lon,
		TimestampMs: ts.UnixMilli(),
	}
	switch {
	case tpv.Eph != nil:
		sample.AccuracyMeters = domain.Accuracy(*tpv.Eph)
	case tpv.Epx != nil && tpv.Epy != nil:
		sample.AccuracyMeters = domain.Accuracy(max(*tpv.Epx, *tpv.Epy))
	}
	return sample, true
}
