// Package telemetry sends location samples to the backend.
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"courier/internal/domain"
	"courier/internal/location"
	"courier/internal/metrics"
	"courier/internal/transport"
)

// UpdateLocationPath is the backend endpoint receiving location reports.
const UpdateLocationPath = "/driver/tracking/update-location"

// EmptyOrdersPolicy decides what Report does when no order is tracked.
type EmptyOrdersPolicy string

const (
	// SkipEmpty drops the report.
	SkipEmpty EmptyOrdersPolicy = "skip"
	// PlaceholderEmpty sends the report with the placeholder order id.
	PlaceholderEmpty EmptyOrdersPolicy = "placeholder"

	DefaultPlaceholderOrderID = "unassigned"
)

// ParseEmptyOrdersPolicy resolves a configured policy name.
func ParseEmptyOrdersPolicy(name string) (EmptyOrdersPolicy, error) {
	switch p := EmptyOrdersPolicy(name); p {
	case SkipEmpty, PlaceholderEmpty:
		return p, nil
	case "":
		return SkipEmpty, nil
	default:
		return "", fmt.Errorf("unknown empty orders policy %q", name)
	}
}

// Coordinate is a degree value serialized with exactly seven decimals.
type Coordinate float64

// MarshalJSON implements json.Marshaler.
func (c Coordinate) MarshalJSON() ([]byte, error) {
	return []byte(location.FormatCoordinate(float64(c))), nil
}

// UpdateLocationRequest is the body of a location report.
type UpdateLocationRequest struct {
	OrderID   string     `json:"order_id"`
	Latitude  Coordinate `json:"latitude"`
	Longitude Coordinate `json:"longitude"`
}

// NewUpdateLocationRequest builds the report body for all ids in one call.
func NewUpdateLocationRequest(sample domain.LocationSample, orderIDs []string) UpdateLocationRequest {
	return UpdateLocationRequest{
		OrderID:   strings.Join(orderIDs, ","),
		Latitude:  Coordinate(sample.Latitude),
		Longitude: Coordinate(sample.Longitude),
	}
}

// Poster sends an authenticated JSON POST.
type Poster interface {
	Post(ctx context.Context, path string, body any) (*transport.Response, error)
}

// ReporterOptions configures a Reporter.
type ReporterOptions struct {
	EmptyOrders   EmptyOrdersPolicy
	PlaceholderID string
}

// Reporter posts location samples for the tracked orders.
type Reporter struct {
	logger      zerolog.Logger
	client      Poster
	emptyOrders EmptyOrdersPolicy
	placeholder string
}

// NewReporter creates a Reporter.
func NewReporter(logger zerolog.Logger, client Poster, opts ReporterOptions) *Reporter {
	if opts.EmptyOrders == "" {
		opts.EmptyOrders = SkipEmpty
	}
	if opts.PlaceholderID == "" {
		opts.PlaceholderID = DefaultPlaceholderOrderID
	}
	return &Reporter{
		logger:      logger,
		client:      client,
		emptyOrders: opts.EmptyOrders,
		placeholder: opts.PlaceholderID,
	}
}

// Report sends sample for orderIDs and reports whether the backend accepted it.
// Failures are logged and never returned.
func (r *Reporter) Report(ctx context.Context, sample domain.LocationSample, orderIDs []string) bool {
	if len(orderIDs) == 0 {
		if r.emptyOrders != PlaceholderEmpty {
			metrics.LocationReports.WithLabelValues(metrics.ReportSkipped).Inc()
			r.logger.Debug().Msg("[REPORT] No active orders, skipping report")
			return false
		}
		orderIDs = []string{r.placeholder}
	}

	body := NewUpdateLocationRequest(sample, orderIDs)
	resp, err := r.client.Post(ctx, UpdateLocationPath, body)
	if err != nil {
		metrics.LocationReports.WithLabelValues(metrics.ReportFailure).Inc()
		r.logger.Warn().Err(err).Str("order_id", body.OrderID).Msg("[REPORT] Failed to send location")
		return false
	}
	if !resp.OK() {
		metrics.LocationReports.WithLabelValues(metrics.ReportFailure).Inc()
		r.logger.Warn().
			Int("status", resp.StatusCode).
			Str("order_id", body.OrderID).
			Bytes("body", truncate(resp.Body, 256)).
			Msg("[REPORT] Location rejected")
		return false
	}

	metrics.LocationReports.WithLabelValues(metrics.ReportSuccess).Inc()
	r.logger.Debug().
		Str("order_id", body.OrderID).
		Float64("lat", location.Round(sample.Latitude)).
		Float64("lng", location.Round(sample.Longitude)).
		Msg("[REPORT] Location sent")
	return true
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
