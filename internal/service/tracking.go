package service

import (
	"context"
	"errors"
	"strings"

	"github.com/coder/quartz"
	"github.com/google/uuid"

	"courier/internal/domain"
	"courier/internal/location"
	"courier/internal/metrics"
	"courier/internal/redis"
	"courier/internal/repository"
)

const (
	// DefaultPlaceholderOrderID is the order id agents send when they report
	// without a tracked order.
	DefaultPlaceholderOrderID = "unassigned"

	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// TrackingService ingests driver location reports and serves the latest
// position of each order.
type TrackingService struct {
	orderRepo     repository.OrderRepository
	locationRepo  repository.LocationRepository
	driverRepo    repository.DriverRepository
	locationStore redis.LocationStoreInterface
	clock         quartz.Clock
	placeholderID string
}

// NewTrackingService creates a new TrackingService.
func NewTrackingService(
	orderRepo repository.OrderRepository,
	locationRepo repository.LocationRepository,
	driverRepo repository.DriverRepository,
	locationStore redis.LocationStoreInterface,
	clock quartz.Clock,
) *TrackingService {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &TrackingService{
		orderRepo:     orderRepo,
		locationRepo:  locationRepo,
		driverRepo:    driverRepo,
		locationStore: locationStore,
		clock:         clock,
		placeholderID: DefaultPlaceholderOrderID,
	}
}

// IngestRequest is one location report. OrderIDs is the comma separated
// order_id field as sent on the wire.
type IngestRequest struct {
	DriverID string
	OrderIDs string
	Lat      float64
	Lng      float64
}

// IngestResult lists which of the reported orders were updated.
type IngestResult struct {
	Accepted []string
	Ignored  []string
}

// SplitOrderIDs splits a comma separated order_id field, dropping blanks and duplicates.
func SplitOrderIDs(raw string) []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		id := strings.TrimSpace(part)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// Ingest stores a location report for every named order that belongs to the
// driver and currently accepts live tracking. Orders that do not are ignored.
// A report naming only the placeholder id succeeds without storing anything.
func (s *TrackingService) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if req.DriverID == "" {
		return nil, ErrInvalidDriverID
	}

	if !location.ValidCoordinates(req.Lat, req.Lng) {
		metrics.LocationUpdatesIngested.WithLabelValues(metrics.IngestInvalid).Inc()
		return nil, ErrInvalidLocation
	}

	ids := SplitOrderIDs(req.OrderIDs)
	if len(ids) == 0 {
		metrics.LocationUpdatesIngested.WithLabelValues(metrics.IngestInvalid).Inc()
		return nil, ErrInvalidOrderIDs
	}

	result := &IngestResult{}
	placeholderOnly := true
	for _, id := range ids {
		if id == s.placeholderID {
			result.Ignored = append(result.Ignored, id)
			continue
		}
		placeholderOnly = false

		order, err := s.orderRepo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				result.Ignored = append(result.Ignored, id)
				continue
			}
			return nil, err
		}

		if order.DriverID != req.DriverID || !order.LiveTrackingEnabled || !order.Status.Trackable() {
			result.Ignored = append(result.Ignored, id)
			continue
		}
		result.Accepted = append(result.Accepted, id)
	}

	if len(result.Accepted) == 0 {
		if placeholderOnly {
			metrics.LocationUpdatesIngested.WithLabelValues(metrics.IngestIgnored).Inc()
			return result, nil
		}
		metrics.LocationUpdatesIngested.WithLabelValues(metrics.IngestRejected).Inc()
		return nil, ErrOrderNotTrackable
	}

	now := s.clock.Now().UTC()
	lat, lng := location.Round(req.Lat), location.Round(req.Lng)

	for _, id := range result.Accepted {
		if err := s.locationStore.UpdateOrderLocation(ctx, id, lat, lng, now); err != nil {
			return nil, err
		}
	}

	record := &domain.LocationRecord{
		ID:         uuid.New().String(),
		DriverID:   req.DriverID,
		OrderIDs:   result.Accepted,
		Lat:        lat,
		Lng:        lng,
		ReceivedAt: now,
	}
	if err := s.locationRepo.Append(ctx, record); err != nil {
		return nil, err
	}

	// A driver reporting for an order is on duty.
	err := s.driverRepo.UpdateStatus(ctx, req.DriverID, domain.DriverStatusOnDuty)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	metrics.LocationUpdatesIngested.WithLabelValues(metrics.IngestAccepted).Inc()
	return result, nil
}

// LatestLocation returns the most recent position reported for an order.
func (s *TrackingService) LatestLocation(ctx context.Context, orderID string) (*domain.OrderLocation, error) {
	if orderID == "" {
		return nil, ErrInvalidOrderID
	}

	loc, err := s.locationStore.OrderLocation(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, repository.ErrNotFound
	}

	return &domain.OrderLocation{
		OrderID:   loc.OrderID,
		Lat:       loc.Lat,
		Lng:       loc.Lng,
		UpdatedAt: loc.UpdatedAt,
	}, nil
}

// History returns up to limit history rows for an order, newest first.
func (s *TrackingService) History(ctx context.Context, orderID string, limit int) ([]*domain.LocationRecord, error) {
	if orderID == "" {
		return nil, ErrInvalidOrderID
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.locationRepo.ListByOrder(ctx, orderID, limit)
}
