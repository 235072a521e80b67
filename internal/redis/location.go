package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	orderLocationKey   = "orders:locations"
	orderLocationTSKey = "orders:locations:updated_at"
)

// OrderLocation represents the latest reported position of an order.
type OrderLocation struct {
	OrderID   string
	Lat       float64
	Lng       float64
	UpdatedAt time.Time
}

// LocationStore handles latest order positions in Redis.
type LocationStore struct {
	client *redis.Client
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client *redis.Client) *LocationStore {
	return &LocationStore{client: client}
}

// UpdateOrderLocation stores an order's position using GEOADD and records
// when it was received.
func (s *LocationStore) UpdateOrderLocation(ctx context.Context, orderID string, lat, lng float64, at time.Time) error {
	pipe := s.client.TxPipeline()
	pipe.GeoAdd(ctx, orderLocationKey, &redis.GeoLocation{
		Name:      orderID,
		Longitude: lng,
		Latitude:  lat,
	})
	pipe.HSet(ctx, orderLocationTSKey, orderID, at.UnixMilli())
	_, err := pipe.Exec(ctx)
	return err
}

// OrderLocation returns the latest position of an order, or nil if none was reported.
func (s *LocationStore) OrderLocation(ctx context.Context, orderID string) (*OrderLocation, error) {
	positions, err := s.client.GeoPos(ctx, orderLocationKey, orderID).Result()
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 || positions[0] == nil {
		return nil, nil
	}

	loc := &OrderLocation{
		OrderID: orderID,
		Lat:     positions[0].Latitude,
		Lng:     positions[0].Longitude,
	}

	raw, err := s.client.HGet(ctx, orderLocationTSKey, orderID).Result()
	switch {
	case err == redis.Nil:
	case err != nil:
		return nil, err
	default:
		if ms, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			loc.UpdatedAt = time.UnixMilli(ms)
		}
	}

	return loc, nil
}

// RemoveOrderLocation removes an order from the geo index.
func (s *LocationStore) RemoveOrderLocation(ctx context.Context, orderID string) error {
	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, orderLocationKey, orderID)
	pipe.HDel(ctx, orderLocationTSKey, orderID)
	_, err := pipe.Exec(ctx)
	return err
}
