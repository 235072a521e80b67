package tests

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"courier/internal/domain"
	"courier/internal/repository"
	"courier/internal/service"
)

// ──────────────────────────────────────────────
// 1. LOCATION INGEST
// ──────────────────────────────────────────────

type ingestFixture struct {
	orders    *MockOrderRepository
	history   *MockLocationRepository
	drivers   *MockDriverRepository
	locations *MockLocationStore
	svc       *service.TrackingService
}

func newIngestFixture() *ingestFixture {
	f := &ingestFixture{
		orders:    NewMockOrderRepository(),
		history:   NewMockLocationRepository(),
		drivers:   NewMockDriverRepository(),
		locations: NewMockLocationStore(),
	}
	f.drivers.AddDriver(&domain.Driver{ID: "driver-1", Phone: "100", Status: domain.DriverStatusOnline})
	f.orders.AddOrder(&domain.DeliveryOrder{ID: "A", DriverID: "driver-1", Status: domain.OrderStatusInProgress, LiveTrackingEnabled: true})
	f.orders.AddOrder(&domain.DeliveryOrder{ID: "B", DriverID: "driver-1", Status: domain.OrderStatusInTransit, LiveTrackingEnabled: true})
	f.orders.AddOrder(&domain.DeliveryOrder{ID: "C", DriverID: "driver-1", Status: domain.OrderStatusAccepted, LiveTrackingEnabled: true})
	f.orders.AddOrder(&domain.DeliveryOrder{ID: "D", DriverID: "driver-1", Status: domain.OrderStatusPickedUp, LiveTrackingEnabled: false})
	f.orders.AddOrder(&domain.DeliveryOrder{ID: "E", DriverID: "driver-2", Status: domain.OrderStatusInProgress, LiveTrackingEnabled: true})
	f.svc = service.NewTrackingService(f.orders, f.history, f.drivers, f.locations, nil)
	return f
}

func TestIngest_BatchedOrdersShareOneHistoryRow(t *testing.T) {
	t.Parallel()
	f := newIngestFixture()

	result, err := f.svc.Ingest(context.Background(), service.IngestRequest{
		DriverID: "driver-1",
		OrderIDs: "A,B",
		Lat:      37.77493,
		Lng:      -122.4194,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(result.Accepted, []string{"A", "B"}) {
		t.Errorf("expected A and B accepted, got %v", result.Accepted)
	}
	if !f.locations.HasLocation("A") || !f.locations.HasLocation("B") {
		t.Error("expected latest position stored for both orders")
	}

	records := f.history.Records()
	if len(records) != 1 {
		t.Fatalf("expected one history row, got %d", len(records))
	}
	if !reflect.DeepEqual(records[0].OrderIDs, []string{"A", "B"}) {
		t.Errorf("expected history row for [A B], got %v", records[0].OrderIDs)
	}
	if records[0].DriverID != "driver-1" {
		t.Errorf("expected driver-1, got %s", records[0].DriverID)
	}
}

func TestIngest_MarksDriverOnDuty(t *testing.T) {
	t.Parallel()
	f := newIngestFixture()

	_, err := f.svc.Ingest(context.Background(), service.IngestRequest{DriverID: "driver-1", OrderIDs: "A", Lat: 1, Lng: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := f.drivers.GetDriver("driver-1").Status; got != domain.DriverStatusOnDuty {
		t.Errorf("expected ON_DUTY, got %s", got)
	}
}

func TestIngest_IgnoresOrdersThatAreNotTrackable(t *testing.T) {
	t.Parallel()
	f := newIngestFixture()

	// C is not yet in progress, D has tracking disabled, E belongs to another
	// driver and Z does not exist.
	result, err := f.svc.Ingest(context.Background(), service.IngestRequest{
		DriverID: "driver-1",
		OrderIDs: "A,C,D,E,Z",
		Lat:      10,
		Lng:      20,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(result.Accepted, []string{"A"}) {
		t.Errorf("expected only A accepted, got %v", result.Accepted)
	}
	if !reflect.DeepEqual(result.Ignored, []string{"C", "D", "E", "Z"}) {
		t.Errorf("unexpected ignored list %v", result.Ignored)
	}
	if f.locations.HasLocation("E") {
		t.Error("another driver's order must not be updated")
	}
}

func TestIngest_NoTrackableOrder_Rejected(t *testing.T) {
	t.Parallel()
	f := newIngestFixture()

	_, err := f.svc.Ingest(context.Background(), service.IngestRequest{DriverID: "driver-1", OrderIDs: "C,E", Lat: 1, Lng: 1})
	if !errors.Is(err, service.ErrOrderNotTrackable) {
		t.Fatalf("expected ErrOrderNotTrackable, got %v", err)
	}
	if len(f.history.Records()) != 0 {
		t.Error("expected no history row")
	}
}

func TestIngest_PlaceholderOnly_AcceptedWithoutStoring(t *testing.T) {
	t.Parallel()
	f := newIngestFixture()

	result, err := f.svc.Ingest(context.Background(), service.IngestRequest{
		DriverID: "driver-1",
		OrderIDs: service.DefaultPlaceholderOrderID,
		Lat:      1,
		Lng:      1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Accepted) != 0 {
		t.Errorf("expected nothing accepted, got %v", result.Accepted)
	}
	if f.history.AppendCallCount != 0 || f.locations.UpdateLocationCallCount != 0 {
		t.Error("placeholder report must not be stored")
	}
}

func TestIngest_InvalidInput_Rejected(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		req     service.IngestRequest
		wantErr error
	}{
		{
			name:    "missing driver",
			req:     service.IngestRequest{OrderIDs: "A", Lat: 1, Lng: 1},
			wantErr: service.ErrInvalidDriverID,
		},
		{
			name:    "latitude too high",
			req:     service.IngestRequest{DriverID: "driver-1", OrderIDs: "A", Lat: 91, Lng: 1},
			wantErr: service.ErrInvalidLocation,
		},
		{
			name:    "longitude too low",
			req:     service.IngestRequest{DriverID: "driver-1", OrderIDs: "A", Lat: 1, Lng: -181},
			wantErr: service.ErrInvalidLocation,
		},
		{
			name:    "blank order ids",
			req:     service.IngestRequest{DriverID: "driver-1", OrderIDs: " , ,", Lat: 1, Lng: 1},
			wantErr: service.ErrInvalidOrderIDs,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newIngestFixture()
			_, err := f.svc.Ingest(context.Background(), tc.req)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestIngest_RoundsToSevenDecimals(t *testing.T) {
	t.Parallel()
	f := newIngestFixture()

	_, err := f.svc.Ingest(context.Background(), service.IngestRequest{
		DriverID: "driver-1",
		OrderIDs: "A",
		Lat:      37.774929999,
		Lng:      -122.419415555,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loc, err := f.svc.LatestLocation(context.Background(), "A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.Lat != 37.77493 || loc.Lng != -122.4194156 {
		t.Errorf("unexpected rounded position %f,%f", loc.Lat, loc.Lng)
	}
}

func TestIngest_RedisError_PropagatesError(t *testing.T) {
	t.Parallel()
	f := newIngestFixture()
	f.locations.UpdateLocationError = errors.New("redis down")

	_, err := f.svc.Ingest(context.Background(), service.IngestRequest{DriverID: "driver-1", OrderIDs: "A", Lat: 1, Lng: 1})
	if err == nil {
		t.Fatal("expected error")
	}
	if f.history.AppendCallCount != 0 {
		t.Error("history must not be written when the live index fails")
	}
}

func TestSplitOrderIDs(t *testing.T) {
	t.Parallel()

	got := service.SplitOrderIDs(" A, B,,A ,C")
	want := []string{"A", "B", "C"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if ids := service.SplitOrderIDs(""); len(ids) != 0 {
		t.Errorf("expected no ids, got %v", ids)
	}
}

// ──────────────────────────────────────────────
// 2. LOCATION READS
// ──────────────────────────────────────────────

func TestLatestLocation_UnknownOrder_NotFound(t *testing.T) {
	t.Parallel()
	f := newIngestFixture()

	_, err := f.svc.LatestLocation(context.Background(), "A")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHistory_NewestFirst(t *testing.T) {
	t.Parallel()
	f := newIngestFixture()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if _, err := f.svc.Ingest(ctx, service.IngestRequest{DriverID: "driver-1", OrderIDs: "A", Lat: float64(i), Lng: 0}); err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}

	records, err := f.svc.History(ctx, "A", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(records))
	}
	if records[0].Lat != 3 || records[1].Lat != 2 {
		t.Errorf("expected newest first, got %f then %f", records[0].Lat, records[1].Lat)
	}
}
