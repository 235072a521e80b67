package tests

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"courier/internal/domain"
	"courier/internal/redis"
	"courier/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK DRIVER REPOSITORY
// ──────────────────────────────────────────────

// MockDriverRepository is a mock implementation of DriverRepository.
type MockDriverRepository struct {
	mu      sync.RWMutex
	drivers map[string]*domain.Driver

	// Counters for verification
	CreateCallCount       int32
	UpdateStatusCallCount int32

	// Error injection
	CreateError       error
	UpdateStatusError error
}

// NewMockDriverRepository creates a new mock driver repository.
func NewMockDriverRepository() *MockDriverRepository {
	return &MockDriverRepository{
		drivers: make(map[string]*domain.Driver),
	}
}

// AddDriver adds a driver to the mock repository.
func (m *MockDriverRepository) AddDriver(driver *domain.Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[driver.ID] = driver
}

func (m *MockDriverRepository) Create(ctx context.Context, driver *domain.Driver) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[driver.ID] = driver
	return nil
}

func (m *MockDriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	driver, ok := m.drivers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	// Return a copy to avoid mutation issues.
	copy := *driver
	return &copy, nil
}

func (m *MockDriverRepository) GetByPhone(ctx context.Context, phone string) (*domain.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.drivers {
		if d.Phone == phone {
			copy := *d
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockDriverRepository) UpdateStatus(ctx context.Context, id string, status domain.DriverStatus) error {
	atomic.AddInt32(&m.UpdateStatusCallCount, 1)
	if m.UpdateStatusError != nil {
		return m.UpdateStatusError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	driver, ok := m.drivers[id]
	if !ok {
		return repository.ErrNotFound
	}
	driver.Status = status
	return nil
}

// GetDriver returns driver for test assertions.
func (m *MockDriverRepository) GetDriver(id string) *domain.Driver {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.drivers[id]
}

// ──────────────────────────────────────────────
// MOCK ORDER REPOSITORY
// ──────────────────────────────────────────────

// MockOrderRepository is a mock implementation of OrderRepository.
type MockOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.DeliveryOrder

	// Counters
	UpdateStatusCallCount int32

	// Error injection
	GetByIDError error
}

// NewMockOrderRepository creates a new mock order repository.
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[string]*domain.DeliveryOrder),
	}
}

// AddOrder adds an order to the mock repository.
func (m *MockOrderRepository) AddOrder(order *domain.DeliveryOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
}

func (m *MockOrderRepository) Create(ctx context.Context, order *domain.DeliveryOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
	return nil
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id string) (*domain.DeliveryOrder, error) {
	if m.GetByIDError != nil {
		return nil, m.GetByIDError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *order
	return &copy, nil
}

func (m *MockOrderRepository) ListByDriver(ctx context.Context, driverID string) ([]*domain.DeliveryOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.DeliveryOrder
	for _, o := range m.orders {
		if o.DriverID == driverID && !o.Status.Terminal() {
			copy := *o
			result = append(result, &copy)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	atomic.AddInt32(&m.UpdateStatusCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	order.Status = status
	return nil
}

// GetOrder returns order for test assertions.
func (m *MockOrderRepository) GetOrder(id string) *domain.DeliveryOrder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.orders[id]
}

// ──────────────────────────────────────────────
// MOCK LOCATION HISTORY REPOSITORY
// ──────────────────────────────────────────────

// MockLocationRepository is a mock implementation of LocationRepository.
type MockLocationRepository struct {
	mu      sync.Mutex
	records []*domain.LocationRecord

	// Counters
	AppendCallCount int32

	// Error injection
	AppendError error
}

// NewMockLocationRepository creates a new mock location history repository.
func NewMockLocationRepository() *MockLocationRepository {
	return &MockLocationRepository{}
}

func (m *MockLocationRepository) Append(ctx context.Context, record *domain.LocationRecord) error {
	atomic.AddInt32(&m.AppendCallCount, 1)
	if m.AppendError != nil {
		return m.AppendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *MockLocationRepository) ListByOrder(ctx context.Context, orderID string, limit int) ([]*domain.LocationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.LocationRecord
	for i := len(m.records) - 1; i >= 0 && len(result) < limit; i-- {
		for _, id := range m.records[i].OrderIDs {
			if id == orderID {
				result = append(result, m.records[i])
				break
			}
		}
	}
	return result, nil
}

// Records returns all appended rows.
func (m *MockLocationRepository) Records() []*domain.LocationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.LocationRecord, len(m.records))
	copy(out, m.records)
	return out
}

// ──────────────────────────────────────────────
// MOCK LOCATION STORE
// ──────────────────────────────────────────────

// MockLocationStore is a mock implementation of LocationStore.
type MockLocationStore struct {
	mu        sync.RWMutex
	locations map[string]redis.OrderLocation

	// Counters
	UpdateLocationCallCount int32
	RemoveLocationCallCount int32

	// Error injection
	UpdateLocationError error
}

// NewMockLocationStore creates a new mock location store.
func NewMockLocationStore() *MockLocationStore {
	return &MockLocationStore{
		locations: make(map[string]redis.OrderLocation),
	}
}

func (m *MockLocationStore) UpdateOrderLocation(ctx context.Context, orderID string, lat, lng float64, at time.Time) error {
	atomic.AddInt32(&m.UpdateLocationCallCount, 1)
	if m.UpdateLocationError != nil {
		return m.UpdateLocationError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations[orderID] = redis.OrderLocation{OrderID: orderID, Lat: lat, Lng: lng, UpdatedAt: at}
	return nil
}

func (m *MockLocationStore) OrderLocation(ctx context.Context, orderID string) (*redis.OrderLocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loc, ok := m.locations[orderID]
	if !ok {
		return nil, nil
	}
	return &loc, nil
}

func (m *MockLocationStore) RemoveOrderLocation(ctx context.Context, orderID string) error {
	atomic.AddInt32(&m.RemoveLocationCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locations, orderID)
	return nil
}

// HasLocation checks if an order location exists.
func (m *MockLocationStore) HasLocation(orderID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.locations[orderID]
	return ok
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of LockStore.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]mockLock
	seq   int

	// Counters
	AcquireCallCount int32
	ReleaseCallCount int32

	// Error injection
	AcquireError error

	// Force lock failure
	ForceAcquireFailure bool
}

type mockLock struct {
	token  string
	expiry time.Time
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{
		locks: make(map[string]mockLock),
	}
}

func (m *MockLockStore) AcquireOrderLock(ctx context.Context, orderID string, ttl time.Duration) (string, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return "", m.AcquireError
	}
	if m.ForceAcquireFailure {
		return "", nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := "lock:order:" + orderID
	if held, exists := m.locks[key]; exists {
		if time.Now().Before(held.expiry) {
			return "", nil // Lock still held.
		}
	}

	m.seq++
	token := fmt.Sprintf("token-%d", m.seq)
	m.locks[key] = mockLock{token: token, expiry: time.Now().Add(ttl)}
	return token, nil
}

func (m *MockLockStore) ReleaseOrderLock(ctx context.Context, orderID, token string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	key := "lock:order:" + orderID
	if held, ok := m.locks[key]; ok && held.token == token {
		delete(m.locks, key)
	}
	return nil
}

// IsLocked checks if an order is locked (for test assertions).
func (m *MockLockStore) IsLocked(orderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	held, exists := m.locks["lock:order:"+orderID]
	return exists && time.Now().Before(held.expiry)
}

// ──────────────────────────────────────────────
// MOCK SESSION STORE
// ──────────────────────────────────────────────

// MockSessionStore is a mock implementation of SessionStore.
type MockSessionStore struct {
	mu       sync.Mutex
	sessions map[string]domain.RefreshSession

	// Counters
	SaveCallCount    int32
	ConsumeCallCount int32
}

// NewMockSessionStore creates a new mock session store.
func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{
		sessions: make(map[string]domain.RefreshSession),
	}
}

func (m *MockSessionStore) SaveSession(ctx context.Context, session *domain.RefreshSession, ttl time.Duration) error {
	atomic.AddInt32(&m.SaveCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = *session
	return nil
}

func (m *MockSessionStore) ConsumeSession(ctx context.Context, id string) (*domain.RefreshSession, error) {
	atomic.AddInt32(&m.ConsumeCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	delete(m.sessions, id)
	return &session, nil
}

func (m *MockSessionStore) RevokeSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Count returns the number of live sessions.
func (m *MockSessionStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// fixedTime is a stable timestamp for fixtures.
var fixedTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func decodeJSON(resp *http.Response, v any) error {
	return json.NewDecoder(resp.Body).Decode(v)
}
