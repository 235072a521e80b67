package tests

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"

	"courier/internal/middleware"
)

// ──────────────────────────────────────────────
// 7. IDEMPOTENT REPLAY
// ──────────────────────────────────────────────

type memoryReplayStore struct {
	mu      sync.Mutex
	replies map[string]*middleware.StoredReply
}

func newMemoryReplayStore() *memoryReplayStore {
	return &memoryReplayStore{replies: make(map[string]*middleware.StoredReply)}
}

func (s *memoryReplayStore) Load(_ context.Context, key string) (*middleware.StoredReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reply, ok := s.replies[key]
	if !ok {
		return nil, nil
	}
	copied := *reply
	return &copied, nil
}

func (s *memoryReplayStore) Reserve(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.replies[key]; ok {
		return false, nil
	}
	s.replies[key] = &middleware.StoredReply{}
	return true, nil
}

func (s *memoryReplayStore) Save(_ context.Context, key string, reply *middleware.StoredReply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[key] = reply
	return nil
}

func (s *memoryReplayStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.replies, key)
	return nil
}

func (s *memoryReplayStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.replies)
}

func newReplayRouter(store middleware.ReplayStore, status int, calls *atomic.Int32) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Idempotency(store))
	r.POST("/orders", func(c *gin.Context) {
		n := calls.Add(1)
		c.JSON(status, gin.H{"call": n})
	})
	return r
}

func postWithKey(r http.Handler, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	var calls atomic.Int32
	store := newMemoryReplayStore()
	r := newReplayRouter(store, http.StatusCreated, &calls)

	first := postWithKey(r, "k-1")
	second := postWithKey(r, "k-1")

	if calls.Load() != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls.Load())
	}
	if second.Code != http.StatusCreated {
		t.Errorf("expected replayed 201, got %d", second.Code)
	}
	if second.Body.String() != first.Body.String() {
		t.Errorf("expected identical body, got %q vs %q", second.Body.String(), first.Body.String())
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Error("expected replay marker header")
	}
}

func TestIdempotency_WithoutKeyAlwaysRuns(t *testing.T) {
	var calls atomic.Int32
	store := newMemoryReplayStore()
	r := newReplayRouter(store, http.StatusOK, &calls)

	postWithKey(r, "")
	postWithKey(r, "")

	if calls.Load() != 2 {
		t.Errorf("expected 2 handler calls, got %d", calls.Load())
	}
	if store.Len() != 0 {
		t.Errorf("expected nothing stored, got %d entries", store.Len())
	}
}

func TestIdempotency_ServerErrorIsNotStored(t *testing.T) {
	var calls atomic.Int32
	store := newMemoryReplayStore()
	r := newReplayRouter(store, http.StatusInternalServerError, &calls)

	postWithKey(r, "k-2")
	postWithKey(r, "k-2")

	if calls.Load() != 2 {
		t.Errorf("expected retry after 500 to reach the handler, got %d calls", calls.Load())
	}
	if store.Len() != 0 {
		t.Errorf("expected key released, got %d entries", store.Len())
	}
}

func TestIdempotency_InFlightKeyConflicts(t *testing.T) {
	var calls atomic.Int32
	store := newMemoryReplayStore()
	if _, err := store.Reserve(context.Background(), "idempotency:POST:/orders:k-3"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	r := newReplayRouter(store, http.StatusOK, &calls)

	rec := postWithKey(r, "k-3")

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for in-flight key, got %d", rec.Code)
	}
	if calls.Load() != 0 {
		t.Errorf("expected handler not to run, got %d calls", calls.Load())
	}
}
