package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
	// inFlightTTL bounds how long a crashed request can hold its key.
	inFlightTTL = 30 * time.Second
	inFlight    = "in-flight"
)

// StoredReply is a response recorded for an Idempotency-Key.
type StoredReply struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// ReplayStore keeps replies keyed by request identity.
// Reserve returns false when another request already owns the key.
type ReplayStore interface {
	Load(ctx context.Context, key string) (*StoredReply, error)
	Reserve(ctx context.Context, key string) (bool, error)
	Save(ctx context.Context, key string, reply *StoredReply) error
	Release(ctx context.Context, key string) error
}

type redisReplayStore struct {
	client *redis.Client
}

// NewRedisReplayStore stores replies as JSON strings in Redis.
func NewRedisReplayStore(client *redis.Client) ReplayStore {
	return &redisReplayStore{client: client}
}

func (s *redisReplayStore) Load(ctx context.Context, key string) (*StoredReply, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if string(data) == inFlight {
		return &StoredReply{}, nil
	}

	var reply StoredReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (s *redisReplayStore) Reserve(ctx context.Context, key string) (bool, error) {
	return s.client.SetNX(ctx, key, inFlight, inFlightTTL).Result()
}

func (s *redisReplayStore) Save(ctx context.Context, key string, reply *StoredReply) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, idempotencyTTL).Err()
}

func (s *redisReplayStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// recorder tees the handler's body so it can be stored.
type recorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (r *recorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the stored response for a repeated
// Idempotency-Key. A nil client disables replay.
func IdempotencyMiddleware(redisClient *redis.Client) gin.HandlerFunc {
	if redisClient == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return Idempotency(NewRedisReplayStore(redisClient))
}

// Idempotency replays mutating requests that carry an Idempotency-Key.
// Keys are scoped to the route and to the authenticated driver when one is set.
// A retry that arrives while the first attempt is still running gets 409.
func Idempotency(store ReplayStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(idempotencyHeader)
		if key == "" || !mutating(c.Request.Method) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		storeKey := replayKey(c, key)

		reply, err := store.Load(ctx, storeKey)
		if err != nil {
			// Store unavailable: serve without replay.
			c.Next()
			return
		}
		if reply != nil {
			writeReply(c, reply)
			return
		}

		owned, err := store.Reserve(ctx, storeKey)
		if err != nil {
			c.Next()
			return
		}
		if !owned {
			writeReply(c, &StoredReply{})
			return
		}

		rec := &recorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		saveCtx := context.WithoutCancel(ctx)
		status := rec.Status()
		if status >= http.StatusInternalServerError {
			// Let the client retry server failures.
			_ = store.Release(saveCtx, storeKey)
			return
		}
		_ = store.Save(saveCtx, storeKey, &StoredReply{
			Status:      status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func replayKey(c *gin.Context, key string) string {
	parts := []string{"idempotency", c.Request.Method, c.FullPath()}
	if driverID := DriverID(c); driverID != "" {
		parts = append(parts, driverID)
	}
	return strings.Join(append(parts, key), ":")
}

// writeReply answers from a stored reply. A zero Status marks a key that is
// still being processed.
func writeReply(c *gin.Context, reply *StoredReply) {
	if reply.Status == 0 {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"message": "request with this idempotency key is in progress"})
		return
	}
	contentType := reply.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Header("Idempotent-Replayed", "true")
	c.Data(reply.Status, contentType, reply.Body)
	c.Abort()
}
