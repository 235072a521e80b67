package supervisor

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingServer struct {
	started  chan struct{}
	stop     chan struct{}
	shutdown atomic.Int32
}

func newBlockingServer() *blockingServer {
	return &blockingServer{started: make(chan struct{}, 1), stop: make(chan struct{})}
}

func (s *blockingServer) ListenAndServe() error {
	s.started <- struct{}{}
	<-s.stop
	return http.ErrServerClosed
}

func (s *blockingServer) Shutdown(context.Context) error {
	s.shutdown.Add(1)
	close(s.stop)
	return nil
}

func TestTree_RunsAndStopsServices(t *testing.T) {
	tree := NewTree(zerolog.Nop(), TreeConfig{ShutdownTimeout: time.Second})

	server := newBlockingServer()
	tree.AddAPIService(NewHTTPServerService("status-api", server, time.Second))

	var ran atomic.Int32
	tree.AddTrackingService(NewFuncService("loop", func(ctx context.Context) error {
		ran.Add(1)
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tree.Serve(ctx) }()

	select {
	case <-server.started:
	case <-time.After(2 * time.Second):
		t.Fatal("http service did not start")
	}
	require.Eventually(t, func() bool { return ran.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("tree did not stop")
	}
	assert.Equal(t, int32(1), server.shutdown.Load())
}
