package tests

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"courier/internal/app"
	"courier/internal/credentials"
	"courier/internal/domain"
	"courier/internal/handler"
	"courier/internal/orders"
	"courier/internal/service"
	"courier/internal/session"
	"courier/internal/telemetry"
	"courier/internal/transport"
)

// ──────────────────────────────────────────────
// 6. AGENT AGAINST GATEWAY
// ──────────────────────────────────────────────

const (
	e2ePhone = "+15550142"
	e2ePIN   = "8642"
)

type gatewayFixture struct {
	clock     *quartz.Mock
	server    *httptest.Server
	orders    *MockOrderRepository
	locations *MockLocationStore
	sessions  *MockSessionStore
	auth      *service.AuthService
	driverID  string
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx := context.Background()
	f := &gatewayFixture{
		clock:     quartz.NewMock(t),
		orders:    NewMockOrderRepository(),
		locations: NewMockLocationStore(),
		sessions:  NewMockSessionStore(),
	}
	f.clock.Set(fixedTime).MustWait(ctx)

	drivers := NewMockDriverRepository()
	driverService := service.NewDriverService(drivers)
	driver, err := driverService.Register(ctx, service.RegisterDriverRequest{Name: "Sam", Phone: e2ePhone, PIN: e2ePIN})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	f.driverID = driver.ID

	f.auth = service.NewAuthService(drivers, f.sessions, service.AuthOptions{
		Secret:     []byte("e2e-secret"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		Clock:      f.clock,
	})
	orderService := service.NewOrderService(f.orders, drivers, f.locations, NewMockLockStore(), f.clock)
	trackingService := service.NewTrackingService(f.orders, NewMockLocationRepository(), drivers, f.locations, f.clock)

	router := app.NewRouter(app.RouterDeps{
		Logger:          zerolog.Nop(),
		AuthHandler:     handler.NewAuthHandler(f.auth),
		DriverHandler:   handler.NewDriverHandler(driverService),
		OrderHandler:    handler.NewOrderHandler(orderService),
		TrackingHandler: handler.NewTrackingHandler(trackingService),
		TokenVerifier:   f.auth,
	})
	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

type agentFixture struct {
	store      *credentials.MemoryStore
	api        *transport.Client
	sessions   *session.Manager
	orders     *orders.Client
	reporter   *telemetry.Reporter
	forcedOuts atomic.Int32
}

func newAgentFixture(g *gatewayFixture) *agentFixture {
	a := &agentFixture{store: credentials.NewMemoryStore(nil)}
	a.api = transport.New(zerolog.Nop(), a.store, transport.Options{
		BaseURL:        g.server.URL,
		Timeout:        5 * time.Second,
		Clock:          g.clock,
		OnForcedLogout: func(error) { a.forcedOuts.Add(1) },
	})
	a.sessions = session.NewManager(zerolog.Nop(), a.api, a.store)
	a.orders = orders.NewClient(a.api)
	a.reporter = telemetry.NewReporter(zerolog.Nop(), a.api, telemetry.ReporterOptions{})
	return a
}

var berlin = domain.LocationSample{Latitude: 52.5200066, Longitude: 13.404954, TimestampMs: fixedTime.UnixMilli()}

func TestEndToEnd_TrackingFlowSurvivesAccessExpiry(t *testing.T) {
	g := newGatewayFixture(t)
	a := newAgentFixture(g)
	ctx := context.Background()

	g.orders.AddOrder(&domain.DeliveryOrder{ID: "A", DriverID: g.driverID, Status: domain.OrderStatusAccepted, LiveTrackingEnabled: true})

	if err := a.sessions.Login(ctx, e2ePhone, e2ePIN); err != nil {
		t.Fatalf("login: %v", err)
	}

	list, err := a.orders.FetchOrders(ctx)
	if err != nil {
		t.Fatalf("fetch orders: %v", err)
	}
	if len(list) != 1 || list[0].Eligible() {
		t.Fatalf("expected one accepted (not yet eligible) order, got %+v", list)
	}

	if err := a.orders.SubmitStatus(ctx, "A", domain.OrderStatusInProgress); err != nil {
		t.Fatalf("submit status: %v", err)
	}
	list, err = a.orders.FetchOrders(ctx)
	if err != nil {
		t.Fatalf("fetch orders: %v", err)
	}
	if len(list) != 1 || !list[0].Eligible() {
		t.Fatalf("expected A to be eligible after in_progress, got %+v", list)
	}

	if !a.reporter.Report(ctx, berlin, []string{"A"}) {
		t.Fatal("expected first report to be accepted")
	}
	if !g.locations.HasLocation("A") {
		t.Fatal("expected gateway to store the position")
	}

	before, _ := a.store.Load(ctx)

	// Past the access token lifetime the gateway answers 401 and the agent
	// refreshes once and retries.
	g.clock.Advance(20 * time.Minute).MustWait(ctx)

	if !a.reporter.Report(ctx, berlin, []string{"A"}) {
		t.Fatal("expected report after refresh to be accepted")
	}

	after, _ := a.store.Load(ctx)
	if after == nil || after.AccessToken == before.AccessToken {
		t.Error("expected a new access token to be stored")
	}
	if after.RefreshToken == before.RefreshToken {
		t.Error("expected the refresh token to be rotated")
	}
	if n := a.forcedOuts.Load(); n != 0 {
		t.Errorf("expected no forced logout, got %d", n)
	}
	if n := a.api.RefreshAttempts(); n != 0 {
		t.Errorf("expected refresh counter reset, got %d", n)
	}
}

func TestEndToEnd_RevokedSessionForcesLogout(t *testing.T) {
	g := newGatewayFixture(t)
	a := newAgentFixture(g)
	ctx := context.Background()

	g.orders.AddOrder(&domain.DeliveryOrder{ID: "A", DriverID: g.driverID, Status: domain.OrderStatusInTransit, LiveTrackingEnabled: true})

	if err := a.sessions.Login(ctx, e2ePhone, e2ePIN); err != nil {
		t.Fatalf("login: %v", err)
	}
	cred, _ := a.store.Load(ctx)
	if err := g.auth.Logout(ctx, cred.RefreshToken); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	g.clock.Advance(20 * time.Minute).MustWait(ctx)

	if a.reporter.Report(ctx, berlin, []string{"A"}) {
		t.Fatal("expected report to fail once the session is gone")
	}
	if n := a.forcedOuts.Load(); n != 1 {
		t.Errorf("expected one forced logout, got %d", n)
	}
	if a.sessions.Authenticated(ctx) {
		t.Error("expected stored session to be cleared")
	}
}

func TestEndToEnd_WrongPIN(t *testing.T) {
	g := newGatewayFixture(t)
	a := newAgentFixture(g)

	err := a.sessions.Login(context.Background(), e2ePhone, "0000")
	if err != session.ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestGateway_UnauthenticatedRequest_TokenInvalidBody(t *testing.T) {
	g := newGatewayFixture(t)

	resp, err := http.Post(g.server.URL+"/driver/tracking/update-location", "application/json",
		strings.NewReader(`{"order_id":"A","latitude":1.0000000,"longitude":2.0000000}`))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Message != "Token is invalid" {
		t.Errorf("unexpected message %q", body.Message)
	}
}

func TestGateway_OrderLocationRead(t *testing.T) {
	g := newGatewayFixture(t)
	a := newAgentFixture(g)
	ctx := context.Background()

	g.orders.AddOrder(&domain.DeliveryOrder{ID: "A", DriverID: g.driverID, Status: domain.OrderStatusPickedUp, LiveTrackingEnabled: true})
	if err := a.sessions.Login(ctx, e2ePhone, e2ePIN); err != nil {
		t.Fatalf("login: %v", err)
	}
	if !a.reporter.Report(ctx, berlin, []string{"A"}) {
		t.Fatal("expected report to be accepted")
	}

	resp, err := http.Get(g.server.URL + "/orders/A/location")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var loc handler.OrderLocationResponse
	if err := decodeJSON(resp, &loc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if loc.OrderID != "A" || loc.Lat != 52.5200066 || loc.Lng != 13.404954 {
		t.Errorf("unexpected location %+v", loc)
	}

	missing, err := http.Get(g.server.URL + "/orders/B/location")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown order, got %d", missing.StatusCode)
	}
}
