package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DyakonovAlex/smart-home/internal/controller"
	"github.com/DyakonovAlex/smart-home/internal/emulator"
	"github.com/DyakonovAlex/smart-home/internal/home"
	"github.com/DyakonovAlex/smart-home/internal/infrastructure/config"
	"github.com/DyakonovAlex/smart-home/internal/infrastructure/database"
	"github.com/DyakonovAlex/smart-home/internal/infrastructure/logging"
	"github.com/DyakonovAlex/smart-home/internal/journal"
	"github.com/DyakonovAlex/smart-home/migrations"
)

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error"}, "test", "test")
}

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}
}

// newTestServer creates a Server from deps, filling in logger and version.
func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	deps.Logger = testLogger()
	deps.WS = testWSConfig()
	deps.Version = "test"
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv
}

// startOutlet runs a socket emulator and returns a controller connected to it.
func startOutlet(t *testing.T) *controller.SocketController {
	t.Helper()
	emu := emulator.NewSocketEmulator(emulator.SocketConfig{PowerRating: 2000})
	if err := emu.Start(); err != nil {
		t.Fatalf("emulator Start() error: %v", err)
	}
	t.Cleanup(emu.Stop)

	addr, err := emu.LocalAddr()
	if err != nil {
		t.Fatalf("LocalAddr() error: %v", err)
	}
	c := controller.NewSocketController(controller.SocketConfig{
		Address: addr.String(),
		Timeout: time.Second,
	})
	t.Cleanup(func() { c.Close() })
	return c
}

func startTherm(t *testing.T) *controller.ThermController {
	t.Helper()
	c := controller.NewThermController(controller.ThermConfig{
		ListenAddress: "127.0.0.1:0",
		MaxAge:        time.Second,
	})
	if err := c.Start(); err != nil {
		t.Fatalf("therm Start() error: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func openJournal(t *testing.T) *journal.SQLiteRepository {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "events.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	return journal.NewSQLiteRepository(db.DB)
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// ─── Health and middleware ─────────────────────────────────────────

func TestNew_RequiresLogger(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger succeeded")
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, Deps{
		Checks: map[string]HealthChecker{
			"database": checkFunc(func(context.Context) error { return nil }),
		},
	})

	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/health")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var resp struct {
		Status     string                     `json:"status"`
		Version    string                     `json:"version"`
		Components map[string]ComponentHealth `json:"components"`
	}
	decode(t, w, &resp)
	if resp.Status != "ok" || resp.Version != "test" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Components["database"].Status != "ok" {
		t.Errorf("database component = %+v", resp.Components["database"])
	}
}

func TestHealth_Degraded(t *testing.T) {
	srv := newTestServer(t, Deps{
		Checks: map[string]HealthChecker{
			"mqtt": checkFunc(func(context.Context) error { return errors.New("not connected") }),
		},
	})

	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("health status = %d, want 503", w.Code)
	}
	var resp struct {
		Status     string                     `json:"status"`
		Components map[string]ComponentHealth `json:"components"`
	}
	decode(t, w, &resp)
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if got := resp.Components["mqtt"]; got.Status != "error" || got.Error != "not connected" {
		t.Errorf("mqtt component = %+v", got)
	}
}

func TestRequestID(t *testing.T) {
	srv := newTestServer(t, Deps{})

	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/health")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestNotFound(t *testing.T) {
	srv := newTestServer(t, Deps{})
	if w := do(t, srv.Handler(), http.MethodGet, "/api/v1/nonexistent"); w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want 404", w.Code)
	}
}

// ─── Outlet ────────────────────────────────────────────────────────

func TestOutletEndpoints(t *testing.T) {
	srv := newTestServer(t, Deps{Outlet: startOutlet(t)})
	h := srv.Handler()

	steps := []struct {
		method     string
		path       string
		wantActive bool
		wantPower  float64
	}{
		{http.MethodGet, "/api/v1/outlet", false, 0},
		{http.MethodPost, "/api/v1/outlet/on", true, 2000},
		{http.MethodGet, "/api/v1/outlet/power", true, 2000},
		{http.MethodPost, "/api/v1/outlet/off", false, 0},
		{http.MethodGet, "/api/v1/outlet", false, 0},
	}

	for _, step := range steps {
		w := do(t, h, step.method, step.path)
		if w.Code != http.StatusOK {
			t.Fatalf("%s %s status = %d, body %s", step.method, step.path, w.Code, w.Body.String())
		}
		var resp struct {
			Active bool    `json:"active"`
			Power  float64 `json:"power"`
		}
		decode(t, w, &resp)
		if resp.Active != step.wantActive || resp.Power != step.wantPower {
			t.Errorf("%s %s = %+v, want active=%v power=%v",
				step.method, step.path, resp, step.wantActive, step.wantPower)
		}
	}
}

func TestOutletUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := controller.NewSocketController(controller.SocketConfig{Address: addr, Timeout: time.Second})
	defer c.Close()
	srv := newTestServer(t, Deps{Outlet: c})

	w := do(t, srv.Handler(), http.MethodPost, "/api/v1/outlet/on")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503; body %s", w.Code, w.Body.String())
	}
	var apiErr Error
	decode(t, w, &apiErr)
	if apiErr.Code != ErrCodeUnavailable {
		t.Errorf("code = %q, want %q", apiErr.Code, ErrCodeUnavailable)
	}
}

func TestOutletNotConfigured(t *testing.T) {
	srv := newTestServer(t, Deps{})
	for _, path := range []string{"/api/v1/outlet", "/api/v1/therm"} {
		if w := do(t, srv.Handler(), http.MethodGet, path); w.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s status = %d, want 503", path, w.Code)
		}
	}
}

func TestControllerErrorStatus(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{&controller.DeviceError{Message: "overheated"}, http.StatusBadGateway, ErrCodeDeviceError},
		{fmt.Errorf("%w: connect", controller.ErrTimeout), http.StatusGatewayTimeout, ErrCodeTimeout},
		{fmt.Errorf("%w: refused", controller.ErrConnection), http.StatusServiceUnavailable, ErrCodeUnavailable},
		{controller.ErrNoFreshData, http.StatusServiceUnavailable, ErrCodeNoFreshData},
		{controller.ErrClosed, http.StatusServiceUnavailable, ErrCodeUnavailable},
		{fmt.Errorf("%w: reset", controller.ErrCommand), http.StatusBadGateway, ErrCodeCommandFailed},
		{errors.New("other"), http.StatusInternalServerError, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			status, code := controllerErrorStatus(tt.err)
			if status != tt.wantStatus || code != tt.wantCode {
				t.Errorf("controllerErrorStatus(%v) = %d, %q; want %d, %q",
					tt.err, status, code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

// ─── Thermometer ───────────────────────────────────────────────────

func TestThermStaleThenFresh(t *testing.T) {
	therm := startTherm(t)
	srv := newTestServer(t, Deps{Therm: therm})
	h := srv.Handler()

	w := do(t, h, http.MethodGet, "/api/v1/therm")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status before any sample = %d, want 503", w.Code)
	}
	var stale ThermResponse
	decode(t, w, &stale)
	if stale.Fresh || stale.Temperature != nil || stale.Error == "" {
		t.Errorf("stale response = %+v", stale)
	}

	conn, err := net.Dial("udp", therm.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial udp: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(`{"temperature":23.5,"device_id":"t1"}`)); err != nil {
		t.Fatalf("write sample: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		w = do(t, h, http.MethodGet, "/api/v1/therm")
		if w.Code == http.StatusOK || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if w.Code != http.StatusOK {
		t.Fatalf("status after sample = %d, want 200", w.Code)
	}
	var fresh ThermResponse
	decode(t, w, &fresh)
	if !fresh.Fresh || fresh.Temperature == nil || *fresh.Temperature != 23.5 || fresh.LastUpdate == nil {
		t.Errorf("fresh response = %+v", fresh)
	}
}

// ─── Home and events ───────────────────────────────────────────────

func TestHomeEndpoint(t *testing.T) {
	house := home.New("flat")
	room := home.NewRoom()
	room.AddController("outlet", controller.NewSocketController(controller.SocketConfig{Address: "127.0.0.1:1"}))
	house.AddRoom("living_room", room)

	srv := newTestServer(t, Deps{Home: house})

	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/home")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var summary home.Summary
	decode(t, w, &summary)
	if summary.Name != "flat" || len(summary.Rooms) != 1 || summary.Rooms[0].Name != "living_room" {
		t.Errorf("summary = %+v", summary)
	}

	w = do(t, srv.Handler(), http.MethodGet, "/api/v1/home?format=text")
	if !strings.Contains(w.Body.String(), "Room: living_room") {
		t.Errorf("text report = %q", w.Body.String())
	}
}

func TestEventsEndpoint(t *testing.T) {
	repo := openJournal(t)
	ctx := context.Background()
	for _, e := range []journal.Event{
		{DeviceID: "outlet1", Kind: journal.KindOutletCommand},
		{DeviceID: "outlet1", Kind: journal.KindOutletTransition},
		{DeviceID: "outlet1", Kind: journal.KindOutletCommand},
		{DeviceID: "therm1", Kind: journal.KindThermStale},
	} {
		if err := repo.Record(ctx, &e); err != nil {
			t.Fatalf("Record() error: %v", err)
		}
	}

	srv := newTestServer(t, Deps{Journal: repo})
	h := srv.Handler()

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCount  int
	}{
		{"all", "", http.StatusOK, 4},
		{"by device", "?device_id=outlet1", http.StatusOK, 3},
		{"by device and limit", "?device_id=outlet1&limit=2", http.StatusOK, 2},
		{"by kind", "?kind=therm_stale", http.StatusOK, 1},
		{"bad limit", "?limit=zero", http.StatusBadRequest, 0},
		{"bad kind", "?kind=exploded", http.StatusBadRequest, 0},
		{"bad since", "?since=yesterday", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodGet, "/api/v1/events"+tt.query)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp struct {
				Events []journal.Event `json:"events"`
				Count  int             `json:"count"`
			}
			decode(t, w, &resp)
			if resp.Count != tt.wantCount || len(resp.Events) != tt.wantCount {
				t.Errorf("count = %d (%d events), want %d", resp.Count, len(resp.Events), tt.wantCount)
			}
		})
	}
}

func TestEventsJournalDisabled(t *testing.T) {
	srv := newTestServer(t, Deps{})
	if w := do(t, srv.Handler(), http.MethodGet, "/api/v1/events"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

// ─── Metrics ───────────────────────────────────────────────────────

func TestMetrics(t *testing.T) {
	srv := newTestServer(t, Deps{Outlet: startOutlet(t), Therm: startTherm(t)})
	h := srv.Handler()

	if w := do(t, h, http.MethodPost, "/api/v1/outlet/on"); w.Code != http.StatusOK {
		t.Fatalf("outlet on status = %d", w.Code)
	}

	w := do(t, h, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"smarthome_outlet_commands_total 1",
		"smarthome_outlet_active 1",
		"smarthome_outlet_power_watts 2000",
		"smarthome_therm_fresh 0",
		"smarthome_websocket_clients 0",
		`smarthome_http_requests_total{route="/api/v1/outlet/on",status="200"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────

func TestWebSocketOutletEvents(t *testing.T) {
	srv := newTestServer(t, Deps{Outlet: startOutlet(t)})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.hub.Run(ctx)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?channels=" + ChannelOutletState
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for srv.hub.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	post, err := http.Post(ts.URL+"/api/v1/outlet/on", "application/json", nil)
	if err != nil {
		t.Fatalf("POST outlet/on: %v", err)
	}
	post.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	var msg struct {
		Type      string         `json:"type"`
		EventType string         `json:"event_type"`
		Payload   OutletResponse `json:"payload"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if msg.Type != WSTypeEvent || msg.EventType != ChannelOutletState {
		t.Errorf("message = %+v", msg)
	}
	if !msg.Payload.Active || msg.Payload.Power != 2000 {
		t.Errorf("payload = %+v", msg.Payload)
	}
}

func TestWebSocketUnknownChannel(t *testing.T) {
	srv := newTestServer(t, Deps{})
	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/ws?channels=weather")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(testWSConfig(), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	subscribed := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{ChannelThermReading: {}},
	}
	other := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{ChannelOutletState: {}},
	}
	hub.Register(subscribed)
	hub.Register(other)
	if hub.ClientCount() != 2 {
		t.Fatalf("ClientCount() = %d, want 2", hub.ClientCount())
	}

	hub.Broadcast(ChannelThermReading, thermPayload(controller.Reading{Temperature: 21}, time.Now()))

	select {
	case data := <-subscribed.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.EventType != ChannelThermReading {
			t.Errorf("event_type = %q", msg.EventType)
		}
	case <-time.After(time.Second):
		t.Error("subscribed client got no message")
	}

	select {
	case <-other.send:
		t.Error("unsubscribed client received a message")
	case <-time.After(50 * time.Millisecond):
	}

	hub.Unregister(subscribed)
	hub.Unregister(subscribed)
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount() after unregister = %d, want 1", hub.ClientCount())
	}
}

func TestKeepalive(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.WebSocketConfig
		wantPing time.Duration
		wantPong time.Duration
	}{
		{"configured", config.WebSocketConfig{PingInterval: 10, PongTimeout: 5}, 10 * time.Second, 5 * time.Second},
		{"unset ping", config.WebSocketConfig{PongTimeout: 5}, defaultPingInterval, 5 * time.Second},
		{"unset pong", config.WebSocketConfig{PingInterval: 10}, 10 * time.Second, 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ping, pong := keepalive(tt.cfg)
			if ping != tt.wantPing || pong != tt.wantPong {
				t.Errorf("keepalive() = %v, %v, want %v, %v", ping, pong, tt.wantPing, tt.wantPong)
			}
		})
	}
}

func TestWSClient_Dispatch(t *testing.T) {
	hub := NewHub(testWSConfig(), testLogger())
	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{},
	}

	next := func() WSMessage {
		t.Helper()
		select {
		case data := <-client.send:
			var msg WSMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			return msg
		case <-time.After(time.Second):
			t.Fatal("no reply queued")
			return WSMessage{}
		}
	}

	client.dispatch([]byte(`{"type":"ping","id":"p1"}`))
	if msg := next(); msg.Type != WSTypePong || msg.ID != "p1" {
		t.Errorf("ping reply = %+v", msg)
	}

	client.dispatch([]byte(`{"type":"subscribe","id":"s1","payload":{"channels":["outlet.state","weather"]}}`))
	if msg := next(); msg.Type != WSTypeError {
		t.Errorf("unknown channel reply = %+v, want error", msg)
	}
	if client.wants(ChannelOutletState) {
		t.Error("rejected subscribe changed subscriptions")
	}

	client.dispatch([]byte(`{"type":"subscribe","id":"s2","payload":{"channels":["outlet.state"]}}`))
	if msg := next(); msg.Type != WSTypeResponse || msg.ID != "s2" {
		t.Errorf("subscribe reply = %+v", msg)
	}
	if !client.wants(ChannelOutletState) {
		t.Error("subscribe did not take effect")
	}

	client.dispatch([]byte(`{"type":"unsubscribe","id":"u1","payload":{"channels":["outlet.state"]}}`))
	next()
	if client.wants(ChannelOutletState) {
		t.Error("unsubscribe did not take effect")
	}

	client.dispatch([]byte(`not json`))
	if msg := next(); msg.Type != WSTypeError {
		t.Errorf("garbage reply = %+v, want error", msg)
	}
}

func TestServerStartClose(t *testing.T) {
	srv := newTestServer(t, Deps{})
	srv.cfg = config.APIConfig{Host: "127.0.0.1", Port: 0, Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5}}

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start succeeded")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr().String() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}
