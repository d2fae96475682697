package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/screentime/go/internal/events"
	"github.com/mcdev12/screentime/go/internal/usagetimer"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.UsageLocked
}

func (p *recordingPublisher) PublishLocked(_ context.Context, e events.UsageLocked) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []events.UsageLocked {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.UsageLocked(nil), p.events...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type gatewayHarness struct {
	svc       *Service
	clock     *clockwork.FakeClock
	publisher *recordingPublisher
	server    *httptest.Server
	cancel    context.CancelFunc
}

func newGatewayHarness(t *testing.T, identify IdentifyFunc) *gatewayHarness {
	t.Helper()

	clock := clockwork.NewFakeClock()
	cfg := DefaultConnectionConfig()
	cfg.Clock = clock
	pub := &recordingPublisher{}

	svc := NewService(Config{ConnectionConfig: cfg}, pub, identify)
	ctx, cancel := context.WithCancel(context.Background())
	go svc.Start(ctx)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)

	h := &gatewayHarness{svc: svc, clock: clock, publisher: pub, server: srv, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return h
}

func (h *gatewayHarness) dial(t *testing.T) (*websocket.Conn, *Connection) {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws/timer"
	client, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"User-Agent": {"screentime-test"}})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	var conn *Connection
	waitFor(t, "connection registration", func() bool {
		conns := h.svc.connectionManager.snapshot()
		if len(conns) == 0 {
			return false
		}
		conn = conns[0]
		return true
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("timer never started: %v", err)
	}
	return client, conn
}

// advance moves the fake clock one tick at a time, waiting for each tick to land.
func (h *gatewayHarness) advance(t *testing.T, conn *Connection, ticks int) {
	t.Helper()
	for i := 0; i < ticks; i++ {
		target := conn.Timer.Snapshot().ElapsedSeconds + 1
		h.clock.Advance(usagetimer.TickInterval)
		waitFor(t, "tick", func() bool {
			return conn.Timer.Snapshot().ElapsedSeconds >= target
		})
	}
}

func readFrames(t *testing.T, client *websocket.Conn, n int) []Frame {
	t.Helper()
	frames := make([]Frame, 0, n)
	for len(frames) < n {
		client.SetReadDeadline(time.Now().Add(5 * time.Second))
		var f Frame
		if err := client.ReadJSON(&f); err != nil {
			t.Fatalf("read frame %d: %v", len(frames)+1, err)
		}
		frames = append(frames, f)
	}
	return frames
}

func TestTimerConnectionLocksAfterQuota(t *testing.T) {
	userID := uuid.New()
	h := newGatewayHarness(t, func(*http.Request) *uuid.UUID { return &userID })
	client, conn := h.dial(t)

	h.advance(t, conn, usagetimer.LimitSeconds)

	got := readFrames(t, client, 6)
	want := []Frame{
		{Type: FrameTypeDisplay, Text: "00:00", Classes: []string{}},
		{Type: FrameTypeDisplay, Text: "00:01", Classes: []string{}},
		{Type: FrameTypeDisplay, Text: "00:02", Classes: []string{}},
		{Type: FrameTypeDisplay, Text: "00:03", Classes: []string{}},
		{Type: FrameTypeDisplay, Text: "00:04", Classes: []string{}},
		{Type: FrameTypeDisplay, Text: "Locked", Classes: []string{"locked"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}

	waitFor(t, "lock event", func() bool { return len(h.publisher.published()) == 1 })
	ev := h.publisher.published()[0]
	if ev.ConnectionID != conn.ID {
		t.Errorf("event connection = %q, want %q", ev.ConnectionID, conn.ID)
	}
	if ev.UserID == nil || *ev.UserID != userID {
		t.Errorf("event user = %v, want %v", ev.UserID, userID)
	}
	if ev.UserAgent != "screentime-test" {
		t.Errorf("event user agent = %q", ev.UserAgent)
	}
	if ev.ElapsedSeconds != usagetimer.LimitSeconds {
		t.Errorf("event elapsed = %d, want %d", ev.ElapsedSeconds, usagetimer.LimitSeconds)
	}

	stats := h.svc.GetStats()
	if stats["total_connections"] != 1 || stats["locked_connections"] != 1 {
		t.Errorf("stats = %v, want 1 total and 1 locked", stats)
	}

	// Further ticks keep the page locked without new frames or events
	h.clock.Advance(10 * usagetimer.TickInterval)
	if got := conn.Timer.Snapshot(); !got.Locked || got.ElapsedSeconds != usagetimer.LimitSeconds {
		t.Errorf("snapshot after lock = %+v", got)
	}
	if n := len(h.publisher.published()); n != 1 {
		t.Errorf("published %d events, want 1", n)
	}
}

func TestClosingPageStopsTimer(t *testing.T) {
	h := newGatewayHarness(t, nil)
	client, conn := h.dial(t)

	h.advance(t, conn, 3)
	if conn.UserID != nil {
		t.Errorf("anonymous connection has user %v", conn.UserID)
	}

	client.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	client.Close()

	waitFor(t, "unregister", func() bool {
		return h.svc.GetStats()["total_connections"] == 0
	})
	select {
	case <-conn.done:
	default:
		t.Error("connection not marked done")
	}
}

func TestShutdownClosesConnections(t *testing.T) {
	h := newGatewayHarness(t, nil)
	client, _ := h.dial(t)

	h.cancel()

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := client.ReadMessage(); err == nil {
		t.Fatal("expected read error after shutdown")
	}
	waitFor(t, "unregister", func() bool {
		return h.svc.GetStats()["total_connections"] == 0
	})
}

func TestConnectionStatsHandler(t *testing.T) {
	h := newGatewayHarness(t, nil)
	h.dial(t)

	resp, err := http.Get(h.server.URL + "/ws/stats")
	if err != nil {
		t.Fatalf("GET /ws/stats: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]int{"total_connections": 1, "locked_connections": 0}
	if diff := cmp.Diff(want, body); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestNewConnectionManagerFillsNonPositiveSettings(t *testing.T) {
	cm := NewConnectionManager(ConnectionConfig{
		PingInterval:   0,
		WriteTimeout:   -time.Second,
		ReadTimeout:    0,
		PublishTimeout: 0,
	}, nil)

	defaults := DefaultConnectionConfig()
	got := cm.config
	if got.PingInterval != defaults.PingInterval {
		t.Errorf("PingInterval = %v, want %v", got.PingInterval, defaults.PingInterval)
	}
	if got.WriteTimeout != defaults.WriteTimeout {
		t.Errorf("WriteTimeout = %v, want %v", got.WriteTimeout, defaults.WriteTimeout)
	}
	if got.ReadTimeout != defaults.ReadTimeout {
		t.Errorf("ReadTimeout = %v, want %v", got.ReadTimeout, defaults.ReadTimeout)
	}
	if got.PublishTimeout != defaults.PublishTimeout {
		t.Errorf("PublishTimeout = %v, want %v", got.PublishTimeout, defaults.PublishTimeout)
	}
	if got.SendBufferSize != defaults.SendBufferSize || got.MaxMessageSize != defaults.MaxMessageSize {
		t.Errorf("buffers = %d/%d, want %d/%d", got.SendBufferSize, got.MaxMessageSize, defaults.SendBufferSize, defaults.MaxMessageSize)
	}
}

func TestZeroPingIntervalConnectionSurvives(t *testing.T) {
	pub := &recordingPublisher{}
	clock := clockwork.NewFakeClock()
	cfg := DefaultConnectionConfig()
	cfg.Clock = clock
	cfg.PingInterval = 0

	svc := NewService(Config{ConnectionConfig: cfg}, pub, nil)
	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Start(ctx)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/timer"
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	waitFor(t, "connection registered", func() bool {
		return len(svc.connectionManager.snapshot()) == 1
	})
}
