package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orrery.space/body"
	"orrery.space/config"
	"orrery.space/protocol"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.MetricsAddr = ""
	cfg.Simulation.FrameRate = 100
	cfg.Simulation.FrameEvery = 1
	return cfg
}

func newTestServer(t *testing.T, cfg config.Config) (*Server, *prometheus.Registry, *httptest.Server) {
	t.Helper()
	reg := prometheus.NewRegistry()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(cfg, body.DefaultCatalog(), log, reg)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, reg, ts
}

func dial(t *testing.T, ts *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

type envelope struct {
	Type   string `json:"type"`
	FPS    int    `json:"fps"`
	Bodies []struct {
		ID string `json:"id"`
	} `json:"bodies"`
	Lines map[string]json.RawMessage `json:"lines"`
}

// readUntil reads messages until match returns true or the deadline passes
func readUntil(t *testing.T, conn *websocket.Conn, timeout time.Duration, match func(envelope) bool) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "no matching message before deadline")
		var env envelope
		require.NoError(t, json.Unmarshal(data, &env))
		if match(env) {
			return
		}
	}
}

func frameHas(id string) func(envelope) bool {
	return func(env envelope) bool {
		if env.Type != protocol.TypeFrame {
			return false
		}
		for _, b := range env.Bodies {
			if b.ID == id {
				return true
			}
		}
		return false
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			total += metricValue(m)
		}
	}
	return total
}

func metricValue(m *dto.Metric) float64 {
	switch {
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetHistogram() != nil:
		return float64(m.GetHistogram().GetSampleCount())
	}
	return 0
}

func TestSessionRoundTrip(t *testing.T) {
	s, reg, ts := newTestServer(t, testConfig())
	conn := dial(t, ts, nil)

	send(t, conn, protocol.Canvas{Width: 800, Height: 600})
	send(t, conn, protocol.BodyData{Body: "earth", Data: body.Input{Name: "Earth", SemimajorAxis: 149598023000, Eccentricity: 0.0167}})
	send(t, conn, protocol.ToggleLines{Show: true})

	readUntil(t, conn, 3*time.Second, frameHas("earth"))
	readUntil(t, conn, 3*time.Second, func(env envelope) bool {
		_, ok := env.Lines["earth"]
		return env.Type == protocol.TypeOrbitLines && ok
	})
	readUntil(t, conn, 3*time.Second, func(env envelope) bool {
		return env.Type == protocol.TypeFPS && env.FPS > 0
	})

	assert.Equal(t, 1, s.SessionCount())
	assert.Equal(t, 1.0, counterValue(t, reg, "orrery_sessions_active"))
	assert.GreaterOrEqual(t, counterValue(t, reg, "orrery_messages_total"), 3.0)
	assert.Positive(t, counterValue(t, reg, "orrery_ticks_total"))

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, 1.0, health["sessions"])

	conn.Close()
	assert.Eventually(t, func() bool { return s.SessionCount() == 0 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, s.limiter.Len())
}

func TestMalformedMessagesAreDropped(t *testing.T) {
	_, reg, ts := newTestServer(t, testConfig())
	conn := dial(t, ts, nil)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{oops")))
	send(t, conn, protocol.Canvas{Width: 10, Height: 10})

	// the session survives and keeps ticking
	readUntil(t, conn, 3*time.Second, frameHas(body.AnchorID))
	assert.Equal(t, 1.0, counterValue(t, reg, "orrery_inbound_rejected_total"))
}

func TestOriginRejected(t *testing.T) {
	cfg := testConfig()
	cfg.Server.AllowedOrigins = []string{"https://orrery.example"}
	_, _, ts := newTestServer(t, cfg)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn := dial(t, ts, http.Header{"Origin": {"https://app.orrery.example"}})
	assert.NotNil(t, conn)
}

func TestMaxSessions(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.MaxSessions = 1
	s, _, ts := newTestServer(t, cfg)

	dial(t, ts, nil)
	require.Eventually(t, func() bool { return s.SessionCount() == 1 }, time.Second, 5*time.Millisecond)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMaxSessionsUnderConcurrentUpgrades(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.MaxSessions = 2
	s, _, ts := newTestServer(t, cfg)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		conns []*websocket.Conn
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}()
	}
	wg.Wait()
	t.Cleanup(func() {
		for _, c := range conns {
			c.Close()
		}
	})

	assert.Len(t, conns, 2)
	require.Eventually(t, func() bool { return s.SessionCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestReserveSlot(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.MaxSessions = 3
	s := New(cfg, body.DefaultCatalog(), slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry())

	var (
		wg  sync.WaitGroup
		got atomic.Int32
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.reserveSlot() {
				got.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 3, got.Load())

	s.releaseSlot()
	assert.True(t, s.reserveSlot())
	assert.False(t, s.reserveSlot())
}

func TestBroadcastReachesSessions(t *testing.T) {
	s, _, ts := newTestServer(t, testConfig())
	conn := dial(t, ts, nil)
	send(t, conn, protocol.Canvas{Width: 800, Height: 600})
	require.Eventually(t, func() bool { return s.SessionCount() == 1 }, time.Second, 5*time.Millisecond)

	n := s.Broadcast(context.Background(), protocol.BodyData{Body: "mars", Data: body.Input{SemimajorAxis: 227.9e9}})
	assert.Equal(t, 1, n)
	readUntil(t, conn, 3*time.Second, frameHas("mars"))
}

const reloadedCatalog = `
anchor:
  name: Sun
  size: 12
bodies:
  - name: Mars
    semimajorAxis: 250000000000
    eccentricity: 0.09
    size: 2
`

func TestCatalogReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bodies.yaml")
	require.NoError(t, os.WriteFile(path, []byte("anchor: {name: Sun}\nbodies: []\n"), 0o600))

	s, reg, ts := newTestServer(t, testConfig())
	require.NoError(t, s.watchCatalog(path))

	conn := dial(t, ts, nil)
	send(t, conn, protocol.Canvas{Width: 800, Height: 600})
	require.Eventually(t, func() bool { return s.SessionCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(reloadedCatalog), 0o600))

	require.Eventually(t, func() bool {
		_, ok := s.Catalog().Find("mars")
		return ok
	}, 3*time.Second, 20*time.Millisecond)
	readUntil(t, conn, 3*time.Second, frameHas("mars"))
	assert.GreaterOrEqual(t, counterValue(t, reg, "orrery_catalog_reloads_total"), 1.0)
}

func TestStartAndShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MetricsAddr = "127.0.0.1:0"
	reg := prometheus.NewRegistry()
	s := New(cfg, body.DefaultCatalog(), slog.New(slog.NewTextHandler(io.Discard, nil)), reg)

	require.NoError(t, s.Start())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
}

func TestStartFailsOnBusyAddress(t *testing.T) {
	busy := httptest.NewServer(http.NotFoundHandler())
	defer busy.Close()

	cfg := testConfig()
	cfg.Server.Addr = strings.TrimPrefix(busy.URL, "http://")
	s := New(cfg, body.DefaultCatalog(), slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry())
	assert.Error(t, s.Start())
}
