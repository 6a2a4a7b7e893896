package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/treykane/termshare/internal/events"
	"github.com/treykane/termshare/internal/model"
	"github.com/treykane/termshare/internal/security"
	"github.com/treykane/termshare/internal/supervisor"
	"github.com/treykane/termshare/internal/util"
)

type fakeController struct {
	mu       sync.Mutex
	info     model.SessionInfo
	running  bool
	startErr error
	stops    int
}

func (f *fakeController) Start(context.Context) (model.SessionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return model.SessionInfo{}, f.startErr
	}
	f.running = true
	return f.info, nil
}

func (f *fakeController) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
	return nil
}

func (f *fakeController) Status() model.StatusSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return model.StatusSnapshot{}
	}
	return model.SnapshotOf(f.info)
}

func sampleInfo() model.SessionInfo {
	return model.SessionInfo{
		ID:        "sess-1",
		URL:       "https://abc.trycloudflare.com/tok/",
		Username:  "brave-otter",
		Password:  "pw",
		Port:      7681,
		StartedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func newTestServer(ctrl Controller, limit int) (*Server, *events.Bus) {
	bus := events.NewBus()
	return NewServer(ctrl, bus, Options{RateLimitPerMinute: limit}), bus
}

func TestStartStopAndStatus(t *testing.T) {
	ctrl := &fakeController{info: sampleInfo()}
	srv, _ := newTestServer(ctrl, 100)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	var snap model.StatusSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	resp.Body.Close()
	assert.False(t, snap.Running)

	resp, err = http.Post(ts.URL+"/api/session", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var info model.SessionInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	resp.Body.Close()
	assert.Equal(t, sampleInfo(), info)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/session", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 1, ctrl.stops)
}

func TestStartErrorsMapToStatusCodes(t *testing.T) {
	cases := []struct {
		sentinel error
		status   int
		code     string
	}{
		{supervisor.ErrAlreadyRunning, http.StatusConflict, "already_running"},
		{supervisor.ErrBinaryNotFound, http.StatusServiceUnavailable, "binary_not_found"},
		{supervisor.ErrTerminalServerUnreachable, http.StatusBadGateway, "terminal_server_unreachable"},
		{supervisor.ErrTunnelURLNotFound, http.StatusGatewayTimeout, "tunnel_url_not_found"},
		{supervisor.ErrSpawn, http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			err := security.Classify(fmt.Errorf("%w: detail /home/x", tc.sentinel), "user text")
			srv, _ := newTestServer(&fakeController{startErr: err}, 100)
			ts := httptest.NewServer(srv.Handler())
			defer ts.Close()

			resp, err := http.Post(ts.URL+"/api/session", "application/json", nil)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.status, resp.StatusCode)

			var body errorBody
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tc.code, body.Error)
			assert.Equal(t, "user text", body.Detail)
		})
	}
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(&fakeController{}, 2)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	var last *http.Response
	for i := 0; i < 3; i++ {
		resp, err := http.Get(ts.URL + "/api/status")
		require.NoError(t, err)
		resp.Body.Close()
		last = resp
	}
	assert.Equal(t, http.StatusTooManyRequests, last.StatusCode)
	assert.Equal(t, "60", last.Header.Get("Retry-After"))

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health is outside the limited group")
}

func TestRejectsForeignOrigin(t *testing.T) {
	srv, _ := newTestServer(&fakeController{}, 100)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/session", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "http://localhost:8080")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(&fakeController{}, 100)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
}

func TestIsLocalOrigin(t *testing.T) {
	assert.True(t, isLocalOrigin(""))
	assert.True(t, isLocalOrigin("http://127.0.0.1:9000"))
	assert.True(t, isLocalOrigin("http://[::1]:9000"))
	assert.False(t, isLocalOrigin("http://10.0.0.5"))
	assert.False(t, isLocalOrigin("not a url"))
}

func TestWebsocketStreamsSnapshots(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctrl := &fakeController{info: sampleInfo()}
	srv, bus := newTestServer(ctrl, 100)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, ln) }()

	url := "ws://" + ln.Addr().String() + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	var snap model.StatusSnapshot
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&snap))
	assert.False(t, snap.Running, "initial snapshot reflects current status")

	require.Eventually(t, func() bool { return srv.Hub().Clients() == 1 && bus.Subscribers() == 1 },
		2*time.Second, 10*time.Millisecond)
	require.NoError(t, bus.Publish(util.StatusTopic, model.SnapshotOf(sampleInfo())))

	require.NoError(t, conn.ReadJSON(&snap))
	assert.True(t, snap.Running)
	assert.Equal(t, sampleInfo().URL, snap.URL)

	cancel()
	require.NoError(t, <-served)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "server closes the stream on shutdown")
	conn.Close()
	assert.Zero(t, srv.Hub().Clients())
}
