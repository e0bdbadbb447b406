package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/database"
	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/models"
	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/session"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeRunner struct {
	mu      sync.Mutex
	state   session.State
	sources []session.FrameSource
}

func (f *fakeRunner) Start(src session.FrameSource) (session.StartStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == session.StateRunning {
		return session.StatusAlreadyRunning, nil
	}
	f.state = session.StateRunning
	f.sources = append(f.sources, src)
	return session.StatusStarted, nil
}

func (f *fakeRunner) Stop() session.StopStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != session.StateRunning {
		return session.StatusNotRunning
	}
	f.state = session.StateStopped
	return session.StatusStopping
}

func (f *fakeRunner) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == "" {
		return session.StateIdle
	}
	return f.state
}

func (f *fakeRunner) Summary() models.SessionSummary {
	return models.SessionSummary{
		SessionID:       "s1",
		State:           string(f.State()),
		Statistics:      models.SessionStatistics{TotalBlinks: 2, SleepAlerts: 3},
		DetectionMethod: "Face Mesh landmarks",
	}
}

type nopSource struct{ closed bool }

func (s *nopSource) Next(ctx context.Context) (models.Frame, error) { return models.Frame{}, io.EOF }
func (s *nopSource) Close() error                                     { s.closed = true; return nil }

type fakeHistory struct {
	err error
}

func (h fakeHistory) ListSessions(_ context.Context, limit int) ([]models.SessionRecord, error) {
	if h.err != nil {
		return nil, h.err
	}
	out := []models.SessionRecord{{ID: "s2"}, {ID: "s1"}}
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (h fakeHistory) GetSession(_ context.Context, id string) (models.SessionRecord, error) {
	if id != "s1" {
		return models.SessionRecord{}, fmt.Errorf("session %s: %w", id, database.ErrNotFound)
	}
	return models.SessionRecord{ID: "s1", SleepAlerts: 3}, nil
}

func (h fakeHistory) ListEvents(context.Context, string) ([]models.EventRecord, error) {
	return nil, nil
}

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *fakeRunner) {
	t.Helper()
	runner := &fakeRunner{}
	if opts.Runner == nil {
		opts.Runner = runner
	}
	opts.Logger = quiet
	srv := httptest.NewServer(NewAPI(opts).Routes())
	t.Cleanup(srv.Close)
	return srv, runner
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, Options{Hub: NewOverlayHub(quiet), Version: "1.0", TokenHash: "unused-for-health"})

	var health models.HealthStatus
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/health", &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "Idle", health.SessionState)
	assert.Equal(t, "1.0", health.Version)
}

func TestSessionControl(t *testing.T) {
	var opened []*nopSource
	srv, runner := newTestServer(t, Options{
		NewSource: func() (session.FrameSource, error) {
			src := &nopSource{}
			opened = append(opened, src)
			return src, nil
		},
	})

	var out map[string]string
	assert.Equal(t, http.StatusOK, postJSON(t, srv.URL+"/api/session/stop", &out))
	assert.Equal(t, "not_running", out["status"])

	postJSON(t, srv.URL+"/api/session/start", &out)
	assert.Equal(t, "started", out["status"])
	postJSON(t, srv.URL+"/api/session/start", &out)
	assert.Equal(t, "already_running", out["status"])
	assert.Len(t, runner.sources, 1)
	require.Len(t, opened, 1)
	assert.False(t, opened[0].closed)

	var summary models.SessionSummary
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/session", &summary))
	assert.Equal(t, "Running", summary.State)
	assert.Equal(t, 3, summary.Statistics.SleepAlerts)

	postJSON(t, srv.URL+"/api/session/stop", &out)
	assert.Equal(t, "stopping", out["status"])
}

func TestStartSessionSourceFailure(t *testing.T) {
	srv, _ := newTestServer(t, Options{
		NewSource: func() (session.FrameSource, error) { return nil, errors.New("camera unplugged") },
	})
	var out map[string]string
	assert.Equal(t, http.StatusInternalServerError, postJSON(t, srv.URL+"/api/session/start", &out))

	srv, _ = newTestServer(t, Options{})
	assert.Equal(t, http.StatusServiceUnavailable, postJSON(t, srv.URL+"/api/session/start", &out))
}

func TestSessionHistory(t *testing.T) {
	srv, _ := newTestServer(t, Options{History: fakeHistory{}})

	var sessions []models.SessionRecord
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/sessions?limit=1", &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "s2", sessions[0].ID)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/sessions?limit=zero", nil))

	var rec models.SessionRecord
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/sessions/s1", &rec))
	assert.Equal(t, 3, rec.SleepAlerts)
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/sessions/zzz", nil))

	var events []models.EventRecord
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/sessions/s1/events", &events))
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestSessionHistoryErrors(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/api/sessions", nil))

	srv, _ = newTestServer(t, Options{History: fakeHistory{err: errors.New("db down")}})
	assert.Equal(t, http.StatusInternalServerError, getJSON(t, srv.URL+"/api/sessions", nil))
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, Options{CORSOrigins: "http://localhost:5000"})
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/session/start", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:5000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func testTokenHash(t *testing.T, token string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestTokenRequired(t *testing.T) {
	srv, _ := newTestServer(t, Options{Hub: NewOverlayHub(quiet), TokenHash: testTokenHash(t, "s3cret")})

	assert.Equal(t, http.StatusUnauthorized, getJSON(t, srv.URL+"/api/session", nil))
	assert.Equal(t, http.StatusUnauthorized, getJSON(t, srv.URL+"/api/session?token=wrong", nil))
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/session?token=s3cret", nil))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/overlay/latest", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	// authorized, but nothing shown yet
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "/ws"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHashToken(t *testing.T) {
	hash, err := HashToken("viewer")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("viewer")))
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func readMessage(t *testing.T, conn *websocket.Conn) WebSocketMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg WebSocketMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestOverlayStream(t *testing.T) {
	hub := NewOverlayHub(quiet)
	srv, _ := newTestServer(t, Options{Hub: hub})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws?clientId=dash"), nil)
	require.NoError(t, err)
	defer conn.Close()

	welcome := readMessage(t, conn)
	assert.Equal(t, MsgWelcome, welcome.Type)
	assert.Equal(t, "dash", welcome.ClientID)
	require.Eventually(t, func() bool { return hub.ActiveViewers() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Show(models.Overlay{Seq: 7, Status: models.StatusDrowsiness, Alerts: 1})
	msg := readMessage(t, conn)
	require.Equal(t, MsgOverlay, msg.Type)
	var overlay models.Overlay
	require.NoError(t, json.Unmarshal(msg.Payload, &overlay))
	assert.Equal(t, uint64(7), overlay.Seq)
	assert.Equal(t, models.StatusDrowsiness, overlay.Status)

	require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: MsgPing}))
	assert.Equal(t, MsgPong, readMessage(t, conn).Type)

	var latest models.Overlay
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/overlay/latest", &latest))
	assert.Equal(t, uint64(7), latest.Seq)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ActiveViewers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestOverlayLateViewerGetsLatest(t *testing.T) {
	hub := NewOverlayHub(quiet)
	srv, _ := newTestServer(t, Options{Hub: hub})
	hub.Show(models.Overlay{Seq: 3, Status: models.StatusAlert})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws"), nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, MsgWelcome, readMessage(t, conn).Type)
	msg := readMessage(t, conn)
	require.Equal(t, MsgOverlay, msg.Type)
	assert.Contains(t, string(msg.Payload), `"seq":3`)
}

func TestOverlayShowNeverBlocks(t *testing.T) {
	hub := NewOverlayHub(quiet)
	stuck := &viewer{id: "stuck", send: make(chan WebSocketMessage, 1)}
	require.True(t, hub.register(stuck))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			hub.Show(models.Overlay{Seq: uint64(i)})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Show blocked on a slow viewer")
	}
	assert.Equal(t, int64(99), hub.Dropped())
	assert.Equal(t, int64(100), hub.Shown())

	latest, ok := hub.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(99), latest.Seq)

	hub.unregister(stuck)
	assert.Zero(t, hub.ActiveViewers())
}
