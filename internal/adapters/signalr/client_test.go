package signalr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/core"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
	apperrors "github.com/skillsfundingagency/cfs-jobwatch/internal/errors"
)

type invocation struct {
	Target string
	Args   []json.RawMessage
}

// fakeHub is a minimal JSON hub protocol server.
type fakeHub struct {
	t      *testing.T
	server *httptest.Server

	mu          sync.Mutex
	conns       []*websocket.Conn
	invocations []invocation
	negotiates  int
	authHeaders []string
	failInvoke  string
}

func newFakeHub(t *testing.T) *fakeHub {
	t.Helper()
	h := &fakeHub{t: t}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /hubs/notifications/negotiate", h.negotiate)
	mux.HandleFunc("GET /hubs/notifications", h.upgrade)
	h.server = httptest.NewServer(mux)
	t.Cleanup(h.server.Close)
	return h
}

func (h *fakeHub) url() string { return h.server.URL + "/hubs/notifications" }

func (h *fakeHub) negotiate(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.negotiates++
	h.authHeaders = append(h.authHeaders, r.Header.Get("Authorization"))
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"negotiateVersion":1,"connectionId":"cid","connectionToken":"ctok",` +
		`"availableTransports":[{"transport":"WebSockets","transferFormats":["Text"]}]}`))
}

func (h *fakeHub) upgrade(w http.ResponseWriter, r *http.Request) {
	assert.Equal(h.t, "ctok", r.URL.Query().Get("id"))
	up := websocket.Upgrader{}
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	if _, _, err := ws.ReadMessage(); err != nil {
		return
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte("{}\x1e")); err != nil {
		return
	}

	h.mu.Lock()
	h.conns = append(h.conns, ws)
	h.mu.Unlock()

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			return
		}
		for _, rec := range splitRecords(frame) {
			msg, err := decodeMessage(rec)
			if err != nil || msg.Type != typeInvocation {
				continue
			}
			h.mu.Lock()
			h.invocations = append(h.invocations, invocation{Target: msg.Target, Args: msg.Arguments})
			fail := h.failInvoke == msg.Target
			h.mu.Unlock()

			reply := map[string]any{"type": typeCompletion, "invocationId": msg.InvocationID}
			if fail {
				reply["error"] = "denied"
			}
			b, _ := encodeRecord(reply)
			h.mu.Lock()
			_ = ws.WriteMessage(websocket.TextMessage, b)
			h.mu.Unlock()
		}
	}
}

// notify pushes a NotificationEvent to the most recent connection.
func (h *fakeHub) notify(payload string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(h.t, h.conns)
	rec := []byte(`{"type":1,"target":"notificationEvent","arguments":[` + payload + `]}` + "\x1e")
	require.NoError(h.t, h.conns[len(h.conns)-1].WriteMessage(websocket.TextMessage, rec))
}

// drop closes every open connection from the server side.
func (h *fakeHub) drop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.conns {
		_ = c.Close()
	}
	h.conns = nil
}

func (h *fakeHub) targets() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.invocations))
	for _, inv := range h.invocations {
		out = append(out, inv.Target)
	}
	return out
}

type recordingHandler struct {
	mu       sync.Mutex
	messages []string
	states   []core.ConnectionState
}

func (r *recordingHandler) HandleJobMessage(payload json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, string(payload))
}

func (r *recordingHandler) HandleConnectionState(state core.ConnectionState, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recordingHandler) snapshot() ([]string, []core.ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...), append([]core.ConnectionState(nil), r.states...)
}

func newTestClient(t *testing.T, hubURL string) *Client {
	t.Helper()
	c, err := NewClient(Options{
		HubURL:            hubURL,
		TokenSource:       oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "secret"}),
		ReconnectDelays:   []time.Duration{0, 10 * time.Millisecond},
		KeepAliveInterval: 50 * time.Millisecond,
		ServerTimeout:     2 * time.Second,
		InvokeTimeout:     2 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewClient_RequiresHubURL(t *testing.T) {
	_, err := NewClient(Options{HubURL: "  "})
	require.ErrorIs(t, err, ErrHubURLRequired)
}

func TestClient_ConnectReceivesNotifications(t *testing.T) {
	hub := newFakeHub(t)
	c := newTestClient(t, hub.url())
	h := &recordingHandler{}

	require.NoError(t, c.Connect(context.Background(), h))
	_, states := h.snapshot()
	assert.Equal(t, []core.ConnectionState{core.ConnectionConnecting, core.ConnectionConnected}, states)

	hub.notify(`{"jobId":"job-1","runningStatus":"Completed"}`)
	assert.Eventually(t, func() bool {
		msgs, _ := h.snapshot()
		return len(msgs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	msgs, _ := h.snapshot()
	assert.JSONEq(t, `{"jobId":"job-1","runningStatus":"Completed"}`, msgs[0])

	hub.mu.Lock()
	assert.Equal(t, []string{"Bearer secret"}, hub.authHeaders)
	hub.mu.Unlock()
}

func TestClient_ConnectIsIdempotent(t *testing.T) {
	hub := newFakeHub(t)
	c := newTestClient(t, hub.url())

	require.NoError(t, c.Connect(context.Background(), &recordingHandler{}))
	require.NoError(t, c.Connect(context.Background(), &recordingHandler{}))

	hub.mu.Lock()
	defer hub.mu.Unlock()
	assert.Equal(t, 1, hub.negotiates)
}

func TestClient_WatchRefcountsGroups(t *testing.T) {
	hub := newFakeHub(t)
	c := newTestClient(t, hub.url())
	require.NoError(t, c.Connect(context.Background(), &recordingHandler{}))

	ctx := context.Background()
	spec := model.JobMonitoringFilter{SpecificationID: "spec-1"}
	job := model.JobMonitoringFilter{JobID: "job-9", SpecificationID: "spec-1"}

	require.NoError(t, c.Watch(ctx, spec))
	require.NoError(t, c.Watch(ctx, spec))
	require.NoError(t, c.Watch(ctx, job))
	require.NoError(t, c.Watch(ctx, model.JobMonitoringFilter{}))

	require.NoError(t, c.Unwatch(ctx, spec))
	require.NoError(t, c.Unwatch(ctx, spec))
	require.NoError(t, c.Unwatch(ctx, spec))

	assert.Equal(t, []string{
		methodStartSpecification,
		methodStartJob,
		methodStartAll,
		methodStopSpecification,
	}, hub.targets())

	hub.mu.Lock()
	defer hub.mu.Unlock()
	assert.JSONEq(t, `"job-9"`, string(hub.invocations[1].Args[0]))
	assert.Empty(t, hub.invocations[2].Args)
}

func TestClient_WatchReportsInvocationFailure(t *testing.T) {
	hub := newFakeHub(t)
	hub.failInvoke = methodStartJob
	c := newTestClient(t, hub.url())
	require.NoError(t, c.Connect(context.Background(), &recordingHandler{}))

	err := c.Watch(context.Background(), model.JobMonitoringFilter{JobID: "job-1"})
	require.Error(t, err)
	assert.True(t, apperrors.IsTransport(err))
}

func TestClient_WatchBeforeConnectJoinsOnConnect(t *testing.T) {
	hub := newFakeHub(t)
	c := newTestClient(t, hub.url())

	require.NoError(t, c.Watch(context.Background(), model.JobMonitoringFilter{SpecificationID: "spec-1"}))
	assert.Empty(t, hub.targets())

	require.NoError(t, c.Connect(context.Background(), &recordingHandler{}))
	assert.Equal(t, []string{methodStartSpecification}, hub.targets())
}

func TestClient_RejoinDoesNotWaitOutInvokeTimeout(t *testing.T) {
	hub := newFakeHub(t)
	const invokeTimeout = 10 * time.Second
	c, err := NewClient(Options{
		HubURL:            hub.url(),
		TokenSource:       oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "secret"}),
		ReconnectDelays:   []time.Duration{0},
		KeepAliveInterval: 50 * time.Millisecond,
		ServerTimeout:     2 * time.Second,
		InvokeTimeout:     invokeTimeout,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	h := &recordingHandler{}
	ctx := context.Background()
	require.NoError(t, c.Watch(ctx, model.JobMonitoringFilter{JobID: "job-1"}))
	require.NoError(t, c.Watch(ctx, model.JobMonitoringFilter{SpecificationID: "spec-1"}))

	started := time.Now()
	require.NoError(t, c.Connect(ctx, h))
	assert.Less(t, time.Since(started), invokeTimeout/4, "initial join waited for invoke timeout")

	dropped := time.Now()
	hub.drop()

	require.Eventually(t, func() bool {
		_, states := h.snapshot()
		return len(states) >= 4 && states[len(states)-1] == core.ConnectionConnected
	}, 2*time.Second, 5*time.Millisecond)
	assert.Less(t, time.Since(dropped), invokeTimeout/4, "reconnect waited for invoke timeout")
	assert.ElementsMatch(t,
		[]string{methodStartJob, methodStartSpecification, methodStartJob, methodStartSpecification},
		hub.targets())
}

func TestClient_ReconnectsAndRejoins(t *testing.T) {
	hub := newFakeHub(t)
	c := newTestClient(t, hub.url())
	h := &recordingHandler{}
	require.NoError(t, c.Connect(context.Background(), h))
	require.NoError(t, c.Watch(context.Background(), model.JobMonitoringFilter{JobID: "job-1"}))

	hub.drop()

	assert.Eventually(t, func() bool {
		_, states := h.snapshot()
		return len(states) >= 4 && states[len(states)-1] == core.ConnectionConnected
	}, 3*time.Second, 10*time.Millisecond)

	_, states := h.snapshot()
	assert.Equal(t, core.ConnectionReconnecting, states[2])
	assert.Equal(t, []string{methodStartJob, methodStartJob}, hub.targets())
}

func TestClient_InitialFailureReturnsTransportError(t *testing.T) {
	var calls atomic.Int32
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(down.Close)

	c := newTestClient(t, down.URL+"/hubs/notifications")
	h := &recordingHandler{}

	err := c.Connect(context.Background(), h)
	require.Error(t, err)
	assert.True(t, apperrors.IsTransport(err))
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.GetStatus(err))

	// the background loop keeps retrying
	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Close())
	_, states := h.snapshot()
	assert.Equal(t, []core.ConnectionState{core.ConnectionConnecting, core.ConnectionDisconnected}, states)
}

func TestClient_CloseReportsDisconnected(t *testing.T) {
	hub := newFakeHub(t)
	c := newTestClient(t, hub.url())
	h := &recordingHandler{}
	require.NoError(t, c.Connect(context.Background(), h))
	require.NoError(t, c.Watch(context.Background(), model.JobMonitoringFilter{}))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, states := h.snapshot()
	assert.Equal(t, core.ConnectionDisconnected, states[len(states)-1])

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Empty(t, c.groups)
	assert.False(t, c.running)
}
