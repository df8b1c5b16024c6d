package signalr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/skillsfundingagency/cfs-jobwatch/internal/errors"
)

func TestSplitRecords(t *testing.T) {
	frame := []byte("{\"type\":6}\x1e\x1e{\"type\":3,\"invocationId\":\"1\"}\x1e")
	recs := splitRecords(frame)
	require.Len(t, recs, 2)

	msg, err := decodeMessage(recs[1])
	require.NoError(t, err)
	assert.Equal(t, typeCompletion, msg.Type)
	assert.Equal(t, "1", msg.InvocationID)

	rec, err := encodeRecord(pingMessage{Type: typePing})
	require.NoError(t, err)
	assert.Equal(t, "{\"type\":6}\x1e", string(rec))
}

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		name    string
		hub     string
		id      string
		want    string
		wantErr bool
	}{
		{name: "https", hub: "https://cfs.example/api/notifications", id: "abc", want: "wss://cfs.example/api/notifications?id=abc"},
		{name: "http keeps query", hub: "http://localhost:5000/hub?x=1", id: "abc", want: "ws://localhost:5000/hub?id=abc&x=1"},
		{name: "no id", hub: "wss://cfs.example/hub", want: "wss://cfs.example/hub"},
		{name: "bad scheme", hub: "ftp://cfs.example/hub", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := webSocketURL(tt.hub, tt.id)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNegotiate_FollowsServiceRedirect(t *testing.T) {
	var final *httptest.Server
	final = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/client/negotiate", r.URL.Path)
		assert.Equal(t, "Bearer service-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"negotiateVersion":0,"connectionId":"legacy",` +
			`"availableTransports":[{"transport":"WebSockets"}]}`))
	}))
	t.Cleanup(final.Close)

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("negotiateVersion"))
		_, _ = w.Write([]byte(`{"url":"` + final.URL + `/client","accessToken":"service-token"}`))
	}))
	t.Cleanup(origin.Close)

	c, err := NewClient(Options{HubURL: origin.URL + "/hub"})
	require.NoError(t, err)

	ep, err := c.negotiate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "service-token", ep.accessToken)
	assert.Contains(t, ep.url, "/client?id=legacy")
	assert.Regexp(t, `^ws://`, ep.url)
}

func TestNegotiate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		check  func(error) bool
	}{
		{name: "no websockets", body: `{"availableTransports":[{"transport":"LongPolling"}]}`, status: 200, check: apperrors.IsTransport},
		{name: "hub error", body: `{"error":"nope"}`, status: 200, check: apperrors.IsTransport},
		{name: "bad json", body: `{`, status: 200, check: apperrors.IsMalformedPayload},
		{name: "status", body: `{}`, status: http.StatusUnauthorized, check: apperrors.IsTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			c, err := NewClient(Options{HubURL: srv.URL})
			require.NoError(t, err)
			_, err = c.negotiate(context.Background())
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error %v", err)
		})
	}
}

func TestNegotiate_TooManyRedirects(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"url":"` + srv.URL + `/again"}`))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{HubURL: srv.URL})
	require.NoError(t, err)
	_, err = c.negotiate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many redirects")
}
