// Package signalr implements the job notifications hub client: a SignalR JSON
// hub protocol connection over WebSocket satisfying core.PushTransport.
package signalr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/core"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
	apperrors "github.com/skillsfundingagency/cfs-jobwatch/internal/errors"
)

// Hub method names exposed by the notifications hub.
const (
	NotificationTarget = "NotificationEvent"

	methodStartAll           = "StartWatchingForAllNotifications"
	methodStopAll            = "StopWatchingForAllNotifications"
	methodStartSpecification = "StartWatchingForSpecificationNotifications"
	methodStopSpecification  = "StopWatchingForSpecificationNotifications"
	methodStartJob           = "StartWatchingForJobNotifications"
	methodStopJob            = "StopWatchingForJobNotifications"
)

// ErrHubURLRequired indicates the client was configured without a hub URL.
var ErrHubURLRequired = errors.New("signalr hub url is required")

// Options configure a Client.
type Options struct {
	HubURL      string
	HTTPClient  *http.Client
	TokenSource oauth2.TokenSource
	Logger      *slog.Logger
	// ReconnectDelays are waited before successive reconnect attempts; the last
	// delay repeats. Defaults to 0s, 2s, 10s, 30s.
	ReconnectDelays   []time.Duration
	KeepAliveInterval time.Duration
	ServerTimeout     time.Duration
	HandshakeTimeout  time.Duration
	InvokeTimeout     time.Duration
}

// Client is a shared hub connection. Groups (all / specification / job) are
// reference counted and re-joined after every reconnect.
type Client struct {
	hubURL           string
	notifyTarget     string
	httpClient       *http.Client
	dialer           *websocket.Dialer
	tokenSource      oauth2.TokenSource
	logger           *slog.Logger
	delays           []time.Duration
	keepAlive        time.Duration
	serverTimeout    time.Duration
	handshakeTimeout time.Duration
	invokeTimeout    time.Duration

	mu      sync.Mutex
	handler core.PushHandler
	groups  map[group]int
	current *conn
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

var _ core.PushTransport = (*Client)(nil)

// NewClient creates a hub client. No connection is made until Connect.
func NewClient(opts Options) (*Client, error) {
	hubURL := strings.TrimSpace(opts.HubURL)
	if hubURL == "" {
		return nil, ErrHubURLRequired
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if httpClient.Jar == nil {
		cp := *httpClient
		cp.Jar = jar
		httpClient = &cp
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		hubURL:       hubURL,
		notifyTarget: NotificationTarget,
		httpClient:   httpClient,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
			Jar:              httpClient.Jar,
		},
		tokenSource:      opts.TokenSource,
		logger:           logger.With("component", "signalr"),
		delays:           opts.ReconnectDelays,
		keepAlive:        durationOr(opts.KeepAliveInterval, 15*time.Second),
		serverTimeout:    durationOr(opts.ServerTimeout, 30*time.Second),
		handshakeTimeout: durationOr(opts.HandshakeTimeout, 15*time.Second),
		invokeTimeout:    durationOr(opts.InvokeTimeout, 30*time.Second),
		groups:           make(map[group]int),
	}
	if len(c.delays) == 0 {
		c.delays = []time.Duration{0, 2 * time.Second, 10 * time.Second, 30 * time.Second}
	}
	return c, nil
}

// Connect starts the connection. The first attempt is made synchronously and its
// error returned; either way the client keeps reconnecting in the background until
// Close. Calling Connect on a running client only replaces the handler.
func (c *Client) Connect(ctx context.Context, handler core.PushHandler) error {
	c.mu.Lock()
	c.handler = handler
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.report(core.ConnectionConnecting, nil)
	cn, err := c.dial(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "initial hub connection failed", "hub", c.hubURL, "error", err)
	} else {
		c.attach(runCtx, ctx, cn)
	}

	go c.manage(runCtx, cn)
	return err
}

// Watch joins the hub group covering filter. Interest is recorded even when the
// invocation fails, and replayed on reconnect.
func (c *Client) Watch(ctx context.Context, filter model.JobMonitoringFilter) error {
	g := groupFor(filter)

	c.mu.Lock()
	c.groups[g]++
	first := c.groups[g] == 1
	cn := c.current
	c.mu.Unlock()

	if !first || cn == nil {
		return nil
	}
	return c.invoke(ctx, cn, g.startMethod(), g.args()...)
}

// Unwatch leaves the hub group covering filter once no watcher needs it.
func (c *Client) Unwatch(ctx context.Context, filter model.JobMonitoringFilter) error {
	g := groupFor(filter)

	c.mu.Lock()
	n, ok := c.groups[g]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	last := n <= 1
	if last {
		delete(c.groups, g)
	} else {
		c.groups[g] = n - 1
	}
	cn := c.current
	c.mu.Unlock()

	if !last || cn == nil {
		return nil
	}
	return c.invoke(ctx, cn, g.stopMethod(), g.args()...)
}

// Close stops the connection and forgets every group.
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	cancel, done := c.cancel, c.done
	c.groups = make(map[group]int)
	c.mu.Unlock()

	cancel()
	<-done
	c.report(core.ConnectionDisconnected, nil)
	return nil
}

// manage owns reconnection: it services the current connection and dials a new
// one with backoff after every drop.
func (c *Client) manage(ctx context.Context, cn *conn) {
	defer close(c.done)

	attempt := 0
	for {
		if cn != nil {
			attempt = 0
			err := cn.wait()
			c.detach(cn)
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("hub connection lost", "error", err)
			c.report(core.ConnectionReconnecting, err)
		}

		delay := c.delays[min(attempt, len(c.delays)-1)]
		attempt++
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		var err error
		cn, err = c.dial(ctx)
		if err != nil {
			c.logger.Debug("hub reconnect attempt failed", "attempt", attempt, "error", err)
			continue
		}
		c.attach(ctx, ctx, cn)
		c.logger.Info("hub connection restored", "attempts", attempt)
	}
}

// dial negotiates, opens the WebSocket and completes the protocol handshake.
func (c *Client) dial(ctx context.Context) (*conn, error) {
	ep, err := c.negotiate(ctx)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if ep.accessToken != "" {
		header.Set("Authorization", "Bearer "+ep.accessToken)
	}
	ws, resp, err := c.dialer.DialContext(ctx, ep.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, apperrors.Transport(err, status, "dial hub websocket")
	}

	leftover, err := c.handshake(ws)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	return newConn(ws, c, leftover), nil
}

func (c *Client) handshake(ws *websocket.Conn) ([][]byte, error) {
	rec, err := encodeRecord(handshakeRequest{Protocol: "json", Version: 1})
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(c.handshakeTimeout)
	if err := ws.SetWriteDeadline(deadline); err != nil {
		return nil, err
	}
	if err := ws.WriteMessage(websocket.TextMessage, rec); err != nil {
		return nil, apperrors.Transport(err, 0, "send hub handshake")
	}
	if err := ws.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	_, frame, err := ws.ReadMessage()
	if err != nil {
		return nil, apperrors.Transport(err, 0, "read hub handshake")
	}

	records := splitRecords(frame)
	if len(records) == 0 {
		return nil, apperrors.MalformedPayload(errors.New("empty frame"), "hub handshake response")
	}
	var hs handshakeResponse
	if err := json.Unmarshal(records[0], &hs); err != nil {
		return nil, apperrors.MalformedPayload(err, "hub handshake response")
	}
	if hs.Error != "" {
		return nil, apperrors.Transport(errors.New(hs.Error), 0, "hub rejected handshake")
	}
	return records[1:], nil
}

// attach starts servicing cn for the lifetime of runCtx, makes it current, re-joins
// every watched group and reports Connected. Re-joins run concurrently against the
// live read loop, so a slow completion delays Connected by at most one invoke timeout.
func (c *Client) attach(runCtx, ctx context.Context, cn *conn) {
	cn.start(runCtx)

	c.mu.Lock()
	c.current = cn
	groups := make([]group, 0, len(c.groups))
	for g := range c.groups {
		groups = append(groups, g)
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, g := range groups {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.invoke(ctx, cn, g.startMethod(), g.args()...); err != nil {
				c.logger.WarnContext(ctx, "re-join hub group", "method", g.startMethod(), "id", g.id, "error", err)
			}
		}()
	}
	wg.Wait()
	c.report(core.ConnectionConnected, nil)
}

func (c *Client) detach(cn *conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == cn {
		c.current = nil
	}
}

func (c *Client) invoke(ctx context.Context, cn *conn, method string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, c.invokeTimeout)
	defer cancel()
	if err := cn.invoke(ctx, method, args...); err != nil {
		return apperrors.Transport(err, 0, "invoke %s", method)
	}
	return nil
}

func (c *Client) dispatchMessage(payload json.RawMessage) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h.HandleJobMessage(payload)
	}
}

func (c *Client) report(state core.ConnectionState, err error) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h.HandleConnectionState(state, err)
	}
}

func (c *Client) bearer() (string, error) {
	if c.tokenSource == nil {
		return "", nil
	}
	tok, err := c.tokenSource.Token()
	if err != nil {
		return "", apperrors.Transport(err, 0, "obtain hub access token")
	}
	return tok.AccessToken, nil
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
