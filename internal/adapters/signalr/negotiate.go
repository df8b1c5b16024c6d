package signalr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	apperrors "github.com/skillsfundingagency/cfs-jobwatch/internal/errors"
)

const maxNegotiateRedirects = 5

var errWebSocketsUnsupported = errors.New("hub does not offer the WebSockets transport")

type availableTransport struct {
	Transport       string   `json:"transport"`
	TransferFormats []string `json:"transferFormats"`
}

type negotiateResponse struct {
	ConnectionID        string               `json:"connectionId"`
	ConnectionToken     string               `json:"connectionToken"`
	NegotiateVersion    int                  `json:"negotiateVersion"`
	AvailableTransports []availableTransport `json:"availableTransports"`
	// Set when the hub is hosted by a service that redirects clients (Azure SignalR).
	URL         string `json:"url"`
	AccessToken string `json:"accessToken"`
	Error       string `json:"error"`
}

// endpoint is a negotiated WebSocket target.
type endpoint struct {
	url         string
	accessToken string
}

// negotiate resolves the WebSocket URL for the hub, following service redirects.
func (c *Client) negotiate(ctx context.Context) (endpoint, error) {
	hubURL := c.hubURL
	token, err := c.bearer()
	if err != nil {
		return endpoint{}, err
	}

	for range maxNegotiateRedirects {
		resp, err := c.postNegotiate(ctx, hubURL, token)
		if err != nil {
			return endpoint{}, err
		}
		if resp.Error != "" {
			return endpoint{}, apperrors.Transport(errors.New(resp.Error), 0, "negotiate %s", hubURL)
		}
		if resp.URL != "" {
			hubURL = resp.URL
			token = resp.AccessToken
			continue
		}

		if len(resp.AvailableTransports) > 0 && !slices.ContainsFunc(resp.AvailableTransports, func(t availableTransport) bool {
			return strings.EqualFold(t.Transport, "WebSockets")
		}) {
			return endpoint{}, apperrors.Transport(errWebSocketsUnsupported, 0, "negotiate %s", hubURL)
		}

		id := resp.ConnectionToken
		if resp.NegotiateVersion == 0 || id == "" {
			id = resp.ConnectionID
		}
		wsURL, err := webSocketURL(hubURL, id)
		if err != nil {
			return endpoint{}, err
		}
		return endpoint{url: wsURL, accessToken: token}, nil
	}
	return endpoint{}, apperrors.Transport(errors.New("too many redirects"), 0, "negotiate %s", c.hubURL)
}

func (c *Client) postNegotiate(ctx context.Context, hubURL, token string) (negotiateResponse, error) {
	u, err := url.Parse(hubURL)
	if err != nil {
		return negotiateResponse{}, fmt.Errorf("parse hub url: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/negotiate"
	q := u.Query()
	q.Set("negotiateVersion", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), http.NoBody)
	if err != nil {
		return negotiateResponse{}, fmt.Errorf("build negotiate request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return negotiateResponse{}, apperrors.Transport(err, 0, "negotiate %s", hubURL)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return negotiateResponse{}, apperrors.Transport(err, resp.StatusCode, "read negotiate response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return negotiateResponse{}, apperrors.Transport(
			fmt.Errorf("unexpected status %s", resp.Status), resp.StatusCode, "negotiate %s", hubURL)
	}

	var out negotiateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return negotiateResponse{}, apperrors.MalformedPayload(err, "decode negotiate response")
	}
	return out, nil
}

// webSocketURL converts an http(s) hub URL into its ws(s) form carrying the connection id.
func webSocketURL(hubURL, id string) (string, error) {
	u, err := url.Parse(hubURL)
	if err != nil {
		return "", fmt.Errorf("parse hub url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported hub url scheme %q", u.Scheme)
	}
	if id != "" {
		q := u.Query()
		q.Set("id", id)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
