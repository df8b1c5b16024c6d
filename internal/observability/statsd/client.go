// Package statsd is a small DogStatsD-style UDP client.
package statsd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultPrefix namespaces every jobwatch metric.
const DefaultPrefix = "cfs"

// Sink describes the minimal interface required to emit StatsD-style metrics.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// Config describes how to connect to a StatsD-compatible sink.
type Config struct {
	Enabled    bool
	Address    string
	Prefix     string
	Logger     *slog.Logger
	GlobalTags map[string]string
}

// Client emits metrics over UDP. It is safe for concurrent use; a nil or disabled
// client drops every metric.
type Client struct {
	prefix     string
	globalTags map[string]string
	logger     *slog.Logger

	mu      sync.Mutex
	conn    net.Conn
	enabled bool
	// dropped counts write failures since the last successful write.
	dropped int
}

var _ Sink = (*Client)(nil)

// NewClient dials the configured endpoint unless disabled. An empty address
// disables the client rather than failing.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prefix := cfg.Prefix
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultPrefix
	}

	c := &Client{
		prefix:     sanitizePrefix(prefix),
		globalTags: cloneTags(cfg.GlobalTags),
		logger:     logger.With("component", "statsd"),
	}

	address := strings.TrimSpace(cfg.Address)
	if !cfg.Enabled || address == "" {
		return c, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("statsd dial %s: %w", address, err)
	}
	c.conn = conn
	c.enabled = true
	return c, nil
}

// Enabled reports whether the client actively emits metrics.
func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled && c.conn != nil
}

// Count increments a counter metric.
func (c *Client) Count(name string, value int64, tags map[string]string) {
	c.send(name, strconv.FormatInt(value, 10), "c", tags)
}

// Gauge records the current value for a gauge metric.
func (c *Client) Gauge(name string, value float64, tags map[string]string) {
	c.send(name, formatFloat(value), "g", tags)
}

// Timing records a timing metric in milliseconds.
func (c *Client) Timing(name string, value time.Duration, tags map[string]string) {
	c.send(name, formatFloat(float64(value)/float64(time.Millisecond)), "ms", tags)
}

// Close releases the UDP connection. It is idempotent.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enabled = false
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) send(name, value, kind string, tags map[string]string) {
	if c == nil {
		return
	}
	line := formatLine(c.prefix, name, value+"|"+kind, mergeTags(c.globalTags, tags))
	if line == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled || c.conn == nil {
		return
	}
	if _, err := c.conn.Write([]byte(line)); err != nil {
		c.dropped++
		// log the first failure of a run only
		if c.dropped == 1 {
			c.logger.Debug("statsd write failed", "error", err)
		}
		return
	}
	c.dropped = 0
}

// tagged adds fixed tags to every metric of an underlying sink.
type tagged struct {
	sink Sink
	tags map[string]string
}

// WithTags returns a Sink that adds tags to every metric sent to sink. Per-call
// tags win over the fixed ones. A nil sink stays nil.
func WithTags(sink Sink, tags map[string]string) Sink {
	if sink == nil {
		return nil
	}
	if len(tags) == 0 {
		return sink
	}
	if t, ok := sink.(*tagged); ok {
		return &tagged{sink: t.sink, tags: mergeTags(t.tags, tags)}
	}
	return &tagged{sink: sink, tags: cloneTags(tags)}
}

func (t *tagged) Count(name string, value int64, tags map[string]string) {
	t.sink.Count(name, value, mergeTags(t.tags, tags))
}

func (t *tagged) Gauge(name string, value float64, tags map[string]string) {
	t.sink.Gauge(name, value, mergeTags(t.tags, tags))
}

func (t *tagged) Timing(name string, value time.Duration, tags map[string]string) {
	t.sink.Timing(name, value, mergeTags(t.tags, tags))
}
