package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		metric string
		tags   map[string]string
		want   string
	}{
		{name: "prefixed", prefix: "cfs", metric: "jobwatch.notification", want: "cfs.jobwatch.notification:1|c"},
		{name: "no prefix", metric: "jobwatch.poll", want: "jobwatch.poll:1|c"},
		{name: "normalised", prefix: "cfs", metric: " job/type..count: ", want: "cfs.job_type.count_:1|c"},
		{name: "empty name", prefix: "cfs", metric: "  ", want: ""},
		{
			name:   "sorted tags",
			prefix: "cfs",
			metric: "m",
			tags:   map[string]string{"result": "ok", "job_type": "A,B", "flag": ""},
			want:   "cfs.m:1|c|#flag,job_type:A_B,result:ok",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatLine(tt.prefix, tt.metric, "1|c", tt.tags))
		})
	}
}

func TestSanitizePrefix(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "cfs.jobwatch", sanitizePrefix("  .cfs.jobwatch. "))
	assert.Empty(t, sanitizePrefix("."))
}

func TestMergeTags(t *testing.T) {
	t.Parallel()

	base := map[string]string{"env": "prod", " service ": " relay "}
	extra := map[string]string{"env": "stage", "": "ignored", "result": " success "}

	got := mergeTags(base, extra)
	assert.Equal(t, map[string]string{"env": "stage", "service": "relay", "result": "success"}, got)
	assert.Equal(t, "prod", base["env"], "inputs are not modified")
	assert.Nil(t, mergeTags(nil, nil))
}

func listenUDP(t *testing.T) (*net.UDPConn, func() string) {
	t.Helper()
	pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })

	return pc, func() string {
		buf := make([]byte, 1024)
		require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, _, err := pc.ReadFromUDP(buf)
		require.NoError(t, err)
		return string(buf[:n])
	}
}

func TestClient_EmitsLines(t *testing.T) {
	pc, read := listenUDP(t)

	c, err := NewClient(Config{
		Enabled:    true,
		Address:    pc.LocalAddr().String(),
		GlobalTags: map[string]string{"env": "test"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.True(t, c.Enabled())

	c.Count("jobwatch.outcome", 2, map[string]string{"result": "recorded"})
	assert.Equal(t, "cfs.jobwatch.outcome:2|c|#env:test,result:recorded", read())

	c.Gauge("jobwatch.relay.connected", 1, nil)
	assert.Equal(t, "cfs.jobwatch.relay.connected:1|g|#env:test", read())

	c.Timing("jobwatch.poll.duration", 1500*time.Microsecond, map[string]string{"env": "override"})
	assert.Equal(t, "cfs.jobwatch.poll.duration:1.5|ms|#env:override", read())
}

func TestWithTags(t *testing.T) {
	pc, read := listenUDP(t)
	c, err := NewClient(Config{Enabled: true, Address: pc.LocalAddr().String(), Prefix: "x"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	sink := WithTags(WithTags(c, map[string]string{"service": "relay"}), map[string]string{"instance": "a"})
	sink.Count("events", 1, map[string]string{"service": "http"})
	assert.Equal(t, "x.events:1|c|#instance:a,service:http", read())

	assert.Nil(t, WithTags(nil, map[string]string{"a": "b"}))
	assert.Same(t, c, WithTags(c, nil))
}

func TestClient_DisabledAndClose(t *testing.T) {
	t.Parallel()

	c, err := NewClient(Config{Enabled: true, Address: "   "})
	require.NoError(t, err)
	assert.False(t, c.Enabled())
	c.Count("dropped", 1, nil)

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()
	live := &Client{enabled: true, conn: clientConn}
	assert.True(t, live.Enabled())
	require.NoError(t, live.Close())
	assert.False(t, live.Enabled())
	require.NoError(t, live.Close())

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
	require.NoError(t, nilClient.Close())
	nilClient.Gauge("noop", 1, nil)
}

func TestNewClient_DialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{Enabled: true, Address: "bad address"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statsd dial")
}
