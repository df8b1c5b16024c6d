package job

import "fmt"

// MonitorMode selects how a subscription receives job events.
type MonitorMode string

const (
	// MonitorModeSignalR receives events from the shared push connection.
	MonitorModeSignalR MonitorMode = "SignalR"
	// MonitorModePolling periodically re-fetches job status over REST.
	MonitorModePolling MonitorMode = "Polling"
	// MonitorModeOff receives only events fed in explicitly (prior fetch, Ingest).
	MonitorModeOff MonitorMode = "Off"
)

// Valid reports whether the mode is known.
func (m MonitorMode) Valid() bool {
	switch m {
	case MonitorModeSignalR, MonitorModePolling, MonitorModeOff:
		return true
	default:
		return false
	}
}

// MonitorFallback selects what a push subscription degrades to when the connection drops.
type MonitorFallback string

const (
	// MonitorFallbackNone leaves the subscription disconnected until push returns.
	MonitorFallbackNone MonitorFallback = "None"
	// MonitorFallbackPolling polls over REST until push returns.
	MonitorFallbackPolling MonitorFallback = "Polling"
)

// Valid reports whether the fallback is known.
func (f MonitorFallback) Valid() bool {
	return f == MonitorFallbackNone || f == MonitorFallbackPolling
}

// TransportState is how a subscription is currently being fed.
type TransportState string

const (
	TransportPush         TransportState = "push"
	TransportPolling      TransportState = "polling"
	TransportDisconnected TransportState = "disconnected"
	TransportOff          TransportState = "off"
)

// TransportEvent is a change of the shared push connection.
type TransportEvent string

const (
	// PushLost is raised when the push connection fails or drops.
	PushLost TransportEvent = "push_lost"
	// PushRestored is raised when the push connection is (re)established.
	PushRestored TransportEvent = "push_restored"
)

// MonitorState is the per-subscription transport state machine:
// {Push, Polling, Disconnected, Off} x fallbackAllowed.
type MonitorState struct {
	Mode            MonitorMode
	Transport       TransportState
	FallbackAllowed bool
}

// InitialMonitorState returns the state a new subscription starts in. Push
// subscriptions start optimistic and are moved by PushLost if the connection is down.
func InitialMonitorState(mode MonitorMode, fallback MonitorFallback) MonitorState {
	s := MonitorState{Mode: mode, FallbackAllowed: fallback == MonitorFallbackPolling}
	switch mode {
	case MonitorModeSignalR:
		s.Transport = TransportPush
	case MonitorModePolling:
		s.Transport = TransportPolling
	default:
		s.Transport = TransportOff
	}
	return s
}

// Next applies a transport event. Explicit Polling and Off subscriptions never move.
func (s MonitorState) Next(ev TransportEvent) MonitorState {
	if s.Mode != MonitorModeSignalR {
		return s
	}
	switch ev {
	case PushLost:
		if s.Transport == TransportPush {
			if s.FallbackAllowed {
				s.Transport = TransportPolling
			} else {
				s.Transport = TransportDisconnected
			}
		}
	case PushRestored:
		if s.Transport == TransportPolling || s.Transport == TransportDisconnected {
			s.Transport = TransportPush
		}
	}
	return s
}

// NeedsPoller reports whether a REST poller must feed the subscription.
func (s MonitorState) NeedsPoller() bool {
	return s.Transport == TransportPolling
}

// FallingBack reports whether a push subscription is currently degraded.
func (s MonitorState) FallingBack() bool {
	return s.Mode == MonitorModeSignalR && s.Transport != TransportPush
}

func (s MonitorState) String() string {
	return fmt.Sprintf("%s/%s(fallback=%t)", s.Mode, s.Transport, s.FallbackAllowed)
}
