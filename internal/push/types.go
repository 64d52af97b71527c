// Package push maintains a single long-lived server-push connection (SSE or
// WebSocket), reconnecting with backoff when it drops and treating prolonged
// silence as a dead connection.
//
// All state transitions are serialized on Conn's mutex. Every goroutine and
// timer the connection starts captures the epoch it was started in and does
// nothing once the epoch has moved on, so a late timer after Disconnect or a
// reconnect is always a no-op.
package push

import (
	"encoding/json"
	"time"

	"github.com/agent-racer/hookwatch/internal/pubsub"
)

// State is the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Strategy selects how reconnect delays grow.
type Strategy string

const (
	StrategyLinear      Strategy = "linear"
	StrategyExponential Strategy = "exponential"
)

// HeartbeatEvent is the event kind that only proves liveness.
const HeartbeatEvent = "heartbeat"

// Config holds connection tuning. Zero durations and strategies are replaced
// by the defaults from DefaultConfig.
type Config struct {
	Reconnect         bool
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	ReconnectAttempts int
	Strategy          Strategy
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	BufferSize        int
}

func DefaultConfig() Config {
	return Config{
		Reconnect:         true,
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReconnectAttempts: 10,
		Strategy:          StrategyExponential,
		HeartbeatInterval: 10 * time.Second,
		HeartbeatTimeout:  45 * time.Second,
		BufferSize:        100,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = d.ReconnectDelay
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		c.MaxReconnectDelay = max(d.MaxReconnectDelay, c.ReconnectDelay)
	}
	if c.Strategy == "" {
		c.Strategy = d.Strategy
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = d.HeartbeatTimeout
	}
	if c.ReconnectAttempts < 0 {
		c.ReconnectAttempts = 0
	}
	if c.BufferSize < 0 {
		c.BufferSize = 0
	}
	return c
}

// Frame is one raw message as delivered by a transport.
type Frame struct {
	ID    string
	Event string
	Data  []byte
}

// InboundMessage is a parsed inbound frame.
type InboundMessage struct {
	ID         string
	Event      string
	Data       json.RawMessage
	ReceivedAt time.Time
}

// Decode unmarshals the message payload into v.
func (m InboundMessage) Decode(v any) error {
	return json.Unmarshal(m.Data, v)
}

// Filter restricts which messages a handler receives. Both conditions must
// hold when both are set.
type Filter struct {
	Events []string
	Match  func(InboundMessage) bool
}

func (f *Filter) accepts(msg InboundMessage) bool {
	if f == nil {
		return msg.Event != HeartbeatEvent
	}
	if len(f.Events) > 0 {
		found := false
		for _, e := range f.Events {
			if e == msg.Event {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	} else if msg.Event == HeartbeatEvent {
		return false
	}
	return f.Match == nil || f.Match(msg)
}

// ReconnectInfo describes a scheduled reconnection attempt.
type ReconnectInfo struct {
	Attempt       int
	Delay         time.Duration
	NextAttemptAt time.Time
}

// Stats are cumulative counters for the lifetime of a Conn.
type Stats struct {
	MessagesReceived int64
	BytesReceived    int64
	LastMessageTime  time.Time
	Reconnects       int64
	ParseErrors      int64
}

// Unsubscribe removes a previously registered handler.
type Unsubscribe = pubsub.Unsubscribe
