package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agent-racer/hookwatch/internal/push"
)

// StateOwner receives refresh triggers. Setting a timestamp is expected to
// start a fetch of records newer than it; the router never fetches itself.
type StateOwner interface {
	SetLastEventTimestamp(t time.Time)
	SetLastDebugLogTimestamp(t time.Time)
}

// Connection is the subset of *push.Conn the router drives.
type Connection interface {
	Connect(ctx context.Context) error
	Disconnect()
	State() push.State
	OnMessage(fn func(push.InboundMessage), filter ...push.Filter) push.Unsubscribe
}

// ConnFactory builds the push connection a Router owns.
type ConnFactory func() Connection

// Router consumes one push connection and forwards notification timestamps to
// the state owner returned by its accessor.
type Router struct {
	conn  Connection
	owner func() StateOwner
	log   zerolog.Logger
	unsub push.Unsubscribe

	mu            sync.Mutex
	lastEvent     time.Time
	lastDebugLog  time.Time
	ignoredByKind map[string]int
}

// NewRouter creates the connection via newConn and subscribes to it. owner is
// called on every notification so the state owner can be swapped.
func NewRouter(newConn ConnFactory, owner func() StateOwner, log zerolog.Logger) *Router {
	r := &Router{
		conn:          newConn(),
		owner:         owner,
		log:           log.With().Str("component", "router").Logger(),
		ignoredByKind: make(map[string]int),
	}
	r.unsub = r.conn.OnMessage(r.handle)
	return r
}

func (r *Router) Connect(ctx context.Context) error { return r.conn.Connect(ctx) }

// Disconnect closes the connection. The router stays subscribed so a later
// Connect resumes delivery.
func (r *Router) Disconnect() { r.conn.Disconnect() }

func (r *Router) State() push.State { return r.conn.State() }

// Conn exposes the underlying connection for additional subscribers.
func (r *Router) Conn() Connection { return r.conn }

// Close disconnects and drops the router's subscription.
func (r *Router) Close() {
	r.unsub()
	r.conn.Disconnect()
}

// LastEventTimestamp is the most recent event_added timestamp forwarded.
func (r *Router) LastEventTimestamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastEvent
}

// LastDebugLogTimestamp is the most recent debug_log_added timestamp forwarded.
func (r *Router) LastDebugLogTimestamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastDebugLog
}

// Ignored reports how many notifications of each unrecognized type were seen.
func (r *Router) Ignored() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.ignoredByKind))
	for k, v := range r.ignoredByKind {
		out[k] = v
	}
	return out
}

func (r *Router) handle(msg push.InboundMessage) {
	n, err := Decode(msg.Data)
	switch {
	case errors.Is(err, ErrUnknownKind):
		r.mu.Lock()
		r.ignoredByKind[n.Type]++
		r.mu.Unlock()
		r.log.Debug().Str("type", n.Type).Str("id", msg.ID).Msg("ignoring unknown notification")
		return
	case errors.Is(err, ErrMissingTimestamp):
		r.log.Warn().Err(err).Str("id", msg.ID).Msg("dropping notification without timestamp")
		return
	case err != nil:
		r.log.Warn().Err(err).Str("id", msg.ID).Msg("dropping malformed notification")
		return
	}

	switch n.Kind {
	case KindConnected:
		r.log.Info().Msg("push stream connected")
	case KindHeartbeat:
	case KindEventAdded:
		r.mu.Lock()
		r.lastEvent = n.Timestamp
		r.mu.Unlock()
		r.owner().SetLastEventTimestamp(n.Timestamp)
	case KindDebugLogAdded:
		r.mu.Lock()
		r.lastDebugLog = n.Timestamp
		r.mu.Unlock()
		r.owner().SetLastDebugLogTimestamp(n.Timestamp)
	}
}
