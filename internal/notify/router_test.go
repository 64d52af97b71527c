package notify

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-racer/hookwatch/internal/push"
)

type fakeConn struct {
	mu         sync.Mutex
	handlers   []func(push.InboundMessage)
	state      push.State
	connects   int
	disconnect int
}

func (c *fakeConn) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	c.state = push.StateConnected
	return nil
}

func (c *fakeConn) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnect++
	c.state = push.StateDisconnected
}

func (c *fakeConn) State() push.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) OnMessage(fn func(push.InboundMessage), _ ...push.Filter) push.Unsubscribe {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
	idx := len(c.handlers) - 1
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.handlers[idx] = nil
	}
}

func (c *fakeConn) deliver(t *testing.T, payload string) {
	t.Helper()
	var probe struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal([]byte(payload), &probe))
	msg := push.InboundMessage{ID: "m", Event: probe.Type, Data: json.RawMessage(payload), ReceivedAt: time.Now()}

	c.mu.Lock()
	handlers := append(([]func(push.InboundMessage))(nil), c.handlers...)
	c.mu.Unlock()
	for _, h := range handlers {
		if h != nil {
			h(msg)
		}
	}
}

type fakeOwner struct {
	events    []time.Time
	debugLogs []time.Time
}

func (o *fakeOwner) SetLastEventTimestamp(t time.Time)    { o.events = append(o.events, t) }
func (o *fakeOwner) SetLastDebugLogTimestamp(t time.Time) { o.debugLogs = append(o.debugLogs, t) }

func newTestRouter() (*Router, *fakeConn, *fakeOwner) {
	conn := &fakeConn{state: push.StateDisconnected}
	owner := &fakeOwner{}
	r := NewRouter(
		func() Connection { return conn },
		func() StateOwner { return owner },
		zerolog.Nop(),
	)
	return r, conn, owner
}

func TestRouter_EventAddedForwardsTimestampOnce(t *testing.T) {
	r, conn, owner := newTestRouter()
	require.NoError(t, r.Connect(context.Background()))
	assert.Equal(t, push.StateConnected, r.State())

	conn.deliver(t, `{"type":"connected"}`)
	conn.deliver(t, `{"type":"event_added","timestamp":"2026-03-04T05:06:07.123Z"}`)

	want := time.Date(2026, 3, 4, 5, 6, 7, 123_000_000, time.UTC)
	require.Len(t, owner.events, 1)
	assert.True(t, owner.events[0].Equal(want))
	assert.Empty(t, owner.debugLogs)
	assert.True(t, r.LastEventTimestamp().Equal(want))
}

func TestRouter_DebugLogAddedUsesSeparateStream(t *testing.T) {
	r, conn, owner := newTestRouter()

	conn.deliver(t, `{"type":"debug_log_added","timestamp":"2026-03-04T05:06:07Z"}`)

	require.Len(t, owner.debugLogs, 1)
	assert.Empty(t, owner.events)
	assert.False(t, r.LastDebugLogTimestamp().IsZero())
	assert.True(t, r.LastEventTimestamp().IsZero())
}

func TestRouter_MissingTimestampNeverUpdatesState(t *testing.T) {
	r, conn, owner := newTestRouter()

	conn.deliver(t, `{"type":"event_added","timestamp":"2026-03-04T05:06:07Z"}`)
	before := r.LastEventTimestamp()

	for _, payload := range []string{
		`{"type":"event_added"}`,
		`{"type":"event_added","timestamp":""}`,
		`{"type":"event_added","timestamp":"yesterday"}`,
		`{"type":"debug_log_added"}`,
	} {
		conn.deliver(t, payload)
	}

	assert.Len(t, owner.events, 1)
	assert.Empty(t, owner.debugLogs)
	assert.Equal(t, before, r.LastEventTimestamp())
	assert.True(t, r.LastDebugLogTimestamp().IsZero())
}

func TestRouter_UnknownKindsIgnored(t *testing.T) {
	r, conn, owner := newTestRouter()

	conn.deliver(t, `{"type":"session_started","timestamp":"2026-03-04T05:06:07Z"}`)
	conn.deliver(t, `{"type":"session_started"}`)
	conn.deliver(t, `{"type":"heartbeat"}`)

	assert.Empty(t, owner.events)
	assert.Empty(t, owner.debugLogs)
	assert.Equal(t, map[string]int{"session_started": 2}, r.Ignored())
}

func TestRouter_OwnerAccessorConsultedPerMessage(t *testing.T) {
	conn := &fakeConn{}
	first, second := &fakeOwner{}, &fakeOwner{}
	current := StateOwner(first)
	NewRouter(func() Connection { return conn }, func() StateOwner { return current }, zerolog.Nop())

	conn.deliver(t, `{"type":"event_added","timestamp":"2026-03-04T05:06:07Z"}`)
	current = second
	conn.deliver(t, `{"type":"event_added","timestamp":"2026-03-04T05:06:08Z"}`)

	assert.Len(t, first.events, 1)
	assert.Len(t, second.events, 1)
}

func TestRouter_CloseUnsubscribesAndDisconnects(t *testing.T) {
	r, conn, owner := newTestRouter()
	r.Close()

	conn.deliver(t, `{"type":"event_added","timestamp":"2026-03-04T05:06:07Z"}`)
	assert.Empty(t, owner.events)
	assert.Equal(t, 1, conn.disconnect)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		kind    Kind
		wantErr error
	}{
		{"connected", `{"type":"connected"}`, KindConnected, nil},
		{"heartbeat", `{"type":"heartbeat","timestamp":"2026-01-01T00:00:00Z"}`, KindHeartbeat, nil},
		{"event", `{"type":"event_added","timestamp":"2026-01-01T00:00:00Z"}`, KindEventAdded, nil},
		{"debug log with offset", `{"type":"debug_log_added","timestamp":"2026-01-01T02:00:00+02:00"}`, KindDebugLogAdded, nil},
		{"event without timestamp", `{"type":"event_added"}`, KindEventAdded, ErrMissingTimestamp},
		{"unknown", `{"type":"other"}`, KindUnknown, ErrUnknownKind},
		{"no type", `{}`, KindUnknown, ErrUnknownKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Decode([]byte(tt.payload))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.kind, n.Kind)
		})
	}

	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestEncodeDecode(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 600, time.UTC)
	data, err := Encode(Notification{Kind: KindEventAdded, Timestamp: ts})
	require.NoError(t, err)

	n, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, KindEventAdded, n.Kind)
	assert.True(t, n.Timestamp.Equal(ts))
}
