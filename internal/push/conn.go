package push

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agent-racer/hookwatch/internal/pubsub"
)

// Stream is one open transport. Recv blocks until a frame arrives or the
// stream fails; Close unblocks a pending Recv.
type Stream interface {
	Recv() (Frame, error)
	Close() error
}

// Dialer opens streams. The context stays alive for the lifetime of the
// returned stream and is cancelled when the stream is torn down.
type Dialer interface {
	Dial(ctx context.Context) (Stream, error)
}

type connectCall struct {
	done chan struct{}
	err  error
}

func (c *connectCall) finish(err error) {
	c.err = err
	close(c.done)
}

func (c *connectCall) wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type messageHandler struct {
	fn     func(InboundMessage)
	filter *Filter
}

// emits collects notifications computed under the lock so they can be
// delivered after it is released.
type emits []func()

func (e emits) fire() {
	for _, fn := range e {
		fn()
	}
}

// Conn owns one push connection and its reconnection policy.
type Conn struct {
	cfg    Config
	dialer Dialer
	log    zerolog.Logger
	now    func() time.Time

	onMessage   pubsub.Registry[messageHandler]
	onError     pubsub.Registry[func(*Error)]
	onReconnect pubsub.Registry[func(ReconnectInfo)]
	onTimeout   pubsub.Registry[func(time.Duration)]
	onState     pubsub.Registry[func(from, to State)]

	mu             sync.Mutex
	state          State
	epoch          uint64
	attempt        int
	stream         Stream
	cancelStream   context.CancelFunc
	heartbeatStop  chan struct{}
	reconnectTimer *time.Timer
	lastHeartbeat  time.Time
	pending        *connectCall
	stats          Stats
	buffer         *ring
}

// New creates a disconnected Conn.
func New(dialer Dialer, cfg Config, log zerolog.Logger) *Conn {
	cfg = cfg.withDefaults()
	return &Conn{
		cfg:    cfg,
		dialer: dialer,
		log:    log.With().Str("component", "push").Logger(),
		now:    time.Now,
		state:  StateDisconnected,
		buffer: newRing(cfg.BufferSize),
	}
}

// Connect opens the connection and waits until it is open or the attempt
// fails. Calls made while an attempt is in flight share its outcome. ctx only
// bounds the caller's wait, not the attempt itself.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	if c.pending != nil {
		call := c.pending
		c.mu.Unlock()
		return call.wait(ctx)
	}

	if c.state == StateDisconnected {
		c.attempt = 0
	}
	c.stopReconnectTimerLocked()
	call := c.beginAttemptLocked()
	ev := emits{c.setStateLocked(StateConnecting)}
	c.mu.Unlock()

	ev.fire()
	return call.wait(ctx)
}

// Disconnect closes the transport, cancels every timer and moves to
// disconnected regardless of the current state.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.teardownLocked()
	c.attempt = 0
	if c.pending != nil {
		c.pending.finish(ErrDisconnected)
		c.pending = nil
	}
	ev := emits{c.setStateLocked(StateDisconnected)}
	c.mu.Unlock()

	c.log.Debug().Msg("disconnected")
	ev.fire()
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a copy of the connection counters.
func (c *Conn) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Recent returns the buffered messages, oldest first.
func (c *Conn) Recent() []InboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer.slice()
}

// OnMessage registers a message handler. With no filter the handler receives
// every message except heartbeats.
func (c *Conn) OnMessage(fn func(InboundMessage), filter ...Filter) Unsubscribe {
	h := messageHandler{fn: fn}
	if len(filter) > 0 {
		f := filter[0]
		h.filter = &f
	}
	return c.onMessage.Add(h)
}

func (c *Conn) OnError(fn func(*Error)) Unsubscribe { return c.onError.Add(fn) }

func (c *Conn) OnReconnecting(fn func(ReconnectInfo)) Unsubscribe { return c.onReconnect.Add(fn) }

// OnHeartbeatTimeout handlers receive how long the connection had been silent.
func (c *Conn) OnHeartbeatTimeout(fn func(silence time.Duration)) Unsubscribe {
	return c.onTimeout.Add(fn)
}

func (c *Conn) OnStateChange(fn func(from, to State)) Unsubscribe { return c.onState.Add(fn) }

// beginAttemptLocked starts a dial for the current epoch.
func (c *Conn) beginAttemptLocked() *connectCall {
	call := &connectCall{done: make(chan struct{})}
	c.pending = call

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelStream = cancel
	go c.open(ctx, c.epoch)
	return call
}

func (c *Conn) open(ctx context.Context, epoch uint64) {
	stream, err := c.dialer.Dial(ctx)

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		if stream != nil {
			stream.Close()
		}
		return
	}
	if err != nil {
		ev := c.lossLocked(&Error{Type: classifyDialError(err), Err: err})
		c.mu.Unlock()
		ev.fire()
		return
	}

	c.stream = stream
	c.attempt = 0
	c.lastHeartbeat = c.now()
	stop := make(chan struct{})
	c.heartbeatStop = stop
	go c.watchHeartbeat(epoch, stop)

	ev := emits{c.setStateLocked(StateConnected)}
	if c.pending != nil {
		c.pending.finish(nil)
		c.pending = nil
	}
	c.mu.Unlock()

	c.log.Info().Msg("connected")
	ev.fire()
	c.readLoop(epoch, stream)
}

func (c *Conn) readLoop(epoch uint64, stream Stream) {
	for {
		frame, err := stream.Recv()
		if err != nil {
			c.mu.Lock()
			if epoch != c.epoch {
				c.mu.Unlock()
				return
			}
			ev := c.lossLocked(&Error{Type: ErrorConnection, Err: err})
			c.mu.Unlock()
			ev.fire()
			return
		}
		if !c.handleFrame(epoch, frame) {
			return
		}
	}
}

// handleFrame parses and dispatches one frame. It returns false when the
// epoch is stale and the read loop should stop.
func (c *Conn) handleFrame(epoch uint64, frame Frame) bool {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return false
	}
	now := c.now()
	c.lastHeartbeat = now

	msg, err := parseFrame(frame, now)
	if err != nil {
		c.stats.ParseErrors++
		c.mu.Unlock()
		c.log.Warn().Err(err).Int("bytes", len(frame.Data)).Msg("dropping unparseable message")
		c.emitError(&Error{Type: ErrorParse, Err: err})
		return true
	}

	c.stats.MessagesReceived++
	c.stats.BytesReceived += int64(len(frame.Data))
	c.stats.LastMessageTime = now
	if msg.Event != HeartbeatEvent {
		c.buffer.push(msg)
	}
	c.mu.Unlock()

	for _, h := range c.onMessage.Snapshot() {
		if h.filter.accepts(msg) {
			h.fn(msg)
		}
	}
	return true
}

func (c *Conn) watchHeartbeat(epoch uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !c.checkHeartbeat(epoch) {
				return
			}
		}
	}
}

func (c *Conn) checkHeartbeat(epoch uint64) bool {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return false
	}
	silence := c.now().Sub(c.lastHeartbeat)
	if silence <= c.cfg.HeartbeatTimeout {
		c.mu.Unlock()
		return true
	}

	ev := emits{func() {
		for _, fn := range c.onTimeout.Snapshot() {
			fn(silence)
		}
	}}
	ev = append(ev, c.lossLocked(&Error{
		Type: ErrorTimeout,
		Err:  fmt.Errorf("%w: silent for %s", ErrHeartbeatTimeout, silence.Round(time.Millisecond)),
	})...)
	c.mu.Unlock()

	c.log.Warn().Dur("silence", silence).Msg("heartbeat timeout")
	ev.fire()
	return false
}

// lossLocked tears down the current transport after a failure and either
// schedules a reconnect or gives up.
func (c *Conn) lossLocked(cause *Error) emits {
	c.teardownLocked()
	ev := emits{func() { c.emitError(cause) }}

	outcome := error(cause)
	switch {
	case !c.cfg.Reconnect:
		ev = append(ev, c.setStateLocked(StateDisconnected))

	case c.attempt >= c.cfg.ReconnectAttempts:
		fatal := &Error{
			Type:  cause.Type,
			Err:   fmt.Errorf("%w (%d): %v", ErrMaxAttempts, c.attempt, cause.Err),
			Fatal: true,
		}
		outcome = fatal
		c.log.Error().Int("attempts", c.attempt).Err(cause.Err).Msg("giving up on push connection")
		ev = append(ev, func() { c.emitError(fatal) }, c.setStateLocked(StateDisconnected))

	default:
		c.attempt++
		c.stats.Reconnects++
		delay := Delay(c.cfg.Strategy, c.cfg.ReconnectDelay, c.cfg.MaxReconnectDelay, c.attempt)
		info := ReconnectInfo{Attempt: c.attempt, Delay: delay, NextAttemptAt: c.now().Add(delay)}
		epoch := c.epoch
		c.reconnectTimer = time.AfterFunc(delay, func() { c.reconnect(epoch) })

		c.log.Info().Int("attempt", info.Attempt).Dur("delay", delay).Err(cause.Err).Msg("scheduling reconnect")
		ev = append(ev, c.setStateLocked(StateReconnecting), func() {
			for _, fn := range c.onReconnect.Snapshot() {
				fn(info)
			}
		})
	}

	if c.pending != nil {
		c.pending.finish(outcome)
		c.pending = nil
	}
	return ev
}

func (c *Conn) reconnect(epoch uint64) {
	c.mu.Lock()
	if epoch != c.epoch || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.reconnectTimer = nil
	c.beginAttemptLocked()
	ev := emits{c.setStateLocked(StateConnecting)}
	c.mu.Unlock()
	ev.fire()
}

// teardownLocked invalidates every goroutine and timer of the current epoch.
func (c *Conn) teardownLocked() {
	c.epoch++
	c.stopReconnectTimerLocked()
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}
	if c.cancelStream != nil {
		c.cancelStream()
		c.cancelStream = nil
	}
}

func (c *Conn) stopReconnectTimerLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Conn) setStateLocked(to State) func() {
	from := c.state
	if from == to {
		return func() {}
	}
	c.state = to
	return func() {
		for _, fn := range c.onState.Snapshot() {
			fn(from, to)
		}
	}
}

func (c *Conn) emitError(e *Error) {
	for _, fn := range c.onError.Snapshot() {
		fn(e)
	}
}

// parseFrame validates the payload as JSON and resolves the message kind:
// the transport event name unless it is empty or the generic "message", then
// the payload's "type" field.
func parseFrame(frame Frame, now time.Time) (InboundMessage, error) {
	var probe any
	if err := json.Unmarshal(frame.Data, &probe); err != nil {
		return InboundMessage{}, fmt.Errorf("decode payload: %w", err)
	}

	event := frame.Event
	if event == "" || event == "message" {
		event = "message"
		if obj, ok := probe.(map[string]any); ok {
			if t, ok := obj["type"].(string); ok && t != "" {
				event = t
			}
		}
	}

	id := frame.ID
	if id == "" {
		id = uuid.NewString()
	}
	return InboundMessage{
		ID:         id,
		Event:      event,
		Data:       json.RawMessage(frame.Data),
		ReceivedAt: now,
	}, nil
}
