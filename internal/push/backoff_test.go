package push

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelay(t *testing.T) {
	base := 100 * time.Millisecond
	maxDelay := time.Second

	tests := []struct {
		strategy Strategy
		attempt  int
		want     time.Duration
	}{
		{StrategyExponential, 1, 100 * time.Millisecond},
		{StrategyExponential, 2, 200 * time.Millisecond},
		{StrategyExponential, 3, 400 * time.Millisecond},
		{StrategyExponential, 4, 800 * time.Millisecond},
		{StrategyExponential, 5, time.Second},
		{StrategyExponential, 60, time.Second},
		{StrategyLinear, 1, base},
		{StrategyLinear, 7, base},
	}
	for _, tt := range tests {
		got := Delay(tt.strategy, base, maxDelay, tt.attempt)
		assert.Equal(t, tt.want, got, "%s attempt %d", tt.strategy, tt.attempt)
	}
}

func TestDelay_ExponentialNeverExceedsMax(t *testing.T) {
	for attempt := 1; attempt <= 100; attempt++ {
		assert.LessOrEqual(t, Delay(StrategyExponential, time.Second, 30*time.Second, attempt), 30*time.Second)
	}
}

func TestRing(t *testing.T) {
	r := newRing(3)
	for _, e := range []string{"a", "b", "c", "d", "e"} {
		r.push(InboundMessage{Event: e})
		assert.LessOrEqual(t, len(r.slice()), 3)
	}
	got := r.slice()
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].Event)
	assert.Equal(t, "e", got[2].Event)
}

func TestRing_ZeroCapacityKeepsNothing(t *testing.T) {
	r := newRing(0)
	r.push(InboundMessage{Event: "a"})
	assert.Empty(t, r.slice())
}

func TestFilter(t *testing.T) {
	var none *Filter
	assert.True(t, none.accepts(InboundMessage{Event: "event_added"}))
	assert.False(t, none.accepts(InboundMessage{Event: HeartbeatEvent}))

	byMatch := &Filter{Match: func(m InboundMessage) bool { return m.ID == "x" }}
	assert.True(t, byMatch.accepts(InboundMessage{ID: "x", Event: "e"}))
	assert.False(t, byMatch.accepts(InboundMessage{ID: "y", Event: "e"}))
	assert.False(t, byMatch.accepts(InboundMessage{ID: "x", Event: HeartbeatEvent}))

	heartbeats := &Filter{Events: []string{HeartbeatEvent}}
	assert.True(t, heartbeats.accepts(InboundMessage{Event: HeartbeatEvent}))
	assert.False(t, heartbeats.accepts(InboundMessage{Event: "event_added"}))
}
