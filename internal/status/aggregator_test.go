package status

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-racer/hookwatch/internal/process"
)

type fakeProviders struct {
	mu      sync.Mutex
	server  ServerInfo
	hooks   HooksInfo
	events  EventCounts
	err     error
	block   chan struct{}
	fetches atomic.Int32
}

func (p *fakeProviders) ServerStatus(ctx context.Context) (ServerInfo, error) {
	p.fetches.Add(1)
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return ServerInfo{}, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.server, p.err
}

func (p *fakeProviders) HooksStatus(context.Context) (HooksInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hooks, nil
}

func (p *fakeProviders) EventStats(context.Context) (EventCounts, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events, nil
}

func (p *fakeProviders) setTotal(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events.Total = total
}

func (p *fakeProviders) providers() Providers {
	return Providers{Server: p, Hooks: p, Events: p}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func healthyProviders() *fakeProviders {
	return &fakeProviders{
		server: ServerInfo{State: ServerRunning, Port: 3790, PID: 1234},
		hooks: HooksInfo{Installed: true, Hooks: []HookInfo{
			{Name: "PreToolUse", Enabled: true},
			{Name: "PostToolUse", Enabled: false},
		}},
		events: EventCounts{Total: 100, Today: 7},
	}
}

func newTestAggregator(p *fakeProviders) (*Aggregator, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	a := New(p.providers(), Config{MinInterval: 2 * time.Second, ChangeThreshold: 10}, zerolog.Nop())
	a.now = clock.now
	return a, clock
}

func TestForceUpdate_AssemblesStatus(t *testing.T) {
	p := healthyProviders()
	a, clock := newTestAggregator(p)

	assert.Equal(t, ServerUnknown, a.Status().Server.State)

	_, err := a.ForceUpdate(context.Background())
	require.NoError(t, err)

	s := a.Status()
	assert.Equal(t, ServerRunning, s.Server.State)
	assert.Equal(t, 3790, s.Server.Port)
	assert.Equal(t, 1234, s.Server.PID)
	assert.True(t, s.Hooks.Installed)
	assert.Equal(t, 1, s.Hooks.ActiveCount)
	assert.Equal(t, 2, s.Hooks.TotalCount)
	assert.EqualValues(t, 100, s.Events.Total)
	assert.EqualValues(t, 7, s.Events.Today)
	assert.Zero(t, s.Events.RatePerMinute)
	assert.Equal(t, clock.now(), s.LastUpdatedAt)
	assert.Empty(t, s.Error)
}

func TestUpdateStatus_MinIntervalThrottles(t *testing.T) {
	p := healthyProviders()
	a, clock := newTestAggregator(p)
	ctx := context.Background()

	_, err := a.UpdateStatus(ctx, false)
	require.NoError(t, err)
	clock.advance(time.Second)
	_, err = a.UpdateStatus(ctx, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, p.fetches.Load())

	_, err = a.ForceUpdate(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, p.fetches.Load())

	clock.advance(2 * time.Second)
	_, err = a.UpdateStatus(ctx, false)
	require.NoError(t, err)
	assert.EqualValues(t, 3, p.fetches.Load())
}

func TestUpdateStatus_NoOverlappingPolls(t *testing.T) {
	p := healthyProviders()
	p.block = make(chan struct{})
	a, _ := newTestAggregator(p)

	first := make(chan error, 1)
	go func() {
		_, err := a.ForceUpdate(context.Background())
		first <- err
	}()
	require.Eventually(t, func() bool { return p.fetches.Load() == 1 }, time.Second, time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := a.ForceUpdate(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, ServerUnknown, s.Server.State)
		}()
	}
	wg.Wait()

	close(p.block)
	require.NoError(t, <-first)
	assert.EqualValues(t, 1, p.fetches.Load())
	assert.Equal(t, ServerRunning, a.Status().Server.State)
}

func TestRate(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		from    int64
		to      int64
		want    int64
	}{
		{"ten per minute", time.Minute, 100, 110, 10},
		{"rounded", 90 * time.Second, 100, 110, 7},
		{"below sample window", 5 * time.Second, 100, 200, 0},
		{"at sample window", 6 * time.Second, 100, 110, 100},
		{"counter reset clamps to zero", time.Minute, 100, 20, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := healthyProviders()
			p.setTotal(tt.from)
			a, clock := newTestAggregator(p)
			ctx := context.Background()

			_, err := a.ForceUpdate(ctx)
			require.NoError(t, err)
			clock.advance(tt.elapsed)
			p.setTotal(tt.to)
			s, err := a.ForceUpdate(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Events.RatePerMinute)
		})
	}
}

func TestChangedAndUpdatedEvents(t *testing.T) {
	p := healthyProviders()
	a, clock := newTestAggregator(p)
	ctx := context.Background()

	var changed, updated int
	a.OnChanged(func(AggregateStatus) { changed++ })
	a.OnUpdated(func(AggregateStatus) { updated++ })

	step := func(total int64) {
		t.Helper()
		clock.advance(10 * time.Second)
		p.setTotal(total)
		_, err := a.ForceUpdate(ctx)
		require.NoError(t, err)
	}

	step(100)
	assert.Equal(t, 1, changed, "first poll leaves the unknown state")
	step(105)
	step(110)
	assert.Equal(t, 1, changed, "totals within threshold of the last change are suppressed")
	step(111)
	assert.Equal(t, 2, changed, "drift accumulates from the last change")
	step(115)
	assert.Equal(t, 2, changed)

	p.mu.Lock()
	p.hooks.Hooks[1].Enabled = true
	p.mu.Unlock()
	step(115)
	assert.Equal(t, 3, changed)

	p.mu.Lock()
	p.server.PID = 999
	p.mu.Unlock()
	step(115)
	assert.Equal(t, 4, changed)

	assert.Equal(t, 7, updated)
}

func TestProviderFailure_DowngradesToError(t *testing.T) {
	p := healthyProviders()
	a, _ := newTestAggregator(p)
	ctx := context.Background()

	_, err := a.ForceUpdate(ctx)
	require.NoError(t, err)

	var errs []error
	var updated int
	a.OnError(func(err error) { errs = append(errs, err) })
	a.OnUpdated(func(AggregateStatus) { updated++ })

	boom := errors.New("lsof exploded")
	p.mu.Lock()
	p.err = boom
	p.mu.Unlock()

	s, err := a.ForceUpdate(ctx)
	assert.ErrorIs(t, err, boom)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
	assert.Zero(t, updated)

	assert.Equal(t, ServerError, s.Server.State)
	assert.Equal(t, s, a.Status())
	assert.Zero(t, s.Hooks)
	assert.Zero(t, s.Events)
	assert.Contains(t, s.Error, "lsof exploded")
}

func TestRecoveryAfterFailureIsAChange(t *testing.T) {
	p := healthyProviders()
	a, _ := newTestAggregator(p)
	ctx := context.Background()

	var changed int
	a.OnChanged(func(AggregateStatus) { changed++ })

	p.err = errors.New("down")
	_, err := a.ForceUpdate(ctx)
	require.Error(t, err)
	p.mu.Lock()
	p.err = nil
	p.mu.Unlock()
	_, err = a.ForceUpdate(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, changed)
	assert.Equal(t, ServerRunning, a.Status().Server.State)
}

func TestStartStop(t *testing.T) {
	p := healthyProviders()
	a := New(p.providers(), Config{MinInterval: 10 * time.Millisecond}, zerolog.Nop())

	a.Start(time.Millisecond)
	a.Start(time.Millisecond)
	assert.True(t, a.Running())
	require.Eventually(t, func() bool { return p.fetches.Load() >= 3 }, time.Second, time.Millisecond)

	a.Stop()
	a.Stop()
	assert.False(t, a.Running())
	after := p.fetches.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, p.fetches.Load(), "no poll after Stop returns")
}

func TestStop_CancelsInFlightPoll(t *testing.T) {
	p := healthyProviders()
	p.block = make(chan struct{})
	a := New(p.providers(), Config{MinInterval: time.Hour}, zerolog.Nop())
	var errs atomic.Int32
	a.OnError(func(error) { errs.Add(1) })
	before := a.Status()

	a.Start(0)
	require.Eventually(t, func() bool { return p.fetches.Load() == 1 }, time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		a.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return while a poll was blocked")
	}

	assert.Equal(t, before, a.Status(), "shutdown must not publish an error snapshot")
	assert.Equal(t, ServerUnknown, a.Status().Server.State)
	assert.Zero(t, errs.Load())
}

func TestUpdateStatus_CancelledKeepsSnapshot(t *testing.T) {
	p := healthyProviders()
	a, _ := newTestAggregator(p)
	_, err := a.ForceUpdate(context.Background())
	require.NoError(t, err)
	good := a.Status()

	var errs, updates atomic.Int32
	a.OnError(func(error) { errs.Add(1) })
	a.OnUpdated(func(AggregateStatus) { updates.Add(1) })

	p.block = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for p.fetches.Load() < 2 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()
	s, err := a.ForceUpdate(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, good, s)
	assert.Equal(t, good, a.Status())
	assert.Zero(t, errs.Load())
	assert.Zero(t, updates.Load())
}

func TestUpdateStatus_DeadlineIsAFailure(t *testing.T) {
	p := healthyProviders()
	p.block = make(chan struct{})
	a, _ := newTestAggregator(p)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	s, err := a.ForceUpdate(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, ServerError, s.Server.State)
}

func TestTriggerUpdate_DroppedAfterStop(t *testing.T) {
	p := healthyProviders()
	a, _ := newTestAggregator(p)

	a.Stop()
	a.TriggerUpdate()
	a.Stop()
	assert.Zero(t, p.fetches.Load())

	a.Start(time.Hour)
	require.Eventually(t, func() bool { return p.fetches.Load() == 1 }, time.Second, time.Millisecond)
	a.Stop()
}

func TestTriggerUpdate_ConcurrentWithStop(t *testing.T) {
	p := healthyProviders()
	a, _ := newTestAggregator(p)
	a.Start(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.TriggerUpdate()
		}()
	}
	a.Stop()
	wg.Wait()
	a.Stop()

	after := p.fetches.Load()
	a.TriggerUpdate()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, p.fetches.Load())
}

func TestTriggerUpdate(t *testing.T) {
	p := healthyProviders()
	a, _ := newTestAggregator(p)

	a.TriggerUpdate()
	a.Stop()
	assert.EqualValues(t, 1, p.fetches.Load())
	assert.Equal(t, ServerRunning, a.Status().Server.State)
}

func TestMateriallyChanged(t *testing.T) {
	base := AggregateStatus{
		Server: ServerInfo{State: ServerRunning, Port: 3790, PID: 1, Uptime: time.Minute},
		Hooks:  HooksStatus{Installed: true, ActiveCount: 1, TotalCount: 2},
		Events: EventsStatus{Total: 100},
	}
	with := func(mut func(*AggregateStatus)) AggregateStatus {
		s := base
		mut(&s)
		return s
	}
	tests := []struct {
		name string
		next AggregateStatus
		want bool
	}{
		{"identical", base, false},
		{"uptime only", with(func(s *AggregateStatus) { s.Server.Uptime = time.Hour }), false},
		{"rate only", with(func(s *AggregateStatus) { s.Events.RatePerMinute = 50 }), false},
		{"state", with(func(s *AggregateStatus) { s.Server.State = ServerStopped }), true},
		{"port", with(func(s *AggregateStatus) { s.Server.Port = 3791 }), true},
		{"pid", with(func(s *AggregateStatus) { s.Server.PID = 2 }), true},
		{"installed", with(func(s *AggregateStatus) { s.Hooks.Installed = false }), true},
		{"active hooks", with(func(s *AggregateStatus) { s.Hooks.ActiveCount = 2 }), true},
		{"total hooks", with(func(s *AggregateStatus) { s.Hooks.TotalCount = 3 }), true},
		{"events at threshold", with(func(s *AggregateStatus) { s.Events.Total = 110 }), false},
		{"events past threshold", with(func(s *AggregateStatus) { s.Events.Total = 111 }), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, materiallyChanged(base, tt.next, 100, 10))
		})
	}
}

type fakeLookup struct {
	procs []process.Info
	err   error
}

func (f fakeLookup) FindProcessesOnPort(context.Context, int) ([]process.Info, error) {
	return f.procs, f.err
}

func (f fakeLookup) ProcessUptime(context.Context, int) (time.Duration, error) {
	return 90*time.Second + 300*time.Millisecond, nil
}

func TestProcessServerProvider(t *testing.T) {
	ctx := context.Background()

	running := &ProcessServerProvider{Port: 3790, Processes: fakeLookup{procs: []process.Info{{PID: 42, Command: "node"}}}}
	info, err := running.ServerStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, ServerInfo{State: ServerRunning, Port: 3790, PID: 42, Uptime: 90 * time.Second}, info)

	stopped := &ProcessServerProvider{Port: 3790, Processes: fakeLookup{}}
	info, err = stopped.ServerStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, ServerStopped, info.State)

	failing := &ProcessServerProvider{Port: 3790, Processes: fakeLookup{err: errors.New("no lsof")}}
	_, err = failing.ServerStatus(ctx)
	assert.Error(t, err)
}
