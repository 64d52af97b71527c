// Package status polls the server, hooks and event-counter providers on a
// bounded cadence and publishes a consolidated AggregateStatus.
package status

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/agent-racer/hookwatch/internal/pubsub"
)

// rateMinElapsed is the shortest sample window over which an event rate is
// computed; shorter windows report 0.
const rateMinElapsed = 6 * time.Second

type Config struct {
	PollInterval    time.Duration
	MinInterval     time.Duration
	ChangeThreshold int64
}

func DefaultConfig() Config {
	return Config{
		PollInterval:    5 * time.Second,
		MinInterval:     2 * time.Second,
		ChangeThreshold: 10,
	}
}

type Aggregator struct {
	providers Providers
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time
	failLog   rate.Sometimes

	onChanged pubsub.Registry[func(AggregateStatus)]
	onUpdated pubsub.Registry[func(AggregateStatus)]
	onError   pubsub.Registry[func(error)]

	mu               sync.Mutex
	status           AggregateStatus
	polling          bool
	closed           bool
	lastPoll         time.Time
	lastSampleAt     time.Time
	lastEventCount   int64
	lastChangedTotal int64
	stop             chan struct{}
	done             chan struct{}
	triggered        sync.WaitGroup
}

func New(providers Providers, cfg Config, log zerolog.Logger) *Aggregator {
	d := DefaultConfig()
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = d.MinInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = d.PollInterval
	}
	if cfg.ChangeThreshold < 0 {
		cfg.ChangeThreshold = 0
	}
	return &Aggregator{
		providers: providers,
		cfg:       cfg,
		log:       log.With().Str("component", "status").Logger(),
		now:       time.Now,
		failLog:   rate.Sometimes{Interval: time.Minute},
		status:    AggregateStatus{Server: ServerInfo{State: ServerUnknown}},
	}
}

func (a *Aggregator) OnChanged(fn func(AggregateStatus)) pubsub.Unsubscribe {
	return a.onChanged.Add(fn)
}

func (a *Aggregator) OnUpdated(fn func(AggregateStatus)) pubsub.Unsubscribe {
	return a.onUpdated.Add(fn)
}

func (a *Aggregator) OnError(fn func(error)) pubsub.Unsubscribe {
	return a.onError.Add(fn)
}

// Start polls once immediately and then every interval. Zero uses the
// configured poll interval; anything below the minimum interval is raised to
// it. Calling Start while running does nothing.
func (a *Aggregator) Start(interval time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stop != nil {
		return
	}
	a.closed = false
	if interval <= 0 {
		interval = a.cfg.PollInterval
	}
	if interval < a.cfg.MinInterval {
		a.log.Warn().
			Dur("requested", interval).
			Dur("min", a.cfg.MinInterval).
			Msg("poll interval below minimum, clamping")
		interval = a.cfg.MinInterval
	}
	a.stop = make(chan struct{})
	a.done = make(chan struct{})
	go a.run(interval, a.stop, a.done)
}

// Stop cancels polling and waits for any poll it started. Triggers after Stop
// are dropped until the next Start. Safe to call more than once.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	stop, done := a.stop, a.done
	a.stop, a.done = nil, nil
	a.closed = true
	a.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	a.triggered.Wait()
}

func (a *Aggregator) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stop != nil
}

// Status returns the last computed snapshot without doing any I/O.
func (a *Aggregator) Status() AggregateStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// ForceUpdate polls now regardless of the minimum interval.
func (a *Aggregator) ForceUpdate(ctx context.Context) (AggregateStatus, error) {
	return a.UpdateStatus(ctx, true)
}

// TriggerUpdate starts a non-forced poll in the background. It does nothing
// once Stop has been called.
func (a *Aggregator) TriggerUpdate() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.triggered.Add(1)
	a.mu.Unlock()
	go func() {
		defer a.triggered.Done()
		a.UpdateStatus(context.Background(), false)
	}()
}

// UpdateStatus polls the providers unless a poll is already running or, when
// force is false, the last successful poll is younger than the minimum
// interval. Skipped calls return the current snapshot. A poll abandoned
// because ctx was cancelled leaves the snapshot alone, emits nothing and
// returns ctx.Err().
func (a *Aggregator) UpdateStatus(ctx context.Context, force bool) (AggregateStatus, error) {
	a.mu.Lock()
	if a.polling {
		s := a.status
		a.mu.Unlock()
		return s, nil
	}
	started := a.now()
	if !force && !a.lastPoll.IsZero() && started.Sub(a.lastPoll) < a.cfg.MinInterval {
		s := a.status
		a.mu.Unlock()
		return s, nil
	}
	a.polling = true
	a.mu.Unlock()

	server, hooks, events, err := a.fetch(ctx)

	a.mu.Lock()
	a.polling = false
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		s := a.status
		a.mu.Unlock()
		a.log.Debug().Err(err).Msg("status poll cancelled")
		return s, ctx.Err()
	}
	now := a.now()
	if err != nil {
		a.status = AggregateStatus{
			Server:        ServerInfo{State: ServerError},
			LastUpdatedAt: now,
			Error:         err.Error(),
		}
		snapshot := a.status
		a.mu.Unlock()

		a.logFailure(err)
		for _, fn := range a.onError.Snapshot() {
			fn(err)
		}
		return snapshot, err
	}

	next := AggregateStatus{
		Server: server,
		Hooks:  summarizeHooks(hooks),
		Events: EventsStatus{
			Total:         events.Total,
			Today:         events.Today,
			RatePerMinute: a.rateLocked(events.Total, now),
		},
		LastUpdatedAt: now,
	}
	changed := materiallyChanged(a.status, next, a.lastChangedTotal, a.cfg.ChangeThreshold)
	a.status = next
	a.lastPoll = started
	a.lastSampleAt = now
	a.lastEventCount = events.Total
	if changed {
		a.lastChangedTotal = events.Total
	}
	a.mu.Unlock()

	if changed {
		for _, fn := range a.onChanged.Snapshot() {
			fn(next)
		}
	}
	for _, fn := range a.onUpdated.Snapshot() {
		fn(next)
	}
	return next, nil
}

func (a *Aggregator) run(interval time.Duration, stop, done chan struct{}) {
	defer close(done)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	a.UpdateStatus(ctx, false)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// The ticker already enforces the clamped interval.
			a.UpdateStatus(ctx, true)
		}
	}
}

func (a *Aggregator) fetch(ctx context.Context) (ServerInfo, HooksInfo, EventCounts, error) {
	var (
		server ServerInfo
		hooks  HooksInfo
		events EventCounts
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if server, err = a.providers.Server.ServerStatus(gctx); err != nil {
			return fmt.Errorf("server status: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if hooks, err = a.providers.Hooks.HooksStatus(gctx); err != nil {
			return fmt.Errorf("hooks status: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if events, err = a.providers.Events.EventStats(gctx); err != nil {
			return fmt.Errorf("event stats: %w", err)
		}
		return nil
	})
	err := g.Wait()
	return server, hooks, events, err
}

// rateLocked returns events per minute since the previous successful sample.
func (a *Aggregator) rateLocked(total int64, now time.Time) int64 {
	if a.lastSampleAt.IsZero() {
		return 0
	}
	elapsed := now.Sub(a.lastSampleAt)
	if elapsed < rateMinElapsed {
		return 0
	}
	r := math.Round(float64(total-a.lastEventCount) / elapsed.Minutes())
	if r < 0 {
		return 0
	}
	return int64(r)
}

func (a *Aggregator) logFailure(err error) {
	logged := false
	a.failLog.Do(func() {
		logged = true
		a.log.Warn().Err(err).Msg("status poll failed")
	})
	if !logged {
		a.log.Debug().Err(err).Msg("status poll failed")
	}
}

// materiallyChanged reports whether next differs from prev in server or hook
// state, or whether the event total moved more than threshold away from the
// total at the last reported change.
func materiallyChanged(prev, next AggregateStatus, lastChangedTotal, threshold int64) bool {
	if prev.Server.State != next.Server.State ||
		prev.Server.Port != next.Server.Port ||
		prev.Server.PID != next.Server.PID {
		return true
	}
	if prev.Hooks != next.Hooks {
		return true
	}
	delta := next.Events.Total - lastChangedTotal
	if delta < 0 {
		delta = -delta
	}
	return delta > threshold
}
