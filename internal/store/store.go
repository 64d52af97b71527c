// Package store is the state owner behind the notification router. Each
// timestamp it receives starts a since-timestamp refresh of the matching
// record stream.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/agent-racer/hookwatch/internal/client"
	"github.com/agent-racer/hookwatch/internal/pubsub"
)

// Stream names a record stream.
type Stream string

const (
	StreamEvents    Stream = "events"
	StreamDebugLogs Stream = "debug_logs"
)

// Fetcher returns records newer than since. client.HTTPClient implements it.
type Fetcher interface {
	ListEvents(ctx context.Context, since time.Time, limit int) ([]client.Record, error)
	DebugLogs(ctx context.Context, since time.Time, limit int) ([]client.Record, error)
}

type Config struct {
	FetchLimit int
	MaxRecords int
}

type fetchFunc func(ctx context.Context, since time.Time, limit int) ([]client.Record, error)

type stream struct {
	name  Stream
	fetch fetchFunc

	mu        sync.Mutex
	records   []client.Record
	ids       map[string]struct{}
	lastNotif time.Time
	running   bool
	again     bool
}

type Store struct {
	cfg     Config
	log     zerolog.Logger
	failLog rate.Sometimes

	events    *stream
	debugLogs *stream
	onChange  pubsub.Registry[func(Stream)]

	ctx     context.Context
	cancel  context.CancelFunc
	closeMu sync.RWMutex
	wg      sync.WaitGroup
}

func New(f Fetcher, cfg Config, log zerolog.Logger) *Store {
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 100
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = 500
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		cfg:       cfg,
		log:       log.With().Str("component", "store").Logger(),
		failLog:   rate.Sometimes{Interval: time.Minute},
		events:    &stream{name: StreamEvents, fetch: f.ListEvents, ids: make(map[string]struct{})},
		debugLogs: &stream{name: StreamDebugLogs, fetch: f.DebugLogs, ids: make(map[string]struct{})},
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetLastEventTimestamp records t and refreshes the event list.
func (s *Store) SetLastEventTimestamp(t time.Time) { s.trigger(s.events, t) }

// SetLastDebugLogTimestamp records t and refreshes the debug log list.
func (s *Store) SetLastDebugLogTimestamp(t time.Time) { s.trigger(s.debugLogs, t) }

// Refresh fetches both streams without a new notification.
func (s *Store) Refresh() {
	s.trigger(s.events, time.Time{})
	s.trigger(s.debugLogs, time.Time{})
}

// OnChange is called with the stream name after new records were merged.
func (s *Store) OnChange(fn func(Stream)) pubsub.Unsubscribe { return s.onChange.Add(fn) }

// Events returns the held events, oldest first.
func (s *Store) Events() []client.Record { return s.events.snapshot() }

// DebugLogs returns the held debug logs, oldest first.
func (s *Store) DebugLogs() []client.Record { return s.debugLogs.snapshot() }

func (s *Store) LastEventTimestamp() time.Time { return s.events.lastNotification() }

func (s *Store) LastDebugLogTimestamp() time.Time { return s.debugLogs.lastNotification() }

// Close cancels in-flight refreshes and waits for them to finish.
func (s *Store) Close() {
	s.closeMu.Lock()
	s.cancel()
	s.closeMu.Unlock()
	s.wg.Wait()
}

func (s *Store) trigger(st *stream, t time.Time) {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.ctx.Err() != nil {
		return
	}
	st.mu.Lock()
	if t.After(st.lastNotif) {
		st.lastNotif = t
	}
	if st.running {
		st.again = true
		st.mu.Unlock()
		return
	}
	st.running = true
	st.mu.Unlock()

	s.wg.Add(1)
	go s.refresh(st)
}

// refresh fetches until no trigger arrived during the previous fetch.
func (s *Store) refresh(st *stream) {
	defer s.wg.Done()
	for {
		st.mu.Lock()
		since := st.cursorLocked()
		st.mu.Unlock()

		recs, err := st.fetch(s.ctx, since, s.cfg.FetchLimit)

		st.mu.Lock()
		added := 0
		if err == nil {
			added = st.mergeLocked(recs, s.cfg.MaxRecords)
		}
		again := st.again && s.ctx.Err() == nil
		st.again = false
		if !again {
			st.running = false
		}
		st.mu.Unlock()

		if err != nil && s.ctx.Err() == nil {
			s.logFailure(st.name, err)
		}
		if added > 0 {
			s.log.Debug().Str("stream", string(st.name)).Int("added", added).Msg("records refreshed")
			for _, fn := range s.onChange.Snapshot() {
				fn(st.name)
			}
		}
		if !again {
			return
		}
	}
}

func (s *Store) logFailure(name Stream, err error) {
	logged := false
	s.failLog.Do(func() {
		logged = true
		s.log.Warn().Err(err).Str("stream", string(name)).Msg("refresh failed")
	})
	if !logged {
		s.log.Debug().Err(err).Str("stream", string(name)).Msg("refresh failed")
	}
}

// cursorLocked is the newest held record, or one second before the latest
// notification when nothing is held yet.
func (st *stream) cursorLocked() time.Time {
	if n := len(st.records); n > 0 {
		return st.records[n-1].Timestamp
	}
	if st.lastNotif.IsZero() {
		return time.Time{}
	}
	return st.lastNotif.Add(-time.Second)
}

func (st *stream) mergeLocked(recs []client.Record, maxRecords int) int {
	added := 0
	for _, r := range recs {
		if r.ID == "" {
			continue
		}
		if _, ok := st.ids[r.ID]; ok {
			continue
		}
		st.ids[r.ID] = struct{}{}
		st.records = append(st.records, r)
		added++
	}
	if added == 0 {
		return 0
	}
	sort.SliceStable(st.records, func(i, j int) bool {
		return st.records[i].Timestamp.Before(st.records[j].Timestamp)
	})
	if over := len(st.records) - maxRecords; over > 0 {
		for _, r := range st.records[:over] {
			delete(st.ids, r.ID)
		}
		st.records = append([]client.Record(nil), st.records[over:]...)
	}
	return added
}

func (st *stream) snapshot() []client.Record {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]client.Record(nil), st.records...)
}

func (st *stream) lastNotification() time.Time {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lastNotif
}
