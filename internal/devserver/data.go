package devserver

import (
	"sync"
	"time"

	"github.com/agent-racer/hookwatch/internal/client"
)

// Data is the in-memory record store served by the dev server.
type Data struct {
	mu        sync.RWMutex
	events    []client.Record
	debugLogs []client.Record
	hooks     client.HooksResponse
	now       func() time.Time
}

func NewData() *Data {
	return &Data{
		hooks: client.HooksResponse{
			Installed: true,
			Hooks: []client.Hook{
				{Name: "PreToolUse", Enabled: true},
				{Name: "PostToolUse", Enabled: true},
				{Name: "Notification", Enabled: false},
				{Name: "Stop", Enabled: true},
			},
		},
		now: time.Now,
	}
}

func (d *Data) AddEvent(r client.Record) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, r)
}

func (d *Data) AddDebugLog(r client.Record) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.debugLogs = append(d.debugLogs, r)
}

func (d *Data) SetHooks(h client.HooksResponse) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = h
}

func (d *Data) Hooks() client.HooksResponse {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h := d.hooks
	h.Hooks = append([]client.Hook(nil), d.hooks.Hooks...)
	return h
}

// EventsSince returns up to limit events newer than since, oldest first.
func (d *Data) EventsSince(since time.Time, limit int) []client.Record {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return newerThan(d.events, since, limit)
}

func (d *Data) DebugLogsSince(since time.Time, limit int) []client.Record {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return newerThan(d.debugLogs, since, limit)
}

func (d *Data) Stats() client.EventStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	now := d.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	s := client.EventStats{Total: int64(len(d.events))}
	for _, e := range d.events {
		if !e.Timestamp.Before(midnight) {
			s.Today++
		}
	}
	return s
}

// newerThan keeps the newest records when more than limit match.
func newerThan(recs []client.Record, since time.Time, limit int) []client.Record {
	out := make([]client.Record, 0)
	for _, r := range recs {
		if r.Timestamp.After(since) {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
