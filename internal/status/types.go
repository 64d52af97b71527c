package status

import (
	"context"
	"time"
)

type ServerState string

const (
	ServerUnknown ServerState = "unknown"
	ServerRunning ServerState = "running"
	ServerStopped ServerState = "stopped"
	ServerError   ServerState = "error"
)

// ServerInfo is what the process-liveness provider reports. Port, PID and
// Uptime are zero when unknown.
type ServerInfo struct {
	State  ServerState   `json:"state"`
	Port   int           `json:"port,omitempty"`
	PID    int           `json:"pid,omitempty"`
	Uptime time.Duration `json:"uptime,omitempty"`
}

type HookInfo struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// HooksInfo is what the hooks provider reports.
type HooksInfo struct {
	Installed bool       `json:"installed"`
	Hooks     []HookInfo `json:"hooks"`
}

// EventCounts is what the events-counter provider reports.
type EventCounts struct {
	Total int64 `json:"total"`
	Today int64 `json:"today"`
}

type HooksStatus struct {
	Installed   bool `json:"installed"`
	ActiveCount int  `json:"activeCount"`
	TotalCount  int  `json:"totalCount"`
}

type EventsStatus struct {
	Total         int64 `json:"total"`
	Today         int64 `json:"today"`
	RatePerMinute int64 `json:"ratePerMinute"`
}

// AggregateStatus is one consolidated snapshot. It is replaced wholesale on
// every poll and never mutated afterwards.
type AggregateStatus struct {
	Server        ServerInfo   `json:"server"`
	Hooks         HooksStatus  `json:"hooks"`
	Events        EventsStatus `json:"events"`
	LastUpdatedAt time.Time    `json:"lastUpdatedAt"`
	// Error is set only when Server.State is ServerError.
	Error string `json:"error,omitempty"`
}

type ServerProvider interface {
	ServerStatus(ctx context.Context) (ServerInfo, error)
}

type HooksProvider interface {
	HooksStatus(ctx context.Context) (HooksInfo, error)
}

type EventsProvider interface {
	EventStats(ctx context.Context) (EventCounts, error)
}

type Providers struct {
	Server ServerProvider
	Hooks  HooksProvider
	Events EventsProvider
}

func summarizeHooks(h HooksInfo) HooksStatus {
	s := HooksStatus{Installed: h.Installed, TotalCount: len(h.Hooks)}
	for _, hook := range h.Hooks {
		if hook.Enabled {
			s.ActiveCount++
		}
	}
	return s
}
