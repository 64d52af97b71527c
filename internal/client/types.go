// Package client talks to the event service over HTTP. Wire types here are
// shared with the dev server so both sides agree on the JSON shapes.
package client

import (
	"encoding/json"
	"time"
)

// Record is one entry from /events/list or /debug-logs.
type Record struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Session   string          `json:"session,omitempty"`
	Level     string          `json:"level,omitempty"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type Hook struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// HooksResponse is the body of GET /hooks/status.
type HooksResponse struct {
	Installed bool   `json:"installed"`
	Hooks     []Hook `json:"hooks"`
}

// EventStats is the body of GET /events/stats.
type EventStats struct {
	Total int64 `json:"total"`
	Today int64 `json:"today"`
}

// Health is the body of GET /health.
type Health struct {
	Status        string  `json:"status"`
	PID           int     `json:"pid"`
	Port          int     `json:"port,omitempty"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
	Subscribers   int     `json:"subscribers"`
}
