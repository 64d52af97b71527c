// Package notify turns push notifications into since-timestamp refresh
// triggers on a shared state owner.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind is the notification tag carried in the payload's "type" field.
type Kind string

const (
	KindConnected     Kind = "connected"
	KindHeartbeat     Kind = "heartbeat"
	KindEventAdded    Kind = "event_added"
	KindDebugLogAdded Kind = "debug_log_added"
	KindUnknown       Kind = "unknown"
)

var (
	ErrMissingTimestamp = errors.New("notification missing timestamp")
	ErrUnknownKind      = errors.New("unknown notification kind")
)

// Notification is a decoded push payload. Timestamp is set only for
// event_added and debug_log_added; Type keeps the raw tag so unknown kinds
// can still be reported.
type Notification struct {
	Kind      Kind
	Type      string
	Timestamp time.Time
}

type wireNotification struct {
	Type      string  `json:"type"`
	Timestamp *string `json:"timestamp,omitempty"`
}

// Decode validates a payload into a Notification. For unknown kinds and for
// timestamped kinds without a usable timestamp it returns the partially
// decoded Notification together with ErrUnknownKind or ErrMissingTimestamp.
func Decode(data []byte) (Notification, error) {
	var w wireNotification
	if err := json.Unmarshal(data, &w); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}

	n := Notification{Kind: Kind(w.Type), Type: w.Type}
	switch n.Kind {
	case KindConnected, KindHeartbeat:
		return n, nil
	case KindEventAdded, KindDebugLogAdded:
		if w.Timestamp == nil || *w.Timestamp == "" {
			return n, fmt.Errorf("%s: %w", w.Type, ErrMissingTimestamp)
		}
		ts, err := time.Parse(time.RFC3339Nano, *w.Timestamp)
		if err != nil {
			return n, fmt.Errorf("%s: %w: %v", w.Type, ErrMissingTimestamp, err)
		}
		n.Timestamp = ts
		return n, nil
	default:
		n.Kind = KindUnknown
		return n, fmt.Errorf("%w: %q", ErrUnknownKind, w.Type)
	}
}

// Encode renders n in wire form. Used by the dev server.
func Encode(n Notification) ([]byte, error) {
	w := wireNotification{Type: string(n.Kind)}
	if n.Kind == KindUnknown {
		w.Type = n.Type
	}
	if !n.Timestamp.IsZero() {
		ts := n.Timestamp.UTC().Format(time.RFC3339Nano)
		w.Timestamp = &ts
	}
	return json.Marshal(w)
}
