// Package devserver is a self-contained event service for local runs and
// tests. It serves the push stream over SSE and WebSocket plus the list and
// status endpoints hookwatch polls.
package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agent-racer/hookwatch/internal/client"
	"github.com/agent-racer/hookwatch/internal/notify"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type Options struct {
	Token             string
	Port              int
	HeartbeatInterval time.Duration
}

type Server struct {
	data        *Data
	broadcaster *Broadcaster
	opts        Options
	log         zerolog.Logger
	started     time.Time
	upgrader    websocket.Upgrader
}

func New(data *Data, opts Options, log zerolog.Logger) *Server {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 10 * time.Second
	}
	log = log.With().Str("component", "devserver").Logger()
	return &Server{
		data:        data,
		broadcaster: NewBroadcaster(log),
		opts:        opts,
		log:         log,
		started:     time.Now(),
	}
}

func (s *Server) Data() *Data { return s.data }

func (s *Server) Broadcaster() *Broadcaster { return s.broadcaster }

// AddEvent stores r and announces it with an event_added notification.
func (s *Server) AddEvent(r client.Record) {
	s.data.AddEvent(r)
	s.broadcaster.Publish(notify.Notification{Kind: notify.KindEventAdded, Timestamp: r.Timestamp})
}

// AddDebugLog stores r and announces it with a debug_log_added notification.
func (s *Server) AddDebugLog(r client.Record) {
	s.data.AddDebugLog(r)
	s.broadcaster.Publish(notify.Notification{Kind: notify.KindDebugLogAdded, Timestamp: r.Timestamp})
}

// RunHeartbeats publishes a heartbeat every interval until ctx is done.
func (s *Server) RunHeartbeats(ctx context.Context) {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcaster.Publish(notify.Notification{Kind: notify.KindHeartbeat})
		}
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/events/stream", s.handleStream)
		r.Get("/events/ws", s.handleWS)
		r.Get("/events/list", s.handleEventList)
		r.Get("/events/stats", s.handleEventStats)
		r.Get("/debug-logs", s.handleDebugLogs)
		r.Get("/hooks/status", s.handleHooks)
	})
	return r
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	hbCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.RunHeartbeats(hbCtx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("dev server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.broadcaster.Close()
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(sub)
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("sse client connected")

	hello, _ := notify.Encode(notify.Notification{Kind: notify.KindConnected})
	if err := writeSSE(w, rc, hello); err != nil {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-sub.send:
			if !ok {
				return
			}
			if err := writeSSE(w, rc, msg); err != nil {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, rc *http.ResponseController, data []byte) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return rc.Flush()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	sub := s.broadcaster.Subscribe()
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("ws client connected")

	hello, _ := notify.Encode(notify.Notification{Kind: notify.KindConnected})
	go func() {
		defer conn.Close()
		if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
			return
		}
		for msg := range sub.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}()

	go func() {
		defer s.broadcaster.Unsubscribe(sub)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleEventList(w http.ResponseWriter, r *http.Request) {
	since, limit, err := parseSince(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, s.data.EventsSince(since, limit))
}

func (s *Server) handleDebugLogs(w http.ResponseWriter, r *http.Request) {
	since, limit, err := parseSince(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, s.data.DebugLogsSince(since, limit))
}

func (s *Server) handleEventStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.data.Stats())
}

func (s *Server) handleHooks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.data.Hooks())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, client.Health{
		Status:        "ok",
		PID:           os.Getpid(),
		Port:          s.opts.Port,
		UptimeSeconds: time.Since(s.started).Seconds(),
		Subscribers:   s.broadcaster.ClientCount(),
	})
}

func parseSince(r *http.Request) (time.Time, int, error) {
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, 0, fmt.Errorf("invalid since %q", v)
		}
		since = t
	}
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return time.Time{}, 0, fmt.Errorf("invalid limit %q", v)
		}
		limit = min(n, maxListLimit)
	}
	return since, limit, nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorize(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authorize(r *http.Request) bool {
	if s.opts.Token == "" {
		return true
	}
	if r.URL.Query().Get("token") == s.opts.Token {
		return true
	}
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.opts.Token
}
