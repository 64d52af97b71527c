package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/agent-racer/hookwatch/internal/client"
)

var (
	mockTools    = []string{"Read", "Write", "Edit", "Bash", "Grep", "Glob", "Task"}
	mockSessions = []string{"mock-refactor", "mock-tests", "mock-docs"}
	mockLevels   = []string{"debug", "info", "info", "warn"}
)

// Generator feeds the server synthetic hook events and debug logs.
type Generator struct {
	server   *Server
	interval time.Duration
	rng      *rand.Rand
}

func NewGenerator(s *Server, interval time.Duration, seed int64) *Generator {
	if interval <= 0 {
		interval = time.Second
	}
	return &Generator{server: s, interval: interval, rng: rand.New(rand.NewSource(seed))}
}

// Run emits records every interval until ctx is done.
func (g *Generator) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			g.Tick(now)
		}
	}
}

// Tick emits one burst: one to three events and, sometimes, a debug log.
func (g *Generator) Tick(now time.Time) {
	n := 1 + g.rng.Intn(3)
	for i := 0; i < n; i++ {
		tool := mockTools[g.rng.Intn(len(mockTools))]
		data, _ := json.Marshal(map[string]string{"tool": tool})
		g.server.AddEvent(client.Record{
			ID:        uuid.NewString(),
			Type:      "PreToolUse",
			Timestamp: now.Add(time.Duration(i) * time.Millisecond).UTC(),
			Session:   mockSessions[g.rng.Intn(len(mockSessions))],
			Message:   fmt.Sprintf("tool %s invoked", tool),
			Data:      data,
		})
	}
	if g.rng.Intn(4) == 0 {
		level := mockLevels[g.rng.Intn(len(mockLevels))]
		g.server.AddDebugLog(client.Record{
			ID:        uuid.NewString(),
			Type:      "log",
			Timestamp: now.UTC(),
			Level:     level,
			Message:   fmt.Sprintf("hook dispatch finished (%d events)", n),
		})
	}
}
