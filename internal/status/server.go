package status

import (
	"context"
	"time"

	"github.com/agent-racer/hookwatch/internal/process"
)

// ProcessLookup is the part of process.Controller the server provider uses.
type ProcessLookup interface {
	FindProcessesOnPort(ctx context.Context, port int) ([]process.Info, error)
	ProcessUptime(ctx context.Context, pid int) (time.Duration, error)
}

// ProcessServerProvider reports the server as running when a process listens
// on Port, and stopped otherwise.
type ProcessServerProvider struct {
	Port      int
	Processes ProcessLookup
}

func (p *ProcessServerProvider) ServerStatus(ctx context.Context) (ServerInfo, error) {
	procs, err := p.Processes.FindProcessesOnPort(ctx, p.Port)
	if err != nil {
		return ServerInfo{}, err
	}
	if len(procs) == 0 {
		return ServerInfo{State: ServerStopped, Port: p.Port}, nil
	}

	info := ServerInfo{State: ServerRunning, Port: p.Port, PID: procs[0].PID}
	if up, err := p.Processes.ProcessUptime(ctx, info.PID); err == nil {
		info.Uptime = up.Truncate(time.Second)
	}
	return info, nil
}
