// Package process finds, probes and terminates the processes behind a TCP
// port. Port lookup shells out to the platform tool (lsof or netstat);
// liveness, names and signals go through gopsutil.
package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
	gops "github.com/shirou/gopsutil/v3/process"
)

// Info is one process bound to a port. Command may be empty when the
// platform tool does not report it and the name lookup failed.
type Info struct {
	PID     int
	Command string
}

// Runner runs an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

type Controller struct {
	runner Runner
	log    zerolog.Logger
}

func NewController(log zerolog.Logger) *Controller {
	return NewControllerWithRunner(ExecRunner{}, log)
}

func NewControllerWithRunner(r Runner, log zerolog.Logger) *Controller {
	return &Controller{runner: r, log: log.With().Str("component", "process").Logger()}
}

// FindProcessesOnPort lists the processes listening on port. No listener is
// an empty result, not an error.
func (c *Controller) FindProcessesOnPort(ctx context.Context, port int) ([]Info, error) {
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d", port)
	}
	procs, err := c.findOnPort(ctx, port)
	if err != nil {
		return nil, fmt.Errorf("finding processes on port %d: %w", port, err)
	}
	for i := range procs {
		if procs[i].Command != "" {
			continue
		}
		if p, err := gops.NewProcessWithContext(ctx, int32(procs[i].PID)); err == nil {
			procs[i].Command, _ = p.NameWithContext(ctx)
		}
	}
	return procs, nil
}

// IsProcessRunning probes pid without affecting it.
func (c *Controller) IsProcessRunning(ctx context.Context, pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := gops.PidExistsWithContext(ctx, int32(pid))
	if err != nil {
		c.log.Debug().Err(err).Int("pid", pid).Msg("liveness probe failed")
		return false
	}
	return ok
}

// KillProcess asks pid to exit, or forces it when force is set. The result
// reports whether the signal was delivered, not whether the process exited.
func (c *Controller) KillProcess(ctx context.Context, pid int, force bool) bool {
	if pid <= 0 {
		return false
	}
	if err := c.signal(ctx, pid, force); err != nil {
		c.log.Warn().Err(err).Int("pid", pid).Bool("force", force).Msg("kill failed")
		return false
	}
	c.log.Info().Int("pid", pid).Bool("force", force).Msg("signalled process")
	return true
}

// KillProcessesOnPort signals every listener on port and returns how many
// signals were delivered.
func (c *Controller) KillProcessesOnPort(ctx context.Context, port int, force bool) (int, error) {
	procs, err := c.FindProcessesOnPort(ctx, port)
	if err != nil {
		return 0, err
	}
	killed := 0
	for _, p := range procs {
		if c.KillProcess(ctx, p.PID, force) {
			killed++
		}
	}
	return killed, nil
}

// ProcessUptime returns how long pid has been running.
func (c *Controller) ProcessUptime(ctx context.Context, pid int) (time.Duration, error) {
	p, err := gops.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return 0, fmt.Errorf("process %d: %w", pid, err)
	}
	created, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("process %d create time: %w", pid, err)
	}
	return time.Since(time.UnixMilli(created)), nil
}

func exitCode(err error) int {
	var ec interface{ ExitCode() int }
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return -1
}
