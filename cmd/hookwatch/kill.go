package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agent-racer/hookwatch/internal/logging"
	"github.com/agent-racer/hookwatch/internal/process"
)

var killCmd = &cobra.Command{
	Use:   "kill",
	Short: "Terminate the processes listening on the service port",
	Long: `Find every process listening on the service port and signal it.

Without --force the processes get a graceful termination request. After
--wait the port's processes are probed again and any survivors are
reported.

Example:
  $ hookwatch kill --port 3790
  → PID 4121 (node)
  ✓ Stopped 1 process on port 3790`,
	RunE: runKill,
}

func init() {
	killCmd.Flags().Bool("force", false, "Kill immediately instead of asking processes to exit")
	killCmd.Flags().Duration("wait", 500*time.Millisecond, "Delay before checking for survivors")
	rootCmd.AddCommand(killCmd)
}

// portKiller is the part of process.Controller the kill command uses.
type portKiller interface {
	FindProcessesOnPort(ctx context.Context, port int) ([]process.Info, error)
	KillProcessesOnPort(ctx context.Context, port int, force bool) (int, error)
	IsProcessRunning(ctx context.Context, pid int) bool
}

func runKill(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	force, _ := cmd.Flags().GetBool("force")
	wait, _ := cmd.Flags().GetDuration("wait")
	log := logging.New(cfg.Log.Level, "console", os.Stderr)

	return killPort(cmd.Context(), cmd.OutOrStdout(), process.NewController(log), cfg.Server.Port, force, wait)
}

func killPort(ctx context.Context, w io.Writer, pk portKiller, port int, force bool, wait time.Duration) error {
	cyan := color.New(color.FgCyan).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	procs, err := pk.FindProcessesOnPort(ctx, port)
	if err != nil {
		return fmt.Errorf("find processes on port %d: %w", port, err)
	}
	if len(procs) == 0 {
		fmt.Fprintf(w, "%s No process listening on port %d\n", yellow("ℹ"), port)
		return nil
	}
	for _, p := range procs {
		if p.Command != "" {
			fmt.Fprintf(w, "%s PID %d (%s)\n", cyan("→"), p.PID, p.Command)
		} else {
			fmt.Fprintf(w, "%s PID %d\n", cyan("→"), p.PID)
		}
	}

	signalled, err := pk.KillProcessesOnPort(ctx, port, force)
	if err != nil {
		return fmt.Errorf("kill processes on port %d: %w", port, err)
	}

	select {
	case <-time.After(wait):
	case <-ctx.Done():
		return ctx.Err()
	}

	var survivors []int
	for _, p := range procs {
		if pk.IsProcessRunning(ctx, p.PID) {
			survivors = append(survivors, p.PID)
		}
	}
	if len(survivors) > 0 {
		fmt.Fprintf(w, "%s Still running: %v\n", red("✗"), survivors)
		if !force {
			fmt.Fprintf(w, "  Retry with --force\n")
		}
		return fmt.Errorf("%d of %d processes still running", len(survivors), len(procs))
	}

	fmt.Fprintf(w, "%s Stopped %d %s on port %d\n", green("✓"), signalled, plural(signalled, "process", "processes"), port)
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
