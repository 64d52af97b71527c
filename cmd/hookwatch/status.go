package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agent-racer/hookwatch/internal/client"
	"github.com/agent-racer/hookwatch/internal/logging"
	"github.com/agent-racer/hookwatch/internal/process"
	"github.com/agent-racer/hookwatch/internal/status"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Poll server, hooks and event counters once",
	Long: `Run a single forced status poll and print the result.

Exits non-zero when any provider fails.

Example:
  $ hookwatch status
  Server:  running (port 3790, PID 4121, up 2h3m0s)
  Hooks:   installed, 3/4 active
  Events:  1042 total, 87 today`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().Duration("timeout", 10*time.Second, "Maximum time to wait for the poll")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	log := logging.New(cfg.Log.Level, "console", os.Stderr)

	httpClient := client.NewHTTPClient(cfg.Server.URL, cfg.Server.Token)
	agg := status.New(status.Providers{
		Server: &status.ProcessServerProvider{Port: cfg.Server.Port, Processes: process.NewController(log)},
		Hooks:  httpClient,
		Events: httpClient,
	}, statusConfig(cfg), log)

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	s, err := agg.ForceUpdate(ctx)
	printStatus(cmd.OutOrStdout(), s)
	return err
}

func printStatus(w io.Writer, s status.AggregateStatus) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	if s.Server.State == status.ServerError {
		fmt.Fprintf(w, "%s %s\n", red("✗"), s.Error)
		return
	}

	switch s.Server.State {
	case status.ServerRunning:
		fmt.Fprintf(w, "%s  %s (port %d, PID %d, up %s)\n",
			bold("Server:"), green("running"), s.Server.Port, s.Server.PID, s.Server.Uptime)
	case status.ServerStopped:
		fmt.Fprintf(w, "%s  %s (port %d)\n", bold("Server:"), yellow("stopped"), s.Server.Port)
	default:
		fmt.Fprintf(w, "%s  %s\n", bold("Server:"), s.Server.State)
	}

	if s.Hooks.Installed {
		fmt.Fprintf(w, "%s   %s, %d/%d active\n", bold("Hooks:"), green("installed"), s.Hooks.ActiveCount, s.Hooks.TotalCount)
	} else {
		fmt.Fprintf(w, "%s   %s\n", bold("Hooks:"), yellow("not installed"))
	}

	fmt.Fprintf(w, "%s  %d total, %d today\n", bold("Events:"), s.Events.Total, s.Events.Today)
}
