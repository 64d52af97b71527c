package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/agent-racer/hookwatch/internal/client"
	"github.com/agent-racer/hookwatch/internal/logging"
	"github.com/agent-racer/hookwatch/internal/notify"
	"github.com/agent-racer/hookwatch/internal/process"
	"github.com/agent-racer/hookwatch/internal/push"
	"github.com/agent-racer/hookwatch/internal/status"
	"github.com/agent-racer/hookwatch/internal/store"
	"github.com/agent-racer/hookwatch/internal/tui"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Show the live status screen",
	RunE:  runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// The screen owns the terminal, so logs go to a file.
	logFile, err := logging.OpenFile(cfg.Log.File)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	log := logging.New(cfg.Log.Level, cfg.Log.Format, logFile)

	httpClient := client.NewHTTPClient(cfg.Server.URL, cfg.Server.Token)
	records := store.New(httpClient, storeConfig(cfg), log)

	conn := push.New(newDialer(cfg), pushConfig(cfg), log)
	conn.OnHeartbeatTimeout(func(silence time.Duration) {
		log.Warn().Dur("silence", silence).Msg("push stream went quiet")
	})
	router := notify.NewRouter(
		func() notify.Connection { return conn },
		func() notify.StateOwner { return records },
		log,
	)

	agg := status.New(status.Providers{
		Server: &status.ProcessServerProvider{Port: cfg.Server.Port, Processes: process.NewController(log)},
		Hooks:  httpClient,
		Events: httpClient,
	}, statusConfig(cfg), log)

	// Store refreshes trigger polls, so the store drains before Stop.
	defer func() {
		router.Close()
		records.Close()
		agg.Stop()
	}()

	// New events usually move the counters; poll early instead of waiting a tick.
	unsubCounts := records.OnChange(func(s store.Stream) {
		if s == store.StreamEvents {
			agg.TriggerUpdate()
		}
	})
	defer unsubCounts()

	log.Info().
		Str("url", cfg.Server.URL).
		Str("transport", cfg.Push.Transport).
		Msg("starting monitor")

	p := tea.NewProgram(tui.New(router, agg, records, cfg.Status.PollInterval), tea.WithAltScreen())
	unsub := tui.Subscribe(p.Send, conn, agg, records)
	defer unsub()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run screen: %w", err)
	}
	return nil
}
