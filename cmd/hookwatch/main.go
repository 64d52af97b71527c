package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agent-racer/hookwatch/internal/config"
	"github.com/agent-racer/hookwatch/internal/push"
	"github.com/agent-racer/hookwatch/internal/status"
	"github.com/agent-racer/hookwatch/internal/store"
)

var (
	cfgPath       string
	flagURL       string
	flagToken     string
	flagTransport string
	flagPort      int
	flagLogLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "hookwatch",
	Short: "Watch a hook event service over a live push stream",
	Long: `hookwatch keeps a push connection to the hook event service open,
refreshes events and debug logs as notifications arrive, and polls the
server process, installed hooks and event counters.

Running hookwatch with no subcommand starts the monitor screen.`,
	SilenceUsage: true,
	RunE:         runMonitor,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "Path to YAML config file")
	pf.StringVar(&flagURL, "url", "", "Base URL of the event service")
	pf.StringVar(&flagToken, "token", "", "Bearer token for the event service")
	pf.StringVar(&flagTransport, "transport", "", "Push transport: sse or websocket")
	pf.IntVar(&flagPort, "port", 0, "Port the event service listens on")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves defaults, file, environment and flags, in that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.Server.URL = flagURL
	}
	if flags.Changed("token") {
		cfg.Server.Token = flagToken
	}
	if flags.Changed("transport") {
		cfg.Push.Transport = flagTransport
	}
	if flags.Changed("port") {
		cfg.Server.Port = flagPort
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = flagLogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func pushConfig(c *config.Config) push.Config {
	return push.Config{
		Reconnect:         c.Push.Reconnect,
		ReconnectDelay:    c.Push.ReconnectDelay,
		MaxReconnectDelay: c.Push.MaxReconnectDelay,
		ReconnectAttempts: c.Push.ReconnectAttempts,
		Strategy:          push.Strategy(c.Push.ReconnectStrategy),
		HeartbeatInterval: c.Push.HeartbeatInterval,
		HeartbeatTimeout:  c.Push.HeartbeatTimeout,
		BufferSize:        c.Push.BufferSize,
	}
}

func newDialer(c *config.Config) push.Dialer {
	if c.Push.Transport == "websocket" {
		return &push.WebSocketDialer{URL: c.StreamURL(), Token: c.Server.Token}
	}
	return &push.SSEDialer{URL: c.StreamURL(), Token: c.Server.Token}
}

func statusConfig(c *config.Config) status.Config {
	return status.Config{
		PollInterval:    c.Status.PollInterval,
		MinInterval:     c.Status.MinInterval,
		ChangeThreshold: int64(c.Status.ChangeThreshold),
	}
}

func storeConfig(c *config.Config) store.Config {
	return store.Config{FetchLimit: c.Store.FetchLimit, MaxRecords: c.Store.MaxRecords}
}
