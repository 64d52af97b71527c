package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agent-racer/hookwatch/internal/devserver"
	"github.com/agent-racer/hookwatch/internal/logging"
)

var mockServerCmd = &cobra.Command{
	Use:   "mock-server",
	Short: "Run a local event service that emits synthetic hook events",
	RunE:  runMockServer,
}

func init() {
	mockServerCmd.Flags().String("addr", "", "Listen address (default 127.0.0.1:<port>)")
	mockServerCmd.Flags().Duration("interval", 2*time.Second, "Time between synthetic event bursts")
	mockServerCmd.Flags().Int64("seed", 0, "Random seed for generated events (0 uses the clock)")
	rootCmd.AddCommand(mockServerCmd)
}

func runMockServer(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	addr, _ := cmd.Flags().GetString("addr")
	interval, _ := cmd.Flags().GetDuration("interval")
	seed, _ := cmd.Flags().GetInt64("seed")
	if addr == "" {
		addr = fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := devserver.New(devserver.NewData(), devserver.Options{
		Token:             cfg.Server.Token,
		Port:              cfg.Server.Port,
		HeartbeatInterval: cfg.Push.HeartbeatInterval,
	}, log)
	go devserver.NewGenerator(srv, interval, seed).Run(ctx)

	if err := srv.ListenAndServe(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("dev server stopped")
	return nil
}
