package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tn3270d/internal/emulator"
	"tn3270d/internal/metrics"
	"tn3270d/internal/notify"
	"tn3270d/internal/registry"
	"tn3270d/internal/screen"
	"tn3270d/internal/store"
	"tn3270d/internal/telemetry"
	"tn3270d/internal/web"
	"tn3270d/internal/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge daemon",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	telemetry.InitLogger(viper.GetBool("verbose"), viper.GetString("log_file"))

	m := metrics.NewMetrics()

	// The audit store is best effort: a backend that will not open costs
	// the trail, not the daemon.
	var st store.Store
	if s, err := store.New(store.Config{
		Type: viper.GetString("store.type"),
		DSN:  viper.GetString("store.dsn"),
	}); err != nil {
		slog.Error("audit store unavailable", "type", viper.GetString("store.type"), "error", err)
	} else {
		st = s
		defer st.Close()
	}

	notifier := notify.NewManager()
	if notifier.Enabled() {
		slog.Info("slack notifications enabled",
			"channel", viper.GetString("notifications.slack.channel"))
	}

	var rules *screen.Rules
	if path := viper.GetString("rules_file"); path != "" {
		r, err := screen.LoadRules(path)
		if err != nil {
			return fmt.Errorf("load rules file %s: %w", path, err)
		}
		rules = r
		slog.Info("classification rules loaded", "path", path)
	}

	timing := workflow.DefaultTiming()
	if v := viper.GetInt("command_timeout_seconds"); v > 0 {
		timing.CommandTimeout = time.Duration(v) * time.Second
	}
	if v := viper.GetInt("transfer_timeout_seconds"); v > 0 {
		timing.TransferTimeout = time.Duration(v) * time.Second
	}
	if v := viper.GetInt("stabilize_poll_ms"); v > 0 {
		timing.PollInterval = time.Duration(v) * time.Millisecond
	}

	reg := registry.New(registry.Options{
		TTL:           time.Duration(viper.GetInt("session_ttl_seconds")) * time.Second,
		SweepInterval: time.Duration(viper.GetInt("sweep_interval_seconds")) * time.Second,
		S3270Path:     viper.GetString("s3270_path"),
		Rules:         rules,
		Timing:        &timing,
		OutputDir:     viper.GetString("output_dir"),
		OnActiveCount: func(n int) { m.ActiveSessions.Set(float64(n)) },
		OnExpired:     m.SessionsExpired.Inc,
		OnWorkflow: func(operation, outcome string) {
			m.WorkflowsTotal.WithLabelValues(operation, outcome).Inc()
		},
		OnCommand: func(status emulator.Status, elapsed time.Duration) {
			m.CommandsTotal.WithLabelValues(string(status)).Inc()
			m.CommandDuration.Observe(elapsed.Seconds())
		},
		OnPoll: m.ScreenPollsTotal.Inc,
	})
	reg.StartSweeper()

	srv := web.NewServer(reg, m, st, notifier)
	srv.S3270Path = viper.GetString("s3270_path")

	addr := viper.GetString("listen_addr")
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("bridge listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		reg.Close()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}

	// Every emulator subprocess dies before the daemon does.
	reg.Close()
	slog.Info("shutdown complete")
	return nil
}
