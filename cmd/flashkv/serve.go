package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flashdb/flashkv/internal/command"
	"github.com/flashdb/flashkv/internal/config"
	"github.com/flashdb/flashkv/internal/hotkeys"
	"github.com/flashdb/flashkv/internal/logging"
	"github.com/flashdb/flashkv/internal/metrics"
	"github.com/flashdb/flashkv/internal/server"
	"github.com/flashdb/flashkv/internal/store"
	"github.com/flashdb/flashkv/internal/version"
)

func newServeCmd() *cobra.Command {
	v := viper.New()
	var cfg *config.Config

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the FlashKV server",
		Long: `Start the FlashKV RESP server. Settings come from flags, FLASHKV_* environment
variables (also read from .env and .env.local) or a config file given with --config.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			config.InitEnv(v)
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			var err error
			cfg, err = config.Load(v)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(logging.Config{
		Name:   "flashkv",
		Level:  cfg.LogLevel,
		JSON:   cfg.LogJSON,
		Output: os.Stderr,
	})
	if err != nil {
		return err
	}
	logger.Info("starting", "version", version.Version, "build", version.BuildTime)

	st := store.New(
		store.WithLogger(logger.Named("store")),
		store.WithExpireInterval(cfg.ExpireInterval),
	)
	defer st.Close()

	hot := hotkeys.New(cfg.HotKeysTop, cfg.HotKeysWindow)
	defer hot.Close()

	m := metrics.New(st.Size, st.ExpiredKeys)

	eng := command.New(st,
		command.WithLogger(logger.Named("command")),
		command.WithHotKeys(hot),
		command.WithRecorder(m),
		command.WithMaxBitOffset(cfg.MaxBitOffset),
	)

	srv := server.New(server.Config{
		Addr:       cfg.Addr,
		Password:   cfg.RequirePass,
		MaxClients: cfg.MaxClients,
		Timeout:    cfg.Timeout,
	}, eng,
		server.WithLogger(logger.Named("server")),
		server.WithKeyspaceStats(st),
		server.WithConnObserver(m),
	)

	if cfg.MetricsAddr != "" {
		stopMetrics := serveMetrics(cfg.MetricsAddr, m, logger.Named("metrics"))
		defer stopMetrics()
	}

	if err := srv.Start(ctx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// serveMetrics exposes /metrics in the background and returns a function that
// shuts the listener down.
func serveMetrics(addr string, m *metrics.Metrics, logger hclog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	hs := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics endpoint listening", "addr", addr)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hs.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}
}
