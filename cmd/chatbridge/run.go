package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/chatbridge/bridge"
	"github.com/vovakirdan/chatbridge/internal/config"
	"github.com/vovakirdan/chatbridge/internal/console"
	"github.com/vovakirdan/chatbridge/internal/logging"
	"github.com/vovakirdan/chatbridge/transport"
)

func newRunCmd(g *globalFlags) *cobra.Command {
	var (
		metricsAddr string
		logLevel    string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bridge with a console host on stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.Sources{File: g.configFile, EnvFile: g.envFile})
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddress = metricsAddr
			}
			if cmd.Flags().Changed("log-level") {
				if _, err := logging.ParseLevel(logLevel); err != nil {
					return err
				}
				cfg.Log.Level = logLevel
			}
			return run(cmd, cfg)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	return cmd
}

func run(cmd *cobra.Command, cfg config.Config) error {
	log := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := bridge.NewMetrics(reg)

	sess, err := transport.NewSession(cfg.Transport())
	if err != nil {
		return err
	}
	sess.SetLogger(transport.SlogLogger(log.With("component", "transport")))

	host := console.New(cmd.OutOrStdout(), log.With("component", "console"))
	go func() {
		if err := host.Run(ctx, cmd.InOrStdin()); err != nil {
			log.Error("console input failed", "error", err)
		}
	}()

	var metricsSrv *http.Server
	if cfg.MetricsAddress != "" {
		metricsSrv = serveMetrics(cfg.MetricsAddress, reg, log)
	}

	b, err := bridge.Open(ctx, bridge.Options{
		Transport: sess,
		Server:    host,
		Logger:    log,
		Metrics:   metrics,
	})
	if err != nil {
		return fmt.Errorf("start bridge: %w", err)
	}

	<-ctx.Done()
	log.Info("signal received, stopping")
	if err := b.Shutdown(); err != nil {
		log.Warn("bridge shutdown", "error", err)
	}
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
