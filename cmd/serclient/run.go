package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/outband/serclient/internal/agentctx"
	"github.com/outband/serclient/internal/config"
	"github.com/outband/serclient/internal/metrics"
	"github.com/outband/serclient/internal/transport"
	"github.com/outband/serclient/internal/watcher"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent in the foreground",
		RunE:  runRun,
	}
	cmd.Flags().String("port", "", "serial device path")
	cmd.Flags().Int("baudrate", 0, "serial baud rate")
	cmd.Flags().Int("bytesize", 0, "serial byte size (5-8)")
	cmd.Flags().Int("parity", -1, "serial parity (0=none, 1=odd, 2=even)")
	cmd.Flags().Int("stopbits", 0, "serial stop bits (1 or 2)")
	cmd.Flags().Int("command-timeout", 0, "per-command subprocess timeout, seconds")
	cmd.Flags().String("root-dir", "", "root directory containing module executables")
	cmd.Flags().String("metrics-addr", "", "optional address to serve Prometheus metrics on, e.g. :9108")
	cmd.Flags().String("log", "info", "log level (debug, info, warn, error)")
	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger := logrus.New()
	if level, lerr := logrus.ParseLevel(mustString(cmd, "log")); lerr == nil {
		logger.SetLevel(level)
	}

	actx := agentctx.New(cfg.RootDir, logger)

	collector := metrics.New(prometheus.DefaultRegisterer)
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	tCfg := transport.Config{
		Device:      cfg.Port,
		BaudRate:    cfg.BaudRate,
		ByteSize:    cfg.ByteSize,
		Parity:      cfg.Parity,
		StopBits:    cfg.StopBits,
		ReadTimeout: 200 * time.Millisecond,
	}
	tr, err := transport.Open(tCfg)
	if err != nil {
		return err
	}
	defer tr.Close()

	wCfg := watcher.DefaultConfig()
	wCfg.CommandTimeout = cfg.CommandTimeout
	w := watcher.New(tr, actx.Registry, logger, collector, wCfg)
	w.SetRestartMarker(actx)
	w.ResumePendingRestart()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	logger.WithField("port", cfg.Port).Info("agent running")
	if err := w.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}
