// Package main provides the CLI entry point for the lansync peer agent.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/lansync/lansync/internal/config"
	"github.com/lansync/lansync/internal/engine"
	"github.com/lansync/lansync/internal/logging"
	"github.com/lansync/lansync/internal/metrics"
	"github.com/lansync/lansync/internal/orchestrator"
	"github.com/lansync/lansync/internal/transport"
)

var (
	// Version is set at build time via ldflags.
	Version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "lansync",
		Short:   "lansync - peer-to-peer secure file synchronization",
		Version: Version,
	}

	serve := serveCmd()
	pull := pullCmd()
	rootCmd.AddCommand(serve)
	rootCmd.AddCommand(pull)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept an inbound connection and answer tree/file requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := logging.NewLogger(cfg.Device.LogLevel, cfg.Device.LogFormat)
			m := startMetrics(cfg, logger)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			watchSignals(cancel)

			tr := transport.NewTCPTransport()
			ln, err := tr.Listen(cfg.Listen.Address)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.Listen.Address, err)
			}
			defer ln.Close()

			logger.Info("listening", logging.KeyAddress, cfg.Listen.Address)

			for {
				conn, err := ln.Accept(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					logger.Error("accept failed", logging.KeyError, err)
					continue
				}
				go handleAccepted(ctx, conn, cfg, logger, m)
			}
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "lansync.yaml", "path to config file")
	return cmd
}

func handleAccepted(ctx context.Context, conn transport.Conn, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) {
	logger.Info("peer connected", logging.KeyAddress, conn.RemoteAddr())

	orch := orchestrator.New(orchestrator.Config{
		Root:                   cfg.Sync.RootDir,
		TreeTimeout:            cfg.Sync.TreeTimeout,
		OutboundBytesPerSecond: cfg.RateLimit.BytesPerSecond,
		Logger:                 logger,
	})
	sasObserver := &sasPrintingObserver{Orchestrator: orch}
	eng := engine.New(engine.Config{
		DeviceName: cfg.Device.Name,
		Conn:       conn,
		Observer:   sasObserver,
		Role:       "server",
		IsServer:   true,
		Logger:     logger,
	})
	orch.BindEngine(eng)
	sasObserver.eng = eng
	eng.Run(ctx)

	started := time.Now()
	deadline := started.Add(cfg.Sync.HandshakeTimeout)
	for eng.CurrentState() != engine.Terminated && time.Now().Before(deadline) {
		if eng.CurrentState() == engine.SessionSecured {
			m.RecordHandshakeSecured(time.Since(started).Seconds())
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	<-ctx.Done()
}

func pullCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Dial a peer, negotiate a session, and pull its file tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := logging.NewLogger(cfg.Device.LogLevel, cfg.Device.LogFormat)
			m := startMetrics(cfg, logger)

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Sync.HandshakeTimeout+5*time.Minute)
			defer cancel()
			watchSignals(cancel)

			tr := transport.NewTCPTransport()
			conn, err := tr.Dial(ctx, cfg.Peer.Address)
			if err != nil {
				return fmt.Errorf("dial %s: %w", cfg.Peer.Address, err)
			}

			orch := orchestrator.New(orchestrator.Config{
				Root:                   cfg.Sync.RootDir,
				TreeTimeout:            cfg.Sync.TreeTimeout,
				OutboundBytesPerSecond: cfg.RateLimit.BytesPerSecond,
				Logger:                 logger,
				Progress: func(path string, transferred, total uint64) {
					fmt.Printf("\r%s: %d/%d bytes", path, transferred, total)
				},
			})

			sasObserver := &sasPrintingObserver{Orchestrator: orch}
			eng := engine.New(engine.Config{
				DeviceName: cfg.Device.Name,
				Conn:       conn,
				Observer:   sasObserver,
				Role:       "client",
				IsServer:   false,
				Logger:     logger,
			})
			orch.BindEngine(eng)
			sasObserver.eng = eng
			eng.Run(ctx)
			eng.NotifyTransportConnected()

			deadline := time.Now().Add(cfg.Sync.HandshakeTimeout)
			for eng.CurrentState() != engine.SessionSecured {
				if time.Now().After(deadline) {
					return fmt.Errorf("handshake did not complete within %s", cfg.Sync.HandshakeTimeout)
				}
				if eng.CurrentState() == engine.Terminated {
					return fmt.Errorf("handshake terminated before securing session")
				}
				time.Sleep(20 * time.Millisecond)
			}

			start := time.Now()
			if err := orch.Sync(ctx); err != nil {
				m.RecordSyncError("sync_failed")
				return fmt.Errorf("sync: %w", err)
			}
			m.RecordSyncComplete(time.Since(start).Seconds())
			fmt.Println("\nsync complete")
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "lansync.yaml", "path to config file")
	return cmd
}

// sasPrintingObserver prints the SAS tokens for the operator to verbally
// confirm with the peer, then auto-accepts. A real deployment would prompt
// interactively and only confirm on operator input.
type sasPrintingObserver struct {
	*orchestrator.Orchestrator
	eng *engine.Engine
}

func (s *sasPrintingObserver) OnSasGenerated(sas [4]string) {
	fmt.Printf("session authentication string: %s %s %s %s\n", sas[0], sas[1], sas[2], sas[3])
	s.eng.ConfirmSas(true)
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func startMetrics(cfg *config.Config, logger *slog.Logger) *metrics.Metrics {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetricsWithRegistry(reg)
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Address, mux); err != nil {
				logger.Error("metrics server failed", logging.KeyError, err)
			}
		}()
		logger.Info("metrics listening", logging.KeyAddress, cfg.Metrics.Address)
	}
	return m
}

func watchSignals(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
}
