// SPDX-License-Identifier: Apache-2.0

// Package main runs the MCP gateway: one HTTP surface dispatching uniform
// action requests onto a fleet of remote capability servers.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seiklabs/mcpgate/pkg/audit"
	"github.com/seiklabs/mcpgate/pkg/config"
	"github.com/seiklabs/mcpgate/pkg/dispatch"
	"github.com/seiklabs/mcpgate/pkg/gateway"
	"github.com/seiklabs/mcpgate/pkg/mcp"
	"github.com/seiklabs/mcpgate/pkg/mcp/pool"
	"github.com/seiklabs/mcpgate/pkg/research"
	"github.com/seiklabs/mcpgate/pkg/telemetry"
)

const version = "0.1.0"

func main() {
	cfgPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := telemetry.ConfigureSlog(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("gateway exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdown, err := telemetry.InitWithConfig("mcpgate", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	fleet, connPool, err := buildFleet(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer connPool.Close()

	metrics, err := telemetry.NewDispatchMetrics()
	if err != nil {
		logger.Warn("dispatch metrics disabled", "error", err)
	}

	dispatcher := dispatch.New(fleet,
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(metrics),
	)

	opts := []gateway.Option{gateway.WithLogger(logger)}

	if cfg.Research.APIKey != "" {
		opts = append(opts, gateway.WithResearcher(research.New(
			cfg.Research.BaseURL,
			cfg.Research.APIKey,
			research.WithModel(cfg.Research.Model),
			research.WithTimeout(time.Duration(cfg.Research.TimeoutMS)*time.Millisecond),
		)))
	} else {
		logger.Info("research endpoint disabled: no api key configured")
	}

	if cfg.Audit.Enabled {
		store, err := audit.Open(cfg.Audit.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, gateway.WithAuditor(store))
	}

	server := &http.Server{
		Addr:              cfg.Gateway.Addr,
		Handler:           gateway.New(dispatcher, opts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.Gateway.Addr, "servers", fleet.Size())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Connections are owned by the pool and closed with it.
	return server.Shutdown(shutdownCtx)
}

// buildFleet connects the capability servers named in the manifest.
// Unreachable servers are skipped so the gateway can come up degraded.
func buildFleet(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*mcp.Fleet, *pool.Pool, error) {
	connPool := pool.New()

	clientOpts := []mcp.ClientOption{
		mcp.WithTimeout(time.Duration(cfg.MCP.TimeoutMS) * time.Millisecond),
		mcp.WithRetry(cfg.MCP.Retries, time.Duration(cfg.MCP.BackoffMS)*time.Millisecond),
	}

	fleet := mcp.NewFleet()

	manifest, err := mcp.LoadManifest(cfg.MCP.Manifest)
	if err != nil {
		if os.IsNotExist(err) || errors.Is(err, os.ErrNotExist) {
			logger.Warn("no fleet manifest found; starting with empty fleet", "path", cfg.MCP.Manifest)
			return fleet, connPool, nil
		}
		connPool.Close()
		return nil, nil, err
	}

	if err := connPool.RegisterManifest(manifest, clientOpts...); err != nil {
		connPool.Close()
		return nil, nil, err
	}

	for _, s := range manifest.Servers {
		client, err := connPool.Get(ctx, s.Name)
		if err != nil {
			logger.Warn("failed to connect mcp server", "server", s.Name, "error", err)
			continue
		}
		if err := fleet.Add(s.Name, client); err != nil {
			logger.Warn("failed to register mcp server", "server", s.Name, "error", err)
			connPool.Release(s.Name, client)
		}
	}

	return fleet, connPool, nil
}
