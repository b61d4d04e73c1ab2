package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	kratoshttp "github.com/go-kratos/kratos/v2/transport/http"
	swaggerUI "github.com/tx7do/kratos-swagger-ui"

	_ "github.com/go-tangra/go-tangra-cpuinfo/internal/codec"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/config"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/cpu"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/store"
)

// NewHTTPServer builds the collector HTTP server with the auth middleware,
// the service routes and, when enabled, the Swagger UI.
func NewHTTPServer(cfg *config.Config, h *Handler, openApiData []byte) *kratoshttp.Server {
	srv := kratoshttp.NewServer(
		kratoshttp.Address(cfg.HTTPListen),
		// Long-polls hold the request for up to poll_wait.
		kratoshttp.Timeout(cfg.PollWait+cfg.RequestTimeout),
		kratoshttp.Middleware(AuthMiddleware(cfg.ApiSecret, cfg.ClientSecret)),
	)
	RegisterCollectorHTTPServer(srv, h)

	// Swagger UI is registered via HandlePrefix and bypasses the middleware chain.
	if cfg.EnableSwagger && len(openApiData) > 0 {
		swaggerUI.RegisterSwaggerUIServerWithOption(
			srv,
			swaggerUI.WithTitle("CPU Info Collector"),
			swaggerUI.WithMemoryData(openApiData, "yaml"),
		)
	}
	return srv
}

// Run starts the HTTP server and blocks until the context is cancelled.
func Run(ctx context.Context, cfg *config.Config, openApiData []byte) error {
	db, err := store.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	agents := NewAgentRegistry(2 * cfg.PollWait)

	var detector Detector
	if cfg.EnableLocalDetect {
		detector = cpu.NewDetector()
	}
	handler := NewHandler(db, agents, detector, cfg.PollWait, slog.Default())

	httpSrv := NewHTTPServer(cfg, handler, openApiData)
	if cfg.EnableSwagger && len(openApiData) > 0 {
		slog.Info("Swagger UI available", "url", fmt.Sprintf("http://%s/docs/", cfg.HTTPListen))
	}

	go runMaintenanceLoop(ctx, db, agents, cfg.RetentionDays, cfg.PurgeInterval)

	go func() {
		<-ctx.Done()
		slog.Info("Shutting down...")
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Stop(stopCtx)
	}()

	slog.Info("CPU info collector listening", "addr", cfg.HTTPListen, "db", cfg.DatabasePath)
	if cfg.RetentionDays > 0 {
		slog.Info("Retention enabled", "days", cfg.RetentionDays, "purge_interval", cfg.PurgeInterval)
	}

	if err := httpSrv.Start(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// runMaintenanceLoop forgets stale agents and, when retentionDays > 0,
// purges snapshots older than the retention period.
func runMaintenanceLoop(ctx context.Context, db *store.Store, agents *AgentRegistry, retentionDays int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := agents.Prune(); n > 0 {
				slog.Debug("Forgot stale agents", "count", n)
			}
			if retentionDays <= 0 {
				continue
			}
			olderThan := time.Duration(retentionDays) * 24 * time.Hour
			n, err := db.Purge(ctx, olderThan)
			if err != nil {
				slog.Error("Purge failed", "error", err)
			} else if n > 0 {
				slog.Info("Purged snapshots", "count", n, "older_than_days", retentionDays)
			}
		}
	}
}
