// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/enforce"
	"github.com/gatewarden/gatewarden/internal/logging"
	"github.com/gatewarden/gatewarden/internal/observability"
	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/gatewarden/gatewarden/internal/policy/audit"
	"github.com/gatewarden/gatewarden/internal/store"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authorization service",
		Long: `Start the authorization service: the decision API, the enforced
dashboard routes, and the observability endpoints. Decisions are audited
to PostgreSQL when database.url is configured.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd)
		},
	}

	flags := cmd.Flags()
	flags.String("server.listen_addr", "", "API listen address")
	flags.String("server.metrics_addr", "", "metrics/health HTTP address (empty = disabled)")
	flags.String("database.url", "", "PostgreSQL URL for the decision audit log")
	flags.String("audit.mode", "", "audit mode (minimal, denials_only, all)")
	flags.String("audit.wal_path", "", "audit write-ahead log path")
	flags.String("log.format", "", "log format (json or text)")
	flags.String("log.level", "", "log level (debug, info, warn, error)")
	flags.String("policy_file", "", "policy file overriding the built-in table")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("gatewarden", version, cfg.Log.Format, cfg.Log.Level)

	table, err := loadTable(cfg.PolicyFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	compilerOpts := []policy.CompilerOption{policy.WithTable(table)}

	// Audit pipeline, only when a database is configured.
	var (
		auditLogger *audit.Logger
		repo        store.DecisionRepository
		worker      *store.RetentionWorker
	)
	if cfg.Database.URL != "" {
		migrator, err := store.NewMigrator(cfg.Database.URL)
		if err != nil {
			return err
		}
		if err := migrator.Up(); err != nil {
			return err
		}
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("error closing migrator", "error", closeErr)
		}

		pool, err := audit.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		auditLogger = audit.NewLogger(audit.Mode(cfg.Audit.Mode), audit.NewPostgresWriter(pool), cfg.Audit.WALPath)
		compilerOpts = append(compilerOpts, policy.WithObserver(auditLogger.Observer()))

		// Entries stranded in the WAL by an earlier outage go first.
		if err := auditLogger.ReplayWAL(ctx); err != nil {
			slog.Warn("audit WAL replay failed", "error", err)
		}

		repo = store.NewPostgresDecisionRepository(pool)
		worker = store.NewRetentionWorker(store.RetentionConfig{
			RetainDenials: cfg.Retention.RetainDenials,
			RetainAllows:  cfg.Retention.RetainAllows,
			PurgeInterval: cfg.Retention.PurgeInterval,
		}, repo)
		worker.Start(ctx)
	} else {
		slog.Warn("database.url not configured, decision audit disabled")
	}

	compiler := policy.NewCompiler(compilerOpts...)

	routes, err := defaultRouteMap()
	if err != nil {
		return err
	}

	// Observability server
	var obsServer *observability.Server
	handler := newAPIHandler(compiler, repo, routes)
	if cfg.Server.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.Server.MetricsAddr, func() bool { return true })
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		handler = obsServer.Metrics().Instrument(handler)
	}

	authenticator := enforce.NewAuthenticator(compiler, headerClaims)

	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           authenticator.Handler(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if serveErr := httpSrv.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			errChan <- serveErr
		}
	}()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Authorization service started")
	slog.Info("gatewarden ready",
		"listen_addr", cfg.Server.ListenAddr,
		"audit_mode", cfg.Audit.Mode,
		"audit_enabled", auditLogger != nil,
	)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case err := <-errChan:
		return oops.Code("SERVER_FAILED").Wrap(err)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("error stopping API server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}
	if worker != nil {
		worker.Stop()
	}
	if auditLogger != nil {
		if err := auditLogger.Close(); err != nil {
			slog.Warn("error closing audit logger", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

// headerClaims reads the identity the dashboard gateway forwards on each
// request. No role header means no identity.
func headerClaims(r *http.Request) (map[string]any, bool) {
	role := r.Header.Get("X-Authz-Role")
	segment := r.Header.Get("X-Authz-Segment")
	if role == "" && segment == "" {
		return nil, false
	}
	return map[string]any{
		"role":            role,
		"segment":         segment,
		"organization_id": r.Header.Get("X-Authz-Org"),
		"user_id":         r.Header.Get("X-Authz-User"),
	}, true
}

// monitorServerErrors monitors a server's error channel and cancels the
// context on error, so a background server failure shuts the process down.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
