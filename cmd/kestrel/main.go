// Kestrel - Fraud detection and claim reconciliation for insurance claims.
// Copyright (c) 2026 opensource.claims
// Licensed under the Apache License 2.0

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

	"github.com/kelseyhightower/envconfig"

	"github.com/opensource-claims/kestrel/internal/api"
	"github.com/opensource-claims/kestrel/internal/audit"
	"github.com/opensource-claims/kestrel/internal/bus"
	"github.com/opensource-claims/kestrel/internal/cache"
	"github.com/opensource-claims/kestrel/internal/domain"
	"github.com/opensource-claims/kestrel/internal/fraud"
	"github.com/opensource-claims/kestrel/internal/history"
	"github.com/opensource-claims/kestrel/internal/notify"
	"github.com/opensource-claims/kestrel/internal/reconcile"
	"github.com/opensource-claims/kestrel/internal/repository"
	"github.com/opensource-claims/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration: defaults overridden by KESTREL_* environment
	cfg := domain.DefaultConfig()
	if err := envconfig.Process("KESTREL", cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	logLevel := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"async_evaluation", cfg.AsyncEvaluation,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Claim history service backs the velocity and duplicate rules.
	hist := history.NewService(repo, cacheImpl, cfg.Fraud.DuplicateMatchChecksum)

	// Custom rule engine: rules are configured via POST /rules.
	engine, err := fraud.NewEngine()
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	if err := loadRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	evaluator := fraud.NewEvaluator(repo, hist, cacheImpl, engine, cfg.Fraud)
	classifier := fraud.NewClassifier(repo, cacheImpl)

	notifier := notify.NewDispatcher(repo, busImpl)
	auditLog := audit.NewLogger(repo, cfg.AuditLogStrict)
	reconciler := reconcile.NewReconciler(repo, busImpl, notifier)
	actions := reconcile.NewActions(repo, auditLog, notifier)

	// Async worker picks up filed claims and review events.
	var asyncWorker *worker.Worker
	if cfg.AsyncEvaluation {
		asyncWorker = worker.NewWorker(busImpl, evaluator, classifier, reconciler)
		if err := asyncWorker.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Server
	apiHandler := api.NewHandler(api.HandlerDeps{
		Repo:       repo,
		Cache:      cacheImpl,
		Bus:        busImpl,
		History:    hist,
		Evaluator:  evaluator,
		Classifier: classifier,
		Engine:     engine,
		Reconciler: reconciler,
		Actions:    actions,
		AuditLog:   auditLog,
		Notifier:   notifier,
		Version:    Version,
		AsyncEval:  cfg.AsyncEvaluation,
		FraudCfg:   cfg.Fraud,
	})
	srv := api.NewServer(cfg.Server, apiHandler)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// loadRulesFromDatabase loads custom rules into the engine. All custom
// rules are configured via POST /rules - there are no hardcoded ones.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *fraud.Engine) error {
	dbRules, err := repo.ListRuleConfigs(ctx)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading rules from database", "count", len(dbRules))
		return engine.ReloadRules(dbRules)
	}

	slog.Info("no custom rules in database - configure via POST /rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               KESTREL                     ║")
	fmt.Println("  ║   Claims Fraud & Reconciliation Engine    ║")
	fmt.Println("  ║       Every claim, accounted for.         ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /claims                    - File a claim")
	fmt.Println("    GET  /claims/{id}               - Get claim by ID")
	fmt.Println("    GET  /claims/{id}/flags         - List fraud flags")
	fmt.Println("    GET  /claims/{id}/risk          - Risk classification")
	fmt.Println("    POST /claims/{id}/documents     - Attach document metadata")
	fmt.Println("    POST /documents/{id}/review     - Review a document (admin)")
	fmt.Println("    POST /claims/{id}/reconcile     - Reconcile claim status (admin)")
	fmt.Println("    POST /claims/{id}/approve       - Approve claim (admin)")
	fmt.Println("    POST /claims/{id}/reject        - Reject claim (admin)")
	fmt.Println("    GET  /claims/{id}/audit         - Audit trail (admin)")
	fmt.Println("    POST /rules                     - Create a custom rule (admin)")
	fmt.Println("    POST /rules/reload              - Hot-reload custom rules (admin)")
	fmt.Println("    GET  /health                    - Health check")
	fmt.Println("    GET  /metrics                   - Prometheus metrics")
	fmt.Println()
}
