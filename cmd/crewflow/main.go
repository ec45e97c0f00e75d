// Command crewflow runs the marketing workflow engine: the HTTP API, the
// MCP transport, and the approval reminder loop.
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

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/abanklabs/crewflow/api"
	"github.com/abanklabs/crewflow/internal/config"
	"github.com/abanklabs/crewflow/internal/mcp"
	"github.com/abanklabs/crewflow/internal/model"
	"github.com/abanklabs/crewflow/internal/notify"
	"github.com/abanklabs/crewflow/internal/ratelimit"
	"github.com/abanklabs/crewflow/internal/server"
	"github.com/abanklabs/crewflow/internal/service/invoke"
	"github.com/abanklabs/crewflow/internal/storage"
	"github.com/abanklabs/crewflow/internal/telemetry"
	"github.com/abanklabs/crewflow/internal/workflow"
	"github.com/abanklabs/crewflow/migrations"
	"github.com/abanklabs/crewflow/workflows"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("CREWFLOW_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("crewflow starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Connect to the database when configured. Without one, runs live in
	// memory only and the event log endpoint is disabled.
	var db *storage.DB
	var store workflow.Store
	if cfg.DatabaseURL != "" {
		db, err = storage.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		defer db.Close()

		if err := db.RunMigrations(ctx, migrations.FS); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		store = storage.NewRunStore(db)
		logger.Info("persistence: postgres")
	} else {
		logger.Info("persistence: memory (no DATABASE_URL)")
	}

	// Load workflow definitions: embedded set, optionally overlaid with a
	// directory of additional YAML files.
	definitions, err := workflow.LoadDefinitions(workflows.FS)
	if err != nil {
		return fmt.Errorf("load embedded workflows: %w", err)
	}
	if cfg.WorkflowDir != "" {
		extra, err := workflow.LoadDefinitions(os.DirFS(cfg.WorkflowDir))
		if err != nil {
			return fmt.Errorf("load workflows from %s: %w", cfg.WorkflowDir, err)
		}
		definitions = workflow.MergeDefinitions(definitions, extra)
	}
	logger.Info("workflow definitions loaded", "count", len(definitions))

	// Create the notifier (Telegram when configured, otherwise noop).
	var notifier notify.Notifier = notify.NoopNotifier{}
	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, logger)
		if err != nil {
			return fmt.Errorf("notify: %w", err)
		}
		notifier = tg
		logger.Info("approval notifications: telegram", "chat_id", cfg.TelegramChatID)
	} else {
		logger.Info("approval notifications: disabled (no TELEGRAM_BOT_TOKEN)")
	}

	// Compose the event sinks: structured log always, event log when
	// persistent, notifications when configured.
	sinks := []workflow.EventSink{workflow.SlogSink{Logger: logger}}
	if db != nil {
		sinks = append(sinks, storage.NewEventLog(db))
	}
	sinks = append(sinks, notify.NewSink(notifier, logger))

	// Create the agent invoker and the runner.
	invoker := invoke.New(invoke.Config{
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		OpenAIModel:  cfg.OpenAIModel,
		OllamaURL:    cfg.OllamaURL,
		OllamaModel:  cfg.OllamaModel,
	}, logger)

	runner, err := workflow.NewRunner(workflow.RunnerConfig{
		Invoker: invoker,
		Store:   store,
		Sink:    workflow.NewMultiSink(logger, sinks...),
		Logger:  logger,
		Retry: workflow.RetryPolicy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
		},
		DefaultStageTimeout: cfg.DefaultStageTimeout,
	})
	if err != nil {
		return fmt.Errorf("runner: %w", err)
	}

	// Re-register unfinished runs so advance/approval work after a restart.
	if db != nil {
		if err := hydrateRuns(ctx, db, runner, logger); err != nil {
			return fmt.Errorf("hydrate runs: %w", err)
		}
	}

	// Create MCP server.
	mcpSrv := mcp.New(runner, definitions, version, logger)

	// Create rate limiter.
	limiter := ratelimit.PerMinute(cfg.RateLimitPerMinute)
	defer func() { _ = limiter.Close() }()

	// Create HTTP server (MCP mounted at /mcp).
	srv := server.New(server.ServerConfig{
		Runner:              runner,
		Definitions:         definitions,
		Logger:              logger,
		DB:                  db,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         api.OpenAPISpec,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Remind humans about approvals sitting unresolved.
	if db != nil {
		g.Go(func() error {
			approvalReminderLoop(gctx, db, notifier, logger, cfg.ApprovalReminder)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("crewflow shutting down")
		httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer httpCancel()
		return srv.Shutdown(httpCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("crewflow stopped")
	return nil
}

// hydrateRuns re-registers persisted runs that have not reached a terminal
// state.
func hydrateRuns(ctx context.Context, db *storage.DB, runner *workflow.Runner, logger *slog.Logger) error {
	count := 0
	for _, status := range []model.RunStatus{model.RunStatusRunning, model.RunStatusAwaitingApproval} {
		runs, err := db.ListRunsByStatus(ctx, status, 0)
		if err != nil {
			return err
		}
		for _, run := range runs {
			if err := runner.Hydrate(run); err != nil {
				logger.Warn("hydrate run failed", "run_id", run.ID, "error", err)
				continue
			}
			count++
		}
	}
	if count > 0 {
		logger.Info("unfinished runs re-registered", "count", count)
	}
	return nil
}

// approvalReminderLoop periodically nudges about approvals pending longer
// than the configured threshold.
func approvalReminderLoop(ctx context.Context, db *storage.DB, notifier notify.Notifier, logger *slog.Logger, threshold time.Duration) {
	interval := threshold / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-threshold)
			stalled, err := db.ListStalledApprovals(ctx, cutoff, 100)
			if err != nil {
				logger.Warn("stalled approval scan failed", "error", err)
				continue
			}
			for _, run := range stalled {
				if err := notifier.RemindApproval(ctx, run); err != nil {
					logger.Warn("approval reminder failed", "run_id", run.ID, "error", err)
				}
			}
		}
	}
}
