package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/swarmd/internal/agent"
	"github.com/nextlevelbuilder/swarmd/internal/broker"
	"github.com/nextlevelbuilder/swarmd/internal/config"
	"github.com/nextlevelbuilder/swarmd/internal/httpapi"
	"github.com/nextlevelbuilder/swarmd/internal/models"
	"github.com/nextlevelbuilder/swarmd/internal/scheduler"
	"github.com/nextlevelbuilder/swarmd/internal/store/sqlstore"
	"github.com/nextlevelbuilder/swarmd/internal/telemetry"
	"github.com/nextlevelbuilder/swarmd/internal/tools"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlstore.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	stores := db.Stores()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	base := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(sqlstore.NewTeeHandler(base, stores.Logs, slog.LevelWarn)))

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("trace flush failed", "error", err)
		}
	}()

	events := broker.NewEventBus()
	bus := broker.New(stores.Messages)
	sched := scheduler.New(stores.Tasks, stores.Agents, bus, events, cfg.Scheduler)
	router := models.NewRouter(cfg.Models)

	workspace := config.ExpandHome(cfg.Agents.Workspace)
	if workspace != "" {
		if err := os.MkdirAll(workspace, 0o755); err != nil {
			return err
		}
	}
	toolset := tools.Builtin(cfg.Tools, workspace)

	manager := agent.NewManager(stores.Agents, agent.Deps{
		Router:    router,
		Tools:     toolset,
		Bus:       bus,
		Scheduler: sched,
		Memory:    stores.Memory,
		Events:    events,
	}, cfg.Agents)

	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	// Hot-reload model definitions when the config file changes.
	if err := config.Watch(ctx, path, func(next *config.Config) {
		router.UpdateModels(next.Models)
	}); err != nil {
		slog.Warn("config watcher unavailable", "error", err)
	}

	srv := httpapi.New(cfg.Gateway, manager, sched, bus, router, toolset, stores, events)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("gateway shutdown failed", "error", err)
	}
	return nil
}
