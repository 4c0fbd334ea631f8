package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tbaudier/overseer/internal/agents"
	"github.com/tbaudier/overseer/internal/config"
	"github.com/tbaudier/overseer/internal/events"
	"github.com/tbaudier/overseer/internal/gateway"
	"github.com/tbaudier/overseer/internal/intent"
	"github.com/tbaudier/overseer/internal/memory"
	"github.com/tbaudier/overseer/internal/orchestrator"
	"github.com/tbaudier/overseer/internal/providers"
	"github.com/tbaudier/overseer/internal/queue"
	"github.com/tbaudier/overseer/internal/scheduler"
	"github.com/tbaudier/overseer/internal/storage/usage"
)

// NewGatewayCommand returns the gateway subcommand.
func NewGatewayCommand() *cli.Command {
	return &cli.Command{
		Name:  "gateway",
		Usage: "Start the Overseer gateway server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runGateway,
	}
}

// loadConfig reads the config file named on the command line, falling back to
// defaults when it does not exist.
func loadConfig(cmd *cli.Command) *config.Config {
	configPath := cmd.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Warn("config not found, using defaults", "path", configPath, "error", err)
		cfg = defaultConfig()
	}
	return cfg
}

func defaultConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Gateway.Host = "127.0.0.1"
	cfg.Gateway.Port = 18520
	cfg.Events.BufferSize = 1024
	cfg.Queue.Workers = 4
	cfg.Queue.Dir = filepath.Join(config.OverseerPath(), "queue")
	cfg.Usage.DBPath = filepath.Join(config.OverseerPath(), "usage.db")
	cfg.Workspace.OutputDir = filepath.Join(config.OverseerPath(), "workspace")
	cfg.Memory.Dir = filepath.Join(config.OverseerPath(), "memory")
	cfg.Providers.RoutingFile = config.RoutingPath()
	return cfg
}

func runGateway(_ context.Context, cmd *cli.Command) error {
	if cmd.Bool("debug") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg := loadConfig(cmd)

	// CLI flags override config
	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = cmd.Int("port")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Event bus
	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	// Provider registry and router
	registry := providers.NewRegistry(cfg.Providers, nil)
	routing, err := config.LoadRouting(cfg.Providers.RoutingFile)
	if err != nil {
		slog.Warn("routing config unreadable, auto mode disabled", "error", err)
		routing = &config.RoutingConfig{}
	}
	router := providers.NewRouter(registry, routing, bus)

	// Intent analyzer
	analyzer := intent.NewAnalyzer(router)

	// Memory stores
	episodic := memory.NewEpisodicStore(filepath.Join(cfg.Memory.Dir, "episodes"))
	knowledge := memory.NewKnowledgeStore(filepath.Join(cfg.Memory.Dir, "tools"))

	// Workspace for delegated agents and forged tools
	if err := os.MkdirAll(cfg.Workspace.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	factory := agents.NewFactory(router, cfg.Workspace.OutputDir)
	forge := agents.NewForge(router, knowledge, filepath.Join(cfg.Workspace.OutputDir, "tools"))

	// Orchestrator
	orch := orchestrator.New(orchestrator.Options{
		Router:    router,
		Analyzer:  analyzer,
		Factory:   factory,
		Forge:     forge,
		Episodic:  episodic,
		Knowledge: knowledge,
		Status:    registry,
		Bus:       bus,
		Workspace: cfg.Workspace.OutputDir,
	})

	// Task queue
	store := queue.NewFileStore(
		filepath.Join(cfg.Queue.Dir, "tasks"),
		filepath.Join(cfg.Queue.Dir, "threads"),
	)
	manager := queue.NewManager(store, orch, bus, cfg.Queue.Workers)
	if n, err := manager.CountInterrupted(); err == nil && n > 0 {
		slog.Warn("tasks interrupted by previous shutdown", "count", n)
	}
	manager.Start(ctx)

	// Scheduler
	sched := scheduler.New(scheduler.Config{
		Queue: manager,
		Bus:   bus,
		Store: scheduler.NewStore(filepath.Join(config.OverseerPath(), "schedules")),
	})
	sched.Start()
	defer sched.Stop()

	// Usage ledger
	ledger, err := usage.Open(cfg.Usage.DBPath)
	if err != nil {
		slog.Warn("usage ledger unavailable", "path", cfg.Usage.DBPath, "error", err)
	} else {
		defer ledger.Close()
		unsubscribe := ledger.AttachBus(bus)
		defer unsubscribe()
	}

	// Gateway server
	server := gateway.NewServer(gateway.Options{
		Bus:       bus,
		Manager:   manager,
		Registry:  registry,
		Ledger:    ledger,
		Workspace: cfg.Workspace.OutputDir,
		Host:      cfg.Gateway.Host,
		Port:      cfg.Gateway.Port,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
