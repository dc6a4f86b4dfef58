package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rimuru/agentctl/internal/adapters"
	"github.com/rimuru/agentctl/internal/config"
	"github.com/rimuru/agentctl/internal/database"
	"github.com/rimuru/agentctl/internal/hooks"
	"github.com/rimuru/agentctl/internal/httpapi"
	"github.com/rimuru/agentctl/internal/models"
	"github.com/rimuru/agentctl/internal/repositories"
	"github.com/rimuru/agentctl/internal/sandbox"
	"github.com/rimuru/agentctl/internal/supervisor"
	"github.com/rimuru/agentctl/pkg/logger"
)

func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return config.NewDefault(), nil
	}
	return config.Load(configFile)
}

func runServeCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.ListenAddr = listen
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logger.NewDefaultLogger("agentctl", cfg.Logging.Level)

	// sandbox.Manager holds the resource-limit defaults applied to any
	// plugin sandbox created during this process's lifetime; the HTTP
	// plugins surface (install/uninstall/toggle) drives it below.
	sandboxMgr := sandbox.NewManager().WithDefaultConfig(sandbox.SandboxConfig{
		GrantedPermissions: map[sandbox.Permission]struct{}{},
		ResourceLimits: sandbox.ResourceLimits{
			MaxMemoryMB:           ptrU64(cfg.Sandbox.MaxMemoryMB),
			MaxCPUTimeMS:          ptrU64(cfg.Sandbox.MaxCPUTimeMS),
			MaxFileSizeMB:         ptrU64(cfg.Sandbox.MaxFileSizeMB),
			MaxNetworkConnections: ptrU32(cfg.Sandbox.MaxNetworkConnections),
		},
	})

	var agentRepo repositories.AgentRepository
	dbMgr, err := database.NewManager(database.Config{
		DatabasePath:   "./data/agentctl.kuzu",
		MaxConnections: 10,
		ConnTimeout:    cfg.Server.ReadTimeout,
		QueryTimeout:   cfg.Server.WriteTimeout,
	})
	if err != nil {
		log.Warn("persistence unavailable, continuing with in-memory state only", "error", err)
	} else {
		defer dbMgr.Close()
		agentRepo = database.NewAgentRepository(dbMgr)
		// session/cost/model repositories are exercised directly by the
		// persistence tests; serve only needs the agent catalog to mirror
		// discovery into durable storage below.
		_ = database.NewSessionRepository(dbMgr)
		_ = database.NewCostRecordRepository(dbMgr)
		_ = database.NewModelRepository(dbMgr)
	}

	sup := supervisor.New(supervisor.Config{
		AutoDiscover:         cfg.Supervisor.AutoDiscover,
		HealthCheckInterval:  cfg.Supervisor.HealthCheckInterval,
		ReconnectOnFailure:   cfg.Supervisor.ReconnectOnFailure,
		MaxReconnectAttempts: cfg.Supervisor.MaxReconnectAttempts,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	discovered, err := sup.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("initialize supervisor: %w", err)
	}
	log.Info("adapters discovered", "names", discovered)
	if agentRepo != nil {
		persistDiscoveredAdapters(ctx, agentRepo, discovered, log)
	}
	sup.StartHealthMonitoring()
	defer sup.StopHealthMonitoring()

	hookMgr := hooks.NewManager(hooks.NewHookConfig())

	store, err := config.NewStore(cfg)
	if err != nil {
		return fmt.Errorf("build config store: %w", err)
	}

	kv := httpapi.NewKV(sup, hookMgr, sandboxMgr, store, log)
	server := httpapi.NewServer(kv, nil)

	log.Info("listening", "addr", cfg.Server.ListenAddr)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe(ctx, cfg.Server.ListenAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		sup.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// persistDiscoveredAdapters mirrors each discovered vendor's catalog entry
// into the agent repository so a CLI querying persisted state after this
// process exits still sees what was registered this run.
func persistDiscoveredAdapters(ctx context.Context, repo repositories.AgentRepository, names []string, log logger.Logger) {
	byName := map[string]adapters.CatalogEntry{}
	for _, entry := range adapters.Catalog {
		byName[entry.Name] = entry
	}
	for _, name := range names {
		entry, ok := byName[name]
		if !ok {
			continue
		}
		if err := repo.Save(ctx, models.AdapterInfo{Name: entry.Name, Kind: entry.Kind}); err != nil {
			log.Warn("failed to persist discovered adapter", "name", entry.Name, "error", err)
		}
	}
}

func ptrU64(v uint64) *uint64 {
	if v == 0 {
		return nil
	}
	return &v
}

func ptrU32(v uint32) *uint32 {
	if v == 0 {
		return nil
	}
	return &v
}
