package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/c4h-run/refactorctl/internal/agentruntime"
	"github.com/c4h-run/refactorctl/internal/collaborators"
	"github.com/c4h-run/refactorctl/internal/config"
	"github.com/c4h-run/refactorctl/internal/lineage"
	"github.com/c4h-run/refactorctl/internal/llmadapter"
	"github.com/c4h-run/refactorctl/internal/logging"
	"github.com/c4h-run/refactorctl/internal/orchestrator"
	"github.com/c4h-run/refactorctl/internal/panel"
	"github.com/c4h-run/refactorctl/internal/routing"
	"github.com/c4h-run/refactorctl/internal/scheduler"
	"github.com/c4h-run/refactorctl/internal/secrets"
	"github.com/c4h-run/refactorctl/internal/team"
	"github.com/c4h-run/refactorctl/internal/validation"
	"github.com/c4h-run/refactorctl/internal/workflowstore"
	"github.com/c4h-run/refactorctl/pkg/schema"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("refactorctl.fatal", slog.Any("error", err))
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	handler := logging.NewCorrelationHandler(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	return slog.New(handler)
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dc, err := loadDomainConfig(cfg.TeamsPath)
	if err != nil {
		return fmt.Errorf("load domain config %q: %w", cfg.TeamsPath, err)
	}

	if err := os.MkdirAll(cfg.StorageRoot, 0o755); err != nil {
		return fmt.Errorf("create storage root: %w", err)
	}
	if err := os.MkdirAll(cfg.LineageRoot, 0o755); err != nil {
		return fmt.Errorf("create lineage root: %w", err)
	}
	if err := os.MkdirAll(cfg.BackupsRoot, 0o755); err != nil {
		return fmt.Errorf("create backups root: %w", err)
	}

	store, err := workflowstore.Open(ctx, cfg.DBPath, cfg.StorageRoot)
	if err != nil {
		return fmt.Errorf("open workflow store: %w", err)
	}
	defer store.Close()

	providers, err := buildProviders(ctx, store, dc.ProviderSecrets)
	if err != nil {
		return fmt.Errorf("build llm providers: %w", err)
	}

	limiter := llmadapter.NewRateLimiterRegistry(nil)
	adapter := llmadapter.NewAdapter(providers, llmadapter.DefaultContinuationConfig(), llmadapter.DefaultRetryConfig(), limiter, logger)

	fileSink := lineage.NewFileSink(cfg.LineageRoot)
	recorder := lineage.NewRecorder(logger, fileSink)

	registry := agentruntime.NewRegistry()
	scanner := collaborators.NewFileScanner()
	merger := collaborators.NewPatchMerger()
	writer := collaborators.NewFileAssetWriter(cfg.BackupsRoot)
	if err := agentruntime.RegisterDefaults(registry, scanner, merger, writer, recorder); err != nil {
		return fmt.Errorf("register default agents: %w", err)
	}

	resolver, err := routing.NewDefaultResolver()
	if err != nil {
		return fmt.Errorf("build routing resolver: %w", err)
	}

	buildTeam := func(def schema.TeamDefinition, configs *config.Store) *team.Team {
		return team.New(def, registry, adapter, recorder, configs, resolver, "", logger)
	}

	orch := orchestrator.New(
		dc.Teams,
		registry,
		dc.ServerDefaults,
		cfg.StorageRoot,
		buildTeam,
		store,
		recorder,
		secrets.NewEnvResolver(),
		dc.ProviderSecrets,
		logger,
	)

	sched, err := scheduler.New(store, cfg.RetentionCron, cfg.RetentionWindow, logger)
	if err != nil {
		return fmt.Errorf("build retention scheduler: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start retention scheduler: %w", err)
	}
	defer func() { _ = sched.Stop() }()

	validator, err := validation.NewSchemaValidator()
	if err != nil {
		return fmt.Errorf("build work order validator: %w", err)
	}

	srv := panel.NewServer(panel.Deps{
		Orchestrator: orch,
		Store:        store,
		Validator:    validator,
		TeamCount:    len(dc.Teams),
		Logger:       logger,
	})

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: srv.Handler()}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("refactorctl.listening", slog.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// buildProviders constructs one OpenAI-compatible provider per configured
// provider secret. API keys are resolved from a durable AES vault backed
// by the workflow store's secrets table when REFACTORCTL_VAULT_KEY is set
// (a 64-character hex-encoded 32-byte key), falling back to the secret's
// named environment variable directly.
func buildProviders(ctx context.Context, store *workflowstore.Store, providerSecrets []orchestrator.ProviderSecret) (map[string]llmadapter.Provider, error) {
	var vault *secrets.AESVault
	if hexKey := os.Getenv("REFACTORCTL_VAULT_KEY"); hexKey != "" {
		key, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("decode REFACTORCTL_VAULT_KEY: %w", err)
		}
		vault, err = secrets.NewAESVault(store, secrets.VaultConfig{MasterKey: key})
		if err != nil {
			return nil, fmt.Errorf("build secrets vault: %w", err)
		}
	}

	providers := make(map[string]llmadapter.Provider, len(providerSecrets))
	for _, ps := range providerSecrets {
		apiKey := os.Getenv(ps.EnvVarKey)
		if vault != nil {
			if secret, err := vault.Resolve(ctx, ps.Provider); err == nil {
				apiKey = string(secret)
			}
		}
		baseURL := os.Getenv(ps.EnvVarKey + "_BASE_URL")
		providers[ps.Provider] = llmadapter.NewOpenAIProvider(ps.Provider, apiKey, baseURL)
	}
	return providers, nil
}
