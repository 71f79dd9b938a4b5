package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultline/vaultline/internal/actions"
	"github.com/vaultline/vaultline/internal/agent"
	"github.com/vaultline/vaultline/internal/auth"
	"github.com/vaultline/vaultline/internal/config"
	convctx "github.com/vaultline/vaultline/internal/context"
	"github.com/vaultline/vaultline/internal/engine"
	"github.com/vaultline/vaultline/internal/observability"
	"github.com/vaultline/vaultline/internal/risk"
	"github.com/vaultline/vaultline/internal/rpc"
	"github.com/vaultline/vaultline/internal/security"
	"github.com/vaultline/vaultline/internal/sessions"
	"github.com/vaultline/vaultline/internal/tools"
	"github.com/vaultline/vaultline/internal/wallet"
)

func newServeCommand() *cobra.Command {
	var configFlag string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Vaultline server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath(configFlag))
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "path to configuration file")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	defer closeStore()

	locker := sessions.NewLocker(cfg.Session.LockTimeout)
	ledger := wallet.NewLedger()

	router := actions.NewRouter(logger)
	actions.NewHandlers(ledger, cfg.Agent.DefaultChain).RegisterAll(router)

	pipeline := security.NewPipeline(logger, metrics,
		security.NewPromptCheck(),
		security.NewAddressCheck(cfg.Security.Blocklist),
		security.NewTokenRiskCheck(security.TokenRiskConfig{
			Oracle:             buildOracle(cfg),
			Timeout:            cfg.Security.Oracle.Timeout,
			DefaultChain:       cfg.Agent.DefaultChain,
			BlockOnUnavailable: cfg.Security.Oracle.BlockOnUnavailable,
		}),
	)
	dispatcher := actions.NewDispatcher(pipeline, router, logger, metrics)

	catalog, err := tools.DefaultCatalog(cfg.Agent.DefaultChain)
	if err != nil {
		return fmt.Errorf("tool catalog: %w", err)
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		return fmt.Errorf("reasoning engine: %w", err)
	}

	loop := agent.NewLoop(
		eng,
		catalog,
		dispatcher,
		store,
		locker,
		convctx.NewBuilder(convctx.Config{
			RecentWindow:       cfg.Agent.RecentWindow,
			MaxContextTokens:   cfg.Agent.MaxContextTokens,
			MaxToolResultChars: cfg.Agent.MaxToolResultChars,
			IncludeSummary:     cfg.Agent.IncludeSummary,
		}),
		agent.Config{
			MaxIterations: cfg.Agent.MaxIterations,
			MaxTokens:     cfg.LLM.MaxTokens,
			SystemPrompt:  cfg.Agent.SystemPrompt,
		},
		logger,
		metrics,
	)

	authService := auth.NewService(auth.ServiceConfig{
		JWTSecret:     cfg.Auth.JWTSecret,
		TokenExpiry:   cfg.Auth.TokenExpiry,
		APIKeys:       apiKeys(cfg.Auth.APIKeys),
		DefaultScopes: cfg.Auth.DefaultScopes,
	})

	handler := rpc.NewServer(loop, catalog, dispatcher, authService, store, logger, metrics,
		rpc.ServerInfo{Name: "vaultline", Version: version})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "server listening",
			"addr", addr,
			"provider", eng.Name(),
			"session_backend", cfg.Session.Backend,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

func buildStore(ctx context.Context, cfg *config.Config) (sessions.Store, func(), error) {
	switch cfg.Session.Backend {
	case "sqlite":
		store, err := sessions.NewSQLiteStore(cfg.Session.SQLitePath, cfg.Session.TTL)
		if err != nil {
			return nil, nil, err
		}
		store.StartSweeper(ctx, time.Hour)
		return store, func() { _ = store.Close() }, nil
	default:
		store := sessions.NewMemoryStore(cfg.Session.TTL)
		store.StartSweeper(ctx, time.Hour)
		return store, func() {}, nil
	}
}

// buildOracle returns the configured HTTP oracle, or a permissive static one
// when no endpoint is set.
func buildOracle(cfg *config.Config) risk.Oracle {
	if cfg.Security.Oracle.URL != "" {
		oracle, err := risk.NewHTTPOracle(risk.HTTPOracleConfig{
			URL:     cfg.Security.Oracle.URL,
			APIKey:  cfg.Security.Oracle.APIKey,
			Timeout: cfg.Security.Oracle.Timeout,
		})
		if err == nil {
			return oracle
		}
	}
	return risk.NewStaticOracle(nil)
}

func buildEngine(cfg *config.Config) (engine.Engine, error) {
	switch cfg.LLM.Provider {
	case "openai":
		return engine.NewOpenAIEngine(engine.OpenAIConfig{
			APIKey:     cfg.LLM.OpenAI.APIKey,
			Model:      cfg.LLM.OpenAI.Model,
			MaxRetries: cfg.LLM.OpenAI.MaxRetries,
			RetryDelay: cfg.LLM.OpenAI.RetryDelay,
			Timeout:    cfg.LLM.OpenAI.Timeout,
		})
	default:
		return engine.NewAnthropicEngine(engine.AnthropicConfig{
			APIKey:     cfg.LLM.Anthropic.APIKey,
			Model:      cfg.LLM.Anthropic.Model,
			MaxRetries: cfg.LLM.Anthropic.MaxRetries,
			RetryDelay: cfg.LLM.Anthropic.RetryDelay,
			Timeout:    cfg.LLM.Anthropic.Timeout,
		})
	}
}

func apiKeys(configs []config.APIKeyConfig) []auth.APIKey {
	keys := make([]auth.APIKey, 0, len(configs))
	for _, c := range configs {
		keys = append(keys, auth.APIKey{Key: c.Key, Name: c.Name, Scopes: c.Scopes})
	}
	return keys
}
