// praxisd wires the reasoning engine together: configuration, sandbox, tool
// registry, reasoning patterns, session archive, unit-of-work persistence and
// the metrics endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/praxis-dev/praxis/internal/config"
	"github.com/praxis-dev/praxis/internal/executor"
	"github.com/praxis-dev/praxis/internal/llm"
	"github.com/praxis-dev/praxis/internal/pattern"
	"github.com/praxis-dev/praxis/internal/sandbox"
	"github.com/praxis-dev/praxis/internal/session"
	"github.com/praxis-dev/praxis/internal/tools"
	"github.com/praxis-dev/praxis/internal/tracing"
	"github.com/praxis-dev/praxis/internal/uow"
)

func main() {
	configPath := flag.String("config", "praxis.yaml", "path to configuration file")
	query := flag.String("query", "", "run a single query and exit")
	patternName := flag.String("pattern", "", "reasoning pattern for -query (default: selector)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	shutdownTracing, err := tracing.Initialize(cfg.Tracing, logger)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	denyPatterns := cfg.Workspace.DenyPatterns
	if len(denyPatterns) == 0 {
		denyPatterns = sandbox.DefaultDenyPatterns
	}
	sb, err := sandbox.New(cfg.Workspace.Roots, denyPatterns, logger)
	if err != nil {
		logger.Fatal("Failed to build sandbox", zap.Error(err))
	}

	registry := tools.NewRegistry(logger)
	for _, t := range []tools.Tool{
		tools.NewReadFileTool(sb, logger),
		tools.NewWriteFileTool(sb, logger),
		tools.NewSearchTool(sb, logger),
	} {
		if err := registry.Register(t); err != nil {
			logger.Fatal("Failed to register tool", zap.Error(err))
		}
	}

	client := buildLLMClient(cfg, logger)
	patterns := buildPatterns(cfg, client, registry)

	var opts []executor.Option
	if cfg.Session.RedisAddr != "" {
		store, err := session.NewStore(cfg.Session.RedisAddr, cfg.Session.TTL(), logger)
		if err != nil {
			logger.Fatal("Failed to connect session store", zap.Error(err))
		}
		defer store.Close()
		opts = append(opts, executor.WithArchiver(store))
	}
	exec := executor.New(registry, logger, opts...)

	uowStore, err := uow.NewSQLStore(cfg.Persistence.Driver, cfg.Persistence.DSN, logger)
	if err != nil {
		logger.Fatal("Failed to open unit-of-work store", zap.Error(err))
	}
	defer uowStore.Close()
	_ = uow.NewManager(uow.NewGate(logger), uowStore, logger)

	if watcher, err := config.NewWatcher(*configPath, logger); err == nil {
		watcher.OnChange(func(next *config.Config) {
			logger.Info("Configuration updated, budgets apply to new sessions",
				zap.Int("max_iterations", next.Budget.MaxIterations),
				zap.Int("max_tokens", next.Budget.MaxTokens),
			)
			cfg.Budget = next.Budget
		})
		if err := watcher.Start(context.Background()); err != nil {
			logger.Warn("Config watcher failed to start", zap.Error(err))
		}
		defer watcher.Stop()
	} else {
		logger.Warn("Config watcher unavailable", zap.Error(err))
	}

	if *query != "" {
		runQuery(cfg, exec, patterns, *query, *patternName, logger)
		return
	}

	serveMetrics(cfg, logger)
}

func buildLogger(lc config.LoggingConfig) (*zap.Logger, error) {
	if lc.Format == "console" {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	if lc.Level != "" {
		lvl, err := zap.ParseAtomicLevel(lc.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", lc.Level, err)
		}
		zcfg.Level = lvl
	}
	return zcfg.Build()
}

func buildLLMClient(cfg *config.Config, logger *zap.Logger) *llm.Client {
	baseURL := os.Getenv("PRAXIS_LLM_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	provider := llm.NewHTTPProvider(baseURL, os.Getenv("PRAXIS_LLM_API_KEY"), logger)

	retry := llm.RetryConfig{
		MaxRetries:  cfg.LLM.MaxRetries,
		BackoffBase: time.Duration(cfg.LLM.BackoffBaseMs) * time.Millisecond,
		BackoffMax:  time.Duration(cfg.LLM.BackoffMaxMs) * time.Millisecond,
	}
	rpm := cfg.LLM.RateLimitRPM
	if cfg.LLM.ModelsFile != "" {
		if models, err := llm.LoadModelsConfig(cfg.LLM.ModelsFile); err == nil {
			limits := models.LimitsFor(cfg.LLM.DefaultModel)
			if limits.RPM > 0 {
				rpm = limits.RPM
			}
		} else {
			logger.Warn("Models file unavailable, using configured limits", zap.Error(err))
		}
	}

	return llm.NewClient(provider, logger,
		llm.WithDefaultModel(cfg.LLM.DefaultModel),
		llm.WithRetry(retry),
		llm.WithRateLimit(rpm),
	)
}

func buildPatterns(cfg *config.Config, client *llm.Client, registry *tools.Registry) *pattern.Registry {
	pcfg := pattern.DefaultConfig()
	pcfg.MaxIterations = cfg.Budget.MaxIterations
	pcfg.MaxTokens = cfg.Budget.MaxTokens
	pcfg.ParallelActions = cfg.Budget.ParallelActions

	patterns := pattern.NewRegistry()
	_ = patterns.Register(pattern.NewReAct(client, pcfg, registry.Describe(), nil))
	_ = patterns.Register(pattern.NewChainOfThought(client, pcfg, nil))
	return patterns
}

func runQuery(cfg *config.Config, exec *executor.Executor, patterns *pattern.Registry, query, patternName string, logger *zap.Logger) {
	var (
		p   pattern.Pattern
		err error
	)
	if patternName != "" {
		p, err = patterns.Get(patternName)
	} else {
		p, err = patterns.SelectForQuery(query, nil)
	}
	if err != nil {
		logger.Fatal("Pattern selection failed", zap.Error(err))
	}

	budget := executor.Budget{
		MaxIterations: cfg.Budget.MaxIterations,
		MaxTokens:     cfg.Budget.MaxTokens,
		Timeout:       cfg.Budget.Timeout(),
	}
	result, err := exec.Run(context.Background(), p, query, budget)
	if err != nil {
		logger.Fatal("Session failed", zap.Error(err))
	}

	fmt.Println(result.Output)
	logger.Info("Session finished",
		zap.Int("iterations", result.Iterations),
		zap.Int("tokens_used", result.TokensUsed),
		zap.Duration("duration", result.Duration),
	)
}

func serveMetrics(cfg *config.Config, logger *zap.Logger) {
	if !cfg.Metrics.Enabled {
		logger.Info("Metrics disabled, waiting for shutdown signal")
		waitForSignal(logger)
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Metrics.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Metrics server listening", zap.Int("port", cfg.Metrics.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	waitForSignal(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("Metrics server shutdown", zap.Error(err))
	}
}

func waitForSignal(logger *zap.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Info("Shutting down", zap.String("signal", s.String()))
}
