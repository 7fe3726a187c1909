package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kestrelworks/agentlab/internal/agent"
	"github.com/kestrelworks/agentlab/internal/api"
	"github.com/kestrelworks/agentlab/internal/config"
	"github.com/kestrelworks/agentlab/internal/discussion"
	"github.com/kestrelworks/agentlab/internal/fetch"
	"github.com/kestrelworks/agentlab/internal/memory"
	"github.com/kestrelworks/agentlab/internal/provider"
	"github.com/kestrelworks/agentlab/internal/store"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	// Load configuration before the logger so the configured level applies.
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/agentlab.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	logger.Info("Starting agentlab...", zap.String("config", cfgPath))

	// Initialize provider router
	router := provider.NewRouter(logger)
	for _, pc := range cfg.Providers {
		provCfg := provider.Config{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey, Model: pc.Model,
			Timeout: time.Duration(pc.TimeoutSeconds) * time.Second,
		}
		switch pc.Type {
		case "openai":
			router.Register(provider.NewOpenAIProvider(provCfg, logger))
		case "anthropic":
			router.Register(provider.NewAnthropicProvider(provCfg, logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}

	// Initialize store
	s, err := store.New(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("path", cfg.Database.Path), zap.Error(err))
	}

	// Initialize retrieval and the agent engine
	retriever := memory.NewRetriever(s, memory.Options{
		CandidateWindow: cfg.Retrieval.CandidateWindow,
		MemoryLines:     cfg.Retrieval.MemoryLines,
		ReflectionLines: cfg.Retrieval.ReflectionLines,
	}, logger)

	engine := agent.NewEngine(s, router, retriever, agent.Options{
		Model:               cfg.Agents.Model,
		MaxTokens:           cfg.Agents.MaxTokens,
		ReflectionThreshold: cfg.Agents.ReflectionThreshold,
		Persona:             cfg.Agents.Persona,
	}, logger)

	// Initialize the discussion runner
	fetcher := fetch.New(time.Duration(cfg.Fetch.TimeoutSeconds)*time.Second, cfg.Fetch.MaxChars, logger)
	runner := discussion.NewRunner(s, router, retriever, fetcher, discussion.Options{
		Model:     cfg.Agents.Model,
		MaxTokens: cfg.Agents.MaxTokens,
		TurnDelay: time.Duration(cfg.Discussion.TurnDelaySeconds) * time.Second,
	}, logger)

	// Build HTTP handler
	handler := api.NewHandler(s, engine, runner, logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("agentlab listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down agentlab...")
	runner.StopAll()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
	s.Close()
}

func newLogger(level string) *zap.Logger {
	if level == "debug" {
		l, _ := zap.NewDevelopment()
		return l
	}
	l, _ := zap.NewProduction()
	return l
}
