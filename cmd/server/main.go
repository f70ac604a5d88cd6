// Command server runs the companion chatbot HTTP backend.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/companionlabs/companion-go/pkg/cache"
	"github.com/companionlabs/companion-go/pkg/chat"
	"github.com/companionlabs/companion-go/pkg/core"
	"github.com/companionlabs/companion-go/pkg/httpapi"
	"github.com/companionlabs/companion-go/pkg/llm"
	"github.com/companionlabs/companion-go/pkg/llm/openai"
	"github.com/companionlabs/companion-go/pkg/memory"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "companion",
	})

	cfg, err := core.LoadConfigFromEnv()
	if err != nil {
		logger.Fatal("failed to load configuration", "err", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}

	st, err := memory.OpenStore(cfg.Store)
	if err != nil {
		logger.Fatal("failed to open store", "provider", cfg.Store.Provider, "err", err)
	}
	logger.Info("store ready", "provider", cfg.Store.Provider)

	var redisCache *cache.Cache
	if cfg.Cache.Enabled() {
		redisCache, err = cache.NewCache(cfg.Cache.URL, cfg.Cache.TTL, cfg.Cache.Timeout)
		if err != nil {
			logger.Warn("redis unavailable, continuing without caching and rate limiting", "err", err)
			redisCache = nil
		} else {
			logger.Info("redis cache ready", "ttl", cfg.Cache.TTL)
		}
	}

	var provider llm.Provider
	if cfg.LLM.Enabled() {
		client, err := openai.NewClient(&openai.Config{
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			BaseURL: cfg.LLM.BaseURL,
		})
		if err != nil {
			logger.Warn("model client setup failed, using fallback responses", "err", err)
		} else {
			provider = client
			logger.Info("model provider ready", "model", cfg.LLM.Model)
		}
	} else {
		logger.Warn("no model API key configured, using fallback responses")
	}

	svc := memory.NewService(st, redisCache, provider, logger.WithPrefix("memory"))
	orchestrator := chat.NewOrchestrator(svc, provider, logger.WithPrefix("chat"))
	api := httpapi.NewServer(orchestrator, svc, logger.WithPrefix("http"))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(cfg, redisCache),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runCleanupSweep(ctx, svc, cfg.Server.CleanupInterval, cfg.Server.CleanupMaxAge, logger)

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "err", err)
	}
	if err := svc.Close(); err != nil {
		logger.Error("store close failed", "err", err)
	}
	logger.Info("goodbye")
}

// runCleanupSweep periodically deletes inactive conversations older than
// maxAge. The first sweep runs after one full interval.
func runCleanupSweep(ctx context.Context, svc *memory.Service, interval, maxAge time.Duration, logger *log.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := svc.CleanupInactive(ctx, maxAge)
			if err != nil {
				logger.Warn("conversation cleanup failed", "err", err)
				continue
			}
			if deleted > 0 {
				logger.Info("cleaned up inactive conversations", "deleted", deleted)
			}
		}
	}
}
