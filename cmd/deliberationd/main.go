// Command deliberationd runs the multi-agent deliberation service: the
// Discussion Store, Round Scheduler, and Session Gateway wired together
// behind one WebSocket listener.
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
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"manifold/internal/config"
	"manifold/internal/gateway"
	"manifold/internal/llm"
	"manifold/internal/llm/providers"
	"manifold/internal/lock"
	"manifold/internal/observability"
	"manifold/internal/question"
	"manifold/internal/resolution"
	"manifold/internal/scheduler"
	"manifold/internal/store"
	"manifold/internal/summarizer"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.Obs.LogPath, cfg.Obs.LogLevel, cfg.Obs.ServiceName)
	llm.ConfigureLogging(cfg.Obs.LogPayloads)

	ctx := context.Background()
	shutdownOTel, err := observability.InitOTel(ctx, cfg.Obs.OTLPEndpoint, cfg.Obs.ServiceName)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without tracing")
		shutdownOTel = nil
	}
	if shutdownOTel != nil {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	registry, err := providers.Build(cfg.LLM, http.DefaultClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build provider registry")
	}

	lockBackend := buildLockBackend(cfg)
	locks := lock.New(
		lockBackend,
		time.Duration(cfg.Lock.FileTTLSeconds)*time.Second,
		time.Duration(cfg.Lock.ProcessingTTLSeconds)*time.Second,
		time.Duration(cfg.Lock.PollIntervalMS)*time.Millisecond,
	)

	index := store.BuildIndex(ctx, cfg.Store.DatabasePath)
	st := store.New(store.Config{
		DiscussionsDir:     cfg.Store.DiscussionsDir,
		MaxRetries:         cfg.Store.MaxRetries,
		RetryDelayMS:       cfg.Store.RetryDelayMS,
		StaleAfterMinutes:  cfg.Store.StaleDiscussionThresholdMinutes,
		DefaultTokenBudget: cfg.Budget.DiscussionTokenLimit,
	}, index, locks)

	reconciler := store.NewReconciler(
		st,
		time.Duration(cfg.Store.ReconcileIntervalSeconds)*time.Second,
		cfg.Store.ReconcileTokenTolerance,
	)
	reconcileCtx, stopReconcile := context.WithCancel(context.Background())
	defer stopReconcile()
	go reconciler.Run(reconcileCtx)

	det := resolution.New(registry, resolution.Config{
		ProviderName: cfg.LLM.Provider,
		Models:       modelsFor(cfg),
	})
	summ := summarizer.New(registry, summarizer.Config{
		ProviderName: cfg.LLM.Provider,
		Models:       modelsFor(cfg),
	})
	quest := question.New(registry, question.Config{
		ProviderName: cfg.LLM.Provider,
		Models:       modelsFor(cfg),
	})

	srv := gateway.NewServer(nil, cfg.Gateway)

	sched := scheduler.New(st, locks, registry, det, summ, quest, srv.Hub(), scheduler.Config{
		ProviderName:              cfg.LLM.Provider,
		Models:                    modelsFor(cfg),
		StreamTimeoutSeconds:      cfg.LLM.StreamTimeoutSeconds,
		ProcessingLockMaxAttempts: cfg.LLM.FallbackMaxAttempts,
	})
	srv.SetScheduler(sched)

	addr := fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)
	if err := srv.Start(addr); err != nil {
		log.Fatal().Err(err).Msg("failed to start gateway")
	}
	log.Info().Str("addr", addr).Msg("deliberationd listening")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Gateway.ShutdownDrainSeconds+5)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("gateway shutdown error")
	} else {
		log.Info().Msg("deliberationd stopped")
	}
}

// modelsFor returns the default provider's configured model plus its
// fallback chain, the ordered list every Streamer call walks (§4.5).
func modelsFor(cfg config.Config) []string {
	var pc config.ProviderConfig
	switch cfg.LLM.Provider {
	case "openai":
		pc = cfg.LLM.OpenAI
	case "google":
		pc = cfg.LLM.Google
	default:
		pc = cfg.LLM.Anthropic
	}
	models := make([]string, 0, len(pc.Fallbacks)+1)
	if pc.Model != "" {
		models = append(models, pc.Model)
	}
	models = append(models, pc.Fallbacks...)
	return models
}

// buildLockBackend wires the Lock Service's distributed backend (§4.8):
// Redis when configured, the in-process fallback otherwise, matching the
// Discussion Store's own "auto" degrade-to-memory pattern.
func buildLockBackend(cfg config.Config) lock.Backend {
	if !cfg.Redis.Enabled {
		return lock.NewMemoryBackend()
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Redis.Addr},
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return lock.NewRedisBackend(client)
}
