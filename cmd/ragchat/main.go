package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ent0n29/ragchat/internal/cache"
	"github.com/ent0n29/ragchat/internal/chatstore"
	"github.com/ent0n29/ragchat/internal/config"
	"github.com/ent0n29/ragchat/internal/datalayer"
	"github.com/ent0n29/ragchat/internal/guards"
	"github.com/ent0n29/ragchat/internal/httpapi"
	"github.com/ent0n29/ragchat/internal/knowledge"
	"github.com/ent0n29/ragchat/internal/llm"
	"github.com/ent0n29/ragchat/internal/observability"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := chatstore.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("chat store init failed: %v", err)
	}
	defer store.Close()

	redisCache, err := cache.NewRedisCache(cfg.RedisURL)
	if err != nil {
		log.Fatalf("cache init failed: %v", err)
	}
	defer redisCache.Close()
	redisCache.Connect(ctx)

	retriever, err := knowledge.NewRetriever(ctx, knowledge.RetrieverConfig{
		DatabaseURL:  cfg.DatabaseURL,
		EmbeddingDim: cfg.EmbeddingDim,
		Qdrant: knowledge.QdrantConfig{
			URL:            cfg.QdrantURL,
			APIKey:         cfg.QdrantAPIKey,
			CollectionName: cfg.QdrantCollection,
		},
	})
	if err != nil {
		log.Fatalf("knowledge retriever init failed: %v", err)
	}

	embedder := knowledge.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIEmbeddingModel)
	knowledgeSvc := knowledge.NewService(embedder, retriever, cfg.KnowledgeTopK)
	defer knowledgeSvc.Close()

	generator := llm.NewClient(llm.Config{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.OpenAIModel,
		CompanyName: cfg.CompanyName,
	})

	var moderator guards.Moderator
	if cfg.GuardModerationEnabled {
		moderator = generator
	}
	guard := guards.NewValidator(guards.Config{
		MaxMessageLength:   cfg.GuardMaxMessageLength,
		MaxSessionMessages: cfg.GuardMaxSessionMessages,
		RateLimitPerMinute: cfg.GuardRateLimitPerMinute,
		ModerationEnabled:  cfg.GuardModerationEnabled,
	}, moderator)

	data := datalayer.New(datalayer.Config{
		ChatHistoryTTL: cfg.ChatHistoryTTL,
		KnowledgeTTL:   cfg.KnowledgeTTL,
		MaxKeyLength:   cfg.CacheMaxKeyLength,
	}, redisCache, store, knowledgeSvc, metrics)

	api := httpapi.New(cfg, data, generator, guard, knowledgeSvc, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	redisCache.StartHealthLoop(runCtx, cfg.CacheHealthInterval)
	guard.StartJanitor(runCtx, time.Minute)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
