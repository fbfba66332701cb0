package main

import (
	"context"
	"fmt"
	"log"

	"github.com/mohammad-safakhou/pdfbot/config"
	"github.com/mohammad-safakhou/pdfbot/internal/answering"
	"github.com/mohammad-safakhou/pdfbot/internal/answerlog"
	"github.com/mohammad-safakhou/pdfbot/internal/chatwoot"
	"github.com/mohammad-safakhou/pdfbot/internal/document"
	"github.com/mohammad-safakhou/pdfbot/internal/telemetry"
	"github.com/mohammad-safakhou/pdfbot/provider"
	"github.com/mohammad-safakhou/pdfbot/repository/redis_repository"
	"github.com/redis/go-redis/v9"
)

// app holds the long-lived components shared by the commands.
type app struct {
	cfg     *config.Config
	metrics *telemetry.Metrics
	store   *document.Store
	log     *answerlog.Log
	answers *answering.Service
	bridge  *chatwoot.Bridge
	rdb     *redis.Client
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	metrics := telemetry.New()
	store := document.NewStore(document.PDFExtractor{}, cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap, metrics)

	llm, err := provider.New(cfg.LLM)
	if err != nil {
		return nil, err
	}
	if cfg.LLM.APIKey == "" {
		log.Printf("warning: llm.api_key is empty; completions will fail until YOUR_API_KEY is set")
	}

	answerLog := answerlog.New()
	svc := answering.New(store, llm, answerLog, answering.Options{
		TopK:               cfg.Retrieval.TopK,
		HistoryTurns:       cfg.Retrieval.HistoryTurns,
		MaxRetries:         cfg.LLM.MaxRetries,
		RetryBackoff:       cfg.LLM.RetryBackoff,
		NoKnowledgeMessage: cfg.Retrieval.NoKnowledgeMessage,
		Metrics:            metrics,
	})

	a := &app{cfg: cfg, metrics: metrics, store: store, log: answerLog, answers: svc}

	var dedup chatwoot.Deduper
	switch cfg.Dedup.Backend {
	case config.DedupRedis:
		rdb, err := redis_repository.Conn(ctx, cfg.Storage.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
		}
		a.rdb = rdb
		dedup = chatwoot.NewRedisDeduper(rdb, cfg.Dedup.TTL)
	default:
		dedup = chatwoot.NewMemoryDeduper(cfg.Dedup.TTL)
	}

	if cfg.Chatwoot.Enabled() {
		a.bridge = chatwoot.NewBridge(svc, chatwoot.NewClient(cfg.Chatwoot, metrics), dedup, metrics)
	} else {
		log.Printf("chatwoot credentials not configured; webhook answers will not be posted back")
		a.bridge = chatwoot.NewBridge(svc, nil, dedup, metrics)
	}
	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Printf("close document store: %v", err)
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}
