package main

import (
	"context"
	"fmt"
	"log"

	"deepscribe/config"
	"deepscribe/internal/engine"
	"deepscribe/internal/llm"
	"deepscribe/internal/report"
	"deepscribe/internal/search"
	"deepscribe/internal/store"
	"deepscribe/internal/telemetry"
)

// buildEngine wires the full pipeline from config. searchProvider and the
// models override config when non-empty.
func buildEngine(cfg *config.Config, searchProvider, topicModel, summaryModel string, maxWorkers int) (*engine.Engine, *telemetry.Telemetry, error) {
	if topicModel == "" {
		topicModel = cfg.LLM.TopicModel
	}
	if summaryModel == "" {
		summaryModel = cfg.LLM.SummaryModel
	}
	if searchProvider == "" {
		searchProvider = cfg.Search.Provider
	}
	if maxWorkers < 1 {
		maxWorkers = cfg.Research.MaxWorkers
	}

	if err := cfg.LLM.Validate(); err != nil {
		return nil, nil, err
	}

	tel := telemetry.New(cfg.Telemetry)

	llmOpts := []llm.Option{llm.WithRecorder(tel)}
	if cfg.LLM.BaseURL != "" {
		llmOpts = append(llmOpts, llm.WithBaseURL(cfg.LLM.BaseURL))
	}
	provider, err := llm.NewOpenAI(cfg.LLM.APIKey, llmOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("building llm provider: %w", err)
	}

	searchCfg := cfg.Search
	searchCfg.Provider = searchProvider
	searcher, err := search.New(searchProvider, searchCfg.APIKey())
	if err != nil {
		return nil, nil, fmt.Errorf("building search provider: %w", err)
	}

	planner := engine.NewPlanner(provider, topicModel, nil)
	controller := engine.NewSearchController(provider, searcher, summaryModel, nil)
	synth := engine.NewSynthesizer(provider, searcher, summaryModel, maxWorkers, nil)
	coordinator := engine.NewCoordinator(synth, nil)
	assembler := report.NewAssembler(provider, summaryModel, nil)

	eng := engine.New(planner, controller, coordinator, assembler, tel, nil)
	return eng, tel, nil
}

// openStore returns the configured persistence backend, preferring Postgres.
// Returns nil when neither backend is configured.
func openStore(ctx context.Context, cfg *config.Config, logger *log.Logger) store.ReportStore {
	if cfg.Storage.Postgres.Enabled() {
		st, err := store.NewPostgres(ctx, cfg.Storage.Postgres.DSN())
		if err != nil {
			logger.Printf("postgres unavailable, reports will not be persisted there: %v", err)
		} else {
			return st
		}
	}
	if cfg.Storage.Redis.Enabled() {
		st, err := store.NewRedis(ctx, cfg.Storage.Redis.Addr(), cfg.Storage.Redis.Password, cfg.Storage.Redis.DB, cfg.Storage.Redis.Timeout)
		if err != nil {
			logger.Printf("redis unavailable, reports will not be persisted: %v", err)
		} else {
			return st
		}
	}
	return nil
}
