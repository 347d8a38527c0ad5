// Package app wires the services shared by the HTTP server and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/pagetree/internal/config"
	"github.com/dgallion1/pagetree/internal/enrich"
	"github.com/dgallion1/pagetree/internal/llm"
	"github.com/dgallion1/pagetree/internal/pipeline"
	"github.com/dgallion1/pagetree/internal/search"
	"github.com/dgallion1/pagetree/internal/store"
	"github.com/dgallion1/pagetree/internal/toc"
)

// App holds the constructed services. Close releases them.
type App struct {
	Store        *store.Store
	LLM          *llm.Client
	Builder      *pipeline.Builder
	Orchestrator *pipeline.Orchestrator
	Reasoner     *search.Reasoner
}

// New opens the database and builds every service from cfg. It does not
// start the orchestrator's workers.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	provider, err := llm.NewProvider(cfg.LLMProvider,
		cfg.AnthropicAPIKey, cfg.AnthropicModel,
		cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		provider.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	client := llm.NewClient(provider, llm.Options{
		Timeout:       cfg.LLMTimeout,
		MaxRetries:    cfg.LLMMaxRetries,
		MaxConcurrent: cfg.MaxConcurrentLLM,
		Logger:        log,
	})

	gen := toc.NewGenerator(client, toc.Options{
		WindowPages:   cfg.TocWindowPages,
		MaxConcurrent: cfg.MaxConcurrentLLM,
		Logger:        log.With("component", "toc"),
	})
	enricher := enrich.New(client, enrich.Options{
		MaxConcurrent:         cfg.MaxSummaryConcurrency,
		SummaryInputChars:     cfg.SummaryInputChars,
		DescriptionInputChars: cfg.DescriptionInputChars,
		Logger:                log.With("component", "enrich"),
	})
	builder := pipeline.NewBuilder(gen, enricher, cfg.PDFFallbackPdftotext, log.With("component", "builder"))
	orch := pipeline.NewOrchestrator(cfg, st, builder, log.With("component", "orchestrator"))
	reasoner := search.NewReasoner(st, st, orch, client, search.Options{
		MaxSelectedNodes:    cfg.MaxSelectedNodes,
		SectionContextChars: cfg.SectionContextChars,
		TotalContextChars:   cfg.TotalContextChars,
		MaxConcurrent:       cfg.MaxConcurrentLLM,
		Logger:              log.With("component", "search"),
	})

	return &App{
		Store:        st,
		LLM:          client,
		Builder:      builder,
		Orchestrator: orch,
		Reasoner:     reasoner,
	}, nil
}

// Close stops background generation and releases the database and model
// client.
func (a *App) Close() {
	a.Orchestrator.Stop()
	a.LLM.Close()
	a.Store.Close()
}
