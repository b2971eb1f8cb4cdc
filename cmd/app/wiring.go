package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"tcross-assistant/internal/config"
	"tcross-assistant/internal/domain/ports/adapter"
	aiAdapters "tcross-assistant/internal/infra/adapters/ai"
	"tcross-assistant/internal/infra/i18n"
	"tcross-assistant/internal/infra/logging"
	"tcross-assistant/internal/infra/metrics"
	red "tcross-assistant/internal/infra/redis"
	"tcross-assistant/internal/infra/vectorstore"
	"tcross-assistant/internal/safety"
	"tcross-assistant/internal/usecase"
)

// app is everything the front ends share: one pipeline, one session hub.
type app struct {
	cfg    *config.Config
	log    *zerolog.Logger
	text   *i18n.Translator
	hub    *usecase.SessionHub
	export usecase.ExportUseCase

	closers []io.Closer
}

func buildApp(ctx context.Context, logOut io.Writer) (*app, error) {
	cfg, err := config.LoadConfig(cfgPath, devMode)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log := logging.NewWithWriter(cfg.Log, cfg.Runtime.Dev, logOut)
	if cfg.Runtime.Dev {
		log.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(cfg.App.Version, cfg.App.Commit)

	text, err := i18n.NewTranslator(i18n.LocalesFS, cfg.App.Language)
	if err != nil {
		return nil, fmt.Errorf("i18n: %w", err)
	}

	a := &app{cfg: cfg, log: log, text: text, export: usecase.NewExportUseCase()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	// ---- Rate limiter ----
	var limiter adapter.RateLimiter
	switch cfg.RateLimit.Backend {
	case "redis":
		cli, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, cli)
		limiter = red.NewRateLimiter(cli, cfg.RateLimit.PerMinute, cfg.RateLimit.PerHour)
	default:
		limiter = safety.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.PerHour)
	}
	log.Info().Str("backend", cfg.RateLimit.Backend).
		Int("per_minute", cfg.RateLimit.PerMinute).
		Int("per_hour", cfg.RateLimit.PerHour).
		Msg("rate limiter ready")

	// ---- Manual index ----
	retriever, err := a.openRetriever(ctx)
	if err != nil {
		return nil, err
	}

	// ---- AI providers ----
	set, ai, err := aiAdapters.NewFromConfig(ctx, cfg.AI, log)
	if err != nil {
		return nil, fmt.Errorf("ai: %w", err)
	}
	models := usecase.NewModelConfigUseCase(ctx, set.Providers(), log)
	if _, err := models.Get(cfg.AI.DefaultModel); err != nil {
		return nil, fmt.Errorf("default model %q is not served by any configured provider: %w", cfg.AI.DefaultModel, err)
	}

	a.hub = usecase.NewSessionHub(&usecase.ChatPipeline{
		Limiter:      limiter,
		Validator:    safety.NewValidator(text),
		Context:      safety.NewContextManager(retriever, cfg.Retrieval.Timeout, log),
		Protector:    safety.NewPromptProtector(),
		AI:           ai,
		Models:       models,
		Text:         text,
		Log:          log,
		DefaultModel: cfg.AI.DefaultModel,
		AITimeout:    cfg.AI.Timeout,
		TopK:         cfg.Retrieval.TopK,
		Dev:          cfg.Runtime.Dev,
	})
	ok = true
	return a, nil
}

// openRetriever loads the manual index, or a no-op retriever when none is
// configured.
func (a *app) openRetriever(ctx context.Context) (adapter.Retriever, error) {
	path := a.cfg.Retrieval.IndexPath
	if path == "" {
		a.log.Info().Msg("retrieval disabled; answers use no manual context")
		return vectorstore.NoopRetriever{}, nil
	}
	store, embedder, err := openIndexStore(a.cfg, a.log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store)

	idx, err := vectorstore.LoadIndex(ctx, store, embedder)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	if idx.Len() == 0 {
		a.log.Warn().Str("path", path).Msg("manual index is empty; run `tcross index` first")
	} else {
		a.log.Info().Str("path", path).Int("chunks", idx.Len()).Msg("manual index loaded")
	}
	return idx, nil
}

// openIndexStore opens the SQLite index and the cached embedder over it.
func openIndexStore(cfg *config.Config, log *zerolog.Logger) (*vectorstore.Store, adapter.Embedder, error) {
	if cfg.Retrieval.IndexPath == "" {
		return nil, nil, errors.New("retrieval.index_path is not set")
	}
	store, err := vectorstore.Open(cfg.Retrieval.IndexPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open index: %w", err)
	}
	emb, err := vectorstore.NewOpenAIEmbedder(cfg.AI.OpenAI.APIKey, cfg.AI.OpenAI.BaseURL, cfg.Retrieval.EmbeddingModel)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("embedder: %w", err)
	}
	return store, vectorstore.NewCachedEmbedder(emb, store, log), nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}
