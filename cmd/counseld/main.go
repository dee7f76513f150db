// counseld is the advisory server. It wires the engine, the model provider,
// a context store, the knowledge tools, and exposes the chat API over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/counsel"
	"github.com/nevindra/counsel/internal/config"
	"github.com/nevindra/counsel/knowledge"
	"github.com/nevindra/counsel/observer"
	"github.com/nevindra/counsel/provider/openaicompat"
	"github.com/nevindra/counsel/store/postgres"
	"github.com/nevindra/counsel/store/sqlite"
	"github.com/nevindra/counsel/tools/market"
	"github.com/nevindra/counsel/tools/news"
	"github.com/nevindra/counsel/tools/policy"
)

func main() {
	cfg := config.Load(os.Getenv("COUNSEL_CONFIG"))

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("服务异常退出", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	// Observer first so every later wrapper can use its instruments.
	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		pricing := make(map[string]observer.ModelPricing, len(cfg.Observer.Pricing))
		for model, p := range cfg.Observer.Pricing {
			pricing[model] = observer.ModelPricing{InputPerMillion: p.Input, OutputPerMillion: p.Output}
		}
		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(ctx, pricing)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Warn("关闭观测组件失败", "error", err)
			}
		}()
	}

	var provider counsel.Provider = openaicompat.NewProvider(
		cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL,
		openaicompat.WithName(cfg.LLM.Provider),
	)
	if inst != nil {
		provider = observer.WrapProvider(provider, cfg.LLM.Model, inst)
	}
	provider = counsel.WithRetry(provider,
		counsel.RetryMaxAttempts(cfg.LLM.MaxAttempts),
		counsel.RetryLogger(logger))

	store, cache, closeStore, err := buildStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	tools := counsel.NewToolRegistry()
	addTool := func(t counsel.Tool) {
		if inst != nil {
			t = observer.WrapTool(t, inst)
		}
		tools.Add(t)
	}

	if cfg.Knowledge.Corpus != "" {
		docs, err := knowledge.LoadCorpus(cfg.Knowledge.Corpus)
		if err != nil {
			return err
		}
		kb := knowledge.NewBase(docs)
		logger.Info("知识库已加载",
			"corpus", cfg.Knowledge.Corpus,
			"documents", kb.Len())
		addTool(policy.New(kb, policy.WithCache(cache), policy.WithLogger(logger)))
	}
	addTool(market.New())
	addTool(news.New(news.WithCache(cache), news.WithLogger(logger)))

	engine := counsel.NewEngine(nil, nil, provider, tools, store,
		counsel.WithLogger(logger),
		counsel.WithMaxHistoryTurns(cfg.Engine.MaxHistoryTurns),
		counsel.WithMaxToolRounds(cfg.Engine.MaxToolRounds),
		counsel.WithMaxDiscussionRounds(cfg.Engine.MaxDiscussionRounds))

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: NewServer(engine, logger).Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("服务启动", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("收到退出信号，正在关闭")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

// buildStore selects the context store backend. The returned cache shares the
// same backend when it supports caching; the memory backend gets a separate
// in-process cache.
func buildStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (counsel.ContextStore, counsel.Cache, func(), error) {
	ttl := time.Duration(cfg.ContextTTLH) * time.Hour

	switch cfg.Backend {
	case "sqlite":
		s := sqlite.New(cfg.Path, sqlite.WithLogger(logger), sqlite.WithContextTTL(ttl))
		if err := s.Init(ctx); err != nil {
			return nil, nil, nil, err
		}
		return s, s, func() { _ = s.Close() }, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, nil, err
		}
		s := postgres.New(pool, postgres.WithContextTTL(ttl))
		if err := s.Init(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		return s, s, func() { pool.Close() }, nil
	default:
		return counsel.NewMemoryContextStore(ttl), counsel.NewMemoryCache(), func() {}, nil
	}
}
