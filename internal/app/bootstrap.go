package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/deusflow/shorts-hunter/internal/cache"
	"github.com/deusflow/shorts-hunter/internal/config"
	"github.com/deusflow/shorts-hunter/internal/fetch"
	"github.com/deusflow/shorts-hunter/internal/gemini"
	"github.com/deusflow/shorts-hunter/internal/keywords"
	"github.com/deusflow/shorts-hunter/internal/metrics"
	"github.com/deusflow/shorts-hunter/internal/openai"
	"github.com/deusflow/shorts-hunter/internal/pipeline"
	"github.com/deusflow/shorts-hunter/internal/ranker"
	"github.com/deusflow/shorts-hunter/internal/ratelimit"
	"github.com/deusflow/shorts-hunter/internal/rss"
	"github.com/deusflow/shorts-hunter/internal/scraper"
	"github.com/deusflow/shorts-hunter/internal/storage"
)

// Runtime is a fully wired service plus the resources it owns.
type Runtime struct {
	Config  *config.Config
	Store   *storage.Store
	Service *Service
	Limiter *ratelimit.AIRateLimiter

	closers []func()
}

// Close releases the runtime resources in reverse order.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// Bootstrap opens storage and builds the collection and ranking stages from
// cfg. Without an AI credential the service still runs collect_only.
func Bootstrap(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Runtime, error) {
	if log == nil {
		log = slog.Default()
	}

	store, err := storage.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	store.SetLogger(log)
	rt := &Runtime{Config: cfg, Store: store}
	rt.closers = append(rt.closers, func() { store.Close() })

	dictCache := cache.New(10 * time.Minute)
	rt.closers = append(rt.closers, dictCache.Close)
	loader := keywords.NewLoader(store, dictCache, cfg.DictCacheTTL, log)

	registry := fetch.NewRegistry(
		rss.NewFetcher(rss.WithUserAgent(cfg.UserAgent), rss.WithTimeout(cfg.FetchTimeout)),
		scraper.NewFetcher(log),
	)
	collector := pipeline.NewCollector(store, loader, registry,
		pipeline.WithMetrics(metrics.Global),
		pipeline.WithLogger(log),
	)

	completer, closeCompleter, err := newCompleter(ctx, cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, closeCompleter)
	if completer == nil {
		log.Warn("no AI credential configured, ai_rank runs will fail", "provider", cfg.AIProvider)
	}

	rt.Limiter = ratelimit.NewAIRateLimiter(cfg.MaxAICallsPerDay, log)
	primary, fallback := cfg.AIModels()
	rk := ranker.New(store, completer, ranker.Options{
		PrimaryModel:  primary,
		FallbackModel: fallback,
		Timeout:       cfg.AITimeout,
		MaxCandidates: cfg.AIMaxCandidates,
	},
		ranker.WithBudget(rt.Limiter),
		ranker.WithMetrics(metrics.Global),
		ranker.WithLogger(log),
	)

	rt.Service = New(store, collector, rk, loader, Defaults{
		WindowHours:       cfg.WindowHours,
		MaxItemsPerSource: cfg.MaxItemsPerSource,
		FetchConcurrency:  cfg.FetchConcurrency,
	}, WithMetrics(metrics.Global), WithLogger(log))
	return rt, nil
}

// newCompleter returns a nil Completer when the selected provider has no key.
func newCompleter(ctx context.Context, cfg *config.Config) (ranker.Completer, func(), error) {
	noop := func() {}
	key := cfg.AIKey()
	if key == "" {
		return nil, noop, nil
	}

	switch cfg.AIProvider {
	case config.ProviderGemini:
		c, err := gemini.NewClient(ctx, key)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		return c, c.Close, nil
	default:
		var opts []openai.Option
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		c, err := openai.NewClient(key, opts...)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create OpenAI client: %w", err)
		}
		return c, noop, nil
	}
}
