// Package pipeline runs one collection pass: fetch every eligible source,
// dedupe by URL, upsert items, score them and record the run's candidates.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deusflow/shorts-hunter/internal/fetch"
	"github.com/deusflow/shorts-hunter/internal/keywords"
	"github.com/deusflow/shorts-hunter/internal/metrics"
	"github.com/deusflow/shorts-hunter/internal/scoring"
	"github.com/deusflow/shorts-hunter/internal/storage"
)

const trendingSize = 10

// Store is the part of storage the collector writes through.
type Store interface {
	AssertRunning(ctx context.Context, id string) error
	ListEnabledSources(ctx context.Context) ([]storage.Source, error)
	FindItemIDsByURL(ctx context.Context, urls []string) (map[string]string, error)
	CreateItems(ctx context.Context, items []storage.Item) (int, error)
	UpdateItemByURL(ctx context.Context, it storage.Item) error
	ItemsByURL(ctx context.Context, urls []string) (map[string]storage.Item, error)
	UpsertCandidates(ctx context.Context, cands []storage.Candidate) error
	ListCandidates(ctx context.Context, runID string, limit int) ([]storage.CandidateView, error)
	SaveRunSummary(ctx context.Context, id string, summary *storage.RunSummary, presetID string) error
	FinishRun(ctx context.Context, id, status string, summary *storage.RunSummary) error
}

var _ Store = (*storage.Store)(nil)

// DictionaryLoader resolves a preset id into its keyword dictionary.
type DictionaryLoader interface {
	Load(ctx context.Context, presetID string) (*storage.Preset, keywords.Dictionary, error)
}

type CollectParams struct {
	RunID             string
	WindowHours       int
	MaxItemsPerSource int
	FetchConcurrency  int
	// PresetID is the already resolved preset; empty means none.
	PresetID string
	// LeaveOpen stores the summary without ending the run, for callers that
	// still have work to do on it.
	LeaveOpen bool
}

type Collector struct {
	store    Store
	dicts    DictionaryLoader
	fetchers *fetch.Registry
	scorer   *scoring.Scorer
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

type Option func(*Collector)

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Collector) { c.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Collector) { c.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

func WithScorer(s *scoring.Scorer) Option {
	return func(c *Collector) { c.scorer = s }
}

func NewCollector(store Store, dicts DictionaryLoader, fetchers *fetch.Registry, opts ...Option) *Collector {
	c := &Collector{
		store:    store,
		dicts:    dicts,
		fetchers: fetchers,
		scorer:   scoring.New(),
		metrics:  metrics.Global,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type sourceResult struct {
	outcome storage.SourceOutcome
	items   []fetch.Item
}

// Collect runs one pass for p.RunID. Source failures end up in the summary;
// the returned error is reserved for storage and configuration failures.
func (c *Collector) Collect(ctx context.Context, p CollectParams) (*storage.RunSummary, error) {
	start := c.now().Add(-time.Duration(p.WindowHours) * time.Hour)
	log := c.log.With("run_id", p.RunID)

	if err := c.store.AssertRunning(ctx, p.RunID); err != nil {
		return nil, err
	}

	preset, dict, err := c.dicts.Load(ctx, p.PresetID)
	if err != nil {
		return nil, err
	}
	slug := ""
	if preset != nil {
		slug = preset.Slug
	}

	all, err := c.store.ListEnabledSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	var sources []storage.Source
	for _, s := range all {
		if s.EligibleFor(slug) {
			sources = append(sources, s)
		}
	}
	log.Info("collecting", "sources", len(sources), "preset", slug, "window_hours", p.WindowHours)

	results := make([]sourceResult, len(sources))
	errs := ForEachLimit(ctx, sources, p.FetchConcurrency, func(ctx context.Context, i int, s storage.Source) error {
		items, err := c.fetchSource(ctx, s, p.MaxItemsPerSource)
		if err != nil {
			return err
		}
		results[i].items = inWindow(items, start)
		return nil
	})
	for i, s := range sources {
		results[i].outcome = storage.SourceOutcome{SourceID: s.SourceID, OK: true, Count: len(results[i].items)}
		if errs[i] != nil {
			results[i] = sourceResult{outcome: storage.SourceOutcome{SourceID: s.SourceID, OK: false, Error: errs[i].Error()}}
			log.Warn("source fetch failed", "source", s.SourceID, "error", errs[i])
		}
		c.metrics.RecordSource(results[i].outcome.OK, results[i].outcome.Count)
	}

	var merged []fetch.Item
	for _, r := range results {
		merged = append(merged, r.items...)
	}
	deduped := DedupByURL(merged)
	c.metrics.AddDuplicatesFiltered(len(merged) - len(deduped))

	sourceIDs := make(map[string]string, len(all))
	for _, s := range all {
		sourceIDs[s.SourceID] = s.ID
	}

	saved, err := c.upsertItems(ctx, deduped, sourceIDs)
	if err != nil {
		return nil, err
	}

	cands := make([]storage.Candidate, 0, len(deduped))
	for _, it := range deduped {
		item, ok := saved[it.URL]
		if !ok {
			continue
		}
		res := c.scorer.Score(scoring.Input{
			Title:       item.Title,
			Summary:     item.Summary,
			ContentText: item.ContentText,
			SourceID:    it.SourceID,
		}, dict)
		cands = append(cands, storage.Candidate{
			RunID:      p.RunID,
			ItemID:     item.ID,
			RuleScore:  res.Score,
			TotalScore: res.Score,
			Reasons:    storage.Reasons(res.Reasons),
		})
	}
	if err := c.store.UpsertCandidates(ctx, cands); err != nil {
		return nil, err
	}
	c.metrics.AddCandidatesScored(len(cands))

	top, err := c.store.ListCandidates(ctx, p.RunID, trendingSize)
	if err != nil {
		return nil, fmt.Errorf("load top candidates: %w", err)
	}

	summary := &storage.RunSummary{
		WindowHours: p.WindowHours,
		Sources:     make([]storage.SourceOutcome, 0, len(results)),
		Totals: storage.Totals{
			Fetched:    len(merged),
			Deduped:    len(deduped),
			Candidates: len(cands),
		},
		TrendingTop10: make([]storage.TrendingEntry, 0, len(top)),
	}
	presetID := ""
	if preset != nil {
		presetID = preset.ID
		summary.Preset = &storage.PresetRef{ID: preset.ID, Slug: preset.Slug, Name: preset.Name}
	}
	for _, r := range results {
		summary.Sources = append(summary.Sources, r.outcome)
	}
	for _, v := range top {
		summary.TrendingTop10 = append(summary.TrendingTop10, storage.TrendingEntry{
			Title:      v.Item.Title,
			URL:        v.Item.URL,
			Source:     v.Source.Name,
			TotalScore: v.TotalScore,
		})
	}

	if err := c.store.SaveRunSummary(ctx, p.RunID, summary, presetID); err != nil {
		return nil, err
	}
	if !p.LeaveOpen {
		if err := c.store.FinishRun(ctx, p.RunID, storage.StatusSuccess, nil); err != nil {
			return nil, err
		}
	}

	log.Info("collection finished",
		"fetched", summary.Totals.Fetched,
		"deduped", summary.Totals.Deduped,
		"candidates", summary.Totals.Candidates)
	return summary, nil
}

func (c *Collector) fetchSource(ctx context.Context, s storage.Source, maxItems int) ([]fetch.Item, error) {
	f, ok := c.fetchers.Get(s.Type)
	if !ok {
		return nil, &fetch.Error{SourceID: s.SourceID, URL: s.URL, Err: fmt.Errorf("no fetcher for source type %q", s.Type)}
	}
	items, err := f.Fetch(ctx, s.SourceID, s.URL, maxItems)
	if err != nil {
		var fe *fetch.Error
		if !errors.As(err, &fe) {
			err = &fetch.Error{SourceID: s.SourceID, URL: s.URL, Err: err}
		}
		return nil, err
	}
	return items, nil
}

// upsertItems creates unseen URLs, refreshes known ones and returns the
// stored rows keyed by URL.
func (c *Collector) upsertItems(ctx context.Context, items []fetch.Item, sourceIDs map[string]string) (map[string]storage.Item, error) {
	if len(items) == 0 {
		return map[string]storage.Item{}, nil
	}

	urls := make([]string, 0, len(items))
	for _, it := range items {
		urls = append(urls, it.URL)
	}
	existing, err := c.store.FindItemIDsByURL(ctx, urls)
	if err != nil {
		return nil, err
	}

	var fresh []storage.Item
	for _, it := range items {
		srcID, ok := sourceIDs[it.SourceID]
		if !ok {
			continue
		}
		row := storage.Item{
			URL:         it.URL,
			Title:       it.Title,
			PublishedAt: it.PublishedAt,
			Summary:     it.Summary,
			ContentText: it.ContentText,
			Hash:        storage.ContentHash(it.Title, it.URL),
			SourceID:    srcID,
			FetchedAt:   it.FetchedAt,
		}
		if _, seen := existing[it.URL]; seen {
			if err := c.store.UpdateItemByURL(ctx, row); err != nil {
				return nil, err
			}
			continue
		}
		fresh = append(fresh, row)
	}

	if len(fresh) > 0 {
		inserted, err := c.store.CreateItems(ctx, fresh)
		if err != nil {
			return nil, err
		}
		if skipped := len(fresh) - inserted; skipped > 0 {
			c.log.Debug("items created concurrently by another run", "skipped", skipped)
		}
	}

	return c.store.ItemsByURL(ctx, urls)
}
