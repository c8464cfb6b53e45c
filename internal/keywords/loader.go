package keywords

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deusflow/shorts-hunter/internal/cache"
	"github.com/deusflow/shorts-hunter/internal/storage"
)

const DefaultCacheTTL = 5 * time.Minute

// PresetStore is the slice of storage the loader reads.
type PresetStore interface {
	GetPreset(ctx context.Context, id string) (*storage.Preset, error)
	ListKeywords(ctx context.Context, presetID string) ([]storage.Keyword, error)
}

var _ PresetStore = (*storage.Store)(nil)

type Loader struct {
	store PresetStore
	cache *cache.Cache
	ttl   time.Duration
	log   *slog.Logger
}

type resolved struct {
	preset *storage.Preset
	dict   Dictionary
}

// NewLoader returns a loader that caches resolved presets for ttl.
// A nil cache disables caching.
func NewLoader(store PresetStore, c *cache.Cache, ttl time.Duration, log *slog.Logger) *Loader {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Loader{store: store, cache: c, ttl: ttl, log: log}
}

// Load resolves presetID into its preset and dictionary. An empty or unknown
// id yields a nil preset and the default dictionary; only storage failures
// are returned as errors.
func (l *Loader) Load(ctx context.Context, presetID string) (*storage.Preset, Dictionary, error) {
	if presetID == "" {
		return nil, Default(), nil
	}

	key := cacheKey(presetID)
	if l.cache != nil {
		if v, ok := l.cache.Get(key); ok {
			if r, ok := v.(resolved); ok {
				return r.preset, r.dict, nil
			}
		}
	}

	preset, err := l.store.GetPreset(ctx, presetID)
	if errors.Is(err, storage.ErrNotFound) {
		l.log.Warn("preset not found, using default dictionary", "preset_id", presetID)
		return nil, Default(), nil
	}
	if err != nil {
		return nil, Dictionary{}, fmt.Errorf("load preset %s: %w", presetID, err)
	}

	rows, err := l.store.ListKeywords(ctx, presetID)
	if err != nil {
		return nil, Dictionary{}, fmt.Errorf("load keywords for preset %s: %w", presetID, err)
	}

	var dict Dictionary
	for _, k := range rows {
		if !dict.Add(k.Group, k.Term, k.Weight) {
			l.log.Debug("ignoring keyword with unknown group", "preset", preset.Slug, "group", k.Group, "term", k.Term)
		}
	}

	l.log.Debug("preset dictionary loaded", "preset", preset.Slug, "terms", dict.Len())
	if l.cache != nil {
		l.cache.Set(key, resolved{preset: preset, dict: dict}, l.ttl)
	}
	return preset, dict, nil
}

// Invalidate drops a cached preset after its keywords change.
func (l *Loader) Invalidate(presetID string) {
	if l.cache != nil {
		l.cache.Delete(cacheKey(presetID))
	}
}

func cacheKey(presetID string) string {
	return "preset:" + presetID
}
