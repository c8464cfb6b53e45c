// Package scraper is the page-scrape fetcher for sources whose protocol is
// "html". Listing pages differ per ministry and no extractor is registered
// yet, so Fetch always reports an empty list.
package scraper

import (
	"context"
	"log/slog"

	"github.com/deusflow/shorts-hunter/internal/fetch"
)

type Fetcher struct {
	log *slog.Logger
}

func NewFetcher(log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{log: log}
}

func (f *Fetcher) Type() string { return fetch.TypeHTML }

func (f *Fetcher) Fetch(ctx context.Context, sourceID, url string, maxItems int) ([]fetch.Item, error) {
	f.log.Debug("page-scrape source has no extractor, skipping", "source", sourceID, "url", url)
	return []fetch.Item{}, nil
}
