// Package fetch defines the contract shared by every source fetcher and the
// registry the collector uses to pick one per source protocol.
package fetch

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Protocol tags stored on sources.
const (
	TypeRSS  = "rss"
	TypeHTML = "html"
)

// Item is one normalized entry produced by a fetcher.
type Item struct {
	SourceID    string
	SourceType  string
	Title       string
	URL         string
	Summary     string
	ContentText string
	PublishedAt *time.Time // nil when the feed gave no usable date
	FetchedAt   time.Time
}

// Fetcher retrieves one source and returns at most maxItems entries.
// maxItems <= 0 disables the cap.
type Fetcher interface {
	Type() string
	Fetch(ctx context.Context, sourceID, url string, maxItems int) ([]Item, error)
}

// Error records why one source could not be fetched.
type Error struct {
	SourceID string
	URL      string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.SourceID, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Registry maps a protocol tag to its fetcher.
type Registry struct {
	fetchers map[string]Fetcher
}

func NewRegistry(fetchers ...Fetcher) *Registry {
	r := &Registry{fetchers: make(map[string]Fetcher, len(fetchers))}
	for _, f := range fetchers {
		r.Register(f)
	}
	return r
}

func (r *Registry) Register(f Fetcher) {
	r.fetchers[f.Type()] = f
}

func (r *Registry) Get(sourceType string) (Fetcher, bool) {
	f, ok := r.fetchers[sourceType]
	return f, ok
}

// Types lists registered protocol tags in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.fetchers))
	for t := range r.fetchers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
