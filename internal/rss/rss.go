package rss

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/deusflow/shorts-hunter/internal/fetch"
	"github.com/deusflow/shorts-hunter/internal/textnorm"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "policy-shorts-hunter/0.1"
)

// Fetcher downloads and parses syndication feeds (RSS, Atom, JSON Feed).
type Fetcher struct {
	client    *http.Client
	userAgent string
	now       func() time.Time
}

type Option func(*Fetcher)

// WithHTTPClient replaces the default client. Its timeout is left untouched.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.client = &http.Client{Timeout: d}
		}
	}
}

func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: DefaultUserAgent,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) Type() string { return fetch.TypeRSS }

// Fetch downloads one feed. Every failure comes back as *fetch.Error.
func (f *Fetcher) Fetch(ctx context.Context, sourceID, url string, maxItems int) ([]fetch.Item, error) {
	feed, err := f.download(ctx, url)
	if err != nil {
		return nil, &fetch.Error{SourceID: sourceID, URL: url, Err: err}
	}

	entries := feed.Items
	if maxItems > 0 && len(entries) > maxItems {
		entries = entries[:maxItems]
	}

	fetchedAt := f.now()
	items := make([]fetch.Item, 0, len(entries))
	for _, e := range entries {
		if e == nil {
			continue
		}
		title := textnorm.Normalize(e.Title)
		link := strings.TrimSpace(e.Link)
		if title == "" || link == "" {
			continue
		}
		items = append(items, fetch.Item{
			SourceID:    sourceID,
			SourceType:  fetch.TypeRSS,
			Title:       title,
			URL:         link,
			Summary:     excerpt(e),
			PublishedAt: publishedAt(e),
			FetchedAt:   fetchedAt,
		})
	}
	return items, nil
}

func (f *Fetcher) download(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("request creation failed: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("feed parse failed: %w", err)
	}
	return feed, nil
}

// excerpt returns the description (or content) as plain normalized text.
func excerpt(e *gofeed.Item) string {
	raw := e.Description
	if strings.TrimSpace(raw) == "" {
		raw = e.Content
	}
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	return textnorm.Normalize(stripHTML(raw))
}

func stripHTML(raw string) string {
	if !strings.ContainsAny(raw, "<&") {
		return raw
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	doc.Find("script, style").Remove()
	return doc.Text()
}

func publishedAt(e *gofeed.Item) *time.Time {
	switch {
	case e.PublishedParsed != nil:
		t := e.PublishedParsed.UTC()
		return &t
	case e.UpdatedParsed != nil:
		t := e.UpdatedParsed.UTC()
		return &t
	}
	return nil
}
