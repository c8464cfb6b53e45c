package rss

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deusflow/shorts-hunter/internal/fetch"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>정책브리핑</title>
  <item>
    <title>  건강보험   보장 확대 시행 </title>
    <link> https://example.go.kr/news/1 </link>
    <description><![CDATA[<p>내년부터 <b>보험료</b> 경감</p>]]></description>
    <pubDate>Mon, 02 Jun 2025 09:00:00 +0900</pubDate>
  </item>
  <item>
    <title></title>
    <link>https://example.go.kr/news/2</link>
  </item>
  <item>
    <title>날짜 없는 공지</title>
    <link>https://example.go.kr/news/3</link>
  </item>
  <item>
    <title>네 번째 기사</title>
    <link>https://example.go.kr/news/4</link>
  </item>
</channel>
</rss>`

func TestFetchParsesAndNormalizes(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher()
	items, err := f.Fetch(context.Background(), "korea_policy", srv.URL, 3)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotUA != DefaultUserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, DefaultUserAgent)
	}
	// cap of 3 applies before the empty-title entry is dropped
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2: %+v", len(items), items)
	}

	first := items[0]
	if first.Title != "건강보험 보장 확대 시행" {
		t.Errorf("title = %q", first.Title)
	}
	if first.URL != "https://example.go.kr/news/1" {
		t.Errorf("url = %q", first.URL)
	}
	if first.Summary != "내년부터 보험료 경감" {
		t.Errorf("summary = %q", first.Summary)
	}
	if first.PublishedAt == nil || first.PublishedAt.UTC().Hour() != 0 {
		t.Errorf("publishedAt = %v, want 00:00 UTC", first.PublishedAt)
	}
	if first.SourceID != "korea_policy" || first.SourceType != fetch.TypeRSS {
		t.Errorf("unexpected source tags: %+v", first)
	}
	if first.ContentText != "" {
		t.Errorf("content text should be empty, got %q", first.ContentText)
	}

	if items[1].PublishedAt != nil {
		t.Errorf("missing pubDate should yield nil, got %v", items[1].PublishedAt)
	}
}

func TestFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := NewFetcher(WithUserAgent("test-agent")).Fetch(context.Background(), "mk_economy", srv.URL, 10)
	var fe *fetch.Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *fetch.Error, got %v", err)
	}
	if fe.SourceID != "mk_economy" {
		t.Errorf("SourceID = %q", fe.SourceID)
	}
}

func TestFetchParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("definitely not a feed"))
	}))
	t.Cleanup(srv.Close)

	if _, err := NewFetcher().Fetch(context.Background(), "x", srv.URL, 0); err == nil {
		t.Fatal("expected parse error")
	}
}
