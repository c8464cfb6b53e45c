package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/deusflow/shorts-hunter/internal/fetch"
	"github.com/deusflow/shorts-hunter/internal/keywords"
	"github.com/deusflow/shorts-hunter/internal/metrics"
	"github.com/deusflow/shorts-hunter/internal/pipeline"
	"github.com/deusflow/shorts-hunter/internal/ranker"
	"github.com/deusflow/shorts-hunter/internal/rss"
	"github.com/deusflow/shorts-hunter/internal/seed"
	"github.com/deusflow/shorts-hunter/internal/storage"
)

const feed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>정책브리핑</title>
<item><title>건강보험 보장 확대 시행</title><link>https://www.korea.kr/news/1</link></item>
<item><title>청년 월세 지원 연장</title><link>https://www.korea.kr/news/2</link></item>
<item><title>정책 토론회 개최 안내</title><link>https://www.korea.kr/news/3</link></item>
</channel></rss>`

var idPattern = regexp.MustCompile(`id:(\S+)`)

// echoCompleter ranks candidates in prompt order.
type echoCompleter struct{ calls int }

func (e *echoCompleter) Complete(ctx context.Context, req ranker.CompletionRequest) (ranker.Completion, error) {
	e.calls++
	var top []map[string]any
	for i, m := range idPattern.FindAllStringSubmatch(req.Prompt, -1) {
		top = append(top, map[string]any{"rank": i + 1, "candidateId": m[1], "reason": fmt.Sprintf("선정 %d", i+1)})
	}
	b, _ := json.Marshal(map[string]any{"top10": top})
	return ranker.Completion{Text: string(b), TokensUsed: 500}, nil
}

type env struct {
	svc   *Service
	store *storage.Store
}

func newEnv(t *testing.T, completer ranker.Completer) *env {
	t.Helper()
	st, err := storage.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feed)
	}))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	src := storage.Source{SourceID: "korea_policy", Name: "정책브리핑", Type: "rss", URL: srv.URL, Enabled: true, Weight: 10}
	if err := st.CreateSource(ctx, &src); err != nil {
		t.Fatalf("CreateSource: %v", err)
	}

	m := metrics.New()
	loader := keywords.NewLoader(st, nil, 0, nil)
	collector := pipeline.NewCollector(st, loader, fetch.NewRegistry(rss.NewFetcher()), pipeline.WithMetrics(m))
	rk := ranker.New(st, completer, ranker.Options{PrimaryModel: "gpt-4.1-mini", FallbackModel: "gpt-4o-mini", Timeout: time.Second}, ranker.WithMetrics(m))
	svc := New(st, collector, rk, loader, Defaults{}, WithMetrics(m))
	return &env{svc: svc, store: st}
}

func TestTriggerCollectOnly(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	run, err := e.svc.Trigger(ctx, RunRequest{})
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if run.Status != storage.StatusSuccess || run.Mode != storage.ModeCollectOnly || run.WindowHours != 24 {
		t.Fatalf("run = %+v", run)
	}
	if run.Summary == nil || run.Summary.Totals.Candidates != 3 || run.AIUsed {
		t.Errorf("summary = %+v", run.Summary)
	}

	id, views, err := e.svc.ListCandidates(ctx, LatestRun)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if id != run.ID || len(views) != 3 {
		t.Fatalf("latest = %s with %d candidates", id, len(views))
	}
	if views[0].Item.Title != "건강보험 보장 확대 시행" || views[0].TotalScore != 26 {
		t.Errorf("top candidate = %s (%d)", views[0].Item.Title, views[0].TotalScore)
	}
}

func TestTriggerAIRank(t *testing.T) {
	c := &echoCompleter{}
	e := newEnv(t, c)
	ctx := context.Background()

	run, err := e.svc.Trigger(ctx, RunRequest{Mode: storage.ModeAIRank, WindowHours: 48})
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if run.Status != storage.StatusSuccess || !run.AIRequested || !run.AIUsed || run.AIModel != "gpt-4.1-mini" {
		t.Fatalf("run = %+v", run)
	}

	_, views, _ := e.svc.ListCandidates(ctx, run.ID)
	ranked := 0
	for _, v := range views {
		if v.Rank != nil {
			ranked++
		}
	}
	// the promo item scores 0 and stays eligible; nothing scored below zero
	if ranked != 3 {
		t.Errorf("ranked = %d, want 3", ranked)
	}

	if _, err := e.svc.Rerank(ctx, run.ID); err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	again, _ := e.store.GetRun(ctx, run.ID)
	if again.AICalls != 2 || again.Status != storage.StatusSuccess || c.calls != 2 {
		t.Errorf("after rerank: calls=%d status=%s completer=%d", again.AICalls, again.Status, c.calls)
	}
}

func TestTriggerAIRankWithoutCredentialFailsRun(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	_, err := e.svc.Trigger(ctx, RunRequest{Mode: storage.ModeAIRank})
	var runErr *RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("err = %v, want *RunError", err)
	}
	if !errors.Is(err, ranker.ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}

	run, err := e.store.GetRun(ctx, runErr.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != storage.StatusFailed || run.EndedAt == nil {
		t.Errorf("run = %+v", run)
	}
	if run.Summary == nil || run.Summary.Error == "" || run.Summary.Totals.Candidates != 3 {
		t.Errorf("summary should keep collect data and the error: %+v", run.Summary)
	}
}

func TestTriggerRejectsBadRequest(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	for _, req := range []RunRequest{{Mode: "weekly"}, {WindowHours: -1}, {WindowHours: 10000}} {
		if _, err := e.svc.Trigger(ctx, req); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("%+v: err = %v", req, err)
		}
	}
	runs, _ := e.svc.ListRuns(ctx)
	if len(runs) != 0 {
		t.Errorf("rejected requests created %d runs", len(runs))
	}
}

func TestListCandidatesWithoutRuns(t *testing.T) {
	e := newEnv(t, nil)
	id, views, err := e.svc.ListCandidates(context.Background(), LatestRun)
	if err != nil || id != "" || len(views) != 0 {
		t.Errorf("got %q, %d, %v", id, len(views), err)
	}
}

func TestSeedAndActivePreset(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	f, err := seed.Parse([]byte(`
presets:
  - slug: housing
    name: 부동산·주거
    keywords:
      life: {월세: 7}
  - slug: finance
    name: 금융·가계
    keywords:
      life: {금리: 7}
activePreset: housing
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := e.svc.ApplySeed(ctx, f); err != nil {
		t.Fatalf("ApplySeed: %v", err)
	}

	active, err := e.svc.ActivePreset(ctx)
	if err != nil || active == nil || active.Slug != "housing" {
		t.Fatalf("active = %+v, %v", active, err)
	}

	run, err := e.svc.Trigger(ctx, RunRequest{})
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if run.PresetID != active.ID || run.Summary.Preset == nil || run.Summary.Preset.Slug != "housing" {
		t.Errorf("run preset = %q, summary %+v", run.PresetID, run.Summary.Preset)
	}

	presets, _ := e.svc.ListPresets(ctx)
	var financeID string
	for _, p := range presets {
		if p.Slug == "finance" {
			financeID = p.ID
		}
	}
	if p, err := e.svc.SetActivePreset(ctx, financeID); err != nil || p.Slug != "finance" {
		t.Errorf("SetActivePreset = %+v, %v", p, err)
	}
	if _, err := e.svc.SetActivePreset(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown preset: err = %v", err)
	}
}
