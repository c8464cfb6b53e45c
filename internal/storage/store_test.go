package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustSource(t *testing.T, s *Store, sourceID, name string, weight int, slugs string) Source {
	t.Helper()
	src := Source{SourceID: sourceID, Name: name, Type: "rss", URL: "https://example.com/" + sourceID, Enabled: true, Weight: weight, PresetSlugs: slugs}
	if err := s.CreateSource(context.Background(), &src); err != nil {
		t.Fatalf("create source %s: %v", sourceID, err)
	}
	return src
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{"": DialectSQLite, "sqlite3": DialectSQLite, "postgres": DialectPostgres, "PostgreSQL": DialectPostgres} {
		got, err := ParseDialect(in)
		if err != nil || got != want {
			t.Errorf("ParseDialect(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDialect("mysql"); err == nil {
		t.Error("expected error for mysql")
	}
}

func TestSourcesOrderingAndPatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mustSource(t, s, "mk_economy", "매일경제 경제", 6, "policy,finance")
	gov := mustSource(t, s, "korea_policy", "정책브리핑 정책뉴스", 10, "")
	mustSource(t, s, "donga_economy", "동아일보 경제", 6, "policy,finance")

	list, err := s.ListSources(ctx)
	if err != nil {
		t.Fatalf("ListSources: %v", err)
	}
	var order []string
	for _, src := range list {
		order = append(order, src.SourceID)
	}
	if want := []string{"korea_policy", "donga_economy", "mk_economy"}; !reflect.DeepEqual(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}

	disabled := false
	if _, err := s.UpdateSource(ctx, gov.ID, SourcePatch{Enabled: &disabled}); err != nil {
		t.Fatalf("UpdateSource: %v", err)
	}
	enabled, err := s.ListEnabledSources(ctx)
	if err != nil {
		t.Fatalf("ListEnabledSources: %v", err)
	}
	if len(enabled) != 2 {
		t.Errorf("enabled = %d, want 2", len(enabled))
	}

	bad := 11
	if _, err := s.UpdateSource(ctx, gov.ID, SourcePatch{Weight: &bad}); err == nil {
		t.Error("expected weight range error")
	}
	if _, err := s.UpdateSource(ctx, "missing", SourcePatch{Enabled: &disabled}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertSourceBySourceID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	src := Source{SourceID: "hk_finance", Name: "한국경제 금융", URL: "https://a", Enabled: true, Weight: 7}
	if err := s.UpsertSource(ctx, &src); err != nil {
		t.Fatalf("UpsertSource: %v", err)
	}
	firstID := src.ID

	again := Source{SourceID: "hk_finance", Name: "한국경제 금융", URL: "https://b", Enabled: false, Weight: 7, PresetSlugs: "finance"}
	if err := s.UpsertSource(ctx, &again); err != nil {
		t.Fatalf("UpsertSource again: %v", err)
	}
	if again.ID != firstID || again.URL != "https://b" || again.Enabled || again.PresetSlugs != "finance" {
		t.Errorf("unexpected upserted source %+v", again)
	}
}

func TestItemsCreateSkipAndUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	src := mustSource(t, s, "korea_policy", "정책브리핑", 10, "")

	published := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	items := []Item{
		{URL: "https://x/1", Title: "첫 기사", SourceID: src.ID, PublishedAt: &published},
		{URL: "https://x/2", Title: "둘째 기사", SourceID: src.ID, Summary: "요약"},
	}
	n, err := s.CreateItems(ctx, items)
	if err != nil || n != 2 {
		t.Fatalf("CreateItems = %d, %v", n, err)
	}

	n, err = s.CreateItems(ctx, []Item{{URL: "https://x/1", Title: "중복", SourceID: src.ID}})
	if err != nil {
		t.Fatalf("CreateItems duplicate: %v", err)
	}
	if n != 0 {
		t.Errorf("duplicate insert affected %d rows", n)
	}

	ids, err := s.FindItemIDsByURL(ctx, []string{"https://x/1", "https://x/2", "https://x/3"})
	if err != nil {
		t.Fatalf("FindItemIDsByURL: %v", err)
	}
	if len(ids) != 2 || ids["https://x/1"] != items[0].ID {
		t.Fatalf("ids = %v", ids)
	}

	if err := s.UpdateItemByURL(ctx, Item{URL: "https://x/1", Title: "고친 제목", Summary: "새 요약"}); err != nil {
		t.Fatalf("UpdateItemByURL: %v", err)
	}
	byURL, err := s.ItemsByURL(ctx, []string{"https://x/1"})
	if err != nil {
		t.Fatalf("ItemsByURL: %v", err)
	}
	got := byURL["https://x/1"]
	if got.Title != "고친 제목" || got.Summary != "새 요약" {
		t.Errorf("item not refreshed: %+v", got)
	}
	if got.Hash != ContentHash("고친 제목", "https://x/1") {
		t.Errorf("hash not recomputed")
	}
	if got.PublishedAt == nil || !got.PublishedAt.Equal(published) {
		t.Errorf("published date lost: %v", got.PublishedAt)
	}

	if err := s.UpdateItemByURL(ctx, Item{URL: "https://x/missing", Title: "t"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteSource(ctx, src.ID); err == nil {
		t.Error("deleting a source that owns items should fail")
	}
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := Run{Mode: ModeAIRank, WindowHours: 24}
	if err := s.CreateRun(ctx, &run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.Status != StatusRunning || !run.AIRequested {
		t.Fatalf("unexpected new run %+v", run)
	}

	summary := &RunSummary{WindowHours: 24, Totals: Totals{Fetched: 3, Deduped: 2, Candidates: 2}}
	if err := s.SaveRunSummary(ctx, run.ID, summary, ""); err != nil {
		t.Fatalf("SaveRunSummary: %v", err)
	}
	if err := s.AssertRunning(ctx, run.ID); err != nil {
		t.Fatalf("AssertRunning on open run: %v", err)
	}
	if err := s.FinishRun(ctx, run.ID, StatusSuccess, nil); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	if err := s.AssertRunning(ctx, run.ID); !errors.Is(err, ErrRunFinalized) {
		t.Fatalf("AssertRunning on finished run = %v, want ErrRunFinalized", err)
	}
	if err := s.AssertRunning(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("AssertRunning on unknown run = %v, want ErrNotFound", err)
	}
	if err := s.FinishRun(ctx, run.ID, StatusFailed, &RunSummary{Error: "late"}); !errors.Is(err, ErrRunFinalized) {
		t.Fatalf("expected ErrRunFinalized, got %v", err)
	}

	if err := s.RecordAIUsage(ctx, run.ID, AIUsage{Model: "gpt-4o-mini", Tokens: 1000, CostKRW: 210}); err != nil {
		t.Fatalf("RecordAIUsage: %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != StatusSuccess || got.EndedAt == nil {
		t.Errorf("run not finalized: %+v", got)
	}
	if got.Summary == nil || got.Summary.Totals.Deduped != 2 || got.Summary.Error != "" {
		t.Errorf("summary = %+v", got.Summary)
	}
	if !got.AIUsed || got.AICalls != 1 || got.AIModel != "gpt-4o-mini" || got.AICostEstKRW != 210 {
		t.Errorf("ai usage = %+v", got)
	}

	if err := s.FinishRun(ctx, "nope", StatusFailed, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.CreateRun(ctx, &Run{Mode: "weekly"}); err == nil {
		t.Error("expected invalid mode error")
	}
}

func seedRunWithCandidates(t *testing.T, s *Store) (Run, []Candidate) {
	t.Helper()
	ctx := context.Background()
	src := mustSource(t, s, "korea_policy", "정책브리핑", 10, "")
	items := []Item{
		{URL: "https://x/a", Title: "A", SourceID: src.ID},
		{URL: "https://x/b", Title: "B", SourceID: src.ID},
		{URL: "https://x/c", Title: "C", SourceID: src.ID},
	}
	if _, err := s.CreateItems(ctx, items); err != nil {
		t.Fatalf("CreateItems: %v", err)
	}
	run := Run{Mode: ModeCollectOnly, WindowHours: 24}
	if err := s.CreateRun(ctx, &run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	cands := []Candidate{
		{RunID: run.ID, ItemID: items[0].ID, RuleScore: 5, TotalScore: 5, Reasons: Reasons{"title:지원(+5)"}},
		{RunID: run.ID, ItemID: items[1].ID, RuleScore: 20, TotalScore: 20, Reasons: Reasons{"title:확대(+6)"}},
		{RunID: run.ID, ItemID: items[2].ID, RuleScore: 0, TotalScore: 0},
	}
	if err := s.UpsertCandidates(ctx, cands); err != nil {
		t.Fatalf("UpsertCandidates: %v", err)
	}
	return run, cands
}

func TestUpsertCandidatesIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	run, cands := seedRunWithCandidates(t, s)

	again := []Candidate{{RunID: run.ID, ItemID: cands[0].ItemID, RuleScore: 9, TotalScore: 9, Reasons: Reasons{"title:지급(+6)"}}}
	if err := s.UpsertCandidates(ctx, again); err != nil {
		t.Fatalf("UpsertCandidates again: %v", err)
	}
	n, err := s.CountCandidates(ctx, run.ID)
	if err != nil || n != 3 {
		t.Fatalf("CountCandidates = %d, %v", n, err)
	}

	views, err := s.ListCandidates(ctx, run.ID, 0)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if views[0].Item.Title != "B" || views[1].Item.Title != "A" {
		t.Fatalf("unexpected order: %s, %s", views[0].Item.Title, views[1].Item.Title)
	}
	if views[1].RuleScore != 9 || !reflect.DeepEqual(views[1].Reasons, Reasons{"title:지급(+6)"}) {
		t.Errorf("scores were not refreshed: %+v", views[1].Candidate)
	}
	if views[0].Source.SourceID != "korea_policy" {
		t.Errorf("source not joined: %+v", views[0].Source)
	}
}

func TestApplyRankingOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	run, cands := seedRunWithCandidates(t, s)

	n, err := s.ApplyRanking(ctx, run.ID, []RankUpdate{
		{CandidateID: cands[1].ID, Rank: 1, Reason: "생활 영향 큼"},
		{CandidateID: cands[0].ID, Rank: 2, Reason: "지원 확대"},
		{CandidateID: "not-in-run", Rank: 3, Reason: "x"},
	})
	if err != nil || n != 2 {
		t.Fatalf("ApplyRanking = %d, %v", n, err)
	}

	n, err = s.ApplyRanking(ctx, run.ID, []RankUpdate{{CandidateID: cands[0].ID, Rank: 1, Reason: "재평가"}})
	if err != nil || n != 1 {
		t.Fatalf("second ApplyRanking = %d, %v", n, err)
	}

	views, err := s.ListCandidates(ctx, run.ID, 0)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	for _, v := range views {
		switch v.ID {
		case cands[0].ID:
			if v.Rank == nil || *v.Rank != 1 {
				t.Errorf("A rank = %v", v.Rank)
			}
			if want := (Reasons{"title:지원(+5)", "ai:재평가"}); !reflect.DeepEqual(v.Reasons, want) {
				t.Errorf("A reasons = %v, want %v", v.Reasons, want)
			}
		case cands[1].ID:
			if v.Rank != nil {
				t.Errorf("B should lose its rank, got %d", *v.Rank)
			}
			if want := (Reasons{"title:확대(+6)"}); !reflect.DeepEqual(v.Reasons, want) {
				t.Errorf("B reasons = %v, want %v", v.Reasons, want)
			}
		}
	}

	rankable, err := s.RankableCandidates(ctx, run.ID, 2)
	if err != nil {
		t.Fatalf("RankableCandidates: %v", err)
	}
	if len(rankable) != 2 || rankable[0].RuleScore != 20 {
		t.Errorf("rankable = %+v", rankable)
	}
}

func TestPresetsSettingsAndJudgments(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := Preset{Slug: "finance", Name: "금융·가계", Enabled: true, DefaultAITopN: 20}
	kws := []Keyword{
		{Group: "life", Term: "금리", Weight: 7, Position: 1},
		{Group: "change", Term: "인하", Weight: 6, Position: 0},
	}
	if err := s.UpsertPreset(ctx, &p, kws); err != nil {
		t.Fatalf("UpsertPreset: %v", err)
	}
	kws[0].Weight = 8
	if err := s.UpsertPreset(ctx, &p, kws[:1]); err != nil {
		t.Fatalf("UpsertPreset again: %v", err)
	}

	rows, err := s.ListKeywords(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListKeywords: %v", err)
	}
	if len(rows) != 2 || rows[0].Term != "인하" || rows[1].Weight != 8 {
		t.Fatalf("keywords = %+v", rows)
	}

	if id, err := s.ActivePresetID(ctx); err != nil || id != "" {
		t.Fatalf("ActivePresetID before set = %q, %v", id, err)
	}
	if err := s.SetActivePresetID(ctx, p.ID); err != nil {
		t.Fatalf("SetActivePresetID: %v", err)
	}
	if id, _ := s.ActivePresetID(ctx); id != p.ID {
		t.Errorf("active preset = %q", id)
	}
	if err := s.SetActivePresetID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	bySlug, err := s.GetPresetBySlug(ctx, "finance")
	if err != nil || bySlug.ID != p.ID {
		t.Fatalf("GetPresetBySlug = %+v, %v", bySlug, err)
	}

	run, cands := seedRunWithCandidates(t, s)
	if _, err := s.SetJudgment(ctx, Judgment{ItemID: cands[1].ItemID, Verdict: VerdictViolation, Notes: "광고성"}); err != nil {
		t.Fatalf("SetJudgment: %v", err)
	}
	if _, err := s.SetJudgment(ctx, Judgment{ItemID: cands[1].ItemID, Verdict: "maybe"}); err == nil {
		t.Error("expected invalid verdict error")
	}
	views, err := s.ListCandidates(ctx, run.ID, 1)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if views[0].Judgment == nil || views[0].Judgment.Verdict != VerdictViolation {
		t.Errorf("judgment not joined: %+v", views[0].Judgment)
	}
}

func TestReasonsScan(t *testing.T) {
	var r Reasons
	if err := r.Scan(`["a","b"]`); err != nil || !reflect.DeepEqual(r, Reasons{"a", "b"}) {
		t.Fatalf("Scan = %v, %v", r, err)
	}
	if err := r.Scan(nil); err != nil || r != nil {
		t.Fatalf("Scan(nil) = %v, %v", r, err)
	}
	if err := r.Scan("{broken"); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	v, err := Reasons(nil).Value()
	if err != nil || v != "[]" {
		t.Fatalf("Value(nil) = %v, %v", v, err)
	}
}

func TestSourceEligibility(t *testing.T) {
	src := Source{PresetSlugs: " policy , parenting "}
	if !src.EligibleFor("parenting") || src.EligibleFor("housing") || !src.EligibleFor("") {
		t.Errorf("unexpected eligibility for %q", src.PresetSlugs)
	}
	if !(Source{}).EligibleFor("housing") {
		t.Error("unrestricted source should be eligible everywhere")
	}
}
