package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// aiReasonPrefix marks reasons appended by the AI re-ranker.
const aiReasonPrefix = "ai:"

// RankUpdate is one AI-assigned position.
type RankUpdate struct {
	CandidateID string
	Rank        int
	Reason      string
}

// UpsertCandidates writes candidates keyed by (run, item). An existing row
// gets the new scores and reasons and loses any previous AI rank.
func (s *Store) UpsertCandidates(ctx context.Context, cands []Candidate) error {
	now := s.now()
	for start := 0; start < len(cands); start += batchSize {
		end := min(start+batchSize, len(cands))
		b := s.sb.Insert("candidates").
			Columns("id", "run_id", "item_id", "rule_score", "total_score", "reasons", "ai_rank", "created_at", "updated_at")
		for i := start; i < end; i++ {
			c := &cands[i]
			if c.ID == "" {
				c.ID = uuid.NewString()
			}
			b = b.Values(c.ID, c.RunID, c.ItemID, c.RuleScore, c.TotalScore, c.Reasons, nil, now, now)
		}
		_, err := execBuilt(ctx, s.db, b.Suffix(`ON CONFLICT (run_id, item_id) DO UPDATE SET
			rule_score = excluded.rule_score,
			total_score = excluded.total_score,
			reasons = excluded.reasons,
			ai_rank = NULL,
			updated_at = excluded.updated_at`))
		if err != nil {
			return fmt.Errorf("upsert candidates: %w", err)
		}
	}
	return nil
}

func (s *Store) CountCandidates(ctx context.Context, runID string) (int, error) {
	row, err := queryRowBuilt(ctx, s.db, s.sb.Select("COUNT(*)").From("candidates").Where(sq.Eq{"run_id": runID}))
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count candidates: %w", err)
	}
	return n, nil
}

func (s *Store) candidateViewQuery() sq.SelectBuilder {
	return s.sb.Select(
		"c.id", "c.run_id", "c.item_id", "c.rule_score", "c.total_score", "c.reasons", "c.ai_rank", "c.created_at", "c.updated_at",
		"i.id", "i.url", "i.title", "i.published_at", "i.summary", "i.content_text", "i.hash", "i.source_id", "i.fetched_at", "i.created_at", "i.updated_at",
		"s.id", "s.source_id", "s.name", "s.type", "s.url", "s.enabled", "s.weight", "s.preset_slugs", "s.created_at", "s.updated_at",
		"j.item_id", "j.verdict", "j.notes", "j.updated_at",
	).
		From("candidates c").
		Join("items i ON i.id = c.item_id").
		Join("sources s ON s.id = i.source_id").
		LeftJoin("judgments j ON j.item_id = i.id")
}

func scanCandidateView(r rowScanner) (CandidateView, error) {
	var (
		v                CandidateView
		rank             sql.NullInt64
		published        sql.NullTime
		summary, content sql.NullString
		slugs            sql.NullString
		jItem, jVerdict  sql.NullString
		jNotes           sql.NullString
		jUpdated         sql.NullTime
	)
	err := r.Scan(
		&v.ID, &v.RunID, &v.ItemID, &v.RuleScore, &v.TotalScore, &v.Reasons, &rank, &v.CreatedAt, &v.UpdatedAt,
		&v.Item.ID, &v.Item.URL, &v.Item.Title, &published, &summary, &content, &v.Item.Hash, &v.Item.SourceID, &v.Item.FetchedAt, &v.Item.CreatedAt, &v.Item.UpdatedAt,
		&v.Source.ID, &v.Source.SourceID, &v.Source.Name, &v.Source.Type, &v.Source.URL, &v.Source.Enabled, &v.Source.Weight, &slugs, &v.Source.CreatedAt, &v.Source.UpdatedAt,
		&jItem, &jVerdict, &jNotes, &jUpdated,
	)
	if err != nil {
		return CandidateView{}, err
	}
	if rank.Valid {
		n := int(rank.Int64)
		v.Rank = &n
	}
	v.Item.PublishedAt = timePtr(published)
	v.Item.Summary = summary.String
	v.Item.ContentText = content.String
	v.Source.PresetSlugs = slugs.String
	if jItem.Valid {
		v.Judgment = &Judgment{ItemID: jItem.String, Verdict: jVerdict.String, Notes: jNotes.String}
		if jUpdated.Valid {
			v.Judgment.UpdatedAt = jUpdated.Time
		}
	}
	return v, nil
}

func (s *Store) queryCandidateViews(ctx context.Context, b sq.SelectBuilder) ([]CandidateView, error) {
	rows, err := queryBuilt(ctx, s.db, b)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var out []CandidateView
	for rows.Next() {
		v, err := scanCandidateView(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListCandidates returns a run's candidates by total score, best first.
// limit <= 0 returns all of them.
func (s *Store) ListCandidates(ctx context.Context, runID string, limit int) ([]CandidateView, error) {
	b := s.candidateViewQuery().
		Where(sq.Eq{"c.run_id": runID}).
		OrderBy("c.total_score DESC", "c.rule_score DESC", "i.title ASC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return s.queryCandidateViews(ctx, b)
}

// RankableCandidates returns the candidates of a run with a non-negative
// rule score, highest rule score first.
func (s *Store) RankableCandidates(ctx context.Context, runID string, limit int) ([]CandidateView, error) {
	b := s.candidateViewQuery().
		Where(sq.Eq{"c.run_id": runID}).
		Where(sq.GtOrEq{"c.rule_score": 0}).
		OrderBy("c.rule_score DESC", "i.title ASC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return s.queryCandidateViews(ctx, b)
}

// ApplyRanking replaces the AI ranking of a run in one transaction. Earlier
// ranks and ai: reasons are cleared first, then every update whose candidate
// belongs to the run gets its rank and an ai:<reason> tag. It returns how
// many updates were applied.
func (s *Store) ApplyRanking(ctx context.Context, runID string, updates []RankUpdate) (int, error) {
	byID := make(map[string]RankUpdate, len(updates))
	for _, u := range updates {
		if _, dup := byID[u.CandidateID]; !dup {
			byID[u.CandidateID] = u
		}
	}

	applied := 0
	err := s.withTx(ctx, func(q querier) error {
		rows, err := queryBuilt(ctx, q, s.sb.Select("id", "reasons", "ai_rank").From("candidates").Where(sq.Eq{"run_id": runID}))
		if err != nil {
			return fmt.Errorf("load run candidates: %w", err)
		}
		type current struct {
			id      string
			reasons Reasons
			ranked  bool
		}
		var existing []current
		for rows.Next() {
			var (
				c    current
				rank sql.NullInt64
			)
			if err := rows.Scan(&c.id, &c.reasons, &rank); err != nil {
				rows.Close()
				return fmt.Errorf("scan candidate: %w", err)
			}
			c.ranked = rank.Valid
			existing = append(existing, c)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return err
		}

		now := s.now()
		for _, c := range existing {
			reasons := c.reasons.WithoutPrefix(aiReasonPrefix)
			u, ok := byID[c.id]
			if !ok && !c.ranked && len(reasons) == len(c.reasons) {
				continue
			}
			var rank any
			if ok {
				reasons = append(reasons, aiReasonPrefix+u.Reason)
				rank = u.Rank
				applied++
			}
			if _, err := execBuilt(ctx, q, s.sb.Update("candidates").
				Set("ai_rank", rank).
				Set("reasons", reasons).
				Set("updated_at", now).
				Where(sq.Eq{"id": c.id})); err != nil {
				return fmt.Errorf("rank candidate %s: %w", c.id, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}
