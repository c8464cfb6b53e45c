package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

const settingsRowID = "singleton"

var presetColumns = []string{
	"id", "slug", "name", "description", "enabled", "default_ai_top_n", "created_at", "updated_at",
}

func scanPreset(r rowScanner) (Preset, error) {
	var (
		p    Preset
		desc sql.NullString
	)
	if err := r.Scan(&p.ID, &p.Slug, &p.Name, &desc, &p.Enabled, &p.DefaultAITopN, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Preset{}, err
	}
	p.Description = desc.String
	return p, nil
}

// ListPresets returns presets ordered by name. enabledOnly hides disabled ones.
func (s *Store) ListPresets(ctx context.Context, enabledOnly bool) ([]Preset, error) {
	b := s.sb.Select(presetColumns...).From("topic_presets").OrderBy("name ASC")
	if enabledOnly {
		b = b.Where(sq.Eq{"enabled": true})
	}
	rows, err := queryBuilt(ctx, s.db, b)
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	defer rows.Close()

	var out []Preset
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan preset: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetPreset(ctx context.Context, id string) (*Preset, error) {
	return s.getPreset(ctx, sq.Eq{"id": id}, id)
}

func (s *Store) GetPresetBySlug(ctx context.Context, slug string) (*Preset, error) {
	return s.getPreset(ctx, sq.Eq{"slug": slug}, slug)
}

func (s *Store) getPreset(ctx context.Context, where sq.Eq, key string) (*Preset, error) {
	row, err := queryRowBuilt(ctx, s.db, s.sb.Select(presetColumns...).From("topic_presets").Where(where))
	if err != nil {
		return nil, err
	}
	p, err := scanPreset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("preset %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get preset %s: %w", key, err)
	}
	return &p, nil
}

// ListKeywords returns the keyword rows of a preset in declaration order.
func (s *Store) ListKeywords(ctx context.Context, presetID string) ([]Keyword, error) {
	rows, err := queryBuilt(ctx, s.db, s.sb.
		Select("id", "preset_id", "kw_group", "term", "weight", "sort_order").
		From("topic_keywords").
		Where(sq.Eq{"preset_id": presetID}).
		OrderBy("sort_order ASC", "term ASC"))
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	defer rows.Close()

	var out []Keyword
	for rows.Next() {
		var k Keyword
		if err := rows.Scan(&k.ID, &k.PresetID, &k.Group, &k.Term, &k.Weight, &k.Position); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// UpsertPreset stores a preset by slug and upserts its keywords on
// (preset, group, term). Keywords not listed are kept. p.ID is set to the
// stored id.
func (s *Store) UpsertPreset(ctx context.Context, p *Preset, keywords []Keyword) error {
	p.Slug = strings.TrimSpace(p.Slug)
	if p.Slug == "" || strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: preset slug and name are required", ErrInvalid)
	}

	return s.withTx(ctx, func(q querier) error {
		now := s.now()
		_, err := execBuilt(ctx, q, s.sb.Insert("topic_presets").
			Columns(presetColumns...).
			Values(uuid.NewString(), p.Slug, p.Name, nullString(p.Description), p.Enabled, p.DefaultAITopN, now, now).
			Suffix(`ON CONFLICT (slug) DO UPDATE SET
				name = excluded.name,
				description = excluded.description,
				enabled = excluded.enabled,
				default_ai_top_n = excluded.default_ai_top_n,
				updated_at = excluded.updated_at`))
		if err != nil {
			return fmt.Errorf("upsert preset %s: %w", p.Slug, err)
		}

		row, err := queryRowBuilt(ctx, q, s.sb.Select(presetColumns...).From("topic_presets").Where(sq.Eq{"slug": p.Slug}))
		if err != nil {
			return err
		}
		stored, err := scanPreset(row)
		if err != nil {
			return fmt.Errorf("reload preset %s: %w", p.Slug, err)
		}
		*p = stored

		for i := 0; i < len(keywords); i += batchSize {
			end := min(i+batchSize, len(keywords))
			b := s.sb.Insert("topic_keywords").Columns("id", "preset_id", "kw_group", "term", "weight", "sort_order")
			for _, k := range keywords[i:end] {
				b = b.Values(uuid.NewString(), p.ID, k.Group, k.Term, k.Weight, k.Position)
			}
			_, err := execBuilt(ctx, q, b.Suffix(`ON CONFLICT (preset_id, kw_group, term) DO UPDATE SET
				weight = excluded.weight,
				sort_order = excluded.sort_order`))
			if err != nil {
				return fmt.Errorf("upsert keywords of %s: %w", p.Slug, err)
			}
		}
		return nil
	})
}

// ActivePresetID returns the preset selected in settings, or "" when none is.
func (s *Store) ActivePresetID(ctx context.Context) (string, error) {
	row, err := queryRowBuilt(ctx, s.db, s.sb.Select("active_preset_id").From("app_settings").Where(sq.Eq{"id": settingsRowID}))
	if err != nil {
		return "", err
	}
	var id sql.NullString
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("read active preset: %w", err)
	}
	return id.String, nil
}

// SetActivePresetID selects the preset used when a run names none. An empty
// id clears the selection.
func (s *Store) SetActivePresetID(ctx context.Context, presetID string) error {
	if presetID != "" {
		if _, err := s.GetPreset(ctx, presetID); err != nil {
			return err
		}
	}
	_, err := execBuilt(ctx, s.db, s.sb.Insert("app_settings").
		Columns("id", "active_preset_id", "updated_at").
		Values(settingsRowID, nullString(presetID), s.now()).
		Suffix("ON CONFLICT (id) DO UPDATE SET active_preset_id = excluded.active_preset_id, updated_at = excluded.updated_at"))
	if err != nil {
		return fmt.Errorf("set active preset: %w", err)
	}
	return nil
}

// SetJudgment records the rule-violation verdict of an item.
func (s *Store) SetJudgment(ctx context.Context, j Judgment) (*Judgment, error) {
	if j.Verdict != VerdictOK && j.Verdict != VerdictViolation {
		return nil, fmt.Errorf("%w: verdict %q", ErrInvalid, j.Verdict)
	}
	if _, err := s.GetItem(ctx, j.ItemID); err != nil {
		return nil, err
	}
	j.UpdatedAt = s.now()
	_, err := execBuilt(ctx, s.db, s.sb.Insert("judgments").
		Columns("item_id", "verdict", "notes", "updated_at").
		Values(j.ItemID, j.Verdict, nullString(j.Notes), j.UpdatedAt).
		Suffix("ON CONFLICT (item_id) DO UPDATE SET verdict = excluded.verdict, notes = excluded.notes, updated_at = excluded.updated_at"))
	if err != nil {
		return nil, fmt.Errorf("set judgment for %s: %w", j.ItemID, err)
	}
	return &j, nil
}
