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

var sourceColumns = []string{
	"id", "source_id", "name", "type", "url", "enabled", "weight", "preset_slugs", "created_at", "updated_at",
}

// SourcePatch carries the fields an operator may change. Nil fields are left as is.
type SourcePatch struct {
	Name        *string `json:"name,omitempty"`
	Type        *string `json:"type,omitempty"`
	URL         *string `json:"url,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
	Weight      *int    `json:"weight,omitempty"`
	PresetSlugs *string `json:"presetSlugs,omitempty"`
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(r rowScanner) (Source, error) {
	var (
		src   Source
		slugs sql.NullString
	)
	if err := r.Scan(&src.ID, &src.SourceID, &src.Name, &src.Type, &src.URL, &src.Enabled, &src.Weight, &slugs, &src.CreatedAt, &src.UpdatedAt); err != nil {
		return Source{}, err
	}
	src.PresetSlugs = slugs.String
	return src, nil
}

// ListSources returns every source, highest weight first, then by name.
func (s *Store) ListSources(ctx context.Context) ([]Source, error) {
	return s.listSources(ctx, nil)
}

// ListEnabledSources is ListSources restricted to enabled sources. The order
// decides which source wins when two feeds carry the same URL.
func (s *Store) ListEnabledSources(ctx context.Context) ([]Source, error) {
	return s.listSources(ctx, sq.Eq{"enabled": true})
}

func (s *Store) listSources(ctx context.Context, where sq.Sqlizer) ([]Source, error) {
	b := s.sb.Select(sourceColumns...).From("sources").OrderBy("weight DESC", "name ASC")
	if where != nil {
		b = b.Where(where)
	}
	rows, err := queryBuilt(ctx, s.db, b)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func (s *Store) GetSource(ctx context.Context, id string) (*Source, error) {
	row, err := queryRowBuilt(ctx, s.db, s.sb.Select(sourceColumns...).From("sources").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get source %s: %w", id, err)
	}
	return &src, nil
}

func (s *Store) CreateSource(ctx context.Context, src *Source) error {
	if err := validateSource(src); err != nil {
		return err
	}
	now := s.now()
	src.ID = uuid.NewString()
	src.CreatedAt, src.UpdatedAt = now, now

	_, err := execBuilt(ctx, s.db, s.sb.Insert("sources").
		Columns(sourceColumns...).
		Values(src.ID, src.SourceID, src.Name, src.Type, src.URL, src.Enabled, src.Weight, nullString(src.PresetSlugs), now, now))
	if err != nil {
		return fmt.Errorf("create source %s: %w", src.SourceID, err)
	}
	return nil
}

// UpsertSource creates the source or overwrites the one with the same
// external id. src.ID is set to the stored id.
func (s *Store) UpsertSource(ctx context.Context, src *Source) error {
	if err := validateSource(src); err != nil {
		return err
	}
	now := s.now()
	_, err := execBuilt(ctx, s.db, s.sb.Insert("sources").
		Columns(sourceColumns...).
		Values(uuid.NewString(), src.SourceID, src.Name, src.Type, src.URL, src.Enabled, src.Weight, nullString(src.PresetSlugs), now, now).
		Suffix(`ON CONFLICT (source_id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			url = excluded.url,
			enabled = excluded.enabled,
			weight = excluded.weight,
			preset_slugs = excluded.preset_slugs,
			updated_at = excluded.updated_at`))
	if err != nil {
		return fmt.Errorf("upsert source %s: %w", src.SourceID, err)
	}

	row, err := queryRowBuilt(ctx, s.db, s.sb.Select(sourceColumns...).From("sources").Where(sq.Eq{"source_id": src.SourceID}))
	if err != nil {
		return err
	}
	stored, err := scanSource(row)
	if err != nil {
		return fmt.Errorf("reload source %s: %w", src.SourceID, err)
	}
	*src = stored
	return nil
}

func (s *Store) UpdateSource(ctx context.Context, id string, p SourcePatch) (*Source, error) {
	b := s.sb.Update("sources").Where(sq.Eq{"id": id}).Set("updated_at", s.now())
	if p.Name != nil {
		b = b.Set("name", strings.TrimSpace(*p.Name))
	}
	if p.Type != nil {
		if !validSourceType(*p.Type) {
			return nil, fmt.Errorf("%w: source type %q", ErrInvalid, *p.Type)
		}
		b = b.Set("type", *p.Type)
	}
	if p.URL != nil {
		b = b.Set("url", strings.TrimSpace(*p.URL))
	}
	if p.Enabled != nil {
		b = b.Set("enabled", *p.Enabled)
	}
	if p.Weight != nil {
		if *p.Weight < 0 || *p.Weight > 10 {
			return nil, fmt.Errorf("%w: weight %d out of range 0-10", ErrInvalid, *p.Weight)
		}
		b = b.Set("weight", *p.Weight)
	}
	if p.PresetSlugs != nil {
		b = b.Set("preset_slugs", nullString(strings.TrimSpace(*p.PresetSlugs)))
	}

	res, err := execBuilt(ctx, s.db, b)
	if err != nil {
		return nil, fmt.Errorf("update source %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	return s.GetSource(ctx, id)
}

// DeleteSource removes a source. Sources that already own items cannot be
// deleted; disable them instead.
func (s *Store) DeleteSource(ctx context.Context, id string) error {
	row, err := queryRowBuilt(ctx, s.db, s.sb.Select("COUNT(*)").From("items").Where(sq.Eq{"source_id": id}))
	if err != nil {
		return err
	}
	var owned int
	if err := row.Scan(&owned); err != nil {
		return fmt.Errorf("count items of source %s: %w", id, err)
	}
	if owned > 0 {
		return fmt.Errorf("source %s owns %d items, disable it instead: %w", id, owned, ErrInUse)
	}

	res, err := execBuilt(ctx, s.db, s.sb.Delete("sources").Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("delete source %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	return nil
}

func validateSource(src *Source) error {
	src.SourceID = strings.TrimSpace(src.SourceID)
	src.Name = strings.TrimSpace(src.Name)
	src.URL = strings.TrimSpace(src.URL)
	src.PresetSlugs = strings.TrimSpace(src.PresetSlugs)
	if src.Type == "" {
		src.Type = "rss"
	}
	switch {
	case src.SourceID == "":
		return fmt.Errorf("%w: source id is required", ErrInvalid)
	case src.Name == "":
		return fmt.Errorf("%w: source name is required", ErrInvalid)
	case src.URL == "":
		return fmt.Errorf("%w: source url is required", ErrInvalid)
	case !validSourceType(src.Type):
		return fmt.Errorf("%w: source type %q", ErrInvalid, src.Type)
	case src.Weight < 0 || src.Weight > 10:
		return fmt.Errorf("%w: weight %d out of range 0-10", ErrInvalid, src.Weight)
	}
	return nil
}

func validSourceType(t string) bool {
	return t == "rss" || t == "html"
}
