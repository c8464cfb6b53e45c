package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var itemColumns = []string{
	"id", "url", "title", "published_at", "summary", "content_text", "hash", "source_id", "fetched_at", "created_at", "updated_at",
}

func scanItem(r rowScanner) (Item, error) {
	var (
		it        Item
		published sql.NullTime
		summary   sql.NullString
		content   sql.NullString
	)
	if err := r.Scan(&it.ID, &it.URL, &it.Title, &published, &summary, &content, &it.Hash, &it.SourceID, &it.FetchedAt, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return Item{}, err
	}
	it.PublishedAt = timePtr(published)
	it.Summary = summary.String
	it.ContentText = content.String
	return it, nil
}

// FindItemIDsByURL maps each already stored URL to its item id.
func (s *Store) FindItemIDsByURL(ctx context.Context, urls []string) (map[string]string, error) {
	out := make(map[string]string, len(urls))
	for _, chunk := range chunkStrings(urls, batchSize) {
		rows, err := queryBuilt(ctx, s.db, s.sb.Select("url", "id").From("items").Where(sq.Eq{"url": chunk}))
		if err != nil {
			return nil, fmt.Errorf("find items by url: %w", err)
		}
		for rows.Next() {
			var url, id string
			if err := rows.Scan(&url, &id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan item id: %w", err)
			}
			out[url] = id
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CreateItems inserts items in batches and silently skips URLs that already
// exist. Ids, hashes and timestamps are filled in when missing. It returns
// the number of rows actually inserted.
func (s *Store) CreateItems(ctx context.Context, items []Item) (int, error) {
	var inserted int
	now := s.now()
	for start := 0; start < len(items); start += batchSize {
		end := min(start+batchSize, len(items))
		b := s.sb.Insert("items").Columns(itemColumns...)
		for i := start; i < end; i++ {
			it := &items[i]
			if it.ID == "" {
				it.ID = uuid.NewString()
			}
			if it.Hash == "" {
				it.Hash = ContentHash(it.Title, it.URL)
			}
			if it.FetchedAt.IsZero() {
				it.FetchedAt = now
			}
			b = b.Values(it.ID, it.URL, it.Title, nullTime(it.PublishedAt), nullString(it.Summary), nullString(it.ContentText),
				it.Hash, it.SourceID, it.FetchedAt.UTC(), now, now)
		}
		res, err := execBuilt(ctx, s.db, b.Suffix("ON CONFLICT (url) DO NOTHING"))
		if err != nil {
			return inserted, fmt.Errorf("create items: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	return inserted, nil
}

// UpdateItemByURL refreshes the mutable fields of a stored item and
// recomputes its hash. The owning source is left unchanged.
func (s *Store) UpdateItemByURL(ctx context.Context, it Item) error {
	b := s.sb.Update("items").
		Set("title", it.Title).
		Set("summary", nullString(it.Summary)).
		Set("content_text", nullString(it.ContentText)).
		Set("hash", ContentHash(it.Title, it.URL)).
		Set("updated_at", s.now()).
		Where(sq.Eq{"url": it.URL})
	if it.PublishedAt != nil {
		b = b.Set("published_at", nullTime(it.PublishedAt))
	}
	if !it.FetchedAt.IsZero() {
		b = b.Set("fetched_at", it.FetchedAt.UTC())
	}
	res, err := execBuilt(ctx, s.db, b)
	if err != nil {
		return fmt.Errorf("update item %s: %w", it.URL, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("item %s: %w", it.URL, ErrNotFound)
	}
	return nil
}

// ItemsByURL loads stored items keyed by URL.
func (s *Store) ItemsByURL(ctx context.Context, urls []string) (map[string]Item, error) {
	out := make(map[string]Item, len(urls))
	for _, chunk := range chunkStrings(urls, batchSize) {
		rows, err := queryBuilt(ctx, s.db, s.sb.Select(itemColumns...).From("items").Where(sq.Eq{"url": chunk}))
		if err != nil {
			return nil, fmt.Errorf("load items by url: %w", err)
		}
		for rows.Next() {
			it, err := scanItem(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan item: %w", err)
			}
			out[it.URL] = it
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) GetItem(ctx context.Context, id string) (*Item, error) {
	row, err := queryRowBuilt(ctx, s.db, s.sb.Select(itemColumns...).From("items").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return &it, nil
}
