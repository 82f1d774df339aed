package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JakeFAU/realtime-feeds/internal/feeds"
)

const upsertSourceSQL = `INSERT INTO sources (
	id, name, url, feed_url, categories, force_proxy, allow_missing_dates,
	ignore_link_date_inference, allow_link_date_inference, max_items, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	url = excluded.url,
	feed_url = excluded.feed_url,
	categories = excluded.categories,
	force_proxy = excluded.force_proxy,
	allow_missing_dates = excluded.allow_missing_dates,
	ignore_link_date_inference = excluded.ignore_link_date_inference,
	allow_link_date_inference = excluded.allow_link_date_inference,
	max_items = excluded.max_items,
	updated_at = excluded.updated_at`

// UpsertSources inserts or refreshes registry entries keyed by id.
func (s *Store) UpsertSources(ctx context.Context, sources []feeds.Source, at time.Time) error {
	for start := 0; start < len(sources); start += s.batchSize {
		batch := sources[start:min(start+s.batchSize, len(sources))]
		err := s.inTx(ctx, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, upsertSourceSQL)
			if err != nil {
				return fmt.Errorf("prepare: %w", err)
			}
			defer stmt.Close()
			for _, src := range batch {
				cats, err := json.Marshal(nonNil(src.Categories))
				if err != nil {
					return fmt.Errorf("encode categories for %s: %w", src.ID, err)
				}
				if _, err := stmt.ExecContext(ctx,
					src.ID, src.Name, src.URL, src.FeedURL, string(cats),
					boolInt(src.ForceProxy), boolInt(src.AllowMissingDates),
					boolInt(src.IgnoreLinkDateInference), boolInt(src.AllowLinkDateInference),
					src.MaxItems, formatTime(at),
				); err != nil {
					return fmt.Errorf("upsert source %s: %w", src.ID, err)
				}
			}
			return nil
		})
		if err != nil {
			return wrap("upsert sources", err)
		}
	}
	return nil
}

// Sources returns every stored source ordered by id.
func (s *Store) Sources(ctx context.Context) ([]feeds.Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, url, feed_url, categories, force_proxy,
		allow_missing_dates, ignore_link_date_inference, allow_link_date_inference, max_items
		FROM sources ORDER BY id`)
	if err != nil {
		return nil, wrap("list sources", err)
	}
	defer rows.Close()

	var out []feeds.Source
	for rows.Next() {
		var (
			src                                feeds.Source
			cats                               string
			force, missing, ignore, allowInfer int
		)
		if err := rows.Scan(&src.ID, &src.Name, &src.URL, &src.FeedURL, &cats,
			&force, &missing, &ignore, &allowInfer, &src.MaxItems); err != nil {
			return nil, wrap("list sources", err)
		}
		if err := json.Unmarshal([]byte(cats), &src.Categories); err != nil {
			return nil, wrap("list sources", fmt.Errorf("decode categories for %s: %w", src.ID, err))
		}
		src.ForceProxy = force != 0
		src.AllowMissingDates = missing != 0
		src.IgnoreLinkDateInference = ignore != 0
		src.AllowLinkDateInference = allowInfer != 0
		out = append(out, src)
	}
	return out, wrap("list sources", rows.Err())
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
