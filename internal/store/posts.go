package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/JakeFAU/realtime-feeds/internal/feeds"
)

// Fresh observations replace the mutable fields; id and identity key are
// fixed by the conflict target.
const upsertPostSQL = `INSERT INTO posts (
	id, source_id, identity_key, title, link, date, excerpt, fetched_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	title = excluded.title,
	link = excluded.link,
	date = excluded.date,
	excerpt = excluded.excerpt,
	fetched_at = excluded.fetched_at`

const selectPostsSQL = `SELECT id, source_id, identity_key, title, link, date, excerpt, fetched_at FROM posts`

// UpsertPosts writes posts in batched transactions. Each batch commits
// atomically; an error aborts the remaining batches.
func (s *Store) UpsertPosts(ctx context.Context, posts []feeds.Post) error {
	for start := 0; start < len(posts); start += s.batchSize {
		batch := posts[start:min(start+s.batchSize, len(posts))]
		err := s.inTx(ctx, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, upsertPostSQL)
			if err != nil {
				return fmt.Errorf("prepare: %w", err)
			}
			defer stmt.Close()
			for _, p := range batch {
				if _, err := stmt.ExecContext(ctx,
					p.ID, p.SourceID, p.IdentityKey, p.Title, p.Link,
					formatTime(p.Date), p.Excerpt, formatTime(p.FetchedAt),
				); err != nil {
					return fmt.Errorf("upsert post %s: %w", p.ID, err)
				}
			}
			return nil
		})
		if err != nil {
			return wrap("upsert posts", err)
		}
	}
	return nil
}

// Posts returns every stored post, newest first, ties broken by id.
func (s *Store) Posts(ctx context.Context) ([]feeds.Post, error) {
	rows, err := s.db.QueryContext(ctx, selectPostsSQL+` ORDER BY date DESC, id ASC`)
	if err != nil {
		return nil, wrap("list posts", err)
	}
	defer rows.Close()

	var out []feeds.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, wrap("list posts", err)
		}
		out = append(out, p)
	}
	return out, wrap("list posts", rows.Err())
}

// Snapshot returns every stored post keyed by lookup key.
func (s *Store) Snapshot(ctx context.Context) (feeds.Snapshot, error) {
	posts, err := s.Posts(ctx)
	if err != nil {
		return nil, err
	}
	snap := make(feeds.Snapshot, len(posts))
	for _, p := range posts {
		snap[p.LookupKey()] = p
	}
	return snap, nil
}

// CountPosts reports the number of stored posts.
func (s *Store) CountPosts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n); err != nil {
		return 0, wrap("count posts", err)
	}
	return n, nil
}

func scanPost(rows *sql.Rows) (feeds.Post, error) {
	var (
		p               feeds.Post
		date, fetchedAt string
	)
	if err := rows.Scan(&p.ID, &p.SourceID, &p.IdentityKey, &p.Title, &p.Link, &date, &p.Excerpt, &fetchedAt); err != nil {
		return feeds.Post{}, fmt.Errorf("scan post: %w", err)
	}
	var err error
	if p.Date, err = parseTime(date); err != nil {
		return feeds.Post{}, fmt.Errorf("parse date of %s: %w", p.ID, err)
	}
	if p.FetchedAt, err = parseTime(fetchedAt); err != nil {
		return feeds.Post{}, fmt.Errorf("parse fetched_at of %s: %w", p.ID, err)
	}
	return p, nil
}
