package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/JakeFAU/realtime-feeds/internal/feeds"
)

// FeedStatus is a source's most recent fetch-log row with its registry name
// and URL.
type FeedStatus struct {
	Log  feeds.FetchLogRow
	Name string
	URL  string
}

// AppendFetchLog inserts one row per source for this run. Rows are never
// updated.
func (s *Store) AppendFetchLog(ctx context.Context, rows []feeds.FetchLogRow) error {
	for start := 0; start < len(rows); start += s.batchSize {
		batch := rows[start:min(start+s.batchSize, len(rows))]
		err := s.inTx(ctx, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, `INSERT INTO fetch_log
				(source_id, status, post_count, latency_ms, error, fetched_at)
				VALUES (?, ?, ?, ?, ?, ?)`)
			if err != nil {
				return fmt.Errorf("prepare: %w", err)
			}
			defer stmt.Close()
			for _, r := range batch {
				var errText sql.NullString
				if r.Error != nil {
					errText = sql.NullString{String: *r.Error, Valid: true}
				}
				if _, err := stmt.ExecContext(ctx,
					r.SourceID, string(r.Status), r.PostCount, r.LatencyMs, errText, formatTime(r.FetchedAt),
				); err != nil {
					return fmt.Errorf("insert fetch log for %s: %w", r.SourceID, err)
				}
			}
			return nil
		})
		if err != nil {
			return wrap("append fetch log", err)
		}
	}
	return nil
}

// LatestStatus returns the newest fetch-log row of every source that has
// one, ordered by source id.
func (s *Store) LatestStatus(ctx context.Context) ([]FeedStatus, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT f.source_id, f.status, f.post_count, f.latency_ms,
			f.error, f.fetched_at, COALESCE(s.name, ''), COALESCE(s.url, '')
		FROM fetch_log f
		JOIN (SELECT source_id, MAX(id) AS id FROM fetch_log GROUP BY source_id) latest
			ON latest.id = f.id
		LEFT JOIN sources s ON s.id = f.source_id
		ORDER BY f.source_id`)
	if err != nil {
		return nil, wrap("latest status", err)
	}
	defer rows.Close()

	var out []FeedStatus
	for rows.Next() {
		var (
			st        FeedStatus
			status    string
			errText   sql.NullString
			fetchedAt string
		)
		if err := rows.Scan(&st.Log.SourceID, &status, &st.Log.PostCount, &st.Log.LatencyMs,
			&errText, &fetchedAt, &st.Name, &st.URL); err != nil {
			return nil, wrap("latest status", err)
		}
		st.Log.Status = feeds.FetchStatus(status)
		if errText.Valid {
			msg := errText.String
			st.Log.Error = &msg
		}
		if st.Log.FetchedAt, err = parseTime(fetchedAt); err != nil {
			return nil, wrap("latest status", fmt.Errorf("parse fetched_at: %w", err))
		}
		out = append(out, st)
	}
	return out, wrap("latest status", rows.Err())
}
