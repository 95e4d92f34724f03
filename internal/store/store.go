// Package store is the PostgreSQL persistence layer: postings, the
// known-keys dedup index, notification records, run summaries and the
// keyword/feed configuration tables.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/miyazaki-CS/bidding-system/internal/model"
)

// Store wraps the pgx pool. All writes are idempotent by dedup key so
// overlapping runs (scheduled + manual) stay safe.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a Store over an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// MarkSeen inserts key into the known-keys index. Returns true when the key
// was unseen; inserting an already-known key is a no-op, not an error.
func (s *Store) MarkSeen(ctx context.Context, key string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO known_keys (dedup_key) VALUES ($1)
		 ON CONFLICT (dedup_key) DO NOTHING`,
		key,
	)
	if err != nil {
		return false, fmt.Errorf("insert known key: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// InsertPosting persists a scored posting. Conflicts on dedup_key are
// ignored — postings are immutable after scoring.
func (s *Store) InsertPosting(ctx context.Context, sp model.ScoredPosting) error {
	raw, err := json.Marshal(sp.Raw)
	if err != nil {
		return fmt.Errorf("marshal raw fields: %w", err)
	}
	matched, err := json.Marshal(sp.MatchedKeywords)
	if err != nil {
		return fmt.Errorf("marshal matched keywords: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO postings
		   (dedup_key, source_id, external_id, title, body, organization, region,
		    budget_amount, published_at, deadline_at, source_url, raw_fields,
		    score, matched_keywords, tier)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb, $13, $14::jsonb, $15)
		 ON CONFLICT (dedup_key) DO NOTHING`,
		sp.DedupKey, sp.SourceID, sp.ExternalID, sp.Title, sp.Body,
		sp.Organization, sp.Region, sp.BudgetAmount, nullableTime(sp.PublishedAt),
		sp.DeadlineAt, sp.SourceURL, string(raw), sp.Score, string(matched), string(sp.Tier),
	)
	if err != nil {
		return fmt.Errorf("insert posting %s: %w", sp.DedupKey, err)
	}
	return nil
}

// InsertNotificationRecord appends one dispatch-attempt audit row.
func (s *Store) InsertNotificationRecord(ctx context.Context, rec model.NotificationRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notification_records (posting_key, channel, attempted_at, status, detail)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.PostingKey, rec.Channel, rec.AttemptedAt, rec.Status, rec.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert notification record: %w", err)
	}
	return nil
}

// InsertRunSummary persists the run's terminal summary.
func (s *Store) InsertRunSummary(ctx context.Context, sum model.RunSummary) error {
	detail, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO run_summaries (run_id, stage, test_mode, started_at, finished_at, detail)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		 ON CONFLICT (run_id) DO NOTHING`,
		sum.RunID, sum.Stage, sum.TestMode, sum.StartedAt, sum.FinishedAt, string(detail),
	)
	if err != nil {
		return fmt.Errorf("insert run summary: %w", err)
	}
	return nil
}

// LoadKeywords fetches all active filter keywords, include and exclude.
func (s *Store) LoadKeywords(ctx context.Context) ([]model.Keyword, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT term, category, weight FROM filter_keywords WHERE active = true ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query filter_keywords: %w", err)
	}
	defer rows.Close()

	var keywords []model.Keyword
	for rows.Next() {
		var k model.Keyword
		if err := rows.Scan(&k.Term, &k.Category, &k.Weight); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		keywords = append(keywords, k)
	}
	return keywords, rows.Err()
}

// LoadFeeds fetches all active RSS feed sources.
func (s *Store) LoadFeeds(ctx context.Context) ([]model.FeedSource, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, url, kind FROM feed_sources WHERE active = true ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query feed_sources: %w", err)
	}
	defer rows.Close()

	var feeds []model.FeedSource
	for rows.Next() {
		var f model.FeedSource
		if err := rows.Scan(&f.Name, &f.URL, &f.Kind); err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

// PostingRow is one row of the dashboard export.
type PostingRow struct {
	model.ScoredPosting
	CreatedAt time.Time
}

// ExportPostings returns every stored posting, newest first, for the
// read-only dashboard projection.
func (s *Store) ExportPostings(ctx context.Context, limit int) ([]PostingRow, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT dedup_key, source_id, external_id, title, organization, region,
		        budget_amount, published_at, deadline_at, source_url,
		        score, matched_keywords, tier, created_at
		 FROM postings
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query postings: %w", err)
	}
	defer rows.Close()

	var out []PostingRow
	for rows.Next() {
		var r PostingRow
		var publishedAt *time.Time
		var matched []byte
		if err := rows.Scan(
			&r.DedupKey, &r.SourceID, &r.ExternalID, &r.Title, &r.Organization,
			&r.Region, &r.BudgetAmount, &publishedAt, &r.DeadlineAt, &r.SourceURL,
			&r.Score, &matched, &r.Tier, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan posting: %w", err)
		}
		if publishedAt != nil {
			r.PublishedAt = *publishedAt
		}
		if len(matched) > 0 {
			if err := json.Unmarshal(matched, &r.MatchedKeywords); err != nil {
				return nil, fmt.Errorf("unmarshal matched keywords: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// nullableTime maps the zero time to NULL.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
