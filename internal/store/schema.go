package store

import (
	"context"
	"fmt"
	"log"

	"github.com/miyazaki-CS/bidding-system/internal/model"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS known_keys (
		dedup_key     TEXT PRIMARY KEY,
		first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS postings (
		dedup_key        TEXT PRIMARY KEY,
		source_id        TEXT NOT NULL,
		external_id      TEXT NOT NULL DEFAULT '',
		title            TEXT NOT NULL,
		body             TEXT NOT NULL DEFAULT '',
		organization     TEXT NOT NULL DEFAULT '',
		region           TEXT NOT NULL DEFAULT '',
		budget_amount    BIGINT,
		published_at     TIMESTAMPTZ,
		deadline_at      TIMESTAMPTZ,
		source_url       TEXT NOT NULL DEFAULT '',
		raw_fields       JSONB,
		score            INT NOT NULL DEFAULT 0,
		matched_keywords JSONB,
		tier             TEXT NOT NULL DEFAULT 'NONE',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_postings_created_at ON postings (created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_postings_score ON postings (score DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_postings_tier ON postings (tier)`,
	`CREATE TABLE IF NOT EXISTS notification_records (
		id           BIGSERIAL PRIMARY KEY,
		posting_key  TEXT NOT NULL,
		channel      TEXT NOT NULL,
		attempted_at TIMESTAMPTZ NOT NULL,
		status       TEXT NOT NULL,
		detail       TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS run_summaries (
		run_id      TEXT PRIMARY KEY,
		stage       TEXT NOT NULL,
		test_mode   BOOLEAN NOT NULL DEFAULT false,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		detail      JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS filter_keywords (
		id       SERIAL PRIMARY KEY,
		term     TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT 'include',
		weight   INT NOT NULL DEFAULT 1,
		active   BOOLEAN NOT NULL DEFAULT true,
		UNIQUE (term, category)
	)`,
	`CREATE TABLE IF NOT EXISTS feed_sources (
		id     SERIAL PRIMARY KEY,
		name   TEXT NOT NULL UNIQUE,
		url    TEXT NOT NULL,
		kind   TEXT NOT NULL DEFAULT 'agency',
		active BOOLEAN NOT NULL DEFAULT true
	)`,
}

// defaultKeywords seed filter_keywords on an empty database. They can be
// edited in place afterwards; the seed never overwrites existing rows.
var defaultKeywords = []model.Keyword{
	{Term: "データ入力", Category: "include", Weight: 2},
	{Term: "入力作業", Category: "include", Weight: 1},
	{Term: "キッティング", Category: "include", Weight: 2},
	{Term: "PC設定", Category: "include", Weight: 1},
	{Term: "コールセンター", Category: "include", Weight: 2},
	{Term: "電話受付", Category: "include", Weight: 1},
	{Term: "事務業務", Category: "include", Weight: 1},
	{Term: "システム構築", Category: "include", Weight: 1},
	{Term: "建設工事", Category: "exclude", Weight: 1},
	{Term: "土木工事", Category: "exclude", Weight: 1},
	{Term: "解体工事", Category: "exclude", Weight: 1},
}

// defaultFeeds seed feed_sources on an empty database.
var defaultFeeds = []model.FeedSource{
	{Name: "中小機構本部", URL: "https://www.smrj.go.jp/org/info/bid/info_bid.xml", Kind: "agency"},
	{Name: "中小機構関東", URL: "https://www.smrj.go.jp/regional_hq/kanto/bid/info_bid.xml", Kind: "agency"},
	{Name: "中小機構九州", URL: "https://www.smrj.go.jp/regional_hq/kyushu/bid/info_bid.xml", Kind: "agency"},
	{Name: "国土地理院物品サービス", URL: "https://www.gsi.go.jp/nyusatu1.rdf", Kind: "government"},
	{Name: "国土地理院測量調査", URL: "https://www.gsi.go.jp/nyusatu2.rdf", Kind: "government"},
	{Name: "産業技術総合研究所", URL: "https://www.aist.go.jp/aist_j/procure/supplyinfo/pub/feed/rss.xml", Kind: "research"},
	{Name: "東京都報道発表", URL: "https://www.metro.tokyo.lg.jp/tosei/hodohappyo/press/rss.xml", Kind: "prefecture"},
	{Name: "大阪府報道発表", URL: "https://www.pref.osaka.lg.jp/rss/event.xml", Kind: "prefecture"},
}

// EnsureSchema creates all tables and seeds keyword/feed defaults when their
// tables are empty. Safe to call on every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}

	if err := s.seedKeywords(ctx); err != nil {
		return err
	}
	return s.seedFeeds(ctx)
}

func (s *Store) seedKeywords(ctx context.Context) error {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM filter_keywords`).Scan(&count); err != nil {
		return fmt.Errorf("count filter_keywords: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, k := range defaultKeywords {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO filter_keywords (term, category, weight)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (term, category) DO NOTHING`,
			k.Term, k.Category, k.Weight,
		)
		if err != nil {
			return fmt.Errorf("seed keyword %q: %w", k.Term, err)
		}
	}
	log.Printf("[store] Seeded %d default filter keywords", len(defaultKeywords))
	return nil
}

func (s *Store) seedFeeds(ctx context.Context) error {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM feed_sources`).Scan(&count); err != nil {
		return fmt.Errorf("count feed_sources: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, f := range defaultFeeds {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO feed_sources (name, url, kind)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (name) DO NOTHING`,
			f.Name, f.URL, f.Kind,
		)
		if err != nil {
			return fmt.Errorf("seed feed %q: %w", f.Name, err)
		}
	}
	log.Printf("[store] Seeded %d default feed sources", len(defaultFeeds))
	return nil
}
