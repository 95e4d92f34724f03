// Package model defines shared data structures for the bidding collector.
package model

import "time"

// Posting is a single tender notice normalised from a source feed.
// Postings are immutable once scored; re-collection of the same notice is
// suppressed by the dedup key, never by mutation.
type Posting struct {
	SourceID     string            `json:"sourceId"`
	ExternalID   string            `json:"externalId,omitempty"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	Organization string            `json:"organization,omitempty"`
	Region       string            `json:"region,omitempty"`
	BudgetAmount *int64            `json:"budgetAmount,omitempty"`
	PublishedAt  time.Time         `json:"publishedAt"`
	DeadlineAt   *time.Time        `json:"deadlineAt,omitempty"`
	SourceURL    string            `json:"sourceUrl,omitempty"`
	Raw          map[string]string `json:"raw,omitempty"` // source-specific fields, opaque downstream
}

// Tier is the priority bucket derived from the relevance score.
type Tier string

const (
	TierHigh   Tier = "HIGH"
	TierMedium Tier = "MEDIUM"
	TierLow    Tier = "LOW"
	TierNone   Tier = "NONE"
)

// ScoredPosting is a Posting plus the scoring outcome. The score is stable
// for a given posting, keyword configuration and run start time.
type ScoredPosting struct {
	Posting
	DedupKey        string   `json:"dedupKey"`
	Score           int      `json:"score"`
	MatchedKeywords []string `json:"matchedKeywords,omitempty"`
	Tier            Tier     `json:"tier"`
}

// Notification statuses mirror the notification_records.status column.
const (
	NotifySent    = "SENT"
	NotifyFailed  = "FAILED"
	NotifySkipped = "SKIPPED"
)

// NotificationRecord is the audit row for one dispatch attempt.
type NotificationRecord struct {
	PostingKey  string    `json:"postingKey"`
	Channel     string    `json:"channel"`
	AttemptedAt time.Time `json:"attemptedAt"`
	Status      string    `json:"status"`
	Detail      string    `json:"detail,omitempty"` // error text or skip reason
}

// Keyword is one row of the filter_keywords table.
// Category is either "include" (scored) or "exclude" (discards the posting).
type Keyword struct {
	Term     string
	Category string
	Weight   int
}

// FeedSource is one row of the feed_sources table — a municipal or agency
// RSS/Atom feed polled on every run.
type FeedSource struct {
	Name string
	URL  string
	Kind string // "agency", "government", "ministry", "prefecture"
}

// SourceReport records how a single source behaved during collection.
type SourceReport struct {
	Source    string `json:"source"`
	Collected int    `json:"collected"`
	Malformed int    `json:"malformed"`
	Err       string `json:"error,omitempty"`
}

// RunSummary aggregates per-stage counts for one pipeline run.
type RunSummary struct {
	RunID      string         `json:"runId"`
	Stage      string         `json:"stage"` // terminal stage: DONE or FAILED
	FailReason string         `json:"failReason,omitempty"`
	TestMode   bool           `json:"testMode"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Sources    []SourceReport `json:"sources,omitempty"`
	Collected  int            `json:"collected"`
	Malformed  int            `json:"malformed"`
	Duplicates int            `json:"duplicates"`
	Excluded   int            `json:"excluded"`
	Scored     int            `json:"scored"`
	HighTier   int            `json:"highTier"`
	MediumTier int            `json:"mediumTier"`
	LowTier    int            `json:"lowTier"`
	Sent       int            `json:"sent"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped"`
	Persisted  int            `json:"persisted"`
}
