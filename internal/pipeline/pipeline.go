// Package pipeline drives one collection run through its stages:
// collect → dedup → score → classify → notify → persist.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/miyazaki-CS/bidding-system/internal/collector"
	"github.com/miyazaki-CS/bidding-system/internal/dedup"
	"github.com/miyazaki-CS/bidding-system/internal/model"
	"github.com/miyazaki-CS/bidding-system/internal/notify"
	"github.com/miyazaki-CS/bidding-system/internal/run"
	"github.com/miyazaki-CS/bidding-system/internal/scoring"
)

// ErrRunInFlight is returned when a trigger overlaps an active run in this
// process. Cross-process overlap is harmless — every store write is
// idempotent by dedup key.
var ErrRunInFlight = errors.New("a collection run is already in flight")

// Store is the persistence handle passed into every stage. A store-level
// failure is the only fatal error class: dedup correctness depends on it.
type Store interface {
	MarkSeen(ctx context.Context, key string) (bool, error)
	InsertPosting(ctx context.Context, sp model.ScoredPosting) error
	InsertNotificationRecord(ctx context.Context, rec model.NotificationRecord) error
	InsertRunSummary(ctx context.Context, sum model.RunSummary) error
}

// Events receives the terminal summary of every run (dashboard fan-out).
// Publishing is best-effort and never fails a run.
type Events interface {
	RunCompleted(ctx context.Context, sum model.RunSummary) error
}

// Options configure one run.
type Options struct {
	TestMode bool          // short-circuit notification dispatch
	Deadline time.Duration // collection deadline; 0 means no deadline
}

// Pipeline owns the collaborators shared across runs.
type Pipeline struct {
	store      Store
	sources    []collector.Source
	scorer     *scoring.Scorer
	excludes   []string
	thresholds scoring.Thresholds
	channels   []notify.Channel
	cap        notify.DailyCap
	events     Events // may be nil

	running atomic.Bool
}

// New constructs a Pipeline. keywords carries both categories; the include
// set feeds the scorer and the exclude set the pre-score filter.
func New(
	store Store,
	sources []collector.Source,
	keywords []model.Keyword,
	thresholds scoring.Thresholds,
	channels []notify.Channel,
	cap notify.DailyCap,
	events Events,
) *Pipeline {
	var includes []model.Keyword
	var excludes []string
	for _, k := range keywords {
		if k.Category == "exclude" {
			excludes = append(excludes, k.Term)
		} else {
			includes = append(includes, k)
		}
	}

	return &Pipeline{
		store:      store,
		sources:    sources,
		scorer:     scoring.NewScorer(includes),
		excludes:   excludes,
		thresholds: thresholds,
		channels:   channels,
		cap:        cap,
		events:     events,
	}
}

// Run executes one full pipeline run. At most one run per process executes
// at a time; overlapping triggers get ErrRunInFlight.
//
// Non-fatal errors (a down feed, a malformed record, a refused delivery)
// are isolated, counted into the summary and never abort the run. A store
// failure transitions the run to FAILED; whatever earlier stages persisted
// stays durable, and the next scheduled run starts fresh.
func (p *Pipeline) Run(ctx context.Context, opts Options) (model.RunSummary, error) {
	if !p.running.CompareAndSwap(false, true) {
		return model.RunSummary{}, ErrRunInFlight
	}
	defer p.running.Store(false)

	tracker := run.NewTracker()
	startedAt := time.Now().UTC()
	summary := model.RunSummary{
		RunID:     uuid.NewString(),
		TestMode:  opts.TestMode,
		StartedAt: startedAt,
	}

	log.Printf("[pipeline] Run %s started (testMode=%v, %d sources)",
		summary.RunID, opts.TestMode, len(p.sources))

	// ── COLLECTING ──────────────────────────────────────────────────────────
	// The deadline bounds collection only: already-fetched postings still
	// flow through scoring and persistence.
	collectCtx := ctx
	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		collectCtx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}

	var postings []model.Posting
	for _, result := range collector.CollectAll(collectCtx, p.sources) {
		summary.Sources = append(summary.Sources, result.Report)
		summary.Collected += result.Report.Collected
		summary.Malformed += result.Report.Malformed
		postings = append(postings, result.Postings...)
	}

	// ── DEDUPING ────────────────────────────────────────────────────────────
	if err := tracker.Advance(run.StageDeduping); err != nil {
		return p.fail(ctx, tracker, summary, err)
	}

	deduper := dedup.New(p.store)
	type keyed struct {
		key     string
		posting model.Posting
	}
	var fresh []keyed
	for _, posting := range postings {
		key, isNew, err := deduper.IsNew(ctx, posting)
		if err != nil {
			return p.fail(ctx, tracker, summary, err)
		}
		if !isNew {
			summary.Duplicates++
			continue
		}
		fresh = append(fresh, keyed{key: key, posting: posting})
	}

	// ── SCORING ─────────────────────────────────────────────────────────────
	if err := tracker.Advance(run.StageScoring); err != nil {
		return p.fail(ctx, tracker, summary, err)
	}

	var scored []model.ScoredPosting
	for _, item := range fresh {
		if scoring.ContainsExcludeTerm(item.posting.Title, item.posting.Body, p.excludes) {
			summary.Excluded++
			continue
		}
		score, matched := p.scorer.Score(item.posting, startedAt)
		scored = append(scored, model.ScoredPosting{
			Posting:         item.posting,
			DedupKey:        item.key,
			Score:           score,
			MatchedKeywords: matched,
		})
	}
	summary.Scored = len(scored)

	// ── CLASSIFYING ─────────────────────────────────────────────────────────
	if err := tracker.Advance(run.StageClassifying); err != nil {
		return p.fail(ctx, tracker, summary, err)
	}

	for i := range scored {
		scored[i].Tier = p.thresholds.Tier(scored[i].Score)
		switch scored[i].Tier {
		case model.TierHigh:
			summary.HighTier++
		case model.TierMedium:
			summary.MediumTier++
		case model.TierLow:
			summary.LowTier++
		}
	}

	// ── NOTIFYING ───────────────────────────────────────────────────────────
	if err := tracker.Advance(run.StageNotifying); err != nil {
		return p.fail(ctx, tracker, summary, err)
	}

	router := notify.NewRouter(p.channels, p.cap, opts.TestMode)
	for _, sp := range scored {
		for _, rec := range router.Route(ctx, sp) {
			if err := p.recordAttempt(ctx, rec, &summary); err != nil {
				return p.fail(ctx, tracker, summary, err)
			}
		}
	}
	for _, rec := range router.FlushDigest(ctx, summary) {
		if err := p.recordAttempt(ctx, rec, &summary); err != nil {
			return p.fail(ctx, tracker, summary, err)
		}
	}

	// ── PERSISTING ──────────────────────────────────────────────────────────
	if err := tracker.Advance(run.StagePersisting); err != nil {
		return p.fail(ctx, tracker, summary, err)
	}

	for _, sp := range scored {
		if err := p.store.InsertPosting(ctx, sp); err != nil {
			return p.fail(ctx, tracker, summary, err)
		}
		summary.Persisted++
	}

	// ── DONE ────────────────────────────────────────────────────────────────
	if err := tracker.Advance(run.StageDone); err != nil {
		return p.fail(ctx, tracker, summary, err)
	}
	summary.Stage = string(run.StageDone)
	summary.FinishedAt = time.Now().UTC()

	if err := p.store.InsertRunSummary(ctx, summary); err != nil {
		return summary, fmt.Errorf("persist run summary: %w", err)
	}
	p.publish(ctx, summary)

	log.Printf("[pipeline] Run %s done — collected=%d duplicates=%d excluded=%d scored=%d sent=%d failed=%d skipped=%d",
		summary.RunID, summary.Collected, summary.Duplicates, summary.Excluded,
		summary.Scored, summary.Sent, summary.Failed, summary.Skipped)
	return summary, nil
}

// recordAttempt persists one notification record and folds it into the
// summary counters.
func (p *Pipeline) recordAttempt(ctx context.Context, rec model.NotificationRecord, summary *model.RunSummary) error {
	if err := p.store.InsertNotificationRecord(ctx, rec); err != nil {
		return err
	}
	switch rec.Status {
	case model.NotifySent:
		summary.Sent++
	case model.NotifyFailed:
		summary.Failed++
	case model.NotifySkipped:
		summary.Skipped++
	}
	return nil
}

// fail marks the run FAILED, persists the summary best-effort and returns
// the original error. No rollback: earlier stage outputs stay durable.
func (p *Pipeline) fail(ctx context.Context, tracker *run.Tracker, summary model.RunSummary, cause error) (model.RunSummary, error) {
	_ = tracker.Fail(cause)
	summary.Stage = string(run.StageFailed)
	summary.FailReason = tracker.FailReason()
	summary.FinishedAt = time.Now().UTC()

	if err := p.store.InsertRunSummary(ctx, summary); err != nil {
		log.Printf("[pipeline] Could not persist FAILED summary for run %s: %v", summary.RunID, err)
	}
	p.publish(ctx, summary)

	log.Printf("[pipeline] Run %s failed: %s", summary.RunID, summary.FailReason)
	return summary, cause
}

func (p *Pipeline) publish(ctx context.Context, summary model.RunSummary) {
	if p.events == nil {
		return
	}
	if err := p.events.RunCompleted(ctx, summary); err != nil {
		log.Printf("[pipeline] Event publish for run %s failed: %v", summary.RunID, err)
	}
}
