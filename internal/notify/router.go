// Package notify routes scored postings to notification channels: HIGH tier
// immediately, MEDIUM/LOW into a per-run digest, NONE store-only.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/miyazaki-CS/bidding-system/internal/model"
)

const (
	sendMaxAttempts = 3
	sendTimeout     = 10 * time.Second

	capReachedDetail = "daily notification cap reached"
)

// Message is the channel-independent notification payload.
type Message struct {
	Subject string
	Body    string
}

// Channel is the abstract delivery capability. Concrete channels: Teams
// webhook, SMTP email. The router depends only on this interface.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// DailyCap limits immediate alerts per channel per calendar day. Allow
// consumes one slot and reports whether the channel is still under its cap.
type DailyCap interface {
	Allow(ctx context.Context, channel string) (bool, error)
}

// Router decides delivery per tier and records every dispatch attempt.
// Not safe for concurrent use; the pipeline owns one Router per run.
type Router struct {
	channels []Channel
	cap      DailyCap
	testMode bool
	digest   []model.ScoredPosting

	// RetryDelay is the base backoff between send attempts.
	RetryDelay time.Duration
}

// NewRouter constructs a Router. In test mode every dispatch is
// short-circuited into a SKIPPED record while the rest of the pipeline runs
// unchanged.
func NewRouter(channels []Channel, cap DailyCap, testMode bool) *Router {
	return &Router{
		channels:   channels,
		cap:        cap,
		testMode:   testMode,
		RetryDelay: 2 * time.Second,
	}
}

// Route handles one scored posting. HIGH postings are dispatched on every
// channel now; over-cap dispatches degrade to the digest with a SKIPPED
// record instead of being dropped. MEDIUM and LOW accumulate into the
// digest. NONE yields nothing.
func (r *Router) Route(ctx context.Context, sp model.ScoredPosting) []model.NotificationRecord {
	switch sp.Tier {
	case model.TierHigh:
		return r.dispatchNow(ctx, sp)
	case model.TierMedium, model.TierLow:
		r.digest = append(r.digest, sp)
	}
	return nil
}

// Digest returns the postings accumulated for the run digest.
func (r *Router) Digest() []model.ScoredPosting { return r.digest }

func (r *Router) dispatchNow(ctx context.Context, sp model.ScoredPosting) []model.NotificationRecord {
	msg := HighPriorityMessage(sp)
	records := make([]model.NotificationRecord, 0, len(r.channels))

	capped := false
	for _, ch := range r.channels {
		rec := r.attempt(ctx, ch, sp.DedupKey, msg, true)
		if rec.Status == model.NotifySkipped && rec.Detail == capReachedDetail {
			capped = true
		}
		records = append(records, rec)
	}
	// A capped alert is not lost: it rides along in the run digest, which
	// the cap does not apply to.
	if capped {
		r.digest = append(r.digest, sp)
	}
	return records
}

// FlushDigest sends the accumulated digest plus run statistics on every
// channel. The digest is the fallback for capped alerts, so the cap does
// not apply to it. Empty digests with nothing to report are skipped.
func (r *Router) FlushDigest(ctx context.Context, summary model.RunSummary) []model.NotificationRecord {
	if len(r.digest) == 0 && summary.HighTier == 0 {
		return nil
	}

	msg := DigestMessage(summary, r.digest)
	key := "digest:" + summary.RunID

	records := make([]model.NotificationRecord, 0, len(r.channels))
	for _, ch := range r.channels {
		records = append(records, r.attempt(ctx, ch, key, msg, false))
	}
	return records
}

// attempt performs one dispatch on one channel, producing exactly one
// NotificationRecord regardless of outcome.
func (r *Router) attempt(ctx context.Context, ch Channel, postingKey string, msg Message, capped bool) model.NotificationRecord {
	rec := model.NotificationRecord{
		PostingKey:  postingKey,
		Channel:     ch.Name(),
		AttemptedAt: time.Now().UTC(),
	}

	if r.testMode {
		rec.Status = model.NotifySkipped
		rec.Detail = "test mode"
		return rec
	}

	if capped {
		allowed, err := r.cap.Allow(ctx, ch.Name())
		if err != nil {
			// Cap state unavailable: deliver rather than silently drop.
			log.Printf("[notify] Daily cap check failed for %s: %v — delivering anyway", ch.Name(), err)
		} else if !allowed {
			rec.Status = model.NotifySkipped
			rec.Detail = capReachedDetail
			return rec
		}
	}

	if err := r.sendWithRetry(ctx, ch, msg); err != nil {
		rec.Status = model.NotifyFailed
		rec.Detail = err.Error()
		log.Printf("[notify] Dispatch to %s failed: %v", ch.Name(), err)
		return rec
	}

	rec.Status = model.NotifySent
	return rec
}

func (r *Router) sendWithRetry(ctx context.Context, ch Channel, msg Message) error {
	var lastErr error
	for attempt := 1; attempt <= sendMaxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := ch.Send(sendCtx, msg)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < sendMaxAttempts {
			delay := r.RetryDelay * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("after %d attempts: %w", sendMaxAttempts, lastErr)
}
