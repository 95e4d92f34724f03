// Package runner assembles and executes one pipeline run from live
// configuration: keywords and feeds are re-read from the store on every
// trigger, so edits apply to the next run without a restart.
package runner

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/miyazaki-CS/bidding-system/internal/collector"
	"github.com/miyazaki-CS/bidding-system/internal/config"
	"github.com/miyazaki-CS/bidding-system/internal/model"
	"github.com/miyazaki-CS/bidding-system/internal/notify"
	"github.com/miyazaki-CS/bidding-system/internal/pipeline"
	"github.com/miyazaki-CS/bidding-system/internal/scoring"
	"github.com/miyazaki-CS/bidding-system/internal/store"
)

// Runner owns the long-lived handles and enforces one run at a time in this
// process. A scheduled run overlapping a manual run across processes is
// already safe at the store level.
type Runner struct {
	cfg     *config.Config
	store   *store.Store
	rdb     *redis.Client
	running atomic.Bool
}

// New constructs a Runner.
func New(cfg *config.Config, st *store.Store, rdb *redis.Client) *Runner {
	return &Runner{cfg: cfg, store: st, rdb: rdb}
}

// Running reports whether a run is in flight in this process.
func (r *Runner) Running() bool { return r.running.Load() }

// Run loads the current keyword and feed configuration, assembles the
// sources and channels and executes one pipeline run. testMode true forces
// test mode regardless of the TEST_MODE setting.
func (r *Runner) Run(ctx context.Context, testMode bool) (model.RunSummary, error) {
	if !r.running.CompareAndSwap(false, true) {
		return model.RunSummary{}, pipeline.ErrRunInFlight
	}
	defer r.running.Store(false)

	keywords, err := r.store.LoadKeywords(ctx)
	if err != nil {
		return model.RunSummary{}, fmt.Errorf("load keywords: %w", err)
	}
	feeds, err := r.store.LoadFeeds(ctx)
	if err != nil {
		return model.RunSummary{}, fmt.Errorf("load feeds: %w", err)
	}

	var includeTerms []string
	for _, k := range keywords {
		if k.Category != "exclude" {
			includeTerms = append(includeTerms, k.Term)
		}
	}

	sources := []collector.Source{
		collector.NewGovernmentSource("", includeTerms),
	}
	for _, feed := range feeds {
		sources = append(sources, collector.NewRSSSource(feed))
	}

	p := pipeline.New(
		r.store,
		sources,
		keywords,
		scoring.Thresholds{
			High:   r.cfg.HighThreshold,
			Medium: r.cfg.MediumThreshold,
			Low:    r.cfg.LowThreshold,
		},
		r.channels(),
		notify.NewRedisCap(r.rdb, r.cfg.MaxDailyNotifications),
		pipeline.NewRedisEvents(r.rdb),
	)

	return p.Run(ctx, pipeline.Options{
		TestMode: testMode || r.cfg.TestMode,
		Deadline: r.cfg.RunDeadline,
	})
}

// channels builds the configured notification channels. Unconfigured
// channels are simply absent; a run with no channels still scores and
// persists.
func (r *Runner) channels() []notify.Channel {
	var channels []notify.Channel
	if r.cfg.TeamsWebhookURL != "" {
		channels = append(channels, notify.NewTeamsChannel(r.cfg.TeamsWebhookURL))
	}
	if r.cfg.SMTPHost != "" && r.cfg.EmailTo != "" {
		channels = append(channels, notify.NewEmailChannel(
			r.cfg.SMTPHost, r.cfg.SMTPPort, r.cfg.SMTPUser, r.cfg.SMTPPassword, r.cfg.EmailTo,
		))
	}
	return channels
}
