// Package scheduler wires up the cron job that periodically triggers a
// collection run.
package scheduler

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/miyazaki-CS/bidding-system/internal/model"
)

// Trigger executes one collection run.
type Trigger interface {
	Run(ctx context.Context, testMode bool) (model.RunSummary, error)
}

// Scheduler wraps robfig/cron and manages the collection loop.
type Scheduler struct {
	cron    *cron.Cron
	trigger Trigger
	spec    string // cron spec, e.g. "0 9,17 * * *"
}

// New creates a Scheduler firing on the given cron spec.
func New(trigger Trigger, spec string) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cron.DefaultLogger)),
		trigger: trigger,
		spec:    spec,
	}
}

// Start registers the job and starts the scheduler. Also runs one
// collection immediately so the store is populated without waiting for the
// first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.runCollection(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	log.Printf("[scheduler] Cron started — spec: %s", s.spec)

	// Run immediately on startup (non-blocking)
	go s.runCollection(ctx)

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("[scheduler] Cron stopped")
}

func (s *Scheduler) runCollection(ctx context.Context) {
	log.Println("[scheduler] Collection cycle started")

	summary, err := s.trigger.Run(ctx, false)
	if err != nil {
		log.Printf("[scheduler] Collection run error: %v", err)
		return
	}

	log.Printf("[scheduler] Collection cycle complete — run %s ended in %s", summary.RunID, summary.Stage)
}
