// Package collector fetches raw postings from the government procurement
// API and municipal RSS feeds and normalises them into model.Posting.
package collector

import (
	"context"
	"log"
	"sync"

	"github.com/miyazaki-CS/bidding-system/internal/model"
)

// Source is one origin of postings. Fetch returns every posting visible in
// the source's current window; malformed individual records are skipped and
// counted, not fatal.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]model.Posting, int, error)
}

// Result pairs one source's postings with its report.
type Result struct {
	Postings []model.Posting
	Report   model.SourceReport
}

// CollectAll fetches every source concurrently. A failing source yields a
// report carrying the error and the run continues with the rest — partial
// source failure never abandons a run. Cancelling ctx aborts outstanding
// fetches; postings already returned are kept.
func CollectAll(ctx context.Context, sources []Source) []Result {
	results := make([]Result, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()

			postings, malformed, err := src.Fetch(ctx)
			report := model.SourceReport{
				Source:    src.Name(),
				Collected: len(postings),
				Malformed: malformed,
			}
			if err != nil {
				report.Err = err.Error()
				log.Printf("[collector] Source %s failed: %v — continuing", src.Name(), err)
			}
			results[i] = Result{Postings: postings, Report: report}
		}(i, src)
	}
	wg.Wait()

	return results
}
