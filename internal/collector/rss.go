package collector

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/miyazaki-CS/bidding-system/internal/model"
)

const rssHTTPTimeout = 10 * time.Second

// RSSSource polls one municipal or agency RSS/Atom feed.
type RSSSource struct {
	feed   model.FeedSource
	parser *gofeed.Parser
}

// NewRSSSource constructs a source for one configured feed.
func NewRSSSource(feed model.FeedSource) *RSSSource {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: rssHTTPTimeout}
	return &RSSSource{feed: feed, parser: parser}
}

func (r *RSSSource) Name() string { return "rss_" + r.feed.Name }

// Fetch parses the feed and normalises its items. Items without a title are
// malformed and counted; everything else flows through unfiltered — scoring
// decides relevance downstream.
func (r *RSSSource) Fetch(ctx context.Context) ([]model.Posting, int, error) {
	feed, err := r.parser.ParseURLWithContext(r.feed.URL, ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("parse feed %s: %w", r.feed.URL, err)
	}

	postings := make([]model.Posting, 0, len(feed.Items))
	malformed := 0

	for _, item := range feed.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			malformed++
			continue
		}

		// GUID identifies the item when present, otherwise the link does.
		externalID := item.GUID
		if externalID == "" {
			externalID = item.Link
		}

		var publishedAt time.Time
		if item.PublishedParsed != nil {
			publishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			publishedAt = *item.UpdatedParsed
		}

		body := item.Description
		if body == "" {
			body = item.Content
		}

		postings = append(postings, model.Posting{
			SourceID:     r.Name(),
			ExternalID:   externalID,
			Title:        title,
			Body:         strings.TrimSpace(body),
			Organization: r.feed.Name,
			PublishedAt:  publishedAt,
			SourceURL:    item.Link,
			Raw: map[string]string{
				"feedKind": r.feed.Kind,
				"feedURL":  r.feed.URL,
			},
		})
	}

	return postings, malformed, nil
}
