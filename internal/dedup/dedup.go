// Package dedup derives stable dedup keys and suppresses postings already
// seen in prior runs.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/miyazaki-CS/bidding-system/internal/model"
)

// Key returns the stable dedup key for p.
//
// (source, external id) identifies a posting when the source supplies an id.
// Otherwise a content hash of (title, body, publishedAt) substitutes; a hash
// collision is treated as a duplicate, favouring under-reporting over
// repeated alerts.
func Key(p model.Posting) string {
	if p.ExternalID != "" {
		return p.SourceID + ":" + p.ExternalID
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s", p.Title, p.Body, p.PublishedAt.UTC().Format(time.RFC3339))
	return p.SourceID + ":" + hex.EncodeToString(h.Sum(nil))
}

// KnownKeys is the persistence store's known-keys index. MarkSeen inserts
// key idempotently and reports whether the insert created a new row —
// inserting an already-known key is a no-op, not an error, so overlapping
// runs stay safe.
type KnownKeys interface {
	MarkSeen(ctx context.Context, key string) (isNew bool, err error)
}

// Deduplicator answers "is this posting new" against a KnownKeys index.
type Deduplicator struct {
	keys KnownKeys
}

// New constructs a Deduplicator over the given index.
func New(keys KnownKeys) *Deduplicator {
	return &Deduplicator{keys: keys}
}

// IsNew derives the posting's dedup key and marks it seen. Across any
// sequence of runs sharing the same index, IsNew reports true at most once
// per key.
func (d *Deduplicator) IsNew(ctx context.Context, p model.Posting) (string, bool, error) {
	key := Key(p)
	isNew, err := d.keys.MarkSeen(ctx, key)
	if err != nil {
		return key, false, fmt.Errorf("mark seen %q: %w", key, err)
	}
	return key, isNew, nil
}
