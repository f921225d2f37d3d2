package services

import (
	"context"
	"fmt"
	"time"

	"github.com/perch-labs/perch/internal/core/domain"
	"github.com/perch-labs/perch/internal/core/ports/driven"
	"github.com/perch-labs/perch/internal/logger"
)

// DefaultDedupTTL bounds how long an event marker lives. One hour
// comfortably covers platform redelivery windows.
const DefaultDedupTTL = time.Hour

// DedupGate guards the pipeline against duplicate event delivery using
// a persistent idempotency table. Correctness under concurrent
// invocations relies on the store's insert-if-absent semantics, not on
// in-process locking; the get-then-put race is accepted for
// at-least-once delivery.
type DedupGate struct {
	store driven.DedupStore
	ttl   time.Duration
}

// NewDedupGate creates a gate over the given store. ttl <= 0 uses the
// default marker lifetime.
func NewDedupGate(store driven.DedupStore, ttl time.Duration) *DedupGate {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &DedupGate{store: store, ttl: ttl}
}

// Check reports whether the event has already been marked. A store
// read failure is logged and reported as not-duplicate so delivery
// degrades to at-least-once rather than dropping events.
func (g *DedupGate) Check(ctx context.Context, key domain.DedupKey) bool {
	seen, err := g.store.Check(ctx, key)
	if err != nil {
		logger.Error("Duplicate check failed for %s/%s: %v", key.Channel, key.Timestamp, err)
		return false
	}
	return seen
}

// Mark records the event as being processed.
func (g *DedupGate) Mark(ctx context.Context, key domain.DedupKey) error {
	if err := g.store.Mark(ctx, key, g.ttl); err != nil {
		return fmt.Errorf("mark event %s/%s: %w", key.Channel, key.Timestamp, err)
	}
	logger.Info("Marked event as started: %s %s", key.Timestamp, key.Channel)
	return nil
}
