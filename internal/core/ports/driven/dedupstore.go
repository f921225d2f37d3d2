package driven

import (
	"context"
	"time"

	"github.com/perch-labs/perch/internal/core/domain"
)

// DedupStore is the persistent idempotency table keyed by
// (channel, event timestamp). Implementations must provide
// insert-if-absent semantics: concurrent Marks for the same key must
// not overwrite or error destructively. Entry expiry is the store's
// responsibility; expired entries read as absent.
type DedupStore interface {
	// Check reports whether the key has already been marked.
	Check(ctx context.Context, key domain.DedupKey) (bool, error)

	// Mark inserts the key with a bounded lifetime.
	Mark(ctx context.Context, key domain.DedupKey, ttl time.Duration) error
}
