package secrets

import (
	"context"

	"github.com/perch-labs/perch/internal/core/ports/driven"
)

// Ensure Chain implements the interface.
var _ driven.SecretStore = (*Chain)(nil)

// Chain queries a sequence of secret stores and returns the first
// non-empty value. A deployed instance chains environment variables
// before Secrets Manager so operators can override individual secrets
// without touching the remote store.
type Chain struct {
	stores []driven.SecretStore
}

// NewChain creates a chained secret store querying stores in order.
func NewChain(stores ...driven.SecretStore) *Chain {
	return &Chain{stores: stores}
}

// Get returns the first non-empty value any store resolves, or an
// empty string when none holds the secret. A store error stops the
// chain.
func (c *Chain) Get(ctx context.Context, name string) (string, error) {
	for _, store := range c.stores {
		value, err := store.Get(ctx, name)
		if err != nil {
			return "", err
		}
		if value != "" {
			return value, nil
		}
	}
	return "", nil
}
