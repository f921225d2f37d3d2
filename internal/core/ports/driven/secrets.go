package driven

import "context"

// SecretStore resolves named secrets and configuration values.
// Implementations are expected to cache: the pipeline treats handles
// built from secrets as read-only after first initialisation.
type SecretStore interface {
	// Get returns the secret value, or an empty string when the secret
	// is not configured. Lookup failures other than absence return an
	// error.
	Get(ctx context.Context, name string) (string, error)
}
