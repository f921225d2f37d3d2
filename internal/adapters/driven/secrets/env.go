// Package secrets provides secret store adapters: environment variables
// for local runs and AWS Secrets Manager for deployed instances.
package secrets

import (
	"context"
	"os"
	"strings"

	"github.com/perch-labs/perch/internal/core/ports/driven"
)

// Ensure EnvStore implements the interface.
var _ driven.SecretStore = (*EnvStore)(nil)

// EnvStore resolves secrets from environment variables. Secret names are
// upper-cased with non-alphanumeric runs collapsed to underscores, so
// "perch/slack-bot-token" maps to PERCH_SLACK_BOT_TOKEN.
type EnvStore struct {
	prefix string
}

// NewEnvStore creates an environment-backed secret store. prefix is
// prepended to every variable name and may be empty.
func NewEnvStore(prefix string) *EnvStore {
	return &EnvStore{prefix: prefix}
}

// Get returns the secret value, or an empty string when unset.
func (s *EnvStore) Get(_ context.Context, name string) (string, error) {
	return os.Getenv(s.prefix + envName(name)), nil
}

func envName(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToUpper(name) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
			}
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}
