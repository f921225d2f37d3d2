package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssm "github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/perch-labs/perch/internal/core/ports/driven"
)

// Ensure ManagerStore implements the interface.
var _ driven.SecretStore = (*ManagerStore)(nil)

// smAPI is the Secrets Manager surface the store uses.
type smAPI interface {
	GetSecretValue(ctx context.Context, params *awssm.GetSecretValueInput, optFns ...func(*awssm.Options)) (*awssm.GetSecretValueOutput, error)
}

// ManagerStore resolves secrets from AWS Secrets Manager. Values are
// cached after first lookup; secrets are treated as immutable for the
// lifetime of the process.
type ManagerStore struct {
	client smAPI
	prefix string

	mu    sync.Mutex
	cache map[string]string
}

// NewManagerStore creates a Secrets Manager store. prefix is prepended
// to every secret name and may be empty.
func NewManagerStore(client *awssm.Client, prefix string) *ManagerStore {
	return &ManagerStore{
		client: client,
		prefix: prefix,
		cache:  make(map[string]string),
	}
}

// Get returns the secret value, or an empty string when the secret does
// not exist.
func (s *ManagerStore) Get(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	if value, ok := s.cache[name]; ok {
		s.mu.Unlock()
		return value, nil
	}
	s.mu.Unlock()

	out, err := s.client.GetSecretValue(ctx, &awssm.GetSecretValueInput{
		SecretId: aws.String(s.prefix + name),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("getting secret %s: %w", name, err)
	}

	value := aws.ToString(out.SecretString)

	s.mu.Lock()
	s.cache[name] = value
	s.mu.Unlock()

	return value, nil
}
