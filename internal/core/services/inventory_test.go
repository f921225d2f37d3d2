package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perch-labs/perch/internal/core/domain"
	"github.com/perch-labs/perch/internal/core/ports/driven"
)

type mockObjectStore struct {
	objects  map[string]driven.ObjectMetadata
	order    []string
	headErrs map[string]error
	puts     map[string][]byte
	deleted  []string
}

func newMockObjectStore() *mockObjectStore {
	return &mockObjectStore{
		objects:  make(map[string]driven.ObjectMetadata),
		headErrs: make(map[string]error),
		puts:     make(map[string][]byte),
	}
}

func (m *mockObjectStore) add(key string, meta driven.ObjectMetadata) {
	m.objects[key] = meta
	m.order = append(m.order, key)
}

func (m *mockObjectStore) List(_ context.Context, prefix string, fn func(page []driven.ObjectInfo) bool) error {
	var page []driven.ObjectInfo
	for _, key := range m.order {
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		page = append(page, driven.ObjectInfo{Key: key})
	}
	if len(page) > 0 {
		fn(page)
	}
	return nil
}

func (m *mockObjectStore) Head(_ context.Context, key string) (driven.ObjectMetadata, error) {
	if err := m.headErrs[key]; err != nil {
		return nil, err
	}
	meta, ok := m.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return meta, nil
}

func (m *mockObjectStore) Put(_ context.Context, key string, body []byte, meta driven.ObjectMetadata, _ string) error {
	m.objects[key] = meta
	m.puts[key] = body
	return nil
}

func (m *mockObjectStore) Delete(_ context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	delete(m.objects, key)
	return nil
}

func TestAssistantInventory_FiltersBySource(t *testing.T) {
	assistant := newMockAssistant()
	assistant.files["f1"] = domain.RemoteEntry{
		ID: "f1", Name: "a.txt",
		Metadata: domain.RemoteMetadata{Source: domain.SourceWiki, LastUpdated: "100"},
	}
	assistant.files["f2"] = domain.RemoteEntry{
		ID: "f2", Name: "b.txt",
		Metadata: domain.RemoteMetadata{Source: domain.SourceDocs, LastUpdated: "200"},
	}

	inventory, err := AssistantInventory(context.Background(), assistant, domain.SourceWiki)

	require.NoError(t, err)
	require.Len(t, inventory, 1)
	assert.Equal(t, "f1", inventory["a.txt"].ID)
}

func TestObjectInventory_StripsPrefixAndSkipsUnreadable(t *testing.T) {
	store := newMockObjectStore()
	store.add("docs/a.txt", driven.RemoteToMetadata(domain.RemoteMetadata{
		Source: domain.SourceWiki, LastUpdated: "100", ContentHash: "h1",
	}))
	store.add("docs/b.txt", driven.RemoteToMetadata(domain.RemoteMetadata{
		Source: domain.SourceWiki, LastUpdated: "200", ContentHash: "h2",
	}))
	store.add("docs/other.txt", driven.RemoteToMetadata(domain.RemoteMetadata{
		Source: domain.SourceDocs,
	}))
	store.headErrs["docs/b.txt"] = errors.New("access denied")

	inventory, err := ObjectInventory(context.Background(), store, "docs/", domain.SourceWiki)

	require.NoError(t, err)
	require.Len(t, inventory, 1)
	entry := inventory["a.txt"]
	assert.Equal(t, "docs/a.txt", entry.ID)
	assert.Equal(t, "h1", entry.Metadata.ContentHash)
}
