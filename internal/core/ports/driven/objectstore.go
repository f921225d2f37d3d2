package driven

import (
	"context"

	"github.com/perch-labs/perch/internal/core/domain"
)

// ObjectMetadata is the user metadata attached to a stored object.
type ObjectMetadata map[string]string

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Key          string
	LastModified int64
}

// ObjectStore is a flat key/value blob store with paginated listing and
// per-key metadata reads. Listing is a best-effort snapshot; concurrent
// writers may invalidate it between List and Head calls.
type ObjectStore interface {
	// List enumerates keys under a prefix, calling fn per page. fn
	// returning false stops pagination early.
	List(ctx context.Context, prefix string, fn func(page []ObjectInfo) bool) error

	// Head reads per-key user metadata without fetching the body.
	Head(ctx context.Context, key string) (ObjectMetadata, error)

	// Put writes a body with metadata and content type.
	Put(ctx context.Context, key string, body []byte, meta ObjectMetadata, contentType string) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// MetadataToRemote converts object metadata to the reconciliation
// metadata contract. Keys follow the lower-case convention the store
// normalises user metadata to.
func MetadataToRemote(meta ObjectMetadata) domain.RemoteMetadata {
	return domain.RemoteMetadata{
		Source:      domain.Source(meta["source"]),
		LastUpdated: meta["last_updated"],
		URL:         meta["url"],
		ContentHash: meta["content_hash"],
	}
}

// RemoteToMetadata converts reconciliation metadata to the flat map an
// object store persists.
func RemoteToMetadata(meta domain.RemoteMetadata) ObjectMetadata {
	return ObjectMetadata{
		"source":       string(meta.Source),
		"last_updated": meta.LastUpdated,
		"url":          meta.URL,
		"content_hash": meta.ContentHash,
	}
}
