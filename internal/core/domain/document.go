package domain

import (
	"strconv"
	"strings"
	"time"
)

// Source identifies where a document batch was fetched from.
// Every remote entry carries its source in metadata so independent
// sources can be reconciled without interfering with each other.
type Source string

const (
	// SourceWiki is the internal wiki exported through the documents API.
	SourceWiki Source = "wiki_docs"

	// SourceDocs is the public documentation bulk feed.
	SourceDocs Source = "product_docs"

	// SourceLocal is a local directory of markdown files.
	SourceLocal Source = "local_docs"
)

// DocumentRecord is a normalised local document ready for upload.
// It is immutable once produced and uniquely identified by
// (Source, FileName). Two records with equal ContentHash are treated
// as content-identical regardless of timestamps.
type DocumentRecord struct {
	// Source tags the fetcher that produced this record.
	Source Source

	// FileName is the logical name used as the remote key.
	FileName string

	// LastUpdated is the upstream modification time, unix seconds.
	LastUpdated int64

	// URL is the original document location, used for citations.
	URL string

	// LocalPath is where the normalised plaintext was written.
	LocalPath string

	// ContentHash is the sha256 hex digest of the normalised content.
	ContentHash string
}

// RemoteEntry is a read-only snapshot of one file in a remote store.
// Snapshots are re-read per reconciliation pass and never mutated.
type RemoteEntry struct {
	// ID is the store's handle for the entry (file id or object key).
	ID string

	// Name is the logical file name matched against DocumentRecord.FileName.
	Name string

	// Metadata is the store-side metadata written at upload time.
	Metadata RemoteMetadata

	// LastModified is the store's own modification stamp, when known.
	LastModified time.Time
}

// RemoteMetadata is the metadata contract persisted alongside every
// uploaded file. LastUpdated and ContentHash drive reconciliation;
// absence of either forces a re-upload.
type RemoteMetadata struct {
	Source      Source
	LastUpdated string
	URL         string
	ContentHash string
}

// LastUpdatedUnix parses LastUpdated as unix seconds, truncating any
// fractional part. ok is false when the field is missing or malformed.
func (m RemoteMetadata) LastUpdatedUnix() (ts int64, ok bool) {
	raw := strings.TrimSpace(m.LastUpdated)
	if raw == "" {
		return 0, false
	}
	if idx := strings.IndexByte(raw, '.'); idx >= 0 {
		raw = raw[:idx]
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Empty reports whether the metadata carries no reconciliation signal.
func (m RemoteMetadata) Empty() bool {
	return m.Source == "" && m.LastUpdated == "" && m.ContentHash == ""
}

// SyncPlan is the outcome of reconciling a local manifest against a
// remote inventory. Producing a plan has no side effects; executing it
// is the writer's job.
type SyncPlan struct {
	// Uploads are local records that must be written to the store.
	Uploads []DocumentRecord

	// Deletes are remote entries no longer present locally.
	Deletes []RemoteEntry
}

// Empty reports whether the plan requires no store mutations.
func (p SyncPlan) Empty() bool {
	return len(p.Uploads) == 0 && len(p.Deletes) == 0
}
