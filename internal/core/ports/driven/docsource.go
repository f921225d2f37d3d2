package driven

import (
	"context"

	"github.com/perch-labs/perch/internal/core/domain"
)

// DocumentSource fetches raw documents from one upstream system (the
// wiki API, the bulk documentation feed, a local directory) and
// materialises them as markdown files on disk, ready for
// normalisation. A fetch is a full export; incremental reconciliation
// happens downstream against the remote stores.
type DocumentSource interface {
	// Source returns the tag records from this source carry.
	Source() domain.Source

	// Fetch exports every document into outputDir and returns their
	// records. Per-document failures are logged and skipped; only a
	// wholesale failure returns an error.
	Fetch(ctx context.Context, outputDir string) ([]domain.DocumentRecord, error)
}
