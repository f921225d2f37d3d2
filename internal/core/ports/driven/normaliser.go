package driven

import (
	"github.com/perch-labs/perch/internal/core/domain"
)

// Normaliser converts one fetched document into canonical plaintext.
// Implementations write the plaintext under outputDir at a
// deterministic path and return the record updated with the final
// location and content hash. A per-document failure returns an error;
// the caller decides whether to drop the document or abort.
type Normaliser interface {
	Normalise(raw domain.DocumentRecord, outputDir string) (domain.DocumentRecord, error)
}
