package driven

import (
	"context"

	"github.com/perch-labs/perch/internal/core/domain"
)

// Assistant is the retrieval-augmented generation backend. Retrieval
// and answer generation happen entirely on the remote side; this port
// only moves files and conversations across the wire.
//
// The file operations back the document reconciliation pipeline; Chat
// backs the event pipeline.
type Assistant interface {
	// ListFiles enumerates every file in the assistant's document store,
	// including files from other sources. Filtering is the caller's job.
	ListFiles(ctx context.Context) ([]domain.RemoteEntry, error)

	// UploadFile pushes a local file with its metadata and returns the
	// handle of the stored file.
	UploadFile(ctx context.Context, localPath string, meta domain.RemoteMetadata) (string, error)

	// DescribeFile reads back the stored metadata for a file handle.
	// Used for post-upload verification.
	DescribeFile(ctx context.Context, fileID string) (domain.RemoteEntry, error)

	// DeleteFile removes a file by handle.
	DeleteFile(ctx context.Context, fileID string) error

	// Chat sends the reconstructed conversation and returns the raw
	// answer with citation offsets.
	Chat(ctx context.Context, messages []domain.ConversationMessage) (*domain.AssistantAnswer, error)
}
