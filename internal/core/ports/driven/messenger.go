package driven

import (
	"context"

	"github.com/perch-labs/perch/internal/core/domain"
)

// ThreadMessage is one message read back from a conversation thread.
type ThreadMessage struct {
	TS        string
	UserID    string
	Text      string
	IsBot     bool
	Reactions []domain.Reaction
}

// Messenger is the chat platform's outbound surface plus the thread
// reads the pipeline needs. Transport and signature verification live
// entirely behind the adapter.
type Messenger interface {
	// PostMessage posts a new message to a channel, optionally threaded.
	// Returns the timestamp of the posted message.
	PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error)

	// UpdateMessage replaces the text of a previously posted message.
	UpdateMessage(ctx context.Context, channelID, ts, text string) error

	// PostEphemeral posts a message visible only to one user.
	PostEphemeral(ctx context.Context, channelID, userID, threadTS, text string) error

	// ThreadReplies reads up to limit messages of a thread, oldest first.
	ThreadReplies(ctx context.Context, channelID, threadTS string, limit int) ([]ThreadMessage, error)

	// OpenDM opens (or resumes) a direct-message conversation with a
	// user and returns its channel id.
	OpenDM(ctx context.Context, userID string) (string, error)

	// ChannelInfo verifies the bot can see a channel.
	ChannelInfo(ctx context.Context, channelID string) error
}
