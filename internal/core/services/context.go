package services

import (
	"context"
	"fmt"

	"github.com/perch-labs/perch/internal/core/domain"
	"github.com/perch-labs/perch/internal/core/ports/driven"
	"github.com/perch-labs/perch/internal/logger"
)

// DefaultMaxThreadMessages caps how much thread history feeds the
// backend prompt.
const DefaultMaxThreadMessages = 10

// ContextBuilder reconstructs a thread's conversation for the backend
// prompt, scoring each message by its reactions. Messages with a
// negative score stay in the sequence as a redaction placeholder so
// ordering and length are preserved without echoing flagged content.
type ContextBuilder struct {
	messenger   driven.Messenger
	maxMessages int
}

// NewContextBuilder creates a builder reading at most maxMessages per
// thread. maxMessages <= 0 uses the default cap.
func NewContextBuilder(messenger driven.Messenger, maxMessages int) *ContextBuilder {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxThreadMessages
	}
	return &ContextBuilder{messenger: messenger, maxMessages: maxMessages}
}

// Build fetches the thread and derives (messages, reputation) pairs,
// oldest first. A fetch failure is propagated to the caller; there is
// no partial result.
func (b *ContextBuilder) Build(ctx context.Context, channelID, threadTS string) ([]domain.ConversationMessage, []domain.MessageReputation, error) {
	replies, err := b.messenger.ThreadReplies(ctx, channelID, threadTS, b.maxMessages)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch thread replies: %w", err)
	}

	messages := make([]domain.ConversationMessage, 0, len(replies))
	metadata := make([]domain.MessageReputation, 0, len(replies))

	for _, msg := range replies {
		names := make([]string, 0, len(msg.Reactions))
		for _, r := range msg.Reactions {
			names = append(names, r.Name)
		}
		score := domain.ReputationScore(msg.Reactions)

		metadata = append(metadata, domain.MessageReputation{
			TS:            msg.TS,
			ReactionNames: names,
			Score:         score,
			IsBot:         msg.IsBot,
			Text:          msg.Text,
		})

		if score >= 0 {
			messages = append(messages, domain.NewUserMessage(fmt.Sprintf("%s: %s", msg.UserID, msg.Text)))
		} else {
			messages = append(messages, domain.NewUserMessage(domain.RedactedPlaceholder))
		}
	}

	logger.Debug("Built conversation context of %d messages for thread %s", len(messages), threadTS)
	return messages, metadata, nil
}
