// Package slack provides the Slack Web API messenger adapter.
package slack

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"

	"github.com/perch-labs/perch/internal/core/domain"
	"github.com/perch-labs/perch/internal/core/ports/driven"
)

// Ensure Messenger implements the interface.
var _ driven.Messenger = (*Messenger)(nil)

// api is the Slack Web API surface the messenger uses, narrowed for
// testability.
type api interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slackapi.MsgOption) (string, string, string, error)
	PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slackapi.MsgOption) (string, error)
	GetConversationRepliesContext(ctx context.Context, params *slackapi.GetConversationRepliesParameters) ([]slackapi.Message, bool, string, error)
	OpenConversationContext(ctx context.Context, params *slackapi.OpenConversationParameters) (*slackapi.Channel, bool, bool, error)
	GetConversationInfoContext(ctx context.Context, input *slackapi.GetConversationInfoInput) (*slackapi.Channel, error)
}

// Messenger sends and reads messages through the Slack Web API.
type Messenger struct {
	client api
}

// New creates a Slack messenger with the given bot token.
func New(botToken string) *Messenger {
	return &Messenger{client: slackapi.New(botToken)}
}

// PostMessage posts a new message, threaded when threadTS is non-empty.
func (m *Messenger) PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error) {
	options := []slackapi.MsgOption{slackapi.MsgOptionText(text, false)}
	if threadTS != "" {
		options = append(options, slackapi.MsgOptionTS(threadTS))
	}

	_, ts, err := m.client.PostMessageContext(ctx, channelID, options...)
	if err != nil {
		return "", fmt.Errorf("posting message to %s: %w", channelID, err)
	}
	return ts, nil
}

// UpdateMessage replaces the text of a previously posted message.
func (m *Messenger) UpdateMessage(ctx context.Context, channelID, ts, text string) error {
	_, _, _, err := m.client.UpdateMessageContext(ctx, channelID, ts, slackapi.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("updating message %s in %s: %w", ts, channelID, err)
	}
	return nil
}

// PostEphemeral posts a message visible only to one user.
func (m *Messenger) PostEphemeral(ctx context.Context, channelID, userID, threadTS, text string) error {
	options := []slackapi.MsgOption{slackapi.MsgOptionText(text, false)}
	if threadTS != "" {
		options = append(options, slackapi.MsgOptionTS(threadTS))
	}

	_, err := m.client.PostEphemeralContext(ctx, channelID, userID, options...)
	if err != nil {
		return fmt.Errorf("posting ephemeral message to %s: %w", channelID, err)
	}
	return nil
}

// ThreadReplies reads up to limit messages of a thread, oldest first.
func (m *Messenger) ThreadReplies(ctx context.Context, channelID, threadTS string, limit int) ([]driven.ThreadMessage, error) {
	replies, _, _, err := m.client.GetConversationRepliesContext(ctx, &slackapi.GetConversationRepliesParameters{
		ChannelID: channelID,
		Timestamp: threadTS,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("reading thread %s in %s: %w", threadTS, channelID, err)
	}

	messages := make([]driven.ThreadMessage, 0, len(replies))
	for _, reply := range replies {
		message := driven.ThreadMessage{
			TS:     reply.Timestamp,
			UserID: reply.User,
			Text:   reply.Text,
			IsBot:  reply.BotID != "",
		}
		for _, reaction := range reply.Reactions {
			message.Reactions = append(message.Reactions, domain.Reaction{
				Name:  reaction.Name,
				Count: reaction.Count,
			})
		}
		messages = append(messages, message)
	}
	return messages, nil
}

// OpenDM opens (or resumes) a direct-message conversation with a user
// and returns its channel id.
func (m *Messenger) OpenDM(ctx context.Context, userID string) (string, error) {
	channel, _, _, err := m.client.OpenConversationContext(ctx, &slackapi.OpenConversationParameters{
		Users:    []string{userID},
		ReturnIM: true,
	})
	if err != nil {
		return "", fmt.Errorf("opening DM with %s: %w", userID, err)
	}
	return channel.ID, nil
}

// ChannelInfo verifies the bot can see a channel.
func (m *Messenger) ChannelInfo(ctx context.Context, channelID string) error {
	if _, err := m.client.GetConversationInfoContext(ctx, &slackapi.GetConversationInfoInput{
		ChannelID: channelID,
	}); err != nil {
		return fmt.Errorf("reading channel info for %s: %w", channelID, err)
	}
	return nil
}
