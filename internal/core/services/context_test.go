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

// mockMessenger implements driven.Messenger for service tests.
type mockMessenger struct {
	replies    []driven.ThreadMessage
	repliesErr error

	posted    []string
	postedTS  string
	updated   map[string]string
	ephemeral []string

	dmChannel string
	dmErr     error

	channelInfoErr error
}

func newMockMessenger() *mockMessenger {
	return &mockMessenger{postedTS: "1700000000.000100", updated: make(map[string]string)}
}

func (m *mockMessenger) PostMessage(_ context.Context, _, _ string, text string) (string, error) {
	m.posted = append(m.posted, text)
	return m.postedTS, nil
}

func (m *mockMessenger) UpdateMessage(_ context.Context, _, ts, text string) error {
	m.updated[ts] = text
	return nil
}

func (m *mockMessenger) PostEphemeral(_ context.Context, _, _, _ string, text string) error {
	m.ephemeral = append(m.ephemeral, text)
	return nil
}

func (m *mockMessenger) ThreadReplies(_ context.Context, _, _ string, limit int) ([]driven.ThreadMessage, error) {
	if m.repliesErr != nil {
		return nil, m.repliesErr
	}
	if len(m.replies) > limit {
		return m.replies[:limit], nil
	}
	return m.replies, nil
}

func (m *mockMessenger) OpenDM(_ context.Context, _ string) (string, error) {
	if m.dmErr != nil {
		return "", m.dmErr
	}
	return m.dmChannel, nil
}

func (m *mockMessenger) ChannelInfo(_ context.Context, _ string) error {
	return m.channelInfoErr
}

func TestContextBuilder_FormatsMessagesWithUser(t *testing.T) {
	messenger := newMockMessenger()
	messenger.replies = []driven.ThreadMessage{
		{TS: "1", UserID: "U1", Text: "how do I deploy?"},
		{TS: "2", UserID: "U2", Text: "run the release job", IsBot: true},
	}
	builder := NewContextBuilder(messenger, 10)

	messages, metadata, err := builder.Build(context.Background(), "C1", "1")

	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "U1: how do I deploy?", messages[0].Content)
	assert.Equal(t, "user", messages[0].Role)
	require.Len(t, metadata, 2)
	assert.True(t, metadata[1].IsBot)
}

func TestContextBuilder_NegativeScoreRedacted(t *testing.T) {
	messenger := newMockMessenger()
	messenger.replies = []driven.ThreadMessage{
		{TS: "1", UserID: "U1", Text: "bad answer", Reactions: []domain.Reaction{
			{Name: "-1", Count: 2}, {Name: "+1", Count: 1},
		}},
	}
	builder := NewContextBuilder(messenger, 10)

	messages, metadata, err := builder.Build(context.Background(), "C1", "1")

	require.NoError(t, err)
	assert.Equal(t, domain.RedactedPlaceholder, messages[0].Content)
	assert.Equal(t, -1, metadata[0].Score)
	assert.Equal(t, "bad answer", metadata[0].Text)
	assert.ElementsMatch(t, []string{"-1", "+1"}, metadata[0].ReactionNames)
}

func TestContextBuilder_ZeroScoreIncluded(t *testing.T) {
	messenger := newMockMessenger()
	messenger.replies = []driven.ThreadMessage{
		{TS: "1", UserID: "U1", Text: "neutral", Reactions: []domain.Reaction{
			{Name: "eyes", Count: 3},
		}},
	}
	builder := NewContextBuilder(messenger, 10)

	messages, _, err := builder.Build(context.Background(), "C1", "1")

	require.NoError(t, err)
	assert.Equal(t, "U1: neutral", messages[0].Content)
}

func TestContextBuilder_FetchFailurePropagates(t *testing.T) {
	messenger := newMockMessenger()
	messenger.repliesErr = errors.New("thread gone")
	builder := NewContextBuilder(messenger, 10)

	_, _, err := builder.Build(context.Background(), "C1", "1")

	assert.Error(t, err)
}
