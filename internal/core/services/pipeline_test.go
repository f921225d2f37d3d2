package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perch-labs/perch/internal/core/domain"
	"github.com/perch-labs/perch/internal/core/ports/driven"
	"github.com/perch-labs/perch/internal/core/ports/driving"
)

type mockAnalytics struct {
	mu     sync.Mutex
	events []driven.AnalyticsEvent
	err    error
}

func (m *mockAnalytics) Emit(_ context.Context, event driven.AnalyticsEvent) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

type mockUpdater struct {
	stats *driving.UpdateStats
	err   error
	runs  int
}

func (m *mockUpdater) Run(_ context.Context) (*driving.UpdateStats, error) {
	m.runs++
	if m.err != nil {
		return nil, m.err
	}
	return m.stats, nil
}

type pipelineFixture struct {
	pipeline  *Pipeline
	messenger *mockMessenger
	assistant *mockAssistant
	store     *mockDedupStore
	analytics *mockAnalytics
	updater   *mockUpdater
}

func newPipelineFixture(cfg PipelineConfig) *pipelineFixture {
	messenger := newMockMessenger()
	assistant := newMockAssistant()
	store := newMockDedupStore()
	analytics := &mockAnalytics{}
	updater := &mockUpdater{stats: &driving.UpdateStats{SourcesProcessed: 1, Uploaded: 2}}

	if cfg.BotUserID == "" {
		cfg.BotUserID = "BOT"
	}
	if cfg.AllowList == "" {
		cfg.AllowList = "*"
	}

	contexts := NewContextBuilder(messenger, 10)
	pipeline := NewPipeline(
		NewEventParser(contexts),
		NewDedupGate(store, 0),
		contexts,
		assistant,
		messenger,
		analytics,
		updater,
		cfg,
	)
	return &pipelineFixture{
		pipeline:  pipeline,
		messenger: messenger,
		assistant: assistant,
		store:     store,
		analytics: analytics,
		updater:   updater,
	}
}

func mentionEvent(text string) driving.RawEvent {
	payload, _ := json.Marshal(map[string]string{
		"ts":      "1700000000.000100",
		"channel": "C1",
		"user":    "U1",
		"text":    text,
	})
	return driving.RawEvent{Kind: domain.EventMention, Payload: payload}
}

func TestPipeline_MentionAnsweredInPlace(t *testing.T) {
	f := newPipelineFixture(PipelineConfig{})
	f.assistant.chatAnswer = &domain.AssistantAnswer{Message: "the answer"}

	err := f.pipeline.Handle(context.Background(), mentionEvent("<@BOT> how?"))

	require.NoError(t, err)
	// Loading message posted first, final answer updates it in place.
	require.Len(t, f.messenger.posted, 1)
	assert.Contains(t, f.messenger.posted[0], "Thinking")
	assert.Equal(t, "the answer", f.messenger.updated[f.messenger.postedTS])
	// Analytics before the query and after the reply.
	assert.Len(t, f.analytics.events, 2)
	assert.Equal(t, "the answer", f.analytics.events[1].Response)
	// The event is marked for dedup.
	assert.Len(t, f.store.marks, 1)
}

func TestPipeline_DuplicateShortCircuits(t *testing.T) {
	f := newPipelineFixture(PipelineConfig{})
	f.assistant.chatAnswer = &domain.AssistantAnswer{Message: "x"}

	require.NoError(t, f.pipeline.Handle(context.Background(), mentionEvent("<@BOT> q")))
	postedBefore := len(f.messenger.posted)

	require.NoError(t, f.pipeline.Handle(context.Background(), mentionEvent("<@BOT> q")))

	assert.Equal(t, postedBefore, len(f.messenger.posted))
	assert.Empty(t, f.messenger.ephemeral)
}

func TestPipeline_MentionWithoutBotIDIgnored(t *testing.T) {
	f := newPipelineFixture(PipelineConfig{})

	err := f.pipeline.Handle(context.Background(), mentionEvent("no mention here"))

	require.NoError(t, err)
	assert.Empty(t, f.messenger.posted)
	assert.Empty(t, f.store.marks)
}

func TestPipeline_WildcardBotIDAlwaysRuns(t *testing.T) {
	f := newPipelineFixture(PipelineConfig{BotUserID: "*"})
	f.assistant.chatAnswer = &domain.AssistantAnswer{Message: "x"}

	err := f.pipeline.Handle(context.Background(), mentionEvent("plain question"))

	require.NoError(t, err)
	assert.Len(t, f.store.marks, 1)
}

func TestPipeline_ChannelNotAllowed(t *testing.T) {
	f := newPipelineFixture(PipelineConfig{AllowList: "C2, C3"})

	err := f.pipeline.Handle(context.Background(), mentionEvent("<@BOT> q"))

	require.NoError(t, err)
	// The refusal goes out before the user id is cleared, so it lands
	// as an ephemeral message.
	require.Len(t, f.messenger.ephemeral, 1)
	assert.Contains(t, f.messenger.ephemeral[0], "not yet allowed")
	assert.Empty(t, f.store.marks)
}

func TestPipeline_EmptyPromptReply(t *testing.T) {
	f := newPipelineFixture(PipelineConfig{})
	f.messenger.dmChannel = "D42"
	payload, _ := json.Marshal(map[string]string{
		"ts": "1.0", "channel": "D42", "user": "U1", "text": "",
	})

	err := f.pipeline.Handle(context.Background(), driving.RawEvent{
		Kind: domain.EventMessage, Payload: payload,
	})

	require.NoError(t, err)
	require.Len(t, f.messenger.posted, 1)
	assert.Contains(t, f.messenger.posted[0], "didn't provide a prompt")
}

func TestPipeline_BackendFailureApology(t *testing.T) {
	f := newPipelineFixture(PipelineConfig{})
	f.assistant.chatErr = errors.New("backend down")

	err := f.pipeline.Handle(context.Background(), mentionEvent("<@BOT> q"))

	require.NoError(t, err)
	final := f.messenger.updated[f.messenger.postedTS]
	assert.Contains(t, final, "Sorry, I encountered an error")
}

func TestPipeline_FormatFailureFallsBackToRawMessage(t *testing.T) {
	f := newPipelineFixture(PipelineConfig{})
	f.assistant.chatAnswer = &domain.AssistantAnswer{
		Message: "raw answer",
		Citations: []domain.AnswerCitation{
			{Position: 9999, References: []domain.AnswerReference{rawRef("a.txt", "")}},
		},
	}

	err := f.pipeline.Handle(context.Background(), mentionEvent("<@BOT> q"))

	require.NoError(t, err)
	assert.Equal(t, "raw answer", f.messenger.updated[f.messenger.postedTS])
}

func TestPipeline_SyncKeywordMustBeWholePrompt(t *testing.T) {
	f := newPipelineFixture(PipelineConfig{})
	f.assistant.chatAnswer = &domain.AssistantAnswer{Message: "ok"}

	err := f.pipeline.Handle(context.Background(), mentionEvent("<@BOT> sync"))

	require.NoError(t, err)
	assert.Equal(t, 0, f.updater.runs)
}

func TestPipeline_DMSyncKeyword(t *testing.T) {
	f := newPipelineFixture(PipelineConfig{})
	f.messenger.dmChannel = "D42"
	payload, _ := json.Marshal(map[string]string{
		"ts": "1.0", "channel": "D42", "user": "U1", "text": "sync",
	})

	err := f.pipeline.Handle(context.Background(), driving.RawEvent{
		Kind: domain.EventMessage, Payload: payload,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, f.updater.runs)
	final := f.messenger.updated[f.messenger.postedTS]
	assert.Contains(t, final, "sync completed")
	assert.Contains(t, final, "2 uploaded")
}

func TestPipeline_DMChannelReopened(t *testing.T) {
	f := newPipelineFixture(PipelineConfig{AllowList: "D99"})
	f.messenger.dmChannel = "D99"
	f.assistant.chatAnswer = &domain.AssistantAnswer{Message: "hi"}
	payload, _ := json.Marshal(map[string]string{
		"ts": "1.0", "channel": "D42", "user": "U1", "text": "hello",
	})

	err := f.pipeline.Handle(context.Background(), driving.RawEvent{
		Kind: domain.EventMessage, Payload: payload,
	})

	// The reopened channel id D99 passes the allow-list, not D42.
	require.NoError(t, err)
	assert.Len(t, f.store.marks, 1)
}

func TestPipeline_AccessFailureSilent(t *testing.T) {
	f := newPipelineFixture(PipelineConfig{})
	f.messenger.channelInfoErr = errors.New("channel_not_found")

	err := f.pipeline.Handle(context.Background(), mentionEvent("<@BOT> q"))

	require.NoError(t, err)
	assert.Empty(t, f.messenger.posted)
}

func TestPipeline_AccessTimeoutApology(t *testing.T) {
	f := newPipelineFixture(PipelineConfig{})
	f.messenger.channelInfoErr = errors.New("operation_timeout")

	err := f.pipeline.Handle(context.Background(), mentionEvent("<@BOT> q"))

	require.NoError(t, err)
	// The user id is still set this early, so the apology is ephemeral.
	require.Len(t, f.messenger.ephemeral, 1)
	assert.Contains(t, f.messenger.ephemeral[0], "timed out")
}

func TestPipeline_BotMessageIgnored(t *testing.T) {
	f := newPipelineFixture(PipelineConfig{})
	payload, _ := json.Marshal(map[string]string{
		"ts": "1.0", "channel": "C1", "user": "U1", "text": "<@BOT> q", "bot_id": "B1",
	})

	err := f.pipeline.Handle(context.Background(), driving.RawEvent{
		Kind: domain.EventMessage, Payload: payload,
	})

	require.NoError(t, err)
	assert.Empty(t, f.messenger.posted)
	assert.Empty(t, f.analytics.events)
}

func TestPipeline_BotReactionEmitsAnalyticsOnly(t *testing.T) {
	f := newPipelineFixture(PipelineConfig{})
	f.messenger.replies = []driven.ThreadMessage{
		{TS: "2.0", UserID: "U2", Text: "bot answer", IsBot: true, Reactions: []domain.Reaction{
			{Name: "+1", Count: 1},
		}},
	}
	payload := `{
		"reaction": "+1",
		"item_user": "U2",
		"item": {"type": "message", "channel": "C1", "ts": "2.0"}
	}`

	err := f.pipeline.Handle(context.Background(), driving.RawEvent{
		Kind: domain.EventReactionAdded, Payload: json.RawMessage(payload),
	})

	require.NoError(t, err)
	require.NotEmpty(t, f.analytics.events)
	assert.Equal(t, "reaction_reaction_added:+1", f.analytics.events[0].Response)
	assert.Empty(t, f.messenger.posted)
}

func TestPipeline_TriggerReactionRunsChat(t *testing.T) {
	f := newPipelineFixture(PipelineConfig{})
	f.assistant.chatAnswer = &domain.AssistantAnswer{Message: "rerun"}
	f.messenger.replies = []driven.ThreadMessage{
		{TS: "2.0", UserID: "U2", Text: "original question"},
	}
	payload := `{
		"reaction": "perch",
		"item_user": "U2",
		"item": {"type": "message", "channel": "C1", "ts": "2.0"}
	}`

	err := f.pipeline.Handle(context.Background(), driving.RawEvent{
		Kind: domain.EventReactionAdded, Payload: json.RawMessage(payload),
	})

	require.NoError(t, err)
	assert.Equal(t, "rerun", f.messenger.updated[f.messenger.postedTS])
}

func TestPipeline_NonMessageReactionIgnored(t *testing.T) {
	f := newPipelineFixture(PipelineConfig{})
	payload := `{"reaction":"perch","item":{"type":"file","channel":"C1","ts":"2.0"}}`

	err := f.pipeline.Handle(context.Background(), driving.RawEvent{
		Kind: domain.EventReactionAdded, Payload: json.RawMessage(payload),
	})

	require.NoError(t, err)
	assert.Empty(t, f.messenger.posted)
	assert.Empty(t, f.analytics.events)
}

func TestPipeline_ReactionTargetMissingShortCircuits(t *testing.T) {
	f := newPipelineFixture(PipelineConfig{})
	payload := `{"reaction":"perch","item_user":"U2","item":{"type":"message","channel":"C1","ts":"9.9"}}`

	err := f.pipeline.Handle(context.Background(), driving.RawEvent{
		Kind: domain.EventReactionAdded, Payload: json.RawMessage(payload),
	})

	require.NoError(t, err)
	assert.Empty(t, f.messenger.posted)
}

func TestPipeline_UnknownKindFatal(t *testing.T) {
	f := newPipelineFixture(PipelineConfig{})

	err := f.pipeline.Handle(context.Background(), driving.RawEvent{
		Kind: domain.EventType("channel_join"), Payload: json.RawMessage(`{}`),
	})

	assert.ErrorIs(t, err, domain.ErrUnknownEventKind)
}

func TestPipeline_CommandEphemeral(t *testing.T) {
	f := newPipelineFixture(PipelineConfig{})
	f.assistant.chatAnswer = &domain.AssistantAnswer{Message: "cmd answer"}
	payload := `{"trigger_id":"trig-1","text":"question"}`

	err := f.pipeline.Handle(context.Background(), driving.RawEvent{
		Kind:    domain.EventCommand,
		Payload: json.RawMessage(payload),
		Meta:    driving.RawEventMeta{ChannelID: "C1", UserID: "U1"},
	})

	require.NoError(t, err)
	// Command replies stay visible only to the requesting user.
	require.NotEmpty(t, f.messenger.ephemeral)
	assert.Contains(t, strings.Join(f.messenger.ephemeral, "\n"), "cmd answer")
	assert.Empty(t, f.messenger.posted)
}
