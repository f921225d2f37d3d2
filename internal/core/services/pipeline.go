package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/perch-labs/perch/internal/core/domain"
	"github.com/perch-labs/perch/internal/core/ports/driven"
	"github.com/perch-labs/perch/internal/core/ports/driving"
	"github.com/perch-labs/perch/internal/logger"
)

const (
	loadingMessage = "Thinking 🧐"

	emptyPromptReply = "Looks like you didn't provide a prompt. Try again."

	channelNotAllowedReply = "I'm sorry, this channel is not yet allowed to use Perch. Please reach out to the team for assistance."

	timeoutReply = "The request timed out. Please try again in a moment."

	// DefaultTriggerReaction is the emoji that re-runs the chat process
	// on an existing message.
	DefaultTriggerReaction = "perch"

	// SyncKeyword in a triggering message runs the document sync inline.
	SyncKeyword = "sync"
)

// PipelineConfig is the static configuration of the event pipeline.
type PipelineConfig struct {
	// BotUserID is the platform user id of the bot; mention events only
	// trigger when the text contains it. "*" matches every message.
	BotUserID string

	// AllowList is the comma-separated channel allow-list ("*" = all).
	AllowList string

	// TriggerReaction is the emoji that triggers the chat process when
	// added to a message. Empty uses the default.
	TriggerReaction string
}

// Pipeline composes the parser, dedup gate, context builder, backend
// and formatter into the per-event flow. Invocations for different
// events run concurrently; the idempotency table is the only shared
// mutable state, so the pipeline takes no local locks.
type Pipeline struct {
	parser    *EventParser
	gate      *DedupGate
	contexts  *ContextBuilder
	assistant driven.Assistant
	messenger driven.Messenger
	analytics driven.AnalyticsSink
	updater   driving.Updater
	cfg       PipelineConfig

	// now is injectable for analytics timestamps in tests.
	now func() time.Time
}

var _ driving.EventPipeline = (*Pipeline)(nil)

// NewPipeline wires the event pipeline. updater may be nil when
// document sync is not configured; the sync keyword then reports that
// instead of running. analytics may be nil to disable emission.
func NewPipeline(
	parser *EventParser,
	gate *DedupGate,
	contexts *ContextBuilder,
	assistant driven.Assistant,
	messenger driven.Messenger,
	analytics driven.AnalyticsSink,
	updater driving.Updater,
	cfg PipelineConfig,
) *Pipeline {
	if cfg.TriggerReaction == "" {
		cfg.TriggerReaction = DefaultTriggerReaction
	}
	return &Pipeline{
		parser:    parser,
		gate:      gate,
		contexts:  contexts,
		assistant: assistant,
		messenger: messenger,
		analytics: analytics,
		updater:   updater,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Handle processes one inbound event end to end. A returned error is a
// programmer-visible failure (unknown kind, decode failure); expected
// short-circuits (duplicates, ignored events, unreachable channels)
// return nil after logging.
func (p *Pipeline) Handle(ctx context.Context, raw driving.RawEvent) error {
	logger.Info("Processing event: %s", raw.Kind)

	// Reactions to files or file comments carry no conversation.
	if raw.Kind.IsReaction() && !ReactionTargetsMessage(raw.Payload) {
		logger.Info("Ignoring non-message reaction")
		return nil
	}

	event, err := p.parser.Parse(ctx, raw)
	if err != nil {
		if errors.Is(err, domain.ErrTargetNotFound) {
			logger.Error("Reaction target resolution failed: %v", err)
			return nil
		}
		return err
	}

	// Bot-authored messages only matter as reaction analytics.
	if event.IsBot {
		if !event.Type.IsReaction() {
			logger.Info("Ignoring bot message for non-reaction event %s", event.EventTS)
			return nil
		}
		logger.Info("Reaction change on bot message, emitting analytics")
		p.emitAnalytics(ctx, event)
	}

	channelID, ok := p.verifyChannelAccess(ctx, event)
	if !ok {
		logger.Warn("Channel access verification failed for %s", event.ChannelID)
		return nil
	}
	event.ChannelID = channelID

	if !domain.ChannelAllowed(p.cfg.AllowList, event.ChannelID) {
		logger.Info("Channel %s is not on the allow list", event.ChannelID)
		if err := p.send(ctx, event, channelNotAllowedReply); err != nil {
			logger.Error("Failed to send allow-list refusal: %v", err)
		}
		return nil
	}

	// A populated user id makes sends ephemeral, which breaks threading
	// for ordinary channel replies.
	if !event.Ephemeral {
		event.UserID = ""
	}

	if event.IsDM || !event.Type.IsReaction() {
		if p.gate.Check(ctx, event.DedupKey()) {
			logger.Info("Duplicate event %s %s, ignoring", event.EventTS, event.ChannelID)
			return nil
		}
	}

	if !p.shouldRunChat(event) {
		logger.Info("Ignoring non-relevant event %s for %s", event.Type, event.EventTS)
		return nil
	}

	if err := p.gate.Mark(ctx, event.DedupKey()); err != nil {
		logger.Error("Failed to mark event: %v", err)
	}
	p.processChat(ctx, event)
	return nil
}

// shouldRunChat decides whether the event triggers a backend query:
// DMs and slash commands always do; mentions and messages only when
// the bot is mentioned; reaction_added only for the trigger emoji.
func (p *Pipeline) shouldRunChat(event *domain.ChatEvent) bool {
	switch {
	case event.IsDM, event.Type == domain.EventCommand:
		return true
	case event.Type == domain.EventMention || event.Type == domain.EventMessage:
		return p.cfg.BotUserID == "*" || strings.Contains(event.Text, "<@"+p.cfg.BotUserID+">")
	case event.Type == domain.EventReactionAdded:
		return event.Reaction == p.cfg.TriggerReaction
	default:
		return false
	}
}

// verifyChannelAccess confirms the bot can post where the event came
// from. DM channel ids from event payloads are not always directly
// usable, so DMs re-open the conversation and adopt the returned id.
// Only timeout-class failures produce a user-visible apology; other
// access failures stay silent to avoid posting into channels the bot
// cannot reach.
func (p *Pipeline) verifyChannelAccess(ctx context.Context, event *domain.ChatEvent) (string, bool) {
	var err error
	if event.IsDM {
		var channelID string
		channelID, err = p.messenger.OpenDM(ctx, event.UserID)
		if err == nil {
			return channelID, true
		}
	} else {
		err = p.messenger.ChannelInfo(ctx, event.ChannelID)
		if err == nil {
			return event.ChannelID, true
		}
	}

	logger.Error("Channel access verification failed: %v", err)
	if isTimeout(err) {
		if sendErr := p.send(ctx, event, timeoutReply); sendErr != nil {
			logger.Error("Failed to send timeout message: %v", sendErr)
		}
	}
	return event.ChannelID, false
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(strings.ToLower(err.Error()), "operation_timeout")
}

// processChat runs the context/query/format/reply flow. Failures are
// surfaced to the requesting thread as plain-text apologies rather
// than propagated.
func (p *Pipeline) processChat(ctx context.Context, event *domain.ChatEvent) {
	if event.Text == "" {
		logger.Info("Message is empty: %s %s", event.EventTS, event.ChannelID)
		if err := p.send(ctx, event, emptyPromptReply); err != nil {
			logger.Error("Failed to send empty prompt reply: %v", err)
		}
		return
	}

	if err := p.runChat(ctx, event); err != nil {
		logger.Error("Error processing message: %v", err)
		if sendErr := p.send(ctx, event, fmt.Sprintf("Sorry, I encountered an error: %v", err)); sendErr != nil {
			logger.Error("Failed to send error reply: %v", sendErr)
		}
	}
}

func (p *Pipeline) runChat(ctx context.Context, event *domain.ChatEvent) error {
	current := domain.NewUserMessage(event.Text)

	if !event.Ephemeral && event.ThreadTS != "" {
		messages, metadata, err := p.contexts.Build(ctx, event.ChannelID, event.ThreadTS)
		if err != nil {
			return err
		}
		event.Context = messages
		event.ContextMetadata = metadata
	}

	// The triggering message may already be the last thread entry.
	if n := len(event.Context); n == 0 || event.Context[n-1].Content != current.Content {
		event.Context = append(event.Context, current)
	}

	p.emitAnalytics(ctx, event)

	if err := p.send(ctx, event, fmt.Sprintf("%s\n> %s", loadingMessage, event.Text)); err != nil {
		return fmt.Errorf("send loading message: %w", err)
	}

	if strings.ToLower(strings.TrimSpace(event.Text)) == SyncKeyword {
		p.runSync(ctx, event)
		return nil
	}

	answer, err := p.assistant.Chat(ctx, event.Context)
	if err != nil {
		return fmt.Errorf("query backend: %w", err)
	}

	response, err := FormatResponse(answer)
	if err != nil {
		logger.Error("Error formatting response with citations: %v", err)
		response = answer.Message
	}

	logger.Info("Sending response of %d chars", len(response))
	if err := p.send(ctx, event, response); err != nil {
		return fmt.Errorf("send response: %w", err)
	}

	p.emitAnalytics(ctx, event)
	return nil
}

// runSync runs the document reconciliation inline, reporting progress
// to the requesting thread.
func (p *Pipeline) runSync(ctx context.Context, event *domain.ChatEvent) {
	if p.updater == nil {
		if err := p.send(ctx, event, "Document sync is not configured."); err != nil {
			logger.Error("Failed to send sync reply: %v", err)
		}
		return
	}

	if err := p.send(ctx, event, "Starting document sync... This may take a few minutes."); err != nil {
		logger.Error("Failed to send sync progress: %v", err)
	}

	stats, err := p.updater.Run(ctx)
	if err != nil {
		logger.Error("Document sync failed: %v", err)
		if sendErr := p.send(ctx, event, fmt.Sprintf("❌ Document sync failed: %v", err)); sendErr != nil {
			logger.Error("Failed to send sync failure: %v", sendErr)
		}
		return
	}

	summary := fmt.Sprintf("✅ Document sync completed: %d uploaded, %d skipped, %d deleted across %d sources.",
		stats.Uploaded, stats.Skipped, stats.Deleted, stats.SourcesProcessed)
	if err := p.send(ctx, event, summary); err != nil {
		logger.Error("Failed to send sync summary: %v", err)
	}
}

// send delivers text to the event's origin: in place when a reply was
// already posted, ephemerally for command events, threaded otherwise.
func (p *Pipeline) send(ctx context.Context, event *domain.ChatEvent, text string) error {
	event.Response = text
	switch {
	case event.UpdateTS != "":
		logger.Info("Updating message %s", event.UpdateTS)
		return p.messenger.UpdateMessage(ctx, event.ChannelID, event.UpdateTS, text)
	case event.IsDM || event.UserID == "":
		ts, err := p.messenger.PostMessage(ctx, event.ChannelID, event.ThreadTS, text)
		if err != nil {
			return err
		}
		event.UpdateTS = ts
		return nil
	default:
		return p.messenger.PostEphemeral(ctx, event.ChannelID, event.UserID, event.ThreadTS, text)
	}
}

// emitAnalytics sends the event snapshot to the analytics sink.
// Failures are logged and never fail the pipeline.
func (p *Pipeline) emitAnalytics(ctx context.Context, event *domain.ChatEvent) {
	if p.analytics == nil {
		return
	}

	contextLines := make([]string, 0, len(event.Context))
	for _, msg := range event.Context {
		contextLines = append(contextLines, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}

	metadata := make([]map[string]any, 0, len(event.ContextMetadata))
	for _, m := range event.ContextMetadata {
		metadata = append(metadata, map[string]any{
			"ts":        m.TS,
			"reactions": m.ReactionNames,
			"is_bot":    m.IsBot,
			"text":      m.Text,
			"score":     m.Score,
		})
	}

	record := driven.AnalyticsEvent{
		EventType:       string(event.Type),
		EventTS:         event.EventTS,
		ChannelID:       event.ChannelID,
		ThreadTS:        event.ThreadTS,
		UserID:          event.UserID,
		Request:         event.Text,
		Response:        event.Response,
		Context:         contextLines,
		ContextMetadata: metadata,
		Reactions:       event.Reactions,
		Score:           event.Score,
		Ephemeral:       event.Ephemeral,
		IsDM:            event.IsDM,
		IsBot:           event.IsBot,
		UpdatedAt:       float64(p.now().UnixNano()) / float64(time.Second),
	}
	if err := p.analytics.Emit(ctx, record); err != nil {
		logger.Error("Failed to emit analytics event: %v", err)
	}
}
