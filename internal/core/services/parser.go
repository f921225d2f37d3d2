package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/perch-labs/perch/internal/core/domain"
	"github.com/perch-labs/perch/internal/core/ports/driving"
	"github.com/perch-labs/perch/internal/logger"
)

// messagePayload covers app_mention and message event bodies. Edited
// messages nest the current text under a message_changed subtype.
type messagePayload struct {
	Subtype    string          `json:"subtype"`
	TS         string          `json:"ts"`
	Channel    string          `json:"channel"`
	User       string          `json:"user"`
	Text       string          `json:"text"`
	ThreadTS   string          `json:"thread_ts"`
	BotID      string          `json:"bot_id"`
	BotProfile json.RawMessage `json:"bot_profile"`

	Message struct {
		Text string `json:"text"`
		TS   string `json:"ts"`
	} `json:"message"`
}

// commandPayload is the slash command form body. Channel and user
// arrive in the request context, not the body.
type commandPayload struct {
	TriggerID string `json:"trigger_id"`
	Text      string `json:"text"`
	ThreadTS  string `json:"thread_ts"`
}

// reactionPayload covers reaction_added and reaction_removed bodies.
type reactionPayload struct {
	Reaction string `json:"reaction"`
	ItemUser string `json:"item_user"`

	Item struct {
		Type    string `json:"type"`
		Channel string `json:"channel"`
		TS      string `json:"ts"`
	} `json:"item"`
}

// EventParser turns raw platform payloads into canonical events. Each
// event kind is decoded into its own typed shape at this boundary;
// nothing downstream sees raw JSON.
type EventParser struct {
	contexts *ContextBuilder
}

// NewEventParser creates a parser. The context builder is needed to
// resolve the target message of reaction events.
func NewEventParser(contexts *ContextBuilder) *EventParser {
	return &EventParser{contexts: contexts}
}

// ReactionTargetsMessage reports whether a reaction payload is attached
// to a message item. Reactions on files or file comments are ignored
// upstream of parsing.
func ReactionTargetsMessage(payload json.RawMessage) bool {
	var p reactionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return false
	}
	return p.Item.Type == "message"
}

// Parse builds a ChatEvent from one raw payload. An unrecognised kind
// returns ErrUnknownEventKind. For reaction events a resolution
// failure returns the partially populated event alongside
// ErrTargetNotFound so the caller can still log it.
func (p *EventParser) Parse(ctx context.Context, raw driving.RawEvent) (*domain.ChatEvent, error) {
	switch raw.Kind {
	case domain.EventMention, domain.EventMessage:
		return p.parseMessage(raw)
	case domain.EventCommand:
		return p.parseCommand(raw)
	case domain.EventReactionAdded, domain.EventReactionRemoved:
		return p.parseReaction(ctx, raw)
	default:
		return nil, fmt.Errorf("parse event kind %q: %w", raw.Kind, domain.ErrUnknownEventKind)
	}
}

func (p *EventParser) parseMessage(raw driving.RawEvent) (*domain.ChatEvent, error) {
	var payload messagePayload
	if err := json.Unmarshal(raw.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", raw.Kind, err)
	}

	text, ts := payload.Text, payload.TS
	if payload.Subtype == "message_changed" {
		logger.Info("Processing edited message %s", payload.Message.TS)
		text = payload.Message.Text
		if payload.Message.TS != "" {
			ts = payload.Message.TS
		}
	}

	threadTS := payload.ThreadTS
	if threadTS == "" {
		threadTS = ts
	}

	return &domain.ChatEvent{
		Type:      raw.Kind,
		EventTS:   ts,
		ChannelID: payload.Channel,
		UserID:    payload.User,
		Text:      text,
		ThreadTS:  threadTS,
		IsDM:      domain.IsDMChannel(payload.Channel),
		IsBot:     payload.BotID != "" || len(payload.BotProfile) > 0,
	}, nil
}

func (p *EventParser) parseCommand(raw driving.RawEvent) (*domain.ChatEvent, error) {
	var payload commandPayload
	if err := json.Unmarshal(raw.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode command payload: %w", err)
	}

	return &domain.ChatEvent{
		Type:      domain.EventCommand,
		EventTS:   payload.TriggerID,
		ChannelID: raw.Meta.ChannelID,
		UserID:    raw.Meta.UserID,
		Text:      payload.Text,
		ThreadTS:  payload.ThreadTS,
		Ephemeral: true,
		IsDM:      domain.IsDMChannel(raw.Meta.ChannelID),
	}, nil
}

func (p *EventParser) parseReaction(ctx context.Context, raw driving.RawEvent) (*domain.ChatEvent, error) {
	var payload reactionPayload
	if err := json.Unmarshal(raw.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode reaction payload: %w", err)
	}

	event := &domain.ChatEvent{
		Type:      raw.Kind,
		EventTS:   payload.Item.TS,
		ChannelID: payload.Item.Channel,
		UserID:    payload.ItemUser,
		ThreadTS:  payload.Item.TS,
		Reaction:  payload.Reaction,
		Response:  fmt.Sprintf("reaction_%s:%s", raw.Kind, payload.Reaction),
		IsDM:      domain.IsDMChannel(payload.Item.Channel),
	}

	// Resolve the message the reaction is attached to; the reaction
	// payload itself carries no text or authorship.
	messages, metadata, err := p.contexts.Build(ctx, event.ChannelID, event.ThreadTS)
	if err != nil {
		return event, fmt.Errorf("resolve reaction target: %w", err)
	}

	var target *domain.MessageReputation
	for i := range metadata {
		if metadata[i].TS == payload.Item.TS {
			target = &metadata[i]
			break
		}
	}
	if target == nil {
		logger.Error("Could not find message %s in thread %s", payload.Item.TS, event.ChannelID)
		return event, fmt.Errorf("message %s: %w", payload.Item.TS, domain.ErrTargetNotFound)
	}

	event.ThreadTS = target.TS
	event.Text = target.Text
	event.IsBot = target.IsBot
	event.Reactions = target.ReactionNames
	event.Score = target.Score
	event.Context = messages
	event.ContextMetadata = metadata
	return event, nil
}
