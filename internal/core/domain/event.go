package domain

import "strings"

// EventType classifies an inbound platform trigger.
type EventType string

const (
	// EventMention is an explicit @-mention of the bot.
	EventMention EventType = "app_mention"

	// EventMessage is a plain channel or DM message.
	EventMessage EventType = "message"

	// EventReactionAdded is a reaction attached to a message.
	EventReactionAdded EventType = "reaction_added"

	// EventReactionRemoved is a reaction removed from a message.
	EventReactionRemoved EventType = "reaction_removed"

	// EventCommand is the slash command trigger.
	EventCommand EventType = "command"
)

// IsReaction reports whether the type is a reaction change.
func (t EventType) IsReaction() bool {
	return t == EventReactionAdded || t == EventReactionRemoved
}

// DedupKey uniquely identifies one platform event for idempotency.
// The pair (Channel, Timestamp) is globally unique per dedup entry.
type DedupKey struct {
	Channel   string
	Timestamp string
}

// ChatEvent is the canonical form of any inbound trigger. It is created
// once per raw payload by the parser, mutated in place as it moves
// through the pipeline, and discarded after the reply and analytics
// emit complete. Only its dedup marker outlives the invocation.
type ChatEvent struct {
	Type      EventType
	EventTS   string
	ChannelID string
	UserID    string
	Text      string
	ThreadTS  string

	// UpdateTS is the timestamp of a previously posted reply; when set,
	// subsequent sends update that message in place.
	UpdateTS string

	// Reaction is the reaction name that produced a reaction event.
	Reaction string

	Ephemeral bool
	IsDM      bool
	IsBot     bool

	// Scratch fields populated during processing.
	Response        string
	Context         []ConversationMessage
	ContextMetadata []MessageReputation
	Reactions       []string
	Score           int
}

// DedupKey returns the idempotency key for this event.
func (e *ChatEvent) DedupKey() DedupKey {
	return DedupKey{Channel: e.ChannelID, Timestamp: e.EventTS}
}

// ConversationMessage is one turn of reconstructed thread context,
// ordered oldest-first.
type ConversationMessage struct {
	// Role is "user" unless the message was produced as an assistant reply.
	Role string

	Content string
}

// NewUserMessage builds a user-role conversation message.
func NewUserMessage(content string) ConversationMessage {
	return ConversationMessage{Role: "user", Content: content}
}

// IsDMChannel reports whether a channel id follows the direct-message
// naming convention (leading 'D' sentinel).
func IsDMChannel(channelID string) bool {
	return strings.HasPrefix(channelID, "D")
}

// ChannelAllowed checks a channel against a comma-separated allow-list.
// A list of "*" admits every channel. Entries are trimmed before
// comparison.
func ChannelAllowed(allowList, channelID string) bool {
	entries := strings.Split(allowList, ",")
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "*" || entry == channelID {
			return true
		}
	}
	return false
}
