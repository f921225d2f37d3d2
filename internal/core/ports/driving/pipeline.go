package driving

import (
	"context"
	"encoding/json"

	"github.com/perch-labs/perch/internal/core/domain"
)

// RawEvent is one inbound platform payload with its declared kind.
// Slash commands carry their channel/user in Meta because the platform
// delivers them outside the event body.
type RawEvent struct {
	Kind    domain.EventType
	Payload json.RawMessage

	// Meta carries request-scoped fields for command payloads.
	Meta RawEventMeta
}

// RawEventMeta is the request context accompanying a slash command.
type RawEventMeta struct {
	ChannelID string
	UserID    string
}

// EventPipeline processes one inbound platform event end to end:
// parse, gate, context, backend query, format, reply, analytics.
// Invocations for different events run as independent goroutines; the
// idempotency table is the only shared mutable state.
type EventPipeline interface {
	Handle(ctx context.Context, raw RawEvent) error
}
