package driven

import "context"

// AnalyticsEvent is one append-only analytics record. Context lines are
// pre-rendered as "role: content" strings so the sink stays schema-flat.
type AnalyticsEvent struct {
	EventType       string           `json:"event_type"`
	EventTS         string           `json:"event_ts"`
	ChannelID       string           `json:"channel_id"`
	ThreadTS        string           `json:"thread_ts"`
	UserID          string           `json:"user_id"`
	Request         string           `json:"request"`
	Response        string           `json:"response"`
	Context         []string         `json:"context"`
	ContextMetadata []map[string]any `json:"context_metadata"`
	Reactions       []string         `json:"reactions"`
	Score           int              `json:"score"`
	Ephemeral       bool             `json:"ephemeral"`
	IsDM            bool             `json:"is_dm"`
	IsBot           bool             `json:"is_bot"`
	UpdatedAt       float64          `json:"updated_at"`
}

// AnalyticsSink receives append-only event emissions. Emission failures
// are logged by callers and never fail the pipeline.
type AnalyticsSink interface {
	Emit(ctx context.Context, event AnalyticsEvent) error
}
