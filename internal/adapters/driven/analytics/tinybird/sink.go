// Package tinybird provides an analytics sink that appends events to a
// Tinybird data source over the events API.
package tinybird

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/perch-labs/perch/internal/core/ports/driven"
)

// Ensure Sink implements the interface.
var _ driven.AnalyticsSink = (*Sink)(nil)

// DefaultBaseURL is the Tinybird events API endpoint.
const DefaultBaseURL = "https://api.tinybird.co"

// DefaultDataSource is the data source events land in.
const DefaultDataSource = "chat_history"

// Config holds the Tinybird sink configuration.
type Config struct {
	// Token is the Tinybird API token (required).
	Token string

	// BaseURL overrides the API endpoint, mainly for testing.
	BaseURL string

	// DataSource is the target data source name.
	DataSource string

	// Timeout is the per-request timeout.
	Timeout time.Duration
}

// Sink appends analytics events as NDJSON rows.
type Sink struct {
	cfg    Config
	client *http.Client
}

// New creates a Tinybird analytics sink.
func New(cfg Config) (*Sink, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("tinybird token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.DataSource == "" {
		cfg.DataSource = DefaultDataSource
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Sink{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Emit appends one event. The events API expects newline-delimited JSON,
// so the encoded row is terminated with "\n".
func (s *Sink) Emit(ctx context.Context, event driven.AnalyticsEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding analytics event: %w", err)
	}
	payload = append(payload, '\n')

	endpoint := fmt.Sprintf("%s/v0/events?name=%s", s.cfg.BaseURL, url.QueryEscape(s.cfg.DataSource))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending analytics event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("analytics event rejected: status %d: %s", resp.StatusCode, detail)
	}
	return nil
}
