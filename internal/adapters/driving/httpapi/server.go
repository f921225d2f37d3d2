// Package httpapi exposes the Slack Events API surface over HTTP.
//
// Slack retries deliveries that are not acknowledged within three
// seconds, so handlers acknowledge immediately and dispatch the event
// into the pipeline on its own goroutine. The idempotency table absorbs
// the retries that slip through anyway.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	slackapi "github.com/slack-go/slack"

	"github.com/perch-labs/perch/internal/core/domain"
	"github.com/perch-labs/perch/internal/core/ports/driving"
	"github.com/perch-labs/perch/internal/logger"
)

// handleTimeout bounds one pipeline invocation after the HTTP request
// has already been acknowledged.
const handleTimeout = 5 * time.Minute

// Config holds the HTTP server configuration.
type Config struct {
	// ListenAddr is the address to listen on.
	ListenAddr string

	// SigningSecret verifies inbound request signatures. Empty disables
	// verification; only do that in tests.
	SigningSecret string
}

// Server is the inbound HTTP adapter driving the event pipeline.
type Server struct {
	cfg      Config
	pipeline driving.EventPipeline
	engine   *gin.Engine
	server   *http.Server

	// dispatch hands an event to the pipeline. Replaced in tests to run
	// synchronously.
	dispatch func(raw driving.RawEvent)
}

// New creates the HTTP server and registers its routes.
func New(cfg Config, pipeline driving.EventPipeline) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:      cfg,
		pipeline: pipeline,
		engine:   gin.New(),
	}
	s.dispatch = s.dispatchAsync

	s.engine.Use(gin.Recovery())
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.POST("/slack/events", s.handleEvents)
	s.engine.POST("/slack/commands", s.handleCommand)

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	logger.Info("listening on %s", s.cfg.ListenAddr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight HTTP requests. Already-dispatched pipeline
// invocations run to completion on their own timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) dispatchAsync(raw driving.RawEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()

		if err := s.pipeline.Handle(ctx, raw); err != nil {
			logger.Error("handling %s event: %v", raw.Kind, err)
		}
	}()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// eventEnvelope is the outer structure of an Events API delivery.
type eventEnvelope struct {
	Type      string          `json:"type"`
	Challenge string          `json:"challenge"`
	Event     json.RawMessage `json:"event"`
}

// innerEvent is the minimal view needed to classify the payload.
type innerEvent struct {
	Type string `json:"type"`
}

func (s *Server) handleEvents(c *gin.Context) {
	body, ok := s.verifiedBody(c)
	if !ok {
		return
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	switch envelope.Type {
	case "url_verification":
		c.JSON(http.StatusOK, gin.H{"challenge": envelope.Challenge})
		return
	case "event_callback":
		// Handled below.
	default:
		c.Status(http.StatusOK)
		return
	}

	var inner innerEvent
	if err := json.Unmarshal(envelope.Event, &inner); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}

	kind := domain.EventType(inner.Type)
	switch kind {
	case domain.EventMention, domain.EventMessage, domain.EventReactionAdded, domain.EventReactionRemoved:
		s.dispatch(driving.RawEvent{Kind: kind, Payload: envelope.Event})
	default:
		logger.Debug("ignoring event type %q", inner.Type)
	}

	c.Status(http.StatusOK)
}

// commandPayload is the JSON form a slash command is dispatched as.
type commandPayload struct {
	TriggerID string `json:"trigger_id"`
	Text      string `json:"text"`
}

func (s *Server) handleCommand(c *gin.Context) {
	body, ok := s.verifiedBody(c)
	if !ok {
		return
	}

	form, err := parseForm(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed form"})
		return
	}

	payload, err := json.Marshal(commandPayload{
		TriggerID: form.Get("trigger_id"),
		Text:      form.Get("text"),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encoding command"})
		return
	}

	s.dispatch(driving.RawEvent{
		Kind:    domain.EventCommand,
		Payload: payload,
		Meta: driving.RawEventMeta{
			ChannelID: form.Get("channel_id"),
			UserID:    form.Get("user_id"),
		},
	})

	// An empty 200 acknowledges without posting; the reply arrives as an
	// ephemeral message from the pipeline.
	c.Status(http.StatusOK)
}

func parseForm(body []byte) (url.Values, error) {
	return url.ParseQuery(string(body))
}

// verifiedBody reads the request body and checks its Slack signature.
// On failure it writes the response itself and returns ok=false.
func (s *Server) verifiedBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reading body"})
		return nil, false
	}

	if s.cfg.SigningSecret == "" {
		return body, true
	}

	verifier, err := slackapi.NewSecretsVerifier(c.Request.Header, s.cfg.SigningSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing signature"})
		return nil, false
	}
	if _, err := verifier.Write(body); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verifying signature"})
		return nil, false
	}
	if err := verifier.Ensure(); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return nil, false
	}
	return body, true
}
