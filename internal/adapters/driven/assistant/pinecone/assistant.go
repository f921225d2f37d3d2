// Package pinecone provides the RAG backend adapter using the Pinecone
// Assistant API.
package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/perch-labs/perch/internal/core/domain"
	"github.com/perch-labs/perch/internal/core/ports/driven"
)

// Ensure Assistant implements the interface.
var _ driven.Assistant = (*Assistant)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "https://prod-1-data.ke.pinecone.io"
	DefaultModel   = "claude-3-5-sonnet"
	DefaultTimeout = 120 * time.Second
)

// Config holds the Pinecone Assistant connection settings.
type Config struct {
	// APIKey is the Pinecone API key (required).
	APIKey string

	// AssistantName identifies the assistant instance (required).
	AssistantName string

	// BaseURL is the assistant data-plane URL.
	BaseURL string

	// Model is the chat model name.
	Model string

	// Timeout is the request timeout.
	Timeout time.Duration
}

// Assistant talks to one Pinecone assistant instance.
type Assistant struct {
	client  *http.Client
	baseURL string
	apiKey  string
	name    string
	model   string
}

// New creates a Pinecone assistant adapter.
func New(cfg Config) (*Assistant, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("pinecone: API key is required")
	}
	if cfg.AssistantName == "" {
		return nil, fmt.Errorf("pinecone: assistant name is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Assistant{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		name:    cfg.AssistantName,
		model:   cfg.Model,
	}, nil
}

// fileObject is the API representation of a stored file.
type fileObject struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Metadata  map[string]string `json:"metadata"`
	UpdatedOn string            `json:"updated_on"`
}

func (f fileObject) toRemoteEntry() domain.RemoteEntry {
	entry := domain.RemoteEntry{
		ID:   f.ID,
		Name: f.Name,
		Metadata: domain.RemoteMetadata{
			Source:      domain.Source(f.Metadata["source"]),
			LastUpdated: f.Metadata["last_updated"],
			URL:         f.Metadata["url"],
			ContentHash: f.Metadata["content_hash"],
		},
	}
	if ts, err := time.Parse(time.RFC3339, f.UpdatedOn); err == nil {
		entry.LastModified = ts
	}
	return entry
}

type listFilesResponse struct {
	Files []fileObject `json:"files"`
}

// ListFiles enumerates every file in the assistant's document store.
func (a *Assistant) ListFiles(ctx context.Context) ([]domain.RemoteEntry, error) {
	var result listFilesResponse
	if err := a.do(ctx, http.MethodGet, a.filesURL(""), "", nil, &result); err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	entries := make([]domain.RemoteEntry, 0, len(result.Files))
	for _, f := range result.Files {
		entries = append(entries, f.toRemoteEntry())
	}
	return entries, nil
}

// UploadFile pushes a local file with metadata and returns its id. The
// metadata rides in a query parameter as the API requires.
func (a *Assistant) UploadFile(ctx context.Context, localPath string, meta domain.RemoteMetadata) (string, error) {
	metaJSON, err := json.Marshal(map[string]string{
		"source":       string(meta.Source),
		"last_updated": meta.LastUpdated,
		"url":          meta.URL,
		"content_hash": meta.ContentHash,
	})
	if err != nil {
		return "", err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(localPath))
	if err != nil {
		return "", err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		f.Close()
		return "", err
	}
	f.Close()
	if err := writer.Close(); err != nil {
		return "", err
	}

	uploadURL := a.filesURL("") + "?metadata=" + url.QueryEscape(string(metaJSON))
	var result fileObject
	if err := a.do(ctx, http.MethodPost, uploadURL, writer.FormDataContentType(), body, &result); err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	return result.ID, nil
}

// DescribeFile reads back the stored metadata for a file id.
func (a *Assistant) DescribeFile(ctx context.Context, fileID string) (domain.RemoteEntry, error) {
	var result fileObject
	if err := a.do(ctx, http.MethodGet, a.filesURL(fileID), "", nil, &result); err != nil {
		return domain.RemoteEntry{}, fmt.Errorf("describe file %s: %w", fileID, err)
	}
	return result.toRemoteEntry(), nil
}

// DeleteFile removes a file by id.
func (a *Assistant) DeleteFile(ctx context.Context, fileID string) error {
	if err := a.do(ctx, http.MethodDelete, a.filesURL(fileID), "", nil, nil); err != nil {
		return fmt.Errorf("delete file %s: %w", fileID, err)
	}
	return nil
}

// chatRequest is the assistant chat request format.
type chatRequest struct {
	Messages []chatMessage `json:"messages"`
	Model    string        `json:"model,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the assistant chat response format.
type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Citations []struct {
		Position   int `json:"position"`
		References []struct {
			File fileObject `json:"file"`
		} `json:"references"`
	} `json:"citations"`
}

// Chat sends the conversation and returns the raw answer with
// citation offsets.
func (a *Assistant) Chat(ctx context.Context, messages []domain.ConversationMessage) (*domain.AssistantAnswer, error) {
	req := chatRequest{Model: a.model}
	for _, msg := range messages {
		req.Messages = append(req.Messages, chatMessage{Role: msg.Role, Content: msg.Content})
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var result chatResponse
	chatURL := fmt.Sprintf("%s/assistant/chat/%s", a.baseURL, a.name)
	if err := a.do(ctx, http.MethodPost, chatURL, "application/json", bytes.NewReader(payload), &result); err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}

	answer := &domain.AssistantAnswer{Message: result.Message.Content}
	for _, citation := range result.Citations {
		c := domain.AnswerCitation{Position: citation.Position}
		for _, ref := range citation.References {
			entry := ref.File.toRemoteEntry()
			c.References = append(c.References, domain.AnswerReference{
				File: domain.AnswerFile{Name: entry.Name, Metadata: entry.Metadata},
			})
		}
		answer.Citations = append(answer.Citations, c)
	}
	return answer, nil
}

func (a *Assistant) filesURL(fileID string) string {
	u := fmt.Sprintf("%s/assistant/files/%s", a.baseURL, a.name)
	if fileID != "" {
		u += "/" + fileID
	}
	return u
}

// do executes one API request, decoding a JSON response into out when
// out is non-nil.
func (a *Assistant) do(ctx context.Context, method, rawURL, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Api-Key", a.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, detail)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
