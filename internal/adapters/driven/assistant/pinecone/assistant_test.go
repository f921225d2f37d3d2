package pinecone

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perch-labs/perch/internal/core/domain"
)

func newTestAssistant(t *testing.T, handler http.Handler) *Assistant {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	a, err := New(Config{
		APIKey:        "test-key",
		AssistantName: "perch",
		BaseURL:       server.URL,
	})
	require.NoError(t, err)
	return a
}

func TestNew_RequiresAPIKeyAndName(t *testing.T) {
	_, err := New(Config{AssistantName: "perch"})
	assert.Error(t, err)

	_, err = New(Config{APIKey: "k"})
	assert.Error(t, err)
}

func TestListFiles(t *testing.T) {
	a := newTestAssistant(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/assistant/files/perch", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("Api-Key"))
		json.NewEncoder(w).Encode(map[string]any{
			"files": []map[string]any{
				{
					"id":   "f1",
					"name": "wiki_a.txt",
					"metadata": map[string]string{
						"source":       "wiki_docs",
						"last_updated": "100",
						"url":          "https://wiki.example.com/a",
						"content_hash": "h1",
					},
				},
			},
		})
	}))

	entries, err := a.ListFiles(context.Background())

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "f1", entries[0].ID)
	assert.Equal(t, domain.SourceWiki, entries[0].Metadata.Source)
	assert.Equal(t, "h1", entries[0].Metadata.ContentHash)
}

func TestUploadFile_SendsMetadataQuery(t *testing.T) {
	var gotMetadata string
	a := newTestAssistant(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		gotMetadata = r.URL.Query().Get("metadata")
		require.NoError(t, r.ParseMultipartForm(1 << 20))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "doc.txt", header.Filename)
		json.NewEncoder(w).Encode(map[string]string{"id": "f-new"})
	}))

	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	id, err := a.UploadFile(context.Background(), path, domain.RemoteMetadata{
		Source: domain.SourceWiki, LastUpdated: "100", ContentHash: "h",
	})

	require.NoError(t, err)
	assert.Equal(t, "f-new", id)

	var meta map[string]string
	require.NoError(t, json.Unmarshal([]byte(gotMetadata), &meta))
	assert.Equal(t, "wiki_docs", meta["source"])
	assert.Equal(t, "100", meta["last_updated"])
}

func TestDescribeFile(t *testing.T) {
	a := newTestAssistant(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/assistant/files/perch/f1", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"id": "f1", "name": "a.txt",
			"metadata": map[string]string{"last_updated": "100"},
		})
	}))

	entry, err := a.DescribeFile(context.Background(), "f1")

	require.NoError(t, err)
	assert.Equal(t, "100", entry.Metadata.LastUpdated)
}

func TestDeleteFile_ErrorStatus(t *testing.T) {
	a := newTestAssistant(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))

	err := a.DeleteFile(context.Background(), "f1")

	assert.Error(t, err)
}

func TestChat_MapsCitations(t *testing.T) {
	a := newTestAssistant(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/assistant/chat/perch", r.URL.Path)

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"content": "the answer"},
			"citations": []map[string]any{
				{
					"position": 7,
					"references": []map[string]any{
						{"file": map[string]any{
							"name":     "a.txt",
							"metadata": map[string]string{"url": "https://example.com/a"},
						}},
					},
				},
			},
		})
	}))

	answer, err := a.Chat(context.Background(), []domain.ConversationMessage{
		domain.NewUserMessage("question"),
	})

	require.NoError(t, err)
	assert.Equal(t, "the answer", answer.Message)
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, 7, answer.Citations[0].Position)
	assert.Equal(t, "https://example.com/a", answer.Citations[0].References[0].File.Metadata.URL)
}
