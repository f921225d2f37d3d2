// Package wiki fetches documents from an Outline-compatible wiki API.
package wiki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/perch-labs/perch/internal/core/domain"
	"github.com/perch-labs/perch/internal/core/ports/driven"
	"github.com/perch-labs/perch/internal/logger"
)

const (
	// DefaultTimeout is the HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultPageLimit is the documents.list page size.
	DefaultPageLimit = 50
)

// Config holds the wiki API connection settings.
type Config struct {
	// BaseURL is the API root, e.g. https://wiki.example.com/api.
	BaseURL string

	// Token is the API bearer token.
	Token string

	// PublicBaseURL prefixes document url paths to build citation
	// links, e.g. https://wiki.example.com.
	PublicBaseURL string

	// PageLimit overrides the page size.
	PageLimit int
}

// Connector exports every wiki document as markdown.
type Connector struct {
	cfg    Config
	client *http.Client
}

var _ driven.DocumentSource = (*Connector)(nil)

// New creates a wiki connector. The bearer token rides on every
// request via an oauth2 static token source.
func New(cfg Config) *Connector {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = DefaultPageLimit
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	client := oauth2.NewClient(context.Background(), ts)
	client.Timeout = DefaultTimeout
	return &Connector{cfg: cfg, client: client}
}

// Source returns the tag wiki records carry.
func (c *Connector) Source() domain.Source {
	return domain.SourceWiki
}

type listRequest struct {
	Offset    int    `json:"offset"`
	Limit     int    `json:"limit"`
	Sort      string `json:"sort"`
	Direction string `json:"direction"`
}

type wikiDocument struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	UpdatedAt string `json:"updatedAt"`
}

type listResponse struct {
	Data []wikiDocument `json:"data"`
}

// Fetch pages through documents.list and writes each document to
// outputDir as markdown with the title as a heading. Per-document
// write failures are logged and skipped.
func (c *Connector) Fetch(ctx context.Context, outputDir string) ([]domain.DocumentRecord, error) {
	var docs []wikiDocument
	offset := 0
	for {
		page, err := c.listPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		docs = append(docs, page...)
		if len(page) < c.cfg.PageLimit {
			break
		}
		offset += c.cfg.PageLimit
	}
	logger.Info("Fetched %d documents from wiki", len(docs))

	records := make([]domain.DocumentRecord, 0, len(docs))
	for _, doc := range docs {
		rec, err := c.writeDocument(doc, outputDir)
		if err != nil {
			logger.Error("Error writing wiki document %s: %v", doc.URL, err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (c *Connector) listPage(ctx context.Context, offset int) ([]wikiDocument, error) {
	payload, err := json.Marshal(listRequest{
		Offset:    offset,
		Limit:     c.cfg.PageLimit,
		Sort:      "updatedAt",
		Direction: "DESC",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/documents.list", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build list request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list documents: unexpected status %s", resp.Status)
	}

	var result listResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	return result.Data, nil
}

func (c *Connector) writeDocument(doc wikiDocument, outputDir string) (domain.DocumentRecord, error) {
	name := fileNameFromURL(doc.URL)
	path := filepath.Join(outputDir, name)

	content := fmt.Sprintf("# %s\n\n%s", doc.Title, doc.Text)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return domain.DocumentRecord{}, err
	}

	updated, err := time.Parse(time.RFC3339, doc.UpdatedAt)
	if err != nil {
		return domain.DocumentRecord{}, fmt.Errorf("parse updatedAt %q: %w", doc.UpdatedAt, err)
	}

	return domain.DocumentRecord{
		Source:      domain.SourceWiki,
		FileName:    name,
		LastUpdated: updated.Unix(),
		URL:         c.cfg.PublicBaseURL + doc.URL,
		LocalPath:   path,
	}, nil
}

// fileNameFromURL turns a document url path like /doc/getting-started-AbC
// into a flat markdown file name.
func fileNameFromURL(url string) string {
	parts := strings.Split(url, "/")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return strings.Join(parts, "_") + ".md"
}
