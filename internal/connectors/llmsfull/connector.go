// Package llmsfull fetches the bulk documentation feed: a single text
// blob of repeated URL / Last update / Content records.
package llmsfull

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/perch-labs/perch/internal/core/domain"
	"github.com/perch-labs/perch/internal/core/ports/driven"
	"github.com/perch-labs/perch/internal/logger"
)

const (
	// DefaultTimeout is the HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxRetries bounds feed fetch attempts.
	MaxRetries = 3

	// RetryDelay is the initial delay between fetch attempts.
	RetryDelay = time.Second
)

// columnMarkers are HTML layout artifacts stripped from record bodies.
var columnMarkers = regexp.MustCompile(`<!--\s*col-\d+\s*-->`)

// Config holds the feed settings.
type Config struct {
	// FeedURL is the llms-full.txt location.
	FeedURL string
}

// Connector downloads and splits the feed into per-document files.
type Connector struct {
	cfg    Config
	client *http.Client

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

var _ driven.DocumentSource = (*Connector)(nil)

// New creates a feed connector.
func New(cfg Config) *Connector {
	return &Connector{
		cfg:    cfg,
		client: &http.Client{Timeout: DefaultTimeout},
		sleep:  sleepContext,
	}
}

// Source returns the tag feed records carry.
func (c *Connector) Source() domain.Source {
	return domain.SourceDocs
}

// Fetch downloads the feed with bounded retry, parses its record
// grammar, and writes one file per document into outputDir. Records
// with an unparseable timestamp are logged and skipped.
func (c *Connector) Fetch(ctx context.Context, outputDir string) ([]domain.DocumentRecord, error) {
	content, err := c.download(ctx)
	if err != nil {
		return nil, err
	}

	entries := parseRecords(content)
	logger.Info("Parsed %d documents from feed", len(entries))

	records := make([]domain.DocumentRecord, 0, len(entries))
	for _, entry := range entries {
		rec, err := c.writeDocument(entry, outputDir)
		if err != nil {
			logger.Error("Error processing document %s: %v", entry.url, err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (c *Connector) download(ctx context.Context) (string, error) {
	delay := RetryDelay
	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		if attempt > 0 {
			logger.Warn("Attempt %d failed, retrying in %s: %v", attempt, delay, lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return "", err
			}
			delay *= 2
		}

		body, err := c.fetchOnce(ctx)
		if err == nil {
			return body, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("fetch %s: %w after %d attempts: %w", c.cfg.FeedURL, domain.ErrRetriesExhausted, MaxRetries, lastErr)
}

func (c *Connector) fetchOnce(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.FeedURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// feedEntry is one parsed record before it is written to disk.
type feedEntry struct {
	url        string
	lastUpdate string
	body       string
}

var recordStart = regexp.MustCompile(`(?m)^URL: `)

// parseRecords splits the feed on its record grammar:
//
//	URL: <url>
//	Last update: <ts>
//	Content:
//	---
//	<front matter>
//	---
//	<body>
//
// terminated by the next URL: line or end of input. Segments that do
// not follow the grammar are dropped.
func parseRecords(content string) []feedEntry {
	var entries []feedEntry
	for _, segment := range recordStart.Split(content, -1) {
		if strings.TrimSpace(segment) == "" {
			continue
		}
		entry, ok := parseSegment(segment)
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

func parseSegment(segment string) (feedEntry, bool) {
	lines := strings.SplitN(segment, "\n", 2)
	if len(lines) < 2 {
		return feedEntry{}, false
	}
	entry := feedEntry{url: strings.TrimSpace(lines[0])}
	rest := lines[1]

	lines = strings.SplitN(rest, "\n", 2)
	if len(lines) < 2 || !strings.HasPrefix(lines[0], "Last update: ") {
		return feedEntry{}, false
	}
	entry.lastUpdate = strings.TrimSpace(strings.TrimPrefix(lines[0], "Last update: "))
	rest = lines[1]

	if !strings.HasPrefix(rest, "Content:\n---\n") {
		return feedEntry{}, false
	}
	rest = strings.TrimPrefix(rest, "Content:\n---\n")

	// Front matter runs to the closing delimiter; the body follows.
	parts := strings.SplitN(rest, "\n---\n", 2)
	if len(parts) < 2 {
		return feedEntry{}, false
	}
	body := columnMarkers.ReplaceAllString(parts[1], "")
	entry.body = strings.TrimSpace(body)
	return entry, true
}

func (c *Connector) writeDocument(entry feedEntry, outputDir string) (domain.DocumentRecord, error) {
	updated, err := time.Parse(time.RFC3339, entry.lastUpdate)
	if err != nil {
		return domain.DocumentRecord{}, fmt.Errorf("parse last update %q: %w", entry.lastUpdate, err)
	}

	name := fileNameFromURL(entry.url)
	path := filepath.Join(outputDir, name)

	content := fmt.Sprintf("# %s\n\n%s", titleFromURL(entry.url), entry.body)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return domain.DocumentRecord{}, err
	}

	return domain.DocumentRecord{
		Source:      domain.SourceDocs,
		FileName:    name,
		LastUpdated: updated.Unix(),
		URL:         entry.url,
		LocalPath:   path,
	}, nil
}

// fileNameFromURL flattens the path under /docs/ into one file name,
// falling back to the last path segment.
func fileNameFromURL(url string) string {
	var parts []string
	if idx := strings.Index(url, "/docs/"); idx >= 0 {
		parts = strings.Split(url[idx+len("/docs/"):], "/")
	} else {
		segments := strings.Split(url, "/")
		parts = segments[len(segments)-1:]
	}
	return strings.Join(parts, "_") + ".md"
}

// titleFromURL derives a display title from the url slug.
func titleFromURL(url string) string {
	segments := strings.Split(url, "/")
	slug := segments[len(segments)-1]
	words := strings.Split(strings.ReplaceAll(slug, "-", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
