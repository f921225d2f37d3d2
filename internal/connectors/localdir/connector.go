// Package localdir treats a directory of markdown files as a document
// source, with optional change watching.
package localdir

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/perch-labs/perch/internal/core/domain"
	"github.com/perch-labs/perch/internal/core/ports/driven"
	"github.com/perch-labs/perch/internal/logger"
)

// debounceWindow coalesces bursts of filesystem events into one
// notification. Editors typically emit several writes per save.
const debounceWindow = 2 * time.Second

// Connector exports markdown files from a local directory.
type Connector struct {
	root string
}

var _ driven.DocumentSource = (*Connector)(nil)

// New creates a connector rooted at dir.
func New(dir string) *Connector {
	return &Connector{root: dir}
}

// Source returns the tag local records carry.
func (c *Connector) Source() domain.Source {
	return domain.SourceLocal
}

// Fetch copies every markdown file under the root into outputDir.
// Unreadable files are logged and skipped.
func (c *Connector) Fetch(ctx context.Context, outputDir string) ([]domain.DocumentRecord, error) {
	var records []domain.DocumentRecord
	err := filepath.WalkDir(c.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() || !isMarkdown(path) {
			return nil
		}

		rec, copyErr := c.copyFile(path, outputDir)
		if copyErr != nil {
			logger.Error("Error reading %s: %v", path, copyErr)
			return nil
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", c.root, err)
	}
	logger.Info("Found %d markdown files under %s", len(records), c.root)
	return records, nil
}

func (c *Connector) copyFile(path, outputDir string) (domain.DocumentRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.DocumentRecord{}, err
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return domain.DocumentRecord{}, err
	}

	rel, err := filepath.Rel(c.root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	name := strings.ReplaceAll(rel, string(filepath.Separator), "_")
	outPath := filepath.Join(outputDir, name)
	if err := os.WriteFile(outPath, body, 0o644); err != nil {
		return domain.DocumentRecord{}, err
	}

	return domain.DocumentRecord{
		Source:      domain.SourceLocal,
		FileName:    name,
		LastUpdated: info.ModTime().Unix(),
		URL:         "file://" + path,
		LocalPath:   outPath,
	}, nil
}

func isMarkdown(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".md" || ext == ".markdown"
}

// Watch blocks until ctx is cancelled, invoking fn after each settled
// burst of markdown changes under the root. Watcher errors are logged;
// only a failure to start watching is returned.
func (c *Connector) Watch(ctx context.Context, fn func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	err = filepath.WalkDir(c.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", c.root, err)
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isMarkdown(event.Name) && !event.Has(fsnotify.Create) {
				continue
			}
			// New directories need watching too.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						logger.Warn("Failed to watch %s: %v", event.Name, err)
					}
					continue
				}
				if !isMarkdown(event.Name) {
					continue
				}
			}
			logger.Debug("Change detected: %s %s", event.Op, event.Name)
			if timer == nil {
				timer = time.AfterFunc(debounceWindow, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(debounceWindow)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("Watcher error: %v", err)
		case <-fire:
			timer = nil
			fn()
		}
	}
}
