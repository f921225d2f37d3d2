package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/perch-labs/perch/internal/core/domain"
	"github.com/perch-labs/perch/internal/core/ports/driven"
	"github.com/perch-labs/perch/internal/logger"
)

// Default write policy.
const (
	DefaultMaxRetries     = 5
	DefaultRetryDelay     = 1 * time.Second
	DefaultUploadInterval = 1 * time.Second
)

// ConfirmFunc is the interactive gate invoked before a plan mutates a
// store when auto-confirm is off. Returning false cancels the plan.
type ConfirmFunc func(plan domain.SyncPlan) bool

// WriterConfig tunes plan execution.
type WriterConfig struct {
	// MaxRetries bounds upload attempts (default 5).
	MaxRetries int

	// RetryDelay is the backoff base (default 1s). The delay before
	// attempt i is RetryDelay << i.
	RetryDelay time.Duration

	// UploadInterval throttles successive successful uploads.
	UploadInterval time.Duration

	// AutoConfirm skips the interactive gate.
	AutoConfirm bool

	// Confirm is consulted when AutoConfirm is false. A nil Confirm
	// with AutoConfirm off cancels any non-empty plan.
	Confirm ConfirmFunc
}

func (c WriterConfig) withDefaults() WriterConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.UploadInterval <= 0 {
		c.UploadInterval = DefaultUploadInterval
	}
	return c
}

// Writer executes sync plans against the assistant's document store
// with bounded retry and post-write verification.
type Writer struct {
	assistant driven.Assistant
	cfg       WriterConfig
	limiter   *rate.Limiter

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewWriter creates a plan executor for the assistant store.
func NewWriter(assistant driven.Assistant, cfg WriterConfig) *Writer {
	cfg = cfg.withDefaults()
	return &Writer{
		assistant: assistant,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Every(cfg.UploadInterval), 1),
		sleep:     sleepContext,
	}
}

// Apply runs the plan: deletes first (once each, failures logged and
// skipped), then uploads with retry and verification. An upload that
// exhausts its attempts fails the batch.
func (w *Writer) Apply(ctx context.Context, plan domain.SyncPlan) error {
	if plan.Empty() {
		logger.Info("No changes needed")
		return nil
	}

	if !w.cfg.AutoConfirm {
		if w.cfg.Confirm == nil || !w.cfg.Confirm(plan) {
			return domain.ErrCancelled
		}
	}

	for _, entry := range plan.Deletes {
		if err := w.assistant.DeleteFile(ctx, entry.ID); err != nil {
			logger.Error("Failed to delete file %s: %v", entry.Name, err)
			continue
		}
		logger.Info("Deleted file %s", entry.Name)
	}

	total := len(plan.Uploads)
	for i, rec := range plan.Uploads {
		logger.Info("Uploading file %d of %d: %s", i+1, total, rec.FileName)
		if err := w.uploadWithRetry(ctx, rec); err != nil {
			return fmt.Errorf("upload %s: %w", rec.FileName, err)
		}
		// Throttle between successful uploads to stay under rate limits.
		if i < total-1 {
			if err := w.limiter.Wait(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// uploadWithRetry pushes one record, verifying after each write that
// the store now reports a last_updated value. A missing value counts
// as a failed attempt.
func (w *Writer) uploadWithRetry(ctx context.Context, rec domain.DocumentRecord) error {
	meta := domain.RemoteMetadata{
		Source:      rec.Source,
		LastUpdated: fmt.Sprintf("%d", rec.LastUpdated),
		URL:         rec.URL,
		ContentHash: rec.ContentHash,
	}

	var lastErr error
	for attempt := 0; attempt < w.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := w.cfg.RetryDelay << attempt
			logger.Warn("Attempt %d failed for %s, retrying in %s", attempt, rec.FileName, delay)
			if err := w.sleep(ctx, delay); err != nil {
				return err
			}
		}

		lastErr = w.uploadOnce(ctx, rec.LocalPath, meta)
		if lastErr == nil {
			logger.Info("Uploaded and verified file %s", rec.FileName)
			return nil
		}
	}
	logger.Error("Failed to upload %s after %d attempts: %v", rec.FileName, w.cfg.MaxRetries, lastErr)
	return fmt.Errorf("%w after %d attempts: %w", domain.ErrRetriesExhausted, w.cfg.MaxRetries, lastErr)
}

func (w *Writer) uploadOnce(ctx context.Context, localPath string, meta domain.RemoteMetadata) error {
	fileID, err := w.assistant.UploadFile(ctx, localPath, meta)
	if err != nil {
		return err
	}

	described, err := w.assistant.DescribeFile(ctx, fileID)
	if err != nil {
		return fmt.Errorf("describe after upload: %w", err)
	}
	if described.Metadata.LastUpdated == "" {
		return fmt.Errorf("%w: file %s has no last_updated after upload", domain.ErrUploadVerification, fileID)
	}
	return nil
}

// ObjectWriter executes hash-based plans against an object store.
// Per-item failures are logged and do not block remaining work; the
// object store is a secondary mirror of the assistant's corpus.
type ObjectWriter struct {
	store  driven.ObjectStore
	prefix string
}

// NewObjectWriter creates a plan executor for an object store prefix.
func NewObjectWriter(store driven.ObjectStore, prefix string) *ObjectWriter {
	return &ObjectWriter{store: store, prefix: prefix}
}

// Apply deletes stale keys then writes changed objects as text/plain
// with reconciliation metadata. Returns counts of mutations applied.
func (w *ObjectWriter) Apply(ctx context.Context, plan domain.SyncPlan) (uploaded, deleted int, err error) {
	for _, entry := range plan.Deletes {
		if err := w.store.Delete(ctx, entry.ID); err != nil {
			logger.Error("Failed to delete object %s: %v", entry.ID, err)
			continue
		}
		deleted++
	}

	for _, rec := range plan.Uploads {
		body, err := os.ReadFile(rec.LocalPath)
		if err != nil {
			logger.Error("Failed to read %s: %v", rec.LocalPath, err)
			continue
		}
		meta := driven.RemoteToMetadata(domain.RemoteMetadata{
			Source:      rec.Source,
			LastUpdated: fmt.Sprintf("%d", rec.LastUpdated),
			URL:         rec.URL,
			ContentHash: rec.ContentHash,
		})
		key := w.prefix + rec.FileName
		if err := w.store.Put(ctx, key, body, meta, "text/plain"); err != nil {
			logger.Error("Failed to upload object %s: %v", key, err)
			continue
		}
		uploaded++
	}
	return uploaded, deleted, nil
}

// sleepContext waits for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsRetriesExhausted reports whether err is a retry exhaustion.
func IsRetriesExhausted(err error) bool {
	return errors.Is(err, domain.ErrRetriesExhausted)
}
