package services

import (
	"context"
	"sync"
	"time"

	"github.com/perch-labs/perch/internal/core/ports/driving"
	"github.com/perch-labs/perch/internal/logger"
)

// SyncScheduler re-runs the document updater on a fixed interval.
// A failed run is logged and the loop keeps going; the next tick gets
// a fresh attempt.
type SyncScheduler struct {
	updater  driving.Updater
	interval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewSyncScheduler creates a scheduler running the updater every
// interval.
func NewSyncScheduler(updater driving.Updater, interval time.Duration) *SyncScheduler {
	return &SyncScheduler{updater: updater, interval: interval}
}

// Start runs the updater once immediately, then on every interval
// tick. It blocks until the context is cancelled or Stop is called,
// returning nil in both cases.
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// Stop ends the scheduler loop. Safe to call when not running.
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
}

func (s *SyncScheduler) runOnce(ctx context.Context) {
	stats, err := s.updater.Run(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("scheduled sync failed: %v", err)
		}
		return
	}
	logger.Info("scheduled sync complete: %d sources, %d uploaded, %d skipped, %d deleted",
		stats.SourcesProcessed, stats.Uploaded, stats.Skipped, stats.Deleted)
}
