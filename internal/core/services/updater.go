package services

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/perch-labs/perch/internal/core/domain"
	"github.com/perch-labs/perch/internal/core/ports/driven"
	"github.com/perch-labs/perch/internal/core/ports/driving"
	"github.com/perch-labs/perch/internal/logger"
)

// SourceTarget binds one document source to its sync destinations.
type SourceTarget struct {
	// Source fetches and tags the documents.
	Source driven.DocumentSource

	// Precise trusts upstream timestamps exactly during reconciliation.
	Precise bool

	// MirrorToObjects additionally syncs this source to the object
	// store, reconciled by content hash.
	MirrorToObjects bool
}

// DocUpdater runs the document sync pipeline: fetch, normalise,
// reconcile, write. Sources are processed serially within one run;
// concurrent runs for the same source race with last-writer-wins
// semantics on remote metadata.
type DocUpdater struct {
	targets    []SourceTarget
	normaliser driven.Normaliser
	assistant  driven.Assistant
	writer     *Writer
	objects    driven.ObjectStore
	objWriter  *ObjectWriter
	objPrefix  string
}

var _ driving.Updater = (*DocUpdater)(nil)

// NewDocUpdater wires the sync pipeline. objects may be nil when no
// object store mirror is configured; targets asking for one are then
// skipped with a warning.
func NewDocUpdater(
	targets []SourceTarget,
	normaliser driven.Normaliser,
	assistant driven.Assistant,
	writer *Writer,
	objects driven.ObjectStore,
	objPrefix string,
) *DocUpdater {
	u := &DocUpdater{
		targets:    targets,
		normaliser: normaliser,
		assistant:  assistant,
		writer:     writer,
		objects:    objects,
		objPrefix:  objPrefix,
	}
	if objects != nil {
		u.objWriter = NewObjectWriter(objects, objPrefix)
	}
	return u
}

// Run reconciles every configured source. A source failure aborts the
// run; partially applied plans are picked up by the next pass. Each run
// carries an id so overlapping runs can be told apart in the logs.
func (u *DocUpdater) Run(ctx context.Context) (*driving.UpdateStats, error) {
	runID := uuid.NewString()
	logger.Info("Starting sync run %s over %d sources", runID, len(u.targets))

	stats := &driving.UpdateStats{}
	for _, target := range u.targets {
		if err := u.runSource(ctx, target, stats); err != nil {
			return stats, fmt.Errorf("sync source %s: %w", target.Source.Source(), err)
		}
		stats.SourcesProcessed++
	}
	logger.Info("Sync run %s complete: %d uploaded, %d skipped, %d deleted across %d sources",
		runID, stats.Uploaded, stats.Skipped, stats.Deleted, stats.SourcesProcessed)
	return stats, nil
}

func (u *DocUpdater) runSource(ctx context.Context, target SourceTarget, stats *driving.UpdateStats) error {
	source := target.Source.Source()
	logger.Info("Syncing source %s", source)

	fetchDir, err := os.MkdirTemp("", "perch-fetch-*")
	if err != nil {
		return fmt.Errorf("create fetch dir: %w", err)
	}
	defer os.RemoveAll(fetchDir)

	raw, err := target.Source.Fetch(ctx, fetchDir)
	if err != nil {
		return fmt.Errorf("fetch documents: %w", err)
	}
	logger.Info("Fetched %d documents from %s", len(raw), source)

	normDir, err := os.MkdirTemp("", "perch-norm-*")
	if err != nil {
		return fmt.Errorf("create normalise dir: %w", err)
	}
	defer os.RemoveAll(normDir)

	records := u.normaliseAll(raw, normDir)

	inventory, err := AssistantInventory(ctx, u.assistant, source)
	if err != nil {
		return err
	}

	plan := Reconcile(records, inventory, ReconcileOptions{Precise: target.Precise})
	logger.Info("Plan for %s: %d uploads, %d deletes", source, len(plan.Uploads), len(plan.Deletes))
	if err := u.writer.Apply(ctx, plan); err != nil {
		return err
	}
	stats.Uploaded += len(plan.Uploads)
	stats.Deleted += len(plan.Deletes)
	stats.Skipped += len(records) - len(plan.Uploads)

	if target.MirrorToObjects {
		if err := u.mirrorToObjects(ctx, source, records, stats); err != nil {
			return err
		}
	}
	return nil
}

// normaliseAll converts fetched documents, dropping individual
// failures so one broken document never aborts the batch.
func (u *DocUpdater) normaliseAll(raw []domain.DocumentRecord, outputDir string) []domain.DocumentRecord {
	records := make([]domain.DocumentRecord, 0, len(raw))
	for _, doc := range raw {
		rec, err := u.normaliser.Normalise(doc, outputDir)
		if err != nil {
			logger.Error("Failed to normalise %s: %v", doc.FileName, err)
			continue
		}
		records = append(records, rec)
	}
	return records
}

func (u *DocUpdater) mirrorToObjects(ctx context.Context, source domain.Source, records []domain.DocumentRecord, stats *driving.UpdateStats) error {
	if u.objects == nil {
		logger.Warn("No object store configured, skipping mirror for %s", source)
		return nil
	}

	inventory, err := ObjectInventory(ctx, u.objects, u.objPrefix, source)
	if err != nil {
		return err
	}

	plan := ReconcileByHash(records, inventory)
	logger.Info("Object plan for %s: %d uploads, %d deletes", source, len(plan.Uploads), len(plan.Deletes))
	uploaded, deleted, err := u.objWriter.Apply(ctx, plan)
	if err != nil {
		return err
	}
	stats.Uploaded += uploaded
	stats.Deleted += deleted
	stats.Skipped += len(records) - uploaded
	return nil
}
