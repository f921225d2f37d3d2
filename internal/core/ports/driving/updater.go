package driving

import "context"

// UpdateStats summarises one document reconciliation run.
type UpdateStats struct {
	// SourcesProcessed counts sources that completed reconciliation.
	SourcesProcessed int

	// Uploaded, Skipped and Deleted count per-file store mutations
	// across every source and store.
	Uploaded int
	Skipped  int
	Deleted  int
}

// Updater runs the document sync pipeline: fetch each configured
// source, normalise, reconcile against the assistant store (and the
// object store where configured), and execute the resulting plans.
// A run is serial within one invocation; concurrent runs for the same
// source race with last-writer-wins semantics on remote metadata.
type Updater interface {
	Run(ctx context.Context) (*UpdateStats, error)
}
