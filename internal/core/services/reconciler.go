package services

import (
	"github.com/perch-labs/perch/internal/core/domain"
	"github.com/perch-labs/perch/internal/logger"
)

// skewWindow caps how far ahead a local timestamp may be, in imprecise
// mode, before it stops counting as newer. Upstream "last modified"
// stamps tick on republish without content changes; a bounded window
// keeps clock skew from forcing full re-uploads.
const skewWindow = 24 * 60 * 60

// ReconcileOptions tunes plan computation.
type ReconcileOptions struct {
	// Precise trusts timestamps exactly. When false, a local record only
	// counts as newer when the gap is under the 24h skew window.
	Precise bool
}

// Reconcile diffs a local manifest for one source against a remote
// inventory snapshot and produces the store mutations needed to make
// the remote match. Pure function: no I/O, no side effects.
//
// A remote entry not named in the manifest is deleted. A local record
// is uploaded when the remote has no entry for its name, when the
// remote entry has no last_updated metadata (never verified), or when
// the record is newer and its content hash differs from the remote's.
// A newer record whose hash matches the remote is skipped: the upstream
// stamp ticked but the content did not change.
func Reconcile(local []domain.DocumentRecord, remote map[string]domain.RemoteEntry, opts ReconcileOptions) domain.SyncPlan {
	var plan domain.SyncPlan

	localNames := make(map[string]struct{}, len(local))
	for _, rec := range local {
		localNames[rec.FileName] = struct{}{}
	}

	for name, entry := range remote {
		if _, ok := localNames[name]; !ok {
			plan.Deletes = append(plan.Deletes, entry)
		}
	}

	for _, rec := range local {
		entry, exists := remote[rec.FileName]
		if !exists {
			plan.Uploads = append(plan.Uploads, rec)
			continue
		}

		existingTS, ok := entry.Metadata.LastUpdatedUnix()
		if !ok {
			// No verified upload timestamp: treat as never written.
			plan.Uploads = append(plan.Uploads, rec)
			continue
		}

		if !isNewer(rec.LastUpdated, existingTS, opts.Precise) {
			continue
		}

		if entry.Metadata.ContentHash != "" && entry.Metadata.ContentHash == rec.ContentHash {
			logger.Debug("File %s content unchanged, skipping", rec.FileName)
			continue
		}
		plan.Uploads = append(plan.Uploads, rec)
	}

	return plan
}

// ReconcileByHash diffs a manifest against a remote inventory using
// content hashes only. Object stores keep no verified upload timestamp
// worth trusting, so a key is rewritten whenever its hash differs and
// removed when no local record names it.
func ReconcileByHash(local []domain.DocumentRecord, remote map[string]domain.RemoteEntry) domain.SyncPlan {
	var plan domain.SyncPlan

	localNames := make(map[string]struct{}, len(local))
	for _, rec := range local {
		localNames[rec.FileName] = struct{}{}
	}

	for name, entry := range remote {
		if _, ok := localNames[name]; !ok {
			plan.Deletes = append(plan.Deletes, entry)
		}
	}

	for _, rec := range local {
		entry, exists := remote[rec.FileName]
		if exists && entry.Metadata.ContentHash == rec.ContentHash {
			logger.Debug("Object %s content unchanged, skipping", rec.FileName)
			continue
		}
		plan.Uploads = append(plan.Uploads, rec)
	}

	return plan
}

// isNewer applies the two-tier timestamp rule. In precise mode any
// strictly greater timestamp wins; otherwise the gap must also be
// under the skew window.
func isNewer(newTS, existingTS int64, precise bool) bool {
	if newTS <= existingTS {
		return false
	}
	if precise {
		return true
	}
	return newTS-existingTS < skewWindow
}
