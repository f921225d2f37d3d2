package services

import (
	"context"
	"fmt"
	"time"

	"github.com/perch-labs/perch/internal/core/domain"
	"github.com/perch-labs/perch/internal/core/ports/driven"
	"github.com/perch-labs/perch/internal/logger"
)

// AssistantInventory reads the assistant's document store into a
// snapshot keyed by logical file name, filtered to one source. The
// snapshot is best-effort: concurrent writers may invalidate it before
// the plan executes.
func AssistantInventory(ctx context.Context, assistant driven.Assistant, source domain.Source) (map[string]domain.RemoteEntry, error) {
	files, err := assistant.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list assistant files: %w", err)
	}

	inventory := make(map[string]domain.RemoteEntry)
	for _, f := range files {
		if f.Metadata.Source != source {
			continue
		}
		inventory[f.Name] = f
	}
	logger.Info("Found %d existing files in assistant for source %s", len(inventory), source)
	return inventory, nil
}

// ObjectInventory reads an object store prefix into a snapshot keyed
// by logical file name (key minus prefix), filtered to one source.
// Keys whose metadata cannot be read are skipped rather than failing
// the pass.
func ObjectInventory(ctx context.Context, store driven.ObjectStore, prefix string, source domain.Source) (map[string]domain.RemoteEntry, error) {
	inventory := make(map[string]domain.RemoteEntry)

	var infos []driven.ObjectInfo
	err := store.List(ctx, prefix, func(page []driven.ObjectInfo) bool {
		infos = append(infos, page...)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	for _, info := range infos {
		meta, err := store.Head(ctx, info.Key)
		if err != nil {
			logger.Debug("Skipping unreadable object %s: %v", info.Key, err)
			continue
		}
		remote := driven.MetadataToRemote(meta)
		if remote.Source != source {
			continue
		}
		name := info.Key[len(prefix):]
		inventory[name] = domain.RemoteEntry{
			ID:           info.Key,
			Name:         name,
			Metadata:     remote,
			LastModified: time.Unix(info.LastModified, 0),
		}
	}
	logger.Info("Found %d existing objects under %s for source %s", len(inventory), prefix, source)
	return inventory, nil
}
