package localdir

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perch-labs/perch/internal/core/domain"
)

func TestFetch_CopiesMarkdownFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "readme.md"), []byte("# Readme"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "guides"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "guides", "setup.md"), []byte("# Setup"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("not markdown"), 0o644))

	outDir := t.TempDir()
	records, err := New(root).Fetch(context.Background(), outDir)

	require.NoError(t, err)
	require.Len(t, records, 2)

	names := []string{records[0].FileName, records[1].FileName}
	assert.ElementsMatch(t, []string{"readme.md", "guides_setup.md"}, names)
	for _, rec := range records {
		assert.Equal(t, domain.SourceLocal, rec.Source)
		assert.NotZero(t, rec.LastUpdated)
		assert.FileExists(t, rec.LocalPath)
	}
}

func TestFetch_EmptyDirectory(t *testing.T) {
	records, err := New(t.TempDir()).Fetch(context.Background(), t.TempDir())

	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetch_MissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent")).Fetch(context.Background(), t.TempDir())

	assert.Error(t, err)
}

func TestWatch_FiresAfterMarkdownChange(t *testing.T) {
	root := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- New(root).Watch(ctx, func() {
			select {
			case fired <- struct{}{}:
			default:
			}
		})
	}()

	// Give the watcher a moment to register the root.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "new.md"), []byte("# New"), 0o644))

	select {
	case <-fired:
	case <-time.After(debounceWindow + 5*time.Second):
		t.Fatal("watcher did not fire after markdown change")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop on context cancel")
	}
}

func TestIsMarkdown(t *testing.T) {
	assert.True(t, isMarkdown("a.md"))
	assert.True(t, isMarkdown("b.MARKDOWN"))
	assert.False(t, isMarkdown("c.txt"))
}
