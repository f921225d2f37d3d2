package markdown

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perch-labs/perch/internal/core/domain"
)

func TestFlatten_ConvertsTable(t *testing.T) {
	content := "Intro text\n\n" +
		"| Name | Role |\n" +
		"|------|------|\n" +
		"| Ada | Engineer |\n" +
		"| Grace | Admiral |\n" +
		"\nOutro text\n"

	out := Flatten(content)

	assert.Contains(t, out, "Name: Ada | Role: Engineer")
	assert.Contains(t, out, "Name: Grace | Role: Admiral")
	assert.NotContains(t, out, "|------|")
	assert.Contains(t, out, "Intro text")
	assert.Contains(t, out, "Outro text")
}

func TestFlatten_DropsPlaceholderCells(t *testing.T) {
	content := "| Name | Note |\n" +
		"|------|------|\n" +
		"| Ada | - |\n" +
		"| Grace |  |\n"

	out := Flatten(content)

	assert.Contains(t, out, "Name: Ada")
	assert.Contains(t, out, "Name: Grace")
	assert.NotContains(t, out, "Note:")
}

func TestFlatten_StripsMarkupInCells(t *testing.T) {
	content := "| Doc | Status |\n" +
		"|-----|--------|\n" +
		"| [Guide](https://example.com/guide) | **done** |\n"

	out := Flatten(content)

	assert.Contains(t, out, "Doc: Guide | Status: done")
	assert.NotContains(t, out, "https://example.com/guide")
	assert.NotContains(t, out, "**")
}

func TestFlatten_BoldHeadersTrimmed(t *testing.T) {
	content := "| **Key** | **Value** |\n" +
		"|---------|-----------|\n" +
		"| a | b |\n"

	out := Flatten(content)

	assert.Contains(t, out, "Key: a | Value: b")
}

func TestFlatten_CollapsesBlankRuns(t *testing.T) {
	out := Flatten("first\n\n\n\n\nsecond")

	assert.Equal(t, "first\n\nsecond", out)
}

func TestFlatten_NonTableContentUnchanged(t *testing.T) {
	content := "# Heading\n\nSome *emphasis* and [a link](https://example.com).\n"

	out := Flatten(content)

	assert.Equal(t, content, out)
}

func TestNormalise_WritesFileAndHash(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "getting-started.md")
	require.NoError(t, os.WriteFile(srcPath, []byte("# Title\n\nbody\n"), 0o644))

	outDir := t.TempDir()
	rec, err := New().Normalise(domain.DocumentRecord{
		Source:      domain.SourceWiki,
		LocalPath:   srcPath,
		LastUpdated: 100,
		URL:         "https://wiki.example.com/getting-started",
	}, outDir)

	require.NoError(t, err)
	assert.Equal(t, "wiki_docs_getting-started.txt", rec.FileName)
	assert.Equal(t, filepath.Join(outDir, rec.FileName), rec.LocalPath)
	assert.Len(t, rec.ContentHash, 64)
	assert.Equal(t, int64(100), rec.LastUpdated)

	body, err := os.ReadFile(rec.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nbody\n", string(body))
}

func TestNormalise_Idempotent(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "doc.md")
	content := "| A | B |\n|---|---|\n| 1 | 2 |\n\n\n\ntail\n"
	require.NoError(t, os.WriteFile(srcPath, []byte(content), 0o644))

	first, err := New().Normalise(domain.DocumentRecord{Source: domain.SourceDocs, LocalPath: srcPath}, t.TempDir())
	require.NoError(t, err)

	// Normalising the already normalised output hashes identically.
	second, err := New().Normalise(domain.DocumentRecord{Source: domain.SourceDocs, LocalPath: first.LocalPath}, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, first.ContentHash, second.ContentHash)
}

func TestNormalise_MissingFile(t *testing.T) {
	_, err := New().Normalise(domain.DocumentRecord{
		Source:    domain.SourceWiki,
		LocalPath: filepath.Join(t.TempDir(), "absent.md"),
	}, t.TempDir())

	assert.Error(t, err)
}
