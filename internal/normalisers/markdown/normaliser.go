package markdown

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/perch-labs/perch/internal/core/domain"
	"github.com/perch-labs/perch/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser converts fetched markdown into canonical plaintext.
// Tables are flattened into "Header: value | Header: value" lines and
// runs of blank lines are collapsed; everything else passes through
// unchanged so the content hash stays stable across re-fetches.
type Normaliser struct{}

// New creates a markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

var (
	// tablePattern matches a header row, its delimiter row, and every
	// following body row.
	tablePattern = regexp.MustCompile(`\|(.+)\|\n\|[-|\s]+\|\n((?:\|.+\|\n)+)`)

	// linkPattern reduces [label](url) to its label.
	linkPattern = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)

	blankRuns = regexp.MustCompile(`\n{3,}`)
)

// Normalise reads the fetched markdown, flattens it, and writes the
// plaintext under outputDir as {source}_{stem}.txt. The returned
// record carries the new name, path and content hash.
func (n *Normaliser) Normalise(raw domain.DocumentRecord, outputDir string) (domain.DocumentRecord, error) {
	body, err := os.ReadFile(raw.LocalPath)
	if err != nil {
		return domain.DocumentRecord{}, fmt.Errorf("read %s: %w", raw.LocalPath, err)
	}

	content := Flatten(string(body))

	sum := sha256.Sum256([]byte(content))

	stem := strings.TrimSuffix(filepath.Base(raw.LocalPath), filepath.Ext(raw.LocalPath))
	name := fmt.Sprintf("%s_%s.txt", raw.Source, stem)
	outPath := filepath.Join(outputDir, name)
	if err := os.WriteFile(outPath, []byte(content), 0o644); err != nil {
		return domain.DocumentRecord{}, fmt.Errorf("write %s: %w", outPath, err)
	}

	raw.FileName = name
	raw.LocalPath = outPath
	raw.ContentHash = hex.EncodeToString(sum[:])
	return raw, nil
}

// Flatten converts markdown tables to plain text lines and collapses
// runs of three or more newlines to a single blank line.
func Flatten(content string) string {
	content = tablePattern.ReplaceAllStringFunc(content, flattenTable)
	return blankRuns.ReplaceAllString(content, "\n\n")
}

// flattenTable turns one matched table into one line per row, pairing
// each cell with its column header. Empty and placeholder cells are
// dropped; link and emphasis markup inside cells is stripped.
func flattenTable(table string) string {
	match := tablePattern.FindStringSubmatch(table)
	if match == nil {
		return table
	}

	var headers []string
	for _, h := range strings.Split(match[1], "|") {
		h = strings.Trim(strings.TrimSpace(h), "*")
		if h != "" {
			headers = append(headers, h)
		}
	}

	var lines []string
	for _, row := range strings.Split(match[2], "\n") {
		if strings.TrimSpace(row) == "" {
			continue
		}
		cells := strings.Split(row, "|")
		if len(cells) < 2 {
			continue
		}
		cells = cells[1 : len(cells)-1]
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
		if len(cells) != len(headers) || !anyFilled(cells) {
			continue
		}

		var entry []string
		for i, value := range cells {
			if value == "" || value == "-" {
				continue
			}
			value = linkPattern.ReplaceAllString(value, "$1")
			value = strings.ReplaceAll(value, "==", "")
			value = strings.ReplaceAll(value, "**", "")
			entry = append(entry, fmt.Sprintf("%s: %s", headers[i], value))
		}
		if len(entry) > 0 {
			lines = append(lines, strings.Join(entry, " | "))
		}
	}

	return strings.Join(lines, "\n") + "\n\n"
}

func anyFilled(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return true
		}
	}
	return false
}
