package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/perch-labs/perch/internal/core/domain"
)

// NormalizeAnswer reduces a raw backend answer to the internal
// (message, citations) shape. Each reference's display URL comes from
// the metadata written at upload time, falling back to the file name
// when no URL was recorded.
func NormalizeAnswer(answer *domain.AssistantAnswer) domain.NormalizedAnswer {
	normalized := domain.NormalizedAnswer{Message: answer.Message}
	for _, citation := range answer.Citations {
		refs := make([]domain.Reference, 0, len(citation.References))
		for _, ref := range citation.References {
			url := ref.File.Metadata.URL
			if url == "" {
				url = ref.File.Name
			}
			refs = append(refs, domain.Reference{Name: ref.File.Name, URL: url})
		}
		normalized.Citations = append(normalized.Citations, domain.Citation{
			Position:   citation.Position,
			References: refs,
		})
	}
	return normalized
}

// FormatAnswer renders a normalized answer as chat text: bracketed
// citation markers inserted into the message and a numbered references
// block prepended. Reference numbers are assigned by first appearance
// scanning citations in ascending position order, so the same URL
// cited twice gets one number. Citation positions index the original
// message; returning an error on an invalid offset lets the caller
// fall back to the raw message.
func FormatAnswer(normalized domain.NormalizedAnswer) (string, error) {
	message := normalized.Message
	if len(normalized.Citations) == 0 {
		return message, nil
	}

	citations := make([]domain.Citation, len(normalized.Citations))
	copy(citations, normalized.Citations)
	sort.SliceStable(citations, func(i, j int) bool {
		return citations[i].Position < citations[j].Position
	})

	// First pass: number each distinct URL by first appearance.
	refNumbers := make(map[string]int)
	var ordered []string
	for _, citation := range citations {
		if citation.Position < 0 || citation.Position > len(message) {
			return "", fmt.Errorf("citation position %d out of range for message of %d bytes", citation.Position, len(message))
		}
		// Positions index bytes. A backend counting characters can place
		// one inside a multi-byte rune; splicing there would corrupt the
		// text, so treat it the same as out of range.
		if citation.Position < len(message) && !utf8.RuneStart(message[citation.Position]) {
			return "", fmt.Errorf("citation position %d splits a multi-byte character", citation.Position)
		}
		for _, ref := range citation.References {
			if _, ok := refNumbers[ref.URL]; !ok {
				refNumbers[ref.URL] = len(ordered) + 1
				ordered = append(ordered, ref.URL)
			}
		}
	}

	// Group distinct URLs by position.
	byPosition := make(map[int][]string)
	for _, citation := range citations {
		seen := make(map[string]struct{}, len(citation.References))
		for _, existing := range byPosition[citation.Position] {
			seen[existing] = struct{}{}
		}
		for _, ref := range citation.References {
			if _, ok := seen[ref.URL]; ok {
				continue
			}
			seen[ref.URL] = struct{}{}
			byPosition[citation.Position] = append(byPosition[citation.Position], ref.URL)
		}
	}

	positions := make([]int, 0, len(byPosition))
	for pos := range byPosition {
		positions = append(positions, pos)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(positions)))

	// Insert markers highest offset first so pending positions in the
	// original string are never shifted by an earlier insertion.
	for _, pos := range positions {
		urls := byPosition[pos]
		sort.Slice(urls, func(i, j int) bool {
			return refNumbers[urls[i]] < refNumbers[urls[j]]
		})

		nums := make([]string, 0, len(urls))
		for _, url := range urls {
			num := refNumbers[url]
			if strings.HasPrefix(url, "http") {
				nums = append(nums, fmt.Sprintf("<%s|%d>", url, num))
			} else {
				nums = append(nums, strconv.Itoa(num))
			}
		}
		marker := "[" + strings.Join(nums, ",") + "]"
		message = message[:pos] + marker + message[pos:]
	}

	var refs strings.Builder
	refs.WriteString("References:\n")
	for _, url := range ordered {
		if strings.HasPrefix(url, "http") {
			fmt.Fprintf(&refs, "%d. <%s|%s>\n", refNumbers[url], url, url)
		} else {
			fmt.Fprintf(&refs, "%d. %s\n", refNumbers[url], url)
		}
	}
	return refs.String() + "\n" + message, nil
}

// FormatResponse normalizes and renders a raw backend answer.
func FormatResponse(answer *domain.AssistantAnswer) (string, error) {
	return FormatAnswer(NormalizeAnswer(answer))
}
