// Package dedupe filters repeated search results. Two results are the same
// when their normalized URLs match or their fingerprints (normalized URL plus
// normalized title) match.
package dedupe

import (
	"strings"
)

const similarityThreshold = 0.85

// Result holds the fields the deduplicator looks at.
type Result struct {
	SourceURL    string
	Title        string
	SourceDomain string
}

func (r Result) DedupeFields() Result {
	return r
}

// Item is anything that can be reduced to a Result.
type Item interface {
	DedupeFields() Result
}

// Partition splits a batch into new results and repeats. Both keep the
// relative order of the input.
type Partition[T Item] struct {
	Unique     []T
	Duplicates []T
}

// Dedupe partitions newResults against existing and against earlier entries of
// newResults itself. Every input item lands in exactly one of the two lists.
func Dedupe[T Item](newResults []T, existing []T) Partition[T] {
	existingHashes := make(map[string]struct{}, len(existing))
	existingURLs := make(map[string]struct{}, len(existing))
	for _, item := range existing {
		existingHashes[Hash(item)] = struct{}{}
		existingURLs[NormalizeURL(item.DedupeFields().SourceURL)] = struct{}{}
	}

	partition := Partition[T]{
		Unique:     make([]T, 0, len(newResults)),
		Duplicates: make([]T, 0),
	}
	seen := make(map[string]struct{}, len(newResults))

	for _, item := range newResults {
		hash := Hash(item)
		normalizedURL := NormalizeURL(item.DedupeFields().SourceURL)

		_, knownHash := existingHashes[hash]
		_, knownURL := existingURLs[normalizedURL]
		_, seenHash := seen[hash]

		if knownHash || knownURL || seenHash {
			partition.Duplicates = append(partition.Duplicates, item)
			continue
		}

		partition.Unique = append(partition.Unique, item)
		seen[hash] = struct{}{}
	}

	return partition
}

// AreDuplicates reports whether two results likely describe the same page:
// same normalized URL, or same domain with one title containing the other or
// highly overlapping characters.
func AreDuplicates(a, b Item) bool {
	fa, fb := a.DedupeFields(), b.DedupeFields()

	if NormalizeURL(fa.SourceURL) == NormalizeURL(fb.SourceURL) {
		return true
	}

	if fa.SourceDomain != fb.SourceDomain {
		return false
	}

	titleA := NormalizeTitle(fa.Title)
	titleB := NormalizeTitle(fb.Title)

	if strings.Contains(titleA, titleB) || strings.Contains(titleB, titleA) {
		return true
	}

	return similarity(titleA, titleB) > similarityThreshold
}

// similarity is the share of characters of the longer string that occur
// anywhere in the shorter one. It ignores position and frequency.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	longer, shorter := []rune(b), []rune(a)
	if len(shorter) > len(longer) {
		longer, shorter = shorter, longer
	}

	chars := make(map[rune]struct{}, len(shorter))
	for _, r := range shorter {
		chars[r] = struct{}{}
	}

	matches := 0
	for _, r := range longer {
		if _, ok := chars[r]; ok {
			matches++
		}
	}

	return float64(matches) / float64(len(longer))
}
