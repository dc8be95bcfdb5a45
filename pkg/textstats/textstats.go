// Package textstats ranks the words of a transcript by how often they occur.
package textstats

import (
	"sort"
	"strings"
	"unicode"
)

// DefaultTopWords is how many entries the word-count view shows.
const DefaultTopWords = 4

// WordFrequency is one ranked entry of an analysis.
type WordFrequency struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// Analyze lowercases text, strips everything that is not a word character
// or whitespace, and tallies the remaining tokens. Entries are ordered by
// count descending; equal counts keep first-seen order.
func Analyze(text string) []WordFrequency {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return []WordFrequency{}
	}

	index := make(map[string]int, len(tokens))
	entries := make([]WordFrequency, 0, len(tokens))
	for _, tok := range tokens {
		if i, ok := index[tok]; ok {
			entries[i].Count++
			continue
		}
		index[tok] = len(entries)
		entries = append(entries, WordFrequency{Word: tok, Count: 1})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})

	return entries
}

// Tokenize returns the normalized tokens of text in their original order.
func Tokenize(text string) []string {
	normalized := strings.Map(func(r rune) rune {
		if isWordChar(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, strings.ToLower(text))

	return strings.Fields(normalized)
}

// Top returns at most n leading entries.
func Top(entries []WordFrequency, n int) []WordFrequency {
	if n < 0 {
		n = 0
	}
	if n > len(entries) {
		n = len(entries)
	}
	return entries[:n]
}

// TotalWords sums the counts of all entries.
func TotalWords(entries []WordFrequency) int {
	total := 0
	for _, e := range entries {
		total += e.Count
	}
	return total
}

// word characters are ASCII letters, digits and underscore
func isWordChar(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
