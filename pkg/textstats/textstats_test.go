package textstats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze_Tally(t *testing.T) {
	result := Analyze("the cat sat on the mat the cat ran")

	counts := make(map[string]int, len(result))
	for _, e := range result {
		counts[e.Word] = e.Count
	}

	assert.Equal(t, 3, counts["the"])
	assert.Equal(t, 2, counts["cat"])
	for _, w := range []string{"sat", "on", "mat", "ran"} {
		assert.Equal(t, 1, counts[w], w)
	}
	assert.Equal(t, 9, TotalWords(result))
	assert.Equal(t, []WordFrequency{
		{Word: "the", Count: 3},
		{Word: "cat", Count: 2},
		{Word: "sat", Count: 1},
		{Word: "on", Count: 1},
		{Word: "mat", Count: 1},
		{Word: "ran", Count: 1},
	}, result)
}

func TestAnalyze_StableTieBreak(t *testing.T) {
	result := Analyze("b a b a c")

	assert.Equal(t, []WordFrequency{
		{Word: "b", Count: 2},
		{Word: "a", Count: 2},
		{Word: "c", Count: 1},
	}, result)
}

func TestAnalyze_Normalization(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []WordFrequency
	}{
		{
			name:     "punctuation and case",
			input:    "Hello, HELLO! hello?",
			expected: []WordFrequency{{Word: "hello", Count: 3}},
		},
		{
			name:  "apostrophes join words",
			input: "don't dont",
			expected: []WordFrequency{
				{Word: "dont", Count: 2},
			},
		},
		{
			name:  "digits and underscores are word characters",
			input: "42 snake_case 42",
			expected: []WordFrequency{
				{Word: "42", Count: 2},
				{Word: "snake_case", Count: 1},
			},
		},
		{
			name:  "tabs and newlines split tokens",
			input: "one\ttwo\n\none",
			expected: []WordFrequency{
				{Word: "one", Count: 2},
				{Word: "two", Count: 1},
			},
		},
		{
			name:     "punctuation-only tokens vanish",
			input:    "wait -- what ...",
			expected: []WordFrequency{{Word: "wait", Count: 1}, {Word: "what", Count: 1}},
		},
		{
			name:     "single characters count",
			input:    "a I a",
			expected: []WordFrequency{{Word: "a", Count: 2}, {Word: "i", Count: 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Analyze(tt.input))
		})
	}
}

func TestAnalyze_EmptyInput(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\t", "?!"} {
		result := Analyze(input)
		require.NotNil(t, result)
		assert.Empty(t, result, "input %q", input)
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	text := "z y x z y z w v u t s r q w v"
	first := Analyze(text)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Analyze(text))
	}
}

func TestTop(t *testing.T) {
	entries := Analyze("a a a b b c d e")

	assert.Equal(t, []WordFrequency{
		{Word: "a", Count: 3},
		{Word: "b", Count: 2},
		{Word: "c", Count: 1},
		{Word: "d", Count: 1},
	}, Top(entries, DefaultTopWords))
	assert.Len(t, Top(entries, 100), 5)
	assert.Empty(t, Top(entries, -1))
	assert.Empty(t, Top(nil, 4))
}
