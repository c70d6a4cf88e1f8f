package textproc

import (
	"sort"
	"strings"
)

// DefaultFilters are the characters stripped from text before splitting into words
const DefaultFilters = "!\"#$%&()*+,-./:;<=>?@[\\]^_`{|}~\t\n"

// Tokenizer maps words to integer indices ranked by frequency.
// Index 0 is reserved for padding; only indices below NumWords are emitted.
type Tokenizer struct {
	NumWords      int            `json:"num_words"`
	Filters       string         `json:"filters"`
	WordIndex     map[string]int `json:"word_index"`
	WordCounts    map[string]int `json:"word_counts"`
	DocumentCount int            `json:"document_count"`

	// order of first appearance, used to break frequency ties
	seen []string
}

// NewTokenizer creates a tokenizer bounded to numWords (0 means unbounded)
func NewTokenizer(numWords int) *Tokenizer {
	return &Tokenizer{
		NumWords:   numWords,
		Filters:    DefaultFilters,
		WordIndex:  make(map[string]int),
		WordCounts: make(map[string]int),
	}
}

// TextToWords lowercases text, replaces filter characters with spaces and splits it
func TextToWords(text, filters string) []string {
	text = strings.ToLower(text)
	if filters != "" {
		text = strings.Map(func(r rune) rune {
			if strings.ContainsRune(filters, r) {
				return ' '
			}
			return r
		}, text)
	}
	return strings.Fields(text)
}

// Fit updates word counts from texts and rebuilds the word index.
// Words are ranked by descending count; ties keep first-appearance order.
func (t *Tokenizer) Fit(texts []string) {
	for _, text := range texts {
		t.DocumentCount++
		for _, w := range TextToWords(text, t.Filters) {
			if _, ok := t.WordCounts[w]; !ok {
				t.seen = append(t.seen, w)
			}
			t.WordCounts[w]++
		}
	}

	order := make([]string, len(t.seen))
	copy(order, t.seen)
	sort.SliceStable(order, func(i, j int) bool {
		return t.WordCounts[order[i]] > t.WordCounts[order[j]]
	})

	t.WordIndex = make(map[string]int, len(order))
	for i, w := range order {
		t.WordIndex[w] = i + 1
	}
}

// TextsToSequences converts each text into word indices, dropping unknown
// words and words ranked at or beyond NumWords
func (t *Tokenizer) TextsToSequences(texts []string) [][]int {
	out := make([][]int, len(texts))
	for i, text := range texts {
		seq := make([]int, 0)
		for _, w := range TextToWords(text, t.Filters) {
			idx, ok := t.WordIndex[w]
			if !ok {
				continue
			}
			if t.NumWords > 0 && idx >= t.NumWords {
				continue
			}
			seq = append(seq, idx)
		}
		out[i] = seq
	}
	return out
}

// VocabularySize is the number of distinct indices a sequence can contain, padding included
func (t *Tokenizer) VocabularySize() int {
	size := len(t.WordIndex) + 1
	if t.NumWords > 0 && t.NumWords < size {
		return t.NumWords
	}
	return size
}
