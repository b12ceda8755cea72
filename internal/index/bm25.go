package index

import (
	"context"
	"maps"
	"slices"
	"strings"
	"unicode"
)

// BM25 defaults.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// BM25 is a lexical term-frequency scorer.
type BM25 struct {
	K1 float64
	B  float64
}

// NewBM25 returns a BM25 scorer with default parameters.
func NewBM25() *BM25 {
	return &BM25{K1: DefaultK1, B: DefaultB}
}

func (s *BM25) Name() string { return "bm25" }

func (s *BM25) Analyze(_ context.Context, text string) (Features, error) {
	return termFeatures(text), nil
}

func (s *BM25) Score(query, entry Features, corpus *Corpus) float64 {
	if len(query.Terms) == 0 || len(entry.Terms) == 0 {
		return 0
	}
	avg := corpus.AvgLength()
	if avg == 0 {
		avg = 1
	}
	lengthNorm := 1 - s.B + s.B*float64(entry.Length)/avg

	var score float64
	for _, term := range query.termList() {
		tf := float64(entry.Terms[term])
		if tf == 0 {
			continue
		}
		score += corpus.IDF(term) * tf * (s.K1 + 1) / (tf + s.K1*lengthNorm)
	}
	return score
}

func termFeatures(text string) Features {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return Features{}
	}
	terms := make(map[string]int, len(tokens))
	for _, t := range tokens {
		terms[t]++
	}
	return Features{Terms: terms, Length: len(tokens), order: slices.Sorted(maps.Keys(terms))}
}

// Tokenize splits text into lowercase letter/digit runs, dropping stopwords.
func Tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := words[:0]
	for _, w := range words {
		if stopwords[w] {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// stopwords contains common English words that carry no retrieval signal.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "do": true, "does": true, "did": true,
	"have": true, "has": true, "had": true, "be": true, "been": true,
	"being": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "can": true, "shall": true, "not": true,
	"no": true, "and": true, "or": true, "but": true, "if": true,
	"then": true, "than": true, "so": true, "as": true, "at": true,
	"by": true, "for": true, "from": true, "in": true, "into": true,
	"of": true, "on": true, "to": true, "with": true, "about": true,
	"up": true, "out": true, "it": true, "its": true, "this": true,
	"that": true, "what": true, "which": true, "who": true, "how": true,
	"when": true, "where": true, "why": true,
}
